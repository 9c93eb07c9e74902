package telegram

import (
	"context"
	"fmt"
	"testing"

	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order_assistant/internal/assistant"
	"order_assistant/internal/model"
)

func TestToUpdateMessage(t *testing.T) {
	u, ok := toUpdate(&models.Update{
		ID: 100,
		Message: &models.Message{
			ID:   5,
			From: &models.User{ID: 77, FirstName: "Ivan", LastName: "Petrov", Username: "ivanp"},
			Chat: models.Chat{ID: 77},
			Text: "/start",
		},
	})
	require.True(t, ok)
	assert.Equal(t, assistant.Update{
		ID: 100, UserID: 77, ChatID: 77, MessageID: 5,
		DisplayName: "Ivan Petrov", Handle: "ivanp", Text: "/start",
	}, u)
	assert.Equal(t, assistant.KindCommand, assistant.Classify(u))
}

func TestToUpdateWebAppData(t *testing.T) {
	u, ok := toUpdate(&models.Update{
		ID: 101,
		Message: &models.Message{
			From:       &models.User{ID: 77, FirstName: "Ivan"},
			Chat:       models.Chat{ID: 77},
			WebAppData: &models.WebAppData{Data: `{"action":"new_order"}`},
		},
	})
	require.True(t, ok)
	assert.Equal(t, "Ivan", u.DisplayName)
	assert.Equal(t, assistant.KindOrderPayload, assistant.Classify(u))
}

func TestToUpdateCallback(t *testing.T) {
	u, ok := toUpdate(&models.Update{
		ID: 102,
		CallbackQuery: &models.CallbackQuery{
			ID:   "cb-1",
			From: models.User{ID: 77},
			Data: "pay_42",
			Message: models.MaybeInaccessibleMessage{
				Message: &models.Message{ID: 9, Chat: models.Chat{ID: -5}},
			},
		},
	})
	require.True(t, ok)
	assert.Equal(t, int64(-5), u.ChatID)
	assert.Equal(t, 9, u.MessageID)
	assert.Equal(t, "cb-1", u.CallbackID)
	assert.Equal(t, assistant.KindCallback, assistant.Classify(u))

	// 原消息不可访问时只能发新消息
	u, ok = toUpdate(&models.Update{
		ID: 103,
		CallbackQuery: &models.CallbackQuery{
			ID:   "cb-2",
			From: models.User{ID: 77},
			Data: "confirm_42",
		},
	})
	require.True(t, ok)
	assert.Equal(t, int64(77), u.ChatID)
	assert.Zero(t, u.MessageID)
}

func TestToUpdateIgnored(t *testing.T) {
	_, ok := toUpdate(nil)
	assert.False(t, ok)
	_, ok = toUpdate(&models.Update{ID: 1})
	assert.False(t, ok)
}

func TestInlineKeyboard(t *testing.T) {
	assert.Nil(t, inlineKeyboard(nil))

	markup := inlineKeyboard(model.Keyboard{
		model.Row(model.Button{Label: "pay", Callback: "pay_42"}),
		model.Row(
			model.Button{Label: "shop", WebAppURL: "https://shop.example"},
			model.Button{Label: "support", URL: "https://t.me/support"},
		),
	})
	kb, ok := markup.(*models.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, kb.InlineKeyboard, 2)
	assert.Equal(t, "pay_42", kb.InlineKeyboard[0][0].CallbackData)
	require.NotNil(t, kb.InlineKeyboard[1][0].WebApp)
	assert.Equal(t, "https://shop.example", kb.InlineKeyboard[1][0].WebApp.URL)
	assert.Equal(t, "https://t.me/support", kb.InlineKeyboard[1][1].URL)
}

type stubDeduper struct{ seen map[int64]bool }

func (d *stubDeduper) FirstSeen(_ context.Context, id int64) (bool, error) {
	if d.seen[id] {
		return false, nil
	}
	d.seen[id] = true
	return true, nil
}

type stubLimiter struct {
	calls int
	deny  bool
	err   error
}

func (l *stubLimiter) Allow(context.Context, int64) (bool, error) {
	l.calls++
	return !l.deny, l.err
}

type noticeRecorder struct {
	assistant.Recorder
	fail bool
}

func (r *noticeRecorder) RenderText(ctx context.Context, chatID int64, text string, kb model.Keyboard) error {
	if r.fail {
		return fmt.Errorf("bot was blocked by the user")
	}
	return r.Recorder.RenderText(ctx, chatID, text, kb)
}

func TestAdmit(t *testing.T) {
	limiter := &stubLimiter{}
	tr := &Transport{dedup: &stubDeduper{seen: map[int64]bool{}}, limiter: limiter, username: "olmi_bot"}
	ctx := context.Background()
	out := &noticeRecorder{}

	text := assistant.Update{ID: 1, UserID: 7, ChatID: 7, Text: "привет"}
	assert.True(t, tr.admit(ctx, text, out))
	assert.False(t, tr.admit(ctx, text, out), "redelivered update")

	// 按钮回调不走限流
	calls := limiter.calls
	assert.True(t, tr.admit(ctx, assistant.Update{ID: 2, UserID: 7, CallbackData: "pay_1"}, out))
	assert.Equal(t, calls, limiter.calls)

	limiter.err = fmt.Errorf("redis down")
	assert.True(t, tr.admit(ctx, assistant.Update{ID: 3, UserID: 7, Text: "ещё"}, out))
	assert.Empty(t, out.Replies())
}

func TestAdmitRateLimitedLeavesNoMarker(t *testing.T) {
	limiter := &stubLimiter{deny: true}
	tr := &Transport{dedup: &stubDeduper{seen: map[int64]bool{}}, limiter: limiter, username: "olmi_bot"}
	ctx := context.Background()
	out := &noticeRecorder{}

	u := assistant.Update{ID: 5, UserID: 7, ChatID: 7, Text: "привет"}
	assert.False(t, tr.admit(ctx, u, out))
	r, ok := out.Last()
	require.True(t, ok)
	assert.Equal(t, replyRateLimited, r.Text)

	limiter.deny = false
	assert.True(t, tr.admit(ctx, u, out))

	// 通知发不出去也只是记日志
	limiter.deny = true
	out.fail = true
	assert.False(t, tr.admit(ctx, assistant.Update{ID: 6, UserID: 7, ChatID: 7, Text: "ещё"}, out))
}

func TestAdmitCommandsForOtherBots(t *testing.T) {
	tr := &Transport{username: "olmi_bot"}
	ctx := context.Background()

	assert.True(t, tr.admit(ctx, assistant.Update{ID: 1, UserID: 7, Text: "/start"}, nil))
	assert.True(t, tr.admit(ctx, assistant.Update{ID: 2, UserID: 7, Text: "/order@Olmi_Bot"}, nil))
	assert.False(t, tr.admit(ctx, assistant.Update{ID: 3, UserID: 7, Text: "/start@some_other_bot"}, nil))
	assert.True(t, tr.admit(ctx, assistant.Update{ID: 4, UserID: 7, Text: "почта@example.ru"}, nil))
}
