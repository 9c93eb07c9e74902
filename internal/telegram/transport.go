package telegram

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/pkg/errors"

	"order_assistant/internal/assistant"
	"order_assistant/internal/model"
)

const replyRateLimited = "Вы отправляете сообщения слишком часто. Пожалуйста, подождите немного."

// Handler 入站事件处理方，一般是 *assistant.Dispatcher。
type Handler interface {
	Handle(ctx context.Context, u assistant.Update, out assistant.Renderer) error
}

// Limiter 自由文本限流，例如 redis.UserRateLimiter。
type Limiter interface {
	Allow(ctx context.Context, userID int64) (bool, error)
}

// Deduper 重投更新去重，例如 redis.UpdateDeduper。
type Deduper interface {
	FirstSeen(ctx context.Context, updateID int64) (bool, error)
}

// Transport Telegram 长轮询传输层。
type Transport struct {
	b       *bot.Bot
	handler Handler
	limiter Limiter
	dedup   Deduper
	// username 本机器人的用户名，群聊里用来过滤发给其他机器人的命令
	username string
}

type Option func(*Transport)

func WithLimiter(l Limiter) Option { return func(t *Transport) { t.limiter = l } }

func WithDeduper(d Deduper) Option { return func(t *Transport) { t.dedup = d } }

func New(token string, h Handler, opts ...Option) (*Transport, error) {
	t := &Transport{handler: h}
	for _, opt := range opts {
		opt(t)
	}
	b, err := bot.New(token, bot.WithDefaultHandler(t.onUpdate))
	if err != nil {
		return nil, errors.Wrap(err, "create telegram bot")
	}
	t.b = b

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	me, err := b.GetMe(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "get telegram bot profile")
	}
	t.username = me.Username
	return t, nil
}

// Run 阻塞直到 ctx 取消。
func (t *Transport) Run(ctx context.Context) {
	slog.Info("telegram polling started")
	t.b.Start(ctx)
}

func (t *Transport) onUpdate(ctx context.Context, b *bot.Bot, upd *models.Update) {
	u, ok := toUpdate(upd)
	if !ok {
		return
	}
	out := &sender{b: b}
	if !t.admit(ctx, u, out) {
		return
	}
	if err := t.handler.Handle(ctx, u, out); err != nil {
		slog.Error("handle telegram update", "update_id", u.ID, "user_id", u.UserID, "err", err)
	}
}

// admit 过滤发给其他机器人的命令，再做限流和去重；Redis 出错时放行。
// 限流在去重之前，被限流的更新不留去重标记。
func (t *Transport) admit(ctx context.Context, u assistant.Update, out assistant.Renderer) bool {
	if !t.addressedToMe(u) {
		slog.Debug("ignore command for another bot", "update_id", u.ID, "text", u.Text)
		return false
	}
	if t.limiter != nil && assistant.Classify(u) == assistant.KindText {
		allowed, err := t.limiter.Allow(ctx, u.UserID)
		if err != nil {
			slog.Warn("rate limit check failed", "user_id", u.UserID, "err", err)
		} else if !allowed {
			slog.Info("rate limited", "user_id", u.UserID)
			if err := out.RenderText(ctx, u.ChatID, replyRateLimited, nil); err != nil {
				slog.Error("send rate limit notice", "chat_id", u.ChatID, "err", err)
			}
			return false
		}
	}
	if t.dedup != nil {
		first, err := t.dedup.FirstSeen(ctx, u.ID)
		if err != nil {
			slog.Warn("update dedup failed", "update_id", u.ID, "err", err)
		} else if !first {
			slog.Info("drop redelivered update", "update_id", u.ID)
			return false
		}
	}
	return true
}

// addressedToMe "/start@other_bot" 只有 other_bot 应该响应。
func (t *Transport) addressedToMe(u assistant.Update) bool {
	if u.CallbackData != "" || u.WebAppData != "" {
		return true
	}
	mention := assistant.CommandMention(u.Text)
	return mention == "" || strings.EqualFold(mention, t.username)
}

// sender 实现 assistant.Renderer 及可选能力。
type sender struct {
	b *bot.Bot
}

func (s *sender) RenderText(ctx context.Context, chatID int64, text string, kb model.Keyboard) error {
	_, err := s.b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ReplyMarkup: inlineKeyboard(kb),
	})
	return err
}

func (s *sender) EditMessage(ctx context.Context, chatID int64, messageID int, text string, kb model.Keyboard) error {
	_, err := s.b.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        text,
		ReplyMarkup: inlineKeyboard(kb),
	})
	// 同样的内容再编辑一次（重复点击）不算失败
	if err != nil && strings.Contains(err.Error(), "message is not modified") {
		return nil
	}
	return err
}

func (s *sender) AckCallback(ctx context.Context, callbackID string) error {
	_, err := s.b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: callbackID})
	return err
}

func (s *sender) NotifyTyping(ctx context.Context, chatID int64) error {
	_, err := s.b.SendChatAction(ctx, &bot.SendChatActionParams{ChatID: chatID, Action: models.ChatActionTyping})
	return err
}
