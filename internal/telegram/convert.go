package telegram

import (
	"strings"

	"github.com/go-telegram/bot/models"

	"order_assistant/internal/assistant"
	"order_assistant/internal/model"
)

// toUpdate 把 Telegram 更新转换成 Dispatcher 的入站事件；不关心的更新返回 false。
func toUpdate(upd *models.Update) (assistant.Update, bool) {
	if upd == nil {
		return assistant.Update{}, false
	}
	switch {
	case upd.CallbackQuery != nil:
		q := upd.CallbackQuery
		u := assistant.Update{
			ID:           upd.ID,
			UserID:       q.From.ID,
			ChatID:       q.From.ID,
			DisplayName:  displayName(q.From),
			Handle:       q.From.Username,
			CallbackID:   q.ID,
			CallbackData: q.Data,
		}
		switch {
		case q.Message.Message != nil:
			u.ChatID = q.Message.Message.Chat.ID
			u.MessageID = q.Message.Message.ID
		case q.Message.InaccessibleMessage != nil:
			u.ChatID = q.Message.InaccessibleMessage.Chat.ID
		}
		return u, true
	case upd.Message != nil:
		m := upd.Message
		u := assistant.Update{
			ID:        upd.ID,
			ChatID:    m.Chat.ID,
			MessageID: m.ID,
			Text:      m.Text,
		}
		if m.From != nil {
			u.UserID = m.From.ID
			u.DisplayName = displayName(*m.From)
			u.Handle = m.From.Username
		}
		if m.WebAppData != nil {
			u.WebAppData = m.WebAppData.Data
		}
		return u, true
	}
	return assistant.Update{}, false
}

func displayName(u models.User) string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// inlineKeyboard nil 表示不带按钮。
func inlineKeyboard(kb model.Keyboard) models.ReplyMarkup {
	if len(kb) == 0 {
		return nil
	}
	rows := make([][]models.InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]models.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			btn := models.InlineKeyboardButton{Text: b.Label}
			switch {
			case b.Callback != "":
				btn.CallbackData = b.Callback
			case b.WebAppURL != "":
				btn.WebApp = &models.WebAppInfo{URL: b.WebAppURL}
			default:
				btn.URL = b.URL
			}
			buttons = append(buttons, btn)
		}
		rows = append(rows, buttons)
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}
