package assistant

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"order_assistant/internal/model"
)

// 用户可见的兜底文案：不暴露内部标识和错误细节。
const (
	replyOrderFailed      = "Произошла ошибка при обработке заказа. Пожалуйста, попробуйте еще раз."
	replyCompletionFailed = "Извините, возникла техническая проблема. Напишите мне через минуту или свяжитесь с поддержкой."
	replyMalformedAction  = "Не удалось распознать действие. Пожалуйста, попробуйте еще раз."
	replyUnknownOrder     = "Не нашел этот заказ. Возможно, он устарел, оформите новый заказ в магазине."
	replyGeneric          = "Извините, что-то пошло не так. Попробуйте еще раз."
	replyNoActiveOrder    = "У вас нет активных заказов."
	replyOpenCart         = "Нажмите кнопку, чтобы открыть корзину:"
)

const helpText = "🆘 Помощь\n\n" +
	"Я Алексей, ваш менеджер 24/7.\n\n" +
	"Команды:\n" +
	"/start - начать диалог\n" +
	"/cart - открыть корзину\n" +
	"/order - мой заказ\n" +
	"/help - это сообщение\n\n" +
	"Или просто напишите вопрос!"

func welcomeText(displayName string) string {
	name := "друг"
	if fields := strings.Fields(displayName); len(fields) > 0 {
		name = fields[0]
	}
	return fmt.Sprintf("👋 Здравствуйте, %s!\n\n"+
		"Я Алексей, ваш персональный менеджер компании OLMI Connect.\n"+
		"Я работаю 24/7 и готов помочь с любыми вопросами!\n\n"+
		"🛒 Нажмите кнопку ниже, чтобы открыть каталог.\n"+
		"💬 Просто напишите мне, и я отвечу на любые вопросы!", name)
}

func pendingOrderReminder(orderID string) string {
	return fmt.Sprintf("👋 Я вижу вы оформили заказ #%s!\nЧем могу помочь с его оформлением?", orderID)
}

func orderStatusText(o model.Order) string {
	return fmt.Sprintf("Ваш текущий заказ: #%s\nСтатус: %s\nСумма: %s₽", o.ID, statusLabel(o.Status), o.Total)
}

func statusLabel(s model.OrderStatus) string {
	switch s {
	case model.OrderPending:
		return "ожидает оплаты"
	case model.OrderPaid:
		return "оплачен"
	}
	return string(s)
}

// callbackErrorReply 回调错误到用户文案的映射。
func callbackErrorReply(err error) string {
	switch {
	case errors.Is(err, model.ErrMalformedAction):
		return replyMalformedAction
	case errors.Is(err, model.ErrUnknownOrder):
		return replyUnknownOrder
	default:
		return replyGeneric
	}
}
