package flow

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"order_assistant/internal/model"
)

// View 状态机产出的下一屏内容。
type View struct {
	Text     string
	Keyboard model.Keyboard
}

const (
	vatRatePercent = 20
	itemNameLimit  = 50
)

// OrderMenu 订单顶层菜单：支付 / 配送 / 提问。
func OrderMenu(orderID string) model.Keyboard {
	return model.Keyboard{
		model.Row(model.Button{Label: "💳 Оплатить сейчас", Callback: Token(ActionPay, orderID)}),
		model.Row(model.Button{Label: "📦 Доставка", Callback: Token(ActionDelivery, orderID)}),
		model.Row(model.Button{Label: "❓ Задать вопрос", Callback: Token(ActionAsk, orderID)}),
	}
}

// NewOrderView 新订单确认消息。
func NewOrderView(o model.Order) View {
	lines := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		lines = append(lines, fmt.Sprintf("• %s - %d шт × %s₽ = %s₽",
			shorten(it.Name, itemNameLimit), it.Quantity, it.UnitPrice, it.Subtotal()))
	}
	text := fmt.Sprintf(
		"✅ Заказ #%s успешно сформирован!\n\n"+
			"📦 Товары:\n%s\n\n"+
			"💰 ИТОГО: %s₽\n\n"+
			"👋 Я Алексей, ваш менеджер. Чем могу помочь?\n"+
			"• Могу ответить на вопросы о товарах\n"+
			"• Помочь с оформлением доставки\n"+
			"• Предложить способы оплаты",
		o.ID, strings.Join(lines, "\n"), o.Total)
	return View{Text: text, Keyboard: OrderMenu(o.ID)}
}

func paymentMethodsView(orderID string) View {
	return View{
		Text: fmt.Sprintf("Выберите способ оплаты для заказа #%s:", orderID),
		Keyboard: model.Keyboard{
			model.Row(model.Button{Label: "💳 Карта онлайн", Callback: Token(ActionProcessCard, orderID)}),
			model.Row(model.Button{Label: "🏦 По счету", Callback: Token(ActionProcessInvoice, orderID)}),
			model.Row(model.Button{Label: "📱 При получении", Callback: Token(ActionProcessCash, orderID)}),
			model.Row(model.Button{Label: "◀️ Назад", Callback: Token(ActionBack, orderID)}),
		},
	}
}

func cardPaymentView(o model.Order) View {
	return View{
		Text: fmt.Sprintf("💳 Оплата заказа #%s\n\n"+
			"Сумма: %s₽\n\n"+
			"Тестовые данные карты:\n"+
			"Номер: 4242 4242 4242 4242\n"+
			"Срок: 12/25\n"+
			"CVV: 123\n\n"+
			"Нажмите кнопку для имитации оплаты:", o.ID, o.Total),
		Keyboard: model.Keyboard{
			model.Row(model.Button{Label: "✅ Подтвердить оплату", Callback: Token(ActionConfirm, o.ID)}),
			model.Row(model.Button{Label: "❌ Отмена", Callback: Token(ActionCancel, o.ID)}),
		},
	}
}

func invoiceView(o model.Order) View {
	payer := o.UserName
	if payer == "" {
		payer = "—"
	}
	vat := o.Total * vatRatePercent / 100
	return View{Text: fmt.Sprintf("🧾 Счет на оплату #%s\n\n"+
		"Плательщик: %s\n"+
		"Сумма: %s₽\n"+
		"НДС %d%%: %s₽\n\n"+
		"Реквизиты:\n"+
		"Банк: АО 'Т-Банк'\n"+
		"БИК: 044525974\n"+
		"Счет: 40702810123450123456\n"+
		"Корр.счет: 30101810145250000974\n\n"+
		"Счет отправлен вам в личные сообщения.", o.ID, payer, o.Total, vatRatePercent, vat)}
}

func cashOnDeliveryView(orderID string) View {
	return View{Text: fmt.Sprintf("📦 Заказ #%s будет доставлен курьером.\n\n"+
		"Способ оплаты: наличными или картой при получении.\n"+
		"Срок доставки: 2-3 рабочих дня.\n"+
		"Курьер свяжется за час до приезда.", orderID)}
}

func paymentSuccessView(orderID string) View {
	return View{Text: fmt.Sprintf("✅ Оплата заказа #%s прошла успешно!\n\n"+
		"Спасибо за покупку!\n"+
		"Чек отправлен на email.\n"+
		"Номер заказа: %s\n\n"+
		"Если есть вопросы, я всегда на связи.", orderID, orderID)}
}

func alreadyPaidView(orderID string) View {
	return View{Text: fmt.Sprintf("Заказ #%s уже оплачен. Спасибо!\nЕсли есть вопросы, я всегда на связи.", orderID)}
}

func deliveryOptionsView(orderID string) View {
	return View{Text: fmt.Sprintf("📦 Доставка заказа #%s\n\n"+
		"Варианты доставки:\n"+
		"• Курьером по Москве - 500₽ (1-2 дня)\n"+
		"• СДЭК до пункта выдачи - 350₽ (2-4 дня)\n"+
		"• Почта России - 300₽ (5-7 дней)\n\n"+
		"Напишите ваш город и удобный способ доставки.", orderID)}
}

func askView() View {
	return View{Text: "Задайте ваш вопрос, и я с удовольствием отвечу!"}
}

func backView(orderID string) View {
	return View{
		Text:     fmt.Sprintf("Заказ #%s. Выберите действие:", orderID),
		Keyboard: OrderMenu(orderID),
	}
}

func cancelledView() View {
	return View{Text: "Операция отменена. Могу помочь чем-то еще?"}
}

func shorten(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "..."
}
