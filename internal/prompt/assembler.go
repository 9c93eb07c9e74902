package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"

	"order_assistant/internal/model"
)

// DefaultWindow 发送给模型的最近对话条数（含本轮用户消息）。
const DefaultWindow = 10

// Persona 销售经理人设与回复约束。
const Persona = `Ты - Алексей, профессиональный менеджер по продажам телекоммуникационного оборудования в компании OLMI Connect.
Твои характеристики:
- Имя: Алексей
- Компания: OLMI Connect (телекоммуникационное оборудование)
- Ты дружелюбный, но профессиональный
- Отвечаешь кратко и по делу (максимум 2-3 предложения)
- Помогаешь с выбором оборудования
- Консультируешь по характеристикам
- Когда клиент готов сделать заказ, ты предлагаешь способы оплаты

Важно: Отвечай ТОЛЬКО на русском языке, будь вежлив и профессионален.`

// Assembler 组装单轮对话的模型输入：人设 + 活跃订单摘要 + 截断后的历史。
// 超出窗口的旧消息直接丢弃，不做摘要。
type Assembler struct {
	persona string
	window  int
}

func NewAssembler(persona string, window int) *Assembler {
	if persona == "" {
		persona = Persona
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Assembler{persona: persona, window: window}
}

// Window 历史窗口大小。
func (a *Assembler) Window() int { return a.window }

// Build 纯函数：输出最多 window+2 条，本轮 utterance 永远是最后一条。
// history 为写入本轮之前的历史快照。
func (a *Assembler) Build(history []model.Message, active *model.Order, utterance string) []model.Message {
	out := make([]model.Message, 0, a.window+2)
	out = append(out, model.Message{Role: model.RoleSystem, Content: a.persona})
	if active != nil {
		out = append(out, model.Message{Role: model.RoleSystem, Content: OrderSummary(*active)})
	}

	keep := a.window - 1
	if keep > len(history) {
		keep = len(history)
	}
	out = append(out, history[len(history)-keep:]...)
	return append(out, model.Message{Role: model.RoleUser, Content: utterance})
}

// OrderSummary 活跃订单的系统提示，商品以 JSON 序列化，非 ASCII 原样保留。
func OrderSummary(o model.Order) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(o.Items); err != nil {
		buf.Reset()
		buf.WriteString("[]")
	}
	return fmt.Sprintf("У пользователя есть активный заказ #%s на сумму %s₽. Товары: %s",
		o.ID, o.Total, bytes.TrimSpace(buf.Bytes()))
}
