package assistant

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"order_assistant/internal/flow"
	"order_assistant/internal/model"
	"order_assistant/internal/prompt"
	"order_assistant/internal/queue"
	"order_assistant/internal/store"
)

// Completer 外部语言模型调用。
type Completer interface {
	Complete(ctx context.Context, msgs []model.Message, p model.CompletionParams) (string, error)
}

// Renderer 出站渲染（发送新消息 / 原地编辑）。
type Renderer interface {
	RenderText(ctx context.Context, chatID int64, text string, kb model.Keyboard) error
	EditMessage(ctx context.Context, chatID int64, messageID int, text string, kb model.Keyboard) error
}

// CallbackAcker 可选能力：应答按钮回调。
type CallbackAcker interface {
	AckCallback(ctx context.Context, callbackID string) error
}

// TypingNotifier 可选能力："正在输入" 提示。
type TypingNotifier interface {
	NotifyTyping(ctx context.Context, chatID int64) error
}

// OrderEventSink 订单事件出口（Redis Stream outbox）。
type OrderEventSink interface {
	PublishOrderEvent(ctx context.Context, e queue.OrderEvent) error
}

// Config Dispatcher 运行参数。
type Config struct {
	WebAppURL         string
	SupportURL        string
	Completion        model.CompletionParams
	CompletionTimeout time.Duration
	TotalPolicy       TotalPolicy
}

// Dispatcher 入站事件路由：命令、订单负载、自由文本、按钮回调。
// 所有订单/动作错误都在这里转成礼貌的兜底文案，不会中断事件循环。
type Dispatcher struct {
	sessions  *store.SessionStore
	orders    *store.OrderStore
	machine   *flow.Machine
	assembler *prompt.Assembler
	completer Completer
	events    OrderEventSink
	// lanes 同一用户的对话轮次串行处理，保证历史按到达顺序写入。
	lanes *store.KeyedMutex[int64]
	cfg   Config
	now   func() time.Time
}

// Option 可选依赖。
type Option func(*Dispatcher)

// WithOrderEvents 订单创建/支付时发布事件。
func WithOrderEvents(sink OrderEventSink) Option {
	return func(d *Dispatcher) { d.events = sink }
}

// WithAssembler 替换默认的上下文组装器（人设、窗口大小）。
func WithAssembler(a *prompt.Assembler) Option {
	return func(d *Dispatcher) { d.assembler = a }
}

func New(sessions *store.SessionStore, orders *store.OrderStore, completer Completer, cfg Config, opts ...Option) *Dispatcher {
	if cfg.TotalPolicy == "" {
		cfg.TotalPolicy = TotalAccept
	}
	d := &Dispatcher{
		sessions:  sessions,
		orders:    orders,
		machine:   flow.NewMachine(orders),
		assembler: prompt.NewAssembler(prompt.Persona, prompt.DefaultWindow),
		completer: completer,
		lanes:     store.NewKeyedMutex[int64](),
		cfg:       cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle 处理一个入站事件。只有出站渲染失败时返回错误（ErrTransport）。
func (d *Dispatcher) Handle(ctx context.Context, u Update, out Renderer) error {
	switch kind := Classify(u); kind {
	case KindCommand:
		return d.handleCommand(ctx, u, out)
	case KindOrderPayload:
		return d.handleOrderPayload(ctx, u, out)
	case KindText:
		return d.handleText(ctx, u, out)
	case KindCallback:
		return d.handleCallback(ctx, u, out)
	default:
		slog.Warn("ignore unrecognized update", "update_id", u.ID, "user_id", u.UserID, "kind", kind)
		return nil
	}
}

func (d *Dispatcher) handleCommand(ctx context.Context, u Update, out Renderer) error {
	name, _ := ParseCommand(u.Text)
	switch name {
	case CommandStart:
		sess := d.sessions.GetOrCreate(u.UserID, profileOf(u))
		var kb model.Keyboard
		if d.cfg.WebAppURL != "" {
			kb = append(kb, model.Row(model.Button{Label: "🛍 Открыть магазин", WebAppURL: d.cfg.WebAppURL}))
		}
		if d.cfg.SupportURL != "" {
			kb = append(kb, model.Row(model.Button{Label: "📞 Связаться с менеджером", URL: d.cfg.SupportURL}))
		}
		if err := d.send(ctx, out, u.ChatID, welcomeText(sess.DisplayName), kb); err != nil {
			return err
		}
		if o, ok := d.orders.GetActive(u.UserID); ok {
			return d.send(ctx, out, u.ChatID, pendingOrderReminder(o.ID), nil)
		}
		return nil
	case CommandHelp:
		return d.send(ctx, out, u.ChatID, helpText, nil)
	case CommandCart:
		var kb model.Keyboard
		if d.cfg.WebAppURL != "" {
			kb = model.Keyboard{model.Row(model.Button{Label: "🛒 Открыть корзину", WebAppURL: d.cfg.WebAppURL})}
		}
		return d.send(ctx, out, u.ChatID, replyOpenCart, kb)
	case CommandOrder:
		if o, ok := d.orders.GetActive(u.UserID); ok {
			return d.send(ctx, out, u.ChatID, orderStatusText(o), flow.OrderMenu(o.ID))
		}
		return d.send(ctx, out, u.ChatID, replyNoActiveOrder, nil)
	}
	return nil
}

func (d *Dispatcher) handleOrderPayload(ctx context.Context, u Update, out Renderer) error {
	p, err := decodeAction(u.WebAppData)
	if err != nil {
		slog.Warn("malformed web app payload", "user_id", u.UserID, "err", err)
		return d.send(ctx, out, u.ChatID, replyOrderFailed, nil)
	}
	if p.Action != ActionNewOrder {
		slog.Warn("ignore web app action", "user_id", u.UserID, "action", p.Action)
		return nil
	}

	o, err := decodeOrder(p.Order, d.cfg.TotalPolicy)
	if err != nil {
		slog.Warn("invalid order payload", "user_id", u.UserID, "err", err)
		return d.send(ctx, out, u.ChatID, replyOrderFailed, nil)
	}
	o.UserID = u.UserID
	o.UserName = u.DisplayName
	o.CreatedAt = d.now()
	if sum := o.ItemsTotal(); o.Total != sum {
		slog.Warn("order total differs from items", "order_id", o.ID, "total", o.Total.String(), "items", sum.String())
	}

	d.sessions.GetOrCreate(u.UserID, profileOf(u))
	prev, hadPrev := d.orders.GetActive(u.UserID)
	if _, err := d.orders.CreateOrder(o); err != nil {
		slog.Warn("create order rejected", "user_id", u.UserID, "order_id", o.ID, "err", err)
		return d.send(ctx, out, u.ChatID, replyOrderFailed, nil)
	}
	if hadPrev && prev.ID != o.ID {
		slog.Info("active order displaced", "user_id", u.UserID, "previous", prev.ID, "current", o.ID)
	}

	stored, _ := d.orders.Get(o.ID)
	slog.Info("new order", "order_id", stored.ID, "user_id", stored.UserID, "total", stored.Total.String())
	d.publish(ctx, queue.OrderCreated, stored)

	view := flow.NewOrderView(stored)
	return d.send(ctx, out, u.ChatID, view.Text, view.Keyboard)
}

func (d *Dispatcher) handleText(ctx context.Context, u Update, out Renderer) error {
	unlock := d.lanes.Lock(u.UserID)
	defer unlock()

	sess := d.sessions.GetOrCreate(u.UserID, profileOf(u))
	if n, ok := out.(TypingNotifier); ok {
		if err := n.NotifyTyping(ctx, u.ChatID); err != nil {
			slog.Debug("typing indicator", "chat_id", u.ChatID, "err", err)
		}
	}

	var active *model.Order
	if o, ok := d.orders.GetActive(u.UserID); ok {
		active = &o
	}
	msgs := d.assembler.Build(sess.History, active, u.Text)

	reply, err := d.complete(ctx, msgs)
	if err != nil {
		// 失败时本轮不写历史：既没有用户消息，也没有空的 assistant 消息。
		slog.Error("completion failed", "user_id", u.UserID, "err", err)
		return d.send(ctx, out, u.ChatID, replyCompletionFailed, nil)
	}

	d.sessions.AppendTurns(u.UserID,
		model.Message{Role: model.RoleUser, Content: u.Text},
		model.Message{Role: model.RoleAssistant, Content: reply},
	)
	return d.send(ctx, out, u.ChatID, reply, nil)
}

// complete 超时与失败同等对待；即使模型客户端不理会 ctx，也会按时返回。
func (d *Dispatcher) complete(ctx context.Context, msgs []model.Message) (string, error) {
	if d.cfg.CompletionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.CompletionTimeout)
		defer cancel()
	}

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := d.completer.Complete(ctx, msgs, d.cfg.Completion)
		done <- result{text, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			if errors.Is(r.err, model.ErrCompletion) {
				return "", r.err
			}
			return "", model.Because(model.ErrCompletion, r.err)
		}
		if r.text == "" {
			return "", errors.WithMessage(model.ErrCompletion, "empty reply")
		}
		return r.text, nil
	case <-ctx.Done():
		return "", model.Because(model.ErrCompletion, ctx.Err())
	}
}

func (d *Dispatcher) handleCallback(ctx context.Context, u Update, out Renderer) error {
	if a, ok := out.(CallbackAcker); ok && u.CallbackID != "" {
		if err := a.AckCallback(ctx, u.CallbackID); err != nil {
			slog.Debug("ack callback", "callback_id", u.CallbackID, "err", err)
		}
	}

	action, err := flow.ParseAction(u.CallbackData)
	if err != nil {
		slog.Warn("malformed callback", "user_id", u.UserID, "data", u.CallbackData, "err", err)
		return d.edit(ctx, out, u, flow.View{Text: callbackErrorReply(err)})
	}

	res, err := d.machine.Apply(u.UserID, action)
	if err != nil {
		slog.Warn("callback rejected", "user_id", u.UserID, "action", action.Kind.String(), "order_id", action.OrderID, "err", err)
		return d.edit(ctx, out, u, flow.View{Text: callbackErrorReply(err)})
	}
	if res.Paid {
		slog.Info("order paid", "order_id", res.Order.ID, "user_id", res.Order.UserID, "total", res.Order.Total.String())
		d.publish(ctx, queue.OrderPaid, res.Order)
	}
	return d.edit(ctx, out, u, res.View)
}

func (d *Dispatcher) publish(ctx context.Context, t queue.OrderEventType, o model.Order) {
	if d.events == nil {
		return
	}
	if err := d.events.PublishOrderEvent(ctx, queue.NewOrderEvent(t, o, d.now())); err != nil {
		slog.Warn("publish order event", "type", t, "order_id", o.ID, "err", err)
	}
}

func (d *Dispatcher) send(ctx context.Context, out Renderer, chatID int64, text string, kb model.Keyboard) error {
	if err := out.RenderText(ctx, chatID, text, kb); err != nil {
		return model.Because(model.ErrTransport, errors.WithMessagef(err, "send to chat %d", chatID))
	}
	return nil
}

// edit 回调优先原地编辑原消息，拿不到消息 id 时退化为发新消息。
func (d *Dispatcher) edit(ctx context.Context, out Renderer, u Update, v flow.View) error {
	if u.MessageID == 0 {
		return d.send(ctx, out, u.ChatID, v.Text, v.Keyboard)
	}
	if err := out.EditMessage(ctx, u.ChatID, u.MessageID, v.Text, v.Keyboard); err != nil {
		return model.Because(model.ErrTransport, errors.WithMessagef(err, "edit message %d in chat %d", u.MessageID, u.ChatID))
	}
	return nil
}

func profileOf(u Update) model.Profile {
	return model.Profile{DisplayName: u.DisplayName, Handle: u.Handle}
}
