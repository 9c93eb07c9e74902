package router

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"order_assistant/internal/assistant"
	"order_assistant/internal/config"
	"order_assistant/internal/middleware"
	"order_assistant/internal/model"
	"order_assistant/internal/store"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Deps 路由依赖。RDB 为 nil 时不挂限流和去重中间件；DB 为 nil 时不查归档。
type Deps struct {
	DB         *gorm.DB
	RDB        *rd.Client
	Orders     *store.OrderStore
	Dispatcher *assistant.Dispatcher
	Cfg        config.AppConfig
}

// Setup 注册全部 HTTP 路由。
func Setup(r *gin.Engine, deps Deps) {
	r.GET("/", home)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})

	events := []gin.HandlerFunc{}
	if deps.RDB != nil {
		// 先限流再去重：被限流的事件不留去重标记
		events = append(events,
			middleware.RedisRateLimit(deps.RDB, deps.Cfg.MessageRateLimit, deps.Cfg.MessageRateWindow),
			middleware.RedisUpdateDedup(deps.RDB, deps.Cfg.UpdateDedupTTL),
		)
	}
	events = append(events, handleEvent(deps.Dispatcher))
	r.POST("/api/events", events...)

	r.GET("/api/orders/:order_id", getOrder(deps.Orders, deps.DB))
}

func home(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "running",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// eventRequest HTTP 形式的入站事件，字段与 Telegram 更新一一对应。
// web_app_data 既可以是 JSON 对象，也可以是字符串化的 JSON。
type eventRequest struct {
	UpdateID     int64           `json:"update_id"`
	UserID       int64           `json:"user_id" binding:"required,min=1"`
	ChatID       int64           `json:"chat_id"`
	MessageID    int             `json:"message_id"`
	DisplayName  string          `json:"display_name"`
	Handle       string          `json:"handle"`
	Text         string          `json:"text"`
	WebAppData   json.RawMessage `json:"web_app_data"`
	CallbackID   string          `json:"callback_id"`
	CallbackData string          `json:"callback_data"`
}

func (req eventRequest) toUpdate() (assistant.Update, error) {
	u := assistant.Update{
		ID:           req.UpdateID,
		UserID:       req.UserID,
		ChatID:       req.ChatID,
		MessageID:    req.MessageID,
		DisplayName:  req.DisplayName,
		Handle:       req.Handle,
		Text:         req.Text,
		CallbackID:   req.CallbackID,
		CallbackData: req.CallbackData,
	}
	if u.ChatID == 0 {
		// 私聊里 chat id 与 user id 相同
		u.ChatID = u.UserID
	}
	if len(req.WebAppData) > 0 && string(req.WebAppData) != "null" {
		if req.WebAppData[0] == '"' {
			if err := json.Unmarshal(req.WebAppData, &u.WebAppData); err != nil {
				return assistant.Update{}, err
			}
		} else {
			u.WebAppData = string(req.WebAppData)
		}
	}
	return u, nil
}

// handleEvent 把一个事件交给 Dispatcher，渲染结果直接作为响应返回。
func handleEvent(d *assistant.Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req eventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		u, err := req.toUpdate()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "web_app_data 格式错误"})
			return
		}

		rec := &assistant.Recorder{}
		if err := d.Handle(c.Request.Context(), u, rec); err != nil {
			slog.Error("handle event", "update_id", u.ID, "user_id", u.UserID, "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "render failed"})
			return
		}

		replies := rec.Replies()
		if replies == nil {
			replies = []assistant.Rendered{}
		}
		c.JSON(http.StatusOK, gin.H{
			"code": 0,
			"data": gin.H{
				"update_id": u.ID,
				"kind":      assistant.Classify(u).String(),
				"replies":   replies,
			},
		})
	}
}

// getOrder 先查内存中的实时订单，查不到再查归档表。
func getOrder(orders *store.OrderStore, db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("order_id")
		if !model.ValidOrderID(id) {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "order_id 无效"})
			return
		}

		if o, ok := orders.Get(id); ok {
			c.JSON(http.StatusOK, gin.H{
				"code": 0,
				"data": gin.H{
					"source":     "live",
					"order_id":   o.ID,
					"user_id":    o.UserID,
					"status":     o.Status,
					"total":      o.Total,
					"items":      o.Items,
					"created_at": o.CreatedAt,
				},
			})
			return
		}

		if db == nil {
			c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "订单不存在"})
			return
		}
		var rec model.OrderRecord
		err := db.WithContext(c.Request.Context()).Where("order_no = ?", id).First(&rec).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "订单不存在"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}

		data := gin.H{
			"source":     "archive",
			"order_id":   rec.OrderNo,
			"user_id":    rec.UserID,
			"status":     rec.Status,
			"total":      model.Amount(rec.Total),
			"item_count": rec.ItemCount,
			"created_at": rec.CreatedAt,
		}
		if json.Valid([]byte(rec.Items)) {
			data["items"] = json.RawMessage(rec.Items)
		}
		if rec.PaidAt != nil {
			data["paid_at"] = rec.PaidAt
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": data})
	}
}
