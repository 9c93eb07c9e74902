package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"order_assistant/internal/assistant"
	"order_assistant/internal/model"
	"order_assistant/internal/store"
)

type echoCompleter struct{}

func (echoCompleter) Complete(_ context.Context, msgs []model.Message, _ model.CompletionParams) (string, error) {
	return "ответ: " + msgs[len(msgs)-1].Content, nil
}

type eventResponse struct {
	Code int `json:"code"`
	Data struct {
		Kind    string               `json:"kind"`
		Replies []assistant.Rendered `json:"replies"`
	} `json:"data"`
}

func setup(t *testing.T, db *gorm.DB) (*gin.Engine, *store.OrderStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	orders := store.NewOrderStore()
	d := assistant.New(store.NewSessionStore(), orders, echoCompleter{}, assistant.Config{})
	r := gin.New()
	Setup(r, Deps{DB: db, Orders: orders, Dispatcher: d})
	return r, orders
}

func openArchive(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.OrderRecord{}))
	return db
}

func postEvent(t *testing.T, r *gin.Engine, body string) (int, eventResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/events", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	var resp eventResponse
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w.Code, resp
}

func TestHealth(t *testing.T) {
	r, _ := setup(t, nil)
	for _, path := range []string{"/", "/health", "/ping"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.JSONEq(t, `{"status":"healthy"}`, w.Body.String())
}

func TestEventsOrderFlow(t *testing.T) {
	r, orders := setup(t, nil)

	// web_app_data 以字符串形式传入
	code, resp := postEvent(t, r, `{"update_id":1,"user_id":5,"display_name":"Ivan",
		"web_app_data":"{\"action\":\"new_order\",\"order\":{\"id\":\"42\",\"items\":[{\"name\":\"Router X\",\"quantity\":2,\"price\":1000}],\"total\":2000}}"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "order_payload", resp.Data.Kind)
	require.Len(t, resp.Data.Replies, 1)
	assert.Equal(t, int64(5), resp.Data.Replies[0].ChatID)
	assert.Equal(t, "pay_42", resp.Data.Replies[0].Keyboard[0][0].Callback)

	code, resp = postEvent(t, r, `{"update_id":2,"user_id":5,"message_id":10,"callback_id":"q","callback_data":"confirm_42"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "callback", resp.Data.Kind)
	require.Len(t, resp.Data.Replies, 1)
	assert.Equal(t, "edit", resp.Data.Replies[0].Op)
	assert.Equal(t, 10, resp.Data.Replies[0].MessageID)

	o, ok := orders.Get("42")
	require.True(t, ok)
	assert.Equal(t, model.OrderPaid, o.Status)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/orders/42", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Data struct {
			Source string  `json:"source"`
			Status string  `json:"status"`
			Total  float64 `json:"total"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "live", got.Data.Source)
	assert.Equal(t, "paid", got.Data.Status)
	assert.InDelta(t, 2000, got.Data.Total, 1e-9)
}

func TestEventsObjectPayloadAndText(t *testing.T) {
	r, orders := setup(t, nil)

	code, _ := postEvent(t, r, `{"user_id":6,"web_app_data":{"action":"new_order","order":{"id":7,"items":[{"name":"Cable","quantity":1,"price":"99.50"}],"total":99.5}}}`)
	require.Equal(t, http.StatusOK, code)
	_, ok := orders.GetActive(6)
	assert.True(t, ok)

	code, resp := postEvent(t, r, `{"user_id":6,"text":"Когда доставка?"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "text", resp.Data.Kind)
	require.Len(t, resp.Data.Replies, 1)
	assert.Equal(t, "ответ: Когда доставка?", resp.Data.Replies[0].Text)
}

func TestEventsBadRequest(t *testing.T) {
	r, _ := setup(t, nil)
	for _, body := range []string{`not json`, `{"text":"hi"}`, `{"user_id":1,"web_app_data":"{"}`} {
		code, _ := postEvent(t, r, body)
		if body == `{"user_id":1,"web_app_data":"{"}` {
			// 字符串本身合法，内容不合法时由 Dispatcher 回复兜底文案
			assert.Equal(t, http.StatusOK, code, body)
			continue
		}
		assert.Equal(t, http.StatusBadRequest, code, body)
	}
}

func TestEventsUnknownIsNoop(t *testing.T) {
	r, _ := setup(t, nil)
	code, resp := postEvent(t, r, `{"user_id":1,"text":"/refund"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "unknown", resp.Data.Kind)
	assert.NotNil(t, resp.Data.Replies)
	assert.Empty(t, resp.Data.Replies)
}

func TestGetOrderFromArchive(t *testing.T) {
	db := openArchive(t)
	require.NoError(t, db.Create(&model.OrderRecord{
		OrderNo:   "archived-1",
		UserID:    9,
		Total:     150000,
		ItemCount: 1,
		Items:     `[{"name":"Switch","quantity":1,"price":1500}]`,
		Status:    "paid",
	}).Error)
	r, _ := setup(t, db)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/orders/archived-1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Data struct {
			Source string            `json:"source"`
			Total  float64           `json:"total"`
			Items  []model.OrderItem `json:"items"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "archive", got.Data.Source)
	assert.InDelta(t, 1500, got.Data.Total, 1e-9)
	require.Len(t, got.Data.Items, 1)
	assert.Equal(t, model.Rubles(1500), got.Data.Items[0].UnitPrice)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/orders/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/orders/bad_id", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
