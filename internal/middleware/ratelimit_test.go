package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func engine(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/events", mw, func(c *gin.Context) {
		body, _ := io.ReadAll(c.Request.Body)
		c.String(http.StatusOK, string(body))
	})
	return r
}

func post(r *gin.Engine, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/events", bytes.NewBufferString(body)))
	return w
}

// unreachable 指向一个不存在的 Redis，任何命令都会快速失败。
func unreachable(t *testing.T) *rd.Client {
	t.Helper()
	rdb := rd.NewClient(&rd.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRateLimitSkipsNonText(t *testing.T) {
	// 非文本事件不访问 Redis，nil client 也不会 panic
	r := engine(RedisRateLimit(nil, 1, time.Second))
	body := `{"user_id":1,"callback_data":"pay_42"}`
	w := post(r, body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, body, w.Body.String(), "body is still readable downstream")

	w = post(r, `not json`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitFailsOpen(t *testing.T) {
	r := engine(RedisRateLimit(unreachable(t), 1, time.Second))
	body := `{"user_id":1,"text":"привет"}`
	w := post(r, body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, body, w.Body.String())
}

func TestUpdateDedupSkipsWithoutID(t *testing.T) {
	r := engine(RedisUpdateDedup(nil, time.Minute))
	w := post(r, `{"user_id":1,"text":"привет"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUpdateDedupFailsOpen(t *testing.T) {
	r := engine(RedisUpdateDedup(unreachable(t), time.Minute))
	body := `{"update_id":5,"user_id":1,"text":"привет"}`
	w := post(r, body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, body, w.Body.String())
}

type memLimiter struct {
	mu    sync.Mutex
	allow bool
	keys  []string
}

func (l *memLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, key)
	return l.allow, nil
}

type memDeduper struct {
	mu   sync.Mutex
	seen map[int64]bool
}

func (d *memDeduper) FirstSeen(_ context.Context, id int64) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[id] {
		return false, nil
	}
	d.seen[id] = true
	return true, nil
}

func (d *memDeduper) Release(_ context.Context, id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
	return nil
}

// eventsEngine 与 router 相同的挂载顺序：限流、去重、handler。
func eventsEngine(l Limiter, d Deduper, status *int, handled *int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/events", RateLimit(l), UpdateDedup(d), func(c *gin.Context) {
		*handled++
		c.JSON(*status, gin.H{"code": 0})
	})
	return r
}

func TestRateLimitedRetryIsNotDuplicate(t *testing.T) {
	limiter := &memLimiter{}
	dedup := &memDeduper{seen: map[int64]bool{}}
	status, handled := http.StatusOK, 0
	r := eventsEngine(limiter, dedup, &status, &handled)
	body := `{"update_id":9,"user_id":3,"text":"привет"}`

	w := post(r, body)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, 0, handled)
	assert.Equal(t, []string{"assistant:rate_limit:user:3"}, limiter.keys)

	limiter.allow = true
	w = post(r, body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "duplicate")
	assert.Equal(t, 1, handled)

	w = post(r, body)
	assert.Contains(t, w.Body.String(), `"duplicate":true`)
	assert.Equal(t, 1, handled)
}

func TestFailedEventReleasesMarker(t *testing.T) {
	dedup := &memDeduper{seen: map[int64]bool{}}
	status, handled := http.StatusInternalServerError, 0
	r := eventsEngine(&memLimiter{allow: true}, dedup, &status, &handled)
	body := `{"update_id":11,"user_id":3,"callback_data":"confirm_42"}`

	w := post(r, body)
	require.Equal(t, http.StatusInternalServerError, w.Code)

	status = http.StatusOK
	w = post(r, body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, handled)

	w = post(r, body)
	assert.Contains(t, w.Body.String(), `"duplicate":true`)
	assert.Equal(t, 2, handled)
}
