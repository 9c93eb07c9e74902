package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// Result 记录单次请求的 HTTP 结果，便于聚合统计。
type Result struct {
	Status int
	Body   string
	Err    error
}

// event 与服务端 /api/events 的请求体一致。
type event struct {
	UpdateID     int64  `json:"update_id,omitempty"`
	UserID       int64  `json:"user_id"`
	MessageID    int    `json:"message_id,omitempty"`
	Text         string `json:"text,omitempty"`
	WebAppData   any    `json:"web_app_data,omitempty"`
	CallbackData string `json:"callback_data,omitempty"`
}

type options struct {
	baseURL     string
	users       int
	dup         int
	concurrency int
	burst       int
	burstUser   int64
}

func main() {
	var o options
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Replay concurrent order, callback and chat traffic against /api/events",
		RunE: func(*cobra.Command, []string) error {
			return run(o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.baseURL, "base", "http://localhost:8080", "server base url")
	// 重复确认测试：每个用户一个订单，同一个 confirm 并发点 dup 次
	f.IntVar(&o.users, "users", 50, "distinct users")
	f.IntVar(&o.dup, "dup", 10, "duplicate confirm callbacks per order")
	f.IntVar(&o.concurrency, "c", 50, "max concurrency")
	// 限流测试：同一个用户连发 burst 条文本
	f.IntVar(&o.burst, "burst", 50, "text messages sent by one user")
	f.Int64Var(&o.burstUser, "burst-user", 10001, "user id for the rate limit test")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(o options) error {
	client := &http.Client{Timeout: 60 * time.Second}
	// 每轮压测用不同前缀，避免与上一轮订单号冲突
	prefix := uuid.New().String()[:8]

	// 1) 建单
	fmt.Printf("create orders: users=%d\n", o.users)
	created := parallel(o.users, o.concurrency, func(i int) Result {
		return postEvent(client, o.baseURL, event{
			UserID:     int64(i + 1),
			WebAppData: newOrderPayload(orderID(prefix, i)),
		})
	})
	printSummary("create", created)

	// 2) 重复确认：每个订单只能被支付一次，其余都应渲染同样的成功页
	fmt.Printf("\nduplicate confirm: users=%d dup=%d concurrency=%d\n", o.users, o.dup, o.concurrency)
	confirms := parallel(o.users*o.dup, o.concurrency, func(i int) Result {
		u := i % o.users
		return postEvent(client, o.baseURL, event{
			UserID:       int64(u + 1),
			MessageID:    1,
			CallbackData: "confirm_" + orderID(prefix, u),
		})
	})
	printSummary("confirm", confirms)

	paid, other := 0, 0
	for i := 0; i < o.users; i++ {
		status, err := orderStatus(client, o.baseURL, orderID(prefix, i))
		if err != nil {
			fmt.Println("order status err:", err)
			other++
			continue
		}
		if status == "paid" {
			paid++
		} else {
			other++
		}
	}
	fmt.Printf("orders paid=%d other=%d\n", paid, other)

	// 3) 限流：同一个用户连发文本（需要服务端配置 REDIS_ADDR）
	fmt.Printf("\nrate limit: user=%d burst=%d\n", o.burstUser, o.burst)
	texts := parallel(o.burst, o.burst, func(i int) Result {
		return postEvent(client, o.baseURL, event{
			UserID: o.burstUser,
			Text:   fmt.Sprintf("Есть ли в наличии товар №%d?", i),
		})
	})
	printSummary("rate_limit", texts)
	return nil
}

func orderID(prefix string, i int) string {
	return fmt.Sprintf("lt-%s-%d", prefix, i)
}

func newOrderPayload(id string) map[string]any {
	return map[string]any{
		"action": "new_order",
		"order": map[string]any{
			"id":    id,
			"items": []map[string]any{{"name": "Router X", "quantity": 2, "price": 1000}},
			"total": 2000,
		},
	}
}

// parallel 以固定并发执行 n 次请求。
func parallel(n, concurrency int, do func(i int) Result) []Result {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = do(idx)
		}(i)
	}

	wg.Wait()
	return results
}

func postEvent(client *http.Client, baseURL string, e event) Result {
	b, _ := json.Marshal(e)
	httpReq, _ := http.NewRequest(http.MethodPost, baseURL+"/api/events", bytes.NewReader(b))
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return Result{Status: resp.StatusCode, Body: string(body)}
}

// printSummary 聚合输出不同状态码分布。
func printSummary(name string, results []Result) {
	count := map[int]int{}
	errCount := 0
	for _, r := range results {
		if r.Err != nil {
			errCount++
			continue
		}
		count[r.Status]++
	}
	fmt.Printf("[%s] http status summary:\n", name)
	for _, code := range []int{200, 400, 404, 429, 500} {
		if count[code] > 0 {
			fmt.Printf("  %d -> %d\n", code, count[code])
		}
	}
	if errCount > 0 {
		fmt.Printf("  errors -> %d\n", errCount)
	}
}

// orderStatus 查询订单当前状态，用于压测后校验重复确认是否只生效一次。
func orderStatus(client *http.Client, baseURL, id string) (string, error) {
	resp, err := client.Get(fmt.Sprintf("%s/api/orders/%s", baseURL, id))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("status=%d body=%s", resp.StatusCode, string(b))
	}

	var out struct {
		Code int `json:"code"`
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return "", err
	}
	return out.Data.Status, nil
}
