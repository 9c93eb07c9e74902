package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig 聚合运行时配置，尽量通过环境变量注入，避免硬编码。
type AppConfig struct {
	HTTPAddr string
	DBPath   string

	// Telegram 传输层；token 为空时只开 HTTP 事件入口
	TelegramToken string
	WebAppURL     string
	SupportURL    string

	// 语言模型（OpenAI 兼容接口，默认 Mistral）
	LLMAPIKey      string
	LLMBaseURL     string
	LLMModel       string
	LLMTemperature float64
	LLMMaxTokens   int
	LLMTimeout     time.Duration

	HistoryWindow    int
	OrderTotalPolicy string

	// RedisAddr 为空时关闭限流、去重和订单事件 outbox
	RedisAddr string
	RedisDB   int

	// Redis Stream outbox（Dispatcher 入流，Relay 异步转 Kafka）
	OrderEventStream   string
	OrderEventGroup    string
	OrderEventConsumer string

	// Kafka 集群地址（逗号分隔）、Topic、消费者组；为空时不启动 Relay 和归档消费者
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	// 自由文本限流（每用户滑动窗口）与更新去重
	MessageRateLimit  int
	MessageRateWindow time.Duration
	UpdateDedupTTL    time.Duration
}

// RedisEnabled 是否配置了 Redis。
func (c AppConfig) RedisEnabled() bool { return c.RedisAddr != "" }

// KafkaEnabled Relay 和归档消费者都依赖 Redis Stream 与 Kafka。
func (c AppConfig) KafkaEnabled() bool { return c.RedisEnabled() && len(c.KafkaBrokers) > 0 }

// LoadEnvFile 把 .env 文件合并进进程环境，已有的环境变量优先。
// path 为空时尝试当前目录下的 .env，不存在不算错误。
func LoadEnvFile(path string) error {
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Load 读取并校验配置，缺失时使用默认值。
func Load() (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		DBPath:             getEnv("DB_PATH", "assistant.db"),
		TelegramToken:      getEnv("TELEGRAM_TOKEN", ""),
		WebAppURL:          getEnv("WEB_APP_URL", ""),
		SupportURL:         getEnv("SUPPORT_URL", ""),
		LLMAPIKey:          getEnv("LLM_API_KEY", ""),
		LLMBaseURL:         getEnv("LLM_BASE_URL", "https://api.mistral.ai/v1"),
		LLMModel:           getEnv("LLM_MODEL", "mistral-small-latest"),
		LLMTemperature:     0.7,
		LLMMaxTokens:       300,
		LLMTimeout:         30 * time.Second,
		HistoryWindow:      10,
		OrderTotalPolicy:   getEnv("ORDER_TOTAL_POLICY", "accept"),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		OrderEventStream:   getEnv("ORDER_EVENT_STREAM", "assistant:order_events"),
		OrderEventGroup:    getEnv("ORDER_EVENT_GROUP", "assistant-relay-group"),
		OrderEventConsumer: getEnv("ORDER_EVENT_CONSUMER", "assistant-relay-1"),
		KafkaBrokers:       splitCSV(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "assistant-order-events"),
		KafkaGroupID:       getEnv("KAFKA_GROUP_ID", "assistant-order-archive"),
		MessageRateLimit:   20,
		MessageRateWindow:  time.Minute,
		UpdateDedupTTL:     10 * time.Minute,
	}

	redisDB, err := getEnvInt("REDIS_DB", cfg.RedisDB)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cfg.RedisDB = redisDB

	temperature, err := getEnvFloat("LLM_TEMPERATURE", cfg.LLMTemperature)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid LLM_TEMPERATURE: %w", err)
	}
	if temperature < 0 || temperature > 2 {
		return AppConfig{}, fmt.Errorf("LLM_TEMPERATURE must be within [0, 2]")
	}
	cfg.LLMTemperature = temperature

	if cfg.LLMMaxTokens, err = positiveInt("LLM_MAX_TOKENS", cfg.LLMMaxTokens); err != nil {
		return AppConfig{}, err
	}
	timeoutSec, err := positiveInt("LLM_TIMEOUT_SEC", int(cfg.LLMTimeout.Seconds()))
	if err != nil {
		return AppConfig{}, err
	}
	cfg.LLMTimeout = time.Duration(timeoutSec) * time.Second

	if cfg.HistoryWindow, err = positiveInt("HISTORY_WINDOW", cfg.HistoryWindow); err != nil {
		return AppConfig{}, err
	}

	switch cfg.OrderTotalPolicy {
	case "accept", "reject", "recompute":
	default:
		return AppConfig{}, fmt.Errorf("ORDER_TOTAL_POLICY must be one of accept, reject, recompute")
	}

	if cfg.MessageRateLimit, err = positiveInt("MESSAGE_RATE_LIMIT", cfg.MessageRateLimit); err != nil {
		return AppConfig{}, err
	}
	windowSec, err := positiveInt("MESSAGE_RATE_WINDOW_SEC", int(cfg.MessageRateWindow.Seconds()))
	if err != nil {
		return AppConfig{}, err
	}
	cfg.MessageRateWindow = time.Duration(windowSec) * time.Second

	dedupMin, err := positiveInt("UPDATE_DEDUP_TTL_MIN", int(cfg.UpdateDedupTTL.Minutes()))
	if err != nil {
		return AppConfig{}, err
	}
	cfg.UpdateDedupTTL = time.Duration(dedupMin) * time.Minute

	if cfg.RedisEnabled() {
		if cfg.OrderEventStream == "" {
			return AppConfig{}, fmt.Errorf("ORDER_EVENT_STREAM must not be empty")
		}
		if cfg.OrderEventGroup == "" {
			return AppConfig{}, fmt.Errorf("ORDER_EVENT_GROUP must not be empty")
		}
		if cfg.OrderEventConsumer == "" {
			return AppConfig{}, fmt.Errorf("ORDER_EVENT_CONSUMER must not be empty")
		}
	}
	if len(cfg.KafkaBrokers) > 0 {
		if !cfg.RedisEnabled() {
			return AppConfig{}, fmt.Errorf("KAFKA_BROKERS requires REDIS_ADDR")
		}
		if cfg.KafkaTopic == "" {
			return AppConfig{}, fmt.Errorf("KAFKA_TOPIC must not be empty")
		}
		if cfg.KafkaGroupID == "" {
			return AppConfig{}, fmt.Errorf("KAFKA_GROUP_ID must not be empty")
		}
	}

	return cfg, nil
}

// getEnv 读取字符串环境变量，若为空则返回默认值。
func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// getEnvInt 读取整数环境变量，若为空则返回默认值。
func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

// positiveInt 读取必须 > 0 的整数配置。
func positiveInt(key string, fallback int) (int, error) {
	n, err := getEnvInt(key, fallback)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be > 0", key)
	}
	return n, nil
}

// splitCSV 将逗号分隔字符串解析为字符串切片。
func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
