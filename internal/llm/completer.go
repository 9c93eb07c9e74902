package llm

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"order_assistant/internal/model"
)

// Completer 通过 OpenAI 兼容接口（默认 Mistral）生成回复，自身无状态。
type Completer struct {
	llm llms.Model
}

// New 创建 OpenAI 兼容客户端。
func New(apiKey, baseURL, modelName string) (*Completer, error) {
	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithModel(modelName),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "create llm client")
	}
	return NewWithModel(client), nil
}

// NewWithModel 使用任意 langchaingo 模型实现。
func NewWithModel(m llms.Model) *Completer {
	return &Completer{llm: m}
}

// Complete 调用模型。空回复视为失败，调用方不会写入空的 assistant 消息。
func (c *Completer) Complete(ctx context.Context, msgs []model.Message, p model.CompletionParams) (string, error) {
	content := make([]llms.MessageContent, 0, len(msgs))
	for _, m := range msgs {
		content = append(content, llms.TextParts(messageType(m.Role), m.Content))
	}

	opts := []llms.CallOption{llms.WithTemperature(p.Temperature)}
	if p.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(p.MaxTokens))
	}
	resp, err := c.llm.GenerateContent(ctx, content, opts...)
	if err != nil {
		return "", model.Because(model.ErrCompletion, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", errors.WithMessage(model.ErrCompletion, "empty response from llm")
	}
	text := strings.TrimSpace(resp.Choices[0].Content)
	if text == "" {
		return "", errors.WithMessage(model.ErrCompletion, "blank completion")
	}
	return text, nil
}

func messageType(r model.Role) llms.ChatMessageType {
	switch r {
	case model.RoleSystem:
		return llms.ChatMessageTypeSystem
	case model.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
