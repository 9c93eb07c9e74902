package llm

import (
	"context"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"order_assistant/internal/model"
)

type fakeModel struct {
	got   []llms.MessageContent
	opts  llms.CallOptions
	reply *llms.ContentResponse
	err   error
}

func (f *fakeModel) GenerateContent(_ context.Context, msgs []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.got = msgs
	for _, o := range options {
		o(&f.opts)
	}
	return f.reply, f.err
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestCompleteMapsRolesAndOptions(t *testing.T) {
	fm := &fakeModel{reply: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "  Здравствуйте!  "}}}}
	c := NewWithModel(fm)

	out, err := c.Complete(context.Background(), []model.Message{
		{Role: model.RoleSystem, Content: "persona"},
		{Role: model.RoleUser, Content: "привет"},
		{Role: model.RoleAssistant, Content: "добрый день"},
		{Role: model.RoleUser, Content: "цена?"},
	}, model.CompletionParams{Temperature: 0.7, MaxTokens: 300})

	require.NoError(t, err)
	assert.Equal(t, "Здравствуйте!", out)
	require.Len(t, fm.got, 4)
	assert.Equal(t, llms.ChatMessageTypeSystem, fm.got[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, fm.got[1].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, fm.got[2].Role)
	assert.Equal(t, llms.TextContent{Text: "цена?"}, fm.got[3].Parts[0])
	assert.Equal(t, 0.7, fm.opts.Temperature)
	assert.Equal(t, 300, fm.opts.MaxTokens)
}

func TestCompleteFailures(t *testing.T) {
	cases := map[string]*fakeModel{
		"error": {err: fmt.Errorf("boom")},
		"nil":   {},
		"empty": {reply: &llms.ContentResponse{}},
		"blank": {reply: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: " "}}}},
	}
	for name, fm := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewWithModel(fm).Complete(context.Background(), nil, model.CompletionParams{})
			assert.True(t, errors.Is(err, model.ErrCompletion))
		})
	}
}
