package assistant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		u    Update
		want Kind
	}{
		{"start", Update{UserID: 1, Text: "/start"}, KindCommand},
		{"command with bot name", Update{UserID: 1, Text: "/order@olmi_bot"}, KindCommand},
		{"unknown command", Update{UserID: 1, Text: "/refund"}, KindUnknown},
		{"text", Update{UserID: 1, Text: "Сколько стоит роутер?"}, KindText},
		{"blank text", Update{UserID: 1, Text: "   "}, KindUnknown},
		{"payload", Update{UserID: 1, WebAppData: `{"action":"new_order"}`}, KindOrderPayload},
		{"callback", Update{UserID: 1, CallbackData: "pay_42"}, KindCallback},
		{"callback wins over text", Update{UserID: 1, CallbackData: "pay_42", Text: "hi"}, KindCallback},
		{"no user", Update{Text: "hi"}, KindUnknown},
		{"empty", Update{UserID: 1}, KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.u))
		})
	}
}

func TestParseCommand(t *testing.T) {
	for text, want := range map[string]string{
		"/start":          "start",
		"/HELP":           "help",
		"/cart now":       "cart",
		"/order@shop_bot": "order",
	} {
		got, ok := ParseCommand(text)
		assert.True(t, ok, text)
		assert.Equal(t, want, got, text)
	}
	for _, text := range []string{"/", "/ start", "start", "/stop", ""} {
		_, ok := ParseCommand(text)
		assert.False(t, ok, text)
	}
}

func TestCommandMention(t *testing.T) {
	assert.Equal(t, "olmi_bot", CommandMention("/start@olmi_bot"))
	assert.Equal(t, "other_bot", CommandMention("/order@other_bot now"))
	assert.Empty(t, CommandMention("/start"))
	assert.Empty(t, CommandMention("mail@example.ru"))
	assert.Empty(t, CommandMention("/"))
}
