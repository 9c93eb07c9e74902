package flow

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order_assistant/internal/model"
)

func TestParseAction(t *testing.T) {
	cases := []struct {
		token string
		want  Action
	}{
		{"pay_42", Action{ActionPay, "42"}},
		{"process_card_42", Action{ActionProcessCard, "42"}},
		{"process_invoice_A-1", Action{ActionProcessInvoice, "A-1"}},
		{"process_cash_x9", Action{ActionProcessCash, "x9"}},
		{"confirm_ORD-2024-1", Action{ActionConfirm, "ORD-2024-1"}},
		{"delivery_42", Action{ActionDelivery, "42"}},
		{"ask_42", Action{ActionAsk, "42"}},
		{"back_42", Action{ActionBack, "42"}},
		{"cancel_42", Action{ActionCancel, "42"}},
	}
	for _, tc := range cases {
		t.Run(tc.token, func(t *testing.T) {
			got, err := ParseAction(tc.token)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.token, got.Token())
		})
	}
}

func TestParseActionMalformed(t *testing.T) {
	for _, token := range []string{
		"",
		"pay",
		"pay_",
		"PAY_42",
		"refund_42",
		"process_wire_42",
		"process_card",
		"pay_42_43_44",
		"pay_4 2",
		"confirm_" + strings.Repeat("9", model.MaxOrderIDLen+1),
	} {
		_, err := ParseAction(token)
		assert.True(t, errors.Is(err, model.ErrMalformedAction), "token %q", token)
	}
}
