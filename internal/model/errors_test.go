package model

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorsCarryNoStack(t *testing.T) {
	errs := []error{
		errors.WithMessagef(ErrUnknownOrder, "order %s", "42"),
		Because(ErrInvalidOrder, io.ErrUnexpectedEOF),
		Because(ErrTransport, errors.WithMessagef(fmt.Errorf("chat not found"), "send to chat %d", 7)),
	}
	for _, err := range errs {
		var buf bytes.Buffer
		slog.New(slog.NewTextHandler(&buf, nil)).Warn("rejected", "err", err)
		assert.NotContains(t, buf.String(), ".go:", buf.String())
		assert.NotContains(t, fmt.Sprintf("%+v", err), "model.init")
	}
}

func TestBecauseKeepsBoth(t *testing.T) {
	err := Because(ErrInvalidOrder, io.ErrUnexpectedEOF)
	assert.True(t, errors.Is(err, ErrInvalidOrder))
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.Equal(t, "invalid order: unexpected EOF", err.Error())

	wrapped := errors.WithMessage(err, "decode")
	assert.True(t, errors.Is(wrapped, io.ErrUnexpectedEOF))
}
