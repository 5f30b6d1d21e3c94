package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(NotFound("order %d", 7)))
	assert.Equal(t, KindInvalidState, KindOf(fmt.Errorf("wrapped: %w", InvalidState("cart is empty"))))
	assert.Equal(t, KindUnexpected, KindOf(errors.New("connection refused")))
	assert.True(t, Is(Forbidden("nope"), KindForbidden))
	assert.False(t, Is(nil, KindUnexpected))
}

func TestUnexpectedKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Unexpected("create order", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindUnexpected, err.Kind)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestMessageFormatting(t *testing.T) {
	err := InvalidState("insufficient stock for %s", "Dune")
	assert.Equal(t, "insufficient stock for Dune", err.Message)
	assert.Equal(t, "invalid_state: insufficient stock for Dune", err.Error())
}
