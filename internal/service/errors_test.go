package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIs(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", conflictError(ReasonNoUnitsLeft, "no units left"))

	assert.True(t, errors.Is(err, ErrNoUnitsLeft))
	assert.True(t, errors.Is(err, ErrConflict), "empty reason matches any conflict")
	assert.False(t, errors.Is(err, ErrDuplicateDonor))
	assert.False(t, errors.Is(err, ErrValidation))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"validation", validationError("bad"), KindValidation},
		{"not found", notFoundError("missing"), KindNotFound},
		{"authorization", authorizationError(ReasonNotOwner, "nope"), KindAuthorization},
		{"wrapped conflict", fmt.Errorf("x: %w", conflictError(ReasonContention, "busy")), KindConflict},
		{"plain error", errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "conflict: cooldown_active", ErrCooldownActive.Error())
	assert.Equal(t, "load user: boom", internalError("load user", errors.New("boom")).Error())
}
