package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindsMatchThroughWrapping(t *testing.T) {
	err := fmt.Errorf("service layer: %w", Conflict("conversion.Invoice", "estimate %d is not approved", 7))

	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "estimate 7 is not approved", Message(err))
}

func TestCauseIsReachable(t *testing.T) {
	cause := errors.New("smtp dial timeout")
	err := Unavailable("notify.Send", "mail service", cause)

	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "smtp dial timeout")
}

func TestMessageFallsBackForPlainErrors(t *testing.T) {
	assert.Equal(t, "internal server error", Message(errors.New("boom")))
}
