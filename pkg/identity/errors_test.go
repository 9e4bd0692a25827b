package identity

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthErrorKinds(t *testing.T) {
	base := errors.New("token consumed")
	err := NewAuthError(AuthErrorAlreadyExchanged, base)

	assert.True(t, AuthErrorOfKind(err, AuthErrorAlreadyExchanged))
	assert.False(t, AuthErrorOfKind(err, AuthErrorExpired))
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "already_exchanged")
}

func TestAuthErrorWrapped(t *testing.T) {
	err := fmt.Errorf("establish session: %w", NewAuthError(AuthErrorExpired, nil))
	assert.True(t, AuthErrorOfKind(err, AuthErrorExpired))

	var ae *AuthError
	assert.True(t, errors.As(err, &ae))
	assert.Equal(t, AuthErrorExpired, ae.Kind)
}

func TestValidationError(t *testing.T) {
	err := fmt.Errorf("invite member: %w", &ValidationError{Field: "email_address", Reason: "malformed"})
	assert.True(t, IsValidation(err))
	assert.False(t, IsConflict(err))
	assert.Contains(t, err.Error(), "email_address")
}

func TestConflictError(t *testing.T) {
	err := fmt.Errorf("delete member: %w", &ConflictError{Reason: "members cannot delete themselves"})
	assert.True(t, IsConflict(err))
	assert.False(t, IsValidation(err))
}

func TestSentinels(t *testing.T) {
	assert.True(t, errors.Is(fmt.Errorf("get: %w", ErrNotFound), ErrNotFound))
	assert.True(t, errors.Is(fmt.Errorf("delete: %w", ErrPermissionDenied), ErrPermissionDenied))
	assert.False(t, errors.Is(ErrNotFound, ErrPermissionDenied))
}
