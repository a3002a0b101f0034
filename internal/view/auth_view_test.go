package view

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthView_Delegates(t *testing.T) {
	sessions := &fakeSessions{}
	auth := NewAuthView(sessions, nil)
	ctx := context.Background()

	assert.NoError(t, auth.SignIn(ctx, "a@b.c", "pw"))
	assert.Equal(t, "password", sessions.lastMethod)
	assert.NoError(t, auth.SignUp(ctx, "a@b.c", "pw"))
	assert.Equal(t, "signup", sessions.lastMethod)
	assert.NoError(t, auth.RequestCode(ctx, "a@b.c"))
	assert.Equal(t, "request_code", sessions.lastMethod)
	assert.NoError(t, auth.VerifyCode(ctx, "a@b.c", "123456"))
	assert.Equal(t, "verify_code", sessions.lastMethod)
}

func TestAuthView_ValidatesInput(t *testing.T) {
	sessions := &fakeSessions{}
	auth := NewAuthView(sessions, nil)
	ctx := context.Background()

	assert.ErrorIs(t, auth.SignIn(ctx, " ", "pw"), ErrMissingCredentials)
	assert.ErrorIs(t, auth.SignUp(ctx, "a@b.c", ""), ErrMissingCredentials)
	assert.ErrorIs(t, auth.RequestCode(ctx, ""), ErrMissingCredentials)
	assert.ErrorIs(t, auth.VerifyCode(ctx, "a@b.c", " "), ErrMissingCredentials)
	assert.Empty(t, sessions.lastMethod)
}

func TestAuthView_PropagatesErrors(t *testing.T) {
	sessions := &fakeSessions{authErr: errors.New("invalid credentials")}
	auth := NewAuthView(sessions, nil)
	assert.Error(t, auth.SignIn(context.Background(), "a@b.c", "pw"))
}
