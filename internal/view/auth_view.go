package view

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"minichat/internal/client"
)

var ErrMissingCredentials = errors.New("email and password are required")

// AuthView delega todo el flujo de acceso en el SessionStore y no guarda estado.
// Tras un acceso exitoso el SessionStore notifica el cambio de sesion.
type AuthView struct {
	sessions client.SessionStore
	logger   *zap.Logger
}

func NewAuthView(sessions client.SessionStore, logger *zap.Logger) *AuthView {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthView{sessions: sessions, logger: logger}
}

func (a *AuthView) SignIn(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return ErrMissingCredentials
	}
	if err := a.sessions.SignInWithPassword(ctx, email, password); err != nil {
		a.logger.Info("sign in failed", zap.String("email", email), zap.Error(err))
		return err
	}
	return nil
}

func (a *AuthView) SignUp(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return ErrMissingCredentials
	}
	if err := a.sessions.SignUp(ctx, email, password); err != nil {
		a.logger.Info("sign up failed", zap.String("email", email), zap.Error(err))
		return err
	}
	return nil
}

// RequestCode pide un codigo de acceso de un solo uso.
func (a *AuthView) RequestCode(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrMissingCredentials
	}
	if err := a.sessions.RequestCode(ctx, email); err != nil {
		a.logger.Info("request code failed", zap.String("email", email), zap.Error(err))
		return err
	}
	return nil
}

func (a *AuthView) VerifyCode(ctx context.Context, email, code string) error {
	email = strings.TrimSpace(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return ErrMissingCredentials
	}
	if err := a.sessions.VerifyCode(ctx, email, code); err != nil {
		a.logger.Info("verify code failed", zap.String("email", email), zap.Error(err))
		return err
	}
	return nil
}
