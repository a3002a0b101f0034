package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"minichat/internal/realtime"
	"minichat/internal/repository"
	"minichat/internal/service"
)

type mockEmailSender struct {
	lastTo   string
	lastCode string
	err      error
}

func (m *mockEmailSender) SendVerificationOTP(_ context.Context, toEmail string, code string, _ time.Time) error {
	m.lastTo = toEmail
	m.lastCode = code
	return m.err
}

type testEnv struct {
	router   *gin.Engine
	jwt      *service.JWTService
	hub      *realtime.Hub
	sender   *mockEmailSender
	messages *repository.MemoryMessageRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	hub := realtime.NewHub(logger)
	users := repository.NewMemoryUserRepository()
	messages := repository.NewMemoryMessageRepository(hub)
	sender := &mockEmailSender{}
	jwtSvc := service.NewJWTService("secret", 15*time.Minute, time.Hour, service.NewMemoryRefreshTokenStore())

	userSvc := service.NewUserService(logger, users, sender, nil)
	messageSvc := service.NewMessageService(logger, messages)

	router := NewRouter(logger, "*", jwtSvc,
		NewAuthHandler(logger, userSvc, jwtSvc),
		NewMessageHandler(logger, messageSvc),
		NewRealtimeHandler(logger, hub, jwtSvc, "*"),
	)
	return &testEnv{router: router, jwt: jwtSvc, hub: hub, sender: sender, messages: messages}
}

func performRequest(r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

type sessionResponse struct {
	User struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
	Tokens service.TokenPair `json:"tokens"`
}

func signUp(t *testing.T, env *testEnv, email string) sessionResponse {
	t.Helper()
	rec := performRequest(env.router, http.MethodPost, "/auth/signup", "", map[string]string{
		"email":    email,
		"password": "secret-pass",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode signup: %v", err)
	}
	return resp
}
