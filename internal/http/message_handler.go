package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"minichat/internal/domain"
	"minichat/internal/service"
)

// MessageHandler expone la tabla de mensajes.
type MessageHandler struct {
	logger   *zap.Logger
	messages *service.MessageService
}

func NewMessageHandler(logger *zap.Logger, messages *service.MessageService) *MessageHandler {
	return &MessageHandler{logger: logger, messages: messages}
}

// List maneja GET /messages?order=created_at.desc.
func (h *MessageHandler) List(c *gin.Context) {
	order, err := service.ParseOrder(c.Query("order"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order"})
		return
	}

	messages, err := h.messages.List(c.Request.Context(), order)
	if err != nil {
		h.logger.Error("list messages failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// Create maneja POST /messages. El autor siempre es el dueño del token; un
// author_email en el body se ignora.
func (h *MessageHandler) Create(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	var req struct {
		Content   string    `json:"content" binding:"required"`
		CreatedAt time.Time `json:"created_at"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid post message request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	msg, err := h.messages.Post(c.Request.Context(), claims.Identity(), domain.NewMessage{
		Content:   req.Content,
		CreatedAt: req.CreatedAt.UTC(),
	})
	if err != nil {
		if errors.Is(err, service.ErrMessageInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "message content is empty or too long"})
			return
		}
		h.logger.Error("create message failed", zap.Error(err), zap.String("user_id", claims.UserID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not post message"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": msg})
}
