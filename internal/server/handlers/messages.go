package handlers

import (
	"context"
	"strings"

	apierrors "github.com/maruel/conclave/internal/errors"
	"github.com/maruel/conclave/internal/models"
	"github.com/maruel/conclave/internal/workspace"
)

// MessageHandler handles conversation requests.
type MessageHandler struct {
	Svc *workspace.Service
}

// ListMessagesRequest names a room.
type ListMessagesRequest struct {
	RoomID string `path:"id"`
}

// ListMessagesResponse lists the messages of a room, oldest first.
type ListMessagesResponse struct {
	Messages []*models.Message `json:"messages"`
}

// ListMessages returns a room's conversation.
func (h *MessageHandler) ListMessages(ctx context.Context, req ListMessagesRequest) (*ListMessagesResponse, error) {
	msgs, err := h.Svc.ListMessages(req.RoomID)
	if err != nil {
		return nil, err
	}
	return &ListMessagesResponse{Messages: msgs}, nil
}

// SendMessageRequest posts a user message.
type SendMessageRequest struct {
	RoomID string `path:"id" json:"-"`
	Text   string `json:"text"`
}

// SendMessage posts a user message and waits for the agents' replies.
//
// Agent failures do not fail the request; they are listed in the result.
func (h *MessageHandler) SendMessage(ctx context.Context, req SendMessageRequest) (*workspace.TurnResult, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, apierrors.MissingField("text")
	}
	return h.Svc.SendMessage(ctx, h.Svc.Settings(), req.RoomID, req.Text)
}
