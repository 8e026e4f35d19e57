package handlers

import (
	"context"

	apierrors "github.com/maruel/conclave/internal/errors"
	"github.com/maruel/conclave/internal/models"
	"github.com/maruel/conclave/internal/workspace"
)

// RoomHandler handles chat room requests.
type RoomHandler struct {
	Svc *workspace.Service
}

// ListRoomsRequest names a folder.
type ListRoomsRequest struct {
	FolderID string `path:"id"`
}

// ListRoomsResponse lists the rooms of a folder.
type ListRoomsResponse struct {
	Rooms []*models.Room `json:"rooms"`
}

// ListRooms returns the rooms of a folder.
func (h *RoomHandler) ListRooms(ctx context.Context, req ListRoomsRequest) (*ListRoomsResponse, error) {
	rooms, err := h.Svc.ListRooms(req.FolderID)
	if err != nil {
		return nil, err
	}
	return &ListRoomsResponse{Rooms: rooms}, nil
}

// CreateRoomRequest creates a room in a folder.
type CreateRoomRequest struct {
	FolderID string          `path:"id" json:"-"`
	Name     string          `json:"name"`
	Type     models.RoomType `json:"type"`
	AgentIDs []string        `json:"agent_ids"`
}

// CreateRoom creates a room.
func (h *RoomHandler) CreateRoom(ctx context.Context, req CreateRoomRequest) (*models.Room, error) {
	if req.Type == "" {
		return nil, apierrors.MissingField("type")
	}
	return h.Svc.CreateRoom(ctx, req.FolderID, req.Name, req.Type, req.AgentIDs)
}

// RoomRequest names a room.
type RoomRequest struct {
	ID string `path:"id"`
}

// DeleteRoom removes a room with its messages.
func (h *RoomHandler) DeleteRoom(ctx context.Context, req RoomRequest) (*DeleteResponse, error) {
	if err := h.Svc.DeleteRoom(ctx, req.ID); err != nil {
		return nil, err
	}
	return &DeleteResponse{Deleted: req.ID}, nil
}

// ListRoomAgentsResponse lists the agents of a room.
type ListRoomAgentsResponse struct {
	Agents []*models.Agent `json:"agents"`
}

// ListRoomAgents returns the agents linked to a room.
func (h *RoomHandler) ListRoomAgents(ctx context.Context, req RoomRequest) (*ListRoomAgentsResponse, error) {
	agents, err := h.Svc.ListRoomAgents(req.ID)
	if err != nil {
		return nil, err
	}
	return &ListRoomAgentsResponse{Agents: agents}, nil
}

// AddRoomAgentRequest links an agent to a room.
type AddRoomAgentRequest struct {
	RoomID  string `path:"id" json:"-"`
	AgentID string `json:"agent_id"`
}

// AddRoomAgent links an agent of the same folder to a room.
func (h *RoomHandler) AddRoomAgent(ctx context.Context, req AddRoomAgentRequest) (*ListRoomAgentsResponse, error) {
	if req.AgentID == "" {
		return nil, apierrors.MissingField("agent_id")
	}
	if err := h.Svc.AddAgentToRoom(ctx, req.RoomID, req.AgentID); err != nil {
		return nil, err
	}
	return h.ListRoomAgents(ctx, RoomRequest{ID: req.RoomID})
}
