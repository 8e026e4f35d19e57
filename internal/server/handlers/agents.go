package handlers

import (
	"context"

	"github.com/maruel/conclave/internal/models"
	"github.com/maruel/conclave/internal/workspace"
)

// AgentHandler handles agent requests.
type AgentHandler struct {
	Svc *workspace.Service
}

// ListAgentsRequest names a folder.
type ListAgentsRequest struct {
	FolderID string `path:"id"`
}

// ListAgentsResponse lists the agents of a folder.
type ListAgentsResponse struct {
	Agents []*models.Agent `json:"agents"`
}

// ListAgents returns the agents of a folder.
func (h *AgentHandler) ListAgents(ctx context.Context, req ListAgentsRequest) (*ListAgentsResponse, error) {
	agents, err := h.Svc.ListAgents(req.FolderID)
	if err != nil {
		return nil, err
	}
	return &ListAgentsResponse{Agents: agents}, nil
}

// CreateAgentRequest creates an agent in a folder.
type CreateAgentRequest struct {
	FolderID string `path:"id" json:"-"`
	workspace.AgentInput
}

// CreateAgent creates an agent.
func (h *AgentHandler) CreateAgent(ctx context.Context, req CreateAgentRequest) (*models.Agent, error) {
	return h.Svc.CreateAgent(ctx, req.FolderID, &req.AgentInput)
}

// AgentRequest names an agent.
type AgentRequest struct {
	ID string `path:"id"`
}

// DeleteAgent removes an agent from every room. Its messages stay.
func (h *AgentHandler) DeleteAgent(ctx context.Context, req AgentRequest) (*DeleteResponse, error) {
	if err := h.Svc.DeleteAgent(ctx, req.ID); err != nil {
		return nil, err
	}
	return &DeleteResponse{Deleted: req.ID}, nil
}

// UpgradeRequest turns an agent into a department.
type UpgradeRequest struct {
	ID   string `path:"id" json:"-"`
	Name string `json:"name"`
}

// UpgradeToDepartment moves an agent into a department folder of its own.
func (h *AgentHandler) UpgradeToDepartment(ctx context.Context, req UpgradeRequest) (*workspace.Department, error) {
	return h.Svc.UpgradeToDepartment(ctx, req.ID, req.Name)
}

// OpenDirectRoom returns the agent's direct room, creating it if needed.
func (h *AgentHandler) OpenDirectRoom(ctx context.Context, req AgentRequest) (*models.Room, error) {
	return h.Svc.OpenDirectRoom(ctx, req.ID)
}
