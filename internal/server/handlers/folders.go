package handlers

import (
	"context"

	"github.com/maruel/conclave/internal/models"
	"github.com/maruel/conclave/internal/workspace"
)

// FolderHandler handles project folder requests.
type FolderHandler struct {
	Svc *workspace.Service
}

// ListFoldersRequest is empty.
type ListFoldersRequest struct{}

// ListFoldersResponse lists every folder, newest first.
type ListFoldersResponse struct {
	Folders []*models.Folder `json:"folders"`
}

// ListFolders returns every folder.
func (h *FolderHandler) ListFolders(ctx context.Context, req ListFoldersRequest) (*ListFoldersResponse, error) {
	return &ListFoldersResponse{Folders: h.Svc.ListFolders()}, nil
}

// CreateFolderRequest creates a folder.
type CreateFolderRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	ParentID    *string `json:"parent_id"`
}

// CreateFolder creates a folder with its default room and assistant.
func (h *FolderHandler) CreateFolder(ctx context.Context, req CreateFolderRequest) (*models.Folder, error) {
	return h.Svc.CreateFolder(ctx, req.Name, req.Description, req.ParentID)
}

// DeleteFolderRequest names the folder to delete.
type DeleteFolderRequest struct {
	ID string `path:"id"`
}

// DeleteResponse acknowledges a deletion.
type DeleteResponse struct {
	Deleted string `json:"deleted"`
}

// DeleteFolder removes a folder with its departments and files.
func (h *FolderHandler) DeleteFolder(ctx context.Context, req DeleteFolderRequest) (*DeleteResponse, error) {
	if err := h.Svc.DeleteFolder(ctx, req.ID); err != nil {
		return nil, err
	}
	return &DeleteResponse{Deleted: req.ID}, nil
}
