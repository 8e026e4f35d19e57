// Handles file upload and retrieval for folder assets.

package handlers

import (
	"context"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/maruel/conclave/internal/assets"
	apierrors "github.com/maruel/conclave/internal/errors"
	"github.com/maruel/conclave/internal/models"
	"github.com/maruel/conclave/internal/workspace"
)

// MaxUploadBytes bounds a single uploaded file.
const MaxUploadBytes = 32 << 20

// FileHandler handles folder file requests.
type FileHandler struct {
	Svc *workspace.Service
}

// ListFilesRequest names a folder.
type ListFilesRequest struct {
	FolderID string `path:"id"`
}

// FileEntry is a file with its display hints.
type FileEntry struct {
	*models.WorkspaceFile
	Icon     string `json:"icon"`
	SizeText string `json:"sizeText"`
}

// ListFilesResponse lists the files of a folder, newest first.
type ListFilesResponse struct {
	Files []FileEntry `json:"files"`
}

// ListFiles returns the files of a folder.
func (h *FileHandler) ListFiles(ctx context.Context, req ListFilesRequest) (*ListFilesResponse, error) {
	files, err := h.Svc.ListFiles(ctx, req.FolderID)
	if err != nil {
		return nil, err
	}
	out := make([]FileEntry, len(files))
	for i, f := range files {
		out[i] = FileEntry{WorkspaceFile: f, Icon: assets.IconFor(f.Name), SizeText: assets.FormatSize(f.Size)}
	}
	return &ListFilesResponse{Files: out}, nil
}

// FileRequest names a file.
type FileRequest struct {
	ID string `path:"id"`
}

// DeleteFile removes a file.
func (h *FileHandler) DeleteFile(ctx context.Context, req FileRequest) (*DeleteResponse, error) {
	if err := h.Svc.DeleteFile(ctx, req.ID); err != nil {
		return nil, err
	}
	return &DeleteResponse{Deleted: req.ID}, nil
}

// UploadFile handles a multipart upload in the "file" field.
// This is a raw http.HandlerFunc because it handles multipart forms.
func (h *FileHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		WriteError(ctx, w, apierrors.BadRequest("failed to parse form").Wrap(err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(ctx, w, apierrors.MissingField("file"))
		return
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.ErrorContext(ctx, "Failed to close uploaded file", "err", err)
		}
	}()
	if header.Size > MaxUploadBytes {
		WriteError(ctx, w, apierrors.PayloadTooLarge(MaxUploadBytes))
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		WriteError(ctx, w, apierrors.InternalWithError("failed to read upload", err))
		return
	}
	// Browsers send application/octet-stream for unknown types; let the
	// store sniff those.
	typ := header.Header.Get("Content-Type")
	if typ == "application/octet-stream" {
		typ = ""
	}
	up := &assets.Upload{Name: header.Filename, Type: typ, Data: data}
	f, err := h.Svc.UploadFile(ctx, r.PathValue("id"), up)
	if err != nil {
		WriteError(ctx, w, err)
		return
	}
	WriteJSON(ctx, w, http.StatusCreated, f)
}

// ServeFile streams the bytes of a file.
func (h *FileHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	blob, err := h.Svc.GetFileBlob(ctx, r.PathValue("id"))
	if err != nil {
		WriteError(ctx, w, err)
		return
	}
	typ := blob.Type
	if typ == "" {
		typ = "application/octet-stream"
	}
	w.Header().Set("Content-Type", typ)
	w.Header().Set("Content-Length", strconv.Itoa(len(blob.Data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": blob.Name}))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if _, err := w.Write(blob.Data); err != nil {
		slog.WarnContext(ctx, "Failed to write file", "id", blob.ID, "err", err)
	}
}
