// Handles backup export and import.

package handlers

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/maruel/conclave/internal/archive"
	apierrors "github.com/maruel/conclave/internal/errors"
	"github.com/maruel/conclave/internal/workspace"
)

// MaxArchiveBytes bounds an uploaded backup.
const MaxArchiveBytes = 512 << 20

// ArchiveHandler handles backup requests.
type ArchiveHandler struct {
	Svc *workspace.Service
}

// Export streams a backup. ?assets=true includes the file store.
func (h *ArchiveHandler) Export(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	includeAssets, _ := strconv.ParseBool(r.URL.Query().Get("assets"))
	// Build in memory so a failure can still be reported as JSON.
	var buf bytes.Buffer
	m, err := h.Svc.Export(ctx, &buf, includeAssets)
	if err != nil {
		WriteError(ctx, w, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("Content-Disposition", `attachment; filename="`+archive.FileName(time.Now())+`"`)
	if _, err := buf.WriteTo(w); err != nil {
		slog.WarnContext(ctx, "Failed to write backup", "err", err)
		return
	}
	slog.InfoContext(ctx, "Exported backup", "keys", len(m.DataKeys), "assets", m.IncludesAssets)
}

// Import restores a backup sent either as the multipart "file" field or as
// the raw request body.
func (h *ArchiveHandler) Import(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, MaxArchiveBytes)
	var (
		ra   io.ReaderAt
		size int64
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			WriteError(ctx, w, apierrors.BadRequest("failed to parse form").Wrap(err))
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			WriteError(ctx, w, apierrors.MissingField("file"))
			return
		}
		defer func() { _ = file.Close() }()
		ra, size = file, header.Size
	} else {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				WriteError(ctx, w, apierrors.PayloadTooLarge(mbe.Limit))
				return
			}
			WriteError(ctx, w, apierrors.BadRequest("failed to read request body").Wrap(err))
			return
		}
		ra, size = bytes.NewReader(data), int64(len(data))
	}

	res, err := h.Svc.Import(ctx, ra, size)
	switch {
	case err == nil:
	case errors.Is(err, workspace.ErrBusy):
		WriteError(ctx, w, err)
		return
	case res == nil:
		// Rejected before anything was written.
		WriteError(ctx, w, apierrors.InvalidArchive(err))
		return
	default:
		WriteError(ctx, w, apierrors.InternalWithError("partial import", err).
			WithDetail("restored", res.Restored).
			WithDetail("total", res.Total))
		return
	}
	WriteJSON(ctx, w, http.StatusOK, res)
}

// Schema serves the JSON schema of the backup layout.
func (h *ArchiveHandler) Schema(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	data, err := archive.Schema()
	if err != nil {
		WriteError(ctx, w, err)
		return
	}
	w.Header().Set("Content-Type", "application/schema+json")
	if _, err := w.Write(data); err != nil {
		slog.WarnContext(ctx, "Failed to write schema", "err", err)
	}
}
