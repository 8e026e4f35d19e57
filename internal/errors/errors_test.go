package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/maruel/conclave/internal/archive"
	"github.com/maruel/conclave/internal/assets"
	"github.com/maruel/conclave/internal/storage"
	"github.com/maruel/conclave/internal/workspace"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   ErrorCode
	}{
		{"record", fmt.Errorf("room r1: %w", storage.ErrNotFound), http.StatusNotFound, ErrNotFound},
		{"file", assets.ErrNotFound, http.StatusNotFound, ErrFileNotFound},
		{"busy", workspace.ErrBusy, http.StatusConflict, ErrBusy},
		{"invalid", fmt.Errorf("%w: bad type", workspace.ErrInvalidInput), http.StatusBadRequest, ErrValidationFailed},
		{"validation", validation.Errors{"name": errors.New("cannot be blank")}, http.StatusBadRequest, ErrValidationFailed},
		{"manifest", archive.ErrMissingManifest, http.StatusBadRequest, ErrInvalidArchive},
		{"version", fmt.Errorf("%w: 2", archive.ErrUnsupportedVersion), http.StatusBadRequest, ErrInvalidArchive},
		{"api", MissingField("text"), http.StatusBadRequest, ErrMissingField},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError, ErrInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromError(tt.err)
			if got.StatusCode() != tt.status {
				t.Errorf("StatusCode() = %d, want %d", got.StatusCode(), tt.status)
			}
			if got.Code() != tt.code {
				t.Errorf("Code() = %q, want %q", got.Code(), tt.code)
			}
		})
	}
}

func TestAPIError(t *testing.T) {
	base := errors.New("boom")
	e := Internal("failed").Wrap(base).WithDetail("k", 1)
	if e.Error() != "failed: boom" {
		t.Errorf("Error() = %q", e.Error())
	}
	if !errors.Is(e, base) {
		t.Error("Unwrap lost the wrapped error")
	}
	if e.Details()["k"] != 1 {
		t.Errorf("Details() = %v", e.Details())
	}
	v := FromError(validation.Errors{"name": errors.New("cannot be blank")})
	if v.Details()["name"] != "cannot be blank" {
		t.Errorf("validation details = %v", v.Details())
	}
}
