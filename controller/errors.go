package controller

import (
	"errors"
	"net/http"

	"github.com/itish2003/docrag/models"
)

// statusFor maps a pipeline error to an HTTP status and the message shown to
// the client. Internal failures do not leak detail, except generation
// errors, whose cause is useful to the caller.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrIndexNotFound):
		return http.StatusBadRequest, "Index not found. Upload a document first."
	case errors.Is(err, models.ErrUnsupportedFileType),
		errors.Is(err, models.ErrEncoding),
		errors.Is(err, models.ErrExtraction),
		errors.Is(err, models.ErrEmptyIndex),
		errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrGeneration):
		return http.StatusInternalServerError, "Error: " + err.Error()
	case errors.Is(err, models.ErrRetrieval):
		return http.StatusInternalServerError, "Failed to retrieve documents"
	case errors.Is(err, models.ErrIndexCorrupt):
		return http.StatusInternalServerError, "The document index is corrupt"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}
