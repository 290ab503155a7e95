package webchat

import (
	"net/http"

	"github.com/go-go-golems/threadchat/pkg/chatrunner"
	"github.com/go-go-golems/threadchat/pkg/inference"
	"github.com/go-go-golems/threadchat/pkg/persistence/threadstore"
	"github.com/pkg/errors"
)

// StatusForError maps a turn error onto an HTTP status and a client message.
func StatusForError(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, chatrunner.ErrEmptyThreadID), errors.Is(err, chatrunner.ErrEmptyMessage),
		errors.Is(err, threadstore.ErrEmptyThreadID):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, threadstore.ErrCheckpointNotFound):
		return http.StatusNotFound, err.Error()
	case inference.IsTransient(err):
		return http.StatusServiceUnavailable, "model temporarily unavailable"
	case inference.IsPermanent(err):
		return http.StatusBadGateway, "model request failed"
	case threadstore.IsStorageError(err):
		return http.StatusInternalServerError, "storage failure"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
