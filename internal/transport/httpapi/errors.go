package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"barbearia/backend/internal/changelog"
	"barbearia/backend/internal/service/bookings"
	"barbearia/backend/internal/store"
)

type errorBody struct {
	Code     string        `json:"code"`
	Message  string        `json:"message"`
	Field    string        `json:"field,omitempty"`
	Conflict *conflictBody `json:"conflict,omitempty"`
}

type conflictBody struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Barber string `json:"barber"`
	Date   string `json:"date"`
	Time   string `json:"time"`
	Dur    int    `json:"dur"`
}

func abortWith(c *gin.Context, status int, body errorBody) {
	c.AbortWithStatusJSON(status, gin.H{"ok": false, "error": body})
}

// writeError maps service errors onto HTTP statuses. Anything unrecognized
// is logged and reported as a bare 500.
func writeError(c *gin.Context, log *slog.Logger, err error) {
	var vErr *bookings.ValidationError
	var cErr *bookings.ConflictError
	switch {
	case errors.As(err, &vErr):
		abortWith(c, http.StatusBadRequest, errorBody{Code: string(vErr.Reason), Message: vErr.Error(), Field: vErr.Field})
	case errors.As(err, &cErr):
		b := cErr.With
		abortWith(c, http.StatusConflict, errorBody{
			Code:    "conflict",
			Message: cErr.Error(),
			Conflict: &conflictBody{
				ID: b.ID, Name: b.Name, Barber: b.Barber, Date: b.Date, Time: b.Start.String(), Dur: b.Duration,
			},
		})
	case errors.Is(err, store.ErrUnauthorized):
		abortWith(c, http.StatusUnauthorized, errorBody{Code: "unauthorized", Message: "unauthorized"})
	case errors.Is(err, store.ErrNotFound):
		abortWith(c, http.StatusNotFound, errorBody{Code: "not_found", Message: "booking not found"})
	case errors.Is(err, changelog.ErrCursorCompacted):
		abortWith(c, http.StatusGone, errorBody{Code: "cursor_compacted", Message: "cursor is older than the retained change log; resync required"})
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn("request timed out", slog.String("path", c.FullPath()), slog.Any("err", err))
		abortWith(c, http.StatusServiceUnavailable, errorBody{Code: "timeout", Message: "request timed out"})
	default:
		log.Error("request failed", slog.String("path", c.FullPath()), slog.Any("err", err))
		abortWith(c, http.StatusInternalServerError, errorBody{Code: "internal", Message: "internal error"})
	}
}
