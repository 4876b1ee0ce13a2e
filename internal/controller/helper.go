package controller

import (
	"context"
	"crypto/rand"
	"errors"
	"net"
	"net/http"

	"github.com/oklog/ulid/v2"
	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/pkg/rest"
)

func (c controller) generateTimeBasedId() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRoomAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRoomFull):
		return http.StatusForbidden
	case domain.IsTransient(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorMessage(status int, err error) string {
	switch status {
	case http.StatusServiceUnavailable:
		return domain.ErrServiceUnavailable.Error()
	case http.StatusInternalServerError:
		return "internal server error"
	default:
		return err.Error()
	}
}

func (c controller) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		c.logger.ErrorContext(ctx, "request failed", "status", status, "error", err)
	} else {
		c.logger.DebugContext(ctx, "request rejected", "status", status, "error", err)
	}

	c.writeJSON(ctx, w, status, rest.Envelope{"error": errorMessage(status, err)})
}

func (c controller) writeJSON(ctx context.Context, w http.ResponseWriter, status int, data any) {
	if err := rest.WriteJSON(w, status, data); err != nil {
		c.logger.WarnContext(ctx, "failed to write response", "error", err)
	}
}

// clientIP is the peer address. Forwarding headers are only honoured through
// middleware.RealIP, which is mounted when the controller trusts its proxy.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
