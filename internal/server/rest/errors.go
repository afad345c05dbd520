package rest

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/certkeeper/internal/common"
	"github.com/dmitrijs2005/certkeeper/internal/compositor"
	"github.com/dmitrijs2005/certkeeper/internal/cryptox"
	"github.com/dmitrijs2005/certkeeper/internal/server/objectstore"
	"github.com/labstack/echo/v4"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
	Detail  string   `json:"detail,omitempty"`
}

// statusFor maps an error kind to an HTTP status and a public message.
func statusFor(err error) (int, string) {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		if msg, ok := he.Message.(string); ok {
			return he.Code, msg
		}
		return he.Code, http.StatusText(he.Code)
	case errors.Is(err, common.ErrorValidation):
		return http.StatusBadRequest, "validation failed"
	case errors.Is(err, common.ErrorAlreadyExists):
		return http.StatusBadRequest, "a certificate configuration already exists for this event"
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, cryptox.ErrDecryption):
		return http.StatusUnauthorized, "decryption failed: wrong password or corrupted data"
	case errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized, "token expired"
	case errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrorUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, compositor.ErrTemplateLoad):
		return http.StatusUnprocessableEntity, "template image could not be loaded"
	case errors.Is(err, objectstore.ErrPresignUnsupported):
		return http.StatusNotImplemented, "presigned uploads are not available; upload the image directly"
	}
	return http.StatusInternalServerError, "internal server error"
}

func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code, msg := statusFor(err)
	body := ErrorResponse{Error: msg}

	var ve *common.ValidationError
	if errors.As(err, &ve) {
		body.Details = ve.Details
	}
	if code == http.StatusInternalServerError {
		s.logger.Error(c.Request().Context(), "request failed", "path", c.Request().URL.Path, "error", err)
		if s.dev {
			body.Detail = err.Error()
		}
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, body)
	}
	if err != nil {
		s.logger.Error(c.Request().Context(), "error response not written", "error", err)
	}
}
