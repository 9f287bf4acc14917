package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/apperr"
)

type successBody struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type errorDetail struct {
	Code      apperr.Code `json:"code"`
	Message   string      `json:"message"`
	Timestamp time.Time   `json:"timestamp"`
}

type errorBody struct {
	Success bool        `json:"success"`
	Error   errorDetail `json:"error"`
}

func respond(c echo.Context, status int, data any) error {
	return c.JSON(status, successBody{Success: true, Data: data})
}

// bind decodes the request body, reporting malformed JSON as a validation error.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return apperr.Validation("invalid request body")
	}
	return nil
}

// ErrorHandler renders every error returned by handlers and middleware as the
// error envelope. 5xx responses carry a generic message; the cause is logged.
func ErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, detail := classify(err)
		if status >= http.StatusInternalServerError {
			log.Error("request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.Error(err))
		}
		body := errorBody{Error: detail}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			log.Warn("write error response", zap.Error(err))
		}
	}
}

func classify(err error) (int, errorDetail) {
	now := time.Now().UTC()

	var ae *apperr.Error
	if errors.As(err, &ae) {
		status := ae.Code.HTTPStatus()
		msg := ae.Message
		if status >= http.StatusInternalServerError {
			msg = apperr.ErrInternal.Message
		}
		return status, errorDetail{Code: ae.Code, Message: msg, Timestamp: now}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code := apperr.CodeInternal
		switch he.Code {
		case http.StatusNotFound:
			code = apperr.CodeNotFound
		case http.StatusUnauthorized:
			code = apperr.CodeInvalidToken
		case http.StatusForbidden:
			code = apperr.CodeForbidden
		case http.StatusTooManyRequests:
			code = apperr.CodeRateLimited
		case http.StatusBadRequest, http.StatusMethodNotAllowed,
			http.StatusRequestEntityTooLarge, http.StatusUnsupportedMediaType:
			code = apperr.CodeValidation
		}
		msg := http.StatusText(he.Code)
		if he.Code >= http.StatusInternalServerError {
			msg = apperr.ErrInternal.Message
		}
		return he.Code, errorDetail{Code: code, Message: msg, Timestamp: now}
	}

	return http.StatusInternalServerError, errorDetail{
		Code:      apperr.CodeInternal,
		Message:   apperr.ErrInternal.Message,
		Timestamp: now,
	}
}
