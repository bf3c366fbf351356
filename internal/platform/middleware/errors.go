package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
)

// ErrorBody is the JSON envelope for every failed request.
type ErrorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// ErrorHandler renders echo and domain errors as ErrorBody. Unexpected errors
// are logged and reported with a generic message.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := errorResponse(err)
		if status >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).Str("request_id", rid).Str("path", c.Request().URL.Path).Msg("unhandled error")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write error response")
		}
	}
}

func errorResponse(err error) (int, ErrorBody) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
		if he.Code >= http.StatusInternalServerError {
			msg = "internal server error"
		}
		return he.Code, ErrorBody{Message: msg, Error: http.StatusText(he.Code)}
	}

	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		return status, ErrorBody{Message: "internal server error", Error: apperr.Kind(err)}
	}
	return status, ErrorBody{Message: err.Error(), Error: apperr.Kind(err)}
}
