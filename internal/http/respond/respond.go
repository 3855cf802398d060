// Package respond writes the JSON bodies shared by handlers and middleware.
package respond

import (
	"encoding/json"

	"github.com/valyala/fasthttp"

	"dolphinpod/internal/apperr"
	httpctx "dolphinpod/internal/http/ctx"
)

// ErrorBody is the shape of every error response.
type ErrorBody struct {
	Message   string `json:"message"`
	ErrorType string `json:"error_type"`
	RequestID string `json:"request_id,omitempty"`
}

func JSON(ctx *fasthttp.RequestCtx, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"message":"internal server error","error_type":"internal_server_error"}`)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

// Error maps err onto its status and client-safe message. Causes of
// upstream and internal errors are logged, never returned.
func Error(ctx *fasthttp.RequestCtx, err error) {
	e := apperr.As(err)
	status := apperr.HTTPStatus(e)
	if status >= fasthttp.StatusInternalServerError {
		l := httpctx.Logger(ctx)
		l.Error().Err(err).Str("error_type", e.Category).Int("status", status).Msg("request failed")
	}
	JSON(ctx, status, ErrorBody{
		Message:   e.Message,
		ErrorType: e.Category,
		RequestID: httpctx.RequestIDFromCtx(ctx),
	})
}
