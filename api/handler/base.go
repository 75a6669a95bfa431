package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/passwordless/api/transport"
	"github.com/fastygo/passwordless/domain"
	"github.com/fastygo/passwordless/pkg/httpcontext"
	"github.com/fastygo/passwordless/pkg/logger"
)

const internalErrorMessage = "internal server error"

type baseHandler struct {
	adapter *httpcontext.Adapter
	logger  *zap.Logger
}

func newBaseHandler(adapter *httpcontext.Adapter, logger *zap.Logger) baseHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if adapter == nil {
		adapter = httpcontext.NewAdapter(0)
	}
	return baseHandler{adapter: adapter, logger: logger}
}

func (h baseHandler) requestContext(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	return h.adapter.Attach(ctx)
}

func (h baseHandler) respondJSON(ctx *fasthttp.RequestCtx, status int, payload transport.Envelope) {
	writeJSON(ctx, status, payload)
}

func (h baseHandler) respondSuccess(ctx *fasthttp.RequestCtx, status int, message string, user interface{}) {
	h.respondJSON(ctx, status, transport.NewSuccess(message, user))
}

// respondError maps err to a status and a public message. Anything that is
// not a classified domain error is logged and answered generically.
func (h baseHandler) respondError(stdCtx context.Context, ctx *fasthttp.RequestCtx, err error) {
	status, code := mapError(err)
	log := logger.WithRequestID(stdCtx, h.logger)

	message := internalErrorMessage
	var dErr *domain.Error
	if status == http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("path", string(ctx.Path())),
			zap.Error(err))
	} else if errors.As(err, &dErr) {
		message = dErr.Message
		log.Debug("request rejected", zap.String("code", code), zap.String("reason", message))
	}
	h.respondJSON(ctx, status, transport.NewError(code, message))
}

// decode parses a JSON body. An empty body decodes to the zero value.
func decode(ctx *fasthttp.RequestCtx, dst interface{}) error {
	body := ctx.PostBody()
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return domain.ErrInvalidPayload
	}
	return nil
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, payload transport.Envelope) {
	body, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"success":false,"code":"INTERNAL","message":"internal server error"}`)
	}
	ctx.Response.Header.SetContentType("application/json")
	ctx.Response.Header.Set("Cache-Control", "no-store")
	ctx.SetStatusCode(status)
	ctx.SetBody(body)
}

func mapError(err error) (int, string) {
	switch {
	case domain.IsDomainError(err, domain.ErrCodeInvalid):
		return http.StatusBadRequest, string(domain.ErrCodeInvalid)
	case domain.IsDomainError(err, domain.ErrCodeInvalidToken):
		return http.StatusBadRequest, string(domain.ErrCodeInvalidToken)
	case domain.IsDomainError(err, domain.ErrCodeNotFound):
		return http.StatusNotFound, string(domain.ErrCodeNotFound)
	case domain.IsDomainError(err, domain.ErrCodeForbidden):
		return http.StatusForbidden, string(domain.ErrCodeForbidden)
	case domain.IsDomainError(err, domain.ErrCodeConflict):
		return http.StatusConflict, string(domain.ErrCodeConflict)
	case domain.IsDomainError(err, domain.ErrCodeUnauthorized):
		return http.StatusUnauthorized, string(domain.ErrCodeUnauthorized)
	default:
		return http.StatusInternalServerError, string(domain.ErrCodeInternal)
	}
}
