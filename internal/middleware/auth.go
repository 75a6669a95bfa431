package middleware

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/passwordless/api/transport"
	"github.com/fastygo/passwordless/domain"
	"github.com/fastygo/passwordless/internal/session"
	"github.com/fastygo/passwordless/pkg/httpcontext"
)

const identityKey = "identity"

// Authenticator validates a raw session credential.
type Authenticator interface {
	Authenticate(raw string) (*domain.Identity, bool)
}

// SessionAuth admits requests carrying a valid session cookie and exposes the
// caller through IdentityFrom. Everything else gets 401.
func SessionAuth(authn Authenticator, cookies session.CookieOptions, logger *zap.Logger) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			raw := cookies.Read(ctx)
			if raw == "" {
				unauthorized(ctx)
				return
			}

			identity, ok := authn.Authenticate(raw)
			if !ok {
				logger.Debug("rejected session credential",
					zap.String("request_id", httpcontext.RequestID(ctx)),
					zap.String("path", string(ctx.Path())))
				unauthorized(ctx)
				return
			}

			ctx.SetUserValue(identityKey, identity)
			next(ctx)
		}
	}
}

// IdentityFrom returns the caller admitted by SessionAuth.
func IdentityFrom(ctx *fasthttp.RequestCtx) (*domain.Identity, bool) {
	identity, ok := ctx.UserValue(identityKey).(*domain.Identity)
	return identity, ok && identity != nil
}

func unauthorized(ctx *fasthttp.RequestCtx) {
	body, _ := json.Marshal(transport.NewError(string(domain.ErrCodeUnauthorized), "authentication required"))
	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(http.StatusUnauthorized)
	ctx.SetBody(body)
}
