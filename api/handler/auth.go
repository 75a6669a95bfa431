package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/passwordless/api/transport"
	"github.com/fastygo/passwordless/internal/session"
	"github.com/fastygo/passwordless/pkg/httpcontext"
	authUC "github.com/fastygo/passwordless/usecase/auth"
)

type AuthHandler struct {
	baseHandler
	uc      *authUC.UseCase
	cookies session.CookieOptions
}

func NewAuthHandler(uc *authUC.UseCase, cookies session.CookieOptions, adapter *httpcontext.Adapter, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
		cookies:     cookies,
	}
}

// @Summary Send a sign-in link to an existing account
// @Tags auth
// @Router /auth/login [post]
func (h *AuthHandler) Login(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	var req transport.LinkRequest
	if err := decode(ctx, &req); err != nil {
		h.respondError(stdCtx, ctx, err)
		return
	}

	user, err := h.uc.RequestLogin(stdCtx, authUC.LinkRequest{Email: req.Email})
	if err != nil {
		h.respondError(stdCtx, ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, "Magic link sent to your email", transport.NewAccountSummary(user))
}

// @Summary Create an account and send its first sign-in link
// @Tags auth
// @Router /auth/register [post]
func (h *AuthHandler) Register(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	var req transport.LinkRequest
	if err := decode(ctx, &req); err != nil {
		h.respondError(stdCtx, ctx, err)
		return
	}

	user, err := h.uc.Register(stdCtx, authUC.LinkRequest{Email: req.Email, Name: req.Name})
	if err != nil {
		h.respondError(stdCtx, ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, "Registration successful, check your email to sign in", transport.NewAccountSummary(user))
}

// @Summary Send a sign-in link, creating the account on first use
// @Tags auth
// @Router /auth/magic-link [post]
func (h *AuthHandler) MagicLink(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	var req transport.LinkRequest
	if err := decode(ctx, &req); err != nil {
		h.respondError(stdCtx, ctx, err)
		return
	}

	user, _, err := h.uc.SendMagicLink(stdCtx, authUC.LinkRequest{Email: req.Email, Name: req.Name})
	if err != nil {
		h.respondError(stdCtx, ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, "Magic link sent to your email", transport.NewAccountSummary(user))
}

// @Summary Redeem a sign-in link and open a session
// @Tags auth
// @Router /auth/verify [post]
// @Router /auth/verify [get]
func (h *AuthHandler) Verify(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	var req transport.VerifyRequest
	if ctx.IsGet() {
		req.Token = string(ctx.QueryArgs().Peek("token"))
	} else if err := decode(ctx, &req); err != nil {
		h.respondError(stdCtx, ctx, err)
		return
	}

	s, err := h.uc.Redeem(stdCtx, req.Token)
	if err != nil {
		h.respondError(stdCtx, ctx, err)
		return
	}

	h.cookies.SetCookie(ctx, s)
	h.respondSuccess(ctx, http.StatusOK, "Signed in", transport.NewIdentitySummary(s.Identity))
}

// @Summary Close the session on this client
// @Tags auth
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(ctx *fasthttp.RequestCtx) {
	h.cookies.ClearCookie(ctx)
	h.respondSuccess(ctx, http.StatusOK, "Signed out", nil)
}
