package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/passwordless/api/transport"
	"github.com/fastygo/passwordless/domain"
	"github.com/fastygo/passwordless/internal/middleware"
	"github.com/fastygo/passwordless/pkg/httpcontext"
	profileUC "github.com/fastygo/passwordless/usecase/profile"
)

type ProfileHandler struct {
	baseHandler
	uc *profileUC.UseCase
}

func NewProfileHandler(uc *profileUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
	}
}

// @Summary Current user
// @Tags auth
// @Success 200 {object} transport.Envelope
// @Router /auth/me [get]
func (h *ProfileHandler) Me(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	identity, ok := middleware.IdentityFrom(ctx)
	if !ok {
		h.respondError(stdCtx, ctx, domain.ErrUnauthorized)
		return
	}

	user, err := h.uc.GetProfile(stdCtx, *identity)
	if err != nil {
		h.respondError(stdCtx, ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, "", transport.NewProfile(user))
}
