package router

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	apiHandler "github.com/fastygo/passwordless/api/handler"
)

type Handlers struct {
	Auth    *apiHandler.AuthHandler
	Profile *apiHandler.ProfileHandler
	Health  *apiHandler.HealthHandler
}

func New(handlers Handlers, authMiddleware func(fasthttp.RequestHandler) fasthttp.RequestHandler) *router.Router {
	r := router.New()

	r.GET("/health", handlers.Health.Check)

	// Auth routes
	r.POST("/auth/login", handlers.Auth.Login)
	r.POST("/auth/register", handlers.Auth.Register)
	r.POST("/auth/magic-link", handlers.Auth.MagicLink)
	r.POST("/auth/verify", handlers.Auth.Verify)
	r.GET("/auth/verify", handlers.Auth.Verify)
	r.POST("/auth/logout", handlers.Auth.Logout)

	// Protected routes
	r.GET("/auth/me", authMiddleware(handlers.Profile.Me))

	return r
}
