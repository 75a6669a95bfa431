package session

import (
	"github.com/valyala/fasthttp"

	"github.com/fastygo/passwordless/domain"
)

// DefaultCookieName is the cookie carrying the credential.
const DefaultCookieName = "auth-token"

// CookieOptions describe how the credential travels.
type CookieOptions struct {
	Name string
	// Secure forces the Secure attribute; TLS requests get it regardless.
	Secure bool
}

func (o CookieOptions) name() string {
	if o.Name == "" {
		return DefaultCookieName
	}
	return o.Name
}

// SetCookie writes the session cookie: host-only, HttpOnly, SameSite=Lax,
// Secure over TLS, Max-Age equal to the credential's validity window.
func (o CookieOptions) SetCookie(ctx *fasthttp.RequestCtx, s *domain.Session) {
	c := o.base(ctx)
	defer fasthttp.ReleaseCookie(c)

	c.SetValue(s.Token)
	c.SetMaxAge(s.MaxAge())
	ctx.Response.Header.SetCookie(c)
}

// ClearCookie expires the session cookie on the client.
func (o CookieOptions) ClearCookie(ctx *fasthttp.RequestCtx) {
	c := o.base(ctx)
	defer fasthttp.ReleaseCookie(c)

	c.SetValue("")
	c.SetExpire(fasthttp.CookieExpireDelete)
	ctx.Response.Header.SetCookie(c)
}

// Read returns the raw credential from the request cookie.
func (o CookieOptions) Read(ctx *fasthttp.RequestCtx) string {
	return string(ctx.Request.Header.Cookie(o.name()))
}

func (o CookieOptions) base(ctx *fasthttp.RequestCtx) *fasthttp.Cookie {
	c := fasthttp.AcquireCookie()
	c.SetKey(o.name())
	c.SetPath("/")
	c.SetHTTPOnly(true)
	c.SetSameSite(fasthttp.CookieSameSiteLaxMode)
	c.SetSecure(o.Secure || ctx.IsTLS())
	return c
}
