package handler_test

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	apiHandler "github.com/fastygo/passwordless/api/handler"
	"github.com/fastygo/passwordless/domain"
	"github.com/fastygo/passwordless/internal/infrastructure/monitor"
	"github.com/fastygo/passwordless/internal/magiclink"
	"github.com/fastygo/passwordless/internal/middleware"
	"github.com/fastygo/passwordless/internal/router"
	"github.com/fastygo/passwordless/internal/session"
	"github.com/fastygo/passwordless/pkg/clock"
	"github.com/fastygo/passwordless/pkg/httpcontext"
	"github.com/fastygo/passwordless/repository"
	"github.com/fastygo/passwordless/repository/memory"
	authUC "github.com/fastygo/passwordless/usecase/auth"
	profileUC "github.com/fastygo/passwordless/usecase/profile"
)

type linkMailer struct {
	mu    sync.Mutex
	links []string
	err   error
}

func (m *linkMailer) SendMagicLink(_ context.Context, _, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.links = append(m.links, link)
	return nil
}

func (m *linkMailer) lastToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.links)
	u, err := url.Parse(m.links[len(m.links)-1])
	require.NoError(t, err)
	return u.Query().Get("token")
}

type staticStatus monitor.Status

func (s staticStatus) GetStatus() monitor.Status { return monitor.Status(s) }

type app struct {
	handler  fasthttp.RequestHandler
	users    repository.UserRepository
	mailer   *linkMailer
	clock    *clock.Manual
	sessions *session.Issuer
}

func newApp(t *testing.T) *app {
	t.Helper()
	clk := clock.NewManual(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	opts := session.Options{Secret: []byte("an-http-test-secret-of-32-bytes!"), Issuer: "test", Clock: clk}
	issuer, err := session.NewIssuer(opts)
	require.NoError(t, err)
	authn, err := session.NewAuthenticator(opts)
	require.NoError(t, err)

	users := memory.NewUserRepository()
	mailer := &linkMailer{}
	adapter := httpcontext.NewAdapter(time.Second)
	cookies := session.CookieOptions{}

	auth := authUC.New(users, magiclink.NewIssuer(15*time.Minute, clk), issuer, mailer, clk,
		authUC.Config{BaseURL: "https://journal.example.com", DefaultQuota: domain.Quota{AnalysisLimit: 3}}, nil)

	r := router.New(router.Handlers{
		Auth:    apiHandler.NewAuthHandler(auth, cookies, adapter, nil),
		Profile: apiHandler.NewProfileHandler(profileUC.New(users, nil), adapter, nil),
		Health:  apiHandler.NewHealthHandler(staticStatus{Healthy: true}, adapter, nil),
	}, middleware.SessionAuth(authn, cookies, nil))

	return &app{handler: r.Handler, users: users, mailer: mailer, clock: clk, sessions: issuer}
}

type response struct {
	status int
	body   map[string]interface{}
	cookie *fasthttp.Cookie
	raw    *fasthttp.Response
}

func (a *app) do(t *testing.T, method, uri, body, cookie string) response {
	t.Helper()
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.Header.SetMethod(method)
	req.SetRequestURI(uri)
	if body != "" {
		req.Header.SetContentType("application/json")
		req.SetBodyString(body)
	}
	if cookie != "" {
		req.Header.SetCookie(session.DefaultCookieName, cookie)
	}

	var ctx fasthttp.RequestCtx
	ctx.Init(req, nil, nil)
	a.handler(&ctx)

	out := response{status: ctx.Response.StatusCode(), raw: &fasthttp.Response{}}
	ctx.Response.CopyTo(out.raw)
	if len(ctx.Response.Body()) > 0 {
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &out.body), string(ctx.Response.Body()))
	}
	c := &fasthttp.Cookie{}
	c.SetKey(session.DefaultCookieName)
	if ctx.Response.Header.Cookie(c) {
		out.cookie = c
	}
	return out
}

func (a *app) seed(t *testing.T, email string, active bool) {
	t.Helper()
	now := a.clock.Now()
	require.NoError(t, a.users.Create(context.Background(), &domain.User{
		ID: "id-" + email, Email: email, Name: "Seeded", IsActive: active, CreatedAt: now, UpdatedAt: now,
	}))
}

func userField(t *testing.T, r response, key string) interface{} {
	t.Helper()
	user, ok := r.body["user"].(map[string]interface{})
	require.True(t, ok, "response has no user: %v", r.body)
	return user[key]
}

func TestRegisterVerifyMeLogout(t *testing.T) {
	a := newApp(t)

	res := a.do(t, "POST", "/auth/register", `{"email":" Writer@Example.com ","name":"Writer"}`, "")
	require.Equal(t, fasthttp.StatusCreated, res.status, res.body)
	assert.Equal(t, true, res.body["success"])
	assert.Equal(t, "writer@example.com", userField(t, res, "email"))
	assert.NotContains(t, string(res.raw.Body()), a.mailer.lastToken(t), "the token never appears in responses")

	token := a.mailer.lastToken(t)
	res = a.do(t, "GET", "/auth/verify?token="+url.QueryEscape(token), "", "")
	require.Equal(t, fasthttp.StatusOK, res.status, res.body)
	assert.Equal(t, "writer@example.com", userField(t, res, "email"))
	assert.Equal(t, true, userField(t, res, "isActive"))

	require.NotNil(t, res.cookie)
	assert.True(t, res.cookie.HTTPOnly())
	assert.Equal(t, fasthttp.CookieSameSiteLaxMode, res.cookie.SameSite())
	assert.Equal(t, "/", string(res.cookie.Path()))
	assert.Empty(t, res.cookie.Domain())
	assert.Equal(t, 7*24*3600, res.cookie.MaxAge())
	credential := string(res.cookie.Value())
	require.NotEmpty(t, credential)

	res = a.do(t, "GET", "/auth/me", "", credential)
	require.Equal(t, fasthttp.StatusOK, res.status, res.body)
	assert.Equal(t, "writer@example.com", userField(t, res, "email"))
	assert.Equal(t, "Writer", userField(t, res, "name"))
	assert.NotNil(t, userField(t, res, "lastLoginAt"))

	res = a.do(t, "POST", "/auth/verify", `{"token":"`+token+`"}`, "")
	assert.Equal(t, fasthttp.StatusBadRequest, res.status)
	assert.Equal(t, "INVALID_OR_EXPIRED_TOKEN", res.body["code"])
	assert.Nil(t, res.cookie)

	res = a.do(t, "POST", "/auth/logout", "", credential)
	assert.Equal(t, fasthttp.StatusOK, res.status)
	require.NotNil(t, res.cookie)
	assert.Empty(t, res.cookie.Value())
	assert.True(t, res.cookie.Expire().Before(time.Now()))
}

func TestLinkEndpointsReturnQuota(t *testing.T) {
	a := newApp(t)

	quotaOf := func(r response) map[string]interface{} {
		t.Helper()
		q, ok := userField(t, r, "quota").(map[string]interface{})
		require.True(t, ok, "user has no quota: %v", r.body)
		return q
	}

	res := a.do(t, "POST", "/auth/register", `{"email":"writer@example.com","name":"Writer"}`, "")
	require.Equal(t, fasthttp.StatusCreated, res.status, res.body)
	assert.Equal(t, float64(3), quotaOf(res)["analysisLimit"])
	assert.Equal(t, float64(0), quotaOf(res)["analysisUsed"])

	res = a.do(t, "POST", "/auth/login", `{"email":"writer@example.com"}`, "")
	require.Equal(t, fasthttp.StatusOK, res.status, res.body)
	assert.Equal(t, "writer@example.com", userField(t, res, "email"))
	assert.Equal(t, float64(3), quotaOf(res)["analysisLimit"])

	res = a.do(t, "POST", "/auth/magic-link", `{"email":"new@example.com"}`, "")
	require.Equal(t, fasthttp.StatusOK, res.status, res.body)
	assert.Equal(t, float64(3), quotaOf(res)["analysisLimit"])
	assert.NotContains(t, string(res.raw.Body()), a.mailer.lastToken(t))
}

func TestReplacedLinkAndSingleUse(t *testing.T) {
	a := newApp(t)
	a.seed(t, "user@example.com", true)

	res := a.do(t, "POST", "/auth/login", `{"email":"User@Example.com"}`, "")
	require.Equal(t, fasthttp.StatusOK, res.status)
	t1 := a.mailer.lastToken(t)

	res = a.do(t, "POST", "/auth/login", `{"email":"user@example.com"}`, "")
	require.Equal(t, fasthttp.StatusOK, res.status)
	t2 := a.mailer.lastToken(t)

	res = a.do(t, "POST", "/auth/verify", `{"token":"`+t1+`"}`, "")
	assert.Equal(t, fasthttp.StatusBadRequest, res.status)
	assert.Equal(t, "INVALID_OR_EXPIRED_TOKEN", res.body["code"])

	res = a.do(t, "POST", "/auth/verify", `{"token":"`+t2+`"}`, "")
	require.Equal(t, fasthttp.StatusOK, res.status)
	assert.Equal(t, "user@example.com", userField(t, res, "email"))
	require.NotNil(t, res.cookie)

	res = a.do(t, "POST", "/auth/verify", `{"token":"`+t2+`"}`, "")
	assert.Equal(t, fasthttp.StatusBadRequest, res.status)
}

func TestExpiredLink(t *testing.T) {
	a := newApp(t)
	a.seed(t, "user@example.com", true)

	a.do(t, "POST", "/auth/magic-link", `{"email":"user@example.com"}`, "")
	token := a.mailer.lastToken(t)

	a.clock.Advance(15 * time.Minute)
	res := a.do(t, "POST", "/auth/verify", `{"token":"`+token+`"}`, "")
	assert.Equal(t, fasthttp.StatusBadRequest, res.status)
	assert.Equal(t, "INVALID_OR_EXPIRED_TOKEN", res.body["code"])
}

func TestSessionExpires(t *testing.T) {
	a := newApp(t)
	a.do(t, "POST", "/auth/magic-link", `{"email":"new@example.com","name":"New"}`, "")
	res := a.do(t, "POST", "/auth/verify", `{"token":"`+a.mailer.lastToken(t)+`"}`, "")
	require.NotNil(t, res.cookie)
	credential := string(res.cookie.Value())

	a.clock.Advance(7*24*time.Hour - time.Second)
	assert.Equal(t, fasthttp.StatusOK, a.do(t, "GET", "/auth/me", "", credential).status)

	a.clock.Advance(time.Second)
	assert.Equal(t, fasthttp.StatusUnauthorized, a.do(t, "GET", "/auth/me", "", credential).status)
}

func TestErrorResponses(t *testing.T) {
	a := newApp(t)
	a.seed(t, "taken@example.com", true)
	a.seed(t, "off@example.com", false)

	cases := []struct {
		title   string
		method  string
		uri     string
		body    string
		cookie  string
		expCode int
		expErr  string
	}{
		{title: "malformed-json", method: "POST", uri: "/auth/login", body: `{"email":`, expCode: 400, expErr: "INVALID"},
		{title: "empty-email", method: "POST", uri: "/auth/login", body: `{"email":""}`, expCode: 400, expErr: "INVALID"},
		{title: "bad-email", method: "POST", uri: "/auth/magic-link", body: `{"email":"nope"}`, expCode: 400, expErr: "INVALID"},
		{title: "unknown-login", method: "POST", uri: "/auth/login", body: `{"email":"ghost@example.com"}`, expCode: 404, expErr: "NOT_FOUND"},
		{title: "inactive-login", method: "POST", uri: "/auth/login", body: `{"email":"off@example.com"}`, expCode: 403, expErr: "FORBIDDEN"},
		{title: "inactive-magic-link", method: "POST", uri: "/auth/magic-link", body: `{"email":"off@example.com"}`, expCode: 403, expErr: "FORBIDDEN"},
		{title: "duplicate-register", method: "POST", uri: "/auth/register", body: `{"email":"TAKEN@example.com ","name":"x"}`, expCode: 409, expErr: "CONFLICT"},
		{title: "verify-without-token", method: "POST", uri: "/auth/verify", body: `{}`, expCode: 400, expErr: "INVALID"},
		{title: "verify-get-without-token", method: "GET", uri: "/auth/verify", expCode: 400, expErr: "INVALID"},
		{title: "verify-unknown-token", method: "POST", uri: "/auth/verify", body: `{"token":"abc"}`, expCode: 400, expErr: "INVALID_OR_EXPIRED_TOKEN"},
		{title: "me-without-cookie", method: "GET", uri: "/auth/me", expCode: 401, expErr: "UNAUTHORIZED"},
		{title: "me-with-garbage", method: "GET", uri: "/auth/me", cookie: "not.a.jwt", expCode: 401, expErr: "UNAUTHORIZED"},
	}

	for _, c := range cases {
		t.Run(c.title, func(t *testing.T) {
			res := a.do(t, c.method, c.uri, c.body, c.cookie)
			assert.Equal(t, c.expCode, res.status, res.body)
			assert.Equal(t, c.expErr, res.body["code"])
			assert.Equal(t, false, res.body["success"])
			assert.NotEmpty(t, res.body["message"])
		})
	}
}

func TestInternalErrorsAreOpaque(t *testing.T) {
	a := newApp(t)
	a.seed(t, "user@example.com", true)
	a.mailer.err = errors.New("dial tcp 10.0.0.7:587: connection refused")

	res := a.do(t, "POST", "/auth/login", `{"email":"user@example.com"}`, "")
	assert.Equal(t, fasthttp.StatusInternalServerError, res.status)
	assert.Equal(t, "INTERNAL", res.body["code"])
	assert.Equal(t, "internal server error", res.body["message"])
	assert.False(t, strings.Contains(string(res.raw.Body()), "10.0.0.7"))
	assert.NotEmpty(t, res.raw.Header.Peek(httpcontext.HeaderRequestID))
}

func TestMeForMissingAccount(t *testing.T) {
	a := newApp(t)
	s, err := a.sessions.Mint(domain.Identity{ID: "removed-user", Email: "gone@example.com"})
	require.NoError(t, err)

	res := a.do(t, "GET", "/auth/me", "", s.Token)
	assert.Equal(t, fasthttp.StatusUnauthorized, res.status)
	assert.Equal(t, "UNAUTHORIZED", res.body["code"])
}

func TestHealth(t *testing.T) {
	a := newApp(t)
	res := a.do(t, "GET", "/health", "", "")
	assert.Equal(t, fasthttp.StatusOK, res.status)
	assert.Equal(t, true, res.body["success"])

	degraded := apiHandler.NewHealthHandler(staticStatus{Components: map[string]monitor.ComponentStatus{
		"directory": {Online: false, Critical: true, Error: "down"},
	}}, nil, nil)
	var ctx fasthttp.RequestCtx
	degraded.Check(&ctx)
	assert.Equal(t, fasthttp.StatusServiceUnavailable, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), `"DEGRADED"`)
}
