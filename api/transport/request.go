package transport

// LinkRequest is the body of /auth/login, /auth/register and /auth/magic-link.
type LinkRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type VerifyRequest struct {
	Token string `json:"token"`
}
