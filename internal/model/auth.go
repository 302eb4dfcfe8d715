package model

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Username         string `json:"username"`
	Password         string `json:"password"`
	RegistrationCode string `json:"registration_code"`
}

// TokenResponse carries the access token returned by the auth endpoints.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Identity is the payload of GET /me used to validate a stored credential.
type Identity struct {
	Subject string `json:"sub"`
	IsAdmin bool   `json:"is_admin"`
}
