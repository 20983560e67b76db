package fixture

import "time"

// Error codes returned in ErrorResponse.Code
const (
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeInternalError  = "INTERNAL_ERROR"
	ErrCodeTooLarge       = "PAYLOAD_TOO_LARGE"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// NewErrorResponse creates a new error response
func NewErrorResponse(message, code string) ErrorResponse {
	return ErrorResponse{Error: message, Code: code}
}

// OAuthErrorResponse is the RFC 6749 error body of the token endpoint
type OAuthErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// LoginRequest represents the body of POST /auth/login
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// TokenResponse is returned by login and the token endpoint
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// ItemRequest represents the body of POST /items and PUT /items/:id
type ItemRequest struct {
	Name string                 `json:"name" validate:"required,max=128"`
	Tags []string               `json:"tags,omitempty" validate:"omitempty,max=16,dive,required"`
	Data map[string]interface{} `json:"data,omitempty"`
}

// ItemResponse represents a stored item
type ItemResponse struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Tags      []string               `json:"tags,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Version   int                    `json:"version"`
	Owner     string                 `json:"owner"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// UploadedFile describes one file part received by POST /uploads
type UploadedFile struct {
	Field       string `json:"field"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size"`
}

// UploadResponse is returned by POST /uploads
type UploadResponse struct {
	Files  []UploadedFile    `json:"files"`
	Fields map[string]string `json:"fields,omitempty"`
	Bytes  int64             `json:"bytes"`
}

// RevokeResponse is returned by POST /auth/revoke
type RevokeResponse struct {
	Revoked    bool  `json:"revoked"`
	Generation int64 `json:"generation"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}
