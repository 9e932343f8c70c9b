package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/booknestapp/booknest-server/internal/auth"
	"github.com/booknestapp/booknest-server/internal/domain"
	domainerrors "github.com/booknestapp/booknest-server/internal/errors"
)

func (s *Server) registerAuthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "register",
		Method:        http.MethodPost,
		Path:          "/api/v1/auth/register",
		Summary:       "Register new user",
		Description:   "Creates a new account",
		Tags:          []string{"Authentication"},
		DefaultStatus: http.StatusCreated,
		Middlewares:   s.authOperationMiddlewares(),
	}, s.handleRegister)

	huma.Register(s.api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/api/v1/auth/login",
		Summary:     "User login",
		Description: "Authenticates a user and returns an access token",
		Tags:        []string{"Authentication"},
		Middlewares: s.authOperationMiddlewares(),
	}, s.handleLogin)

	huma.Register(s.api, huma.Operation{
		OperationID: "logout",
		Method:      http.MethodPost,
		Path:        "/api/v1/auth/logout",
		Summary:     "Logout",
		Description: "Revokes the access token of the request",
		Tags:        []string{"Authentication"},
		Security:    bearer,
	}, s.handleLogout)

	huma.Register(s.api, huma.Operation{
		OperationID: "getCurrentUser",
		Method:      http.MethodGet,
		Path:        "/api/v1/users/me",
		Summary:     "Current user",
		Description: "Returns the account of the signed-in user",
		Tags:        []string{"Authentication"},
		Security:    bearer,
	}, s.handleGetCurrentUser)
}

// === DTOs ===

// RegisterRequest is the request body for user registration.
type RegisterRequest struct {
	Email       string `json:"email" maxLength:"254" doc:"User email address"`
	Password    string `json:"password" minLength:"8" maxLength:"1024" doc:"User password"`
	DisplayName string `json:"displayName" maxLength:"100" doc:"Name shown to other readers"`
}

// RegisterInput wraps the register request for Huma.
type RegisterInput struct {
	Body RegisterRequest
}

// LoginRequest is the request body for user login.
type LoginRequest struct {
	Email    string `json:"email" maxLength:"254" doc:"User email"`
	Password string `json:"password" maxLength:"1024" doc:"User password"`
}

// LoginInput wraps the login request for Huma.
type LoginInput struct {
	Body LoginRequest
}

// LogoutInput carries the token to revoke.
type LogoutInput struct {
	Authorization string `header:"Authorization" doc:"Bearer access token"`
}

// UserResponse is an account as clients see it.
type UserResponse struct {
	ID          string    `json:"id" doc:"User ID"`
	Email       string    `json:"email" doc:"User email"`
	DisplayName string    `json:"displayName" doc:"Display name"`
	CreatedAt   time.Time `json:"createdAt" doc:"Creation timestamp"`
}

// UserOutput wraps a user for Huma.
type UserOutput struct {
	Body UserResponse
}

// AuthResponse contains the access token and user info.
type AuthResponse struct {
	AccessToken string       `json:"accessToken" doc:"PASETO access token"`
	TokenType   string       `json:"tokenType" doc:"Token type (Bearer)"`
	ExpiresAt   time.Time    `json:"expiresAt" doc:"Token expiry"`
	User        UserResponse `json:"user" doc:"Authenticated user"`
}

// AuthOutput wraps the auth response for Huma.
type AuthOutput struct {
	Body AuthResponse
}

// MessageResponse contains a simple message.
type MessageResponse struct {
	Message string `json:"message" doc:"Success message"`
}

// MessageOutput wraps the message response for Huma.
type MessageOutput struct {
	Body MessageResponse
}

// === Handlers ===

func (s *Server) handleRegister(ctx context.Context, input *RegisterInput) (*UserOutput, error) {
	account, err := s.services.Auth.Register(ctx, auth.RegisterRequest{
		Email:       input.Body.Email,
		Password:    input.Body.Password,
		DisplayName: input.Body.DisplayName,
	})
	if err != nil {
		return nil, err
	}
	return &UserOutput{Body: mapUser(account)}, nil
}

func (s *Server) handleLogin(ctx context.Context, input *LoginInput) (*AuthOutput, error) {
	res, err := s.services.Auth.SignIn(ctx, input.Body.Email, input.Body.Password)
	if err != nil {
		return nil, err
	}
	return &AuthOutput{
		Body: AuthResponse{
			AccessToken: res.Token,
			TokenType:   "Bearer",
			ExpiresAt:   res.ExpiresAt,
			User:        mapUser(res.Account),
		},
	}, nil
}

func (s *Server) handleLogout(ctx context.Context, input *LogoutInput) (*MessageOutput, error) {
	token, ok := strings.CutPrefix(input.Authorization, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return nil, domainerrors.Unauthenticated("authentication required")
	}
	if err := s.services.Auth.SignOut(ctx, strings.TrimSpace(token)); err != nil {
		return nil, err
	}
	return &MessageOutput{Body: MessageResponse{Message: "Logged out successfully"}}, nil
}

func (s *Server) handleGetCurrentUser(ctx context.Context, _ *struct{}) (*UserOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}
	account, err := s.services.Auth.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &UserOutput{Body: mapUser(account)}, nil
}

// === Helpers ===

func mapUser(a *domain.Account) UserResponse {
	return UserResponse{
		ID:          a.ID,
		Email:       a.Email,
		DisplayName: a.DisplayName,
		CreatedAt:   a.CreatedAt,
	}
}
