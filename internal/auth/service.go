package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/booknestapp/booknest-server/internal/docstore"
	"github.com/booknestapp/booknest-server/internal/domain"
	domainerrors "github.com/booknestapp/booknest-server/internal/errors"
	"github.com/booknestapp/booknest-server/internal/id"
	"github.com/booknestapp/booknest-server/internal/logger"
	"github.com/booknestapp/booknest-server/internal/validation"
)

// Store collections owned by the auth service.
const (
	accountsCollection      = "accounts"
	accountEmailsCollection = "accountEmails"
	revokedTokensCollection = "revokedTokens"
)

// RegisterRequest contains account registration data.
type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	Password    string `json:"password" validate:"required,min=8,max=1024"`
	DisplayName string `json:"displayName" validate:"required,max=100"`
}

// SignInResult is returned by a successful sign in.
type SignInResult struct {
	Account   *domain.Account
	Token     string
	ExpiresAt time.Time
}

type emailIndexEntry struct {
	AccountID string `json:"accountId"`
}

type revokedToken struct {
	ExpiresAt time.Time `json:"expiresAt"`
}

// ServiceOptions tunes the Service.
type ServiceOptions struct {
	HashParams HashParams
	Logger     *slog.Logger
}

// Service registers accounts and signs users in and out. Accounts live in
// the document store; passwords are argon2id hashes and sessions are
// stateless access tokens, revocable on sign out.
//
// Service is itself a Session that trusts the identity placed in the context
// by the HTTP auth middleware.
type Service struct {
	ContextSession

	store     *docstore.Store
	tokens    *TokenService
	validator *validation.Validator
	params    HashParams
	logger    *slog.Logger

	// Serializes the email uniqueness check with the account write.
	registerMu sync.Mutex
}

// NewService creates the auth service.
func NewService(store *docstore.Store, tokens *TokenService, v *validation.Validator, opts ServiceOptions) *Service {
	params := opts.HashParams
	if params == (HashParams{}) {
		params = DefaultHashParams
	}
	return &Service{
		store:     store,
		tokens:    tokens,
		validator: v,
		params:    params,
		logger:    logger.OrDiscard(opts.Logger),
	}
}

// Register creates an account. The email must not be in use.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*domain.Account, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	hash, err := HashPassword(req.Password, s.params)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	s.registerMu.Lock()
	defer s.registerMu.Unlock()

	emailRef := s.store.Collection(accountEmailsCollection).Doc(emailKey(req.Email))
	taken, err := emailRef.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if taken {
		return nil, domainerrors.Conflictf("email already in use")
	}

	userID, err := id.Generate("user")
	if err != nil {
		return nil, fmt.Errorf("generate user ID: %w", err)
	}
	account := &domain.Account{
		ID:           userID,
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.store.Collection(accountsCollection).Doc(userID).Set(ctx, account); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	if err := emailRef.Set(ctx, emailIndexEntry{AccountID: userID}); err != nil {
		return nil, fmt.Errorf("index account email: %w", err)
	}

	s.logger.Info("account registered", "user_id", userID)
	return account, nil
}

// SignIn checks the credentials and issues an access token.
func (s *Service) SignIn(ctx context.Context, email, password string) (*SignInResult, error) {
	doc, err := s.store.Collection(accountEmailsCollection).Doc(emailKey(email)).Get(ctx)
	if errors.Is(err, docstore.ErrNotFound) || errors.Is(err, docstore.ErrInvalidPath) {
		// Don't leak whether the email exists.
		return nil, domainerrors.InvalidCredentials("invalid email or password")
	}
	if err != nil {
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	var entry emailIndexEntry
	if err := doc.DataTo(&entry); err != nil {
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	account, err := s.GetAccount(ctx, entry.AccountID)
	if err != nil {
		return nil, err
	}
	if !VerifyPassword(account.PasswordHash, password) {
		return nil, domainerrors.InvalidCredentials("invalid email or password")
	}

	token, expires, err := s.tokens.Issue(account.ID, account.Email)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	s.logger.Info("user signed in", "user_id", account.ID)
	return &SignInResult{Account: account, Token: token, ExpiresAt: expires}, nil
}

// SignOut revokes the access token.
func (s *Service) SignOut(ctx context.Context, token string) error {
	claims, err := s.VerifyToken(ctx, token)
	if err != nil {
		return err
	}
	entry := revokedToken{ExpiresAt: claims.Expiration}
	if err := s.store.Collection(revokedTokensCollection).Doc(claims.TokenID).Set(ctx, entry); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	s.logger.Info("user signed out", "user_id", claims.UserID)
	return nil
}

// VerifyToken validates a token and returns its claims.
func (s *Service) VerifyToken(ctx context.Context, token string) (*Claims, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, domainerrors.Unauthenticated("invalid or expired token").WithCause(err)
	}
	revoked, err := s.store.Collection(revokedTokensCollection).Doc(claims.TokenID).Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check token revocation: %w", err)
	}
	if revoked {
		return nil, domainerrors.Unauthenticated("token has been revoked")
	}
	return claims, nil
}

// GetAccount loads an account by user id.
func (s *Service) GetAccount(ctx context.Context, userID string) (*domain.Account, error) {
	doc, err := s.store.Collection(accountsCollection).Doc(userID).Get(ctx)
	if errors.Is(err, docstore.ErrNotFound) || errors.Is(err, docstore.ErrInvalidPath) {
		return nil, domainerrors.NotFoundf("account %s not found", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	var account domain.Account
	if err := doc.DataTo(&account); err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	account.ID = doc.ID
	return &account, nil
}

// SignInLocal signs in and records the user on session, for embedded
// callers that act as a single signed-in user.
func (s *Service) SignInLocal(ctx context.Context, session *LocalSession, email, password string) (*SignInResult, error) {
	res, err := s.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	session.SetUser(res.Account.ID)
	return res, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// emailKey turns an email into a path-safe document id.
func emailKey(email string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(normalizeEmail(email)))
}
