package services

import (
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"

	"groupchat/auth"
	"groupchat/contract"
	"groupchat/domain"
	"groupchat/errors"
)

type AuthService struct {
	store  contract.IStore
	tokens *auth.TokenIssuer
	log    *slog.Logger
}

// NewAuthService builds the authentication service. A nil issuer disables
// resume tokens.
func NewAuthService(store contract.IStore, tokens *auth.TokenIssuer, log *slog.Logger) *AuthService {
	return &AuthService{store: store, tokens: tokens, log: log}
}

// Register creates the account then authenticates it in the same step.
func (s *AuthService) Register(ctx context.Context, username, password string) (domain.Identity, error) {
	// 1. Validate business rules before any expensive cryptographic operation.
	if err := auth.ValidateRegister(auth.RegisterRequest{Username: username, Password: password}); err != nil {
		return domain.Identity{}, err
	}

	// 2. Persist the user, the store hashes the credential
	userID, err := s.store.CreateUser(ctx, username, password)
	if err != nil {
		return domain.Identity{}, err
	}
	s.log.Info("User registered", "user_id", userID, "username", username)

	// 3. Issue the resume token
	return s.identity(userID, username)
}

func (s *AuthService) Login(ctx context.Context, username, password string) (domain.Identity, error) {
	userID, err := s.store.VerifyCredential(ctx, username, password)
	if goerrors.Is(err, errors.ErrUserNotFound) || goerrors.Is(err, errors.ErrBadCredential) {
		// Generic error to prevent user enumeration attacks
		return domain.Identity{}, errors.ErrInvalidCredentials
	}
	if err != nil {
		return domain.Identity{}, err
	}
	return s.identity(userID, username)
}

// Resume authenticates with a token issued by a previous login. The user must
// still exist.
func (s *AuthService) Resume(ctx context.Context, token string) (domain.Identity, error) {
	if s.tokens == nil || token == "" {
		return domain.Identity{}, errors.ErrInvalidToken
	}
	userID, _, err := s.tokens.ValidateToken(token)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", errors.ErrInvalidToken, err)
	}
	username, err := s.store.Username(ctx, userID)
	if goerrors.Is(err, errors.ErrUserNotFound) {
		return domain.Identity{}, errors.ErrInvalidToken
	}
	if err != nil {
		return domain.Identity{}, err
	}
	return s.identity(userID, username)
}

func (s *AuthService) MarkActive(ctx context.Context, userID domain.UserID, active bool) error {
	return s.store.SetActive(ctx, userID, active)
}

func (s *AuthService) identity(userID domain.UserID, username string) (domain.Identity, error) {
	identity := domain.Identity{UserID: userID, Username: username}
	if s.tokens == nil {
		return identity, nil
	}
	token, err := s.tokens.GenerateToken(userID, username)
	if err != nil {
		s.log.Error("Token generation", "user_id", userID, "error", err)
		return domain.Identity{}, errors.ErrTokenGeneration
	}
	identity.Token = token
	return identity, nil
}
