// Package services contains server-side business logic. UserService issues
// and checks user-identity tokens; MomentService implements the moment
// endpoints.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dmitrijs2005/momentkeeper/internal/api"
	"github.com/dmitrijs2005/momentkeeper/internal/common"
	"github.com/dmitrijs2005/momentkeeper/internal/server/auth"
	"github.com/dmitrijs2005/momentkeeper/internal/server/config"
	"github.com/dmitrijs2005/momentkeeper/internal/server/models"
	"github.com/dmitrijs2005/momentkeeper/internal/server/repositories/repomanager"
)

// UserService registers anonymous users and resolves tokens to users.
type UserService struct {
	db            *sql.DB
	repomanager   repomanager.RepositoryManager
	jwtSecret     []byte
	tokenValidity time.Duration
	now           func() time.Time
}

// NewUserService constructs a UserService using repositories and server config.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *UserService {
	return &UserService{
		db:            db,
		repomanager:   m,
		jwtSecret:     []byte(cfg.SecretKey),
		tokenValidity: cfg.UserTokenValidity,
		now:           time.Now,
	}
}

// Register creates a free-tier user and returns it with a signed token.
func (s *UserService) Register(ctx context.Context) (*models.User, string, error) {
	user := &models.User{
		ID:        ulid.Make().String(),
		Tier:      api.TierFree,
		CreatedAt: s.now().UTC(),
	}
	u, err := s.repomanager.Users(s.db).Create(ctx, user)
	if err != nil {
		return nil, "", fmt.Errorf("error creating user: %w", err)
	}

	token, err := auth.GenerateToken(u.ID, s.jwtSecret, s.tokenValidity)
	if err != nil {
		return nil, "", fmt.Errorf("error generating token: %w", err)
	}
	return u, token, nil
}

// Authenticate returns the user a token was issued to. Bad, expired and
// orphaned tokens all yield common.ErrorUnauthorized.
func (s *UserService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, common.ErrorUnauthorized
	}
	userID, err := auth.GetUserIDFromToken(token, s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorUnauthorized, err)
	}

	u, err := s.repomanager.Users(s.db).Get(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("error loading user: %w", err)
	}
	return u, nil
}

// SetTier changes the access tier of a user.
func (s *UserService) SetTier(ctx context.Context, userID string, tier api.Tier) error {
	if tier != api.TierFree && tier != api.TierPremium {
		return fmt.Errorf("%w: unknown tier %q", common.ErrorValidation, tier)
	}
	return s.repomanager.Users(s.db).SetTier(ctx, userID, tier)
}

// IssueToken mints a fresh token for an existing user.
func (s *UserService) IssueToken(ctx context.Context, userID string) (string, error) {
	if _, err := s.repomanager.Users(s.db).Get(ctx, userID); err != nil {
		return "", err
	}
	return auth.GenerateToken(userID, s.jwtSecret, s.tokenValidity)
}
