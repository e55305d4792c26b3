package users

import (
	"context"

	"github.com/dmitrijs2005/momentkeeper/internal/api"
	"github.com/dmitrijs2005/momentkeeper/internal/server/models"
)

// Repository stores users. Lookups of unknown ids return
// common.ErrorNotFound.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	Get(ctx context.Context, id string) (*models.User, error)
	SetTier(ctx context.Context, id string, tier api.Tier) error
}
