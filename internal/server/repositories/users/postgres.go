package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/momentkeeper/internal/api"
	"github.com/dmitrijs2005/momentkeeper/internal/common"
	"github.com/dmitrijs2005/momentkeeper/internal/dbx"
	"github.com/dmitrijs2005/momentkeeper/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {

	query :=
		`INSERT INTO users (id, tier, created_at)
         VALUES ($1, $2, $3)
		 `

	_, err := r.db.ExecContext(ctx, query, user.ID, string(user.Tier), user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.User, error) {
	query :=
		`SELECT id, tier, created_at FROM users
		 WHERE id = $1
		 `

	user := &models.User{}
	var tier string
	err := r.db.QueryRowContext(ctx, query, id).Scan(&user.ID, &tier, &user.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	user.Tier = api.Tier(tier)

	return user, nil
}

func (r *PostgresRepository) SetTier(ctx context.Context, id string, tier api.Tier) error {
	query :=
		`UPDATE users SET tier = $2
		 WHERE id = $1
		 `

	res, err := r.db.ExecContext(ctx, query, id, string(tier))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if err := dbx.ExpectOneRow(res); err != nil {
		if errors.Is(err, dbx.ErrNoRowsAffected) {
			return common.ErrorNotFound
		}
		return err
	}
	return nil
}
