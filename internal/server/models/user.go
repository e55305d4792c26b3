// Package models holds the server-side domain types.
package models

import (
	"time"

	"github.com/dmitrijs2005/momentkeeper/internal/api"
)

type User struct {
	ID        string
	Tier      api.Tier
	CreatedAt time.Time
}
