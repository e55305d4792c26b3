package client

import (
	"context"

	"github.com/dmitrijs2005/momentkeeper/internal/api"
)

// Client executes the wire calls of the moment service.
type Client interface {
	Close() error
	Ping(ctx context.Context) error
	Register(ctx context.Context) (api.RegisterResponse, error)

	CreateMoment(ctx context.Context, req api.CreateMomentRequest) (api.Moment, error)
	EnrichMoment(ctx context.Context, serverID string) (api.Moment, error)
	GetMoment(ctx context.Context, serverID string) (api.Moment, error)
	GetMomentByClientID(ctx context.Context, clientID string) (api.Moment, error)
	UpdateMoment(ctx context.Context, serverID string, isFavorite bool) (api.Moment, error)
	ArchiveMoment(ctx context.Context, serverID string) (api.Moment, error)
	RestoreMoment(ctx context.Context, serverID string) (api.Moment, error)
	PurgeMoments(ctx context.Context) (api.PurgeResponse, error)

	ListMoments(ctx context.Context, cursor string, limit int) (api.Page[api.Moment], error)
	ListTimeline(ctx context.Context, cursor string, limit int) (api.Page[api.TimelineEntry], error)
}
