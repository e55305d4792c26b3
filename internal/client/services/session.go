package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/momentkeeper/internal/api"
	"github.com/dmitrijs2005/momentkeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/momentkeeper/internal/client/syncer"
	"github.com/dmitrijs2005/momentkeeper/internal/dbx"
	"github.com/dmitrijs2005/momentkeeper/internal/logging"
)

// ErrAlreadyRegistered is returned by Register when a user token is set.
var ErrAlreadyRegistered = errors.New("already registered")

// SessionClient is the part of the remote client the session needs.
type SessionClient interface {
	Ping(ctx context.Context) error
	Register(ctx context.Context) (api.RegisterResponse, error)
	SetUserToken(token string)
	UserToken() string
}

// Sweeper runs a batch reconciliation.
type Sweeper interface {
	SyncAll(ctx context.Context) (syncer.SweepResult, error)
}

// LocalData is local state wiped on logout.
type LocalData interface {
	Clear(ctx context.Context) error
}

// Session describes the current user as known locally.
type Session struct {
	UserID    string
	Tier      api.Tier
	LastSweep time.Time
	Online    bool
}

// SessionService handles anonymous registration, the stored user token and
// connectivity tracking.
type SessionService struct {
	client  SessionClient
	db      *sql.DB
	sweeper Sweeper
	local   LocalData
	log     logging.Logger
	now     func() time.Time

	online atomic.Bool
}

func NewSessionService(c SessionClient, db *sql.DB, sweeper Sweeper, local LocalData, log logging.Logger) *SessionService {
	return &SessionService{
		client:  c,
		db:      db,
		sweeper: sweeper,
		local:   local,
		log:     log.With("module", "session"),
		now:     time.Now,
	}
}

func (s *SessionService) getMetadataRepo() metadata.Repository {
	return metadata.NewSQLiteRepository(s.db)
}

// Resume loads the stored user token when none was configured. It reports
// whether the client has a user token afterwards.
func (s *SessionService) Resume(ctx context.Context) (bool, error) {
	if s.client.UserToken() != "" {
		return true, nil
	}
	token, err := metadata.GetString(ctx, s.getMetadataRepo(), metadata.KeyUserToken)
	if err != nil {
		return false, err
	}
	if token == "" {
		return false, nil
	}
	s.client.SetUserToken(token)
	return true, nil
}

// Register creates an anonymous user on the server and stores its token.
func (s *SessionService) Register(ctx context.Context) (api.RegisterResponse, error) {
	if s.client.UserToken() != "" {
		return api.RegisterResponse{}, ErrAlreadyRegistered
	}

	resp, err := s.client.Register(ctx)
	if err != nil {
		return api.RegisterResponse{}, fmt.Errorf("register error: %w", err)
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return metadata.SetStrings(ctx, metadata.NewSQLiteRepository(tx), map[string]string{
			metadata.KeyUserToken: resp.Token,
			metadata.KeyUserID:    resp.UserID,
			metadata.KeyTier:      string(resp.Tier),
		})
	})
	if err != nil {
		return api.RegisterResponse{}, fmt.Errorf("session saving error: %w", err)
	}

	s.client.SetUserToken(resp.Token)
	s.log.Info(ctx, "registered", "user_id", resp.UserID, "tier", resp.Tier)
	return resp, nil
}

// Current returns what is stored about the session.
func (s *SessionService) Current(ctx context.Context) (Session, error) {
	values, err := s.getMetadataRepo().List(ctx)
	if err != nil {
		return Session{}, err
	}
	sess := Session{
		UserID: string(values[metadata.KeyUserID]),
		Tier:   api.Tier(values[metadata.KeyTier]),
		Online: s.Online(),
	}
	if raw := values[metadata.KeyLastSweep]; len(raw) > 0 {
		if t, err := time.Parse(time.RFC3339Nano, string(raw)); err == nil {
			sess.LastSweep = t
		}
	}
	return sess, nil
}

// Ping checks server liveness and updates the online flag.
func (s *SessionService) Ping(ctx context.Context) error {
	err := s.client.Ping(ctx)
	s.online.Store(err == nil)
	return err
}

func (s *SessionService) Online() bool {
	return s.online.Load()
}

// ClearOfflineData wipes the stored session and every local moment.
func (s *SessionService) ClearOfflineData(ctx context.Context) error {
	if err := s.getMetadataRepo().Clear(ctx); err != nil {
		return err
	}
	if err := s.local.Clear(ctx); err != nil {
		return err
	}
	s.client.SetUserToken("")
	return nil
}

// Sweep runs a batch reconciliation and records when it finished.
func (s *SessionService) Sweep(ctx context.Context) (syncer.SweepResult, error) {
	res, err := s.sweeper.SyncAll(ctx)
	if err != nil {
		return res, err
	}
	stamp := s.now().UTC().Format(time.RFC3339Nano)
	if err := s.getMetadataRepo().Set(ctx, metadata.KeyLastSweep, []byte(stamp)); err != nil {
		s.log.Warn(ctx, "failed to store sweep time", "error", err)
	}
	return res, nil
}

// DefaultCheckInterval is the interval between reachability checks used when none is
// configured.
const DefaultCheckInterval = 3 * time.Second

// Watch pings the server every checkEvery and sweeps when the client goes
// from offline to online, and every syncEvery while online. A zero
// syncEvery disables periodic sweeps; a checkEvery of zero or less means
// DefaultCheckInterval. Watch returns when ctx is done.
func (s *SessionService) Watch(ctx context.Context, checkEvery, syncEvery time.Duration) {
	if checkEvery <= 0 {
		checkEvery = DefaultCheckInterval
	}
	check := time.NewTicker(checkEvery)
	defer check.Stop()

	var periodic <-chan time.Time
	if syncEvery > 0 {
		t := time.NewTicker(syncEvery)
		defer t.Stop()
		periodic = t.C
	}

	s.checkOnline(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-check.C:
			s.checkOnline(ctx)
		case <-periodic:
			if s.Online() {
				s.sweep(ctx, "periodic")
			}
		}
	}
}

func (s *SessionService) checkOnline(ctx context.Context) {
	was := s.Online()
	err := s.Ping(ctx)
	if ctx.Err() != nil {
		return
	}
	now := err == nil
	switch {
	case !was && now:
		s.log.Info(ctx, "server is reachable")
		if s.client.UserToken() != "" {
			s.sweep(ctx, "reconnect")
		}
	case was && !now:
		s.log.Warn(ctx, "server is unreachable", "error", err)
	}
}

func (s *SessionService) sweep(ctx context.Context, reason string) {
	res, err := s.Sweep(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.log.Warn(ctx, "sweep failed", "reason", reason, "error", err)
		}
		return
	}
	s.log.Debug(ctx, "sweep done", "reason", reason, "attempted", res.Attempted, "failed", res.Failed)
}
