package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/momentkeeper/internal/client/client"
	"github.com/dmitrijs2005/momentkeeper/internal/client/config"
	"github.com/dmitrijs2005/momentkeeper/internal/client/repositories/moments"
	"github.com/dmitrijs2005/momentkeeper/internal/client/services"
	"github.com/dmitrijs2005/momentkeeper/internal/client/syncer"
	"github.com/dmitrijs2005/momentkeeper/internal/filex"
	"github.com/dmitrijs2005/momentkeeper/internal/logging"
)

type App struct {
	config  *config.Config
	log     logging.Logger
	db      *sql.DB
	remote  *client.HTTPClient
	moments *services.MomentService
	session *services.SessionService
	reader  *bufio.Reader
	out     io.Writer
}

// NewApp opens the local database and wires the client services.
func NewApp(ctx context.Context, c *config.Config, log logging.Logger) (*App, error) {
	if c.DBPath != ":memory:" {
		if _, err := filex.EnsureParentDir(c.DBPath); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := client.InitDatabase(ctx, c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	remote, err := client.NewHTTPClient(c.ServerURL, c.AppToken, c.UserToken, c.RequestTimeout, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	repo := moments.NewRepository(db, log)
	engine := syncer.New(remote, repo, log,
		syncer.WithPolicy(c.Policy()),
		syncer.WithPollPolicy(c.PollPolicy()),
		syncer.WithConcurrency(c.SweepConcurrency),
	)
	ms := services.NewMomentService(repo, engine, remote, c.PageSize, log)
	ss := services.NewSessionService(remote, db, ms, repo, log)

	if _, err := ss.Resume(ctx); err != nil {
		ms.Close()
		_ = remote.Close()
		_ = db.Close()
		return nil, err
	}

	return &App{
		config:  c,
		log:     log,
		db:      db,
		remote:  remote,
		moments: ms,
		session: ss,
		reader:  bufio.NewReader(os.Stdin),
		out:     os.Stdout,
	}, nil
}

// Run starts the connectivity watcher and the REPL, and blocks until the
// user exits or ctx is done.
func (a *App) Run(ctx context.Context) {
	defer a.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.session.Watch(ctx, a.config.OnlineCheckInterval, a.config.SyncInterval)

	prompt := func() string { return "" }
	if interactive() {
		printlnFn("Welcome to momentkeeper (type 'help' for commands)")
		prompt = func() string { return fmt.Sprintf("mk %s> ", a.getStatus()) }
	}

	runREPL(ctx, a, prompt, a.reader)
}

// Close stops background work and releases resources.
func (a *App) Close() {
	a.moments.Close()
	_ = a.remote.Close()
	_ = a.db.Close()
}

func (a *App) isRegistered() bool {
	return a.remote.UserToken() != ""
}

func (a *App) getStatus() string {
	mode := "offline"
	if a.session.Online() {
		mode = "online"
	}
	if !a.isRegistered() {
		mode += ", not registered"
	}
	return "(" + mode + ")"
}
