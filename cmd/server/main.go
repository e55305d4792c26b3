package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/dmitrijs2005/momentkeeper/internal/api"
	"github.com/dmitrijs2005/momentkeeper/internal/buildinfo"
	"github.com/dmitrijs2005/momentkeeper/internal/logging"
	"github.com/dmitrijs2005/momentkeeper/internal/server"
	"github.com/dmitrijs2005/momentkeeper/internal/server/config"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	cfg := config.LoadConfig(os.Args[1:])

	if err := newCLIApp(cfg).Run(os.Args); err != nil {
		log.Fatalf("%v", err)
	}

}

// newCLIApp builds the command tree. Global flags fill cfg before any
// command action runs.
func newCLIApp(cfg *config.Config) *cli.App {
	app := &cli.App{
		Name:    "server",
		Usage:   "momentkeeper reference service",
		Version: buildinfo.Version(),
		Flags:   config.Flags(cfg),
		Action:  serve(cfg),
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API (default)",
				Action: serve(cfg),
			},
			{
				Name:  "migrate",
				Usage: "Apply database migrations and exit",
				Action: withApp(cfg, func(ctx context.Context, c *cli.Context, app *server.App) error {
					fmt.Fprintln(c.App.Writer, "Database is up to date.")
					return nil
				}),
			},
			{
				Name:  "tier",
				Usage: "Change the access tier of a user",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Required: true, Usage: "user id"},
					&cli.StringFlag{Name: "tier", Required: true, Usage: "free or premium"},
				},
				Action: withApp(cfg, func(ctx context.Context, c *cli.Context, app *server.App) error {
					if err := app.Users().SetTier(ctx, c.String("user"), api.Tier(c.String("tier"))); err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "User %s is now %s.\n", c.String("user"), c.String("tier"))
					return nil
				}),
			},
			{
				Name:  "token",
				Usage: "Issue a new user token",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Required: true, Usage: "user id"},
				},
				Action: withApp(cfg, func(ctx context.Context, c *cli.Context, app *server.App) error {
					token, err := app.Users().IssueToken(ctx, c.String("user"))
					if err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, token)
					return nil
				}),
			},
		},
	}
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

type appAction func(ctx context.Context, c *cli.Context, app *server.App) error

func withApp(cfg *config.Config, fn appAction) cli.ActionFunc {
	return func(c *cli.Context) error {
		ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger := logging.NewJSON(c.App.ErrWriter, cfg.LogLevel)
		app, err := server.NewApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer app.Close()

		return fn(ctx, c, app)
	}
}

func serve(cfg *config.Config) cli.ActionFunc {
	return withApp(cfg, func(ctx context.Context, c *cli.Context, app *server.App) error {
		return app.Run(ctx)
	})
}
