package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/momentkeeper/internal/flagx"
)

var ownFlags = []string{"-a", "-db", "-i", "-s", "-w", "-page", "-log"}

// parseFlags populates selected Config fields from command-line flags.
//
//	-a string   server base URL
//	-db string  path of the local database
//	-i int      online check interval (seconds)
//	-s int      periodic sync interval (seconds, 0 disables)
//	-w int      sweep concurrency (1-8)
//	-page int   page size (1-100)
//	-log string log level
//
// Tokens are never taken from flags so they do not show up in process
// listings.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], ownFlags)

	fs := flagx.NewFlagSet("client")
	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "server base URL")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "local database path")
	onlineCheck := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	syncEvery := fs.Int("s", int(cfg.SyncInterval.Seconds()), "periodic sync interval (in seconds)")
	fs.IntVar(&cfg.SweepConcurrency, "w", cfg.SweepConcurrency, "sweep concurrency")
	fs.IntVar(&cfg.PageSize, "page", cfg.PageSize, "page size")
	fs.StringVar(&cfg.LogLevel, "log", cfg.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	// intervals are whole seconds on the command line; keep finer values
	// from JSON unless the flag was given
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "i":
			cfg.OnlineCheckInterval = time.Duration(*onlineCheck) * time.Second
		case "s":
			cfg.SyncInterval = time.Duration(*syncEvery) * time.Second
		}
	})
}
