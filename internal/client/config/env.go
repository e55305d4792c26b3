package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	"github.com/dmitrijs2005/momentkeeper/internal/flagx"
)

const (
	EnvAppToken  = "MOMENTS_APP_TOKEN"
	EnvUserToken = "MOMENTS_USER_TOKEN"
	EnvServerURL = "MOMENTS_SERVER_URL"
)

// defaultEnvFile is read when no -env flag is given; a missing file is not
// an error.
const defaultEnvFile = ".env"

// parseEnv loads a dotenv file into the process environment without
// overriding variables that are already set, then copies the known
// variables into cfg.
func parseEnv(cfg *Config) {
	path := flagx.EnvFilePath(os.Args[1:])
	explicit := path != ""
	if !explicit {
		path = defaultEnvFile
	}

	if err := godotenv.Load(path); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			panic(err)
		}
	}

	if v := os.Getenv(EnvServerURL); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv(EnvAppToken); v != "" {
		cfg.AppToken = v
	}
	if v := os.Getenv(EnvUserToken); v != "" {
		cfg.UserToken = v
	}
}
