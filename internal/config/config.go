package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

const DefaultIdleDisconnect = 5 * time.Minute

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func getduration(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, ErrConfig(key + " must be a positive duration such as 5m")
	}
	return d, nil
}

// LoadConfig reads the environment, after merging a .env file from the
// working directory when one exists. Variables already set win over .env.
func LoadConfig() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.ensureDirs(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadToolConfig is LoadConfig for the offline cache commands, which do not
// connect to Discord and so do not need a token.
func LoadToolConfig() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if err := cfg.validateLocal(); err != nil {
		return nil, err
	}
	if err := cfg.ensureDirs(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	dataDir := getenv("DATA_DIR", "./data")
	idle, err := getduration("IDLE_DISCONNECT", DefaultIdleDisconnect)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DiscordToken:          os.Getenv("DISCORD_TOKEN"),
		SpotifyClientID:       os.Getenv("SPOTIFY_CLIENT_ID"),
		SpotifyClientSecret:   os.Getenv("SPOTIFY_CLIENT_SECRET"),
		DataDir:               dataDir,
		CacheDir:              filepath.Join(dataDir, "cache"),
		DBDriver:              getenv("DB_DRIVER", DriverSQLite),
		MongoURL:              os.Getenv("MONGO_URL"),
		MongoDatabase:         getenv("MONGO_DATABASE", "papa_klement"),
		IdleDisconnect:        idle,
		BotStatus:             getenv("BOT_STATUS", "online"),
		RegisterCommandsOnBot: getenv("REGISTER_COMMANDS_ON_BOT", "false") == "true",
		YtdlpAutoInstall:      getenv("YTDLP_AUTO_INSTALL", "false") == "true",
		LogLevel:              getenv("LOG_LEVEL", "info"),
		LogFormat:             getenv("LOG_FORMAT", "text"),
		LogFile:               os.Getenv("LOG_FILE"),
	}

	return cfg, nil
}

func (c *Config) ensureDirs() error {
	for _, dir := range []string{c.DataDir, c.CacheDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return ErrConfig("cannot create " + dir + ": " + err.Error())
		}
	}
	return nil
}

func (c *Config) Validate() error {
	if c.DiscordToken == "" {
		return ErrConfig("DISCORD_TOKEN required")
	}
	return c.validateLocal()
}

func (c *Config) validateLocal() error {
	switch c.DBDriver {
	case DriverSQLite:
	case DriverMongo:
		if c.MongoURL == "" {
			return ErrConfig("MONGO_URL required when DB_DRIVER=mongo")
		}
	default:
		return ErrConfig("DB_DRIVER must be sqlite or mongo")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return ErrConfig("LOG_FORMAT must be text or json")
	}
	return nil
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
