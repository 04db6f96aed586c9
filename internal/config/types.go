package config

import "time"

type Config struct {
	DiscordToken          string
	SpotifyClientID       string
	SpotifyClientSecret   string
	DataDir               string
	CacheDir              string
	DBDriver              string // sqlite/mongo
	MongoURL              string
	MongoDatabase         string
	IdleDisconnect        time.Duration
	BotStatus             string // online/dnd/idle
	RegisterCommandsOnBot bool
	YtdlpAutoInstall      bool
	LogLevel              string
	LogFormat             string // text/json
	LogFile               string
}

const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)
