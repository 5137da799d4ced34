package config

import (
	"errors"
	"os"
	"strconv"
)

type Config struct {
	Port                  string
	DatabaseDSN           string
	JWTSecret             string
	Env                   string
	AccessTokenTTLMinutes int
	RefreshTokenTTLDays   int
	DefaultTenant         string
	HistoryLimit          int
	MaxMessageLength      int
	RateLimitRPS          int
	RateLimitBurst        int
	// RoomsNewGlobal 为 true 时，公开房间的 rooms:new 通告发给所有连接，
	// 不按租户隔离（沿用线上观察到的行为）；设为 false 则只发本租户。
	RoomsNewGlobal bool
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func getenvBool(key string, def bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func Load() Config {
	return Config{
		Port:                  getenv("APP_PORT", "8080"),
		DatabaseDSN:           getenv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=chatapi port=5432 sslmode=disable TimeZone=UTC"),
		JWTSecret:             getenv("JWT_SECRET", "dev-secret-change-me"),
		Env:                   getenv("APP_ENV", "dev"),
		AccessTokenTTLMinutes: getenvInt("ACCESS_TOKEN_TTL_MINUTES", 15),
		RefreshTokenTTLDays:   getenvInt("REFRESH_TOKEN_TTL_DAYS", 7),
		DefaultTenant:         getenv("DEFAULT_TENANT", "default"),
		HistoryLimit:          getenvInt("HISTORY_LIMIT", 50),
		MaxMessageLength:      getenvInt("MAX_MESSAGE_LENGTH", 2000),
		RateLimitRPS:          getenvInt("RATE_LIMIT_RPS", 20),
		RateLimitBurst:        getenvInt("RATE_LIMIT_BURST", 40),
		RoomsNewGlobal:        getenvBool("ROOMS_NEW_GLOBAL", true),
	}
}

// Validate 启动前的基本检查；非 dev 环境禁止使用默认 JWT 密钥。
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("config: port is required")
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("config: database dsn is required")
	}
	if cfg.Env != "dev" && cfg.JWTSecret == "dev-secret-change-me" {
		return errors.New("config: default jwt secret is not allowed outside dev")
	}
	return nil
}
