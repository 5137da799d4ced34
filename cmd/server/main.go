package main

import (
	"github.com/Gitisfun/chat-api/internal/config"
	"github.com/Gitisfun/chat-api/internal/db"
	clog "github.com/Gitisfun/chat-api/internal/log"
	"github.com/Gitisfun/chat-api/internal/server"
	"github.com/Gitisfun/chat-api/internal/store"
	"github.com/Gitisfun/chat-api/internal/ws"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	// 加载配置、初始化日志、连库，再把注册表/hub/gateway 接到路由上。
	_ = godotenv.Load()
	cfg := config.Load()
	clog.Init(cfg.Env)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config validate")
	}

	gdb, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}

	st := store.NewGorm(gdb)
	hub := ws.NewHub()
	reg := ws.NewRegistry()
	gw := ws.NewGateway(st, reg, hub, cfg)

	r := server.SetupRouter(cfg, gdb, st, hub, gw)
	log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server starting")
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server run")
	}
}
