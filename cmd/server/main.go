package main

import (
	"context"
	"net/http"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hivewords/hive-sync/internal/config"
	"github.com/hivewords/hive-sync/internal/httpapi"
	"github.com/hivewords/hive-sync/internal/hub"
)

func main() {
	cfg := config.Load()

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	log, err := zcfg.Build()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	h := hub.NewHub(context.Background(), log)

	// Build the router *with* the hub injected
	handler := httpapi.SetupRoutes(h, log)

	log.Info("listening", zap.String("addr", cfg.Addr))
	if err := http.ListenAndServe(cfg.Addr, handler); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}
