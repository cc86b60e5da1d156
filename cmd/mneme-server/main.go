package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mneme-app/mneme/internal/server"
)

func main() {
	_ = godotenv.Load()

	addr := os.Getenv("MNEME_SERVER_ADDR")
	if addr == "" {
		addr = ":8787"
	}
	dbPath := os.Getenv("MNEME_SERVER_DB")
	if dbPath == "" {
		dbPath = "mneme-server.db"
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	store, err := server.OpenStore(dbPath)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	h := server.NewHandler(store, logger)
	srv := &http.Server{
		Addr:         addr,
		Handler:      h.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	logger.Info("server listening", zap.String("addr", addr), zap.String("db", dbPath))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}
