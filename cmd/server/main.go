package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	config "dinecast-api/configs"
	"dinecast-api/internal/container"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	// .envファイルを読み込み
	envErr := godotenv.Load()

	cfg := config.LoadConfig()
	config.SetupLogger(cfg)
	if envErr != nil {
		log.Debug().Err(envErr).Msg(".env file not found or could not be loaded")
	}
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := container.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("❌ 初期化に失敗しました")
	}
	defer app.Close()

	if cfg.JobInterval > 0 {
		go app.Job.Start(ctx, cfg.JobInterval)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.Router(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("🚀 DineCast API サーバーを起動します")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("🛑 シャットダウンしています...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("❌ シャットダウンに失敗しました")
	}
}
