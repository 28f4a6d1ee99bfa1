package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wayneh-tw/linegem/internal/api/router"
	"github.com/wayneh-tw/linegem/internal/channels/line"
	appconfig "github.com/wayneh-tw/linegem/internal/config"
	"github.com/wayneh-tw/linegem/internal/conversation"
	"github.com/wayneh-tw/linegem/internal/observability/metrics"
	"github.com/wayneh-tw/linegem/pkg/logging"
)

func main() {
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting linegem relay",
		"env", cfg.Env,
		"port", cfg.Port,
		"history_mode", cfg.HistoryMode,
	)

	llm, err := conversation.NewGeminiLLMClient(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		logger.Error("failed to create gemini client", "error", err)
		os.Exit(1)
	}
	defer llm.Close()

	r := newRelayHandler(cfg, logger, llm, metrics.NewRelayMetrics(nil))

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// newRelayHandler wires the conversation pipeline behind the HTTP surface.
func newRelayHandler(cfg *appconfig.Config, logger *logging.Logger, llm conversation.LLMClient, relayMetrics *metrics.RelayMetrics) http.Handler {
	lineClient := line.NewClient(cfg.LineChannelAccessToken)
	if cfg.LineAPIBase != "" {
		lineClient.SetAPIBase(cfg.LineAPIBase)
	}

	store := conversation.NewStore(cfg.HistoryWindow)
	messenger := line.NewReplyMessenger(lineClient, logger)
	orchestrator := conversation.NewOrchestrator(store, llm, messenger, logger, relayMetrics,
		conversation.WithHistoryMode(conversation.ParseHistoryMode(cfg.HistoryMode)),
		conversation.WithGenerateTimeout(cfg.GenerateTimeout),
	)
	adapter := line.NewAdapter(cfg.LineChannelSecret, orchestrator, logger, relayMetrics)

	return router.New(&router.Config{
		Logger:         logger,
		LineAdapter:    adapter,
		MetricsHandler: promhttp.Handler(),
	})
}
