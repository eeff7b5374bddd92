package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-engine/internal/platform/config"
	"chat-engine/internal/platform/logger"
)

// Start 啟動 HTTP 伺服器並等待關閉信號.
func Start(api *API) error {
	ctx := context.Background()
	cfg := config.Get()

	router := api.Router()

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.Timeout) * time.Second,
		WriteTimeout: 0, // WebSocket 需要長連接，設為 0 表示不超時
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Infof(ctx, "伺服器正在監聽埠口: %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf(ctx, "伺服器啟動失敗: %v", err)
			os.Exit(1)
		}
	}()

	// 等待關閉信號
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Infof(ctx, "收到關閉信號，正在優雅關閉伺服器...")

	// 先斷開所有 WebSocket 連接，再關閉 HTTP 伺服器
	api.hub.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf(ctx, "伺服器關閉失敗: %v", err)
		return err
	}

	logger.Infof(ctx, "伺服器已優雅關閉")
	return nil
}
