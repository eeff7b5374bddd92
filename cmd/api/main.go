package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"chat-engine/internal/chat"
	"chat-engine/internal/constants"
	"chat-engine/internal/notify"
	"chat-engine/internal/platform/config"
	"chat-engine/internal/platform/driver"
	"chat-engine/internal/platform/logger"
	"chat-engine/internal/platform/middleware"
	"chat-engine/internal/platform/server"
	"chat-engine/internal/presence"
	"chat-engine/internal/realtime"
	"chat-engine/internal/security/audit"
	"chat-engine/internal/security/encryption"
	"chat-engine/internal/security/token"
	"chat-engine/internal/storage/blob"
	"chat-engine/internal/storage/database"
)

func main() {
	if err := mainNoExit(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// loadMasterKey 載入主密鑰
// 從環境變量 MASTER_KEY 讀取 base64 編碼的 32 bytes 密鑰
// 如果未設置，生成臨時隨機密鑰（開發環境）
func loadMasterKey() ([]byte, error) {
	ctx := context.Background()
	masterKeyEnv := os.Getenv("MASTER_KEY")

	if masterKeyEnv != "" {
		masterKey, err := base64.StdEncoding.DecodeString(masterKeyEnv)
		if err != nil {
			logger.Error(ctx, "Master Key 格式錯誤", logger.WithDetails(map[string]interface{}{"error": err.Error()}))
			return nil, fmt.Errorf("invalid master key configuration")
		}

		if len(masterKey) != constants.MasterKeyLength {
			logger.Error(ctx, "Master Key 長度錯誤", logger.WithDetails(map[string]interface{}{"expected": constants.MasterKeyLength, "got": len(masterKey)}))
			return nil, fmt.Errorf("invalid master key configuration")
		}

		// 遮罩顯示（只顯示前4個字元，其餘用*代替）
		masked := fmt.Sprintf("%x****", masterKey[:2])
		logger.Info(ctx, "成功從環境變量載入主密鑰", logger.WithDetails(map[string]interface{}{
			"masked": masked,
			"source": "MASTER_KEY environment variable",
		}))
		return masterKey, nil
	}

	// 開發環境：生成臨時隨機密鑰
	masterKey := make([]byte, constants.MasterKeyLength)
	if _, err := rand.Read(masterKey); err != nil {
		return nil, fmt.Errorf("master key initialization failed")
	}

	logger.Info(ctx, "開發模式：使用臨時主密鑰（重啟後舊訊息將無法解密）")
	logger.Info(ctx, "生產環境請設置 MASTER_KEY 環境變量：export MASTER_KEY=$(openssl rand -base64 32)")

	return masterKey, nil
}

// mainNoExit 分離主要邏輯以避免 exitAfterDefer 問題，確保 defer 函數正常執行.
func mainNoExit() error {
	// 初始化日誌.
	if err := logger.InitLogger(); err != nil {
		return err
	}
	defer logger.CloseLogger()

	ctx := context.Background()

	// 載入配置.
	if err := config.Load(); err != nil {
		return err
	}
	cfg := config.Get()
	logger.Infof(ctx, "設定載入成功，環境: %s", config.GetEnv())

	// 連接資料庫.
	if err := driver.ConnectMongo(); err != nil {
		return err
	}
	defer func() {
		if err := driver.CloseMongo(); err != nil {
			logger.Errorf(ctx, "關閉 MongoDB 連接失敗: %v", err)
		}
	}()

	db := driver.GetMongoDatabase()

	// 初始化 Repository 與檔案存儲.
	repos := database.NewRepositories(db)
	blobStore := blob.NewGridFSStore(db)

	// 訊息加密.
	var deriver *encryption.KeyDeriver
	if cfg.Security.Encryption.Enabled {
		masterKey, err := loadMasterKey()
		if err != nil {
			return err
		}
		deriver, err = encryption.NewKeyDeriver(masterKey)
		if err != nil {
			return err
		}
		logger.Infof(ctx, "訊息加密已啟用")
	}
	crypto := encryption.NewMessageEncryption(cfg.Security.Encryption.Enabled, deriver)

	// 審計日誌.
	auditSvc := audit.NewAuditService(cfg.Security.Audit.Enabled)

	// 通知分發與在線狀態；即時推送出口由 hub 建立後補上.
	dispatcher := notify.NewDispatcher(repos.Notification, nil)
	tracker := presence.NewTracker(repos.Status, nil)

	// 聊天核心服務.
	chatSvc := chat.NewService(chat.Options{
		Channels:         repos.Channel,
		Memberships:      repos.Membership,
		Messages:         repos.Message,
		Attachments:      repos.Attachment,
		Statuses:         repos.Status,
		Blobs:            blobStore,
		Crypto:           crypto,
		Audit:            auditSvc,
		Notifier:         dispatcher,
		MaxMembers:       cfg.Limits.Channel.MaxMembers,
		MaxUploadFiles:   cfg.Storage.MaxUploadFiles,
		MaxUploadSize:    cfg.Storage.MaxUploadFileSize,
		AllowedMIMETypes: cfg.Storage.AllowedMIMETypes,
	})

	// WebSocket 連接限制.
	wsCfg := cfg.Limits.WebSocket
	maxPerIP := wsCfg.MaxConnectionsPerIP
	if maxPerIP <= 0 {
		maxPerIP = constants.DefaultWSMaxConnectionsPerIP
	}
	minInterval := wsCfg.MinConnectionInterval
	if minInterval <= 0 {
		minInterval = constants.DefaultWSMinConnectionInterval
	}
	maxTotal := wsCfg.MaxTotalConnections
	if maxTotal <= 0 {
		maxTotal = constants.DefaultWSMaxTotalConnections
	}
	wsLimiter := middleware.NewWSConnectionLimiter(maxPerIP, time.Duration(minInterval)*time.Second, maxTotal)

	// WebSocket 中樞，並回接到各服務的廣播出口.
	hub := realtime.NewHub(chatSvc, tracker, repos.Membership, wsLimiter, wsCfg)
	chatSvc.SetEvents(hub)
	tracker.SetBroadcaster(hub)
	dispatcher.SetPusher(hub)

	// JWT 認證；未配置密鑰時退化為 X-User-ID 標頭（僅限開發環境）.
	jwtSecret := config.GetJWTSecret()
	if jwtSecret == "" {
		logger.Warningf(ctx, "JWT 密鑰未配置，認證退化為 X-User-ID 標頭，僅供開發環境使用")
	}
	authMW := middleware.NewJWTMiddleware(token.NewResolver(jwtSecret), jwtSecret != "", auditSvc)

	api := server.NewAPI(chatSvc, tracker, dispatcher, hub, authMW, wsLimiter)

	logger.Infof(ctx, "正在啟動 %s API 伺服器...", cfg.App.Name)
	return server.Start(api)
}
