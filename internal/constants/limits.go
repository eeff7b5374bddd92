package constants

// HTTP 請求相關常數
const (
	// 默認值（可被配置覆蓋）
	DefaultMaxRequestBodySize = 10 << 20 // 10MB
	DefaultMaxMultipartMemory = 10 << 20 // 10MB
	DefaultRequestTimeout     = 30       // 秒
)

// 分頁相關常數
const (
	DefaultPageSize    = 20
	DefaultMaxPageSize = 100
	MinPageSize        = 1
)

// 頻道相關常數
const (
	DefaultMaxChannelMembers    = 1000
	DefaultMaxChannelNameLength = 100
	MinChannelNameLength        = 1
)

// 訊息相關常數
const (
	DefaultMaxMessageLength = 10000

	// 軟刪除後訊息內容的固定墓碑字串
	MessageTombstone = "[訊息已刪除]"

	// 系統訊息的固定發送者
	SystemSenderID = "system"
)

// 附件上傳相關常數
const (
	DefaultMaxUploadFiles    = 5
	DefaultMaxUploadFileSize = 10 << 20 // 10MB
)

// Rate Limiting 默認值
const (
	DefaultRateLimitPerMinute   = 100
	DefaultMessageRateLimit     = 30
	DefaultChannelRateLimit     = 10
	RateLimitCleanupIntervalMin = 10 // 分鐘
)

// WebSocket 連接相關常數
const (
	DefaultWSMaxConnectionsPerIP   = 5
	DefaultWSMaxTotalConnections   = 1000
	DefaultWSMinConnectionInterval = 3  // 秒
	DefaultWSHeartbeatInterval     = 30 // 秒
	DefaultWSPongTimeout           = 60 // 秒
	DefaultWSWriteTimeout          = 10 // 秒
	DefaultWSSendBuffer            = 128
	DefaultWSMaxFrameSize          = 1 << 16 // 64KB
)

// 用戶 ID 相關常數
const (
	MaxUserIDLength = 100
)

// 加密相關常數
const (
	EncryptedPrefixLength = 10
	MasterKeyLength       = 32 // 256 bits
)

// MongoDB 查詢相關常數
const (
	DefaultMongoQueryLimit = 20
	MaxMongoQueryLimit     = 100
	UserChannelsLimit      = 100
)
