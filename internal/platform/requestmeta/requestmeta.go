package requestmeta

import "context"

// RequestMetadata 請求元數據
type RequestMetadata struct {
	IPAddress string
	UserAgent string
	UserID    string
}

// Context keys
type contextKey string

const (
	// Key context 中存放請求元數據的鍵
	Key contextKey = "request_metadata"
)

// WithMetadata 將請求元數據存入 context
func WithMetadata(ctx context.Context, metadata *RequestMetadata) context.Context {
	return context.WithValue(ctx, Key, metadata)
}

// GetRequestMetadata 從 context 獲取請求元數據
func GetRequestMetadata(ctx context.Context) *RequestMetadata {
	if metadata, ok := ctx.Value(Key).(*RequestMetadata); ok {
		return metadata
	}
	return &RequestMetadata{
		IPAddress: "unknown",
		UserAgent: "unknown",
	}
}
