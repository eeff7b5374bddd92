package database

import (
	"context"

	"chat-engine/internal/platform/logger"
	"chat-engine/internal/storage/database/channel"
	"chat-engine/internal/storage/database/message"
	"chat-engine/internal/storage/database/notification"
	"chat-engine/internal/storage/database/status"

	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Repositories 倉儲集合.
type Repositories struct {
	Channel      *channel.ChannelStore
	Membership   *channel.MembershipStore
	Message      *message.MessageStore
	Attachment   *message.AttachmentStore
	Status       *status.StatusStore
	Notification *notification.NotificationStore
}

// NewRepositories 創建倉儲集合.
func NewRepositories(db *mongo.Database) *Repositories {
	// 創建索引以優化查詢性能
	ctx := context.Background()
	if err := channel.CreateIndexes(ctx, db); err != nil {
		logger.Errorf(ctx, "創建頻道索引失敗: %v", err)
	}
	if err := message.CreateIndexes(ctx, db); err != nil {
		logger.Errorf(ctx, "創建消息索引失敗: %v", err)
	}
	if err := notification.CreateIndexes(ctx, db); err != nil {
		logger.Errorf(ctx, "創建通知索引失敗: %v", err)
	}

	return &Repositories{
		Channel:      channel.NewChannelStore(db),
		Membership:   channel.NewMembershipStore(db),
		Message:      message.NewMessageStore(db),
		Attachment:   message.NewAttachmentStore(db),
		Status:       status.NewStatusStore(db),
		Notification: notification.NewNotificationStore(db),
	}
}
