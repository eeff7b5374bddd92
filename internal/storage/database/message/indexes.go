package message

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// CreateIndexes 創建數據庫索引以優化查詢性能
func CreateIndexes(ctx context.Context, db *mongo.Database) error {
	// 消息集合索引
	messagesCollection := db.Collection("messages")

	// 1. 頻道 ID + 創建時間複合索引（最重要的索引）
	channelTimeIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "channel_id", Value: 1},
			{Key: "created_at", Value: -1},
		},
		Options: options.Index().SetName("channel_time_idx"),
	}

	// 2. 發送者 ID + 創建時間索引
	senderTimeIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "sender_id", Value: 1},
			{Key: "created_at", Value: -1},
		},
		Options: options.Index().SetName("sender_time_idx"),
	}

	// 3. 消息類型索引
	messageTypeIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "type", Value: 1},
		},
		Options: options.Index().SetName("type_idx"),
	}

	messageIndexes := []mongo.IndexModel{
		channelTimeIndex,
		senderTimeIndex,
		messageTypeIndex,
	}

	if _, err := messagesCollection.Indexes().CreateMany(ctx, messageIndexes); err != nil {
		return err
	}

	// 附件集合索引
	attachmentsCollection := db.Collection("attachments")

	messageIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "message_id", Value: 1},
		},
		Options: options.Index().SetName("message_idx"),
	}

	if _, err := attachmentsCollection.Indexes().CreateMany(ctx, []mongo.IndexModel{messageIndex}); err != nil {
		return err
	}

	return nil
}
