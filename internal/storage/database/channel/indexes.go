package channel

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// CreateIndexes 創建數據庫索引以優化查詢性能
func CreateIndexes(ctx context.Context, db *mongo.Database) error {
	// 頻道集合索引
	channelsCollection := db.Collection("channels")

	// 1. direct_key 部分唯一索引
	// 保證同一對用戶只有一個私聊頻道，並發創建時由索引裁決
	directKeyIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "direct_key", Value: 1},
		},
		Options: options.Index().
			SetName("direct_key_unique_idx").
			SetUnique(true).
			SetPartialFilterExpression(bson.M{
				"type":      TypeDirect,
				"is_active": true,
			}),
	}

	// 2. 頻道類型索引
	channelTypeIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "type", Value: 1},
		},
		Options: options.Index().SetName("channel_type_idx"),
	}

	// 3. 最後消息時間索引
	lastMessageIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "last_message_at", Value: -1},
		},
		Options: options.Index().SetName("last_message_idx"),
	}

	channelIndexes := []mongo.IndexModel{
		directKeyIndex,
		channelTypeIndex,
		lastMessageIndex,
	}

	if _, err := channelsCollection.Indexes().CreateMany(ctx, channelIndexes); err != nil {
		return err
	}

	// 成員集合索引
	membershipsCollection := db.Collection("memberships")

	// 1. 頻道 + 用戶唯一索引（防止重複加入）
	membershipUniqueIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "channel_id", Value: 1},
			{Key: "user_id", Value: 1},
		},
		Options: options.Index().
			SetName("channel_user_unique_idx").
			SetUnique(true),
	}

	// 2. 用戶 ID 索引（查詢用戶所在頻道）
	userIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "user_id", Value: 1},
		},
		Options: options.Index().SetName("user_idx"),
	}

	membershipIndexes := []mongo.IndexModel{
		membershipUniqueIndex,
		userIndex,
	}

	if _, err := membershipsCollection.Indexes().CreateMany(ctx, membershipIndexes); err != nil {
		return err
	}

	return nil
}
