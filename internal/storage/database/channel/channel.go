package channel

import (
	"context"
	"sort"
	"strings"
	"time"

	"chat-engine/internal/errs"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// 頻道類型.
const (
	TypeDirect  = "direct"
	TypeGroup   = "group"
	TypePublic  = "public"
	TypePrivate = "private"
)

// ChannelRepository 頻道倉儲接口
type ChannelRepository interface {
	Create(ctx context.Context, ch *Channel) error
	GetByID(ctx context.Context, id string) (*Channel, error)
	Update(ctx context.Context, id string, update map[string]interface{}) error
	SoftDelete(ctx context.Context, id string) error
	FindDirectByKey(ctx context.Context, directKey string) (*Channel, error)
	ListByIDs(ctx context.Context, ids []string) ([]*Channel, error)
	SetLastMessage(ctx context.Context, id, preview string, at time.Time) error
}

// Channel 頻道數據模型
type Channel struct {
	ID            string    `bson:"_id" json:"id"`
	Name          string    `bson:"name" json:"name"`
	Type          string    `bson:"type" json:"type"`
	Description   string    `bson:"description,omitempty" json:"description,omitempty"`
	CreatedBy     string    `bson:"created_by" json:"created_by"`
	IsActive      bool      `bson:"is_active" json:"is_active"`
	DirectKey     string    `bson:"direct_key,omitempty" json:"-"`
	LastMessage   string    `bson:"last_message,omitempty" json:"last_message,omitempty"`
	LastMessageAt time.Time `bson:"last_message_at" json:"last_message_at"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at" json:"updated_at"`
}

// NewChannel 創建新的 Channel 實例
func NewChannel() *Channel {
	now := time.Now().UTC()
	return &Channel{
		ID:            uuid.New().String(),
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
		LastMessageAt: now,
	}
}

// DirectKey 計算私聊頻道的唯一鍵.
// 使用者順序無關，兩個 ID 排序後組合.
func DirectKey(userA, userB string) string {
	pair := []string{userA, userB}
	sort.Strings(pair)
	return strings.Join(pair, ":")
}

// ChannelStore 頻道存儲實作
type ChannelStore struct {
	collection *mongo.Collection
}

// NewChannelStore 創建新的頻道存儲
func NewChannelStore(db *mongo.Database) *ChannelStore {
	return &ChannelStore{
		collection: db.Collection("channels"),
	}
}

// Create 創建頻道
// direct_key 部分唯一索引保證同一對用戶的私聊頻道只會有一個，
// 並發創建時後到者會收到 ALREADY_EXISTS.
func (s *ChannelStore) Create(ctx context.Context, ch *Channel) error {
	if ch.ID == "" {
		ch.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	ch.CreatedAt = now
	ch.UpdatedAt = now
	if ch.LastMessageAt.IsZero() {
		ch.LastMessageAt = now
	}
	ch.IsActive = true

	_, err := s.collection.InsertOne(ctx, ch)
	if mongo.IsDuplicateKeyError(err) {
		return errs.AlreadyExists("頻道已存在")
	}
	return err
}

// GetByID 根據 ID 獲取頻道
func (s *ChannelStore) GetByID(ctx context.Context, id string) (*Channel, error) {
	var ch Channel
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&ch)
	if err == mongo.ErrNoDocuments {
		return nil, errs.NotFound("頻道不存在")
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// Update 更新頻道
func (s *ChannelStore) Update(ctx context.Context, id string, update map[string]interface{}) error {
	update["updated_at"] = time.Now().UTC()
	result, err := s.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": update})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return errs.NotFound("頻道不存在")
	}
	return nil
}

// SoftDelete 軟刪除頻道
func (s *ChannelStore) SoftDelete(ctx context.Context, id string) error {
	return s.Update(ctx, id, map[string]interface{}{"is_active": false})
}

// FindDirectByKey 根據 direct key 查找私聊頻道
func (s *ChannelStore) FindDirectByKey(ctx context.Context, directKey string) (*Channel, error) {
	var ch Channel
	err := s.collection.FindOne(ctx, bson.M{
		"type":       TypeDirect,
		"direct_key": directKey,
		"is_active":  true,
	}).Decode(&ch)
	if err == mongo.ErrNoDocuments {
		return nil, errs.NotFound("頻道不存在")
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// ListByIDs 批量獲取頻道，按最後消息時間倒序
func (s *ChannelStore) ListByIDs(ctx context.Context, ids []string) ([]*Channel, error) {
	if len(ids) == 0 {
		return []*Channel{}, nil
	}

	opts := options.Find()
	opts.SetSort(bson.D{{Key: "last_message_at", Value: -1}})

	cursor, err := s.collection.Find(ctx, bson.M{
		"_id":       bson.M{"$in": ids},
		"is_active": true,
	}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	channels := []*Channel{}
	for cursor.Next(ctx) {
		var ch Channel
		if err := cursor.Decode(&ch); err != nil {
			return nil, err
		}
		channels = append(channels, &ch)
	}

	return channels, cursor.Err()
}

// SetLastMessage 更新頻道的最後消息預覽
func (s *ChannelStore) SetLastMessage(ctx context.Context, id, preview string, at time.Time) error {
	_, err := s.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			"last_message":    preview,
			"last_message_at": at,
			"updated_at":      time.Now().UTC(),
		},
	})
	return err
}
