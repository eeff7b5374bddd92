package message

import (
	"context"
	"time"

	"chat-engine/internal/errs"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// 消息類型.
const (
	TypeText   = "text"
	TypeFile   = "file"
	TypeSystem = "system"
)

// MessageRepository 消息倉儲接口
type MessageRepository interface {
	Create(ctx context.Context, msg *Message) error
	GetByID(ctx context.Context, id string) (*Message, error)
	ListByChannel(ctx context.Context, channelID string, limit, offset int) ([]*Message, error)
	Update(ctx context.Context, id string, update map[string]interface{}) error
	CountUnread(ctx context.Context, channelID, userID string, since time.Time) (int64, error)
}

// Message 消息數據模型
type Message struct {
	ID              string    `bson:"_id" json:"id"`
	ChannelID       string    `bson:"channel_id" json:"channel_id"`
	SenderID        string    `bson:"sender_id" json:"sender_id"`
	Content         string    `bson:"content" json:"content"`
	Type            string    `bson:"type" json:"type"`
	ParentMessageID string    `bson:"parent_message_id,omitempty" json:"parent_message_id,omitempty"`
	IsEdited        bool      `bson:"is_edited" json:"is_edited"`
	IsDeleted       bool      `bson:"is_deleted" json:"is_deleted"`
	CreatedAt       time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time `bson:"updated_at" json:"updated_at"`
}

// NewMessage 創建新的 Message 實例
func NewMessage() *Message {
	now := time.Now().UTC()
	return &Message{
		ID:        uuid.New().String(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MessageStore 消息存儲實作
type MessageStore struct {
	collection *mongo.Collection
}

// NewMessageStore 創建新的消息存儲
func NewMessageStore(db *mongo.Database) *MessageStore {
	return &MessageStore{
		collection: db.Collection("messages"),
	}
}

// Create 創建消息
func (s *MessageStore) Create(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	msg.CreatedAt = now
	msg.UpdatedAt = now

	_, err := s.collection.InsertOne(ctx, msg)
	return err
}

// GetByID 根據 ID 獲取消息
func (s *MessageStore) GetByID(ctx context.Context, id string) (*Message, error) {
	var msg Message
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&msg)
	if err == mongo.ErrNoDocuments {
		return nil, errs.NotFound("消息不存在")
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListByChannel 獲取頻道消息，時間倒序（最新在前）
// 相同時間戳以 ID 做決勝，保證翻頁順序穩定.
func (s *MessageStore) ListByChannel(ctx context.Context, channelID string, limit, offset int) ([]*Message, error) {
	opts := options.Find()
	opts.SetSort(bson.D{
		{Key: "created_at", Value: -1},
		{Key: "_id", Value: -1},
	})
	opts.SetLimit(int64(limit))
	opts.SetSkip(int64(offset))

	cursor, err := s.collection.Find(ctx, bson.M{"channel_id": channelID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	messages := []*Message{}
	for cursor.Next(ctx) {
		var msg Message
		if err := cursor.Decode(&msg); err != nil {
			return nil, err
		}
		messages = append(messages, &msg)
	}

	return messages, cursor.Err()
}

// Update 更新消息
func (s *MessageStore) Update(ctx context.Context, id string, update map[string]interface{}) error {
	update["updated_at"] = time.Now().UTC()
	result, err := s.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": update})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return errs.NotFound("消息不存在")
	}
	return nil
}

// CountUnread 計算某時間點後他人發送的消息數量
// 系統消息不計入未讀.
func (s *MessageStore) CountUnread(ctx context.Context, channelID, userID string, since time.Time) (int64, error) {
	return s.collection.CountDocuments(ctx, bson.M{
		"channel_id": channelID,
		"sender_id":  bson.M{"$ne": userID},
		"type":       bson.M{"$ne": TypeSystem},
		"created_at": bson.M{"$gt": since},
		"is_deleted": false,
	})
}
