package notification

import (
	"context"
	"time"

	"chat-engine/internal/errs"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// 通知類型.
const (
	TypeNewMessage     = "new_message"
	TypeMention        = "mention"
	TypeChannelInvite  = "channel_invite"
	TypeMemberJoined   = "member_joined"
	TypeMemberLeft     = "member_left"
	TypeChannelDeleted = "channel_deleted"
)

// 通知優先級.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// NotificationRepository 通知倉儲接口
type NotificationRepository interface {
	Create(ctx context.Context, n *Notification) error
	ListByUser(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]*Notification, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, id, userID string) error
	DeleteRead(ctx context.Context, userID string) (int64, error)
	DeleteAll(ctx context.Context, userID string) (int64, error)
}

// Notification 通知數據模型
type Notification struct {
	ID                string                 `bson:"_id" json:"id"`
	UserID            string                 `bson:"user_id" json:"user_id"`
	Type              string                 `bson:"type" json:"type"`
	Title             string                 `bson:"title" json:"title"`
	Message           string                 `bson:"message,omitempty" json:"message,omitempty"`
	Payload           map[string]interface{} `bson:"payload,omitempty" json:"payload,omitempty"`
	ActionURL         string                 `bson:"action_url,omitempty" json:"action_url,omitempty"`
	Priority          string                 `bson:"priority" json:"priority"`
	IsRead            bool                   `bson:"is_read" json:"is_read"`
	ReadAt            *time.Time             `bson:"read_at,omitempty" json:"read_at,omitempty"`
	RelatedUserID     string                 `bson:"related_user_id,omitempty" json:"related_user_id,omitempty"`
	RelatedEntityType string                 `bson:"related_entity_type,omitempty" json:"related_entity_type,omitempty"`
	RelatedEntityID   string                 `bson:"related_entity_id,omitempty" json:"related_entity_id,omitempty"`
	CreatedAt         time.Time              `bson:"created_at" json:"created_at"`
}

// NotificationStore 通知存儲實作
type NotificationStore struct {
	collection *mongo.Collection
}

// NewNotificationStore 創建新的通知存儲
func NewNotificationStore(db *mongo.Database) *NotificationStore {
	return &NotificationStore{
		collection: db.Collection("notifications"),
	}
}

// Create 創建通知
func (s *NotificationStore) Create(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Priority == "" {
		n.Priority = PriorityNormal
	}
	n.CreatedAt = time.Now().UTC()

	_, err := s.collection.InsertOne(ctx, n)
	return err
}

// ListByUser 列出用戶通知，時間倒序
func (s *NotificationStore) ListByUser(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]*Notification, error) {
	filter := bson.M{"user_id": userID}
	if unreadOnly {
		filter["is_read"] = false
	}

	opts := options.Find()
	opts.SetSort(bson.D{{Key: "created_at", Value: -1}})
	opts.SetLimit(int64(limit))
	opts.SetSkip(int64(offset))

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	notifications := []*Notification{}
	for cursor.Next(ctx) {
		var n Notification
		if err := cursor.Decode(&n); err != nil {
			return nil, err
		}
		notifications = append(notifications, &n)
	}

	return notifications, cursor.Err()
}

// CountUnread 計算用戶未讀通知數量
func (s *NotificationStore) CountUnread(ctx context.Context, userID string) (int64, error) {
	return s.collection.CountDocuments(ctx, bson.M{
		"user_id": userID,
		"is_read": false,
	})
}

// MarkRead 標記通知已讀
// 按擁有者過濾，他人的通知對請求者呈現為不存在.
func (s *NotificationStore) MarkRead(ctx context.Context, id, userID string) error {
	now := time.Now().UTC()
	result, err := s.collection.UpdateOne(ctx, bson.M{
		"_id":     id,
		"user_id": userID,
	}, bson.M{
		"$set": bson.M{
			"is_read": true,
			"read_at": now,
		},
	})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return errs.NotFound("通知不存在")
	}
	return nil
}

// MarkAllRead 標記用戶所有通知已讀，返回受影響數量
func (s *NotificationStore) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	now := time.Now().UTC()
	result, err := s.collection.UpdateMany(ctx, bson.M{
		"user_id": userID,
		"is_read": false,
	}, bson.M{
		"$set": bson.M{
			"is_read": true,
			"read_at": now,
		},
	})
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

// Delete 刪除通知
func (s *NotificationStore) Delete(ctx context.Context, id, userID string) error {
	result, err := s.collection.DeleteOne(ctx, bson.M{
		"_id":     id,
		"user_id": userID,
	})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return errs.NotFound("通知不存在")
	}
	return nil
}

// DeleteRead 刪除用戶所有已讀通知
func (s *NotificationStore) DeleteRead(ctx context.Context, userID string) (int64, error) {
	result, err := s.collection.DeleteMany(ctx, bson.M{
		"user_id": userID,
		"is_read": true,
	})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

// DeleteAll 刪除用戶所有通知
func (s *NotificationStore) DeleteAll(ctx context.Context, userID string) (int64, error) {
	result, err := s.collection.DeleteMany(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

// CreateIndexes 創建通知集合索引
func CreateIndexes(ctx context.Context, db *mongo.Database) error {
	collection := db.Collection("notifications")

	userTimeIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "user_id", Value: 1},
			{Key: "created_at", Value: -1},
		},
		Options: options.Index().SetName("user_time_idx"),
	}

	userUnreadIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "user_id", Value: 1},
			{Key: "is_read", Value: 1},
		},
		Options: options.Index().SetName("user_unread_idx"),
	}

	_, err := collection.Indexes().CreateMany(ctx, []mongo.IndexModel{userTimeIndex, userUnreadIndex})
	return err
}
