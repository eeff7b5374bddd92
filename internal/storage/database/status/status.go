package status

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// 用戶狀態.
const (
	StatusOnline    = "online"
	StatusOffline   = "offline"
	StatusAway      = "away"
	StatusBusy      = "busy"
	StatusInMeeting = "in_meeting"
)

// StatusRepository 用戶狀態倉儲接口
type StatusRepository interface {
	Upsert(ctx context.Context, userID, stat, customMessage string) (*UserStatus, error)
	Get(ctx context.Context, userID string) (*UserStatus, error)
	GetMany(ctx context.Context, userIDs []string) ([]*UserStatus, error)
}

// UserStatus 用戶狀態數據模型
type UserStatus struct {
	UserID        string    `bson:"_id" json:"user_id"`
	Status        string    `bson:"status" json:"status"`
	CustomMessage string    `bson:"custom_message,omitempty" json:"custom_message,omitempty"`
	LastSeen      time.Time `bson:"last_seen" json:"last_seen"`
	UpdatedAt     time.Time `bson:"updated_at" json:"updated_at"`
}

// StatusStore 用戶狀態存儲實作
type StatusStore struct {
	collection *mongo.Collection
}

// NewStatusStore 創建新的用戶狀態存儲
func NewStatusStore(db *mongo.Database) *StatusStore {
	return &StatusStore{
		collection: db.Collection("user_status"),
	}
}

// Upsert 寫入用戶狀態，不存在則創建
// last_seen 每次都更新.
func (s *StatusStore) Upsert(ctx context.Context, userID, stat, customMessage string) (*UserStatus, error) {
	now := time.Now().UTC()
	opts := options.UpdateOne().SetUpsert(true)

	_, err := s.collection.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{
		"$set": bson.M{
			"status":         stat,
			"custom_message": customMessage,
			"last_seen":      now,
			"updated_at":     now,
		},
	}, opts)
	if err != nil {
		return nil, err
	}

	return &UserStatus{
		UserID:        userID,
		Status:        stat,
		CustomMessage: customMessage,
		LastSeen:      now,
		UpdatedAt:     now,
	}, nil
}

// Get 獲取用戶狀態
// 從未出現過的用戶視為離線.
func (s *StatusStore) Get(ctx context.Context, userID string) (*UserStatus, error) {
	var us UserStatus
	err := s.collection.FindOne(ctx, bson.M{"_id": userID}).Decode(&us)
	if err == mongo.ErrNoDocuments {
		return &UserStatus{
			UserID: userID,
			Status: StatusOffline,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return &us, nil
}

// GetMany 批量獲取用戶狀態，缺少記錄的用戶補離線預設值
func (s *StatusStore) GetMany(ctx context.Context, userIDs []string) ([]*UserStatus, error) {
	if len(userIDs) == 0 {
		return []*UserStatus{}, nil
	}

	cursor, err := s.collection.Find(ctx, bson.M{"_id": bson.M{"$in": userIDs}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	found := make(map[string]*UserStatus, len(userIDs))
	for cursor.Next(ctx) {
		var us UserStatus
		if err := cursor.Decode(&us); err != nil {
			return nil, err
		}
		found[us.UserID] = &us
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}

	results := make([]*UserStatus, 0, len(userIDs))
	for _, id := range userIDs {
		if us, ok := found[id]; ok {
			results = append(results, us)
			continue
		}
		results = append(results, &UserStatus{
			UserID: id,
			Status: StatusOffline,
		})
	}

	return results, nil
}
