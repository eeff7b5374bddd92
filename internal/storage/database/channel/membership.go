package channel

import (
	"context"
	"time"

	"chat-engine/internal/errs"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// 成員角色.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// MembershipRepository 成員倉儲接口
type MembershipRepository interface {
	Add(ctx context.Context, m *Membership) error
	Remove(ctx context.Context, channelID, userID string) error
	Get(ctx context.Context, channelID, userID string) (*Membership, error)
	IsMember(ctx context.Context, channelID, userID string) (bool, error)
	ListByChannel(ctx context.Context, channelID string) ([]*Membership, error)
	ListByUser(ctx context.Context, userID string) ([]*Membership, error)
	UpdateLastRead(ctx context.Context, channelID, userID string, at time.Time) error
	UpdateRole(ctx context.Context, channelID, userID, role string) error
	CountByChannel(ctx context.Context, channelID string) (int64, error)
}

// Membership 頻道成員數據模型
type Membership struct {
	ChannelID  string    `bson:"channel_id" json:"channel_id"`
	UserID     string    `bson:"user_id" json:"user_id"`
	Role       string    `bson:"role" json:"role"`
	JoinedAt   time.Time `bson:"joined_at" json:"joined_at"`
	LastReadAt time.Time `bson:"last_read_at" json:"last_read_at"`
}

// MembershipStore 成員存儲實作
type MembershipStore struct {
	collection *mongo.Collection
}

// NewMembershipStore 創建新的成員存儲
func NewMembershipStore(db *mongo.Database) *MembershipStore {
	return &MembershipStore{
		collection: db.Collection("memberships"),
	}
}

// Add 添加成員
// (channel_id, user_id) 唯一索引，重複添加返回 ALREADY_EXISTS.
func (s *MembershipStore) Add(ctx context.Context, m *Membership) error {
	now := time.Now().UTC()
	if m.JoinedAt.IsZero() {
		m.JoinedAt = now
	}
	if m.LastReadAt.IsZero() {
		m.LastReadAt = now
	}
	if m.Role == "" {
		m.Role = RoleMember
	}

	_, err := s.collection.InsertOne(ctx, m)
	if mongo.IsDuplicateKeyError(err) {
		return errs.AlreadyExists("用戶已是頻道成員")
	}
	return err
}

// Remove 移除成員
func (s *MembershipStore) Remove(ctx context.Context, channelID, userID string) error {
	result, err := s.collection.DeleteOne(ctx, bson.M{
		"channel_id": channelID,
		"user_id":    userID,
	})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return errs.NotFound("用戶不是頻道成員")
	}
	return nil
}

// Get 獲取成員記錄
func (s *MembershipStore) Get(ctx context.Context, channelID, userID string) (*Membership, error) {
	var m Membership
	err := s.collection.FindOne(ctx, bson.M{
		"channel_id": channelID,
		"user_id":    userID,
	}).Decode(&m)
	if err == mongo.ErrNoDocuments {
		return nil, errs.NotFound("用戶不是頻道成員")
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// IsMember 檢查用戶是否是頻道成員
func (s *MembershipStore) IsMember(ctx context.Context, channelID, userID string) (bool, error) {
	count, err := s.collection.CountDocuments(ctx, bson.M{
		"channel_id": channelID,
		"user_id":    userID,
	})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListByChannel 列出頻道所有成員
func (s *MembershipStore) ListByChannel(ctx context.Context, channelID string) ([]*Membership, error) {
	opts := options.Find()
	opts.SetSort(bson.D{{Key: "joined_at", Value: 1}})

	cursor, err := s.collection.Find(ctx, bson.M{"channel_id": channelID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	members := []*Membership{}
	for cursor.Next(ctx) {
		var m Membership
		if err := cursor.Decode(&m); err != nil {
			return nil, err
		}
		members = append(members, &m)
	}

	return members, cursor.Err()
}

// ListByUser 列出用戶的所有成員記錄
func (s *MembershipStore) ListByUser(ctx context.Context, userID string) ([]*Membership, error) {
	cursor, err := s.collection.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	members := []*Membership{}
	for cursor.Next(ctx) {
		var m Membership
		if err := cursor.Decode(&m); err != nil {
			return nil, err
		}
		members = append(members, &m)
	}

	return members, cursor.Err()
}

// UpdateLastRead 更新已讀時間
// 只往前推進，舊的標記不會倒退已讀位置.
func (s *MembershipStore) UpdateLastRead(ctx context.Context, channelID, userID string, at time.Time) error {
	result, err := s.collection.UpdateOne(ctx, bson.M{
		"channel_id": channelID,
		"user_id":    userID,
	}, bson.M{
		"$max": bson.M{"last_read_at": at},
	})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return errs.NotFound("用戶不是頻道成員")
	}
	return nil
}

// UpdateRole 更新成員角色
func (s *MembershipStore) UpdateRole(ctx context.Context, channelID, userID, role string) error {
	result, err := s.collection.UpdateOne(ctx, bson.M{
		"channel_id": channelID,
		"user_id":    userID,
	}, bson.M{
		"$set": bson.M{"role": role},
	})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return errs.NotFound("用戶不是頻道成員")
	}
	return nil
}

// CountByChannel 獲取頻道成員數量
func (s *MembershipStore) CountByChannel(ctx context.Context, channelID string) (int64, error) {
	return s.collection.CountDocuments(ctx, bson.M{"channel_id": channelID})
}
