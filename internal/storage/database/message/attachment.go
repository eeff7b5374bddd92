package message

import (
	"context"
	"time"

	"chat-engine/internal/errs"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// AttachmentRepository 附件倉儲接口
type AttachmentRepository interface {
	Create(ctx context.Context, att *Attachment) error
	GetByID(ctx context.Context, id string) (*Attachment, error)
	ListByMessage(ctx context.Context, messageID string) ([]*Attachment, error)
	DeleteByMessage(ctx context.Context, messageID string) ([]*Attachment, error)
}

// Attachment 附件數據模型
type Attachment struct {
	ID         string    `bson:"_id" json:"id"`
	MessageID  string    `bson:"message_id" json:"message_id"`
	ChannelID  string    `bson:"channel_id" json:"channel_id"`
	FileName   string    `bson:"file_name" json:"file_name"`
	FileType   string    `bson:"file_type" json:"file_type"`
	FileSize   int64     `bson:"file_size" json:"file_size"`
	StorageKey string    `bson:"storage_key" json:"-"`
	UploadedBy string    `bson:"uploaded_by" json:"uploaded_by"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
}

// AttachmentStore 附件存儲實作
type AttachmentStore struct {
	collection *mongo.Collection
}

// NewAttachmentStore 創建新的附件存儲
func NewAttachmentStore(db *mongo.Database) *AttachmentStore {
	return &AttachmentStore{
		collection: db.Collection("attachments"),
	}
}

// Create 創建附件記錄
func (s *AttachmentStore) Create(ctx context.Context, att *Attachment) error {
	if att.ID == "" {
		att.ID = uuid.New().String()
	}
	att.CreatedAt = time.Now().UTC()

	_, err := s.collection.InsertOne(ctx, att)
	return err
}

// GetByID 根據 ID 獲取附件
func (s *AttachmentStore) GetByID(ctx context.Context, id string) (*Attachment, error) {
	var att Attachment
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&att)
	if err == mongo.ErrNoDocuments {
		return nil, errs.NotFound("附件不存在")
	}
	if err != nil {
		return nil, err
	}
	return &att, nil
}

// ListByMessage 列出消息的所有附件
func (s *AttachmentStore) ListByMessage(ctx context.Context, messageID string) ([]*Attachment, error) {
	cursor, err := s.collection.Find(ctx, bson.M{"message_id": messageID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	attachments := []*Attachment{}
	for cursor.Next(ctx) {
		var att Attachment
		if err := cursor.Decode(&att); err != nil {
			return nil, err
		}
		attachments = append(attachments, &att)
	}

	return attachments, cursor.Err()
}

// DeleteByMessage 刪除消息的所有附件記錄，返回被刪除的附件
// 調用方負責清理對應的 blob.
func (s *AttachmentStore) DeleteByMessage(ctx context.Context, messageID string) ([]*Attachment, error) {
	attachments, err := s.ListByMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if len(attachments) == 0 {
		return attachments, nil
	}

	_, err = s.collection.DeleteMany(ctx, bson.M{"message_id": messageID})
	if err != nil {
		return nil, err
	}

	return attachments, nil
}
