package blob

import (
	"context"
	"fmt"
	"io"

	"chat-engine/internal/errs"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// BlobStore 附件二進制內容存儲接口.
type BlobStore interface {
	Put(ctx context.Context, fileName string, r io.Reader) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// GridFSStore GridFS 附件存儲實作
type GridFSStore struct {
	bucket *mongo.GridFSBucket
}

// NewGridFSStore 創建 GridFS 附件存儲
func NewGridFSStore(db *mongo.Database) *GridFSStore {
	bucket := db.GridFSBucket(options.GridFSBucket().SetName("attachments"))
	return &GridFSStore{bucket: bucket}
}

// Put 寫入檔案內容，返回存儲鍵
func (s *GridFSStore) Put(ctx context.Context, fileName string, r io.Reader) (string, error) {
	fileID, err := s.bucket.UploadFromStream(ctx, fileName, r)
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}
	return fileID.Hex(), nil
}

// Open 打開檔案讀取流
func (s *GridFSStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	fileID, err := bson.ObjectIDFromHex(key)
	if err != nil {
		return nil, errs.NotFound("檔案不存在")
	}

	stream, err := s.bucket.OpenDownloadStream(ctx, fileID)
	if err == mongo.ErrFileNotFound {
		return nil, errs.NotFound("檔案不存在")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return stream, nil
}

// Delete 刪除檔案內容
func (s *GridFSStore) Delete(ctx context.Context, key string) error {
	fileID, err := bson.ObjectIDFromHex(key)
	if err != nil {
		return errs.NotFound("檔案不存在")
	}

	err = s.bucket.Delete(ctx, fileID)
	if err == mongo.ErrFileNotFound {
		return errs.NotFound("檔案不存在")
	}
	return err
}
