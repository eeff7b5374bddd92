package chat

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"chat-engine/internal/constants"
	"chat-engine/internal/errs"
	"chat-engine/internal/platform/logger"
	"chat-engine/internal/platform/middleware"
	"chat-engine/internal/storage/database/channel"
	"chat-engine/internal/storage/database/message"
	"chat-engine/internal/storage/database/notification"

	"github.com/google/uuid"
)

// MessageView 消息視圖
// 內容已解密，附件隨檔案消息一併返回.
type MessageView struct {
	ID              string                `json:"id"`
	ChannelID       string                `json:"channel_id"`
	SenderID        string                `json:"sender_id"`
	Content         string                `json:"content"`
	Type            string                `json:"type"`
	ParentMessageID string                `json:"parent_message_id,omitempty"`
	IsEdited        bool                  `json:"is_edited"`
	IsDeleted       bool                  `json:"is_deleted"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
	Attachments     []*message.Attachment `json:"attachments,omitempty"`
}

func (s *Service) messageView(ctx context.Context, msg *message.Message) *MessageView {
	content, err := s.crypto.DecryptMessage(msg.Content, msg.ChannelID)
	if err != nil {
		logger.Errorf(ctx, "消息 %s 解密失敗: %v", msg.ID, err)
		content = "[訊息無法讀取]"
	}
	return &MessageView{
		ID:              msg.ID,
		ChannelID:       msg.ChannelID,
		SenderID:        msg.SenderID,
		Content:         content,
		Type:            msg.Type,
		ParentMessageID: msg.ParentMessageID,
		IsEdited:        msg.IsEdited,
		IsDeleted:       msg.IsDeleted,
		CreatedAt:       msg.CreatedAt,
		UpdatedAt:       msg.UpdatedAt,
	}
}

// SendMessage 發送消息
// 成員才能發送；內容加密落庫，廣播與通知使用明文副本.
func (s *Service) SendMessage(ctx context.Context, channelID, senderID, content, parentMessageID string) (*MessageView, error) {
	if _, err := s.RequireMember(ctx, channelID, senderID); err != nil {
		return nil, err
	}
	if err := middleware.ValidateMessageContent(content); err != nil {
		return nil, errs.InvalidArg(err.Error())
	}
	ch, err := s.channels.GetByID(ctx, channelID)
	if err != nil {
		return nil, err
	}

	// 回覆必須指向同頻道內的既有消息
	if parentMessageID != "" {
		parent, perr := s.messages.GetByID(ctx, parentMessageID)
		if perr != nil {
			if errs.Is(perr, errs.CodeNotFound) {
				return nil, errs.InvalidArg("被回覆的消息不存在")
			}
			return nil, perr
		}
		if parent.ChannelID != channelID {
			return nil, errs.InvalidArg("不能回覆其他頻道的消息")
		}
	}

	stored, err := s.crypto.EncryptMessage(content, channelID)
	if err != nil {
		return nil, errs.Internal("消息加密失敗", err)
	}

	msg := message.NewMessage()
	msg.ChannelID = channelID
	msg.SenderID = senderID
	msg.Content = stored
	msg.Type = message.TypeText
	msg.ParentMessageID = parentMessageID
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}

	s.touchChannel(ctx, channelID, previewOf(content, s.crypto.Enabled()), msg.CreatedAt)
	s.audit.LogMessageSent(ctx, senderID, channelID, msg.ID, msg.Type)

	view := s.plainView(msg, content)
	if s.events != nil {
		s.events.MessageCreated(view)
	}
	s.notifyNewMessage(ctx, ch, senderID, msg.ID, content)
	return view, nil
}

// EditMessage 編輯消息
// 僅原發送者可編輯，軟刪除後的消息不可再編輯.
func (s *Service) EditMessage(ctx context.Context, messageID, editorID, content string) (*MessageView, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if _, err := s.RequireMember(ctx, msg.ChannelID, editorID); err != nil {
		return nil, err
	}
	if err := CanEditMessage(editorID, msg); err != nil {
		return nil, err
	}
	if err := middleware.ValidateMessageContent(content); err != nil {
		return nil, errs.InvalidArg(err.Error())
	}

	stored, err := s.crypto.EncryptMessage(content, msg.ChannelID)
	if err != nil {
		return nil, errs.Internal("消息加密失敗", err)
	}

	if err := s.messages.Update(ctx, msg.ID, map[string]interface{}{
		"content":   stored,
		"is_edited": true,
	}); err != nil {
		return nil, err
	}
	msg.Content = stored
	msg.IsEdited = true
	msg.UpdatedAt = time.Now()

	s.audit.LogMessageEdited(ctx, editorID, msg.ChannelID, msg.ID)

	view := s.plainView(msg, content)
	if s.events != nil {
		s.events.MessageEdited(view)
	}
	return view, nil
}

// DeleteMessage 刪除消息（軟刪除）
// 內容替換成墓碑文案，附件記錄與檔案本體一併清除;
// 重複刪除視為冪等.
func (s *Service) DeleteMessage(ctx context.Context, messageID, requesterID string) (*MessageView, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if _, err := s.RequireMember(ctx, msg.ChannelID, requesterID); err != nil {
		return nil, err
	}
	if err := CanDeleteMessage(requesterID, msg); err != nil {
		return nil, err
	}
	if msg.IsDeleted {
		return s.plainView(msg, constants.MessageTombstone), nil
	}

	if err := s.messages.Update(ctx, msg.ID, map[string]interface{}{
		"content":    constants.MessageTombstone,
		"is_deleted": true,
	}); err != nil {
		return nil, err
	}
	msg.Content = constants.MessageTombstone
	msg.IsDeleted = true
	msg.UpdatedAt = time.Now()

	s.purgeAttachments(ctx, messageID)
	s.audit.LogMessageDeleted(ctx, requesterID, msg.ChannelID, msg.ID)

	if s.events != nil {
		s.events.MessageDeleted(msg.ChannelID, msg.ID)
	}
	return s.plainView(msg, constants.MessageTombstone), nil
}

// ListMessages 分頁列出頻道消息
// 持久層按最新在前取出，返回前反轉成時間正序,
// 每一頁內部都是由舊到新.
func (s *Service) ListMessages(ctx context.Context, channelID, requesterID string, limit, offset int) ([]*MessageView, error) {
	if _, err := s.RequireMember(ctx, channelID, requesterID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = constants.DefaultPageSize
	}
	if limit > constants.DefaultMaxPageSize {
		limit = constants.DefaultMaxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	msgs, err := s.messages.ListByChannel(ctx, channelID, limit, offset)
	if err != nil {
		return nil, err
	}

	views := make([]*MessageView, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		view := s.messageView(ctx, msgs[i])
		if msgs[i].IsDeleted {
			view.Content = constants.MessageTombstone
		}
		if msgs[i].Type == message.TypeFile && !msgs[i].IsDeleted {
			if atts, aerr := s.attachments.ListByMessage(ctx, msgs[i].ID); aerr == nil {
				view.Attachments = atts
			} else {
				logger.Warningf(ctx, "消息 %s 附件查詢失敗: %v", msgs[i].ID, aerr)
			}
		}
		views = append(views, view)
	}
	return views, nil
}

// FileUpload 上傳檔案描述
type FileUpload struct {
	FileName string
	FileType string
	Size     int64
	Reader   io.Reader
}

// CreateFileMessage 發送檔案消息
// 先落消息再寫附件，保證每條附件都掛在有效消息上;
// 附件寫入部分失敗時消息仍然成立.
func (s *Service) CreateFileMessage(ctx context.Context, channelID, senderID string, files []FileUpload) (*MessageView, error) {
	if _, err := s.RequireMember(ctx, channelID, senderID); err != nil {
		return nil, err
	}
	ch, err := s.channels.GetByID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if err := s.validateUploads(files); err != nil {
		return nil, err
	}

	content := fmt.Sprintf("傳送了 %d 個檔案", len(files))
	stored, err := s.crypto.EncryptMessage(content, channelID)
	if err != nil {
		return nil, errs.Internal("消息加密失敗", err)
	}

	now := time.Now()
	msg := message.NewMessage()
	msg.ChannelID = channelID
	msg.SenderID = senderID
	msg.Content = stored
	msg.Type = message.TypeFile
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}

	attachments := make([]*message.Attachment, 0, len(files))
	for _, f := range files {
		key, perr := s.blobs.Put(ctx, f.FileName, f.Reader)
		if perr != nil {
			logger.Errorf(ctx, "檔案 %s 存儲失敗: %v", f.FileName, perr)
			continue
		}
		att := &message.Attachment{
			ID:         uuid.New().String(),
			MessageID:  msg.ID,
			ChannelID:  channelID,
			FileName:   f.FileName,
			FileType:   f.FileType,
			FileSize:   f.Size,
			StorageKey: key,
			UploadedBy: senderID,
			CreatedAt:  now,
		}
		if aerr := s.attachments.Create(ctx, att); aerr != nil {
			logger.Errorf(ctx, "附件 %s 記錄寫入失敗: %v", f.FileName, aerr)
			if derr := s.blobs.Delete(ctx, key); derr != nil {
				logger.Warningf(ctx, "孤兒檔案 %s 清理失敗: %v", key, derr)
			}
			continue
		}
		attachments = append(attachments, att)
		s.audit.LogFileUploaded(ctx, senderID, channelID, f.FileName, f.Size)
	}
	if len(attachments) == 0 {
		return nil, errs.Internal("所有檔案上傳失敗", nil)
	}

	s.touchChannel(ctx, channelID, "[檔案]", now)

	view := s.plainView(msg, content)
	view.Attachments = attachments
	if s.events != nil {
		s.events.MessageCreated(view)
	}
	s.notifyNewMessage(ctx, ch, senderID, msg.ID, content)
	return view, nil
}

// OpenAttachment 下載附件
// 透過附件所屬頻道做成員校驗.
func (s *Service) OpenAttachment(ctx context.Context, attachmentID, requesterID string) (*message.Attachment, io.ReadCloser, error) {
	att, err := s.attachments.GetByID(ctx, attachmentID)
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.RequireMember(ctx, att.ChannelID, requesterID); err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Open(ctx, att.StorageKey)
	if err != nil {
		return nil, nil, err
	}
	return att, rc, nil
}

// systemMessage 寫入並廣播系統消息，失敗只記錄不中斷主流程
func (s *Service) systemMessage(ctx context.Context, channelID, content string) {
	stored, err := s.crypto.EncryptMessage(content, channelID)
	if err != nil {
		logger.Warningf(ctx, "系統消息加密失敗: %v", err)
		return
	}
	msg := message.NewMessage()
	msg.ChannelID = channelID
	msg.SenderID = constants.SystemSenderID
	msg.Content = stored
	msg.Type = message.TypeSystem
	if err := s.messages.Create(ctx, msg); err != nil {
		logger.Warningf(ctx, "系統消息寫入失敗: %v", err)
		return
	}
	s.touchChannel(ctx, channelID, content, msg.CreatedAt)
	if s.events != nil {
		s.events.MessageCreated(s.plainView(msg, content))
	}
}

// touchChannel 更新頻道最後消息預覽
// 加密開啟時不把明文寫進頻道文檔.
func (s *Service) touchChannel(ctx context.Context, channelID, preview string, at time.Time) {
	if err := s.channels.SetLastMessage(ctx, channelID, preview, at); err != nil {
		logger.Warningf(ctx, "頻道 %s 最後消息更新失敗: %v", channelID, err)
	}
}

func (s *Service) notifyNewMessage(ctx context.Context, ch *channel.Channel, senderID, messageID, content string) {
	if s.notifier == nil {
		return
	}
	mems, err := s.memberships.ListByChannel(ctx, ch.ID)
	if err != nil {
		logger.Warningf(ctx, "頻道 %s 成員查詢失敗，略過消息通知: %v", ch.ID, err)
		return
	}
	others := make([]string, 0, len(mems))
	for _, m := range mems {
		if m.UserID != senderID {
			others = append(others, m.UserID)
		}
	}
	s.notifyMembers(ctx, others, func(uid string) *notification.Notification {
		return &notification.Notification{
			UserID:        uid,
			Type:          notification.TypeNewMessage,
			Title:         ch.Name,
			Message:       previewOf(content, false),
			Payload:       map[string]interface{}{"channel_id": ch.ID, "message_id": messageID},
			RelatedUserID: senderID,
		}
	})
}

func (s *Service) validateUploads(files []FileUpload) error {
	if len(files) == 0 {
		return errs.InvalidArg("至少需要一個檔案")
	}
	max := s.maxUploadFiles
	if max <= 0 {
		max = constants.DefaultMaxUploadFiles
	}
	if len(files) > max {
		return errs.InvalidArg(fmt.Sprintf("一次最多上傳 %d 個檔案", max))
	}
	maxSize := s.maxUploadSize
	if maxSize <= 0 {
		maxSize = constants.DefaultMaxUploadFileSize
	}
	for _, f := range files {
		if strings.TrimSpace(f.FileName) == "" {
			return errs.InvalidArg("檔案名不能為空")
		}
		if f.Size <= 0 || f.Size > maxSize {
			return errs.InvalidArg(fmt.Sprintf("檔案 %s 大小超過限制", f.FileName))
		}
		if len(s.allowedMIMEs) > 0 && !s.allowedMIMEs[strings.ToLower(f.FileType)] {
			return errs.InvalidArg("不支持的檔案類型: " + f.FileType)
		}
	}
	return nil
}

// purgeAttachments 清除消息的附件記錄與檔案本體
// 檔案刪除失敗只記錄，不回滾消息刪除.
func (s *Service) purgeAttachments(ctx context.Context, messageID string) {
	atts, err := s.attachments.DeleteByMessage(ctx, messageID)
	if err != nil {
		logger.Errorf(ctx, "消息 %s 附件清除失敗: %v", messageID, err)
		return
	}
	for _, att := range atts {
		if err := s.blobs.Delete(ctx, att.StorageKey); err != nil {
			logger.Warningf(ctx, "附件檔案 %s 刪除失敗: %v", att.StorageKey, err)
		}
	}
}

// plainView 用已知明文組裝視圖，免去一次解密
func (s *Service) plainView(msg *message.Message, content string) *MessageView {
	return &MessageView{
		ID:              msg.ID,
		ChannelID:       msg.ChannelID,
		SenderID:        msg.SenderID,
		Content:         content,
		Type:            msg.Type,
		ParentMessageID: msg.ParentMessageID,
		IsEdited:        msg.IsEdited,
		IsDeleted:       msg.IsDeleted,
		CreatedAt:       msg.CreatedAt,
		UpdatedAt:       msg.UpdatedAt,
	}
}

func previewOf(content string, encrypted bool) string {
	if encrypted {
		return "[新訊息]"
	}
	runes := []rune(content)
	if len(runes) > 100 {
		return string(runes[:100]) + "..."
	}
	return content
}
