package audit

import (
	"context"
	"time"

	"chat-engine/internal/platform/logger"
	"chat-engine/internal/platform/requestmeta"
)

// AuditService 審計服務
// 記錄安全敏感操作，輸出到結構化日誌
type AuditService struct {
	enabled bool
}

// NewAuditService 創建審計服務
func NewAuditService(enabled bool) *AuditService {
	return &AuditService{
		enabled: enabled,
	}
}

// AuditEvent 審計事件
type AuditEvent struct {
	Timestamp time.Time              `json:"timestamp"`
	EventType string                 `json:"event_type"`
	UserID    string                 `json:"user_id"`
	ChannelID string                 `json:"channel_id,omitempty"`
	MessageID string                 `json:"message_id,omitempty"`
	Action    string                 `json:"action"`
	Result    string                 `json:"result"` // success, failure, denied
	Details   map[string]interface{} `json:"details,omitempty"`
	IPAddress string                 `json:"ip_address,omitempty"`
	UserAgent string                 `json:"user_agent,omitempty"`
}

// LogChannelCreation 記錄頻道創建
func (a *AuditService) LogChannelCreation(ctx context.Context, userID, channelID, channelType string) {
	if !a.enabled {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: "channel_creation",
		UserID:    userID,
		ChannelID: channelID,
		Action:    "create_channel",
		Result:    "success",
		Details: map[string]interface{}{
			"channel_type": channelType,
		},
	}

	a.enrichWithMetadata(ctx, &event)
	a.log(ctx, event)
}

// LogChannelDeleted 記錄頻道刪除
func (a *AuditService) LogChannelDeleted(ctx context.Context, userID, channelID string) {
	if !a.enabled {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: "channel_deleted",
		UserID:    userID,
		ChannelID: channelID,
		Action:    "delete_channel",
		Result:    "success",
	}

	a.enrichWithMetadata(ctx, &event)
	a.log(ctx, event)
}

// LogMessageSent 記錄消息發送
func (a *AuditService) LogMessageSent(ctx context.Context, userID, channelID, messageID, messageType string) {
	if !a.enabled {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: "message_sent",
		UserID:    userID,
		ChannelID: channelID,
		MessageID: messageID,
		Action:    "send_message",
		Result:    "success",
		Details: map[string]interface{}{
			"message_type": messageType,
		},
	}

	a.log(ctx, event)
}

// LogMessageEdited 記錄消息編輯
func (a *AuditService) LogMessageEdited(ctx context.Context, userID, channelID, messageID string) {
	if !a.enabled {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: "message_edited",
		UserID:    userID,
		ChannelID: channelID,
		MessageID: messageID,
		Action:    "edit_message",
		Result:    "success",
	}

	a.log(ctx, event)
}

// LogMessageDeleted 記錄消息刪除
func (a *AuditService) LogMessageDeleted(ctx context.Context, userID, channelID, messageID string) {
	if !a.enabled {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: "message_deleted",
		UserID:    userID,
		ChannelID: channelID,
		MessageID: messageID,
		Action:    "delete_message",
		Result:    "success",
	}

	a.log(ctx, event)
}

// LogMemberAdded 記錄添加成員
func (a *AuditService) LogMemberAdded(ctx context.Context, operatorID, channelID, memberID string) {
	if !a.enabled {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: "member_added",
		UserID:    operatorID,
		ChannelID: channelID,
		Action:    "add_member",
		Result:    "success",
		Details: map[string]interface{}{
			"member_id": memberID,
		},
	}

	a.log(ctx, event)
}

// LogMemberRemoved 記錄移除成員
func (a *AuditService) LogMemberRemoved(ctx context.Context, operatorID, channelID, memberID string) {
	if !a.enabled {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: "member_removed",
		UserID:    operatorID,
		ChannelID: channelID,
		Action:    "remove_member",
		Result:    "success",
		Details: map[string]interface{}{
			"member_id": memberID,
		},
	}

	a.log(ctx, event)
}

// LogFileUploaded 記錄檔案上傳
func (a *AuditService) LogFileUploaded(ctx context.Context, userID, channelID, fileName string, fileSize int64) {
	if !a.enabled {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: "file_uploaded",
		UserID:    userID,
		ChannelID: channelID,
		Action:    "upload_file",
		Result:    "success",
		Details: map[string]interface{}{
			"file_name": fileName,
			"file_size": fileSize,
		},
	}

	a.enrichWithMetadata(ctx, &event)
	a.log(ctx, event)
}

// LogAuthenticationFailure 記錄認證失敗
func (a *AuditService) LogAuthenticationFailure(ctx context.Context, userID, reason string) {
	if !a.enabled {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: "authentication",
		UserID:    userID,
		Action:    "authenticate",
		Result:    "failure",
		Details: map[string]interface{}{
			"reason": reason,
		},
	}

	a.enrichWithMetadata(ctx, &event)
	a.log(ctx, event)
}

// LogAccessDenied 記錄訪問被拒絕
func (a *AuditService) LogAccessDenied(ctx context.Context, userID, channelID, reason string) {
	if !a.enabled {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: "access_denied",
		UserID:    userID,
		ChannelID: channelID,
		Action:    "access_resource",
		Result:    "denied",
		Details: map[string]interface{}{
			"reason": reason,
		},
	}

	a.enrichWithMetadata(ctx, &event)
	a.log(ctx, event)
}

// log 記錄審計事件
func (a *AuditService) log(ctx context.Context, event AuditEvent) {
	opts := []logger.LogOption{
		logger.WithAction(event.Action),
		logger.WithLabels(map[string]string{
			"audit":      "true",
			"event_type": event.EventType,
			"result":     event.Result,
		}),
	}
	if event.UserID != "" {
		opts = append(opts, logger.WithUserID(event.UserID))
	}
	if event.ChannelID != "" {
		opts = append(opts, logger.WithChannelID(event.ChannelID))
	}
	if event.MessageID != "" {
		opts = append(opts, logger.WithMessageID(event.MessageID))
	}
	if len(event.Details) > 0 || event.IPAddress != "" {
		details := make(map[string]interface{}, len(event.Details)+2)
		for k, v := range event.Details {
			details[k] = v
		}
		if event.IPAddress != "" {
			details["ip_address"] = event.IPAddress
		}
		if event.UserAgent != "" {
			details["user_agent"] = event.UserAgent
		}
		opts = append(opts, logger.WithDetails(details))
	}

	logger.Notice(ctx, "audit: "+event.EventType, opts...)
}

// IsEnabled 檢查審計是否啟用
func (a *AuditService) IsEnabled() bool {
	return a.enabled
}

// enrichWithMetadata 從 context 提取元數據並豐富審計事件
func (a *AuditService) enrichWithMetadata(ctx context.Context, event *AuditEvent) {
	meta := requestmeta.GetRequestMetadata(ctx)
	if meta == nil {
		return
	}
	event.IPAddress = meta.IPAddress
	event.UserAgent = meta.UserAgent
}
