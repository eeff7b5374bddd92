package chat

import (
	"context"

	"chat-engine/internal/errs"
	"chat-engine/internal/storage/database/channel"
	"chat-engine/internal/storage/database/message"
)

// RequireMember 成員資格守衛
// 所有頻道讀寫前必經；非成員一律回報頻道不存在，
// 不向外洩露頻道是否存在.
func (s *Service) RequireMember(ctx context.Context, channelID, userID string) (*channel.Membership, error) {
	m, err := s.memberships.Get(ctx, channelID, userID)
	if err != nil {
		if errs.Is(err, errs.CodeNotFound) {
			return nil, errs.NotFound("頻道不存在")
		}
		return nil, errs.Internal("查詢成員資格失敗", err)
	}
	return m, nil
}

// RequireAdmin 管理員守衛
// 添加成員、移除他人、刪除頻道需要 admin 角色.
func (s *Service) RequireAdmin(ctx context.Context, channelID, userID string) (*channel.Membership, error) {
	m, err := s.RequireMember(ctx, channelID, userID)
	if err != nil {
		return nil, err
	}
	if m.Role != channel.RoleAdmin {
		s.audit.LogAccessDenied(ctx, userID, channelID, "需要管理員權限")
		return nil, errs.Forbidden("需要管理員權限")
	}
	return m, nil
}

// CanEditMessage 消息編輯權限判定
// 只有原發送者可編輯，且軟刪除後禁止再編輯.
func CanEditMessage(userID string, msg *message.Message) error {
	if msg.SenderID != userID {
		return errs.Forbidden("只有發送者可以修改消息")
	}
	if msg.IsDeleted {
		return errs.FailedPrecondition("消息已刪除，無法修改")
	}
	return nil
}

// CanDeleteMessage 消息刪除權限判定
func CanDeleteMessage(userID string, msg *message.Message) error {
	if msg.SenderID != userID {
		return errs.Forbidden("只有發送者可以刪除消息")
	}
	return nil
}
