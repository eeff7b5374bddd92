package server

import (
	"net/http"
	"strconv"

	"chat-engine/internal/constants"
	"chat-engine/internal/httputil"
	"chat-engine/internal/platform/config"
	"chat-engine/internal/platform/middleware"

	"github.com/gin-gonic/gin"
)

// 獲取頻道消息（分頁，頁內時間正序）
func (a *API) listMessages(c *gin.Context) {
	channelID := c.Param("channel_id")
	userID := middleware.CurrentUserID(c)

	// 解析分頁參數，從配置讀取默認值
	cfg := config.Get()
	limit := constants.DefaultPageSize
	if cfg != nil && cfg.Limits.Pagination.DefaultPageSize > 0 {
		limit = cfg.Limits.Pagination.DefaultPageSize
	}
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	offset := 0
	if offsetStr := c.Query("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	views, err := a.chat.ListMessages(c.Request.Context(), channelID, userID, limit, offset)
	if err != nil {
		httputil.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    views,
		"count":   len(views),
	})
}

// 發送消息
func (a *API) sendMessage(c *gin.Context) {
	channelID := c.Param("channel_id")

	var req struct {
		Content         string `json:"content"`
		ParentMessageID string `json:"parent_message_id"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, "無效的請求格式")
		return
	}

	userID := middleware.CurrentUserID(c)

	// 消毒輸入內容
	sanitizedContent := middleware.SanitizeInput(req.Content)

	view, err := a.chat.SendMessage(c.Request.Context(), channelID, userID, sanitizedContent, req.ParentMessageID)
	if err != nil {
		httputil.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.NewSuccessResponse("消息已發送", view))
}

// 編輯消息
func (a *API) editMessage(c *gin.Context) {
	messageID := c.Param("message_id")

	var req struct {
		Content string `json:"content"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, "無效的請求格式")
		return
	}

	userID := middleware.CurrentUserID(c)

	view, err := a.chat.EditMessage(c.Request.Context(), messageID, userID, middleware.SanitizeInput(req.Content))
	if err != nil {
		httputil.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.NewSuccessResponse("消息已更新", view))
}

// 刪除消息
func (a *API) deleteMessage(c *gin.Context) {
	messageID := c.Param("message_id")
	userID := middleware.CurrentUserID(c)

	view, err := a.chat.DeleteMessage(c.Request.Context(), messageID, userID)
	if err != nil {
		httputil.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.NewSuccessResponse("消息已刪除", view))
}
