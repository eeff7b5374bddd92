package server

import (
	"net/http"

	"chat-engine/internal/httputil"
	"chat-engine/internal/platform/middleware"

	"github.com/gin-gonic/gin"
)

// 創建頻道
func (a *API) createChannel(c *gin.Context) {
	var req struct {
		Name        string   `json:"name"`
		Type        string   `json:"type"`
		Description string   `json:"description"`
		MemberIDs   []string `json:"member_ids"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, "無效的請求格式")
		return
	}

	userID := middleware.CurrentUserID(c)

	// 消毒頻道名稱
	sanitizedName := middleware.SanitizeInput(req.Name)

	view, err := a.chat.CreateChannel(c.Request.Context(), userID, sanitizedName, req.Type, middleware.SanitizeInput(req.Description), req.MemberIDs)
	if err != nil {
		httputil.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.NewSuccessResponse("頻道創建成功", view))
}

// 獲取或創建私聊頻道
func (a *API) createDirectChannel(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, "無效的請求格式")
		return
	}

	userID := middleware.CurrentUserID(c)

	view, err := a.chat.GetOrCreateDirect(c.Request.Context(), userID, req.UserID)
	if err != nil {
		httputil.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.NewSuccessResponse("私聊頻道就緒", view))
}

// 列出用戶頻道
func (a *API) listChannels(c *gin.Context) {
	userID := middleware.CurrentUserID(c)

	views, err := a.chat.ListChannels(c.Request.Context(), userID)
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

// 獲取單個頻道
func (a *API) getChannel(c *gin.Context) {
	channelID := c.Param("channel_id")
	userID := middleware.CurrentUserID(c)

	view, err := a.chat.GetChannel(c.Request.Context(), channelID, userID)
	if err != nil {
		httputil.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.NewSuccessResponse("查詢成功", view))
}

// 刪除頻道
func (a *API) deleteChannel(c *gin.Context) {
	channelID := c.Param("channel_id")
	userID := middleware.CurrentUserID(c)

	if err := a.chat.DeleteChannel(c.Request.Context(), channelID, userID); err != nil {
		httputil.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.Success("頻道已刪除"))
}

// 標記頻道已讀
func (a *API) markRead(c *gin.Context) {
	channelID := c.Param("channel_id")
	userID := middleware.CurrentUserID(c)

	if err := a.chat.MarkRead(c.Request.Context(), channelID, userID); err != nil {
		httputil.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.Success("已標記為已讀"))
}

// 列出頻道成員
func (a *API) listMembers(c *gin.Context) {
	channelID := c.Param("channel_id")
	userID := middleware.CurrentUserID(c)

	members, err := a.chat.ListMembers(c.Request.Context(), channelID, userID)
	if err != nil {
		httputil.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    members,
		"count":   len(members),
	})
}

// 添加頻道成員
func (a *API) addMember(c *gin.Context) {
	channelID := c.Param("channel_id")

	var req struct {
		UserID string `json:"user_id"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, "無效的請求格式")
		return
	}

	userID := middleware.CurrentUserID(c)

	if err := a.chat.AddMember(c.Request.Context(), channelID, userID, req.UserID); err != nil {
		httputil.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.Success("成員已添加"))
}

// 變更成員角色
func (a *API) updateMemberRole(c *gin.Context) {
	channelID := c.Param("channel_id")
	targetID := c.Param("user_id")

	var req struct {
		Role string `json:"role"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, "無效的請求格式")
		return
	}

	userID := middleware.CurrentUserID(c)

	if err := a.chat.SetMemberRole(c.Request.Context(), channelID, userID, targetID, req.Role); err != nil {
		httputil.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.Success("角色已更新"))
}

// 移除頻道成員
func (a *API) removeMember(c *gin.Context) {
	channelID := c.Param("channel_id")
	targetID := c.Param("user_id")
	userID := middleware.CurrentUserID(c)

	if err := a.chat.RemoveMember(c.Request.Context(), channelID, userID, targetID); err != nil {
		httputil.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.Success("成員已移除"))
}
