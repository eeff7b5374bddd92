package server

import (
	"net/http"
	"strconv"

	"chat-engine/internal/httputil"
	"chat-engine/internal/platform/middleware"

	"github.com/gin-gonic/gin"
)

// 列出通知
// ?unread=true 只取未讀.
func (a *API) listNotifications(c *gin.Context) {
	userID := middleware.CurrentUserID(c)

	unreadOnly := c.Query("unread") == "true"

	limit := 0
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

	list, err := a.notify.List(c.Request.Context(), userID, unreadOnly, limit, offset)
	if err != nil {
		httputil.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    list,
		"count":   len(list),
	})
}

// 未讀通知數量
func (a *API) unreadNotificationCount(c *gin.Context) {
	userID := middleware.CurrentUserID(c)

	count, err := a.notify.CountUnread(c.Request.Context(), userID)
	if err != nil {
		httputil.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"count": count},
	})
}

// 標記單條通知已讀
func (a *API) markNotificationRead(c *gin.Context) {
	notificationID := c.Param("notification_id")
	userID := middleware.CurrentUserID(c)

	if err := a.notify.MarkRead(c.Request.Context(), notificationID, userID); err != nil {
		httputil.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.Success("通知已標記為已讀"))
}

// 標記全部通知已讀
func (a *API) markAllNotificationsRead(c *gin.Context) {
	userID := middleware.CurrentUserID(c)

	count, err := a.notify.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		httputil.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.SuccessWithCount("通知已全部標記為已讀", int(count)))
}

// 刪除單條通知
func (a *API) deleteNotification(c *gin.Context) {
	notificationID := c.Param("notification_id")
	userID := middleware.CurrentUserID(c)

	if err := a.notify.Delete(c.Request.Context(), notificationID, userID); err != nil {
		httputil.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.Success("通知已刪除"))
}

// 批量清除通知
// ?scope=read 只清已讀，?scope=all 全部清除.
func (a *API) clearNotifications(c *gin.Context) {
	userID := middleware.CurrentUserID(c)

	var (
		count int64
		err   error
	)
	switch c.DefaultQuery("scope", "read") {
	case "read":
		count, err = a.notify.DeleteRead(c.Request.Context(), userID)
	case "all":
		count, err = a.notify.DeleteAll(c.Request.Context(), userID)
	default:
		httputil.BadRequest(c, "scope 參數必須是 read 或 all")
		return
	}
	if err != nil {
		httputil.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.SuccessWithCount("通知已清除", int(count)))
}
