package server

import (
	"net/http"

	"chat-engine/internal/httputil"
	"chat-engine/internal/platform/middleware"

	"github.com/gin-gonic/gin"
)

// 查詢自己的在線狀態
func (a *API) getOwnStatus(c *gin.Context) {
	userID := middleware.CurrentUserID(c)

	us, err := a.presence.GetStatus(c.Request.Context(), userID)
	if err != nil {
		httputil.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.NewSuccessResponse("查詢成功", us))
}

// 更新在線狀態
// 手動設置 away/busy/in_meeting 等狀態與自訂簽名.
func (a *API) updateStatus(c *gin.Context) {
	var req struct {
		Status        string `json:"status"`
		CustomMessage string `json:"custom_message"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, "無效的請求格式")
		return
	}

	userID := middleware.CurrentUserID(c)

	us, err := a.presence.SetStatus(c.Request.Context(), userID, req.Status, middleware.SanitizeInput(req.CustomMessage))
	if err != nil {
		httputil.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.NewSuccessResponse("狀態已更新", us))
}

// 查詢指定用戶在線狀態
func (a *API) getUserStatus(c *gin.Context) {
	targetID := c.Param("user_id")

	us, err := a.presence.GetStatus(c.Request.Context(), targetID)
	if err != nil {
		httputil.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.NewSuccessResponse("查詢成功", us))
}
