package server

import (
	"fmt"
	"io"
	"net/http"

	"chat-engine/internal/chat"
	"chat-engine/internal/constants"
	"chat-engine/internal/httputil"
	"chat-engine/internal/platform/config"
	"chat-engine/internal/platform/logger"
	"chat-engine/internal/platform/middleware"

	"github.com/gin-gonic/gin"
)

// 上傳檔案
// multipart 表單：channel_id + files（可多個）.
func (a *API) uploadFiles(c *gin.Context) {
	userID := middleware.CurrentUserID(c)

	channelID := c.PostForm("channel_id")
	if channelID == "" {
		httputil.BadRequest(c, "缺少 channel_id 參數")
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		httputil.BadRequest(c, "無效的上傳格式")
		return
	}

	fileHeaders := form.File["files"]
	if len(fileHeaders) == 0 {
		httputil.BadRequest(c, "至少需要一個檔案")
		return
	}

	maxFiles := constants.DefaultMaxUploadFiles
	if cfg := config.Get(); cfg != nil && cfg.Storage.MaxUploadFiles > 0 {
		maxFiles = cfg.Storage.MaxUploadFiles
	}
	if len(fileHeaders) > maxFiles {
		httputil.BadRequest(c, fmt.Sprintf("一次最多上傳 %d 個檔案", maxFiles))
		return
	}

	uploads := make([]chat.FileUpload, 0, len(fileHeaders))
	opened := make([]io.Closer, 0, len(fileHeaders))
	defer func() {
		for _, f := range opened {
			if cerr := f.Close(); cerr != nil {
				logger.Warningf(c.Request.Context(), "上傳檔案關閉失敗: %v", cerr)
			}
		}
	}()

	for _, fh := range fileHeaders {
		f, oerr := fh.Open()
		if oerr != nil {
			httputil.BadRequest(c, "檔案讀取失敗: "+fh.Filename)
			return
		}
		opened = append(opened, f)
		uploads = append(uploads, chat.FileUpload{
			FileName: fh.Filename,
			FileType: fh.Header.Get("Content-Type"),
			Size:     fh.Size,
			Reader:   f,
		})
	}

	view, err := a.chat.CreateFileMessage(c.Request.Context(), channelID, userID, uploads)
	if err != nil {
		httputil.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.NewSuccessResponse(httputil.FileUploadedSuccess, view))
}

// 下載附件
func (a *API) downloadFile(c *gin.Context) {
	attachmentID := c.Param("attachment_id")
	userID := middleware.CurrentUserID(c)

	att, rc, err := a.chat.OpenAttachment(c.Request.Context(), attachmentID, userID)
	if err != nil {
		httputil.RespondError(c, err)
		return
	}
	defer func() {
		if cerr := rc.Close(); cerr != nil {
			logger.Warningf(c.Request.Context(), "附件串流關閉失敗: %v", cerr)
		}
	}()

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.FileName))
	c.Header("Content-Type", att.FileType)
	c.Header("Content-Length", fmt.Sprintf("%d", att.FileSize))

	if _, err := io.Copy(c.Writer, rc); err != nil {
		logger.Warningf(c.Request.Context(), "附件 %s 傳輸中斷: %v", attachmentID, err)
	}
}
