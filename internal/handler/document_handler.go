// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"pdfchat-go/internal/pipeline"
	"pdfchat-go/internal/service"
	"pdfchat-go/pkg/log"
)

// DocumentHandler 负责处理所有与文档管理相关的 API 请求。
type DocumentHandler struct {
	docService     service.DocumentService
	maxUploadBytes int64
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。maxUploadMB 为 0 表示不限制。
func NewDocumentHandler(docService service.DocumentService, maxUploadMB int64) *DocumentHandler {
	return &DocumentHandler{docService: docService, maxUploadBytes: maxUploadMB << 20}
}

// Upload 处理 PDF 上传：解析、切块、建立索引后返回文档 ID。
func (h *DocumentHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少上传文件字段 file"})
		return
	}
	if h.maxUploadBytes > 0 && fileHeader.Size > h.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("文件大小超过限制 (%d MB)", h.maxUploadBytes>>20)})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		log.Error("Upload: 打开上传文件失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "读取上传文件失败"})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		log.Error("Upload: 读取上传文件失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "读取上传文件失败"})
		return
	}

	info, err := h.docService.Upload(c.Request.Context(), fileHeader.Filename, data)
	if err != nil {
		var ingErr *pipeline.IngestionError
		if errors.As(err, &ingErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": ingErr.Error()})
			return
		}
		log.Errorf("Upload: 处理文件失败, FileName: %s, Error: %v", fileHeader.Filename, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "PDF processed successfully",
		"pdf_id":        info.ID,
		"pdf_name":      info.Name,
		"segment_count": info.SegmentCount,
	})
}

// List 返回 id → 文件名 的映射。
func (h *DocumentHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"pdfs": h.docService.List()})
}

// ListDetailed 按上传顺序返回文档详情。
func (h *DocumentHandler) ListDetailed(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "获取文档列表成功",
		"data":    h.docService.ListDetailed(),
	})
}

// Get 返回单个文档详情。
func (h *DocumentHandler) Get(c *gin.Context) {
	info, err := h.docService.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("PDF with ID %s not found", c.Param("id"))})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": info})
}

// Delete 处理删除文档的请求。
func (h *DocumentHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	removed, err := h.docService.Delete(c.Request.Context(), id)
	if err != nil {
		log.Errorf("Delete: 删除文档失败, ID: %s, Error: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("PDF with ID %s not found", id)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("PDF with ID %s removed successfully", id)})
}

// Download 返回原始文件的预签名下载链接。
func (h *DocumentHandler) Download(c *gin.Context) {
	id := c.Param("id")
	url, err := h.docService.DownloadURL(c.Request.Context(), id)
	switch {
	case errors.Is(err, service.ErrDocumentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("PDF with ID %s not found", id)})
	case errors.Is(err, service.ErrArchiveDisabled):
		c.JSON(http.StatusNotImplemented, gin.H{"error": "未启用对象存储, 无法下载原始文件"})
	case err != nil:
		log.Errorf("Download: 生成下载链接失败, ID: %s, Error: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "生成下载链接失败"})
	default:
		c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"url": url}})
	}
}
