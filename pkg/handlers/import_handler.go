package handlers

import (
	"net/http"

	"dinecast-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// 取り込みファイルの上限
const maxImportBytes = 10 << 20

// ImportHandler POSエクスポート取り込みAPI
type ImportHandler struct {
	importer *services.TransactionImportService
}

// NewImportHandler 新しいImportHandler
func NewImportHandler(importer *services.TransactionImportService) *ImportHandler {
	return &ImportHandler{importer: importer}
}

// ImportTransactions POST /restaurants/:id/transactions/import (multipart "file")
func (h *ImportHandler) ImportTransactions(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImportBytes)
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "ファイルの取得に失敗しました。"})
		return
	}
	defer file.Close()

	result, err := h.importer.Import(c.Request.Context(), c.Param("id"), header.Filename, file)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}
