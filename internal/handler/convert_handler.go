package handler

import (
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"medbill/internal/domain"
	"medbill/internal/port"
	"medbill/internal/service"
	"medbill/internal/xlsxexport"
)

// ConvertHandler handles invoice conversion endpoints.
type ConvertHandler struct {
	pipeline    service.Pipeline
	maxFileSize int64
}

// NewConvertHandler creates a ConvertHandler. maxFileSizeMB bounds each
// uploaded file.
func NewConvertHandler(pipeline service.Pipeline, maxFileSizeMB int64) *ConvertHandler {
	if maxFileSizeMB <= 0 {
		maxFileSizeMB = 20
	}
	return &ConvertHandler{pipeline: pipeline, maxFileSize: maxFileSizeMB << 20}
}

// Convert handles POST /api/v1/convert. It accepts one or more PDF
// files under the "files" field and returns one entry per file, in
// upload order, each carrying either the extracted record (keyed by the
// human-facing labels) or a failure descriptor.
func (h *ConvertHandler) Convert(c *gin.Context) {
	inputs, err := h.collectFiles(c)
	if err != nil {
		HandleError(c, err)
		return
	}

	results := h.pipeline.Convert(c.Request.Context(), inputs)
	RespondOK(c, gin.H{"results": results})
}

// Export handles POST /api/v1/convert/export: same input as Convert,
// but the response is an xlsx workbook of the extracted fields.
func (h *ConvertHandler) Export(c *gin.Context) {
	inputs, err := h.collectFiles(c)
	if err != nil {
		HandleError(c, err)
		return
	}

	results := h.pipeline.Convert(c.Request.Context(), inputs)

	c.Header("Content-Disposition", `attachment; filename="invoice-results.xlsx"`)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Status(http.StatusOK)
	if err := xlsxexport.Write(c.Writer, results); err != nil {
		_ = c.Error(err)
	}
}

func (h *ConvertHandler) collectFiles(c *gin.Context) ([]port.FileInput, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, domain.ErrNoFiles
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return nil, domain.ErrNoFiles
	}

	inputs := make([]port.FileInput, 0, len(headers))
	for _, header := range headers {
		if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
			return nil, domain.ErrUnsupportedFileType
		}
		if header.Size > h.maxFileSize {
			return nil, domain.ErrFileTooLarge
		}
		data, err := readUpload(header)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, port.FileInput{Name: header.Filename, Data: data})
	}
	return inputs, nil
}

func readUpload(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}
