package handler

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"medbill/internal/domain"
	"medbill/internal/extract"
	"medbill/internal/port"
	"medbill/internal/service"
	"medbill/internal/structurer"
)

// DebugHandler exposes each pipeline stage in isolation so a stage can
// be exercised without re-running the full batch.
type DebugHandler struct {
	pipeline   service.Pipeline
	structurer port.Structurer
	artifacts  port.ArtifactStore
}

// NewDebugHandler creates a DebugHandler.
func NewDebugHandler(pipeline service.Pipeline, str port.Structurer, artifacts port.ArtifactStore) *DebugHandler {
	return &DebugHandler{pipeline: pipeline, structurer: str, artifacts: artifacts}
}

// Parse handles POST /api/v1/debug/parse: submit/poll/fetch a single PDF,
// store the result archive, and return its artifact key.
func (h *DebugHandler) Parse(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		HandleError(c, domain.ErrNoFiles)
		return
	}
	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		HandleError(c, domain.ErrUnsupportedFileType)
		return
	}
	data, err := readUpload(header)
	if err != nil {
		HandleError(c, err)
		return
	}

	key, err := h.pipeline.ParseArchive(c.Request.Context(), port.FileInput{Name: header.Filename, Data: data})
	if err != nil {
		RespondError(c, http.StatusBadGateway, "PARSE_FAILED", err.Error())
		return
	}
	RespondOK(c, gin.H{"artifact_key": key})
}

// Extract handles POST /api/v1/debug/extract: flatten an uploaded result
// archive and return the text plus the representation it came from.
func (h *DebugHandler) Extract(c *gin.Context) {
	header, err := c.FormFile("archive")
	if err != nil {
		HandleError(c, domain.ErrNoFiles)
		return
	}
	data, err := readUpload(header)
	if err != nil {
		HandleError(c, err)
		return
	}

	doc, err := extract.Extract(data)
	if err != nil {
		if errors.Is(err, extract.ErrNoContent) {
			RespondError(c, http.StatusUnprocessableEntity, domain.CodeNoContent, err.Error())
			return
		}
		RespondError(c, http.StatusBadRequest, domain.CodeExtractFailed, err.Error())
		return
	}
	RespondOK(c, gin.H{
		"representation": doc.Representation,
		"text":           doc.Text,
	})
}

// Structure handles POST /api/v1/debug/structure: run the raw request
// body text through the structurer and return the record together with
// the raw model response.
func (h *DebugHandler) Structure(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		HandleError(c, err)
		return
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		HandleError(c, domain.ErrEmptyText)
		return
	}

	out, err := h.structurer.Structure(c.Request.Context(), text)
	if err != nil {
		var parseErr *structurer.ResponseParseError
		var fieldErr *domain.FieldTypeError
		switch {
		case errors.As(err, &parseErr):
			RespondError(c, http.StatusUnprocessableEntity, domain.CodeBadModelOutput, err.Error())
		case errors.As(err, &fieldErr):
			RespondError(c, http.StatusUnprocessableEntity, domain.CodeSchemaMismatch, err.Error())
		default:
			RespondError(c, http.StatusBadGateway, domain.CodeStructFailed, err.Error())
		}
		return
	}
	RespondOK(c, gin.H{
		"data":         out.Record,
		"raw_response": out.RawResponse,
		"model":        out.ModelUsed,
	})
}

// Artifact handles GET /api/v1/debug/artifacts/*key: download a stored
// intermediate artifact.
func (h *DebugHandler) Artifact(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	if key == "" {
		HandleError(c, domain.ErrArtifactNotFound)
		return
	}
	a, err := h.artifacts.Get(c.Request.Context(), key)
	if err != nil {
		HandleError(c, err)
		return
	}
	contentType := a.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Data(http.StatusOK, contentType, a.Data)
}
