// Package httpapi exposes the bulletin service over HTTP with gin.
package httpapi

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/a3tai/mcp-bulletin/internal/bulletin"
	pdferrors "github.com/a3tai/mcp-bulletin/internal/pdf/errors"
)

const (
	// ChurchHeader carries the caller's church; authentication happens upstream
	ChurchHeader = "X-Church-ID"

	churchKey  = "churchID"
	weekLayout = "2006-01-02"
)

// Handler serves the bulletin routes
type Handler struct {
	svc       *bulletin.Service
	maxUpload int64
}

// NewRouter builds the gin engine. mcpHandler, when non-nil, is mounted at
// /mcp. maxUpload bounds multipart bodies in bytes.
func NewRouter(svc *bulletin.Service, mcpHandler http.Handler, maxUpload int64) *gin.Engine {
	h := &Handler{svc: svc, maxUpload: maxUpload}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	if maxUpload > 0 {
		r.MaxMultipartMemory = maxUpload
	}

	r.GET("/health", h.health)

	if mcpHandler != nil {
		r.Any("/mcp", gin.WrapH(mcpHandler))
	}

	api := r.Group("/api", requireChurch)
	{
		api.POST("/bulletins/upload", h.upload)
		api.GET("/bulletins/:id", h.getBulletin)
		api.POST("/bulletins/:id/create-template", h.createTemplate)
		api.POST("/bulletins/:id/extract", h.extract)
		api.POST("/bulletins/:id/save-values", h.saveValues)
		api.GET("/bulletins/:id/generate", h.generate)
		api.GET("/templates", h.templates)
	}

	return r
}

func requireChurch(c *gin.Context) {
	church := strings.TrimSpace(c.GetHeader(ChurchHeader))
	if church == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + ChurchHeader + " header"})
		return
	}
	c.Set(churchKey, church)
	c.Next()
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (h *Handler) upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		h.fail(c, fmt.Errorf("%w: no file provided", bulletin.ErrInvalidInput))
		return
	}

	weekOf, err := time.Parse(weekLayout, strings.TrimSpace(c.PostForm("weekOf")))
	if err != nil {
		h.fail(c, fmt.Errorf("%w: weekOf must be a YYYY-MM-DD date", bulletin.ErrInvalidInput))
		return
	}

	if h.maxUpload > 0 && file.Size > h.maxUpload {
		h.fail(c, fmt.Errorf("%w: file size %d exceeds maximum %d", bulletin.ErrInvalidInput, file.Size, h.maxUpload))
		return
	}

	f, err := file.Open()
	if err != nil {
		h.fail(c, fmt.Errorf("failed to open upload: %w", err))
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		h.fail(c, fmt.Errorf("failed to read upload: %w", err))
		return
	}

	result, err := h.svc.Upload(c.Request.Context(), bulletin.UploadRequest{
		ChurchID: c.GetString(churchKey),
		FileName: file.Filename,
		Data:     data,
		WeekOf:   weekOf,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	match := gin.H{"templateId": nil, "confidence": result.Match.Confidence}
	if result.Match.Matched() {
		match["templateId"] = result.Match.Template.ID
	}

	c.JSON(http.StatusOK, gin.H{
		"bulletinId":      result.Bulletin.ID,
		"pdfUrl":          result.Bulletin.OriginalPDFURL,
		"fingerprint":     result.Fingerprint,
		"pageCount":       result.PageCount,
		"match":           match,
		"extractedValues": result.ExtractedValues,
	})
}

func (h *Handler) getBulletin(c *gin.Context) {
	b, err := h.svc.GetBulletin(c.Request.Context(), c.GetString(churchKey), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

type createTemplateBody struct {
	Name             string                     `json:"name"`
	FieldDefinitions []bulletin.FieldDefinition `json:"fieldDefinitions"`
	Fingerprint      string                     `json:"fingerprint"`
}

func (h *Handler) createTemplate(c *gin.Context) {
	var body createTemplateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, fmt.Errorf("%w: %v", bulletin.ErrInvalidInput, err))
		return
	}

	t, err := h.svc.CreateTemplate(c.Request.Context(), bulletin.CreateTemplateRequest{
		ChurchID:         c.GetString(churchKey),
		BulletinID:       c.Param("id"),
		Name:             body.Name,
		FieldDefinitions: body.FieldDefinitions,
		Fingerprint:      body.Fingerprint,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"templateId": t.ID, "success": true})
}

func (h *Handler) extract(c *gin.Context) {
	values, err := h.svc.ExtractValues(c.Request.Context(), c.GetString(churchKey), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "extractedValues": values})
}

type saveValuesBody struct {
	FieldValues map[string]string `json:"fieldValues"`
}

func (h *Handler) saveValues(c *gin.Context) {
	var body saveValuesBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, fmt.Errorf("%w: %v", bulletin.ErrInvalidInput, err))
		return
	}

	if err := h.svc.SaveValues(c.Request.Context(), c.GetString(churchKey), c.Param("id"), body.FieldValues); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) generate(c *gin.Context) {
	var fontSize float64
	if raw := c.Query("fontSize"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			h.fail(c, fmt.Errorf("%w: fontSize must be a positive number", bulletin.ErrInvalidInput))
			return
		}
		fontSize = v
	}

	pdf, err := h.svc.Generate(c.Request.Context(), c.GetString(churchKey), c.Param("id"), fontSize)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, pdf.Filename))
	c.Data(http.StatusOK, "application/pdf", pdf.Data)
}

func (h *Handler) templates(c *gin.Context) {
	templates, err := h.svc.ListTemplates(c.Request.Context(), c.GetString(churchKey))
	if err != nil {
		h.fail(c, err)
		return
	}
	if templates == nil {
		templates = []bulletin.Template{}
	}
	c.JSON(http.StatusOK, templates)
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// StatusFor maps service errors to HTTP status codes
func StatusFor(err error) int {
	switch {
	case errors.Is(err, bulletin.ErrNotFound):
		return http.StatusNotFound
	case pdferrors.IsGeneration(err):
		return http.StatusInternalServerError
	case errors.Is(err, bulletin.ErrInvalidInput),
		errors.Is(err, bulletin.ErrInvalidField),
		errors.Is(err, bulletin.ErrNoTemplateFields),
		pdferrors.IsDecode(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
