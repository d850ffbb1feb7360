package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"canvas-server/services/media-engine/internal/config"
	domain "canvas-server/services/media-engine/internal/domain/media"
	"canvas-server/services/media-engine/internal/interfaces/httpserver/requests"
	"canvas-server/services/media-engine/internal/interfaces/httpserver/responses"
	"canvas-server/services/media-engine/utils/mediaid"
)

// MediaHandler exposes the media endpoints.
type MediaHandler struct {
	cfg     *config.Config
	service *domain.Service
	sweeper *domain.Sweeper
	log     zerolog.Logger
}

func NewMediaHandler(cfg *config.Config, service *domain.Service, sweeper *domain.Sweeper, log zerolog.Logger) *MediaHandler {
	return &MediaHandler{
		cfg:     cfg,
		service: service,
		sweeper: sweeper,
		log:     log.With().Str("component", "media-handler").Logger(),
	}
}

// Upload ingests a new asset from a multipart form. The file part is
// required; the display filename defaults to the part's filename.
func (h *MediaHandler) Upload(c *gin.Context) {
	input, closer, ok := h.bindUpload(c)
	if !ok {
		return
	}
	defer closer.Close()

	result, err := h.service.Upload(c.Request.Context(), input)
	if err != nil {
		h.log.Error().Err(err).Msg("upload failed")
		responses.HandleError(c, err, "upload failed")
		return
	}

	variants, err := h.service.Variants(c.Request.Context(), result.Media.ID)
	if err != nil {
		h.log.Warn().Err(err).Str("media_id", result.Media.ID).Msg("could not load variants for response")
	}
	c.JSON(http.StatusCreated, responses.UploadResponse{
		Media:        responses.NewMediaResponse(result.Media, variants, h.cfg.PublicBaseURL),
		Deduplicated: result.Deduplicated,
	})
}

// Get returns a record's metadata and variant listing.
func (h *MediaHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if !mediaid.IsValid(id) {
		responses.HandleError(c, domain.ErrNotFound, "media not found")
		return
	}

	m, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		responses.HandleError(c, err, "failed to get media")
		return
	}
	variants, err := h.service.Variants(c.Request.Context(), id)
	if err != nil {
		responses.HandleError(c, err, "failed to get media")
		return
	}
	c.JSON(http.StatusOK, responses.NewMediaResponse(m, variants, h.cfg.PublicBaseURL))
}

// Serve streams a record's bytes. The trailing filename is cosmetic; the
// record is addressed by id alone. A ?variant selector falls back to the
// original when the rendition is absent, and requests carrying the ?v
// version pin are served immutable.
func (h *MediaHandler) Serve(c *gin.Context) {
	id := c.Param("id")
	if !mediaid.IsValid(id) {
		responses.HandleError(c, domain.ErrNotFound, "media not found")
		return
	}

	reader, m, mime, err := h.service.OpenForServing(c.Request.Context(), id, c.Query("variant"))
	if err != nil {
		responses.HandleError(c, err, "failed to serve media")
		return
	}
	defer reader.Close()

	etag := domain.ETag(m)
	if match := c.GetHeader("If-None-Match"); match != "" && match == etag {
		c.Status(http.StatusNotModified)
		return
	}

	c.Header("ETag", etag)
	if c.Query("v") != "" {
		c.Header("Cache-Control", "public, max-age=31536000, immutable")
	} else {
		c.Header("Cache-Control", "public, max-age=0, must-revalidate")
	}
	c.Header("Content-Type", mime)
	c.Header("Content-Disposition", `inline; filename="`+domain.CanonicalFilename(m.Filename, m.StoragePath)+`"`)
	c.Header("X-Content-Type-Options", "nosniff")

	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, reader); err != nil {
		h.log.Warn().Err(err).Str("media_id", id).Msg("serve interrupted")
	}
}

// Replace swaps the content behind an existing record in place.
func (h *MediaHandler) Replace(c *gin.Context) {
	id := c.Param("id")
	if !mediaid.IsValid(id) {
		responses.HandleError(c, domain.ErrNotFound, "media not found")
		return
	}

	input, closer, ok := h.bindUpload(c)
	if !ok {
		return
	}
	defer closer.Close()

	result, err := h.service.Replace(c.Request.Context(), id, input)
	if err != nil {
		h.log.Error().Err(err).Str("media_id", id).Msg("replace failed")
		responses.HandleError(c, err, "replace failed")
		return
	}

	variants, err := h.service.Variants(c.Request.Context(), id)
	if err != nil {
		h.log.Warn().Err(err).Str("media_id", id).Msg("could not load variants for response")
	}
	c.JSON(http.StatusOK, responses.UploadResponse{
		Media:        responses.NewMediaResponse(result.Media, variants, h.cfg.PublicBaseURL),
		Deduplicated: result.Deduplicated,
	})
}

// Retry re-runs processing for a failed record.
func (h *MediaHandler) Retry(c *gin.Context) {
	id := c.Param("id")
	if !mediaid.IsValid(id) {
		responses.HandleError(c, domain.ErrNotFound, "media not found")
		return
	}

	m, err := h.service.Retry(c.Request.Context(), id)
	if err != nil {
		responses.HandleError(c, err, "retry failed")
		return
	}
	variants, err := h.service.Variants(c.Request.Context(), id)
	if err != nil {
		h.log.Warn().Err(err).Str("media_id", id).Msg("could not load variants for response")
	}
	c.JSON(http.StatusOK, responses.NewMediaResponse(m, variants, h.cfg.PublicBaseURL))
}

// Delete soft-deletes a record. Absent and already-deleted records succeed.
func (h *MediaHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if !mediaid.IsValid(id) {
		c.Status(http.StatusNoContent)
		return
	}

	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		responses.HandleError(c, err, "delete failed")
		return
	}
	c.Status(http.StatusNoContent)
}

// SyncUsage recomputes an entity field's media references from its raw
// content.
func (h *MediaHandler) SyncUsage(c *gin.Context) {
	var req requests.SyncUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, responses.ErrorResponse{Error: err.Error()})
		return
	}

	count, err := h.service.SyncUsage(c.Request.Context(), req.EntityType, req.EntityID, req.Field, req.Content)
	if err != nil {
		responses.HandleError(c, err, "usage sync failed")
		return
	}
	c.JSON(http.StatusOK, responses.SyncUsageResponse{References: count})
}

// RunGC triggers one garbage collection sweep and reports what it did.
func (h *MediaHandler) RunGC(c *gin.Context) {
	report := h.sweeper.Sweep(c.Request.Context())
	c.JSON(http.StatusOK, report)
}

// bindUpload extracts the multipart file part and actor into an upload
// input. On failure it writes the error response and returns false.
func (h *MediaHandler) bindUpload(c *gin.Context) (domain.UploadInput, io.Closer, bool) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, responses.ErrorResponse{Error: "multipart field 'file' is required"})
		return domain.UploadInput{}, nil, false
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, responses.ErrorResponse{Error: "could not read uploaded file"})
		return domain.UploadInput{}, nil, false
	}

	filename := c.PostForm("filename")
	if filename == "" {
		filename = fileHeader.Filename
	}

	return domain.UploadInput{
		Filename:     filename,
		Reader:       file,
		DeclaredSize: fileHeader.Size,
		ActorID:      c.GetString("auth_subject"),
	}, file, true
}
