package assets

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/praxisboard/board-api/internal/handler"
	"github.com/praxisboard/board-api/internal/model"
	"github.com/praxisboard/board-api/internal/service/configuration"
	"github.com/praxisboard/board-api/internal/storage"
	"github.com/praxisboard/board-api/pkg/logger"
)

// MaxLogoSize caps practice logo uploads.
const MaxLogoSize = 2 * 1024 * 1024

var logoContentTypes = map[string]bool{
	"image/png":     true,
	"image/jpeg":    true,
	"image/svg+xml": true,
}

// Handler serves practice assets: the logo and the privacy-notice documents.
type Handler struct {
	store          storage.ObjectStore
	configuration  *configuration.Service
	logger         *logger.Logger
	logoPrefix     string
	documentPrefix string
}

func NewHandler(
	store storage.ObjectStore,
	configService *configuration.Service,
	log *logger.Logger,
	logoPrefix, documentPrefix string,
) *Handler {
	return &Handler{
		store:          store,
		configuration:  configService,
		logger:         log,
		logoPrefix:     logoPrefix,
		documentPrefix: documentPrefix,
	}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.POST("/logo", h.UploadLogo)
	r.DELETE("/logo", h.DeleteLogo)
	documents := r.Group("/documents")
	{
		documents.GET("", h.ListDocuments)
		documents.POST("", h.UploadDocument)
		documents.GET("/:name", h.DownloadDocument)
		documents.DELETE("/:name", h.DeleteDocument)
	}
}

// UploadLogo stores the practice logo and points the settings row at its
// public URL.
func (h *Handler) UploadLogo(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("missing file"))
		return
	}
	defer file.Close()

	if header.Size > MaxLogoSize {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("logo exceeds the size limit"))
		return
	}

	contentType := header.Header.Get("Content-Type")
	if !logoContentTypes[contentType] {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("logo must be png, jpeg, or svg"))
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, MaxLogoSize+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse("failed to read upload"))
		return
	}
	if int64(len(data)) > MaxLogoSize {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("logo exceeds the size limit"))
		return
	}

	key := storage.PrefixedKey(h.logoPrefix, header.Filename)
	if err := h.store.Upload(c.Request.Context(), key, contentType, data); err != nil {
		h.logger.Error(err, "failed to store logo", "key", key)
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse("failed to store logo"))
		return
	}

	url := h.store.PublicURL(key)
	cfg, err := h.configuration.Update(c.Request.Context(), &model.ConfigurationUpdate{
		LogoURL: model.NullableString{Set: true, Value: &url},
	})
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(cfg))
}

// DeleteLogo removes every stored logo object and clears the settings URL.
func (h *Handler) DeleteLogo(c *gin.Context) {
	infos, err := h.store.List(c.Request.Context(), h.logoPrefix+"/")
	if err != nil {
		h.logger.Error(err, "failed to list logos")
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse("failed to delete logo"))
		return
	}
	for _, info := range infos {
		if err := h.store.Remove(c.Request.Context(), info.Key); err != nil {
			h.logger.Error(err, "failed to delete logo", "key", info.Key)
			c.JSON(http.StatusInternalServerError, handler.NewErrorResponse("failed to delete logo"))
			return
		}
	}

	cfg, err := h.configuration.Update(c.Request.Context(), &model.ConfigurationUpdate{
		LogoURL: model.NullableString{Set: true, Value: nil},
	})
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(cfg))
}

func (h *Handler) ListDocuments(c *gin.Context) {
	infos, err := h.store.List(c.Request.Context(), h.documentPrefix+"/")
	if err != nil {
		h.logger.Error(err, "failed to list documents")
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse("failed to list documents"))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(infos))
}

func (h *Handler) UploadDocument(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("missing file"))
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".pdf") {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("document must be a .pdf file"))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse("failed to read upload"))
		return
	}

	key := storage.PrefixedKey(h.documentPrefix, header.Filename)
	if err := h.store.Upload(c.Request.Context(), key, "application/pdf", data); err != nil {
		h.logger.Error(err, "failed to store document", "key", key)
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse("failed to store document"))
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(gin.H{"key": key}))
}

func (h *Handler) DownloadDocument(c *gin.Context) {
	key := storage.PrefixedKey(h.documentPrefix, c.Param("name"))
	data, contentType, err := h.store.Download(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusNotFound, handler.NewErrorResponse("document not found"))
		return
	}
	c.Data(http.StatusOK, contentType, data)
}

func (h *Handler) DeleteDocument(c *gin.Context) {
	key := storage.PrefixedKey(h.documentPrefix, c.Param("name"))
	if err := h.store.Remove(c.Request.Context(), key); err != nil {
		h.logger.Error(err, "failed to delete document", "key", key)
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse("failed to delete document"))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}
