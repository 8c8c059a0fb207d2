package patient

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/praxisboard/board-api/internal/board"
	"github.com/praxisboard/board-api/internal/handler"
	"github.com/praxisboard/board-api/internal/middleware"
	"github.com/praxisboard/board-api/internal/model"
	"github.com/praxisboard/board-api/internal/service/configuration"
	"github.com/praxisboard/board-api/internal/service/intake"
	"github.com/praxisboard/board-api/internal/webhook"
	"github.com/praxisboard/board-api/pkg/logger"
)

// Handler exposes the board operations for the signed-in account.
type Handler struct {
	boards        *board.Manager
	configuration *configuration.Service
	dispatcher    *webhook.Dispatcher
	logger        *logger.Logger
	maxPDFSize    int64
}

func NewHandler(
	boards *board.Manager,
	configService *configuration.Service,
	dispatcher *webhook.Dispatcher,
	log *logger.Logger,
	maxPDFSize int64,
) *Handler {
	return &Handler{
		boards:        boards,
		configuration: configService,
		dispatcher:    dispatcher,
		logger:        log,
		maxPDFSize:    maxPDFSize,
	}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	patients := r.Group("/patients")
	{
		patients.GET("", h.List)
		patients.POST("", h.Create)
		patients.POST("/:id/move", h.Move)
		patients.POST("/:id/archive", h.Archive)
		patients.PUT("/:id/notes", h.UpdateNotes)
		patients.POST("/:id/send-email", h.SendEmail)
		patients.GET("/archived/count", h.ArchivedCounts)
		patients.DELETE("/archived", h.DeleteArchived)
	}
}

func (h *Handler) List(c *gin.Context) {
	b, ok := h.board(c)
	if !ok {
		return
	}

	records, err := b.Load(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse("failed to load board"))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(records))
}

func (h *Handler) Create(c *gin.Context) {
	b, ok := h.board(c)
	if !ok {
		return
	}

	var req model.CreatePatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid request body"))
		return
	}
	if req.Email != "" && !model.ValidEmail(req.Email) {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid email address"))
		return
	}

	in := board.CreateInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
	}
	if req.PDF != nil {
		data, err := intake.DecodePDF(req.PDF.Filename, req.PDF.Data, h.maxPDFSize)
		if err != nil {
			handler.RespondError(c, err)
			return
		}
		in.Filename = req.PDF.Filename
		in.PDFData = data
	}

	rec, err := b.Create(c.Request.Context(), in)
	if err != nil {
		if errors.Is(err, board.ErrLastNameRequired) {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("last name is required"))
			return
		}
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse("failed to create record"))
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(rec))
}

type moveRequest struct {
	Status model.PatientStatus `json:"status" binding:"required"`
}

func (h *Handler) Move(c *gin.Context) {
	b, id, ok := h.boardAndID(c)
	if !ok {
		return
	}

	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid request body"))
		return
	}

	if err := b.Move(c.Request.Context(), id, req.Status); err != nil {
		h.respondBoardError(c, err, "failed to move record")
		return
	}

	rec, err := b.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, handler.NewErrorResponse("record not found"))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(rec))
}

func (h *Handler) Archive(c *gin.Context) {
	b, id, ok := h.boardAndID(c)
	if !ok {
		return
	}

	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid request body"))
		return
	}

	if err := b.Archive(c.Request.Context(), id, req.Status); err != nil {
		h.respondBoardError(c, err, "failed to archive record")
		return
	}

	rec, err := b.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, handler.NewErrorResponse("record not found"))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(rec))
}

type notesRequest struct {
	Notes string `json:"notes"`
}

func (h *Handler) UpdateNotes(c *gin.Context) {
	b, id, ok := h.boardAndID(c)
	if !ok {
		return
	}

	var req notesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid request body"))
		return
	}

	if err := b.UpdateNotes(c.Request.Context(), id, req.Notes); err != nil {
		h.respondBoardError(c, err, "failed to update notes")
		return
	}

	rec, err := b.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, handler.NewErrorResponse("record not found"))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(rec))
}

// SendEmail dispatches the configured follow-up mail for one record through
// the webhook, then bumps the record's send counter. The counter caps at two
// sends; the third attempt is refused before anything is dispatched.
func (h *Handler) SendEmail(c *gin.Context) {
	b, id, ok := h.boardAndID(c)
	if !ok {
		return
	}

	rec, err := b.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, handler.NewErrorResponse("record not found"))
		return
	}
	if rec.Email == nil || *rec.Email == "" {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("record has no email address"))
		return
	}
	if rec.EmailSentCount >= board.EmailSendLimit {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("email send limit reached"))
		return
	}

	cfg, err := h.configuration.Get(c.Request.Context())
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	if cfg == nil || cfg.WebhookURL == nil || *cfg.WebhookURL == "" {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("configure a webhook URL in settings first"))
		return
	}

	template := h.pickTemplate(cfg, rec)
	if template == "" {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("configure an email template in settings first"))
		return
	}

	msg := &webhook.Message{
		LastName:  rec.LastName,
		Email:     *rec.Email,
		EmailText: webhook.RenderTemplate(template, rec),
	}
	if rec.FirstName != nil {
		msg.FirstName = *rec.FirstName
	}

	if err := h.dispatcher.Send(c.Request.Context(), *cfg.WebhookURL, msg); err != nil {
		h.logger.Error(err, "webhook dispatch failed", "patient_id", id)
		c.JSON(http.StatusBadGateway, handler.NewErrorResponse("failed to dispatch email"))
		return
	}

	if err := b.IncrementEmailCount(c.Request.Context(), id); err != nil {
		// The mail went out; surface the bookkeeping failure anyway.
		h.respondBoardError(c, err, "failed to record email dispatch")
		return
	}

	rec, err = b.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, handler.NewErrorResponse("record not found"))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(rec))
}

// ArchivedCounts reports the archive-bin totals shown next to the delete
// action.
func (h *Handler) ArchivedCounts(c *gin.Context) {
	b, ok := h.board(c)
	if !ok {
		return
	}

	counts, err := b.ArchiveCounts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse("failed to count archived records"))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(counts))
}

func (h *Handler) DeleteArchived(c *gin.Context) {
	b, ok := h.board(c)
	if !ok {
		return
	}

	count, err := b.DeleteArchived(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse("failed to delete archived records"))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"deleted": count}))
}

// pickTemplate chooses the first-contact template for untouched records and
// the reminder template afterwards, falling back to whichever is set.
func (h *Handler) pickTemplate(cfg *model.SystemConfiguration, rec *model.PatientRecord) string {
	first, reminder := "", ""
	if cfg.EmailTemplateFirst != nil {
		first = *cfg.EmailTemplateFirst
	}
	if cfg.EmailTemplateReminder != nil {
		reminder = *cfg.EmailTemplateReminder
	}

	if rec.EmailSentCount == 0 {
		if first != "" {
			return first
		}
		return reminder
	}
	if reminder != "" {
		return reminder
	}
	return first
}

func (h *Handler) board(c *gin.Context) (*board.Board, bool) {
	userID, err := middleware.UserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid account id"))
		return nil, false
	}
	return h.boards.Get(userID), true
}

func (h *Handler) boardAndID(c *gin.Context) (*board.Board, int64, bool) {
	b, ok := h.board(c)
	if !ok {
		return nil, 0, false
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid record id"))
		return nil, 0, false
	}
	return b, id, true
}

func (h *Handler) respondBoardError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, board.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, handler.NewErrorResponse("record not found"))
	case errors.Is(err, board.ErrInvalidStatus), errors.Is(err, board.ErrNotArchivalStatus):
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
	case errors.Is(err, board.ErrEmailLimitReached):
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("email send limit reached"))
	default:
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(fallback))
	}
}
