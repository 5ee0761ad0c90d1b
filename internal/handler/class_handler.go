package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/PhmVu/EBN-Besu/internal/models"
	"github.com/PhmVu/EBN-Besu/internal/service"
	appErrors "github.com/PhmVu/EBN-Besu/pkg/errors"
	"github.com/PhmVu/EBN-Besu/pkg/response"
)

// ClassHandler exposes class lifecycle endpoints.
type ClassHandler struct {
	classes *service.ClassService
	exports *service.ExportService
}

// NewClassHandler constructs ClassHandler.
func NewClassHandler(classes *service.ClassService, exports *service.ExportService) *ClassHandler {
	return &ClassHandler{classes: classes, exports: exports}
}

// Create godoc
// @Summary Create class
// @Description Open a class and initialise it on the class and score contracts
// @Tags Classes
// @Accept json
// @Produce json
// @Param payload body service.CreateClassRequest true "Class payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /classes [post]
func (h *ClassHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	var req service.CreateClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.TeacherID = claims.UserID

	class, outcome, err := h.classes.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, class, response.LedgerMeta(outcome.Divergent, outcome.Reason))
}

// List godoc
// @Summary List classes
// @Tags Classes
// @Produce json
// @Param teacherId query string false "Filter by teacher"
// @Param status query string false "Filter by status"
// @Param search query string false "Search by code or name"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /classes [get]
func (h *ClassHandler) List(c *gin.Context) {
	var filter models.ClassFilter
	filter.TeacherID = c.Query("teacherId")
	filter.Status = models.ClassStatus(strings.ToUpper(c.Query("status")))
	filter.Search = c.Query("search")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	classes, pagination, err := h.classes.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes, pagination)
}

// ListMine godoc
// @Summary List the classes the current student belongs to
// @Tags Classes
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /classes/mine [get]
func (h *ClassHandler) ListMine(c *gin.Context) {
	claims := claimsFromContext(c)
	classes, err := h.classes.ListMine(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes, nil)
}

// Get godoc
// @Summary Get class
// @Tags Classes
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /classes/{id} [get]
func (h *ClassHandler) Get(c *gin.Context) {
	class, err := h.classes.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, class, nil)
}

// GetByCode godoc
// @Summary Look a class up by its join code
// @Tags Classes
// @Produce json
// @Param code path string true "Class code"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /classes/code/{code} [get]
func (h *ClassHandler) GetByCode(c *gin.Context) {
	class, err := h.classes.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, class, nil)
}

// Close godoc
// @Summary Close class
// @Description Transition the class to its terminal CLOSED state and mirror it on chain
// @Tags Classes
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /classes/{id}/close [post]
func (h *ClassHandler) Close(c *gin.Context) {
	claims := claimsFromContext(c)
	class, outcome, err := h.classes.Close(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, class, nil, response.LedgerMeta(outcome.Divergent, outcome.Reason))
}

// BulkInvite godoc
// @Summary Bulk invite students
// @Description Import a roster: create accounts and custodial wallets where needed, enroll and whitelist each student
// @Tags Classes
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body service.BulkInviteRequest true "Roster rows"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /classes/{id}/invite [post]
func (h *ClassHandler) BulkInvite(c *gin.Context) {
	claims := claimsFromContext(c)
	var req service.BulkInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.ClassID = c.Param("id")
	req.TeacherID = claims.UserID

	results, err := h.classes.BulkInvite(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, results, nil)
}

// Roster godoc
// @Summary List enrolled students
// @Description Current roster of a class, owner-only
// @Tags Classes
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /classes/{id}/students [get]
func (h *ClassHandler) Roster(c *gin.Context) {
	claims := claimsFromContext(c)
	roster, err := h.classes.Roster(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roster, nil)
}

// LedgerInfo godoc
// @Summary Verify a class against the ledger
// @Description Read the class record from the contract and compare with the stored row
// @Tags Classes
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /classes/{id}/ledger [get]
func (h *ClassHandler) LedgerInfo(c *gin.Context) {
	view, err := h.classes.LedgerInfo(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// ExportScores godoc
// @Summary Export a class score sheet
// @Description Download the class grade book as CSV or PDF, owner-only
// @Tags Classes
// @Produce octet-stream
// @Param id path string true "Class ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /classes/{id}/scores/export [get]
func (h *ClassHandler) ExportScores(c *gin.Context) {
	claims := claimsFromContext(c)
	format := strings.ToLower(c.DefaultQuery("format", service.FormatCSV))

	data, filename, err := h.exports.ScoreSheet(c.Request.Context(), c.Param("id"), claims.UserID, format)
	if err != nil {
		response.Error(c, err)
		return
	}

	contentType := "text/csv"
	if format == service.FormatPDF {
		contentType = "application/pdf"
	}
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, contentType, data)
}
