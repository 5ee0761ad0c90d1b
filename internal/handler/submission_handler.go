package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PhmVu/EBN-Besu/internal/service"
	appErrors "github.com/PhmVu/EBN-Besu/pkg/errors"
	"github.com/PhmVu/EBN-Besu/pkg/response"
)

// SubmissionHandler exposes the grading flow endpoints.
type SubmissionHandler struct {
	submissions *service.SubmissionService
}

// NewSubmissionHandler constructs SubmissionHandler.
func NewSubmissionHandler(submissions *service.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{submissions: submissions}
}

// Submit godoc
// @Summary Submit work
// @Description Hand in a content fingerprint, signed on chain with the student's own custodial key
// @Tags Grading
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body service.SubmitRequest true "Content hash and wallet secret"
// @Success 201 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /assignments/{id}/submissions [post]
func (h *SubmissionHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	var req service.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.AssignmentID = c.Param("id")
	req.StudentID = claims.UserID

	submission, outcome, err := h.submissions.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, submission, response.LedgerMeta(outcome.Divergent, outcome.Reason))
}

// MySubmission godoc
// @Summary Get own submission
// @Tags Grading
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /assignments/{id}/submissions/mine [get]
func (h *SubmissionHandler) MySubmission(c *gin.Context) {
	claims := claimsFromContext(c)
	submission, err := h.submissions.MySubmission(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// ListSubmissions godoc
// @Summary List assignment submissions
// @Description All submissions on an assignment for grading, owner-only
// @Tags Grading
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /assignments/{id}/submissions [get]
func (h *SubmissionHandler) ListSubmissions(c *gin.Context) {
	claims := claimsFromContext(c)
	details, err := h.submissions.ListSubmissions(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, details, nil)
}

// RecordScore godoc
// @Summary Record score
// @Description Grade a student's work and mirror the grade on chain with the platform key
// @Tags Grading
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body service.RecordScoreRequest true "Student and score value"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /assignments/{id}/scores [post]
func (h *SubmissionHandler) RecordScore(c *gin.Context) {
	claims := claimsFromContext(c)
	var req service.RecordScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.AssignmentID = c.Param("id")
	req.TeacherID = claims.UserID

	score, outcome, err := h.submissions.RecordScore(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, score, nil, response.LedgerMeta(outcome.Divergent, outcome.Reason))
}

// ListScores godoc
// @Summary List assignment scores
// @Tags Grading
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /assignments/{id}/scores [get]
func (h *SubmissionHandler) ListScores(c *gin.Context) {
	claims := claimsFromContext(c)
	scores, err := h.submissions.ListScores(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, scores, nil)
}

// ReadScore godoc
// @Summary Read a score back from the chain
// @Description Verify a grade against the score contract; served from a short cache when warm
// @Tags Grading
// @Produce json
// @Param id path string true "Assignment ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /assignments/{id}/scores/{studentId}/ledger [get]
func (h *SubmissionHandler) ReadScore(c *gin.Context) {
	score, err := h.submissions.ReadScore(c.Request.Context(), c.Param("id"), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, score, nil)
}

// MyScores godoc
// @Summary Get own grade book for a class
// @Tags Grading
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/scores/mine [get]
func (h *SubmissionHandler) MyScores(c *gin.Context) {
	claims := claimsFromContext(c)
	scores, err := h.submissions.MyScores(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, scores, nil)
}
