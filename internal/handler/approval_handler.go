package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PhmVu/EBN-Besu/internal/service"
	appErrors "github.com/PhmVu/EBN-Besu/pkg/errors"
	"github.com/PhmVu/EBN-Besu/pkg/response"
)

// ApprovalHandler exposes the enrollment request and review endpoints.
type ApprovalHandler struct {
	approvals *service.ApprovalService
}

// NewApprovalHandler constructs ApprovalHandler.
func NewApprovalHandler(approvals *service.ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{approvals: approvals}
}

// Request godoc
// @Summary Request enrollment
// @Description File a pending enrollment request for the current student
// @Tags Enrollment
// @Produce json
// @Param id path string true "Class ID"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /classes/{id}/enrollment/request [post]
func (h *ApprovalHandler) Request(c *gin.Context) {
	claims := claimsFromContext(c)
	approval, err := h.approvals.Request(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, approval)
}

// Status godoc
// @Summary Enrollment request status
// @Description Report the current student's request state for a class; NOT_REQUESTED when no request exists
// @Tags Enrollment
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/enrollment/status [get]
func (h *ApprovalHandler) Status(c *gin.Context) {
	claims := claimsFromContext(c)
	status, approval, err := h.approvals.Status(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"status": status, "request": approval}, nil)
}

// ListPending godoc
// @Summary List pending enrollment requests
// @Description Review queue for a class, owner-only
// @Tags Enrollment
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /classes/{id}/approvals [get]
func (h *ApprovalHandler) ListPending(c *gin.Context) {
	claims := claimsFromContext(c)
	details, err := h.approvals.ListPending(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, details, nil)
}

// Approve godoc
// @Summary Approve enrollment request
// @Description Claim the pending request and whitelist the student's wallet on chain; concurrent decisions resolve to one winner
// @Tags Enrollment
// @Accept json
// @Produce json
// @Param id path string true "Approval ID"
// @Param payload body service.ReviewRequest true "Reviewer password"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /approvals/{id}/approve [post]
func (h *ApprovalHandler) Approve(c *gin.Context) {
	claims := claimsFromContext(c)
	var req service.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.ApprovalID = c.Param("id")
	req.ReviewerID = claims.UserID

	approval, outcome, err := h.approvals.Approve(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, approval, nil, response.LedgerMeta(outcome.Divergent, outcome.Reason))
}

// Reject godoc
// @Summary Reject enrollment request
// @Description Claim the pending request into the terminal REJECTED state; never touches the ledger
// @Tags Enrollment
// @Accept json
// @Produce json
// @Param id path string true "Approval ID"
// @Param payload body service.ReviewRequest true "Reviewer password and optional reason"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /approvals/{id}/reject [post]
func (h *ApprovalHandler) Reject(c *gin.Context) {
	claims := claimsFromContext(c)
	var req service.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.ApprovalID = c.Param("id")
	req.ReviewerID = claims.UserID

	approval, err := h.approvals.Reject(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, approval, nil)
}

// RemoveStudent godoc
// @Summary Remove student from class
// @Description Take a student off the roster and the on-chain whitelist
// @Tags Enrollment
// @Produce json
// @Param id path string true "Class ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /classes/{id}/students/{studentId} [delete]
func (h *ApprovalHandler) RemoveStudent(c *gin.Context) {
	claims := claimsFromContext(c)
	outcome, err := h.approvals.RemoveStudent(c.Request.Context(), c.Param("id"), c.Param("studentId"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"removed": true}, nil, response.LedgerMeta(outcome.Divergent, outcome.Reason))
}
