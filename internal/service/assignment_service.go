package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/PhmVu/EBN-Besu/internal/models"
	appErrors "github.com/PhmVu/EBN-Besu/pkg/errors"
)

type assignmentRepository interface {
	Create(ctx context.Context, assignment *models.Assignment) error
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
	ListByClass(ctx context.Context, classID string) ([]models.Assignment, error)
	Update(ctx context.Context, assignment *models.Assignment) error
	Delete(ctx context.Context, id string) error
}

// CreateAssignmentRequest holds payload for creating assignments.
type CreateAssignmentRequest struct {
	ClassID     string     `json:"-"`
	TeacherID   string     `json:"-"`
	Code        string     `json:"code"`
	Title       string     `json:"title" validate:"required"`
	Description string     `json:"description"`
	Deadline    *time.Time `json:"deadline"`
}

// UpdateAssignmentRequest holds payload for updating assignments.
type UpdateAssignmentRequest struct {
	AssignmentID string     `json:"-"`
	TeacherID    string     `json:"-"`
	Title        string     `json:"title" validate:"required"`
	Description  string     `json:"description"`
	Deadline     *time.Time `json:"deadline"`
}

// AssignmentService handles assignment CRUD. Assignments are database
// metadata only; the chain tracks submissions and scores against their
// identifiers.
type AssignmentService struct {
	assignments assignmentRepository
	classes     classReader
	enrollments membershipReader
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAssignmentService constructs the assignment service.
func NewAssignmentService(assignments assignmentRepository, classes classReader, enrollments membershipReader, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{assignments: assignments, classes: classes, enrollments: enrollments, validator: validate, logger: logger}
}

// Create adds an assignment to a class, owner-only.
func (s *AssignmentService) Create(ctx context.Context, req CreateAssignmentRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	class, err := s.ownedClass(ctx, req.ClassID, req.TeacherID)
	if err != nil {
		return nil, err
	}
	if class.Status != models.ClassStatusOpen {
		return nil, appErrors.ErrClassClosed
	}

	assignment := &models.Assignment{
		ClassID: req.ClassID,
		Title:   req.Title,
	}
	if req.Code != "" {
		assignment.Code = &req.Code
	}
	if req.Description != "" {
		assignment.Description = &req.Description
	}
	assignment.Deadline = req.Deadline

	if err := s.assignments.Create(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment")
	}
	s.logger.Info("assignment created", zap.String("assignment_id", assignment.ID), zap.String("class_id", req.ClassID))
	return assignment, nil
}

// Get returns an assignment visible to class members and the owner.
func (s *AssignmentService) Get(ctx context.Context, assignmentID, userID string) (*models.Assignment, error) {
	assignment, err := s.assignments.FindByID(ctx, assignmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	if err := s.memberOrOwner(ctx, assignment.ClassID, userID); err != nil {
		return nil, err
	}
	return assignment, nil
}

// ListByClass returns a class's assignments for members and the owner.
func (s *AssignmentService) ListByClass(ctx context.Context, classID, userID string) ([]models.Assignment, error) {
	if err := s.memberOrOwner(ctx, classID, userID); err != nil {
		return nil, err
	}
	assignments, err := s.assignments.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	return assignments, nil
}

// Update changes assignment metadata, owner-only.
func (s *AssignmentService) Update(ctx context.Context, req UpdateAssignmentRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	assignment, err := s.assignments.FindByID(ctx, req.AssignmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	if _, err := s.ownedClass(ctx, assignment.ClassID, req.TeacherID); err != nil {
		return nil, err
	}

	assignment.Title = req.Title
	if req.Description != "" {
		assignment.Description = &req.Description
	} else {
		assignment.Description = nil
	}
	assignment.Deadline = req.Deadline

	if err := s.assignments.Update(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update assignment")
	}
	return assignment, nil
}

// Delete removes an assignment, owner-only.
func (s *AssignmentService) Delete(ctx context.Context, assignmentID, teacherID string) error {
	assignment, err := s.assignments.FindByID(ctx, assignmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	if _, err := s.ownedClass(ctx, assignment.ClassID, teacherID); err != nil {
		return err
	}
	if err := s.assignments.Delete(ctx, assignmentID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete assignment")
	}
	s.logger.Info("assignment deleted", zap.String("assignment_id", assignmentID))
	return nil
}

func (s *AssignmentService) ownedClass(ctx context.Context, classID, teacherID string) (*models.Class, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if class.TeacherID != teacherID {
		return nil, appErrors.ErrForbidden
	}
	return class, nil
}

func (s *AssignmentService) memberOrOwner(ctx context.Context, classID, userID string) error {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if class.TeacherID == userID {
		return nil
	}
	member, err := s.enrollments.Exists(ctx, classID, userID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check membership")
	}
	if !member {
		return appErrors.ErrForbidden
	}
	return nil
}
