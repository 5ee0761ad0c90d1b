package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/PhmVu/EBN-Besu/internal/models"
	"github.com/PhmVu/EBN-Besu/internal/repository"
	appErrors "github.com/PhmVu/EBN-Besu/pkg/errors"
)

type approvalRepository interface {
	Create(ctx context.Context, approval *models.Approval) error
	FindByClassAndStudent(ctx context.Context, classID, studentID string) (*models.Approval, error)
	FindByID(ctx context.Context, id string) (*models.Approval, error)
	ListByClass(ctx context.Context, classID string, status models.ApprovalStatus) ([]models.ApprovalDetail, error)
	ClaimPending(ctx context.Context, id string, status models.ApprovalStatus, reviewerID string, reason *string, reviewedAt time.Time) (bool, error)
	SetTxHash(ctx context.Context, id, txHash string) error
}

type classReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type enrollmentWriter interface {
	Create(ctx context.Context, enrollment *models.Enrollment) error
	Delete(ctx context.Context, classID, studentID string) (bool, error)
}

type enrollmentLedger interface {
	ApproveStudent(ctx context.Context, signerKey, classID, studentAddr string) (string, error)
	RemoveStudent(ctx context.Context, signerKey, classID, studentAddr string) (string, error)
	IsStudentAllowed(ctx context.Context, classID, studentAddr string) (bool, error)
}

// ReviewRequest is a teacher's decision on a pending enrollment request.
// The secret is the reviewer's login password, re-checked before any
// ledger interaction.
type ReviewRequest struct {
	ApprovalID     string `json:"approval_id" validate:"required"`
	ReviewerID     string `json:"-"`
	ReviewerSecret string `json:"secret" validate:"required"`
	Reason         string `json:"reason"`
}

// ApprovalService drives the enrollment request state machine across
// the database and the class whitelist contract.
type ApprovalService struct {
	approvals   approvalRepository
	classes     classReader
	users       userReader
	enrollments enrollmentWriter
	ledger      enrollmentLedger
	coordinator *Coordinator
	adminKey    string
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewApprovalService constructs the approval service.
func NewApprovalService(
	approvals approvalRepository,
	classes classReader,
	users userReader,
	enrollments enrollmentWriter,
	ledger enrollmentLedger,
	coordinator *Coordinator,
	adminKey string,
	validate *validator.Validate,
	logger *zap.Logger,
) *ApprovalService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalService{
		approvals:   approvals,
		classes:     classes,
		users:       users,
		enrollments: enrollments,
		ledger:      ledger,
		coordinator: coordinator,
		adminKey:    adminKey,
		validator:   validate,
		logger:      logger,
	}
}

// Request files a pending enrollment request for the student. The
// wallet address is captured now and never updated on the row.
func (s *ApprovalService) Request(ctx context.Context, classID, studentID string) (*models.Approval, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if class.Status != models.ClassStatusOpen {
		return nil, appErrors.ErrClassClosed
	}

	student, err := s.users.FindByID(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.WalletAddress == nil || *student.WalletAddress == "" {
		return nil, appErrors.ErrWalletMissing
	}

	if existing, err := s.approvals.FindByClassAndStudent(ctx, classID, studentID); err == nil {
		return nil, statusConflict(existing.Status)
	} else if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing request")
	}

	approval := &models.Approval{
		ClassID:       classID,
		StudentID:     studentID,
		WalletAddress: *student.WalletAddress,
		Status:        models.ApprovalStatusPending,
	}
	if err := s.approvals.Create(ctx, approval); err != nil {
		if errors.Is(err, repository.ErrDuplicateApproval) {
			// lost the insert race; surface the surviving row's state
			if existing, findErr := s.approvals.FindByClassAndStudent(ctx, classID, studentID); findErr == nil {
				return nil, statusConflict(existing.Status)
			}
			return nil, appErrors.ErrAlreadyPending
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create request")
	}

	s.logger.Info("enrollment requested",
		zap.String("class_id", classID),
		zap.String("student_id", studentID))
	return approval, nil
}

func statusConflict(status models.ApprovalStatus) error {
	switch status {
	case models.ApprovalStatusPending:
		return appErrors.ErrAlreadyPending
	case models.ApprovalStatusApproved:
		return appErrors.ErrAlreadyApproved
	default:
		return appErrors.ErrAlreadyProcessed
	}
}

// Approve claims a pending request and whitelists the student on chain.
// The claim is the arbiter under concurrent decisions; only the winner
// reaches the ledger, so the whitelist write happens at most once.
func (s *ApprovalService) Approve(ctx context.Context, req ReviewRequest) (*models.Approval, Outcome, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, Outcome{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}

	approval, err := s.authorizeReview(ctx, req)
	if err != nil {
		return nil, Outcome{}, err
	}

	now := time.Now().UTC()
	claimed, err := s.approvals.ClaimPending(ctx, approval.ID, models.ApprovalStatusApproved, req.ReviewerID, nil, now)
	if err != nil {
		return nil, Outcome{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to claim request")
	}
	if !claimed {
		return nil, Outcome{}, appErrors.ErrAlreadyProcessed
	}
	approval.Status = models.ApprovalStatusApproved
	approval.ReviewedBy = &req.ReviewerID
	approval.ReviewedAt = &now

	outcome := s.coordinator.Run(ctx, models.Divergence{
		Operation: models.DivergenceApproveStudent,
		ClassID:   approval.ClassID,
		SubjectID: &approval.StudentID,
		EntityID:  &approval.ID,
	}, func(ctx context.Context) (string, error) {
		return s.ledger.ApproveStudent(ctx, s.adminKey, approval.ClassID, approval.WalletAddress)
	})
	if outcome.TxHash != nil {
		if err := s.approvals.SetTxHash(ctx, approval.ID, *outcome.TxHash); err != nil {
			s.logger.Warn("failed to attach approval tx hash", zap.Error(err))
		}
		approval.TxHash = outcome.TxHash
	}

	// membership record is a convenience; its failure never unwinds
	// the approval
	if err := s.enrollments.Create(ctx, &models.Enrollment{
		ClassID:       approval.ClassID,
		StudentID:     approval.StudentID,
		WalletAddress: approval.WalletAddress,
	}); err != nil {
		s.logger.Warn("failed to record enrollment", zap.Error(err))
	}

	s.logger.Info("enrollment approved",
		zap.String("approval_id", approval.ID),
		zap.String("class_id", approval.ClassID),
		zap.Bool("divergent", outcome.Divergent))
	return approval, outcome, nil
}

// Reject claims a pending request into the terminal REJECTED state.
// Rejection never touches the ledger.
func (s *ApprovalService) Reject(ctx context.Context, req ReviewRequest) (*models.Approval, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}

	approval, err := s.authorizeReview(ctx, req)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var reason *string
	if req.Reason != "" {
		reason = &req.Reason
	}
	claimed, err := s.approvals.ClaimPending(ctx, approval.ID, models.ApprovalStatusRejected, req.ReviewerID, reason, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to claim request")
	}
	if !claimed {
		return nil, appErrors.ErrAlreadyProcessed
	}
	approval.Status = models.ApprovalStatusRejected
	approval.ReviewedBy = &req.ReviewerID
	approval.ReviewedAt = &now
	approval.RejectionReason = reason

	s.logger.Info("enrollment rejected",
		zap.String("approval_id", approval.ID),
		zap.String("class_id", approval.ClassID))
	return approval, nil
}

// authorizeReview loads the request, checks class ownership and
// re-verifies the reviewer's password. All of this happens before any
// state transition or ledger call.
func (s *ApprovalService) authorizeReview(ctx context.Context, req ReviewRequest) (*models.Approval, error) {
	approval, err := s.approvals.FindByID(ctx, req.ApprovalID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	if approval.Status.Terminal() {
		return nil, appErrors.ErrAlreadyProcessed
	}

	class, err := s.classes.FindByID(ctx, approval.ClassID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if class.TeacherID != req.ReviewerID {
		return nil, appErrors.ErrForbidden
	}

	reviewer, err := s.users.FindByID(ctx, req.ReviewerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reviewer")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(reviewer.PasswordHash), []byte(req.ReviewerSecret)); err != nil {
		return nil, appErrors.ErrUnauthorized
	}
	return approval, nil
}

// Status reports the request state for a (class, student) pair. A
// missing row is reported as NOT_REQUESTED rather than an error.
func (s *ApprovalService) Status(ctx context.Context, classID, studentID string) (models.ApprovalStatus, *models.Approval, error) {
	approval, err := s.approvals.FindByClassAndStudent(ctx, classID, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.ApprovalStatusNotRequested, nil, nil
		}
		return "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	return approval.Status, approval, nil
}

// ListPending returns the review queue for a class, owner-only.
func (s *ApprovalService) ListPending(ctx context.Context, classID, teacherID string) ([]models.ApprovalDetail, error) {
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
	details, err := s.approvals.ListByClass(ctx, classID, models.ApprovalStatusPending)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}
	return details, nil
}

// RemoveStudent takes a student off the class roster and the on-chain
// whitelist. The roster delete commits first; the whitelist removal is
// best-effort through the coordinator.
func (s *ApprovalService) RemoveStudent(ctx context.Context, classID, studentID, teacherID string) (Outcome, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if err == sql.ErrNoRows {
			return Outcome{}, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return Outcome{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if class.TeacherID != teacherID {
		return Outcome{}, appErrors.ErrForbidden
	}

	student, err := s.users.FindByID(ctx, studentID)
	if err != nil {
		return Outcome{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.WalletAddress == nil {
		return Outcome{}, appErrors.ErrWalletMissing
	}

	removed, err := s.enrollments.Delete(ctx, classID, studentID)
	if err != nil {
		return Outcome{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove enrollment")
	}
	if !removed {
		return Outcome{}, appErrors.Clone(appErrors.ErrNotFound, "student is not enrolled")
	}

	outcome := s.coordinator.Run(ctx, models.Divergence{
		Operation: models.DivergenceRemoveStudent,
		ClassID:   classID,
		SubjectID: &studentID,
	}, func(ctx context.Context) (string, error) {
		return s.ledger.RemoveStudent(ctx, s.adminKey, classID, *student.WalletAddress)
	})

	s.logger.Info("student removed",
		zap.String("class_id", classID),
		zap.String("student_id", studentID),
		zap.Bool("divergent", outcome.Divergent))
	return outcome, nil
}
