package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/PhmVu/EBN-Besu/internal/ledger"
	"github.com/PhmVu/EBN-Besu/internal/models"
	appErrors "github.com/PhmVu/EBN-Besu/pkg/errors"
)

type assignmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
}

type submissionRepository interface {
	Upsert(ctx context.Context, submission *models.Submission) error
	SetTxHash(ctx context.Context, assignmentID, studentID, txHash string) error
	Find(ctx context.Context, assignmentID, studentID string) (*models.Submission, error)
	ListByAssignment(ctx context.Context, assignmentID string) ([]models.SubmissionDetail, error)
}

type scoreRepository interface {
	Upsert(ctx context.Context, score *models.Score) error
	SetTxHash(ctx context.Context, assignmentID, studentID, txHash string) error
	Find(ctx context.Context, assignmentID, studentID string) (*models.Score, error)
	ListByAssignment(ctx context.Context, assignmentID string) ([]models.Score, error)
	ListByStudent(ctx context.Context, classID, studentID string) ([]models.Score, error)
}

type membershipReader interface {
	Exists(ctx context.Context, classID, studentID string) (bool, error)
}

type gradingLedger interface {
	SubmitWork(ctx context.Context, signerKey, classID, assignmentID, contentHash string) (string, error)
	RecordScore(ctx context.Context, signerKey, classID, assignmentID, studentAddr string, score uint8) (string, error)
	GetScore(ctx context.Context, classID, assignmentID, studentAddr string) (*ledger.ScoreRecord, error)
}

type keyUnlocker interface {
	SignerKey(ctx context.Context, userID, secret string) (string, error)
}

type scoreCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// SubmitRequest is a student handing in work for an assignment.
type SubmitRequest struct {
	AssignmentID string `json:"-"`
	StudentID    string `json:"-"`
	ContentHash  string `json:"content_hash" validate:"required,min=8,max=128"`
	Secret       string `json:"secret" validate:"required"`
}

// RecordScoreRequest is a teacher grading a student's work.
type RecordScoreRequest struct {
	AssignmentID string `json:"-"`
	StudentID    string `json:"student_id" validate:"required"`
	TeacherID    string `json:"-"`
	Value        int    `json:"value"`
}

// SubmissionService covers the grading flow: handing work in,
// recording scores and reading them back from the chain.
type SubmissionService struct {
	assignments assignmentReader
	submissions submissionRepository
	scores      scoreRepository
	enrollments membershipReader
	classes     classReader
	users       userReader
	ledger      gradingLedger
	wallets     keyUnlocker
	cache       scoreCache
	coordinator *Coordinator
	metrics     *MetricsService
	adminKey    string
	cacheTTL    time.Duration
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewSubmissionService constructs the submission service. metrics may
// be nil.
func NewSubmissionService(
	assignments assignmentReader,
	submissions submissionRepository,
	scores scoreRepository,
	enrollments membershipReader,
	classes classReader,
	users userReader,
	ledger gradingLedger,
	wallets keyUnlocker,
	cache scoreCache,
	coordinator *Coordinator,
	metrics *MetricsService,
	adminKey string,
	cacheTTL time.Duration,
	validate *validator.Validate,
	logger *zap.Logger,
) *SubmissionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &SubmissionService{
		assignments: assignments,
		submissions: submissions,
		scores:      scores,
		enrollments: enrollments,
		classes:     classes,
		users:       users,
		ledger:      ledger,
		wallets:     wallets,
		cache:       cache,
		coordinator: coordinator,
		metrics:     metrics,
		adminKey:    adminKey,
		cacheTTL:    cacheTTL,
		validator:   validate,
		logger:      logger,
	}
}

// Submit stores the latest content fingerprint for the student and
// mirrors it on chain, signed with the student's own custodial key. The
// key is unsealed only for the duration of this call.
func (s *SubmissionService) Submit(ctx context.Context, req SubmitRequest) (*models.Submission, Outcome, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, Outcome{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}

	assignment, class, err := s.loadAssignment(ctx, req.AssignmentID)
	if err != nil {
		return nil, Outcome{}, err
	}
	if class.Status != models.ClassStatusOpen {
		return nil, Outcome{}, appErrors.ErrClassClosed
	}

	member, err := s.enrollments.Exists(ctx, class.ID, req.StudentID)
	if err != nil {
		return nil, Outcome{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check membership")
	}
	if !member {
		return nil, Outcome{}, appErrors.Clone(appErrors.ErrForbidden, "not enrolled in this class")
	}

	signerKey, err := s.wallets.SignerKey(ctx, req.StudentID, req.Secret)
	if err != nil {
		return nil, Outcome{}, err
	}

	// the row commits before the chain is touched; a failed mirror
	// write leaves a divergence behind, never a lost fingerprint
	submission := &models.Submission{
		AssignmentID: req.AssignmentID,
		StudentID:    req.StudentID,
		ContentHash:  req.ContentHash,
	}
	if err := s.submissions.Upsert(ctx, submission); err != nil {
		return nil, Outcome{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store submission")
	}

	outcome := s.coordinator.Run(ctx, models.Divergence{
		Operation: models.DivergenceSubmitWork,
		ClassID:   class.ID,
		SubjectID: &req.StudentID,
		EntityID:  &req.AssignmentID,
	}, func(ctx context.Context) (string, error) {
		return s.ledger.SubmitWork(ctx, signerKey, class.ID, assignment.ID, req.ContentHash)
	})
	if outcome.TxHash != nil {
		if err := s.submissions.SetTxHash(ctx, req.AssignmentID, req.StudentID, *outcome.TxHash); err != nil {
			s.logger.Warn("failed to attach submission tx hash", zap.Error(err))
		}
		submission.TxHash = outcome.TxHash
	}

	s.logger.Info("work submitted",
		zap.String("assignment_id", req.AssignmentID),
		zap.String("student_id", req.StudentID),
		zap.Bool("divergent", outcome.Divergent))
	return submission, outcome, nil
}

// RecordScore grades a submission and mirrors the grade on chain,
// signed with the platform admin key. Re-grading replaces the value; an
// earlier transaction reference survives a failed newer ledger call.
func (s *SubmissionService) RecordScore(ctx context.Context, req RecordScoreRequest) (*models.Score, Outcome, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, Outcome{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid score payload")
	}
	if req.Value < models.ScoreMin || req.Value > models.ScoreMax {
		return nil, Outcome{}, appErrors.ErrScoreOutOfRange
	}

	assignment, class, err := s.loadAssignment(ctx, req.AssignmentID)
	if err != nil {
		return nil, Outcome{}, err
	}
	if class.TeacherID != req.TeacherID {
		return nil, Outcome{}, appErrors.ErrForbidden
	}

	student, err := s.users.FindByID(ctx, req.StudentID)
	if err != nil {
		return nil, Outcome{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.WalletAddress == nil {
		return nil, Outcome{}, appErrors.ErrWalletMissing
	}

	// grade first, mirror second: the upsert leaves tx_hash alone, so a
	// failed newer ledger call keeps the earlier confirmed reference
	score := &models.Score{
		ClassID:      class.ID,
		AssignmentID: req.AssignmentID,
		StudentID:    req.StudentID,
		Value:        req.Value,
		RecordedBy:   req.TeacherID,
	}
	if err := s.scores.Upsert(ctx, score); err != nil {
		return nil, Outcome{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store score")
	}

	outcome := s.coordinator.Run(ctx, models.Divergence{
		Operation: models.DivergenceRecordScore,
		ClassID:   class.ID,
		SubjectID: &req.StudentID,
		EntityID:  &req.AssignmentID,
	}, func(ctx context.Context) (string, error) {
		return s.ledger.RecordScore(ctx, s.adminKey, class.ID, assignment.ID, *student.WalletAddress, uint8(req.Value))
	})
	if outcome.TxHash != nil {
		if err := s.scores.SetTxHash(ctx, req.AssignmentID, req.StudentID, *outcome.TxHash); err != nil {
			s.logger.Warn("failed to attach score tx hash", zap.Error(err))
		}
		score.TxHash = outcome.TxHash
	}

	if s.cache != nil {
		if err := s.cache.DeleteByPattern(ctx, fmt.Sprintf("score:%s:%s:*", class.ID, assignment.ID)); err != nil {
			s.logger.Warn("failed to invalidate score cache", zap.Error(err))
		}
	}

	s.logger.Info("score recorded",
		zap.String("assignment_id", req.AssignmentID),
		zap.String("student_id", req.StudentID),
		zap.Int("value", req.Value),
		zap.Bool("divergent", outcome.Divergent))
	return score, outcome, nil
}

// ReadScore reads a grade back from the score contract, with a short
// Redis cache in front of the eth_call.
func (s *SubmissionService) ReadScore(ctx context.Context, assignmentID, studentID string) (*models.LedgerScore, error) {
	assignment, class, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	student, err := s.users.FindByID(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.WalletAddress == nil {
		return nil, appErrors.ErrWalletMissing
	}

	cacheKey := fmt.Sprintf("score:%s:%s:%s", class.ID, assignment.ID, *student.WalletAddress)
	if s.cache != nil {
		var cached models.LedgerScore
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			s.metrics.RecordCacheOperation(true)
			return &cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("score cache read failed", zap.Error(err))
		}
		s.metrics.RecordCacheOperation(false)
	}

	rec, err := s.ledger.GetScore(ctx, class.ID, assignment.ID, *student.WalletAddress)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrLedgerUnavailable.Code, appErrors.ErrLedgerUnavailable.Status, "failed to read score from ledger")
	}
	result := &models.LedgerScore{
		Value:      int64(rec.Value),
		RecordedAt: rec.RecordedAt.Unix(),
		RecordedBy: rec.RecordedBy,
		Exists:     rec.Exists,
	}
	if !rec.Exists {
		result.RecordedAt = 0
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, result, s.cacheTTL); err != nil {
			s.logger.Warn("score cache write failed", zap.Error(err))
		}
	}
	return result, nil
}

// ListSubmissions returns an assignment's submissions for grading,
// owner-only.
func (s *SubmissionService) ListSubmissions(ctx context.Context, assignmentID, teacherID string) ([]models.SubmissionDetail, error) {
	_, class, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if class.TeacherID != teacherID {
		return nil, appErrors.ErrForbidden
	}
	details, err := s.submissions.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	return details, nil
}

// MySubmission returns the student's own submission, if any.
func (s *SubmissionService) MySubmission(ctx context.Context, assignmentID, studentID string) (*models.Submission, error) {
	submission, err := s.submissions.Find(ctx, assignmentID, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no submission yet")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	return submission, nil
}

// MyScores returns the student's grade book for a class.
func (s *SubmissionService) MyScores(ctx context.Context, classID, studentID string) ([]models.Score, error) {
	scores, err := s.scores.ListByStudent(ctx, classID, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list scores")
	}
	return scores, nil
}

// ListScores returns all grades on an assignment, owner-only.
func (s *SubmissionService) ListScores(ctx context.Context, assignmentID, teacherID string) ([]models.Score, error) {
	_, class, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if class.TeacherID != teacherID {
		return nil, appErrors.ErrForbidden
	}
	scores, err := s.scores.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list scores")
	}
	return scores, nil
}

func (s *SubmissionService) loadAssignment(ctx context.Context, assignmentID string) (*models.Assignment, *models.Class, error) {
	assignment, err := s.assignments.FindByID(ctx, assignmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	class, err := s.classes.FindByID(ctx, assignment.ClassID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return assignment, class, nil
}
