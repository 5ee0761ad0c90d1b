package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/PhmVu/EBN-Besu/internal/models"
	"github.com/PhmVu/EBN-Besu/pkg/jobs"
)

type divergenceRepository interface {
	Create(ctx context.Context, d *models.Divergence) error
	ListUnresolved(ctx context.Context, limit int) ([]models.Divergence, error)
	Resolve(ctx context.Context, id, txHash string, resolvedAt time.Time) (bool, error)
}

type reconcilerLedger interface {
	CreateClass(ctx context.Context, signerKey, classID, name string) (string, error)
	RegisterClass(ctx context.Context, signerKey, classID string) (string, error)
	AddStudent(ctx context.Context, signerKey, classID, studentAddr string) (string, error)
	RemoveStudent(ctx context.Context, signerKey, classID, studentAddr string) (string, error)
	CloseClass(ctx context.Context, signerKey, classID string) (string, error)
	IsStudentAllowed(ctx context.Context, classID, studentAddr string) (bool, error)
	RecordScore(ctx context.Context, signerKey, classID, assignmentID, studentAddr string, score uint8) (string, error)
}

type reconcilerScoreReader interface {
	Find(ctx context.Context, assignmentID, studentID string) (*models.Score, error)
}

// ReconcilerService sweeps unresolved divergences and replays the
// missing ledger writes with the admin key. Student-signed submissions
// cannot be replayed server side; their rows stay open for the student
// to re-submit.
type ReconcilerService struct {
	divergences divergenceRepository
	classes     classReader
	users       userReader
	scores      reconcilerScoreReader
	ledger      reconcilerLedger
	adminKey    string
	interval    time.Duration
	queue       *jobs.Queue
	logger      *zap.Logger
}

// NewReconcilerService constructs the reconciler.
func NewReconcilerService(
	divergences divergenceRepository,
	classes classReader,
	users userReader,
	scores reconcilerScoreReader,
	ledger reconcilerLedger,
	adminKey string,
	interval time.Duration,
	workers int,
	logger *zap.Logger,
) *ReconcilerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	s := &ReconcilerService{
		divergences: divergences,
		classes:     classes,
		users:       users,
		scores:      scores,
		ledger:      ledger,
		adminKey:    adminKey,
		interval:    interval,
		logger:      logger,
	}
	s.queue = jobs.NewQueue("ledger-reconciler", s.handle, jobs.QueueConfig{
		Workers: workers,
		Logger:  logger,
	})
	return s
}

// Start launches the queue workers and the periodic sweep.
func (s *ReconcilerService) Start(ctx context.Context) {
	s.queue.Start(ctx)
	go s.sweepLoop(ctx)
}

// Stop drains the workers.
func (s *ReconcilerService) Stop() {
	s.queue.Stop()
}

func (s *ReconcilerService) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep enqueues every open divergence for replay.
func (s *ReconcilerService) Sweep(ctx context.Context) {
	divergences, err := s.divergences.ListUnresolved(ctx, 100)
	if err != nil {
		s.logger.Error("reconciler sweep failed", zap.Error(err))
		return
	}
	for _, d := range divergences {
		if err := s.queue.Enqueue(jobs.Job{ID: d.ID, Type: d.Operation, Payload: d}); err != nil {
			s.logger.Warn("failed to enqueue divergence", zap.String("id", d.ID), zap.Error(err))
		}
	}
	if len(divergences) > 0 {
		s.logger.Info("reconciler sweep enqueued", zap.Int("count", len(divergences)))
	}
}

func (s *ReconcilerService) handle(ctx context.Context, job jobs.Job) error {
	d, ok := job.Payload.(models.Divergence)
	if !ok {
		return fmt.Errorf("unexpected payload type for job %s", job.ID)
	}

	txHash, err := s.replay(ctx, d)
	if err != nil {
		return fmt.Errorf("replay %s: %w", d.Operation, err)
	}
	if txHash == "" {
		// nothing to replay server side; leave the row open
		return nil
	}

	resolved, err := s.divergences.Resolve(ctx, d.ID, txHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("resolve divergence %s: %w", d.ID, err)
	}
	if resolved {
		s.logger.Info("divergence resolved",
			zap.String("id", d.ID),
			zap.String("operation", d.Operation),
			zap.String("tx_hash", txHash))
	}
	return nil
}

func (s *ReconcilerService) replay(ctx context.Context, d models.Divergence) (string, error) {
	switch d.Operation {
	case models.DivergenceCreateClass:
		class, err := s.classes.FindByID(ctx, d.ClassID)
		if err != nil {
			return "", err
		}
		return s.ledger.CreateClass(ctx, s.adminKey, class.ID, class.Name)

	case models.DivergenceRegisterClass:
		return s.ledger.RegisterClass(ctx, s.adminKey, d.ClassID)

	case models.DivergenceApproveStudent:
		addr, err := s.studentAddress(ctx, d)
		if err != nil {
			return "", err
		}
		allowed, err := s.ledger.IsStudentAllowed(ctx, d.ClassID, addr)
		if err != nil {
			return "", err
		}
		if allowed {
			// the original write landed after all; nothing to re-issue
			return "already-consistent", nil
		}
		return s.ledger.AddStudent(ctx, s.adminKey, d.ClassID, addr)

	case models.DivergenceRemoveStudent:
		addr, err := s.studentAddress(ctx, d)
		if err != nil {
			return "", err
		}
		allowed, err := s.ledger.IsStudentAllowed(ctx, d.ClassID, addr)
		if err != nil {
			return "", err
		}
		if !allowed {
			return "already-consistent", nil
		}
		return s.ledger.RemoveStudent(ctx, s.adminKey, d.ClassID, addr)

	case models.DivergenceCloseClass:
		return s.ledger.CloseClass(ctx, s.adminKey, d.ClassID)

	case models.DivergenceRecordScore:
		if d.SubjectID == nil || d.EntityID == nil {
			return "", fmt.Errorf("divergence %s missing identifiers", d.ID)
		}
		score, err := s.scores.Find(ctx, *d.EntityID, *d.SubjectID)
		if err != nil {
			if err == sql.ErrNoRows {
				return "", fmt.Errorf("score row vanished for divergence %s", d.ID)
			}
			return "", err
		}
		addr, err := s.studentAddress(ctx, d)
		if err != nil {
			return "", err
		}
		return s.ledger.RecordScore(ctx, s.adminKey, d.ClassID, *d.EntityID, addr, uint8(score.Value))

	case models.DivergenceSubmitWork:
		// submissions are signed by the student's key; the server
		// cannot unseal it
		return "", nil

	default:
		return "", fmt.Errorf("unknown divergence operation %q", d.Operation)
	}
}

func (s *ReconcilerService) studentAddress(ctx context.Context, d models.Divergence) (string, error) {
	if d.SubjectID == nil {
		return "", fmt.Errorf("divergence %s has no subject", d.ID)
	}
	student, err := s.users.FindByID(ctx, *d.SubjectID)
	if err != nil {
		return "", err
	}
	if student.WalletAddress == nil {
		return "", fmt.Errorf("student %s has no wallet", *d.SubjectID)
	}
	return *student.WalletAddress, nil
}
