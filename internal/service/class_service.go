package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/PhmVu/EBN-Besu/internal/ledger"
	"github.com/PhmVu/EBN-Besu/internal/models"
	"github.com/PhmVu/EBN-Besu/internal/repository"
	appErrors "github.com/PhmVu/EBN-Besu/pkg/errors"
)

type classRepository interface {
	Create(ctx context.Context, class *models.Class) error
	FindByID(ctx context.Context, id string) (*models.Class, error)
	FindByCode(ctx context.Context, code string) (*models.Class, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)
	List(ctx context.Context, filter models.ClassFilter) ([]models.Class, int, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Class, error)
	SetTxHash(ctx context.Context, id, txHash string) error
	Close(ctx context.Context, id string, closedAt time.Time) (bool, error)
}

type classUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	SetWalletAddress(ctx context.Context, id, address string) error
}

type classLedger interface {
	CreateClass(ctx context.Context, signerKey, classID, name string) (string, error)
	RegisterClass(ctx context.Context, signerKey, classID string) (string, error)
	CloseClass(ctx context.Context, signerKey, classID string) (string, error)
	AddStudent(ctx context.Context, signerKey, classID, studentAddr string) (string, error)
	GetClassInfo(ctx context.Context, classID string) (*ledger.ClassInfo, error)
}

type walletProvisioner interface {
	Provision(ctx context.Context, userID, secret string) (string, error)
}

type classEnrollments interface {
	enrollmentWriter
	ListByClass(ctx context.Context, classID string) ([]models.EnrollmentDetail, error)
}

type classApprovals interface {
	Create(ctx context.Context, approval *models.Approval) error
	SetTxHash(ctx context.Context, id, txHash string) error
}

// CreateClassRequest holds payload for opening a class.
type CreateClassRequest struct {
	Code        string `json:"code" validate:"required,min=3,max=32"`
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	TeacherID   string `json:"-"`
}

// BulkInviteRow is one student in a roster import.
type BulkInviteRow struct {
	Email         string `json:"email" validate:"required,email"`
	FullName      string `json:"full_name" validate:"required"`
	InitialSecret string `json:"initial_secret"`
}

// BulkInviteRequest imports a roster into a class.
type BulkInviteRequest struct {
	ClassID   string          `json:"-"`
	TeacherID string          `json:"-"`
	Rows      []BulkInviteRow `json:"rows" validate:"required,min=1,max=200,dive"`
}

// BulkInviteResult tags each roster row with what happened to it.
type BulkInviteResult struct {
	Email         string `json:"email"`
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
	WalletAddress string `json:"wallet_address,omitempty"`
	Divergent     bool   `json:"divergent,omitempty"`
}

// Bulk invite row outcomes.
const (
	InviteCreated = "CREATED"
	InviteSkipped = "SKIPPED"
)

// ClassService handles class lifecycle and roster imports. Creating and
// closing a class are dual writes: the database row commits first, the
// contract calls follow through the coordinator.
type ClassService struct {
	classes     classRepository
	users       classUserRepository
	enrollments classEnrollments
	approvals   classApprovals
	ledger      classLedger
	wallets     walletProvisioner
	coordinator *Coordinator
	adminKey    string
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewClassService constructs the class service.
func NewClassService(
	classes classRepository,
	users classUserRepository,
	enrollments classEnrollments,
	approvals classApprovals,
	ledger classLedger,
	wallets walletProvisioner,
	coordinator *Coordinator,
	adminKey string,
	validate *validator.Validate,
	logger *zap.Logger,
) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{
		classes:     classes,
		users:       users,
		enrollments: enrollments,
		approvals:   approvals,
		ledger:      ledger,
		wallets:     wallets,
		coordinator: coordinator,
		adminKey:    adminKey,
		validator:   validate,
		logger:      logger,
	}
}

// Create opens a class and initialises it on both contracts.
func (s *ClassService) Create(ctx context.Context, req CreateClassRequest) (*models.Class, Outcome, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, Outcome{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}

	code := strings.ToUpper(strings.TrimSpace(req.Code))
	exists, err := s.classes.ExistsByCode(ctx, code)
	if err != nil {
		return nil, Outcome{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate class code")
	}
	if exists {
		return nil, Outcome{}, appErrors.Clone(appErrors.ErrConflict, "class code already used")
	}

	class := &models.Class{
		Code:      code,
		TeacherID: req.TeacherID,
		Name:      req.Name,
		Status:    models.ClassStatusOpen,
	}
	if req.Description != "" {
		class.Description = &req.Description
	}
	if err := s.classes.Create(ctx, class); err != nil {
		return nil, Outcome{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}

	outcome := s.coordinator.Run(ctx, models.Divergence{
		Operation: models.DivergenceCreateClass,
		ClassID:   class.ID,
	}, func(ctx context.Context) (string, error) {
		return s.ledger.CreateClass(ctx, s.adminKey, class.ID, class.Name)
	})
	if outcome.TxHash != nil {
		if err := s.classes.SetTxHash(ctx, class.ID, *outcome.TxHash); err != nil {
			s.logger.Warn("failed to attach class tx hash", zap.Error(err))
		}
		class.TxHash = outcome.TxHash

		// the score ledger only needs registering once the enrollment
		// side exists
		s.coordinator.Run(ctx, models.Divergence{
			Operation: models.DivergenceRegisterClass,
			ClassID:   class.ID,
		}, func(ctx context.Context) (string, error) {
			return s.ledger.RegisterClass(ctx, s.adminKey, class.ID)
		})
	}

	s.logger.Info("class created",
		zap.String("class_id", class.ID),
		zap.String("code", class.Code),
		zap.Bool("divergent", outcome.Divergent))
	return class, outcome, nil
}

// Get returns a class by identifier.
func (s *ClassService) Get(ctx context.Context, id string) (*models.Class, error) {
	class, err := s.classes.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

// GetByCode returns a class by its join code.
func (s *ClassService) GetByCode(ctx context.Context, code string) (*models.Class, error) {
	class, err := s.classes.FindByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

// List returns classes matching the filter with pagination metadata.
func (s *ClassService) List(ctx context.Context, filter models.ClassFilter) ([]models.Class, *models.Pagination, error) {
	classes, total, err := s.classes.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return classes, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Roster returns the enrolled students of a class, owner-only.
func (s *ClassService) Roster(ctx context.Context, classID, teacherID string) ([]models.EnrollmentDetail, error) {
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
	roster, err := s.enrollments.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list roster")
	}
	return roster, nil
}

// ClassLedgerView pairs the stored class row with what the contract
// reports, so callers can spot drift between the two.
type ClassLedgerView struct {
	Class      *models.Class     `json:"class"`
	OnChain    *ledger.ClassInfo `json:"on_chain"`
	Consistent bool              `json:"consistent"`
}

// LedgerInfo reads the class record straight from the contract and
// flags whether it agrees with the database row.
func (s *ClassService) LedgerInfo(ctx context.Context, classID string) (*ClassLedgerView, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	info, err := s.ledger.GetClassInfo(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrLedgerUnavailable.Code, appErrors.ErrLedgerUnavailable.Status, "failed to read class from ledger")
	}

	consistent := info.Name == class.Name &&
		info.Open == (class.Status == models.ClassStatusOpen)
	return &ClassLedgerView{Class: class, OnChain: info, Consistent: consistent}, nil
}

// ListMine returns classes the student belongs to.
func (s *ClassService) ListMine(ctx context.Context, studentID string) ([]models.Class, error) {
	classes, err := s.classes.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	return classes, nil
}

// Close transitions a class to its terminal CLOSED state and mirrors
// the transition on chain. Closing twice is a conflict, not a no-op.
func (s *ClassService) Close(ctx context.Context, classID, teacherID string) (*models.Class, Outcome, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, Outcome{}, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, Outcome{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if class.TeacherID != teacherID {
		return nil, Outcome{}, appErrors.ErrForbidden
	}

	closedAt := time.Now().UTC()
	closed, err := s.classes.Close(ctx, classID, closedAt)
	if err != nil {
		return nil, Outcome{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close class")
	}
	if !closed {
		return nil, Outcome{}, appErrors.ErrClassClosed
	}
	class.Status = models.ClassStatusClosed
	class.ClosedAt = &closedAt

	outcome := s.coordinator.Run(ctx, models.Divergence{
		Operation: models.DivergenceCloseClass,
		ClassID:   classID,
	}, func(ctx context.Context) (string, error) {
		return s.ledger.CloseClass(ctx, s.adminKey, classID)
	})

	s.logger.Info("class closed",
		zap.String("class_id", classID),
		zap.Bool("divergent", outcome.Divergent))
	return class, outcome, nil
}

// BulkInvite imports a roster: for each row it creates the account and
// custodial wallet when needed, enrolls the student and whitelists the
// wallet. Rows are independent; one bad row never stops the rest.
func (s *ClassService) BulkInvite(ctx context.Context, req BulkInviteRequest) ([]BulkInviteResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid invite payload")
	}

	class, err := s.classes.FindByID(ctx, req.ClassID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if class.TeacherID != req.TeacherID {
		return nil, appErrors.ErrForbidden
	}
	if class.Status != models.ClassStatusOpen {
		return nil, appErrors.ErrClassClosed
	}

	results := make([]BulkInviteResult, 0, len(req.Rows))
	for _, row := range req.Rows {
		results = append(results, s.inviteOne(ctx, class, row))
	}
	return results, nil
}

func (s *ClassService) inviteOne(ctx context.Context, class *models.Class, row BulkInviteRow) BulkInviteResult {
	student, err := s.users.FindByEmail(ctx, row.Email)
	switch {
	case err == sql.ErrNoRows:
		if row.InitialSecret == "" {
			// a wallet cannot be escrowed without a secret to seal it
			return BulkInviteResult{Email: row.Email, Status: InviteSkipped, Reason: "unknown student and no initial secret supplied"}
		}
		student, err = s.createInvitedStudent(ctx, row)
		if err != nil {
			return BulkInviteResult{Email: row.Email, Status: InviteSkipped, Reason: err.Error()}
		}
	case err != nil:
		return BulkInviteResult{Email: row.Email, Status: InviteSkipped, Reason: "failed to look up student"}
	case student.Role != models.RoleStudent:
		return BulkInviteResult{Email: row.Email, Status: InviteSkipped, Reason: "account is not a student"}
	case student.WalletAddress == nil || *student.WalletAddress == "":
		return BulkInviteResult{Email: row.Email, Status: InviteSkipped, Reason: "student has no wallet"}
	}

	// an invite is a pre-reviewed request: the approval row lands
	// APPROVED with the inviting teacher as reviewer, keeping one
	// request row per enrolled pair
	now := time.Now().UTC()
	approval := &models.Approval{
		ClassID:       class.ID,
		StudentID:     student.ID,
		WalletAddress: *student.WalletAddress,
		Status:        models.ApprovalStatusApproved,
		ReviewedBy:    &class.TeacherID,
		ReviewedAt:    &now,
	}
	if err := s.approvals.Create(ctx, approval); err != nil {
		if errors.Is(err, repository.ErrDuplicateApproval) {
			return BulkInviteResult{Email: row.Email, Status: InviteSkipped, Reason: "student already requested or enrolled"}
		}
		return BulkInviteResult{Email: row.Email, Status: InviteSkipped, Reason: "failed to record approval"}
	}

	if err := s.enrollments.Create(ctx, &models.Enrollment{
		ClassID:       class.ID,
		StudentID:     student.ID,
		WalletAddress: *student.WalletAddress,
	}); err != nil {
		return BulkInviteResult{Email: row.Email, Status: InviteSkipped, Reason: "failed to enroll student"}
	}

	outcome := s.coordinator.Run(ctx, models.Divergence{
		Operation: models.DivergenceApproveStudent,
		ClassID:   class.ID,
		SubjectID: &student.ID,
		EntityID:  &approval.ID,
	}, func(ctx context.Context) (string, error) {
		return s.ledger.AddStudent(ctx, s.adminKey, class.ID, *student.WalletAddress)
	})
	if outcome.TxHash != nil {
		if err := s.approvals.SetTxHash(ctx, approval.ID, *outcome.TxHash); err != nil {
			s.logger.Warn("failed to attach invite tx hash", zap.Error(err))
		}
	}

	return BulkInviteResult{
		Email:         row.Email,
		Status:        InviteCreated,
		WalletAddress: *student.WalletAddress,
		Divergent:     outcome.Divergent,
	}
}

func (s *ClassService) createInvitedStudent(ctx context.Context, row BulkInviteRow) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(row.InitialSecret), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash secret")
	}
	student := &models.User{
		Email:        row.Email,
		PasswordHash: string(hash),
		FullName:     row.FullName,
		Role:         models.RoleStudent,
		Active:       true,
	}
	if err := s.users.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	address, err := s.wallets.Provision(ctx, student.ID, row.InitialSecret)
	if err != nil {
		return nil, err
	}
	if err := s.users.SetWalletAddress(ctx, student.ID, address); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to bind wallet")
	}
	student.WalletAddress = &address
	return student, nil
}
