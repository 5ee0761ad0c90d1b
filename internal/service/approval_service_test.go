package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/PhmVu/EBN-Besu/internal/ledger"
	"github.com/PhmVu/EBN-Besu/internal/models"
	appErrors "github.com/PhmVu/EBN-Besu/pkg/errors"
)

const testAdminKey = "0xadminkey"

type approvalFixture struct {
	approvals   *memApprovals
	classes     *memClasses
	users       *memUsers
	enrollments *memEnrollments
	divergences *memDivergences
	gateway     *fakeGateway
	svc         *ApprovalService
	teacher     *models.User
	student     *models.User
	class       *models.Class
}

func newApprovalFixture(t *testing.T) *approvalFixture {
	t.Helper()

	f := &approvalFixture{
		approvals:   newMemApprovals(),
		classes:     newMemClasses(),
		users:       newMemUsers(),
		enrollments: newMemEnrollments(),
		divergences: newMemDivergences(),
		gateway:     newFakeGateway(),
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("teacher-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	f.teacher = f.users.add(&models.User{
		Email:        "teacher@school.edu",
		PasswordHash: string(hash),
		FullName:     "Alice Teacher",
		Role:         models.RoleTeacher,
		Active:       true,
	})

	studentAddr := "0x1111111111111111111111111111111111111111"
	f.student = f.users.add(&models.User{
		Email:         "student@school.edu",
		FullName:      "Bob Student",
		Role:          models.RoleStudent,
		WalletAddress: &studentAddr,
		Active:        true,
	})

	f.class = &models.Class{
		Code:      "CS101",
		TeacherID: f.teacher.ID,
		Name:      "Intro to Computer Science",
		Status:    models.ClassStatusOpen,
	}
	require.NoError(t, f.classes.Create(context.Background(), f.class))

	coordinator := NewCoordinator(f.divergences, nil, nil)
	f.svc = NewApprovalService(f.approvals, f.classes, f.users, f.enrollments, f.gateway, coordinator, testAdminKey, nil, nil)
	return f
}

func (f *approvalFixture) pendingApproval(t *testing.T) *models.Approval {
	t.Helper()
	approval, err := f.svc.Request(context.Background(), f.class.ID, f.student.ID)
	require.NoError(t, err)
	require.Equal(t, models.ApprovalStatusPending, approval.Status)
	return approval
}

func TestApprovalService_RequestDuplicatePending(t *testing.T) {
	f := newApprovalFixture(t)
	f.pendingApproval(t)

	_, err := f.svc.Request(context.Background(), f.class.ID, f.student.ID)
	assert.ErrorIs(t, err, appErrors.ErrAlreadyPending)
}

func TestApprovalService_RequestConcurrentSingleRow(t *testing.T) {
	f := newApprovalFixture(t)

	const requesters = 8
	var wg sync.WaitGroup
	results := make([]error, requesters)
	for i := 0; i < requesters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.svc.Request(context.Background(), f.class.ID, f.student.ID)
		}(i)
	}
	wg.Wait()

	var winners int
	for _, err := range results {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, appErrors.ErrAlreadyPending)
		}
	}
	assert.Equal(t, 1, winners)

	// the unique pair arbitration leaves exactly one PENDING row behind
	approval, err := f.approvals.FindByClassAndStudent(context.Background(), f.class.ID, f.student.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusPending, approval.Status)
	assert.Equal(t, 1, f.approvals.count())
}

func TestApprovalService_RequestClosedClass(t *testing.T) {
	f := newApprovalFixture(t)
	_, _, err := NewClassService(f.classes, f.users, f.enrollments, f.approvals, f.gateway, nil, NewCoordinator(f.divergences, nil, nil), testAdminKey, nil, nil).
		Close(context.Background(), f.class.ID, f.teacher.ID)
	require.NoError(t, err)

	_, err = f.svc.Request(context.Background(), f.class.ID, f.student.ID)
	assert.ErrorIs(t, err, appErrors.ErrClassClosed)
}

func TestApprovalService_RequestWithoutWallet(t *testing.T) {
	f := newApprovalFixture(t)
	noWallet := f.users.add(&models.User{
		Email:    "late@school.edu",
		FullName: "Late Joiner",
		Role:     models.RoleStudent,
		Active:   true,
	})

	_, err := f.svc.Request(context.Background(), f.class.ID, noWallet.ID)
	assert.ErrorIs(t, err, appErrors.ErrWalletMissing)
}

func TestApprovalService_ApproveHappyPath(t *testing.T) {
	f := newApprovalFixture(t)
	pending := f.pendingApproval(t)
	ctx := context.Background()

	approval, outcome, err := f.svc.Approve(ctx, ReviewRequest{
		ApprovalID:     pending.ID,
		ReviewerID:     f.teacher.ID,
		ReviewerSecret: "teacher-pass",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusApproved, approval.Status)
	assert.False(t, outcome.Divergent)
	require.NotNil(t, approval.TxHash)

	enrolled, err := f.enrollments.Exists(ctx, f.class.ID, f.student.ID)
	require.NoError(t, err)
	assert.True(t, enrolled)

	allowed, err := f.gateway.IsStudentAllowed(ctx, f.class.ID, *f.student.WalletAddress)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestApprovalService_ApproveConcurrentSingleWinner(t *testing.T) {
	f := newApprovalFixture(t)
	pending := f.pendingApproval(t)

	const reviewers = 6
	var wg sync.WaitGroup
	results := make([]error, reviewers)
	for i := 0; i < reviewers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, results[i] = f.svc.Approve(context.Background(), ReviewRequest{
				ApprovalID:     pending.ID,
				ReviewerID:     f.teacher.ID,
				ReviewerSecret: "teacher-pass",
			})
		}(i)
	}
	wg.Wait()

	var winners int
	for _, err := range results {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, appErrors.ErrAlreadyProcessed)
		}
	}
	assert.Equal(t, 1, winners)
	// only the claim winner reaches the contract
	assert.Equal(t, 1, f.gateway.callCount("approveAndAddStudent"))
}

func TestApprovalService_ApproveDivergence(t *testing.T) {
	f := newApprovalFixture(t)
	pending := f.pendingApproval(t)
	f.gateway.fail("approveAndAddStudent", ledger.ErrConfirmTimeout)
	ctx := context.Background()

	approval, outcome, err := f.svc.Approve(ctx, ReviewRequest{
		ApprovalID:     pending.ID,
		ReviewerID:     f.teacher.ID,
		ReviewerSecret: "teacher-pass",
	})
	require.NoError(t, err)

	// the decision sticks even though the chain write failed
	assert.Equal(t, models.ApprovalStatusApproved, approval.Status)
	assert.Nil(t, approval.TxHash)
	assert.True(t, outcome.Divergent)
	assert.Equal(t, 1, f.divergences.count())

	rows, err := f.divergences.ListUnresolved(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.DivergenceApproveStudent, rows[0].Operation)
}

func TestApprovalService_ApproveWrongPassword(t *testing.T) {
	f := newApprovalFixture(t)
	pending := f.pendingApproval(t)

	_, _, err := f.svc.Approve(context.Background(), ReviewRequest{
		ApprovalID:     pending.ID,
		ReviewerID:     f.teacher.ID,
		ReviewerSecret: "not-the-password",
	})
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
	assert.Equal(t, 0, f.gateway.callCount("approveAndAddStudent"))
}

func TestApprovalService_ApproveNotOwner(t *testing.T) {
	f := newApprovalFixture(t)
	pending := f.pendingApproval(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("other-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	other := f.users.add(&models.User{
		Email:        "other@school.edu",
		PasswordHash: string(hash),
		Role:         models.RoleTeacher,
		Active:       true,
	})

	_, _, err = f.svc.Approve(context.Background(), ReviewRequest{
		ApprovalID:     pending.ID,
		ReviewerID:     other.ID,
		ReviewerSecret: "other-pass",
	})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestApprovalService_RejectWithReason(t *testing.T) {
	f := newApprovalFixture(t)
	pending := f.pendingApproval(t)
	ctx := context.Background()

	approval, err := f.svc.Reject(ctx, ReviewRequest{
		ApprovalID:     pending.ID,
		ReviewerID:     f.teacher.ID,
		ReviewerSecret: "teacher-pass",
		Reason:         "class is full",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusRejected, approval.Status)
	require.NotNil(t, approval.RejectionReason)
	assert.Equal(t, "class is full", *approval.RejectionReason)

	// rejection never touches the chain
	assert.Equal(t, 0, f.gateway.callCount("approveAndAddStudent"))

	// terminal state, no second decision
	_, _, err = f.svc.Approve(ctx, ReviewRequest{
		ApprovalID:     pending.ID,
		ReviewerID:     f.teacher.ID,
		ReviewerSecret: "teacher-pass",
	})
	assert.ErrorIs(t, err, appErrors.ErrAlreadyProcessed)

	// a fresh request after rejection conflicts on the surviving row
	_, err = f.svc.Request(ctx, f.class.ID, f.student.ID)
	assert.ErrorIs(t, err, appErrors.ErrAlreadyProcessed)
}

func TestApprovalService_StatusNotRequested(t *testing.T) {
	f := newApprovalFixture(t)

	status, approval, err := f.svc.Status(context.Background(), f.class.ID, f.student.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusNotRequested, status)
	assert.Nil(t, approval)
}

func TestApprovalService_RemoveStudent(t *testing.T) {
	f := newApprovalFixture(t)
	pending := f.pendingApproval(t)
	ctx := context.Background()

	_, _, err := f.svc.Approve(ctx, ReviewRequest{
		ApprovalID:     pending.ID,
		ReviewerID:     f.teacher.ID,
		ReviewerSecret: "teacher-pass",
	})
	require.NoError(t, err)

	outcome, err := f.svc.RemoveStudent(ctx, f.class.ID, f.student.ID, f.teacher.ID)
	require.NoError(t, err)
	assert.False(t, outcome.Divergent)

	enrolled, err := f.enrollments.Exists(ctx, f.class.ID, f.student.ID)
	require.NoError(t, err)
	assert.False(t, enrolled)

	allowed, err := f.gateway.IsStudentAllowed(ctx, f.class.ID, *f.student.WalletAddress)
	require.NoError(t, err)
	assert.False(t, allowed)

	// not on the roster anymore
	_, err = f.svc.RemoveStudent(ctx, f.class.ID, f.student.ID, f.teacher.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
