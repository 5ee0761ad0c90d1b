package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PhmVu/EBN-Besu/internal/ledger"
	"github.com/PhmVu/EBN-Besu/internal/models"
	"github.com/PhmVu/EBN-Besu/internal/wallet"
	appErrors "github.com/PhmVu/EBN-Besu/pkg/errors"
)

type classFixture struct {
	classes     *memClasses
	users       *memUsers
	enrollments *memEnrollments
	approvals   *memApprovals
	divergences *memDivergences
	gateway     *fakeGateway
	wallets     *WalletService
	svc         *ClassService
	teacher     *models.User
}

func newClassFixture(t *testing.T) *classFixture {
	t.Helper()

	f := &classFixture{
		classes:     newMemClasses(),
		users:       newMemUsers(),
		enrollments: newMemEnrollments(),
		approvals:   newMemApprovals(),
		divergences: newMemDivergences(),
		gateway:     newFakeGateway(),
	}
	f.wallets = NewWalletService(newMemWalletKeys(), testKeyParams, nil, nil)
	f.teacher = f.users.add(&models.User{
		Email:    "teacher@school.edu",
		FullName: "Alice Teacher",
		Role:     models.RoleTeacher,
		Active:   true,
	})

	coordinator := NewCoordinator(f.divergences, nil, nil)
	f.svc = NewClassService(f.classes, f.users, f.enrollments, f.approvals, f.gateway, f.wallets, coordinator, testAdminKey, nil, nil)
	return f
}

func TestClassService_Create(t *testing.T) {
	f := newClassFixture(t)

	class, outcome, err := f.svc.Create(context.Background(), CreateClassRequest{
		Code:      "cs101",
		Name:      "Intro to Computer Science",
		TeacherID: f.teacher.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "CS101", class.Code)
	assert.Equal(t, models.ClassStatusOpen, class.Status)
	assert.False(t, outcome.Divergent)
	require.NotNil(t, class.TxHash)

	// both contracts see the class
	assert.Equal(t, 1, f.gateway.callCount("createClass"))
	assert.Equal(t, 1, f.gateway.callCount("registerClass"))
}

func TestClassService_CreateDuplicateCode(t *testing.T) {
	f := newClassFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.Create(ctx, CreateClassRequest{Code: "CS101", Name: "First", TeacherID: f.teacher.ID})
	require.NoError(t, err)

	_, _, err = f.svc.Create(ctx, CreateClassRequest{Code: "cs101", Name: "Second", TeacherID: f.teacher.ID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestClassService_CreateDivergence(t *testing.T) {
	f := newClassFixture(t)
	f.gateway.fail("createClass", ledger.ErrUnavailable)

	class, outcome, err := f.svc.Create(context.Background(), CreateClassRequest{
		Code:      "CS101",
		Name:      "Intro to Computer Science",
		TeacherID: f.teacher.ID,
	})
	require.NoError(t, err)
	assert.True(t, outcome.Divergent)
	assert.Nil(t, class.TxHash)
	assert.Equal(t, 1, f.divergences.count())
	// score-ledger registration waits for the enrollment side to exist
	assert.Equal(t, 0, f.gateway.callCount("registerClass"))
}

func TestClassService_CloseTwice(t *testing.T) {
	f := newClassFixture(t)
	ctx := context.Background()

	class, _, err := f.svc.Create(ctx, CreateClassRequest{Code: "CS101", Name: "Intro", TeacherID: f.teacher.ID})
	require.NoError(t, err)

	closed, outcome, err := f.svc.Close(ctx, class.ID, f.teacher.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ClassStatusClosed, closed.Status)
	assert.NotNil(t, closed.ClosedAt)
	assert.False(t, outcome.Divergent)

	_, _, err = f.svc.Close(ctx, class.ID, f.teacher.ID)
	assert.ErrorIs(t, err, appErrors.ErrClassClosed)
	assert.Equal(t, 1, f.gateway.callCount("closeClass"))
}

func TestClassService_CloseNotOwner(t *testing.T) {
	f := newClassFixture(t)
	ctx := context.Background()
	other := f.users.add(&models.User{Email: "other@school.edu", Role: models.RoleTeacher, Active: true})

	class, _, err := f.svc.Create(ctx, CreateClassRequest{Code: "CS101", Name: "Intro", TeacherID: f.teacher.ID})
	require.NoError(t, err)

	_, _, err = f.svc.Close(ctx, class.ID, other.ID)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestClassService_BulkInvite(t *testing.T) {
	f := newClassFixture(t)
	ctx := context.Background()

	class, _, err := f.svc.Create(ctx, CreateClassRequest{Code: "CS101", Name: "Intro", TeacherID: f.teacher.ID})
	require.NoError(t, err)

	results, err := f.svc.BulkInvite(ctx, BulkInviteRequest{
		ClassID:   class.ID,
		TeacherID: f.teacher.ID,
		Rows: []BulkInviteRow{
			{Email: "new@school.edu", FullName: "New Student", InitialSecret: "pw-one"},
			{Email: "ghost@school.edu", FullName: "No Secret"},
		},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	created := results[0]
	assert.Equal(t, InviteCreated, created.Status)
	assert.True(t, wallet.ValidAddress(created.WalletAddress))
	assert.False(t, created.Divergent)

	skipped := results[1]
	assert.Equal(t, InviteSkipped, skipped.Status)
	assert.NotEmpty(t, skipped.Reason)

	// the created student has an account, a sealed key and a roster entry
	student, err := f.users.FindByEmail(ctx, "new@school.edu")
	require.NoError(t, err)
	require.NotNil(t, student.WalletAddress)
	assert.Equal(t, created.WalletAddress, *student.WalletAddress)

	enrolled, err := f.enrollments.Exists(ctx, class.ID, student.ID)
	require.NoError(t, err)
	assert.True(t, enrolled)

	signer, err := f.wallets.SignerKey(ctx, student.ID, "pw-one")
	require.NoError(t, err)
	assert.NotEmpty(t, signer)

	allowed, err := f.gateway.IsStudentAllowed(ctx, class.ID, created.WalletAddress)
	require.NoError(t, err)
	assert.True(t, allowed)

	// an invite lands as a pre-reviewed request, so the pair keeps the
	// one-approved-row-per-enrollment shape
	approval, err := f.approvals.FindByClassAndStudent(ctx, class.ID, student.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusApproved, approval.Status)
	require.NotNil(t, approval.ReviewedBy)
	assert.Equal(t, f.teacher.ID, *approval.ReviewedBy)
	assert.Equal(t, created.WalletAddress, approval.WalletAddress)
	require.NotNil(t, approval.TxHash)
}

func TestClassService_BulkInviteSkipsExistingRequest(t *testing.T) {
	f := newClassFixture(t)
	ctx := context.Background()

	class, _, err := f.svc.Create(ctx, CreateClassRequest{Code: "CS101", Name: "Intro", TeacherID: f.teacher.ID})
	require.NoError(t, err)

	rows := []BulkInviteRow{{Email: "new@school.edu", FullName: "New Student", InitialSecret: "pw-one"}}
	results, err := f.svc.BulkInvite(ctx, BulkInviteRequest{ClassID: class.ID, TeacherID: f.teacher.ID, Rows: rows})
	require.NoError(t, err)
	require.Equal(t, InviteCreated, results[0].Status)

	// re-inviting the same student hits the existing request row
	results, err = f.svc.BulkInvite(ctx, BulkInviteRequest{ClassID: class.ID, TeacherID: f.teacher.ID, Rows: rows})
	require.NoError(t, err)
	assert.Equal(t, InviteSkipped, results[0].Status)
	assert.Equal(t, "student already requested or enrolled", results[0].Reason)
}

func TestClassService_BulkInviteClosedClass(t *testing.T) {
	f := newClassFixture(t)
	ctx := context.Background()

	class, _, err := f.svc.Create(ctx, CreateClassRequest{Code: "CS101", Name: "Intro", TeacherID: f.teacher.ID})
	require.NoError(t, err)
	_, _, err = f.svc.Close(ctx, class.ID, f.teacher.ID)
	require.NoError(t, err)

	_, err = f.svc.BulkInvite(ctx, BulkInviteRequest{
		ClassID:   class.ID,
		TeacherID: f.teacher.ID,
		Rows:      []BulkInviteRow{{Email: "new@school.edu", FullName: "New", InitialSecret: "pw"}},
	})
	assert.ErrorIs(t, err, appErrors.ErrClassClosed)
}

func TestClassService_LedgerInfo(t *testing.T) {
	f := newClassFixture(t)
	ctx := context.Background()

	class, _, err := f.svc.Create(ctx, CreateClassRequest{Code: "CS101", Name: "Intro", TeacherID: f.teacher.ID})
	require.NoError(t, err)

	view, err := f.svc.LedgerInfo(ctx, class.ID)
	require.NoError(t, err)
	assert.Equal(t, "Intro", view.OnChain.Name)
	assert.True(t, view.OnChain.Open)
	assert.True(t, view.Consistent)

	// the fake contract keeps reporting the class open, so the closed
	// row reads as drift
	_, _, err = f.svc.Close(ctx, class.ID, f.teacher.ID)
	require.NoError(t, err)
	view, err = f.svc.LedgerInfo(ctx, class.ID)
	require.NoError(t, err)
	assert.False(t, view.Consistent)

	_, err = f.svc.LedgerInfo(ctx, "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
