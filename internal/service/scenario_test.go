package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/PhmVu/EBN-Besu/internal/ledger"
	"github.com/PhmVu/EBN-Besu/internal/models"
	"github.com/PhmVu/EBN-Besu/pkg/jobs"
)

// Walks the full course lifecycle across the services: open a class,
// let a student in through review, hand in work, grade it, read the
// grade back and close out, healing a missed ledger write on the way.
func TestCourseLifecycle(t *testing.T) {
	ctx := context.Background()

	classes := newMemClasses()
	users := newMemUsers()
	enrollments := newMemEnrollments()
	approvals := newMemApprovals()
	assignments := newMemAssignments()
	submissions := newMemSubmissions()
	scores := newMemScores()
	divergences := newMemDivergences()
	gateway := newFakeGateway()
	wallets := NewWalletService(newMemWalletKeys(), testKeyParams, nil, nil)
	coordinator := NewCoordinator(divergences, nil, nil)

	classSvc := NewClassService(classes, users, enrollments, approvals, gateway, wallets, coordinator, testAdminKey, nil, nil)
	approvalSvc := NewApprovalService(approvals, classes, users, enrollments, gateway, coordinator, testAdminKey, nil, nil)
	assignmentSvc := NewAssignmentService(assignments, classes, enrollments, nil, nil)
	submissionSvc := NewSubmissionService(assignments, submissions, scores, enrollments, classes, users, gateway, wallets, nopCache{}, coordinator, nil, testAdminKey, time.Minute, nil, nil)
	reconciler := NewReconcilerService(divergences, classes, users, scores, gateway, testAdminKey, time.Minute, 1, nil)

	hash, err := bcrypt.GenerateFromPassword([]byte("teacher-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	teacher := users.add(&models.User{
		Email:        "ada@school.edu",
		PasswordHash: string(hash),
		FullName:     "Ada Teacher",
		Role:         models.RoleTeacher,
		Active:       true,
	})

	student := users.add(&models.User{
		Email:    "linus@school.edu",
		FullName: "Linus Student",
		Role:     models.RoleStudent,
		Active:   true,
	})
	address, err := wallets.Provision(ctx, student.ID, "linus-secret")
	require.NoError(t, err)
	student.WalletAddress = &address

	// teacher opens the class; both contracts are initialised
	class, outcome, err := classSvc.Create(ctx, CreateClassRequest{
		Code:      "CS101",
		Name:      "Intro to Computer Science",
		TeacherID: teacher.ID,
	})
	require.NoError(t, err)
	require.False(t, outcome.Divergent)

	// student asks in, teacher approves
	pending, err := approvalSvc.Request(ctx, class.ID, student.ID)
	require.NoError(t, err)

	queue, err := approvalSvc.ListPending(ctx, class.ID, teacher.ID)
	require.NoError(t, err)
	require.Len(t, queue, 1)

	approved, outcome, err := approvalSvc.Approve(ctx, ReviewRequest{
		ApprovalID:     pending.ID,
		ReviewerID:     teacher.ID,
		ReviewerSecret: "teacher-pass",
	})
	require.NoError(t, err)
	require.Equal(t, models.ApprovalStatusApproved, approved.Status)
	require.False(t, outcome.Divergent)

	allowed, err := gateway.IsStudentAllowed(ctx, class.ID, address)
	require.NoError(t, err)
	require.True(t, allowed)

	// the student sees the assignment and hands work in with their own key
	assignment, err := assignmentSvc.Create(ctx, CreateAssignmentRequest{
		ClassID:   class.ID,
		TeacherID: teacher.ID,
		Title:     "Problem Set 1",
	})
	require.NoError(t, err)

	submission, outcome, err := submissionSvc.Submit(ctx, SubmitRequest{
		AssignmentID: assignment.ID,
		StudentID:    student.ID,
		ContentHash:  "sha256:deadbeefcafef00d",
		Secret:       "linus-secret",
	})
	require.NoError(t, err)
	require.False(t, outcome.Divergent)
	require.NotNil(t, submission.TxHash)

	// teacher grades; the grade is readable back from the chain
	score, outcome, err := submissionSvc.RecordScore(ctx, RecordScoreRequest{
		AssignmentID: assignment.ID,
		StudentID:    student.ID,
		TeacherID:    teacher.ID,
		Value:        91,
	})
	require.NoError(t, err)
	require.False(t, outcome.Divergent)
	assert.Equal(t, 91, score.Value)

	onChain, err := submissionSvc.ReadScore(ctx, assignment.ID, student.ID)
	require.NoError(t, err)
	assert.True(t, onChain.Exists)

	gradebook, err := submissionSvc.MyScores(ctx, class.ID, student.ID)
	require.NoError(t, err)
	require.Len(t, gradebook, 1)

	// term ends with the chain briefly down; the close still commits
	gateway.fail("closeClass", ledger.ErrUnavailable)
	closed, outcome, err := classSvc.Close(ctx, class.ID, teacher.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ClassStatusClosed, closed.Status)
	require.True(t, outcome.Divergent)
	require.Equal(t, 1, divergences.count())

	// the node comes back and the reconciler replays the close
	delete(gateway.failures, "closeClass")
	open, err := divergences.ListUnresolved(ctx, 10)
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.NoError(t, reconciler.handle(ctx, jobs.Job{ID: open[0].ID, Type: open[0].Operation, Payload: open[0]}))

	open, err = divergences.ListUnresolved(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, open)

	// a closed class takes no further enrollment
	late := users.add(&models.User{
		Email:         "late@school.edu",
		Role:          models.RoleStudent,
		WalletAddress: &address,
		Active:        true,
	})
	_, err = approvalSvc.Request(ctx, class.ID, late.ID)
	require.Error(t, err)
}
