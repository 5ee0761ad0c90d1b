package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PhmVu/EBN-Besu/internal/ledger"
	"github.com/PhmVu/EBN-Besu/internal/models"
	"github.com/PhmVu/EBN-Besu/internal/repository"
	appErrors "github.com/PhmVu/EBN-Besu/pkg/errors"
)

// In-memory fakes shared by the service tests. They reproduce the
// arbitration semantics of the real repositories: unique indexes and
// conditional updates under a mutex.

type memUsers struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[string]*models.User)}
}

func (m *memUsers) add(u *models.User) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = fmt.Sprintf("user-%d", len(m.users)+1)
	}
	m.users[u.ID] = u
	return u
}

func (m *memUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memUsers) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := m.FindByEmail(ctx, email)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (m *memUsers) Create(ctx context.Context, user *models.User) error {
	m.add(user)
	return nil
}

func (m *memUsers) FindByWallet(ctx context.Context, address string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.WalletAddress != nil && *u.WalletAddress == address {
			copied := *u
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memUsers) List(ctx context.Context, role *models.UserRole, search string, page, size int) ([]models.User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []models.User
	for _, u := range m.users {
		if role != nil && u.Role != *role {
			continue
		}
		if search != "" {
			needle := strings.ToLower(search)
			if !strings.Contains(strings.ToLower(u.Email), needle) &&
				!strings.Contains(strings.ToLower(u.FullName), needle) {
				continue
			}
		}
		matched = append(matched, *u)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	total := len(matched)
	offset := (page - 1) * size
	if offset >= total {
		return nil, total, nil
	}
	end := offset + size
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (m *memUsers) SetWalletAddress(ctx context.Context, id, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok && u.WalletAddress == nil {
		u.WalletAddress = &address
	}
	return nil
}

type memClasses struct {
	mu      sync.Mutex
	classes map[string]*models.Class
}

func newMemClasses() *memClasses {
	return &memClasses{classes: make(map[string]*models.Class)}
}

func (m *memClasses) Create(ctx context.Context, class *models.Class) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if class.ID == "" {
		class.ID = fmt.Sprintf("class-%d", len(m.classes)+1)
	}
	m.classes[class.ID] = class
	return nil
}

func (m *memClasses) FindByID(ctx context.Context, id string) (*models.Class, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.classes[id]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memClasses) FindByCode(ctx context.Context, code string) (*models.Class, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.classes {
		if c.Code == code {
			copied := *c
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memClasses) ExistsByCode(ctx context.Context, code string) (bool, error) {
	_, err := m.FindByCode(ctx, code)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (m *memClasses) List(ctx context.Context, filter models.ClassFilter) ([]models.Class, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Class
	for _, c := range m.classes {
		if filter.TeacherID != "" && c.TeacherID != filter.TeacherID {
			continue
		}
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (m *memClasses) ListByStudent(ctx context.Context, studentID string) ([]models.Class, error) {
	return nil, nil
}

func (m *memClasses) SetTxHash(ctx context.Context, id, txHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.classes[id]; ok {
		c.TxHash = &txHash
	}
	return nil
}

func (m *memClasses) Close(ctx context.Context, id string, closedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.classes[id]
	if !ok || c.Status != models.ClassStatusOpen {
		return false, nil
	}
	c.Status = models.ClassStatusClosed
	c.ClosedAt = &closedAt
	return true, nil
}

type memApprovals struct {
	mu        sync.Mutex
	approvals map[string]*models.Approval
}

func newMemApprovals() *memApprovals {
	return &memApprovals{approvals: make(map[string]*models.Approval)}
}

func (m *memApprovals) Create(ctx context.Context, approval *models.Approval) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.approvals {
		if a.ClassID == approval.ClassID && a.StudentID == approval.StudentID {
			return repository.ErrDuplicateApproval
		}
	}
	if approval.ID == "" {
		approval.ID = fmt.Sprintf("apr-%d", len(m.approvals)+1)
	}
	if approval.RequestedAt.IsZero() {
		approval.RequestedAt = time.Now().UTC()
	}
	m.approvals[approval.ID] = approval
	return nil
}

func (m *memApprovals) FindByClassAndStudent(ctx context.Context, classID, studentID string) (*models.Approval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.approvals {
		if a.ClassID == classID && a.StudentID == studentID {
			copied := *a
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memApprovals) FindByID(ctx context.Context, id string) (*models.Approval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.approvals[id]; ok {
		copied := *a
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memApprovals) ListByClass(ctx context.Context, classID string, status models.ApprovalStatus) ([]models.ApprovalDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ApprovalDetail
	for _, a := range m.approvals {
		if a.ClassID != classID {
			continue
		}
		if status != "" && a.Status != status {
			continue
		}
		out = append(out, models.ApprovalDetail{Approval: *a})
	}
	return out, nil
}

func (m *memApprovals) ClaimPending(ctx context.Context, id string, status models.ApprovalStatus, reviewerID string, reason *string, reviewedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.approvals[id]
	if !ok || a.Status != models.ApprovalStatusPending {
		return false, nil
	}
	a.Status = status
	a.ReviewedBy = &reviewerID
	a.ReviewedAt = &reviewedAt
	a.RejectionReason = reason
	return true, nil
}

func (m *memApprovals) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.approvals)
}

func (m *memApprovals) SetTxHash(ctx context.Context, id, txHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.approvals[id]; ok {
		a.TxHash = &txHash
	}
	return nil
}

type memEnrollments struct {
	mu      sync.Mutex
	members map[string]models.Enrollment
}

func newMemEnrollments() *memEnrollments {
	return &memEnrollments{members: make(map[string]models.Enrollment)}
}

func enrollKey(classID, studentID string) string {
	return classID + "/" + studentID
}

func (m *memEnrollments) Create(ctx context.Context, e *models.Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := enrollKey(e.ClassID, e.StudentID)
	if _, ok := m.members[key]; ok {
		return nil
	}
	if e.ID == "" {
		e.ID = fmt.Sprintf("enr-%d", len(m.members)+1)
	}
	m.members[key] = *e
	return nil
}

func (m *memEnrollments) Delete(ctx context.Context, classID, studentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := enrollKey(classID, studentID)
	if _, ok := m.members[key]; !ok {
		return false, nil
	}
	delete(m.members, key)
	return true, nil
}

func (m *memEnrollments) ListByClass(ctx context.Context, classID string) ([]models.EnrollmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.EnrollmentDetail
	for _, e := range m.members {
		if e.ClassID == classID {
			out = append(out, models.EnrollmentDetail{Enrollment: e})
		}
	}
	return out, nil
}

func (m *memEnrollments) Exists(ctx context.Context, classID, studentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.members[enrollKey(classID, studentID)]
	return ok, nil
}

type memWalletKeys struct {
	mu   sync.Mutex
	keys map[string]*models.WalletKey
}

func newMemWalletKeys() *memWalletKeys {
	return &memWalletKeys{keys: make(map[string]*models.WalletKey)}
}

func (m *memWalletKeys) Create(ctx context.Context, key *models.WalletKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if key.ID == "" {
		key.ID = fmt.Sprintf("key-%d", len(m.keys)+1)
	}
	m.keys[key.UserID] = key
	return nil
}

func (m *memWalletKeys) FindByUserID(ctx context.Context, userID string) (*models.WalletKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if k, ok := m.keys[userID]; ok {
		copied := *k
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memWalletKeys) MarkDisclosed(ctx context.Context, id string, disclosedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.keys {
		if k.ID == id {
			if k.Disclosed {
				return false, nil
			}
			k.Disclosed = true
			k.DisclosedAt = &disclosedAt
			return true, nil
		}
	}
	return false, nil
}

type memDivergences struct {
	mu   sync.Mutex
	rows []*models.Divergence
}

func newMemDivergences() *memDivergences {
	return &memDivergences{}
}

func (m *memDivergences) Create(ctx context.Context, d *models.Divergence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == "" {
		d.ID = fmt.Sprintf("div-%d", len(m.rows)+1)
	}
	m.rows = append(m.rows, d)
	return nil
}

func (m *memDivergences) ListUnresolved(ctx context.Context, limit int) ([]models.Divergence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Divergence
	for _, d := range m.rows {
		if !d.Resolved {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *memDivergences) Resolve(ctx context.Context, id, txHash string, resolvedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.rows {
		if d.ID == id && !d.Resolved {
			d.Resolved = true
			d.ResolvedAt = &resolvedAt
			d.ResolvedTx = &txHash
			return true, nil
		}
	}
	return false, nil
}

func (m *memDivergences) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type memAssignments struct {
	mu          sync.Mutex
	assignments map[string]*models.Assignment
}

func newMemAssignments() *memAssignments {
	return &memAssignments{assignments: make(map[string]*models.Assignment)}
}

func (m *memAssignments) Create(ctx context.Context, a *models.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = fmt.Sprintf("asg-%d", len(m.assignments)+1)
	}
	m.assignments[a.ID] = a
	return nil
}

func (m *memAssignments) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.assignments[id]; ok {
		copied := *a
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memAssignments) ListByClass(ctx context.Context, classID string) ([]models.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Assignment
	for _, a := range m.assignments {
		if a.ClassID == classID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memAssignments) Update(ctx context.Context, a *models.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments[a.ID] = a
	return nil
}

func (m *memAssignments) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.assignments, id)
	return nil
}

type memSubmissions struct {
	mu          sync.Mutex
	submissions map[string]*models.Submission
	upsertErr   error
}

func newMemSubmissions() *memSubmissions {
	return &memSubmissions{submissions: make(map[string]*models.Submission)}
}

func (m *memSubmissions) Upsert(ctx context.Context, s *models.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	key := s.AssignmentID + "/" + s.StudentID
	if existing, ok := m.submissions[key]; ok {
		existing.ContentHash = s.ContentHash
		existing.TxHash = s.TxHash
		existing.SubmittedAt = s.SubmittedAt
		*s = *existing
		return nil
	}
	if s.ID == "" {
		s.ID = fmt.Sprintf("sub-%d", len(m.submissions)+1)
	}
	copied := *s
	m.submissions[key] = &copied
	return nil
}

func (m *memSubmissions) SetTxHash(ctx context.Context, assignmentID, studentID, txHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.submissions[assignmentID+"/"+studentID]; ok {
		s.TxHash = &txHash
	}
	return nil
}

func (m *memSubmissions) Find(ctx context.Context, assignmentID, studentID string) (*models.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.submissions[assignmentID+"/"+studentID]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memSubmissions) ListByAssignment(ctx context.Context, assignmentID string) ([]models.SubmissionDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.SubmissionDetail
	for _, s := range m.submissions {
		if s.AssignmentID == assignmentID {
			out = append(out, models.SubmissionDetail{Submission: *s})
		}
	}
	return out, nil
}

type memScores struct {
	mu        sync.Mutex
	scores    map[string]*models.Score
	upsertErr error
}

func newMemScores() *memScores {
	return &memScores{scores: make(map[string]*models.Score)}
}

func (m *memScores) Upsert(ctx context.Context, s *models.Score) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	key := s.AssignmentID + "/" + s.StudentID
	if existing, ok := m.scores[key]; ok {
		existing.Value = s.Value
		existing.RecordedBy = s.RecordedBy
		existing.RecordedAt = s.RecordedAt
		if s.TxHash != nil {
			existing.TxHash = s.TxHash
		}
		*s = *existing
		return nil
	}
	if s.ID == "" {
		s.ID = fmt.Sprintf("sco-%d", len(m.scores)+1)
	}
	copied := *s
	m.scores[key] = &copied
	return nil
}

func (m *memScores) SetTxHash(ctx context.Context, assignmentID, studentID, txHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.scores[assignmentID+"/"+studentID]; ok {
		s.TxHash = &txHash
	}
	return nil
}

func (m *memScores) Find(ctx context.Context, assignmentID, studentID string) (*models.Score, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.scores[assignmentID+"/"+studentID]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memScores) ListByAssignment(ctx context.Context, assignmentID string) ([]models.Score, error) {
	return nil, nil
}

func (m *memScores) ListByStudent(ctx context.Context, classID, studentID string) ([]models.Score, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Score
	for _, s := range m.scores {
		if s.ClassID == classID && s.StudentID == studentID {
			out = append(out, *s)
		}
	}
	return out, nil
}

// fakeGateway counts contract calls and can be told to fail specific
// operations.
type fakeGateway struct {
	mu         sync.Mutex
	failures   map[string]error
	calls      map[string]int
	allowed    map[string]bool
	classNames map[string]string
	next       int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		failures:   make(map[string]error),
		calls:      make(map[string]int),
		allowed:    make(map[string]bool),
		classNames: make(map[string]string),
	}
}

func (f *fakeGateway) fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = err
}

func (f *fakeGateway) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeGateway) invoke(op string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	if err, ok := f.failures[op]; ok {
		return "", err
	}
	f.next++
	return fmt.Sprintf("0xtx%04d", f.next), nil
}

func (f *fakeGateway) CreateClass(ctx context.Context, signerKey, classID, name string) (string, error) {
	tx, err := f.invoke("createClass")
	if err == nil {
		f.mu.Lock()
		f.classNames[classID] = name
		f.mu.Unlock()
	}
	return tx, err
}

func (f *fakeGateway) RegisterClass(ctx context.Context, signerKey, classID string) (string, error) {
	return f.invoke("registerClass")
}

func (f *fakeGateway) AddStudent(ctx context.Context, signerKey, classID, studentAddr string) (string, error) {
	tx, err := f.invoke("addStudent")
	if err == nil {
		f.mu.Lock()
		f.allowed[classID+"/"+studentAddr] = true
		f.mu.Unlock()
	}
	return tx, err
}

func (f *fakeGateway) ApproveStudent(ctx context.Context, signerKey, classID, studentAddr string) (string, error) {
	tx, err := f.invoke("approveAndAddStudent")
	if err == nil {
		f.mu.Lock()
		f.allowed[classID+"/"+studentAddr] = true
		f.mu.Unlock()
	}
	return tx, err
}

func (f *fakeGateway) RemoveStudent(ctx context.Context, signerKey, classID, studentAddr string) (string, error) {
	tx, err := f.invoke("removeStudent")
	if err == nil {
		f.mu.Lock()
		delete(f.allowed, classID+"/"+studentAddr)
		f.mu.Unlock()
	}
	return tx, err
}

func (f *fakeGateway) CloseClass(ctx context.Context, signerKey, classID string) (string, error) {
	return f.invoke("closeClass")
}

func (f *fakeGateway) GetClassInfo(ctx context.Context, classID string) (*ledger.ClassInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["getClassInfo"]++
	if err, ok := f.failures["getClassInfo"]; ok {
		return nil, err
	}
	return &ledger.ClassInfo{Name: f.classNames[classID], Open: true}, nil
}

func (f *fakeGateway) IsStudentAllowed(ctx context.Context, classID, studentAddr string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allowed[classID+"/"+studentAddr], nil
}

func (f *fakeGateway) SubmitWork(ctx context.Context, signerKey, classID, assignmentID, contentHash string) (string, error) {
	return f.invoke("submitAssignment")
}

func (f *fakeGateway) RecordScore(ctx context.Context, signerKey, classID, assignmentID, studentAddr string, score uint8) (string, error) {
	return f.invoke("recordScore")
}

func (f *fakeGateway) GetScore(ctx context.Context, classID, assignmentID, studentAddr string) (*ledger.ScoreRecord, error) {
	return &ledger.ScoreRecord{Value: 87, RecordedAt: time.Now().UTC(), Exists: true}, nil
}

// nopCache satisfies the score cache without storing anything.
type nopCache struct{}

func (nopCache) Get(ctx context.Context, key string, dest interface{}) error {
	return appErrors.ErrCacheMiss
}

func (nopCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return nil
}

func (nopCache) DeleteByPattern(ctx context.Context, pattern string) error {
	return nil
}
