// Package ledger talks to the Besu node. Every write signs a transaction
// with a caller-supplied key, submits it, and waits for one confirmation.
// Writes are never retried here; callers record a divergence and move on
// when a write fails, so double-submitting on an ambiguous timeout would
// be worse than reporting it.
package ledger

import (
	"context"
	"errors"
	"time"
)

// Sentinel failures. Callers branch on these to decide how to phrase the
// divergence reason.
var (
	// ErrConfirmTimeout means the transaction was accepted by the node
	// but no receipt arrived within the confirmation window. The write
	// may still land later.
	ErrConfirmTimeout = errors.New("ledger: confirmation timed out")

	// ErrReverted means the transaction was mined and the contract
	// rejected it.
	ErrReverted = errors.New("ledger: transaction reverted")

	// ErrUnavailable means the node could not be reached at all.
	ErrUnavailable = errors.New("ledger: node unavailable")
)

// ClassInfo mirrors the on-chain class record.
type ClassInfo struct {
	Name         string
	Teacher      string
	Open         bool
	StudentCount uint64
}

// ScoreRecord mirrors the on-chain score cell for one (class,
// assignment, student) triple.
type ScoreRecord struct {
	Value      uint8
	RecordedAt time.Time
	RecordedBy string
	Exists     bool
}

// Gateway is the chain surface the services depend on. Write methods
// take the hex private key of the signer and return the transaction
// hash of the confirmed write.
type Gateway interface {
	CreateClass(ctx context.Context, signerKey, classID, name string) (string, error)
	AddStudent(ctx context.Context, signerKey, classID, studentAddr string) (string, error)
	ApproveStudent(ctx context.Context, signerKey, classID, studentAddr string) (string, error)
	RemoveStudent(ctx context.Context, signerKey, classID, studentAddr string) (string, error)
	CloseClass(ctx context.Context, signerKey, classID string) (string, error)
	IsStudentAllowed(ctx context.Context, classID, studentAddr string) (bool, error)
	GetClassInfo(ctx context.Context, classID string) (*ClassInfo, error)

	RegisterClass(ctx context.Context, signerKey, classID string) (string, error)
	SubmitWork(ctx context.Context, signerKey, classID, assignmentID, contentHash string) (string, error)
	RecordScore(ctx context.Context, signerKey, classID, assignmentID, studentAddr string, score uint8) (string, error)
	GetScore(ctx context.Context, classID, assignmentID, studentAddr string) (*ScoreRecord, error)
}
