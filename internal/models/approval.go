package models

import "time"

// ApprovalStatus tracks the enrollment request state machine. The absence of
// a row is reported as NOT_REQUESTED; APPROVED and REJECTED are terminal.
type ApprovalStatus string

const (
	ApprovalStatusNotRequested ApprovalStatus = "NOT_REQUESTED"
	ApprovalStatusPending      ApprovalStatus = "PENDING"
	ApprovalStatusApproved     ApprovalStatus = "APPROVED"
	ApprovalStatusRejected     ApprovalStatus = "REJECTED"
)

// Terminal reports whether the status permits no further transition.
func (s ApprovalStatus) Terminal() bool {
	return s == ApprovalStatusApproved || s == ApprovalStatusRejected
}

// Approval is an enrollment request for a (class, student) pair. The wallet
// address is captured at request time and never updated; at most one row per
// pair is enforced by a unique index.
type Approval struct {
	ID              string         `db:"id" json:"id"`
	ClassID         string         `db:"class_id" json:"class_id"`
	StudentID       string         `db:"student_id" json:"student_id"`
	WalletAddress   string         `db:"wallet_address" json:"wallet_address"`
	Status          ApprovalStatus `db:"status" json:"status"`
	ReviewedBy      *string        `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time     `db:"reviewed_at" json:"reviewed_at,omitempty"`
	RejectionReason *string        `db:"rejection_reason" json:"rejection_reason,omitempty"`
	TxHash          *string        `db:"tx_hash" json:"tx_hash,omitempty"`
	RequestedAt     time.Time      `db:"requested_at" json:"requested_at"`
}

// ApprovalDetail joins student identity onto an approval for review listings.
type ApprovalDetail struct {
	Approval
	StudentEmail string `db:"student_email" json:"student_email"`
	StudentName  string `db:"student_name" json:"student_name"`
}
