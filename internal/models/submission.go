package models

import "time"

// Submission records a student's latest submitted artifact for an assignment
// as an opaque content fingerprint. Re-submitting replaces the fingerprint;
// the (assignment, student) pair is unique.
type Submission struct {
	ID           string    `db:"id" json:"id"`
	AssignmentID string    `db:"assignment_id" json:"assignment_id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	ContentHash  string    `db:"content_hash" json:"content_hash"`
	TxHash       *string   `db:"tx_hash" json:"tx_hash,omitempty"`
	SubmittedAt  time.Time `db:"submitted_at" json:"submitted_at"`
}

// SubmissionDetail joins student identity for teacher-facing listings.
type SubmissionDetail struct {
	Submission
	StudentEmail  string `db:"student_email" json:"student_email"`
	WalletAddress string `db:"wallet_address" json:"wallet_address"`
}
