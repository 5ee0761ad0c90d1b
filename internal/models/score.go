package models

import "time"

// Score bounds accepted by the grading API.
const (
	ScoreMin = 0
	ScoreMax = 100
)

// Score is the recorded grade for a (assignment, student) pair. Recording
// again replaces the value and timestamp; the earlier ledger transaction
// reference is preserved when the newer ledger call produced none.
type Score struct {
	ID           string    `db:"id" json:"id"`
	ClassID      string    `db:"class_id" json:"class_id"`
	AssignmentID string    `db:"assignment_id" json:"assignment_id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	Value        int       `db:"value" json:"value"`
	RecordedBy   string    `db:"recorded_by" json:"recorded_by"`
	TxHash       *string   `db:"tx_hash" json:"tx_hash,omitempty"`
	RecordedAt   time.Time `db:"recorded_at" json:"recorded_at"`
}

// LedgerScore is a score as read back from the score contract.
type LedgerScore struct {
	Value      int64  `json:"value"`
	RecordedAt int64  `json:"recorded_at"`
	RecordedBy string `json:"recorded_by"`
	Exists     bool   `json:"exists"`
}

// ScoreReportRow is a flattened row for class score exports.
type ScoreReportRow struct {
	StudentEmail    string  `db:"student_email" json:"student_email"`
	StudentName     string  `db:"student_name" json:"student_name"`
	WalletAddress   string  `db:"wallet_address" json:"wallet_address"`
	AssignmentTitle string  `db:"assignment_title" json:"assignment_title"`
	Value           *int    `db:"value" json:"value,omitempty"`
	TxHash          *string `db:"tx_hash" json:"tx_hash,omitempty"`
}
