package models

import "time"

// Divergence operations. Each names the ledger write that failed or timed
// out after its database twin committed.
const (
	DivergenceCreateClass    = "CREATE_CLASS"
	DivergenceRegisterClass  = "REGISTER_CLASS"
	DivergenceApproveStudent = "APPROVE_STUDENT"
	DivergenceRemoveStudent  = "REMOVE_STUDENT"
	DivergenceCloseClass     = "CLOSE_CLASS"
	DivergenceSubmitWork     = "SUBMIT_WORK"
	DivergenceRecordScore    = "RECORD_SCORE"
)

// Divergence is a durable record of a database/ledger mismatch. A row is
// written whenever the database commit succeeds but the chain write does
// not, so the reconciler can replay it later.
type Divergence struct {
	ID         string     `db:"id" json:"id"`
	Operation  string     `db:"operation" json:"operation"`
	ClassID    string     `db:"class_id" json:"class_id"`
	SubjectID  *string    `db:"subject_id" json:"subject_id,omitempty"`
	EntityID   *string    `db:"entity_id" json:"entity_id,omitempty"`
	Reason     string     `db:"reason" json:"reason"`
	Resolved   bool       `db:"resolved" json:"resolved"`
	ResolvedAt *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	ResolvedTx *string    `db:"resolved_tx" json:"resolved_tx,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}
