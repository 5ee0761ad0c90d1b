package models

import "time"

// ClassStatus is the lifecycle state of a class. Closing is terminal.
type ClassStatus string

const (
	ClassStatusOpen   ClassStatus = "OPEN"
	ClassStatusClosed ClassStatus = "CLOSED"
)

// Class represents a class backed by a pair of on-chain contracts: the
// ClassManager (enrollment whitelist) and the ScoreManager (submissions and
// scores). Addresses are provisioned at creation and stored as opaque strings.
type Class struct {
	ID                  string      `db:"id" json:"id"`
	Code                string      `db:"code" json:"code"`
	TeacherID           string      `db:"teacher_id" json:"teacher_id"`
	Name                string      `db:"name" json:"name"`
	Description         *string     `db:"description" json:"description,omitempty"`
	ClassManagerAddress *string     `db:"class_manager_address" json:"class_manager_address,omitempty"`
	ScoreManagerAddress *string     `db:"score_manager_address" json:"score_manager_address,omitempty"`
	Status              ClassStatus `db:"status" json:"status"`
	TxHash              *string     `db:"tx_hash" json:"tx_hash,omitempty"`
	ClosedAt            *time.Time  `db:"closed_at" json:"closed_at,omitempty"`
	CreatedAt           time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time   `db:"updated_at" json:"updated_at"`
}

// ClassFilter defines filter criteria for listing classes.
type ClassFilter struct {
	TeacherID string
	Status    ClassStatus
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
