package models

import "time"

// Enrollment is the class membership record written as a side effect of an
// approval. The approval row plus the on-chain whitelist entry are the
// authoritative pair; this record exists for fast local membership checks
// and its creation never blocks an approval.
type Enrollment struct {
	ID            string    `db:"id" json:"id"`
	ClassID       string    `db:"class_id" json:"class_id"`
	StudentID     string    `db:"student_id" json:"student_id"`
	WalletAddress string    `db:"wallet_address" json:"wallet_address"`
	JoinedAt      time.Time `db:"joined_at" json:"joined_at"`
}

// EnrollmentDetail includes class context for student-facing listings.
type EnrollmentDetail struct {
	Enrollment
	ClassCode string `db:"class_code" json:"class_code"`
	ClassName string `db:"class_name" json:"class_name"`
}
