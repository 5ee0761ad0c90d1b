package models

import "time"

// WalletKey is the key escrow entry for a principal's custodial signing key.
// EncryptedKey is the scrypt/AES-GCM envelope produced by the wallet package.
// Disclosed flips false to true exactly once, atomically with the only
// successful decryption read.
type WalletKey struct {
	ID           string     `db:"id" json:"id"`
	UserID       string     `db:"user_id" json:"user_id"`
	EncryptedKey string     `db:"encrypted_key" json:"-"`
	Disclosed    bool       `db:"disclosed" json:"disclosed"`
	DisclosedAt  *time.Time `db:"disclosed_at" json:"disclosed_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}
