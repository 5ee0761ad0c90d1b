package service

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/PhmVu/EBN-Besu/internal/models"
	"github.com/PhmVu/EBN-Besu/internal/wallet"
	appErrors "github.com/PhmVu/EBN-Besu/pkg/errors"
)

type walletKeyRepository interface {
	Create(ctx context.Context, key *models.WalletKey) error
	FindByUserID(ctx context.Context, userID string) (*models.WalletKey, error)
	MarkDisclosed(ctx context.Context, id string, disclosedAt time.Time) (bool, error)
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// WalletService manages custodial key escrow. Keys are generated server
// side, sealed under a user-chosen secret and released in plaintext at
// most once.
type WalletService struct {
	keys   walletKeyRepository
	params wallet.Params
	audit  auditWriter
	logger *zap.Logger
}

// NewWalletService constructs the wallet service. audit may be nil.
func NewWalletService(keys walletKeyRepository, params wallet.Params, audit auditWriter, logger *zap.Logger) *WalletService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WalletService{keys: keys, params: params, audit: audit, logger: logger}
}

// Provision generates a keypair for the user and escrows the private
// half under the given secret. Returns the wallet address.
func (s *WalletService) Provision(ctx context.Context, userID, secret string) (string, error) {
	kp, err := wallet.Generate()
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate wallet")
	}
	envelope, err := wallet.Encrypt(kp.PrivateKey, secret, s.params)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to seal wallet key")
	}
	if err := s.keys.Create(ctx, &models.WalletKey{UserID: userID, EncryptedKey: envelope}); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store wallet key")
	}
	s.logger.Info("custodial wallet provisioned", zap.String("user_id", userID), zap.String("address", kp.Address))
	return kp.Address, nil
}

// Disclose reveals the plaintext private key exactly once. The envelope
// is opened before the disclosure flag flips, so a wrong secret leaves
// the key undisclosed and retryable.
func (s *WalletService) Disclose(ctx context.Context, userID, secret string) (string, error) {
	key, err := s.keys.FindByUserID(ctx, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", appErrors.ErrWalletMissing
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load wallet key")
	}
	if key.Disclosed {
		return "", appErrors.ErrKeyDisclosed
	}

	plain, err := wallet.Decrypt(key.EncryptedKey, secret, s.params)
	if err != nil {
		return "", appErrors.ErrWrongSecret
	}

	claimed, err := s.keys.MarkDisclosed(ctx, key.ID, time.Now().UTC())
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark key disclosed")
	}
	if !claimed {
		// another reveal won the race between our read and the flip
		return "", appErrors.ErrKeyDisclosed
	}

	if s.audit != nil {
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &userID,
			Action:     models.AuditActionKeyDisclose,
			Resource:   "wallet",
			ResourceID: &key.ID,
			NewValues:  []byte(`{"disclosed":true}`),
		}); err != nil {
			s.logger.Warn("failed to record key disclosure audit log", zap.Error(err))
		}
	}

	s.logger.Info("wallet key disclosed", zap.String("user_id", userID))
	return plain, nil
}

// SignerKey opens the escrowed key transiently for transaction signing.
// Signing does not count as disclosure; the plaintext never leaves the
// calling service frame.
func (s *WalletService) SignerKey(ctx context.Context, userID, secret string) (string, error) {
	key, err := s.keys.FindByUserID(ctx, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", appErrors.ErrWalletMissing
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load wallet key")
	}
	plain, err := wallet.Decrypt(key.EncryptedKey, secret, s.params)
	if err != nil {
		return "", appErrors.ErrWrongSecret
	}
	return plain, nil
}

// Status reports whether a key exists and whether it has been disclosed.
func (s *WalletService) Status(ctx context.Context, userID string) (*models.WalletKey, error) {
	key, err := s.keys.FindByUserID(ctx, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.ErrWalletMissing
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load wallet key")
	}
	return key, nil
}
