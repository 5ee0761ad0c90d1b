package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/PhmVu/EBN-Besu/internal/models"
	appErrors "github.com/PhmVu/EBN-Besu/pkg/errors"
)

type userDirectory interface {
	List(ctx context.Context, role *models.UserRole, search string, page, size int) ([]models.User, int, error)
	FindByWallet(ctx context.Context, address string) (*models.User, error)
}

// UserService serves directory lookups: browsing accounts and resolving
// a ledger address back to its owner.
type UserService struct {
	users  userDirectory
	logger *zap.Logger
}

// NewUserService constructs the user service.
func NewUserService(users userDirectory, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{users: users, logger: logger}
}

// List returns accounts matching the filter with pagination metadata.
func (s *UserService) List(ctx context.Context, role, search string, page, size int) ([]models.User, *models.Pagination, error) {
	var roleFilter *models.UserRole
	if role != "" {
		r := models.UserRole(strings.ToUpper(role))
		if r != models.RoleTeacher && r != models.RoleStudent {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown role filter")
		}
		roleFilter = &r
	}
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}

	users, total, err := s.users.List(ctx, roleFilter, search, page, size)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// ResolveWallet maps an on-chain address back to the owning account.
func (s *UserService) ResolveWallet(ctx context.Context, address string) (*models.UserInfo, error) {
	user, err := s.users.FindByWallet(ctx, address)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no account holds this address")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve wallet")
	}
	return &models.UserInfo{
		ID:            user.ID,
		Email:         user.Email,
		FullName:      user.FullName,
		Role:          user.Role,
		WalletAddress: user.WalletAddress,
	}, nil
}
