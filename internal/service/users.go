package service

import (
	"context"
	"fmt"

	"dbella/pos/internal/domain"
	"dbella/pos/internal/store"
)

func (s *Service) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	return s.repo.ListUsers(ctx)
}

// UpdateUserRole changes a user's role. Admins cannot take the role away
// from themselves.
func (s *Service) UpdateUserRole(ctx context.Context, id string, raw string) (domain.UserAccount, error) {
	role, ok := domain.ParseRole(raw)
	if !ok {
		return domain.UserAccount{}, fmt.Errorf("%w: unknown role %q", store.ErrInvalidInput, raw)
	}
	if principal, ok := PrincipalFromContext(ctx); ok && principal.UserID == id && role != principal.Role {
		return domain.UserAccount{}, fmt.Errorf("%w: cannot change your own role", store.ErrConflict)
	}

	user, err := s.repo.UpdateUserRole(ctx, id, role)
	if err != nil {
		return domain.UserAccount{}, err
	}
	s.logAudit(ctx, "user_role_update", "user", user.ID, fmt.Sprintf("email=%s,role=%s", user.Email, user.Role))
	return *user, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, from string, to string, limit int) ([]domain.AuditLog, error) {
	start, end, err := s.dateRange(from, to)
	if err != nil {
		return nil, err
	}
	if limit < 1 || limit > 1000 {
		limit = 200
	}
	return s.repo.ListAuditLogs(ctx, start, end, limit)
}
