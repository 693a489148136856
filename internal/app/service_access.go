package app

import (
	"context"
	"database/sql"
	"errors"

	"forum/api/internal/access"
)

// CanAccess evaluates category visibility for a caller. A nil caller is
// anonymous. Referencing a category that does not exist is NotFound, which is
// distinct from a deny.
func (s *Service) CanAccess(ctx context.Context, caller *access.Caller, categoryID int64, op access.Op) (bool, error) {
	category, err := s.store.GetCategory(ctx, categoryID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, notFound("category", categoryID)
	}
	if err != nil {
		return false, err
	}

	if caller != nil && !caller.IsAdmin {
		exists, err := s.store.UserExists(ctx, caller.ID)
		if err != nil {
			return false, err
		}
		if !exists {
			return false, notFound("user", caller.ID)
		}
	}

	grant, err := s.callerGrant(ctx, caller, categoryID, category.IsPrivate)
	if err != nil {
		return false, err
	}
	return access.Allowed(caller, category.IsPrivate, grant, op), nil
}

// callerGrant loads the caller's access row for a private category. Public
// categories and admin callers never need one.
func (s *Service) callerGrant(ctx context.Context, caller *access.Caller, categoryID int64, isPrivate bool) (*access.Grant, error) {
	if caller == nil || caller.IsAdmin || !isPrivate {
		return nil, nil
	}
	row, err := s.store.GetCategoryAccess(ctx, categoryID, caller.ID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	return &access.Grant{WriteAccess: row.WriteAccess}, nil
}

// requireAdmin rejects non-admin callers. An anonymous caller is
// unauthenticated rather than forbidden.
func requireAdmin(caller *access.Caller) error {
	if caller == nil {
		return unauthenticated("authentication required")
	}
	if !caller.IsAdmin {
		return forbidden("admin privileges required")
	}
	return nil
}

func requireCaller(caller *access.Caller) error {
	if caller == nil {
		return unauthenticated("authentication required")
	}
	return nil
}
