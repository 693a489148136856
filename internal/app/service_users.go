package app

import (
	"context"
	"database/sql"
	"errors"

	"forum/api/internal/access"
	"forum/api/internal/search"
)

type UserProfile struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	IsAdmin   bool   `json:"isAdmin"`
}

func (s *Service) GetUser(ctx context.Context, userID int64) (UserProfile, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return UserProfile{}, notFound("user", userID)
	}
	if err != nil {
		return UserProfile{}, err
	}
	return UserProfile{
		ID:        user.ID,
		Username:  user.Username,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Email:     user.Email,
		IsAdmin:   user.IsAdmin,
	}, nil
}

// SetAdminStatus grants or revokes the admin flag. The root admin is
// special-cased: nobody else may touch its flag or the flag of any other
// admin, and ordinary admins may not change their own.
func (s *Service) SetAdminStatus(ctx context.Context, caller *access.Caller, targetID int64, isAdmin bool) (Outcome, error) {
	if err := requireAdmin(caller); err != nil {
		return "", err
	}

	target, err := s.store.GetUserByID(ctx, targetID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", notFound("user", targetID)
	}
	if err != nil {
		return "", err
	}

	root := s.cfg.RootAdminID
	if targetID == root && caller.ID != root {
		return "", forbidden("only the root admin may alter its own status")
	}
	if targetID == caller.ID && caller.ID != root {
		return "", forbidden("cannot change your own admin status")
	}
	if target.IsAdmin && caller.ID != root {
		return "", forbidden("only the root admin may alter another admin")
	}

	changed, err := s.store.SetUserAdmin(ctx, targetID, isAdmin)
	if err != nil {
		return "", err
	}
	if !changed {
		return OutcomeAlreadyInState, nil
	}
	return OutcomeChanged, nil
}

// SearchForum runs a title search over categories and topics, filtered to
// what the caller may see.
func (s *Service) SearchForum(ctx context.Context, caller *access.Caller, text string, limit, offset int) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}

	q := search.Query{Text: text, Limit: limit, Offset: offset}
	if caller != nil {
		q.IsAdmin = caller.IsAdmin
		if !caller.IsAdmin {
			ids, err := s.store.ListAccessibleCategoryIDs(ctx, caller.ID)
			if err != nil {
				return search.Response{}, err
			}
			q.AccessibleCategoryIDs = ids
		}
	}
	return s.search.Search(q), nil
}
