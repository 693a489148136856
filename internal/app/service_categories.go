package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"forum/api/internal/access"
	"forum/api/internal/search"
	"forum/api/internal/store"
)

type CategoryDetail struct {
	Category store.Category `json:"category"`
	Topics   []store.Topic  `json:"topics"`
}

func (s *Service) CreateCategory(ctx context.Context, caller *access.Caller, input CreateCategoryInput) (store.Category, error) {
	if err := requireAdmin(caller); err != nil {
		return store.Category{}, err
	}
	title := strings.TrimSpace(input.Title)
	if len(title) < 5 || len(title) > 45 {
		return store.Category{}, invalidArgument("title must be between 5 and 45 characters")
	}

	taken, err := s.store.CategoryTitleExists(ctx, title)
	if err != nil {
		return store.Category{}, err
	}
	if taken {
		return store.Category{}, conflict("a category with this title already exists")
	}

	category := store.Category{
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		IsPrivate:   input.IsPrivate,
		AdminID:     caller.ID,
	}
	category.ID, err = s.store.CreateCategory(ctx, category)
	if err != nil {
		return store.Category{}, err
	}

	if s.search != nil {
		s.search.IndexCategory(search.CategoryRecord{
			ID:          category.ID,
			Title:       category.Title,
			Description: category.Description,
			IsPrivate:   category.IsPrivate,
		})
	}
	return category, nil
}

// ListCategories returns the categories the caller may see: everything for
// admins, public ones for anonymous callers, public plus granted private
// ones otherwise.
func (s *Service) ListCategories(ctx context.Context, caller *access.Caller, filter store.CategoryFilter) ([]store.Category, error) {
	if caller != nil {
		filter.Admin = caller.IsAdmin
		filter.ViewerID = &caller.ID
	}
	return s.store.ListCategories(ctx, filter)
}

func (s *Service) GetCategory(ctx context.Context, caller *access.Caller, categoryID int64) (CategoryDetail, error) {
	allowed, err := s.CanAccess(ctx, caller, categoryID, access.OpRead)
	if err != nil {
		return CategoryDetail{}, err
	}
	if !allowed {
		return CategoryDetail{}, forbidden("no access to this category")
	}

	category, err := s.store.GetCategory(ctx, categoryID)
	if errors.Is(err, sql.ErrNoRows) {
		return CategoryDetail{}, notFound("category", categoryID)
	}
	if err != nil {
		return CategoryDetail{}, err
	}
	topics, err := s.store.ListCategoryTopics(ctx, categoryID)
	if err != nil {
		return CategoryDetail{}, err
	}
	return CategoryDetail{Category: category, Topics: topics}, nil
}

// SetCategoryLocked is idempotent: a category already in the target state is
// a no-op success.
func (s *Service) SetCategoryLocked(ctx context.Context, caller *access.Caller, categoryID int64, locked bool) (Outcome, error) {
	if err := requireAdmin(caller); err != nil {
		return "", err
	}
	exists, err := s.store.CategoryExists(ctx, categoryID)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", notFound("category", categoryID)
	}

	changed, err := s.store.SetCategoryLocked(ctx, categoryID, locked)
	if err != nil {
		return "", err
	}
	if !changed {
		return OutcomeAlreadyInState, nil
	}
	return OutcomeChanged, nil
}

// SetCategoryPrivate is idempotent like SetCategoryLocked. The
// private->public direction drops every grant for the category.
func (s *Service) SetCategoryPrivate(ctx context.Context, caller *access.Caller, categoryID int64, private bool) (Outcome, error) {
	if err := requireAdmin(caller); err != nil {
		return "", err
	}
	exists, err := s.store.CategoryExists(ctx, categoryID)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", notFound("category", categoryID)
	}

	changed, err := s.store.SetCategoryPrivate(ctx, categoryID, private)
	if err != nil {
		return "", err
	}
	if !changed {
		return OutcomeAlreadyInState, nil
	}
	return OutcomeChanged, nil
}

// GrantCategoryAccess upserts a grant on a private category. Granting the
// state the user already holds is a no-op success.
func (s *Service) GrantCategoryAccess(ctx context.Context, caller *access.Caller, categoryID int64, input GrantAccessInput) (Outcome, error) {
	if err := requireAdmin(caller); err != nil {
		return "", err
	}

	category, err := s.store.GetCategory(ctx, categoryID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", notFound("category", categoryID)
	}
	if err != nil {
		return "", err
	}
	if !category.IsPrivate {
		return "", invalidState("category is public, access management not applicable")
	}

	exists, err := s.store.UserExists(ctx, input.UserID)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", notFound("user", input.UserID)
	}

	existing, err := s.store.GetCategoryAccess(ctx, categoryID, input.UserID)
	if err != nil {
		return "", err
	}
	if existing != nil && existing.WriteAccess == input.WriteAccess {
		return OutcomeAlreadyInState, nil
	}

	if err := s.store.UpsertCategoryAccess(ctx, store.CategoryAccess{
		UserID:      input.UserID,
		CategoryID:  categoryID,
		WriteAccess: input.WriteAccess,
	}); err != nil {
		return "", err
	}
	if existing == nil {
		return OutcomeCreated, nil
	}
	return OutcomeChanged, nil
}

// RevokeCategoryAccess deletes a grant. A missing grant is a no-op success,
// not an error.
func (s *Service) RevokeCategoryAccess(ctx context.Context, caller *access.Caller, categoryID, userID int64) (Outcome, error) {
	if err := requireAdmin(caller); err != nil {
		return "", err
	}
	exists, err := s.store.CategoryExists(ctx, categoryID)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", notFound("category", categoryID)
	}

	deleted, err := s.store.DeleteCategoryAccess(ctx, categoryID, userID)
	if err != nil {
		return "", err
	}
	if !deleted {
		return OutcomeAlreadyInState, nil
	}
	return OutcomeChanged, nil
}

func (s *Service) ListCategoryAccess(ctx context.Context, caller *access.Caller, categoryID int64) ([]store.CategoryAccess, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	category, err := s.store.GetCategory(ctx, categoryID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("category", categoryID)
	}
	if err != nil {
		return nil, err
	}
	if !category.IsPrivate {
		return nil, invalidState("category is public, access management not applicable")
	}
	return s.store.ListCategoryAccess(ctx, categoryID)
}
