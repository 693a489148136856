package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --- users ---

func (s *PostgresStore) CreateUser(ctx context.Context, user User) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, first_name, last_name, email, password_hash, is_admin)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, user.Username, user.FirstName, user.LastName, user.Email, user.PasswordHash, user.IsAdmin).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID int64) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, first_name, last_name, email, password_hash, is_admin, created_at
		FROM users
		WHERE id=$1
	`, userID).Scan(&user.ID, &user.Username, &user.FirstName, &user.LastName, &user.Email, &user.PasswordHash, &user.IsAdmin, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, first_name, last_name, email, password_hash, is_admin, created_at
		FROM users
		WHERE username=$1
	`, username).Scan(&user.ID, &user.Username, &user.FirstName, &user.LastName, &user.Email, &user.PasswordHash, &user.IsAdmin, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) UserExists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id=$1)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE username=$1)`, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check username exists: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email=$1)`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check email exists: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	var isAdmin bool
	err := s.db.QueryRowContext(ctx, `SELECT is_admin FROM users WHERE id=$1`, userID).Scan(&isAdmin)
	if err != nil {
		return false, err
	}
	return isAdmin, nil
}

func (s *PostgresStore) SetUserAdmin(ctx context.Context, userID int64, isAdmin bool) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET is_admin=$2 WHERE id=$1 AND is_admin <> $2
	`, userID, isAdmin)
	if err != nil {
		return false, fmt.Errorf("set user admin: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set user admin rows: %w", err)
	}
	return affected > 0, nil
}

// --- categories ---

func (s *PostgresStore) CreateCategory(ctx context.Context, category Category) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin create category: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO categories (title, description, is_private, is_locked, admin_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, category.Title, category.Description, category.IsPrivate, category.IsLocked, category.AdminID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert category: %w", err)
	}

	// A private category starts with its creator holding read+write.
	if category.IsPrivate {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO category_accesses (user_id, category_id, write_access)
			VALUES ($1, $2, TRUE)
		`, category.AdminID, id); err != nil {
			return 0, fmt.Errorf("seed creator access: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit create category: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetCategory(ctx context.Context, categoryID int64) (Category, error) {
	var item Category
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, is_private, is_locked, admin_id, created_at
		FROM categories
		WHERE id=$1
	`, categoryID).Scan(&item.ID, &item.Title, &item.Description, &item.IsPrivate, &item.IsLocked, &item.AdminID, &item.CreatedAt)
	if err != nil {
		return Category{}, err
	}
	return item, nil
}

func (s *PostgresStore) CategoryExists(ctx context.Context, categoryID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM categories WHERE id=$1)`, categoryID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check category exists: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) CategoryTitleExists(ctx context.Context, title string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM categories WHERE title=$1)`, title).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check category title: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ListCategories(ctx context.Context, filter CategoryFilter) ([]Category, error) {
	query := `
		SELECT c.id, c.title, c.description, c.is_private, c.is_locked, c.admin_id, c.created_at
		FROM categories c
		WHERE 1=1
	`
	args := []any{}
	argN := 1

	if !filter.Admin {
		if filter.ViewerID == nil {
			query += " AND NOT c.is_private"
		} else {
			query += fmt.Sprintf(` AND (NOT c.is_private OR EXISTS(
				SELECT 1 FROM category_accesses ca
				WHERE ca.category_id=c.id AND ca.user_id=$%d))`, argN)
			args = append(args, *filter.ViewerID)
			argN++
		}
	}
	if filter.Search != "" {
		query += fmt.Sprintf(" AND c.title ILIKE '%%' || $%d || '%%'", argN)
		args = append(args, filter.Search)
		argN++
	}

	sortBy := "created_at"
	if filter.SortBy == "title" {
		sortBy = "title"
	}
	direction := "ASC"
	if filter.Desc {
		direction = "DESC"
	}
	query += fmt.Sprintf(" ORDER BY c.%s %s", sortBy, direction)

	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argN, argN+1)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	items := make([]Category, 0)
	for rows.Next() {
		var item Category
		if err := rows.Scan(&item.ID, &item.Title, &item.Description, &item.IsPrivate, &item.IsLocked, &item.AdminID, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) SetCategoryLocked(ctx context.Context, categoryID int64, locked bool) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE categories SET is_locked=$2 WHERE id=$1 AND is_locked <> $2
	`, categoryID, locked)
	if err != nil {
		return false, fmt.Errorf("set category locked: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set category locked rows: %w", err)
	}
	return affected > 0, nil
}

// SetCategoryPrivate flips the privacy flag. The private->public direction
// cascade-deletes every grant in the same transaction: re-privatizing later
// starts from zero grants.
func (s *PostgresStore) SetCategoryPrivate(ctx context.Context, categoryID int64, private bool) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin set category private: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE categories SET is_private=$2 WHERE id=$1 AND is_private <> $2
	`, categoryID, private)
	if err != nil {
		return false, fmt.Errorf("set category private: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set category private rows: %w", err)
	}
	if affected > 0 && !private {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM category_accesses WHERE category_id=$1
		`, categoryID); err != nil {
			return false, fmt.Errorf("cascade delete grants: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit set category private: %w", err)
	}
	return affected > 0, nil
}

// --- category access grants ---

// GetCategoryAccess returns nil when no grant row exists.
func (s *PostgresStore) GetCategoryAccess(ctx context.Context, categoryID, userID int64) (*CategoryAccess, error) {
	var item CategoryAccess
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, category_id, write_access, granted_at
		FROM category_accesses
		WHERE category_id=$1 AND user_id=$2
	`, categoryID, userID).Scan(&item.UserID, &item.CategoryID, &item.WriteAccess, &item.GrantedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get category access: %w", err)
	}
	return &item, nil
}

func (s *PostgresStore) UpsertCategoryAccess(ctx context.Context, grant CategoryAccess) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO category_accesses (user_id, category_id, write_access)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, category_id) DO UPDATE SET write_access=EXCLUDED.write_access
	`, grant.UserID, grant.CategoryID, grant.WriteAccess)
	if err != nil {
		return fmt.Errorf("upsert category access: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteCategoryAccess(ctx context.Context, categoryID, userID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM category_accesses WHERE category_id=$1 AND user_id=$2
	`, categoryID, userID)
	if err != nil {
		return false, fmt.Errorf("delete category access: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete category access rows: %w", err)
	}
	return affected > 0, nil
}

// ListAccessibleCategoryIDs returns the private categories the user holds a
// grant for.
func (s *PostgresStore) ListAccessibleCategoryIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category_id FROM category_accesses WHERE user_id=$1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list accessible categories: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan accessible category: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accessible categories: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) ListCategoryAccess(ctx context.Context, categoryID int64) ([]CategoryAccess, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, category_id, write_access, granted_at
		FROM category_accesses
		WHERE category_id=$1
		ORDER BY user_id ASC
	`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list category access: %w", err)
	}
	defer rows.Close()

	items := make([]CategoryAccess, 0)
	for rows.Next() {
		var item CategoryAccess
		if err := rows.Scan(&item.UserID, &item.CategoryID, &item.WriteAccess, &item.GrantedAt); err != nil {
			return nil, fmt.Errorf("scan category access: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category access: %w", err)
	}
	return items, nil
}

// --- topics ---

func (s *PostgresStore) CreateTopic(ctx context.Context, topic Topic) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO topics (title, content, is_locked, category_id, author_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, topic.Title, topic.Content, topic.IsLocked, topic.CategoryID, topic.AuthorID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert topic: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetTopic(ctx context.Context, topicID int64) (Topic, error) {
	var item Topic
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, content, is_locked, category_id, author_id, best_reply_id, created_at
		FROM topics
		WHERE id=$1
	`, topicID).Scan(&item.ID, &item.Title, &item.Content, &item.IsLocked, &item.CategoryID, &item.AuthorID, &item.BestReplyID, &item.CreatedAt)
	if err != nil {
		return Topic{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListTopics(ctx context.Context, filter TopicFilter) ([]Topic, error) {
	query := `
		SELECT t.id, t.title, t.content, t.is_locked, t.category_id, t.author_id, t.best_reply_id, t.created_at
		FROM topics t
		JOIN categories c ON c.id = t.category_id
		WHERE 1=1
	`
	args := []any{}
	argN := 1

	if !filter.Admin {
		if filter.ViewerID == nil {
			query += " AND NOT c.is_private"
		} else {
			query += fmt.Sprintf(` AND (NOT c.is_private OR EXISTS(
				SELECT 1 FROM category_accesses ca
				WHERE ca.category_id=c.id AND ca.user_id=$%d))`, argN)
			args = append(args, *filter.ViewerID)
			argN++
		}
	}
	if filter.Search != "" {
		query += fmt.Sprintf(" AND t.title ILIKE '%%' || $%d || '%%'", argN)
		args = append(args, filter.Search)
		argN++
	}
	if filter.CategoryID != nil {
		query += fmt.Sprintf(" AND t.category_id=$%d", argN)
		args = append(args, *filter.CategoryID)
		argN++
	}
	if filter.AuthorID != nil {
		query += fmt.Sprintf(" AND t.author_id=$%d", argN)
		args = append(args, *filter.AuthorID)
		argN++
	}
	if filter.IsLocked != nil {
		query += fmt.Sprintf(" AND t.is_locked=$%d", argN)
		args = append(args, *filter.IsLocked)
		argN++
	}

	direction := "ASC"
	if filter.Desc {
		direction = "DESC"
	}
	query += fmt.Sprintf(" ORDER BY t.created_at %s", direction)

	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argN, argN+1)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	defer rows.Close()

	items := make([]Topic, 0)
	for rows.Next() {
		var item Topic
		if err := rows.Scan(&item.ID, &item.Title, &item.Content, &item.IsLocked, &item.CategoryID, &item.AuthorID, &item.BestReplyID, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate topics: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListCategoryTopics(ctx context.Context, categoryID int64) ([]Topic, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, content, is_locked, category_id, author_id, best_reply_id, created_at
		FROM topics
		WHERE category_id=$1
		ORDER BY created_at ASC
	`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list category topics: %w", err)
	}
	defer rows.Close()

	items := make([]Topic, 0)
	for rows.Next() {
		var item Topic
		if err := rows.Scan(&item.ID, &item.Title, &item.Content, &item.IsLocked, &item.CategoryID, &item.AuthorID, &item.BestReplyID, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category topic: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category topics: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) SetTopicLocked(ctx context.Context, topicID int64, locked bool) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE topics SET is_locked=$2 WHERE id=$1 AND is_locked <> $2
	`, topicID, locked)
	if err != nil {
		return false, fmt.Errorf("set topic locked: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set topic locked rows: %w", err)
	}
	return affected > 0, nil
}

// SetBestReply swaps the winner in a single transaction: the previous best
// reply (if any) is unset, the topic pointer moves, and the candidate is
// flagged. Partial application is never observable.
func (s *PostgresStore) SetBestReply(ctx context.Context, topicID, replyID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin best reply: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		UPDATE replies SET is_best_reply=FALSE WHERE topic_id=$1 AND is_best_reply
	`, topicID); err != nil {
		return fmt.Errorf("unset previous best reply: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE replies SET is_best_reply=TRUE WHERE id=$1 AND topic_id=$2
	`, replyID, topicID)
	if err != nil {
		return fmt.Errorf("set best reply: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set best reply rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE topics SET best_reply_id=$2 WHERE id=$1
	`, topicID, replyID); err != nil {
		return fmt.Errorf("update topic best reply: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit best reply: %w", err)
	}
	return nil
}

// --- replies ---

func (s *PostgresStore) CreateReply(ctx context.Context, reply Reply) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO replies (content, topic_id, author_id)
		VALUES ($1, $2, $3)
		RETURNING id
	`, reply.Content, reply.TopicID, reply.AuthorID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert reply: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetReply(ctx context.Context, replyID int64) (Reply, error) {
	var item Reply
	err := s.db.QueryRowContext(ctx, `
		SELECT id, content, topic_id, author_id, is_best_reply, created_at
		FROM replies
		WHERE id=$1
	`, replyID).Scan(&item.ID, &item.Content, &item.TopicID, &item.AuthorID, &item.IsBestReply, &item.CreatedAt)
	if err != nil {
		return Reply{}, err
	}
	return item, nil
}

// ListTopicReplies returns a topic's replies with their vote aggregates,
// computed on read.
func (s *PostgresStore) ListTopicReplies(ctx context.Context, topicID int64) ([]Reply, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.content, r.topic_id, r.author_id, r.is_best_reply,
			COALESCE(SUM(CASE WHEN v.is_upvote THEN 1 ELSE -1 END), 0)::int,
			r.created_at
		FROM replies r
		LEFT JOIN votes v ON v.reply_id = r.id
		WHERE r.topic_id=$1
		GROUP BY r.id
		ORDER BY r.created_at ASC
	`, topicID)
	if err != nil {
		return nil, fmt.Errorf("list topic replies: %w", err)
	}
	defer rows.Close()

	items := make([]Reply, 0)
	for rows.Next() {
		var item Reply
		if err := rows.Scan(&item.ID, &item.Content, &item.TopicID, &item.AuthorID, &item.IsBestReply, &item.VoteScore, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reply: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate replies: %w", err)
	}
	return items, nil
}

// --- votes ---

// GetVote returns nil when the user has not voted for the reply.
func (s *PostgresStore) GetVote(ctx context.Context, replyID, userID int64) (*Vote, error) {
	var item Vote
	err := s.db.QueryRowContext(ctx, `
		SELECT reply_id, user_id, is_upvote, created_at, updated_at
		FROM votes
		WHERE reply_id=$1 AND user_id=$2
	`, replyID, userID).Scan(&item.ReplyID, &item.UserID, &item.IsUpvote, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get vote: %w", err)
	}
	return &item, nil
}

// InsertVote inserts a new vote row. The (reply_id, user_id) primary key is
// the source of truth for "already voted": an insert racing with another is
// reported as not inserted rather than failing.
func (s *PostgresStore) InsertVote(ctx context.Context, vote Vote) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO votes (reply_id, user_id, is_upvote)
		VALUES ($1, $2, $3)
		ON CONFLICT (reply_id, user_id) DO NOTHING
	`, vote.ReplyID, vote.UserID, vote.IsUpvote)
	if err != nil {
		return false, fmt.Errorf("insert vote: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert vote rows: %w", err)
	}
	return affected > 0, nil
}

// UpdateVote overwrites the vote type in place. Returns false when the
// stored type already matches, so a same-type overwrite never looks like a
// change.
func (s *PostgresStore) UpdateVote(ctx context.Context, replyID, userID int64, isUpvote bool) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE votes SET is_upvote=$3, updated_at=NOW()
		WHERE reply_id=$1 AND user_id=$2 AND is_upvote <> $3
	`, replyID, userID, isUpvote)
	if err != nil {
		return false, fmt.Errorf("update vote: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update vote rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) DeleteVote(ctx context.Context, replyID, userID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM votes WHERE reply_id=$1 AND user_id=$2
	`, replyID, userID)
	if err != nil {
		return false, fmt.Errorf("delete vote: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete vote rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ReplyVoteScore(ctx context.Context, replyID int64) (int, error) {
	var score int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN is_upvote THEN 1 ELSE -1 END), 0)::int
		FROM votes
		WHERE reply_id=$1
	`, replyID).Scan(&score)
	if err != nil {
		return 0, fmt.Errorf("reply vote score: %w", err)
	}
	return score, nil
}

// --- conversations ---

// GetConversationID looks the pair up in both orders; (A,B) and (B,A) name
// the same conversation.
func (s *PostgresStore) GetConversationID(ctx context.Context, user1ID, user2ID int64) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM conversations
		WHERE (user1_id=$1 AND user2_id=$2) OR (user1_id=$2 AND user2_id=$1)
	`, user1ID, user2ID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get conversation id: %w", err)
	}
	return id, true, nil
}

// EnsureConversation returns the conversation for the pair, creating it when
// missing. The unique index on the normalized pair absorbs concurrent
// creates.
func (s *PostgresStore) EnsureConversation(ctx context.Context, user1ID, user2ID int64) (int64, error) {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (user1_id, user2_id)
		VALUES ($1, $2)
		ON CONFLICT ((LEAST(user1_id, user2_id)), (GREATEST(user1_id, user2_id))) DO NOTHING
	`, user1ID, user2ID); err != nil {
		return 0, fmt.Errorf("insert conversation: %w", err)
	}

	id, ok, err := s.GetConversationID(ctx, user1ID, user2ID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("conversation missing after insert")
	}
	return id, nil
}

func (s *PostgresStore) InsertMessage(ctx context.Context, message Message) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO messages (conversation_id, sender_id, receiver_id, text)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, message.ConversationID, message.SenderID, message.ReceiverID, message.Text).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) ListConversationMessages(ctx context.Context, conversationID int64, desc bool) ([]Message, error) {
	direction := "ASC"
	if desc {
		direction = "DESC"
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, receiver_id, text, sent_at
		FROM messages
		WHERE conversation_id=$1
		ORDER BY sent_at `+direction, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list conversation messages: %w", err)
	}
	defer rows.Close()

	items := make([]Message, 0)
	for rows.Next() {
		var item Message
		if err := rows.Scan(&item.ID, &item.ConversationID, &item.SenderID, &item.ReceiverID, &item.Text, &item.SentAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListConversations(ctx context.Context, userID int64, desc bool) ([]ConversationPreview, error) {
	direction := "ASC"
	if desc {
		direction = "DESC"
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id,
			CASE WHEN c.user1_id=$1 THEN c.user2_id ELSE c.user1_id END AS peer_id,
			CASE WHEN c.user1_id=$1 THEN u2.username ELSE u1.username END AS peer_name,
			m.text, m.sent_at
		FROM conversations c
		JOIN users u1 ON u1.id = c.user1_id
		JOIN users u2 ON u2.id = c.user2_id
		JOIN messages m ON m.conversation_id = c.id
		WHERE (c.user1_id=$1 OR c.user2_id=$1)
		  AND m.sent_at = (
			SELECT MAX(m2.sent_at) FROM messages m2 WHERE m2.conversation_id = c.id
		  )
		ORDER BY m.sent_at `+direction, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	items := make([]ConversationPreview, 0)
	for rows.Next() {
		var item ConversationPreview
		if err := rows.Scan(&item.ConversationID, &item.PeerID, &item.PeerName, &item.LastMessage, &item.LastSentAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return items, nil
}

// --- sessions ---

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash string, user User, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, user.ID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.username, u.is_admin
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.Username, &user.IsAdmin)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}
