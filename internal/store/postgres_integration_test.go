package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"testing"

	"forum/api/internal/util"
)

func TestSetCategoryPrivateCascadeIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	s := openTestStore(t)

	owner := createTestUser(t, s)
	member := createTestUser(t, s)
	categoryID := createTestCategory(t, s, owner, true)

	if err := s.UpsertCategoryAccess(ctx, CategoryAccess{UserID: member, CategoryID: categoryID, WriteAccess: false}); err != nil {
		t.Fatalf("grant member access: %v", err)
	}
	if got := countRows(t, s.DB(), `SELECT COUNT(*) FROM category_accesses WHERE category_id=$1`, categoryID); got != 2 {
		t.Fatalf("grants before publishing = %d, want 2", got)
	}

	changed, err := s.SetCategoryPrivate(ctx, categoryID, false)
	if err != nil {
		t.Fatalf("set category public: %v", err)
	}
	if !changed {
		t.Fatal("set category public: changed = false, want true")
	}
	if got := countRows(t, s.DB(), `SELECT COUNT(*) FROM category_accesses WHERE category_id=$1`, categoryID); got != 0 {
		t.Fatalf("grants after publishing = %d, want 0", got)
	}

	// Setting the same value again must not report a change.
	changed, err = s.SetCategoryPrivate(ctx, categoryID, false)
	if err != nil {
		t.Fatalf("set category public again: %v", err)
	}
	if changed {
		t.Fatal("set category public again: changed = true, want false")
	}

	// Re-privatizing starts with an empty grant list.
	changed, err = s.SetCategoryPrivate(ctx, categoryID, true)
	if err != nil {
		t.Fatalf("set category private: %v", err)
	}
	if !changed {
		t.Fatal("set category private: changed = false, want true")
	}
	if got := countRows(t, s.DB(), `SELECT COUNT(*) FROM category_accesses WHERE category_id=$1`, categoryID); got != 0 {
		t.Fatalf("grants after re-privatizing = %d, want 0", got)
	}
}

func TestSetBestReplySwapIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	s := openTestStore(t)

	author := createTestUser(t, s)
	categoryID := createTestCategory(t, s, author, false)
	topicID := createTestTopic(t, s, categoryID, author)
	firstReply := createTestReply(t, s, topicID, author)
	secondReply := createTestReply(t, s, topicID, author)

	if err := s.SetBestReply(ctx, topicID, firstReply); err != nil {
		t.Fatalf("set first best reply: %v", err)
	}
	topic, err := s.GetTopic(ctx, topicID)
	if err != nil {
		t.Fatalf("get topic: %v", err)
	}
	if topic.BestReplyID == nil || *topic.BestReplyID != firstReply {
		t.Fatalf("topic best reply = %v, want %d", topic.BestReplyID, firstReply)
	}

	if err := s.SetBestReply(ctx, topicID, secondReply); err != nil {
		t.Fatalf("swap best reply: %v", err)
	}
	if got := countRows(t, s.DB(), `SELECT COUNT(*) FROM replies WHERE topic_id=$1 AND is_best_reply`, topicID); got != 1 {
		t.Fatalf("best reply rows after swap = %d, want 1", got)
	}
	topic, err = s.GetTopic(ctx, topicID)
	if err != nil {
		t.Fatalf("get topic after swap: %v", err)
	}
	if topic.BestReplyID == nil || *topic.BestReplyID != secondReply {
		t.Fatalf("topic best reply after swap = %v, want %d", topic.BestReplyID, secondReply)
	}
	previous, err := s.GetReply(ctx, firstReply)
	if err != nil {
		t.Fatalf("get previous best reply: %v", err)
	}
	if previous.IsBestReply {
		t.Fatal("previous best reply still flagged after swap")
	}

	// A reply id outside the topic must not become the winner.
	if err := s.SetBestReply(ctx, topicID, secondReply+1000000); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("set foreign best reply: err = %v, want sql.ErrNoRows", err)
	}
}

func TestInsertVoteConcurrentIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	s := openTestStore(t)

	author := createTestUser(t, s)
	voter := createTestUser(t, s)
	categoryID := createTestCategory(t, s, author, false)
	topicID := createTestTopic(t, s, categoryID, author)
	replyID := createTestReply(t, s, topicID, author)

	const attempts = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(isUpvote bool) {
			defer wg.Done()
			ok, err := s.InsertVote(ctx, Vote{ReplyID: replyID, UserID: voter, IsUpvote: isUpvote})
			if err != nil {
				t.Errorf("insert vote: %v", err)
				return
			}
			if ok {
				mu.Lock()
				inserted++
				mu.Unlock()
			}
		}(i%2 == 0)
	}
	wg.Wait()

	if inserted != 1 {
		t.Fatalf("inserted = %d, want exactly 1", inserted)
	}
	if got := countRows(t, s.DB(), `SELECT COUNT(*) FROM votes WHERE reply_id=$1 AND user_id=$2`, replyID, voter); got != 1 {
		t.Fatalf("vote rows = %d, want 1", got)
	}

	vote, err := s.GetVote(ctx, replyID, voter)
	if err != nil {
		t.Fatalf("get vote: %v", err)
	}
	if vote == nil {
		t.Fatal("get vote: no row after insert")
	}

	// Overwriting with the stored type reports no change; flipping does.
	changed, err := s.UpdateVote(ctx, replyID, voter, vote.IsUpvote)
	if err != nil {
		t.Fatalf("update vote same type: %v", err)
	}
	if changed {
		t.Fatal("update vote same type: changed = true, want false")
	}
	changed, err = s.UpdateVote(ctx, replyID, voter, !vote.IsUpvote)
	if err != nil {
		t.Fatalf("update vote opposite type: %v", err)
	}
	if !changed {
		t.Fatal("update vote opposite type: changed = false, want true")
	}
	flipped, err := s.GetVote(ctx, replyID, voter)
	if err != nil {
		t.Fatalf("get flipped vote: %v", err)
	}
	if flipped == nil || flipped.IsUpvote == vote.IsUpvote {
		t.Fatal("vote type not flipped in place")
	}
}

func openTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	ctx := context.Background()

	db, err := Open(ctx, getTestDatabaseURL(t))
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := ApplyMigrations(ctx, db, "../../db/migrations"); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return NewPostgresStore(db)
}

func getTestDatabaseURL(t *testing.T) string {
	t.Helper()
	if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
		return url
	}
	host := getenv("POSTGRES_HOST", "localhost")
	port := getenv("POSTGRES_PORT", "5432")
	user := getenv("POSTGRES_USER", "forum")
	pass := getenv("POSTGRES_PASSWORD", "forum")
	dbname := getenv("POSTGRES_DB", "forum_test")
	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + dbname + "?sslmode=disable"
}

func getenv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func createTestUser(t *testing.T, s *PostgresStore) int64 {
	t.Helper()
	name := "it_" + util.RandomHex(6)
	id, err := s.CreateUser(context.Background(), User{
		Username:     name,
		FirstName:    "Test",
		LastName:     "User",
		Email:        name + "@example.com",
		PasswordHash: "x",
	})
	if err != nil {
		t.Fatalf("create test user: %v", err)
	}
	t.Cleanup(func() { deleteTestUser(t, s.DB(), id) })
	return id
}

func createTestCategory(t *testing.T, s *PostgresStore, adminID int64, private bool) int64 {
	t.Helper()
	id, err := s.CreateCategory(context.Background(), Category{
		Title:       "it category " + util.RandomHex(6),
		Description: "integration fixture",
		IsPrivate:   private,
		AdminID:     adminID,
	})
	if err != nil {
		t.Fatalf("create test category: %v", err)
	}
	t.Cleanup(func() { deleteTestCategoryTree(t, s.DB(), id) })
	return id
}

func createTestTopic(t *testing.T, s *PostgresStore, categoryID, authorID int64) int64 {
	t.Helper()
	id, err := s.CreateTopic(context.Background(), Topic{
		Title:      "it topic " + util.RandomHex(6),
		Content:    "integration fixture",
		CategoryID: categoryID,
		AuthorID:   authorID,
	})
	if err != nil {
		t.Fatalf("create test topic: %v", err)
	}
	return id
}

func createTestReply(t *testing.T, s *PostgresStore, topicID, authorID int64) int64 {
	t.Helper()
	id, err := s.CreateReply(context.Background(), Reply{
		Content:  "integration fixture reply " + util.RandomHex(4),
		TopicID:  topicID,
		AuthorID: authorID,
	})
	if err != nil {
		t.Fatalf("create test reply: %v", err)
	}
	return id
}

func deleteTestCategoryTree(t *testing.T, db *sql.DB, categoryID int64) {
	t.Helper()
	ctx := context.Background()
	statements := []string{
		`DELETE FROM votes WHERE reply_id IN (
			SELECT r.id FROM replies r JOIN topics tp ON tp.id = r.topic_id WHERE tp.category_id=$1
		)`,
		`UPDATE topics SET best_reply_id=NULL WHERE category_id=$1`,
		`DELETE FROM replies WHERE topic_id IN (SELECT id FROM topics WHERE category_id=$1)`,
		`DELETE FROM topics WHERE category_id=$1`,
		`DELETE FROM category_accesses WHERE category_id=$1`,
		`DELETE FROM categories WHERE id=$1`,
	}
	for _, statement := range statements {
		if _, err := db.ExecContext(ctx, statement, categoryID); err != nil {
			t.Errorf("cleanup category %d: %v", categoryID, err)
		}
	}
}

func deleteTestUser(t *testing.T, db *sql.DB, userID int64) {
	t.Helper()
	if _, err := db.ExecContext(context.Background(), `DELETE FROM users WHERE id=$1`, userID); err != nil {
		t.Errorf("cleanup user %d: %v", userID, err)
	}
}

func countRows(t *testing.T, db *sql.DB, query string, args ...any) int {
	t.Helper()
	var count int
	if err := db.QueryRowContext(context.Background(), query, args...).Scan(&count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return count
}
