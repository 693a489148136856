package app

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"forum/api/internal/access"
	"forum/api/internal/config"
	"forum/api/internal/store"
)

type fakeStore struct {
	createUserFn            func(context.Context, store.User) (int64, error)
	getUserByIDFn           func(context.Context, int64) (store.User, error)
	getUserByUsernameFn     func(context.Context, string) (store.User, error)
	userExistsFn            func(context.Context, int64) (bool, error)
	usernameExistsFn        func(context.Context, string) (bool, error)
	emailExistsFn           func(context.Context, string) (bool, error)
	setUserAdminFn          func(context.Context, int64, bool) (bool, error)
	createCategoryFn        func(context.Context, store.Category) (int64, error)
	getCategoryFn           func(context.Context, int64) (store.Category, error)
	categoryExistsFn        func(context.Context, int64) (bool, error)
	categoryTitleExistsFn   func(context.Context, string) (bool, error)
	setCategoryLockedFn     func(context.Context, int64, bool) (bool, error)
	setCategoryPrivateFn    func(context.Context, int64, bool) (bool, error)
	getCategoryAccessFn     func(context.Context, int64, int64) (*store.CategoryAccess, error)
	upsertCategoryAccessFn  func(context.Context, store.CategoryAccess) error
	deleteCategoryAccessFn  func(context.Context, int64, int64) (bool, error)
	createTopicFn           func(context.Context, store.Topic) (int64, error)
	getTopicFn              func(context.Context, int64) (store.Topic, error)
	setTopicLockedFn        func(context.Context, int64, bool) (bool, error)
	setBestReplyFn          func(context.Context, int64, int64) error
	createReplyFn           func(context.Context, store.Reply) (int64, error)
	getReplyFn              func(context.Context, int64) (store.Reply, error)
	insertVoteFn            func(context.Context, store.Vote) (bool, error)
	updateVoteFn            func(context.Context, int64, int64, bool) (bool, error)
	deleteVoteFn            func(context.Context, int64, int64) (bool, error)
	ensureConversationFn    func(context.Context, int64, int64) (int64, error)
	insertMessageFn         func(context.Context, store.Message) (int64, error)
	getConversationIDFn     func(context.Context, int64, int64) (int64, bool, error)
}

func (f *fakeStore) CreateUser(ctx context.Context, user store.User) (int64, error) {
	if f.createUserFn != nil {
		return f.createUserFn(ctx, user)
	}
	return 1, nil
}
func (f *fakeStore) GetUserByID(ctx context.Context, id int64) (store.User, error) {
	if f.getUserByIDFn != nil {
		return f.getUserByIDFn(ctx, id)
	}
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) GetUserByUsername(ctx context.Context, username string) (store.User, error) {
	if f.getUserByUsernameFn != nil {
		return f.getUserByUsernameFn(ctx, username)
	}
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) UserExists(ctx context.Context, id int64) (bool, error) {
	if f.userExistsFn != nil {
		return f.userExistsFn(ctx, id)
	}
	return true, nil
}
func (f *fakeStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	if f.usernameExistsFn != nil {
		return f.usernameExistsFn(ctx, username)
	}
	return false, nil
}
func (f *fakeStore) EmailExists(ctx context.Context, email string) (bool, error) {
	if f.emailExistsFn != nil {
		return f.emailExistsFn(ctx, email)
	}
	return false, nil
}
func (f *fakeStore) IsAdmin(context.Context, int64) (bool, error) { return false, nil }
func (f *fakeStore) SetUserAdmin(ctx context.Context, id int64, isAdmin bool) (bool, error) {
	if f.setUserAdminFn != nil {
		return f.setUserAdminFn(ctx, id, isAdmin)
	}
	return true, nil
}
func (f *fakeStore) CreateCategory(ctx context.Context, category store.Category) (int64, error) {
	if f.createCategoryFn != nil {
		return f.createCategoryFn(ctx, category)
	}
	return 1, nil
}
func (f *fakeStore) GetCategory(ctx context.Context, id int64) (store.Category, error) {
	if f.getCategoryFn != nil {
		return f.getCategoryFn(ctx, id)
	}
	return store.Category{}, sql.ErrNoRows
}
func (f *fakeStore) CategoryExists(ctx context.Context, id int64) (bool, error) {
	if f.categoryExistsFn != nil {
		return f.categoryExistsFn(ctx, id)
	}
	return true, nil
}
func (f *fakeStore) CategoryTitleExists(ctx context.Context, title string) (bool, error) {
	if f.categoryTitleExistsFn != nil {
		return f.categoryTitleExistsFn(ctx, title)
	}
	return false, nil
}
func (f *fakeStore) ListCategories(context.Context, store.CategoryFilter) ([]store.Category, error) {
	return nil, nil
}
func (f *fakeStore) SetCategoryLocked(ctx context.Context, id int64, locked bool) (bool, error) {
	if f.setCategoryLockedFn != nil {
		return f.setCategoryLockedFn(ctx, id, locked)
	}
	return true, nil
}
func (f *fakeStore) SetCategoryPrivate(ctx context.Context, id int64, private bool) (bool, error) {
	if f.setCategoryPrivateFn != nil {
		return f.setCategoryPrivateFn(ctx, id, private)
	}
	return true, nil
}
func (f *fakeStore) GetCategoryAccess(ctx context.Context, categoryID, userID int64) (*store.CategoryAccess, error) {
	if f.getCategoryAccessFn != nil {
		return f.getCategoryAccessFn(ctx, categoryID, userID)
	}
	return nil, nil
}
func (f *fakeStore) UpsertCategoryAccess(ctx context.Context, grant store.CategoryAccess) error {
	if f.upsertCategoryAccessFn != nil {
		return f.upsertCategoryAccessFn(ctx, grant)
	}
	return nil
}
func (f *fakeStore) DeleteCategoryAccess(ctx context.Context, categoryID, userID int64) (bool, error) {
	if f.deleteCategoryAccessFn != nil {
		return f.deleteCategoryAccessFn(ctx, categoryID, userID)
	}
	return false, nil
}
func (f *fakeStore) ListCategoryAccess(context.Context, int64) ([]store.CategoryAccess, error) {
	return nil, nil
}
func (f *fakeStore) ListAccessibleCategoryIDs(context.Context, int64) ([]int64, error) {
	return nil, nil
}
func (f *fakeStore) CreateTopic(ctx context.Context, topic store.Topic) (int64, error) {
	if f.createTopicFn != nil {
		return f.createTopicFn(ctx, topic)
	}
	return 1, nil
}
func (f *fakeStore) GetTopic(ctx context.Context, id int64) (store.Topic, error) {
	if f.getTopicFn != nil {
		return f.getTopicFn(ctx, id)
	}
	return store.Topic{}, sql.ErrNoRows
}
func (f *fakeStore) ListTopics(context.Context, store.TopicFilter) ([]store.Topic, error) {
	return nil, nil
}
func (f *fakeStore) ListCategoryTopics(context.Context, int64) ([]store.Topic, error) {
	return nil, nil
}
func (f *fakeStore) SetTopicLocked(ctx context.Context, id int64, locked bool) (bool, error) {
	if f.setTopicLockedFn != nil {
		return f.setTopicLockedFn(ctx, id, locked)
	}
	return true, nil
}
func (f *fakeStore) SetBestReply(ctx context.Context, topicID, replyID int64) error {
	if f.setBestReplyFn != nil {
		return f.setBestReplyFn(ctx, topicID, replyID)
	}
	return nil
}
func (f *fakeStore) CreateReply(ctx context.Context, reply store.Reply) (int64, error) {
	if f.createReplyFn != nil {
		return f.createReplyFn(ctx, reply)
	}
	return 1, nil
}
func (f *fakeStore) GetReply(ctx context.Context, id int64) (store.Reply, error) {
	if f.getReplyFn != nil {
		return f.getReplyFn(ctx, id)
	}
	return store.Reply{}, sql.ErrNoRows
}
func (f *fakeStore) ListTopicReplies(context.Context, int64) ([]store.Reply, error) {
	return nil, nil
}
func (f *fakeStore) InsertVote(ctx context.Context, vote store.Vote) (bool, error) {
	if f.insertVoteFn != nil {
		return f.insertVoteFn(ctx, vote)
	}
	return true, nil
}
func (f *fakeStore) UpdateVote(ctx context.Context, replyID, userID int64, isUpvote bool) (bool, error) {
	if f.updateVoteFn != nil {
		return f.updateVoteFn(ctx, replyID, userID, isUpvote)
	}
	return false, nil
}
func (f *fakeStore) DeleteVote(ctx context.Context, replyID, userID int64) (bool, error) {
	if f.deleteVoteFn != nil {
		return f.deleteVoteFn(ctx, replyID, userID)
	}
	return false, nil
}
func (f *fakeStore) ReplyVoteScore(context.Context, int64) (int, error) { return 0, nil }
func (f *fakeStore) GetConversationID(ctx context.Context, user1ID, user2ID int64) (int64, bool, error) {
	if f.getConversationIDFn != nil {
		return f.getConversationIDFn(ctx, user1ID, user2ID)
	}
	return 0, false, nil
}
func (f *fakeStore) EnsureConversation(ctx context.Context, user1ID, user2ID int64) (int64, error) {
	if f.ensureConversationFn != nil {
		return f.ensureConversationFn(ctx, user1ID, user2ID)
	}
	return 1, nil
}
func (f *fakeStore) InsertMessage(ctx context.Context, message store.Message) (int64, error) {
	if f.insertMessageFn != nil {
		return f.insertMessageFn(ctx, message)
	}
	return 1, nil
}
func (f *fakeStore) ListConversationMessages(context.Context, int64, bool) ([]store.Message, error) {
	return nil, nil
}
func (f *fakeStore) ListConversations(context.Context, int64, bool) ([]store.ConversationPreview, error) {
	return nil, nil
}
func (f *fakeStore) Ping(context.Context) error { return nil }

type fakeSessions struct{}

func (fakeSessions) SaveRefreshSession(context.Context, string, store.User, time.Time) error {
	return nil
}
func (fakeSessions) LookupRefreshSession(context.Context, string) (store.User, error) {
	return store.User{}, sql.ErrNoRows
}
func (fakeSessions) RevokeRefreshSession(context.Context, string) error       { return nil }
func (fakeSessions) RevokeAccessToken(context.Context, string, time.Time) error { return nil }
func (fakeSessions) IsAccessTokenRevoked(context.Context, string) (bool, error) {
	return false, nil
}

func newTestService(dataStore *fakeStore) *Service {
	cfg := config.Config{
		TokenSecret:       "test-secret",
		AccessTTL:         15 * time.Minute,
		RefreshTTL:        time.Hour,
		RootAdminID:       1,
		RootAdminPassword: "change-me-now",
	}
	return New(cfg, dataStore, fakeSessions{}, nil)
}

func assertDomainError(t *testing.T, err error, status int, code string) {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Status != status || domainErr.Code != code {
		t.Fatalf("expected %d/%s, got %d/%s (%s)", status, code, domainErr.Status, domainErr.Code, domainErr.Message)
	}
}

var (
	adminCaller  = &access.Caller{ID: 1, IsAdmin: true}
	memberCaller = &access.Caller{ID: 2}
)

func publicCategory() store.Category {
	return store.Category{ID: 10, Title: "General Talk", IsPrivate: false}
}

func privateCategory() store.Category {
	return store.Category{ID: 11, Title: "Staff Lounge", IsPrivate: true}
}

func TestCanAccessAdminBypassesPrivacy(t *testing.T) {
	service := newTestService(&fakeStore{
		getCategoryFn: func(context.Context, int64) (store.Category, error) {
			return privateCategory(), nil
		},
	})

	for _, op := range []access.Op{access.OpRead, access.OpWrite} {
		allowed, err := service.CanAccess(context.Background(), adminCaller, 11, op)
		if err != nil {
			t.Fatalf("CanAccess(%q) error = %v", op, err)
		}
		if !allowed {
			t.Fatalf("expected admin access for %q", op)
		}
	}
}

func TestCanAccessPublicCategory(t *testing.T) {
	service := newTestService(&fakeStore{
		getCategoryFn: func(context.Context, int64) (store.Category, error) {
			return publicCategory(), nil
		},
	})

	allowed, err := service.CanAccess(context.Background(), nil, 10, access.OpRead)
	if err != nil {
		t.Fatalf("CanAccess() error = %v", err)
	}
	if !allowed {
		t.Fatal("expected anonymous read access to a public category")
	}
}

func TestCanAccessPrivateCategory(t *testing.T) {
	grants := map[int64]*store.CategoryAccess{}
	service := newTestService(&fakeStore{
		getCategoryFn: func(context.Context, int64) (store.Category, error) {
			return privateCategory(), nil
		},
		getCategoryAccessFn: func(_ context.Context, _ int64, userID int64) (*store.CategoryAccess, error) {
			return grants[userID], nil
		},
	})
	ctx := context.Background()

	allowed, err := service.CanAccess(ctx, nil, 11, access.OpRead)
	if err != nil || allowed {
		t.Fatalf("anonymous read of private category: allowed=%v err=%v", allowed, err)
	}

	allowed, err = service.CanAccess(ctx, memberCaller, 11, access.OpRead)
	if err != nil || allowed {
		t.Fatalf("ungranted read of private category: allowed=%v err=%v", allowed, err)
	}

	grants[2] = &store.CategoryAccess{UserID: 2, CategoryID: 11, WriteAccess: false}
	allowed, err = service.CanAccess(ctx, memberCaller, 11, access.OpRead)
	if err != nil || !allowed {
		t.Fatalf("read-only grant read: allowed=%v err=%v", allowed, err)
	}
	allowed, err = service.CanAccess(ctx, memberCaller, 11, access.OpWrite)
	if err != nil || allowed {
		t.Fatalf("read-only grant write: allowed=%v err=%v", allowed, err)
	}
}

func TestCanAccessMissingCategory(t *testing.T) {
	service := newTestService(&fakeStore{})
	_, err := service.CanAccess(context.Background(), memberCaller, 99, access.OpRead)
	assertDomainError(t, err, 404, "not_found")
}

func TestSetCategoryLockedIdempotent(t *testing.T) {
	service := newTestService(&fakeStore{
		setCategoryLockedFn: func(context.Context, int64, bool) (bool, error) {
			return false, nil
		},
	})

	outcome, err := service.SetCategoryLocked(context.Background(), adminCaller, 10, true)
	if err != nil {
		t.Fatalf("SetCategoryLocked() error = %v", err)
	}
	if outcome != OutcomeAlreadyInState {
		t.Fatalf("expected %q, got %q", OutcomeAlreadyInState, outcome)
	}
}

func TestSetCategoryLockedRequiresAdmin(t *testing.T) {
	service := newTestService(&fakeStore{})
	_, err := service.SetCategoryLocked(context.Background(), memberCaller, 10, true)
	assertDomainError(t, err, 403, "forbidden")
}

func TestSetCategoryPrivateChanged(t *testing.T) {
	var gotPrivate *bool
	service := newTestService(&fakeStore{
		setCategoryPrivateFn: func(_ context.Context, _ int64, private bool) (bool, error) {
			gotPrivate = &private
			return true, nil
		},
	})

	outcome, err := service.SetCategoryPrivate(context.Background(), adminCaller, 11, false)
	if err != nil {
		t.Fatalf("SetCategoryPrivate() error = %v", err)
	}
	if outcome != OutcomeChanged {
		t.Fatalf("expected %q, got %q", OutcomeChanged, outcome)
	}
	if gotPrivate == nil || *gotPrivate {
		t.Fatal("expected the store to be asked for the public state")
	}
}

func TestGrantCategoryAccessOnPublicCategory(t *testing.T) {
	service := newTestService(&fakeStore{
		getCategoryFn: func(context.Context, int64) (store.Category, error) {
			return publicCategory(), nil
		},
	})
	_, err := service.GrantCategoryAccess(context.Background(), adminCaller, 10, GrantAccessInput{UserID: 2})
	assertDomainError(t, err, 409, "invalid_state")
}

func TestGrantCategoryAccessOutcomes(t *testing.T) {
	existing := &store.CategoryAccess{UserID: 2, CategoryID: 11, WriteAccess: false}
	var current *store.CategoryAccess
	service := newTestService(&fakeStore{
		getCategoryFn: func(context.Context, int64) (store.Category, error) {
			return privateCategory(), nil
		},
		getCategoryAccessFn: func(context.Context, int64, int64) (*store.CategoryAccess, error) {
			return current, nil
		},
	})
	ctx := context.Background()

	outcome, err := service.GrantCategoryAccess(ctx, adminCaller, 11, GrantAccessInput{UserID: 2, WriteAccess: false})
	if err != nil || outcome != OutcomeCreated {
		t.Fatalf("fresh grant: outcome=%q err=%v", outcome, err)
	}

	current = existing
	outcome, err = service.GrantCategoryAccess(ctx, adminCaller, 11, GrantAccessInput{UserID: 2, WriteAccess: false})
	if err != nil || outcome != OutcomeAlreadyInState {
		t.Fatalf("same grant: outcome=%q err=%v", outcome, err)
	}

	outcome, err = service.GrantCategoryAccess(ctx, adminCaller, 11, GrantAccessInput{UserID: 2, WriteAccess: true})
	if err != nil || outcome != OutcomeChanged {
		t.Fatalf("widened grant: outcome=%q err=%v", outcome, err)
	}
}

func TestRevokeCategoryAccessMissingGrant(t *testing.T) {
	service := newTestService(&fakeStore{})
	outcome, err := service.RevokeCategoryAccess(context.Background(), adminCaller, 11, 2)
	if err != nil {
		t.Fatalf("RevokeCategoryAccess() error = %v", err)
	}
	if outcome != OutcomeAlreadyInState {
		t.Fatalf("expected %q, got %q", OutcomeAlreadyInState, outcome)
	}
}

func TestCreateTopicPreconditionOrder(t *testing.T) {
	ctx := context.Background()
	input := CreateTopicInput{Title: "A proper topic", Content: "body", CategoryID: 11}

	// Missing category wins over everything else.
	service := newTestService(&fakeStore{})
	_, err := service.CreateTopic(ctx, memberCaller, input)
	assertDomainError(t, err, 404, "not_found")

	// Locked category beats the pre-locked check.
	service = newTestService(&fakeStore{
		getCategoryFn: func(context.Context, int64) (store.Category, error) {
			return store.Category{ID: 11, IsPrivate: true, IsLocked: true}, nil
		},
	})
	locked := input
	locked.IsLocked = true
	_, err = service.CreateTopic(ctx, memberCaller, locked)
	assertDomainError(t, err, 409, "invalid_state")

	// Pre-locked by a non-admin beats the access check.
	service = newTestService(&fakeStore{
		getCategoryFn: func(context.Context, int64) (store.Category, error) {
			return privateCategory(), nil
		},
	})
	_, err = service.CreateTopic(ctx, memberCaller, locked)
	assertDomainError(t, err, 403, "forbidden")

	// Finally the private write-access check.
	_, err = service.CreateTopic(ctx, memberCaller, input)
	assertDomainError(t, err, 403, "forbidden")
}

func TestCreateTopicWithWriteGrant(t *testing.T) {
	service := newTestService(&fakeStore{
		getCategoryFn: func(context.Context, int64) (store.Category, error) {
			return privateCategory(), nil
		},
		getCategoryAccessFn: func(context.Context, int64, int64) (*store.CategoryAccess, error) {
			return &store.CategoryAccess{UserID: 2, CategoryID: 11, WriteAccess: true}, nil
		},
	})

	topic, err := service.CreateTopic(context.Background(), memberCaller, CreateTopicInput{
		Title: "A proper topic", Content: "body", CategoryID: 11,
	})
	if err != nil {
		t.Fatalf("CreateTopic() error = %v", err)
	}
	if topic.AuthorID != memberCaller.ID {
		t.Fatalf("expected author %d, got %d", memberCaller.ID, topic.AuthorID)
	}
}

func TestSelectBestReplyAuthorOnly(t *testing.T) {
	service := newTestService(&fakeStore{
		getTopicFn: func(context.Context, int64) (store.Topic, error) {
			return store.Topic{ID: 5, AuthorID: 7, CategoryID: 10}, nil
		},
	})
	_, err := service.SelectBestReply(context.Background(), memberCaller, 5, 3)
	assertDomainError(t, err, 403, "forbidden")
}

func TestSelectBestReplyRejectsForeignReply(t *testing.T) {
	service := newTestService(&fakeStore{
		getTopicFn: func(context.Context, int64) (store.Topic, error) {
			return store.Topic{ID: 5, AuthorID: 2, CategoryID: 10}, nil
		},
		getReplyFn: func(context.Context, int64) (store.Reply, error) {
			return store.Reply{ID: 3, TopicID: 6}, nil
		},
	})
	_, err := service.SelectBestReply(context.Background(), memberCaller, 5, 3)
	assertDomainError(t, err, 404, "not_found")
}

func TestSelectBestReplyRedundant(t *testing.T) {
	best := int64(3)
	service := newTestService(&fakeStore{
		getTopicFn: func(context.Context, int64) (store.Topic, error) {
			return store.Topic{ID: 5, AuthorID: 2, CategoryID: 10, BestReplyID: &best}, nil
		},
		getReplyFn: func(context.Context, int64) (store.Reply, error) {
			return store.Reply{ID: 3, TopicID: 5}, nil
		},
	})
	_, err := service.SelectBestReply(context.Background(), memberCaller, 5, 3)
	assertDomainError(t, err, 409, "conflict")
}

func TestSelectBestReplySwapsWinner(t *testing.T) {
	best := int64(3)
	var swappedTo int64
	service := newTestService(&fakeStore{
		getTopicFn: func(context.Context, int64) (store.Topic, error) {
			return store.Topic{ID: 5, AuthorID: 2, CategoryID: 10, BestReplyID: &best}, nil
		},
		getReplyFn: func(context.Context, int64) (store.Reply, error) {
			return store.Reply{ID: 4, TopicID: 5}, nil
		},
		setBestReplyFn: func(_ context.Context, _ int64, replyID int64) error {
			swappedTo = replyID
			return nil
		},
	})

	outcome, err := service.SelectBestReply(context.Background(), memberCaller, 5, 4)
	if err != nil {
		t.Fatalf("SelectBestReply() error = %v", err)
	}
	if outcome != OutcomeChanged {
		t.Fatalf("expected %q, got %q", OutcomeChanged, outcome)
	}
	if swappedTo != 4 {
		t.Fatalf("expected swap to reply 4, got %d", swappedTo)
	}
}

func TestSelectBestReplyLockedTopic(t *testing.T) {
	service := newTestService(&fakeStore{
		getTopicFn: func(context.Context, int64) (store.Topic, error) {
			return store.Topic{ID: 5, AuthorID: 2, CategoryID: 10, IsLocked: true}, nil
		},
	})
	_, err := service.SelectBestReply(context.Background(), memberCaller, 5, 3)
	assertDomainError(t, err, 409, "invalid_state")
}

func TestCreateReplyLockedTopic(t *testing.T) {
	service := newTestService(&fakeStore{
		getTopicFn: func(context.Context, int64) (store.Topic, error) {
			return store.Topic{ID: 5, CategoryID: 10, IsLocked: true}, nil
		},
	})
	_, err := service.CreateReply(context.Background(), memberCaller, CreateReplyInput{TopicID: 5, Content: "hi"})
	assertDomainError(t, err, 409, "invalid_state")
}

func voteFixture(insert, update bool) *fakeStore {
	return &fakeStore{
		getReplyFn: func(context.Context, int64) (store.Reply, error) {
			return store.Reply{ID: 3, TopicID: 5}, nil
		},
		getTopicFn: func(context.Context, int64) (store.Topic, error) {
			return store.Topic{ID: 5, CategoryID: 10}, nil
		},
		getCategoryFn: func(context.Context, int64) (store.Category, error) {
			return publicCategory(), nil
		},
		insertVoteFn: func(context.Context, store.Vote) (bool, error) {
			return insert, nil
		},
		updateVoteFn: func(context.Context, int64, int64, bool) (bool, error) {
			return update, nil
		},
	}
}

func TestCastVoteCreated(t *testing.T) {
	service := newTestService(voteFixture(true, false))
	outcome, err := service.CastVote(context.Background(), memberCaller, 3, true)
	if err != nil {
		t.Fatalf("CastVote() error = %v", err)
	}
	if outcome != OutcomeCreated {
		t.Fatalf("expected %q, got %q", OutcomeCreated, outcome)
	}
}

func TestCastVoteOverwrites(t *testing.T) {
	service := newTestService(voteFixture(false, true))
	outcome, err := service.CastVote(context.Background(), memberCaller, 3, false)
	if err != nil {
		t.Fatalf("CastVote() error = %v", err)
	}
	if outcome != OutcomeChanged {
		t.Fatalf("expected %q, got %q", OutcomeChanged, outcome)
	}
}

func TestCastVoteRedundant(t *testing.T) {
	service := newTestService(voteFixture(false, false))
	_, err := service.CastVote(context.Background(), memberCaller, 3, true)
	assertDomainError(t, err, 409, "conflict")
}

func TestRetractVoteWithoutVote(t *testing.T) {
	service := newTestService(voteFixture(false, false))
	_, err := service.RetractVote(context.Background(), memberCaller, 3)
	assertDomainError(t, err, 409, "conflict")
}

func TestRetractVoteDeletes(t *testing.T) {
	fixture := voteFixture(false, false)
	fixture.deleteVoteFn = func(context.Context, int64, int64) (bool, error) { return true, nil }
	service := newTestService(fixture)
	outcome, err := service.RetractVote(context.Background(), memberCaller, 3)
	if err != nil {
		t.Fatalf("RetractVote() error = %v", err)
	}
	if outcome != OutcomeChanged {
		t.Fatalf("expected %q, got %q", OutcomeChanged, outcome)
	}
}

func TestSetAdminStatusRootRules(t *testing.T) {
	ctx := context.Background()
	users := map[int64]store.User{
		1: {ID: 1, IsAdmin: true},
		3: {ID: 3, IsAdmin: true},
		4: {ID: 4},
	}
	newService := func() *Service {
		return newTestService(&fakeStore{
			getUserByIDFn: func(_ context.Context, id int64) (store.User, error) {
				user, ok := users[id]
				if !ok {
					return store.User{}, sql.ErrNoRows
				}
				return user, nil
			},
		})
	}
	rootCaller := &access.Caller{ID: 1, IsAdmin: true}
	otherAdmin := &access.Caller{ID: 3, IsAdmin: true}

	// Nobody but the root admin touches the root admin.
	_, err := newService().SetAdminStatus(ctx, otherAdmin, 1, false)
	assertDomainError(t, err, 403, "forbidden")

	// Ordinary admins may not change their own flag.
	_, err = newService().SetAdminStatus(ctx, otherAdmin, 3, false)
	assertDomainError(t, err, 403, "forbidden")

	// Only the root admin may alter another admin.
	users[5] = store.User{ID: 5, IsAdmin: true}
	_, err = newService().SetAdminStatus(ctx, otherAdmin, 5, false)
	assertDomainError(t, err, 403, "forbidden")

	// The root admin may do all of the above.
	if _, err := newService().SetAdminStatus(ctx, rootCaller, 5, false); err != nil {
		t.Fatalf("root demoting admin: %v", err)
	}
	if _, err := newService().SetAdminStatus(ctx, rootCaller, 1, false); err != nil {
		t.Fatalf("root changing itself: %v", err)
	}

	// Promoting an ordinary user is open to any admin.
	if _, err := newService().SetAdminStatus(ctx, otherAdmin, 4, true); err != nil {
		t.Fatalf("admin promoting user: %v", err)
	}

	_, err = newService().SetAdminStatus(ctx, rootCaller, 99, true)
	assertDomainError(t, err, 404, "not_found")
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	service := newTestService(&fakeStore{})

	_, err := service.Register(ctx, RegisterInput{Username: "abc", Email: "a@b.c", Password: "long-enough"})
	assertDomainError(t, err, 400, "invalid_argument")

	_, err = service.Register(ctx, RegisterInput{Username: "valid_name", Email: "not-an-email", Password: "long-enough"})
	assertDomainError(t, err, 400, "invalid_argument")

	_, err = service.Register(ctx, RegisterInput{Username: "valid_name", Email: "a@b.c", Password: "short"})
	assertDomainError(t, err, 400, "invalid_argument")

	service = newTestService(&fakeStore{
		usernameExistsFn: func(context.Context, string) (bool, error) { return true, nil },
	})
	_, err = service.Register(ctx, RegisterInput{Username: "valid_name", Email: "a@b.c", Password: "long-enough"})
	assertDomainError(t, err, 409, "conflict")
}

func TestRegisterIssuesSession(t *testing.T) {
	service := newTestService(&fakeStore{
		createUserFn: func(context.Context, store.User) (int64, error) { return 9, nil },
	})
	session, err := service.Register(context.Background(), RegisterInput{
		Username: "valid_name", Email: "a@b.c", Password: "long-enough",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if session.UserID != 9 || session.Token == "" || session.RefreshToken == "" {
		t.Fatalf("unexpected session: %+v", session)
	}
}

func TestSendMessageValidation(t *testing.T) {
	ctx := context.Background()
	service := newTestService(&fakeStore{})

	_, err := service.SendMessage(ctx, memberCaller, 3, "   ")
	assertDomainError(t, err, 400, "invalid_argument")

	_, err = service.SendMessage(ctx, memberCaller, memberCaller.ID, "hello")
	assertDomainError(t, err, 400, "invalid_argument")

	service = newTestService(&fakeStore{
		userExistsFn: func(context.Context, int64) (bool, error) { return false, nil },
	})
	_, err = service.SendMessage(ctx, memberCaller, 3, "hello")
	assertDomainError(t, err, 404, "not_found")
}

func TestSendMessageUsesSharedConversation(t *testing.T) {
	var pair [2]int64
	service := newTestService(&fakeStore{
		ensureConversationFn: func(_ context.Context, a, b int64) (int64, error) {
			pair = [2]int64{a, b}
			return 77, nil
		},
	})

	message, err := service.SendMessage(context.Background(), memberCaller, 3, "hello")
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if message.ConversationID != 77 {
		t.Fatalf("expected conversation 77, got %d", message.ConversationID)
	}
	if pair != [2]int64{2, 3} {
		t.Fatalf("unexpected participant pair: %v", pair)
	}
}
