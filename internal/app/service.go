package app

import (
	"context"
	"strings"
	"time"

	"forum/api/internal/access"
	"forum/api/internal/auth"
	"forum/api/internal/authpw"
	"forum/api/internal/config"
	"forum/api/internal/search"
	"forum/api/internal/store"
	"forum/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       int64
	Username     string
	IsAdmin      bool
	JTI          string
	ExpiresAt    time.Time
}

// Caller returns the caller identity for this session.
func (s Session) Caller() *access.Caller {
	return &access.Caller{ID: s.UserID, IsAdmin: s.IsAdmin}
}

type RegisterInput struct {
	Username  string `json:"username"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type CreateCategoryInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	IsPrivate   bool   `json:"isPrivate"`
}

type CreateTopicInput struct {
	Title      string `json:"title"`
	Content    string `json:"content"`
	CategoryID int64  `json:"categoryId"`
	IsLocked   bool   `json:"isLocked"`
}

type CreateReplyInput struct {
	TopicID int64  `json:"topicId"`
	Content string `json:"content"`
}

type GrantAccessInput struct {
	UserID      int64 `json:"userId"`
	WriteAccess bool  `json:"writeAccess"`
}

type dataStore interface {
	CreateUser(context.Context, store.User) (int64, error)
	GetUserByID(context.Context, int64) (store.User, error)
	GetUserByUsername(context.Context, string) (store.User, error)
	UserExists(context.Context, int64) (bool, error)
	UsernameExists(context.Context, string) (bool, error)
	EmailExists(context.Context, string) (bool, error)
	IsAdmin(context.Context, int64) (bool, error)
	SetUserAdmin(context.Context, int64, bool) (bool, error)

	CreateCategory(context.Context, store.Category) (int64, error)
	GetCategory(context.Context, int64) (store.Category, error)
	CategoryExists(context.Context, int64) (bool, error)
	CategoryTitleExists(context.Context, string) (bool, error)
	ListCategories(context.Context, store.CategoryFilter) ([]store.Category, error)
	SetCategoryLocked(context.Context, int64, bool) (bool, error)
	SetCategoryPrivate(context.Context, int64, bool) (bool, error)

	GetCategoryAccess(context.Context, int64, int64) (*store.CategoryAccess, error)
	UpsertCategoryAccess(context.Context, store.CategoryAccess) error
	DeleteCategoryAccess(context.Context, int64, int64) (bool, error)
	ListCategoryAccess(context.Context, int64) ([]store.CategoryAccess, error)
	ListAccessibleCategoryIDs(context.Context, int64) ([]int64, error)

	CreateTopic(context.Context, store.Topic) (int64, error)
	GetTopic(context.Context, int64) (store.Topic, error)
	ListTopics(context.Context, store.TopicFilter) ([]store.Topic, error)
	ListCategoryTopics(context.Context, int64) ([]store.Topic, error)
	SetTopicLocked(context.Context, int64, bool) (bool, error)
	SetBestReply(context.Context, int64, int64) error

	CreateReply(context.Context, store.Reply) (int64, error)
	GetReply(context.Context, int64) (store.Reply, error)
	ListTopicReplies(context.Context, int64) ([]store.Reply, error)

	InsertVote(context.Context, store.Vote) (bool, error)
	UpdateVote(context.Context, int64, int64, bool) (bool, error)
	DeleteVote(context.Context, int64, int64) (bool, error)
	ReplyVoteScore(context.Context, int64) (int, error)

	GetConversationID(context.Context, int64, int64) (int64, bool, error)
	EnsureConversation(context.Context, int64, int64) (int64, error)
	InsertMessage(context.Context, store.Message) (int64, error)
	ListConversationMessages(context.Context, int64, bool) ([]store.Message, error)
	ListConversations(context.Context, int64, bool) ([]store.ConversationPreview, error)

	Ping(ctx context.Context) error
}

type sessionStore interface {
	SaveRefreshSession(context.Context, string, store.User, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
}

type searchService interface {
	Search(q search.Query) search.Response
	IndexCategory(c search.CategoryRecord)
	IndexTopic(t search.TopicRecord)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	search   searchService
}

func New(cfg config.Config, dataStore dataStore, sessions sessionStore, searcher searchService) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		search:   searcher,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Bootstrap seeds the root admin account on a fresh database. On an empty
// users table the first insert receives the configured root admin id.
func (s *Service) Bootstrap(ctx context.Context) error {
	exists, err := s.store.UserExists(ctx, s.cfg.RootAdminID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	hash, err := authpw.HashPassword(s.cfg.RootAdminPassword)
	if err != nil {
		return err
	}
	_, err = s.store.CreateUser(ctx, store.User{
		Username:     "root_admin",
		FirstName:    "Root",
		LastName:     "Admin",
		Email:        "admin@localhost",
		PasswordHash: hash,
		IsAdmin:      true,
	})
	return err
}

func (s *Service) Register(ctx context.Context, input RegisterInput) (Session, error) {
	username := strings.TrimSpace(input.Username)
	if len(username) < 5 || len(username) > 15 {
		return Session{}, invalidArgument("username must be between 5 and 15 characters")
	}
	email := strings.TrimSpace(input.Email)
	if email == "" || !strings.Contains(email, "@") {
		return Session{}, invalidArgument("a valid email is required")
	}
	if len(input.Password) < authpw.MinPasswordLength {
		return Session{}, invalidArgument("password must be at least 8 characters")
	}

	taken, err := s.store.UsernameExists(ctx, username)
	if err != nil {
		return Session{}, err
	}
	if taken {
		return Session{}, conflict("username is already taken")
	}
	taken, err = s.store.EmailExists(ctx, email)
	if err != nil {
		return Session{}, err
	}
	if taken {
		return Session{}, conflict("email is already registered")
	}

	hash, err := authpw.HashPassword(input.Password)
	if err != nil {
		return Session{}, err
	}

	user := store.User{
		Username:     username,
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		Email:        email,
		PasswordHash: hash,
	}
	user.ID, err = s.store.CreateUser(ctx, user)
	if err != nil {
		return Session{}, err
	}

	return s.issueSession(ctx, user)
}

func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	user, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return Session{}, unauthenticated("invalid username or password")
	}
	if err := authpw.VerifyPassword(user.PasswordHash, password); err != nil {
		return Session{}, unauthenticated("invalid username or password")
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, unauthenticated("invalid refresh token")
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:     user.ID,
		Name:    user.Username,
		IsAdmin: user.IsAdmin,
		JTI:     jti,
		Exp:     expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		Username:     user.Username,
		IsAdmin:      user.IsAdmin,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, unauthenticated("invalid or expired token")
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, unauthenticated("token has been revoked")
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, unauthenticated("unknown user")
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		Username:  user.Username,
		IsAdmin:   user.IsAdmin,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.sessions.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// IsAdmin reports whether the user holds the admin flag.
func (s *Service) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	isAdmin, err := s.store.IsAdmin(ctx, userID)
	if err != nil {
		return false, notFound("user", userID)
	}
	return isAdmin, nil
}
