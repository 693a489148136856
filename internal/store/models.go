package store

import "time"

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"isAdmin"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Category struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	IsPrivate   bool      `json:"isPrivate"`
	IsLocked    bool      `json:"isLocked"`
	AdminID     int64     `json:"adminId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// CategoryAccess is a grant on a private category. The row's existence
// implies read access; WriteAccess additionally allows writes.
type CategoryAccess struct {
	UserID      int64     `json:"userId"`
	CategoryID  int64     `json:"categoryId"`
	WriteAccess bool      `json:"writeAccess"`
	GrantedAt   time.Time `json:"grantedAt"`
}

type Topic struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	IsLocked    bool      `json:"isLocked"`
	CategoryID  int64     `json:"categoryId"`
	AuthorID    int64     `json:"authorId"`
	BestReplyID *int64    `json:"bestReplyId"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Reply struct {
	ID          int64  `json:"id"`
	Content     string `json:"content"`
	TopicID     int64  `json:"topicId"`
	AuthorID    int64  `json:"authorId"`
	IsBestReply bool   `json:"isBestReply"`
	// VoteScore is count(upvotes) - count(downvotes), computed on read.
	VoteScore int       `json:"voteScore"`
	CreatedAt time.Time `json:"createdAt"`
}

type Vote struct {
	ReplyID   int64     `json:"replyId"`
	UserID    int64     `json:"userId"`
	IsUpvote  bool      `json:"isUpvote"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversationId"`
	SenderID       int64     `json:"senderId"`
	ReceiverID     int64     `json:"receiverId"`
	Text           string    `json:"text"`
	SentAt         time.Time `json:"sentAt"`
}

// ConversationPreview is one row of a user's conversation list: the peer
// and the most recent message exchanged with them.
type ConversationPreview struct {
	ConversationID int64     `json:"conversationId"`
	PeerID         int64     `json:"peerId"`
	PeerName       string    `json:"peerName"`
	LastMessage    string    `json:"lastMessage"`
	LastSentAt     time.Time `json:"lastSentAt"`
}

type CategoryFilter struct {
	Search string
	SortBy string // "title" or "created_at"
	Desc   bool
	Limit  int
	Offset int
	// Visibility scoping: Admin sees everything; otherwise public
	// categories plus, when ViewerID is set, the viewer's granted ones.
	Admin    bool
	ViewerID *int64
}

type TopicFilter struct {
	Search     string
	CategoryID *int64
	AuthorID   *int64
	IsLocked   *bool
	Desc       bool
	Limit      int
	Offset     int
	Admin      bool
	ViewerID   *int64
}
