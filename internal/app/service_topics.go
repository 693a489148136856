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

type TopicDetail struct {
	Topic   store.Topic   `json:"topic"`
	Replies []store.Reply `json:"replies"`
}

// CreateTopic checks the creation preconditions in a fixed order: category
// existence, category lock, the admin-only pre-locked flag, then write
// access. The first failure wins.
func (s *Service) CreateTopic(ctx context.Context, caller *access.Caller, input CreateTopicInput) (store.Topic, error) {
	if err := requireCaller(caller); err != nil {
		return store.Topic{}, err
	}
	title := strings.TrimSpace(input.Title)
	if len(title) < 5 || len(title) > 45 {
		return store.Topic{}, invalidArgument("title must be between 5 and 45 characters")
	}
	if strings.TrimSpace(input.Content) == "" {
		return store.Topic{}, invalidArgument("content must not be empty")
	}

	category, err := s.store.GetCategory(ctx, input.CategoryID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Topic{}, notFound("category", input.CategoryID)
	}
	if err != nil {
		return store.Topic{}, err
	}
	if category.IsLocked {
		return store.Topic{}, invalidState("category is locked")
	}
	if input.IsLocked && !caller.IsAdmin {
		return store.Topic{}, forbidden("only admin may create locked topics")
	}
	if !caller.IsAdmin && category.IsPrivate {
		allowed, err := s.CanAccess(ctx, caller, category.ID, access.OpWrite)
		if err != nil {
			return store.Topic{}, err
		}
		if !allowed {
			return store.Topic{}, forbidden("no write access to this category")
		}
	}

	topic := store.Topic{
		Title:      title,
		Content:    input.Content,
		IsLocked:   input.IsLocked,
		CategoryID: input.CategoryID,
		AuthorID:   caller.ID,
	}
	topic.ID, err = s.store.CreateTopic(ctx, topic)
	if err != nil {
		return store.Topic{}, err
	}

	if s.search != nil {
		s.search.IndexTopic(search.TopicRecord{
			ID:         topic.ID,
			Title:      topic.Title,
			Content:    topic.Content,
			CategoryID: topic.CategoryID,
			IsPrivate:  category.IsPrivate,
		})
	}
	return topic, nil
}

func (s *Service) GetTopic(ctx context.Context, caller *access.Caller, topicID int64) (TopicDetail, error) {
	topic, err := s.store.GetTopic(ctx, topicID)
	if errors.Is(err, sql.ErrNoRows) {
		return TopicDetail{}, notFound("topic", topicID)
	}
	if err != nil {
		return TopicDetail{}, err
	}

	allowed, err := s.CanAccess(ctx, caller, topic.CategoryID, access.OpRead)
	if err != nil {
		return TopicDetail{}, err
	}
	if !allowed {
		return TopicDetail{}, forbidden("no access to this category")
	}

	replies, err := s.store.ListTopicReplies(ctx, topicID)
	if err != nil {
		return TopicDetail{}, err
	}
	return TopicDetail{Topic: topic, Replies: replies}, nil
}

func (s *Service) ListTopics(ctx context.Context, caller *access.Caller, filter store.TopicFilter) ([]store.Topic, error) {
	if filter.CategoryID != nil {
		allowed, err := s.CanAccess(ctx, caller, *filter.CategoryID, access.OpRead)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, forbidden("no access to this category")
		}
	}
	if filter.AuthorID != nil {
		exists, err := s.store.UserExists(ctx, *filter.AuthorID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, notFound("user", *filter.AuthorID)
		}
	}
	if caller != nil {
		filter.Admin = caller.IsAdmin
		filter.ViewerID = &caller.ID
	}
	return s.store.ListTopics(ctx, filter)
}

// SetTopicLocked is admin-only and idempotent.
func (s *Service) SetTopicLocked(ctx context.Context, caller *access.Caller, topicID int64, locked bool) (Outcome, error) {
	if err := requireAdmin(caller); err != nil {
		return "", err
	}
	_, err := s.store.GetTopic(ctx, topicID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", notFound("topic", topicID)
	}
	if err != nil {
		return "", err
	}

	changed, err := s.store.SetTopicLocked(ctx, topicID, locked)
	if err != nil {
		return "", err
	}
	if !changed {
		return OutcomeAlreadyInState, nil
	}
	return OutcomeChanged, nil
}

// SelectBestReply marks a reply as the topic's accepted answer. Only the
// topic author may choose; re-selecting the current best reply is rejected
// as redundant. The previous winner is unset in the same transaction.
func (s *Service) SelectBestReply(ctx context.Context, caller *access.Caller, topicID, replyID int64) (Outcome, error) {
	if err := requireCaller(caller); err != nil {
		return "", err
	}

	topic, err := s.store.GetTopic(ctx, topicID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", notFound("topic", topicID)
	}
	if err != nil {
		return "", err
	}
	if topic.IsLocked {
		return "", invalidState("topic is locked")
	}
	if topic.AuthorID != caller.ID {
		return "", forbidden("only the topic author may select the best reply")
	}

	reply, err := s.store.GetReply(ctx, replyID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", notFound("reply", replyID)
	}
	if err != nil {
		return "", err
	}
	if reply.TopicID != topicID {
		return "", notFound("reply", replyID)
	}
	if topic.BestReplyID != nil && *topic.BestReplyID == replyID {
		return "", conflict("reply is already the best reply")
	}

	if err := s.store.SetBestReply(ctx, topicID, replyID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", notFound("reply", replyID)
		}
		return "", err
	}
	return OutcomeChanged, nil
}

// CreateReply appends a reply. A locked topic accepts no new replies.
func (s *Service) CreateReply(ctx context.Context, caller *access.Caller, input CreateReplyInput) (store.Reply, error) {
	if err := requireCaller(caller); err != nil {
		return store.Reply{}, err
	}
	if strings.TrimSpace(input.Content) == "" {
		return store.Reply{}, invalidArgument("content must not be empty")
	}

	topic, err := s.store.GetTopic(ctx, input.TopicID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Reply{}, notFound("topic", input.TopicID)
	}
	if err != nil {
		return store.Reply{}, err
	}
	if topic.IsLocked {
		return store.Reply{}, invalidState("topic is locked")
	}
	if !caller.IsAdmin {
		allowed, err := s.CanAccess(ctx, caller, topic.CategoryID, access.OpWrite)
		if err != nil {
			return store.Reply{}, err
		}
		if !allowed {
			return store.Reply{}, forbidden("no write access to this category")
		}
	}

	reply := store.Reply{
		Content:  input.Content,
		TopicID:  input.TopicID,
		AuthorID: caller.ID,
	}
	reply.ID, err = s.store.CreateReply(ctx, reply)
	if err != nil {
		return store.Reply{}, err
	}
	return reply, nil
}
