package app

import (
	"context"
	"database/sql"
	"errors"

	"forum/api/internal/access"
	"forum/api/internal/store"
)

// CastVote records or overwrites a vote. Voting the same way twice is
// rejected as redundant; voting the opposite way overwrites in place. The
// (reply, user) primary key is the arbiter under concurrency: a losing
// insert falls through to the overwrite path.
func (s *Service) CastVote(ctx context.Context, caller *access.Caller, replyID int64, isUpvote bool) (Outcome, error) {
	if err := requireCaller(caller); err != nil {
		return "", err
	}

	if err := s.checkReplyWriteAccess(ctx, caller, replyID); err != nil {
		return "", err
	}

	inserted, err := s.store.InsertVote(ctx, store.Vote{
		ReplyID:  replyID,
		UserID:   caller.ID,
		IsUpvote: isUpvote,
	})
	if err != nil {
		return "", err
	}
	if inserted {
		return OutcomeCreated, nil
	}

	changed, err := s.store.UpdateVote(ctx, replyID, caller.ID, isUpvote)
	if err != nil {
		return "", err
	}
	if !changed {
		return "", conflict("already voted this way")
	}
	return OutcomeChanged, nil
}

// RetractVote deletes the caller's vote. Retracting a vote that does not
// exist is an error, unlike the idempotent lock toggles.
func (s *Service) RetractVote(ctx context.Context, caller *access.Caller, replyID int64) (Outcome, error) {
	if err := requireCaller(caller); err != nil {
		return "", err
	}

	if err := s.checkReplyWriteAccess(ctx, caller, replyID); err != nil {
		return "", err
	}

	deleted, err := s.store.DeleteVote(ctx, replyID, caller.ID)
	if err != nil {
		return "", err
	}
	if !deleted {
		return "", conflict("has not voted")
	}
	return OutcomeChanged, nil
}

// ReplyVoteScore returns upvotes minus downvotes for a reply.
func (s *Service) ReplyVoteScore(ctx context.Context, caller *access.Caller, replyID int64) (int, error) {
	reply, err := s.store.GetReply(ctx, replyID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, notFound("reply", replyID)
	}
	if err != nil {
		return 0, err
	}
	topic, err := s.store.GetTopic(ctx, reply.TopicID)
	if err != nil {
		return 0, err
	}
	allowed, err := s.CanAccess(ctx, caller, topic.CategoryID, access.OpRead)
	if err != nil {
		return 0, err
	}
	if !allowed {
		return 0, forbidden("no access to this category")
	}
	return s.store.ReplyVoteScore(ctx, replyID)
}

// checkReplyWriteAccess shares the reply-write preconditions with voting:
// the reply must exist, its topic must not be locked, and the caller needs
// write access on the category.
func (s *Service) checkReplyWriteAccess(ctx context.Context, caller *access.Caller, replyID int64) error {
	reply, err := s.store.GetReply(ctx, replyID)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("reply", replyID)
	}
	if err != nil {
		return err
	}
	topic, err := s.store.GetTopic(ctx, reply.TopicID)
	if err != nil {
		return err
	}
	if topic.IsLocked {
		return invalidState("topic is locked")
	}
	if caller.IsAdmin {
		return nil
	}
	allowed, err := s.CanAccess(ctx, caller, topic.CategoryID, access.OpWrite)
	if err != nil {
		return err
	}
	if !allowed {
		return forbidden("no write access to this category")
	}
	return nil
}
