package app

import (
	"context"
	"strings"

	"forum/api/internal/access"
	"forum/api/internal/store"
)

// SendMessage delivers a message to another user. The conversation is
// created lazily on the first message between a pair; (A,B) and (B,A) are
// the same conversation.
func (s *Service) SendMessage(ctx context.Context, caller *access.Caller, receiverID int64, text string) (store.Message, error) {
	if err := requireCaller(caller); err != nil {
		return store.Message{}, err
	}
	if strings.TrimSpace(text) == "" {
		return store.Message{}, invalidArgument("message text must not be empty")
	}
	if receiverID == caller.ID {
		return store.Message{}, invalidArgument("cannot message yourself")
	}

	exists, err := s.store.UserExists(ctx, receiverID)
	if err != nil {
		return store.Message{}, err
	}
	if !exists {
		return store.Message{}, notFound("user", receiverID)
	}

	conversationID, err := s.store.EnsureConversation(ctx, caller.ID, receiverID)
	if err != nil {
		return store.Message{}, err
	}

	message := store.Message{
		ConversationID: conversationID,
		SenderID:       caller.ID,
		ReceiverID:     receiverID,
		Text:           text,
	}
	message.ID, err = s.store.InsertMessage(ctx, message)
	if err != nil {
		return store.Message{}, err
	}
	return message, nil
}

// ListMessages returns the messages exchanged with a peer.
func (s *Service) ListMessages(ctx context.Context, caller *access.Caller, peerID int64, desc bool) ([]store.Message, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}

	exists, err := s.store.UserExists(ctx, peerID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, notFound("user", peerID)
	}

	conversationID, ok, err := s.store.GetConversationID(ctx, caller.ID, peerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound("conversation", peerID)
	}
	return s.store.ListConversationMessages(ctx, conversationID, desc)
}

// ListConversations returns the caller's conversations with their latest
// message.
func (s *Service) ListConversations(ctx context.Context, caller *access.Caller, desc bool) ([]store.ConversationPreview, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	return s.store.ListConversations(ctx, caller.ID, desc)
}
