// Package chat implements message posting and the assistant reply path.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"meerchat/pkg/auth"
	"meerchat/pkg/config"
	"meerchat/pkg/logger"
	"meerchat/pkg/metrics"
	"meerchat/pkg/models"
	"meerchat/pkg/ratelimit"
	"meerchat/pkg/store"
	"meerchat/pkg/store/keys"
)

// NoMentionMessage is returned when a message does not address the assistant.
const NoMentionMessage = "message saved; assistant not mentioned"

// PostRequest is the body of POST /api/chat. Either Channel, or
// ParentMessageID with UserID, is set.
type PostRequest struct {
	Message         string `json:"message"`
	Channel         string `json:"channel"`
	ParentMessageID string `json:"parentMessageId,omitempty"`
	UserID          string `json:"userId,omitempty"`
}

// PostResult is the 200 response of POST /api/chat. MessageID names the
// assistant reply when one was produced, otherwise the stored user message.
type PostResult struct {
	Response  string    `json:"response,omitempty"`
	Message   string    `json:"message,omitempty"`
	MessageID string    `json:"messageId"`
	ParentID  string    `json:"parentMessageId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ProfileEnsurer lazily creates the author's profile.
type ProfileEnsurer interface {
	Get(ctx context.Context, userID string) (models.Profile, error)
}

// Completer produces the assistant reply text.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type Service struct {
	messages  store.MessageStore
	profiles  ProfileEnsurer
	limiter   ratelimit.Limiter
	completer Completer

	channels     map[string]bool
	maxLength    int
	aiUserID     string
	systemPrompt string
	fallback     string
}

func NewService(messages store.MessageStore, profiles ProfileEnsurer, limiter ratelimit.Limiter, completer Completer, chatCfg config.ChatConfig, llmCfg config.LLMConfig) *Service {
	s := &Service{
		messages:     messages,
		profiles:     profiles,
		limiter:      limiter,
		completer:    completer,
		maxLength:    chatCfg.MaxMessageLength,
		aiUserID:     chatCfg.AIUserID,
		systemPrompt: llmCfg.SystemPrompt,
		fallback:     llmCfg.Fallback,
	}
	if len(chatCfg.Channels) > 0 {
		s.channels = make(map[string]bool, len(chatCfg.Channels))
		for _, c := range chatCfg.Channels {
			s.channels[c] = true
		}
	}
	return s
}

// Post validates and stores a message and, when the assistant is mentioned,
// stores its reply.
func (s *Service) Post(ctx context.Context, sess auth.Session, req PostRequest) (PostResult, error) {
	if req.UserID != "" && req.UserID != sess.UserID {
		logger.Warn("chat_user_mismatch", "session_user", sess.UserID, "claimed_user", req.UserID)
		return PostResult{}, fail(ErrForbidden, "user does not match session")
	}
	if err := s.validate(req); err != nil {
		return PostResult{}, err
	}
	body := sanitize(req.Message)
	if strings.TrimSpace(body) == "" {
		return PostResult{}, fail(ErrValidation, "message is required")
	}

	d, err := s.limiter.Allow(ctx, sess.UserID)
	if err != nil {
		// a broken limiter backend must not block posting
		logger.Error("ratelimit_check_failed", "user_id", sess.UserID, "error", err)
	} else if !d.Allowed {
		logger.Warn("chat_rate_limited", "user_id", sess.UserID, "retry_after", d.RetryAfter.String())
		return PostResult{}, fail(ErrRateLimited, "too many requests; please wait a moment")
	}

	if _, err := s.profiles.Get(ctx, sess.UserID); err != nil {
		logger.Error("profile_ensure_failed", "user_id", sess.UserID, "error", err)
		return PostResult{}, wrap(ErrStore, err)
	}

	if req.ParentMessageID != "" {
		return s.replyToParent(ctx, sess, req.ParentMessageID)
	}

	msg, err := s.messages.InsertMessage(ctx, models.NewMessage{
		Channel: req.Channel,
		UID:     sess.UserID,
		Body:    body,
	})
	if err != nil {
		logger.Error("message_save_failed", "channel", req.Channel, "user_id", sess.UserID, "error", err)
		return PostResult{}, wrap(ErrStore, err)
	}
	metrics.MessagesSaved.WithLabelValues("user").Inc()

	if !Mentioned(body) {
		return PostResult{Message: NoMentionMessage, MessageID: msg.ID, Timestamp: msg.CreatedAt}, nil
	}
	return s.reply(ctx, msg)
}

func (s *Service) validate(req PostRequest) error {
	if strings.TrimSpace(req.Message) == "" {
		return fail(ErrValidation, "message is required")
	}
	if s.maxLength > 0 && utf8.RuneCountInString(req.Message) > s.maxLength {
		return fail(ErrValidation, "message is too long")
	}
	if req.ParentMessageID != "" {
		return nil
	}
	return s.CheckChannel(req.Channel)
}

// CheckChannel validates a channel name against the key format and the
// configured channel list.
func (s *Service) CheckChannel(channel string) error {
	if channel == "" {
		return fail(ErrValidation, "channel is required")
	}
	if keys.ValidateChannel(channel) != nil {
		return fail(ErrValidation, "invalid channel")
	}
	if s.channels != nil && !s.channels[channel] {
		return fail(ErrValidation, "unknown channel")
	}
	return nil
}

// replyToParent serves the parent-message form: no new user row is
// written, the assistant always answers the parent, and an existing reply
// is returned instead of generating another.
func (s *Service) replyToParent(ctx context.Context, sess auth.Session, parentID string) (PostResult, error) {
	parent, err := s.messages.GetMessage(ctx, parentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return PostResult{}, fail(ErrParentNotFound, "message not found")
		}
		return PostResult{}, wrap(ErrStore, err)
	}
	if parent.UID != sess.UserID {
		return PostResult{}, fail(ErrForbidden, "message belongs to another user")
	}

	existing, err := s.messages.FindReply(ctx, parent.ID)
	switch {
	case err == nil:
		return PostResult{Response: existing.Body, MessageID: existing.ID, ParentID: parent.ID, Timestamp: existing.CreatedAt}, nil
	case !errors.Is(err, store.ErrNotFound):
		return PostResult{}, wrap(ErrStore, err)
	}

	return s.reply(ctx, parent)
}

func (s *Service) reply(ctx context.Context, parent models.Message) (PostResult, error) {
	prompt := StripMention(parent.Body)
	text, err := s.completer.Complete(ctx, s.systemPrompt, prompt)
	if err != nil {
		metrics.AssistantRequests.WithLabelValues("error").Inc()
		logger.Error("assistant_completion_failed", "message_id", parent.ID, "error", err)
		return PostResult{}, wrap(ErrCompletion, err)
	}
	if strings.TrimSpace(text) == "" {
		metrics.AssistantRequests.WithLabelValues("fallback").Inc()
		text = s.fallback
	} else {
		metrics.AssistantRequests.WithLabelValues("ok").Inc()
	}

	reply, err := s.messages.InsertMessage(ctx, models.NewMessage{
		Channel:         parent.Channel,
		UID:             s.aiUserID,
		Body:            text,
		IsAIResponse:    true,
		ParentMessageID: parent.ID,
	})
	if err != nil {
		logger.Error("assistant_reply_save_failed", "parent_id", parent.ID, "error", err)
		return PostResult{}, wrap(ErrReplyStore, fmt.Errorf("insert reply: %w", err))
	}
	metrics.MessagesSaved.WithLabelValues("assistant").Inc()
	logger.Info("assistant_replied", "parent_id", parent.ID, "reply_id", reply.ID, "channel", parent.Channel)

	return PostResult{Response: text, MessageID: reply.ID, ParentID: parent.ID, Timestamp: reply.CreatedAt}, nil
}
