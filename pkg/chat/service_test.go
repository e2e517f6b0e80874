package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"meerchat/pkg/auth"
	"meerchat/pkg/config"
	"meerchat/pkg/models"
	"meerchat/pkg/profile"
	"meerchat/pkg/ratelimit"
	"meerchat/pkg/store"
	"meerchat/pkg/store/pebblestore"
)

const aiUser = "00000000-0000-4000-8000-000000000000"

type fakeCompleter struct {
	mu    sync.Mutex
	calls []string
	reply string
	err   error
}

func (f *fakeCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, user)
	return f.reply, f.err
}

type harness struct {
	svc  *Service
	db   *pebblestore.DB
	llm  *fakeCompleter
	sess auth.Session
}

func newHarness(t *testing.T, max int) *harness {
	t.Helper()
	db, err := pebblestore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	profiles := profile.NewService(db, nil, nil, config.ProfileConfig{DefaultName: "Meerkat"})
	limiter := ratelimit.NewMemory(max, time.Minute, time.Now)
	llm := &fakeCompleter{reply: "I'm great!"}
	svc := NewService(db, profiles, limiter, llm,
		config.ChatConfig{Channels: []string{"thread1", "thread2"}, MaxMessageLength: 20, AIUserID: aiUser},
		config.LLMConfig{SystemPrompt: "be a meerkat", Fallback: "no idea"},
	)
	return &harness{svc: svc, db: db, llm: llm, sess: auth.Session{UserID: "user-1"}}
}

func (h *harness) list(t *testing.T, channel string) []models.Message {
	t.Helper()
	msgs, err := h.db.ListMessages(context.Background(), models.PageRequest{Channel: channel, Limit: 50})
	require.NoError(t, err)
	return msgs
}

func TestPostWithMention(t *testing.T) {
	h := newHarness(t, 10)
	ctx := context.Background()

	res, err := h.svc.Post(ctx, h.sess, PostRequest{Message: "hello @meerchat how are you", Channel: "thread1"})
	require.Error(t, err, "message exceeds 20 runes")
	require.True(t, errors.Is(err, ErrValidation))

	h.svc.maxLength = 1000
	res, err = h.svc.Post(ctx, h.sess, PostRequest{Message: "hello @meerchat how are you", Channel: "thread1"})
	require.NoError(t, err)
	require.Equal(t, "I'm great!", res.Response)
	require.Equal(t, []string{"hello how are you"}, h.llm.calls)

	msgs := h.list(t, "thread1")
	require.Len(t, msgs, 2)
	reply, user := msgs[0], msgs[1]
	require.Equal(t, reply.ID, res.MessageID)
	require.Equal(t, user.ID, res.ParentID)
	require.Equal(t, reply.CreatedAt, res.Timestamp)
	require.True(t, reply.IsAIResponse)
	require.Equal(t, aiUser, reply.UID)
	require.Equal(t, user.ID, reply.ParentMessageID)
	require.Equal(t, "user-1", user.UID)
	require.True(t, reply.CreatedAt.After(user.CreatedAt))

	// author profile is created on first post
	p, err := h.db.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, "Meerkat", p.Name)
}

func TestPostWithoutMention(t *testing.T) {
	h := newHarness(t, 10)
	res, err := h.svc.Post(context.Background(), h.sess, PostRequest{Message: "hello meerchat", Channel: "thread2"})
	require.NoError(t, err)
	require.Equal(t, NoMentionMessage, res.Message)
	require.Empty(t, res.Response)
	require.Empty(t, h.llm.calls)
	require.Len(t, h.list(t, "thread2"), 1)
}

func TestPostSanitizes(t *testing.T) {
	h := newHarness(t, 10)
	_, err := h.svc.Post(context.Background(), h.sess, PostRequest{Message: "<i>hey</i>", Channel: "thread1"})
	require.NoError(t, err)
	msgs := h.list(t, "thread1")
	require.Len(t, msgs, 1)
	require.Equal(t, "ihey/i", msgs[0].Body)

	_, err = h.svc.Post(context.Background(), h.sess, PostRequest{Message: "<>", Channel: "thread1"})
	require.True(t, errors.Is(err, ErrValidation))
}

func TestPostValidation(t *testing.T) {
	h := newHarness(t, 10)
	cases := []struct {
		name string
		req  PostRequest
		kind error
	}{
		{"empty message", PostRequest{Message: "   ", Channel: "thread1"}, ErrValidation},
		{"missing channel", PostRequest{Message: "hi"}, ErrValidation},
		{"unknown channel", PostRequest{Message: "hi", Channel: "random"}, ErrValidation},
		{"bad channel", PostRequest{Message: "hi", Channel: "a:b"}, ErrValidation},
		{"too long", PostRequest{Message: "this message is far too long", Channel: "thread1"}, ErrValidation},
		{"other user", PostRequest{Message: "hi", Channel: "thread1", UserID: "user-2"}, ErrForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.Post(context.Background(), h.sess, tc.req)
			require.Error(t, err)
			require.True(t, errors.Is(err, tc.kind), "got %v", err)
		})
	}
	require.Empty(t, h.list(t, "thread1"))
}

func TestPostRateLimited(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := h.svc.Post(ctx, h.sess, PostRequest{Message: "hi", Channel: "thread1"})
		require.NoError(t, err)
	}
	_, err := h.svc.Post(ctx, h.sess, PostRequest{Message: "hi", Channel: "thread1"})
	require.True(t, errors.Is(err, ErrRateLimited))
	require.Len(t, h.list(t, "thread1"), 2)

	// limits are per user
	_, err = h.svc.Post(ctx, auth.Session{UserID: "user-2"}, PostRequest{Message: "hi", Channel: "thread1"})
	require.NoError(t, err)
}

func TestPostCompletionFallbackAndFailure(t *testing.T) {
	h := newHarness(t, 10)
	ctx := context.Background()

	h.llm.reply = "  "
	res, err := h.svc.Post(ctx, h.sess, PostRequest{Message: "@meerchat hi", Channel: "thread1"})
	require.NoError(t, err)
	require.Equal(t, "no idea", res.Response)

	// an empty completion, as from a response without choices
	h.llm.reply = ""
	res, err = h.svc.Post(ctx, h.sess, PostRequest{Message: "@meerchat again", Channel: "thread1"})
	require.NoError(t, err)
	require.Equal(t, "no idea", res.Response)

	h.llm.err = errors.New("upstream down")
	_, err = h.svc.Post(ctx, h.sess, PostRequest{Message: "@meerchat hi", Channel: "thread2"})
	require.True(t, errors.Is(err, ErrCompletion))
	require.Equal(t, ErrCompletion.Error(), PublicMessage(err))
	// the user message stays stored without a reply
	msgs := h.list(t, "thread2")
	require.Len(t, msgs, 1)
	require.False(t, msgs[0].IsAIResponse)
}

func TestPostParentMessage(t *testing.T) {
	h := newHarness(t, 10)
	ctx := context.Background()

	parent, err := h.db.InsertMessage(ctx, models.NewMessage{Channel: "thread1", UID: "user-1", Body: "@meerchat what is a meerkat"})
	require.NoError(t, err)

	res, err := h.svc.Post(ctx, h.sess, PostRequest{Message: "x", ParentMessageID: parent.ID, UserID: "user-1"})
	require.NoError(t, err)
	require.Equal(t, "I'm great!", res.Response)
	require.Equal(t, parent.ID, res.ParentID)
	require.NotEqual(t, parent.ID, res.MessageID)
	reply, err := h.db.GetMessage(ctx, res.MessageID)
	require.NoError(t, err)
	require.True(t, reply.IsAIResponse)
	require.Equal(t, parent.ID, reply.ParentMessageID)

	// a second request returns the stored reply without another completion
	again, err := h.svc.Post(ctx, h.sess, PostRequest{Message: "x", ParentMessageID: parent.ID})
	require.NoError(t, err)
	require.Equal(t, res.MessageID, again.MessageID)
	require.Equal(t, res.Timestamp, again.Timestamp)
	require.Len(t, h.llm.calls, 1)
	require.Len(t, h.list(t, "thread1"), 2)

	_, err = h.svc.Post(ctx, h.sess, PostRequest{Message: "x", ParentMessageID: "missing"})
	require.True(t, errors.Is(err, ErrParentNotFound))

	_, err = h.svc.Post(ctx, auth.Session{UserID: "user-2"}, PostRequest{Message: "x", ParentMessageID: parent.ID})
	require.True(t, errors.Is(err, ErrForbidden))
}

func TestErrorUnwrap(t *testing.T) {
	err := wrap(ErrStore, store.ErrClosed)
	require.True(t, errors.Is(err, ErrStore))
	require.True(t, errors.Is(err, store.ErrClosed))
	require.Equal(t, ErrStore.Error(), PublicMessage(err))
	require.Equal(t, "unexpected error", PublicMessage(errors.New("x")))
}
