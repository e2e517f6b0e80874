package pebblestore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"meerchat/pkg/models"
	"meerchat/pkg/store"
)

func openTest(t *testing.T, start time.Time) *DB {
	t.Helper()
	now := start
	d, err := OpenInMemory(WithNoSync(), WithClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	}))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestInsertAndListNewestFirst(t *testing.T) {
	ctx := context.Background()
	d := openTest(t, time.Unix(1700000000, 0))

	var inserted []models.Message
	for i := 0; i < 5; i++ {
		m, err := d.InsertMessage(ctx, models.NewMessage{Channel: "general", UID: "u1", Body: "hi"})
		require.NoError(t, err)
		inserted = append(inserted, m)
	}
	_, err := d.InsertMessage(ctx, models.NewMessage{Channel: "other", UID: "u1", Body: "elsewhere"})
	require.NoError(t, err)

	page, err := d.ListMessages(ctx, models.PageRequest{Channel: "general", Limit: 3})
	require.NoError(t, err)
	require.Len(t, page, 3)
	require.Equal(t, inserted[4].ID, page[0].ID)
	require.Equal(t, inserted[2].ID, page[2].ID)

	before := page[2].CreatedAt
	older, err := d.ListMessages(ctx, models.PageRequest{Channel: "general", Before: &before, Limit: 3})
	require.NoError(t, err)
	require.Len(t, older, 2)
	require.Equal(t, inserted[1].ID, older[0].ID)
	require.Equal(t, inserted[0].ID, older[1].ID)
}

func TestBeforeIsExclusive(t *testing.T) {
	ctx := context.Background()
	d := openTest(t, time.Unix(1700000000, 0))
	m, err := d.InsertMessage(ctx, models.NewMessage{Channel: "general", UID: "u1", Body: "only"})
	require.NoError(t, err)

	at := m.CreatedAt
	page, err := d.ListMessages(ctx, models.PageRequest{Channel: "general", Before: &at, Limit: 10})
	require.NoError(t, err)
	require.Empty(t, page)
}

func TestCreatedAtMonotonicWithFrozenClock(t *testing.T) {
	ctx := context.Background()
	frozen := time.Unix(1700000000, 0)
	d, err := OpenInMemory(WithNoSync(), WithClock(func() time.Time { return frozen }))
	require.NoError(t, err)
	defer d.Close()

	a, err := d.InsertMessage(ctx, models.NewMessage{Channel: "c", UID: "u", Body: "a"})
	require.NoError(t, err)
	b, err := d.InsertMessage(ctx, models.NewMessage{Channel: "c", UID: "u", Body: "b"})
	require.NoError(t, err)
	if !b.CreatedAt.After(a.CreatedAt) {
		t.Fatalf("created_at not increasing: %v then %v", a.CreatedAt, b.CreatedAt)
	}
}

func TestFindReply(t *testing.T) {
	ctx := context.Background()
	d := openTest(t, time.Unix(1700000000, 0))
	parent, err := d.InsertMessage(ctx, models.NewMessage{Channel: "c", UID: "u", Body: "@meerchat hi"})
	require.NoError(t, err)

	_, err = d.FindReply(ctx, parent.ID)
	require.True(t, errors.Is(err, store.ErrNotFound))

	reply, err := d.InsertMessage(ctx, models.NewMessage{Channel: "c", UID: "ai", Body: "hello", IsAIResponse: true, ParentMessageID: parent.ID})
	require.NoError(t, err)

	got, err := d.FindReply(ctx, parent.ID)
	require.NoError(t, err)
	require.Equal(t, reply.ID, got.ID)

	byID, err := d.GetMessage(ctx, parent.ID)
	require.NoError(t, err)
	require.Equal(t, "@meerchat hi", byID.Body)
}

func TestInvalidChannelRejected(t *testing.T) {
	d := openTest(t, time.Unix(1700000000, 0))
	_, err := d.InsertMessage(context.Background(), models.NewMessage{Channel: "a:b", UID: "u", Body: "x"})
	if err == nil {
		t.Fatalf("expected error for channel with separator")
	}
}
