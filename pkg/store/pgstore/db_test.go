package pgstore

import (
	"context"
	"errors"
	"os"
	"testing"

	"meerchat/pkg/models"
	"meerchat/pkg/store"
)

// requires a disposable database; set MEERCHAT_TEST_POSTGRES_DSN to run
func openTest(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("MEERCHAT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MEERCHAT_TEST_POSTGRES_DSN not set")
	}
	d, err := Open(context.Background(), dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestMessagesRoundTrip(t *testing.T) {
	ctx := context.Background()
	d := openTest(t)
	channel := "pgtest-" + t.Name()

	a, err := d.InsertMessage(ctx, models.NewMessage{Channel: channel, UID: "u1", Body: "first"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	b, err := d.InsertMessage(ctx, models.NewMessage{Channel: channel, UID: "u1", Body: "second"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	page, err := d.ListMessages(ctx, models.PageRequest{Channel: channel, Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 || page[0].ID != b.ID || page[1].ID != a.ID {
		t.Fatalf("unexpected page order: %+v", page)
	}
	if _, err := d.GetMessage(ctx, "missing-id"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
