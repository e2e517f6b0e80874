package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"meerchat/pkg/changefeed"
	"meerchat/pkg/chat"
	"meerchat/pkg/feed"
	"meerchat/pkg/models"
)

type fakeServer struct {
	mu      sync.Mutex
	queries []string
	conns   chan *websocket.Conn
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	t.Helper()
	fs := &fakeServer{conns: make(chan *websocket.Conn, 4)}
	up := websocket.Upgrader{}
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/channels/general/messages", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"authentication required"}`))
			return
		}
		fs.mu.Lock()
		fs.queries = append(fs.queries, r.URL.RawQuery)
		fs.mu.Unlock()
		json.NewEncoder(w).Encode(models.PageResponse{Messages: []models.Message{
			{ID: "m2", Channel: "general", CreatedAt: base.Add(2 * time.Second)},
			{ID: "m1", Channel: "general", CreatedAt: base.Add(time.Second)},
		}})
	})
	mux.HandleFunc("/api/channels/general/stream", func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fs.conns <- conn
	})
	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "secret1" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"success":false,"message":"Invalid login credentials"}`))
			return
		}
		w.Write([]byte(`{"success":true,"user":{"id":"u1","name":"Meerkat"},"session":{"access_token":"tok","token_type":"bearer"}}`))
	})
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-CSRF-Token") != "tok" {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"error":"invalid request"}`))
			return
		}
		w.Write([]byte(`{"response":"hi there","messageId":"m9","timestamp":"2024-05-01T12:00:00Z"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return fs, srv
}

func TestClientLoginAndList(t *testing.T) {
	fs, srv := newFakeServer(t)
	c := New(srv.URL+"/", "")
	ctx := context.Background()

	_, err := c.ListMessages(ctx, models.PageRequest{Channel: "general"})
	require.True(t, errors.Is(err, ErrUnauthorized))

	_, err = c.Login(ctx, "a@example.com", "wrong")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, "Invalid login credentials", se.Message)

	res, err := c.Login(ctx, "a@example.com", "secret1")
	require.NoError(t, err)
	require.Equal(t, "u1", res.User.ID)
	require.Equal(t, "tok", c.Token())

	before := time.Date(2024, 5, 1, 12, 0, 3, 500, time.UTC)
	msgs, err := c.ListMessages(ctx, models.PageRequest{Channel: "general", Before: &before, Limit: 2})
	require.NoError(t, err)
	require.Equal(t, "m2", msgs[0].ID)
	fs.mu.Lock()
	require.Equal(t, []string{"before=2024-05-01T12%3A00%3A03.0000005Z&limit=2"}, fs.queries)
	fs.mu.Unlock()

	out, err := c.Post(ctx, chat.PostRequest{Message: "@meerchat hi", Channel: "general"})
	require.NoError(t, err)
	require.Equal(t, "hi there", out.Response)
}

func TestClientSubscribe(t *testing.T) {
	fs, srv := newFakeServer(t)
	c := New(srv.URL, "tok")

	got := make(chan changefeed.Event, 4)
	cancel, err := c.Subscribe("general", func(ev changefeed.Event) { got <- ev })
	require.NoError(t, err)

	conn := <-fs.conns
	defer conn.Close()
	require.NoError(t, conn.WriteJSON(changefeed.Event{Type: changefeed.EventInsert, Table: changefeed.TableChats, Message: models.Message{ID: "m3", Channel: "general"}}))

	select {
	case ev := <-got:
		require.Equal(t, "m3", ev.Message.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
	cancel()
	cancel()
}

type nopView struct{}

func (nopView) ScrollToBottom(bool) {}
func (nopView) ScrollBy(float64)    {}
func (nopView) SetAlert(bool)       {}

func TestClientDrivesSynchronizer(t *testing.T) {
	fs, srv := newFakeServer(t)
	c := New(srv.URL, "tok")
	s := feed.New(c, c, nopView{}, feed.WithPageSize(5))
	defer s.Close()

	require.NoError(t, s.Open(context.Background(), "general"))
	conn := <-fs.conns
	defer conn.Close()

	st := s.Snapshot()
	require.Equal(t, []string{"m1", "m2"}, []string{st.Messages[0].ID, st.Messages[1].ID})
	require.False(t, st.HasMore)

	live := models.Message{ID: "m4", Channel: "general", CreatedAt: time.Date(2024, 5, 1, 12, 0, 9, 0, time.UTC)}
	require.NoError(t, conn.WriteJSON(changefeed.Event{Type: changefeed.EventInsert, Table: changefeed.TableChats, Message: live}))
	require.Eventually(t, func() bool { return len(s.Snapshot().Messages) == 3 }, 2*time.Second, 5*time.Millisecond)
}
