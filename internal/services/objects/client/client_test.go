package client

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	apperrors "github.com/designftw/graffiti-chat/internal/platform/errors"
	"github.com/designftw/graffiti-chat/internal/services/chat/gateway"
	"github.com/designftw/graffiti-chat/internal/services/chat/object"
	objectsapp "github.com/designftw/graffiti-chat/internal/services/objects/app"
	objectsqlite "github.com/designftw/graffiti-chat/internal/services/objects/storage/sqlite"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := objectsqlite.Open(filepath.Join(t.TempDir(), "objects.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	srv := httptest.NewServer(objectsapp.NewHandler(objectsapp.NewHub(objectsapp.HubConfig{Store: store}), nil))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, actor string) *Client {
	t.Helper()
	c, err := Dial(context.Background(), srv.URL, actor)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

type events struct {
	mu   sync.Mutex
	got  []gateway.Event
	seen chan struct{}
}

func newEvents() *events {
	return &events{seen: make(chan struct{}, 64)}
}

func (e *events) deliver(ev gateway.Event) {
	e.mu.Lock()
	e.got = append(e.got, ev)
	e.mu.Unlock()
	e.seen <- struct{}{}
}

func (e *events) wait(t *testing.T, n int) []gateway.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		e.mu.Lock()
		if len(e.got) >= n {
			out := append([]gateway.Event(nil), e.got...)
			e.mu.Unlock()
			return out
		}
		e.mu.Unlock()
		select {
		case <-e.seen:
		case <-deadline:
			t.Fatalf("timed out waiting for %d events", n)
		}
	}
}

func note(content string) object.Raw {
	return object.Raw{
		object.FieldType:    object.TypeNote,
		object.FieldContent: content,
		object.FieldContext: []any{"default"},
	}
}

func TestEndpoint(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, wantURL, wantOrigin string
	}{
		{in: "http://localhost:8090", wantURL: "ws://localhost:8090/ws?actor=actor%3Aa", wantOrigin: "http://localhost:8090"},
		{in: "wss://objects.example/ws", wantURL: "wss://objects.example/ws?actor=actor%3Aa", wantOrigin: "https://objects.example"},
	}
	for _, test := range tests {
		gotURL, gotOrigin, err := endpoint(test.in, "actor:a")
		if err != nil {
			t.Fatalf("endpoint(%q): %v", test.in, err)
		}
		if gotURL != test.wantURL || gotOrigin != test.wantOrigin {
			t.Fatalf("endpoint(%q) = %q, %q, want %q, %q", test.in, gotURL, gotOrigin, test.wantURL, test.wantOrigin)
		}
	}
	if _, _, err := endpoint("ftp://x", "actor:a"); err == nil {
		t.Fatal("expected unsupported scheme error")
	}
}

func TestDialRequiresActor(t *testing.T) {
	t.Parallel()
	if _, err := Dial(context.Background(), "http://localhost:1", " "); err == nil {
		t.Fatal("expected error for empty actor")
	}
}

func TestSubscribeReceivesBacklogAndLiveEvents(t *testing.T) {
	t.Parallel()
	srv := newServer(t)
	alice := dial(t, srv, "actor:alice")
	bob := dial(t, srv, "actor:bob")
	ctx := context.Background()

	backlog := newEvents()
	warmup, err := alice.Subscribe(ctx, []string{"default"}, backlog.deliver)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := alice.Create(ctx, note("first")); err != nil {
		t.Fatalf("create: %v", err)
	}
	backlog.wait(t, 1)
	_ = warmup.Close()

	got := newEvents()
	sub, err := bob.Subscribe(ctx, []string{"default"}, got.deliver)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()
	if evs := got.wait(t, 1); evs[0].Kind != gateway.EventPut {
		t.Fatalf("backlog kind = %v", evs[0].Kind)
	}

	if err := alice.Create(ctx, note("second")); err != nil {
		t.Fatalf("create: %v", err)
	}
	evs := got.wait(t, 2)
	content, _ := evs[1].Object.String(object.FieldContent)
	if content != "second" || evs[1].Object.Actor() != "actor:alice" {
		t.Fatalf("live event = %v", evs[1].Object)
	}

	if err := alice.Remove(ctx, evs[1].Object.ID()); err != nil {
		t.Fatalf("remove: %v", err)
	}
	evs = got.wait(t, 3)
	if evs[2].Kind != gateway.EventRemove || evs[2].ID != evs[1].Object.ID() {
		t.Fatalf("remove event = %+v", evs[2])
	}
}

func TestNames(t *testing.T) {
	t.Parallel()
	srv := newServer(t)
	alice := dial(t, srv, "actor:alice")
	bob := dial(t, srv, "actor:bob")
	ctx := context.Background()

	result, err := alice.RequestUsername(ctx, "alice")
	if err != nil || !result.Success {
		t.Fatalf("claim = %+v, err = %v", result, err)
	}
	result, err = bob.RequestUsername(ctx, "alice")
	if err != nil || result.Success {
		t.Fatalf("taken claim = %+v, err = %v", result, err)
	}
	if _, err := bob.RequestUsername(ctx, "!"); !apperrors.IsCode(err, apperrors.CodeUsernameInvalid) {
		t.Fatalf("err = %v, want %s", err, apperrors.CodeUsernameInvalid)
	}

	actor, found, err := bob.UsernameToActor(ctx, "alice")
	if err != nil || !found || actor != "actor:alice" {
		t.Fatalf("resolve = %q %v %v", actor, found, err)
	}
	if _, found, err := bob.UsernameToActor(ctx, "nobody"); err != nil || found {
		t.Fatalf("resolve nobody = %v %v", found, err)
	}
	name, found, err := bob.ActorToUsername(ctx, "actor:alice")
	if err != nil || !found || name != "alice" {
		t.Fatalf("reverse = %q %v %v", name, found, err)
	}
}

func TestClosedClientFailsCalls(t *testing.T) {
	t.Parallel()
	srv := newServer(t)
	c := dial(t, srv, "actor:alice")
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, _, err := c.UsernameToActor(context.Background(), "alice"); !apperrors.IsCode(err, apperrors.CodeClosed) {
		t.Fatalf("err = %v, want %s", err, apperrors.CodeClosed)
	}
	if err := c.Create(context.Background(), note("late")); !apperrors.IsCode(err, apperrors.CodeClosed) {
		t.Fatalf("err = %v, want %s", err, apperrors.CodeClosed)
	}
	select {
	case <-c.Done():
	default:
		t.Fatal("expected Done to be closed")
	}
}
