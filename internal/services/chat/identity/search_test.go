package identity

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeResolver struct {
	actors map[string]string
	err    error
	gate   chan struct{}
}

func (r *fakeResolver) UsernameToActor(ctx context.Context, handle string) (string, bool, error) {
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	}
	if r.err != nil {
		return "", false, r.err
	}
	actor, ok := r.actors[handle]
	return actor, ok, nil
}

func (r *fakeResolver) ActorToUsername(context.Context, string) (string, bool, error) {
	return "", false, nil
}

func waitResult(t *testing.T, task *Task) SearchResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	result, err := task.Wait(ctx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	return result
}

func TestSearchOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		resolver *fakeResolver
		handle   string
		want     Outcome
		actor    string
		message  string
	}{
		{
			name:     "found",
			resolver: &fakeResolver{actors: map[string]string{"bob": "actor:bob"}},
			handle:   "bob",
			want:     Found,
			actor:    "actor:bob",
			message:  "Found user with username: bob",
		},
		{
			name:     "not found",
			resolver: &fakeResolver{},
			handle:   "bob",
			want:     NotFound,
			message:  "No user found with this username.",
		},
		{
			name:     "invalid handle",
			resolver: &fakeResolver{},
			handle:   "!",
			want:     NotFound,
			message:  "No user found with this username.",
		},
		{
			name:     "transport error",
			resolver: &fakeResolver{err: errors.New("offline")},
			handle:   "bob",
			want:     Failed,
			message:  "Error searching for user. Please try again.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSearcher(Config{Resolver: tt.resolver})
			result := waitResult(t, s.Search(context.Background(), tt.handle))
			if result.Outcome != tt.want {
				t.Fatalf("outcome = %s, want %s", result.Outcome, tt.want)
			}
			if result.ActorID != tt.actor {
				t.Fatalf("actor = %q, want %q", result.ActorID, tt.actor)
			}
			if result.Message != tt.message {
				t.Fatalf("message = %q, want %q", result.Message, tt.message)
			}
			if s.Searching() {
				t.Fatal("searching flag stuck after settle")
			}
		})
	}
}

func TestSearchFoundAppendsToIndexOnce(t *testing.T) {
	resolver := &fakeResolver{actors: map[string]string{"bob": "actor:bob"}}
	s := NewSearcher(Config{Resolver: resolver, Index: NewIndex("alice")})

	waitResult(t, s.Search(context.Background(), "bob"))
	waitResult(t, s.Search(context.Background(), "@Bob"))

	handles := s.Index().Handles()
	if len(handles) != 2 || handles[1] != "bob" {
		t.Fatalf("handles = %v, want [alice bob]", handles)
	}
}

func TestSearchingWhileInFlight(t *testing.T) {
	gate := make(chan struct{})
	resolver := &fakeResolver{actors: map[string]string{"bob": "actor:bob"}, gate: gate}
	settled := make(chan SearchResult, 1)
	s := NewSearcher(Config{
		Resolver:   resolver,
		Generation: func() uint64 { return 4 },
		OnSettled: func(r SearchResult) SearchResult {
			settled <- r
			return r
		},
	})

	task := s.Search(context.Background(), "bob")
	if !s.Searching() {
		t.Fatal("expected searching while resolver is blocked")
	}
	select {
	case <-task.Done():
		t.Fatal("task settled before resolver returned")
	default:
	}

	close(gate)
	result := waitResult(t, task)
	if result.Generation != 4 {
		t.Fatalf("generation = %d, want 4", result.Generation)
	}
	if got := <-settled; got.ActorID != "actor:bob" {
		t.Fatalf("settled actor = %q, want %q", got.ActorID, "actor:bob")
	}
	if s.Searching() {
		t.Fatal("searching flag stuck after settle")
	}
}

func TestSearchLocalizedMessage(t *testing.T) {
	resolver := &fakeResolver{actors: map[string]string{"bob": "actor:bob"}}
	s := NewSearcher(Config{Resolver: resolver, Locale: "pt-BR"})
	result := waitResult(t, s.Search(context.Background(), "bob"))
	if result.Message != "Usuário encontrado: bob" {
		t.Fatalf("message = %q", result.Message)
	}
}

func TestTaskWaitHonorsContext(t *testing.T) {
	resolver := &fakeResolver{gate: make(chan struct{})}
	s := NewSearcher(Config{Resolver: resolver})
	searchCtx, stop := context.WithCancel(context.Background())
	defer stop()
	task := s.Search(searchCtx, "bob")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := task.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	stop()
	if result := waitResult(t, task); result.Outcome != Failed {
		t.Fatalf("outcome = %s, want failed", result.Outcome)
	}
}
