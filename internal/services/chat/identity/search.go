// Package identity resolves handles to actors for the recipient picker.
package identity

import (
	"context"
	"log/slog"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/message"

	apperrors "github.com/designftw/graffiti-chat/internal/platform/errors"
	"github.com/designftw/graffiti-chat/internal/platform/i18n"
	"github.com/designftw/graffiti-chat/internal/platform/logging"
	platformotel "github.com/designftw/graffiti-chat/internal/platform/otel"
	"github.com/designftw/graffiti-chat/internal/platform/timeouts"
	"github.com/designftw/graffiti-chat/internal/services/chat/gateway"
	"github.com/designftw/graffiti-chat/internal/services/shared/username"
)

// Outcome classifies a settled search.
type Outcome int

const (
	Failed Outcome = iota
	Found
	NotFound
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case NotFound:
		return "not_found"
	default:
		return "failed"
	}
}

// SearchResult is the settled value of a search.
type SearchResult struct {
	Handle  string
	Outcome Outcome
	ActorID string
	Message string
	// Generation is the conversation generation when the search started.
	Generation uint64
	// Stale is set by consumers that discard results from an older
	// generation.
	Stale bool
	Err   error
}

// Task is the handle of one in-flight search.
type Task struct {
	done   chan struct{}
	result SearchResult
}

// Done is closed once the search settles.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the search settles or ctx ends.
func (t *Task) Wait(ctx context.Context) (SearchResult, error) {
	select {
	case <-t.done:
		return t.result, nil
	case <-ctx.Done():
		return SearchResult{}, ctx.Err()
	}
}

// Config wires a Searcher.
type Config struct {
	Resolver gateway.IdentityResolver
	Index    *Index
	Logger   *slog.Logger
	Tracer   trace.Tracer
	Locale   string
	// Generation reports the current conversation generation.
	Generation func() uint64
	// OnSettled runs on the search goroutine after the in-flight count drops
	// and before the task completes. Its return value becomes the task
	// result.
	OnSettled func(SearchResult) SearchResult
}

// Searcher runs handle lookups concurrently.
type Searcher struct {
	resolver   gateway.IdentityResolver
	index      *Index
	logger     *slog.Logger
	tracer     trace.Tracer
	printer    *message.Printer
	generation func() uint64
	onSettled  func(SearchResult) SearchResult
	inflight   atomic.Int64
}

// NewSearcher builds a Searcher. A nil Index gets a fresh one.
func NewSearcher(cfg Config) *Searcher {
	s := &Searcher{
		resolver:   cfg.Resolver,
		index:      cfg.Index,
		logger:     logging.OrDiscard(cfg.Logger),
		tracer:     cfg.Tracer,
		printer:    i18n.Printer(cfg.Locale),
		generation: cfg.Generation,
		onSettled:  cfg.OnSettled,
	}
	if s.index == nil {
		s.index = NewIndex()
	}
	if s.tracer == nil {
		s.tracer = platformotel.Tracer()
	}
	if s.generation == nil {
		s.generation = func() uint64 { return 0 }
	}
	if s.onSettled == nil {
		s.onSettled = func(r SearchResult) SearchResult { return r }
	}
	return s
}

// Index returns the handle index fed by successful searches.
func (s *Searcher) Index() *Index { return s.index }

// Searching reports whether any search is in flight.
func (s *Searcher) Searching() bool { return s.inflight.Load() > 0 }

// Search resolves handle in the background. The returned task settles with
// Found, NotFound or Failed; it never stays pending past the resolve timeout.
func (s *Searcher) Search(ctx context.Context, handle string) *Task {
	task := &Task{done: make(chan struct{})}
	gen := s.generation()
	s.inflight.Add(1)

	go func() {
		defer close(task.done)

		task.result = s.onSettled(s.resolve(ctx, handle, gen))
	}()
	return task
}

func (s *Searcher) resolve(ctx context.Context, input string, gen uint64) SearchResult {
	defer s.inflight.Add(-1)
	result := SearchResult{Handle: input, Generation: gen}

	handle, err := username.Canonicalize(input)
	if err != nil {
		result.Outcome = NotFound
		result.Message = s.printer.Sprintf(i18n.KeySearchNotFound)
		return result
	}
	result.Handle = handle

	ctx, span := s.tracer.Start(ctx, "chat.resolve_username", trace.WithAttributes(
		attribute.String("chat.username", handle),
	))
	defer span.End()

	resolveCtx, cancel := context.WithTimeout(ctx, timeouts.Resolve)
	defer cancel()

	actorID, found, err := s.resolver.UsernameToActor(resolveCtx, handle)
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve failed")
		s.logger.WarnContext(ctx, "resolve username", "username", handle, "error", err)
		result.Outcome = Failed
		result.Message = s.printer.Sprintf(i18n.KeySearchFailed)
		result.Err = apperrors.Wrap(apperrors.CodeUnavailable, "resolve username", err)
	case !found || actorID == "":
		result.Outcome = NotFound
		result.Message = s.printer.Sprintf(i18n.KeySearchNotFound)
	default:
		s.index.Add(handle)
		result.Outcome = Found
		result.ActorID = actorID
		result.Message = s.printer.Sprintf(i18n.KeySearchFound, handle)
		s.logger.DebugContext(ctx, "resolved username", "username", handle, "actor", actorID)
	}
	span.SetAttributes(attribute.String("chat.search_outcome", result.Outcome.String()))
	return result
}
