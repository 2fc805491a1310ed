// Package app composes the chat view-model: the active conversation, its
// message projection, outgoing mutations and recipient search.
package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/message"

	apperrors "github.com/designftw/graffiti-chat/internal/platform/errors"
	"github.com/designftw/graffiti-chat/internal/platform/i18n"
	"github.com/designftw/graffiti-chat/internal/platform/logging"
	"github.com/designftw/graffiti-chat/internal/services/chat/conversation"
	"github.com/designftw/graffiti-chat/internal/services/chat/gateway"
	"github.com/designftw/graffiti-chat/internal/services/chat/identity"
	"github.com/designftw/graffiti-chat/internal/services/chat/mutation"
	"github.com/designftw/graffiti-chat/internal/services/chat/object"
	"github.com/designftw/graffiti-chat/internal/services/chat/projection"
	"github.com/designftw/graffiti-chat/internal/services/chat/watch"
)

// StaleSearchPolicy decides what happens to a search that settles after the
// conversation context changed.
type StaleSearchPolicy int

const (
	// ApplyStaleSearches sets the recipient whenever a search finds an actor,
	// even if the context switched while it was in flight.
	ApplyStaleSearches StaleSearchPolicy = iota
	// DiscardStaleSearches ignores found actors from an older generation.
	DiscardStaleSearches
)

// Config wires a View.
type Config struct {
	Self     string
	Stream   gateway.ObjectStream
	Resolver gateway.IdentityResolver
	Claimer  gateway.NameClaimer
	Logger   *slog.Logger
	Tracer   trace.Tracer
	Locale   string
	// Usernames seeds the encountered handle index.
	Usernames         []string
	StaleSearchPolicy StaleSearchPolicy
	Now               func() time.Time
	NewID             func() (string, error)
}

// Snapshot is an immutable copy of everything the chat screen shows.
type Snapshot struct {
	Self              string
	Channel           string
	Private           bool
	Context           []string
	Generation        uint64
	Recipient         string
	Messages          []object.Note
	Unread            bool
	HasNewMessages    bool
	Searching         bool
	SearchMessage     string
	ClaimMessage      string
	Edit              mutation.EditState
	SearchPrefix      string
	Usernames         []string
	FilteredUsernames []string
}

// View is the chat view-model. Every transition recomputes the projection
// and publishes a fresh Snapshot to watchers.
type View struct {
	self     string
	logger   *slog.Logger
	policy   StaleSearchPolicy
	printer  *message.Printer
	conv     *conversation.Controller
	mut      *mutation.Coordinator
	search   *identity.Searcher
	watchers *watch.Broadcaster[Snapshot]

	// publishMu orders snapshot computation with delivery.
	publishMu sync.Mutex

	mu            sync.Mutex
	recipient     string
	hasNew        bool
	searchMessage string
	claimMessage  string
	prefix        string
}

// New builds a View. Call Start to open the initial subscription.
func New(cfg Config) *View {
	logger := logging.OrDiscard(cfg.Logger)
	v := &View{
		self:     cfg.Self,
		logger:   logger,
		policy:   cfg.StaleSearchPolicy,
		printer:  i18n.Printer(cfg.Locale),
		watchers: watch.New[Snapshot](),
	}
	v.conv = conversation.New(conversation.Config{
		Self:     cfg.Self,
		Stream:   cfg.Stream,
		Logger:   logger,
		OnChange: v.handleChange,
		Now:      cfg.Now,
	})
	v.mut = mutation.New(mutation.Config{
		Self:    cfg.Self,
		Stream:  cfg.Stream,
		Claimer: cfg.Claimer,
		Local:   v.conv,
		Logger:  logger,
		Tracer:  cfg.Tracer,
		Locale:  cfg.Locale,
		Now:     cfg.Now,
		NewID:   cfg.NewID,
	})
	v.search = identity.NewSearcher(identity.Config{
		Resolver:   cfg.Resolver,
		Index:      identity.NewIndex(cfg.Usernames...),
		Logger:     logger,
		Tracer:     cfg.Tracer,
		Locale:     cfg.Locale,
		Generation: v.conv.Generation,
		OnSettled:  v.settleSearch,
	})
	return v
}

// Start subscribes to the default channel.
func (v *View) Start(ctx context.Context) error {
	err := v.conv.Start(ctx)
	v.publish()
	return err
}

// Close tears down the subscription and closes watchers.
func (v *View) Close() error {
	err := v.conv.Close()
	v.watchers.Close()
	return err
}

// Snapshot computes the current view.
func (v *View) Snapshot() Snapshot {
	state := v.conv.State()

	v.mu.Lock()
	defer v.mu.Unlock()

	notes := projection.Messages(state.Objects, projection.Filter{
		Private:   state.Private,
		Recipient: v.recipient,
	})
	usernames := v.search.Index().Handles()
	return Snapshot{
		Self:              v.self,
		Channel:           state.Channel,
		Private:           state.Private,
		Context:           state.Context,
		Generation:        state.Generation,
		Recipient:         v.recipient,
		Messages:          notes,
		Unread:            projection.Unread(notes, v.hasNew),
		HasNewMessages:    v.hasNew,
		Searching:         v.search.Searching(),
		SearchMessage:     v.searchMessage,
		ClaimMessage:      v.claimMessage,
		Edit:              v.mut.EditState(),
		SearchPrefix:      v.prefix,
		Usernames:         usernames,
		FilteredUsernames: projection.FilterUsernames(usernames, v.prefix),
	}
}

// Watch streams snapshots. The channel always holds the latest one.
func (v *View) Watch() (<-chan Snapshot, func()) {
	return v.watchers.Watch(v.Snapshot())
}

func (v *View) publish() {
	v.publishMu.Lock()
	defer v.publishMu.Unlock()
	v.watchers.Publish(v.Snapshot())
}

func (v *View) handleChange(change conversation.Change) {
	if change.Reset || change.NewMessage {
		v.mu.Lock()
		if change.Reset {
			v.hasNew = false
		}
		if change.NewMessage {
			v.hasNew = true
		}
		v.mu.Unlock()
	}
	v.publish()
}

// SetChannel switches the public channel.
func (v *View) SetChannel(ctx context.Context, channel string) error {
	err := v.conv.SetChannel(ctx, channel)
	v.publish()
	return err
}

// SetPrivate toggles private messaging.
func (v *View) SetPrivate(ctx context.Context, private bool) error {
	err := v.conv.SetPrivate(ctx, private)
	v.publish()
	return err
}

// SetRecipient picks the private thread partner.
func (v *View) SetRecipient(actorID string) {
	v.mu.Lock()
	v.recipient = actorID
	v.mu.Unlock()
	v.publish()
}

// Send posts text to the active conversation.
func (v *View) Send(ctx context.Context, text string) error {
	state := v.conv.State()
	v.mu.Lock()
	target := mutation.Target{
		Private:   state.Private,
		Recipient: v.recipient,
		Channel:   state.Channel,
	}
	v.mu.Unlock()

	_, err := v.mut.Send(ctx, text, target)
	return err
}

// Remove deletes note from the store.
func (v *View) Remove(ctx context.Context, note object.Note) error {
	return v.mut.Remove(ctx, note)
}

// BeginEdit opens an edit of note.
func (v *View) BeginEdit(note object.Note) mutation.EditState {
	state := v.mut.BeginEdit(note)
	v.publish()
	return state
}

// SetEditText updates the open edit draft.
func (v *View) SetEditText(text string) {
	v.mut.SetEditText(text)
	v.publish()
}

// CancelEdit closes the open edit.
func (v *View) CancelEdit() {
	v.mut.CancelEdit()
	v.publish()
}

// CommitEdit saves text as the content of note.
func (v *View) CommitEdit(ctx context.Context, note object.Note, text string) error {
	err := v.mut.CommitEdit(ctx, note, text)
	v.publish()
	return err
}

// MarkAllRead flags every shown note as read and clears the new-message
// indicator.
func (v *View) MarkAllRead(ctx context.Context) mutation.ReadResult {
	notes := v.Snapshot().Messages
	v.mu.Lock()
	v.hasNew = false
	v.mu.Unlock()

	result := v.mut.MarkAllRead(ctx, notes)
	if result.Err != nil {
		v.logger.WarnContext(ctx, "mark all read", "updated", result.Updated, "error", result.Err)
	}
	v.publish()
	return result
}

// SetSearchPrefix filters the encountered usernames.
func (v *View) SetSearchPrefix(prefix string) {
	v.mu.Lock()
	v.prefix = prefix
	v.mu.Unlock()
	v.publish()
}

// SelectUsername fills the search box with handle.
func (v *View) SelectUsername(handle string) {
	v.SetSearchPrefix(handle)
}

// SearchForActor resolves handle, or the search box when handle is empty,
// and sets the recipient on success.
func (v *View) SearchForActor(ctx context.Context, handle string) *identity.Task {
	v.mu.Lock()
	if handle == "" {
		handle = v.prefix
	}
	v.searchMessage = ""
	v.mu.Unlock()

	task := v.search.Search(ctx, handle)
	v.publish()
	return task
}

func (v *View) settleSearch(result identity.SearchResult) identity.SearchResult {
	if result.Outcome == identity.Found && v.policy == DiscardStaleSearches &&
		result.Generation != v.conv.Generation() {
		result.Stale = true
		result.Message = v.printer.Sprintf(i18n.KeySearchStale, result.Handle)
	}

	v.mu.Lock()
	if result.Outcome == identity.Found && !result.Stale {
		v.recipient = result.ActorID
	}
	v.searchMessage = result.Message
	v.mu.Unlock()

	v.publish()
	return result
}

// ClaimTask is the handle of one in-flight username claim.
type ClaimTask struct {
	done   chan struct{}
	result mutation.ClaimResult
	err    error
}

// Done is closed once the claim settles.
func (t *ClaimTask) Done() <-chan struct{} { return t.done }

// Wait blocks until the claim settles or ctx ends. err is only set for
// invalid handles and for ctx.
func (t *ClaimTask) Wait(ctx context.Context) (mutation.ClaimResult, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		return mutation.ClaimResult{}, ctx.Err()
	}
}

// ClaimUsername requests requested for the local user in the background.
func (v *View) ClaimUsername(ctx context.Context, requested string) *ClaimTask {
	task := &ClaimTask{done: make(chan struct{})}
	go func() {
		defer close(task.done)
		task.result, task.err = v.mut.ClaimUsername(ctx, requested)

		v.mu.Lock()
		if task.err != nil {
			v.claimMessage = v.describeLocked(task.err)
		} else {
			v.claimMessage = task.result.Message
		}
		v.mu.Unlock()
		v.publish()
	}()
	return task
}

// Describe renders err for the user. Validation codes have localized text.
func (v *View) Describe(err error) string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.describeLocked(err)
}

func (v *View) describeLocked(err error) string {
	if err == nil {
		return ""
	}
	if apperrors.IsValidation(err) {
		return v.printer.Sprintf(i18n.ErrorKey(string(apperrors.GetCode(err))))
	}
	return err.Error()
}
