// Package profile keeps the live display profile of one actor.
package profile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/designftw/graffiti-chat/internal/platform/errors"
	"github.com/designftw/graffiti-chat/internal/platform/id"
	"github.com/designftw/graffiti-chat/internal/platform/logging"
	platformotel "github.com/designftw/graffiti-chat/internal/platform/otel"
	"github.com/designftw/graffiti-chat/internal/services/chat/gateway"
	"github.com/designftw/graffiti-chat/internal/services/chat/object"
	"github.com/designftw/graffiti-chat/internal/services/chat/projection"
	"github.com/designftw/graffiti-chat/internal/services/chat/watch"
	"github.com/designftw/graffiti-chat/internal/services/shared/username"
)

// Snapshot is the observable profile state.
type Snapshot struct {
	Actor       string
	Username    string
	DisplayName string
	Profile     object.Profile
	HasProfile  bool
	Editing     bool
	Draft       string
}

// Config wires a Projection.
type Config struct {
	// Self is the local user; only Self may rename Actor.
	Self   string
	Actor  string
	Stream gateway.ObjectStream
	Logger *slog.Logger
	Tracer trace.Tracer
	Now    func() time.Time
	NewID  func() (string, error)
}

// Projection folds the objects in the actor's context into one profile.
type Projection struct {
	self     string
	actor    string
	stream   gateway.ObjectStream
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
	newID    func() (string, error)
	watchers *watch.Broadcaster[Snapshot]

	// startMu serializes Start and Close.
	startMu sync.Mutex

	mu      sync.Mutex
	live    *object.Collection
	sub     gateway.Subscription
	closed  bool
	editing bool
	draft   string
}

// New builds a Projection. Call Start to subscribe.
func New(cfg Config) *Projection {
	p := &Projection{
		self:     cfg.Self,
		actor:    cfg.Actor,
		stream:   cfg.Stream,
		logger:   logging.OrDiscard(cfg.Logger),
		tracer:   cfg.Tracer,
		now:      cfg.Now,
		newID:    cfg.NewID,
		watchers: watch.New[Snapshot](),
		live:     object.NewCollection(),
	}
	if p.tracer == nil {
		p.tracer = platformotel.Tracer()
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.newID == nil {
		p.newID = id.NewID
	}
	return p
}

// Start subscribes to the actor's context. Later calls are no-ops.
func (p *Projection) Start(ctx context.Context) error {
	p.startMu.Lock()
	defer p.startMu.Unlock()

	p.mu.Lock()
	started, closed := p.sub != nil, p.closed
	p.mu.Unlock()
	if closed {
		return apperrors.New(apperrors.CodeClosed, "profile projection closed")
	}
	if started {
		return nil
	}

	sub, err := p.stream.Subscribe(ctx, []string{p.actor}, p.deliver)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeUnavailable, "subscribe profile", err)
	}
	p.mu.Lock()
	p.sub = sub
	p.mu.Unlock()
	return nil
}

// Close stops the subscription and closes watchers.
func (p *Projection) Close() error {
	p.startMu.Lock()
	defer p.startMu.Unlock()

	p.mu.Lock()
	sub := p.sub
	p.sub = nil
	p.closed = true
	p.mu.Unlock()
	p.watchers.Close()
	if sub == nil {
		return nil
	}
	return sub.Close()
}

func (p *Projection) deliver(ev gateway.Event) {
	p.mu.Lock()
	switch ev.Kind {
	case gateway.EventPut:
		p.live.Put(ev.Object)
	case gateway.EventRemove:
		p.live.Remove(ev.ID)
	}
	snap := p.snapshotLocked()
	p.mu.Unlock()
	p.watchers.Publish(snap)
}

// Current returns the actor's most recent profile.
func (p *Projection) Current() (object.Profile, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentLocked()
}

func (p *Projection) currentLocked() (object.Profile, bool) {
	return projection.ProfileFor(p.live.Snapshot(), p.actor)
}

// Username is the handle derived from the actor id.
func (p *Projection) Username() string {
	return username.FromActor(p.actor)
}

// DisplayName is the profile name, or the username when no profile exists.
func (p *Projection) DisplayName() string {
	if current, ok := p.Current(); ok && current.Name != "" {
		return current.Name
	}
	return p.Username()
}

// Snapshot returns the current state.
func (p *Projection) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Projection) snapshotLocked() Snapshot {
	snap := Snapshot{
		Actor:    p.actor,
		Username: username.FromActor(p.actor),
		Editing:  p.editing,
		Draft:    p.draft,
	}
	snap.Profile, snap.HasProfile = p.currentLocked()
	snap.DisplayName = snap.Username
	if snap.HasProfile && snap.Profile.Name != "" {
		snap.DisplayName = snap.Profile.Name
	}
	return snap
}

// Watch streams snapshots, latest value first.
func (p *Projection) Watch() (<-chan Snapshot, func()) {
	return p.watchers.Watch(p.Snapshot())
}

// SetName renames the actor. An existing profile is updated; otherwise a new
// one is created and inserted locally so a second call updates it.
func (p *Projection) SetName(ctx context.Context, name string) error {
	if p.actor != p.self {
		return apperrors.Validation(apperrors.CodeProfileNotOwned, "profile belongs to another actor")
	}
	if name == "" {
		return apperrors.Validation(apperrors.CodeProfileNameEmpty, "profile name is empty")
	}

	p.mu.Lock()
	current, exists := p.currentLocked()
	var raw object.Raw
	if exists {
		raw = current.Raw.With(object.FieldName, name)
	} else {
		profileID, err := p.newID()
		if err != nil {
			p.mu.Unlock()
			return apperrors.Wrap(apperrors.CodeUnknown, "generate profile id", err)
		}
		raw = object.Raw{
			object.FieldID:        profileID,
			object.FieldType:      object.TypeProfile,
			object.FieldName:      name,
			object.FieldActor:     p.self,
			object.FieldContext:   []any{p.self},
			object.FieldPublished: object.FormatTime(p.now()),
		}
	}
	p.live.Put(raw)
	snap := p.snapshotLocked()
	p.mu.Unlock()
	p.watchers.Publish(snap)

	op := "update"
	if !exists {
		op = "create"
	}
	ctx, span := p.tracer.Start(ctx, "chat.profile."+op, trace.WithAttributes(
		attribute.String("chat.object_id", raw.ID()),
	))
	defer span.End()

	var err error
	if exists {
		err = p.stream.Update(ctx, raw)
	} else {
		err = p.stream.Create(ctx, raw)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, op+" failed")
		p.logger.ErrorContext(ctx, "profile write", "op", op, "object_id", raw.ID(), "error", err)
		return apperrors.Wrap(apperrors.CodeUnavailable, op+" profile", err)
	}
	p.logger.DebugContext(ctx, "profile write", "op", op, "object_id", raw.ID())
	return nil
}

// BeginEdit opens the name editor seeded with the display name.
func (p *Projection) BeginEdit() string {
	p.mu.Lock()
	p.editing = true
	current, ok := p.currentLocked()
	if ok {
		p.draft = current.Name
	} else {
		p.draft = username.FromActor(p.actor)
	}
	draft := p.draft
	snap := p.snapshotLocked()
	p.mu.Unlock()
	p.watchers.Publish(snap)
	return draft
}

// Editing reports whether the name editor is open.
func (p *Projection) Editing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.editing
}

// CancelEdit closes the editor without writing.
func (p *Projection) CancelEdit() {
	p.mu.Lock()
	p.editing = false
	p.draft = ""
	snap := p.snapshotLocked()
	p.mu.Unlock()
	p.watchers.Publish(snap)
}

// SaveName writes text and closes the editor. Validation failures keep it
// open.
func (p *Projection) SaveName(ctx context.Context, text string) error {
	err := p.SetName(ctx, text)
	if apperrors.IsValidation(err) {
		return err
	}
	p.CancelEdit()
	return err
}
