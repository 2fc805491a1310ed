// Package conversation owns the active conversation context and the single
// live subscription that backs it.
package conversation

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	apperrors "github.com/designftw/graffiti-chat/internal/platform/errors"
	"github.com/designftw/graffiti-chat/internal/platform/logging"
	"github.com/designftw/graffiti-chat/internal/services/chat/gateway"
	"github.com/designftw/graffiti-chat/internal/services/chat/object"
)

// DefaultChannel is the channel shown before the user picks one.
const DefaultChannel = "default"

// Change describes one transition of the live collection.
type Change struct {
	Generation uint64
	// Reset is set when the context switched and the collection was emptied.
	Reset bool
	Event gateway.Event
	// Local marks optimistic updates applied through Apply.
	Local bool
	// NewMessage is set when a note from another actor, published after the
	// subscription opened, entered the collection.
	NewMessage bool
}

// State is a point-in-time copy of the controller.
type State struct {
	Channel    string
	Private    bool
	Context    []string
	Generation uint64
	Objects    []object.Raw
}

// Config wires a Controller.
type Config struct {
	Self     string
	Stream   gateway.ObjectStream
	Logger   *slog.Logger
	OnChange func(Change)
	Now      func() time.Time
}

// Controller switches between channel and private views. At most one
// subscription is live at any time.
type Controller struct {
	self     string
	stream   gateway.ObjectStream
	logger   *slog.Logger
	onChange func(Change)
	now      func() time.Time

	// switchMu serializes context switches end to end.
	switchMu sync.Mutex

	mu         sync.Mutex
	channel    string
	private    bool
	generation uint64
	openedAt   time.Time
	sub        gateway.Subscription
	live       *object.Collection
	closed     bool
}

// New builds a controller showing DefaultChannel. Call Start to subscribe.
func New(cfg Config) *Controller {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	onChange := cfg.OnChange
	if onChange == nil {
		onChange = func(Change) {}
	}
	return &Controller{
		self:     cfg.Self,
		stream:   cfg.Stream,
		logger:   logging.OrDiscard(cfg.Logger),
		onChange: onChange,
		now:      now,
		channel:  DefaultChannel,
		live:     object.NewCollection(),
	}
}

// Active returns the context the live subscription is scoped to.
func (c *Controller) Active() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeLocked(c.channel, c.private)
}

func (c *Controller) activeLocked(channel string, private bool) []string {
	if private {
		return []string{c.self}
	}
	return []string{channel}
}

// Generation increments on every context switch.
func (c *Controller) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// State returns a copy of the current channel, mode and live objects.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Channel:    c.channel,
		Private:    c.private,
		Context:    c.activeLocked(c.channel, c.private),
		Generation: c.generation,
		Objects:    c.live.Snapshot(),
	}
}

// Start opens the subscription for the initial context.
func (c *Controller) Start(ctx context.Context) error {
	c.switchMu.Lock()
	defer c.switchMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return apperrors.New(apperrors.CodeClosed, "conversation closed")
	}
	if c.sub != nil {
		c.mu.Unlock()
		return nil
	}
	gen := c.generation
	contextIDs := c.activeLocked(c.channel, c.private)
	c.mu.Unlock()

	return c.open(ctx, gen, contextIDs)
}

// SetChannel switches the public channel. It only resubscribes when the
// active context changes.
func (c *Controller) SetChannel(ctx context.Context, channel string) error {
	if channel == "" {
		return apperrors.Validation(apperrors.CodeChannelEmpty, "channel name is empty")
	}
	return c.switchTo(ctx, channel, nil)
}

// SetPrivate toggles private messaging.
func (c *Controller) SetPrivate(ctx context.Context, private bool) error {
	return c.switchTo(ctx, "", &private)
}

func (c *Controller) switchTo(ctx context.Context, channel string, private *bool) error {
	c.switchMu.Lock()
	defer c.switchMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return apperrors.New(apperrors.CodeClosed, "conversation closed")
	}
	nextChannel, nextPrivate := c.channel, c.private
	if channel != "" {
		nextChannel = channel
	}
	if private != nil {
		nextPrivate = *private
	}
	before := c.activeLocked(c.channel, c.private)
	after := c.activeLocked(nextChannel, nextPrivate)
	c.channel, c.private = nextChannel, nextPrivate
	if slices.Equal(before, after) {
		c.mu.Unlock()
		return nil
	}

	old := c.sub
	c.sub = nil
	c.generation++
	gen := c.generation
	c.live.Reset()
	c.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			c.logger.WarnContext(ctx, "close subscription", "context", before, "error", err)
		}
	}
	c.onChange(Change{Generation: gen, Reset: true})

	return c.open(ctx, gen, after)
}

// open subscribes for gen. Caller holds switchMu.
func (c *Controller) open(ctx context.Context, gen uint64, contextIDs []string) error {
	c.mu.Lock()
	c.openedAt = c.now()
	c.mu.Unlock()

	sub, err := c.stream.Subscribe(ctx, contextIDs, c.deliverer(gen))
	if err != nil {
		c.logger.ErrorContext(ctx, "subscribe", "context", contextIDs, "error", err)
		return apperrors.Wrap(apperrors.CodeUnavailable, "subscribe", err)
	}

	c.mu.Lock()
	if c.closed || c.generation != gen {
		c.mu.Unlock()
		_ = sub.Close()
		return nil
	}
	c.sub = sub
	c.mu.Unlock()

	c.logger.DebugContext(ctx, "subscribed", "context", contextIDs, "generation", gen)
	return nil
}

func (c *Controller) deliverer(gen uint64) func(gateway.Event) {
	return func(ev gateway.Event) {
		c.mu.Lock()
		if c.closed || c.generation != gen {
			c.mu.Unlock()
			return
		}
		change := Change{Generation: gen, Event: ev}
		switch ev.Kind {
		case gateway.EventPut:
			inserted, ok := c.live.Put(ev.Object)
			if !ok {
				c.mu.Unlock()
				return
			}
			change.NewMessage = inserted && c.isNewMessageLocked(ev.Object)
		case gateway.EventRemove:
			if !c.live.Remove(ev.ID) {
				c.mu.Unlock()
				return
			}
		default:
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
		c.onChange(change)
	}
}

func (c *Controller) isNewMessageLocked(raw object.Raw) bool {
	note, ok := object.ParseNote(raw)
	if !ok || note.Actor == c.self || !note.PublishedValid {
		return false
	}
	return note.Published.After(c.openedAt)
}

// Patch sets key on the object with id in the current view, ahead of the
// store echo, and returns the patched object. Objects that are not in view
// are left alone: a switch or a removal invalidates the optimistic update.
func (c *Controller) Patch(id, key string, value any) (object.Raw, bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, false
	}
	patched, ok := c.live.Patch(id, key, value)
	if !ok {
		c.mu.Unlock()
		return nil, false
	}
	gen := c.generation
	c.mu.Unlock()
	c.onChange(Change{
		Generation: gen,
		Event:      gateway.Event{Kind: gateway.EventPut, Object: patched.Clone(), ID: id},
		Local:      true,
	})
	return patched, true
}

// Close tears down the live subscription. Further switches fail.
func (c *Controller) Close() error {
	c.switchMu.Lock()
	defer c.switchMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()

	if sub == nil {
		return nil
	}
	return sub.Close()
}
