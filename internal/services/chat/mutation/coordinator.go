// Package mutation turns user intents into object store writes.
package mutation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/message"

	apperrors "github.com/designftw/graffiti-chat/internal/platform/errors"
	"github.com/designftw/graffiti-chat/internal/platform/i18n"
	"github.com/designftw/graffiti-chat/internal/platform/id"
	"github.com/designftw/graffiti-chat/internal/platform/logging"
	platformotel "github.com/designftw/graffiti-chat/internal/platform/otel"
	"github.com/designftw/graffiti-chat/internal/platform/timeouts"
	"github.com/designftw/graffiti-chat/internal/services/chat/gateway"
	"github.com/designftw/graffiti-chat/internal/services/chat/object"
	"github.com/designftw/graffiti-chat/internal/services/shared/username"
)

// LocalStore is the current view, patched optimistically before writes reach
// the store.
type LocalStore interface {
	// Patch sets key on the object with id in view and returns the result.
	// ok is false when the object is not in view; nothing is inserted.
	Patch(id, key string, value any) (patched object.Raw, ok bool)
	// Generation identifies the current view.
	Generation() uint64
}

// Target scopes a send.
type Target struct {
	Private   bool
	Recipient string
	Channel   string
}

// EditState is the in-progress edit, if any.
type EditState struct {
	ID   string
	Text string
	// Generation is the view generation the edit was opened in.
	Generation uint64
}

// Active reports whether an edit is open.
func (e EditState) Active() bool { return e.ID != "" }

// ReadResult summarizes a MarkAllRead pass.
type ReadResult struct {
	Updated int
	// Err joins the failed updates. Local state keeps the read flags.
	Err error
}

// ClaimOutcome distinguishes the three claim results.
type ClaimOutcome int

const (
	ClaimFailed ClaimOutcome = iota
	ClaimClaimed
	ClaimTaken
)

func (o ClaimOutcome) String() string {
	switch o {
	case ClaimClaimed:
		return "claimed"
	case ClaimTaken:
		return "taken"
	default:
		return "failed"
	}
}

// ClaimResult is the user-visible result of ClaimUsername.
type ClaimResult struct {
	Outcome  ClaimOutcome
	Username string
	Message  string
	// Err is set for ClaimFailed.
	Err error
}

// Config wires a Coordinator.
type Config struct {
	Self    string
	Stream  gateway.ObjectStream
	Claimer gateway.NameClaimer
	Local   LocalStore
	Logger  *slog.Logger
	Tracer  trace.Tracer
	Locale  string
	Now     func() time.Time
	NewID   func() (string, error)
}

// Coordinator issues writes on behalf of the local user.
type Coordinator struct {
	self    string
	stream  gateway.ObjectStream
	claimer gateway.NameClaimer
	local   LocalStore
	logger  *slog.Logger
	tracer  trace.Tracer
	printer *message.Printer
	now     func() time.Time
	newID   func() (string, error)

	mu   sync.Mutex
	edit EditState
}

// New builds a Coordinator.
func New(cfg Config) *Coordinator {
	c := &Coordinator{
		self:    cfg.Self,
		stream:  cfg.Stream,
		claimer: cfg.Claimer,
		local:   cfg.Local,
		logger:  logging.OrDiscard(cfg.Logger),
		tracer:  cfg.Tracer,
		printer: i18n.Printer(cfg.Locale),
		now:     cfg.Now,
		newID:   cfg.NewID,
	}
	if c.tracer == nil {
		c.tracer = platformotel.Tracer()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.newID == nil {
		c.newID = id.NewID
	}
	return c
}

// Send creates a note. The note reaches the view through the store echo.
func (c *Coordinator) Send(ctx context.Context, text string, target Target) (object.Raw, error) {
	if text == "" {
		return nil, apperrors.Validation(apperrors.CodeMessageEmpty, "message text is empty")
	}
	if target.Private && target.Recipient == "" {
		return nil, apperrors.Validation(apperrors.CodeRecipientRequired, "private message without recipient")
	}
	if !target.Private && target.Channel == "" {
		return nil, apperrors.Validation(apperrors.CodeChannelEmpty, "public message without channel")
	}

	noteID, err := c.newID()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnknown, "generate note id", err)
	}
	raw := object.Raw{
		object.FieldID:        noteID,
		object.FieldType:      object.TypeNote,
		object.FieldContent:   text,
		object.FieldActor:     c.self,
		object.FieldPublished: object.FormatTime(c.now()),
	}
	if target.Private {
		raw[object.FieldBto] = []any{target.Recipient}
		raw[object.FieldContext] = []any{c.self, target.Recipient}
	} else {
		raw[object.FieldContext] = []any{target.Channel}
	}

	err = c.write(ctx, "create", noteID, func(ctx context.Context) error {
		return c.stream.Create(ctx, raw)
	})
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// Remove deletes note from the store.
func (c *Coordinator) Remove(ctx context.Context, note object.Note) error {
	if note.ID == "" {
		return apperrors.Validation(apperrors.CodeObjectInvalid, "note has no id")
	}
	return c.write(ctx, "remove", note.ID, func(ctx context.Context) error {
		return c.stream.Remove(ctx, note.ID)
	})
}

// BeginEdit opens an edit seeded with the note content.
func (c *Coordinator) BeginEdit(note object.Note) EditState {
	gen := c.generation()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.edit = EditState{ID: note.ID, Text: note.Content, Generation: gen}
	return c.edit
}

// SetEditText updates the draft of the open edit.
func (c *Coordinator) SetEditText(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.edit.Active() {
		c.edit.Text = text
	}
}

// EditState returns the open edit.
func (c *Coordinator) EditState() EditState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.edit
}

// CancelEdit discards the open edit.
func (c *Coordinator) CancelEdit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.edit = EditState{}
}

// CommitEdit replaces the content of the note currently in view, locally and
// then in the store. An empty text leaves the edit open. A note that left the
// view, or an edit opened in an earlier view, is not written.
func (c *Coordinator) CommitEdit(ctx context.Context, note object.Note, text string) error {
	if text == "" {
		return apperrors.Validation(apperrors.CodeMessageEmpty, "edited text is empty")
	}
	if note.ID == "" {
		return apperrors.Validation(apperrors.CodeObjectInvalid, "note has no id")
	}

	c.mu.Lock()
	edit := c.edit
	if edit.ID == note.ID {
		c.edit = EditState{}
	}
	c.mu.Unlock()

	if edit.ID == note.ID && edit.Generation != c.generation() {
		return apperrors.New(apperrors.CodeNotFound, "note is no longer in view")
	}
	updated, ok := c.patch(note, object.FieldContent, text)
	if !ok {
		return apperrors.New(apperrors.CodeNotFound, "note is no longer in view")
	}

	return c.write(ctx, "update", note.ID, func(ctx context.Context) error {
		return c.stream.Update(ctx, updated)
	})
}

// MarkAllRead flags every unread note still in view as read, one update per
// note.
func (c *Coordinator) MarkAllRead(ctx context.Context, notes []object.Note) ReadResult {
	var (
		result ReadResult
		errs   []error
	)
	for _, note := range notes {
		if note.Read || note.ID == "" {
			continue
		}
		updated, ok := c.patch(note, object.FieldRead, true)
		if !ok {
			continue
		}
		err := c.write(ctx, "update", note.ID, func(ctx context.Context) error {
			return c.stream.Update(ctx, updated)
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		result.Updated++
	}
	result.Err = errors.Join(errs...)
	return result
}

// ClaimUsername asks the naming service to bind requested to the local user.
// A taken name is an outcome, not an error.
func (c *Coordinator) ClaimUsername(ctx context.Context, requested string) (ClaimResult, error) {
	handle, err := username.Canonicalize(requested)
	if err != nil {
		return ClaimResult{}, err
	}

	ctx, span := c.tracer.Start(ctx, "chat.claim_username", trace.WithAttributes(
		attribute.String("chat.username", handle),
	))
	defer span.End()

	claimCtx, cancel := context.WithTimeout(ctx, timeouts.Claim)
	defer cancel()

	resp, err := c.claimer.RequestUsername(claimCtx, handle)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "claim failed")
		c.logger.WarnContext(ctx, "claim username", "username", handle, "error", err)
		return ClaimResult{
			Outcome:  ClaimFailed,
			Username: handle,
			Message:  c.printer.Sprintf(i18n.KeyClaimFailed),
			Err:      apperrors.Wrap(apperrors.CodeUnavailable, "claim username", err),
		}, nil
	}
	if !resp.Success {
		span.SetAttributes(attribute.String("chat.claim_outcome", ClaimTaken.String()))
		c.logger.InfoContext(ctx, "username taken", "username", handle)
		return ClaimResult{
			Outcome:  ClaimTaken,
			Username: handle,
			Message:  c.printer.Sprintf(i18n.KeyClaimTaken),
		}, nil
	}
	span.SetAttributes(attribute.String("chat.claim_outcome", ClaimClaimed.String()))
	c.logger.InfoContext(ctx, "username claimed", "username", handle)
	return ClaimResult{
		Outcome:  ClaimClaimed,
		Username: handle,
		Message:  c.printer.Sprintf(i18n.KeyClaimSuccess),
	}, nil
}

// patch sets key on the current object behind note. Without a local view the
// note's own copy is used.
func (c *Coordinator) patch(note object.Note, key string, value any) (object.Raw, bool) {
	if c.local == nil {
		if note.Raw == nil {
			return nil, false
		}
		return note.Raw.With(key, value), true
	}
	return c.local.Patch(note.ID, key, value)
}

func (c *Coordinator) generation() uint64 {
	if c.local == nil {
		return 0
	}
	return c.local.Generation()
}

func (c *Coordinator) write(ctx context.Context, op, objectID string, fn func(context.Context) error) error {
	ctx, span := c.tracer.Start(ctx, "chat.store."+op, trace.WithAttributes(
		attribute.String("chat.object_id", objectID),
	))
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, op+" failed")
		c.logger.ErrorContext(ctx, "store write", "op", op, "object_id", objectID, "error", err)
		return apperrors.Wrap(apperrors.CodeUnavailable, op+" object", err)
	}
	c.logger.DebugContext(ctx, "store write", "op", op, "object_id", objectID)
	return nil
}
