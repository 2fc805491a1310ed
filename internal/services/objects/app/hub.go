// Package app serves the object store: context subscriptions with private
// delivery, owner-checked writes and the username registry.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	apperrors "github.com/designftw/graffiti-chat/internal/platform/errors"
	"github.com/designftw/graffiti-chat/internal/platform/id"
	"github.com/designftw/graffiti-chat/internal/platform/logging"
	"github.com/designftw/graffiti-chat/internal/services/chat/gateway"
	"github.com/designftw/graffiti-chat/internal/services/chat/object"
	"github.com/designftw/graffiti-chat/internal/services/objects/storage"
	"github.com/designftw/graffiti-chat/internal/services/shared/username"
)

// HubConfig wires a Hub.
type HubConfig struct {
	Store  storage.Store
	Logger *slog.Logger
	Now    func() time.Time
	NewID  func() (string, error)
}

// Hub owns the subscriber registry and serializes writes with their fan-out,
// so every subscriber observes events in store order.
type Hub struct {
	store  storage.Store
	logger *slog.Logger
	now    func() time.Time
	newID  func() (string, error)

	// emitMu is held across a store write and its delivery.
	emitMu sync.Mutex

	mu     sync.Mutex
	subs   map[uint64]*subscriber
	nextID uint64
}

type subscriber struct {
	actor   string
	context []string
	deliver func(gateway.Event)
}

// NewHub builds a Hub over store.
func NewHub(cfg HubConfig) *Hub {
	h := &Hub{
		store:  cfg.Store,
		logger: logging.OrDiscard(cfg.Logger),
		now:    cfg.Now,
		newID:  cfg.NewID,
		subs:   make(map[uint64]*subscriber),
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.newID == nil {
		h.newID = id.NewID
	}
	return h
}

// Session returns the object store as seen by actor.
func (h *Hub) Session(actor string) *Session {
	return &Session{hub: h, actor: actor}
}

// visibleTo reports whether actor may see obj. Objects with a bto list are
// private to their author and recipients.
func visibleTo(obj storage.Object, actor string) bool {
	if len(obj.Bto) == 0 || obj.Actor == actor {
		return true
	}
	return slices.Contains(obj.Bto, actor)
}

func (s *subscriber) matches(obj storage.Object) bool {
	if !visibleTo(obj, s.actor) {
		return false
	}
	for _, contextID := range obj.Context {
		if slices.Contains(s.context, contextID) {
			return true
		}
	}
	return false
}

func (h *Hub) subscribe(ctx context.Context, actor string, contextIDs []string, deliver func(gateway.Event)) (gateway.Subscription, error) {
	if deliver == nil {
		return nil, apperrors.New(apperrors.CodeObjectInvalid, "deliver func is required")
	}
	h.emitMu.Lock()
	defer h.emitMu.Unlock()

	stored, err := h.store.ListObjectsByContext(ctx, contextIDs)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnavailable, "list objects", err)
	}

	sub := &subscriber{actor: actor, context: slices.Clone(contextIDs), deliver: deliver}
	h.mu.Lock()
	h.nextID++
	subID := h.nextID
	h.subs[subID] = sub
	h.mu.Unlock()

	for _, obj := range stored {
		if !sub.matches(obj) {
			continue
		}
		raw, err := object.Decode(obj.Data)
		if err != nil || raw == nil {
			h.logger.WarnContext(ctx, "skip undecodable object", "object_id", obj.ID, "error", err)
			continue
		}
		deliver(gateway.Event{Kind: gateway.EventPut, Object: raw})
	}

	var once sync.Once
	return gateway.SubscriptionFunc(func() error {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, subID)
			h.mu.Unlock()
		})
		return nil
	}), nil
}

func (h *Hub) subscribers() []*subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		out = append(out, sub)
	}
	return out
}

// encode stamps the server-owned fields on raw and converts it to a storage
// record.
func (h *Hub) encode(actor string, raw object.Raw) (storage.Object, object.Raw, error) {
	raw = raw.With(object.FieldActor, actor)
	published, ok := raw.Published()
	if !ok {
		published = h.now().UTC()
		raw[object.FieldPublished] = object.FormatTime(published)
	}
	contexts, _ := raw.Strings(object.FieldContext)
	bto, _ := raw.Strings(object.FieldBto)
	data, err := json.Marshal(raw)
	if err != nil {
		return storage.Object{}, nil, apperrors.Wrap(apperrors.CodeObjectInvalid, "encode object", err)
	}
	return storage.Object{
		ID:        raw.ID(),
		Actor:     actor,
		Context:   contexts,
		Bto:       bto,
		Published: published,
		Data:      data,
		UpdatedAt: h.now().UTC(),
	}, raw, nil
}

func (h *Hub) create(ctx context.Context, actor string, raw object.Raw) (object.Raw, error) {
	if raw == nil {
		return nil, apperrors.New(apperrors.CodeObjectInvalid, "object is required")
	}
	if raw.ID() == "" {
		objectID, err := h.newID()
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeUnknown, "generate object id", err)
		}
		raw = raw.With(object.FieldID, objectID)
	}

	h.emitMu.Lock()
	defer h.emitMu.Unlock()

	_, err := h.store.GetObject(ctx, raw.ID())
	switch {
	case err == nil:
		return nil, apperrors.New(apperrors.CodeAlreadyExists, "object already exists")
	case !errors.Is(err, storage.ErrNotFound):
		return nil, apperrors.Wrap(apperrors.CodeUnavailable, "get object", err)
	}

	record, stamped, err := h.encode(actor, raw)
	if err != nil {
		return nil, err
	}
	if err := h.store.PutObject(ctx, record); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnavailable, "put object", err)
	}
	h.logger.DebugContext(ctx, "object created", "object_id", record.ID, "actor", actor)
	h.emit(record, nil, stamped)
	return stamped, nil
}

func (h *Hub) update(ctx context.Context, actor string, raw object.Raw) (object.Raw, error) {
	if raw == nil || raw.ID() == "" {
		return nil, apperrors.New(apperrors.CodeObjectInvalid, "object id is required")
	}

	h.emitMu.Lock()
	defer h.emitMu.Unlock()

	previous, err := h.writable(ctx, actor, raw)
	if err != nil {
		return nil, err
	}
	record, stamped, err := h.encode(previous.Actor, raw)
	if err != nil {
		return nil, err
	}
	if err := h.store.PutObject(ctx, record); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnavailable, "put object", err)
	}
	h.logger.DebugContext(ctx, "object updated", "object_id", record.ID, "actor", actor)
	h.emit(record, &previous, stamped)
	return stamped, nil
}

func (h *Hub) remove(ctx context.Context, actor, objectID string) error {
	if objectID == "" {
		return apperrors.New(apperrors.CodeObjectInvalid, "object id is required")
	}

	h.emitMu.Lock()
	defer h.emitMu.Unlock()

	previous, err := h.owned(ctx, actor, objectID)
	if err != nil {
		return err
	}
	if err := h.store.DeleteObject(ctx, objectID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.New(apperrors.CodeNotFound, "object not found")
		}
		return apperrors.Wrap(apperrors.CodeUnavailable, "delete object", err)
	}
	h.logger.DebugContext(ctx, "object removed", "object_id", objectID, "actor", actor)
	for _, sub := range h.subscribers() {
		if sub.matches(previous) {
			sub.deliver(gateway.Event{Kind: gateway.EventRemove, ID: objectID})
		}
	}
	return nil
}

func (h *Hub) owned(ctx context.Context, actor, objectID string) (storage.Object, error) {
	existing, err := h.load(ctx, objectID)
	if err != nil {
		return storage.Object{}, err
	}
	if existing.Actor != actor {
		return storage.Object{}, apperrors.New(apperrors.CodeNotOwner, "object belongs to another actor")
	}
	return existing, nil
}

// writable loads the object raw replaces. Its owner may change anything;
// another actor who can see it may only change the read flag.
func (h *Hub) writable(ctx context.Context, actor string, raw object.Raw) (storage.Object, error) {
	existing, err := h.load(ctx, raw.ID())
	if err != nil {
		return storage.Object{}, err
	}
	if existing.Actor == actor {
		return existing, nil
	}
	if visibleTo(existing, actor) && onlyReadChanged(existing, raw) {
		return existing, nil
	}
	return storage.Object{}, apperrors.New(apperrors.CodeNotOwner, "object belongs to another actor")
}

// onlyReadChanged reports whether next equals the stored object apart from
// a boolean read flag.
func onlyReadChanged(existing storage.Object, next object.Raw) bool {
	var stored object.Raw
	if err := json.Unmarshal(existing.Data, &stored); err != nil {
		return false
	}
	read, ok := next[object.FieldRead]
	if _, isBool := read.(bool); !ok || !isBool {
		return false
	}
	want, err := json.Marshal(stored.With(object.FieldRead, read))
	if err != nil {
		return false
	}
	got, err := json.Marshal(next)
	if err != nil {
		return false
	}
	return string(got) == string(want)
}

func (h *Hub) load(ctx context.Context, objectID string) (storage.Object, error) {
	existing, err := h.store.GetObject(ctx, objectID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Object{}, apperrors.New(apperrors.CodeNotFound, "object not found")
		}
		return storage.Object{}, apperrors.Wrap(apperrors.CodeUnavailable, "get object", err)
	}
	return existing, nil
}

// emit delivers current to subscribers that can see it and a removal to
// subscribers that could only see previous. Caller holds emitMu.
func (h *Hub) emit(current storage.Object, previous *storage.Object, raw object.Raw) {
	for _, sub := range h.subscribers() {
		switch {
		case sub.matches(current):
			sub.deliver(gateway.Event{Kind: gateway.EventPut, Object: raw.Clone()})
		case previous != nil && sub.matches(*previous):
			sub.deliver(gateway.Event{Kind: gateway.EventRemove, ID: current.ID})
		}
	}
}

func (h *Hub) resolve(ctx context.Context, handle string) (string, bool, error) {
	canonical, err := username.Canonicalize(handle)
	if err != nil {
		return "", false, nil
	}
	actor, err := h.store.GetActorByName(ctx, canonical)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", false, nil
		}
		return "", false, apperrors.Wrap(apperrors.CodeUnavailable, "resolve username", err)
	}
	return actor, true, nil
}

func (h *Hub) reverse(ctx context.Context, actor string) (string, bool, error) {
	name, err := h.store.GetNameByActor(ctx, actor)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", false, nil
		}
		return "", false, apperrors.Wrap(apperrors.CodeUnavailable, "reverse username", err)
	}
	return name, true, nil
}

func (h *Hub) claim(ctx context.Context, actor, handle string) (gateway.ClaimResult, error) {
	canonical, err := username.Canonicalize(handle)
	if err != nil {
		return gateway.ClaimResult{}, err
	}
	if err := h.store.ClaimName(ctx, canonical, actor); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			h.logger.InfoContext(ctx, "username taken", "username", canonical, "actor", actor)
			return gateway.ClaimResult{Success: false}, nil
		}
		return gateway.ClaimResult{}, apperrors.Wrap(apperrors.CodeUnavailable, "claim username", err)
	}
	h.logger.InfoContext(ctx, "username claimed", "username", canonical, "actor", actor)
	return gateway.ClaimResult{Success: true}, nil
}
