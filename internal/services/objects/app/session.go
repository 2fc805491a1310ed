package app

import (
	"context"

	"github.com/designftw/graffiti-chat/internal/services/chat/gateway"
	"github.com/designftw/graffiti-chat/internal/services/chat/object"
)

// Session is the hub bound to one actor. It satisfies the chat gateway
// contracts in-process.
type Session struct {
	hub   *Hub
	actor string
}

// Actor is the identity every write is stamped with.
func (s *Session) Actor() string { return s.actor }

// Subscribe streams the visible objects in contextIDs, starting with the
// stored backlog.
func (s *Session) Subscribe(ctx context.Context, contextIDs []string, deliver func(gateway.Event)) (gateway.Subscription, error) {
	return s.hub.subscribe(ctx, s.actor, contextIDs, deliver)
}

func (s *Session) Create(ctx context.Context, obj object.Raw) error {
	_, err := s.hub.create(ctx, s.actor, obj)
	return err
}

func (s *Session) Update(ctx context.Context, obj object.Raw) error {
	_, err := s.hub.update(ctx, s.actor, obj)
	return err
}

func (s *Session) Remove(ctx context.Context, id string) error {
	return s.hub.remove(ctx, s.actor, id)
}

func (s *Session) UsernameToActor(ctx context.Context, handle string) (string, bool, error) {
	return s.hub.resolve(ctx, handle)
}

func (s *Session) ActorToUsername(ctx context.Context, actorID string) (string, bool, error) {
	return s.hub.reverse(ctx, actorID)
}

func (s *Session) RequestUsername(ctx context.Context, handle string) (gateway.ClaimResult, error) {
	return s.hub.claim(ctx, s.actor, handle)
}

var (
	_ gateway.ObjectStream     = (*Session)(nil)
	_ gateway.IdentityResolver = (*Session)(nil)
	_ gateway.NameClaimer      = (*Session)(nil)
)
