// Package client speaks the object service websocket protocol and satisfies
// the chat gateway contracts remotely.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/net/websocket"

	apperrors "github.com/designftw/graffiti-chat/internal/platform/errors"
	"github.com/designftw/graffiti-chat/internal/platform/id"
	"github.com/designftw/graffiti-chat/internal/platform/logging"
	"github.com/designftw/graffiti-chat/internal/platform/timeouts"
	"github.com/designftw/graffiti-chat/internal/services/chat/gateway"
	"github.com/designftw/graffiti-chat/internal/services/chat/object"
	objectsapp "github.com/designftw/graffiti-chat/internal/services/objects/app"
)

// Option customizes Dial.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logging.OrDiscard(logger) }
}

// Client is one websocket connection bound to an actor.
type Client struct {
	conn   *websocket.Conn
	actor  string
	logger *slog.Logger

	writeMu sync.Mutex
	encoder *json.Encoder

	nextRequest atomic.Uint64

	mu      sync.Mutex
	pending map[string]chan objectsapp.Frame
	subs    map[string]func(gateway.Event)
	closed  bool

	done chan struct{}
}

// Dial connects to the object service at rawURL as actor. Both http(s) and
// ws(s) URLs are accepted; the /ws path is added when missing.
func Dial(ctx context.Context, rawURL, actor string, opts ...Option) (*Client, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return nil, errors.New("actor is required")
	}
	wsURL, origin, err := endpoint(rawURL, actor)
	if err != nil {
		return nil, err
	}
	config, err := websocket.NewConfig(wsURL, origin)
	if err != nil {
		return nil, fmt.Errorf("websocket config: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeouts.Dial)
	defer cancel()
	conn, err := config.DialContext(dialCtx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnavailable, "dial object service", err)
	}

	c := &Client{
		conn:    conn,
		actor:   actor,
		logger:  logging.Discard(),
		encoder: json.NewEncoder(conn),
		pending: make(map[string]chan objectsapp.Frame),
		subs:    make(map[string]func(gateway.Event)),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.readLoop()
	return c, nil
}

func endpoint(rawURL, actor string) (wsURL string, origin string, err error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", "", fmt.Errorf("parse object service url: %w", err)
	}
	originURL := *parsed
	switch parsed.Scheme {
	case "http", "ws":
		parsed.Scheme, originURL.Scheme = "ws", "http"
	case "https", "wss":
		parsed.Scheme, originURL.Scheme = "wss", "https"
	default:
		return "", "", fmt.Errorf("unsupported object service scheme %q", parsed.Scheme)
	}
	if parsed.Path == "" || parsed.Path == "/" {
		parsed.Path = "/ws"
	}
	query := parsed.Query()
	query.Set("actor", actor)
	parsed.RawQuery = query.Encode()
	originURL.Path, originURL.RawQuery = "", ""
	return parsed.String(), originURL.String(), nil
}

// Actor is the identity the connection was opened with.
func (c *Client) Actor() string { return c.actor }

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close ends the connection. Pending requests fail with CLOSED.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) requestID() string {
	return "r" + strconv.FormatUint(c.nextRequest.Add(1), 10)
}

func (c *Client) send(frame objectsapp.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.encoder.Encode(frame); err != nil {
		return apperrors.Wrap(apperrors.CodeUnavailable, "write frame", err)
	}
	return nil
}

func (c *Client) frame(frameType string, payload any) (objectsapp.Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return objectsapp.Frame{}, apperrors.Wrap(apperrors.CodeObjectInvalid, "encode payload", err)
	}
	return objectsapp.Frame{Type: frameType, RequestID: c.requestID(), Payload: data}, nil
}

// call writes a request and waits for its correlated ack or error frame.
func (c *Client) call(ctx context.Context, frameType string, payload any) (objectsapp.AckPayload, error) {
	frame, err := c.frame(frameType, payload)
	if err != nil {
		return objectsapp.AckPayload{}, err
	}

	reply := make(chan objectsapp.Frame, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return objectsapp.AckPayload{}, apperrors.New(apperrors.CodeClosed, "client closed")
	}
	c.pending[frame.RequestID] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, frame.RequestID)
		c.mu.Unlock()
	}()

	if err := c.send(frame); err != nil {
		return objectsapp.AckPayload{}, err
	}

	select {
	case <-ctx.Done():
		return objectsapp.AckPayload{}, apperrors.Wrap(apperrors.CodeUnavailable, frameType+" canceled", ctx.Err())
	case <-c.done:
		return objectsapp.AckPayload{}, apperrors.New(apperrors.CodeClosed, "connection closed")
	case response := <-reply:
		if response.Type == objectsapp.FrameError {
			return objectsapp.AckPayload{}, decodeError(response)
		}
		var ack objectsapp.AckPayload
		if err := json.Unmarshal(response.Payload, &ack); err != nil {
			return objectsapp.AckPayload{}, apperrors.Wrap(apperrors.CodeUnknown, "decode ack", err)
		}
		return ack, nil
	}
}

func decodeError(frame objectsapp.Frame) error {
	var envelope objectsapp.ErrorEnvelope
	if err := json.Unmarshal(frame.Payload, &envelope); err != nil {
		return apperrors.Wrap(apperrors.CodeUnknown, "decode error frame", err)
	}
	wire := envelope.Error
	code := apperrors.Code(wire.Reason)
	if code == "" {
		switch wire.Code {
		case "INVALID_ARGUMENT":
			code = apperrors.CodeObjectInvalid
		case "NOT_FOUND":
			code = apperrors.CodeNotFound
		case "ALREADY_EXISTS":
			code = apperrors.CodeAlreadyExists
		case "PERMISSION_DENIED":
			code = apperrors.CodeNotOwner
		case "UNAVAILABLE", "RESOURCE_EXHAUSTED":
			code = apperrors.CodeUnavailable
		default:
			code = apperrors.CodeUnknown
		}
	}
	if code.Category() == apperrors.CategoryValidation {
		return apperrors.Validation(code, wire.Message)
	}
	return apperrors.New(code, wire.Message)
}

func (c *Client) readLoop() {
	defer close(c.done)
	decoder := json.NewDecoder(c.conn)
	for {
		var frame objectsapp.Frame
		if err := decoder.Decode(&frame); err != nil {
			c.mu.Lock()
			closed := c.closed
			c.closed = true
			c.mu.Unlock()
			if !closed && !errors.Is(err, io.EOF) {
				c.logger.Warn("object connection lost", "error", err)
			}
			return
		}
		c.dispatch(frame)
	}
}

func (c *Client) dispatch(frame objectsapp.Frame) {
	switch frame.Type {
	case objectsapp.FramePut:
		var payload objectsapp.PutPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil || payload.Object == nil {
			c.logger.Warn("drop undecodable put", "error", err)
			return
		}
		if deliver := c.subscriber(payload.SubscriptionID); deliver != nil {
			deliver(gateway.Event{Kind: gateway.EventPut, Object: payload.Object})
		}
	case objectsapp.FrameRemoved:
		var payload objectsapp.RemovedPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			c.logger.Warn("drop undecodable removal", "error", err)
			return
		}
		if deliver := c.subscriber(payload.SubscriptionID); deliver != nil {
			deliver(gateway.Event{Kind: gateway.EventRemove, ID: payload.ID})
		}
	case objectsapp.FrameAck, objectsapp.FrameError:
		c.mu.Lock()
		reply, ok := c.pending[frame.RequestID]
		c.mu.Unlock()
		if ok {
			reply <- frame
			return
		}
		if frame.Type == objectsapp.FrameError {
			c.logger.Warn("object write rejected", "request_id", frame.RequestID, "error", decodeError(frame))
		}
	default:
		c.logger.Debug("ignore frame", "type", frame.Type)
	}
}

func (c *Client) subscriber(subID string) func(gateway.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs[subID]
}

// Subscribe registers deliver and waits for the server to acknowledge the
// subscription. The stored backlog is delivered before Subscribe returns.
func (c *Client) Subscribe(ctx context.Context, contextIDs []string, deliver func(gateway.Event)) (gateway.Subscription, error) {
	if deliver == nil {
		return nil, apperrors.New(apperrors.CodeObjectInvalid, "deliver func is required")
	}
	subID, err := id.NewID()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.subs[subID] = deliver
	c.mu.Unlock()
	forget := func() {
		c.mu.Lock()
		delete(c.subs, subID)
		c.mu.Unlock()
	}

	if _, err := c.call(ctx, objectsapp.FrameSubscribe, objectsapp.SubscribePayload{
		SubscriptionID: subID,
		Context:        contextIDs,
	}); err != nil {
		forget()
		return nil, err
	}

	var once sync.Once
	return gateway.SubscriptionFunc(func() error {
		var err error
		once.Do(func() {
			forget()
			frame, frameErr := c.frame(objectsapp.FrameUnsubscribe, objectsapp.UnsubscribePayload{SubscriptionID: subID})
			if frameErr != nil {
				err = frameErr
				return
			}
			if c.isClosed() {
				return
			}
			err = c.send(frame)
		})
		return err
	}), nil
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) write(frameType string, payload any) error {
	if c.isClosed() {
		return apperrors.New(apperrors.CodeClosed, "client closed")
	}
	frame, err := c.frame(frameType, payload)
	if err != nil {
		return err
	}
	return c.send(frame)
}

// Create writes obj without waiting for the acknowledgment.
func (c *Client) Create(_ context.Context, obj object.Raw) error {
	return c.write(objectsapp.FrameCreate, objectsapp.ObjectPayload{Object: obj})
}

// Update writes obj without waiting for the acknowledgment.
func (c *Client) Update(_ context.Context, obj object.Raw) error {
	return c.write(objectsapp.FrameUpdate, objectsapp.ObjectPayload{Object: obj})
}

// Remove deletes the object without waiting for the acknowledgment.
func (c *Client) Remove(_ context.Context, objectID string) error {
	return c.write(objectsapp.FrameRemove, objectsapp.RemovePayload{ID: objectID})
}

func (c *Client) UsernameToActor(ctx context.Context, handle string) (string, bool, error) {
	ack, err := c.call(ctx, objectsapp.FrameResolve, objectsapp.ResolvePayload{Username: handle})
	if err != nil {
		return "", false, err
	}
	return ack.Actor, ack.Found, nil
}

func (c *Client) ActorToUsername(ctx context.Context, actorID string) (string, bool, error) {
	ack, err := c.call(ctx, objectsapp.FrameReverse, objectsapp.ResolvePayload{Actor: actorID})
	if err != nil {
		return "", false, err
	}
	return ack.Username, ack.Found, nil
}

func (c *Client) RequestUsername(ctx context.Context, handle string) (gateway.ClaimResult, error) {
	ack, err := c.call(ctx, objectsapp.FrameClaim, objectsapp.ResolvePayload{Username: handle})
	if err != nil {
		return gateway.ClaimResult{}, err
	}
	return gateway.ClaimResult{Success: ack.Success}, nil
}

var (
	_ gateway.ObjectStream     = (*Client)(nil)
	_ gateway.IdentityResolver = (*Client)(nil)
	_ gateway.NameClaimer      = (*Client)(nil)
)
