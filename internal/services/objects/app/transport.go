package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	apperrors "github.com/designftw/graffiti-chat/internal/platform/errors"
	"github.com/designftw/graffiti-chat/internal/platform/logging"
	"github.com/designftw/graffiti-chat/internal/services/chat/gateway"
)

// NewHandler serves /up and the /ws object protocol over hub. The caller's
// identity is taken from the actor query parameter.
func NewHandler(hub *Hub, logger *slog.Logger) http.Handler {
	logger = logging.OrDiscard(logger)
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		handleWSConn(conn, hub, logger)
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if strings.TrimSpace(r.URL.Query().Get("actor")) == "" {
			http.Error(w, "actor is required", http.StatusBadRequest)
			return
		}
		wsHandler.ServeHTTP(w, r)
	})
	return mux
}

type wsPeer struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func newWSPeer(encoder *json.Encoder) *wsPeer {
	return &wsPeer{encoder: encoder}
}

func (p *wsPeer) writeFrame(frame Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}

type wsSession struct {
	peer    *wsPeer
	session *Session
	logger  *slog.Logger

	mu   sync.Mutex
	subs map[string]gateway.Subscription
}

func (s *wsSession) closeAll() {
	s.mu.Lock()
	subs := s.subs
	s.subs = make(map[string]gateway.Subscription)
	s.mu.Unlock()
	for _, sub := range subs {
		_ = sub.Close()
	}
}

func handleWSConn(conn *websocket.Conn, hub *Hub, logger *slog.Logger) {
	defer func() {
		_ = conn.Close()
	}()

	request := conn.Request()
	ctx := request.Context()
	actor := strings.TrimSpace(request.URL.Query().Get("actor"))

	decoder := json.NewDecoder(conn)
	session := &wsSession{
		peer:    newWSPeer(json.NewEncoder(conn)),
		session: hub.Session(actor),
		logger:  logger.With("actor", actor),
		subs:    make(map[string]gateway.Subscription),
	}
	defer session.closeAll()
	session.logger.DebugContext(ctx, "websocket connected")

	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame Frame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			_ = writeWSError(session.peer, "", "INVALID_ARGUMENT", "invalid frame payload")
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			_ = writeWSError(session.peer, frame.RequestID, "INVALID_ARGUMENT", "payload too large")
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			_ = writeWSError(session.peer, frame.RequestID, "RESOURCE_EXHAUSTED", "rate limit exceeded")
			return
		}

		switch frame.Type {
		case FrameSubscribe:
			handleSubscribeFrame(ctx, session, frame)
		case FrameUnsubscribe:
			handleUnsubscribeFrame(session, frame)
		case FrameCreate, FrameUpdate:
			handleWriteFrame(ctx, session, frame)
		case FrameRemove:
			handleRemoveFrame(ctx, session, frame)
		case FrameResolve, FrameReverse:
			handleLookupFrame(ctx, session, frame)
		case FrameClaim:
			handleClaimFrame(ctx, session, frame)
		default:
			_ = writeWSError(session.peer, frame.RequestID, "INVALID_ARGUMENT", "unsupported frame type")
		}
	}
}

func handleSubscribeFrame(ctx context.Context, session *wsSession, frame Frame) {
	var payload SubscribePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(session.peer, frame.RequestID, "INVALID_ARGUMENT", "invalid subscribe payload")
		return
	}
	subID := strings.TrimSpace(payload.SubscriptionID)
	if subID == "" {
		_ = writeWSError(session.peer, frame.RequestID, "INVALID_ARGUMENT", "subscription_id is required")
		return
	}
	if len(payload.Context) == 0 || len(payload.Context) > maxContextsPerSub {
		_ = writeWSError(session.peer, frame.RequestID, "INVALID_ARGUMENT", "context must list 1 to 16 ids")
		return
	}

	session.mu.Lock()
	_, exists := session.subs[subID]
	count := len(session.subs)
	session.mu.Unlock()
	if exists {
		_ = writeWSError(session.peer, frame.RequestID, "ALREADY_EXISTS", "subscription_id already in use")
		return
	}
	if count >= maxSubscriptionsPerConn {
		_ = writeWSError(session.peer, frame.RequestID, "RESOURCE_EXHAUSTED", "too many subscriptions")
		return
	}

	peer := session.peer
	sub, err := session.session.Subscribe(ctx, payload.Context, func(ev gateway.Event) {
		switch ev.Kind {
		case gateway.EventPut:
			_ = peer.writeFrame(Frame{
				Type:    FramePut,
				Payload: mustJSON(PutPayload{SubscriptionID: subID, Object: ev.Object}),
			})
		case gateway.EventRemove:
			_ = peer.writeFrame(Frame{
				Type:    FrameRemoved,
				Payload: mustJSON(RemovedPayload{SubscriptionID: subID, ID: ev.ID}),
			})
		}
	})
	if err != nil {
		session.logger.WarnContext(ctx, "subscribe", "context", payload.Context, "error", err)
		writeDomainError(session.peer, frame.RequestID, err)
		return
	}

	session.mu.Lock()
	session.subs[subID] = sub
	session.mu.Unlock()
	writeAck(session.peer, frame.RequestID, AckPayload{Status: "ok"})
}

func handleUnsubscribeFrame(session *wsSession, frame Frame) {
	var payload UnsubscribePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(session.peer, frame.RequestID, "INVALID_ARGUMENT", "invalid unsubscribe payload")
		return
	}
	session.mu.Lock()
	sub, ok := session.subs[payload.SubscriptionID]
	delete(session.subs, payload.SubscriptionID)
	session.mu.Unlock()
	if ok {
		_ = sub.Close()
	}
	writeAck(session.peer, frame.RequestID, AckPayload{Status: "ok"})
}

func handleWriteFrame(ctx context.Context, session *wsSession, frame Frame) {
	var payload ObjectPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil || payload.Object == nil {
		_ = writeWSError(session.peer, frame.RequestID, "INVALID_ARGUMENT", "invalid object payload")
		return
	}

	var err error
	if frame.Type == FrameCreate {
		payload.Object, err = session.session.hub.create(ctx, session.session.actor, payload.Object)
	} else {
		payload.Object, err = session.session.hub.update(ctx, session.session.actor, payload.Object)
	}
	if err != nil {
		session.logger.InfoContext(ctx, "object write rejected", "type", frame.Type, "error", err)
		writeDomainError(session.peer, frame.RequestID, err)
		return
	}
	writeAck(session.peer, frame.RequestID, AckPayload{Status: "ok", ObjectID: payload.Object.ID()})
}

func handleRemoveFrame(ctx context.Context, session *wsSession, frame Frame) {
	var payload RemovePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(session.peer, frame.RequestID, "INVALID_ARGUMENT", "invalid remove payload")
		return
	}
	if err := session.session.Remove(ctx, strings.TrimSpace(payload.ID)); err != nil {
		session.logger.InfoContext(ctx, "object remove rejected", "object_id", payload.ID, "error", err)
		writeDomainError(session.peer, frame.RequestID, err)
		return
	}
	writeAck(session.peer, frame.RequestID, AckPayload{Status: "ok", ObjectID: payload.ID})
}

func handleLookupFrame(ctx context.Context, session *wsSession, frame Frame) {
	var payload ResolvePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(session.peer, frame.RequestID, "INVALID_ARGUMENT", "invalid lookup payload")
		return
	}
	if frame.Type == FrameResolve {
		actor, found, err := session.session.UsernameToActor(ctx, payload.Username)
		if err != nil {
			writeDomainError(session.peer, frame.RequestID, err)
			return
		}
		writeAck(session.peer, frame.RequestID, AckPayload{Status: "ok", Found: found, Actor: actor})
		return
	}
	name, found, err := session.session.ActorToUsername(ctx, payload.Actor)
	if err != nil {
		writeDomainError(session.peer, frame.RequestID, err)
		return
	}
	writeAck(session.peer, frame.RequestID, AckPayload{Status: "ok", Found: found, Username: name})
}

func handleClaimFrame(ctx context.Context, session *wsSession, frame Frame) {
	var payload ResolvePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(session.peer, frame.RequestID, "INVALID_ARGUMENT", "invalid claim payload")
		return
	}
	result, err := session.session.RequestUsername(ctx, payload.Username)
	if err != nil {
		writeDomainError(session.peer, frame.RequestID, err)
		return
	}
	writeAck(session.peer, frame.RequestID, AckPayload{Status: "ok", Success: result.Success})
}

func writeAck(peer *wsPeer, requestID string, ack AckPayload) {
	_ = peer.writeFrame(Frame{
		Type:      FrameAck,
		RequestID: requestID,
		Payload:   mustJSON(ack),
	})
}

func writeDomainError(peer *wsPeer, requestID string, err error) {
	code := apperrors.GetCode(err)
	message := err.Error()
	var domainErr *apperrors.Error
	if errors.As(err, &domainErr) {
		message = domainErr.Message
	}
	_ = writeWire(peer, requestID, WireError{Code: code.WireCode(), Reason: string(code), Message: message})
}

func writeWSError(peer *wsPeer, requestID string, code string, message string) error {
	return writeWire(peer, requestID, WireError{Code: code, Message: message})
}

func writeWire(peer *wsPeer, requestID string, wireErr WireError) error {
	wireErr.Retryable = wireErr.Code == "UNAVAILABLE"
	return peer.writeFrame(Frame{
		Type:      FrameError,
		RequestID: requestID,
		Payload:   mustJSON(ErrorEnvelope{Error: wireErr}),
	})
}
