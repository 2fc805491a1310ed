package app

import (
	"encoding/json"
	"log/slog"

	"github.com/designftw/graffiti-chat/internal/services/chat/object"
)

// Frame types exchanged over /ws.
const (
	FrameSubscribe   = "objects.subscribe"
	FrameUnsubscribe = "objects.unsubscribe"
	FrameCreate      = "objects.create"
	FrameUpdate      = "objects.update"
	FrameRemove      = "objects.remove"
	FrameResolve     = "names.resolve"
	FrameReverse     = "names.reverse"
	FrameClaim       = "names.claim"

	FramePut     = "objects.put"
	FrameRemoved = "objects.removed"
	FrameAck     = "ack"
	FrameError   = "error"
)

const (
	maxFramePayloadBytes    = 16 * 1024
	maxFramesPerSecond      = 40
	maxDecodeErrorsPerConn  = 3
	maxContextsPerSub       = 16
	maxSubscriptionsPerConn = 32
)

// Frame is the websocket envelope.
type Frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type SubscribePayload struct {
	SubscriptionID string   `json:"subscription_id"`
	Context        []string `json:"context"`
}

type UnsubscribePayload struct {
	SubscriptionID string `json:"subscription_id"`
}

type ObjectPayload struct {
	Object object.Raw `json:"object"`
}

type RemovePayload struct {
	ID string `json:"id"`
}

type ResolvePayload struct {
	Username string `json:"username,omitempty"`
	Actor    string `json:"actor,omitempty"`
}

// PutPayload carries one object to a subscription.
type PutPayload struct {
	SubscriptionID string     `json:"subscription_id"`
	Object         object.Raw `json:"object"`
}

// RemovedPayload carries the id of an object that left a subscription.
type RemovedPayload struct {
	SubscriptionID string `json:"subscription_id"`
	ID             string `json:"id"`
}

// AckPayload answers a request. Only the fields relevant to the request
// type are set.
type AckPayload struct {
	Status   string `json:"status"`
	ObjectID string `json:"object_id,omitempty"`
	Found    bool   `json:"found,omitempty"`
	Actor    string `json:"actor,omitempty"`
	Username string `json:"username,omitempty"`
	Success  bool   `json:"success,omitempty"`
}

type ErrorEnvelope struct {
	Error WireError `json:"error"`
}

// WireError is the error payload. Reason carries the domain error code when
// the failure came from the store.
type WireError struct {
	Code      string `json:"code"`
	Reason    string `json:"reason,omitempty"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		slog.Default().Error("marshal websocket frame payload", "error", err)
		return nil
	}
	return b
}
