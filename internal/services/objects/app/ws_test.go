package app

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	"github.com/designftw/graffiti-chat/internal/services/chat/object"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewHandler(newTestHub(t), nil))
	t.Cleanup(srv.Close)
	return srv
}

func dialWS(t *testing.T, httpURL, actor string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(httpURL, "http") + "/ws?actor=" + actor
	conn, err := websocket.Dial(wsURL, "", httpURL)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame Frame) {
	t.Helper()
	if err := json.NewEncoder(conn).Encode(frame); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	if err := conn.SetDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	var frame Frame
	if err := json.NewDecoder(conn).Decode(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

func decodeAckPayload(t *testing.T, frame Frame) AckPayload {
	t.Helper()
	if frame.Type != FrameAck {
		t.Fatalf("frame type = %q, want %q (payload %s)", frame.Type, FrameAck, frame.Payload)
	}
	var ack AckPayload
	if err := json.Unmarshal(frame.Payload, &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	return ack
}

func decodeErrorCode(t *testing.T, frame Frame) string {
	t.Helper()
	return decodeWireError(t, frame).Code
}

func decodeWireError(t *testing.T, frame Frame) WireError {
	t.Helper()
	if frame.Type != FrameError {
		t.Fatalf("frame type = %q, want %q", frame.Type, FrameError)
	}
	var envelope ErrorEnvelope
	if err := json.Unmarshal(frame.Payload, &envelope); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return envelope.Error
}

func decodePut(t *testing.T, frame Frame) PutPayload {
	t.Helper()
	if frame.Type != FramePut {
		t.Fatalf("frame type = %q, want %q (payload %s)", frame.Type, FramePut, frame.Payload)
	}
	var put PutPayload
	if err := json.Unmarshal(frame.Payload, &put); err != nil {
		t.Fatalf("decode put: %v", err)
	}
	return put
}

func TestHandlerUp(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/up")
	if err != nil {
		t.Fatalf("get /up: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "OK" {
		t.Fatalf("/up = %d %q, want 200 OK", resp.StatusCode, body)
	}
}

func TestHandlerRequiresActor(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/ws")
	if err != nil {
		t.Fatalf("get /ws: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestHandlerRejectsNonGet(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	resp, err := http.Post(srv.URL+"/ws?actor=actor:a", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("post /ws: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusMethodNotAllowed)
	}
}

func TestWSSubscribeCreateFlow(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	alice := dialWS(t, srv.URL, "actor:alice")
	bob := dialWS(t, srv.URL, "actor:bob")

	writeFrame(t, alice, Frame{
		Type:      FrameCreate,
		RequestID: "c1",
		Payload:   mustJSON(ObjectPayload{Object: publicNote("backlog", "default")}),
	})
	ack := decodeAckPayload(t, readFrame(t, alice))
	if ack.ObjectID == "" {
		t.Fatal("expected object_id in create ack")
	}

	writeFrame(t, bob, Frame{
		Type:      FrameSubscribe,
		RequestID: "s1",
		Payload:   mustJSON(SubscribePayload{SubscriptionID: "sub-1", Context: []string{"default"}}),
	})
	put := decodePut(t, readFrame(t, bob))
	if put.SubscriptionID != "sub-1" || put.Object.ID() != ack.ObjectID {
		t.Fatalf("backlog put = %+v", put)
	}
	if got := decodeAckPayload(t, readFrame(t, bob)); got.Status != "ok" {
		t.Fatalf("subscribe ack status = %q", got.Status)
	}

	writeFrame(t, alice, Frame{
		Type:      FrameCreate,
		RequestID: "c2",
		Payload:   mustJSON(ObjectPayload{Object: publicNote("live", "default")}),
	})
	decodeAckPayload(t, readFrame(t, alice))
	put = decodePut(t, readFrame(t, bob))
	content, _ := put.Object.String(object.FieldContent)
	if content != "live" || put.Object.Actor() != "actor:alice" {
		t.Fatalf("live put = %v", put.Object)
	}
}

func TestWSRemoveByOtherActorRejected(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	alice := dialWS(t, srv.URL, "actor:alice")
	mallory := dialWS(t, srv.URL, "actor:mallory")

	writeFrame(t, alice, Frame{
		Type:      FrameCreate,
		RequestID: "c1",
		Payload:   mustJSON(ObjectPayload{Object: publicNote("hi", "default")}),
	})
	ack := decodeAckPayload(t, readFrame(t, alice))

	writeFrame(t, mallory, Frame{
		Type:      FrameRemove,
		RequestID: "r1",
		Payload:   mustJSON(RemovePayload{ID: ack.ObjectID}),
	})
	frame := readFrame(t, mallory)
	wireErr := decodeWireError(t, frame)
	if wireErr.Code != "PERMISSION_DENIED" || wireErr.Reason != "NOT_OWNER" {
		t.Fatalf("error = %+v, want PERMISSION_DENIED/NOT_OWNER", wireErr)
	}
	if frame.RequestID != "r1" {
		t.Fatalf("request_id = %q, want r1", frame.RequestID)
	}
}

func TestWSNames(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	alice := dialWS(t, srv.URL, "actor:alice")
	bob := dialWS(t, srv.URL, "actor:bob")

	writeFrame(t, alice, Frame{Type: FrameClaim, RequestID: "n1", Payload: mustJSON(ResolvePayload{Username: "alice"})})
	if ack := decodeAckPayload(t, readFrame(t, alice)); !ack.Success {
		t.Fatal("expected claim to succeed")
	}
	writeFrame(t, bob, Frame{Type: FrameClaim, RequestID: "n2", Payload: mustJSON(ResolvePayload{Username: "alice"})})
	if ack := decodeAckPayload(t, readFrame(t, bob)); ack.Success {
		t.Fatal("expected taken claim to fail")
	}

	writeFrame(t, bob, Frame{Type: FrameResolve, RequestID: "n3", Payload: mustJSON(ResolvePayload{Username: "@alice"})})
	ack := decodeAckPayload(t, readFrame(t, bob))
	if !ack.Found || ack.Actor != "actor:alice" {
		t.Fatalf("resolve = %+v", ack)
	}

	writeFrame(t, bob, Frame{Type: FrameReverse, RequestID: "n4", Payload: mustJSON(ResolvePayload{Actor: "actor:alice"})})
	ack = decodeAckPayload(t, readFrame(t, bob))
	if !ack.Found || ack.Username != "alice" {
		t.Fatalf("reverse = %+v", ack)
	}

	writeFrame(t, bob, Frame{Type: FrameClaim, RequestID: "n5", Payload: mustJSON(ResolvePayload{Username: "!!"})})
	wireErr := decodeWireError(t, readFrame(t, bob))
	if wireErr.Code != "INVALID_ARGUMENT" || wireErr.Reason != "USERNAME_INVALID" {
		t.Fatalf("error = %+v, want INVALID_ARGUMENT/USERNAME_INVALID", wireErr)
	}
}

func TestWSRejectsUnsupportedFrame(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	conn := dialWS(t, srv.URL, "actor:alice")
	writeFrame(t, conn, Frame{Type: "objects.explode", RequestID: "x1", Payload: json.RawMessage(`{}`)})
	if code := decodeErrorCode(t, readFrame(t, conn)); code != "INVALID_ARGUMENT" {
		t.Fatalf("code = %q, want INVALID_ARGUMENT", code)
	}
}

func TestWSSubscribeValidation(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	conn := dialWS(t, srv.URL, "actor:alice")

	writeFrame(t, conn, Frame{Type: FrameSubscribe, RequestID: "s1", Payload: mustJSON(SubscribePayload{Context: []string{"default"}})})
	if code := decodeErrorCode(t, readFrame(t, conn)); code != "INVALID_ARGUMENT" {
		t.Fatalf("missing id code = %q", code)
	}

	writeFrame(t, conn, Frame{Type: FrameSubscribe, RequestID: "s2", Payload: mustJSON(SubscribePayload{SubscriptionID: "a", Context: []string{"default"}})})
	decodeAckPayload(t, readFrame(t, conn))
	writeFrame(t, conn, Frame{Type: FrameSubscribe, RequestID: "s3", Payload: mustJSON(SubscribePayload{SubscriptionID: "a", Context: []string{"default"}})})
	if code := decodeErrorCode(t, readFrame(t, conn)); code != "ALREADY_EXISTS" {
		t.Fatalf("duplicate id code = %q", code)
	}

	writeFrame(t, conn, Frame{Type: FrameUnsubscribe, RequestID: "u1", Payload: mustJSON(UnsubscribePayload{SubscriptionID: "a"})})
	decodeAckPayload(t, readFrame(t, conn))
}
