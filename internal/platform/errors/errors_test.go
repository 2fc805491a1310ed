package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("send: %w", New(CodeMessageEmpty, "message text is required"))
	if !stderrors.Is(err, New(CodeMessageEmpty, "")) {
		t.Fatal("expected errors.Is to match by code")
	}
	if stderrors.Is(err, New(CodeRecipientRequired, "")) {
		t.Fatal("unexpected match on different code")
	}
}

func TestWrapUnwrapsCause(t *testing.T) {
	cause := stderrors.New("socket closed")
	err := Wrap(CodeUnavailable, "write object", cause)
	if !stderrors.Is(err, cause) {
		t.Fatal("expected cause in chain")
	}
	if err.Error() != "write object: socket closed" {
		t.Fatalf("error = %q", err.Error())
	}
}

func TestGetCode(t *testing.T) {
	if got := GetCode(stderrors.New("plain")); got != CodeUnknown {
		t.Fatalf("code = %q, want %q", got, CodeUnknown)
	}
	wrapped := fmt.Errorf("outer: %w", New(CodeNotFound, "missing"))
	if got := GetCode(wrapped); got != CodeNotFound {
		t.Fatalf("code = %q, want %q", got, CodeNotFound)
	}
}

func TestIsValidation(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{Validation(CodeMessageEmpty, "empty"), true},
		{New(CodeUsernameTaken, "taken"), false},
		{New(CodeUnavailable, "down"), false},
	}
	for _, tt := range tests {
		if got := IsValidation(tt.err); got != tt.want {
			t.Fatalf("IsValidation(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestWireCode(t *testing.T) {
	tests := map[Code]string{
		CodeMessageEmpty:  "INVALID_ARGUMENT",
		CodeNotFound:      "NOT_FOUND",
		CodeAlreadyExists: "ALREADY_EXISTS",
		CodeNotOwner:      "PERMISSION_DENIED",
		CodeUnavailable:   "UNAVAILABLE",
		CodeUnknown:       "INTERNAL",
	}
	for code, want := range tests {
		if got := code.WireCode(); got != want {
			t.Fatalf("%s.WireCode() = %q, want %q", code, got, want)
		}
	}
}
