package toolerr

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestKindOfThroughWrapChain(t *testing.T) {
	base := New(KindWorkspaceBusy, "apply in flight")
	wrapped := fmt.Errorf("dispatching apply_infrastructure: %w", base)

	kind, ok := KindOf(wrapped)
	if !ok {
		t.Fatal("KindOf() ok = false, want true")
	}
	if kind != KindWorkspaceBusy {
		t.Fatalf("KindOf() = %q, want %q", kind, KindWorkspaceBusy)
	}
	if !Is(wrapped, KindWorkspaceBusy) {
		t.Fatal("Is(KindWorkspaceBusy) = false, want true")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection reset by peer")
	err := Wrap(KindConnectionClosed, cause)

	if !errors.Is(err, cause) {
		t.Fatal("Wrap() lost the underlying cause")
	}
	if err.Message != "connection reset by peer" {
		t.Fatalf("Wrap() message = %q, want cause text", err.Message)
	}
}

func TestRetryableOnlyForTransportKinds(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindConnectionClosed, true},
		{KindHandshakeFailed, true},
		{KindWorkspaceBusy, false},
		{KindInvalidParameters, false},
		{KindConfirmationRequired, false},
		{KindExecutionTimeout, false},
		{KindToolNotFound, false},
	}
	for _, tt := range tests {
		if got := Retryable(tt.kind); got != tt.want {
			t.Errorf("Retryable(%q) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestEncodeDecodeSuccessRoundTrip(t *testing.T) {
	data, err := EncodeSuccess(map[string]any{"resources_to_add": 3})
	if err != nil {
		t.Fatalf("EncodeSuccess() error = %v", err)
	}

	w, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !w.Success {
		t.Fatal("Decode() success = false, want true")
	}
	var payload map[string]int
	if err := json.Unmarshal(w.Payload, &payload); err != nil {
		t.Fatalf("unmarshaling payload: %v", err)
	}
	if payload["resources_to_add"] != 3 {
		t.Fatalf("payload[resources_to_add] = %d, want 3", payload["resources_to_add"])
	}
}

func TestEncodeDecodeErrorRoundTrip(t *testing.T) {
	data, err := EncodeError(New(KindConfirmationRequired, "destroy requires confirm=true"))
	if err != nil {
		t.Fatalf("EncodeError() error = %v", err)
	}

	w, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if w.Success {
		t.Fatal("Decode() success = true, want false")
	}

	typed := w.Err()
	if !Is(typed, KindConfirmationRequired) {
		t.Fatalf("decoded kind = %v, want %q", typed, KindConfirmationRequired)
	}
}

func TestEncodeErrorUntypedFallsBackToUnknown(t *testing.T) {
	data, err := EncodeError(errors.New("boom"))
	if err != nil {
		t.Fatalf("EncodeError() error = %v", err)
	}

	w, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if w.Error.Kind != KindUnknownExecution {
		t.Fatalf("kind = %q, want %q", w.Error.Kind, KindUnknownExecution)
	}
}

func TestDecodeMalformedEnvelope(t *testing.T) {
	if _, err := Decode([]byte("{not json")); !Is(err, KindConnectionClosed) {
		t.Fatalf("Decode() error = %v, want ConnectionClosed kind", err)
	}
	if _, err := Decode([]byte(`{"success":false}`)); !Is(err, KindConnectionClosed) {
		t.Fatalf("Decode() missing error detail: got %v, want ConnectionClosed kind", err)
	}
}
