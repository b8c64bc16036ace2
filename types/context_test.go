package types

import (
	"context"
	"testing"
)

func TestContextHelpers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if _, ok := RequestID(ctx); ok {
		t.Fatalf("empty context must not carry a request ID")
	}

	ctx = WithRequestID(ctx, "req-1")
	if got, ok := RequestID(ctx); !ok || got != "req-1" {
		t.Fatalf("RequestID mismatch: %v %v", got, ok)
	}

	ctx = WithTraceID(ctx, "t1")
	if got, ok := TraceID(ctx); !ok || got != "t1" {
		t.Fatalf("TraceID mismatch: %v %v", got, ok)
	}

	ctx = WithTransferID(ctx, "transfer_abc")
	if got, ok := TransferID(ctx); !ok || got != "transfer_abc" {
		t.Fatalf("TransferID mismatch: %v %v", got, ok)
	}

	if _, ok := TransferID(WithTransferID(context.Background(), "")); ok {
		t.Fatalf("empty transfer ID must report absent")
	}
}
