package fx3

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCanceledContextSkipsTransfer(t *testing.T) {
	// A nil handle would panic if the transfer were submitted; the
	// cancellation check must come first.
	p := &Pipe{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.WritePacket(ctx, make([]byte, 16)); !errors.Is(err, context.Canceled) {
		t.Errorf("write on canceled context: got %v, want context.Canceled", err)
	}
	if _, err := p.ReadPacket(ctx, make([]byte, 16)); !errors.Is(err, context.Canceled) {
		t.Errorf("read on canceled context: got %v, want context.Canceled", err)
	}
}

func TestTimeoutFrom(t *testing.T) {
	if d := timeoutFrom(context.Background()); d != fallbackWait {
		t.Errorf("no deadline: %v, want %v", d, fallbackWait)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if d := timeoutFrom(ctx); d <= 0 || d > time.Minute {
		t.Errorf("future deadline: %v", d)
	}

	ctx, cancel = context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	if d := timeoutFrom(ctx); d != time.Millisecond {
		t.Errorf("expired deadline: %v, want minimal timeout", d)
	}
}
