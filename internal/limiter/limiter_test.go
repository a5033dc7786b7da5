package limiter

import (
	"context"
	"testing"
	"time"
)

// TestNilLimiterIsUnlimited verifies the zero-rate path never blocks
func TestNilLimiterIsUnlimited(t *testing.T) {
	rl := NewReadLimiter(0)
	if rl != nil {
		t.Fatalf("NewReadLimiter(0) = %v, expected nil", rl)
	}

	// Nil receiver must be safe and free
	if err := rl.Wait(context.Background(), 1<<30); err != nil {
		t.Errorf("nil limiter Wait returned error: %v", err)
	}
	if got := rl.BytesPerSecond(); got != 0 {
		t.Errorf("nil limiter BytesPerSecond = %v, expected 0", got)
	}
}

// TestBurstAdmitsImmediately verifies requests within the burst do not block
func TestBurstAdmitsImmediately(t *testing.T) {
	rl := NewReadLimiter(1) // 1 MiB/s, 1 MiB burst

	start := time.Now()
	if err := rl.Wait(context.Background(), 4096); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Wait within burst took %v, expected immediate", elapsed)
	}

	if got := rl.BytesPerSecond(); got != 1024*1024 {
		t.Errorf("BytesPerSecond = %v, expected %v", got, 1024*1024)
	}
}

// TestOversizedRequestIsClamped verifies a request larger than the burst
// completes instead of deadlocking
func TestOversizedRequestIsClamped(t *testing.T) {
	rl := NewReadLimiter(1)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := rl.Wait(ctx, 10*1024*1024); err != nil {
		t.Fatalf("oversized Wait failed: %v", err)
	}
}

// TestWaitHonorsContext verifies cancellation interrupts a blocked wait
func TestWaitHonorsContext(t *testing.T) {
	rl := NewReadLimiter(1)

	// Drain the burst so the next wait must block
	if err := rl.Wait(context.Background(), 1024*1024); err != nil {
		t.Fatalf("drain Wait failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := rl.Wait(ctx, 1024*1024); err == nil {
		t.Error("Wait with canceled context returned nil, expected error")
	}
}
