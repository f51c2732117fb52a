package ratelimit

import (
	"fmt"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(cfg Config) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	l := NewLimiter(cfg)
	l.now = clock.now
	return l, clock
}

func TestLimiter_AllowsBurstThenDenies(t *testing.T) {
	l, _ := newTestLimiter(Config{RequestsPerSecond: 10, Burst: 5})

	for i := 0; i < 5; i++ {
		if ok, _ := l.Allow("client"); !ok {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	ok, wait := l.Allow("client")
	if ok {
		t.Fatal("request after burst should be denied")
	}
	if wait <= 0 || wait > 100*time.Millisecond {
		t.Errorf("wait = %v, want (0, 100ms]", wait)
	}
}

func TestLimiter_Refill(t *testing.T) {
	l, clock := newTestLimiter(Config{RequestsPerSecond: 2, Burst: 1})

	if ok, _ := l.Allow("a"); !ok {
		t.Fatal("first request should be allowed")
	}
	if ok, _ := l.Allow("a"); ok {
		t.Fatal("second request should be denied")
	}
	clock.advance(500 * time.Millisecond)
	if ok, _ := l.Allow("a"); !ok {
		t.Fatal("request after refill should be allowed")
	}
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(Config{RequestsPerSecond: 1, Burst: 1})

	if ok, _ := l.Allow("a"); !ok {
		t.Fatal("a should be allowed")
	}
	if ok, _ := l.Allow("b"); !ok {
		t.Fatal("b should be allowed")
	}
	if ok, _ := l.Allow("a"); ok {
		t.Fatal("a should be denied")
	}
}

func TestLimiter_Disabled(t *testing.T) {
	l := NewLimiter(Config{})
	for i := 0; i < 100; i++ {
		if ok, _ := l.Allow("client"); !ok {
			t.Fatalf("request %d denied with limiting disabled", i)
		}
	}
	if l.Len() != 0 {
		t.Errorf("disabled limiter tracked %d keys", l.Len())
	}

	var nilLimiter *Limiter
	if ok, _ := nilLimiter.Allow("x"); !ok {
		t.Error("nil limiter should allow")
	}
}

func TestLimiter_Reset(t *testing.T) {
	l, _ := newTestLimiter(Config{RequestsPerSecond: 1, Burst: 1})
	l.Allow("a")
	if ok, _ := l.Allow("a"); ok {
		t.Fatal("should be denied")
	}
	l.Reset("a")
	if ok, _ := l.Allow("a"); !ok {
		t.Fatal("should be allowed after reset")
	}
}

func TestConfig_DefaultBurst(t *testing.T) {
	tests := []struct {
		cfg  Config
		want float64
	}{
		{Config{RequestsPerSecond: 5}, 10},
		{Config{RequestsPerSecond: 0.2}, 1},
		{Config{RequestsPerSecond: 5, Burst: 3}, 3},
	}
	for _, tt := range tests {
		if got := tt.cfg.burst(); got != tt.want {
			t.Errorf("burst(%+v) = %v, want %v", tt.cfg, got, tt.want)
		}
	}
}

func TestLimiter_ManyKeys_PrunesInactive(t *testing.T) {
	l, clock := newTestLimiter(Config{RequestsPerSecond: 10, Burst: 2})
	l.maxKeys = 10

	for i := 0; i < 10; i++ {
		l.Allow(fmt.Sprintf("client-%d", i))
	}
	clock.advance(time.Second)
	l.Allow("newcomer")

	if got := l.Len(); got != 1 {
		t.Errorf("Len() = %d after prune, want 1", got)
	}
}
