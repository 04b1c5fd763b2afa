package executor

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Simulated is the demo stand-in for real process execution: it sleeps a
// pseudo-random duration and fails with a fixed probability. Useful for
// exercising the engine without shelling out.
type Simulated struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewSimulated() *Simulated {
	return &Simulated{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (s *Simulated) Execute(ctx context.Context, command string) (string, error) {
	s.mu.Lock()
	delay := 500*time.Millisecond + time.Duration(s.rng.Intn(3000))*time.Millisecond
	fail := s.rng.Float64() < 0.25
	s.mu.Unlock()

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	if fail {
		return "", fmt.Errorf("simulated failure running %q", command)
	}
	return fmt.Sprintf("simulated run of %q completed", command), nil
}
