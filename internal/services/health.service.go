package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

var ErrUnhealthy = errors.New("dependency unavailable")

type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthService struct {
	deps    map[string]Pinger
	timeout time.Duration
}

func NewHealthService(timeout time.Duration) *HealthService {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthService{deps: make(map[string]Pinger), timeout: timeout}
}

func (s *HealthService) Register(name string, p Pinger) {
	s.deps[name] = p
}

// Check pings every dependency and reports "ok" or the error per name. The
// error is set when at least one dependency is down.
func (s *HealthService) Check(ctx context.Context) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	names := make([]string, 0, len(s.deps))
	for name := range s.deps {
		names = append(names, name)
	}
	sort.Strings(names)

	status := make(map[string]string, len(names))
	var down []string
	for _, name := range names {
		if err := s.deps[name].Ping(ctx); err != nil {
			status[name] = err.Error()
			down = append(down, name)
			continue
		}
		status[name] = "ok"
	}
	if len(down) > 0 {
		return status, fmt.Errorf("%w: %v", ErrUnhealthy, down)
	}
	return status, nil
}
