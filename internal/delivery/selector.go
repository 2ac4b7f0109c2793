package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/domain"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/money"
)

// ConfigurationError means the selector was wired without exactly one
// strategy for a mode. It is a programming error, not a user mistake.
type ConfigurationError struct {
	Mode    domain.DeliveryMode
	Matches int
}

func (e *ConfigurationError) Error() string {
	if e.Matches == 0 {
		return fmt.Sprintf("delivery: no strategy supports mode %q", e.Mode)
	}
	return fmt.Sprintf("delivery: %d strategies support mode %q", e.Matches, e.Mode)
}

func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

type Selector struct {
	strategies []Strategy
}

func NewSelector(strategies ...Strategy) *Selector {
	return &Selector{strategies: strategies}
}

func (s *Selector) For(mode domain.DeliveryMode) (Strategy, error) {
	var found Strategy
	matches := 0
	for _, st := range s.strategies {
		if st.Supports(mode) {
			found = st
			matches++
		}
	}
	if matches != 1 {
		return nil, &ConfigurationError{Mode: mode, Matches: matches}
	}
	return found, nil
}

func (s *Selector) Apply(ctx context.Context, info *domain.DeliveryInfo, feeOverride *money.Amount) (domain.ValidationResult, error) {
	st, err := s.For(info.Mode)
	if err != nil {
		return domain.ValidationResult{}, err
	}
	return st.ValidateAndPopulate(ctx, info, feeOverride)
}

var ErrSuperseded = errors.New("validation superseded by a newer request")

// RequestGuard hands out increasing ids per key so a slow validation that
// finishes after a newer one can be recognised and dropped.
type RequestGuard struct {
	mu     sync.Mutex
	latest map[string]uint64
}

func NewRequestGuard() *RequestGuard {
	return &RequestGuard{latest: make(map[string]uint64)}
}

func (g *RequestGuard) Begin(key string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.latest[key]++
	return g.latest[key]
}

func (g *RequestGuard) IsCurrent(key string, id uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.latest[key] == id
}
