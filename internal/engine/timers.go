package engine

import (
	"context"
	"fmt"
	"time"

	"stagehand/internal/domain"
)

// Scheduler fires timer triggers. Each timer trigger fires on its own
// interval, measured from when the scheduler first saw it; a freshly created
// trigger does not fire immediately.
type Scheduler struct {
	Engine *Engine
	Now    func() time.Time

	lastFired map[string]time.Time
}

// Run ticks the scheduler until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context, tick time.Duration) {
	if tick <= 0 {
		tick = time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick dispatches a timer event for every due timer trigger. Exported so
// tests can drive the scheduler without real time.
func (s *Scheduler) Tick(ctx context.Context) {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	if s.lastFired == nil {
		s.lastFired = make(map[string]time.Time)
	}
	seen := make(map[string]bool)
	for _, action := range s.Engine.Store.List() {
		for i, t := range action.Triggers {
			if t.Type != domain.TriggerTimer || t.Timer == nil {
				continue
			}
			key := fmt.Sprintf("%s/%d", action.ID, i)
			seen[key] = true
			last, ok := s.lastFired[key]
			if !ok {
				s.lastFired[key] = now
				continue
			}
			interval := time.Duration(t.Timer.IntervalSeconds) * time.Second
			if now.Sub(last) < interval {
				continue
			}
			s.lastFired[key] = now
			s.Engine.Dispatch(ctx, domain.Event{
				Kind:  domain.EventTimer,
				Timer: &domain.TimerEvent{ActionID: action.ID},
			})
		}
	}
	// drop state for deleted triggers
	for key := range s.lastFired {
		if !seen[key] {
			delete(s.lastFired, key)
		}
	}
}
