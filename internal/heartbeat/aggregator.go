package heartbeat

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"watchtower/internal/config"
	"watchtower/pkg/interfaces"
	"watchtower/pkg/types"
)

// Source keys the aggregator maintains on its own.
const (
	SourceManager   = "Manager"
	SourceCommander = "Commander"
)

// Aggregator is the process-wide heartbeat service: one long-lived instance
// constructed at startup and injected wherever liveness is recorded. It
// runs two background loops — a dispatch loop republishing the merged
// timestamp map to the heartbeat group, and an optional commander-poll loop
// querying an external liveness endpoint. The map is the only shared
// mutable state outside the channel layer and is guarded by one mutex.
type Aggregator struct {
	layer  interfaces.ChannelLayer
	cfg    *config.HeartbeatConfig
	client *http.Client

	mu         sync.Mutex
	timestamps map[string]float64
	running    bool
	cancel     context.CancelFunc
}

// NewAggregator creates a stopped aggregator.
func NewAggregator(layer interfaces.ChannelLayer, cfg *config.HeartbeatConfig) *Aggregator {
	return &Aggregator{
		layer:      layer,
		cfg:        cfg,
		client:     &http.Client{Timeout: cfg.PollTimeout},
		timestamps: make(map[string]float64),
	}
}

// Initialize idempotently starts the background loops. Calling it while
// the loops are running is a no-op, never a duplicate spawn.
func (a *Aggregator) Initialize(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	a.running = true
	a.cancel = cancel

	go a.dispatchLoop(loopCtx)
	if a.cfg.PollCommander {
		go a.pollLoop(loopCtx)
	}
}

// dispatchLoop records the manager's own liveness and republishes the
// merged map every period. A failed iteration is logged and never fatal to
// the loop.
func (a *Aggregator) dispatchLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := a.dispatch(ctx); err != nil {
				log.Printf("Heartbeat dispatch failed: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// dispatch publishes one merged heartbeat frame.
func (a *Aggregator) dispatch(ctx context.Context) error {
	a.SetTimestamp(SourceManager, float64(time.Now().UnixNano())/float64(time.Second))

	a.mu.Lock()
	entries := make([]types.HeartbeatEntry, 0, len(a.timestamps))
	for source, ts := range a.timestamps {
		entries = append(entries, types.HeartbeatEntry{
			Csc:      source,
			SalIndex: 0,
			Data:     types.HeartbeatEntryVal{Timestamp: ts},
		})
	}
	a.mu.Unlock()

	return a.layer.GroupSend(ctx, types.GroupHeartbeat, &types.GroupMessage{
		Type:         types.MessageTypeDeliver,
		Category:     types.CategoryHeartbeat,
		Data:         entries,
		Subscription: types.CategoryHeartbeat,
	})
}

// pollLoop queries the commander liveness endpoint every period. A failed
// or timed-out call is logged and retried next tick.
func (a *Aggregator) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := a.pollCommander(ctx); err != nil {
				log.Printf("Commander heartbeat poll failed: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// pollCommander issues one liveness request and records the result.
func (a *Aggregator) pollCommander(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.CommanderURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build commander request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("commander request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("commander returned status %d", resp.StatusCode)
	}

	var body struct {
		Timestamp float64 `json:"timestamp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("failed to decode commander response: %w", err)
	}

	a.SetTimestamp(SourceCommander, body.Timestamp)
	return nil
}

// SetTimestamp inserts or overwrites one source's liveness record. Called
// by the poll loop and by sessions relaying producer heartbeat traffic.
func (a *Aggregator) SetTimestamp(source string, ts float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.timestamps[source] = ts
}

// Snapshot returns a copy of the current timestamp map.
func (a *Aggregator) Snapshot() map[string]float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	snapshot := make(map[string]float64, len(a.timestamps))
	for source, ts := range a.timestamps {
		snapshot[source] = ts
	}
	return snapshot
}

// Reset clears the timestamp map and drops loop bookkeeping without
// cancelling loops already in flight, so a subsequent Initialize spawns
// fresh ones. Callers wanting a cold stop call Stop first.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.timestamps = make(map[string]float64)
	a.running = false
	a.cancel = nil
}

// Stop cancels the running loops.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.running = false
}
