// Package messages implements the instance-messages sub-cache (spec §4.3):
// per-instance outstanding messages, plus a relay-message refinement that
// depends on a freshly refreshed current-state view.
package messages

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/10yihang/clustercache/internal/accessor"
	"github.com/10yihang/clustercache/internal/currentstate"
	"github.com/10yihang/clustercache/internal/metrics"
	"github.com/10yihang/clustercache/internal/model"
	"github.com/10yihang/clustercache/internal/propkey"
)

// RelayValidator decides whether a pending relay message's precondition
// still holds against a fresh current-state view. The core sub-cache is
// agnostic to state-model specifics (spec §9 design note); callers supply
// the predicate that understands them. DefaultRelayValidator is used when
// none is set.
type RelayValidator func(msg *model.Message, view currentstate.View) bool

// DefaultRelayValidator filters a relay message once its target state has
// already been reached in the fresh current-state view, and otherwise
// leaves it valid.
func DefaultRelayValidator(msg *model.Message, view currentstate.View) bool {
	if !msg.IsRelay {
		return true
	}
	sessions, ok := view[msg.TargetName]
	if !ok {
		return true
	}
	states, ok := sessions[msg.TargetSession]
	if !ok {
		return true
	}
	for _, state := range states {
		if state.PartitionStates[msg.ToState] == msg.ToState {
			return false
		}
	}
	return true
}

// Cache holds outstanding messages per instance.
type Cache struct {
	clusterName string
	logger      *zap.Logger
	validator   RelayValidator

	mu      sync.RWMutex
	entries map[propkey.Key]*model.Message          // flat entry store, incremental-reload state
	byInst  map[string]map[string]*model.Message    // instance -> message id -> message
	overlay map[string]map[string]*model.Message    // injected via CacheMessages, merged on top until next refresh
}

// New returns an empty instance-messages cache using DefaultRelayValidator.
func New(clusterName string, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		clusterName: clusterName,
		logger:      logger,
		validator:   DefaultRelayValidator,
		entries:     map[propkey.Key]*model.Message{},
		byInst:      map[string]map[string]*model.Message{},
		overlay:     map[string]map[string]*model.Message{},
	}
}

// SetRelayValidator overrides the relay-message precondition predicate.
func (c *Cache) SetRelayValidator(v RelayValidator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.validator = v
}

// Refresh rebuilds the per-instance message maps from the metadata store,
// applying the same stat-compare incremental-reload policy as the
// current-state sub-cache (spec §4.3).
func (c *Cache) Refresh(acc accessor.Accessor, liveInstances map[string]*model.LiveInstance) error {
	keyBuilder := acc.KeyBuilder()

	var expected []propkey.Key
	for instance := range liveInstances {
		names, err := acc.Children(keyBuilder.MessagesKey(instance))
		if err != nil {
			return fmt.Errorf("list messages for %s: %w", instance, err)
		}
		for _, id := range names {
			expected = append(expected, keyBuilder.MessageKey(instance, id))
		}
	}

	c.mu.RLock()
	prior := c.entries
	c.mu.RUnlock()

	entries, stats, err := accessor.IncrementalReload[*model.Message](acc, prior, expected, c.logger)
	if err != nil {
		return fmt.Errorf("reload messages: %w", err)
	}

	byInst := make(map[string]map[string]*model.Message)
	for key, msg := range entries {
		params := key.Params()
		if len(params) < 2 {
			continue
		}
		instance, id := params[0], params[1]
		perInst, ok := byInst[instance]
		if !ok {
			perInst = make(map[string]*model.Message)
			byInst[instance] = perInst
		}
		perInst[id] = msg
	}

	c.logger.Info("instance messages refresh complete",
		zap.Int("new", stats.New), zap.Int("reloaded", stats.Reloaded),
		zap.Int("skipped", stats.Skipped), zap.Int("missing", stats.Missing),
		zap.String("cluster", c.clusterName))
	metrics.RecordEntryReload("messages", stats.New, stats.Reloaded, stats.Skipped, stats.Missing)

	c.mu.Lock()
	c.entries = entries
	c.byInst = byInst
	c.overlay = make(map[string]map[string]*model.Message)
	c.mu.Unlock()
	return nil
}

// UpdateRelayMessages validates every pending relay message against a
// freshly refreshed current-state view and records the verdict on
// msg.Valid (spec §4.3). This must be called after current-state has been
// refreshed for this cycle.
//
// This marks, it does not drop: GetMessages still returns every message
// for an instance regardless of Valid. The pipeline stage consuming
// GetMessages is expected to check Valid itself before acting on a relay
// message — the sub-cache's job is only to keep that flag current, not to
// decide which stages are allowed to see a message that failed
// revalidation (a stage doing diagnostics or retry bookkeeping still needs
// to see it).
func (c *Cache) UpdateRelayMessages(liveInstances map[string]*model.LiveInstance, view currentstate.View) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, perInst := range c.byInst {
		for _, msg := range perInst {
			msg.Valid = c.validator(msg, view)
		}
	}
}

// GetMessages returns the message-id -> message map for one instance,
// overlaying any messages injected via CacheMessages since the last
// refresh. Messages are returned regardless of Valid — see
// UpdateRelayMessages.
func (c *Cache) GetMessages(instance string) map[string]*model.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]*model.Message)
	for id, msg := range c.byInst[instance] {
		out[id] = msg
	}
	for id, msg := range c.overlay[instance] {
		out[id] = msg
	}
	return out
}

// CacheMessages injects externally known messages into the per-instance
// map; the injection overlays until the next Refresh (spec §4.3).
func (c *Cache) CacheMessages(msgs []*model.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, msg := range msgs {
		perInst, ok := c.overlay[msg.TargetName]
		if !ok {
			perInst = make(map[string]*model.Message)
			c.overlay[msg.TargetName] = perInst
		}
		perInst[msg.ID] = msg
	}
}
