// Package currentstate implements the current-state sub-cache (spec §4.2):
// a per-instance, per-session, per-state-name map of current-state records,
// rebuilt each refresh with a version-compared incremental reload so that
// unchanged entries are never refetched.
package currentstate

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/10yihang/clustercache/internal/accessor"
	"github.com/10yihang/clustercache/internal/metrics"
	"github.com/10yihang/clustercache/internal/model"
	"github.com/10yihang/clustercache/internal/propkey"
	"github.com/10yihang/clustercache/pkg/cerrors"
)

// View is the three-level nested map an aggregator refresh publishes:
// instance -> session -> state-name -> record. It is never mutated after
// publication; readers share it lock-free.
type View map[string]map[string]map[string]*model.CurrentState

var emptySessionMap = map[string]*model.CurrentState{}
var emptyInstanceMap = map[string]map[string]*model.CurrentState{}

type snapshot struct {
	entries map[propkey.Key]*model.CurrentState
	view    View
}

// Cache holds current-state records for every live instance in the
// cluster, keyed by (instance, session, state-name bucket).
type Cache struct {
	clusterName string
	logger      *zap.Logger
	current     atomic.Pointer[snapshot]
}

// New returns an empty current-state cache. logger may be nil, in which
// case a no-op logger is used.
func New(clusterName string, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Cache{clusterName: clusterName, logger: logger}
	c.current.Store(&snapshot{entries: map[propkey.Key]*model.CurrentState{}, view: View{}})
	return c
}

// Refresh rebuilds the entry store and view from the metadata store,
// reusing any entry whose stat is unchanged and whose content is not
// bucketed (spec §4.2 steps 1-6).
func (c *Cache) Refresh(acc accessor.Accessor, liveInstances map[string]*model.LiveInstance) error {
	prior := c.current.Load()
	keyBuilder := acc.KeyBuilder()

	var expected []propkey.Key
	for instance, live := range liveInstances {
		names, err := acc.Children(keyBuilder.CurrentStatesKey(instance, live.SessionID))
		if err != nil {
			return fmt.Errorf("list current states for %s/%s: %w", instance, live.SessionID, err)
		}
		for _, name := range names {
			expected = append(expected, keyBuilder.CurrentStateKey(instance, live.SessionID, name))
		}
	}

	entries, stats, err := accessor.IncrementalReload[*model.CurrentState](acc, prior.entries, expected, c.logger)
	if err != nil {
		return fmt.Errorf("reload current states: %w", err)
	}

	view := make(View)
	for key, record := range entries {
		params := key.Params()
		if len(params) < 3 {
			continue
		}
		instance, session, stateName := params[0], params[1], params[2]
		// expected keys are derived from liveInstances' own session ids, so
		// this should never trigger; it guards spec §4.2's invariant ("for
		// all (instance, session) in the view, session == liveInstance's
		// sessionId") against a metadata store that returns stale children.
		if live, ok := liveInstances[instance]; ok && live.SessionID != session {
			c.logger.Warn("dropping current state entry under stale session",
				zap.String("instance", instance), zap.String("session", session),
				zap.Error(cerrors.ErrSessionMismatch))
			continue
		}
		sessions, ok := view[instance]
		if !ok {
			sessions = make(map[string]map[string]*model.CurrentState)
			view[instance] = sessions
		}
		byName, ok := sessions[session]
		if !ok {
			byName = make(map[string]*model.CurrentState)
			sessions[session] = byName
		}
		byName[stateName] = record
	}

	c.logger.Info("current state refresh complete",
		zap.Int("new", stats.New), zap.Int("reloaded", stats.Reloaded),
		zap.Int("skipped", stats.Skipped), zap.Int("missing", stats.Missing),
		zap.String("cluster", c.clusterName))
	metrics.RecordEntryReload("currentstate", stats.New, stats.Reloaded, stats.Skipped, stats.Missing)

	c.current.Store(&snapshot{entries: entries, view: view})
	return nil
}

// CurrentStatesMap returns the full immutable view for all instances.
func (c *Cache) CurrentStatesMap() View {
	return c.current.Load().view
}

// CurrentStates returns the session->name->record map for one instance, or
// an empty map if the instance has no current-state entries.
func (c *Cache) CurrentStates(instance string) map[string]map[string]*model.CurrentState {
	if m, ok := c.current.Load().view[instance]; ok {
		return m
	}
	return emptyInstanceMap
}

// CurrentState returns the name->record map for one (instance, session), or
// an empty map if absent.
func (c *Cache) CurrentState(instance, session string) map[string]*model.CurrentState {
	sessions, ok := c.current.Load().view[instance]
	if !ok {
		return emptySessionMap
	}
	if m, ok := sessions[session]; ok {
		return m
	}
	return emptySessionMap
}
