// Package clusterdata implements the cluster-data aggregator (spec §4.5):
// it owns the three sub-caches plus the coarser per-category caches, drives
// selective refresh from a dirty-bit table, computes the derived
// enabled/disabled indices, and exposes the full read API the rebalance
// pipeline consumes.
package clusterdata

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/10yihang/clustercache/internal/accessor"
	"github.com/10yihang/clustercache/internal/currentstate"
	"github.com/10yihang/clustercache/internal/messages"
	"github.com/10yihang/clustercache/internal/metrics"
	"github.com/10yihang/clustercache/internal/model"
	"github.com/10yihang/clustercache/internal/propkey"
	"github.com/10yihang/clustercache/internal/taskcache"
	"github.com/10yihang/clustercache/pkg/cerrors"
)

// ChangeCategory identifies one of the four primary per-category caches a
// watcher callback can mark dirty (spec §4.5).
type ChangeCategory int

const (
	IdealState ChangeCategory = iota
	LiveInstance
	InstanceConfig
	ResourceConfig
)

func (c ChangeCategory) String() string {
	switch c {
	case IdealState:
		return "IdealState"
	case LiveInstance:
		return "LiveInstance"
	case InstanceConfig:
		return "InstanceConfig"
	case ResourceConfig:
		return "ResourceConfig"
	default:
		return "Unknown"
	}
}

var primaryCategories = [...]ChangeCategory{IdealState, LiveInstance, InstanceConfig, ResourceConfig}

const memoCacheSize = 4096

// DebugSnapshot is a point-in-time dump of the aggregator's state, the Go
// analogue of the original's diagnostic toString() (spec §B.1 supplement).
type DebugSnapshot struct {
	ClusterName            string
	LiveInstanceCount      int
	IdealStateCount        int
	InstanceConfigCount    int
	ResourceConfigCount    int
	StateModelDefCount     int
	ConstraintCount        int
	MaintenanceModeEnabled bool
	DisabledInstanceCount  int
	OfflineInstanceCount   int
}

// liveSnapshot is the immutable, atomically published result of one
// Refresh: the four live category maps plus every derived index computed
// from them (spec §5: "readers take the current reference and iterate it
// without locking"; §9: "model the live view as an immutable value
// republished atomically on each refresh"). A snapshot is never mutated
// after Aggregator.Refresh installs it.
type liveSnapshot struct {
	idealStates     map[string]*model.IdealState
	liveInstances   map[string]*model.LiveInstance
	instanceConfigs map[string]*model.InstanceConfig
	resourceConfigs map[string]*model.ResourceConfig

	stateModelDefs map[string]*model.StateModelDefinition
	constraints    map[string]*model.ClusterConstraints
	clusterConfig  *model.ClusterConfig
	maintenance    *model.MaintenanceSignal

	instanceOfflineTimeMap map[string]int64

	idealStateRuleMap            map[string]map[string]string
	isMaintenanceModeEnabled     bool
	disabledInstanceSet          map[string]struct{}
	disabledInstanceForPartition map[string]map[string]map[string]struct{}
}

func emptyLiveSnapshot() *liveSnapshot {
	return &liveSnapshot{
		idealStates:                  map[string]*model.IdealState{},
		liveInstances:                map[string]*model.LiveInstance{},
		instanceConfigs:              map[string]*model.InstanceConfig{},
		resourceConfigs:              map[string]*model.ResourceConfig{},
		stateModelDefs:               map[string]*model.StateModelDefinition{},
		constraints:                  map[string]*model.ClusterConstraints{},
		instanceOfflineTimeMap:       map[string]int64{},
		idealStateRuleMap:            map[string]map[string]string{},
		disabledInstanceSet:          map[string]struct{}{},
		disabledInstanceForPartition: map[string]map[string]map[string]struct{}{},
	}
}

// Aggregator owns the cluster-wide snapshot. Construction starts every
// dirty bit set and every map empty, per spec §3's lifecycle note.
type Aggregator struct {
	clusterName string
	keyBuilder  propkey.Builder
	logger      *zap.Logger
	isTaskCache bool

	mu sync.Mutex // serializes Refresh, shadow-map setters, RequireFullRefresh

	dirtyMu sync.Mutex
	dirty   map[ChangeCategory]bool

	// Shadow maps: mutated only by Refresh (on a dirty category reload) and
	// by the setter methods. Never read by anything outside this package,
	// and never published to readers directly — only through a liveSnapshot.
	shadowIdealStates     map[string]*model.IdealState
	shadowLiveInstances   map[string]*model.LiveInstance
	shadowInstanceConfigs map[string]*model.InstanceConfig
	shadowResourceConfigs map[string]*model.ResourceConfig

	live atomic.Pointer[liveSnapshot]

	offlineStale bool
	firstRefresh bool

	resourceAssignmentCache *lru.Cache[string, any]
	idealMappingCache       *lru.Cache[string, any]

	targetExternalViewMap      map[string]any
	missingTopStateMap         map[string]any
	participantActiveTaskCount map[string]int

	currentState *currentstate.Cache
	messages     *messages.Cache
	task         *taskcache.Cache

	asyncTasksThreadPool Executor
}

// Executor abstracts the handle the async task pipeline runs on. The
// aggregator only stores and returns it via SetAsyncTasksThreadPool /
// AsyncTasksThreadPool (spec §5/§6, mirroring the original's
// _asyncTasksThreadPool field) — it never submits work to it itself.
type Executor interface {
	Submit(task func())
}

// New constructs an aggregator for clusterName. isTaskCache selects whether
// the task-data sub-cache participates in Refresh (spec §4.4).
func New(clusterName string, isTaskCache bool, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	resourceAssignmentCache, _ := lru.New[string, any](memoCacheSize)
	idealMappingCache, _ := lru.New[string, any](memoCacheSize)

	a := &Aggregator{
		clusterName:                clusterName,
		keyBuilder:                 propkey.NewBuilder(clusterName),
		logger:                     logger,
		isTaskCache:                isTaskCache,
		dirty:                      map[ChangeCategory]bool{},
		shadowIdealStates:          map[string]*model.IdealState{},
		shadowLiveInstances:        map[string]*model.LiveInstance{},
		shadowInstanceConfigs:      map[string]*model.InstanceConfig{},
		shadowResourceConfigs:      map[string]*model.ResourceConfig{},
		resourceAssignmentCache:    resourceAssignmentCache,
		idealMappingCache:          idealMappingCache,
		targetExternalViewMap:      map[string]any{},
		missingTopStateMap:         map[string]any{},
		participantActiveTaskCount: map[string]int{},
		currentState:               currentstate.New(clusterName, logger),
		messages:                   messages.New(clusterName, logger),
		task:                       taskcache.New(clusterName, logger),
		firstRefresh:               true,
		offlineStale:               true,
	}
	a.live.Store(emptyLiveSnapshot())
	for _, cat := range primaryCategories {
		a.dirty[cat] = true
	}
	return a
}

// SetRelayValidator overrides the instance-messages sub-cache's relay
// validation predicate (spec §9 design note: the predicate must be
// pluggable so the core stays agnostic to state-model specifics).
func (a *Aggregator) SetRelayValidator(v messages.RelayValidator) {
	a.messages.SetRelayValidator(v)
}

// NotifyDataChange marks a primary category dirty; safe to call
// concurrently with Refresh. The dirty-bit table has its own short-held
// mutex, separate from the refresh lock, so watcher callbacks never wait
// for a refresh in progress.
func (a *Aggregator) NotifyDataChange(cat ChangeCategory) {
	a.dirtyMu.Lock()
	a.dirty[cat] = true
	a.dirtyMu.Unlock()
}

// RequireFullRefresh marks every primary category dirty.
func (a *Aggregator) RequireFullRefresh() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dirtyMu.Lock()
	for _, cat := range primaryCategories {
		a.dirty[cat] = true
	}
	a.dirtyMu.Unlock()
}

func (a *Aggregator) takeDirty(cat ChangeCategory) bool {
	a.dirtyMu.Lock()
	defer a.dirtyMu.Unlock()
	if a.dirty[cat] {
		a.dirty[cat] = false
		return true
	}
	return false
}

func (a *Aggregator) isDirty(cat ChangeCategory) bool {
	a.dirtyMu.Lock()
	defer a.dirtyMu.Unlock()
	return a.dirty[cat]
}

// Refresh runs the full twelve-step refresh protocol (spec §4.5). It is
// mutually exclusive with itself and with the shadow-map setters.
func (a *Aggregator) Refresh(acc accessor.Accessor) error {
	start := time.Now()
	a.mu.Lock()
	defer a.mu.Unlock()
	defer func() { metrics.RefreshDuration.Observe(time.Since(start).Seconds()) }()

	dirtyAtStart := 0
	for _, cat := range primaryCategories {
		if a.isDirty(cat) {
			dirtyAtStart++
		}
	}
	metrics.DirtyCategories.Set(float64(dirtyAtStart))
	invalidateMemo := dirtyAtStart > 0

	// Step 1: reload dirty primary categories into shadow maps.
	if a.takeDirty(IdealState) {
		vals, err := accessor.TypedChildValuesMap[*model.IdealState](acc, a.keyBuilder.IdealStatesKey(), false)
		if err != nil {
			return fmt.Errorf("reload ideal states: %w: %w", cerrors.ErrAccessorUnavailable, err)
		}
		a.shadowIdealStates = vals
		metrics.CategoryReloadsTotal.WithLabelValues(IdealState.String()).Inc()
	}
	if a.takeDirty(LiveInstance) {
		vals, err := accessor.TypedChildValuesMap[*model.LiveInstance](acc, a.keyBuilder.LiveInstancesKey(), false)
		if err != nil {
			return fmt.Errorf("reload live instances: %w: %w", cerrors.ErrAccessorUnavailable, err)
		}
		a.shadowLiveInstances = vals
		metrics.CategoryReloadsTotal.WithLabelValues(LiveInstance.String()).Inc()
		a.offlineStale = true
	}
	if a.takeDirty(InstanceConfig) {
		vals, err := accessor.TypedChildValuesMap[*model.InstanceConfig](acc, a.keyBuilder.InstanceConfigsKey(), false)
		if err != nil {
			return fmt.Errorf("reload instance configs: %w: %w", cerrors.ErrAccessorUnavailable, err)
		}
		a.shadowInstanceConfigs = vals
		metrics.CategoryReloadsTotal.WithLabelValues(InstanceConfig.String()).Inc()
	}
	if a.takeDirty(ResourceConfig) {
		vals, err := accessor.TypedChildValuesMap[*model.ResourceConfig](acc, a.keyBuilder.ResourceConfigsKey(), false)
		if err != nil {
			return fmt.Errorf("reload resource configs: %w: %w", cerrors.ErrAccessorUnavailable, err)
		}
		a.shadowResourceConfigs = vals
		metrics.CategoryReloadsTotal.WithLabelValues(ResourceConfig.String()).Inc()
	}

	if invalidateMemo {
		a.resourceAssignmentCache.Purge()
		a.idealMappingCache.Purge()
	}

	prev := a.live.Load()
	next := &liveSnapshot{}

	// Step 2: snapshot shadow maps into live maps.
	next.idealStates = copyIdealStates(a.shadowIdealStates)
	next.liveInstances = copyLiveInstances(a.shadowLiveInstances)
	next.instanceConfigs = copyInstanceConfigs(a.shadowInstanceConfigs)
	next.resourceConfigs = copyResourceConfigs(a.shadowResourceConfigs)

	// Step 3: first run also forces the offline-time index stale.
	if a.firstRefresh {
		a.offlineStale = true
		a.firstRefresh = false
	}

	// Step 4: offline-time index.
	if a.offlineStale {
		offlineTimes, err := a.updateOfflineInstanceHistory(acc, next)
		if err != nil {
			return fmt.Errorf("update offline instance history: %w", err)
		}
		next.instanceOfflineTimeMap = offlineTimes
		a.offlineStale = false
	} else {
		next.instanceOfflineTimeMap = prev.instanceOfflineTimeMap
	}
	metrics.OfflineInstances.Set(float64(len(next.instanceOfflineTimeMap)))

	// Step 5: task sub-cache.
	if a.isTaskCache {
		if err := a.task.Refresh(acc, next.resourceConfigs); err != nil {
			return fmt.Errorf("refresh task cache: %w", err)
		}
	}

	// Step 6: unconditional reload of state-model defs/constraints/cluster
	// config/maintenance signal.
	stateModelDefs, err := accessor.TypedChildValuesMap[*model.StateModelDefinition](acc, a.keyBuilder.StateModelDefsKey(), false)
	if err != nil {
		return fmt.Errorf("reload state model defs: %w: %w", cerrors.ErrAccessorUnavailable, err)
	}
	next.stateModelDefs = stateModelDefs

	constraints, err := accessor.TypedChildValuesMap[*model.ClusterConstraints](acc, a.keyBuilder.ConstraintsKey(), false)
	if err != nil {
		return fmt.Errorf("reload constraints: %w: %w", cerrors.ErrAccessorUnavailable, err)
	}
	next.constraints = constraints

	clusterConfig, found, err := accessor.TypedGetProperty[*model.ClusterConfig](acc, a.keyBuilder.ClusterConfigKey())
	if err != nil {
		return fmt.Errorf("reload cluster config: %w: %w", cerrors.ErrAccessorUnavailable, err)
	}
	if found {
		next.clusterConfig = clusterConfig
	}

	maintenance, found, err := accessor.TypedGetProperty[*model.MaintenanceSignal](acc, a.keyBuilder.MaintenanceKey())
	if err != nil {
		return fmt.Errorf("reload maintenance signal: %w: %w", cerrors.ErrAccessorUnavailable, err)
	}
	if found {
		next.maintenance = maintenance
	}

	// Step 7: instance-messages sub-cache.
	if err := a.messages.Refresh(acc, next.liveInstances); err != nil {
		return fmt.Errorf("refresh messages: %w: %w", cerrors.ErrAccessorUnavailable, err)
	}

	// Step 8: current-state sub-cache (must precede relay refinement).
	if err := a.currentState.Refresh(acc, next.liveInstances); err != nil {
		return fmt.Errorf("refresh current state: %w: %w", cerrors.ErrAccessorUnavailable, err)
	}

	// Step 9: relay-message refinement against fresh current-state view.
	a.messages.UpdateRelayMessages(next.liveInstances, a.currentState.CurrentStatesMap())

	// Step 10: ideal-state-rule map.
	if next.clusterConfig != nil {
		next.idealStateRuleMap = next.clusterConfig.IdealStateRules
	} else {
		next.idealStateRuleMap = map[string]map[string]string{}
		a.logger.Warn("cluster config is nil, ideal state rule map is empty", zap.String("cluster", a.clusterName))
	}

	// Step 11: maintenance-mode flag.
	next.isMaintenanceModeEnabled = next.maintenance != nil

	// Step 12: disabled-instance derivation.
	next.disabledInstanceSet, next.disabledInstanceForPartition = recomputeDisabledInstances(next.instanceConfigs, next.clusterConfig)

	a.live.Store(next)

	a.logger.Info("cluster data refresh complete",
		zap.String("cluster", a.clusterName),
		zap.Int("liveInstances", len(next.liveInstances)),
		zap.Int("instanceConfigs", len(next.instanceConfigs)),
		zap.Duration("took", time.Since(start)))
	return nil
}

func recomputeDisabledInstances(instanceConfigs map[string]*model.InstanceConfig, clusterConfig *model.ClusterConfig) (map[string]struct{}, map[string]map[string]map[string]struct{}) {
	disabled := make(map[string]struct{})
	disabledForPartition := make(map[string]map[string]map[string]struct{})

	for name, cfg := range instanceConfigs {
		if !cfg.InstanceEnabled {
			disabled[name] = struct{}{}
		}
		for resource, partitions := range cfg.DisabledPartitionsMap {
			resMap, ok := disabledForPartition[resource]
			if !ok {
				resMap = make(map[string]map[string]struct{})
				disabledForPartition[resource] = resMap
			}
			for _, partition := range partitions {
				set, ok := resMap[partition]
				if !ok {
					set = make(map[string]struct{})
					resMap[partition] = set
				}
				set[name] = struct{}{}
			}
		}
	}

	if clusterConfig != nil {
		for name := range clusterConfig.DisabledInstances {
			disabled[name] = struct{}{}
		}
	}

	return disabled, disabledForPartition
}

// updateOfflineInstanceHistory implements spec §4.5 step 4: for every
// instance that has a config but is not currently live, ensure its
// participant history reflects an offline transition and record the
// timestamp in instanceOfflineTimeMap.
func (a *Aggregator) updateOfflineInstanceHistory(acc accessor.Accessor, next *liveSnapshot) (map[string]int64, error) {
	offlineTimes := make(map[string]int64)
	for instance := range next.instanceConfigs {
		if _, live := next.liveInstances[instance]; live {
			continue
		}

		key := a.keyBuilder.ParticipantHistoryKey(instance)
		history, found, err := accessor.TypedGetProperty[*model.ParticipantHistory](acc, key)
		if err != nil {
			return nil, fmt.Errorf("get participant history for %s: %w: %w", instance, cerrors.ErrAccessorUnavailable, err)
		}
		if !found {
			history = model.NewParticipantHistory(instance)
		}

		if history.LastOfflineTime == model.OnlineSentinel {
			history.ReportOffline(time.Now().UnixMilli())
			ok, err := acc.SetProperty(key, history)
			if err != nil || !ok {
				metrics.WriteBackFailuresTotal.WithLabelValues("participant_history").Inc()
				if err != nil {
					return nil, fmt.Errorf("write participant history for %s: %w: %w", instance, cerrors.ErrAccessorUnavailable, err)
				}
				return nil, fmt.Errorf("write participant history for %s: %w: rejected by metadata store", instance, cerrors.ErrAccessorUnavailable)
			}
		}
		offlineTimes[instance] = history.LastOfflineTime
	}
	return offlineTimes, nil
}

// --- shadow-map setters (spec §4.5, §9 open question resolution: these
// mutate only the shadow maps; live maps stay read-only between refreshes).

func (a *Aggregator) SetIdealStates(list []*model.IdealState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	m := make(map[string]*model.IdealState, len(list))
	for _, is := range list {
		m[is.ResourceName] = is
	}
	a.shadowIdealStates = m
}

func (a *Aggregator) SetLiveInstances(list []*model.LiveInstance) {
	a.mu.Lock()
	defer a.mu.Unlock()
	m := make(map[string]*model.LiveInstance, len(list))
	for _, li := range list {
		m[li.InstanceName] = li
	}
	a.shadowLiveInstances = m
}

func (a *Aggregator) SetInstanceConfigs(list []*model.InstanceConfig) {
	a.mu.Lock()
	defer a.mu.Unlock()
	m := make(map[string]*model.InstanceConfig, len(list))
	for _, ic := range list {
		m[ic.InstanceName] = ic
	}
	a.shadowInstanceConfigs = m
}

// --- scratch-state setters (spec §3, §5: not protected by the refresh
// lock; callers must not invoke these concurrently with Refresh).

func (a *Aggregator) SetTargetExternalView(resource string, v any) {
	a.targetExternalViewMap[resource] = v
}

func (a *Aggregator) GetTargetExternalView(resource string) any {
	return a.targetExternalViewMap[resource]
}

func (a *Aggregator) SetMissingTopState(resource string, v any) {
	a.missingTopStateMap[resource] = v
}

func (a *Aggregator) GetMissingTopState(resource string) any {
	return a.missingTopStateMap[resource]
}

func (a *Aggregator) SetParticipantActiveTaskCount(instance string, count int) {
	a.participantActiveTaskCount[instance] = count
}

func (a *Aggregator) GetParticipantActiveTaskCount(instance string) int {
	return a.participantActiveTaskCount[instance]
}

// ResetActiveTaskCount recomputes participantActiveTaskCount from already
// -derived per-instance counts, mirroring the original's
// resetActiveTaskCount reset-then-fill shape without this cache needing to
// understand task-pipeline internals (spec §B.1 supplement).
func (a *Aggregator) ResetActiveTaskCount(liveInstances []string, counts map[string]int) {
	a.participantActiveTaskCount = make(map[string]int, len(liveInstances))
	for _, instance := range liveInstances {
		a.participantActiveTaskCount[instance] = counts[instance]
	}
}

func (a *Aggregator) SetTaskCache(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.isTaskCache = enabled
}

// SetAsyncTasksThreadPool stores the executor handle the task pipeline
// submits async work to, mirroring the original's
// setAsyncTasksThreadPool. The aggregator never calls it itself.
func (a *Aggregator) SetAsyncTasksThreadPool(exec Executor) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.asyncTasksThreadPool = exec
}

// AsyncTasksThreadPool returns the executor handle set by
// SetAsyncTasksThreadPool, or nil if none has been set.
func (a *Aggregator) AsyncTasksThreadPool() Executor {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.asyncTasksThreadPool
}

// ClearMonitoringRecords resets the memo caches without waiting for the
// next dirty primary-category reload.
func (a *Aggregator) ClearMonitoringRecords() {
	a.resourceAssignmentCache.Purge()
	a.idealMappingCache.Purge()
}

// --- read API (spec §4.5) ---

func (a *Aggregator) GetIdealStates() map[string]*model.IdealState {
	return copyIdealStates(a.live.Load().idealStates)
}

func (a *Aggregator) GetIdealState(resource string) *model.IdealState {
	if is, ok := a.live.Load().idealStates[resource]; ok {
		return is.Clone()
	}
	return nil
}

func (a *Aggregator) GetLiveInstances() map[string]*model.LiveInstance {
	return copyLiveInstances(a.live.Load().liveInstances)
}

// GetAllInstances returns instanceConfig.keys (spec §4.5).
func (a *Aggregator) GetAllInstances() map[string]struct{} {
	instanceConfigs := a.live.Load().instanceConfigs
	out := make(map[string]struct{}, len(instanceConfigs))
	for name := range instanceConfigs {
		out[name] = struct{}{}
	}
	return out
}

func (a *Aggregator) GetEnabledInstances() map[string]struct{} {
	snap := a.live.Load()
	out := make(map[string]struct{})
	for name := range snap.instanceConfigs {
		if _, disabled := snap.disabledInstanceSet[name]; !disabled {
			out[name] = struct{}{}
		}
	}
	return out
}

func (a *Aggregator) GetEnabledLiveInstances() map[string]struct{} {
	snap := a.live.Load()
	out := make(map[string]struct{})
	for name := range snap.liveInstances {
		if _, disabled := snap.disabledInstanceSet[name]; !disabled {
			out[name] = struct{}{}
		}
	}
	return out
}

func (a *Aggregator) GetInstancesWithTag(tag string) map[string]struct{} {
	out := make(map[string]struct{})
	for name, cfg := range a.live.Load().instanceConfigs {
		if cfg.ContainsTag(tag) {
			out[name] = struct{}{}
		}
	}
	return out
}

func (a *Aggregator) GetEnabledLiveInstancesWithTag(tag string) map[string]struct{} {
	tagged := a.GetInstancesWithTag(tag)
	enabledLive := a.GetEnabledLiveInstances()
	out := make(map[string]struct{})
	for name := range tagged {
		if _, ok := enabledLive[name]; ok {
			out[name] = struct{}{}
		}
	}
	return out
}

// GetDisabledInstancesForPartition returns a copy of disabledInstanceSet
// unioned with disabledInstanceForPartitionMap[resource][partition], if
// present (spec §4.5).
func (a *Aggregator) GetDisabledInstancesForPartition(resource, partition string) map[string]struct{} {
	snap := a.live.Load()
	out := make(map[string]struct{}, len(snap.disabledInstanceSet))
	for name := range snap.disabledInstanceSet {
		out[name] = struct{}{}
	}
	if resMap, ok := snap.disabledInstanceForPartition[resource]; ok {
		if set, ok := resMap[partition]; ok {
			for name := range set {
				out[name] = struct{}{}
			}
		}
	}
	return out
}

// GetReplicas implements spec §4.5's getReplicas: ANY_LIVEINSTANCE resolves
// to the live-instance count; an unparseable count logs and returns -1; a
// missing ideal state returns -1.
func (a *Aggregator) GetReplicas(resource string) int {
	snap := a.live.Load()
	is, ok := snap.idealStates[resource]
	if !ok {
		return -1
	}
	if is.Replicas == model.AnyLiveInstanceSentinel {
		return len(snap.liveInstances)
	}
	n, err := strconv.Atoi(is.Replicas)
	if err != nil {
		a.logger.Warn("unparseable replica count",
			zap.String("resource", resource), zap.String("replicas", is.Replicas),
			zap.Error(fmt.Errorf("%w: %w", cerrors.ErrInvalidReplicas, err)))
		return -1
	}
	return n
}

func (a *Aggregator) GetConstraint(constraintType string) *model.ClusterConstraints {
	if c, ok := a.live.Load().constraints[constraintType]; ok {
		return c.Clone()
	}
	return nil
}

func (a *Aggregator) GetStateModelDef(ref string) *model.StateModelDefinition {
	if d, ok := a.live.Load().stateModelDefs[ref]; ok {
		return d.Clone()
	}
	return nil
}

func (a *Aggregator) GetResourceConfig(resource string) *model.ResourceConfig {
	if rc, ok := a.live.Load().resourceConfigs[resource]; ok {
		return rc.Clone()
	}
	return nil
}

// ClusterName returns the cluster-config-reported name if set, falling
// back to the constructor-supplied name otherwise (spec §B.1 supplement,
// mirroring the original's getClusterName()).
func (a *Aggregator) ClusterName() string {
	if cc := a.live.Load().clusterConfig; cc != nil && cc.ClusterName != "" {
		return cc.ClusterName
	}
	return a.clusterName
}

func (a *Aggregator) IsMaintenanceModeEnabled() bool {
	return a.live.Load().isMaintenanceModeEnabled
}

func (a *Aggregator) GetIdealStateRuleMap() map[string]map[string]string {
	src := a.live.Load().idealStateRuleMap
	out := make(map[string]map[string]string, len(src))
	for k, v := range src {
		inner := make(map[string]string, len(v))
		for ik, iv := range v {
			inner[ik] = iv
		}
		out[k] = inner
	}
	return out
}

func (a *Aggregator) InstanceOfflineTime(instance string) (int64, bool) {
	t, ok := a.live.Load().instanceOfflineTimeMap[instance]
	return t, ok
}

// CurrentStates exposes the current-state sub-cache's read API.
func (a *Aggregator) CurrentStates() *currentstate.Cache { return a.currentState }

// Messages exposes the instance-messages sub-cache's read API.
func (a *Aggregator) Messages() *messages.Cache { return a.messages }

// TaskCache exposes the task-data sub-cache's read API regardless of
// whether this aggregator is configured as a task cache. Refresh only
// refreshes it when isTaskCache is set; otherwise it is never refreshed and
// stays empty unless written through its own Update methods. Callers that
// must only run task-cache-only operations should use RequireTaskCache
// instead.
func (a *Aggregator) TaskCache() *taskcache.Cache { return a.task }

// RequireTaskCache returns the task-data sub-cache, or
// cerrors.ErrTaskCacheDisabled if this aggregator was not constructed with
// isTaskCache set (spec §4.4, §7 task-cache-disabled).
func (a *Aggregator) RequireTaskCache() (*taskcache.Cache, error) {
	if !a.isTaskCache {
		return nil, cerrors.ErrTaskCacheDisabled
	}
	return a.task, nil
}

// MemoizeResourceAssignment caches a pipeline-computed assignment for
// resource, subject to invalidation on the next primary-category reload.
func (a *Aggregator) MemoizeResourceAssignment(resource string, assignment any) {
	a.resourceAssignmentCache.Add(resource, assignment)
}

func (a *Aggregator) ResourceAssignment(resource string) (any, bool) {
	return a.resourceAssignmentCache.Get(resource)
}

func (a *Aggregator) MemoizeIdealMapping(resource string, mapping any) {
	a.idealMappingCache.Add(resource, mapping)
}

func (a *Aggregator) IdealMapping(resource string) (any, bool) {
	return a.idealMappingCache.Get(resource)
}

// DebugSnapshot returns a point-in-time summary of the aggregator's state
// (spec §B.1 supplement).
func (a *Aggregator) DebugSnapshot() DebugSnapshot {
	snap := a.live.Load()
	return DebugSnapshot{
		ClusterName:            a.ClusterName(),
		LiveInstanceCount:      len(snap.liveInstances),
		IdealStateCount:        len(snap.idealStates),
		InstanceConfigCount:    len(snap.instanceConfigs),
		ResourceConfigCount:    len(snap.resourceConfigs),
		StateModelDefCount:     len(snap.stateModelDefs),
		ConstraintCount:        len(snap.constraints),
		MaintenanceModeEnabled: snap.isMaintenanceModeEnabled,
		DisabledInstanceCount:  len(snap.disabledInstanceSet),
		OfflineInstanceCount:   len(snap.instanceOfflineTimeMap),
	}
}

func copyIdealStates(m map[string]*model.IdealState) map[string]*model.IdealState {
	out := make(map[string]*model.IdealState, len(m))
	for k, v := range m {
		out[k] = v.Clone()
	}
	return out
}

func copyLiveInstances(m map[string]*model.LiveInstance) map[string]*model.LiveInstance {
	out := make(map[string]*model.LiveInstance, len(m))
	for k, v := range m {
		out[k] = v.Clone()
	}
	return out
}

func copyInstanceConfigs(m map[string]*model.InstanceConfig) map[string]*model.InstanceConfig {
	out := make(map[string]*model.InstanceConfig, len(m))
	for k, v := range m {
		out[k] = v.Clone()
	}
	return out
}

func copyResourceConfigs(m map[string]*model.ResourceConfig) map[string]*model.ResourceConfig {
	out := make(map[string]*model.ResourceConfig, len(m))
	for k, v := range m {
		out[k] = v.Clone()
	}
	return out
}
