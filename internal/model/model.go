// Package model holds the domain entities the cache reads from the
// metadata store (spec §3). Every record type embeds base, which satisfies
// the accessor.Record interface, and provides a Clone that performs a
// deep-enough copy to hand out to readers without aliasing mutable
// internals. JobConfig and WorkflowConfig are derived views rather than
// records: they embed no base and have no Clone.
package model

import "github.com/10yihang/clustercache/internal/accessor"

type base struct {
	stat accessor.Stat
}

func (b *base) GetStat() accessor.Stat   { return b.stat }
func (b *base) SetStat(s accessor.Stat)  { b.stat = s }

// LiveInstance records that an instance is currently connected to the
// metadata store under the given session.
type LiveInstance struct {
	base
	InstanceName string
	SessionID    string
}

func (l *LiveInstance) Clone() *LiveInstance {
	cp := *l
	return &cp
}

// IdealState is the declarative desired placement of a resource's
// partitions across instances. The core cache does not interpret the
// placement map itself — pipeline stages do — but it does interpret the
// Replicas field for getReplicas (spec §4.5).
type IdealState struct {
	base
	ResourceName     string
	Replicas         string // integer string, or the sentinel "ANY_LIVEINSTANCE"
	StateModelDefRef string
	Preferences      map[string][]string // partition -> ordered preferred instances
}

// AnyLiveInstanceSentinel is the replicas value meaning "one replica per
// live instance" (spec §4.5 getReplicas).
const AnyLiveInstanceSentinel = "ANY_LIVEINSTANCE"

func (i *IdealState) Clone() *IdealState {
	cp := *i
	cp.Preferences = make(map[string][]string, len(i.Preferences))
	for k, v := range i.Preferences {
		cp.Preferences[k] = append([]string(nil), v...)
	}
	return &cp
}

// InstanceConfig is the per-instance configuration. Every live instance has
// one; not every configured instance is live.
type InstanceConfig struct {
	base
	InstanceName          string
	InstanceEnabled       bool
	DisabledPartitionsMap map[string][]string // resource -> disabled partition names
	Tags                  []string
}

// ContainsTag reports whether this instance carries the given group tag.
func (c *InstanceConfig) ContainsTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func (c *InstanceConfig) Clone() *InstanceConfig {
	cp := *c
	cp.DisabledPartitionsMap = make(map[string][]string, len(c.DisabledPartitionsMap))
	for k, v := range c.DisabledPartitionsMap {
		cp.DisabledPartitionsMap[k] = append([]string(nil), v...)
	}
	cp.Tags = append([]string(nil), c.Tags...)
	return &cp
}

// ResourceConfigKind classifies a ResourceConfig as a plain resource, a
// task-framework job, or a task-framework workflow (spec §4.4 supplement).
type ResourceConfigKind int

const (
	ResourceKindPlain ResourceConfigKind = iota
	ResourceKindJob
	ResourceKindWorkflow
)

// ResourceConfig is optional per-resource configuration. When Kind is
// ResourceKindJob or ResourceKindWorkflow, the task-data sub-cache derives
// a JobConfig/WorkflowConfig view of it from Properties.
type ResourceConfig struct {
	base
	ResourceName string
	Kind         ResourceConfigKind
	Properties   map[string]string
}

func (r *ResourceConfig) Clone() *ResourceConfig {
	cp := *r
	cp.Properties = make(map[string]string, len(r.Properties))
	for k, v := range r.Properties {
		cp.Properties[k] = v
	}
	return &cp
}

// StateModelDefinition describes the allowed states and transitions for a
// resource type. The cache treats the transition table as opaque.
type StateModelDefinition struct {
	base
	Ref    string
	States []string
}

func (d *StateModelDefinition) Clone() *StateModelDefinition {
	cp := *d
	cp.States = append([]string(nil), d.States...)
	return &cp
}

// ClusterConstraints holds one constraint-type's rule set, indexed by type
// tag. The core cache treats the rules as opaque.
type ClusterConstraints struct {
	base
	Type  string
	Rules map[string]string
}

func (c *ClusterConstraints) Clone() *ClusterConstraints {
	cp := *c
	cp.Rules = make(map[string]string, len(c.Rules))
	for k, v := range c.Rules {
		cp.Rules[k] = v
	}
	return &cp
}

// ClusterConfig is the cluster-wide configuration record.
type ClusterConfig struct {
	base
	ClusterName       string
	IdealStateRules   map[string]map[string]string
	DisabledInstances map[string]struct{}
}

func (c *ClusterConfig) Clone() *ClusterConfig {
	cp := *c
	cp.IdealStateRules = make(map[string]map[string]string, len(c.IdealStateRules))
	for k, v := range c.IdealStateRules {
		inner := make(map[string]string, len(v))
		for ik, iv := range v {
			inner[ik] = iv
		}
		cp.IdealStateRules[k] = inner
	}
	cp.DisabledInstances = make(map[string]struct{}, len(c.DisabledInstances))
	for k := range c.DisabledInstances {
		cp.DisabledInstances[k] = struct{}{}
	}
	return &cp
}

// MaintenanceSignal's mere presence at its well-known path indicates the
// cluster is in maintenance mode; its fields are informational only.
type MaintenanceSignal struct {
	base
	Reason string
}

func (m *MaintenanceSignal) Clone() *MaintenanceSignal {
	cp := *m
	return &cp
}

// OnlineSentinel is the ParticipantHistory.LastOfflineTime value meaning
// "currently online, never recorded an offline transition" (spec §6).
const OnlineSentinel int64 = -1

// ParticipantHistory is the only entity the cache writes back to the
// metadata store, from updateOfflineInstanceHistory (spec §4.5 step 4).
type ParticipantHistory struct {
	base
	InstanceName    string
	LastOfflineTime int64
	OfflineHistory  []int64
}

// NewParticipantHistory returns a fresh online history for an instance that
// has no prior record in the metadata store.
func NewParticipantHistory(instance string) *ParticipantHistory {
	return &ParticipantHistory{InstanceName: instance, LastOfflineTime: OnlineSentinel}
}

// ReportOffline transitions the history to offline at the given wall-clock
// time, mirroring the original reportOffline() semantics exactly.
func (p *ParticipantHistory) ReportOffline(nowMillis int64) {
	p.LastOfflineTime = nowMillis
	p.OfflineHistory = append(p.OfflineHistory, nowMillis)
}

func (p *ParticipantHistory) Clone() *ParticipantHistory {
	cp := *p
	cp.OfflineHistory = append([]int64(nil), p.OfflineHistory...)
	return &cp
}

// CurrentState is a participant's reported actual state for the
// partitions it hosts, scoped by session and state-name bucket.
type CurrentState struct {
	base
	InstanceName    string
	SessionID       string
	StateName       string
	BucketSizeValue int
	PartitionStates map[string]string // partition -> state
}

// BucketSize satisfies accessor.Bucketed: a positive value means this
// record's logical content may span multiple physical entries, so a stat
// match alone cannot prove the content unchanged (spec §4.2 step 3).
func (c *CurrentState) BucketSize() int { return c.BucketSizeValue }

func (c *CurrentState) Clone() *CurrentState {
	cp := *c
	cp.PartitionStates = make(map[string]string, len(c.PartitionStates))
	for k, v := range c.PartitionStates {
		cp.PartitionStates[k] = v
	}
	return &cp
}

// Message is an outstanding transition targeted at one instance. A subset
// of messages are relay hand-offs between participants, validated against
// current state by the instance-messages sub-cache's relay refinement.
type Message struct {
	base
	ID            string
	TargetName    string
	TargetSession string
	FromState     string
	ToState       string
	IsRelay       bool
	RelayFromHost string
	Valid         bool
}

func (m *Message) Clone() *Message {
	cp := *m
	return &cp
}

// JobConfig is a typed view over a ResourceConfig of kind ResourceKindJob.
type JobConfig struct {
	ResourceName string
	WorkflowName string
	Command      string
}

// WorkflowConfig is a typed view over a ResourceConfig of kind
// ResourceKindWorkflow.
type WorkflowConfig struct {
	ResourceName string
	Dag          []string // job names in dependency order
}

// JobContext is the mutable run state of a job, written back to the
// metadata store via TaskCache.UpdateJobContext.
type JobContext struct {
	base
	ResourceName    string
	PartitionStates map[string]string // partition -> RUNNING/COMPLETED/...
	StartTime       int64
}

func (c *JobContext) Clone() *JobContext {
	cp := *c
	cp.PartitionStates = make(map[string]string, len(c.PartitionStates))
	for k, v := range c.PartitionStates {
		cp.PartitionStates[k] = v
	}
	return &cp
}

// WorkflowContext is the mutable run state of a workflow, written back to
// the metadata store via TaskCache.UpdateWorkflowContext.
type WorkflowContext struct {
	base
	ResourceName string
	JobStates    map[string]string // job resource name -> state
	StartTime    int64
}

func (c *WorkflowContext) Clone() *WorkflowContext {
	cp := *c
	cp.JobStates = make(map[string]string, len(c.JobStates))
	for k, v := range c.JobStates {
		cp.JobStates[k] = v
	}
	return &cp
}
