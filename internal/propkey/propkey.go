// Package propkey implements the typed property-key variant described in
// the cache's design notes: a category tag plus an ordered parameter
// vector, compared by value rather than by formatted path string.
package propkey

import "strings"

// Category identifies which part of the metadata tree a Key addresses.
type Category string

const (
	ClusterConfig      Category = "ClusterConfig"
	IdealStates        Category = "IdealStates"
	LiveInstances      Category = "LiveInstances"
	InstanceConfigs    Category = "InstanceConfigs"
	ResourceConfigs    Category = "ResourceConfigs"
	StateModelDefs     Category = "StateModelDefs"
	Constraints        Category = "Constraints"
	Maintenance        Category = "Maintenance"
	ParticipantHistory Category = "ParticipantHistory"
	CurrentStates      Category = "CurrentStates"
	CurrentState       Category = "CurrentState"
	Messages           Category = "Messages"
	JobContext         Category = "JobContext"
	WorkflowContext    Category = "WorkflowContext"
)

// paramSep joins encoded params in Key.path. Chosen as a control character
// so it can't collide with an instance/resource/session name coming out of
// the metadata store.
const paramSep = "\x1f"

// Key is an opaque path into the metadata store: a category tag plus an
// ordered vector of identifier strings, canonically encoded as a single
// comparable string so Key itself stays comparable and usable as a map
// key — every sub-cache keys its entry store by Key. Two keys compare
// equal iff their category and parameters are equal element-for-element.
type Key struct {
	Category Category
	path     string
}

// New builds a Key from an ordered parameter vector.
func New(category Category, params ...string) Key {
	return Key{Category: category, path: strings.Join(params, paramSep)}
}

// Params returns the ordered parameter vector, decoded fresh on each call.
func (k Key) Params() []string {
	if k.path == "" {
		return nil
	}
	return strings.Split(k.path, paramSep)
}

// Equal reports whether k and o address the same property.
func (k Key) Equal(o Key) bool {
	return k == o
}

// String renders a diagnostic (non-canonical, human-readable only) form.
func (k Key) String() string {
	if k.path == "" {
		return string(k.Category)
	}
	return string(k.Category) + "/" + strings.ReplaceAll(k.path, paramSep, "/")
}

// Builder constructs category keys for a given cluster. It holds no state
// beyond the cluster name and performs no I/O; it is the Go analogue of the
// metadata store's typed key-builder contract (spec: "keyBuilder()").
type Builder struct {
	ClusterName string
}

// NewBuilder returns a Builder for the given cluster.
func NewBuilder(clusterName string) Builder {
	return Builder{ClusterName: clusterName}
}

func (b Builder) ClusterConfigKey() Key { return New(ClusterConfig) }

// IdealStatesKey is the collection key, used with Children/ChildValuesMap.
func (b Builder) IdealStatesKey() Key { return New(IdealStates) }

func (b Builder) LiveInstancesKey() Key { return New(LiveInstances) }

func (b Builder) InstanceConfigsKey() Key { return New(InstanceConfigs) }

func (b Builder) ResourceConfigsKey() Key { return New(ResourceConfigs) }

func (b Builder) StateModelDefsKey() Key { return New(StateModelDefs) }

func (b Builder) ConstraintsKey() Key { return New(Constraints) }

func (b Builder) MaintenanceKey() Key { return New(Maintenance) }

func (b Builder) ParticipantHistoryKey(instance string) Key {
	return New(ParticipantHistory, instance)
}

// CurrentStatesKey is the per-session collection key: children of this key
// are the current-state bucket names reported under that session.
func (b Builder) CurrentStatesKey(instance, session string) Key {
	return New(CurrentStates, instance, session)
}

func (b Builder) CurrentStateKey(instance, session, name string) Key {
	return New(CurrentState, instance, session, name)
}

// MessagesKey is the per-instance collection key for outstanding messages.
func (b Builder) MessagesKey(instance string) Key {
	return New(Messages, instance)
}

func (b Builder) MessageKey(instance, messageID string) Key {
	return New(Messages, instance, messageID)
}

func (b Builder) JobContextKey(resource string) Key {
	return New(JobContext, resource)
}

func (b Builder) WorkflowContextKey(resource string) Key {
	return New(WorkflowContext, resource)
}
