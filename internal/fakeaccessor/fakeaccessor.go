// Package fakeaccessor provides an in-memory accessor.Accessor test double.
// It mirrors the positional-alignment and null-means-missing semantics real
// implementations must honor (spec §4.1), the way the teacher's
// internal/cluster/state tests stand up a mockProvider instead of reaching
// for a mocking framework.
package fakeaccessor

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/10yihang/clustercache/internal/accessor"
	"github.com/10yihang/clustercache/internal/propkey"
)

// Accessor is a deterministic, in-memory metadata store. The zero value is
// not usable; construct with New.
type Accessor struct {
	clusterName string

	mu      sync.Mutex
	records map[propkey.Key]accessor.Record
	nextVer map[propkey.Key]int32
}

// New returns an empty fake accessor scoped to clusterName.
func New(clusterName string) *Accessor {
	return &Accessor{
		clusterName: clusterName,
		records:     map[propkey.Key]accessor.Record{},
		nextVer:     map[propkey.Key]int32{},
	}
}

// Seed writes record at key with a fresh version, as if a prior refresh had
// already observed it. Intended for test setup, not for exercising
// SetProperty's write-back path.
func (a *Accessor) Seed(key propkey.Key, record accessor.Record) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.putLocked(key, record)
}

// Bump rewrites the stat on an existing record without changing its
// content, letting tests provoke a "stat mismatch" reload deliberately.
func (a *Accessor) Bump(key propkey.Key) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.records[key]
	if !ok {
		return
	}
	a.putLocked(key, rec)
}

// NewID returns a fresh unique identifier, for tests that need one (e.g.
// message ids) without caring about its exact shape.
func NewID() string {
	return uuid.NewString()
}

func (a *Accessor) putLocked(key propkey.Key, record accessor.Record) {
	ver := a.nextVer[key] + 1
	a.nextVer[key] = ver
	stat := accessor.Stat{CreationTime: 1, ModifiedTime: int64(ver), Version: ver}
	record.SetStat(stat)
	a.records[key] = record
}

// itemCategory maps a collection key's category to the category its
// children are actually stored under. Every category is its own item
// category except CurrentStates, whose children are CurrentState entries
// (propkey.go deliberately mints a distinct category for the bucket-name
// item key; spec §9's "encode params as named fields" note is honored by
// keeping the two categories distinct rather than collapsing them).
func itemCategory(collection propkey.Category) propkey.Category {
	if collection == propkey.CurrentStates {
		return propkey.CurrentState
	}
	return collection
}

func (a *Accessor) Children(parent propkey.Key) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	itemCat := itemCategory(parent.Category)
	parentParams := parent.Params()
	seen := map[string]struct{}{}
	for key := range a.records {
		if key.Category != itemCat {
			continue
		}
		keyParams := key.Params()
		if !hasPrefix(keyParams, parentParams) {
			continue
		}
		if len(keyParams) <= len(parentParams) {
			continue
		}
		seen[keyParams[len(parentParams)]] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func hasPrefix(params, prefix []string) bool {
	if len(params) < len(prefix) {
		return false
	}
	for i, p := range prefix {
		if params[i] != p {
			return false
		}
	}
	return true
}

func (a *Accessor) ChildValuesMap(parent propkey.Key, throwOnMissing bool) (map[string]accessor.Record, error) {
	names, _ := a.Children(parent)
	a.mu.Lock()
	defer a.mu.Unlock()

	itemCat := itemCategory(parent.Category)
	out := make(map[string]accessor.Record, len(names))
	for _, name := range names {
		key := propkey.New(itemCat, append(append([]string(nil), parent.Params()...), name)...)
		if rec, ok := a.records[key]; ok {
			out[name] = rec
		} else if throwOnMissing {
			return nil, fmt.Errorf("child %s of %s missing", name, parent)
		}
	}
	return out, nil
}

func (a *Accessor) GetProperty(key propkey.Key) (accessor.Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.records[key], nil
}

func (a *Accessor) GetProperties(keys []propkey.Key, throwOnMissing bool) ([]accessor.Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]accessor.Record, len(keys))
	for i, key := range keys {
		out[i] = a.records[key]
	}
	return out, nil
}

func (a *Accessor) GetPropertyStats(keys []propkey.Key) ([]*accessor.Stat, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*accessor.Stat, len(keys))
	for i, key := range keys {
		if rec, ok := a.records[key]; ok {
			stat := rec.GetStat()
			out[i] = &stat
		}
	}
	return out, nil
}

func (a *Accessor) SetProperty(key propkey.Key, record accessor.Record) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.putLocked(key, record)
	return true, nil
}

func (a *Accessor) KeyBuilder() propkey.Builder {
	return propkey.NewBuilder(a.clusterName)
}

// DebugDump lists every key currently stored, for failure-message context
// in tests. Never parsed by callers.
func (a *Accessor) DebugDump() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var lines []string
	for key := range a.records {
		lines = append(lines, key.String())
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

var _ accessor.Accessor = (*Accessor)(nil)
