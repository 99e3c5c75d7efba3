// Package accessor defines the metadata-store accessor contract consumed
// by the cache (spec §4.1). The coordination-service client itself — the
// thing that actually talks to a watched key-value tree such as ZooKeeper —
// is an external collaborator and out of scope here; this package only
// defines the boundary the cache's sub-caches are written against, plus the
// generic helpers shared by every sub-cache that implements the
// stat-compare incremental reload policy (spec §4.2 step 3, §4.3).
package accessor

import (
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/10yihang/clustercache/internal/propkey"
)

// Stat is version metadata attached to every record fetched from the
// metadata store. Two stats compare equal iff all components are equal,
// and for non-bucketed records that equality implies the record bytes are
// unchanged (spec §3).
type Stat struct {
	CreationTime int64
	ModifiedTime int64
	Version      int32
}

// Equal reports whether two stats describe the same record revision.
func (s Stat) Equal(o Stat) bool {
	return s == o
}

// Record is implemented by every domain entity the cache fetches from the
// metadata store. It carries the Stat the accessor attached on read.
type Record interface {
	GetStat() Stat
	SetStat(Stat)
}

// Bucketed is optionally implemented by a Record whose logical content may
// be split across multiple physical entries. A positive bucket size means
// single-stat comparison is insufficient to prove the content unchanged
// (spec §4.2 step 3's policy note), so IncrementalReload always reloads
// such records rather than trusting a stat match.
type Bucketed interface {
	BucketSize() int
}

// Accessor is the contract the cache consumes from the metadata store.
// Production implementations live outside this module; New in the
// fakeaccessor package provides an in-memory test double that honors the same
// null-means-missing and positional-alignment semantics real
// implementations must.
type Accessor interface {
	// Children lists the names under parent, or an empty slice if parent
	// has no children (never an error for "doesn't exist yet").
	Children(parent propkey.Key) ([]string, error)

	// ChildValuesMap batch-fetches every child of parent as a Record. A
	// child whose value could not be read is omitted from the map; if
	// throwOnMissing is true that omission is itself reported as an error.
	ChildValuesMap(parent propkey.Key, throwOnMissing bool) (map[string]Record, error)

	// GetProperty fetches a single record, or nil if it does not exist.
	GetProperty(key propkey.Key) (Record, error)

	// GetProperties batch-fetches, result positionally aligned with keys;
	// an entry is nil if that key does not exist.
	GetProperties(keys []propkey.Key, throwOnMissing bool) ([]Record, error)

	// GetPropertyStats batch-fetches version metadata only, result
	// positionally aligned with keys; an entry is nil if that key does not
	// exist.
	GetPropertyStats(keys []propkey.Key) ([]*Stat, error)

	// SetProperty writes a value, returning whether the write succeeded.
	SetProperty(key propkey.Key, record Record) (bool, error)

	// KeyBuilder returns a key builder scoped to this accessor's cluster.
	KeyBuilder() propkey.Builder
}

// TypedChildValuesMap fetches parent's children and downcasts each value to
// T, dropping entries of the wrong concrete type.
func TypedChildValuesMap[T Record](acc Accessor, parent propkey.Key, throwOnMissing bool) (map[string]T, error) {
	raw, err := acc.ChildValuesMap(parent, throwOnMissing)
	if err != nil {
		return nil, err
	}
	out := make(map[string]T, len(raw))
	for name, rec := range raw {
		if rec == nil {
			continue
		}
		typed, ok := rec.(T)
		if !ok {
			continue
		}
		out[name] = typed
	}
	return out, nil
}

// TypedGetProperty fetches and downcasts a single property. The second
// return value is false if the property does not exist or is the wrong
// concrete type.
func TypedGetProperty[T Record](acc Accessor, key propkey.Key) (T, bool, error) {
	var zero T
	rec, err := acc.GetProperty(key)
	if err != nil {
		return zero, false, err
	}
	if rec == nil {
		return zero, false, nil
	}
	typed, ok := rec.(T)
	if !ok {
		return zero, false, nil
	}
	return typed, true, nil
}

// TypedGetProperties batch-fetches and downcasts, result positionally
// aligned with keys; a slot is the zero value of T if missing or of the
// wrong concrete type.
func TypedGetProperties[T Record](acc Accessor, keys []propkey.Key, throwOnMissing bool) ([]T, error) {
	recs, err := acc.GetProperties(keys, throwOnMissing)
	if err != nil {
		return nil, err
	}
	out := make([]T, len(recs))
	for i, rec := range recs {
		if rec == nil {
			continue
		}
		if typed, ok := rec.(T); ok {
			out[i] = typed
		}
	}
	return out, nil
}

// ReloadStats tallies what IncrementalReload actually did, for logging and
// for the accessor-call-count testable properties in spec §8.
type ReloadStats struct {
	New      int // keys absent from prior, fetched in full
	Reloaded int // keys present in prior but stat-mismatched or bucketed, refetched
	Skipped  int // keys present in prior, stat matched, reused without a fetch
	Missing  int // keys expected (from a children listing) that came back null
}

func isNilRecord(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Chan, reflect.Func:
		return rv.IsNil()
	default:
		return false
	}
}

// IncrementalReload implements the stat-compare refresh policy shared by
// the current-state and instance-messages sub-caches (spec §4.2, §4.3):
// keys newly expected this refresh are fetched in full; keys that were
// already cached are stat-compared in a single batch call and only
// refetched on a stat mismatch, a null stat, or a bucketed record. Keys not
// in expected are dropped implicitly — prior is never consulted for keys
// outside expected, so stale entries never survive a refresh.
func IncrementalReload[T Record](acc Accessor, prior map[propkey.Key]T, expected []propkey.Key, logger *zap.Logger) (map[propkey.Key]T, ReloadStats, error) {
	var stats ReloadStats

	newKeys := make(map[propkey.Key]struct{})
	var maybeCached []propkey.Key
	for _, key := range expected {
		if _, ok := prior[key]; ok {
			maybeCached = append(maybeCached, key)
		} else {
			newKeys[key] = struct{}{}
		}
	}

	result := make(map[propkey.Key]T, len(expected))
	reloadKeys := make([]propkey.Key, 0, len(newKeys)+len(maybeCached))
	for key := range newKeys {
		reloadKeys = append(reloadKeys, key)
	}

	if len(maybeCached) > 0 {
		statList, err := acc.GetPropertyStats(maybeCached)
		if err != nil {
			return nil, stats, fmt.Errorf("get property stats: %w", err)
		}
		for i, key := range maybeCached {
			stat := statList[i]
			if stat == nil {
				logger.Warn("stat missing for cached key, scheduling reload", zap.Stringer("key", key))
				reloadKeys = append(reloadKeys, key)
				continue
			}
			cached := prior[key]
			reusable := cached.GetStat().Equal(*stat)
			if b, ok := any(cached).(Bucketed); ok && b.BucketSize() > 0 {
				reusable = false
			}
			if reusable {
				result[key] = cached
				stats.Skipped++
			} else {
				reloadKeys = append(reloadKeys, key)
			}
		}
	}

	if len(reloadKeys) > 0 {
		recs, err := TypedGetProperties[T](acc, reloadKeys, false)
		if err != nil {
			return nil, stats, fmt.Errorf("get properties: %w", err)
		}
		for i, key := range reloadKeys {
			rec := recs[i]
			if isNilRecord(rec) {
				logger.Warn("property missing on reload", zap.Stringer("key", key))
				stats.Missing++
				continue
			}
			result[key] = rec
			if _, wasNew := newKeys[key]; wasNew {
				stats.New++
			} else {
				stats.Reloaded++
			}
		}
	}

	return result, stats, nil
}
