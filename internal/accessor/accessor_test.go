package accessor

import (
	"testing"

	"go.uber.org/zap"

	"github.com/10yihang/clustercache/internal/propkey"
)

type fakeRecord struct {
	stat    Stat
	bucket  int
	missing bool
}

func (r *fakeRecord) GetStat() Stat  { return r.stat }
func (r *fakeRecord) SetStat(s Stat) { r.stat = s }
func (r *fakeRecord) BucketSize() int { return r.bucket }

// statStore is a minimal Accessor whose only job is to drive
// IncrementalReload's stat-compare decisions; it does not need the full
// Accessor surface fakeaccessor provides.
type statStore struct {
	stats map[propkey.Key]*Stat
	full  map[propkey.Key]*fakeRecord
	statCalls, fullCalls int
}

func (s *statStore) Children(propkey.Key) ([]string, error) { return nil, nil }
func (s *statStore) ChildValuesMap(propkey.Key, bool) (map[string]Record, error) { return nil, nil }
func (s *statStore) GetProperty(propkey.Key) (Record, error) { return nil, nil }
func (s *statStore) SetProperty(propkey.Key, Record) (bool, error) { return true, nil }
func (s *statStore) KeyBuilder() propkey.Builder { return propkey.Builder{} }

func (s *statStore) GetProperties(keys []propkey.Key, throwOnMissing bool) ([]Record, error) {
	s.fullCalls++
	out := make([]Record, len(keys))
	for i, k := range keys {
		if rec, ok := s.full[k]; ok && !rec.missing {
			out[i] = rec
		}
	}
	return out, nil
}

func (s *statStore) GetPropertyStats(keys []propkey.Key) ([]*Stat, error) {
	s.statCalls++
	out := make([]*Stat, len(keys))
	for i, k := range keys {
		out[i] = s.stats[k]
	}
	return out, nil
}

func TestIncrementalReload_NewKeyFetchesFull(t *testing.T) {
	key := propkey.New(propkey.CurrentState, "n1", "s1", "cs1")
	store := &statStore{
		stats: map[propkey.Key]*Stat{},
		full:  map[propkey.Key]*fakeRecord{key: {stat: Stat{Version: 1}}},
	}

	result, stats, err := IncrementalReload[*fakeRecord](store, nil, []propkey.Key{key}, zap.NewNop())
	if err != nil {
		t.Fatalf("IncrementalReload error: %v", err)
	}
	if stats.New != 1 || stats.Reloaded != 0 || stats.Skipped != 0 {
		t.Errorf("stats = %+v, want New=1", stats)
	}
	if _, ok := result[key]; !ok {
		t.Fatalf("result missing %v", key)
	}
	if store.statCalls != 0 {
		t.Errorf("statCalls = %d, want 0 (new key never stat-checked)", store.statCalls)
	}
}

func TestIncrementalReload_UnchangedStatSkipsFetch(t *testing.T) {
	key := propkey.New(propkey.CurrentState, "n1", "s1", "cs1")
	cached := &fakeRecord{stat: Stat{Version: 5}}
	prior := map[propkey.Key]*fakeRecord{key: cached}
	store := &statStore{
		stats: map[propkey.Key]*Stat{key: {Version: 5}},
		full:  map[propkey.Key]*fakeRecord{},
	}

	result, stats, err := IncrementalReload[*fakeRecord](store, prior, []propkey.Key{key}, zap.NewNop())
	if err != nil {
		t.Fatalf("IncrementalReload error: %v", err)
	}
	if stats.Skipped != 1 || stats.New != 0 || stats.Reloaded != 0 {
		t.Errorf("stats = %+v, want Skipped=1", stats)
	}
	if result[key] != cached {
		t.Error("reused entry should be the exact cached pointer, not a refetch")
	}
	if store.fullCalls != 0 {
		t.Errorf("fullCalls = %d, want 0", store.fullCalls)
	}
}

func TestIncrementalReload_StatMismatchRefetches(t *testing.T) {
	key := propkey.New(propkey.CurrentState, "n1", "s1", "cs1")
	prior := map[propkey.Key]*fakeRecord{key: {stat: Stat{Version: 5}}}
	fresh := &fakeRecord{stat: Stat{Version: 6}}
	store := &statStore{
		stats: map[propkey.Key]*Stat{key: {Version: 6}},
		full:  map[propkey.Key]*fakeRecord{key: fresh},
	}

	result, stats, err := IncrementalReload[*fakeRecord](store, prior, []propkey.Key{key}, zap.NewNop())
	if err != nil {
		t.Fatalf("IncrementalReload error: %v", err)
	}
	if stats.Reloaded != 1 || stats.Skipped != 0 {
		t.Errorf("stats = %+v, want Reloaded=1", stats)
	}
	if result[key] != fresh {
		t.Error("result should hold the freshly fetched record")
	}
}

func TestIncrementalReload_BucketedAlwaysReloads(t *testing.T) {
	key := propkey.New(propkey.CurrentState, "n1", "s1", "cs1")
	cached := &fakeRecord{stat: Stat{Version: 5}, bucket: 1}
	prior := map[propkey.Key]*fakeRecord{key: cached}
	fresh := &fakeRecord{stat: Stat{Version: 5}, bucket: 1}
	store := &statStore{
		stats: map[propkey.Key]*Stat{key: {Version: 5}}, // unchanged stat
		full:  map[propkey.Key]*fakeRecord{key: fresh},
	}

	result, stats, err := IncrementalReload[*fakeRecord](store, prior, []propkey.Key{key}, zap.NewNop())
	if err != nil {
		t.Fatalf("IncrementalReload error: %v", err)
	}
	if stats.Reloaded != 1 {
		t.Errorf("stats = %+v, want Reloaded=1 despite unchanged stat", stats)
	}
	if result[key] != fresh {
		t.Error("bucketed record should always be refetched, never reused from stat match alone")
	}
}

func TestIncrementalReload_MissingOnReloadIsDroppedAndCounted(t *testing.T) {
	key := propkey.New(propkey.CurrentState, "n1", "s1", "gone")
	store := &statStore{
		stats: map[propkey.Key]*Stat{},
		full:  map[propkey.Key]*fakeRecord{key: {missing: true}},
	}

	result, stats, err := IncrementalReload[*fakeRecord](store, nil, []propkey.Key{key}, zap.NewNop())
	if err != nil {
		t.Fatalf("IncrementalReload error: %v", err)
	}
	if stats.Missing != 1 {
		t.Errorf("stats = %+v, want Missing=1", stats)
	}
	if _, ok := result[key]; ok {
		t.Error("missing key should not appear in result")
	}
}

func TestIncrementalReload_DropsKeysNotInExpected(t *testing.T) {
	stale := propkey.New(propkey.CurrentState, "n1", "s1", "stale")
	expectedKey := propkey.New(propkey.CurrentState, "n1", "s2", "fresh")
	prior := map[propkey.Key]*fakeRecord{stale: {stat: Stat{Version: 1}}}
	store := &statStore{
		stats: map[propkey.Key]*Stat{},
		full:  map[propkey.Key]*fakeRecord{expectedKey: {stat: Stat{Version: 1}}},
	}

	result, _, err := IncrementalReload[*fakeRecord](store, prior, []propkey.Key{expectedKey}, zap.NewNop())
	if err != nil {
		t.Fatalf("IncrementalReload error: %v", err)
	}
	if _, ok := result[stale]; ok {
		t.Error("entry store must not carry forward keys outside the expected set")
	}
	if _, ok := result[expectedKey]; !ok {
		t.Error("expected key missing from result")
	}
}
