package taskcache

import (
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/10yihang/clustercache/internal/accessor"
	"github.com/10yihang/clustercache/internal/fakeaccessor"
	"github.com/10yihang/clustercache/internal/model"
	"github.com/10yihang/clustercache/internal/propkey"
	"github.com/10yihang/clustercache/pkg/cerrors"
)

func TestRefresh_DerivesJobAndWorkflowConfigs(t *testing.T) {
	acc := fakeaccessor.New("cl")
	kb := acc.KeyBuilder()
	acc.Seed(kb.JobContextKey("job1"), &model.JobContext{ResourceName: "job1", StartTime: 1})
	acc.Seed(kb.WorkflowContextKey("wf1"), &model.WorkflowContext{ResourceName: "wf1", StartTime: 1})

	resourceConfigs := map[string]*model.ResourceConfig{
		"job1": {ResourceName: "job1", Kind: model.ResourceKindJob, Properties: map[string]string{"WorkflowName": "wf1"}},
		"wf1":  {ResourceName: "wf1", Kind: model.ResourceKindWorkflow, Properties: map[string]string{"Dag": "job1,job2"}},
		"plain1": {ResourceName: "plain1", Kind: model.ResourceKindPlain},
	}

	c := New("cl", zap.NewNop())
	if err := c.Refresh(acc, resourceConfigs); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if c.JobConfig("job1") == nil {
		t.Error("expected job1 to have a JobConfig")
	}
	if c.WorkflowConfig("wf1") == nil {
		t.Error("expected wf1 to have a WorkflowConfig")
	}
	if c.JobConfig("plain1") != nil {
		t.Error("plain resource should not have a JobConfig")
	}
	if c.JobContext("job1") == nil {
		t.Error("expected job1's context to be loaded")
	}
	if c.WorkflowContext("wf1") == nil {
		t.Error("expected wf1's context to be loaded")
	}
}

func TestRefresh_ContextsAreCachedNotRefetched(t *testing.T) {
	acc := fakeaccessor.New("cl")
	kb := acc.KeyBuilder()
	acc.Seed(kb.JobContextKey("job1"), &model.JobContext{ResourceName: "job1"})

	resourceConfigs := map[string]*model.ResourceConfig{
		"job1": {ResourceName: "job1", Kind: model.ResourceKindJob},
	}

	c := New("cl", zap.NewNop())
	if err := c.Refresh(acc, resourceConfigs); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	first := c.JobContext("job1")

	if err := c.Refresh(acc, resourceConfigs); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	second := c.JobContext("job1")

	if first != second {
		t.Error("job context should be reused from cache, not refetched, once present")
	}
}

func TestUpdateJobContext_SuccessfulWriteUpdatesCache(t *testing.T) {
	acc := fakeaccessor.New("cl")
	kb := acc.KeyBuilder()
	original := &model.JobContext{ResourceName: "job1", StartTime: 1}
	acc.Seed(kb.JobContextKey("job1"), original)

	resourceConfigs := map[string]*model.ResourceConfig{
		"job1": {ResourceName: "job1", Kind: model.ResourceKindJob},
	}
	c := New("cl", zap.NewNop())
	if err := c.Refresh(acc, resourceConfigs); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	updated := &model.JobContext{ResourceName: "job1", StartTime: 2}
	if err := c.UpdateJobContext("job1", updated, acc); err != nil {
		t.Fatalf("UpdateJobContext: %v", err)
	}
	if c.JobContext("job1").StartTime != 2 {
		t.Error("successful write-back should update the in-memory cache")
	}
}

// rejectingAccessor wraps an Accessor but fails every SetProperty call,
// letting tests drive the write-fails-cache-stays-untouched branch of
// UpdateJobContext/UpdateWorkflowContext without a real metadata store.
type rejectingAccessor struct {
	*fakeaccessor.Accessor
}

func (r rejectingAccessor) SetProperty(key propkey.Key, rec accessor.Record) (bool, error) {
	return false, nil
}

func TestUpdateJobContext_WriteFailureLeavesCacheUntouched(t *testing.T) {
	acc := fakeaccessor.New("cl")
	kb := acc.KeyBuilder()
	original := &model.JobContext{ResourceName: "job1", StartTime: 1}
	acc.Seed(kb.JobContextKey("job1"), original)

	resourceConfigs := map[string]*model.ResourceConfig{
		"job1": {ResourceName: "job1", Kind: model.ResourceKindJob},
	}
	c := New("cl", zap.NewNop())
	if err := c.Refresh(acc, resourceConfigs); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	rejecting := rejectingAccessor{acc}
	updated := &model.JobContext{ResourceName: "job1", StartTime: 2}
	if err := c.UpdateJobContext("job1", updated, rejecting); err == nil {
		t.Fatal("UpdateJobContext should surface an error when the write is rejected")
	}
	if c.JobContext("job1").StartTime != 1 {
		t.Error("rejected write-back must leave the in-memory cache untouched")
	}
}

func TestContexts_UnionOfJobAndWorkflow(t *testing.T) {
	acc := fakeaccessor.New("cl")
	kb := acc.KeyBuilder()
	acc.Seed(kb.JobContextKey("job1"), &model.JobContext{ResourceName: "job1"})
	acc.Seed(kb.WorkflowContextKey("wf1"), &model.WorkflowContext{ResourceName: "wf1"})

	resourceConfigs := map[string]*model.ResourceConfig{
		"job1": {ResourceName: "job1", Kind: model.ResourceKindJob},
		"wf1":  {ResourceName: "wf1", Kind: model.ResourceKindWorkflow},
	}
	c := New("cl", zap.NewNop())
	if err := c.Refresh(acc, resourceConfigs); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	contexts := c.Contexts()
	if len(contexts) != 2 {
		t.Errorf("Contexts() = %v, want 2 entries", contexts)
	}
}

func TestUpdateJobContext_NilAccessorReturnsSentinel(t *testing.T) {
	c := New("cl", zap.NewNop())
	err := c.UpdateJobContext("job1", &model.JobContext{ResourceName: "job1"}, nil)
	if !errors.Is(err, cerrors.ErrNoProvider) {
		t.Errorf("UpdateJobContext(nil accessor) err = %v, want ErrNoProvider", err)
	}
}

func TestUpdateWorkflowContext_NilAccessorReturnsSentinel(t *testing.T) {
	c := New("cl", zap.NewNop())
	err := c.UpdateWorkflowContext("wf1", &model.WorkflowContext{ResourceName: "wf1"}, nil)
	if !errors.Is(err, cerrors.ErrNoProvider) {
		t.Errorf("UpdateWorkflowContext(nil accessor) err = %v, want ErrNoProvider", err)
	}
}
