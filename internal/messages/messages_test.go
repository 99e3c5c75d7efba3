package messages

import (
	"testing"

	"go.uber.org/zap"

	"github.com/10yihang/clustercache/internal/currentstate"
	"github.com/10yihang/clustercache/internal/fakeaccessor"
	"github.com/10yihang/clustercache/internal/model"
)

func liveInstances(names ...string) map[string]*model.LiveInstance {
	out := make(map[string]*model.LiveInstance, len(names))
	for _, n := range names {
		out[n] = &model.LiveInstance{InstanceName: n, SessionID: "s1"}
	}
	return out
}

func TestRefresh_PopulatesPerInstanceMap(t *testing.T) {
	acc := fakeaccessor.New("cl")
	kb := acc.KeyBuilder()
	acc.Seed(kb.MessageKey("n1", "m1"), &model.Message{ID: "m1", TargetName: "n1", ToState: "ONLINE"})

	c := New("cl", zap.NewNop())
	if err := c.Refresh(acc, liveInstances("n1")); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	got := c.GetMessages("n1")
	if len(got) != 1 || got["m1"] == nil {
		t.Errorf("GetMessages(n1) = %v, want one message m1", got)
	}
}

func TestCacheMessages_OverlaysUntilNextRefresh(t *testing.T) {
	acc := fakeaccessor.New("cl")
	c := New("cl", zap.NewNop())
	if err := c.Refresh(acc, liveInstances("n1")); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	c.CacheMessages([]*model.Message{{ID: "injected", TargetName: "n1"}})
	if got := c.GetMessages("n1"); len(got) != 1 || got["injected"] == nil {
		t.Fatalf("GetMessages(n1) after inject = %v", got)
	}

	if err := c.Refresh(acc, liveInstances("n1")); err != nil {
		t.Fatalf("second Refresh: %v", err)
	}
	if got := c.GetMessages("n1"); len(got) != 0 {
		t.Errorf("GetMessages(n1) after refresh = %v, want overlay cleared", got)
	}
}

func TestUpdateRelayMessages_FiltersReachedState(t *testing.T) {
	msg := &model.Message{
		ID: "m1", TargetName: "n1", TargetSession: "s1",
		IsRelay: true, ToState: "ONLINE", Valid: true,
	}
	view := currentstate.View{
		"n1": {
			"s1": {
				"cs1": &model.CurrentState{PartitionStates: map[string]string{"ONLINE": "ONLINE"}},
			},
		},
	}

	c := New("cl", zap.NewNop())
	c.byInst = map[string]map[string]*model.Message{"n1": {"m1": msg}}

	c.UpdateRelayMessages(liveInstances("n1"), view)

	if msg.Valid {
		t.Error("relay message whose target state was reached should be marked invalid")
	}
}

func TestUpdateRelayMessages_NonRelayAlwaysValid(t *testing.T) {
	msg := &model.Message{ID: "m1", TargetName: "n1", IsRelay: false, Valid: true}
	c := New("cl", zap.NewNop())
	c.byInst = map[string]map[string]*model.Message{"n1": {"m1": msg}}

	c.UpdateRelayMessages(liveInstances("n1"), currentstate.View{})

	if !msg.Valid {
		t.Error("non-relay message should never be filtered by relay validation")
	}
}
