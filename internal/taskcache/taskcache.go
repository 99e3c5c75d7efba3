// Package taskcache implements the task-data sub-cache (spec §4.4):
// workflow and job configs derived from the resource-config map, plus
// their contexts loaded lazily and cached, plus a union contexts index.
package taskcache

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/10yihang/clustercache/internal/accessor"
	"github.com/10yihang/clustercache/internal/model"
	"github.com/10yihang/clustercache/pkg/cerrors"
)

// Cache holds job/workflow configs (derived from resource configs) and
// their lazily loaded, write-back-capable contexts.
type Cache struct {
	clusterName string
	logger      *zap.Logger

	mu                 sync.RWMutex
	jobConfigMap       map[string]*model.JobConfig
	workflowConfigMap  map[string]*model.WorkflowConfig
	jobContextMap      map[string]*model.JobContext
	workflowContextMap map[string]*model.WorkflowContext
}

// New returns an empty task-data sub-cache.
func New(clusterName string, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		clusterName:        clusterName,
		logger:             logger,
		jobConfigMap:       map[string]*model.JobConfig{},
		workflowConfigMap:  map[string]*model.WorkflowConfig{},
		jobContextMap:      map[string]*model.JobContext{},
		workflowContextMap: map[string]*model.WorkflowContext{},
	}
}

// Refresh rebuilds jobConfigMap/workflowConfigMap from resourceConfigMap
// and lazily fetches any context not already cached (spec §4.4). Contexts
// for resources that disappeared from resourceConfigMap are dropped.
func (c *Cache) Refresh(acc accessor.Accessor, resourceConfigMap map[string]*model.ResourceConfig) error {
	keyBuilder := acc.KeyBuilder()

	jobConfigs := make(map[string]*model.JobConfig)
	workflowConfigs := make(map[string]*model.WorkflowConfig)
	for name, rc := range resourceConfigMap {
		switch rc.Kind {
		case model.ResourceKindJob:
			jobConfigs[name] = &model.JobConfig{
				ResourceName: name,
				WorkflowName: rc.Properties["WorkflowName"],
				Command:      rc.Properties["Command"],
			}
		case model.ResourceKindWorkflow:
			workflowConfigs[name] = &model.WorkflowConfig{
				ResourceName: name,
				Dag:          splitDag(rc.Properties["Dag"]),
			}
		}
	}

	c.mu.Lock()
	jobContexts := make(map[string]*model.JobContext, len(jobConfigs))
	for name := range jobConfigs {
		if ctx, ok := c.jobContextMap[name]; ok {
			jobContexts[name] = ctx
			continue
		}
		ctx, found, err := accessor.TypedGetProperty[*model.JobContext](acc, keyBuilder.JobContextKey(name))
		if err != nil {
			c.mu.Unlock()
			return fmt.Errorf("get job context %s: %w", name, err)
		}
		if found {
			jobContexts[name] = ctx
		} else {
			c.logger.Warn("job context missing", zap.String("resource", name))
		}
	}

	workflowContexts := make(map[string]*model.WorkflowContext, len(workflowConfigs))
	for name := range workflowConfigs {
		if ctx, ok := c.workflowContextMap[name]; ok {
			workflowContexts[name] = ctx
			continue
		}
		ctx, found, err := accessor.TypedGetProperty[*model.WorkflowContext](acc, keyBuilder.WorkflowContextKey(name))
		if err != nil {
			c.mu.Unlock()
			return fmt.Errorf("get workflow context %s: %w", name, err)
		}
		if found {
			workflowContexts[name] = ctx
		} else {
			c.logger.Warn("workflow context missing", zap.String("resource", name))
		}
	}

	c.jobConfigMap = jobConfigs
	c.workflowConfigMap = workflowConfigs
	c.jobContextMap = jobContexts
	c.workflowContextMap = workflowContexts
	c.mu.Unlock()
	return nil
}

func splitDag(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ',' {
			if i > start {
				out = append(out, raw[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func (c *Cache) JobConfigMap() map[string]*model.JobConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*model.JobConfig, len(c.jobConfigMap))
	for k, v := range c.jobConfigMap {
		out[k] = v
	}
	return out
}

func (c *Cache) JobConfig(resource string) *model.JobConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.jobConfigMap[resource]
}

func (c *Cache) WorkflowConfigMap() map[string]*model.WorkflowConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*model.WorkflowConfig, len(c.workflowConfigMap))
	for k, v := range c.workflowConfigMap {
		out[k] = v
	}
	return out
}

func (c *Cache) WorkflowConfig(resource string) *model.WorkflowConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.workflowConfigMap[resource]
}

func (c *Cache) JobContext(resource string) *model.JobContext {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.jobContextMap[resource]
}

func (c *Cache) WorkflowContext(resource string) *model.WorkflowContext {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.workflowContextMap[resource]
}

// UpdateJobContext writes back to the metadata store and, only on success,
// updates the in-memory cache (spec §4.4: "write succeeds -> cache
// updated; write fails -> surface error, leave cache untouched").
func (c *Cache) UpdateJobContext(resource string, ctx *model.JobContext, acc accessor.Accessor) error {
	if acc == nil {
		return cerrors.ErrNoProvider
	}
	ok, err := acc.SetProperty(acc.KeyBuilder().JobContextKey(resource), ctx)
	if err != nil {
		return fmt.Errorf("write job context %s: %w", resource, err)
	}
	if !ok {
		return fmt.Errorf("write job context %s: rejected by metadata store", resource)
	}
	c.mu.Lock()
	c.jobContextMap[resource] = ctx
	c.mu.Unlock()
	return nil
}

// UpdateWorkflowContext writes back to the metadata store and, only on
// success, updates the in-memory cache.
func (c *Cache) UpdateWorkflowContext(resource string, ctx *model.WorkflowContext, acc accessor.Accessor) error {
	if acc == nil {
		return cerrors.ErrNoProvider
	}
	ok, err := acc.SetProperty(acc.KeyBuilder().WorkflowContextKey(resource), ctx)
	if err != nil {
		return fmt.Errorf("write workflow context %s: %w", resource, err)
	}
	if !ok {
		return fmt.Errorf("write workflow context %s: rejected by metadata store", resource)
	}
	c.mu.Lock()
	c.workflowContextMap[resource] = ctx
	c.mu.Unlock()
	return nil
}

// Contexts returns the union of job and workflow contexts keyed by
// resource name (spec §B.1 supplement, mirrors the original's
// getContexts()).
func (c *Cache) Contexts() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.jobContextMap)+len(c.workflowContextMap))
	for k, v := range c.jobContextMap {
		out[k] = v
	}
	for k, v := range c.workflowContextMap {
		out[k] = v
	}
	return out
}
