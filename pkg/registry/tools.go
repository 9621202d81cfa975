package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/runweave/runweave/pkg/protocol"
)

// ToolFunc is an in-process tool implementation.
type ToolFunc func(ctx context.Context, args map[string]any) (map[string]any, error)

type toolEntry struct {
	fn         ToolFunc
	deprecated bool
}

// ToolCatalog is an in-memory tool registry and invoker. Deployments with an
// external capability service supply their own protocol.ToolRegistry instead.
type ToolCatalog struct {
	mu    sync.RWMutex
	tools map[string]toolEntry
}

// NewToolCatalog creates an empty catalog.
func NewToolCatalog() *ToolCatalog {
	return &ToolCatalog{tools: make(map[string]toolEntry)}
}

// RegisterTool adds a tool implementation under its stable identifier.
func (c *ToolCatalog) RegisterTool(toolID string, fn ToolFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tools[toolID] = toolEntry{fn: fn}
}

// Deprecate marks a registered tool as deprecated. Deprecated tools still
// invoke; graph validation flags them.
func (c *ToolCatalog) Deprecate(toolID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.tools[toolID]
	if !ok {
		return
	}

	entry.deprecated = true
	c.tools[toolID] = entry
}

// Resolve looks up a tool identifier.
func (c *ToolCatalog) Resolve(_ context.Context, toolID string) (protocol.ToolInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.tools[toolID]
	if !ok {
		return protocol.ToolInfo{ID: toolID, Exists: false}, nil
	}

	return protocol.ToolInfo{ID: toolID, Exists: true, Deprecated: entry.deprecated}, nil
}

// Invoke calls a registered tool.
func (c *ToolCatalog) Invoke(ctx context.Context, toolID string, args map[string]any) (map[string]any, error) {
	c.mu.RLock()
	entry, ok := c.tools[toolID]
	c.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("tool '%s' not registered", toolID)
	}

	return entry.fn(ctx, args)
}
