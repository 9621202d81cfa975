package protocol

import "context"

// ToolInfo describes the registry's view of one tool capability.
type ToolInfo struct {
	ID         string `json:"id"`
	Exists     bool   `json:"exists"`
	Deprecated bool   `json:"deprecated"`
}

// ToolRegistry is the tool/capability catalog collaborator consumed by
// the save-time validator and the tool executor.
type ToolRegistry interface {
	// Resolve looks up a stable tool identifier. A missing tool is not an
	// error; it comes back with Exists=false.
	Resolve(ctx context.Context, toolID string) (ToolInfo, error)
}

// ToolInvoker performs the actual call to a tool capability. Transport and
// hosting of tools live behind this interface.
type ToolInvoker interface {
	Invoke(ctx context.Context, toolID string, args map[string]any) (map[string]any, error)
}
