package cmd

import (
	"log/slog"

	"github.com/runweave/runweave/pkg/protocol"
	"github.com/runweave/runweave/pkg/registry"
)

// NewRegistry builds the executor registry with the built-in executors
// bound to the given tool catalog.
func NewRegistry(logger *slog.Logger, tools protocol.ToolRegistry, invoker protocol.ToolInvoker) *registry.Registry {
	reg := registry.NewRegistry(logger)
	reg.RegisterDefaultExecutors(tools, invoker)

	return reg
}
