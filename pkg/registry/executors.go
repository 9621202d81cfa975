package registry

import (
	"github.com/runweave/runweave/pkg/executors/httprequest"
	logexecutor "github.com/runweave/runweave/pkg/executors/log"
	"github.com/runweave/runweave/pkg/executors/tool"
	"github.com/runweave/runweave/pkg/executors/transform"
	"github.com/runweave/runweave/pkg/protocol"
)

// RegisterDefaultExecutors registers the built-in executor factories.
func (r *Registry) RegisterDefaultExecutors(tools protocol.ToolRegistry, invoker protocol.ToolInvoker) {
	r.Register(logexecutor.NewFactory())
	r.Register(transform.NewFactory())
	r.Register(httprequest.NewFactory())
	r.Register(tool.NewFactory(tools, invoker))
}
