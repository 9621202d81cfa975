// Package log provides a node executor that writes structured log lines.
package log

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/runweave/runweave/pkg/protocol"
	"github.com/runweave/runweave/pkg/template"
)

// LogLevel represents different logging levels.
type LogLevel int

const (
	Debug LogLevel = iota
	Info
	Warn
	Error
)

var logLevelName = map[LogLevel]string{
	Debug: "debug",
	Info:  "info",
	Warn:  "warn",
	Error: "error",
}

// Executor logs a templated message at a configured level.
type Executor struct {
	id      string
	message string
	level   string
	logger  *slog.Logger
}

// NewExecutor creates a new logging executor.
func NewExecutor(id string, config map[string]any) (*Executor, error) {
	message, ok := config["message"].(string)
	if !ok {
		return nil, errors.New("missing required field 'message'")
	}

	level := logLevelName[Info]
	if lvl, ok := config["level"].(string); ok {
		level = lvl
	}

	return &Executor{
		id:      id,
		message: message,
		level:   level,
		logger:  slog.Default(),
	}, nil
}

// Invoke renders and logs the configured message.
func (e *Executor) Invoke(ctx context.Context, request protocol.InvokeRequest) (map[string]any, error) {
	scope := &template.Scope{
		RunID:      request.RunID,
		WorkflowID: request.WorkflowID,
		Input:      request.Input,
		Variables:  request.Variables,
	}

	rendered, err := template.RenderWithScope(e.message, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to render log message template: %w", err)
	}

	message := fmt.Sprintf("%v", rendered)
	logger := e.logger.With("node_id", e.id, "run_id", request.RunID)

	switch e.level {
	case logLevelName[Debug]:
		logger.DebugContext(ctx, message)
	case logLevelName[Warn]:
		logger.WarnContext(ctx, message)
	case logLevelName[Error]:
		logger.ErrorContext(ctx, message)
	default:
		logger.InfoContext(ctx, message)
	}

	return map[string]any{
		"message": message,
		"level":   e.level,
		"logged":  true,
	}, nil
}
