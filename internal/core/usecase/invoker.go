package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mkravchenko/mediarag/internal/core/domain"
	"github.com/mkravchenko/mediarag/internal/core/ports"
)

const defaultToolTimeout = 30 * time.Second

// ToolInvoker dispatches a planner tool call against a fixed registry.
// Invocation failure is captured as a value so the pipeline always
// reaches generation.
type ToolInvoker struct {
	registry map[string]ports.Tool
	order    []string
	timeout  time.Duration
}

func NewToolInvoker(timeout time.Duration, tools ...ports.Tool) *ToolInvoker {
	if timeout <= 0 {
		timeout = defaultToolTimeout
	}
	inv := &ToolInvoker{
		registry: make(map[string]ports.Tool, len(tools)),
		timeout:  timeout,
	}
	for _, tool := range tools {
		name := tool.Spec().Name
		if _, dup := inv.registry[name]; dup {
			continue
		}
		inv.registry[name] = tool
		inv.order = append(inv.order, name)
	}
	return inv
}

// Specs lists the registered tools in registration order, for the
// planning call.
func (inv *ToolInvoker) Specs() []domain.ToolSpec {
	out := make([]domain.ToolSpec, 0, len(inv.order))
	for _, name := range inv.order {
		out = append(out, inv.registry[name].Spec())
	}
	return out
}

// Invoke runs the requested tool once, synchronously, with no retry.
// A nil request is the valid no-tool-selected outcome.
func (inv *ToolInvoker) Invoke(ctx context.Context, req *domain.ToolCallRequest) domain.ToolOutcome {
	if req == nil || req.Name == "" {
		return domain.NoToolOutcome()
	}

	tool, ok := inv.registry[req.Name]
	if !ok {
		return domain.ToolOutcome{
			State:   domain.ToolStateFailed,
			Tool:    req.Name,
			Failure: domain.WrapError(domain.ErrUnknownTool, "invoke", fmt.Errorf("tool %q is not registered", req.Name)),
		}
	}

	toolCtx, cancel := context.WithTimeout(ctx, inv.timeout)
	defer cancel()

	output, err := tool.Execute(toolCtx, req.Arguments)
	if err != nil {
		kind := domain.ErrToolExecution
		if errors.Is(err, context.DeadlineExceeded) {
			kind = domain.ErrToolTimeout
		}
		return domain.ToolOutcome{
			State:   domain.ToolStateFailed,
			Tool:    req.Name,
			Failure: domain.WrapError(kind, "invoke", err),
		}
	}
	return domain.ToolOutcome{
		State:  domain.ToolStateOK,
		Tool:   req.Name,
		Output: output,
	}
}
