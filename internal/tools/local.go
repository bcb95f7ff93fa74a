package tools

import (
	"context"
	stdErrors "errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"OpenAgent-Loop/internal/result"
)

// Handler 是本地工具的执行函数。
type Handler func(ctx context.Context, args map[string]any) (Payload, error)

// LocalGateway 在进程内维护一个工具注册表，用于内置工具与测试。
type LocalGateway struct {
	mu       sync.RWMutex
	defs     map[string]ToolDefinition
	handlers map[string]Handler
}

// NewLocalGateway 创建一个空的本地网关。
func NewLocalGateway() *LocalGateway {
	return &LocalGateway{
		defs:     make(map[string]ToolDefinition),
		handlers: make(map[string]Handler),
	}
}

// Register 登记一个工具定义及其执行函数。重名登记返回错误。
func (g *LocalGateway) Register(def ToolDefinition, handler Handler) error {
	if err := def.Validate(); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("tool %s: handler cannot be nil", def.Name)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.defs[def.Name]; ok {
		return fmt.Errorf("tool %s already registered", def.Name)
	}
	g.defs[def.Name] = def
	g.handlers[def.Name] = handler
	return nil
}

// ListTools 实现 Gateway 接口，按名称排序返回目录快照。
func (g *LocalGateway) ListTools(_ context.Context) result.Result[[]ToolDefinition] {
	g.mu.RLock()
	defer g.mu.RUnlock()
	defs := make([]ToolDefinition, 0, len(g.defs))
	for _, def := range g.defs {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return result.Success(defs)
}

// ExecuteTool 实现 Gateway 接口。
func (g *LocalGateway) ExecuteTool(ctx context.Context, call ToolCall) result.Result[ToolExecution] {
	g.mu.RLock()
	def, ok := g.defs[call.Name]
	handler := g.handlers[call.Name]
	g.mu.RUnlock()
	if !ok {
		return result.Failure[ToolExecution](result.CodeToolNotFound,
			fmt.Sprintf("tool %s is not registered", call.Name),
			result.WithMetadata("tool", call.Name))
	}

	if err := checkRequiredArgs(def, call); err != nil {
		return result.FailureFrom[ToolExecution](err)
	}

	started := time.Now()
	payload, err := handler(ctx, call.CloneArguments())
	if err != nil {
		code := result.CodeToolExecutionFailed
		if stdErrors.Is(err, context.DeadlineExceeded) {
			code = result.CodeToolTimeout
		} else if stdErrors.Is(err, context.Canceled) {
			code = result.CodeRunCancelled
		}
		return result.FailureFrom[ToolExecution](result.WrapError(code, err,
			fmt.Sprintf("tool %s failed", call.Name),
			result.WithMetadata("tool", call.Name)))
	}

	return result.Success(ToolExecution{
		Call:        call,
		Payload:     payload,
		Duration:    time.Since(started),
		CompletedAt: time.Now().Unix(),
	})
}

// ExecuteToolsBatch 实现 Gateway 接口，信号量限制并发数。
func (g *LocalGateway) ExecuteToolsBatch(ctx context.Context, calls []ToolCall, maxConcurrency int) result.Result[[]ToolExecution] {
	return executeBatch(ctx, g, calls, maxConcurrency)
}

// checkRequiredArgs 校验必填参数与取值范围。
func checkRequiredArgs(def ToolDefinition, call ToolCall) *result.ResultError {
	for _, param := range def.Params {
		value, present := call.Arguments[param.Name]
		if !present {
			if param.Required && param.Default == nil {
				return result.NewError(result.CodeToolInvalidArguments,
					fmt.Sprintf("tool %s: missing required argument %s", def.Name, param.Name),
					result.WithMetadata("tool", def.Name),
					result.WithMetadata("argument", param.Name))
			}
			continue
		}
		if len(param.Enum) > 0 {
			text, ok := value.(string)
			if !ok || !containsString(param.Enum, text) {
				return result.NewError(result.CodeToolInvalidArguments,
					fmt.Sprintf("tool %s: argument %s outside allowed values", def.Name, param.Name),
					result.WithMetadata("tool", def.Name),
					result.WithMetadata("argument", param.Name))
			}
		}
	}
	return nil
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}

// executeBatch 是批量执行的共用实现，结果顺序与入参一致。
func executeBatch(ctx context.Context, gateway Gateway, calls []ToolCall, maxConcurrency int) result.Result[[]ToolExecution] {
	if len(calls) == 0 {
		return result.Success([]ToolExecution{})
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}

	executions := make([]ToolExecution, len(calls))
	errs := make([]*result.ResultError, len(calls))
	sem := make(chan struct{}, maxConcurrency)
	var wg sync.WaitGroup

	for idx, call := range calls {
		wg.Add(1)
		go func(idx int, call ToolCall) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			res := gateway.ExecuteTool(ctx, call)
			if err := res.Err(); err != nil {
				errs[idx] = err
				return
			}
			executions[idx] = res.MustValue()
		}(idx, call)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return result.FailureFrom[[]ToolExecution](err)
		}
	}
	return result.Success(executions)
}

var _ Gateway = (*LocalGateway)(nil)
