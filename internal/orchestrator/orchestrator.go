package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"OpenAgent-Loop/internal/guardrail"
	"OpenAgent-Loop/internal/history"
	"OpenAgent-Loop/internal/memory"
	"OpenAgent-Loop/internal/reasoning"
	"OpenAgent-Loop/internal/result"
	"OpenAgent-Loop/internal/tools"
	"OpenAgent-Loop/pkg/logger"
)

// DefaultMaxIterations 是工具循环的默认上限。
const DefaultMaxIterations = 10

// 各阶段失败时附带的固定说明，写入错误元数据供上层展示。
const (
	intentFailureContext    = "Failed to analyze user intent."
	stepFailureContext      = "Could not determine next step."
	synthesisFailureContext = "Final response failed validation."
)

// SessionRecorder 归档会话级信息，失败不影响运行结果。
type SessionRecorder interface {
	SaveSession(ctx context.Context, session AgentSession) error
}

// Engine 驱动完整的编排循环。
type Engine struct {
	reasoner      reasoning.Client
	gateway       tools.Gateway
	gate          *guardrail.Gate
	store         memory.Store
	recorder      SessionRecorder
	log           *slog.Logger
	maxIterations int
}

// Option 配置 Engine。
type Option func(*Engine)

// WithMaxIterations 覆盖工具循环上限，非正值被忽略。
func WithMaxIterations(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxIterations = n
		}
	}
}

// WithLogger 替换默认日志器。
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithSessionRecorder 挂接会话归档。
func WithSessionRecorder(recorder SessionRecorder) Option {
	return func(e *Engine) { e.recorder = recorder }
}

// NewEngine 组装编排引擎。四个协作方都是必需的。
func NewEngine(reasoner reasoning.Client, gateway tools.Gateway, gate *guardrail.Gate, store memory.Store, opts ...Option) (*Engine, error) {
	if reasoner == nil {
		return nil, fmt.Errorf("reasoning client is required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("tool gateway is required")
	}
	if gate == nil {
		return nil, fmt.Errorf("guardrail gate is required")
	}
	if store == nil {
		return nil, fmt.Errorf("memory store is required")
	}
	engine := &Engine{
		reasoner:      reasoner,
		gateway:       gateway,
		gate:          gate,
		store:         store,
		log:           logger.Named("orchestrator"),
		maxIterations: DefaultMaxIterations,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(engine)
		}
	}
	return engine, nil
}

// Run 执行一次完整的编排运行。返回的 Result 失败时，
// 错误元数据携带失败阶段与已完成的工具调用数。
func (e *Engine) Run(ctx context.Context, req UserRequest) (res result.Result[AgentResponse]) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	startedAt := time.Now()
	stage := StageCreated
	iterations := 0
	var newEntries history.History
	var intent reasoning.UserIntent

	// 任何未预期的 panic 都收敛为 UNKNOWN 失败，循环本身不崩溃。
	defer func() {
		if recovered := recover(); recovered != nil {
			e.log.Error("orchestration panic",
				"session_id", sessionID, "stage", string(stage), "panic", fmt.Sprint(recovered))
			res = e.fail(sessionID, stage, newEntries,
				result.NewError(result.CodeUnknown, "orchestration aborted unexpectedly",
					result.WithMetadata("panic", fmt.Sprint(recovered))))
		}
		e.recordSession(sessionID, req, intent, stage, iterations, startedAt, res)
	}()

	if err := ctxError(ctx); err != nil {
		return e.fail(sessionID, stage, newEntries, err)
	}

	// 输入校验。
	if err := e.gate.ValidateInput(req.Input); err != nil {
		return e.fail(sessionID, stage, newEntries, err)
	}
	stage = StageInputValidated

	prior, loadErr := e.store.LoadHistory(ctx, sessionID)
	if loadErr != nil {
		return e.fail(sessionID, stage, newEntries,
			result.WrapError(result.CodeMemoryLoadFailed, loadErr, "failed to load session history"))
	}

	// 意图分析。
	intentRes := e.reasoner.AnalyzeIntent(ctx, req.Input)
	if err := intentRes.Err(); err != nil {
		return e.fail(sessionID, stage, newEntries, err.WithMeta("context", intentFailureContext))
	}
	intent = intentRes.MustValue()
	stage = StageIntentAnalyzed
	e.log.Info("intent analyzed",
		"session_id", sessionID, "intent", string(intent.Type), "confidence", string(intent.Confidence))

	catalogRes := e.gateway.ListTools(ctx)
	if err := catalogRes.Err(); err != nil {
		return e.fail(sessionID, stage, newEntries, err)
	}
	catalog := catalogRes.MustValue()

	// 工具循环，严格受上限约束。推理侧每一步看到的都是
	// 已加载历史与本次新条目合并后的完整视图。
	stage = StageIterating
	var blocked []*result.ResultError
	for iterations < e.maxIterations {
		if err := ctxError(ctx); err != nil {
			return e.fail(sessionID, stage, newEntries, err)
		}
		iterations++

		view := prior.Append(newEntries...)
		decisionRes := e.reasoner.DecideNextStep(ctx, reasoning.StepContext{
			Intent:    intent,
			Input:     req.Input,
			Catalog:   catalog,
			Completed: view.Successes(),
			Failed:    view.Failures(),
			Blocked:   blocked,
			Iteration: iterations,
		})
		if err := decisionRes.Err(); err != nil {
			return e.fail(sessionID, stage, newEntries, err.WithMeta("context", stepFailureContext))
		}
		decision := decisionRes.MustValue()
		if decision.Complete {
			break
		}

		// 被策略拦截的调用记为失败条目，但从不触达网关。
		if err := e.gate.IsActionAllowed(decision.Call); err != nil {
			blockedErr := err.WithMeta("session_id", sessionID)
			blocked = append(blocked, blockedErr)
			newEntries = newEntries.Append(result.FailureFrom[tools.ToolExecution](blockedErr))
			e.log.Warn("tool call blocked by policy",
				"session_id", sessionID, "tool", decision.Call.Name)
			continue
		}

		execRes := e.gateway.ExecuteTool(ctx, decision.Call)
		if err := execRes.Err(); err != nil {
			if err.Code == result.CodeRunCancelled {
				return e.fail(sessionID, stage, newEntries, err)
			}
			newEntries = newEntries.Append(result.FailureFrom[tools.ToolExecution](
				err.WithMeta("session_id", sessionID)))
			e.log.Warn("tool call failed",
				"session_id", sessionID, "tool", decision.Call.Name, "code", string(err.Code))
			continue
		}
		execution := execRes.MustValue()
		execution.SessionID = sessionID
		newEntries = newEntries.Append(result.Success(execution))
		e.log.Info("tool call completed",
			"session_id", sessionID, "tool", execution.Call.Name, "duration", execution.Duration)
	}

	// 合成最终回复。
	stage = StageSynthesizing
	if err := ctxError(ctx); err != nil {
		return e.fail(sessionID, stage, newEntries, err)
	}
	successes := prior.Append(newEntries...).Successes()
	synthRes := e.reasoner.Synthesize(ctx, intent, req.Input, successes)
	if err := synthRes.Err(); err != nil {
		return e.fail(sessionID, stage, newEntries, err)
	}
	content := synthRes.MustValue()

	// 输出校验。
	if err := e.gate.ValidateOutput(content); err != nil {
		return e.fail(sessionID, stage, newEntries, err.WithMeta("context", synthesisFailureContext))
	}
	stage = StageOutputValidated

	// 历史持久化在成功路径上只发生一次。
	if err := e.store.SaveHistory(ctx, sessionID, prior.Append(newEntries...)); err != nil {
		return e.fail(sessionID, stage, newEntries,
			result.WrapError(result.CodeMemorySaveFailed, err, "failed to persist session history"))
	}
	stage = StageCompleted

	summary := history.Summarize(newEntries)
	response := AgentResponse{
		Content: content,
		Type:    responseType(summary),
		Metadata: map[string]string{
			"session_id": sessionID,
			"intent":     string(intent.Type),
			"iterations": fmt.Sprintf("%d", iterations),
			"tool_calls": fmt.Sprintf("%d", summary.Total),
			"succeeded":  fmt.Sprintf("%d", summary.Succeeded),
			"failed":     fmt.Sprintf("%d", summary.Failed),
		},
	}
	e.log.Info("orchestration completed",
		"session_id", sessionID, "type", string(response.Type),
		"iterations", iterations, "elapsed", time.Since(startedAt))
	return result.Success(response)
}

// fail 把阶段信息附加到错误上并返回失败结果。
func (e *Engine) fail(sessionID string, stage Stage, entries history.History, err *result.ResultError) result.Result[AgentResponse] {
	annotated := err.
		WithMeta("session_id", sessionID).
		WithMeta("stage", string(stage)).
		WithMeta("successful_executions", fmt.Sprintf("%d", len(entries.Successes())))
	e.log.Error("orchestration failed",
		"session_id", sessionID, "stage", string(stage), "code", string(annotated.Code))
	return result.FailureFrom[AgentResponse](annotated)
}

// recordSession 在运行结束后归档会话，失败只记日志。
func (e *Engine) recordSession(sessionID string, req UserRequest, intent reasoning.UserIntent, stage Stage, iterations int, startedAt time.Time, res result.Result[AgentResponse]) {
	if e.recorder == nil {
		return
	}
	if res.IsFailure() {
		stage = StageFailed
	}
	session := AgentSession{
		ID:         sessionID,
		Input:      req.Input,
		Intent:     intent,
		Stage:      stage,
		Iterations: iterations,
		CreatedAt:  startedAt.Unix(),
		UpdatedAt:  time.Now().Unix(),
	}
	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.recorder.SaveSession(saveCtx, session); err != nil {
		e.log.Warn("failed to archive session", "session_id", sessionID, "error", err)
	}
}

// responseType 根据新条目的成败分布决定回复类型。
func responseType(summary history.Summary) ResponseType {
	switch {
	case summary.Total == 0:
		return ResponseInformation
	case summary.Failed == 0:
		return ResponseSuccess
	default:
		return ResponseWarning
	}
}

// ctxError 把上下文取消映射为 RUN_CANCELLED。
func ctxError(ctx context.Context) *result.ResultError {
	if err := ctx.Err(); err != nil {
		return result.WrapError(result.CodeRunCancelled, err, "run cancelled by caller")
	}
	return nil
}

// ResponseFromResult 把失败结果转换为可直接返回给用户的回复。
// 成功结果原样返回其值。
func ResponseFromResult(res result.Result[AgentResponse]) AgentResponse {
	if value, ok := res.Value(); ok {
		return value
	}
	err := res.Err()
	metadata := map[string]string{"code": string(err.Code)}
	for key, value := range err.Metadata {
		metadata[key] = value
	}
	content := err.Message
	if stageContext := err.Metadata["context"]; stageContext != "" {
		content = stageContext + " " + err.Message
	}
	responseKind := ResponseError
	if err.Metadata["successful_executions"] != "" && err.Metadata["successful_executions"] != "0" {
		responseKind = ResponseWarning
	}
	return AgentResponse{
		Content:  content,
		Type:     responseKind,
		Metadata: metadata,
	}
}
