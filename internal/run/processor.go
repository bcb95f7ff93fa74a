package run

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"

	"OpenAgent-Loop/internal/observability/alerting"
	"OpenAgent-Loop/internal/observability/metrics"
	"OpenAgent-Loop/internal/orchestrator"
	"OpenAgent-Loop/internal/result"
	"OpenAgent-Loop/internal/retry"
	"OpenAgent-Loop/pkg/logger"
)

// Executor 定义了处理器所需的编排能力。
type Executor interface {
	Run(ctx context.Context, req orchestrator.UserRequest) result.Result[orchestrator.AgentResponse]
}

// Processor 负责从队列消费运行并交给编排引擎执行。
type Processor struct {
	executor    Executor
	store       Store
	consumer    Consumer
	producer    Producer
	workerCount int
	logger      *slog.Logger
	alerter     alerting.Dispatcher
	recovery    RecoveryHandler
	// sleep 在重投前等待退避延迟，测试中可替换。
	sleep func(ctx context.Context, d time.Duration) error
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(log *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = log
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// WithRecoveryHandler 配置终态失败时的降级策略。
func WithRecoveryHandler(handler RecoveryHandler) ProcessorOption {
	return func(p *Processor) {
		p.recovery = handler
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(executor Executor, store Store, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		executor:    executor,
		store:       store,
		consumer:    consumer,
		producer:    producer,
		workerCount: 1,
		sleep:       sleepWithContext,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.workerCount <= 0 {
		p.workerCount = 1
	}
	return p
}

// Start 启动运行处理循环。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return stdErrors.New("未配置运行消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, runID string) error {
	if p.store == nil || p.executor == nil {
		return stdErrors.New("处理器未初始化")
	}
	r, err := p.store.Claim(ctx, runID)
	if err != nil {
		if stdErrors.Is(err, ErrRunNotFound) || stdErrors.Is(err, ErrRunCompleted) || stdErrors.Is(err, ErrRunExhausted) {
			p.logDebug("跳过运行", slog.String("run_id", runID), slog.String("reason", err.Error()))
			return nil
		}
		logger.L().Error("领取运行失败", slog.Any("error", err), slog.String("run_id", runID))
		return err
	}

	res := p.executor.Run(ctx, orchestrator.UserRequest{
		Input:     r.Input,
		SessionID: r.SessionID,
	})
	if res.IsFailure() {
		return p.handleExecutionFailure(ctx, r, res.MustErr())
	}

	response := res.MustValue()
	if err := p.store.MarkSucceeded(ctx, r.ID, response); err != nil {
		logger.L().Error("标记运行成功状态失败", slog.Any("error", err), slog.String("run_id", r.ID))
		if storeErr := p.store.MarkFailed(ctx, r.ID, string(result.CodeRunProcessingFailed), err.Error(), false); storeErr != nil {
			logger.L().Error("回写失败状态出错", slog.Any("error", storeErr), slog.String("run_id", r.ID))
			return storeErr
		}
		if pubErr := p.producer.Publish(ctx, r.ID); pubErr != nil {
			return result.WrapError(result.CodeRunPublishFailed, pubErr,
				fmt.Sprintf("运行 %s 在标记成功失败后重投失败", r.ID))
		}
		return nil
	}
	metrics.ObserveRunOutcome(string(StatusSucceeded), "")
	logger.Audit().Info("运行执行成功",
		slog.String("run_id", r.ID),
		slog.String("session_id", response.Metadata["session_id"]),
		slog.String("type", string(response.Type)),
	)
	return nil
}

func (p *Processor) handleExecutionFailure(ctx context.Context, r *Run, execErr *result.ResultError) error {
	code := execErr.Code
	retryable := retry.Retryable(code)
	terminal := r.Attempts >= r.MaxRetries || !retryable

	if terminal && p.recovery != nil {
		if fallback, err := p.recovery.Recover(ctx, r, execErr); err == nil && fallback != nil {
			if storeErr := p.store.MarkSucceeded(ctx, r.ID, *fallback); storeErr != nil {
				logger.L().Error("写入降级结果失败", slog.Any("error", storeErr), slog.String("run_id", r.ID))
				return storeErr
			}
			logger.Audit().Warn("运行以降级结果结束",
				slog.String("run_id", r.ID),
				slog.String("error_code", string(code)),
			)
			return nil
		}
	}

	if storeErr := p.store.MarkFailed(ctx, r.ID, string(code), execErr.Message, terminal); storeErr != nil {
		logger.L().Error("标记运行失败状态出错", slog.Any("error", storeErr), slog.String("run_id", r.ID))
		return storeErr
	}
	logger.Audit().Warn("运行执行失败",
		slog.String("run_id", r.ID),
		slog.Bool("terminal", terminal),
		slog.String("error_code", string(code)),
		slog.String("category", string(retry.CategoryOf(code))),
		slog.Int("attempts", r.Attempts),
		slog.Int("max_retries", r.MaxRetries),
	)

	stage := "retry"
	switch {
	case !retryable:
		stage = "non_retryable"
	case terminal:
		stage = "terminal"
	}
	metrics.ObserveRunOutcome(string(StatusFailed), string(code))
	p.emitAlert(ctx, r, execErr, stage)

	if retryable && !terminal {
		// 按错误分类退避后再重投。
		metrics.ObserveRunRetry(string(retry.CategoryOf(code)))
		delay := retry.Delay(code, r.Attempts)
		if err := p.sleep(ctx, delay); err != nil {
			return err
		}
		if pubErr := p.producer.Publish(ctx, r.ID); pubErr != nil {
			return result.WrapError(result.CodeRunPublishFailed, pubErr,
				fmt.Sprintf("运行 %s 重投失败", r.ID))
		}
		p.logDebug("运行已重新排队",
			slog.String("run_id", r.ID),
			slog.Int("attempts", r.Attempts),
			slog.Duration("delay", delay))
	}
	return nil
}

func (p *Processor) emitAlert(ctx context.Context, r *Run, execErr *result.ResultError, stage string) {
	if p == nil || p.alerter == nil || r == nil {
		return
	}
	event := alerting.Event{
		Code:       execErr.Code,
		Category:   retry.CategoryOf(execErr.Code),
		Message:    execErr.Message,
		RunID:      r.ID,
		SessionID:  r.SessionID,
		Stage:      stage,
		Attempts:   r.Attempts,
		MaxRetries: r.MaxRetries,
		Metadata:   execErr.Metadata,
		OccurredAt: time.Now(),
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		logger.L().Error("告警通知失败",
			slog.Any("error", err),
			slog.String("run_id", r.ID),
			slog.String("stage", stage),
		)
	}
}

func (p *Processor) logDebug(msg string, attrs ...slog.Attr) {
	if p.logger != nil {
		args := make([]any, len(attrs))
		for i, attr := range attrs {
			args[i] = attr
		}
		p.logger.Debug(msg, args...)
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
