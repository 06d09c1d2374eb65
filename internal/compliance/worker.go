package compliance

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"time"

	xerrors "Sovereign-Mint/internal/errors"
	"Sovereign-Mint/internal/observability/alerting"
	"Sovereign-Mint/internal/wallet"
	"Sovereign-Mint/pkg/logger"
)

// Worker 从队列消费审计任务并交给审计器执行。
type Worker struct {
	auditor     *Auditor
	consumer    Consumer
	workerCount int
	logger      *slog.Logger
	alerter     alerting.Dispatcher
}

// WorkerOption 定义可选配置。
type WorkerOption func(*Worker)

// WithWorkerLogger 指定日志输出。
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) WorkerOption {
	return func(w *Worker) {
		if workers > 0 {
			w.workerCount = workers
		}
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) WorkerOption {
	return func(w *Worker) {
		w.alerter = dispatcher
	}
}

// NewWorker 构造审计 Worker。
func NewWorker(auditor *Auditor, consumer Consumer, opts ...WorkerOption) *Worker {
	w := &Worker{
		auditor:     auditor,
		consumer:    consumer,
		workerCount: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	if w.workerCount <= 0 {
		w.workerCount = 1
	}
	return w
}

// Start 启动审计处理循环，阻塞直到 ctx 取消。
func (w *Worker) Start(ctx context.Context) error {
	if w.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置审计消费者")
	}
	return w.consumer.Consume(ctx, w.workerCount, w.handle)
}

func (w *Worker) handle(ctx context.Context, payload string) error {
	if w.auditor == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "审计器未初始化")
	}
	job, err := DecodeJob(payload)
	if err != nil {
		// 无法解码的载荷直接丢弃，重投也不会成功。
		logger.L().Error("丢弃无法解码的审计任务", slog.Any("error", err))
		return nil
	}

	result, err := w.auditor.Audit(ctx, job.AgentID, job.ReportedIncome, job.ClaimedTax)
	if err != nil {
		if stdErrors.Is(err, wallet.ErrWalletNotFound) {
			w.logDebug("跳过审计任务", slog.String("agent_id", job.AgentID), slog.String("reason", "wallet not found"))
			return nil
		}
		logger.L().Error("审计任务执行失败", slog.Any("error", err), slog.String("agent_id", job.AgentID))
		w.emitAlert(ctx, job.AgentID, xerrors.CodeOf(err), err, "audit")
		return err
	}

	if result.Status == StatusPurityFault {
		w.emitAlert(ctx, job.AgentID, CodePurityFault, nil, "purity_fault")
	}
	w.logDebug("审计任务完成",
		slog.String("agent_id", job.AgentID),
		slog.String("status", result.Status),
		slog.Float64("compliance_score", result.ComplianceScore),
	)
	return nil
}

func (w *Worker) logDebug(msg string, attrs ...slog.Attr) {
	if w.logger != nil {
		args := make([]any, len(attrs))
		for i, attr := range attrs {
			args[i] = attr
		}
		w.logger.Debug(msg, args...)
	}
}

func (w *Worker) emitAlert(ctx context.Context, agentID string, code xerrors.Code, cause error, stage string) {
	if w == nil || w.alerter == nil {
		return
	}
	attrs := xerrors.AttributesOf(code)
	message := attrs.Message
	if cause != nil {
		message = cause.Error()
	}
	metadata := map[string]string{"stage": stage}
	if cause != nil {
		metadata["cause"] = cause.Error()
	}
	event := alerting.Event{
		Code:       code,
		Message:    message,
		Severity:   attrs.Severity,
		AgentID:    agentID,
		Stage:      stage,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}
	if err := w.alerter.Notify(ctx, event); err != nil {
		logger.L().Error("告警通知失败",
			slog.Any("error", err),
			slog.String("agent_id", agentID),
			slog.String("stage", stage),
		)
	}
}
