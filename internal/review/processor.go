package review

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"

	"CouncilChain/internal/council"
	xerrors "CouncilChain/internal/errors"
	"CouncilChain/internal/observability/alerting"
	"CouncilChain/internal/observability/metrics"
	"CouncilChain/pkg/logger"
)

// Executor 定义了处理器所需的议会评审能力。
type Executor interface {
	Evaluate(ctx context.Context, submission council.Submission) (*council.ConsensusResult, error)
}

// ChainStamper 在结论落盘前补充链上快照，用于给结论盖时间戳。
type ChainStamper interface {
	Snapshot(ctx context.Context) (chainID string, blockNumber string, err error)
}

// VerdictSink 在工单得出结论后接收完整的议会记录。链上快照随结论一同下传，
// 快照缺失时传空串。
type VerdictSink interface {
	Record(ctx context.Context, jobID string, result *council.ConsensusResult, chainID, blockNumber string) error
}

// Processor 负责从队列消费工单并交给议会评审。
type Processor struct {
	executor    Executor
	store       Store
	consumer    Consumer
	producer    Producer
	workerCount int
	logger      *slog.Logger
	recovery    RecoveryHandler
	alerter     alerting.Dispatcher
	stamper     ChainStamper
	sink        VerdictSink
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
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

// WithRecoveryHandler 配置失败补偿策略。
func WithRecoveryHandler(handler RecoveryHandler) ProcessorOption {
	return func(p *Processor) {
		p.recovery = handler
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// WithChainStamper 配置链上快照来源。
func WithChainStamper(stamper ChainStamper) ProcessorOption {
	return func(p *Processor) {
		p.stamper = stamper
	}
}

// WithVerdictSink 配置完整结论的落盘目标。
func WithVerdictSink(sink VerdictSink) ProcessorOption {
	return func(p *Processor) {
		p.sink = sink
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

// Start 启动工单处理循环。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置工单消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, jobID string) error {
	if p.store == nil || p.executor == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	job, err := p.store.Claim(ctx, jobID)
	if err != nil {
		if stdErrors.Is(err, ErrReviewNotFound) || stdErrors.Is(err, ErrReviewCompleted) || stdErrors.Is(err, ErrReviewExhausted) {
			p.logDebug("跳过工单", slog.String("review_id", jobID), slog.String("reason", err.Error()))
			return nil
		}
		logger.L().Error("领取工单失败", slog.Any("error", err), slog.String("review_id", jobID))
		p.emitAlert(ctx, &Job{ID: jobID}, CodeReviewProcessing, err, "claim")
		return err
	}

	result, execErr := p.executor.Evaluate(ctx, council.Submission{
		ID:    job.ID,
		URL:   job.URL,
		Notes: job.Notes,
	})
	if execErr != nil {
		return p.handleEvaluationFailure(ctx, job, execErr)
	}

	record := p.summarize(ctx, result)
	if p.sink != nil && result != nil {
		if sinkErr := p.sink.Record(ctx, job.ID, result, record.ChainID, record.BlockNumber); sinkErr != nil {
			// 台账落盘失败不阻塞工单结论，只告警。
			logger.L().Error("记录议会台账失败", slog.Any("error", sinkErr), slog.String("review_id", job.ID))
			p.emitAlert(ctx, job, xerrors.CodeStorageFailure, sinkErr, "ledger")
		}
	}
	if err := p.store.MarkSucceeded(ctx, job.ID, record); err != nil {
		logger.L().Error("标记工单成功状态失败", slog.Any("error", err), slog.String("review_id", job.ID))
		if storeErr := p.store.MarkFailed(ctx, job.ID, CodeReviewProcessing, err.Error(), false); storeErr != nil {
			logger.L().Error("回写失败状态出错", slog.Any("error", storeErr), slog.String("review_id", job.ID))
			return storeErr
		}
		if pubErr := p.producer.Publish(ctx, job.ID); pubErr != nil {
			return xerrors.Wrap(CodeReviewPublish, pubErr, fmt.Sprintf("工单 %s 在标记成功失败后重投失败", job.ID))
		}
		logger.Audit().Warn("工单标记成功失败后重试",
			slog.String("review_id", job.ID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	metrics.ObserveVerdict(record.ContentType, record.Approved)
	logger.Audit().Info("工单评审完成",
		slog.String("review_id", job.ID),
		slog.Bool("approved", record.Approved),
		slog.String("content_type", record.ContentType),
		slog.String("block_number", record.BlockNumber),
	)
	return nil
}

// summarize 将议会结论压缩成可落盘的工单结果，并在可能时盖上链上快照。
func (p *Processor) summarize(ctx context.Context, result *council.ConsensusResult) VerdictSummary {
	if result == nil {
		return VerdictSummary{}
	}
	record := VerdictSummary{
		ContentType:   string(result.ContentType),
		Approved:      result.Approved,
		ApprovalCount: result.ApprovalCount,
		RejectCount:   result.RejectionCount,
		ApprovalRate:  result.ApprovalRate,
		Summary: fmt.Sprintf("议会表决 %d/%d 赞成，通过率 %.2f",
			result.ApprovalCount, result.EvaluatorCount, result.ApprovalRate),
	}
	if p.stamper != nil {
		chainID, blockNumber, err := p.stamper.Snapshot(ctx)
		if err != nil {
			// 链上快照缺失时结论照常落盘。
			logger.L().Warn("获取链上快照失败", slog.Any("error", err), slog.String("submission_id", result.SubmissionID))
		} else {
			record.ChainID = chainID
			record.BlockNumber = blockNumber
		}
	}
	return record
}

func (p *Processor) handleEvaluationFailure(ctx context.Context, job *Job, execErr error) error {
	code := xerrors.CodeOf(execErr)
	if code == xerrors.CodeUnknown {
		code = CodeReviewProcessing
	}
	retryable := xerrors.RetryableError(execErr)
	terminal := job.Attempts >= job.MaxRetries || !retryable

	if !retryable && p.recovery != nil {
		if fallback, recErr := p.recovery.Recover(ctx, job, execErr); recErr != nil {
			wrapped := xerrors.Wrap(CodeReviewCompensate, recErr, "工单补偿失败")
			logger.L().Error("执行补偿逻辑失败",
				slog.Any("error", wrapped),
				slog.String("review_id", job.ID))
			p.emitAlert(ctx, job, CodeReviewCompensate, wrapped, "compensate")
		} else if fallback != nil {
			if fallback.Summary == "" {
				fallback.Summary = fmt.Sprintf("降级处理: %v", execErr)
			}
			if err := p.store.MarkSucceeded(ctx, job.ID, *fallback); err != nil {
				logger.L().Error("记录降级结论失败", slog.Any("error", err), slog.String("review_id", job.ID))
				if storeErr := p.store.MarkFailed(ctx, job.ID, code, err.Error(), false); storeErr != nil {
					logger.L().Error("降级失败后的回写失败状态出错", slog.Any("error", storeErr), slog.String("review_id", job.ID))
					return storeErr
				}
				if pubErr := p.producer.Publish(ctx, job.ID); pubErr != nil {
					return xerrors.Wrap(CodeReviewPublish, pubErr, fmt.Sprintf("工单 %s 在降级失败后重投失败", job.ID))
				}
				return nil
			}
			logger.Audit().Warn("工单降级完成",
				slog.String("review_id", job.ID),
				slog.String("summary", fallback.Summary),
			)
			p.emitAlert(ctx, job, code, execErr, "degraded")
			return nil
		}
	}

	if storeErr := p.store.MarkFailed(ctx, job.ID, code, execErr.Error(), terminal); storeErr != nil {
		logger.L().Error("标记工单失败状态出错", slog.Any("error", storeErr), slog.String("review_id", job.ID))
		return storeErr
	}
	logger.Audit().Warn("工单评审失败",
		slog.String("review_id", job.ID),
		slog.Bool("terminal", terminal),
		slog.String("error", execErr.Error()),
		slog.String("error_code", string(code)),
		slog.Int("attempts", job.Attempts),
		slog.Int("max_retries", job.MaxRetries),
	)

	stage := "retry"
	if terminal {
		stage = "terminal"
	} else if !retryable {
		stage = "non_retryable"
	}
	p.emitAlert(ctx, job, code, execErr, stage)

	if retryable && !terminal {
		if pubErr := p.producer.Publish(ctx, job.ID); pubErr != nil {
			return xerrors.Wrap(CodeReviewPublish, pubErr, fmt.Sprintf("工单 %s 重投失败", job.ID))
		}
		p.logDebug("工单已重新排队", slog.String("review_id", job.ID), slog.Int("attempts", job.Attempts))
	}
	return nil
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

func (p *Processor) emitAlert(ctx context.Context, job *Job, code xerrors.Code, cause error, stage string) {
	if p == nil || p.alerter == nil || job == nil {
		return
	}
	attrs := xerrors.AttributesOf(code)
	message := attrs.Message
	if cause != nil {
		message = cause.Error()
	}
	metadata := map[string]string{
		"stage": stage,
	}
	if cause != nil {
		metadata["cause"] = cause.Error()
	}
	event := alerting.Event{
		Code:       code,
		Message:    message,
		Severity:   attrs.Severity,
		ReviewID:   job.ID,
		Attempts:   job.Attempts,
		MaxRetries: job.MaxRetries,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		logger.L().Error("告警通知失败",
			slog.Any("error", err),
			slog.String("review_id", job.ID),
			slog.String("stage", stage),
		)
	}
}
