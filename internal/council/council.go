package council

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"CouncilChain/internal/classify"
	xerrors "CouncilChain/internal/errors"
	"CouncilChain/internal/guidelines"
	"CouncilChain/internal/llm"
	"CouncilChain/internal/registry"
	"CouncilChain/internal/security"
	"CouncilChain/pkg/logger"
)

// Stage 表示评估会话所处的阶段。
type Stage string

const (
	StageValidating   Stage = "validating"
	StageClassifying  Stage = "classifying"
	StageDeepAnalysis Stage = "deep_analysis"
	StageVoting       Stage = "voting"
	StageConsensus    Stage = "consensus"
	StageDone         Stage = "done"
	StageAborted      Stage = "aborted"
)

// Submission 描述一次待评审的工作提交。
type Submission struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Notes string `json:"notes"`
}

// AnalysisRecord 是深度分析阶段产出的一条会话级记录，
// 仅在当次会话内广播，会话结束即废弃。
type AnalysisRecord struct {
	EvaluatorID string               `json:"evaluator_id"`
	ContentType classify.ContentType `json:"content_type"`
	Summary     string               `json:"summary"`
	CreatedAt   time.Time            `json:"created_at"`
}

// SecuritySummary 汇总预校验阶段的安全结论。
type SecuritySummary struct {
	RiskLevel security.RiskLevel `json:"risk_level"`
	Threats   []security.Threat  `json:"threats,omitempty"`
}

// ConsensusResult 是一次评估会话的最终产出。
type ConsensusResult struct {
	SubmissionID   string               `json:"submission_id"`
	ContentType    classify.ContentType `json:"content_type"`
	Approved       bool                 `json:"approved"`
	ApprovalCount  int                  `json:"approval_count"`
	RejectionCount int                  `json:"rejection_count"`
	ApprovalRate   float64              `json:"approval_rate"`
	EvaluatorCount int                  `json:"evaluator_count"`
	Votes          []security.Vote      `json:"votes"`
	Communications []AnalysisRecord     `json:"communications"`
	Security       SecuritySummary      `json:"security"`
	CompletedAt    time.Time            `json:"completed_at"`
}

// 默认策略参数。共识阈值为闭区间判定（恰好打平视为通过），
// 该方向性偏置属于产品决策，不可四舍五入为拒绝。
const (
	defaultApprovalThreshold = 0.5
	defaultCallTimeout       = 60 * time.Second
	defaultSessionTimeout    = 5 * time.Minute
)

// 信息流控制器中登记的会话输入标识。
const (
	inputIDURL   = "submission:url"
	inputIDNotes = "submission:notes"
)

// Orchestrator 驱动评估会话。注册表、安全网关与后端映射在构造后只读，
// 一个实例可被并发会话共享；所有会话级状态都在 Evaluate 内部创建。
type Orchestrator struct {
	registry       *registry.Registry
	gateway        *security.Gateway
	backends       map[string]llm.Client
	guidelines     guidelines.Provider
	threshold      float64
	callTimeout    time.Duration
	sessionTimeout time.Duration
	log            *slog.Logger
	audit          *slog.Logger
}

// Option 定义可选的编排器配置。
type Option func(*Orchestrator)

// WithApprovalThreshold 覆盖共识阈值。默认 0.5，闭区间判定。
func WithApprovalThreshold(threshold float64) Option {
	return func(o *Orchestrator) {
		if threshold > 0 && threshold <= 1 {
			o.threshold = threshold
		}
	}
}

// WithCallTimeout 设置单次后端调用的超时时间。
func WithCallTimeout(timeout time.Duration) Option {
	return func(o *Orchestrator) {
		if timeout > 0 {
			o.callTimeout = timeout
		}
	}
}

// WithSessionTimeout 设置整个会话的截止时间。到期后以已完成的投票进入共识。
func WithSessionTimeout(timeout time.Duration) Option {
	return func(o *Orchestrator) {
		if timeout > 0 {
			o.sessionTimeout = timeout
		}
	}
}

// WithGuidelines 接入内容准则库，命中的条目会并入投票阶段的评审标准。
func WithGuidelines(provider guidelines.Provider) Option {
	return func(o *Orchestrator) {
		o.guidelines = provider
	}
}

// WithLogger 指定日志输出。
func WithLogger(log *slog.Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

// New 创建编排器。
func New(reg *registry.Registry, gateway *security.Gateway, backends map[string]llm.Client, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:       reg,
		gateway:        gateway,
		backends:       backends,
		threshold:      defaultApprovalThreshold,
		callTimeout:    defaultCallTimeout,
		sessionTimeout: defaultSessionTimeout,
		log:            logger.Named("council"),
		audit:          logger.Audit(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// session 保存一次评估会话的全部可变状态。投票表与广播日志
// 只能在持有锁时追加，避免并发扇出时交错写坏。
type session struct {
	submission Submission
	assessment security.Assessment
	flow       *security.FlowController
	kind       classify.ContentType
	guidance   []string
	stage      Stage

	mu             sync.Mutex
	communications []AnalysisRecord
	votes          []security.Vote
}

func (s *session) appendAnalysis(record AnalysisRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.communications = append(s.communications, record)
}

func (s *session) appendVote(vote security.Vote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.votes = append(s.votes, vote)
}

// snapshotCommunications 返回广播日志的稳定快照，供投票阶段并发读取。
func (s *session) snapshotCommunications() []AnalysisRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AnalysisRecord, len(s.communications))
	copy(out, s.communications)
	return out
}

// Evaluate 运行一次完整的评估会话并返回共识结果。
// 仅当预校验判定高风险时返回错误；其余一切失败都降级为更少的有效票。
func (o *Orchestrator) Evaluate(ctx context.Context, sub Submission) (*ConsensusResult, error) {
	if o.registry == nil || o.gateway == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "评审编排器未初始化")
	}
	if strings.TrimSpace(sub.ID) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "提交 ID 不能为空")
	}

	sessionCtx := ctx
	if o.sessionTimeout > 0 {
		var cancel context.CancelFunc
		sessionCtx, cancel = context.WithTimeout(ctx, o.sessionTimeout)
		defer cancel()
	}

	// 会话级状态全部在此构造，会话结束即废弃，不跨会话共享。
	sess := &session{submission: sub, flow: security.NewFlowController(), stage: StageValidating}

	// VALIDATING：安全预校验。高风险直接终止，不产生任何部分结果——
	// 被污染的输入会进入每一个下游提示词。
	sess.assessment = o.gateway.ValidateInput(sub.ID, sub.URL, sub.Notes)
	sess.flow.MarkUntrusted(inputIDURL, sub.URL, "submitter")
	sess.flow.MarkUntrusted(inputIDNotes, sub.Notes, "submitter")
	if !sess.assessment.Valid {
		sess.stage = StageAborted
		o.audit.Warn("安全事件",
			slog.String("event_type", "session_aborted"),
			slog.String("submission_id", sub.ID),
			slog.String("risk_level", string(sess.assessment.RiskLevel)),
		)
		return nil, xerrors.New(security.CodeSecurityValidation,
			fmt.Sprintf("提交 %s 未通过安全预校验", sub.ID))
	}

	// CLASSIFYING：纯函数分类，不会失败。
	sess.stage = StageClassifying
	sess.kind = classify.Classify(sub.URL, sess.assessment.Sanitized)
	sess.guidance = o.guidanceFor(sess.kind, sess.assessment.Sanitized)

	// DEEP_ANALYSIS：专长子集先行分析，结果广播给全员。
	sess.stage = StageDeepAnalysis
	o.runDeepAnalysis(sessionCtx, sess)

	// VOTING：全体评审员带共享上下文投票。
	sess.stage = StageVoting
	o.runVoting(sessionCtx, sess)

	// CONSENSUS：多数裁决。
	sess.stage = StageConsensus
	result := o.tally(sess)
	sess.stage = StageDone

	o.log.Info("评估会话完成",
		slog.String("submission_id", sub.ID),
		slog.String("content_type", string(sess.kind)),
		slog.Bool("approved", result.Approved),
		slog.Int("votes_cast", len(result.Votes)),
		slog.Int("evaluator_count", result.EvaluatorCount),
	)
	return result, nil
}

// runDeepAnalysis 并发驱动专长子集的分析。单个评审员失败不致命，
// 记录为"分析不可用"后继续。
func (o *Orchestrator) runDeepAnalysis(ctx context.Context, sess *session) {
	specialists := o.registry.SelectForContent(sess.kind)

	var wg sync.WaitGroup
	for _, evaluator := range specialists {
		wg.Add(1)
		go func(evaluator registry.Evaluator) {
			defer wg.Done()
			record := AnalysisRecord{
				EvaluatorID: evaluator.ID,
				ContentType: sess.kind,
				CreatedAt:   time.Now(),
			}
			summary, err := o.invokeAnalysis(ctx, evaluator, sess)
			if err != nil {
				o.log.Warn("深度分析失败",
					slog.String("submission_id", sess.submission.ID),
					slog.String("evaluator_id", evaluator.ID),
					slog.Any("error", err),
				)
				record.Summary = "分析不可用"
			} else {
				record.Summary = summary
			}
			sess.appendAnalysis(record)
		}(evaluator)
	}
	wg.Wait()
}

func (o *Orchestrator) invokeAnalysis(ctx context.Context, evaluator registry.Evaluator, sess *session) (string, error) {
	client, ok := o.backends[evaluator.Backend]
	if !ok {
		return "", xerrors.New(xerrors.CodeInitializationFailure,
			fmt.Sprintf("评审员 %s 的后端 %s 未配置", evaluator.ID, evaluator.Backend))
	}

	prompt := security.BuildAnalysisPrompt(security.PromptInput{
		Evaluator:    evaluator,
		SubmissionID: sess.submission.ID,
		URL:          sess.submission.URL,
		Sanitized:    sess.assessment.Sanitized,
		ContentType:  sess.kind,
	})

	resp, err := o.invoke(ctx, client, llm.Request{
		SystemPrompt: evaluator.Personality,
		UserPrompt:   prompt,
	})
	if err != nil {
		return "", err
	}

	summary := strings.TrimSpace(resp.Reasoning)
	if summary == "" {
		summary = strings.TrimSpace(resp.Raw)
	}
	if summary == "" {
		return "", xerrors.New(xerrors.CodeExecutorFailure, "分析结果为空")
	}
	return summary, nil
}

// runVoting 并发驱动全体评审员投票。后端失败、输出校验失败或流控拒绝
// 都只丢弃该票并记日志，绝不代投任何一方。
func (o *Orchestrator) runVoting(ctx context.Context, sess *session) {
	evaluators := o.registry.All()
	communications := sess.snapshotCommunications()

	var wg sync.WaitGroup
	for _, evaluator := range evaluators {
		wg.Add(1)
		go func(evaluator registry.Evaluator) {
			defer wg.Done()
			vote, err := o.collectVote(ctx, evaluator, sess, communications)
			if err != nil {
				if stdErrors.Is(err, security.ErrFlowControlDenied) {
					// 流控拒绝是策略决定而非基础设施故障，单独审计。
					o.audit.Warn("安全事件",
						slog.String("event_type", "vote_blocked_by_flow_control"),
						slog.String("submission_id", sess.submission.ID),
						slog.String("evaluator_id", evaluator.ID),
					)
					return
				}
				o.log.Warn("投票收集失败",
					slog.String("submission_id", sess.submission.ID),
					slog.String("evaluator_id", evaluator.ID),
					slog.Any("error", err),
				)
				return
			}
			sess.appendVote(vote)
		}(evaluator)
	}
	wg.Wait()
}

func (o *Orchestrator) collectVote(ctx context.Context, evaluator registry.Evaluator, sess *session, communications []AnalysisRecord) (security.Vote, error) {
	client, ok := o.backends[evaluator.Backend]
	if !ok {
		return security.Vote{}, xerrors.New(xerrors.CodeInitializationFailure,
			fmt.Sprintf("评审员 %s 的后端 %s 未配置", evaluator.ID, evaluator.Backend))
	}

	prompt := security.BuildSecurePrompt(security.PromptInput{
		Evaluator:     evaluator,
		SubmissionID:  sess.submission.ID,
		URL:           sess.submission.URL,
		Sanitized:     sess.assessment.Sanitized,
		ContentType:   sess.kind,
		SharedContext: sharedContextFor(evaluator.ID, communications),
		Guidelines:    sess.guidance,
	})

	resp, err := o.invoke(ctx, client, llm.Request{
		SystemPrompt: evaluator.Personality,
		UserPrompt:   prompt,
	})
	if err != nil {
		return security.Vote{}, err
	}

	vote, err := o.gateway.ValidateCouncilOutput(evaluator.ID, evaluator.Backend, resp)
	if err != nil {
		return security.Vote{}, err
	}

	// 敏感动作执行点的第二道独立把关。
	if !sess.flow.CanExecuteAction(security.ActionCastVote, []string{inputIDURL, inputIDNotes}) {
		return security.Vote{}, security.ErrFlowControlDenied
	}
	return vote, nil
}

// invoke 为单次后端调用套上独立超时。超时与失败同等对待：
// 丢弃该票、记录日志、继续会话。
func (o *Orchestrator) invoke(ctx context.Context, client llm.Client, req llm.Request) (*llm.Response, error) {
	callCtx := ctx
	if o.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.callTimeout)
		defer cancel()
	}
	resp, err := client.Invoke(callCtx, req)
	if err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) {
			return nil, xerrors.Wrap(xerrors.CodeTimeout, err, "后端调用超时")
		}
		return nil, xerrors.Wrap(xerrors.CodeExecutorFailure, err, "后端调用失败")
	}
	return resp, nil
}

// guidanceFor 从准则库检索命中条目并渲染为单行文本。
func (o *Orchestrator) guidanceFor(kind classify.ContentType, sanitized string) []string {
	if o.guidelines == nil {
		return nil
	}
	snippets := o.guidelines.Query(string(kind), sanitized)
	lines := make([]string, 0, len(snippets))
	for _, snippet := range snippets {
		lines = append(lines, fmt.Sprintf("%s: %s", snippet.Title, snippet.Content))
	}
	return lines
}

// sharedContextFor 拼接除 selfID 之外所有评审员的分析记录。
// 评审员绝不能把自己的分析当作第三方见解再读一遍。
func sharedContextFor(selfID string, communications []AnalysisRecord) string {
	var builder strings.Builder
	for _, record := range communications {
		if record.EvaluatorID == selfID {
			continue
		}
		builder.WriteString(fmt.Sprintf("[%s] %s\n", record.EvaluatorID, record.Summary))
	}
	return builder.String()
}

// tally 计算多数共识。零票时通过率为 0 且判定为拒绝，
// 绝不除以零，也绝不默认通过。
func (o *Orchestrator) tally(sess *session) *ConsensusResult {
	sess.mu.Lock()
	votes := make([]security.Vote, len(sess.votes))
	copy(votes, sess.votes)
	communications := make([]AnalysisRecord, len(sess.communications))
	copy(communications, sess.communications)
	sess.mu.Unlock()

	approvals := 0
	for _, vote := range votes {
		if vote.Approved {
			approvals++
		}
	}

	rate := 0.0
	approved := false
	if len(votes) > 0 {
		rate = float64(approvals) / float64(len(votes))
		approved = rate >= o.threshold
	}

	return &ConsensusResult{
		SubmissionID:   sess.submission.ID,
		ContentType:    sess.kind,
		Approved:       approved,
		ApprovalCount:  approvals,
		RejectionCount: len(votes) - approvals,
		ApprovalRate:   rate,
		EvaluatorCount: o.registry.Size(),
		Votes:          votes,
		Communications: communications,
		Security: SecuritySummary{
			RiskLevel: sess.assessment.RiskLevel,
			Threats:   sess.assessment.Threats,
		},
		CompletedAt: time.Now(),
	}
}
