package api

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"CouncilChain/internal/auth"
	"CouncilChain/internal/council"
	"CouncilChain/internal/observability/metrics"
	"CouncilChain/internal/review"
	"CouncilChain/internal/security"
	"CouncilChain/internal/storage/mysql"
)

// Server 负责暴露 REST 接口，供外部提交作品并查询评审进度。
type Server struct {
	addr      string
	reviews   *review.Service
	evaluator review.Executor
	verdicts  mysql.VerdictRepository
	authSvc   *auth.Service
}

// ServerOption 调整 Server 的可选能力。
type ServerOption func(*Server)

// WithEvaluator 启用同步评审接口。
func WithEvaluator(evaluator review.Executor) ServerOption {
	return func(s *Server) {
		s.evaluator = evaluator
	}
}

// WithVerdictRepository 启用台账查询接口。
func WithVerdictRepository(repo mysql.VerdictRepository) ServerOption {
	return func(s *Server) {
		s.verdicts = repo
	}
}

// WithAuthService 启用 API key 鉴权。
func WithAuthService(svc *auth.Service) ServerOption {
	return func(s *Server) {
		s.authSvc = svc
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, reviews *review.Service, opts ...ServerOption) *Server {
	s := &Server{addr: addr, reviews: reviews}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Handler 返回组装好的路由，便于测试。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/reviews", s.instrument("reviews", s.handleReviews))
	mux.HandleFunc("/api/v1/reviews/", s.instrument("review_detail", s.handleReviewDetail))
	mux.HandleFunc("/api/v1/stats", s.instrument("stats", s.handleStats))
	mux.HandleFunc("/api/v1/evaluations", s.instrument("evaluations", s.handleEvaluate))
	mux.HandleFunc("/api/v1/verdicts/", s.instrument("verdict_detail", s.handleVerdictDetail))
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())

	var handler http.Handler = mux
	if s.authSvc != nil {
		handler = s.authSvc.Middleware(auth.MiddlewareConfig{})(handler)
	}
	return handler
}

// instrument 记录每个接口的请求指标。
func (s *Server) instrument(name string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		fn(sw, r)
		metrics.ObserveHTTPRequest(name, r.Method, sw.status, time.Since(start))
	}
}

func (s *Server) handleReviews(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateReview(w, r)
	case http.MethodGet:
		s.handleListReviews(w, r)
	default:
		http.Error(w, "仅支持 GET/POST", http.StatusMethodNotAllowed)
	}
}

// handleCreateReview 创建评审工单并立即返回，结论通过查询接口获取。
func (s *Server) handleCreateReview(w http.ResponseWriter, r *http.Request) {
	if s.reviews == nil {
		http.Error(w, "评审服务未初始化", http.StatusServiceUnavailable)
		return
	}

	var req review.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	job, err := s.reviews.Submit(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	if s.reviews == nil {
		http.Error(w, "评审服务未初始化", http.StatusServiceUnavailable)
		return
	}

	opts := listOptionsFromQuery(r)
	jobs, err := s.reviews.List(r.Context(), opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleReviewDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.reviews == nil {
		http.Error(w, "评审服务未初始化", http.StatusServiceUnavailable)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/reviews/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "缺少工单 ID", http.StatusBadRequest)
		return
	}

	job, err := s.reviews.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.reviews == nil {
		http.Error(w, "评审服务未初始化", http.StatusServiceUnavailable)
		return
	}

	stats, err := s.reviews.Stats(r.Context(), listOptionsFromQuery(r)...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleEvaluate 同步执行一次议会评审，阻塞直到得出结论。
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.evaluator == nil {
		http.Error(w, "议会未初始化", http.StatusServiceUnavailable)
		return
	}

	var submission council.Submission
	if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	result, err := s.evaluator.Evaluate(r.Context(), submission)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleVerdictDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.verdicts == nil {
		http.Error(w, "台账未启用", http.StatusServiceUnavailable)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/verdicts/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "缺少工单 ID", http.StatusBadRequest)
		return
	}

	record, err := s.verdicts.GetByReviewID(r.Context(), id)
	if err != nil {
		if stdErrors.Is(err, mysql.ErrVerdictNotFound) {
			http.Error(w, "台账记录不存在", http.StatusNotFound)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func listOptionsFromQuery(r *http.Request) []review.ListOption {
	var opts []review.ListOption
	query := r.URL.Query()
	if raw := query.Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			opts = append(opts, review.WithLimit(parsed))
		}
	}
	if raw := query.Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			opts = append(opts, review.WithOffset(parsed))
		}
	}
	if raw := query.Get("status"); raw != "" {
		statuses := make([]review.Status, 0, 2)
		for _, value := range strings.Split(raw, ",") {
			statuses = append(statuses, review.Status(strings.TrimSpace(value)))
		}
		opts = append(opts, review.WithStatuses(statuses...))
	}
	if raw := query.Get("q"); raw != "" {
		opts = append(opts, review.WithQuery(raw))
	}
	return opts
}

// writeError 将内部错误映射为合适的 HTTP 状态码。
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case stdErrors.Is(err, review.ErrReviewNotFound):
		status = http.StatusNotFound
	case stdErrors.Is(err, review.ErrReviewConflict):
		status = http.StatusConflict
	case stdErrors.Is(err, security.ErrSecurityValidation):
		status = http.StatusUnprocessableEntity
	case review.IsReviewError(err, review.CodeReviewValidation):
		status = http.StatusBadRequest
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// statusWriter 捕获响应状态码用于指标统计。
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
