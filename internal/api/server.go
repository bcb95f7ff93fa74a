package api

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"OpenAgent-Loop/internal/history"
	"OpenAgent-Loop/internal/memory"
	"OpenAgent-Loop/internal/observability/metrics"
	"OpenAgent-Loop/internal/orchestrator"
	"OpenAgent-Loop/internal/result"
	"OpenAgent-Loop/internal/run"
	"OpenAgent-Loop/internal/storage"
)

// Executor 抽象同步执行入口，由编排引擎实现。
type Executor interface {
	Run(ctx context.Context, req orchestrator.UserRequest) result.Result[orchestrator.AgentResponse]
}

// Server 负责暴露 REST 接口，供外部驱动智能体执行。
type Server struct {
	addr      string
	authToken string
	executor  Executor
	runs      *run.Service
	sessions  storage.SessionRepository
	store     memory.Store
}

// ServerOption 定义可选配置。
type ServerOption func(*Server)

// WithAuthToken 启用 Bearer Token 鉴权。
func WithAuthToken(token string) ServerOption {
	return func(s *Server) {
		s.authToken = token
	}
}

// WithRunService 挂载异步运行服务。
func WithRunService(svc *run.Service) ServerOption {
	return func(s *Server) {
		s.runs = svc
	}
}

// WithSessionRepository 挂载会话归档仓库。
func WithSessionRepository(repo storage.SessionRepository) ServerOption {
	return func(s *Server) {
		s.sessions = repo
	}
}

// WithMemoryStore 挂载会话历史存储，用于历史与分析查询。
func WithMemoryStore(store memory.Store) ServerOption {
	return func(s *Server) {
		s.store = store
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, executor Executor, opts ...ServerOption) *Server {
	s := &Server{addr: addr, executor: executor}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler 返回完整路由，便于测试直接挂载。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/agent/execute", s.handleExecute)
	mux.HandleFunc("/api/v1/runs", s.handleRuns)
	mux.HandleFunc("/api/v1/runs/stats", s.handleRunStats)
	mux.HandleFunc("/api/v1/runs/", s.handleRunByID)
	mux.HandleFunc("/api/v1/sessions", s.handleSessions)
	mux.HandleFunc("/api/v1/sessions/", s.handleSessionByID)
	mux.HandleFunc("/healthz", s.handleHealth)
	return s.withAuth(s.withMetrics(mux))
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

type executeRequest struct {
	Input     string `json:"input"`
	SessionID string `json:"session_id,omitempty"`
}

// handleExecute 同步执行一次编排，直接返回面向用户的响应。
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.executor == nil {
		http.Error(w, "编排引擎未初始化", http.StatusServiceUnavailable)
		return
	}

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	userReq := orchestrator.NewUserRequest(req.Input)
	if req.SessionID != "" {
		userReq = userReq.WithSession(req.SessionID)
	}
	res := s.executor.Run(r.Context(), userReq)
	response := orchestrator.ResponseFromResult(res)
	metrics.ObserveOrchestration(string(response.Type))

	status := http.StatusOK
	if response.Type == orchestrator.ResponseError {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, response)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		http.Error(w, "运行服务未初始化", http.StatusServiceUnavailable)
		return
	}
	switch r.Method {
	case http.MethodPost:
		s.handleSubmitRun(w, r)
	case http.MethodGet:
		s.handleListRuns(w, r)
	default:
		http.Error(w, "仅支持 GET/POST", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSubmitRun(w http.ResponseWriter, r *http.Request) {
	var req run.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	created, err := s.runs.Submit(r.Context(), req)
	if err != nil {
		writeRunError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, created)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	opts := listOptionsFromQuery(r)
	runs, err := s.runs.List(r.Context(), opts...)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleRunStats(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		http.Error(w, "运行服务未初始化", http.StatusServiceUnavailable)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	stats, err := s.runs.Stats(r.Context(), listOptionsFromQuery(r)...)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleRunByID(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		http.Error(w, "运行服务未初始化", http.StatusServiceUnavailable)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/runs/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "运行 ID 无效", http.StatusBadRequest)
		return
	}
	found, err := s.runs.Get(r.Context(), id)
	if err != nil {
		writeRunError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		http.Error(w, "会话仓库未初始化", http.StatusServiceUnavailable)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	limit := parseIntQuery(r, "limit", 20)
	offset := parseIntQuery(r, "offset", 0)
	sessions, err := s.sessions.ListSessions(r.Context(), limit, offset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// handleSessionByID 处理 /api/v1/sessions/{id} 及其 history、analytics 子资源。
func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/sessions/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		http.Error(w, "会话 ID 无效", http.StatusBadRequest)
		return
	}

	switch sub {
	case "":
		s.writeSession(w, r, id)
	case "history":
		s.writeSessionHistory(w, r, id)
	case "analytics":
		s.writeSessionAnalytics(w, r, id)
	default:
		http.Error(w, "未知的会话子资源", http.StatusNotFound)
	}
}

func (s *Server) writeSession(w http.ResponseWriter, r *http.Request, id string) {
	if s.sessions == nil {
		http.Error(w, "会话仓库未初始化", http.StatusServiceUnavailable)
		return
	}
	session, err := s.sessions.GetSession(r.Context(), id)
	if err != nil {
		if stdErrors.Is(err, storage.ErrSessionNotFound) {
			http.Error(w, "会话不存在", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) writeSessionHistory(w http.ResponseWriter, r *http.Request, id string) {
	h, ok := s.loadHistory(w, r, id)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h)
}

type sessionAnalytics struct {
	Summary   history.Summary         `json:"summary"`
	Overall   history.DurationStats   `json:"overall"`
	Durations []history.DurationStats `json:"durations,omitempty"`
	Errors    history.ErrorReport     `json:"errors"`
}

func (s *Server) writeSessionAnalytics(w http.ResponseWriter, r *http.Request, id string) {
	h, ok := s.loadHistory(w, r, id)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionAnalytics{
		Summary:   history.Summarize(h),
		Overall:   history.MeasureAll(h),
		Durations: history.Measure(h),
		Errors:    history.AnalyzeErrors(h),
	})
}

func (s *Server) loadHistory(w http.ResponseWriter, r *http.Request, id string) (history.History, bool) {
	if s.store == nil {
		http.Error(w, "会话历史存储未初始化", http.StatusServiceUnavailable)
		return nil, false
	}
	h, err := s.store.LoadHistory(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	return h, true
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// withAuth 校验 Bearer Token；未配置 token 时放行所有请求。
func (s *Server) withAuth(next http.Handler) http.Handler {
	if s.authToken == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		if header != "Bearer "+s.authToken {
			http.Error(w, "鉴权失败", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		metrics.ObserveHTTPRequest(metricHandlerName(r.URL.Path), r.Method, recorder.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// metricHandlerName 把带 ID 的路径收敛为固定的指标标签。
func metricHandlerName(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/v1/runs/") && path != "/api/v1/runs/stats":
		return "/api/v1/runs/{id}"
	case strings.HasPrefix(path, "/api/v1/sessions/"):
		return "/api/v1/sessions/{id}"
	default:
		return path
	}
}

func listOptionsFromQuery(r *http.Request) []run.ListOption {
	query := r.URL.Query()
	var opts []run.ListOption
	if limit := parseIntQuery(r, "limit", 0); limit > 0 {
		opts = append(opts, run.WithLimit(limit))
	}
	if offset := parseIntQuery(r, "offset", 0); offset > 0 {
		opts = append(opts, run.WithOffset(offset))
	}
	if raw := query.Get("status"); raw != "" {
		statuses := make([]run.Status, 0, 4)
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				statuses = append(statuses, run.Status(part))
			}
		}
		opts = append(opts, run.WithStatuses(statuses...))
	}
	if sessionID := query.Get("session_id"); sessionID != "" {
		opts = append(opts, run.WithSessionID(sessionID))
	}
	if q := query.Get("q"); q != "" {
		opts = append(opts, run.WithQuery(q))
	}
	return opts
}

func parseIntQuery(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func writeRunError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case stdErrors.Is(err, run.ErrRunNotFound):
		status = http.StatusNotFound
	case stdErrors.Is(err, run.ErrRunConflict):
		status = http.StatusConflict
	default:
		var resultErr *result.ResultError
		if stdErrors.As(err, &resultErr) && resultErr.Code == result.CodeRunValidationFailed {
			status = http.StatusBadRequest
		}
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
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
