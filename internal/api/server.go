package api

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"Sovereign-Mint/internal/ascension"
	"Sovereign-Mint/internal/auth"
	"Sovereign-Mint/internal/compliance"
	xerrors "Sovereign-Mint/internal/errors"
	"Sovereign-Mint/internal/observability/alerting"
	"Sovereign-Mint/internal/observability/metrics"
	"Sovereign-Mint/internal/treasury"
	"Sovereign-Mint/internal/vault"
	"Sovereign-Mint/internal/wallet"
	"Sovereign-Mint/pkg/logger"
)

// callerHeader 携带调用者身份，由网关层保证不可伪造。
const callerHeader = "X-Sovereign-Caller"

// Server 负责暴露 REST 接口，驱动结算、审计与晋升查询。
type Server struct {
	addr     string
	engine   *treasury.Engine
	auditor  *compliance.Auditor
	producer compliance.Producer
	temple   *ascension.Engine
	wallets  wallet.Store
	vault    *vault.Vault
	resolver auth.Resolver
	alerter  alerting.Dispatcher
}

// ServerOption 配置可选依赖。
type ServerOption func(*Server)

// WithAlertDispatcher 注入告警分发器，用于上报完整性与存储故障。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ServerOption {
	return func(s *Server) {
		s.alerter = dispatcher
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, engine *treasury.Engine, auditor *compliance.Auditor, producer compliance.Producer, temple *ascension.Engine, wallets wallet.Store, v *vault.Vault, resolver auth.Resolver, opts ...ServerOption) *Server {
	server := &Server{
		addr:     addr,
		engine:   engine,
		auditor:  auditor,
		producer: producer,
		temple:   temple,
		wallets:  wallets,
		vault:    v,
		resolver: resolver,
	}
	for _, opt := range opts {
		opt(server)
	}
	return server
}

// Routes 返回完整路由，测试可直接挂到 httptest.Server 上。
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/treasury/payments", s.instrument("treasury_payments", s.handlePayments))
	mux.HandleFunc("/api/v1/treasury/mint", s.instrument("treasury_mint", s.handleMint))
	mux.HandleFunc("/api/v1/treasury/ledger", s.instrument("treasury_ledger", s.handleLedger))
	mux.HandleFunc("/api/v1/treasury/addresses", s.instrument("treasury_addresses", s.handleAddresses))
	mux.HandleFunc("/api/v1/treasury/audits", s.instrument("treasury_audits", s.handleAudits))
	mux.HandleFunc("/api/v1/treasury/sidechains", s.instrument("treasury_sidechains", s.handleSideChains))
	mux.HandleFunc("/api/v1/ascension/tiers", s.instrument("ascension_tiers", s.handleTiers))
	mux.HandleFunc("/api/v1/ascension/leaderboard", s.instrument("ascension_leaderboard", s.handleLeaderboard))
	mux.HandleFunc("/api/v1/ascension/temple", s.instrument("ascension_temple", s.handleTemple))
	mux.HandleFunc("/api/v1/ascension/rites", s.instrument("ascension_rites", s.handleRites))
	mux.HandleFunc("/api/v1/wallets/", s.instrument("wallets", s.handleWallet))
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Routes()),
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

func (s *Server) handlePayments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "仅支持 POST")
		return
	}
	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "结算引擎未初始化")
		return
	}

	var req treasury.PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "请求体解析失败")
		return
	}

	receipt, err := s.engine.ProcessPayment(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	metrics.ObserveSettlement(receipt.Chain, receipt.TaxAmount, receipt.MintedAmount)
	writeJSON(w, http.StatusCreated, receipt)
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "仅支持 GET")
		return
	}
	state, err := s.engine.MintState(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "仅支持 GET")
		return
	}
	summary, err := s.engine.Summary(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleAddresses 返回解封后的主权地址簿，只有持有
// sovereign.addresses.read 权限的调用者可以访问。
func (s *Server) handleAddresses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "仅支持 GET")
		return
	}
	subject, err := s.resolveCaller(r)
	if err != nil {
		writeError(w, http.StatusForbidden, "caller is not recognised")
		return
	}
	book, err := s.vault.Addresses(r.Context(), subject)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

type auditRequest struct {
	AgentID        string  `json:"agent_id"`
	ReportedIncome float64 `json:"reported_income"`
	ClaimedTax     float64 `json:"claimed_tax"`
	Async          bool    `json:"async,omitempty"`
}

func (s *Server) handleAudits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "仅支持 POST")
		return
	}
	subject, err := s.resolveCaller(r)
	if err != nil {
		writeError(w, http.StatusForbidden, "caller is not recognised")
		return
	}
	if !subject.HasPermission(auth.PermTriggerAudit) {
		writeError(w, http.StatusForbidden, "caller may not trigger audits")
		return
	}

	var req auditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "请求体解析失败")
		return
	}

	if req.Async && s.producer != nil {
		job := compliance.Job{
			ID:             "audit-" + strconv.FormatInt(time.Now().UnixNano(), 10),
			AgentID:        req.AgentID,
			ReportedIncome: req.ReportedIncome,
			ClaimedTax:     req.ClaimedTax,
			RequestedAt:    time.Now().Unix(),
		}
		payload, err := job.Encode()
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		if err := s.producer.Publish(r.Context(), payload); err != nil {
			s.writeDomainError(w, xerrors.Wrap(xerrors.CodeQueueFailure, err, "publish audit job"))
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID, "status": "queued"})
		return
	}

	result, err := s.auditor.Audit(r.Context(), req.AgentID, req.ReportedIncome, req.ClaimedTax)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type sideChainRequest struct {
	Name        string  `json:"name"`
	RatePercent float64 `json:"rate_percent"`
	Description string  `json:"description,omitempty"`
}

func (s *Server) handleSideChains(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		chains, err := s.engine.SideChains(r.Context())
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, chains)
	case http.MethodPost:
		var req sideChainRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "请求体解析失败")
			return
		}
		chains, err := s.engine.RegisterSideChain(r.Context(), req.Name, req.RatePercent, req.Description)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, chains)
	default:
		writeError(w, http.StatusMethodNotAllowed, "仅支持 GET/POST")
	}
}

func (s *Server) handleTiers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "仅支持 GET")
		return
	}
	writeJSON(w, http.StatusOK, ascension.Tiers())
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "仅支持 GET")
		return
	}
	board, err := s.temple.Leaderboard(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (s *Server) handleTemple(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "仅支持 GET")
		return
	}
	state, err := s.temple.State(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleRites(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "仅支持 GET")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	rites, err := s.temple.Rites(r.Context(), limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rites)
}

// handleWallet 返回钱包的公开视图，绝不暴露完整交易历史。
func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "仅支持 GET")
		return
	}
	agentID := strings.TrimPrefix(r.URL.Path, "/api/v1/wallets/")
	if agentID == "" || strings.Contains(agentID, "/") {
		writeError(w, http.StatusBadRequest, "钱包路径不合法")
		return
	}
	wal, err := s.wallets.Load(r.Context(), agentID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wal.Public())
}

func (s *Server) resolveCaller(r *http.Request) (*auth.Subject, error) {
	caller := strings.TrimSpace(r.Header.Get(callerHeader))
	if caller == "" || s.resolver == nil {
		return nil, auth.ErrUnknownSubject
	}
	return s.resolver.Resolve(r.Context(), caller)
}

// instrument 包装处理器以记录请求级指标。
func (s *Server) instrument(name string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(recorder, r)
		metrics.ObserveHTTPRequest(name, r.Method, recorder.status, time.Since(start))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError 将统一错误码映射到 HTTP 状态，并把标记为需要
// 告警的错误（完整性、存储故障）转发给告警分发器。
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	if s.alerter != nil && xerrors.ShouldAlert(err) {
		if notifyErr := s.alerter.Notify(context.Background(), alerting.FromError(err, "api", "")); notifyErr != nil {
			logger.L().Error("告警通知失败", "error", notifyErr)
		}
	}
	status := http.StatusInternalServerError
	switch xerrors.CodeOf(err) {
	case xerrors.CodeInvalidArgument:
		status = http.StatusBadRequest
	case xerrors.CodeNotFound, wallet.CodeWalletNotFound:
		status = http.StatusNotFound
	case xerrors.CodeConflict, treasury.CodeEscrowConflict:
		status = http.StatusConflict
	case xerrors.CodeAccessDenied:
		status = http.StatusForbidden
	case xerrors.CodeInitializationFailure:
		status = http.StatusServiceUnavailable
	}
	if xerrors.CodeOf(err) == treasury.CodeEscrowConflict {
		metrics.ObserveEscrowConflict()
	}
	writeError(w, status, err.Error())
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			writeError(w, http.StatusServiceUnavailable, "服务已关闭")
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
