// Package server exposes the read API and operator endpoints over HTTP,
// alongside a gRPC server carrying health and reflection for probes and
// tooling.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/idexio/idex-contracts-ikon-sub000/internal/errs"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/governance"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/ingestion"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/market"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/observability"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/query"
)

// Server hosts both listeners. gRPC carries the health service and
// reflection; the HTTP side serves the JSON API, probes, and metrics.
type Server struct {
	grpcServer   *grpc.Server
	healthServer *health.Server
	httpServer   *http.Server
	grpcAddr     string
	httpAddr     string
	queries      *query.Service
	admin        *ingestion.AdminService
	checker      *observability.HealthChecker
	log          zerolog.Logger
}

// Deps holds everything the server serves from.
type Deps struct {
	Queries       *query.Service
	Admin         *ingestion.AdminService
	HealthChecker *observability.HealthChecker
}

func New(grpcAddr, httpAddr string, deps Deps, log zerolog.Logger) *Server {
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	reflection.Register(grpcServer)

	return &Server{
		grpcServer:   grpcServer,
		healthServer: healthServer,
		grpcAddr:     grpcAddr,
		httpAddr:     httpAddr,
		queries:      deps.Queries,
		admin:        deps.Admin,
		checker:      deps.HealthChecker,
		log:          log,
	}
}

// SetServing flips the gRPC health status once recovery completes.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.healthServer.SetServingStatus("", status)
}

// StartGRPC serves the gRPC listener until the context is canceled.
func (s *Server) StartGRPC(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("grpc server shutting down")
		s.grpcServer.GracefulStop()
	}()

	s.log.Info().Str("addr", s.grpcAddr).Msg("grpc server listening")
	return s.grpcServer.Serve(lis)
}

// StartHTTP serves the JSON API until the context is canceled.
func (s *Server) StartHTTP(ctx context.Context) error {
	mux := runtime.NewServeMux()
	if err := s.registerRoutes(mux); err != nil {
		return fmt.Errorf("register routes: %w", err)
	}

	httpMux := http.NewServeMux()
	httpMux.Handle("/metrics", promhttp.Handler())
	if s.checker != nil {
		httpMux.HandleFunc("/healthz", s.checker.LivenessHandler)
		httpMux.HandleFunc("/readyz", s.checker.ReadinessHandler)
	}
	httpMux.Handle("/", mux)

	s.httpServer = &http.Server{
		Addr:              s.httpAddr,
		Handler:           httpMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("addr", s.httpAddr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) registerRoutes(mux *runtime.ServeMux) error {
	routes := []struct {
		method  string
		pattern string
		handler runtime.HandlerFunc
	}{
		{"GET", "/v1/accounts/{wallet}", s.handleAccount},
		{"GET", "/v1/accounts/{wallet}/positions", s.handlePositions},
		{"GET", "/v1/markets", s.handleMarkets},
		{"GET", "/v1/markets/{symbol}", s.handleMarket},
		{"GET", "/v1/events", s.handleEvents},
		{"GET", "/v1/integrity", s.handleIntegrity},
		{"POST", "/v1/admin/markets", s.handleListMarket},
		{"POST", "/v1/admin/markets/{symbol}/deactivate", s.handleDeactivateMarket},
		{"POST", "/v1/admin/markets/{symbol}/reactivate", s.handleReactivateMarket},
		{"POST", "/v1/admin/upgrades", s.handleInitiateUpgrade},
		{"POST", "/v1/admin/upgrades/{kind}/cancel", s.handleCancelUpgrade},
		{"POST", "/v1/admin/upgrades/{kind}/finalize", s.handleFinalizeUpgrade},
	}
	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.pattern, r.handler); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	wallet, ok := parseWalletParam(w, pathParams)
	if !ok {
		return
	}
	view, err := s.queries.Account(wallet)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	wallet, ok := parseWalletParam(w, pathParams)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"wallet":    wallet,
		"positions": s.queries.Positions(wallet),
	})
}

func (s *Server) handleMarkets(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	writeJSON(w, http.StatusOK, map[string]any{"markets": s.queries.Markets()})
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	view, err := s.queries.Market(pathParams["symbol"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	q := r.URL.Query()
	var filter query.EventFilter
	if v := q.Get("market"); v != "" {
		filter.Market = &v
	}
	if v := q.Get("type"); v != "" {
		filter.EventType = &v
	}
	if v := q.Get("before"); v != "" {
		seq, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, errs.Validation("invalid before cursor"))
			return
		}
		filter.BeforeSequence = &seq
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, errs.Validation("invalid limit"))
			return
		}
		filter.Limit = limit
	}

	records, err := s.queries.EventHistory(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": records})
}

func (s *Server) handleIntegrity(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	report, err := s.queries.VerifyIntegrity(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type listMarketRequest struct {
	Symbol string                `json:"symbol"`
	Risk   market.RiskParameters `json:"risk"`
}

func (s *Server) handleListMarket(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	var req listMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.Validation("invalid request body"))
		return
	}
	if err := s.admin.ListMarket(req.Symbol, req.Risk, time.Now().UnixMilli()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"market": req.Symbol, "status": "listed"})
}

func (s *Server) handleDeactivateMarket(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	symbol := pathParams["symbol"]
	if err := s.admin.DeactivateMarket(symbol, time.Now().UnixMilli()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"market": symbol, "status": "deactivated"})
}

func (s *Server) handleReactivateMarket(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	symbol := pathParams["symbol"]
	if err := s.admin.ReactivateMarket(symbol, time.Now().UnixMilli()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"market": symbol, "status": "reactivated"})
}

type upgradeRequest struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

func (s *Server) handleInitiateUpgrade(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	var req upgradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.Validation("invalid request body"))
		return
	}
	payload, err := decodeUpgradePayload(req.Kind, req.Payload)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.admin.InitiateUpgrade(payload, time.Now().UnixMilli()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"kind": req.Kind, "status": "initiated"})
}

func (s *Server) handleCancelUpgrade(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	kind, err := parseUpgradeKind(pathParams["kind"])
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.admin.CancelUpgrade(kind, time.Now().UnixMilli()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"kind": kind.String(), "status": "canceled"})
}

func (s *Server) handleFinalizeUpgrade(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	kind, err := parseUpgradeKind(pathParams["kind"])
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.admin.FinalizeUpgrade(kind, time.Now().UnixMilli()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"kind": kind.String(), "status": "finalized"})
}

func decodeUpgradePayload(kind string, raw json.RawMessage) (governance.Payload, error) {
	var payload governance.Payload
	switch kind {
	case governance.MarketRiskParameters.String():
		payload = &governance.MarketRiskParametersPayload{}
	case governance.WalletRiskOverrides.String():
		payload = &governance.WalletRiskOverridesPayload{}
	case governance.FeeRates.String():
		payload = &governance.FeeRatesPayload{}
	case governance.BridgeAllowList.String():
		payload = &governance.BridgeAllowListPayload{}
	case governance.FundWallets.String():
		payload = &governance.FundWalletsPayload{}
	default:
		return nil, errs.Validation("unknown upgrade kind %q", kind)
	}
	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, errs.Validation("invalid %s payload", kind)
	}
	return payload, nil
}

func parseUpgradeKind(s string) (governance.Kind, error) {
	for _, k := range []governance.Kind{
		governance.MarketRiskParameters,
		governance.WalletRiskOverrides,
		governance.FeeRates,
		governance.BridgeAllowList,
		governance.FundWallets,
	} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, errs.Validation("unknown upgrade kind %q", s)
}

func parseWalletParam(w http.ResponseWriter, pathParams map[string]string) (common.Address, bool) {
	raw := pathParams["wallet"]
	if !common.IsHexAddress(raw) {
		writeError(w, errs.Validation("invalid wallet address %q", raw))
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	reason := "internal"
	if kind, ok := errs.KindOf(err); ok {
		reason = kind.String()
		switch kind {
		case errs.KindValidation:
			code = http.StatusBadRequest
		case errs.KindInsufficiency:
			code = http.StatusUnprocessableEntity
		case errs.KindConflict:
			code = http.StatusConflict
		case errs.KindArithmetic:
			code = http.StatusInternalServerError
		}
	}
	writeJSON(w, code, map[string]string{"error": err.Error(), "reason": reason})
}
