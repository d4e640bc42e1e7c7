package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/patrickmn/go-cache"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/comps-cli/internal/anomaly"
	"github.com/sells-group/comps-cli/internal/model"
	"github.com/sells-group/comps-cli/internal/normalize"
	"github.com/sells-group/comps-cli/internal/profile"
	"github.com/sells-group/comps-cli/internal/store"
	"github.com/sells-group/comps-cli/internal/valuation"
)

const (
	maxBodyBytes   = 10 << 20
	resultCacheTTL = 10 * time.Minute
	limiterIdleTTL = 10 * time.Minute
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the valuation HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		profiles, err := loadProfiles()
		if err != nil {
			return err
		}

		s := newServer(st, profiles)
		s.defaultCategory = cfg.Engine.DefaultCategory
		s.maxComparables = cfg.Engine.MaxComparables

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           s.routes(cfg.Server.RateLimitRPS, cfg.Server.RateBurst),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
		}()

		zap.L().Info("starting server",
			zap.Int("port", cfg.Server.Port),
			zap.Strings("profiles", profiles.Names()),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// server holds the dependencies of the HTTP handlers.
type server struct {
	store           store.Store
	profiles        profile.Set
	defaultCategory string
	maxComparables  int
	results         *cache.Cache
}

func newServer(st store.Store, profiles profile.Set) *server {
	return &server{
		store:           st,
		profiles:        profiles,
		defaultCategory: model.CategoryResidential,
		results:         cache.New(resultCacheTTL, 2*resultCacheTTL),
	}
}

func (s *server) routes(rps float64, burst int) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Use(newClientLimiter(rps, burst).middleware)
		r.Post("/normalize", s.handleNormalize)
		r.Post("/valuations", s.handleValuation)
		r.Post("/anomalies", s.handleAnomalies)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
	})
	return r
}

// -- handlers --

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleNormalize(w http.ResponseWriter, r *http.Request) {
	var raw []model.RawRecord
	if err := decodeBody(w, r, &raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err)
		return
	}

	res := normalize.Normalize(raw)
	if r.URL.Query().Get("save") == "true" {
		if _, err := s.store.SaveTransactions(r.Context(), res.Transactions); err != nil {
			s.writeInternal(w, r, err)
			return
		}
	}
	writeResponse(w, http.StatusOK, res)
}

type valuationRequest struct {
	Subject        model.SubjectProperty `json:"subject"`
	Comparables    []model.RawRecord     `json:"comparables"`
	Category       string                `json:"category"`
	AsOf           string                `json:"as_of"`
	Disable        []string              `json:"disable"`
	MaxComparables int                   `json:"max_comparables"`
	Save           bool                  `json:"save"`
	Label          string                `json:"label"`
}

type valuationResponse struct {
	RunID  string                 `json:"run_id,omitempty"`
	Result *model.ValuationResult `json:"result"`
}

func (s *server) handleValuation(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err)
		return
	}
	var req valuationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", eris.Wrap(err, "decode body"))
		return
	}

	// Only self-contained requests are cached: stored comparables change
	// under the key, and without as_of the reference date moves with the clock.
	key := cacheKey(body)
	cacheable := !req.Save && len(req.Comparables) > 0 && req.AsOf != ""
	if cacheable {
		if cached, ok := s.results.Get(key); ok {
			w.Header().Set("X-Cache", "hit")
			writeResponse(w, http.StatusOK, cached)
			return
		}
	}

	ctx := r.Context()
	ref, err := parseAsOf(req.AsOf)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err)
		return
	}

	var comps []model.Transaction
	if len(req.Comparables) > 0 {
		comps = normalize.Normalize(req.Comparables).Transactions
	} else if req.Subject.City != "" {
		comps, err = s.store.ListTransactions(ctx, store.TransactionFilter{City: req.Subject.City})
		if err != nil {
			s.writeInternal(w, r, err)
			return
		}
	}

	overrides, err := buildOverrides(req.Disable, comps)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err)
		return
	}
	maxComps := req.MaxComparables
	if maxComps == 0 {
		maxComps = s.maxComparables
	}

	category := req.Category
	if category == "" {
		category = req.Subject.Category
	}
	if category == "" {
		category = s.defaultCategory
	}

	result, err := valuation.Evaluate(req.Subject, comps, s.profiles.Get(category).Params(), valuation.Options{
		ReferenceDate:  ref,
		Overrides:      overrides,
		MaxComparables: maxComps,
	})
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	resp := valuationResponse{Result: result}
	if req.Save {
		run, err := s.store.SaveValuation(ctx, req.Label, result)
		if err != nil {
			s.writeInternal(w, r, err)
			return
		}
		resp.RunID = run.ID
	} else if cacheable {
		s.results.SetDefault(key, resp)
	}
	writeResponse(w, http.StatusOK, resp)
}

type anomalyRequest struct {
	Transactions []model.RawRecord `json:"transactions"`
	Category     string            `json:"category"`
	Metric       string            `json:"metric"`
	AllPasses    bool              `json:"all_passes"`
	Save         bool              `json:"save"`
	Label        string            `json:"label"`
}

type anomalyResponse struct {
	RunID   string                `json:"run_id,omitempty"`
	Reports []model.AnomalyReport `json:"reports"`
}

func (s *server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	var req anomalyRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err)
		return
	}

	category := req.Category
	if category == "" {
		category = s.defaultCategory
	}
	acfg := s.profiles.Get(category).Anomaly
	if req.Metric != "" {
		m, err := parseMetric(req.Metric)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", err)
			return
		}
		acfg.Metric = m
	}

	population := normalize.Normalize(req.Transactions).Transactions
	resp := anomalyResponse{}
	if req.AllPasses {
		resp.Reports = anomaly.Scan(population, acfg)
	} else {
		resp.Reports = anomaly.Detect(population, acfg)
	}

	if req.Save {
		run, err := s.store.SaveAnomalyScan(r.Context(), req.Label, resp.Reports)
		if err != nil {
			s.writeInternal(w, r, err)
			return
		}
		resp.RunID = run.ID
	}
	writeResponse(w, http.StatusOK, resp)
}

func (s *server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{
		Kind:  model.RunKind(q.Get("kind")),
		Label: q.Get("label"),
	}
	var err error
	if filter.Limit, err = queryInt(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", eris.Wrap(err, "limit"))
		return
	}
	if filter.Offset, err = queryInt(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", eris.Wrap(err, "offset"))
		return
	}

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeResponse(w, http.StatusOK, runs)
}

func (s *server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", err)
		return
	}
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}
	writeResponse(w, http.StatusOK, run)
}

// -- errors and encoding --

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeEngineError maps valuation errors to HTTP statuses.
func (s *server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, valuation.ErrNoComparables):
		writeError(w, http.StatusUnprocessableEntity, "not_enough_data", err)
	case errors.Is(err, valuation.ErrInvalidSubject):
		writeError(w, http.StatusBadRequest, "invalid_input", err)
	default:
		zap.L().Error("valuation failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "computation_error", err)
	}
}

func (s *server) writeInternal(w http.ResponseWriter, r *http.Request, err error) {
	zap.L().Error("request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal_error", err)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	writeResponse(w, status, errorResponse{Error: code, Message: err.Error()})
}

func writeResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "read body")
	}
	return body, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := readBody(w, r)
	if err != nil {
		return err
	}
	return eris.Wrap(json.Unmarshal(body, v), "decode body")
}

func cacheKey(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func queryInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, eris.Errorf("must be a non-negative integer, got %q", s)
	}
	return n, nil
}

// -- rate limiting --

// clientLimiter keeps one token bucket per client IP. Idle buckets expire.
type clientLimiter struct {
	mu       sync.Mutex
	limiters *cache.Cache
	limit    rate.Limit
	burst    int
}

func newClientLimiter(rps float64, burst int) *clientLimiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &clientLimiter{
		limiters: cache.New(limiterIdleTTL, 2*limiterIdleTTL),
		limit:    limit,
		burst:    burst,
	}
}

func (l *clientLimiter) get(client string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if v, ok := l.limiters.Get(client); ok {
		lim := v.(*rate.Limiter)
		l.limiters.SetDefault(client, lim)
		return lim
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	l.limiters.SetDefault(client, lim)
	return lim
}

func (l *clientLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			client = host
		}
		if !l.get(client).Allow() {
			zap.L().Warn("rate limit exceeded",
				zap.String("client", client),
				zap.String("path", r.URL.Path),
			)
			writeError(w, http.StatusTooManyRequests, "rate_limited", eris.New("too many requests"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
