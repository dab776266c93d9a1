package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cvp-knife/internal/cvp"
	"cvp-knife/internal/db"
	"cvp-knife/internal/expr"
	"cvp-knife/internal/logger"
	"cvp-knife/internal/problem"
	"cvp-knife/internal/recovery"
	"cvp-knife/internal/solver"
)

// Request bodies larger than this are rejected
const maxBodyBytes = 1 << 20

// GlobalStats represents overall statistics
type GlobalStats struct {
	Solver          solver.Stats `json:"solver"`
	TotalSystems    int          `json:"total_systems"`
	PendingSystems  int          `json:"pending_systems"`
	SolvedSystems   int          `json:"solved_systems"`
	FailedSystems   int          `json:"failed_systems"`
	RecoveredKeys   int          `json:"recovered_keys"`
	DatabaseHealthy bool         `json:"database_healthy"`
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status   string          `json:"status"`
	Database db.HealthStatus `json:"database"`
	Solver   solver.Stats    `json:"solver"`
}

// SolveResponse is returned by /api/solve
type SolveResponse struct {
	*problem.Result
	Lattice string `json:"lattice,omitempty"`
}

// SignatureRequest is one signature in a recovery request
type SignatureRequest struct {
	Z problem.Integer `json:"z"`
	R problem.Integer `json:"r"`
	S problem.Integer `json:"s"`
}

// RecoverRequest is the body of /api/recover/nonces
type RecoverRequest struct {
	Signatures []SignatureRequest `json:"signatures"`
	NonceBits  int                `json:"nonce_bits"`
}

// Handler holds HTTP handler dependencies
type Handler struct {
	pool   *solver.Pool
	db     db.Database
	logger *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(pool *solver.Pool, database db.Database, log *logger.Logger) *Handler {
	return &Handler{
		pool:   pool,
		db:     database,
		logger: log.Named("api"),
	}
}

// RegisterRoutes registers all HTTP routes
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/systems", h.handleSystems)
	mux.HandleFunc("/api/system", h.handleSystem)
	mux.HandleFunc("/api/solve", h.handleSolve)
	mux.HandleFunc("/api/recover/nonces", h.handleRecoverNonces)
	mux.HandleFunc("/api/recovered-keys", h.handleRecoveredKeys)
	mux.HandleFunc("/api/stats", h.handleStats)
	mux.HandleFunc("/api/health", h.handleHealth)
	mux.HandleFunc("/api/logs", h.handleLogs)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, solver.ErrQueueFull), errors.Is(err, solver.ErrStopped),
		errors.Is(err, db.ErrConnectionFailed), errors.Is(err, db.ErrPoolExhausted):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, db.ErrQueryTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, cvp.ErrSolutionOutOfScale), errors.Is(err, cvp.ErrOutOfBounds),
		errors.Is(err, recovery.ErrRecoveryFailed), errors.Is(err, recovery.ErrRMismatch),
		errors.Is(err, recovery.ErrIdentical), errors.Is(err, recovery.ErrNoInverse):
		return http.StatusUnprocessableEntity
	case errors.Is(err, problem.ErrEmpty), errors.Is(err, problem.ErrTooLarge),
		errors.Is(err, problem.ErrInvalidInteger), errors.Is(err, problem.ErrInvalidBounds),
		errors.Is(err, problem.ErrBlankExpr), errors.Is(err, cvp.ErrUnknownFormat),
		errors.Is(err, expr.ErrSyntax), errors.Is(err, expr.ErrExponent), errors.Is(err, expr.ErrTooLarge),
		errors.Is(err, cvp.ErrUnsupportedRelation), errors.Is(err, cvp.ErrConstantExpression),
		errors.Is(err, cvp.ErrInvalidBounds), errors.Is(err, cvp.ErrInvalidModulus),
		errors.Is(err, cvp.ErrNonLinear), errors.Is(err, cvp.ErrNoConstraints),
		errors.Is(err, recovery.ErrInvalidSig), errors.Is(err, recovery.ErrNotEnoughSigs),
		errors.Is(err, recovery.ErrInvalidBitCount):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("%s failed: %v", op, err)
	}
	writeError(w, status, err)
}

func readSystem(r *http.Request) (*problem.System, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxBodyBytes {
		return nil, problem.ErrTooLarge
	}
	return problem.Decode(data)
}

func (h *Handler) handleSystems(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		sys, err := readSystem(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		rec, err := h.pool.Submit(ctx, sys)
		if err != nil {
			h.fail(w, "submit", err)
			return
		}
		writeJSON(w, http.StatusAccepted, rec)

	case http.MethodGet:
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}

		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		systems, err := h.db.ListSystems(ctx, limit)
		if err != nil {
			h.fail(w, "list systems", err)
			return
		}
		writeJSON(w, http.StatusOK, systems)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleSystem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	rec, err := h.db.GetSystem(ctx, id)
	if err != nil {
		h.fail(w, "get system", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleSolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sys, err := readSystem(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := h.pool.SolveNow(r.Context(), sys)
	if err != nil {
		h.fail(w, "solve", err)
		return
	}
	resp := SolveResponse{Result: res}

	if q := r.URL.Query(); q.Get("render") == "1" || q.Get("render") == "true" {
		var mod *big.Int
		if m := q.Get("mod"); m != "" {
			v, ok := expr.ParseInt(m)
			if !ok {
				http.Error(w, "invalid mod", http.StatusBadRequest)
				return
			}
			mod = v
		}
		var sb strings.Builder
		if err := sys.Inspect(&sb, mod); err != nil {
			h.fail(w, "render", err)
			return
		}
		resp.Lattice = sb.String()
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleRecoverNonces(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req RecoverRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sigs := make([]recovery.Signature, 0, len(req.Signatures))
	for _, s := range req.Signatures {
		var sig recovery.Signature
		var err error
		if sig.Z, err = s.Z.Big(); err == nil {
			if sig.R, err = s.R.Big(); err == nil {
				sig.S, err = s.S.Big()
			}
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		sigs = append(sigs, sig)
	}

	key, err := h.pool.Recover(r.Context(), sigs, req.NonceBits)
	if err != nil {
		h.fail(w, "recover", err)
		return
	}
	writeJSON(w, http.StatusOK, key)
}

func (h *Handler) handleRecoveredKeys(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	keys, err := h.db.GetRecoveredKeys(ctx)
	if err != nil {
		h.logger.Error("Failed to get keys: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, keys)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	dbStats, err := h.db.GetStats(ctx)

	stats := GlobalStats{
		Solver:          h.pool.Stats(),
		DatabaseHealthy: true,
	}

	if err != nil {
		h.logger.Warn("Failed to get stats: %v", err)
		stats.DatabaseHealthy = false
	} else if dbStats != nil {
		stats.TotalSystems = dbStats.TotalSystems
		stats.PendingSystems = dbStats.PendingSystems
		stats.SolvedSystems = dbStats.SolvedSystems
		stats.FailedSystems = dbStats.FailedSystems
		stats.RecoveredKeys = dbStats.RecoveredKeys
		stats.DatabaseHealthy = dbStats.Healthy
	}

	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	dbHealth := h.db.Health(ctx)

	status, code := "healthy", http.StatusOK
	if !dbHealth.Connected {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	writeJSON(w, code, HealthResponse{
		Status:   status,
		Database: dbHealth,
		Solver:   h.pool.Stats(),
	})
}

func (h *Handler) handleLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.logger.GetEntries())
}
