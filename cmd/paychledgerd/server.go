package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"paychledger/ledger"
	"paychledger/observability"
	"paychledger/storage/postgres/adminmodels"
)

const maxRequestBody = 1 << 20 // 1 MiB

// Server is the HTTP front-end exposing the ledger's ten public operations
// plus one read-only admin report as JSON endpoints (spec §6), routed
// through a chi.Router the way the teacher's otc-gateway server is.
type Server struct {
	ledger         *ledger.Ledger
	admin          *adminmodels.Reader
	limiter        *rate.Limiter
	chainAllowlist map[int64]bool // nil/empty means every chain_id is accepted
	router         http.Handler
}

// NewServer wires a Server over the supplied Ledger. admin may be nil, in
// which case /list_quarantined reports unavailable. requestsPerSecond and
// burst configure the process-wide rate limiter guarding every route.
// chainAllowlist, when non-empty, rejects any request whose chain_id isn't
// in the set before it reaches the ledger.
func NewServer(l *ledger.Ledger, admin *adminmodels.Reader, requestsPerSecond float64, burst int, chainAllowlist []int64) *Server {
	if l == nil {
		panic("ledger required")
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = 200
	}
	if burst <= 0 {
		burst = 50
	}
	var allow map[int64]bool
	if len(chainAllowlist) > 0 {
		allow = make(map[int64]bool, len(chainAllowlist))
		for _, id := range chainAllowlist {
			allow[id] = true
		}
	}
	s := &Server{
		ledger:         l,
		admin:          admin,
		limiter:        rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		chainAllowlist: allow,
	}
	s.router = s.buildRouter()
	return s
}

// chainAllowed rejects a configured but disallowed chain_id. A nil id (the
// field was omitted) is left alone so the ledger's own "must not be null"
// validation reports it instead.
func (s *Server) chainAllowed(chainID *int64) error {
	if len(s.chainAllowlist) == 0 || chainID == nil {
		return nil
	}
	if !s.chainAllowlist[*chainID] {
		return &ledger.ValidationError{Message: fmt.Sprintf("chain_id %d is not in the configured allowlist", *chainID)}
	}
	return nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(s.rateLimit)

	r.Post("/setup_database", s.route("/setup_database", s.handleSetupDatabase))
	r.Post("/selftest", s.route("/selftest", s.handleSelftest))
	r.Post("/get_state_update_status", s.route("/get_state_update_status", s.handleGetStateUpdateStatus))
	r.Post("/insert_state_update", s.route("/insert_state_update", s.handleInsertStateUpdate))
	r.Post("/get_latest_state", s.route("/get_latest_state", s.handleGetLatestState))
	r.Post("/insert_channel_event", s.route("/insert_channel_event", s.handleInsertChannelEvent))
	r.Post("/insert_channel_intent", s.route("/insert_channel_intent", s.handleInsertChannelIntent))
	r.Post("/set_recent_blocks", s.route("/set_recent_blocks", s.handleSetRecentBlocks))
	r.Post("/get_channel_status", s.route("/get_channel_status", s.handleGetChannelStatus))
	r.Post("/get_channel_events", s.route("/get_channel_events", s.handleGetChannelEvents))
	r.Post("/list_quarantined", s.route("/list_quarantined", s.handleListQuarantined))

	return r
}

// rateLimit caps the whole process's request rate with a single shared
// token bucket, composed into the router the way gateway/middleware's
// RateLimiter.Middleware is composed into its caller's handler chain.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			http.Error(w, `{"error":true,"reason":"rate limited"}`, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// route adapts a handler's metrics-label return value into an
// http.HandlerFunc, timing the call and recording it under op.
func (s *Server) route(op string, h func(http.ResponseWriter, *http.Request) string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		errKind := h(w, r)
		observability.Operations().Observe(op, time.Since(start), errKind)
	}
}

func (s *Server) handleListQuarantined(w http.ResponseWriter, r *http.Request) string {
	if s.admin == nil {
		return s.writeErr(w, fmt.Errorf("admin reporting is not configured"))
	}
	var in struct {
		ledger.ChannelKey
		Reason string `json:"reason"`
		Limit  int    `json:"limit"`
	}
	if err := s.decode(r, &in); err != nil {
		return s.writeErr(w, err)
	}

	if err := s.chainAllowed(in.ChannelKey.ChainID); err != nil {
		return s.writeErr(w, err)
	}

	if in.Reason != "" {
		rows, err := s.admin.ListByReason(in.Reason, in.Limit)
		if err != nil {
			return s.writeErr(w, err)
		}
		s.writeJSON(w, http.StatusOK, rows)
		return ""
	}

	key, err := in.ChannelKey.Resolve()
	if err != nil {
		return s.writeErr(w, &ledger.ValidationError{Message: err.Error()})
	}
	rows, err := s.admin.ListByChannel(key.ChainID, key.ContractID.String(), key.ChannelID.String(), in.Limit)
	if err != nil {
		return s.writeErr(w, err)
	}
	s.writeJSON(w, http.StatusOK, rows)
	return ""
}

func (s *Server) handleSetupDatabase(w http.ResponseWriter, r *http.Request) string {
	if err := s.ledger.SetupDatabase(r.Context()); err != nil {
		return s.writeErr(w, err)
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	return ""
}

func (s *Server) handleSelftest(w http.ResponseWriter, r *http.Request) string {
	result, err := s.ledger.Selftest(r.Context())
	if err != nil {
		return s.writeErr(w, err)
	}
	s.writeJSON(w, http.StatusOK, result)
	return ""
}

func (s *Server) handleGetStateUpdateStatus(w http.ResponseWriter, r *http.Request) string {
	var in ledger.StateUpdateInput
	if err := s.decode(r, &in); err != nil {
		return s.writeErr(w, err)
	}
	if err := s.chainAllowed(in.ChannelKey.ChainID); err != nil {
		return s.writeErr(w, err)
	}
	status, err := s.ledger.GetStateUpdateStatus(r.Context(), in)
	if err != nil {
		return s.writeErr(w, err)
	}
	s.writeJSON(w, http.StatusOK, status)
	return ""
}

func (s *Server) handleInsertStateUpdate(w http.ResponseWriter, r *http.Request) string {
	var in ledger.StateUpdateInput
	if err := s.decode(r, &in); err != nil {
		return s.writeErr(w, err)
	}
	if err := s.chainAllowed(in.ChannelKey.ChainID); err != nil {
		return s.writeErr(w, err)
	}
	result, err := s.ledger.InsertStateUpdate(r.Context(), in)
	if err != nil {
		return s.writeQuarantineAware(w, err)
	}
	s.writeJSON(w, http.StatusOK, result)
	return ""
}

func (s *Server) handleGetLatestState(w http.ResponseWriter, r *http.Request) string {
	var in ledger.ChannelKey
	if err := s.decode(r, &in); err != nil {
		return s.writeErr(w, err)
	}
	if err := s.chainAllowed(in.ChainID); err != nil {
		return s.writeErr(w, err)
	}
	state, err := s.ledger.GetLatestState(r.Context(), in)
	if err != nil {
		return s.writeErr(w, err)
	}
	s.writeJSON(w, http.StatusOK, state)
	return ""
}

func (s *Server) handleInsertChannelEvent(w http.ResponseWriter, r *http.Request) string {
	var in ledger.ChannelEventInput
	if err := s.decode(r, &in); err != nil {
		return s.writeErr(w, err)
	}
	if err := s.chainAllowed(in.ChannelKey.ChainID); err != nil {
		return s.writeErr(w, err)
	}
	status, err := s.ledger.InsertChannelEvent(r.Context(), in)
	if err != nil {
		return s.writeErr(w, err)
	}
	s.writeJSON(w, http.StatusOK, status)
	return ""
}

func (s *Server) handleInsertChannelIntent(w http.ResponseWriter, r *http.Request) string {
	var in ledger.ChannelIntentInput
	if err := s.decode(r, &in); err != nil {
		return s.writeErr(w, err)
	}
	if err := s.chainAllowed(in.ChannelKey.ChainID); err != nil {
		return s.writeErr(w, err)
	}
	status, err := s.ledger.InsertChannelIntent(r.Context(), in)
	if err != nil {
		return s.writeErr(w, err)
	}
	s.writeJSON(w, http.StatusOK, status)
	return ""
}

func (s *Server) handleSetRecentBlocks(w http.ResponseWriter, r *http.Request) string {
	var in struct {
		ChainID       int64    `json:"chain_id"`
		FirstBlockNum int64    `json:"first_block_num"`
		Hashes        []string `json:"hashes"`
	}
	if err := s.decode(r, &in); err != nil {
		return s.writeErr(w, err)
	}
	if err := s.chainAllowed(&in.ChainID); err != nil {
		return s.writeErr(w, err)
	}
	result, err := s.ledger.SetRecentBlocks(r.Context(), in.ChainID, in.FirstBlockNum, in.Hashes)
	if err != nil {
		return s.writeErr(w, err)
	}
	observability.Admission().RecordReorgFlips(result.UpdatedEventCount)
	s.writeJSON(w, http.StatusOK, result)
	return ""
}

func (s *Server) handleGetChannelStatus(w http.ResponseWriter, r *http.Request) string {
	var in struct {
		ledger.ChannelKey
		IncludeIntents *bool `json:"include_intents"`
	}
	if err := s.decode(r, &in); err != nil {
		return s.writeErr(w, err)
	}
	if err := s.chainAllowed(in.ChannelKey.ChainID); err != nil {
		return s.writeErr(w, err)
	}
	key, err := in.ChannelKey.Resolve()
	if err != nil {
		return s.writeErr(w, &ledger.ValidationError{Message: err.Error()})
	}
	includeIntents := true
	if in.IncludeIntents != nil {
		includeIntents = *in.IncludeIntents
	}
	status, err := s.ledger.GetChannelStatus(r.Context(), key, includeIntents)
	if err != nil {
		return s.writeErr(w, err)
	}
	s.writeJSON(w, http.StatusOK, status)
	return ""
}

func (s *Server) handleGetChannelEvents(w http.ResponseWriter, r *http.Request) string {
	var in struct {
		ledger.ChannelKey
		IncludeIntents *bool `json:"include_intents"`
	}
	if err := s.decode(r, &in); err != nil {
		return s.writeErr(w, err)
	}
	if err := s.chainAllowed(in.ChannelKey.ChainID); err != nil {
		return s.writeErr(w, err)
	}
	includeIntents := true
	if in.IncludeIntents != nil {
		includeIntents = *in.IncludeIntents
	}
	events, err := s.ledger.GetChannelEvents(r.Context(), in.ChannelKey, includeIntents)
	if err != nil {
		return s.writeErr(w, err)
	}
	s.writeJSON(w, http.StatusOK, events)
	return ""
}

func (s *Server) decode(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	limited := io.LimitReader(r.Body, maxRequestBody+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return err
	}
	if len(data) > maxRequestBody {
		return fmt.Errorf("request body exceeds %d bytes", maxRequestBody)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid JSON payload: %w", err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

// writeErr writes the spec §7 validation/storage error shape and returns the
// error kind label used for metrics.
func (s *Server) writeErr(w http.ResponseWriter, err error) string {
	var valErr *ledger.ValidationError
	status := http.StatusBadGateway
	kind := "storage"
	if errors.As(err, &valErr) {
		status = http.StatusBadRequest
		kind = "validation"
	}
	s.writeJSON(w, status, map[string]interface{}{"error": true, "reason": err.Error()})
	return kind
}

// writeQuarantineAware additionally surfaces the status snapshot spec §6's
// error shape calls for when admission quarantines a state update.
func (s *Server) writeQuarantineAware(w http.ResponseWriter, err error) string {
	var qErr *ledger.QuarantineError
	if errors.As(err, &qErr) {
		observability.Admission().RecordQuarantine(string(qErr.Reason))
		s.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":  true,
			"reason": qErr.Error(),
			"status": qErr.Status,
		})
		return "quarantine"
	}
	return s.writeErr(w, err)
}
