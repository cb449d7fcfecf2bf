package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/0xmhha/skipindex-go/internal/logger"
	apimiddleware "github.com/0xmhha/skipindex-go/pkg/api/middleware"
	"github.com/0xmhha/skipindex-go/pkg/event"
	"github.com/0xmhha/skipindex-go/pkg/query"
	"github.com/0xmhha/skipindex-go/pkg/storage"
)

// Search strategies accepted by /v1/first
const (
	StrategySkip    = query.StrategySkip
	StrategyLinear  = query.StrategyLinear
	StrategyCompare = "compare"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Blocks    uint64 `json:"blocks"`
}

// VersionResponse represents the version response
type VersionResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// IndexResponse describes the served index
type IndexResponse struct {
	Blocks    uint64 `json:"blocks"`
	MBits     uint32 `json:"mBits"`
	K         uint8  `json:"k"`
	MaxLevels int    `json:"maxLevels"`
}

// SearchResult is a query.Result with an explicit found flag
type SearchResult struct {
	Found          bool    `json:"found"`
	Block          *uint64 `json:"block,omitempty"`
	Count          int     `json:"count"`
	StorageReads   int     `json:"storageReads"`
	FalsePositives int     `json:"falsePositives"`
	Jumps          int     `json:"jumps"`
	DurationNs     int64   `json:"durationNs"`
}

// FirstResponse is the response of /v1/first
type FirstResponse struct {
	From      uint64        `json:"from"`
	To        uint64        `json:"to"`
	Address   string        `json:"address"`
	Signature string        `json:"signature"`
	Mode      string        `json:"mode"`
	Strategy  string        `json:"strategy"`
	Result    *SearchResult `json:"result,omitempty"`
	Linear    *SearchResult `json:"linear,omitempty"`
	Skip      *SearchResult `json:"skip,omitempty"`
	Agree     *bool         `json:"agree,omitempty"`
}

// firstRequest is the parsed query string of /v1/first
type firstRequest struct {
	from, to   uint64
	event      event.Event
	membership query.Membership
	strategy   string
}

func newSearchResult(r query.Result, d time.Duration) *SearchResult {
	out := &SearchResult{
		Found:          r.Found(),
		Count:          r.Count,
		StorageReads:   r.StorageReads,
		FalsePositives: r.FalsePositives,
		Jumps:          r.Jumps,
		DurationNs:     d.Nanoseconds(),
	}
	if r.Found() {
		id := r.ID
		out.Block = &id
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleHealth handles the health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	n, err := s.index.Len(r.Context())
	if err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		apimiddleware.WriteError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().Format(time.RFC3339),
		Blocks:    n,
	})
}

// handleVersion handles the version endpoint
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Name: "skipindex", Version: s.config.Version})
}

// handleIndex reports the index size and filter shape
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	n, err := s.index.Len(r.Context())
	if err != nil {
		s.writeSearchError(w, r, err)
		return
	}
	p := s.index.Params()
	writeJSON(w, http.StatusOK, IndexResponse{
		Blocks:    n,
		MBits:     p.MBits,
		K:         p.K,
		MaxLevels: s.index.MaxLevels(),
	})
}

// handleFirst runs a first-occurrence search
func (s *Server) handleFirst(w http.ResponseWriter, r *http.Request) {
	req, err := parseFirstRequest(r)
	if err != nil {
		apimiddleware.WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.QueryTimeout)
	defer cancel()

	resp := FirstResponse{
		From:      req.from,
		To:        req.to,
		Address:   req.event.Address.Hex(),
		Signature: req.event.Signature.Hex(),
		Mode:      req.membership.Name(),
		Strategy:  req.strategy,
	}

	switch req.strategy {
	case StrategyCompare:
		cmp, err := s.engine.Compare(ctx, req.from, req.to, req.event, req.membership)
		if err != nil {
			s.writeSearchError(w, r, err)
			return
		}
		agree := cmp.Agree()
		resp.Linear = newSearchResult(cmp.Linear, cmp.LinearTime)
		resp.Skip = newSearchResult(cmp.Skip, cmp.SkipTime)
		resp.Agree = &agree
	default:
		search := s.engine.FindFirst
		if req.strategy == StrategyLinear {
			search = s.engine.LinearSearch
		}
		start := time.Now()
		res, err := search(ctx, req.from, req.to, req.event, req.membership)
		if err != nil {
			s.writeSearchError(w, r, err)
			return
		}
		resp.Result = newSearchResult(res, time.Since(start))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeSearchError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, query.ErrInvalidRange):
		apimiddleware.WriteError(w, http.StatusBadRequest, "invalid_range", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		apimiddleware.WriteError(w, http.StatusGatewayTimeout, "timeout", "query timed out")
	case errors.Is(err, context.Canceled):
		apimiddleware.WriteError(w, http.StatusServiceUnavailable, "canceled", "request canceled")
	case errors.Is(err, storage.ErrClosed):
		apimiddleware.WriteError(w, http.StatusServiceUnavailable, "unavailable", "index is closed")
	default:
		logger.FromContext(r.Context()).Error("search failed", zap.Error(err))
		apimiddleware.WriteError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

func parseFirstRequest(r *http.Request) (firstRequest, error) {
	q := r.URL.Query()
	var req firstRequest

	from, err := parseUintParam(q.Get("from"), "from")
	if err != nil {
		return req, err
	}
	to, err := parseUintParam(q.Get("to"), "to")
	if err != nil {
		return req, err
	}
	req.from, req.to = from, to

	signature := q.Get("signature")
	if text := q.Get("signature_text"); text != "" {
		if signature != "" {
			return req, errors.New("signature and signature_text are mutually exclusive")
		}
		signature = event.SignatureHash(text).Hex()
	}
	if q.Get("address") == "" || signature == "" {
		return req, errors.New("address and one of signature or signature_text are required")
	}
	if req.event, err = event.FromHex(q.Get("address"), signature); err != nil {
		return req, err
	}

	if req.membership, err = query.MembershipByName(q.Get("mode")); err != nil {
		return req, err
	}

	req.strategy = strings.ToLower(q.Get("strategy"))
	switch req.strategy {
	case "":
		req.strategy = StrategySkip
	case StrategySkip, StrategyLinear, StrategyCompare:
	default:
		return req, fmt.Errorf("unknown strategy %q, must be one of: skip, linear, compare", req.strategy)
	}
	return req, nil
}

func parseUintParam(v, name string) (uint64, error) {
	if v == "" {
		return 0, fmt.Errorf("%s is required", name)
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, v, err)
	}
	return n, nil
}
