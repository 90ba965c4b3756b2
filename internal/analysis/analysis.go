// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package analysis answers ad-hoc aggregation queries over the raw
// parts-sales rows: filter, group, and sum without a fixed report shape.
// Results are cached until the next table upload.
package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ManuGH/xl2wh/internal/cache"
	"github.com/ManuGH/xl2wh/internal/log"
	"github.com/ManuGH/xl2wh/internal/records"
	"github.com/ManuGH/xl2wh/internal/validate"
)

// DefaultCacheTTL bounds how long a cached answer may outlive the scan that
// produced it. Uploads clear the cache anyway; the TTL only caps drift when
// rows change through some other path.
const DefaultCacheTTL = 5 * time.Minute

// ErrInvalidRequest marks requests the service refuses to run, such as an
// unknown group_by field. Handlers map it to a client error.
var ErrInvalidRequest = errors.New("invalid analysis request")

// fieldAliases maps each canonical query field to the source headers it may
// appear under, Chinese header first with a snake_case fallback.
var fieldAliases = map[string][]string{
	"date":          {"日期", "date"},
	"salesperson":   {"銷售人員", "salesperson"},
	"part_no":       {"零件編號", "part_no"},
	"factory":       {"廠別", "factory"},
	"part_category": {"零件類別", "part_category"},
	"function_code": {"功能碼", "function_code"},
	"quantity":      {"數量", "quantity"},
	"amount":        {"金額", "amount"},
}

// groupFields are the fields a query may group by.
var groupFields = map[string]bool{
	"salesperson":   true,
	"factory":       true,
	"part_category": true,
}

// Request is one analysis query. Zero-valued filters match everything.
type Request struct {
	Year         *int     `json:"year,omitempty"`
	Month        *int     `json:"month,omitempty"`
	Factory      []string `json:"factory,omitempty"`
	Salesperson  []string `json:"salesperson,omitempty"`
	PartCategory []string `json:"part_category,omitempty"`
	FunctionCode []string `json:"function_code,omitempty"`
	ShowFields   []string `json:"show_fields,omitempty"`
	GroupBy      string   `json:"group_by,omitempty"`
}

// Response is the complete answer for one query. Results carry the group
// name, its row count, and one sum per requested field; Totals repeats the
// sums across all groups.
type Response struct {
	Status  string           `json:"status"`
	GroupBy string           `json:"group_by"`
	Results []map[string]any `json:"results"`
	Totals  map[string]any   `json:"totals"`

	// Cached reports whether the answer was served from cache. Not part of
	// the response body, callers use it for telemetry.
	Cached bool `json:"-"`
}

// Service runs analysis queries against the raw records store.
type Service struct {
	store *records.SqliteStore
	cache cache.Cache
	ttl   time.Duration
}

// NewService builds an analysis service. A nil cache disables caching, a
// non-positive TTL falls back to DefaultCacheTTL.
func NewService(store *records.SqliteStore, c cache.Cache, ttl time.Duration) *Service {
	if c == nil {
		c = cache.NewNoOpCache()
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Service{store: store, cache: c, ttl: ttl}
}

// Query answers one analysis request, serving from the cache when an
// identical query has run since the last upload.
func (s *Service) Query(ctx context.Context, req Request) (*Response, error) {
	started := time.Now()
	logger := log.WithComponentFromContext(ctx, "analysis")

	req = normalized(req)
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	key := cacheKey(req)
	if payload, ok := s.cache.Get(ctx, key); ok {
		var resp Response
		if err := json.Unmarshal(payload, &resp); err == nil {
			logger.Debug().Str("group_by", req.GroupBy).Msg("analysis.cache_hit")
			observeQuery(ctx, true, time.Since(started))
			resp.Cached = true
			return &resp, nil
		}
		// A cache entry we cannot decode is worse than a miss.
		s.cache.Delete(ctx, key)
	}

	resp, err := s.scan(ctx, req)
	if err != nil {
		logger.Error().Err(err).Msg("analysis.failed")
		return nil, err
	}
	if payload, err := json.Marshal(resp); err == nil {
		s.cache.Set(ctx, key, payload, s.ttl)
	}

	elapsed := time.Since(started)
	observeQuery(ctx, false, elapsed)
	logger.Info().
		Str("group_by", req.GroupBy).
		Int("groups", len(resp.Results)).
		Int64("processing_ms", elapsed.Milliseconds()).
		Msg("analysis.completed")
	return resp, nil
}

// Invalidate drops every cached answer. Upload handlers call this after any
// table accepts rows, so a cached result never outlives the data it was
// computed from.
func (s *Service) Invalidate(ctx context.Context) {
	s.cache.Clear(ctx)
	logger := log.WithComponentFromContext(ctx, "analysis")
	logger.Debug().Msg("analysis.cache_cleared")
}

func (s *Service) scan(ctx context.Context, req Request) (*Response, error) {
	type group struct {
		rows int
		sums map[string]float64
	}
	groups := make(map[string]*group)

	err := s.store.ScanTable(ctx, records.TablePartsSales, func(_ int64, data map[string]any) error {
		if !matches(req, data) {
			return nil
		}
		name := strings.TrimSpace(asString(fieldValue(data, req.GroupBy)))
		g := groups[name]
		if g == nil {
			g = &group{sums: make(map[string]float64)}
			groups[name] = g
		}
		g.rows++
		for _, field := range req.ShowFields {
			if f, ok := validate.Numeric(fieldValue(data, field)); ok {
				g.sums[field] += f
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", records.TablePartsSales, err)
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]map[string]any, 0, len(names))
	totalRows := 0
	totalSums := make(map[string]float64, len(req.ShowFields))
	for _, name := range names {
		g := groups[name]
		row := map[string]any{"group": name, "row_count": g.rows}
		for _, field := range req.ShowFields {
			row[field] = g.sums[field]
			totalSums[field] += g.sums[field]
		}
		totalRows += g.rows
		results = append(results, row)
	}

	totals := map[string]any{"row_count": totalRows}
	for _, field := range req.ShowFields {
		totals[field] = totalSums[field]
	}

	return &Response{
		Status:  "success",
		GroupBy: req.GroupBy,
		Results: results,
		Totals:  totals,
	}, nil
}

// normalized applies defaults and sorts the filter lists so equivalent
// requests share one cache key.
func normalized(req Request) Request {
	if len(req.ShowFields) == 0 {
		req.ShowFields = []string{"quantity", "amount"}
	}
	if req.GroupBy == "" {
		req.GroupBy = "salesperson"
	}
	req.Factory = sortedCopy(req.Factory)
	req.Salesperson = sortedCopy(req.Salesperson)
	req.PartCategory = sortedCopy(req.PartCategory)
	req.FunctionCode = sortedCopy(req.FunctionCode)
	return req
}

func validateRequest(req Request) error {
	if !groupFields[req.GroupBy] {
		return fmt.Errorf("%w: unsupported group_by %q", ErrInvalidRequest, req.GroupBy)
	}
	for _, field := range req.ShowFields {
		if _, ok := fieldAliases[field]; !ok {
			return fmt.Errorf("%w: unknown field %q", ErrInvalidRequest, field)
		}
	}
	return nil
}

// matches reports whether one stored row passes every filter. List filters
// accept any listed value; separate filters must all hold. When a year or
// month filter is set, rows whose date does not parse are excluded.
func matches(req Request, data map[string]any) bool {
	if req.Year != nil || req.Month != nil {
		day, err := validate.ParseDate(asString(fieldValue(data, "date")))
		if err != nil {
			return false
		}
		t, err := time.Parse("2006-01-02", day)
		if err != nil {
			return false
		}
		if req.Year != nil && t.Year() != *req.Year {
			return false
		}
		if req.Month != nil && int(t.Month()) != *req.Month {
			return false
		}
	}
	return matchList(data, "factory", req.Factory) &&
		matchList(data, "salesperson", req.Salesperson) &&
		matchList(data, "part_category", req.PartCategory) &&
		matchList(data, "function_code", req.FunctionCode)
}

func matchList(data map[string]any, field string, wanted []string) bool {
	if len(wanted) == 0 {
		return true
	}
	have := strings.TrimSpace(asString(fieldValue(data, field)))
	for _, w := range wanted {
		if have == strings.TrimSpace(w) {
			return true
		}
	}
	return false
}

// fieldValue resolves a canonical field against the row's raw headers.
// Missing, nil, and blank values fall through to the next alias, so an empty
// Chinese column does not shadow a populated snake_case one.
func fieldValue(data map[string]any, field string) any {
	for _, alias := range fieldAliases[field] {
		v, ok := data[alias]
		if !ok {
			continue
		}
		switch x := v.(type) {
		case nil:
			continue
		case string:
			if strings.TrimSpace(x) == "" {
				continue
			}
		}
		return v
	}
	return nil
}

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func sortedCopy(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}

// cacheKey derives a stable key from the normalized request.
func cacheKey(req Request) string {
	payload, err := json.Marshal(req)
	if err != nil {
		return "analysis:invalid"
	}
	sum := sha256.Sum256(payload)
	return "analysis:" + hex.EncodeToString(sum[:16])
}
