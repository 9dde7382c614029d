package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/fromlifetolines/lumina-ados/internal/advisory"
	"github.com/fromlifetolines/lumina-ados/internal/metrics"
	"github.com/fromlifetolines/lumina-ados/internal/projection"
	"github.com/fromlifetolines/lumina-ados/internal/service"
	"github.com/fromlifetolines/lumina-ados/internal/storage"
	"github.com/fromlifetolines/lumina-ados/internal/telemetry"
)

const (
	dateLayout    = "2006-01-02"
	maxDays       = 366
	defaultLimit  = 20
	maxLimit      = 200
	maxBodyBytes  = 1 << 20
	codeInvalid   = "INVALID_INPUT"
	codeUpstream  = "UPSTREAM_FAILURE"
	codeDisabled  = "NOT_CONFIGURED"
	codeDatabase  = "STORAGE_FAILURE"
	codeNoChannel = "UNKNOWN_CHANNEL"
	codeNotFound  = "NOT_FOUND"
)

// KPIService computes KPI passes on demand.
type KPIService interface {
	Compute(ctx context.Context, q service.Query) (service.Result, error)
}

// AdviceHistory reads persisted refresh passes.
type AdviceHistory interface {
	ListRecentAdvice(ctx context.Context, limit int) ([]storage.AdviceRecord, error)
	LatestSnapshot(ctx context.Context, source string) (storage.SnapshotRecord, error)
}

// Options wires the router. Scenarios and History may be nil, in which case
// the endpoints depending on them answer 503.
type Options struct {
	KPIs      KPIService
	Platforms map[string]projection.PlatformConfig
	Model     projection.Model
	Scenarios storage.ScenarioStore
	History   AdviceHistory
	Collector *telemetry.Collector
	Logger    zerolog.Logger
	Now       func() time.Time
}

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type api struct {
	opts   Options
	logger zerolog.Logger
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// NewRouter builds the HTTP API.
func NewRouter(opts Options) http.Handler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Model.Saturation == nil {
		opts.Model.Saturation = projection.DefaultFlatPenalty()
	}
	// unknown channels are rejected up front rather than panicking
	opts.Model.Strict = false

	a := &api{opts: opts, logger: opts.Logger.With().Str("component", "httpapi").Logger()}

	mux := chi.NewRouter()
	mux.Use(requestID)
	mux.Use(accessLog(a.logger, opts.Collector))
	mux.Use(middleware.Recoverer)

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
	mux.Handle("/metrics", opts.Collector.Handler())

	mux.Route("/api", func(r chi.Router) {
		r.Get("/kpis", a.getKPIs)
		r.Get("/kpis/latest", a.getLatestSnapshot)
		r.Get("/series", a.getSeries)
		r.Get("/advice", a.getAdvice)
		r.Get("/channels", a.getChannels)
		r.Post("/projection", a.postProjection)
		r.Get("/scenarios", a.listScenarios)
		r.Post("/scenarios", a.postScenario)
	})

	return mux
}

func (a *api) getKPIs(w http.ResponseWriter, r *http.Request) {
	res, ok := a.compute(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"at":          res.At,
		"source":      res.Source,
		"days":        res.Days,
		"snapshot":    res.Report.Snapshot,
		"growth":      res.Report.Growth,
		"performance": res.Performance,
	})
}

// getLatestSnapshot serves the last persisted refresh instead of recomputing.
func (a *api) getLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	if a.opts.History == nil {
		writeError(w, http.StatusServiceUnavailable, codeDisabled, "snapshots require a database")
		return
	}
	src := strings.TrimSpace(r.URL.Query().Get("source"))
	if src == "" {
		src = metrics.SourceAll
	}
	rec, err := a.opts.History.LatestSnapshot(r.Context(), src)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, codeNotFound, "no snapshot recorded for "+src)
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Str("rid", RID(r.Context())).Msg("latest snapshot failed")
		writeError(w, http.StatusInternalServerError, codeDatabase, "could not read snapshot")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         rec.ID,
		"source":     rec.Source,
		"created_at": rec.CreatedAt,
		"snapshot":   rec.Snapshot,
		"growth":     rec.Growth,
	})
}

func (a *api) getSeries(w http.ResponseWriter, r *http.Request) {
	res, ok := a.compute(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"days":           res.Days,
		"series":         res.Series,
		"blended":        res.Blended,
		"totals":         res.Totals,
		"customer_daily": res.CustomerDaily,
	})
}

func (a *api) getAdvice(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("history"); raw != "" {
		a.getAdviceHistory(w, r, raw)
		return
	}
	res, ok := a.compute(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"at":              res.At,
		"source":          res.Source,
		"actionable":      advisory.Actionable(res.Advice),
		"rules":           advisory.Rules(res.Advice),
		"recommendations": res.Advice,
	})
}

func (a *api) getAdviceHistory(w http.ResponseWriter, r *http.Request, raw string) {
	if a.opts.History == nil {
		writeError(w, http.StatusServiceUnavailable, codeDisabled, "advice history requires a database")
		return
	}
	limit, err := parseLimit(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalid, err.Error())
		return
	}
	records, err := a.opts.History.ListRecentAdvice(r.Context(), limit)
	if err != nil {
		a.logger.Error().Err(err).Str("rid", RID(r.Context())).Msg("list advice failed")
		writeError(w, http.StatusInternalServerError, codeDatabase, "could not read advice history")
		return
	}
	type item struct {
		ID         int64                   `json:"id"`
		SnapshotID int64                   `json:"snapshot_id"`
		CreatedAt  time.Time               `json:"created_at"`
		Advice     advisory.Recommendation `json:"recommendation"`
	}
	out := make([]item, 0, len(records))
	for _, rec := range records {
		out = append(out, item{ID: rec.ID, SnapshotID: rec.SnapshotID, CreatedAt: rec.CreatedAt, Advice: rec.Recommendation})
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": out})
}

func (a *api) getChannels(w http.ResponseWriter, _ *http.Request) {
	ids := make([]string, 0, len(a.opts.Platforms))
	for id := range a.opts.Platforms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]projection.PlatformConfig, 0, len(ids))
	for _, id := range ids {
		out = append(out, a.opts.Platforms[id])
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"channels": out,
		"baseline": projection.Model{Saturation: a.opts.Model.Saturation}.Project(projection.BaselineAllocation(a.opts.Platforms), a.opts.Platforms),
	})
}

type projectionRequest struct {
	Allocations map[string]decimal.Decimal `json:"allocations" validate:"required,min=1"`
	Model       string                     `json:"model" validate:"omitempty,oneof=flat decay"`
}

type scenarioRequest struct {
	Name string `json:"name" validate:"max=120"`
	projectionRequest
}

func (a *api) postProjection(w http.ResponseWriter, r *http.Request) {
	var req projectionRequest
	if !a.decode(w, r, &req) {
		return
	}
	model, ok := a.model(w, req)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, model.Project(projection.Allocation(req.Allocations), a.opts.Platforms))
}

func (a *api) postScenario(w http.ResponseWriter, r *http.Request) {
	if a.opts.Scenarios == nil {
		writeError(w, http.StatusServiceUnavailable, codeDisabled, "saving scenarios requires a database")
		return
	}
	var req scenarioRequest
	if !a.decode(w, r, &req) {
		return
	}
	model, ok := a.model(w, req.projectionRequest)
	if !ok {
		return
	}

	alloc := projection.Allocation(req.Allocations)
	result := model.Project(alloc, a.opts.Platforms)
	scenario := projection.NewScenario(strings.TrimSpace(req.Name), alloc, result, model.Name(), a.opts.Now())
	if err := a.opts.Scenarios.InsertScenario(r.Context(), scenario); err != nil {
		a.logger.Error().Err(err).Str("rid", RID(r.Context())).Msg("insert scenario failed")
		writeError(w, http.StatusInternalServerError, codeDatabase, "could not save scenario")
		return
	}
	a.logger.Info().Str("scenario_id", scenario.ID.String()).Str("revenue_lift", result.RevenueLift.String()).Msg("scenario applied")
	writeJSON(w, http.StatusCreated, map[string]any{"scenario": scenario, "projection": result})
}

func (a *api) listScenarios(w http.ResponseWriter, r *http.Request) {
	if a.opts.Scenarios == nil {
		writeError(w, http.StatusServiceUnavailable, codeDisabled, "listing scenarios requires a database")
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalid, err.Error())
		return
	}
	scenarios, err := a.opts.Scenarios.ListRecentScenarios(r.Context(), limit)
	if err != nil {
		a.logger.Error().Err(err).Str("rid", RID(r.Context())).Msg("list scenarios failed")
		writeError(w, http.StatusInternalServerError, codeDatabase, "could not read scenarios")
		return
	}
	if scenarios == nil {
		scenarios = []projection.Scenario{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"scenarios": scenarios})
}

// model validates allocation ids and budgets and resolves the saturation
// model for a request.
func (a *api) model(w http.ResponseWriter, req projectionRequest) (projection.Model, bool) {
	var unknown []string
	for id, budget := range req.Allocations {
		if _, ok := a.opts.Platforms[id]; !ok {
			unknown = append(unknown, id)
			continue
		}
		if budget.Sign() < 0 {
			writeError(w, http.StatusBadRequest, codeInvalid, fmt.Sprintf("budget for %q must not be negative", id))
			return projection.Model{}, false
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		writeError(w, http.StatusBadRequest, codeNoChannel, "unknown channels: "+strings.Join(unknown, ", "))
		return projection.Model{}, false
	}

	model := a.opts.Model
	if req.Model != "" {
		sat, err := projection.ModelByName(req.Model)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalid, err.Error())
			return projection.Model{}, false
		}
		model.Saturation = sat
	}
	return model, true
}

func (a *api) compute(w http.ResponseWriter, r *http.Request) (service.Result, bool) {
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalid, err.Error())
		return service.Result{}, false
	}
	q.At = a.opts.Now()
	res, err := a.opts.KPIs.Compute(r.Context(), q)
	if err != nil {
		a.logger.Error().Err(err).Str("rid", RID(r.Context())).Msg("kpi computation failed")
		writeError(w, http.StatusBadGateway, codeUpstream, "could not compute KPIs")
		return service.Result{}, false
	}
	return res, true
}

func (a *api) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalid, "invalid request body: "+err.Error())
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalid, validationMessage(err))
		return false
	}
	return true
}

func parseQuery(r *http.Request) (service.Query, error) {
	values := r.URL.Query()
	q := service.Query{Source: strings.TrimSpace(values.Get("source"))}

	if raw := values.Get("days"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days <= 0 || days > maxDays {
			return q, fmt.Errorf("days must be an integer between 1 and %d", maxDays)
		}
		q.Days = days
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &q.From}, {"to", &q.To}} {
		raw := values.Get(p.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			return q, fmt.Errorf("%s must be a date (YYYY-MM-DD)", p.name)
		}
		*p.dst = &t
	}
	if q.From != nil && q.To != nil && q.From.After(*q.To) {
		return q, errors.New("from must not be after to")
	}
	return q, nil
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > maxLimit {
		return 0, fmt.Errorf("limit must be an integer between 1 and %d", maxLimit)
	}
	return n, nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")
	enc.Encode(v)
}
