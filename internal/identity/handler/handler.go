package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"walletid/internal/identity/models"
	dErrors "walletid/pkg/domain-errors"
	"walletid/pkg/platform/httputil"
	"walletid/pkg/requestcontext"
)

const (
	defaultListLimit = 100
	// maxWalletsPerLookup bounds GET /identities?wallet=...
	maxWalletsPerLookup = 500
)

// Service defines the identity operations exposed over HTTP.
type Service interface {
	GetWithQuality(ctx context.Context, wallets []string) (map[string]models.RecordWithQuality, error)
	GetStats(ctx context.Context) (*models.Stats, error)
	GetAuditTrail(ctx context.Context, wallet string, limit int) ([]models.AuditEntry, error)
	UpsertManual(ctx context.Context, wallet string, edit models.ManualEdit) (*models.IdentityRecord, error)
	UpsertBatch(ctx context.Context, results []models.ProviderResult, maxRetries int) models.UpsertResult
	GetRecentManualEdits(ctx context.Context, limit int) ([]*models.IdentityRecord, error)
	GetRefreshCandidates(ctx context.Context, limit, minLookupCount int) ([]string, error)
}

// Handler wires identity endpoints to the identity service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{service: service, logger: logger}
}

// Register mounts the public read endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Get("/identities", h.HandleLookup)
	r.Get("/identities/stats", h.HandleStats)
	r.Get("/identities/{wallet}", h.HandleGet)
	r.Get("/identities/{wallet}/audit", h.HandleAuditTrail)
}

// RegisterAdmin mounts the admin endpoints. Callers wrap r with admin
// authentication.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Put("/admin/identities/{wallet}", h.HandleManualEdit)
	r.Post("/admin/identities/batch", h.HandleBatchUpsert)
	r.Get("/admin/identities/manual", h.HandleRecentManual)
	r.Get("/admin/identities/refresh-candidates", h.HandleRefreshCandidates)
}

// HandleLookup handles GET /identities?wallet=..&wallet=..
func (h *Handler) HandleLookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wallets := r.URL.Query()["wallet"]
	if len(wallets) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "at least one wallet query parameter is required"))
		return
	}
	if len(wallets) > maxWalletsPerLookup {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "too many wallets in one lookup"))
		return
	}

	found, err := h.service.GetWithQuality(ctx, wallets)
	if err != nil {
		h.fail(ctx, "identity lookup failed", err)
		httputil.WriteError(w, err)
		return
	}

	// Response order follows the first occurrence of each wallet.
	resp := IdentitiesResponse{Identities: make([]IdentityWithQualityResponse, 0, len(found))}
	emitted := make(map[string]struct{}, len(found))
	for _, raw := range wallets {
		key, err := models.NormalizeWallet(raw)
		if err != nil {
			continue
		}
		if _, done := emitted[key]; done {
			continue
		}
		emitted[key] = struct{}{}
		resp.Identities = append(resp.Identities, fromRecordWithQuality(key, found[key]))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleGet handles GET /identities/{wallet}. Unknown wallets answer 200
// with quality "missing".
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wallet := chi.URLParam(r, "wallet")

	found, err := h.service.GetWithQuality(ctx, []string{wallet})
	if err != nil {
		h.fail(ctx, "identity get failed", err)
		httputil.WriteError(w, err)
		return
	}
	for key, rq := range found {
		httputil.WriteJSON(w, http.StatusOK, fromRecordWithQuality(key, rq))
		return
	}
	httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "identity lookup returned no result"))
}

func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := h.service.GetStats(ctx)
	if err != nil {
		h.fail(ctx, "identity stats failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, StatsResponse{
		TotalWallets:  stats.TotalWallets,
		WithTwitter:   stats.WithTwitter,
		WithFarcaster: stats.WithFarcaster,
		WithLens:      stats.WithLens,
		WithGitHub:    stats.WithGitHub,
	})
}

// HandleAuditTrail handles GET /identities/{wallet}/audit?limit=
func (h *Handler) HandleAuditTrail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	wallet := chi.URLParam(r, "wallet")
	entries, err := h.service.GetAuditTrail(ctx, wallet, limit)
	if err != nil {
		h.fail(ctx, "audit trail failed", err)
		httputil.WriteError(w, err)
		return
	}
	normalized, _ := models.NormalizeWallet(wallet)
	httputil.WriteJSON(w, http.StatusOK, AuditTrailResponse{Wallet: normalized, Entries: fromAudit(entries)})
}

// HandleManualEdit handles PUT /admin/identities/{wallet}.
func (h *Handler) HandleManualEdit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[ManualEditRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	wallet := chi.URLParam(r, "wallet")
	record, err := h.service.UpsertManual(ctx, wallet, req.ToModel())
	if err != nil {
		h.fail(ctx, "manual edit failed", err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "manual edit saved",
		"request_id", requestID,
		"wallet", record.Wallet,
		"actor", requestcontext.Actor(ctx),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, FromRecord(record))
}

// HandleBatchUpsert handles POST /admin/identities/batch. The response is
// always 200; the body reports how many results committed, failed or were
// skipped.
func (h *Handler) HandleBatchUpsert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[BatchUpsertRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result := h.service.UpsertBatch(ctx, req.ToModels(), req.MaxRetries)
	h.logger.InfoContext(ctx, "identity batch processed",
		"request_id", requestID,
		"actor", requestcontext.Actor(ctx),
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"skipped", result.Skipped,
	)
	httputil.WriteJSON(w, http.StatusOK, fromUpsertResult(result))
}

// HandleRecentManual handles GET /admin/identities/manual?limit=
func (h *Handler) HandleRecentManual(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	records, err := h.service.GetRecentManualEdits(ctx, limit)
	if err != nil {
		h.fail(ctx, "list manual edits failed", err)
		httputil.WriteError(w, err)
		return
	}
	resp := ManualEditsResponse{Records: make([]IdentityResponse, 0, len(records))}
	for _, rec := range records {
		resp.Records = append(resp.Records, *FromRecord(rec))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleRefreshCandidates handles
// GET /admin/identities/refresh-candidates?limit=&min_lookup_count=
func (h *Handler) HandleRefreshCandidates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	minLookupCount, err := queryInt(r, "min_lookup_count", 1)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	wallets, err := h.service.GetRefreshCandidates(ctx, limit, minLookupCount)
	if err != nil {
		h.fail(ctx, "list refresh candidates failed", err)
		httputil.WriteError(w, err)
		return
	}
	if wallets == nil {
		wallets = []string{}
	}
	httputil.WriteJSON(w, http.StatusOK, RefreshCandidatesResponse{Wallets: wallets})
}

func (h *Handler) fail(ctx context.Context, msg string, err error) {
	level := slog.LevelError
	if dErrors.HasCode(err, dErrors.CodeBadRequest) {
		level = slog.LevelWarn
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, name+" must be a non-negative integer")
	}
	return v, nil
}
