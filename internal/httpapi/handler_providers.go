package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aethermarket/coordinator/internal/apierr"
	"github.com/aethermarket/coordinator/internal/storage"
)

type upsertProfileRequest struct {
	DisplayName       string         `json:"display_name"`
	Contact           map[string]any `json:"contact"`
	AutoAcceptRentals bool           `json:"auto_accept_rentals"`
}

// upsertProviderProfile requires the signer to be the provider itself.
func (h *Handler) upsertProviderProfile(w http.ResponseWriter, r *http.Request) {
	if !requireSelf(w, r, "pubkey") {
		return
	}
	var req upsertProfileRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		respondError(w, err)
		return
	}
	providerPubkey, _ := hexParam(r, "pubkey")
	err := h.providers.UpsertProfile(r.Context(), storage.ProviderProfile{
		AccountID:         providerPubkey,
		DisplayName:       req.DisplayName,
		Contact:           req.Contact,
		AutoAcceptRentals: req.AutoAcceptRentals,
	})
	if err != nil {
		respondError(w, apierr.Wrap(err, "upsert provider profile"))
		return
	}
	respond(w, http.StatusOK, map[string]bool{"saved": true})
}

func (h *Handler) getProviderProfile(w http.ResponseWriter, r *http.Request) {
	providerPubkey, err := hexParam(r, "pubkey")
	if err != nil {
		respondError(w, err)
		return
	}
	profile, err := h.providers.GetProfile(r.Context(), providerPubkey)
	if err != nil {
		respondError(w, apierr.NotFound("provider_not_found", "provider profile not found"))
		return
	}
	respond(w, http.StatusOK, profile)
}

type createOfferingRequest struct {
	OfferingID        string `json:"offering_id"`
	CPUCores          int    `json:"cpu_cores"`
	MemoryMB          int    `json:"memory_mb"`
	StorageGB         int    `json:"storage_gb"`
	GPUModel          string `json:"gpu_model"`
	MonthlyPriceE9s   int64  `json:"monthly_price_e9s"`
	Visibility        string `json:"visibility"`
	StockStatus       string `json:"stock_status"`
	DatacenterCountry string `json:"datacenter_country"`
	DatacenterCity    string `json:"datacenter_city"`
	AgentPoolID       string `json:"agent_pool_id"`
	ProvisionerType   string `json:"provisioner_type"`
	ProvisionerConfig string `json:"provisioner_config"`
}

func (h *Handler) createOffering(w http.ResponseWriter, r *http.Request) {
	if !requireSelf(w, r, "pubkey") {
		return
	}
	var req createOfferingRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		respondError(w, err)
		return
	}
	providerPubkey, _ := hexParam(r, "pubkey")
	offering, err := h.offerings.CreateOffering(r.Context(), storage.Offering{
		ProviderPubkey:    providerPubkey,
		OfferingID:        req.OfferingID,
		CPUCores:          req.CPUCores,
		MemoryMB:          req.MemoryMB,
		StorageGB:         req.StorageGB,
		GPUModel:          req.GPUModel,
		MonthlyPriceE9s:   req.MonthlyPriceE9s,
		Visibility:        req.Visibility,
		StockStatus:       req.StockStatus,
		DatacenterCountry: req.DatacenterCountry,
		DatacenterCity:    req.DatacenterCity,
		AgentPoolID:       req.AgentPoolID,
		ProvisionerType:   req.ProvisionerType,
		ProvisionerConfig: []byte(req.ProvisionerConfig),
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, offering)
}

func (h *Handler) searchOfferings(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePage(r)
	results, err := h.offerings.Search(r.Context(), r.URL.Query().Get("q"), limit, offset)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, results)
}

type createPoolRequest struct {
	Name            string `json:"name"`
	Location        string `json:"location"`
	ProvisionerType string `json:"provisioner_type"`
}

func (h *Handler) createPool(w http.ResponseWriter, r *http.Request) {
	if !requireSelf(w, r, "pubkey") {
		return
	}
	var req createPoolRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		respondError(w, err)
		return
	}
	providerPubkey, _ := hexParam(r, "pubkey")
	pool, err := h.agentsSvc.CreatePool(r.Context(), providerPubkey, req.Name, req.Location, req.ProvisionerType)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, pool)
}

func (h *Handler) deletePool(w http.ResponseWriter, r *http.Request) {
	if !requireSelf(w, r, "pubkey") {
		return
	}
	if err := h.agentsSvc.DeletePool(r.Context(), chi.URLParam(r, "poolID")); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]bool{"deleted": true})
}

type createSetupTokenRequest struct {
	Label string `json:"label"`
}

func (h *Handler) createSetupToken(w http.ResponseWriter, r *http.Request) {
	if !requireSelf(w, r, "pubkey") {
		return
	}
	var req createSetupTokenRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		respondError(w, err)
		return
	}
	token, err := h.agentsSvc.CreateSetupToken(r.Context(), chi.URLParam(r, "poolID"), req.Label)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, token)
}

func (h *Handler) refreshTrustScore(w http.ResponseWriter, r *http.Request) {
	providerPubkey, err := hexParam(r, "pubkey")
	if err != nil {
		respondError(w, err)
		return
	}
	if h.trustAggregator == nil {
		respondError(w, apierr.Invariant("trust_aggregator_unconfigured", "trust score aggregator not wired", nil))
		return
	}
	score, err := h.offerings.RefreshTrustScore(r.Context(), h.trustAggregator, providerPubkey)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]int{"trust_score": score})
}

func parsePage(r *http.Request) (limit, offset int) {
	limit = 50
	offset = 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			offset = n
		}
	}
	return limit, offset
}
