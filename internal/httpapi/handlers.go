package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"auditflow/internal/domain"
	"auditflow/internal/observability"
	"auditflow/internal/qr"
	"auditflow/internal/service"
)

type API struct {
	Svc      *service.Checkout
	QR       *qr.Service
	Validate *validator.Validate
}

func (a *API) Register(r *mux.Router) {
	r.HandleFunc("/v1/checkout", a.handleCheckout).Methods(http.MethodPost)
	r.HandleFunc("/v1/checkout/{id}", a.handleGetCharge).Methods(http.MethodGet)
	r.HandleFunc("/v1/checkout/{id}/qr", a.handleChargeQR).Methods(http.MethodGet)
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		observability.APIRequests.WithLabelValues("/v1/checkout", "400").Inc()
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}
	if err := a.Validate.Struct(req); err != nil {
		observability.APIRequests.WithLabelValues("/v1/checkout", "400").Inc()
		http.Error(w, ErrValidation+": "+err.Error(), http.StatusBadRequest)
		return
	}

	id, err := a.Svc.Create(r.Context(), req)
	if err != nil {
		slog.Error("checkout failed", "err", err, "email", req.Email)
		observability.APIRequests.WithLabelValues("/v1/checkout", "502").Inc()
		http.Error(w, ErrDependency, http.StatusBadGateway)
		return
	}

	observability.APIRequests.WithLabelValues("/v1/checkout", "201").Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{"id": id, "status": string(domain.ChargePending)})
}

func (a *API) chargeFromPath(w http.ResponseWriter, r *http.Request) (domain.ChargeResponse, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, ErrMissingID, http.StatusBadRequest)
		return domain.ChargeResponse{}, false
	}
	resp, found, err := a.Svc.Get(r.Context(), id)
	if err != nil {
		slog.Error("get charge failed", "err", err, "id", id)
		http.Error(w, ErrDependency, http.StatusBadGateway)
		return domain.ChargeResponse{}, false
	}
	if !found {
		http.Error(w, ErrNotFound, http.StatusNotFound)
		return domain.ChargeResponse{}, false
	}
	return resp, true
}

func (a *API) handleGetCharge(w http.ResponseWriter, r *http.Request) {
	resp, ok := a.chargeFromPath(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// handleChargeQR serves the charge's Pix copy-and-paste code as a PNG, for
// payment pages that want an image instead of the raw string.
func (a *API) handleChargeQR(w http.ResponseWriter, r *http.Request) {
	resp, ok := a.chargeFromPath(w, r)
	if !ok {
		return
	}
	if resp.BRCode == "" {
		http.Error(w, ErrNotReady, http.StatusConflict)
		return
	}

	png, err := a.QR.FindOrNew(resp.BRCode)
	if err != nil {
		slog.Error("qr encode failed", "err", err, "id", resp.ID)
		http.Error(w, ErrDependency, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}
