package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/unihub-exe/unihub-core/internal/adapters/paystack"
	"github.com/unihub-exe/unihub-core/internal/config"
	"github.com/unihub-exe/unihub-core/internal/domain"
	"github.com/unihub-exe/unihub-core/internal/ledger"
	"github.com/unihub-exe/unihub-core/internal/observability"
	"github.com/unihub-exe/unihub-core/internal/payout"
	"github.com/unihub-exe/unihub-core/internal/registration"
	"github.com/unihub-exe/unihub-core/internal/settlement"
)

type Handlers struct {
	cfg     *config.Config
	settle  *settlement.Service
	reg     *registration.Service
	wallet  *ledger.Engine
	payouts *payout.Service
	log     observability.Logger
}

func NewHandlers(cfg *config.Config, settle *settlement.Service, reg *registration.Service, wallet *ledger.Engine, payouts *payout.Service, log observability.Logger) *Handlers {
	return &Handlers{
		cfg:     cfg,
		settle:  settle,
		reg:     reg,
		wallet:  wallet,
		payouts: payouts,
		log:     log,
	}
}

// writeError maps domain sentinels onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrInvalidCode):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrInsufficientFunds):
		status = http.StatusPaymentRequired
	case errors.Is(err, domain.ErrEventFull),
		errors.Is(err, domain.ErrTicketTypeSoldOut),
		errors.Is(err, domain.ErrAlreadyRegistered),
		errors.Is(err, domain.ErrAlreadyWaitlisted),
		errors.Is(err, domain.ErrAlreadyPending),
		errors.Is(err, domain.ErrEventCancelled),
		errors.Is(err, domain.ErrDuplicateRef),
		errors.Is(err, domain.ErrBadTransition):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrProvider):
		status = http.StatusBadGateway
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserToken  string            `json:"user_token"`
		Name       string            `json:"name"`
		Email      string            `json:"email"`
		Code       string            `json:"code"`
		TicketType string            `json:"ticket_type"`
		Answers    map[string]string `json:"answers"`
		Payment    struct {
			Method    string `json:"method"`
			Reference string `json:"reference"`
		} `json:"payment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	method := settlement.PaymentMethod(req.Payment.Method)
	if method == "" {
		method = settlement.PayWallet
	}
	res, err := h.settle.Register(r.Context(), settlement.RegisterRequest{
		EventID: domain.EventID(chi.URLParam(r, "id")),
		Registrant: registration.Registrant{
			User:       domain.UserToken(req.UserToken),
			Name:       req.Name,
			Email:      req.Email,
			Code:       req.Code,
			TicketType: req.TicketType,
			Answers:    req.Answers,
		},
		Method:    method,
		Reference: req.Payment.Reference,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]any{"outcome": res.Outcome}
	if res.Participant != nil {
		resp["pass_id"] = res.Participant.PassID
		resp["amount_paid"] = res.AmountPaid
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handlers) CancelEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserToken string `json:"user_token"`
		Reason    string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.settle.Cancel(r.Context(), domain.EventID(chi.URLParam(r, "id")), domain.UserToken(req.UserToken), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"refunded":       res.Refunded,
		"total_refunded": res.TotalRefunded,
	})
}

func (h *Handlers) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserTokens []string `json:"user_tokens"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	toks := make([]domain.UserToken, len(req.UserTokens))
	for i, t := range req.UserTokens {
		toks[i] = domain.UserToken(t)
	}

	flipped, err := h.reg.CheckIn(r.Context(), domain.EventID(chi.URLParam(r, "id")), toks)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"checked_in": flipped})
}

func (h *Handlers) Unregister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserToken string `json:"user_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	removed, err := h.reg.Remove(r.Context(), domain.EventID(chi.URLParam(r, "id")), domain.UserToken(req.UserToken))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed.UserToken})
}

func (h *Handlers) ApprovePending(w http.ResponseWriter, r *http.Request) {
	p, err := h.reg.Approve(r.Context(), domain.EventID(chi.URLParam(r, "id")), domain.UserToken(chi.URLParam(r, "tok")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pass_id": p.PassID})
}

func (h *Handlers) GetWallet(w http.ResponseWriter, r *http.Request) {
	l, err := h.wallet.Balance(r.Context(), domain.UserToken(chi.URLParam(r, "tok")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"available": l.Available,
		"locked":    l.Locked,
		"pending":   l.Pending,
	})
}

func (h *Handlers) GetTransactions(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 50)
	offset := intQuery(r, "offset", 0)
	entries, err := h.wallet.History(r.Context(), domain.UserToken(chi.URLParam(r, "tok")), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	type out struct {
		ID          uuid.UUID      `json:"id"`
		Type        string         `json:"type"`
		Amount      domain.Money   `json:"amount"`
		Description string         `json:"description"`
		EventID     domain.EventID `json:"event_id,omitempty"`
		Status      string         `json:"status"`
		Reference   string         `json:"reference,omitempty"`
		CreatedAt   time.Time      `json:"created_at"`
	}
	resp := make([]out, len(entries))
	for i, e := range entries {
		resp[i] = out{
			ID: e.ID, Type: string(e.Type), Amount: e.Amount, Description: e.Description,
			EventID: e.EventID, Status: string(e.Status), Reference: e.Reference, CreatedAt: e.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func intQuery(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func (h *Handlers) RequestPayout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserToken string       `json:"user_token"`
		Amount    domain.Money `json:"amount"`
		Account   struct {
			BankName      string `json:"bank_name"`
			BankCode      string `json:"bank_code"`
			AccountNumber string `json:"account_number"`
			AccountName   string `json:"account_name"`
		} `json:"account"`
		ScheduledAt *time.Time `json:"scheduled_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var scheduledAt time.Time
	if req.ScheduledAt != nil {
		scheduledAt = *req.ScheduledAt
	}
	p, err := h.payouts.Request(r.Context(), domain.UserToken(req.UserToken), req.Amount, domain.BankAccount{
		BankName:      req.Account.BankName,
		BankCode:      req.Account.BankCode,
		AccountNumber: req.Account.AccountNumber,
		AccountName:   req.Account.AccountName,
	}, scheduledAt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":        p.ID,
		"status":    p.Status,
		"reference": p.Reference,
	})
}

func (h *Handlers) ApprovePayout(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req struct {
		Notes string `json:"notes"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	immediate := r.URL.Query().Get("immediate") == "true"

	p, err := h.payouts.Approve(r.Context(), id, immediate, req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": p.Status, "transfer_id": p.TransferID})
}

func (h *Handlers) RejectPayout(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req struct {
		Notes string `json:"notes"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if err := h.payouts.Reject(r.Context(), id, req.Notes); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": domain.PayoutRejected})
}

// PaystackWebhook funds wallets from charge.success events carrying deposit
// metadata. The signature check runs against the raw body before any parsing;
// everything else is acknowledged and dropped so Paystack stops retrying.
func (h *Handlers) PaystackWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !paystack.ValidSignature(h.cfg.WebhookSecret, body, r.Header.Get("x-paystack-signature")) {
		observability.WebhookRejectedTotal.Inc()
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var event struct {
		Event string `json:"event"`
		Data  struct {
			Reference string `json:"reference"`
			Amount    int64  `json:"amount"`
			Metadata  struct {
				Purpose   string `json:"purpose"`
				UserToken string `json:"user_token"`
			} `json:"metadata"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if event.Event != "charge.success" || event.Data.Metadata.Purpose != "deposit" {
		w.WriteHeader(http.StatusOK)
		return
	}

	err = h.settle.FundWallet(r.Context(), domain.UserToken(event.Data.Metadata.UserToken),
		domain.Money(event.Data.Amount), event.Data.Reference)
	if errors.Is(err, domain.ErrDuplicateRef) {
		// Replay of a funded charge; acknowledged so the retry stops.
		w.WriteHeader(http.StatusOK)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}
