package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alta-labs/wagerd/internal/domain"
	"github.com/alta-labs/wagerd/internal/registry"
)

// WagerHandler serves the wager lifecycle endpoints.
type WagerHandler struct {
	reg    *registry.Registry
	logger *slog.Logger
}

// NewWagerHandler creates a WagerHandler.
func NewWagerHandler(reg *registry.Registry, logger *slog.Logger) *WagerHandler {
	return &WagerHandler{reg: reg, logger: logger.With(slog.String("handler", "wager"))}
}

// wagerView is the JSON shape of a wager. Amounts and strike prices travel
// as decimal strings.
type wagerView struct {
	ID           uint64 `json:"id"`
	Kind         string `json:"kind"`
	UserA        string `json:"user_a"`
	UserB        string `json:"user_b,omitempty"`
	WagerToken   string `json:"wager_token"`
	PaymentToken string `json:"payment_token"`
	WagerPrice   string `json:"wager_price,omitempty"`
	Above        *bool  `json:"above,omitempty"`
	WagerPriceA  string `json:"wager_price_a,omitempty"`
	WagerPriceB  string `json:"wager_price_b,omitempty"`
	AmountUserA  string `json:"amount_user_a"`
	AmountUserB  string `json:"amount_user_b"`
	DurationSecs int64  `json:"duration_secs"`
	CreatedAt    string `json:"created_at"`
	FilledAt     string `json:"filled_at,omitempty"`
	Deadline     string `json:"deadline,omitempty"`
	IsFilled     bool   `json:"is_filled"`
	IsClosed     bool   `json:"is_closed"`
}

func viewOf(w domain.Wager) wagerView {
	v := wagerView{
		ID:           w.ID,
		Kind:         string(w.Kind),
		UserA:        w.UserA.Hex(),
		WagerToken:   w.WagerToken.Hex(),
		PaymentToken: w.PaymentToken.Hex(),
		AmountUserA:  w.AmountUserA.String(),
		AmountUserB:  w.AmountUserB.String(),
		DurationSecs: int64(w.Duration / time.Second),
		CreatedAt:    w.CreatedAt.UTC().Format(time.RFC3339),
		IsFilled:     w.IsFilled,
		IsClosed:     w.IsClosed,
	}
	if w.UserB != domain.OpenTaker {
		v.UserB = w.UserB.Hex()
	}
	if w.Kind == domain.WagerKindFixed {
		if w.WagerPrice != nil {
			v.WagerPrice = w.WagerPrice.String()
		}
		above := w.Above
		v.Above = &above
	} else {
		if w.WagerPriceA != nil {
			v.WagerPriceA = w.WagerPriceA.String()
		}
		if w.WagerPriceB != nil {
			v.WagerPriceB = w.WagerPriceB.String()
		}
	}
	if !w.FilledAt.IsZero() {
		v.FilledAt = w.FilledAt.UTC().Format(time.RFC3339)
		v.Deadline = w.Deadline().UTC().Format(time.RFC3339)
	}
	return v
}

// ListWagers returns all wagers, optionally filtered to open ones.
// GET /api/wagers?status=open&limit=&offset=
func (h *WagerHandler) ListWagers(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	openOnly := r.URL.Query().Get("status") == "open"

	all := h.reg.AllWagers()
	views := make([]wagerView, 0, len(all))
	for _, wager := range all {
		if openOnly && wager.IsClosed {
			continue
		}
		views = append(views, viewOf(wager))
	}

	// Paginate after filtering; identifiers stay in order.
	start := opts.Offset
	if start > len(views) {
		start = len(views)
	}
	end := start + opts.Limit
	if end > len(views) {
		end = len(views)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"wagers": views[start:end],
		"total":  len(views),
	})
}

// GetWager returns one wager.
// GET /api/wagers/{id}
func (h *WagerHandler) GetWager(w http.ResponseWriter, r *http.Request) {
	id, err := parseWagerID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	wager, err := h.reg.Wager(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(wager))
}

type createWagerRequest struct {
	Caller       string `json:"caller"`
	Kind         string `json:"kind"`
	UserB        string `json:"user_b,omitempty"`
	WagerToken   string `json:"wager_token"`
	PaymentToken string `json:"payment_token"`
	WagerPrice   string `json:"wager_price,omitempty"`
	Above        bool   `json:"above,omitempty"`
	WagerPriceA  string `json:"wager_price_a,omitempty"`
	WagerPriceB  string `json:"wager_price_b,omitempty"`
	AmountUserA  string `json:"amount_user_a"`
	AmountUserB  string `json:"amount_user_b"`
	DurationSecs int64  `json:"duration_secs"`
	Value        string `json:"value,omitempty"`
}

// CreateWager creates a new wager.
// POST /api/wagers
func (h *WagerHandler) CreateWager(w http.ResponseWriter, r *http.Request) {
	var body createWagerRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := registry.CreateRequest{
		Kind:         domain.WagerKind(body.Kind),
		Above:        body.Above,
		Duration:     time.Duration(body.DurationSecs) * time.Second,
		UserB:        domain.OpenTaker,
	}

	var err error
	if req.Caller, err = parseAddress(body.Caller); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.UserB != "" {
		if req.UserB, err = parseAddress(body.UserB); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.WagerToken, err = parseAddress(body.WagerToken); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.PaymentToken, err = parseAddress(body.PaymentToken); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.WagerPrice, err = parseBig(body.WagerPrice); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.WagerPriceA, err = parseBig(body.WagerPriceA); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.WagerPriceB, err = parseBig(body.WagerPriceB); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.AmountUserA, err = parseBig(body.AmountUserA); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.AmountUserB, err = parseBig(body.AmountUserB); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Value, err = parseBig(body.Value); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.reg.CreateWager(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	wager, err := h.reg.Wager(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(wager))
}

type transitionRequest struct {
	Caller string `json:"caller"`
	Value  string `json:"value,omitempty"`
}

// FillWager escrows the counterparty side.
// POST /api/wagers/{id}/fill
func (h *WagerHandler) FillWager(w http.ResponseWriter, r *http.Request) {
	id, err := parseWagerID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var body transitionRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, err := parseAddress(body.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	value, err := parseBig(body.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.reg.FillWager(r.Context(), caller, id, value); err != nil {
		writeDomainError(w, err)
		return
	}
	wager, err := h.reg.Wager(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(wager))
}

// CancelWager closes an unfilled wager.
// POST /api/wagers/{id}/cancel
func (h *WagerHandler) CancelWager(w http.ResponseWriter, r *http.Request) {
	id, err := parseWagerID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var body transitionRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, err := parseAddress(body.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.reg.CancelWager(r.Context(), caller, id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": "cancelled"})
}

// Redeem settles a filled wager.
// POST /api/wagers/{id}/redeem
func (h *WagerHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	id, err := parseWagerID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var body transitionRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, err := parseAddress(body.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.reg.Redeem(r.Context(), caller, id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": "redeemed"})
}

// CheckWinner resolves the settlement price and reports the winner without
// touching state.
// GET /api/wagers/{id}/winner
func (h *WagerHandler) CheckWinner(w http.ResponseWriter, r *http.Request) {
	id, err := parseWagerID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	winner, price, err := h.reg.CheckWinner(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := map[string]any{
		"id":               id,
		"settlement_price": price.String(),
	}
	if winner == domain.NoWinner {
		resp["winner"] = nil
	} else {
		resp["winner"] = winner.Hex()
	}
	writeJSON(w, http.StatusOK, resp)
}
