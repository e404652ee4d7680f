package handler

import (
	"log/slog"
	"net/http"

	"github.com/alta-labs/wagerd/internal/domain"
	"github.com/alta-labs/wagerd/internal/registry"
)

// TokenHandler serves the allow-list and kill-switch endpoints. All of these
// are owner operations; the registry enforces the owner check against the
// caller address.
type TokenHandler struct {
	reg    *registry.Registry
	logger *slog.Logger
}

// NewTokenHandler creates a TokenHandler.
func NewTokenHandler(reg *registry.Registry, logger *slog.Logger) *TokenHandler {
	return &TokenHandler{reg: reg, logger: logger.With(slog.String("handler", "token"))}
}

type tokenEntry struct {
	Token    string `json:"token"`
	Oracle   string `json:"oracle"`
	Decimals uint8  `json:"decimals"`
	Allowed  bool   `json:"allowed"`
}

type updateTokensRequest struct {
	Caller string       `json:"caller"`
	Tokens []tokenEntry `json:"tokens"`
}

// UpdatePaymentTokens replaces entries on the payment allow-list.
// PUT /api/tokens/payment
func (h *TokenHandler) UpdatePaymentTokens(w http.ResponseWriter, r *http.Request) {
	h.updateTokens(w, r, domain.TokenClassPayment)
}

// UpdateWagerTokens replaces entries on the wager allow-list.
// PUT /api/tokens/wager
func (h *TokenHandler) UpdateWagerTokens(w http.ResponseWriter, r *http.Request) {
	h.updateTokens(w, r, domain.TokenClassWager)
}

func (h *TokenHandler) updateTokens(w http.ResponseWriter, r *http.Request, class domain.TokenClass) {
	var body updateTokensRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, err := parseAddress(body.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(body.Tokens) == 0 {
		writeError(w, http.StatusBadRequest, "no tokens given")
		return
	}

	infos := make([]domain.TokenInfo, 0, len(body.Tokens))
	for _, entry := range body.Tokens {
		info := domain.TokenInfo{Decimals: entry.Decimals, Allowed: entry.Allowed}
		if info.Token, err = parseAddress(entry.Token); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if info.Oracle, err = parseAddress(entry.Oracle); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		infos = append(infos, info)
	}

	if class == domain.TokenClassPayment {
		err = h.reg.UpdatePaymentTokens(r.Context(), caller, infos)
	} else {
		err = h.reg.UpdateWagerTokens(r.Context(), caller, infos)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"class": string(class), "updated": len(infos)})
}

// ListTokens returns one allow-list.
// GET /api/tokens/{class}
func (h *TokenHandler) ListTokens(w http.ResponseWriter, r *http.Request) {
	class := domain.TokenClass(r.PathValue("class"))
	if class != domain.TokenClassPayment && class != domain.TokenClassWager {
		writeError(w, http.StatusBadRequest, "class must be payment or wager")
		return
	}

	infos := h.reg.ListTokens(class)
	entries := make([]tokenEntry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, tokenEntry{
			Token:    info.Token.Hex(),
			Oracle:   info.Oracle.Hex(),
			Decimals: info.Decimals,
			Allowed:  info.Allowed,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"class": string(class), "tokens": entries})
}

// MarkRefundable activates the kill switch for a wager token.
// POST /api/tokens/{address}/refundable
func (h *TokenHandler) MarkRefundable(w http.ResponseWriter, r *http.Request) {
	token, err := parseAddress(r.PathValue("address"))
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

	if err := h.reg.MarkTokenRefundable(r.Context(), caller, token); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token.Hex(),
		"flagged_at": h.reg.TokenRefundableAt(token).UTC(),
	})
}

// TransferOwnership hands the owner role to a new address.
// POST /api/admin/ownership
func (h *TokenHandler) TransferOwnership(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Caller   string `json:"caller"`
		NewOwner string `json:"new_owner"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, err := parseAddress(body.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	newOwner, err := parseAddress(body.NewOwner)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.reg.TransferOwnership(r.Context(), caller, newOwner); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner": newOwner.Hex()})
}
