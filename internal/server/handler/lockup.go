package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alta-labs/wagerd/internal/domain"
	"github.com/alta-labs/wagerd/internal/lockup"
)

// LockupHandler serves the token lockup endpoints.
type LockupHandler struct {
	vault  *lockup.Vault
	logger *slog.Logger
}

// NewLockupHandler creates a LockupHandler.
func NewLockupHandler(vault *lockup.Vault, logger *slog.Logger) *LockupHandler {
	return &LockupHandler{vault: vault, logger: logger.With(slog.String("handler", "lockup"))}
}

type lockupView struct {
	ID        int64     `json:"id"`
	Index     int       `json:"index"`
	Owner     string    `json:"owner"`
	Token     string    `json:"token"`
	Amount    string    `json:"amount"`
	LockedAt  time.Time `json:"locked_at"`
	ReleaseAt time.Time `json:"release_at"`
	Unlocked  bool      `json:"unlocked"`
}

func lockupViewOf(l domain.Lockup) lockupView {
	return lockupView{
		ID:        l.ID,
		Index:     l.Index,
		Owner:     l.Owner.Hex(),
		Token:     l.Token.Hex(),
		Amount:    l.Amount.String(),
		LockedAt:  l.LockedAt.UTC(),
		ReleaseAt: l.ReleaseAt.UTC(),
		Unlocked:  l.Unlocked,
	}
}

type createLockupRequest struct {
	Owner    string `json:"owner"`
	Token    string `json:"token"`
	Amount   string `json:"amount"`
	Duration int64  `json:"duration_seconds"`
	Value    string `json:"value"`
}

// CreateLockup locks tokens for a fixed duration.
// POST /api/lockups
func (h *LockupHandler) CreateLockup(w http.ResponseWriter, r *http.Request) {
	var body createLockupRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	owner, err := parseAddress(body.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	token, err := parseAddress(body.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseBig(body.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	value, err := parseBig(body.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Duration <= 0 {
		writeError(w, http.StatusBadRequest, "duration_seconds must be positive")
		return
	}

	entry, err := h.vault.LockTokens(r.Context(), owner, token, amount, time.Duration(body.Duration)*time.Second, value)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, lockupViewOf(entry))
}

// Unlock releases a matured lockup back to its owner.
// POST /api/lockups/{index}/unlock
func (h *LockupHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || index < 0 {
		writeError(w, http.StatusBadRequest, "invalid lockup index")
		return
	}
	var body struct {
		Owner string `json:"owner"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	owner, err := parseAddress(body.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.vault.UnlockTokens(r.Context(), owner, index); err != nil {
		writeDomainError(w, err)
		return
	}
	entries := h.vault.Lockups(owner)
	writeJSON(w, http.StatusOK, lockupViewOf(entries[index]))
}

// ListLockups returns all lockups held by an owner.
// GET /api/lockups?owner=0x..
func (h *LockupHandler) ListLockups(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAddress(r.URL.Query().Get("owner"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries := h.vault.Lockups(owner)
	views := make([]lockupView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, lockupViewOf(entry))
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner": owner.Hex(), "lockups": views})
}
