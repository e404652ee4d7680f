package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alta-labs/wagerd/internal/domain"
	"github.com/alta-labs/wagerd/internal/oracle"
)

// RoundHandler exposes the phase-aware oracle round search for inspection.
type RoundHandler struct {
	feeds    domain.FeedOpener
	resolver *oracle.Resolver
	logger   *slog.Logger
}

// NewRoundHandler creates a RoundHandler.
func NewRoundHandler(feeds domain.FeedOpener, resolver *oracle.Resolver, logger *slog.Logger) *RoundHandler {
	return &RoundHandler{
		feeds:    feeds,
		resolver: resolver,
		logger:   logger.With(slog.String("handler", "round")),
	}
}

// Resolve finds the earliest round at or after a timestamp and its price.
// GET /api/rounds/resolve?oracle=0x..&ts=1700000000
func (h *RoundHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(r.URL.Query().Get("oracle"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	target, err := strconv.ParseInt(r.URL.Query().Get("ts"), 10, 64)
	if err != nil || target <= 0 {
		writeError(w, http.StatusBadRequest, "ts must be a positive unix timestamp")
		return
	}

	feed, err := h.feeds.Open(addr)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	roundID, err := h.resolver.RoundForTimestamp(r.Context(), addr, feed, target)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	data, err := feed.GetRoundData(r.Context(), roundID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"oracle":     addr.Hex(),
		"target":     target,
		"round_id":   roundID.String(),
		"phase":      oracle.PhaseOf(roundID),
		"round":      oracle.RoundOf(roundID),
		"price":      data.Price.String(),
		"updated_at": data.UpdatedAt,
	})
}
