package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alta-labs/wagerd/internal/domain"
)

// Archiver exports closed wagers older than the retention window to object
// storage as JSONL, then prunes them from the primary store. Pruning only
// happens after the upload succeeded, so a failed run leaves the database
// untouched.
type Archiver struct {
	writer    domain.BlobWriter
	wagers    domain.WagerStore
	audit     domain.AuditStore
	logger    *slog.Logger
	retention time.Duration
	batchSize int
}

// ArchiverConfig configures an Archiver. Retention is how long closed wagers
// stay in Postgres before export; BatchSize bounds one export's row count.
type ArchiverConfig struct {
	Retention time.Duration
	BatchSize int
}

// NewArchiver creates an Archiver. The audit store is optional.
func NewArchiver(writer domain.BlobWriter, wagers domain.WagerStore, audit domain.AuditStore, cfg ArchiverConfig, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 90 * 24 * time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	return &Archiver{
		writer:    writer,
		wagers:    wagers,
		audit:     audit,
		logger:    logger.With(slog.String("component", "archiver")),
		retention: cfg.Retention,
		batchSize: cfg.BatchSize,
	}
}

// Run performs one archive pass and returns the number of wagers exported.
func (a *Archiver) Run(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-a.retention)

	wagers, err := a.wagers.ListClosedBefore(ctx, cutoff, a.batchSize)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query: %w", err)
	}
	if len(wagers) == 0 {
		return 0, nil
	}

	buf, err := marshalWagersJSONL(wagers)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive marshal: %w", err)
	}

	path := archivePath(cutoff)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive upload: %w", err)
	}

	pruned, err := a.wagers.DeleteClosedBefore(ctx, cutoff)
	if err != nil {
		return int64(len(wagers)), fmt.Errorf("s3blob: archive prune: %w", err)
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.wagers", map[string]any{
			"path":   path,
			"count":  len(wagers),
			"pruned": pruned,
			"cutoff": cutoff.Format(time.RFC3339),
		}); err != nil {
			a.logger.Warn("archive audit write failed", slog.String("error", err.Error()))
		}
	}

	a.logger.Info("closed wagers archived",
		slog.String("path", path),
		slog.Int("count", len(wagers)),
		slog.Int64("pruned", pruned),
	)
	return int64(len(wagers)), nil
}

// RunPeriodic runs archive passes at the given interval until the context is
// cancelled. Errors are logged and the loop continues.
func (a *Archiver) RunPeriodic(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.Run(ctx); err != nil {
				a.logger.Error("archive pass failed", slog.String("error", err.Error()))
			}
		}
	}
}

// archivedWager is the export row shape: every field as a JSON-safe string
// or primitive, so the archive stays readable without the Go types.
type archivedWager struct {
	ID           uint64 `json:"id"`
	Kind         string `json:"kind"`
	UserA        string `json:"user_a"`
	UserB        string `json:"user_b"`
	WagerToken   string `json:"wager_token"`
	PaymentToken string `json:"payment_token"`
	WagerPrice   string `json:"wager_price,omitempty"`
	Above        bool   `json:"above"`
	WagerPriceA  string `json:"wager_price_a,omitempty"`
	WagerPriceB  string `json:"wager_price_b,omitempty"`
	AmountUserA  string `json:"amount_user_a"`
	AmountUserB  string `json:"amount_user_b"`
	DurationSecs int64  `json:"duration_secs"`
	CreatedAt    string `json:"created_at"`
	FilledAt     string `json:"filled_at,omitempty"`
	IsFilled     bool   `json:"is_filled"`
	IsClosed     bool   `json:"is_closed"`
}

func marshalWagersJSONL(wagers []domain.Wager) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, w := range wagers {
		row := archivedWager{
			ID:           w.ID,
			Kind:         string(w.Kind),
			UserA:        w.UserA.Hex(),
			UserB:        w.UserB.Hex(),
			WagerToken:   w.WagerToken.Hex(),
			PaymentToken: w.PaymentToken.Hex(),
			Above:        w.Above,
			AmountUserA:  w.AmountUserA.String(),
			AmountUserB:  w.AmountUserB.String(),
			DurationSecs: int64(w.Duration / time.Second),
			CreatedAt:    w.CreatedAt.UTC().Format(time.RFC3339),
			IsFilled:     w.IsFilled,
			IsClosed:     w.IsClosed,
		}
		if w.WagerPrice != nil {
			row.WagerPrice = w.WagerPrice.String()
		}
		if w.WagerPriceA != nil {
			row.WagerPriceA = w.WagerPriceA.String()
		}
		if w.WagerPriceB != nil {
			row.WagerPriceB = w.WagerPriceB.String()
		}
		if !w.FilledAt.IsZero() {
			row.FilledAt = w.FilledAt.UTC().Format(time.RFC3339)
		}
		if err := enc.Encode(row); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func archivePath(cutoff time.Time) string {
	return fmt.Sprintf("archive/wagers/%s/%d.jsonl",
		cutoff.UTC().Format("2006-01"), time.Now().UnixNano())
}
