// Package worker rebuilds per-district xlsx snapshot files whenever an
// ingestion run commits, so downloads never pay the query cost online.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"reservemap/internal/amqp"
	"reservemap/internal/core"
	"reservemap/internal/export"
	"reservemap/internal/report"
)

// SnapshotStore is the read side the worker regenerates snapshots from.
type SnapshotStore interface {
	Districts(ctx context.Context) ([]core.District, error)
	QueryFacts(ctx context.Context, sel report.Selector, years report.YearRange) ([]core.FactRow, error)
}

// SnapshotWorker writes one workbook per district into exportDir, plus a
// combined all-districts workbook.
type SnapshotWorker struct {
	store       SnapshotStore
	exportDir   string
	concurrency int
}

func NewSnapshotWorker(store SnapshotStore, exportDir string, concurrency int) *SnapshotWorker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &SnapshotWorker{
		store:       store,
		exportDir:   exportDir,
		concurrency: concurrency,
	}
}

// HandleIngestEvent rebuilds every snapshot after a committed run. The
// event payload only tells us a run happened; the data comes from storage.
func (w *SnapshotWorker) HandleIngestEvent(ctx context.Context, msg *amqp.IngestCompletedMessage) error {
	slog.InfoContext(ctx, "Rebuilding snapshots",
		"year", msg.Year,
		"facts", msg.Facts,
		"source", msg.Source)

	if err := os.MkdirAll(w.exportDir, 0755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}

	districts, err := w.store.Districts(ctx)
	if err != nil {
		return fmt.Errorf("list districts: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)

	g.Go(func() error {
		return w.writeSnapshot(gctx, report.Selector{}, "all_districts")
	})
	for _, d := range districts {
		g.Go(func() error {
			return w.writeSnapshot(gctx, report.Selector{DistrictID: d.ID}, d.ID)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("rebuild snapshots: %w", err)
	}

	slog.InfoContext(ctx, "Snapshots rebuilt",
		"districts", len(districts),
		"dir", w.exportDir)

	return nil
}

// writeSnapshot renders one selector's full history to a temp file and
// renames it into place, so readers never observe a half-written workbook.
func (w *SnapshotWorker) writeSnapshot(ctx context.Context, sel report.Selector, name string) error {
	rows, err := w.store.QueryFacts(ctx, sel, report.YearRange{})
	if err != nil {
		return fmt.Errorf("query facts for %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(w.exportDir, name+"-*.xlsx")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := export.WriteWorkbook(tmp, rows); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot %s: %w", name, err)
	}

	final := filepath.Join(w.exportDir, name+".xlsx")
	if err := os.Rename(tmp.Name(), final); err != nil {
		return fmt.Errorf("publish snapshot %s: %w", name, err)
	}
	return nil
}
