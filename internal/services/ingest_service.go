// Package services holds the orchestration layer between transports and the
// domain packages: it owns the run-level semantics (atomicity, events) and
// nothing row-level.
package services

import (
	"context"
	"fmt"
	"log/slog"

	"reservemap/internal/ingest"
)

// IngestionStore is the transactional boundary the service needs from
// storage: run fn once, commit only if it returns nil.
type IngestionStore interface {
	RunIngestion(ctx context.Context, fn func(w ingest.CatalogWriter) error) error
}

// EventPublisher announces committed runs to interested consumers.
type EventPublisher interface {
	PublishIngestCompleted(ctx context.Context, year, facts int, source string) error
}

// IngestService runs a full report ingestion: one parser pass over the grid
// inside one transaction, followed by a completion event. A nil publisher
// means events are simply disabled.
type IngestService struct {
	store     IngestionStore
	publisher EventPublisher
	layout    ingest.Layout
}

func NewIngestService(store IngestionStore, publisher EventPublisher, layout ingest.Layout) *IngestService {
	return &IngestService{
		store:     store,
		publisher: publisher,
		layout:    layout,
	}
}

// Ingest parses the grid for the given issue year and returns the number of
// distribution facts written. Any parser or storage error rolls the whole
// run back and nothing becomes visible.
func (s *IngestService) Ingest(ctx context.Context, grid [][]string, year int, source string) (int, error) {
	parser := ingest.NewParser(s.layout)

	var facts int
	err := s.store.RunIngestion(ctx, func(w ingest.CatalogWriter) error {
		var err error
		facts, err = parser.Run(ctx, grid, year, w)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("ingest report: %w", err)
	}

	if s.publisher != nil {
		// The run is already committed; a failed event must not undo it.
		if err := s.publisher.PublishIngestCompleted(ctx, year, facts, source); err != nil {
			slog.ErrorContext(ctx, "Failed to publish ingest event",
				"error", err,
				"year", year,
				"facts", facts)
		}
	}

	slog.InfoContext(ctx, "Ingestion run completed",
		"year", year,
		"facts", facts,
		"source", source)

	return facts, nil
}
