package services

import (
	"context"
	"errors"
	"testing"

	"reservemap/internal/ingest"
)

// memWriter is the in-memory CatalogWriter backing the fake store.
type memWriter struct {
	categories map[string]int64
	nextID     int64
	items      int
	facts      int
}

func (w *memWriter) EnsureCategory(_ context.Context, name string) (int64, error) {
	if id, ok := w.categories[name]; ok {
		return id, nil
	}
	w.nextID++
	w.categories[name] = w.nextID
	return w.nextID, nil
}

func (w *memWriter) CreateItem(context.Context, int64, string, string, float64) (int64, error) {
	w.items++
	w.nextID++
	return w.nextID, nil
}

func (w *memWriter) CreateDistribution(context.Context, string, int64, int, float64, float64) error {
	w.facts++
	return nil
}

// fakeStore mimics the transactional boundary: effects only stick when fn
// succeeds.
type fakeStore struct {
	committed  *memWriter
	rolledBack bool
}

func (s *fakeStore) RunIngestion(ctx context.Context, fn func(w ingest.CatalogWriter) error) error {
	w := &memWriter{categories: make(map[string]int64)}
	if err := fn(w); err != nil {
		s.rolledBack = true
		return err
	}
	s.committed = w
	return nil
}

type fakePublisher struct {
	events []int
	err    error
}

func (p *fakePublisher) PublishIngestCompleted(_ context.Context, _, facts int, _ string) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, facts)
	return nil
}

func testLayout() ingest.Layout {
	return ingest.Layout{
		Columns: []ingest.ColumnBinding{
			{QuantityCol: 5, CostCol: 6, DistrictID: "aldansky"},
		},
	}
}

func validGrid() [][]string {
	return [][]string{
		{"", "Продовольствие"},
		{"1", "Мука", "кг", "", "45", "100", "4500"},
	}
}

func TestIngestCommitsAndPublishes(t *testing.T) {
	store := &fakeStore{}
	pub := &fakePublisher{}
	svc := NewIngestService(store, pub, testLayout())

	count, err := svc.Ingest(context.Background(), validGrid(), 2024, "report.xlsx")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
	if store.committed == nil || store.committed.facts != 1 {
		t.Errorf("committed = %+v", store.committed)
	}
	if len(pub.events) != 1 || pub.events[0] != 1 {
		t.Errorf("events = %v", pub.events)
	}
}

func TestIngestParserErrorRollsBack(t *testing.T) {
	store := &fakeStore{}
	pub := &fakePublisher{}
	svc := NewIngestService(store, pub, testLayout())

	grid := [][]string{
		{"1", "Мука", "кг", "", "45", "100", "4500"}, // item with no category
	}
	count, err := svc.Ingest(context.Background(), grid, 2024, "report.xlsx")
	if !errors.Is(err, ingest.ErrItemBeforeCategory) {
		t.Fatalf("err = %v, want ErrItemBeforeCategory", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
	if !store.rolledBack {
		t.Error("expected rollback")
	}
	if len(pub.events) != 0 {
		t.Errorf("events published after failed run: %v", pub.events)
	}
}

func TestIngestPublisherErrorDoesNotFailRun(t *testing.T) {
	store := &fakeStore{}
	pub := &fakePublisher{err: errors.New("broker down")}
	svc := NewIngestService(store, pub, testLayout())

	count, err := svc.Ingest(context.Background(), validGrid(), 2024, "report.xlsx")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestIngestWithoutPublisher(t *testing.T) {
	store := &fakeStore{}
	svc := NewIngestService(store, nil, testLayout())

	if _, err := svc.Ingest(context.Background(), validGrid(), 2024, "report.xlsx"); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
}
