package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bigandbest/admin-deployed-sub000/internal/catalog"
	"github.com/bigandbest/admin-deployed-sub000/internal/domain"
	"github.com/bigandbest/admin-deployed-sub000/internal/event"
	"github.com/bigandbest/admin-deployed-sub000/internal/lock"
	"github.com/bigandbest/admin-deployed-sub000/internal/repository/memory"
	pkgkafka "github.com/bigandbest/admin-deployed-sub000/pkg/kafka"
)

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingKafka captures published events in place of a broker.
type recordingKafka struct {
	mu     sync.Mutex
	topics []string
	events []*pkgkafka.Event
}

func (r *recordingKafka) Publish(_ context.Context, topic string, e *pkgkafka.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	r.events = append(r.events, e)
	return nil
}

func (r *recordingKafka) count(topic string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.topics {
		if t == topic {
			n++
		}
	}
	return n
}

type fixture struct {
	store       *memory.Store
	catalog     *catalog.StaticCatalog
	kafka       *recordingKafka
	geo         *GeographyService
	hierarchy   *HierarchyService
	ledger      *LedgerService
	assignments *AssignmentService
	resolver    *Resolver
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithLocker(t, lock.NewLocalLocker(time.Second))
}

func newFixtureWithLocker(t *testing.T, locker lock.Locker) *fixture {
	t.Helper()
	logger := newTestLogger()
	store := memory.New()
	cat := catalog.NewStaticCatalog()
	rec := &recordingKafka{}
	events := event.NewProducer(rec, logger)

	geo := NewGeographyService(store, logger)
	ledger := NewLedgerService(store, events, logger)
	return &fixture{
		store:       store,
		catalog:     cat,
		kafka:       rec,
		geo:         geo,
		hierarchy:   NewHierarchyService(store, geo, locker, 5*time.Second, events, logger),
		ledger:      ledger,
		assignments: NewAssignmentService(cat, store, ledger, logger),
		resolver:    NewResolver(store, geo, cat, 4, logger),
	}
}

func (f *fixture) nationwide(t *testing.T) int64 {
	t.Helper()
	z, err := f.geo.NationwideZone(context.Background())
	require.NoError(t, err)
	return z.ID
}

// pincodes registers active pincodes without zone membership.
func (f *fixture) pincodes(t *testing.T, codes ...string) {
	t.Helper()
	for _, code := range codes {
		_, err := f.geo.UpsertPincode(context.Background(), domain.Pincode{Code: code, City: "Mumbai", State: "MH", IsActive: true})
		require.NoError(t, err)
	}
}

// zone creates a zone holding codes, registering them first.
func (f *fixture) zone(t *testing.T, name string, codes ...string) int64 {
	t.Helper()
	ctx := context.Background()
	z, err := f.geo.CreateZone(ctx, CreateZoneInput{Name: name})
	require.NoError(t, err)
	if len(codes) > 0 {
		f.pincodes(t, codes...)
		require.NoError(t, f.geo.AssignPincodes(ctx, z.ID, codes))
	}
	return z.ID
}

func (f *fixture) zonal(t *testing.T, name string, zoneIDs ...int64) *domain.Warehouse {
	t.Helper()
	w, err := f.hierarchy.CreateZonal(context.Background(), CreateZonalInput{Name: name, ZoneIDs: zoneIDs})
	require.NoError(t, err)
	return w
}

func (f *fixture) division(t *testing.T, name string, parentID int64, codes ...string) *domain.Warehouse {
	t.Helper()
	w, err := f.hierarchy.CreateDivision(context.Background(), CreateDivisionInput{Name: name, ParentID: parentID, Pincodes: codes})
	require.NoError(t, err)
	return w
}

func (f *fixture) setStock(t *testing.T, warehouseID, productID int64, variantID *int64, qty int) {
	t.Helper()
	_, err := f.ledger.SetStock(context.Background(), domain.StockAssignment{
		StockKey: domain.StockKey{WarehouseID: warehouseID, ProductID: productID, VariantID: variantID},
		Quantity: qty,
	})
	require.NoError(t, err)
}

func ptr[T any](v T) *T { return &v }
