package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigandbest/admin-deployed-sub000/internal/domain"
	"github.com/bigandbest/admin-deployed-sub000/internal/event"
	"github.com/bigandbest/admin-deployed-sub000/internal/lock"
	apperrors "github.com/bigandbest/admin-deployed-sub000/pkg/errors"
)

func TestCreateZonal(t *testing.T) {
	f := newFixture(t)
	west := f.zone(t, "west", "400001")

	w, err := f.hierarchy.CreateZonal(context.Background(), CreateZonalInput{
		Name:    " Mumbai Central ",
		Pincode: "400001",
		ZoneIDs: []int64{west},
	})

	require.NoError(t, err)
	assert.Equal(t, "Mumbai Central", w.Name)
	assert.Equal(t, domain.WarehouseTypeZonal, w.Type)
	assert.Equal(t, []int64{west}, w.ZoneIDs)
	assert.True(t, w.IsActive)
	assert.Equal(t, 1, f.kafka.count(event.TopicWarehouseCreated))
}

func TestCreateZonal_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	west := f.zone(t, "west")
	north := f.zone(t, "north")
	_, err := f.geo.UpdateZone(ctx, north, UpdateZoneInput{IsActive: ptr(false)})
	require.NoError(t, err)

	tests := []struct {
		name  string
		input CreateZonalInput
	}{
		{"no name", CreateZonalInput{ZoneIDs: []int64{west}}},
		{"no zones", CreateZonalInput{Name: "W1"}},
		{"duplicate zone", CreateZonalInput{Name: "W1", ZoneIDs: []int64{west, west}}},
		{"unknown zone", CreateZonalInput{Name: "W1", ZoneIDs: []int64{404}}},
		{"inactive zone", CreateZonalInput{Name: "W1", ZoneIDs: []int64{north}}},
		{"bad address pincode", CreateZonalInput{Name: "W1", Pincode: "01", ZoneIDs: []int64{west}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.hierarchy.CreateZonal(ctx, tt.input)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		})
	}
}

func TestCreateDivision(t *testing.T) {
	f := newFixture(t)
	west := f.zone(t, "west", "400001", "400002")
	w1 := f.zonal(t, "W1", west)

	d, err := f.hierarchy.CreateDivision(context.Background(), CreateDivisionInput{
		Name:     "D1",
		ParentID: w1.ID,
		Pincodes: []string{"400001"},
	})

	require.NoError(t, err)
	assert.Equal(t, domain.WarehouseTypeDivision, d.Type)
	require.NotNil(t, d.ParentWarehouseID)
	assert.Equal(t, w1.ID, *d.ParentWarehouseID)
	assert.Equal(t, []string{"400001"}, d.Pincodes)
}

func TestCreateDivision_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	west := f.zone(t, "west", "400001", "400002")
	f.zone(t, "north", "110001")
	w1 := f.zonal(t, "W1", west)
	d1 := f.division(t, "D1", w1.ID, "400001")

	tests := []struct {
		name    string
		input   CreateDivisionInput
		wantErr error
	}{
		{"missing parent", CreateDivisionInput{Name: "D2", ParentID: 404, Pincodes: []string{"400002"}}, apperrors.ErrInvalidInput},
		{"division parent", CreateDivisionInput{Name: "D2", ParentID: d1.ID, Pincodes: []string{"400002"}}, apperrors.ErrInvalidInput},
		{"no pincodes", CreateDivisionInput{Name: "D2", ParentID: w1.ID}, apperrors.ErrInvalidInput},
		{"duplicate pincode", CreateDivisionInput{Name: "D2", ParentID: w1.ID, Pincodes: []string{"400002", "400002"}}, apperrors.ErrInvalidInput},
		{"outside coverage", CreateDivisionInput{Name: "D2", ParentID: w1.ID, Pincodes: []string{"110001"}}, apperrors.ErrInvalidInput},
		{"unknown pincode", CreateDivisionInput{Name: "D2", ParentID: w1.ID, Pincodes: []string{"999999"}}, apperrors.ErrInvalidInput},
		{"sibling claim", CreateDivisionInput{Name: "D2", ParentID: w1.ID, Pincodes: []string{"400002", "400001"}}, apperrors.ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.hierarchy.CreateDivision(ctx, tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	divisions, err := f.hierarchy.DivisionsOf(ctx, w1.ID)
	require.NoError(t, err)
	assert.Len(t, divisions, 1, "rejected divisions are never written")
}

func TestCreateDivision_SiblingConflictNamesHolder(t *testing.T) {
	f := newFixture(t)
	west := f.zone(t, "west", "400001")
	w1 := f.zonal(t, "W1", west)
	d1 := f.division(t, "D1", w1.ID, "400001")

	_, err := f.hierarchy.CreateDivision(context.Background(), CreateDivisionInput{Name: "D2", ParentID: w1.ID, Pincodes: []string{"400001"}})

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "400001", appErr.Details["pincode"])
	assert.Equal(t, idString(d1.ID), appErr.Details["warehouse_id"])
}

func TestCreateDivision_DifferentParentsMayShareAPincode(t *testing.T) {
	f := newFixture(t)
	west := f.zone(t, "west", "400001")
	w1 := f.zonal(t, "W1", west)
	w2 := f.zonal(t, "W2", west)
	f.division(t, "D1", w1.ID, "400001")

	_, err := f.hierarchy.CreateDivision(context.Background(), CreateDivisionInput{Name: "D2", ParentID: w2.ID, Pincodes: []string{"400001"}})

	assert.NoError(t, err)
}

func TestCreateDivision_NationwideParentCoversEveryPincode(t *testing.T) {
	f := newFixture(t)
	f.pincodes(t, "110001")
	w1 := f.zonal(t, "W1", f.nationwide(t))

	_, err := f.hierarchy.CreateDivision(context.Background(), CreateDivisionInput{Name: "D1", ParentID: w1.ID, Pincodes: []string{"110001"}})

	assert.NoError(t, err)
}

func TestCreateDivision_ConcurrentClaimsAdmitOne(t *testing.T) {
	f := newFixture(t)
	west := f.zone(t, "west", "400001")
	w1 := f.zonal(t, "W1", west)

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.hierarchy.CreateDivision(context.Background(), CreateDivisionInput{
				Name:     "D",
				ParentID: w1.ID,
				Pincodes: []string{"400001"},
			})
		}()
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, apperrors.ErrConflict)
	}
	assert.Equal(t, 1, ok)
}

func TestCreateDivision_RedisLockHeldElsewhere(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	locker := lock.NewRedisLocker(rdb, 100*time.Millisecond)

	f := newFixtureWithLocker(t, locker)
	west := f.zone(t, "west", "400001")
	w1 := f.zonal(t, "W1", west)

	release, err := locker.Obtain(context.Background(), divisionLockKey(w1.ID), time.Minute)
	require.NoError(t, err)

	_, err = f.hierarchy.CreateDivision(context.Background(), CreateDivisionInput{Name: "D1", ParentID: w1.ID, Pincodes: []string{"400001"}})
	require.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Contains(t, err.Error(), "concurrent division change")

	require.NoError(t, release(context.Background()))
	_, err = f.hierarchy.CreateDivision(context.Background(), CreateDivisionInput{Name: "D1", ParentID: w1.ID, Pincodes: []string{"400001"}})
	assert.NoError(t, err)
	assert.False(t, mr.Exists(divisionLockKey(w1.ID)), "lock is released after the write")
}

func TestDivisionsOf(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	west := f.zone(t, "west", "400001", "400002")
	w1 := f.zonal(t, "W1", west)
	d1 := f.division(t, "D1", w1.ID, "400001")
	d2 := f.division(t, "D2", w1.ID, "400002")

	divisions, err := f.hierarchy.DivisionsOf(ctx, w1.ID)
	require.NoError(t, err)
	require.Len(t, divisions, 2)
	assert.Equal(t, d1.ID, divisions[0].ID)
	assert.Equal(t, d2.ID, divisions[1].ID)

	_, err = f.hierarchy.DivisionsOf(ctx, d1.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestSiblingsCovering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	west := f.zone(t, "west", "400001", "400002")
	w1 := f.zonal(t, "W1", west)
	d1 := f.division(t, "D1", w1.ID, "400001")
	d2 := f.division(t, "D2", w1.ID, "400002")

	siblings, err := f.hierarchy.SiblingsCovering(ctx, "400001", d2.ID)
	require.NoError(t, err)
	require.Len(t, siblings, 1)
	assert.Equal(t, d1.ID, siblings[0].ID)

	siblings, err = f.hierarchy.SiblingsCovering(ctx, "400001", d1.ID)
	require.NoError(t, err)
	assert.Empty(t, siblings, "a division is never its own sibling")

	siblings, err = f.hierarchy.SiblingsCovering(ctx, "400002", w1.ID)
	require.NoError(t, err)
	require.Len(t, siblings, 1)
	assert.Equal(t, d2.ID, siblings[0].ID)
}

func TestAvailablePincodesFor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	west := f.zone(t, "west", "400001", "400002", "400003")
	w1 := f.zonal(t, "W1", west)
	d1 := f.division(t, "D1", w1.ID, "400002")

	avail, err := f.hierarchy.AvailablePincodesFor(ctx, w1.ID, nil)
	require.NoError(t, err)
	require.Len(t, avail, 3, "claimed pincodes are marked, not hidden")
	assert.True(t, avail[0].IsAvailable)
	assert.False(t, avail[1].IsAvailable)
	assert.Equal(t, d1.ID, *avail[1].ClaimedBy)
	assert.True(t, avail[2].IsAvailable)

	avail, err = f.hierarchy.AvailablePincodesFor(ctx, w1.ID, &d1.ID)
	require.NoError(t, err)
	assert.True(t, avail[1].IsAvailable, "an edited division sees its own claims as free")

	_, err = f.hierarchy.AvailablePincodesFor(ctx, d1.ID, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestCoverageOfZonal(t *testing.T) {
	f := newFixture(t)
	west := f.zone(t, "west", "400002", "400001")
	north := f.zone(t, "north", "110001")
	w1 := f.zonal(t, "W1", west, north)

	codes, err := f.hierarchy.CoverageOf(context.Background(), w1.ID)

	require.NoError(t, err)
	assert.Equal(t, []string{"110001", "400001", "400002"}, codes)
}

func TestUpdateZonalZones(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	west := f.zone(t, "west", "400001")
	north := f.zone(t, "north", "110001")
	w1 := f.zonal(t, "W1", west)
	f.division(t, "D1", w1.ID, "400001")

	_, err := f.hierarchy.UpdateZonalZones(ctx, w1.ID, []int64{north})
	require.ErrorIs(t, err, apperrors.ErrConflict, "dropping a claimed pincode's zone is refused")

	w, err := f.hierarchy.UpdateZonalZones(ctx, w1.ID, []int64{west, north})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{west, north}, w.ZoneIDs)
}

func TestUpdateDivisionPincodes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	west := f.zone(t, "west", "400001", "400002", "400003")
	w1 := f.zonal(t, "W1", west)
	d1 := f.division(t, "D1", w1.ID, "400001")
	f.division(t, "D2", w1.ID, "400002")

	w, err := f.hierarchy.UpdateDivisionPincodes(ctx, d1.ID, []string{"400001", "400003"})
	require.NoError(t, err)
	assert.Equal(t, []string{"400001", "400003"}, w.Pincodes)

	_, err = f.hierarchy.UpdateDivisionPincodes(ctx, d1.ID, []string{"400002"})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	_, err = f.hierarchy.UpdateDivisionPincodes(ctx, w1.ID, []string{"400003"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestDeleteWarehouse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	west := f.zone(t, "west", "400001")
	w1 := f.zonal(t, "W1", west)
	d1 := f.division(t, "D1", w1.ID, "400001")
	f.setStock(t, d1.ID, 500, nil, 5)

	err := f.hierarchy.Delete(ctx, w1.ID)
	require.ErrorIs(t, err, apperrors.ErrHasDependents)

	require.NoError(t, f.hierarchy.Delete(ctx, d1.ID))
	assert.Equal(t, 1, f.kafka.count(event.TopicWarehouseDeleted))

	avail, err := f.hierarchy.AvailablePincodesFor(ctx, w1.ID, nil)
	require.NoError(t, err)
	assert.True(t, avail[0].IsAvailable, "deleting a division releases its pincodes")

	require.NoError(t, f.hierarchy.Delete(ctx, w1.ID))
	_, err = f.hierarchy.GetWarehouse(ctx, w1.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	err = f.hierarchy.Delete(ctx, w1.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestListWarehouses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	west := f.zone(t, "west", "400001")
	w1 := f.zonal(t, "W1", west)
	f.division(t, "D1", w1.ID, "400001")

	items, total, err := f.hierarchy.ListWarehouses(ctx, domain.WarehouseFilter{Type: domain.WarehouseTypeDivision, Page: 1, PerPage: 20})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "D1", items[0].Name)

	_, _, err = f.hierarchy.ListWarehouses(ctx, domain.WarehouseFilter{Type: "regional"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
