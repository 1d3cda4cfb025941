package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

// ============================================================================
// Geography
// ============================================================================

func TestIsReservedZoneName(t *testing.T) {
	for _, name := range []string{"nationwide", "ALL", " Global ", "admin", "System"} {
		assert.True(t, IsReservedZoneName(name), name)
	}
	assert.False(t, IsReservedZoneName("west-mumbai"))
}

func TestZoneSet_Intersects(t *testing.T) {
	z := ZoneSet{1, 7}
	assert.True(t, z.Intersects([]int64{3, 7}))
	assert.False(t, z.Intersects([]int64{3, 4}))
	assert.False(t, z.Intersects(nil))
}

func TestPincode_Deliverable(t *testing.T) {
	var missing *Pincode
	assert.False(t, missing.Deliverable())
	assert.False(t, (&Pincode{Code: "400001"}).Deliverable())
	assert.True(t, (&Pincode{Code: "400001", IsActive: true}).Deliverable())
}

// ============================================================================
// Hierarchy invariants
// ============================================================================

func coverage(codes ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		m[c] = struct{}{}
	}
	return m
}

func TestCheckDivisionClaim_Accepts(t *testing.T) {
	siblings := []Warehouse{{ID: 11, Type: WarehouseTypeDivision, Pincodes: []string{"400003"}}}
	v := CheckDivisionClaim([]string{"400001", "400002"}, coverage("400001", "400002", "400003"), siblings)
	assert.True(t, v.Empty())
}

func TestCheckDivisionClaim_OutsideCoverage(t *testing.T) {
	v := CheckDivisionClaim([]string{"400001", "560001"}, coverage("400001"), nil)
	assert.False(t, v.Empty())
	assert.Equal(t, []string{"560001"}, v.OutsideCoverage)
}

func TestCheckDivisionClaim_SiblingConflict(t *testing.T) {
	siblings := []Warehouse{
		{ID: 12, Pincodes: []string{"400001"}},
		{ID: 11, Pincodes: []string{"400005"}},
	}
	v := CheckDivisionClaim([]string{"400002", "400001", "400005"}, coverage("400001", "400002", "400005"), siblings)

	require.False(t, v.Empty())
	assert.Equal(t, []string{"400001", "400005"}, v.ClaimedPincodes())
	assert.Equal(t, []int64{11, 12}, v.ConflictingSiblings())
}

func TestAvailability_MarksClaimedInsteadOfHiding(t *testing.T) {
	divisions := []Warehouse{{ID: 21, Pincodes: []string{"400001"}}}
	got := Availability(coverage("400002", "400001"), divisions)

	require.Len(t, got, 2)
	assert.Equal(t, "400001", got[0].Pincode)
	assert.False(t, got[0].IsAvailable)
	assert.Equal(t, int64(21), *got[0].ClaimedBy)
	assert.Equal(t, PincodeAvailability{Pincode: "400002", IsAvailable: true}, got[1])
}

func TestFirstDuplicate(t *testing.T) {
	_, dup := FirstDuplicate([]string{"400001", "400002"})
	assert.False(t, dup)

	v, dup := FirstDuplicate([]int64{3, 4, 3})
	assert.True(t, dup)
	assert.Equal(t, int64(3), v)
}

func TestWarehouseType_Valid(t *testing.T) {
	assert.True(t, WarehouseTypeZonal.Valid())
	assert.True(t, WarehouseTypeDivision.Valid())
	assert.False(t, WarehouseType("regional").Valid())
}

// ============================================================================
// Ledger and policy
// ============================================================================

func TestStockAssignment_Flags(t *testing.T) {
	s := StockAssignment{Quantity: 5, MinimumThreshold: 5}
	assert.True(t, s.IsLowStock())
	assert.False(t, s.Removes())

	s.Quantity = 0
	assert.True(t, s.Removes())
	assert.False(t, s.IsLowStock())
}

func TestSameVariant(t *testing.T) {
	assert.True(t, SameVariant(nil, nil))
	assert.True(t, SameVariant(ptr[int64](3), ptr[int64](3)))
	assert.False(t, SameVariant(nil, ptr[int64](3)))
	assert.False(t, SameVariant(ptr[int64](2), ptr[int64](3)))
	assert.Equal(t, int64(0), StockKey{}.VariantOrZero())
}

func TestDeliveryPolicy_Admits(t *testing.T) {
	z := ZoneSet{1, 5}

	assert.True(t, DeliveryPolicy{DeliveryType: DeliveryNationwide, AllowedZoneIDs: []int64{9}}.Admits(z))
	assert.True(t, DeliveryPolicy{DeliveryType: DeliveryZonal}.Admits(z))
	assert.True(t, DeliveryPolicy{DeliveryType: DeliveryZonal, AllowedZoneIDs: []int64{5}}.Admits(z))
	assert.False(t, DeliveryPolicy{DeliveryType: DeliveryZonal, AllowedZoneIDs: []int64{9}}.Admits(z))
}

func TestDeliveryPolicy_HasVariant(t *testing.T) {
	p := DeliveryPolicy{VariantIDs: []int64{10, 11}}
	assert.True(t, p.HasVariant(nil))
	assert.True(t, p.HasVariant(ptr[int64](11)))
	assert.False(t, p.HasVariant(ptr[int64](12)))
}

// ============================================================================
// Assignment rules and wizard
// ============================================================================

func zonalLine(id int64, qty int) AssignmentLine {
	return AssignmentLine{WarehouseID: id, WarehouseType: WarehouseTypeZonal, Quantity: qty, CostPerUnit: decimal.NewFromInt(10)}
}

func divisionLine(id int64, qty int) AssignmentLine {
	return AssignmentLine{WarehouseID: id, WarehouseType: WarehouseTypeDivision, Quantity: qty}
}

func TestValidateStep_Basic(t *testing.T) {
	assert.Equal(t, msgSelectProduct, ValidateStep(StepBasic, Draft{}))
	assert.Equal(t, msgDeliveryType, ValidateStep(StepBasic, Draft{ProductID: ptr[int64](1)}))
	assert.Empty(t, ValidateStep(StepBasic, Draft{}.WithProduct(1, DeliveryZonal)))
}

func TestValidateStep_ZonalOnlyBindsNationwide(t *testing.T) {
	zonal := Draft{}.WithProduct(1, DeliveryZonal)
	assert.Empty(t, ValidateStep(StepZonal, zonal))

	nationwide := Draft{}.WithProduct(1, DeliveryNationwide).WithLine(divisionLine(2, 4))
	assert.Equal(t, msgZonalRequired, ValidateStep(StepZonal, nationwide))
	assert.Empty(t, ValidateStep(StepZonal, nationwide.WithLine(zonalLine(1, 3))))
}

func TestValidateStep_DivisionAndReviewNeedPositiveStock(t *testing.T) {
	d := Draft{}.WithProduct(1, DeliveryZonal).WithLine(zonalLine(1, 0))
	assert.Equal(t, msgAnyStock, ValidateStep(StepDivision, d))
	assert.Equal(t, msgAnyStock, ValidateStep(StepReview, d))

	d = d.WithLine(divisionLine(2, 1))
	assert.Empty(t, ValidateStep(StepDivision, d))
	assert.Empty(t, ValidateStep(StepReview, d))
}

func TestValidateStep_RejectsNegativeAmounts(t *testing.T) {
	line := zonalLine(1, 5)
	line.CostPerUnit = decimal.NewFromInt(-1)
	d := Draft{}.WithProduct(1, DeliveryNationwide).WithLine(line)
	assert.Equal(t, msgNegativeAmount, ValidateStep(StepDivision, d))
}

func TestValidateStep_NegativeQuantityRemovesLine(t *testing.T) {
	d := Draft{}.WithProduct(1, DeliveryZonal).WithLine(zonalLine(1, -2)).WithLine(divisionLine(2, 3))
	assert.Empty(t, ValidateStep(StepDivision, d))
	assert.Empty(t, ValidateStep(StepReview, d))

	d = d.WithoutLine(2)
	assert.Equal(t, msgAnyStock, ValidateStep(StepReview, d), "a negative line is not stock")
}

func TestDraft_EditsDoNotAlias(t *testing.T) {
	base := Draft{}.WithProduct(1, DeliveryZonal).WithLine(zonalLine(1, 5))
	edited := base.WithLine(zonalLine(1, 9)).WithLine(divisionLine(2, 1))

	assert.Equal(t, 5, base.Lines[0].Quantity)
	require.Len(t, base.Lines, 1)
	assert.Equal(t, 9, edited.Lines[0].Quantity)
	require.Len(t, edited.Lines, 2)

	removed := edited.WithoutLine(1)
	require.Len(t, removed.Lines, 1)
	require.Len(t, edited.Lines, 2)
}

func TestWizard_NextIsGatedByCurrentStep(t *testing.T) {
	w := NewWizard(Draft{})

	w, v := w.Next()
	assert.Equal(t, StepBasic, w.Step())
	assert.Equal(t, Violations{StepBasic: msgSelectProduct}, v)

	w = w.Edit(func(d Draft) Draft { return d.WithProduct(7, DeliveryNationwide) })
	w, v = w.Next()
	require.True(t, v.OK())
	assert.Equal(t, StepZonal, w.Step())

	w, v = w.Next()
	assert.Equal(t, StepZonal, w.Step())
	assert.Contains(t, v, StepZonal)
}

func TestWizard_BackNeverValidates(t *testing.T) {
	w := ResumeWizard(StepDivision, Draft{})
	w = w.Back()
	assert.Equal(t, StepZonal, w.Step())
	w = w.Back().Back()
	assert.Equal(t, StepBasic, w.Step())
}

func TestWizard_GotoForwardStopsAtFirstFailure(t *testing.T) {
	d := Draft{}.WithProduct(7, DeliveryNationwide).WithLine(divisionLine(2, 3))
	w, v := NewWizard(d).Goto(StepReview)

	assert.Equal(t, StepZonal, w.Step())
	assert.Equal(t, Violations{StepZonal: msgZonalRequired}, v)

	w = w.Edit(func(d Draft) Draft { return d.WithLine(zonalLine(1, 4)) })
	w, v = w.Goto(StepReview)
	assert.True(t, v.OK())
	assert.Equal(t, StepReview, w.Step())

	w, v = w.Goto(StepBasic)
	assert.True(t, v.OK())
	assert.Equal(t, StepBasic, w.Step())

	_, v = w.Goto("shipping")
	assert.Contains(t, v, StepBasic)
}

func TestWizard_SubmitReturnsToEarliestFailure(t *testing.T) {
	w := ResumeWizard(StepReview, Draft{}.WithProduct(7, DeliveryZonal))

	w, committed, v := w.Submit()
	assert.Equal(t, StepDivision, w.Step())
	assert.Nil(t, committed.ProductID)
	assert.Contains(t, v, StepDivision)
	assert.Contains(t, v, StepReview)

	w = w.Edit(func(d Draft) Draft { return d.WithLine(divisionLine(3, 2)) })
	_, committed, v = w.Submit()
	assert.True(t, v.OK())
	assert.Equal(t, int64(7), *committed.ProductID)
}

func TestWizard_NextAtReviewStays(t *testing.T) {
	d := Draft{}.WithProduct(7, DeliveryZonal).WithLine(zonalLine(1, 1))
	w, v := ResumeWizard(StepReview, d).Next()
	assert.True(t, v.OK())
	assert.Equal(t, StepReview, w.Step())

	assert.Equal(t, StepBasic, ResumeWizard("bogus", d).Step())
}
