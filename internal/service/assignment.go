package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bigandbest/admin-deployed-sub000/internal/catalog"
	"github.com/bigandbest/admin-deployed-sub000/internal/domain"
	"github.com/bigandbest/admin-deployed-sub000/internal/repository"
	apperrors "github.com/bigandbest/admin-deployed-sub000/pkg/errors"
)

// Wizard actions accepted by Transition.
const (
	ActionNext = "next"
	ActionBack = "back"
	ActionGoto = "goto"
)

// AssignmentService drives the stock assignment workflow. The workflow state
// is carried by the client; every call is given the current step and draft.
type AssignmentService struct {
	catalog    catalog.Catalog
	warehouses repository.WarehouseRepository
	ledger     *LedgerService
	logger     *slog.Logger
}

// NewAssignmentService creates a new assignment service.
func NewAssignmentService(cat catalog.Catalog, store Store, ledger *LedgerService, logger *slog.Logger) *AssignmentService {
	return &AssignmentService{
		catalog:    cat,
		warehouses: store.Warehouses(),
		ledger:     ledger,
		logger:     logger,
	}
}

// TransitionResult is the workflow state after a transition.
type TransitionResult struct {
	Step       domain.Step       `json:"step"`
	Draft      domain.Draft      `json:"draft"`
	Violations domain.Violations `json:"violations"`
}

// SubmitResult reports a submission. When Violations is not empty nothing
// was written and Step is the earliest failing step.
type SubmitResult struct {
	Step       domain.Step       `json:"step"`
	Violations domain.Violations `json:"violations"`
	Applied    int               `json:"applied"`
	Removed    int               `json:"removed"`
}

// Validate checks one step of draft, or every step when step is empty.
func (s *AssignmentService) Validate(step domain.Step, draft domain.Draft) (domain.Violations, error) {
	if step == "" {
		return domain.ValidateAll(draft), nil
	}
	if !step.Valid() {
		return nil, apperrors.InvalidInput("unknown step " + string(step))
	}
	return domain.Validate(step, draft), nil
}

// Transition applies a wizard action from step.
func (s *AssignmentService) Transition(step domain.Step, action string, target domain.Step, draft domain.Draft) (*TransitionResult, error) {
	if !step.Valid() {
		return nil, apperrors.InvalidInput("unknown step " + string(step))
	}
	w := domain.ResumeWizard(step, draft)
	v := domain.Violations{}

	switch action {
	case ActionNext:
		w, v = w.Next()
	case ActionBack:
		w = w.Back()
	case ActionGoto:
		if !target.Valid() {
			return nil, apperrors.InvalidInput("unknown target step " + string(target))
		}
		w, v = w.Goto(target)
	default:
		return nil, apperrors.InvalidInput("action must be next, back or goto")
	}

	return &TransitionResult{Step: w.Step(), Draft: w.Draft(), Violations: v}, nil
}

// Submit runs the final gate and commits the draft's lines to the ledger in
// one batch.
func (s *AssignmentService) Submit(ctx context.Context, step domain.Step, draft domain.Draft) (*SubmitResult, error) {
	w, final, v := domain.ResumeWizard(step, draft).Submit()
	if !v.OK() {
		return &SubmitResult{Step: w.Step(), Violations: v}, nil
	}

	if err := s.checkAgainstCatalog(ctx, final); err != nil {
		return nil, err
	}
	if err := s.checkWarehouses(ctx, final); err != nil {
		return nil, err
	}

	rows := make([]domain.StockAssignment, 0, len(final.Lines))
	result := &SubmitResult{Step: w.Step(), Violations: v}
	for _, l := range final.Lines {
		rows = append(rows, domain.StockAssignment{
			StockKey: domain.StockKey{
				WarehouseID: l.WarehouseID,
				ProductID:   *final.ProductID,
				VariantID:   l.VariantID,
			},
			Quantity:         l.Quantity,
			MinimumThreshold: l.MinimumThreshold,
			CostPerUnit:      l.CostPerUnit,
		})
		if l.Quantity > 0 {
			result.Applied++
		} else {
			result.Removed++
		}
	}

	if _, err := s.ledger.SetMany(ctx, rows); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "stock assignment submitted",
		slog.Int64("product_id", *final.ProductID),
		slog.Int("applied", result.Applied),
		slog.Int("removed", result.Removed),
	)
	return result, nil
}

func (s *AssignmentService) checkAgainstCatalog(ctx context.Context, d domain.Draft) error {
	policy, err := s.catalog.Policy(ctx, *d.ProductID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return apperrors.InvalidInput(fmt.Sprintf("product %d does not exist", *d.ProductID)).
				WithDetail("product_id", idString(*d.ProductID))
		}
		return fmt.Errorf("get delivery policy: %w", err)
	}
	if policy.DeliveryType != d.DeliveryType {
		return apperrors.InvalidInput(fmt.Sprintf("product %d is %s, not %s", *d.ProductID, policy.DeliveryType, d.DeliveryType))
	}
	for _, l := range d.Lines {
		if !policy.HasVariant(l.VariantID) {
			return apperrors.InvalidInput(fmt.Sprintf("variant %d does not belong to product %d", *l.VariantID, *d.ProductID)).
				WithDetail("variant_id", idString(*l.VariantID))
		}
	}
	return nil
}

func (s *AssignmentService) checkWarehouses(ctx context.Context, d domain.Draft) error {
	type lineKey struct{ warehouse, variant int64 }
	seen := make(map[lineKey]struct{}, len(d.Lines))
	for _, l := range d.Lines {
		k := lineKey{l.WarehouseID, domain.StockKey{VariantID: l.VariantID}.VariantOrZero()}
		if _, dup := seen[k]; dup {
			return apperrors.InvalidInput(fmt.Sprintf("warehouse %d appears twice for the same variant", l.WarehouseID)).
				WithDetail("warehouse_id", idString(l.WarehouseID))
		}
		seen[k] = struct{}{}

		w, err := s.warehouses.GetByID(ctx, l.WarehouseID)
		if err != nil {
			if apperrors.IsNotFound(err) {
				return apperrors.InvalidInput(fmt.Sprintf("warehouse %d does not exist", l.WarehouseID)).
					WithDetail("warehouse_id", idString(l.WarehouseID))
			}
			return fmt.Errorf("get warehouse: %w", err)
		}
		if w.Type != l.WarehouseType {
			return apperrors.InvalidInput(fmt.Sprintf("warehouse %d is %s, not %s", w.ID, w.Type, l.WarehouseType)).
				WithDetail("warehouse_id", idString(w.ID))
		}
	}
	return nil
}
