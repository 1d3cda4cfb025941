package domain

import (
	"slices"

	"github.com/shopspring/decimal"
)

// Step is a state of the stock assignment workflow.
type Step string

const (
	StepBasic    Step = "basic"
	StepZonal    Step = "zonal"
	StepDivision Step = "division"
	StepReview   Step = "review"
)

// Steps lists the workflow states in order.
var Steps = []Step{StepBasic, StepZonal, StepDivision, StepReview}

func (s Step) index() int { return slices.Index(Steps, s) }

// Valid reports whether s is a workflow step.
func (s Step) Valid() bool { return s.index() >= 0 }

// AssignmentLine is one warehouse's stock in a draft.
type AssignmentLine struct {
	WarehouseID      int64           `json:"warehouse_id"`
	WarehouseType    WarehouseType   `json:"warehouse_type"`
	VariantID        *int64          `json:"variant_id,omitempty"`
	Quantity         int             `json:"quantity"`
	MinimumThreshold int             `json:"minimum_threshold"`
	CostPerUnit      decimal.Decimal `json:"cost_per_unit"`
}

// Draft is the uncommitted content of an assignment workflow. It is a value:
// the With methods return modified copies and never touch the receiver.
type Draft struct {
	ProductID    *int64           `json:"product_id,omitempty"`
	DeliveryType DeliveryType     `json:"delivery_type,omitempty"`
	Lines        []AssignmentLine `json:"lines,omitempty"`
}

// WithProduct returns a copy with the product and its delivery type set.
func (d Draft) WithProduct(productID int64, deliveryType DeliveryType) Draft {
	d.ProductID = &productID
	d.DeliveryType = deliveryType
	d.Lines = slices.Clone(d.Lines)
	return d
}

// WithLine returns a copy where line replaces any line for the same warehouse
// and variant, or is appended.
func (d Draft) WithLine(line AssignmentLine) Draft {
	d.Lines = slices.Clone(d.Lines)
	for i, l := range d.Lines {
		if l.WarehouseID == line.WarehouseID && SameVariant(l.VariantID, line.VariantID) {
			d.Lines[i] = line
			return d
		}
	}
	d.Lines = append(d.Lines, line)
	return d
}

// WithoutLine returns a copy without lines for warehouseID.
func (d Draft) WithoutLine(warehouseID int64) Draft {
	d.Lines = slices.DeleteFunc(slices.Clone(d.Lines), func(l AssignmentLine) bool {
		return l.WarehouseID == warehouseID
	})
	return d
}

func (d Draft) positiveLines(tier WarehouseType) int {
	n := 0
	for _, l := range d.Lines {
		if l.Quantity > 0 && (tier == "" || l.WarehouseType == tier) {
			n++
		}
	}
	return n
}

// Violations maps a step to the reason it cannot be left. An empty map
// means the checked steps pass.
type Violations map[Step]string

// OK reports whether there are no violations.
func (v Violations) OK() bool { return len(v) == 0 }

const (
	msgSelectProduct  = "select a product before continuing"
	msgDeliveryType   = "the product's delivery type must be set to nationwide or zonal"
	msgZonalRequired  = "nationwide products need stock in at least one zonal warehouse"
	msgAnyStock       = "assign a positive quantity to at least one warehouse"
	msgNegativeAmount = "thresholds and unit costs cannot be negative"
)

// ValidateStep applies the rule of one step to d and returns the message,
// or "" when the step passes.
func ValidateStep(step Step, d Draft) string {
	switch step {
	case StepBasic:
		if d.ProductID == nil {
			return msgSelectProduct
		}
		if !d.DeliveryType.Valid() {
			return msgDeliveryType
		}
	case StepZonal:
		if d.DeliveryType == DeliveryNationwide && d.positiveLines(WarehouseTypeZonal) == 0 {
			return msgZonalRequired
		}
		if d.hasNegative() {
			return msgNegativeAmount
		}
	case StepDivision, StepReview:
		if d.positiveLines("") == 0 {
			return msgAnyStock
		}
		if d.hasNegative() {
			return msgNegativeAmount
		}
	}
	return ""
}

// hasNegative ignores quantities: a line at or below zero removes the row.
func (d Draft) hasNegative() bool {
	for _, l := range d.Lines {
		if l.MinimumThreshold < 0 || l.CostPerUnit.IsNegative() {
			return true
		}
	}
	return false
}

// Validate checks step against d. It never fails; problems are returned as
// messages keyed by step.
func Validate(step Step, d Draft) Violations {
	v := Violations{}
	if msg := ValidateStep(step, d); msg != "" {
		v[step] = msg
	}
	return v
}

// ValidateAll checks every step, the final review rule included.
func ValidateAll(d Draft) Violations {
	v := Violations{}
	for _, s := range Steps {
		if msg := ValidateStep(s, d); msg != "" {
			v[s] = msg
		}
	}
	return v
}

// Wizard is the assignment workflow state machine. Forward transitions are
// gated by the rule of every step being left; backward transitions always
// succeed and validate nothing. Wizard is a value and every transition
// returns the next state.
type Wizard struct {
	step  Step
	draft Draft
}

// NewWizard starts a workflow at the basic step.
func NewWizard(d Draft) Wizard {
	return Wizard{step: StepBasic, draft: d}
}

// ResumeWizard rebuilds a workflow at step without validating it. An unknown
// step restarts at basic.
func ResumeWizard(step Step, d Draft) Wizard {
	if !step.Valid() {
		step = StepBasic
	}
	return Wizard{step: step, draft: d}
}

// Step returns the current state.
func (w Wizard) Step() Step { return w.step }

// Draft returns the carried draft.
func (w Wizard) Draft() Draft { return w.draft }

// Edit replaces the draft without validating or moving.
func (w Wizard) Edit(fn func(Draft) Draft) Wizard {
	w.draft = fn(w.draft)
	return w
}

// Next validates the current step and advances when it passes. At review
// there is nowhere to go and the wizard stays put.
func (w Wizard) Next() (Wizard, Violations) {
	v := Validate(w.step, w.draft)
	if !v.OK() {
		return w, v
	}
	if i := w.step.index(); i < len(Steps)-1 {
		w.step = Steps[i+1]
	}
	return w, v
}

// Back moves to the previous step unconditionally.
func (w Wizard) Back() Wizard {
	if i := w.step.index(); i > 0 {
		w.step = Steps[i-1]
	}
	return w
}

// Goto jumps to target. Moving backward never validates; moving forward
// validates each step being left and stops at the first one that fails.
func (w Wizard) Goto(target Step) (Wizard, Violations) {
	to := target.index()
	if to < 0 {
		return w, Violations{w.step: "unknown step " + string(target)}
	}
	for w.step.index() < to {
		next, v := w.Next()
		if !v.OK() {
			return next, v
		}
		w = next
	}
	w.step = target
	return w, Violations{}
}

// Submit applies every rule, the final gate included. On failure the wizard
// moves back to the earliest failing step; on success the draft is returned
// for commit.
func (w Wizard) Submit() (Wizard, Draft, Violations) {
	v := ValidateAll(w.draft)
	if v.OK() {
		return w, w.draft, v
	}
	for _, s := range Steps {
		if _, failed := v[s]; failed {
			w.step = s
			break
		}
	}
	return w, Draft{}, v
}
