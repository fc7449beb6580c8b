package pricing

import (
	"fmt"

	"storefront/pkg/domain"
)

// Line is anything carrying a unit price and a discount.
type Line interface {
	Prices() (unit, discount domain.Money)
}

// normalize clamps a line so that 0 <= discount <= unit.
func normalize(l Line) (unit, discount domain.Money) {
	unit, discount = l.Prices()
	if unit < 0 {
		unit = 0
	}
	if discount < 0 {
		discount = 0
	}
	if discount > unit {
		discount = unit
	}
	return unit, discount
}

// FinalPrice returns unit price minus discount, never negative.
func FinalPrice(l Line) domain.Money {
	unit, discount := normalize(l)
	return unit - discount
}

// Summarize aggregates lines. Each line counts once: the backend emits one
// line per unit added, so Quantity is not a multiplier here.
func Summarize[L Line](lines []L) domain.Summary {
	var sum domain.Summary
	for _, l := range lines {
		unit, discount := normalize(l)
		sum.Subtotal += unit
		sum.TotalDiscount += discount
	}
	sum.FinalTotal = sum.Subtotal - sum.TotalDiscount
	return sum
}

// MismatchError reports a locally computed summary that disagrees with the backend.
type MismatchError struct {
	Field    string
	Local    domain.Money
	Reported domain.Money
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s mismatch: local %s, reported %s", e.Field, e.Local, e.Reported)
}

// Reconcile compares the fields the backend reports (finalTotal, totalDiscount)
// and returns the first difference larger than tolerance.
func Reconcile(local, reported domain.Summary, tolerance domain.Money) error {
	if tolerance < 0 {
		tolerance = 0
	}
	checks := []struct {
		field           string
		local, reported domain.Money
	}{
		{"finalTotal", local.FinalTotal, reported.FinalTotal},
		{"totalDiscount", local.TotalDiscount, reported.TotalDiscount},
	}
	for _, c := range checks {
		diff := c.local - c.reported
		if diff < 0 {
			diff = -diff
		}
		if diff > tolerance {
			return &MismatchError{Field: c.field, Local: c.local, Reported: c.reported}
		}
	}
	return nil
}

// FromReported builds a summary from the backend's finalTotal and totalDiscount.
func FromReported(finalTotal, totalDiscount domain.Money) domain.Summary {
	return domain.Summary{
		Subtotal:      finalTotal + totalDiscount,
		TotalDiscount: totalDiscount,
		FinalTotal:    finalTotal,
	}
}
