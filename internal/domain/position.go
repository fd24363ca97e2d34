package domain

import (
	"fmt"
	"math"
)

// Side identifies one leg of a binary contract pair.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// Opposite returns the other leg of the pair.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// Valid reports whether s is one of the two recognised sides.
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// Position is the running ledger for one side of a binary pair: shares held
// and total dollars spent, net of sells.
type Position struct {
	Quantity float64
	Cost     float64
}

// AvgPrice returns cost per share, or 0 when nothing is held. Callers that
// need an effective price for an unheld side must substitute the live market
// mid, never a fixed default.
func (p Position) AvgPrice() float64 {
	if p.Quantity <= 0 {
		return 0
	}
	return p.Cost / p.Quantity
}

// PairPosition owns exactly one Position per side of a contract pair. It is
// mutated only through ApplyFill, inside a single decision step; there are
// no concurrent writers.
type PairPosition struct {
	Yes Position
	No  Position
}

// Get returns the position for one side.
func (pp PairPosition) Get(side Side) Position {
	if side == SideYes {
		return pp.Yes
	}
	return pp.No
}

// ApplyFill records a confirmed fill on one side. Fills with non-positive
// quantity or a price outside (0,1) violate the ledger invariants and are
// rejected before any state changes.
func (pp *PairPosition) ApplyFill(side Side, quantity, price float64) error {
	if !side.Valid() {
		return fmt.Errorf("ledger: %w: side %q", ErrInvalidFill, side)
	}
	if quantity <= 0 {
		return fmt.Errorf("ledger: %w: quantity %.4f must be positive", ErrInvalidFill, quantity)
	}
	if price <= 0 || price >= 1 {
		return fmt.Errorf("ledger: %w: price %.4f outside (0,1)", ErrInvalidFill, price)
	}

	pos := pp.Get(side)
	pos.Quantity += quantity
	pos.Cost += price * quantity
	pp.set(side, pos)
	return nil
}

// ApplyReduce records a confirmed sell on one side. Quantity shrinks by the
// sold amount and cost shrinks proportionally at the side's average price,
// keeping the average intact. Reductions beyond the held quantity are
// rejected before any state changes.
func (pp *PairPosition) ApplyReduce(side Side, quantity float64) error {
	if !side.Valid() {
		return fmt.Errorf("ledger: %w: side %q", ErrInvalidFill, side)
	}
	if quantity <= 0 {
		return fmt.Errorf("ledger: %w: quantity %.4f must be positive", ErrInvalidFill, quantity)
	}

	pos := pp.Get(side)
	if quantity > pos.Quantity {
		return fmt.Errorf("ledger: %w: reduce %.4f exceeds held %.4f", ErrInvalidFill, quantity, pos.Quantity)
	}

	avg := pos.AvgPrice()
	pos.Quantity -= quantity
	pos.Cost -= avg * quantity
	if pos.Quantity <= 0 {
		pos = Position{}
	}
	pp.set(side, pos)
	return nil
}

func (pp *PairPosition) set(side Side, pos Position) {
	if side == SideYes {
		pp.Yes = pos
	} else {
		pp.No = pos
	}
}

// PairCost is the sum of the two sides' effective average prices, where the
// effective price of an unheld side is the live market mid supplied by the
// caller at evaluation time. It is recomputed on every query because mids
// move continuously.
func (pp PairPosition) PairCost(midYes, midNo float64) float64 {
	return pp.effectivePrice(pp.Yes, midYes) + pp.effectivePrice(pp.No, midNo)
}

func (pp PairPosition) effectivePrice(pos Position, mid float64) float64 {
	if pos.Quantity > 0 {
		return pos.AvgPrice()
	}
	return mid
}

// MinQuantity returns the smaller side's quantity, the guaranteed payout of
// the hedge.
func (pp PairPosition) MinQuantity() float64 {
	return math.Min(pp.Yes.Quantity, pp.No.Quantity)
}

// TotalCost returns total dollars committed across both sides.
func (pp PairPosition) TotalCost() float64 {
	return pp.Yes.Cost + pp.No.Cost
}

// IsProfitable reports whether the smaller side's guaranteed $1-per-share
// payout alone exceeds total spend, locking profit regardless of outcome.
func (pp PairPosition) IsProfitable() bool {
	minQty := pp.MinQuantity()
	return minQty > 0 && minQty > pp.TotalCost()
}

// ImbalanceRatio is the relative size mismatch between the two sides,
// |qYes-qNo| / max(qYes,qNo), and 0 when both sides are flat.
func (pp PairPosition) ImbalanceRatio() float64 {
	larger := math.Max(pp.Yes.Quantity, pp.No.Quantity)
	if larger <= 0 {
		return 0
	}
	return math.Abs(pp.Yes.Quantity-pp.No.Quantity) / larger
}

// LargerSide returns the side holding strictly more shares, or nil when the
// book is balanced. Used by the unhedged-duration tracker.
func (pp PairPosition) LargerSide() *Side {
	switch {
	case pp.Yes.Quantity > pp.No.Quantity:
		s := SideYes
		return &s
	case pp.No.Quantity > pp.Yes.Quantity:
		s := SideNo
		return &s
	default:
		return nil
	}
}
