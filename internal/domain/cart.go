package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/platewise/cartpay/internal/money"
	apperrors "github.com/platewise/cartpay/pkg/errors"
)

// CartLine is a single priced line in the cart. Identity is ID; a repeat
// add of the same ID merges by incrementing quantity.
type CartLine struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	UnitPrice      int64           `json:"unit_price"`
	Quantity       int             `json:"quantity"`
	SellerID       string          `json:"seller_id"`
	TaxRatePercent decimal.Decimal `json:"tax_rate_percent"`
}

// Cart is the shopping cart aggregate. All lines share one seller, and
// Totals is recomputed after every mutation so that
// GrandTotal == Subtotal + TotalTax always holds.
type Cart struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	Lines     []CartLine   `json:"lines"`
	Currency  string       `json:"currency"`
	Totals    money.Totals `json:"totals"`
	Version   int          `json:"version"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// Snapshot is an immutable view of the cart taken at checkout time. The
// live cart may keep mutating; checkout operates only on the snapshot.
type Snapshot struct {
	UserID   string
	SellerID string
	Currency string
	Lines    []CartLine
	Totals   money.Totals
	TakenAt  time.Time
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// SellerID returns the seller owning the cart's lines, or "" when empty.
func (c *Cart) SellerID() string {
	if len(c.Lines) == 0 {
		return ""
	}
	return c.Lines[0].SellerID
}

// ItemCount returns the total number of units across all lines.
func (c *Cart) ItemCount() int {
	var count int
	for _, l := range c.Lines {
		count += l.Quantity
	}
	return count
}

// HasLine reports whether the cart holds a line with the given ID.
func (c *Cart) HasLine(id string) bool {
	return c.findLine(id) >= 0
}

func (c *Cart) findLine(id string) int {
	for i := range c.Lines {
		if c.Lines[i].ID == id {
			return i
		}
	}
	return -1
}

// AddLine adds a line to the cart, merging by ID. maxQuantity of 0 means
// no per-line ceiling. A quantity of 0 is a no-op. On any error the cart
// is left unchanged.
func (c *Cart) AddLine(line CartLine, maxQuantity int) error {
	if line.Quantity == 0 {
		return nil
	}
	if line.Quantity < 0 {
		return apperrors.InvalidAmount("quantity must not be negative")
	}
	if line.UnitPrice < 0 {
		return apperrors.InvalidAmount("unit price must not be negative")
	}
	if line.TaxRatePercent.IsNegative() {
		return apperrors.InvalidAmount("tax rate must not be negative")
	}

	if !c.IsEmpty() && line.SellerID != c.SellerID() {
		return apperrors.CrossSellerConflict(c.SellerID(), line.SellerID)
	}

	if i := c.findLine(line.ID); i >= 0 {
		newQty := c.Lines[i].Quantity + line.Quantity
		if maxQuantity > 0 && newQty > maxQuantity {
			return apperrors.QuantityLimitExceeded(line.ID, maxQuantity)
		}
		c.Lines[i].Quantity = newQty
		c.Lines[i].UnitPrice = line.UnitPrice
		c.Lines[i].Name = line.Name
		c.Lines[i].TaxRatePercent = line.TaxRatePercent
	} else {
		if maxQuantity > 0 && line.Quantity > maxQuantity {
			return apperrors.QuantityLimitExceeded(line.ID, maxQuantity)
		}
		c.Lines = append(c.Lines, line)
	}

	return c.recompute()
}

// RemoveLine decrements the quantity of the line with the given ID by
// delta; if the result is zero or less, or delta is 0, the line is dropped
// entirely. Returns ItemNotFound when the ID is absent, leaving the cart
// unchanged.
func (c *Cart) RemoveLine(id string, delta int) error {
	i := c.findLine(id)
	if i < 0 {
		return apperrors.ItemNotFound(id)
	}

	if delta <= 0 || c.Lines[i].Quantity-delta <= 0 {
		c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
	} else {
		c.Lines[i].Quantity -= delta
	}

	return c.recompute()
}

// Clear empties the cart and zeroes the totals. Clearing an already-empty
// cart is a no-op.
func (c *Cart) Clear() {
	c.Lines = c.Lines[:0]
	c.Totals = money.Totals{}
}

// Snapshot returns an immutable copy of the cart's lines and totals for
// the checkout flow.
func (c *Cart) Snapshot() Snapshot {
	lines := make([]CartLine, len(c.Lines))
	copy(lines, c.Lines)
	return Snapshot{
		UserID:   c.UserID,
		SellerID: c.SellerID(),
		Currency: c.Currency,
		Lines:    lines,
		Totals:   c.Totals,
		TakenAt:  time.Now().UTC(),
	}
}

// recompute re-derives the cart totals from the current lines.
func (c *Cart) recompute() error {
	lines := make([]money.Line, len(c.Lines))
	for i, l := range c.Lines {
		lines[i] = money.Line{
			UnitPrice:      l.UnitPrice,
			Quantity:       l.Quantity,
			TaxRatePercent: l.TaxRatePercent,
		}
	}
	totals, err := money.CartTotals(lines)
	if err != nil {
		return err
	}
	c.Totals = totals
	return nil
}
