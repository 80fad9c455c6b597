package domain

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/platewise/cartpay/pkg/errors"
)

func line(id string, price int64, qty int, seller, taxRate string) CartLine {
	return CartLine{
		ID:             id,
		Name:           "item " + id,
		UnitPrice:      price,
		Quantity:       qty,
		SellerID:       seller,
		TaxRatePercent: decimal.RequireFromString(taxRate),
	}
}

func TestCart_AddLine_TotalsExample(t *testing.T) {
	cart := &Cart{UserID: "u1", Currency: "INR"}

	require.NoError(t, cart.AddLine(line("A1", 100, 2, "S1", "5"), 0))
	assert.Equal(t, int64(200), cart.Totals.Subtotal)
	assert.Equal(t, int64(10), cart.Totals.TotalTax)
	assert.Equal(t, int64(210), cart.Totals.GrandTotal)

	// Repeat add of the same id merges by quantity.
	require.NoError(t, cart.AddLine(line("A1", 100, 1, "S1", "5"), 0))
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, 3, cart.Lines[0].Quantity)
	assert.Equal(t, int64(300), cart.Totals.Subtotal)
	assert.Equal(t, int64(15), cart.Totals.TotalTax)
	assert.Equal(t, int64(315), cart.Totals.GrandTotal)

	// A different seller's item is rejected without mutating the cart.
	err := cart.AddLine(line("B1", 50, 1, "S2", "5"), 0)
	assert.ErrorIs(t, err, apperrors.ErrCrossSellerConflict)
	assert.Equal(t, 3, cart.ItemCount())
	assert.Equal(t, int64(315), cart.Totals.GrandTotal)
}

func TestCart_AddLine_QuantityZeroIsNoOp(t *testing.T) {
	cart := &Cart{UserID: "u1"}

	require.NoError(t, cart.AddLine(line("A1", 100, 0, "S1", "5"), 0))
	assert.True(t, cart.IsEmpty())
}

func TestCart_AddLine_NegativeValues(t *testing.T) {
	cart := &Cart{UserID: "u1"}

	assert.ErrorIs(t, cart.AddLine(line("A1", -1, 1, "S1", "5"), 0), apperrors.ErrInvalidAmount)
	assert.ErrorIs(t, cart.AddLine(line("A1", 100, -1, "S1", "5"), 0), apperrors.ErrInvalidAmount)
	assert.ErrorIs(t, cart.AddLine(line("A1", 100, 1, "S1", "-5"), 0), apperrors.ErrInvalidAmount)
	assert.True(t, cart.IsEmpty())
}

func TestCart_AddLine_QuantityCeiling(t *testing.T) {
	cart := &Cart{UserID: "u1"}

	require.NoError(t, cart.AddLine(line("A1", 100, 4, "S1", "5"), 5))

	err := cart.AddLine(line("A1", 100, 2, "S1", "5"), 5)
	assert.ErrorIs(t, err, apperrors.ErrQuantityLimit)
	assert.Equal(t, 4, cart.Lines[0].Quantity)
	assert.Equal(t, int64(400), cart.Totals.Subtotal)

	// A fresh line above the ceiling is also rejected.
	err = cart.AddLine(line("B1", 100, 6, "S1", "5"), 5)
	assert.ErrorIs(t, err, apperrors.ErrQuantityLimit)
	require.Len(t, cart.Lines, 1)
}

func TestCart_AddLine_SameSellerSecondLine(t *testing.T) {
	cart := &Cart{UserID: "u1"}

	require.NoError(t, cart.AddLine(line("A1", 100, 1, "S1", "5"), 0))
	require.NoError(t, cart.AddLine(line("A2", 200, 1, "S1", "12"), 0))
	assert.Len(t, cart.Lines, 2)
	assert.Equal(t, "S1", cart.SellerID())
}

func TestCart_RemoveLine(t *testing.T) {
	cart := &Cart{UserID: "u1"}
	require.NoError(t, cart.AddLine(line("A1", 100, 3, "S1", "5"), 0))

	// Decrement by one.
	require.NoError(t, cart.RemoveLine("A1", 1))
	assert.Equal(t, 2, cart.Lines[0].Quantity)
	assert.Equal(t, int64(200), cart.Totals.Subtotal)

	// Decrementing past zero drops the line.
	require.NoError(t, cart.RemoveLine("A1", 5))
	assert.True(t, cart.IsEmpty())
	assert.Equal(t, int64(0), cart.Totals.GrandTotal)
}

func TestCart_RemoveLine_DeltaZeroDropsLine(t *testing.T) {
	cart := &Cart{UserID: "u1"}
	require.NoError(t, cart.AddLine(line("A1", 100, 3, "S1", "5"), 0))

	require.NoError(t, cart.RemoveLine("A1", 0))
	assert.True(t, cart.IsEmpty())
}

func TestCart_RemoveLine_NotFound(t *testing.T) {
	cart := &Cart{UserID: "u1"}
	require.NoError(t, cart.AddLine(line("A1", 100, 1, "S1", "5"), 0))

	err := cart.RemoveLine("missing", 1)
	assert.ErrorIs(t, err, apperrors.ErrItemNotFound)
	assert.Equal(t, 1, cart.ItemCount())
}

func TestCart_Clear_Idempotent(t *testing.T) {
	cart := &Cart{UserID: "u1"}
	require.NoError(t, cart.AddLine(line("A1", 100, 2, "S1", "5"), 0))

	cart.Clear()
	assert.True(t, cart.IsEmpty())
	assert.Equal(t, int64(0), cart.Totals.GrandTotal)

	// Clearing again is a no-op.
	cart.Clear()
	assert.True(t, cart.IsEmpty())
}

func TestCart_Snapshot_Immutable(t *testing.T) {
	cart := &Cart{UserID: "u1", Currency: "INR"}
	require.NoError(t, cart.AddLine(line("A1", 100, 2, "S1", "5"), 0))

	snap := cart.Snapshot()
	require.NoError(t, cart.AddLine(line("A1", 100, 1, "S1", "5"), 0))
	cart.Clear()

	assert.Equal(t, "u1", snap.UserID)
	assert.Equal(t, "S1", snap.SellerID)
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, 2, snap.Lines[0].Quantity)
	assert.Equal(t, int64(210), snap.Totals.GrandTotal)
}

// Totals identity: grand total equals subtotal plus tax after every
// mutation, across random add/remove sequences.
func TestCart_TotalsIdentity_RandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ids := []string{"A", "B", "C", "D"}
	rates := []string{"0", "5", "12", "18"}

	for seq := 0; seq < 50; seq++ {
		cart := &Cart{UserID: "u1"}
		for op := 0; op < 30; op++ {
			id := ids[rng.Intn(len(ids))]
			if rng.Intn(3) == 0 {
				_ = cart.RemoveLine(id, rng.Intn(3))
			} else {
				_ = cart.AddLine(line(id, int64(rng.Intn(500)), rng.Intn(4), "S1", rates[rng.Intn(len(rates))]), 0)
			}

			assert.Equal(t, cart.Totals.Subtotal+cart.Totals.TotalTax, cart.Totals.GrandTotal)

			var wantSubtotal int64
			for _, l := range cart.Lines {
				wantSubtotal += l.UnitPrice * int64(l.Quantity)
			}
			assert.Equal(t, wantSubtotal, cart.Totals.Subtotal)
		}
	}
}

func TestCart_SingleSellerInvariant(t *testing.T) {
	cart := &Cart{UserID: "u1"}
	sellers := []string{"S1", "S2", "S3"}
	rng := rand.New(rand.NewSource(7))

	for op := 0; op < 100; op++ {
		s := sellers[rng.Intn(len(sellers))]
		_ = cart.AddLine(line("item-"+s, 100, 1, s, "5"), 0)

		for _, l := range cart.Lines {
			assert.Equal(t, cart.SellerID(), l.SellerID)
		}
	}
}
