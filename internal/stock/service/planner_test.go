package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gestipharm/gestipharm-backend/internal/stock/repository"
)

func testLot(id string, quantity int, expiryDays int) *repository.Lot {
	return &repository.Lot{
		ID:              id,
		LotNumber:       "LOT-" + id,
		InitialQuantity: quantity,
		CurrentQuantity: quantity,
		ExpiryDate:      time.Now().AddDate(0, 0, expiryDays),
		Status:          repository.LotStatusInStock,
	}
}

func TestAllocateDrainsEarliestLotFirst(t *testing.T) {
	lots := []*repository.Lot{
		testLot("a", 5, 10),
		testLot("b", 5, 20),
		testLot("c", 5, 30),
	}

	lines, allocated := allocate(lots, 7)

	assert.Equal(t, 7, allocated)
	assert.Len(t, lines, 2)
	assert.Equal(t, "a", lines[0].LotID)
	assert.Equal(t, 5, lines[0].Quantity)
	assert.Equal(t, "b", lines[1].LotID)
	assert.Equal(t, 2, lines[1].Quantity)
}

func TestAllocateExactFit(t *testing.T) {
	lots := []*repository.Lot{
		testLot("a", 5, 10),
		testLot("b", 3, 20),
	}

	lines, allocated := allocate(lots, 8)

	assert.Equal(t, 8, allocated)
	assert.Len(t, lines, 2)
	assert.Equal(t, 5, lines[0].Quantity)
	assert.Equal(t, 3, lines[1].Quantity)
}

func TestAllocateSingleLotCoversRequest(t *testing.T) {
	lots := []*repository.Lot{
		testLot("a", 10, 10),
		testLot("b", 10, 20),
	}

	lines, allocated := allocate(lots, 4)

	assert.Equal(t, 4, allocated)
	assert.Len(t, lines, 1)
	assert.Equal(t, "a", lines[0].LotID)
	assert.Equal(t, 4, lines[0].Quantity)
}

func TestAllocateInsufficientStock(t *testing.T) {
	lots := []*repository.Lot{
		testLot("a", 3, 10),
		testLot("b", 2, 20),
	}

	lines, allocated := allocate(lots, 9)

	assert.Equal(t, 5, allocated)
	assert.Len(t, lines, 2)
}

func TestAllocateNoLots(t *testing.T) {
	lines, allocated := allocate(nil, 3)

	assert.Equal(t, 0, allocated)
	assert.Empty(t, lines)
}

func TestAllocateSkipsDrainedLots(t *testing.T) {
	empty := testLot("a", 5, 10)
	empty.CurrentQuantity = 0

	lines, allocated := allocate([]*repository.Lot{empty, testLot("b", 5, 20)}, 3)

	assert.Equal(t, 3, allocated)
	assert.Len(t, lines, 1)
	assert.Equal(t, "b", lines[0].LotID)
}

func TestAllocatePreservesGivenOrder(t *testing.T) {
	// allocate trusts the caller's ordering; the repository queries sort by
	// expiry ascending
	lots := []*repository.Lot{
		testLot("late", 5, 300),
		testLot("soon", 5, 5),
	}

	lines, _ := allocate(lots, 6)

	assert.Equal(t, "late", lines[0].LotID)
	assert.Equal(t, "soon", lines[1].LotID)
}
