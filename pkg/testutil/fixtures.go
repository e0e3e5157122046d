package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ProductFixture represents test product data
type ProductFixture struct {
	ID       string
	Name     string
	Barcode  string
	Category string
	PriceUSD float64
	PriceFC  float64
	IsActive bool
}

// LotFixture represents test lot data
type LotFixture struct {
	ID              string
	ProductID       string
	LotNumber       string
	InitialQuantity int
	CurrentQuantity int
	ExpiryDate      time.Time
	UnitCost        float64
	ReceivedDate    time.Time
	Status          string
}

// FixtureFactory creates test fixtures with sensible defaults
type FixtureFactory struct {
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{sequence: 0}
}

// nextSeq returns the next sequence number for unique values
func (f *FixtureFactory) nextSeq() int {
	f.sequence++
	return f.sequence
}

// Product creates a product fixture with defaults
func (f *FixtureFactory) Product(opts ...func(*ProductFixture)) ProductFixture {
	seq := f.nextSeq()

	product := ProductFixture{
		ID:       uuid.New().String(),
		Name:     fmt.Sprintf("Paracetamol 500mg #%d", seq),
		Barcode:  fmt.Sprintf("615010%06d", seq),
		Category: "antalgique",
		PriceUSD: 2.50,
		PriceFC:  7000,
		IsActive: true,
	}

	for _, opt := range opts {
		opt(&product)
	}

	return product
}

// WithProductName sets the product name
func WithProductName(name string) func(*ProductFixture) {
	return func(p *ProductFixture) {
		p.Name = name
	}
}

// Lot creates a lot fixture with defaults: full quantity, expiring in a year
func (f *FixtureFactory) Lot(productID string, opts ...func(*LotFixture)) LotFixture {
	seq := f.nextSeq()

	lot := LotFixture{
		ID:              uuid.New().String(),
		ProductID:       productID,
		LotNumber:       fmt.Sprintf("LOT-%04d", seq),
		InitialQuantity: 100,
		CurrentQuantity: 100,
		ExpiryDate:      time.Now().AddDate(1, 0, 0),
		UnitCost:        1.20,
		ReceivedDate:    time.Now(),
		Status:          "in_stock",
	}

	for _, opt := range opts {
		opt(&lot)
	}

	return lot
}

// WithQuantity sets both initial and current quantity
func WithQuantity(qty int) func(*LotFixture) {
	return func(l *LotFixture) {
		l.InitialQuantity = qty
		l.CurrentQuantity = qty
	}
}

// WithExpiry sets the expiry date
func WithExpiry(expiry time.Time) func(*LotFixture) {
	return func(l *LotFixture) {
		l.ExpiryDate = expiry
	}
}

// WithExpiryIn sets the expiry date relative to today
func WithExpiryIn(days int) func(*LotFixture) {
	return func(l *LotFixture) {
		l.ExpiryDate = time.Now().AddDate(0, 0, days)
	}
}

// WithLotNumber sets the lot number
func WithLotNumber(number string) func(*LotFixture) {
	return func(l *LotFixture) {
		l.LotNumber = number
	}
}

// InsertProduct inserts a product fixture into the test database
func InsertProduct(t *testing.T, db *sqlx.DB, p ProductFixture) {
	t.Helper()
	_, err := db.ExecContext(context.Background(), `
		INSERT INTO products (id, name, barcode, category, price_usd, price_fc, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.Name, p.Barcode, p.Category, p.PriceUSD, p.PriceFC, p.IsActive)
	if err != nil {
		t.Fatalf("failed to insert product fixture: %v", err)
	}
}

// InsertLot inserts a lot fixture into the test database
func InsertLot(t *testing.T, db *sqlx.DB, l LotFixture) {
	t.Helper()
	_, err := db.ExecContext(context.Background(), `
		INSERT INTO lots (id, product_id, lot_number, initial_quantity, current_quantity,
			expiry_date, unit_cost, received_date, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, l.ID, l.ProductID, l.LotNumber, l.InitialQuantity, l.CurrentQuantity,
		l.ExpiryDate, l.UnitCost, l.ReceivedDate, l.Status)
	if err != nil {
		t.Fatalf("failed to insert lot fixture: %v", err)
	}
}
