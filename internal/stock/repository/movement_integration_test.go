package repository_test

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestipharm/gestipharm-backend/internal/stock/repository"
	"github.com/gestipharm/gestipharm-backend/pkg/testutil"
)

func recordMovement(t *testing.T, repo *repository.MovementRepository, m *repository.Movement) {
	t.Helper()
	err := suite.DB.Transaction(context.Background(), func(tx *sqlx.Tx) error {
		return repo.Record(context.Background(), tx, m)
	})
	require.NoError(t, err)
}

func TestMovementListFilters(t *testing.T) {
	testutil.SkipIfShort(t)
	suite.Reset(t)
	ctx := context.Background()

	product := suite.Fixtures.Product()
	other := suite.Fixtures.Product()
	testutil.InsertProduct(t, suite.RawDB, product)
	testutil.InsertProduct(t, suite.RawDB, other)

	lot := suite.Fixtures.Lot(product.ID)
	otherLot := suite.Fixtures.Lot(other.ID)
	testutil.InsertLot(t, suite.RawDB, lot)
	testutil.InsertLot(t, suite.RawDB, otherLot)

	repo := repository.NewMovementRepository(suite.DB)
	recordMovement(t, repo, &repository.Movement{
		LotID: lot.ID, ProductID: product.ID,
		MovementType: repository.MovementEntree, Delta: 100, Reason: "reception",
	})
	recordMovement(t, repo, &repository.Movement{
		LotID: lot.ID, ProductID: product.ID,
		MovementType: repository.MovementSortie, Delta: -10, Reason: "commande",
	})
	recordMovement(t, repo, &repository.Movement{
		LotID: otherLot.ID, ProductID: other.ID,
		MovementType: repository.MovementEntree, Delta: 100, Reason: "reception",
	})

	// By product
	movements, total, err := repo.List(ctx, repository.MovementFilter{ProductID: product.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, movements, 2)

	// Newest first
	assert.Equal(t, repository.MovementSortie, movements[0].MovementType)

	// By type
	movements, total, err = repo.List(ctx, repository.MovementFilter{
		ProductID:    product.ID,
		MovementType: repository.MovementEntree,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, 100, movements[0].Delta)

	// By lot
	_, total, err = repo.List(ctx, repository.MovementFilter{LotID: otherLot.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestMovementListPagination(t *testing.T) {
	testutil.SkipIfShort(t)
	suite.Reset(t)
	ctx := context.Background()

	product := suite.Fixtures.Product()
	testutil.InsertProduct(t, suite.RawDB, product)
	lot := suite.Fixtures.Lot(product.ID)
	testutil.InsertLot(t, suite.RawDB, lot)

	repo := repository.NewMovementRepository(suite.DB)
	for i := 0; i < 5; i++ {
		recordMovement(t, repo, &repository.Movement{
			LotID: lot.ID, ProductID: product.ID,
			MovementType: repository.MovementAjustement, Delta: -1, Reason: "inventaire",
		})
	}

	movements, total, err := repo.List(ctx, repository.MovementFilter{Limit: 2, Offset: 0})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, movements, 2)

	movements, _, err = repo.List(ctx, repository.MovementFilter{Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.Len(t, movements, 1)
}

func TestMovementLedgerMatchesLotQuantity(t *testing.T) {
	testutil.SkipIfShort(t)
	suite.Reset(t)
	ctx := context.Background()

	product := suite.Fixtures.Product()
	testutil.InsertProduct(t, suite.RawDB, product)
	lot := suite.Fixtures.Lot(product.ID, testutil.WithQuantity(100))
	lot.CurrentQuantity = 85
	testutil.InsertLot(t, suite.RawDB, lot)

	repo := repository.NewMovementRepository(suite.DB)
	recordMovement(t, repo, &repository.Movement{
		LotID: lot.ID, ProductID: product.ID,
		MovementType: repository.MovementEntree, Delta: 100, Reason: "reception",
	})
	recordMovement(t, repo, &repository.Movement{
		LotID: lot.ID, ProductID: product.ID,
		MovementType: repository.MovementSortie, Delta: -20, Reason: "commande",
	})
	recordMovement(t, repo, &repository.Movement{
		LotID: lot.ID, ProductID: product.ID,
		MovementType: repository.MovementAjustement, Delta: 5, Reason: "inventaire",
	})

	sum, err := repo.SumDeltasByLot(ctx, lot.ID)
	require.NoError(t, err)
	assert.Equal(t, 85, sum)
}
