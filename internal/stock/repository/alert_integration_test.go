package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestipharm/gestipharm-backend/internal/stock/repository"
	"github.com/gestipharm/gestipharm-backend/pkg/errors"
	"github.com/gestipharm/gestipharm-backend/pkg/testutil"
)

func seedProduct(t *testing.T) testutil.ProductFixture {
	t.Helper()
	product := suite.Fixtures.Product()
	testutil.InsertProduct(t, suite.RawDB, product)
	return product
}

func TestAlertUpsertIsIdempotent(t *testing.T) {
	testutil.SkipIfShort(t)
	suite.Reset(t)
	ctx := context.Background()

	product := seedProduct(t)
	repo := repository.NewAlertRepository(suite.DB)

	stock := 3
	first := &repository.Alert{
		AlertType:    repository.AlertStockBas,
		ProductID:    product.ID,
		ProductName:  product.Name,
		Severity:     repository.SeverityFaible,
		Message:      "stock bas",
		CurrentStock: &stock,
	}
	require.NoError(t, repo.UpsertOpen(ctx, first))

	// Same key again with fresher data refreshes the row in place
	worse := 1
	second := &repository.Alert{
		AlertType:    repository.AlertStockBas,
		ProductID:    product.ID,
		ProductName:  product.Name,
		Severity:     repository.SeverityMoyen,
		Message:      "stock presque epuise",
		CurrentStock: &worse,
	}
	require.NoError(t, repo.UpsertOpen(ctx, second))

	assert.Equal(t, first.ID, second.ID)

	alerts, total, err := repo.List(ctx, repository.AlertFilter{ProductID: product.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, repository.SeverityMoyen, alerts[0].Severity)
	assert.Equal(t, 1, *alerts[0].CurrentStock)
}

func TestAlertPerLotKeysDoNotCollide(t *testing.T) {
	testutil.SkipIfShort(t)
	suite.Reset(t)
	ctx := context.Background()

	product := seedProduct(t)
	lotA := suite.Fixtures.Lot(product.ID, testutil.WithExpiryIn(10))
	lotB := suite.Fixtures.Lot(product.ID, testutil.WithExpiryIn(20))
	testutil.InsertLot(t, suite.RawDB, lotA)
	testutil.InsertLot(t, suite.RawDB, lotB)

	repo := repository.NewAlertRepository(suite.DB)
	for _, lotID := range []string{lotA.ID, lotB.ID} {
		id := lotID
		require.NoError(t, repo.UpsertOpen(ctx, &repository.Alert{
			AlertType:   repository.AlertPeremption,
			ProductID:   product.ID,
			ProductName: product.Name,
			LotID:       &id,
			Severity:    repository.SeverityMoyen,
			Message:     "peremption proche",
		}))
	}

	_, total, err := repo.List(ctx, repository.AlertFilter{AlertType: repository.AlertPeremption})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestMarkReadTransitions(t *testing.T) {
	testutil.SkipIfShort(t)
	suite.Reset(t)
	ctx := context.Background()

	product := seedProduct(t)
	repo := repository.NewAlertRepository(suite.DB)

	alert := &repository.Alert{
		AlertType:   repository.AlertRupture,
		ProductID:   product.ID,
		ProductName: product.Name,
		Severity:    repository.SeverityCritique,
		Message:     "rupture",
	}
	require.NoError(t, repo.UpsertOpen(ctx, alert))
	assert.Equal(t, repository.AlertStatusUnread, alert.Status)

	read, err := repo.MarkRead(ctx, alert.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, repository.AlertStatusRead, read.Status)
	assert.Equal(t, "user-1", *read.ReadBy)
	assert.NotNil(t, read.ReadAt)

	// A second read attempt is a conflict, not a silent overwrite
	_, err = repo.MarkRead(ctx, alert.ID, "user-2")
	assert.True(t, errors.Is(err, errors.ErrConflict))

	// Missing alert is not found
	_, err = repo.MarkRead(ctx, "9f1c1e7e-0000-0000-0000-000000000002", "user-1")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestMarkAllRead(t *testing.T) {
	testutil.SkipIfShort(t)
	suite.Reset(t)
	ctx := context.Background()

	product := seedProduct(t)
	repo := repository.NewAlertRepository(suite.DB)

	require.NoError(t, repo.UpsertOpen(ctx, &repository.Alert{
		AlertType: repository.AlertRupture, ProductID: product.ID,
		ProductName: product.Name, Severity: repository.SeverityCritique, Message: "rupture",
	}))
	require.NoError(t, repo.UpsertOpen(ctx, &repository.Alert{
		AlertType: repository.AlertStockBas, ProductID: product.ID,
		ProductName: product.Name, Severity: repository.SeverityFaible, Message: "stock bas",
	}))

	count, err := repo.MarkAllRead(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	unread, err := repo.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, unread)

	// Nothing left to mark
	count, err = repo.MarkAllRead(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestResolveKeepsHistory(t *testing.T) {
	testutil.SkipIfShort(t)
	suite.Reset(t)
	ctx := context.Background()

	product := seedProduct(t)
	repo := repository.NewAlertRepository(suite.DB)

	alert := &repository.Alert{
		AlertType: repository.AlertStockBas, ProductID: product.ID,
		ProductName: product.Name, Severity: repository.SeverityFaible, Message: "stock bas",
	}
	require.NoError(t, repo.UpsertOpen(ctx, alert))

	require.NoError(t, repo.Resolve(ctx, product.ID, repository.AlertStockBas, nil))

	// The row survives as history
	got, err := repo.GetByID(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.AlertStatusResolved, got.Status)
	assert.NotNil(t, got.ResolvedAt)

	// The condition coming back opens a fresh alert instead of reviving the old row
	fresh := &repository.Alert{
		AlertType: repository.AlertStockBas, ProductID: product.ID,
		ProductName: product.Name, Severity: repository.SeverityFaible, Message: "stock bas",
	}
	require.NoError(t, repo.UpsertOpen(ctx, fresh))
	assert.NotEqual(t, alert.ID, fresh.ID)
	assert.Equal(t, repository.AlertStatusUnread, fresh.Status)
}
