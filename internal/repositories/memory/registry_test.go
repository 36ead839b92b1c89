package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/repositories"
)

func TestRegistryRunInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(domain.Product{ID: "p1", Name: "Lamp", Price: decimal.NewFromInt(10), Quantity: 3})
	errAbort := errors.New("abort")

	err := reg.RunInTx(ctx, func(ctx context.Context) error {
		product, err := reg.Products().FindByID(ctx, "p1")
		require.NoError(t, err)
		product.Quantity = 1
		require.NoError(t, reg.Products().Save(ctx, product))
		require.NoError(t, reg.Orders().Insert(ctx, domain.Order{ID: "o1"}))
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	product, err := reg.Products().FindByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, product.Quantity)

	_, err = reg.Orders().FindByID(ctx, "o1")
	var repoErr repositories.RepositoryError
	require.ErrorAs(t, err, &repoErr)
	assert.True(t, repoErr.IsNotFound())
}

func TestRegistryRunInTxCommits(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(domain.Product{ID: "p1", Quantity: 3})

	err := reg.RunInTx(ctx, func(ctx context.Context) error {
		product, err := reg.Products().FindByID(ctx, "p1")
		if err != nil {
			return err
		}
		product.Quantity -= 2
		return reg.Products().Save(ctx, product)
	})
	require.NoError(t, err)

	product, err := reg.Products().FindByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, product.Quantity)
}

func TestProductSaveRejectsNegativeQuantity(t *testing.T) {
	reg := NewRegistry()
	err := reg.Products().Save(context.Background(), domain.Product{ID: "p1", Quantity: -1})

	var stockErr *repositories.StockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, repositories.StockErrorNegativeQuantity, stockErr.Code)
}

func TestOrderListNewestFirstAndFiltered(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()
	base := time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, reg.Orders().Insert(ctx, domain.Order{ID: "o1", UserID: "u1", CreatedAt: base}))
	require.NoError(t, reg.Orders().Insert(ctx, domain.Order{ID: "o2", UserID: "u2", CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, reg.Orders().Insert(ctx, domain.Order{ID: "o3", UserID: "u1", CreatedAt: base.Add(2 * time.Hour)}))

	all, err := reg.Orders().List(ctx, repositories.OrderListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"o3", "o2", "o1"}, []string{all[0].ID, all[1].ID, all[2].ID})

	mine, err := reg.Orders().List(ctx, repositories.OrderListFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "o3", mine[0].ID)
}

func TestOrderInsertConflictAndDeleteMissing(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()
	require.NoError(t, reg.Orders().Insert(ctx, domain.Order{ID: "o1"}))

	var repoErr repositories.RepositoryError
	err := reg.Orders().Insert(ctx, domain.Order{ID: "o1"})
	require.ErrorAs(t, err, &repoErr)
	assert.True(t, repoErr.IsConflict())

	require.NoError(t, reg.Orders().Delete(ctx, "o1"))
	err = reg.Orders().Delete(ctx, "o1")
	require.ErrorAs(t, err, &repoErr)
	assert.True(t, repoErr.IsNotFound())
}

func TestProductListFiltersAndPaginates(t *testing.T) {
	base := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	seed := make([]domain.Product, 0, 10)
	for i := 0; i < 10; i++ {
		category := "Books"
		if i%2 == 0 {
			category = "Electronics"
		}
		seed = append(seed, domain.Product{
			ID:        string(rune('a' + i)),
			Name:      "Item",
			Category:  category,
			Price:     decimal.NewFromInt(int64(10 * (i + 1))),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	reg := NewRegistry(seed...)

	page, err := reg.Products().List(context.Background(), repositories.ProductListFilter{Category: "Electronics"})
	require.NoError(t, err)
	assert.Equal(t, 10, page.TotalCount)
	assert.Equal(t, 5, page.FilteredCount)
	assert.Equal(t, 1, page.TotalPages)
	assert.Equal(t, "a", page.Items[0].ID)

	page, err = reg.Products().List(context.Background(), repositories.ProductListFilter{Page: 2})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 2, page.TotalPages)
}

func TestRegistryClosed(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Close(context.Background()))
	assert.Error(t, reg.Ping(context.Background()))
	_, err := reg.Orders().List(context.Background(), repositories.OrderListFilter{})
	assert.Error(t, err)
}

func TestUserRepositoryListsNewestFirst(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	users := reg.Users()
	require.NoError(t, users.Save(ctx, domain.User{ID: "u1", Role: domain.RoleUser, CreatedAt: base}))
	require.NoError(t, users.Save(ctx, domain.User{ID: "u2", Role: domain.RoleSeller, CreatedAt: base.Add(time.Hour)}))

	list, err := users.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "u2", list[0].ID)
	assert.Equal(t, "u1", list[1].ID)

	require.NoError(t, users.Delete(ctx, "u1"))
	_, err = users.FindByID(ctx, "u1")
	var repoErr repositories.RepositoryError
	require.ErrorAs(t, err, &repoErr)
	assert.True(t, repoErr.IsNotFound())

	err = users.Delete(ctx, "u1")
	require.ErrorAs(t, err, &repoErr)
	assert.True(t, repoErr.IsNotFound())
}

func TestUserRepositoryRollsBackWithTransaction(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()
	reg.SeedUsers(domain.User{ID: "u1", Role: domain.RoleUser})
	errAbort := errors.New("abort")

	err := reg.RunInTx(ctx, func(ctx context.Context) error {
		require.NoError(t, reg.Users().Save(ctx, domain.User{ID: "u1", Role: domain.RoleAdmin}))
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	user, err := reg.Users().FindByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, user.Role)
}
