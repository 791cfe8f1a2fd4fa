package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepository(db), mock
}

func TestPostgresRepository_Get(t *testing.T) {
	repo, mock := newMockRepo(t)

	rows := sqlmock.NewRows([]string{"items"}).
		AddRow([]byte(`[{"productId":"p1","name":"Chair","image":"","unitPrice":"120.5","discountPercent":0,"quantity":3,"stock":{"inStock":9,"slug":"chair"}}]`))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT items FROM carts WHERE user_id = $1`)).
		WithArgs("u1").
		WillReturnRows(rows)

	items, err := repo.Get(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "p1", items[0].ProductID)
	assert.Equal(t, 3, items[0].Quantity)
	assert.Equal(t, "120.5", items[0].UnitPrice.String())
	assert.Equal(t, "chair", items[0].Stock.Slug)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_GetNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT items FROM carts`)).
		WithArgs("u1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrCartNotFound)
}

func TestPostgresRepository_GetQueryError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT items FROM carts`)).
		WithArgs("u1").
		WillReturnError(errors.New("connection reset"))

	_, err := repo.Get(context.Background(), "u1")
	require.ErrorContains(t, err, "connection reset")
	assert.NotErrorIs(t, err, ErrCartNotFound)
}

func TestPostgresRepository_Put(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO carts`)).
		WithArgs("u1", []byte(`[]`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Put(context.Background(), "u1", nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_PutError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO carts`)).
		WithArgs("u1", sqlmock.AnyArg()).
		WillReturnError(errors.New("disk full"))

	err := repo.Put(context.Background(), "u1", lineItems("a"))
	require.ErrorContains(t, err, "failed to upsert cart")
}
