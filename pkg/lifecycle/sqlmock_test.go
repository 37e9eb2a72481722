package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockStore(t *testing.T) (*BindingStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	return NewBindingStore(db, WithDigester(testDigest)), mock
}

func resolvedBinding() *ContentViewEnvironment {
	org := &Organization{ID: 1, Label: "ACME"}
	return &ContentViewEnvironment{
		ContentViewID: 2,
		ContentView:   &ContentView{ID: 2, Label: "cv1", OrganizationID: 1, Organization: org},
		EnvironmentID: 3,
		Environment:   &Environment{ID: 3, Name: "dev", Label: "dev", OrganizationID: 1, Organization: org},
	}
}

func TestBindingStore_GetQueryError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT \* FROM "content_view_environments"`).
		WillReturnError(errors.New("connection reset by peer"))

	got, err := store.Get(context.Background(), 1)
	require.Error(t, err)
	assert.Nil(t, got)
	assert.Contains(t, err.Error(), "get binding")
	assert.False(t, IsValidationError(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBindingStore_CreateUniquenessCheckError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT count\(\*\) FROM "content_view_environments"`).
		WillReturnError(errors.New("statement timeout"))
	mock.ExpectRollback()

	err := store.Create(context.Background(), resolvedBinding())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "check binding uniqueness")
	assert.False(t, IsValidationError(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBindingStore_CreateConcurrentDuplicate(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	// The check passes; a concurrent writer wins the insert race.
	mock.ExpectQuery(`SELECT count\(\*\) FROM "content_view_environments"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`INSERT INTO "content_view_environments"`).
		WillReturnError(errors.New(`ERROR: duplicate key value violates unique constraint "idx_cve_view_env" (SQLSTATE 23505)`))
	mock.ExpectRollback()

	c := resolvedBinding()
	err := store.Create(context.Background(), c)
	var verrs *ValidationError
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, []string{"has already been taken"}, verrs.On("environment_id"))
	// Derivation ran before the rejected insert.
	assert.Equal(t, "dev/cv1", c.Label)
	assert.Equal(t, "digest(3-2)", c.CPID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBindingStore_PriorityQueryError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT \* FROM "content_view_environment_content_facets"`).
		WillReturnError(errors.New("connection refused"))

	p, err := store.Priority(context.Background(), &ContentViewEnvironment{ID: 1}, 2)
	require.Error(t, err)
	assert.Nil(t, p)
	assert.NoError(t, mock.ExpectationsWereMet())
}
