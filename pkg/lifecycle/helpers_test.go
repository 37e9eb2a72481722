package lifecycle

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/katello/lifecycle/pkg/tenancy"
)

// testDigest makes digests readable in assertions.
var testDigest = DigesterFunc(func(data string) string { return "digest(" + data + ")" })

// newTestDB creates an in-memory SQLite DB with lifecycle tables migrated.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// Every connection to :memory: is a separate database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, NewBindingStore(db).AutoMigrate())
	return db
}

// fixture is an organization with a dev environment and a cv1 content view.
type fixture struct {
	db       *gorm.DB
	bindings *BindingStore
	orgs     *OrganizationStore

	org     *Organization
	library *Environment
	dev     *Environment
	defView *ContentView
	cv1     *ContentView
	// defaultBinding is the Library/default view binding created with the org.
	defaultBinding *ContentViewEnvironment
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	bindings := NewBindingStore(db, WithDigester(testDigest))
	orgs := NewOrganizationStore(db, bindings)
	ctx := context.Background()

	org, def, err := orgs.CreateOrganization(ctx, "ACME Corporation", "ACME")
	require.NoError(t, err)
	library, err := orgs.Library(ctx, org.ID)
	require.NoError(t, err)
	require.NotNil(t, library)
	dev, err := orgs.CreateEnvironment(ctx, org.ID, "Development", "dev")
	require.NoError(t, err)
	cv1, err := orgs.CreateContentView(ctx, org.ID, "Content View 1", "cv1")
	require.NoError(t, err)

	return &fixture{
		db:             db,
		bindings:       bindings,
		orgs:           orgs,
		org:            org,
		library:        library,
		dev:            dev,
		defView:        def.ContentView,
		cv1:            cv1,
		defaultBinding: def,
	}
}

// bind creates a binding of cv in env.
func (f *fixture) bind(t *testing.T, cv *ContentView, env *Environment) *ContentViewEnvironment {
	t.Helper()
	c := &ContentViewEnvironment{ContentViewID: cv.ID, EnvironmentID: env.ID}
	require.NoError(t, f.bindings.Create(context.Background(), c))
	return c
}

// orgCtx returns a context scoped to the fixture organization.
func (f *fixture) orgCtx() context.Context {
	return tenancy.WithOrganization(context.Background(), tenancy.OrgContext{Organization: f.org.Label})
}
