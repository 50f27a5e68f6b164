package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/medflow/medflow-clinic/pkg/actor"
	"github.com/medflow/medflow-clinic/pkg/database"
	"github.com/medflow/medflow-clinic/pkg/logger"
)

var (
	// One container per test binary, migrated once
	globalContainer *PostgresContainer
	globalDB        *sqlx.DB
	containerOnce   sync.Once
	containerErr    error
)

// IntegrationSuite is a migrated Postgres shared by the tests of a package
type IntegrationSuite struct {
	Container     *PostgresContainer
	RawDB         *sqlx.DB
	DB            *database.DB
	TenantManager *TenantManager
	Fixtures      *FixtureFactory
	Logger        *logger.Logger
}

// NewIntegrationSuite starts (or reuses) the container and applies the
// clinic migrations.
//
//	var suite *testutil.IntegrationSuite
//
//	func TestMain(m *testing.M) {
//	    flag.Parse()
//	    if testing.Short() {
//	        os.Exit(m.Run())
//	    }
//	    ctx := context.Background()
//	    s, err := testutil.NewIntegrationSuite(ctx)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    suite = s
//	    code := m.Run()
//	    s.Cleanup(ctx)
//	    testutil.TerminateContainer(ctx)
//	    os.Exit(code)
//	}
func NewIntegrationSuite(ctx context.Context) (*IntegrationSuite, error) {
	log := logger.Nop()

	container, db, err := getOrCreateContainer(ctx, log)
	if err != nil {
		return nil, err
	}

	return &IntegrationSuite{
		Container:     container,
		RawDB:         db,
		DB:            database.Wrap(db, log),
		TenantManager: NewTenantManager(db),
		Fixtures:      NewFixtureFactory(),
		Logger:        log,
	}, nil
}

func getOrCreateContainer(ctx context.Context, log *logger.Logger) (*PostgresContainer, *sqlx.DB, error) {
	containerOnce.Do(func() {
		globalContainer, containerErr = NewPostgresContainer(ctx, DefaultPostgresConfig())
		if containerErr != nil {
			return
		}
		globalDB, containerErr = globalContainer.Connect(ctx)
		if containerErr != nil {
			return
		}
		_, containerErr = Migrate(ctx, globalDB, log)
	})

	return globalContainer, globalDB, containerErr
}

// SetupTenant creates a tenant that is dropped when the test ends
func (s *IntegrationSuite) SetupTenant(t *testing.T, ctx context.Context, name string) *TestTenant {
	t.Helper()

	tt, err := s.TenantManager.CreateTenant(ctx, name)
	if err != nil {
		t.Fatalf("failed to create tenant: %v", err)
	}

	t.Cleanup(func() {
		if err := s.TenantManager.DropTenant(context.Background(), tt); err != nil {
			t.Logf("warning: failed to drop tenant %s: %v", tt.Slug, err)
		}
	})

	return tt
}

// Staff creates a staff member with role and returns a context acting as them
func (s *IntegrationSuite) Staff(t *testing.T, ctx context.Context, tt *TestTenant, role string) (context.Context, *actor.Actor) {
	t.Helper()

	a, err := s.TenantManager.CreateStaff(ctx, tt, role)
	if err != nil {
		t.Fatalf("failed to create staff: %v", err)
	}
	return AsStaff(ctx, tt, a), a
}

// Cleanup drops any tenants left behind
func (s *IntegrationSuite) Cleanup(ctx context.Context) error {
	return s.TenantManager.Cleanup(ctx)
}

// TerminateContainer stops the shared container. Call it from TestMain
// after m.Run.
func TerminateContainer(ctx context.Context) {
	if globalContainer != nil {
		globalContainer.Terminate(ctx)
	}
}
