package testutil

import (
	"context"
	"database/sql/driver"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/medflow/medflow-clinic/pkg/database"
	"github.com/medflow/medflow-clinic/pkg/logger"
	"github.com/medflow/medflow-clinic/pkg/messaging"
)

// MockDB wraps sqlmock behind the clinic's database.DB
type MockDB struct {
	DB   *database.DB
	Mock sqlmock.Sqlmock
}

// NewMockDB creates a mocked database.DB. Expectations are checked and the
// connection closed when the test ends.
//
//	mdb := testutil.NewMockDB(t)
//	mdb.ExpectTenantScope(testutil.TestTenantID)
//	mdb.ExpectQuery("SELECT id FROM visits").WillReturnRows(...)
//	mdb.Mock.ExpectCommit()
//	repo := repository.NewVisitRepository(mdb.DB)
func NewMockDB(t *testing.T) *MockDB {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	m := &MockDB{
		DB:   database.Wrap(sqlx.NewDb(db, "postgres"), logger.Nop()),
		Mock: mock,
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled sqlmock expectations: %v", err)
		}
		db.Close()
	})
	return m
}

// ExpectQuery expects a query containing the literal text query
func (m *MockDB) ExpectQuery(query string) *sqlmock.ExpectedQuery {
	return m.Mock.ExpectQuery(regexp.QuoteMeta(query))
}

// ExpectExec expects a statement containing the literal text query
func (m *MockDB) ExpectExec(query string) *sqlmock.ExpectedExec {
	return m.Mock.ExpectExec(regexp.QuoteMeta(query))
}

// ExpectTenantScope expects the BEGIN and session setup of WithTenantRLS
func (m *MockDB) ExpectTenantScope(tenantID string) {
	m.Mock.ExpectBegin()
	m.Mock.ExpectExec(regexp.QuoteMeta("SET LOCAL search_path TO public")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	m.Mock.ExpectExec(regexp.QuoteMeta("SELECT set_config('app.current_tenant', $1, true)")).
		WithArgs(tenantID).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

// AnyTime matches any time.Time argument
type AnyTime struct{}

// Match implements sqlmock.Argument
func (AnyTime) Match(v driver.Value) bool {
	_, ok := v.(time.Time)
	return ok
}

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// AnyUUID matches any lowercase UUID string argument
type AnyUUID struct{}

// Match implements sqlmock.Argument
func (AnyUUID) Match(v driver.Value) bool {
	s, ok := v.(string)
	return ok && uuidPattern.MatchString(s)
}

// MockPublisher records published events instead of sending them
type MockPublisher struct {
	mu     sync.Mutex
	events []PublishedEvent
	Err    error
}

var _ messaging.EventPublisher = (*MockPublisher)(nil)

// PublishedEvent is one recorded Publish call
type PublishedEvent struct {
	Type    string
	Payload interface{}
}

// NewMockPublisher creates a new mock publisher
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// Publish records the event and returns Err
func (m *MockPublisher) Publish(_ context.Context, eventType string, payload interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, PublishedEvent{Type: eventType, Payload: payload})
	return m.Err
}

// Events returns a copy of everything published so far
func (m *MockPublisher) Events() []PublishedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PublishedEvent, len(m.events))
	copy(out, m.events)
	return out
}

// Types returns the published event types in order
func (m *MockPublisher) Types() []string {
	var types []string
	for _, e := range m.Events() {
		types = append(types, e.Type)
	}
	return types
}

// AssertEventPublished fails the test unless an event of eventType was published
func (m *MockPublisher) AssertEventPublished(t *testing.T, eventType string) {
	t.Helper()
	for _, e := range m.Events() {
		if e.Type == eventType {
			return
		}
	}
	t.Errorf("expected event %q to be published, got %v", eventType, m.Types())
}

// AssertNoEventsPublished fails the test if anything was published
func (m *MockPublisher) AssertNoEventsPublished(t *testing.T) {
	t.Helper()
	if types := m.Types(); len(types) > 0 {
		t.Errorf("expected no events, got %v", types)
	}
}

// Reset clears the recorded events
func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}
