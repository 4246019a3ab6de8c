package core

import (
	"compliancedash/internal/blob"
	"compliancedash/internal/infra/persistence/memory"
	"compliancedash/internal/infra/persistence/storetest"
	"compliancedash/pkg/domain"
	"context"
	"strings"
	"testing"
	"time"
)

var fixedNow = time.Date(2025, 2, 14, 9, 30, 0, 0, time.UTC)

type captureLogger struct{ calls []string }

func (c *captureLogger) Debug(msg string, _ ...any) { c.calls = append(c.calls, "d:"+msg) }
func (c *captureLogger) Info(msg string, _ ...any)  { c.calls = append(c.calls, "i:"+msg) }
func (c *captureLogger) Warn(msg string, _ ...any)  { c.calls = append(c.calls, "w:"+msg) }
func (c *captureLogger) Error(msg string, _ ...any) { c.calls = append(c.calls, "e:"+msg) }

func (c *captureLogger) has(prefix string) bool {
	for _, call := range c.calls {
		if strings.HasPrefix(call, prefix) {
			return true
		}
	}
	return false
}

func samplePlants() []domain.Plant {
	return []domain.Plant{
		{ID: 1, Name: "North Works", FullAddress: "1 Mill Rd, Akron", AddressOnly: "1 Mill Rd", City: "Akron", State: "OH",
			Reporter2025: "Yes", ReportingStatus: "Completed", FilingFee: 150, AdditionalFee: "None", AdditionalSteps: "None"},
		{ID: 2, Name: "South Depot", FullAddress: "9 Dock St", AddressOnly: "9 Dock St", City: "Mobile", State: "AL",
			Reporter2025: "No", ReportingStatus: "In Progress", AdditionalFee: "None", AdditionalSteps: "None"},
		{ID: 3, Name: "East Yard", City: "Toledo", State: "OH", Reporter2025: "Pending", ReportingStatus: "Not Started",
			AdditionalFee: "None", AdditionalSteps: "None"},
	}
}

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *memory.Store, blob.Store) {
	t.Helper()
	store := memory.NewStore(memory.WithClock(func() time.Time { return fixedNow }))
	blobs := blob.NewMemory()
	opts = append([]ServiceOption{WithClock(ClockFunc(func() time.Time { return fixedNow }))}, opts...)
	return NewService(store, blobs, opts...), store, blobs
}

func newSeededService(t *testing.T, opts ...ServiceOption) (*Service, *memory.Store, blob.Store) {
	t.Helper()
	svc, store, blobs := newTestService(t, opts...)
	storetest.Seed(t, store, samplePlants()...)
	return svc, store, blobs
}

// failingTxStore serves reads from the wrapped store and fails every
// transaction.
type failingTxStore struct {
	*memory.Store
	err error
}

func (f failingTxStore) RunInTransaction(context.Context, func(domain.Transaction) error) (domain.Result, error) {
	return domain.Result{}, f.err
}

func ptr[T any](v T) *T { return &v }
