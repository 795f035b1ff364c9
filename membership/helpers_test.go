package membership_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/warp/membership-engine/generic"
	"github.com/warp/membership-engine/membership"
	"github.com/warp/membership-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// testClock is a settable clock shared by every service in a fixture.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t.UTC()
	c.mu.Unlock()
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 9, 0, 0, 0, time.UTC)
}

const (
	clerk      generic.ActorID = "clerk-1"
	supervisor generic.ActorID = "supervisor-1"
)

var monthlyDue = generic.MustParseAmount("10000.00", "IDR")

type fixture struct {
	store    *memory.Store
	clock    *testClock
	svc      *membership.Service
	ledger   *membership.PaymentLedger
	debt     *membership.DebtCalculator
	reporter *membership.Reporter
	workflow *membership.Workflow
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	clock := &testClock{now: date(2024, time.March, 1)}
	debt := membership.NewDebtCalculator(store, monthlyDue)
	return &fixture{
		store:    store,
		clock:    clock,
		svc:      membership.NewService(store, clock),
		ledger:   membership.NewPaymentLedger(store, clock, "IDR"),
		debt:     debt,
		reporter: membership.NewReporter(store, debt),
		workflow: membership.NewWorkflow(store, clock),
	}
}

func applicant(name, nationalID string) membership.ApplyInput {
	return membership.ApplyInput{
		FullName:   name,
		NationalID: nationalID,
		Email:      "member@example.org",
		ProvinceID: "PROV-01",
		DistrictID: "DIST-01",
		BranchID:   "BR-01",
	}
}

// apply creates a PENDING member at the fixture's current time.
func (f *fixture) apply(t *testing.T, in membership.ApplyInput) *membership.Member {
	t.Helper()
	m, err := f.svc.Apply(context.Background(), in, clerk)
	require.NoError(t, err)
	return m
}

// activeMember walks apply, approve and activate with the clock at joined.
func (f *fixture) activeMember(t *testing.T, in membership.ApplyInput, regNo string, joined time.Time) *membership.Member {
	t.Helper()
	ctx := context.Background()
	f.clock.Set(joined)

	m := f.apply(t, in)
	_, err := f.svc.Approve(ctx, m.ID, supervisor, membership.ApproveInput{RegistrationNumber: regNo})
	require.NoError(t, err)
	m, err = f.svc.Activate(ctx, m.ID, supervisor)
	require.NoError(t, err)
	return m
}

func (f *fixture) pay(t *testing.T, id generic.EntityID, year, month int) *membership.Payment {
	t.Helper()
	p, err := f.ledger.RecordPayment(context.Background(), membership.RecordPaymentInput{
		MemberID: id,
		Period:   generic.Period{Year: year, Month: month},
		Amount:   monthlyDue,
		Type:     membership.PaymentCash,
	}, clerk)
	require.NoError(t, err)
	return p
}
