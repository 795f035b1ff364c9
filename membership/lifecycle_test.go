package membership_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/membership-engine/generic"
	"github.com/warp/membership-engine/membership"
)

// =============================================================================
// APPLY
// =============================================================================

func TestApply_CreatesPendingMember(t *testing.T) {
	f := newFixture(t)

	m := f.apply(t, applicant("Siti Rahma", "3201000000000001"))

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, membership.StatusPending, m.Status)
	assert.Nil(t, m.RegistrationNumber)
	assert.Equal(t, clerk, m.AppliedBy)
	assert.Equal(t, date(2024, time.March, 1), m.CreatedAt)
	assert.False(t, m.IsActive())
}

func TestApply_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		edit  func(in *membership.ApplyInput)
		actor generic.ActorID
		field string
	}{
		{"missing name", func(in *membership.ApplyInput) { in.FullName = "" }, clerk, "fullName"},
		{"missing national id", func(in *membership.ApplyInput) { in.NationalID = "" }, clerk, "nationalId"},
		{"bad email", func(in *membership.ApplyInput) { in.Email = "not-an-email" }, clerk, "email"},
		{"missing actor", func(in *membership.ApplyInput) {}, "", "appliedBy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := applicant("Budi", "3201000000000002")
			tt.edit(&in)

			_, err := f.svc.Apply(ctx, in, tt.actor)

			var verr *generic.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestApply_OpenApplicationConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// GIVEN: A pending application
	first := f.apply(t, applicant("Budi", "3201000000000003"))

	// WHEN: The same person applies again
	_, err := f.svc.Apply(ctx, applicant("Budi", "3201000000000003"), clerk)

	// THEN: Conflict
	assert.ErrorIs(t, err, generic.ErrConflict)

	// GIVEN: The first application is rejected
	_, err = f.svc.Reject(ctx, first.ID, supervisor, "incomplete documents")
	require.NoError(t, err)

	// THEN: A fresh application is accepted
	_, err = f.svc.Apply(ctx, applicant("Budi", "3201000000000003"), clerk)
	assert.NoError(t, err)
}

// =============================================================================
// APPROVE / REJECT / ACTIVATE
// =============================================================================

func TestApproveActivate_FullPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.apply(t, applicant("Dewi", "3201000000000004"))

	// WHEN: Approved a week later
	f.clock.Set(date(2024, time.March, 8))
	board := date(2024, time.March, 5)
	approved, err := f.svc.Approve(ctx, m.ID, supervisor, membership.ApproveInput{
		RegistrationNumber: "REG-0004",
		BoardDecisionDate:  &board,
		DuesCenterID:       "DC-01",
	})
	require.NoError(t, err)

	// THEN: Registration number and approval stamps are set
	assert.Equal(t, membership.StatusApproved, approved.Status)
	require.NotNil(t, approved.RegistrationNumber)
	assert.Equal(t, "REG-0004", *approved.RegistrationNumber)
	require.NotNil(t, approved.ApprovedAt)
	assert.Equal(t, date(2024, time.March, 8), *approved.ApprovedAt)
	assert.Equal(t, supervisor, *approved.ApprovedBy)
	assert.Equal(t, "DC-01", approved.DuesCenterID)
	assert.Equal(t, "BR-01", approved.BranchID, "empty input keeps the existing branch")
	assert.Equal(t, date(2024, time.March, 8), approved.MembershipStart())

	// WHEN: Activated
	active, err := f.svc.Activate(ctx, m.ID, supervisor)
	require.NoError(t, err)

	// THEN: Member is on the live roster
	assert.Equal(t, membership.StatusActive, active.Status)
	assert.True(t, active.IsActive())
	require.NotNil(t, active.ActivatedBy)
	assert.Equal(t, supervisor, *active.ActivatedBy)
}

func TestApprove_RequiresRegistrationNumber(t *testing.T) {
	f := newFixture(t)
	m := f.apply(t, applicant("Dewi", "3201000000000005"))

	_, err := f.svc.Approve(context.Background(), m.ID, supervisor, membership.ApproveInput{})

	var verr *generic.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "registrationNumber", verr.Field)
}

func TestReject_IsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.apply(t, applicant("Eko", "3201000000000006"))

	rejected, err := f.svc.Reject(ctx, m.ID, supervisor, "duplicate application")
	require.NoError(t, err)
	assert.Equal(t, membership.StatusRejected, rejected.Status)
	assert.Equal(t, "duplicate application", rejected.RejectionNote)
	assert.Nil(t, rejected.RegistrationNumber)

	_, err = f.svc.Approve(ctx, m.ID, supervisor, membership.ApproveInput{RegistrationNumber: "REG-1"})
	assert.ErrorIs(t, err, generic.ErrInvalidState)

	_, err = f.svc.Reject(ctx, m.ID, supervisor, "again")
	assert.ErrorIs(t, err, generic.ErrInvalidState)
}

func TestTransitions_WrongSourceState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pending := f.apply(t, applicant("Fajar", "3201000000000007"))
	active := f.activeMember(t, applicant("Gita", "3201000000000008"), "REG-0008", date(2024, time.March, 1))

	tests := []struct {
		name string
		call func() error
	}{
		{"activate pending", func() error {
			_, err := f.svc.Activate(ctx, pending.ID, supervisor)
			return err
		}},
		{"cancel pending", func() error {
			_, err := f.svc.CancelMembership(ctx, pending.ID, membership.CancelInput{Reason: membership.CancelResignation}, supervisor)
			return err
		}},
		{"approve active", func() error {
			_, err := f.svc.Approve(ctx, active.ID, supervisor, membership.ApproveInput{RegistrationNumber: "X"})
			return err
		}},
		{"reject active", func() error {
			_, err := f.svc.Reject(ctx, active.ID, supervisor, "")
			return err
		}},
		{"activate active", func() error {
			_, err := f.svc.Activate(ctx, active.ID, supervisor)
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()

			var serr *generic.InvalidStateError
			require.ErrorAs(t, err, &serr)
			assert.NotEmpty(t, serr.Current)
		})
	}
}

func TestTransitions_UnknownMember(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Activate(context.Background(), "missing", supervisor)

	assert.ErrorIs(t, err, generic.ErrNotFound)
}

// =============================================================================
// CANCEL
// =============================================================================

func TestCancelMembership(t *testing.T) {
	tests := []struct {
		reason membership.CancellationReason
		want   membership.Status
	}{
		{membership.CancelResignation, membership.StatusResigned},
		{membership.CancelExpulsion, membership.StatusExpelled},
	}

	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			m := f.activeMember(t, applicant("Hadi", "3201000000000009"), "REG-0009", date(2024, time.March, 1))

			f.clock.Set(date(2024, time.June, 10))
			effective := date(2024, time.May, 31)
			cancelled, err := f.svc.CancelMembership(ctx, m.ID, membership.CancelInput{
				Reason:        tt.reason,
				Note:          "board letter 12",
				EffectiveDate: &effective,
			}, supervisor)
			require.NoError(t, err)

			assert.Equal(t, tt.want, cancelled.Status)
			assert.False(t, cancelled.IsActive())
			require.NotNil(t, cancelled.CancelledAt)
			assert.Equal(t, effective, *cancelled.CancelledAt)
			require.NotNil(t, cancelled.CancellationReason)
			assert.Equal(t, tt.reason, *cancelled.CancellationReason)
			assert.Equal(t, "REG-0009", *cancelled.RegistrationNumber, "registration number is kept")

			// Terminal: a second cancel fails
			_, err = f.svc.CancelMembership(ctx, m.ID, membership.CancelInput{Reason: tt.reason}, supervisor)
			assert.ErrorIs(t, err, generic.ErrInvalidState)
		})
	}
}

func TestCancelMembership_NoFurtherTransition(t *testing.T) {
	transitions := []struct {
		name string
		run  func(f *fixture, id generic.EntityID) error
	}{
		{"activate", func(f *fixture, id generic.EntityID) error {
			_, err := f.svc.Activate(context.Background(), id, supervisor)
			return err
		}},
		{"approve", func(f *fixture, id generic.EntityID) error {
			_, err := f.svc.Approve(context.Background(), id, supervisor, membership.ApproveInput{RegistrationNumber: "REG-NEW"})
			return err
		}},
		{"reject", func(f *fixture, id generic.EntityID) error {
			_, err := f.svc.Reject(context.Background(), id, supervisor, "")
			return err
		}},
	}
	reasons := []membership.CancellationReason{membership.CancelResignation, membership.CancelExpulsion}

	for _, reason := range reasons {
		for _, tr := range transitions {
			t.Run(string(reason)+"/"+tr.name, func(t *testing.T) {
				// GIVEN: A cancelled member
				f := newFixture(t)
				ctx := context.Background()
				m := f.activeMember(t, applicant("Nanda", "3201000000000030"), "REG-0030", date(2024, time.March, 1))
				cancelled, err := f.svc.CancelMembership(ctx, m.ID, membership.CancelInput{Reason: reason}, supervisor)
				require.NoError(t, err)

				// WHEN: Any other transition is attempted
				err = tr.run(f, m.ID)

				// THEN: Refused and the record is unchanged
				assert.ErrorIs(t, err, generic.ErrInvalidState)
				got, err := f.svc.Get(ctx, m.ID)
				require.NoError(t, err)
				assert.Equal(t, cancelled.Status, got.Status)
				assert.Equal(t, "REG-0030", *got.RegistrationNumber)
				assert.True(t, got.Status.HasRegistration())
			})
		}
	}
}

func TestCancelMembership_InvalidReason(t *testing.T) {
	f := newFixture(t)
	m := f.activeMember(t, applicant("Indah", "3201000000000010"), "REG-0010", date(2024, time.March, 1))

	_, err := f.svc.CancelMembership(context.Background(), m.ID, membership.CancelInput{Reason: "RETIRED"}, supervisor)

	var verr *generic.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "reason", verr.Field)
}

// =============================================================================
// SOFT DELETE
// =============================================================================

func TestSoftDelete_HidesMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.activeMember(t, applicant("Joko", "3201000000000011"), "REG-0011", date(2024, time.March, 1))

	deleted, err := f.svc.SoftDelete(ctx, m.ID, "entered twice")
	require.NoError(t, err)
	require.NotNil(t, deleted.DeletedAt)

	// Status is untouched, visibility is gone
	assert.Equal(t, membership.StatusActive, deleted.Status)
	assert.False(t, deleted.IsActive())

	_, err = f.svc.Get(ctx, m.ID)
	assert.ErrorIs(t, err, generic.ErrNotFound)

	members, err := f.svc.List(ctx, membership.MemberFilter{})
	require.NoError(t, err)
	assert.Empty(t, members)

	_, err = f.svc.CancelMembership(ctx, m.ID, membership.CancelInput{Reason: membership.CancelResignation}, supervisor)
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestSoftDelete_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.apply(t, applicant("Kartika", "3201000000000012"))

	first, err := f.svc.SoftDelete(ctx, m.ID, "first")
	require.NoError(t, err)

	f.clock.Set(date(2024, time.April, 1))
	second, err := f.svc.SoftDelete(ctx, m.ID, "second")
	require.NoError(t, err)

	assert.Equal(t, *first.DeletedAt, *second.DeletedAt)
	assert.Equal(t, "first", second.DeletionReason)
}

// =============================================================================
// RE-APPLICATION
// =============================================================================

func TestReapplication_LinksCancelledPredecessor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// GIVEN: A member who resigned
	old := f.activeMember(t, applicant("Lestari", "3201000000000013"), "REG-0013", date(2023, time.January, 10))
	f.clock.Set(date(2023, time.December, 1))
	_, err := f.svc.CancelMembership(ctx, old.ID, membership.CancelInput{Reason: membership.CancelResignation}, supervisor)
	require.NoError(t, err)

	// WHEN: The prior cancellation is looked up and the person re-applies
	f.clock.Set(date(2024, time.March, 1))
	prior, err := f.svc.CheckPriorCancellation(ctx, "3201000000000013")
	require.NoError(t, err)
	require.NotNil(t, prior)
	assert.Equal(t, old.ID, prior.ID)

	in := applicant("Lestari", "3201000000000013")
	in.PreviousCancelledMemberID = &prior.ID
	fresh, err := f.svc.Apply(ctx, in, clerk)
	require.NoError(t, err)

	// THEN: A new PENDING record retains the link and starts clean
	assert.NotEqual(t, old.ID, fresh.ID)
	assert.Equal(t, membership.StatusPending, fresh.Status)
	require.NotNil(t, fresh.PreviousCancelledMemberID)
	assert.Equal(t, old.ID, *fresh.PreviousCancelledMemberID)
	assert.Nil(t, fresh.RegistrationNumber)
	assert.Nil(t, fresh.CancelledAt)

	stored, err := f.svc.Get(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, membership.StatusResigned, stored.Status, "predecessor is untouched")
}

func TestReapplication_PredecessorMustBeCancelled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rejected := f.apply(t, applicant("Maya", "3201000000000014"))
	_, err := f.svc.Reject(ctx, rejected.ID, supervisor, "")
	require.NoError(t, err)

	in := applicant("Maya", "3201000000000014")
	in.PreviousCancelledMemberID = &rejected.ID
	_, err = f.svc.Apply(ctx, in, clerk)
	assert.ErrorIs(t, err, generic.ErrInvalidState)

	missing := generic.EntityID("missing")
	in.PreviousCancelledMemberID = &missing
	_, err = f.svc.Apply(ctx, in, clerk)
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestCheckPriorCancellation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("none", func(t *testing.T) {
		prior, err := f.svc.CheckPriorCancellation(ctx, "3201999999999999")
		require.NoError(t, err)
		assert.Nil(t, prior)
	})

	t.Run("empty national id", func(t *testing.T) {
		_, err := f.svc.CheckPriorCancellation(ctx, "")
		assert.ErrorIs(t, err, generic.ErrValidation)
	})

	t.Run("latest cancellation wins", func(t *testing.T) {
		const nid = "3201000000000015"
		first := f.activeMember(t, applicant("Nina", nid), "REG-0015A", date(2020, time.January, 1))
		f.clock.Set(date(2021, time.January, 1))
		_, err := f.svc.CancelMembership(ctx, first.ID, membership.CancelInput{Reason: membership.CancelResignation}, supervisor)
		require.NoError(t, err)

		second := f.activeMember(t, applicant("Nina", nid), "REG-0015B", date(2022, time.January, 1))
		f.clock.Set(date(2023, time.January, 1))
		_, err = f.svc.CancelMembership(ctx, second.ID, membership.CancelInput{Reason: membership.CancelExpulsion}, supervisor)
		require.NoError(t, err)

		prior, err := f.svc.CheckPriorCancellation(ctx, nid)
		require.NoError(t, err)
		require.NotNil(t, prior)
		assert.Equal(t, second.ID, prior.ID)
		assert.Equal(t, membership.StatusExpelled, prior.Status)
	})
}

// =============================================================================
// LIST
// =============================================================================

func TestList_Filters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.activeMember(t, applicant("Oki", "3201000000000016"), "REG-0016", date(2024, time.March, 1))
	other := applicant("Putri", "3201000000000017")
	other.ProvinceID = "PROV-02"
	other.BranchID = "BR-02"
	f.clock.Set(date(2024, time.March, 2))
	b := f.apply(t, other)

	tests := []struct {
		name   string
		filter membership.MemberFilter
		want   []generic.EntityID
	}{
		{"all", membership.MemberFilter{}, []generic.EntityID{a.ID, b.ID}},
		{"province scope", membership.MemberFilter{Scope: membership.Scope{ProvinceID: "PROV-02"}}, []generic.EntityID{b.ID}},
		{"status", membership.MemberFilter{Statuses: []membership.Status{membership.StatusActive}}, []generic.EntityID{a.ID}},
		{"branch", membership.MemberFilter{BranchID: "BR-01"}, []generic.EntityID{a.ID}},
		{"district scope excludes all", membership.MemberFilter{Scope: membership.Scope{DistrictID: "DIST-99"}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			members, err := f.svc.List(ctx, tt.filter)
			require.NoError(t, err)

			var ids []generic.EntityID
			for _, m := range members {
				ids = append(ids, m.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

// =============================================================================
// INSTITUTIONS
// =============================================================================

func TestRegisterInstitution_StartsInactive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inst, err := f.svc.RegisterInstitution(ctx, membership.InstitutionInput{Name: "SDN 1 Bandung", ProvinceID: "PROV-01"}, clerk)
	require.NoError(t, err)
	assert.False(t, inst.Active)
	assert.Nil(t, inst.ApprovedBy)

	got, err := f.svc.GetInstitution(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "SDN 1 Bandung", got.Name)

	_, err = f.svc.RegisterInstitution(ctx, membership.InstitutionInput{}, clerk)
	assert.ErrorIs(t, err, generic.ErrValidation)
}
