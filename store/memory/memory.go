// Package memory provides an in-memory membership.TxStore (for testing/dev).
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/membership-engine/generic"
	"github.com/warp/membership-engine/membership"
)

// =============================================================================
// MEMORY STORE - In-memory implementation
// =============================================================================

type Store struct {
	mu sync.RWMutex
	data
}

type data struct {
	members      map[generic.EntityID]membership.Member
	payments     map[membership.PaymentID]membership.Payment
	institutions map[generic.EntityID]membership.Institution
	approvals    map[generic.ApprovalID]generic.Approval
}

func New() *Store {
	return &Store{data: data{
		members:      make(map[generic.EntityID]membership.Member),
		payments:     make(map[membership.PaymentID]membership.Payment),
		institutions: make(map[generic.EntityID]membership.Institution),
		approvals:    make(map[generic.ApprovalID]generic.Approval),
	}}
}

var _ membership.TxStore = (*Store)(nil)

func (m *Store) CreateMember(ctx context.Context, mem membership.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().CreateMember(ctx, mem)
}

func (m *Store) UpdateMember(ctx context.Context, mem membership.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().UpdateMember(ctx, mem)
}

func (m *Store) GetMember(ctx context.Context, id generic.EntityID) (*membership.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().GetMember(ctx, id)
}

func (m *Store) ListMembers(ctx context.Context, filter membership.MemberFilter) ([]membership.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().ListMembers(ctx, filter)
}

func (m *Store) SavePayment(ctx context.Context, p membership.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().SavePayment(ctx, p)
}

func (m *Store) GetPayment(ctx context.Context, id membership.PaymentID) (*membership.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().GetPayment(ctx, id)
}

func (m *Store) DeletePayment(ctx context.Context, id membership.PaymentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().DeletePayment(ctx, id)
}

func (m *Store) ListPayments(ctx context.Context, filter membership.PaymentFilter) ([]membership.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().ListPayments(ctx, filter)
}

func (m *Store) SaveInstitution(ctx context.Context, inst membership.Institution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().SaveInstitution(ctx, inst)
}

func (m *Store) GetInstitution(ctx context.Context, id generic.EntityID) (*membership.Institution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().GetInstitution(ctx, id)
}

func (m *Store) SaveApproval(ctx context.Context, a generic.Approval) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().SaveApproval(ctx, a)
}

func (m *Store) GetApproval(ctx context.Context, id generic.ApprovalID) (*generic.Approval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().GetApproval(ctx, id)
}

func (m *Store) ListApprovals(ctx context.Context, filter generic.ApprovalFilter) ([]generic.Approval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().ListApprovals(ctx, filter)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// The lock is held for the whole of fn, so units of work are serialized.
func (m *Store) WithTx(ctx context.Context, fn func(membership.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.data.clone()
	if err := fn(m.view()); err != nil {
		m.data = snapshot
		return err
	}
	return nil
}

func (m *Store) view() *view {
	return &view{d: &m.data}
}

func (d data) clone() data {
	c := data{
		members:      make(map[generic.EntityID]membership.Member, len(d.members)),
		payments:     make(map[membership.PaymentID]membership.Payment, len(d.payments)),
		institutions: make(map[generic.EntityID]membership.Institution, len(d.institutions)),
		approvals:    make(map[generic.ApprovalID]generic.Approval, len(d.approvals)),
	}
	for k, v := range d.members {
		c.members[k] = v
	}
	for k, v := range d.payments {
		c.payments[k] = v
	}
	for k, v := range d.institutions {
		c.institutions[k] = v
	}
	for k, v := range d.approvals {
		c.approvals[k] = v
	}
	return c
}

// =============================================================================
// VIEW - Unlocked access used inside and outside transactions
// =============================================================================

// view implements membership.Store without locking. Stored values are
// copied in and out, so callers never alias the maps' contents.
type view struct {
	d *data
}

func (v *view) CreateMember(_ context.Context, mem membership.Member) error {
	if err := checkRegistration(mem); err != nil {
		return err
	}
	if _, exists := v.d.members[mem.ID]; exists {
		return &generic.ConflictError{Kind: "member", ID: string(mem.ID), Message: "already exists"}
	}
	v.d.members[mem.ID] = mem
	return nil
}

func (v *view) UpdateMember(_ context.Context, mem membership.Member) error {
	if err := checkRegistration(mem); err != nil {
		return err
	}
	if _, exists := v.d.members[mem.ID]; !exists {
		return &generic.NotFoundError{Kind: "member", ID: string(mem.ID)}
	}
	v.d.members[mem.ID] = mem
	return nil
}

// checkRegistration mirrors chk_members_registration in the SQL schema.
func checkRegistration(mem membership.Member) error {
	if mem.Status.HasRegistration() != (mem.RegistrationNumber != nil) {
		return fmt.Errorf("member %s: registration number does not match status %s", mem.ID, mem.Status)
	}
	return nil
}

func (v *view) GetMember(_ context.Context, id generic.EntityID) (*membership.Member, error) {
	mem, ok := v.d.members[id]
	if !ok {
		return nil, &generic.NotFoundError{Kind: "member", ID: string(id)}
	}
	return &mem, nil
}

func (v *view) ListMembers(_ context.Context, filter membership.MemberFilter) ([]membership.Member, error) {
	var result []membership.Member
	for _, mem := range v.d.members {
		if filter.Matches(mem) {
			result = append(result, mem)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// SavePayment mirrors the SQL partial unique index on approved rows.
func (v *view) SavePayment(_ context.Context, p membership.Payment) error {
	if p.IsApproved {
		for id, other := range v.d.payments {
			if id != p.ID && other.IsApproved && other.MemberID == p.MemberID && other.Period == p.Period {
				return &generic.ConflictError{
					Kind: "payment", ID: string(id),
					Message: "approved payment already exists for " + p.Period.String(),
				}
			}
		}
	}
	v.d.payments[p.ID] = p
	return nil
}

func (v *view) GetPayment(_ context.Context, id membership.PaymentID) (*membership.Payment, error) {
	p, ok := v.d.payments[id]
	if !ok {
		return nil, &generic.NotFoundError{Kind: "payment", ID: string(id)}
	}
	return &p, nil
}

func (v *view) DeletePayment(_ context.Context, id membership.PaymentID) error {
	if _, ok := v.d.payments[id]; !ok {
		return &generic.NotFoundError{Kind: "payment", ID: string(id)}
	}
	delete(v.d.payments, id)
	return nil
}

func (v *view) ListPayments(_ context.Context, filter membership.PaymentFilter) ([]membership.Payment, error) {
	var result []membership.Payment
	for _, p := range v.d.payments {
		if filter.Matches(p) {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Period != result[j].Period {
			return result[i].Period.Before(result[j].Period)
		}
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (v *view) SaveInstitution(_ context.Context, inst membership.Institution) error {
	v.d.institutions[inst.ID] = inst
	return nil
}

func (v *view) GetInstitution(_ context.Context, id generic.EntityID) (*membership.Institution, error) {
	inst, ok := v.d.institutions[id]
	if !ok {
		return nil, &generic.NotFoundError{Kind: "institution", ID: string(id)}
	}
	return &inst, nil
}

func (v *view) SaveApproval(_ context.Context, a generic.Approval) error {
	a.RequestData = append([]byte(nil), a.RequestData...)
	v.d.approvals[a.ID] = a
	return nil
}

func (v *view) GetApproval(_ context.Context, id generic.ApprovalID) (*generic.Approval, error) {
	a, ok := v.d.approvals[id]
	if !ok {
		return nil, &generic.NotFoundError{Kind: "approval", ID: string(id)}
	}
	return &a, nil
}

func (v *view) ListApprovals(_ context.Context, filter generic.ApprovalFilter) ([]generic.Approval, error) {
	var result []generic.Approval
	for _, a := range v.d.approvals {
		if filter.Matches(a) {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].RequestedAt.Equal(result[j].RequestedAt) {
			return result[i].RequestedAt.Before(result[j].RequestedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}
