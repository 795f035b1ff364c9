package membership

import (
	"context"
	"fmt"

	"github.com/warp/membership-engine/factory"
	"github.com/warp/membership-engine/generic"
)

// =============================================================================
// INSTITUTIONS
// =============================================================================

type InstitutionInput struct {
	Name       string `json:"name" validate:"required,max=200"`
	ProvinceID string `json:"provinceId"`
	DistrictID string `json:"districtId"`
}

// RegisterInstitution stores a new, inactive institution. It becomes
// active when an INSTITUTION approval for it is approved.
func (svc *Service) RegisterInstitution(ctx context.Context, in InstitutionInput, createdBy generic.ActorID) (*Institution, error) {
	if err := factory.Validate(in); err != nil {
		return nil, err
	}
	inst := Institution{
		ID:         generic.EntityID(generic.NewID()),
		Name:       in.Name,
		ProvinceID: in.ProvinceID,
		DistrictID: in.DistrictID,
		CreatedBy:  createdBy,
		CreatedAt:  svc.clock.Now(),
	}
	if err := svc.store.SaveInstitution(ctx, inst); err != nil {
		return nil, fmt.Errorf("failed to save institution: %w", err)
	}
	svc.log.InfoContext(ctx, "institution registered", "institution_id", inst.ID, "actor", createdBy)
	return &inst, nil
}

func (svc *Service) GetInstitution(ctx context.Context, id generic.EntityID) (*Institution, error) {
	return svc.store.GetInstitution(ctx, id)
}
