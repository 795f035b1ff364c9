package api

import (
	"net/http"

	"github.com/warp/membership-engine/generic"
	"github.com/warp/membership-engine/membership"
)

// Request headers carrying caller identity. Authentication happens in front
// of this service; these values are trusted as given.
const (
	HeaderActorID       = "X-Actor-ID"
	HeaderScopeProvince = "X-Scope-Province"
	HeaderScopeDistrict = "X-Scope-District"
)

// ScopeResolver derives the caller's geographic restriction from a request.
type ScopeResolver interface {
	Resolve(r *http.Request) (membership.Scope, error)
}

// HeaderScopeResolver reads the scope from request headers. Missing
// headers mean no restriction.
type HeaderScopeResolver struct{}

func (HeaderScopeResolver) Resolve(r *http.Request) (membership.Scope, error) {
	return membership.Scope{
		ProvinceID: r.Header.Get(HeaderScopeProvince),
		DistrictID: r.Header.Get(HeaderScopeDistrict),
	}, nil
}

// actorFrom returns the acting user, or a validation error if absent.
func actorFrom(r *http.Request) (generic.ActorID, error) {
	actor := r.Header.Get(HeaderActorID)
	if actor == "" {
		return "", &generic.ValidationError{Field: HeaderActorID, Message: "header is required"}
	}
	return generic.ActorID(actor), nil
}
