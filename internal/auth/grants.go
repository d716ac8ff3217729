package auth

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/heartmarshall/engagement-backend/internal/domain"
	"github.com/heartmarshall/engagement-backend/internal/spec"
)

// PermissionEntity is the entity holding explicit per-user grants.
const PermissionEntity = "permission"

type specRegistry interface {
	Get(name string) (*spec.EntitySpec, error)
}

type recordLister interface {
	List(ctx context.Context, s *spec.EntitySpec, q domain.RecordQuery) ([]domain.Record, error)
}

// Authenticator turns a bearer token into a domain.User carrying the
// explicit grants stored for that user.
type Authenticator struct {
	verifier *Verifier
	reg      specRegistry
	records  recordLister
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(verifier *Verifier, reg specRegistry, records recordLister) *Authenticator {
	return &Authenticator{verifier: verifier, reg: reg, records: records}
}

// Authenticate verifies token and loads the user's grants.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (domain.User, error) {
	user, err := a.verifier.Verify(token)
	if err != nil {
		return domain.User{}, err
	}
	grants, err := a.Grants(ctx, user.ID)
	if err != nil {
		return domain.User{}, err
	}
	user.Grants = grants
	return user, nil
}

// Grants returns the active "entity:action" grants of userID, sorted.
func (a *Authenticator) Grants(ctx context.Context, userID uuid.UUID) ([]string, error) {
	es, err := a.reg.Get(PermissionEntity)
	if err != nil {
		return nil, err
	}
	rows, err := a.records.List(ctx, es, domain.RecordQuery{
		Filter: map[string]any{"user_id": userID, "granted": true},
	})
	if err != nil {
		return nil, fmt.Errorf("load grants for %s: %w", userID, err)
	}

	grants := make([]string, 0, len(rows))
	for _, r := range rows {
		g := r.String("entity") + ":" + r.String("action")
		if !slices.Contains(grants, g) {
			grants = append(grants, g)
		}
	}
	slices.Sort(grants)
	return grants, nil
}
