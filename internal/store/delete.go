package store

import (
	"context"

	"github.com/randalmurphal/tpm/internal/errors"
	"github.com/randalmurphal/tpm/internal/model"
)

// DeletableKinds lists the kinds Delete accepts.
func DeletableKinds() []string {
	return []string{"org", "project", "ticket", "task", "note"}
}

// Delete removes the entity of the given kind. An empty kind is inferred
// from the id prefix. Reports whether the entity existed.
func (s *Store) Delete(ctx context.Context, kind model.EntityKind, id string) (bool, error) {
	if id == "" {
		return false, errors.Required("entity", "id")
	}
	if kind == "" {
		kind = model.KindOfID(id)
	}
	switch kind {
	case model.KindOrg:
		return s.DeleteOrg(ctx, id)
	case model.KindProject:
		return s.DeleteProject(ctx, id)
	case model.KindTicket:
		return s.DeleteTicket(ctx, id)
	case model.KindTask:
		return s.DeleteTask(ctx, id)
	case model.KindNote:
		return s.DeleteNote(ctx, id)
	}
	if kind == "" {
		return false, errors.Invalid("entity", "id", "cannot infer the kind of "+id)
	}
	return false, errors.InvalidEnum("entity", "kind", string(kind), DeletableKinds())
}
