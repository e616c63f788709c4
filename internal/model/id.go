package model

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// NewID returns a fresh id for kind: the kind prefix, a dash and 16 hex chars.
func NewID(kind EntityKind) string {
	u := uuid.New()
	return kind.IDPrefix() + "-" + hex.EncodeToString(u[:8])
}

// KindOfID infers the entity kind from an id prefix. Unknown prefixes yield "".
func KindOfID(id string) EntityKind {
	prefix, _, ok := strings.Cut(id, "-")
	if !ok {
		return ""
	}
	for _, k := range []EntityKind{KindOrg, KindProject, KindTicket, KindTask, KindNote} {
		if k.IDPrefix() == prefix {
			return k
		}
	}
	return ""
}
