package ecs

import (
	"fmt"
	"math"
)

// EntityLocation is where an entity's components live: an archetype and a row in it.
type EntityLocation struct {
	ArchetypeId uint32
	Row         uint32
}

// InvalidLocation marks an entity that has no components placed anywhere.
var InvalidLocation = EntityLocation{ArchetypeId: math.MaxUint32, Row: math.MaxUint32}

// IsValid reports whether the location points at a real row
func (l EntityLocation) IsValid() bool {
	return l != InvalidLocation
}

func (l EntityLocation) String() string {
	if !l.IsValid() {
		return "invalid"
	}
	return fmt.Sprintf("archetype=%d,row=%d", l.ArchetypeId, l.Row)
}
