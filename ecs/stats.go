package ecs

// StorageStats is a snapshot of storage and allocator occupancy.
type StorageStats struct {
	ArchetypeCount      int
	TotalEntityCount    int
	TotalSlots          int
	FreeSlots           int
	PendingReservations int
	PendingSpawns       int
	ArchetypeBreakdown  []ArchetypeStats
}

// ArchetypeStats describes a single archetype.
type ArchetypeStats struct {
	Id             uint32
	ComponentTypes []string
	EntityCount    int
}

// CollectStats gathers statistics about the storage. Archetypes without
// entities are skipped in the breakdown but counted in ArchetypeCount.
func (s *Storage) CollectStats() StorageStats {
	stats := StorageStats{
		ArchetypeCount:      len(s.archetypes),
		TotalEntityCount:    s.entities.Len(),
		TotalSlots:          s.entities.TotalCount(),
		FreeSlots:           s.entities.FreeCount(),
		PendingReservations: s.entities.PendingCount(),
		PendingSpawns:       s.pendingSpawns.Size(),
	}

	for _, archetype := range s.archetypes {
		if archetype.Len() == 0 {
			continue
		}
		names := make([]string, len(archetype.types))
		for i, t := range archetype.types {
			names[i] = t.String()
		}
		stats.ArchetypeBreakdown = append(stats.ArchetypeBreakdown, ArchetypeStats{
			Id:             archetype.id,
			ComponentTypes: names,
			EntityCount:    archetype.Len(),
		})
	}

	return stats
}
