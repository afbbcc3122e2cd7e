package models

import "time"

// AdjustmentKind classifies a detected aggregate change.
type AdjustmentKind string

const (
	AdjustCPUUpgrade       AdjustmentKind = "cpu_upgrade"
	AdjustCPUDowngrade     AdjustmentKind = "cpu_downgrade"
	AdjustMemoryUpgrade    AdjustmentKind = "memory_upgrade"
	AdjustMemoryDowngrade  AdjustmentKind = "memory_downgrade"
	AdjustStorageUpgrade   AdjustmentKind = "storage_upgrade"
	AdjustStorageDowngrade AdjustmentKind = "storage_downgrade"
)

// ResourceAdjustmentLogEntry records one detected change to a system's
// cached totals. Append-only; old/new values are kept for all three
// dimensions regardless of which one named the kind.
type ResourceAdjustmentLogEntry struct {
	ID        string         `json:"id"`
	SystemID  string         `json:"system_id"`
	Kind      AdjustmentKind `json:"kind"`
	Old       ResourceTotals `json:"old"`
	New       ResourceTotals `json:"new"`
	CreatedAt time.Time      `json:"created_at"`
}

// ClassifyAdjustment names an aggregate change after the first dimension, in
// cpu, memory, storage order, whose value moved. This priority is the
// contract: when several dimensions change in one pass the entry is named
// after the highest-priority one, and the per-dimension old/new fields carry
// the rest. Returns ok=false when nothing changed.
func ClassifyAdjustment(old, new ResourceTotals) (AdjustmentKind, bool) {
	switch {
	case new.CPUCores > old.CPUCores:
		return AdjustCPUUpgrade, true
	case new.CPUCores < old.CPUCores:
		return AdjustCPUDowngrade, true
	case new.MemoryGB > old.MemoryGB:
		return AdjustMemoryUpgrade, true
	case new.MemoryGB < old.MemoryGB:
		return AdjustMemoryDowngrade, true
	case new.StorageGB > old.StorageGB:
		return AdjustStorageUpgrade, true
	case new.StorageGB < old.StorageGB:
		return AdjustStorageDowngrade, true
	}
	return "", false
}
