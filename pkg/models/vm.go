package models

import "time"

// VMStatus is the local lifecycle status of a virtual machine record.
type VMStatus string

const (
	VMStatusRunning VMStatus = "running"
	VMStatusStopped VMStatus = "stopped"
	VMStatusPaused  VMStatus = "paused"
	VMStatusError   VMStatus = "error"
)

// VirtualMachineRecord is the local inventory row for one compute instance.
// ExternalID links it to the remote control plane and is unique when set;
// manually provisioned VMs may not have one.
type VirtualMachineRecord struct {
	ID               string     `json:"id"`
	ExternalID       string     `json:"external_id,omitempty"`
	SystemID         string     `json:"system_id"`
	Name             string     `json:"name"`
	CPUCores         int        `json:"cpu_cores"`
	MemoryGB         int        `json:"memory_gb"`
	DiskGB           int        `json:"disk_gb"`
	Status           VMStatus   `json:"status"`
	IPAddress        string     `json:"ip_address,omitempty"`
	MACAddress       string     `json:"mac_address,omitempty"`
	AvailabilityZone string     `json:"availability_zone,omitempty"`
	LastStartAt      *time.Time `json:"last_start_at,omitempty"`
	LastStopAt       *time.Time `json:"last_stop_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// CanTransition reports whether a manual lifecycle operation may move the VM
// from its current status to the target status. Reconciliation does not use
// this; it converges to whatever the remote side reports.
func (v *VirtualMachineRecord) CanTransition(target VMStatus) bool {
	switch target {
	case VMStatusRunning:
		return v.Status == VMStatusStopped || v.Status == VMStatusPaused
	case VMStatusStopped:
		return v.Status == VMStatusRunning || v.Status == VMStatusPaused || v.Status == VMStatusError
	case VMStatusPaused:
		return v.Status == VMStatusRunning
	default:
		return false
	}
}
