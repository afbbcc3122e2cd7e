package cloud

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when the remote side has no item or flavor with
// the requested id.
var ErrNotFound = errors.New("not found upstream")

// InventoryItem is one compute instance as reported by the remote control
// plane snapshot.
type InventoryItem struct {
	ExternalID       string     `json:"id"`
	Name             string     `json:"name"`
	Status           string     `json:"status"`
	FlavorID         string     `json:"flavor_id"`
	Addresses        []string   `json:"addresses"`
	MACAddress       string     `json:"mac_address"`
	AvailabilityZone string     `json:"availability_zone"`
	LaunchedAt       *time.Time `json:"launched_at,omitempty"`
	CreatedAt        *time.Time `json:"created_at,omitempty"`
}

// PrimaryAddress returns the first reported network address, or "".
func (i *InventoryItem) PrimaryAddress() string {
	if len(i.Addresses) == 0 {
		return ""
	}
	return i.Addresses[0]
}

// Flavor is a remote instance size definition.
type Flavor struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	VCPUs int    `json:"vcpus"`
	RAMMB int    `json:"ram_mb"`
	DiskG int    `json:"disk_gb"`
}

// Client is the remote control-plane collaborator. Jobs receive an
// implementation at construction time; tests inject a fake.
type Client interface {
	// ListInventory returns the full remote snapshot.
	ListInventory(ctx context.Context) ([]InventoryItem, error)
	// GetItem looks up a single instance by external id. Returns
	// ErrNotFound when the instance no longer exists upstream.
	GetItem(ctx context.Context, externalID string) (*InventoryItem, error)
	// GetSpec resolves a flavor reference. Returns ErrNotFound for
	// unknown flavors.
	GetSpec(ctx context.Context, flavorID string) (*Flavor, error)
}
