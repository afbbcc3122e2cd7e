package notifier

import (
	"context"
	"time"

	"github.com/opscart/vm-billing-platform/pkg/models"
)

// StatusChangeEvent is the outbound payload published whenever a VM's
// status changes, whether by reconciliation or a manual operation. The
// notification transport fans it out to live clients.
type StatusChangeEvent struct {
	VMID       string          `json:"vm_id"`
	ExternalID string          `json:"external_id,omitempty"`
	Name       string          `json:"name"`
	OldStatus  models.VMStatus `json:"old_status"`
	NewStatus  models.VMStatus `json:"new_status"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Publisher delivers status-change events to the notification transport.
type Publisher interface {
	PublishStatusChange(ctx context.Context, ev StatusChangeEvent) error
	Close() error
}

// Noop discards events. Used in tests and in runs without a broker.
type Noop struct{}

func (Noop) PublishStatusChange(ctx context.Context, ev StatusChangeEvent) error { return nil }

func (Noop) Close() error { return nil }
