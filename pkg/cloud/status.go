package cloud

import "github.com/opscart/vm-billing-platform/pkg/models"

// Remote status vocabulary. Anything else passes through unmapped.
const (
	RemoteActive  = "ACTIVE"
	RemoteShutoff = "SHUTOFF"
	RemotePaused  = "PAUSED"
	RemoteError   = "ERROR"
)

// MapStatus translates a remote status into the local enum. The second
// return is false for unrecognized remote states, in which case the caller
// keeps the current local status.
func MapStatus(remote string) (models.VMStatus, bool) {
	switch remote {
	case RemoteActive:
		return models.VMStatusRunning, true
	case RemoteShutoff:
		return models.VMStatusStopped, true
	case RemotePaused:
		return models.VMStatusPaused, true
	case RemoteError:
		return models.VMStatusError, true
	default:
		return "", false
	}
}
