package driver

import "fmt"

// UnknownVolumeError is returned when an operation names a block device
// that does not exist under the driver's tenant account.
type UnknownVolumeError struct {
	BlockDeviceID string
}

func (e *UnknownVolumeError) Error() string {
	return fmt.Sprintf("unknown volume %q", e.BlockDeviceID)
}

// AlreadyAttachedError is returned when an attach is requested for a
// volume whose target is already logged in on this host.
type AlreadyAttachedError struct {
	BlockDeviceID string
}

func (e *AlreadyAttachedError) Error() string {
	return fmt.Sprintf("volume %q is already attached", e.BlockDeviceID)
}

// UnattachedVolumeError is returned when a detach is requested for a
// volume with no local device path.
type UnattachedVolumeError struct {
	BlockDeviceID string
}

func (e *UnattachedVolumeError) Error() string {
	return fmt.Sprintf("volume %q is not attached", e.BlockDeviceID)
}

// VolumeStateError is returned when an operation is valid in form but
// rejected by the volume's current state, such as a shrinking resize.
type VolumeStateError struct {
	BlockDeviceID string
	Reason        string
}

func (e *VolumeStateError) Error() string {
	return fmt.Sprintf("volume %q: %s", e.BlockDeviceID, e.Reason)
}

// AttachError is returned when iSCSI discovery or login fails while
// attaching a volume.
type AttachError struct {
	BlockDeviceID string
	Reason        string
	Err           error
}

func (e *AttachError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("attach volume %q: %s: %v", e.BlockDeviceID, e.Reason, e.Err)
	}
	return fmt.Sprintf("attach volume %q: %s", e.BlockDeviceID, e.Reason)
}

func (e *AttachError) Unwrap() error { return e.Err }

// BootstrapError wraps a failure during backend bootstrap with the step
// that failed. Bootstrap errors are fatal; the driver constructor does
// not return a partially initialized driver.
type BootstrapError struct {
	Step string
	Err  error
}

func (e *BootstrapError) Error() string {
	return fmt.Sprintf("bootstrap %s: %v", e.Step, e.Err)
}

func (e *BootstrapError) Unwrap() error { return e.Err }
