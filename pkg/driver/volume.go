package driver

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"git.srvlab.io/whiskey/solidfire-block-driver/pkg/iscsi"
	"git.srvlab.io/whiskey/solidfire-block-driver/pkg/solidfire"
	"git.srvlab.io/whiskey/solidfire-block-driver/pkg/utils"
)

// CreateVolume provisions a volume named after the dataset ID and adds
// it to the tenant's access group before returning, so it is already
// visible to every registered initiator. An unknown or empty profile
// name provisions without QoS; the cluster applies its defaults.
//
// If the volume is created but cannot be added to the access group the
// error names the orphaned volume ID. The volume is deliberately not
// deleted: the failure may be transient and a re-run of the same
// dataset can be reconciled by an operator, while an automatic delete
// could destroy a volume another host just finished wiring up.
func (d *Driver) CreateVolume(datasetID uuid.UUID, sizeBytes int64, profileName string) (vol *BlockVolume, err error) {
	start := time.Now()
	defer func() { d.recordOp("create", start, err) }()

	name := utils.ComposeVolumeName(d.volumePrefix, datasetID)

	opts := solidfire.CreateVolumeOptions{
		Name:      name,
		AccountID: d.accountID,
		TotalSize: sizeBytes,
	}
	if p, ok := d.profiles.Resolve(profileName); ok {
		opts.QOS = &solidfire.QoS{
			MinIOPS:   p.MinIOPS,
			MaxIOPS:   p.MaxIOPS,
			BurstIOPS: p.BurstIOPS,
		}
	}

	volumeID, err := d.client.CreateVolume(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create volume %q: %w", name, err)
	}

	if err := d.client.AddVolumesToVolumeAccessGroup(d.vagID, []int64{volumeID}); err != nil {
		return nil, fmt.Errorf("volume %d created but not added to access group %d, manual cleanup required: %w",
			volumeID, d.vagID, err)
	}

	klog.V(2).Infof("Created volume %d for dataset %s (%d bytes, profile %q)", volumeID, datasetID, sizeBytes, profileName)
	return &BlockVolume{
		BlockDeviceID: utils.FormatVolumeID(volumeID),
		DatasetID:     datasetID,
		SizeBytes:     sizeBytes,
	}, nil
}

// DestroyVolume deletes a volume. Deleting a volume that does not exist
// returns UnknownVolumeError.
func (d *Driver) DestroyVolume(blockdeviceID string) (err error) {
	start := time.Now()
	defer func() { d.recordOp("destroy", start, err) }()

	volumeID, perr := utils.ParseVolumeID(blockdeviceID)
	if perr != nil {
		return &UnknownVolumeError{BlockDeviceID: blockdeviceID}
	}

	if err := d.client.DeleteVolume(volumeID); err != nil {
		var reqErr *solidfire.RequestError
		if errors.As(err, &reqErr) && reqErr.IsVolumeNotFound() {
			return &UnknownVolumeError{BlockDeviceID: blockdeviceID}
		}
		return err
	}

	klog.V(2).Infof("Destroyed volume %s", blockdeviceID)
	return nil
}

// ResizeVolume grows a volume. Shrinking is rejected with
// VolumeStateError before any cluster call is made.
func (d *Driver) ResizeVolume(blockdeviceID string, sizeBytes int64) (err error) {
	start := time.Now()
	defer func() { d.recordOp("resize", start, err) }()

	volume, err := d.lookupVolume(blockdeviceID)
	if err != nil {
		return err
	}

	if sizeBytes <= volume.TotalSize {
		return &VolumeStateError{
			BlockDeviceID: blockdeviceID,
			Reason:        fmt.Sprintf("cannot shrink from %d to %d bytes", volume.TotalSize, sizeBytes),
		}
	}

	if err := d.client.ModifyVolume(volume.VolumeID, sizeBytes); err != nil {
		return fmt.Errorf("failed to resize volume %s: %w", blockdeviceID, err)
	}
	return nil
}

// ListVolumes enumerates the tenant's volumes. Attachment is judged
// locally: a volume whose device path exists on this host is reported
// as attached to this host's instance ID. Volumes under the account
// whose names do not carry the driver's prefix are skipped.
func (d *Driver) ListVolumes() (vols []BlockVolume, err error) {
	start := time.Now()
	defer func() { d.recordOp("list", start, err) }()

	volumes, err := d.client.ListVolumesForAccount(d.accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list volumes: %w", err)
	}

	out := make([]BlockVolume, 0, len(volumes))
	for _, v := range volumes {
		datasetID, derr := utils.DatasetIDFromVolumeName(d.volumePrefix, v.Name)
		if derr != nil {
			klog.V(4).Infof("Skipping volume %d (%q): %v", v.VolumeID, v.Name, derr)
			continue
		}

		attachedTo := ""
		if d.initiator.PathExists(iscsi.DevicePath(d.svip, v.IQN), pathProbeTimeout) {
			instanceID, ierr := d.ComputeInstanceID()
			if ierr != nil {
				return nil, ierr
			}
			attachedTo = instanceID
		}

		out = append(out, BlockVolume{
			BlockDeviceID: utils.FormatVolumeID(v.VolumeID),
			DatasetID:     datasetID,
			SizeBytes:     v.TotalSize,
			AttachedTo:    attachedTo,
		})
	}
	return out, nil
}

// AttachVolume logs this host into the volume's iSCSI target. The
// volume must not already be attached: both the local device path and
// the cluster's session table are checked first, so a session from any
// host blocks the attach.
func (d *Driver) AttachVolume(blockdeviceID, attachTo string) (vol *BlockVolume, err error) {
	start := time.Now()
	defer func() { d.recordOp("attach", start, err) }()

	volume, err := d.lookupVolume(blockdeviceID)
	if err != nil {
		return nil, err
	}

	devicePath := iscsi.DevicePath(d.svip, volume.IQN)
	if d.initiator.PathExists(devicePath, pathProbeTimeout) {
		return nil, &AlreadyAttachedError{BlockDeviceID: blockdeviceID}
	}

	sessions, err := d.client.ListISCSISessions()
	if err != nil {
		return nil, fmt.Errorf("failed to list iSCSI sessions: %w", err)
	}
	for _, s := range sessions {
		if s.VolumeID == volume.VolumeID {
			klog.V(4).Infof("Volume %s already has a session from %s", blockdeviceID, s.InitiatorIQN)
			return nil, &AlreadyAttachedError{BlockDeviceID: blockdeviceID}
		}
	}

	targets, err := d.initiator.Discover(d.svip)
	if err != nil {
		return nil, &AttachError{BlockDeviceID: blockdeviceID, Reason: "target discovery failed", Err: err}
	}
	if !containsTarget(targets, volume.IQN) {
		return nil, &AttachError{
			BlockDeviceID: blockdeviceID,
			Reason:        fmt.Sprintf("target %s not advertised by %s", volume.IQN, d.svip),
		}
	}

	loginStart := time.Now()
	lerr := d.initiator.Login(d.svip, volume.IQN)
	if d.metrics != nil {
		d.metrics.RecordLogin(lerr, time.Since(loginStart))
	}
	if lerr != nil {
		return nil, &AttachError{BlockDeviceID: blockdeviceID, Reason: "login failed", Err: lerr}
	}

	datasetID, derr := utils.DatasetIDFromVolumeName(d.volumePrefix, volume.Name)
	if derr != nil {
		return nil, fmt.Errorf("attached volume %s has unexpected name %q: %w", blockdeviceID, volume.Name, derr)
	}

	klog.V(2).Infof("Attached volume %s to %s", blockdeviceID, attachTo)
	return &BlockVolume{
		BlockDeviceID: blockdeviceID,
		DatasetID:     datasetID,
		SizeBytes:     volume.TotalSize,
		AttachedTo:    attachTo,
	}, nil
}

// DetachVolume logs this host out of the volume's target. Detaching a
// volume with no local device path returns UnattachedVolumeError.
func (d *Driver) DetachVolume(blockdeviceID string) (err error) {
	start := time.Now()
	defer func() { d.recordOp("detach", start, err) }()

	volume, err := d.lookupVolume(blockdeviceID)
	if err != nil {
		return err
	}

	devicePath := iscsi.DevicePath(d.svip, volume.IQN)
	if !d.initiator.PathExists(devicePath, pathProbeTimeout) {
		return &UnattachedVolumeError{BlockDeviceID: blockdeviceID}
	}

	if err := d.initiator.Logout(d.svip, volume.IQN); err != nil {
		return fmt.Errorf("failed to detach volume %s: %w", blockdeviceID, err)
	}
	if d.metrics != nil {
		d.metrics.RecordLogout()
	}

	klog.V(2).Infof("Detached volume %s", blockdeviceID)
	return nil
}

// GetDevicePath returns the by-path device node for an attached volume.
// The path is derived from the storage VIP and the volume's target IQN
// and is returned whether or not the node currently exists.
func (d *Driver) GetDevicePath(blockdeviceID string) (string, error) {
	volume, err := d.lookupVolume(blockdeviceID)
	if err != nil {
		return "", err
	}
	return iscsi.DevicePath(d.svip, volume.IQN), nil
}

// lookupVolume finds a tenant volume by its decimal ID. IDs are
// compared numerically so "007" and "7" name the same volume. A volume
// that is not in the account's listing yields UnknownVolumeError.
func (d *Driver) lookupVolume(blockdeviceID string) (*solidfire.Volume, error) {
	volumeID, err := utils.ParseVolumeID(blockdeviceID)
	if err != nil {
		return nil, &UnknownVolumeError{BlockDeviceID: blockdeviceID}
	}

	volumes, err := d.client.ListVolumesForAccount(d.accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list volumes: %w", err)
	}

	for i := range volumes {
		if volumes[i].VolumeID == volumeID {
			return &volumes[i], nil
		}
	}
	return nil, &UnknownVolumeError{BlockDeviceID: blockdeviceID}
}

func containsTarget(targets []string, iqn string) bool {
	for _, t := range targets {
		if t == iqn {
			return true
		}
	}
	return false
}
