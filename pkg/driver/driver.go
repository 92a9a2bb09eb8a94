// Package driver implements the block device driver: backend bootstrap
// against the SolidFire cluster and the volume lifecycle operations
// (create, destroy, resize, list, attach, detach).
//
// A Driver is fully initialized by New. Bootstrap is idempotent: the
// tenant account, volume access group, initiator registrations and the
// storage VIP are looked up first and only created or extended when
// missing, so repeated construction against the same cluster converges
// on the same backend state.
package driver

import (
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"git.srvlab.io/whiskey/solidfire-block-driver/pkg/iscsi"
	"git.srvlab.io/whiskey/solidfire-block-driver/pkg/observability"
	"git.srvlab.io/whiskey/solidfire-block-driver/pkg/profile"
	"git.srvlab.io/whiskey/solidfire-block-driver/pkg/solidfire"
)

const (
	// AllocationUnitBytes is the volume size granularity. Requested sizes
	// are provisioned as-is; callers are expected to round to this unit.
	AllocationUnitBytes int64 = 1 << 30

	// pathProbeTimeout bounds the device path existence check used by
	// list, attach and detach. The path either exists already or it
	// does not; no login is in flight during these probes.
	pathProbeTimeout = 1 * time.Second
)

// Config carries everything needed to construct a Driver.
type Config struct {
	// Endpoint is the cluster management endpoint:
	// https://<login>:<password>@<mvip>[:<port>]/json-rpc/<version>.
	// Ignored when Client is set.
	Endpoint string

	// ClusterID names the tenant. It becomes both the account name and
	// the volume access group name on the cluster.
	ClusterID string

	// VolumePrefix is prepended to dataset IDs to form volume names
	// (default "flock").
	VolumePrefix string

	// InitiatorName overrides initiator discovery from
	// /etc/iscsi/initiatorname.iscsi. Empty means discover.
	InitiatorName string

	// SVIP overrides storage VIP discovery via GetClusterInfo. It must
	// include the port, e.g. "10.10.23.1:3260". Empty means discover.
	SVIP string

	// Profiles maps profile names to QoS settings. Merged over the
	// built-in gold/silver/bronze tiers.
	Profiles map[string]profile.Profile

	// TLSInsecureSkipVerify is passed through to the cluster client.
	TLSInsecureSkipVerify bool

	// Client replaces the HTTPS cluster client. Used by tests.
	Client solidfire.Client

	// Initiator replaces the iscsiadm-backed initiator. Used by tests.
	Initiator iscsi.Initiator

	// Metrics, when set, receives operation counters and timings.
	Metrics *observability.Metrics
}

// BlockVolume describes one volume as seen by the driver.
type BlockVolume struct {
	// BlockDeviceID is the cluster volume ID in decimal form.
	BlockDeviceID string

	// DatasetID is the UUID the volume name was derived from.
	DatasetID uuid.UUID

	// SizeBytes is the provisioned size.
	SizeBytes int64

	// AttachedTo is the compute instance the volume is attached to,
	// empty when unattached. Attachment is judged by the local device
	// path, so a non-empty value always names this host.
	AttachedTo string
}

// Driver binds a tenant account and access group on one SolidFire
// cluster to the local iSCSI initiator. Safe for concurrent use.
type Driver struct {
	client    solidfire.Client
	initiator iscsi.Initiator
	profiles  *profile.Registry
	metrics   *observability.Metrics

	clusterID    string
	volumePrefix string

	// Established during bootstrap, read-only afterwards.
	accountID     int64
	vagID         int64
	svip          string
	initiatorIQNs []string

	instanceOnce sync.Once
	instanceID   string
	instanceErr  error
}

// New constructs a Driver and bootstraps the cluster backend. Any
// bootstrap failure is fatal and wrapped in a BootstrapError.
func New(cfg Config) (*Driver, error) {
	if cfg.ClusterID == "" {
		return nil, fmt.Errorf("cluster ID is required")
	}
	if cfg.VolumePrefix == "" {
		cfg.VolumePrefix = "flock"
	}

	client := cfg.Client
	if client == nil {
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("cluster endpoint is required")
		}
		clientCfg := solidfire.ClientConfig{
			Endpoint:              cfg.Endpoint,
			TLSInsecureSkipVerify: cfg.TLSInsecureSkipVerify,
		}
		if cfg.Metrics != nil {
			clientCfg.OnCall = cfg.Metrics.RecordClusterCall
		}
		c, err := solidfire.NewClient(clientCfg)
		if err != nil {
			return nil, err
		}
		client = c
	}

	initiator := cfg.Initiator
	if initiator == nil {
		initiator = iscsi.NewInitiator()
	}

	d := &Driver{
		client:       client,
		initiator:    initiator,
		profiles:     profile.NewRegistry(cfg.Profiles),
		metrics:      cfg.Metrics,
		clusterID:    cfg.ClusterID,
		volumePrefix: cfg.VolumePrefix,
	}

	if err := d.bootstrap(cfg); err != nil {
		return nil, err
	}

	klog.V(2).Infof("Driver ready: cluster %q, account %d, access group %d, svip %s",
		d.clusterID, d.accountID, d.vagID, d.svip)
	return d, nil
}

// AllocationUnit returns the volume size granularity in bytes.
func (d *Driver) AllocationUnit() int64 {
	return AllocationUnitBytes
}

// ComputeInstanceID returns a stable identity for this host, the
// resolved address of the local hostname. The value is computed once
// and cached.
func (d *Driver) ComputeInstanceID() (string, error) {
	d.instanceOnce.Do(func() {
		hostname, err := os.Hostname()
		if err != nil {
			d.instanceErr = fmt.Errorf("failed to read hostname: %w", err)
			return
		}
		addrs, err := net.LookupHost(hostname)
		if err != nil || len(addrs) == 0 {
			// An unresolvable hostname is still a stable identity.
			klog.V(4).Infof("Hostname %q did not resolve, using it directly: %v", hostname, err)
			d.instanceID = hostname
			return
		}
		d.instanceID = addrs[0]
	})
	return d.instanceID, d.instanceErr
}

// recordOp feeds the volume operation metrics when metrics are wired.
func (d *Driver) recordOp(op string, start time.Time, err error) {
	if d.metrics == nil {
		return
	}
	d.metrics.RecordVolumeOp(op, err, time.Since(start))
}
