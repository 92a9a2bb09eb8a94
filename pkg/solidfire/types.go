package solidfire

// Account is a cluster tenant. Volumes are always scoped to an account.
type Account struct {
	AccountID  int64                  `json:"accountID"`
	Username   string                 `json:"username"`
	Status     string                 `json:"status"`
	Volumes    []int64                `json:"volumes"`
	Attributes map[string]interface{} `json:"attributes"`
}

// ClusterInfo describes the cluster endpoints. The driver only consumes
// SVIP (the iSCSI service address); other fields are kept for logging.
type ClusterInfo struct {
	Name     string `json:"name"`
	MVIP     string `json:"mvip"`
	SVIP     string `json:"svip"`
	UniqueID string `json:"uniqueID"`
}

// QoS carries the three IOPS settings applied to a volume. Only these
// fields are ever forwarded to the cluster, regardless of what a profile
// record contains.
type QoS struct {
	MinIOPS   int64 `json:"minIOPS"`
	MaxIOPS   int64 `json:"maxIOPS"`
	BurstIOPS int64 `json:"burstIOPS"`
}

// Volume is the cluster-side volume record.
type Volume struct {
	VolumeID   int64                  `json:"volumeID"`
	Name       string                 `json:"name"`
	AccountID  int64                  `json:"accountID"`
	IQN        string                 `json:"iqn"`
	TotalSize  int64                  `json:"totalSize"`
	Status     string                 `json:"status"`
	Enable512e bool                   `json:"enable512e"`
	QOS        *QoS                   `json:"qos,omitempty"`
	Attributes map[string]interface{} `json:"attributes"`
}

// VolumeAccessGroup restricts which initiator IQNs may see which volumes.
type VolumeAccessGroup struct {
	VolumeAccessGroupID int64    `json:"volumeAccessGroupID"`
	Name                string   `json:"name"`
	Initiators          []string `json:"initiators"`
	Volumes             []int64  `json:"volumes"`
}

// ISCSISession is one live iSCSI session on the cluster. The driver only
// matches on VolumeID; the rest is diagnostic.
type ISCSISession struct {
	SessionID    int64  `json:"sessionID"`
	VolumeID     int64  `json:"volumeID"`
	AccountID    int64  `json:"accountID"`
	InitiatorIQN string `json:"initiatorName"`
	TargetIQN    string `json:"targetName"`
}

// CreateVolumeOptions contains parameters for CreateVolume.
type CreateVolumeOptions struct {
	Name      string // cluster-side volume name (prefix + dataset UUID)
	AccountID int64  // owning account
	TotalSize int64  // size in bytes; the cluster validates minimum/alignment
	QOS       *QoS   // optional QoS block; nil means cluster defaults
}
