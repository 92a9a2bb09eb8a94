package utils

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

var (
	// iqnPattern matches valid iSCSI Qualified Names.
	// Format: iqn.YYYY-MM.reversed.domain[:identifier]
	// Example: iqn.2010-01.com.solidfire:abcd.uuid-of-volume.42
	// SECURITY: the strict pattern keeps IQNs safe to place in iscsiadm argv
	iqnPattern = regexp.MustCompile(`^iqn\.[0-9]{4}-[0-9]{2}\.[a-z0-9.-]+(:[a-z0-9.:_-]+)?$`)

	// svipPattern matches "<ip>" or "<ip>:<port>" service endpoints
	svipPattern = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}(:\d{1,5})?$`)
)

// ComposeVolumeName builds the cluster-side volume name for a dataset.
// The dataset UUID is embedded so it can be recovered on listing without
// any state held by the driver.
func ComposeVolumeName(prefix string, datasetID uuid.UUID) string {
	return prefix + datasetID.String()
}

// DatasetIDFromVolumeName recovers the dataset UUID embedded in a cluster
// volume name by stripping the configured prefix. Names that do not carry
// a parseable UUID return an error; callers decide whether to skip or fail.
func DatasetIDFromVolumeName(prefix, name string) (uuid.UUID, error) {
	trimmed := strings.TrimPrefix(name, prefix)
	id, err := uuid.Parse(trimmed)
	if err != nil {
		return uuid.Nil, fmt.Errorf("volume name %q does not embed a dataset ID: %w", name, err)
	}
	return id, nil
}

// ParseVolumeID canonicalizes an external block device identifier to the
// cluster's numeric volume ID. The cluster is not consistent about string
// formatting, so comparisons are always done on the integer form.
func ParseVolumeID(blockdeviceID string) (int64, error) {
	if blockdeviceID == "" {
		return 0, fmt.Errorf("block device ID cannot be empty")
	}
	id, err := strconv.ParseInt(strings.TrimSpace(blockdeviceID), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid block device ID %q: %w", blockdeviceID, err)
	}
	if id <= 0 {
		return 0, fmt.Errorf("invalid block device ID %q: must be a positive integer", blockdeviceID)
	}
	return id, nil
}

// FormatVolumeID renders a cluster volume ID as the canonical external
// identifier string.
func FormatVolumeID(volumeID int64) string {
	return strconv.FormatInt(volumeID, 10)
}

// ValidateIQN validates that an iSCSI qualified name is safe for use in
// commands. Rejects anything with shell metacharacters or whitespace.
func ValidateIQN(iqn string) error {
	if iqn == "" {
		return fmt.Errorf("IQN cannot be empty")
	}
	if len(iqn) > 223 {
		return fmt.Errorf("IQN too long: %d characters (max 223)", len(iqn))
	}
	if !iqnPattern.MatchString(iqn) {
		return fmt.Errorf("invalid IQN format: %s", iqn)
	}
	return nil
}

// ValidateSVIP validates an iSCSI service endpoint ("ip" or "ip:port").
func ValidateSVIP(svip string) error {
	if svip == "" {
		return fmt.Errorf("service IP cannot be empty")
	}
	if !svipPattern.MatchString(svip) {
		return fmt.Errorf("invalid service IP format: %s", svip)
	}
	return nil
}
