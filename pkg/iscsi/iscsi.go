// Package iscsi wraps the local open-iscsi initiator: identity, target
// discovery, session login/logout and device path probing.
package iscsi

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/klog/v2"

	"git.srvlab.io/whiskey/solidfire-block-driver/pkg/utils"
)

const (
	// initiatorNameFile is where open-iscsi records the local initiator IQN
	initiatorNameFile = "/etc/iscsi/initiatorname.iscsi"

	// pathPollInterval is how often PathExists re-checks the device path
	pathPollInterval = 200 * time.Millisecond

	// deviceWaitTimeout bounds the best-effort wait for a device node
	// after a successful login
	deviceWaitTimeout = 10 * time.Second
)

// Initiator handles local iSCSI initiator state. The interface allows
// different implementations: iscsiadm, mock.
type Initiator interface {
	// InitiatorNames reads the local initiator IQN(s)
	InitiatorNames() ([]string, error)

	// PathExists reports whether path appears within timeout
	PathExists(path string, timeout time.Duration) bool

	// Discover runs sendtargets discovery against the iSCSI service
	// address and returns the advertised target IQNs
	Discover(svip string) ([]string, error)

	// Login establishes a session with the target
	Login(svip, targetIQN string) error

	// Logout tears down the session with the target
	Logout(svip, targetIQN string) error
}

// DevicePath returns the expected by-path device node for a target. The
// path is a deterministic function of the service address and target IQN;
// its existence is the local truth for "attached here".
func DevicePath(svip, targetIQN string) string {
	return fmt.Sprintf("/dev/disk/by-path/ip-%s-iscsi-%s-lun-0", svip, targetIQN)
}

// execInitiator implements Initiator using the iscsiadm CLI
type execInitiator struct {
	execCommand func(name string, args ...string) *exec.Cmd
	readFile    func(name string) ([]byte, error)
}

// NewInitiator creates an iscsiadm-backed Initiator.
func NewInitiator() Initiator {
	return &execInitiator{
		execCommand: exec.Command,
		readFile:    os.ReadFile,
	}
}

// InitiatorNames reads /etc/iscsi/initiatorname.iscsi. A host that cannot
// report its identity cannot attach volumes, so failures propagate.
func (i *execInitiator) InitiatorNames() ([]string, error) {
	data, err := i.readFile(initiatorNameFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", initiatorNameFile, err)
	}

	iqns := ParseInitiatorNames(string(data))
	if len(iqns) == 0 {
		return nil, fmt.Errorf("no InitiatorName entries in %s", initiatorNameFile)
	}

	klog.V(4).Infof("Local initiator IQNs: %v", iqns)
	return iqns, nil
}

// ParseInitiatorNames extracts IQNs from initiatorname.iscsi content.
// Comment lines and unrelated settings are skipped.
func ParseInitiatorNames(content string) []string {
	var iqns []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.HasPrefix(line, "InitiatorName=") {
			continue
		}
		iqn := strings.TrimPrefix(line, "InitiatorName=")
		if iqn != "" {
			iqns = append(iqns, iqn)
		}
	}
	return iqns
}

// PathExists polls for path until it appears or timeout elapses.
func (i *execInitiator) PathExists(path string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := wait.PollUntilContextTimeout(ctx, pathPollInterval, timeout, true,
		func(context.Context) (bool, error) {
			if _, statErr := os.Stat(path); statErr == nil {
				return true, nil
			}
			return false, nil
		})
	return err == nil
}

// Discover runs sendtargets discovery and returns the target IQNs.
func (i *execInitiator) Discover(svip string) ([]string, error) {
	if err := utils.ValidateSVIP(svip); err != nil {
		return nil, err
	}

	klog.V(4).Infof("Running iSCSI discovery against %s", svip)
	cmd := i.execCommand("iscsiadm", "-m", "discovery", "-t", "sendtargets", "-p", svip)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("iscsi discovery against %s failed: %w, output: %s", svip, err, string(output))
	}

	targets := ParseDiscoveryOutput(string(output))
	klog.V(4).Infof("Discovery against %s returned %d target(s)", svip, len(targets))
	return targets, nil
}

// ParseDiscoveryOutput extracts target IQNs from sendtargets output.
// Each record looks like "10.10.23.1:3260,1 iqn.2010-01.com.solidfire:...".
func ParseDiscoveryOutput(output string) []string {
	var targets []string
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		if strings.HasPrefix(fields[1], "iqn.") {
			targets = append(targets, fields[1])
		}
	}
	return targets
}

// Login establishes a session with the target. Login success is
// authoritative; the device node wait afterwards is best effort (udev
// may lag) and never fails the call.
func (i *execInitiator) Login(svip, targetIQN string) error {
	if err := utils.ValidateSVIP(svip); err != nil {
		return err
	}
	if err := utils.ValidateIQN(targetIQN); err != nil {
		return fmt.Errorf("invalid target IQN: %w", err)
	}

	klog.V(2).Infof("Logging in to iSCSI target %s at %s", targetIQN, svip)
	cmd := i.execCommand("iscsiadm", "-m", "node", "-T", targetIQN, "-p", svip, "--login")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("iscsi login to %s failed: %w, output: %s", targetIQN, err, string(output))
	}

	devicePath := DevicePath(svip, targetIQN)
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = deviceWaitTimeout
	waitErr := backoff.Retry(func() error {
		_, statErr := os.Stat(devicePath)
		return statErr
	}, b)
	if waitErr != nil {
		klog.Warningf("Device %s did not appear within %v after login: %v", devicePath, deviceWaitTimeout, waitErr)
	} else {
		klog.V(4).Infof("Device %s present after login", devicePath)
	}

	klog.V(2).Infof("Logged in to iSCSI target %s", targetIQN)
	return nil
}

// Logout tears down the session with the target. An active mount on the
// device is the caller's problem, but worth a warning before the node
// disappears.
func (i *execInitiator) Logout(svip, targetIQN string) error {
	if err := utils.ValidateSVIP(svip); err != nil {
		return err
	}
	if err := utils.ValidateIQN(targetIQN); err != nil {
		return fmt.Errorf("invalid target IQN: %w", err)
	}

	warnIfMounted(DevicePath(svip, targetIQN))

	klog.V(2).Infof("Logging out of iSCSI target %s at %s", targetIQN, svip)
	cmd := i.execCommand("iscsiadm", "-m", "node", "-T", targetIQN, "-p", svip, "--logout")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("iscsi logout from %s failed: %w, output: %s", targetIQN, err, string(output))
	}

	klog.V(2).Infof("Logged out of iSCSI target %s", targetIQN)
	return nil
}
