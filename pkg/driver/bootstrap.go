package driver

import (
	"errors"
	"fmt"

	"k8s.io/klog/v2"

	"git.srvlab.io/whiskey/solidfire-block-driver/pkg/solidfire"
	"git.srvlab.io/whiskey/solidfire-block-driver/pkg/utils"
)

// bootstrap converges the cluster backend for this tenant: the account,
// the local initiator IQNs, the storage VIP and the volume access
// group. Every step looks up existing state before creating anything,
// so running it repeatedly (or concurrently from several hosts) is
// safe.
func (d *Driver) bootstrap(cfg Config) error {
	accountID, err := d.initAccount()
	if err != nil {
		return &BootstrapError{Step: "account", Err: err}
	}
	d.accountID = accountID

	iqns, err := d.resolveInitiators(cfg.InitiatorName)
	if err != nil {
		return &BootstrapError{Step: "initiators", Err: err}
	}
	d.initiatorIQNs = iqns

	svip, err := d.resolveSVIP(cfg.SVIP)
	if err != nil {
		return &BootstrapError{Step: "svip", Err: err}
	}
	d.svip = svip

	vagID, err := d.initAccessGroup(iqns)
	if err != nil {
		return &BootstrapError{Step: "access group", Err: err}
	}
	d.vagID = vagID

	return nil
}

// initAccount resolves the tenant account, creating it when absent.
// The create races with concurrent bootstraps; losing the race is fine,
// the winner's account is fetched again.
func (d *Driver) initAccount() (int64, error) {
	account, err := d.client.GetAccountByName(d.clusterID)
	if err == nil {
		klog.V(4).Infof("Account %q exists with ID %d", d.clusterID, account.AccountID)
		return account.AccountID, nil
	}

	var reqErr *solidfire.RequestError
	if !errors.As(err, &reqErr) {
		// Transport failure, not "no such account".
		return 0, err
	}

	klog.V(2).Infof("Account %q not found, creating it", d.clusterID)
	accountID, err := d.client.AddAccount(d.clusterID)
	if err == nil {
		return accountID, nil
	}

	if errors.As(err, &reqErr) && reqErr.IsDuplicateAccount() {
		// Another host created it between our lookup and create.
		account, err := d.client.GetAccountByName(d.clusterID)
		if err != nil {
			return 0, err
		}
		return account.AccountID, nil
	}
	return 0, err
}

// resolveInitiators returns the IQNs to register. An explicit name from
// configuration wins; otherwise they are read from the host. A host
// without a readable initiator name cannot attach anything, so failure
// here is fatal.
func (d *Driver) resolveInitiators(override string) ([]string, error) {
	if override != "" {
		if err := utils.ValidateIQN(override); err != nil {
			return nil, fmt.Errorf("configured initiator name: %w", err)
		}
		return []string{override}, nil
	}

	iqns, err := d.initiator.InitiatorNames()
	if err != nil {
		return nil, fmt.Errorf("failed to read local initiator names: %w", err)
	}
	if len(iqns) == 0 {
		return nil, errors.New("no initiator names configured on this host")
	}
	klog.V(4).Infof("Local initiators: %v", iqns)
	return iqns, nil
}

// resolveSVIP returns the storage VIP with its iSCSI port. An explicit
// value from configuration wins; otherwise the cluster is asked.
func (d *Driver) resolveSVIP(override string) (string, error) {
	if override != "" {
		if err := utils.ValidateSVIP(override); err != nil {
			return "", fmt.Errorf("configured svip: %w", err)
		}
		return override, nil
	}

	info, err := d.client.GetClusterInfo()
	if err != nil {
		return "", fmt.Errorf("failed to discover storage VIP: %w", err)
	}
	if info.SVIP == "" {
		return "", errors.New("cluster reported an empty storage VIP")
	}
	return info.SVIP + ":3260", nil
}

// initAccessGroup resolves the tenant's volume access group, creating
// it when absent and registering any of this host's initiators it does
// not have yet. Initiators are only ever added, never removed, so hosts
// bootstrapping in any order converge on the union.
func (d *Driver) initAccessGroup(iqns []string) (int64, error) {
	groups, err := d.client.ListVolumeAccessGroups()
	if err != nil {
		return 0, fmt.Errorf("failed to list volume access groups: %w", err)
	}

	for _, g := range groups {
		if g.Name != d.clusterID {
			continue
		}

		missing := missingInitiators(g.Initiators, iqns)
		if len(missing) == 0 {
			klog.V(4).Infof("Access group %q (%d) already has all local initiators", g.Name, g.VolumeAccessGroupID)
			return g.VolumeAccessGroupID, nil
		}

		klog.V(2).Infof("Registering initiators %v with access group %q (%d)", missing, g.Name, g.VolumeAccessGroupID)
		if err := d.client.AddInitiatorsToVolumeAccessGroup(g.VolumeAccessGroupID, missing); err != nil {
			return 0, fmt.Errorf("failed to register initiators with access group %d: %w", g.VolumeAccessGroupID, err)
		}
		if d.metrics != nil {
			for range missing {
				d.metrics.RecordInitiatorRegistered()
			}
		}
		return g.VolumeAccessGroupID, nil
	}

	klog.V(2).Infof("Creating volume access group %q with initiators %v", d.clusterID, iqns)
	vagID, err := d.client.CreateVolumeAccessGroup(d.clusterID, iqns)
	if err != nil {
		return 0, fmt.Errorf("failed to create volume access group %q: %w", d.clusterID, err)
	}
	if d.metrics != nil {
		for range iqns {
			d.metrics.RecordInitiatorRegistered()
		}
	}
	return vagID, nil
}

// missingInitiators returns the members of want not present in have.
func missingInitiators(have, want []string) []string {
	existing := make(map[string]struct{}, len(have))
	for _, iqn := range have {
		existing[iqn] = struct{}{}
	}

	var missing []string
	for _, iqn := range want {
		if _, ok := existing[iqn]; !ok {
			missing = append(missing, iqn)
		}
	}
	return missing
}
