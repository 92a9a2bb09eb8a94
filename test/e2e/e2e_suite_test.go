package e2e

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"k8s.io/klog/v2"

	"git.srvlab.io/whiskey/solidfire-block-driver/pkg/driver"
	"git.srvlab.io/whiskey/solidfire-block-driver/pkg/iscsi"
	"git.srvlab.io/whiskey/solidfire-block-driver/pkg/solidfire"
)

const (
	testClusterID = "acceptance-tenant"
	testIQN       = "iqn.1993-08.org.debian:01:e2e-host"
)

// Suite-level state. Each spec builds its own driver against the shared
// mock cluster so cross-host behavior (access group convergence, remote
// sessions) can be exercised.
var (
	cluster *solidfire.MockClient
)

func TestE2E(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "SolidFire Block Driver E2E Suite")
}

var _ = BeforeSuite(func() {
	klog.SetOutput(GinkgoWriter)
})

var _ = BeforeEach(func() {
	// Fresh cluster per spec; no state leaks between tests.
	cluster = solidfire.NewMockClient()
})

// newHost bootstraps a driver as if running on a host with the given
// initiator IQN, attached to the shared mock cluster.
func newHost(iqn string) (*driver.Driver, *iscsi.MockInitiator) {
	initiator := iscsi.NewMockInitiator(iqn)
	d, err := driver.New(driver.Config{
		ClusterID: testClusterID,
		Client:    cluster,
		Initiator: initiator,
	})
	Expect(err).NotTo(HaveOccurred(), "bootstrap failed for %s", iqn)
	return d, initiator
}

// advertise makes the volume's target discoverable by the initiator,
// as the cluster would after the volume joins the access group.
func advertise(initiator *iscsi.MockInitiator, volumeID int64) string {
	vol, ok := cluster.GetVolumeByID(volumeID)
	Expect(ok).To(BeTrue(), "volume %d not on cluster", volumeID)
	initiator.SetTargets(vol.IQN)
	return vol.IQN
}
