package e2e

import (
	"errors"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"git.srvlab.io/whiskey/solidfire-block-driver/pkg/driver"
	"git.srvlab.io/whiskey/solidfire-block-driver/pkg/iscsi"
)

var _ = Describe("Multi-Host Convergence", func() {
	const secondIQN = "iqn.1993-08.org.debian:01:e2e-host-b"

	It("converges the access group across hosts bootstrapping in any order", func() {
		By("First host bootstraps and creates the backend")
		newHost(testIQN)
		Expect(cluster.AccountCount()).To(Equal(1))
		Expect(cluster.AccessGroupCount()).To(Equal(1))

		By("Second host joins the existing group")
		newHost(secondIQN)
		Expect(cluster.AccountCount()).To(Equal(1))
		Expect(cluster.AccessGroupCount()).To(Equal(1))

		vag, _ := cluster.AccessGroupByName(testClusterID)
		Expect(vag.Initiators).To(ConsistOf(testIQN, secondIQN))

		By("First host rebootstrapping keeps the second host registered")
		newHost(testIQN)
		vag, _ = cluster.AccessGroupByName(testClusterID)
		Expect(vag.Initiators).To(ConsistOf(testIQN, secondIQN))
	})

	It("blocks attach while another host holds the session", func() {
		hostA, initiatorA := newHost(testIQN)
		hostB, initiatorB := newHost(secondIQN)

		vol, err := hostA.CreateVolume(uuid.New(), 10<<30, "")
		Expect(err).NotTo(HaveOccurred())
		iqn := advertise(initiatorA, 1)
		initiatorB.SetTargets(iqn)

		By("Host A attaches and registers its session on the cluster")
		_, err = hostA.AttachVolume(vol.BlockDeviceID, "node-a")
		Expect(err).NotTo(HaveOccurred())
		cluster.AddSession(1, testIQN)

		By("Host B is refused")
		var already *driver.AlreadyAttachedError
		_, err = hostB.AttachVolume(vol.BlockDeviceID, "node-b")
		Expect(errors.As(err, &already)).To(BeTrue(), "got %v", err)
		Expect(initiatorB.LoginCalls).To(BeEmpty())

		By("After host A detaches and the session drains, host B attaches")
		Expect(hostA.DetachVolume(vol.BlockDeviceID)).To(Succeed())
		cluster.ClearSessions()
		attached, err := hostB.AttachVolume(vol.BlockDeviceID, "node-b")
		Expect(err).NotTo(HaveOccurred())
		Expect(attached.AttachedTo).To(Equal("node-b"))
	})

	It("keeps tenants isolated by account", func() {
		hostA, _ := newHost(testIQN)

		other, err := driver.New(driver.Config{
			ClusterID: "other-tenant",
			Client:    cluster,
			Initiator: iscsi.NewMockInitiator("iqn.1993-08.org.debian:01:other-host"),
		})
		Expect(err).NotTo(HaveOccurred())

		_, err = hostA.CreateVolume(uuid.New(), 10<<30, "")
		Expect(err).NotTo(HaveOccurred())

		vols, err := other.ListVolumes()
		Expect(err).NotTo(HaveOccurred())
		Expect(vols).To(BeEmpty(), "tenant saw another tenant's volumes")
	})
})
