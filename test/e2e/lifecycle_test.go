package e2e

import (
	"errors"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"git.srvlab.io/whiskey/solidfire-block-driver/pkg/driver"
)

var _ = Describe("Volume Lifecycle", func() {
	It("completes a full lifecycle: create, attach, list, detach, destroy", func() {
		d, initiator := newHost(testIQN)
		datasetID := uuid.New()

		By("Creating a gold volume")
		vol, err := d.CreateVolume(datasetID, 100<<30, "Gold")
		Expect(err).NotTo(HaveOccurred())
		Expect(vol.AttachedTo).To(BeEmpty())

		By("Verifying QoS and access group membership on the cluster")
		stored, ok := cluster.GetVolumeByID(1)
		Expect(ok).To(BeTrue())
		Expect(stored.QOS).NotTo(BeNil())
		Expect(stored.QOS.MinIOPS).To(Equal(int64(5000)))
		Expect(stored.QOS.MaxIOPS).To(Equal(int64(8000)))
		Expect(stored.QOS.BurstIOPS).To(Equal(int64(15000)))
		vag, ok := cluster.AccessGroupByName(testClusterID)
		Expect(ok).To(BeTrue())
		Expect(vag.Volumes).To(ContainElement(int64(1)))

		By("Attaching the volume")
		advertise(initiator, 1)
		attached, err := d.AttachVolume(vol.BlockDeviceID, "node-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(attached.AttachedTo).To(Equal("node-1"))

		By("Listing shows the volume as attached")
		vols, err := d.ListVolumes()
		Expect(err).NotTo(HaveOccurred())
		Expect(vols).To(HaveLen(1))
		Expect(vols[0].AttachedTo).NotTo(BeEmpty())
		Expect(vols[0].DatasetID).To(Equal(datasetID))

		By("The device path is derived from SVIP and target IQN")
		path, err := d.GetDevicePath(vol.BlockDeviceID)
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(HavePrefix("/dev/disk/by-path/ip-"))
		Expect(path).To(HaveSuffix("-lun-0"))

		By("Detaching the volume")
		Expect(d.DetachVolume(vol.BlockDeviceID)).To(Succeed())
		vols, err = d.ListVolumes()
		Expect(err).NotTo(HaveOccurred())
		Expect(vols[0].AttachedTo).To(BeEmpty())

		By("Destroying the volume")
		Expect(d.DestroyVolume(vol.BlockDeviceID)).To(Succeed())
		vols, err = d.ListVolumes()
		Expect(err).NotTo(HaveOccurred())
		Expect(vols).To(BeEmpty())
	})

	It("reports typed errors across the lifecycle", func() {
		d, initiator := newHost(testIQN)

		vol, err := d.CreateVolume(uuid.New(), 10<<30, "Bronze")
		Expect(err).NotTo(HaveOccurred())
		advertise(initiator, 1)

		By("Double attach")
		_, err = d.AttachVolume(vol.BlockDeviceID, "node-1")
		Expect(err).NotTo(HaveOccurred())
		var already *driver.AlreadyAttachedError
		_, err = d.AttachVolume(vol.BlockDeviceID, "node-1")
		Expect(errors.As(err, &already)).To(BeTrue(), "got %v", err)

		By("Double detach")
		Expect(d.DetachVolume(vol.BlockDeviceID)).To(Succeed())
		var unattached *driver.UnattachedVolumeError
		err = d.DetachVolume(vol.BlockDeviceID)
		Expect(errors.As(err, &unattached)).To(BeTrue(), "got %v", err)

		By("Shrinking resize")
		var state *driver.VolumeStateError
		err = d.ResizeVolume(vol.BlockDeviceID, 5<<30)
		Expect(errors.As(err, &state)).To(BeTrue(), "got %v", err)

		By("Destroy, then every operation sees an unknown volume")
		Expect(d.DestroyVolume(vol.BlockDeviceID)).To(Succeed())
		var unknown *driver.UnknownVolumeError
		Expect(errors.As(d.DestroyVolume(vol.BlockDeviceID), &unknown)).To(BeTrue())
		Expect(errors.As(d.ResizeVolume(vol.BlockDeviceID, 20<<30), &unknown)).To(BeTrue())
		_, err = d.AttachVolume(vol.BlockDeviceID, "node-1")
		Expect(errors.As(err, &unknown)).To(BeTrue())
		Expect(errors.As(d.DetachVolume(vol.BlockDeviceID), &unknown)).To(BeTrue())
	})

	It("grows a volume in place", func() {
		d, _ := newHost(testIQN)

		vol, err := d.CreateVolume(uuid.New(), 10<<30, "Silver")
		Expect(err).NotTo(HaveOccurred())

		Expect(d.ResizeVolume(vol.BlockDeviceID, 40<<30)).To(Succeed())
		stored, _ := cluster.GetVolumeByID(1)
		Expect(stored.TotalSize).To(Equal(int64(40 << 30)))

		vols, err := d.ListVolumes()
		Expect(err).NotTo(HaveOccurred())
		Expect(vols[0].SizeBytes).To(Equal(int64(40 << 30)))
	})
})
