package iscsi

import (
	"path/filepath"

	"github.com/moby/sys/mountinfo"
	"k8s.io/klog/v2"
)

// warnIfMounted logs a warning when the device behind the by-path link
// still has active mounts. Logout proceeds regardless; the driver does
// not manage filesystems.
func warnIfMounted(devicePath string) {
	device, err := filepath.EvalSymlinks(devicePath)
	if err != nil {
		// No device node means nothing can be mounted
		return
	}

	mounts, err := mountinfo.GetMounts(func(info *mountinfo.Info) (skip, stop bool) {
		return info.Source != device, false
	})
	if err != nil {
		klog.V(4).Infof("Could not read mount table before logout: %v", err)
		return
	}

	for _, m := range mounts {
		klog.Warningf("Device %s still mounted at %s during logout", device, m.Mountpoint)
	}
}
