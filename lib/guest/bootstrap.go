package guest

import (
	"fmt"
	"strings"
)

// BuildParams parameterizes the remote build sequence.
type BuildParams struct {
	// ShareTag is the 9p mount tag exporting the host working directory.
	ShareTag string

	// ScratchDisk is the guest block device used as build scratch space.
	ScratchDisk string

	// Tooling is the extra package set the remote build needs.
	Tooling []string

	// BuildCommand runs the build pipeline inside the guest, with the share
	// at /mnt/host and the scratch filesystem at /mnt/scratch.
	BuildCommand string
}

// BuildScript returns the fixed sequence that turns a freshly booted guest
// into a remote builder: log in, arm the error trap, mount the host share,
// prepare scratch space, copy inputs in, install tooling, run the build,
// copy results out, power off.
//
// The guest image allows passwordless root login on the serial console, so
// logging in lands directly in a root shell and no separate privilege
// escalation step is needed.
//
// The trap powers the guest off on the first failed command. The host sees
// that as its next expect timing out or the VM exiting, never as an explicit
// error.
func BuildScript(p BuildParams) Script {
	return Script{
		{Expect: LoginMarker, Send: "root\n"},
		{Expect: PromptMarker, Send: "trap 'poweroff -f' ERR; set -E\n"},
		{Expect: PromptMarker, Send: "mkdir -p /mnt/host /mnt/scratch\n"},
		{Expect: PromptMarker, Send: fmt.Sprintf("mount -t 9p -o trans=virtio,msize=1048576 %s /mnt/host\n", p.ShareTag)},
		{Expect: PromptMarker, Send: fmt.Sprintf("mkfs.ext4 -q %s\n", p.ScratchDisk)},
		{Expect: PromptMarker, Send: fmt.Sprintf("mount %s /mnt/scratch\n", p.ScratchDisk)},
		{Expect: PromptMarker, Send: "cp -a /mnt/host/in/. /mnt/scratch/\n"},
		{Expect: PromptMarker, Send: fmt.Sprintf("pacman -Sy --noconfirm --needed %s\n", strings.Join(p.Tooling, " "))},
		{Expect: PromptMarker, Send: fmt.Sprintf("cd /mnt/scratch && %s\n", p.BuildCommand)},
		{Expect: PromptMarker, Send: "cp -v /mnt/scratch/out/* /mnt/host/out/\n"},
		{Expect: PromptMarker, Send: "poweroff\n"},
	}
}
