package disk

import (
	"fmt"

	"github.com/c2h5oh/datasize"
)

// The partition scheme is fixed: a tiny BIOS-boot partition so GRUB can embed
// on GPT disks, a FAT32 EFI system partition, and an ext4 root consuming
// everything that remains. Partitions are aligned to 1 MiB.
const (
	Alignment = datasize.MB

	biosStart = 1 * datasize.MB
	biosSize  = 1 * datasize.MB
	efiSize   = 300 * datasize.MB

	// minRootSize is the smallest root filesystem worth formatting.
	minRootSize = 512 * datasize.MB

	// MinImageSize is the smallest total size Layout accepts.
	MinImageSize = biosStart + biosSize + efiSize + minRootSize
)

// Partition is one entry of the fixed table. End is exclusive; the root
// partition's nominal End equals the image size and is clamped by the
// partitioner to the last usable sector.
type Partition struct {
	Number     int
	Name       string
	Start      datasize.ByteSize
	End        datasize.ByteSize
	Filesystem string
	Flag       string
}

// Size returns the partition's nominal size.
func (p Partition) Size() datasize.ByteSize {
	return p.End - p.Start
}

// PartitionLayout is the computed 3-partition table for one image size.
type PartitionLayout struct {
	Total datasize.ByteSize
	BIOS  Partition
	EFI   Partition
	Root  Partition
}

// Layout computes the fixed table for a disk of the given total size. The
// root partition always consumes all space after the boot and EFI
// allocations.
func Layout(total datasize.ByteSize) (PartitionLayout, error) {
	if total < MinImageSize {
		return PartitionLayout{}, fmt.Errorf("%w: %s < %s", ErrImageTooSmall, total.HR(), MinImageSize.HR())
	}

	bios := Partition{
		Number: 1,
		Name:   "bios",
		Start:  biosStart,
		End:    biosStart + biosSize,
		Flag:   "bios_grub",
	}
	efi := Partition{
		Number:     2,
		Name:       "efi",
		Start:      bios.End,
		End:        bios.End + efiSize,
		Filesystem: "fat32",
		Flag:       "esp",
	}
	root := Partition{
		Number:     3,
		Name:       "root",
		Start:      efi.End,
		End:        total,
		Filesystem: "ext4",
	}

	return PartitionLayout{Total: total, BIOS: bios, EFI: efi, Root: root}, nil
}

// Partitions returns the table in on-disk order.
func (l PartitionLayout) Partitions() []Partition {
	return []Partition{l.BIOS, l.EFI, l.Root}
}

// partedCommands renders the layout as parted -s command groups, one slice
// per invocation.
func (l PartitionLayout) partedCommands() [][]string {
	cmds := [][]string{{"mklabel", "gpt"}}
	for _, p := range l.Partitions() {
		mkpart := []string{"mkpart", p.Name}
		if p.Filesystem != "" {
			mkpart = append(mkpart, p.Filesystem)
		}
		end := "100%"
		if p.End < l.Total {
			end = mib(p.End)
		}
		mkpart = append(mkpart, mib(p.Start), end)
		cmds = append(cmds, mkpart)
		if p.Flag != "" {
			cmds = append(cmds, []string{"set", fmt.Sprint(p.Number), p.Flag, "on"})
		}
	}
	return cmds
}

func mib(s datasize.ByteSize) string {
	return fmt.Sprintf("%dMiB", s/datasize.MB)
}
