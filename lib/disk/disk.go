// Package disk creates, partitions, mounts, grows and tears down raw disk
// images through loop devices. All operations assume root privilege and a
// single build in flight: the loop-device table and mount namespace are
// process-wide and nothing here locks against a concurrent invocation.
package disk

import (
	"context"
	"fmt"
	"os"

	"github.com/c2h5oh/datasize"
)

// Image is a raw disk image file carrying the fixed 3-partition table.
type Image struct {
	Path   string
	Size   datasize.ByteSize
	Layout PartitionLayout
}

// Create makes a sparse file of the given size and writes the partition
// table to it. The file's partitions are not formatted yet.
func Create(ctx context.Context, path string, size datasize.ByteSize) (*Image, error) {
	layout, err := Layout(size)
	if err != nil {
		return nil, err
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create image file: %w", err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, fmt.Errorf("truncate image file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close image file: %w", err)
	}

	for _, cmd := range layout.partedCommands() {
		args := append([]string{"-s", path, "--"}, cmd...)
		if err := runTool(ctx, "parted", args...); err != nil {
			return nil, err
		}
	}

	return &Image{Path: path, Size: size, Layout: layout}, nil
}

// Clone copies src to dst preserving sparseness. The clone is a scratch
// copy: disposable, customized for exactly one variant.
func Clone(ctx context.Context, src, dst string) error {
	return runTool(ctx, "cp", "--sparse=always", src, dst)
}

// Grow extends the backing file to newSize and moves only the root
// partition's end boundary. The BIOS and EFI partitions are untouched. The
// root filesystem itself is grown later, once the image is attached, via
// ResizeRootFS.
func Grow(ctx context.Context, path string, newSize datasize.ByteSize) (PartitionLayout, error) {
	layout, err := Layout(newSize)
	if err != nil {
		return PartitionLayout{}, err
	}

	if err := os.Truncate(path, int64(newSize)); err != nil {
		return PartitionLayout{}, fmt.Errorf("grow image file: %w", err)
	}

	// Relocate the GPT backup header to the new end of disk, then extend
	// partition 3.
	if err := runTool(ctx, "sgdisk", "-e", path); err != nil {
		return PartitionLayout{}, err
	}
	if err := runTool(ctx, "parted", "-s", path, "--", "resizepart", "3", "100%"); err != nil {
		return PartitionLayout{}, err
	}

	return layout, nil
}

// Format creates the filesystems on an attached image: FAT32 on the EFI
// partition, ext4 on root. The BIOS-boot partition stays raw.
func Format(ctx context.Context, loop *Loop) error {
	if err := runTool(ctx, "mkfs.fat", "-F", "32", loop.Partition(2)); err != nil {
		return err
	}
	return runTool(ctx, "mkfs.ext4", "-F", "-q", loop.Partition(3))
}

// ResizeRootFS grows the root filesystem to fill its (previously grown)
// partition.
func ResizeRootFS(ctx context.Context, loop *Loop) error {
	if err := runTool(ctx, "e2fsck", "-f", "-p", loop.Partition(3)); err != nil {
		return err
	}
	return runTool(ctx, "resize2fs", loop.Partition(3))
}
