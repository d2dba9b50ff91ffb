package disk

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// partitionCount of the fixed table.
const partitionCount = 3

// maxPartitionTries bounds the wait for partition device nodes. The kernel
// rescan is asynchronous and normally settles within a few hundred
// milliseconds; a node still missing after the last try is a hard failure.
const maxPartitionTries = 20

// Loop is one active loop-device binding of an image file. An image has at
// most one binding at a time; Detach is idempotent so it can run again from
// the global cleanup path.
type Loop struct {
	Device string

	image    string
	mu       sync.Mutex
	detached bool
}

// Attach binds the image file to a free loop device with partition scanning
// and waits until all child partition nodes exist.
func Attach(ctx context.Context, path string) (*Loop, error) {
	out, err := runToolOutput(ctx, "losetup", "--find", "--show", "--partscan", path)
	if err != nil {
		return nil, err
	}

	l := &Loop{Device: strings.TrimSpace(out), image: path}
	if err := l.waitPartitions(ctx); err != nil {
		// Half-attached bindings must not leak.
		_ = l.Detach(ctx)
		return nil, err
	}
	return l, nil
}

// Partition returns the device node of partition n, e.g. /dev/loop0p3.
func (l *Loop) Partition(n int) string {
	return fmt.Sprintf("%sp%d", l.Device, n)
}

// Detach releases the binding. Calling it on an already released loop is a
// no-op.
func (l *Loop) Detach(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.detached {
		return nil
	}
	if err := runTool(ctx, "losetup", "--detach", l.Device); err != nil {
		return err
	}
	l.detached = true
	return nil
}

// waitPartitions polls for the child partition nodes with bounded
// exponential backoff, nudging the kernel with partprobe between attempts.
func (l *Loop) waitPartitions(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		for n := 1; n <= partitionCount; n++ {
			node := l.Partition(n)
			if _, err := os.Stat(node); err != nil {
				_ = runTool(ctx, "partprobe", l.Device)
				return struct{}{}, fmt.Errorf("%w: %s", ErrDeviceNotReady, node)
			}
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(maxPartitionTries))

	return err
}
