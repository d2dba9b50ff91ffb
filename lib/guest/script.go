// Package guest drives a freshly booted build VM through its serial console.
//
// There is no backchannel from the guest: every synchronization point is a
// literal prompt string expected on the console. A command that fails inside
// the guest is observable on the host only as the next expect timing out, or
// as the guest powering off under its error trap. That is a structural
// property of a console-only protocol, not a bug in the host driver.
package guest

import (
	"context"
	"fmt"
	"time"

	"github.com/slatelinux/forge/lib/console"
)

const (
	// LoginMarker is printed by the guest's getty once it is ready.
	LoginMarker = "login: "

	// PromptMarker is the two-character root shell prompt. It is matched as a
	// plain substring, so guest output containing "# " mid-line also counts.
	PromptMarker = "# "
)

// Step is one exchange on the console: wait for Expect, then type Send.
// Either field may be empty.
type Step struct {
	Expect string
	Send   string
}

// Script is a fixed, ordered sequence of console exchanges.
type Script []Step

// Run executes the script strictly in order. perByte is the console's
// per-byte wait bound for every expect.
func (sc Script) Run(ctx context.Context, sess *console.Session, perByte time.Duration) error {
	for i, step := range sc {
		if step.Expect != "" {
			if err := sess.Expect(ctx, step.Expect, perByte); err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
		}
		if step.Send != "" {
			if err := sess.Send(step.Send); err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
		}
	}
	return nil
}
