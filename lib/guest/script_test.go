package guest

import (
	"bufio"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slatelinux/forge/lib/console"
)

// fakeGuest answers each received line with the next canned response,
// emulating a shell on the far side of the console.
func fakeGuest(t *testing.T, banner string, responses []string) *console.Session {
	t.Helper()

	hostIn, guestOut := io.Pipe() // guest -> host
	guestIn, hostOut := io.Pipe() // host -> guest
	t.Cleanup(func() {
		guestOut.Close()
		hostOut.Close()
	})

	go func() {
		guestOut.Write([]byte(banner))
		scanner := bufio.NewScanner(guestIn)
		for i := 0; scanner.Scan() && i < len(responses); i++ {
			guestOut.Write([]byte(responses[i]))
		}
	}()

	return console.NewSession(hostIn, hostOut)
}

func TestScript_RunsInOrder(t *testing.T) {
	sess := fakeGuest(t, "booting...\nslate login: ", []string{
		"Last login\n# ",
		"ok\n# ",
	})

	script := Script{
		{Expect: LoginMarker, Send: "root\n"},
		{Expect: PromptMarker, Send: "true\n"},
		{Expect: PromptMarker},
	}

	require.NoError(t, script.Run(context.Background(), sess, time.Second))
}

func TestScript_GuestFailureSurfacesAsTimeout(t *testing.T) {
	// The guest goes silent after login, as it would when a command hangs or
	// the error trap fired. The only signal the host gets is a timeout on
	// the next expect; there is no distinct guest-error value to observe.
	sess := fakeGuest(t, "slate login: ", []string{
		// no response to the first command
	})

	script := Script{
		{Expect: LoginMarker, Send: "root\n"},
		{Expect: PromptMarker},
	}

	err := script.Run(context.Background(), sess, 60*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, console.ErrTimeout)
}

func TestBuildScript_Shape(t *testing.T) {
	script := BuildScript(BuildParams{
		ShareTag:     "hostshare",
		ScratchDisk:  "/dev/vdb",
		Tooling:      []string{"git", "qemu-img"},
		BuildCommand: "./build.sh",
	})

	require.NotEmpty(t, script)

	// Begins at the login prompt, ends by powering off.
	assert.Equal(t, LoginMarker, script[0].Expect)
	assert.Equal(t, "poweroff\n", script[len(script)-1].Send)

	// Every later step synchronizes on the literal shell prompt; no
	// regular expressions anywhere.
	joined := ""
	for _, step := range script[1:] {
		assert.Equal(t, PromptMarker, step.Expect)
		joined += step.Send
	}
	assert.Contains(t, joined, "trap 'poweroff -f' ERR")
	assert.Contains(t, joined, "mount -t 9p")
	assert.Contains(t, joined, "hostshare")
	assert.Contains(t, joined, "mkfs.ext4 -q /dev/vdb")
	assert.Contains(t, joined, "git qemu-img")
	assert.True(t, strings.Contains(joined, "./build.sh"))
}
