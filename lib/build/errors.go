package build

import "errors"

// ErrNotRoot is returned when the process lacks the privilege to touch loop
// devices and the mount namespace; checked before any resource is acquired
var ErrNotRoot = errors.New("must run as root")
