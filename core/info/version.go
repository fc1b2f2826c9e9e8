package info

import (
	"fmt"
	"runtime"
)

// Version is set at build time with -ldflags "-X".
var Version = "dev"

func OS() string {
	switch runtime.GOOS {
	case "darwin":
		return "macOS"
	default:
		return runtime.GOOS
	}
}

// String describes the running binary.
func String() string {
	return fmt.Sprintf("%s (%s/%s, %s)", Version, OS(), runtime.GOARCH, runtime.Version())
}
