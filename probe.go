package webplatform

import (
	"context"

	"github.com/6over3/webplatform/bridge"
)

// Probe codes. Syscall answers ProbeReply to ProbeCode and -1 to anything
// else; hosts use it to check the native side is linked and reachable.
const (
	ProbeCode  int32 = 355
	ProbeReply int32 = 55
)

const syscallExport = "syscall"

// Syscall is the liveness probe.
func Syscall(code int32) int32 {
	if code == ProbeCode {
		return ProbeReply
	}
	return -1
}

func syscallEntry(_ context.Context, args []bridge.Slot) bridge.Slot {
	return bridge.Slot(Syscall(int32(args[0])))
}
