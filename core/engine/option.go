package engine

import (
	"github.com/wlynxg/fcnet/core/device"
	"github.com/wlynxg/fcnet/core/neigh"
)

type Option struct {
	Device *device.Descriptor
	// Neighbors resolve frames built without a destination address.
	Neighbors []neigh.Entry
	// PreserveSource keeps the source address of Ethernet input.
	PreserveSource bool
	// SnapLen truncates written captures, 0 means no limit.
	SnapLen int
}
