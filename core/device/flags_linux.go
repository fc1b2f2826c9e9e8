package device

import "golang.org/x/sys/unix"

const (
	// FlagBroadcast mirrors IFF_BROADCAST.
	FlagBroadcast uint32 = unix.IFF_BROADCAST
	// TypeIEEE802 mirrors ARPHRD_IEEE802, the device type used by Fibre Channel.
	TypeIEEE802 uint16 = unix.ARPHRD_IEEE802
)
