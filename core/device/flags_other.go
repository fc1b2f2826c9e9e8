//go:build !linux

package device

const (
	// FlagBroadcast mirrors IFF_BROADCAST.
	FlagBroadcast uint32 = 0x2
	// TypeIEEE802 mirrors ARPHRD_IEEE802, the device type used by Fibre Channel.
	TypeIEEE802 uint16 = 6
)
