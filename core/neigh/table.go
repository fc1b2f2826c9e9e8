package neigh

import (
	"net"
	"net/netip"
	"sync"

	"github.com/libp2p/go-cidranger"
	"github.com/pkg/errors"
)

var ErrInvalidPrefix = errors.New("invalid neighbor prefix")

// Entry maps every address inside Prefix to HardwareAddr.
type Entry struct {
	Prefix       netip.Prefix
	HardwareAddr net.HardwareAddr
}

type rangerEntry struct {
	network net.IPNet
	entry   Entry
}

func (e *rangerEntry) Network() net.IPNet {
	return e.network
}

// Table is a static neighbor table resolving next hops to hardware
// addresses by longest prefix match.
type Table struct {
	mu     sync.RWMutex
	ranger cidranger.Ranger
	size   int
}

func New() *Table {
	return &Table{ranger: cidranger.NewPCTrieRanger()}
}

func toIPNet(p netip.Prefix) net.IPNet {
	p = p.Masked()
	return net.IPNet{
		IP:   net.IP(p.Addr().AsSlice()),
		Mask: net.CIDRMask(p.Bits(), p.Addr().BitLen()),
	}
}

// Add inserts or replaces the entry for e.Prefix.
func (t *Table) Add(e Entry) error {
	if !e.Prefix.IsValid() {
		return errors.Wrapf(ErrInvalidPrefix, "%s", e.Prefix)
	}
	e.Prefix = netip.PrefixFrom(e.Prefix.Addr().Unmap(), e.Prefix.Bits()).Masked()
	e.HardwareAddr = append(net.HardwareAddr(nil), e.HardwareAddr...)

	t.mu.Lock()
	defer t.mu.Unlock()

	network := toIPNet(e.Prefix)
	removed, err := t.ranger.Remove(network)
	if err != nil {
		return errors.Wrapf(err, "replace %s", e.Prefix)
	}
	if err := t.ranger.Insert(&rangerEntry{network: network, entry: e}); err != nil {
		return errors.Wrapf(err, "insert %s", e.Prefix)
	}
	if removed == nil {
		t.size++
	}
	return nil
}

// Lookup returns the hardware address of the most specific entry that
// contains addr.
func (t *Table) Lookup(addr netip.Addr) (net.HardwareAddr, bool) {
	if !addr.IsValid() {
		return nil, false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	entries, err := t.ranger.ContainingNetworks(net.IP(addr.Unmap().AsSlice()))
	if err != nil || len(entries) == 0 {
		return nil, false
	}

	var best *rangerEntry
	for _, re := range entries {
		e, ok := re.(*rangerEntry)
		if !ok {
			continue
		}
		if best == nil || e.entry.Prefix.Bits() > best.entry.Prefix.Bits() {
			best = e
		}
	}
	if best == nil {
		return nil, false
	}
	return best.entry.HardwareAddr, true
}

// Len returns the number of entries.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.size
}
