package engine

import (
	"sync/atomic"

	"github.com/google/gopacket"
	"github.com/pkg/errors"

	"github.com/wlynxg/fcnet/core/device"
	"github.com/wlynxg/fcnet/core/fc"
	"github.com/wlynxg/fcnet/core/neigh"
	"github.com/wlynxg/fcnet/core/stack"
	mlog "github.com/wlynxg/fcnet/pkgs/log"
	"github.com/wlynxg/fcnet/pkgs/xpool"
)

var (
	ErrNoDevice   = errors.New("engine needs a device")
	ErrTooBig     = errors.New("payload exceeds device MTU")
	ErrUnresolved = errors.New("no neighbor for next hop")
	ErrLinkType   = errors.New("unsupported link type")
)

// Stats counts what the engine did with the packets it was given.
type Stats struct {
	Frames     uint64
	Resolved   uint64
	Unresolved uint64
	Dropped    uint64
	// Queues holds the frames sent per transmit queue.
	Queues []uint64
}

type Engine struct {
	log        *mlog.Logger
	opt        Option
	dev        *device.Descriptor
	neighbors  *neigh.Table
	bufferPool *xpool.Pool[gopacket.SerializeBuffer]

	frames     atomic.Uint64
	resolved   atomic.Uint64
	unresolved atomic.Uint64
	dropped    atomic.Uint64
	queues     []atomic.Uint64
}

func New(opt *Option) (*Engine, error) {
	if opt == nil || opt.Device == nil {
		return nil, ErrNoDevice
	}

	e := &Engine{
		log:       mlog.New("engine"),
		opt:       *opt,
		dev:       opt.Device,
		neighbors: neigh.New(),
		bufferPool: xpool.New(gopacket.NewSerializeBuffer, func(b gopacket.SerializeBuffer) {
			b.Clear()
		}),
		queues: make([]atomic.Uint64, opt.Device.NumTxQueues()),
	}

	for _, n := range opt.Neighbors {
		if err := e.dev.ValidateAddr(n.HardwareAddr); err != nil {
			return nil, errors.Wrapf(err, "neighbor %s", n.Prefix)
		}
		if err := e.neighbors.Add(n); err != nil {
			return nil, err
		}
		e.log.Debugf("neighbor %s via %s", n.Prefix, n.HardwareAddr)
	}

	e.log.Infof("device %s: addr %s, mtu %d, %d neighbors",
		e.dev.Name(), e.dev.HardwareAddr(), e.dev.MTU(), e.neighbors.Len())
	return e, nil
}

func (e *Engine) Stats() Stats {
	s := Stats{
		Frames:     e.frames.Load(),
		Resolved:   e.resolved.Load(),
		Unresolved: e.unresolved.Load(),
		Dropped:    e.dropped.Load(),
		Queues:     make([]uint64, len(e.queues)),
	}
	for i := range e.queues {
		s.Queues[i] = e.queues[i].Load()
	}
	return s
}

// sent accounts a finished frame on the transmit queue of its flow.
func (e *Engine) sent(p *Payload) {
	e.frames.Add(1)
	e.queues[stack.TxQueue(p.SrcIP, p.NextHop, len(e.queues))].Add(1)
}

// build writes p and its header into an empty buf. A header left pending
// by the device gets its destination from the neighbor table.
func (e *Engine) build(buf gopacket.SerializeBuffer, p *Payload) error {
	if len(p.Data) > e.dev.MTU() {
		return errors.Wrapf(ErrTooBig, "%d > %d", len(p.Data), e.dev.MTU())
	}

	b, err := buf.AppendBytes(len(p.Data))
	if err != nil {
		return errors.Wrap(err, "append payload")
	}
	copy(b, p.Data)

	res, err := e.dev.CreateHeader(buf, p.Protocol, p.Dst, p.Src, len(p.Data))
	if err != nil {
		return err
	}
	if !fc.NeedsSNAP(p.Protocol) {
		e.log.Debugf("%s carried without a type field", p.Protocol)
	}

	if res.Pending() {
		addr, ok := e.neighbors.Lookup(p.NextHop)
		if !ok {
			e.unresolved.Add(1)
			return errors.Wrapf(ErrUnresolved, "%s", p.NextHop)
		}
		fc.Frame(buf.Bytes()).SetDestinationAddress(addr)
		e.resolved.Add(1)
	}
	return nil
}

// Frame returns p with a Fibre Channel header in front of it.
func (e *Engine) Frame(p *Payload) ([]byte, error) {
	buf := e.bufferPool.Get()
	defer e.bufferPool.Put(buf)

	if err := e.build(buf, p); err != nil {
		e.dropped.Add(1)
		return nil, err
	}
	e.sent(p)
	return append([]byte(nil), buf.Bytes()...), nil
}
