package engine

import (
	"bytes"
	"context"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pkg/errors"

	"github.com/wlynxg/fcnet/core/device"
	"github.com/wlynxg/fcnet/core/fc"
	"github.com/wlynxg/fcnet/core/neigh"
	mlog "github.com/wlynxg/fcnet/pkgs/log"
)

var (
	devAddr  = net.HardwareAddr{0x02, 0x11, 0x22, 0x33, 0x44, 0x55}
	peerAddr = net.HardwareAddr{0x02, 0xaa, 0xbb, 0xcc, 0xdd, 0xee}
	v6Addr   = net.HardwareAddr{0x02, 0x66, 0x66, 0x66, 0x66, 0x66}
)

func newTestEngine(t *testing.T, opt Option) *Engine {
	t.Helper()
	dev, err := device.NewAllocator().Alloc(device.Options{
		NameTemplate: fc.NameTemplate,
		HardwareAddr: devAddr,
		TxQueues:     1,
		RxQueues:     1,
		Setup:        fc.Setup,
	})
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	opt.Device = dev
	if opt.Neighbors == nil {
		opt.Neighbors = []neigh.Entry{
			{Prefix: netip.MustParsePrefix("10.0.0.0/8"), HardwareAddr: peerAddr},
			{Prefix: netip.MustParsePrefix("fd00::/64"), HardwareAddr: v6Addr},
		}
	}
	e, err := New(&opt)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.log = mlog.Nop()
	return e
}

func ipv4Packet(t *testing.T, dst string, payload []byte) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true},
		&layers.IPv4{
			Version:  4,
			IHL:      5,
			TTL:      64,
			Protocol: layers.IPProtocolUDP,
			SrcIP:    net.ParseIP("192.0.2.1").To4(),
			DstIP:    net.ParseIP(dst).To4(),
		},
		gopacket.Payload(payload),
	)
	if err != nil {
		t.Fatalf("serialize ipv4: %v", err)
	}
	return buf.Bytes()
}

func ipv6Packet(t *testing.T, dst string) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true},
		&layers.IPv6{
			Version:    6,
			NextHeader: layers.IPProtocolNoNextHeader,
			HopLimit:   64,
			SrcIP:      net.ParseIP("fd00::1"),
			DstIP:      net.ParseIP(dst),
		},
		gopacket.Payload([]byte{1, 2, 3, 4}),
	)
	if err != nil {
		t.Fatalf("serialize ipv6: %v", err)
	}
	return buf.Bytes()
}

func arpFrame(t *testing.T, dst net.HardwareAddr) []byte {
	t.Helper()
	src := net.HardwareAddr{0x02, 0x01, 0x01, 0x01, 0x01, 0x01}
	buf := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true},
		&layers.Ethernet{SrcMAC: src, DstMAC: dst, EthernetType: layers.EthernetTypeARP},
		&layers.ARP{
			AddrType:          layers.LinkTypeEthernet,
			Protocol:          layers.EthernetTypeIPv4,
			HwAddressSize:     6,
			ProtAddressSize:   4,
			Operation:         layers.ARPRequest,
			SourceHwAddress:   src,
			SourceProtAddress: []byte{10, 0, 0, 1},
			DstHwAddress:      make([]byte, 6),
			DstProtAddress:    []byte{10, 0, 0, 2},
		},
	)
	if err != nil {
		t.Fatalf("serialize arp: %v", err)
	}
	return buf.Bytes()
}

func TestFrameResolvesFromNeighbors(t *testing.T) {
	e := newTestEngine(t, Option{})
	pkt := ipv4Packet(t, "10.1.2.3", []byte("hello"))

	p, err := DecodeIP(pkt)
	if err != nil {
		t.Fatalf("DecodeIP: %v", err)
	}
	frame, err := e.Frame(p)
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}

	if len(frame) != fc.HeaderLen+fc.LLCLen+len(pkt) {
		t.Fatalf("got frame length %d, want %d", len(frame), fc.HeaderLen+fc.LLCLen+len(pkt))
	}
	hdr := fc.Frame(frame)
	if diff := cmp.Diff(peerAddr, hdr.DestinationAddress()); diff != "" {
		t.Fatalf("destination mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(devAddr, hdr.SourceAddress()); diff != "" {
		t.Fatalf("source mismatch (-want +got):\n%s", diff)
	}
	if hdr.LLC().Type() != layers.EthernetTypeIPv4 {
		t.Fatalf("got snap type %s", hdr.LLC().Type())
	}
	if !bytes.Equal(frame[fc.HeaderLen+fc.LLCLen:], pkt) {
		t.Fatal("payload changed")
	}

	want := Stats{Frames: 1, Resolved: 1, Queues: []uint64{1}}
	if diff := cmp.Diff(want, e.Stats()); diff != "" {
		t.Fatalf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestFrameIPv6HasNoTypeField(t *testing.T) {
	e := newTestEngine(t, Option{})
	pkt := ipv6Packet(t, "fd00::2")

	p, err := DecodeIP(pkt)
	if err != nil {
		t.Fatalf("DecodeIP: %v", err)
	}
	frame, err := e.Frame(p)
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if len(frame) != fc.HeaderLen+len(pkt) {
		t.Fatalf("got frame length %d, want %d", len(frame), fc.HeaderLen+len(pkt))
	}
	if diff := cmp.Diff(v6Addr, fc.Frame(frame).DestinationAddress()); diff != "" {
		t.Fatalf("destination mismatch (-want +got):\n%s", diff)
	}
}

func TestFrameErrors(t *testing.T) {
	e := newTestEngine(t, Option{})

	p, err := DecodeIP(ipv4Packet(t, "192.168.1.1", nil))
	if err != nil {
		t.Fatalf("DecodeIP: %v", err)
	}
	if _, err := e.Frame(p); !errors.Is(err, ErrUnresolved) {
		t.Fatalf("got %v, want ErrUnresolved", err)
	}

	big := &Payload{Protocol: layers.EthernetTypeIPv4, Dst: peerAddr, Data: make([]byte, fc.MTU+1)}
	if _, err := e.Frame(big); !errors.Is(err, ErrTooBig) {
		t.Fatalf("got %v, want ErrTooBig", err)
	}

	want := Stats{Unresolved: 1, Dropped: 2, Queues: []uint64{0}}
	if diff := cmp.Diff(want, e.Stats()); diff != "" {
		t.Fatalf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestNewRejectsBadNeighbor(t *testing.T) {
	dev, err := device.NewAllocator().Alloc(device.Options{
		NameTemplate: fc.NameTemplate,
		TxQueues:     1,
		RxQueues:     1,
		Setup:        fc.Setup,
	})
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	_, err = New(&Option{
		Device: dev,
		Neighbors: []neigh.Entry{
			{Prefix: netip.MustParsePrefix("10.0.0.0/8"), HardwareAddr: make(net.HardwareAddr, 6)},
		},
	})
	if !errors.Is(err, fc.ErrInvalidAddress) {
		t.Fatalf("got %v, want ErrInvalidAddress", err)
	}

	if _, err := New(&Option{}); !errors.Is(err, ErrNoDevice) {
		t.Fatalf("got %v, want ErrNoDevice", err)
	}
}

func writeCapture(t *testing.T, lt layers.LinkType, packets ...[]byte) *bytes.Buffer {
	t.Helper()
	var in bytes.Buffer
	w := pcapgo.NewWriter(&in)
	if err := w.WriteFileHeader(65535, lt); err != nil {
		t.Fatalf("write header: %v", err)
	}
	for i, pkt := range packets {
		ci := gopacket.CaptureInfo{
			Timestamp:     time.Unix(1700000000, int64(i)),
			CaptureLength: len(pkt),
			Length:        len(pkt),
		}
		if err := w.WritePacket(ci, pkt); err != nil {
			t.Fatalf("write packet: %v", err)
		}
	}
	return &in
}

func readCapture(t *testing.T, out *bytes.Buffer) [][]byte {
	t.Helper()
	r, err := pcapgo.NewReader(out)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	if r.LinkType() != LinkTypeIPOverFC {
		t.Fatalf("got link type %d, want %d", r.LinkType(), LinkTypeIPOverFC)
	}
	var frames [][]byte
	for {
		data, _, err := r.ReadPacketData()
		if err != nil {
			break
		}
		frames = append(frames, data)
	}
	return frames
}

func TestConvertRawIP(t *testing.T) {
	e := newTestEngine(t, Option{})
	resolvable := ipv4Packet(t, "10.0.0.7", []byte("a"))
	in := writeCapture(t, layers.LinkTypeRaw,
		resolvable,
		ipv4Packet(t, "172.16.0.1", []byte("b")),
		[]byte{0x00, 0x01},
	)

	src, err := pcapgo.NewReader(in)
	if err != nil {
		t.Fatalf("open input: %v", err)
	}
	var out bytes.Buffer
	dst, err := NewPcapWriter(&out, 65535)
	if err != nil {
		t.Fatalf("NewPcapWriter: %v", err)
	}
	if err := e.Convert(context.Background(), src, src.LinkType(), dst); err != nil {
		t.Fatalf("Convert: %v", err)
	}

	frames := readCapture(t, &out)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if !bytes.Equal(frames[0][fc.HeaderLen+fc.LLCLen:], resolvable) {
		t.Fatal("payload changed")
	}

	want := Stats{Frames: 1, Resolved: 1, Unresolved: 1, Dropped: 2, Queues: []uint64{1}}
	if diff := cmp.Diff(want, e.Stats()); diff != "" {
		t.Fatalf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestConvertEthernet(t *testing.T) {
	broadcast := net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	arp := arpFrame(t, broadcast)

	for _, preserve := range []bool{false, true} {
		e := newTestEngine(t, Option{PreserveSource: preserve})
		src, err := pcapgo.NewReader(writeCapture(t, layers.LinkTypeEthernet, arp))
		if err != nil {
			t.Fatalf("open input: %v", err)
		}
		var out bytes.Buffer
		dst, err := NewPcapWriter(&out, 65535)
		if err != nil {
			t.Fatalf("NewPcapWriter: %v", err)
		}
		if err := e.Convert(context.Background(), src, src.LinkType(), dst); err != nil {
			t.Fatalf("Convert: %v", err)
		}

		frames := readCapture(t, &out)
		if len(frames) != 1 {
			t.Fatalf("got %d frames, want 1", len(frames))
		}
		hdr := fc.Frame(frames[0])
		if hdr.LLC().Type() != layers.EthernetTypeARP {
			t.Fatalf("got snap type %s, want ARP", hdr.LLC().Type())
		}
		if diff := cmp.Diff(broadcast, hdr.DestinationAddress()); diff != "" {
			t.Fatalf("destination mismatch (-want +got):\n%s", diff)
		}
		wantSrc := devAddr
		if preserve {
			wantSrc = net.HardwareAddr(arp[6:12])
		}
		if diff := cmp.Diff(wantSrc, hdr.SourceAddress()); diff != "" {
			t.Fatalf("preserve=%v: source mismatch (-want +got):\n%s", preserve, diff)
		}
		if !bytes.Equal(frames[0][fc.HeaderLen+fc.LLCLen:], arp[14:]) {
			t.Fatal("arp payload changed")
		}
	}

	t.Run("padded ipv4", func(t *testing.T) {
		e := newTestEngine(t, Option{})
		pkt := ipv4Packet(t, "10.0.0.5", nil)
		eth := append([]byte{}, peerAddr...)
		eth = append(eth, 0x02, 0x01, 0x01, 0x01, 0x01, 0x01, 0x08, 0x00)
		eth = append(eth, pkt...)
		eth = append(eth, make([]byte, 60-len(eth))...)

		src, err := pcapgo.NewReader(writeCapture(t, layers.LinkTypeEthernet, eth))
		if err != nil {
			t.Fatalf("open input: %v", err)
		}
		var out bytes.Buffer
		dst, err := NewPcapWriter(&out, 65535)
		if err != nil {
			t.Fatalf("NewPcapWriter: %v", err)
		}
		if err := e.Convert(context.Background(), src, src.LinkType(), dst); err != nil {
			t.Fatalf("Convert: %v", err)
		}

		frames := readCapture(t, &out)
		if len(frames) != 1 {
			t.Fatalf("got %d frames, want 1", len(frames))
		}
		if want := fc.HeaderLen + fc.LLCLen + len(pkt); len(frames[0]) != want {
			t.Fatalf("got frame length %d, want %d", len(frames[0]), want)
		}
		if !bytes.Equal(frames[0][fc.HeaderLen+fc.LLCLen:], pkt) {
			t.Fatal("ipv4 payload changed")
		}
	})
}

func TestConvertSnapLen(t *testing.T) {
	e := newTestEngine(t, Option{SnapLen: 24})
	src, err := pcapgo.NewReader(writeCapture(t, layers.LinkTypeRaw, ipv4Packet(t, "10.0.0.1", make([]byte, 64))))
	if err != nil {
		t.Fatalf("open input: %v", err)
	}
	var out bytes.Buffer
	dst, err := NewPcapWriter(&out, 24)
	if err != nil {
		t.Fatalf("NewPcapWriter: %v", err)
	}
	if err := e.Convert(context.Background(), src, src.LinkType(), dst); err != nil {
		t.Fatalf("Convert: %v", err)
	}

	r, err := pcapgo.NewReader(&out)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	data, ci, err := r.ReadPacketData()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(data) != 24 || ci.Length != fc.HeaderLen+fc.LLCLen+20+64 {
		t.Fatalf("got capture %d/%d bytes", len(data), ci.Length)
	}
}

func TestConvertUnsupportedLinkType(t *testing.T) {
	e := newTestEngine(t, Option{})
	err := e.Convert(context.Background(), nil, layers.LinkTypeNull, nil)
	if !errors.Is(err, ErrLinkType) {
		t.Fatalf("got %v, want ErrLinkType", err)
	}
}

func TestConvertCanceled(t *testing.T) {
	e := newTestEngine(t, Option{})
	src, err := pcapgo.NewReader(writeCapture(t, layers.LinkTypeRaw, ipv4Packet(t, "10.0.0.1", nil)))
	if err != nil {
		t.Fatalf("open input: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	dst, err := NewPcapWriter(&out, 65535)
	if err != nil {
		t.Fatalf("NewPcapWriter: %v", err)
	}
	if err := e.Convert(ctx, src, src.LinkType(), dst); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestFrameSpreadsOverQueues(t *testing.T) {
	dev, err := device.NewAllocator().Alloc(device.Options{
		NameTemplate: fc.NameTemplate,
		HardwareAddr: devAddr,
		TxQueues:     4,
		RxQueues:     4,
		Setup:        fc.Setup,
	})
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	e, err := New(&Option{
		Device:    dev,
		Neighbors: []neigh.Entry{{Prefix: netip.MustParsePrefix("10.0.0.0/8"), HardwareAddr: peerAddr}},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	const flows = 32
	for i := 0; i < flows; i++ {
		p, err := DecodeIP(ipv4Packet(t, netip.AddrFrom4([4]byte{10, 0, 1, byte(i)}).String(), nil))
		if err != nil {
			t.Fatalf("DecodeIP: %v", err)
		}
		if _, err := e.Frame(p); err != nil {
			t.Fatalf("Frame: %v", err)
		}
	}

	s := e.Stats()
	if len(s.Queues) != 4 {
		t.Fatalf("got %d queues, want 4", len(s.Queues))
	}
	var total uint64
	for _, n := range s.Queues {
		total += n
	}
	if total != flows || s.Frames != flows {
		t.Fatalf("queues account for %d of %d frames", total, s.Frames)
	}
}

type failingWriter struct {
	err error
}

func (w failingWriter) WritePacket(gopacket.CaptureInfo, []byte) error {
	return w.err
}

func TestConvertWriteError(t *testing.T) {
	e := newTestEngine(t, Option{})
	src, err := pcapgo.NewReader(writeCapture(t, layers.LinkTypeRaw, ipv4Packet(t, "10.0.0.1", nil)))
	if err != nil {
		t.Fatalf("open input: %v", err)
	}
	diskFull := errors.New("disk full")
	err = e.Convert(context.Background(), src, src.LinkType(), failingWriter{err: diskFull})
	if !errors.Is(err, diskFull) {
		t.Fatalf("got %v, want the writer error", err)
	}
	if s := e.Stats(); s.Frames != 0 || s.Dropped != 0 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestFrameConcurrent(t *testing.T) {
	e := newTestEngine(t, Option{})

	const workers, perWorker = 16, 200
	packets := make([][][]byte, workers)
	for w := range packets {
		packets[w] = make([][]byte, perWorker)
		for i := range packets[w] {
			dst := netip.AddrFrom4([4]byte{10, byte(w), byte(i), 1}).String()
			packets[w][i] = ipv4Packet(t, dst, []byte{byte(w), byte(i)})
		}
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i, pkt := range packets[w] {
				p, err := DecodeIP(pkt)
				if err != nil {
					t.Errorf("DecodeIP: %v", err)
					return
				}
				frame, err := e.Frame(p)
				if err != nil {
					t.Errorf("Frame: %v", err)
					return
				}
				hdr := fc.Frame(frame)
				if !bytes.Equal(hdr.DestinationAddress(), peerAddr) || !bytes.Equal(hdr.SourceAddress(), devAddr) {
					t.Errorf("worker %d: unexpected header %x", w, frame[:fc.HeaderLen])
					return
				}
				if !bytes.Equal(frame[fc.HeaderLen+fc.LLCLen:], pkt) {
					t.Errorf("worker %d: payload %d changed", w, i)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	s := e.Stats()
	if s.Frames != workers*perWorker || s.Resolved != workers*perWorker || s.Dropped != 0 {
		t.Fatalf("unexpected stats %+v", s)
	}
}
