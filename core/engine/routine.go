package engine

import (
	"context"
	"io"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pkg/errors"
)

// LinkTypeIPOverFC is the pcap link type for IP over Fibre Channel.
const LinkTypeIPOverFC layers.LinkType = 122

// PacketWriter receives finished frames. *pcapgo.Writer implements it.
type PacketWriter interface {
	WritePacket(ci gopacket.CaptureInfo, data []byte) error
}

// NewPcapWriter writes a pcap file header for Fibre Channel frames to w.
func NewPcapWriter(w io.Writer, snapLen int) (*pcapgo.Writer, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(uint32(snapLen), LinkTypeIPOverFC); err != nil {
		return nil, errors.Wrap(err, "write pcap header")
	}
	return pw, nil
}

// Convert frames every packet read from src and writes it to dst until src
// is drained or ctx is done. Packets that cannot be framed are logged and
// dropped.
func (e *Engine) Convert(ctx context.Context, src gopacket.PacketDataSource, linkType layers.LinkType, dst PacketWriter) error {
	decode, err := decoderFor(linkType, e.opt.PreserveSource)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		data, ci, err := src.ReadPacketData()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "read packet")
		}

		payload, err := decode(data)
		if err != nil {
			e.dropped.Add(1)
			e.log.Warnf("[Convert] drop packet, because %s", err)
			continue
		}

		if err := e.writeFrame(payload, ci, len(data), dst); err != nil {
			var we *writeError
			if errors.As(err, &we) {
				return errors.Wrap(we.err, "write frame")
			}
			e.dropped.Add(1)
			e.log.Warnf("[Convert] drop packet: %s -> %s, because %s", payload.Protocol, payload.NextHop, err)
			continue
		}
	}
}

// writeError marks a failure of the packet writer, which ends a conversion.
type writeError struct {
	err error
}

func (w *writeError) Error() string { return w.err.Error() }

func (w *writeError) Unwrap() error { return w.err }

func (e *Engine) writeFrame(p *Payload, ci gopacket.CaptureInfo, inLen int, dst PacketWriter) error {
	buf := e.bufferPool.Get()
	defer e.bufferPool.Put(buf)

	if err := e.build(buf, p); err != nil {
		return err
	}
	frame := buf.Bytes()

	// keep the wire length relation for truncated captures
	ci.Length += len(frame) - inLen
	if ci.Length < len(frame) {
		ci.Length = len(frame)
	}
	if e.opt.SnapLen > 0 && len(frame) > e.opt.SnapLen {
		frame = frame[:e.opt.SnapLen]
	}
	ci.CaptureLength = len(frame)

	if err := dst.WritePacket(ci, frame); err != nil {
		e.log.Errorf("[Convert] %s", err)
		return &writeError{err: err}
	}
	e.sent(p)
	return nil
}
