// Package pktline implements Git's packet-line framing, the length-prefixed
// wire format shared by every Git smart-protocol conversation: reference
// advertisement, the push command/options stream, the report-status
// response, and the proc-receive helper conversation.
//
// A pkt-line is a 4-byte hex length (including the length bytes themselves)
// followed by that many bytes of payload. Three special packets have a
// length of 0000 (flush), 0001 (delimiter), and 0002 (response-end) and
// carry no payload.
//
// For more details about Git's packet format, see:
//   - https://git-scm.com/docs/gitprotocol-common
//   - https://git-scm.com/docs/gitprotocol-pack
//   - https://git-scm.com/docs/protocol-v2
package pktline

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
)

const (
	// LengthSize is the size of the length field in a packet (4 ASCII hex digits).
	LengthSize = 4

	// MaxDataSize is the maximum size of the data field in a packet.
	MaxDataSize = 65516

	// MaxPacketSize is the maximum total size of a packet, length field included.
	MaxPacketSize = MaxDataSize + LengthSize
)

// Kind identifies which of the four packet shapes a parsed Packet is.
type Kind int

const (
	// KindData is a regular length-prefixed data packet.
	KindData Kind = iota
	// KindFlush is the 0000 flush packet.
	KindFlush
	// KindDelim is the 0001 delimiter packet (protocol v2 section separator).
	KindDelim
	// KindResponseEnd is the 0002 response-end packet (protocol v2).
	KindResponseEnd
)

// Packet is one parsed pkt-line. Data is nil for the three special kinds.
type Packet struct {
	Kind Kind
	Data []byte
}

// ErrDataTooLarge is returned when writing a data packet whose payload
// exceeds MaxDataSize.
var ErrDataTooLarge = errors.New("pktline: data field too large")

// Sideband channel identifiers, prefixed as a single byte ahead of the
// payload when side-band-64k has been negotiated.
const (
	ChannelData     byte = 1
	ChannelProgress byte = 2
	ChannelFatal    byte = 3
)

// Reader reads framed packets off an underlying stream.
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps r for pkt-line decoding.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, MaxPacketSize)}
}

// ReadPacket reads and decodes a single pkt-line.
func (r *Reader) ReadPacket() (Packet, error) {
	var lenBuf [LengthSize]byte
	if _, err := io.ReadFull(r.r, lenBuf[:]); err != nil {
		return Packet{}, eofIsUnexpected(err)
	}

	length64, err := strconv.ParseUint(string(lenBuf[:]), 16, 32)
	if err != nil {
		return Packet{}, fmt.Errorf("pktline: invalid length header %q: %w", lenBuf, err)
	}
	length := int(length64)

	switch length {
	case 0:
		return Packet{Kind: KindFlush}, nil
	case 1:
		return Packet{Kind: KindDelim}, nil
	case 2:
		return Packet{Kind: KindResponseEnd}, nil
	}

	if length < LengthSize {
		return Packet{}, fmt.Errorf("pktline: invalid packet length %d", length)
	}
	if length > MaxPacketSize {
		return Packet{}, fmt.Errorf("pktline: packet length %d exceeds maximum %d", length, MaxPacketSize)
	}

	data := make([]byte, length-LengthSize)
	if _, err := io.ReadFull(r.r, data); err != nil {
		return Packet{}, eofIsUnexpected(err)
	}

	return Packet{Kind: KindData, Data: data}, nil
}

// ReadLines reads data packets until a flush (or delimiter, or
// response-end) packet is seen, returning the data payloads in order and
// the terminating packet's Kind.
func (r *Reader) ReadLines() ([][]byte, Kind, error) {
	var lines [][]byte
	for {
		pkt, err := r.ReadPacket()
		if err != nil {
			return lines, KindData, err
		}
		if pkt.Kind != KindData {
			return lines, pkt.Kind, nil
		}
		lines = append(lines, pkt.Data)
	}
}

func eofIsUnexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// Writer writes framed packets to an underlying stream.
type Writer struct {
	w io.Writer
}

// NewWriter wraps w for pkt-line encoding.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteData writes data as a single length-prefixed packet.
func (w *Writer) WriteData(data []byte) error {
	if len(data) > MaxDataSize {
		return ErrDataTooLarge
	}
	out := make([]byte, 0, len(data)+LengthSize)
	out = fmt.Appendf(out, "%04x", len(data)+LengthSize)
	out = append(out, data...)
	_, err := w.w.Write(out)
	return err
}

// WriteLine writes s followed by a newline as a single data packet,
// appending the newline if not already present.
func (w *Writer) WriteLine(s string) error {
	if len(s) == 0 || s[len(s)-1] != '\n' {
		s += "\n"
	}
	return w.WriteData([]byte(s))
}

// WriteFlush writes the 0000 flush packet.
func (w *Writer) WriteFlush() error {
	_, err := w.w.Write([]byte("0000"))
	return err
}

// WriteDelim writes the 0001 delimiter packet.
func (w *Writer) WriteDelim() error {
	_, err := w.w.Write([]byte("0001"))
	return err
}

// WriteResponseEnd writes the 0002 response-end packet.
func (w *Writer) WriteResponseEnd() error {
	_, err := w.w.Write([]byte("0002"))
	return err
}

// WriteSideband writes data on the given sideband channel, prefixing a
// single channel-id byte ahead of the payload as a single pkt-line.
// Callers must only use this after side-band-64k has been negotiated.
func (w *Writer) WriteSideband(channel byte, data []byte) error {
	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, channel)
	buf = append(buf, data...)
	return w.WriteData(buf)
}
