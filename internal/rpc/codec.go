package rpc

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// MaxFrameSize is the hard cap on one encoded frame, matching the
// channel-level message size limit of spec.md §8.
const MaxFrameSize = 64 * 1024

// compressThreshold: frames at or above this size are flate-compressed
// before the length prefix is written, since CONNECT/ICE bodies carrying
// SDP offers are the only payloads large enough for compression to pay
// for itself.
const compressThreshold = 512

// flagCompressed marks bit 31 of the length prefix to say the payload
// that follows is flate-compressed. The remaining 31 bits hold the
// on-wire length.
const flagCompressed = uint32(1) << 31

// Codec frames one logical RPC as a 4-byte length-prefixed JSON blob.
// Grounded on the teacher's varint-framed messaging codec
// (internal/protocol/messaging/codec.go), swapping protobuf for JSON per
// spec.md §6 and the varint length prefix for a fixed 4-byte one (the
// message set here never needs the larger range varint buys).
type Codec struct{}

func NewCodec() *Codec { return &Codec{} }

// WriteFrame encodes f as JSON and writes it length-prefixed to w.
func (c *Codec) WriteFrame(w io.Writer, f Frame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("rpc: marshal frame: %w", err)
	}

	compressed := false
	if len(payload) >= compressThreshold {
		if packed, ok := deflate(payload); ok && len(packed) < len(payload) {
			payload = packed
			compressed = true
		}
	}
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("rpc: frame of %d bytes exceeds %d byte cap: %w", len(payload), MaxFrameSize, ErrFrameTooLarge)
	}

	prefix := uint32(len(payload))
	if compressed {
		prefix |= flagCompressed
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], prefix)
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("rpc: write length prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("rpc: write payload: %w", err)
	}
	return nil
}

// ReadFrame reads and decodes one frame from r.
func (c *Codec) ReadFrame(r io.Reader) (Frame, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Frame{}, err
	}
	prefix := binary.BigEndian.Uint32(hdr[:])
	compressed := prefix&flagCompressed != 0
	length := prefix &^ flagCompressed

	if length > MaxFrameSize {
		return Frame{}, fmt.Errorf("rpc: advertised frame length %d exceeds %d byte cap: %w", length, MaxFrameSize, ErrFrameTooLarge)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, fmt.Errorf("rpc: read payload: %w", err)
	}

	if compressed {
		raw, err := inflate(payload)
		if err != nil {
			return Frame{}, fmt.Errorf("rpc: inflate payload: %w", err)
		}
		payload = raw
	}

	var f Frame
	if err := json.Unmarshal(payload, &f); err != nil {
		return Frame{}, fmt.Errorf("rpc: unmarshal frame: %w", err)
	}
	return f, nil
}

func deflate(src []byte) ([]byte, bool) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestSpeed)
	if err != nil {
		return nil, false
	}
	if _, err := w.Write(src); err != nil {
		return nil, false
	}
	if err := w.Close(); err != nil {
		return nil, false
	}
	return buf.Bytes(), true
}

// inflate bounds the decompressed output at MaxFrameSize+1: a compressed
// frame is already capped at that size on the wire, but the ratio between
// compressed and inflated bytes is attacker-controlled, so the reader side
// must cap the *output* independently or a small frame can decompress into
// an arbitrarily large allocation (a decompression bomb defeating the
// §8 message-size cap).
func inflate(src []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(src))
	defer r.Close()
	limited := io.LimitReader(r, MaxFrameSize+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if len(raw) > MaxFrameSize {
		return nil, fmt.Errorf("rpc: inflated payload exceeds %d byte cap: %w", MaxFrameSize, ErrFrameTooLarge)
	}
	return raw, nil
}
