package protocol

import (
	"errors"
	"fmt"
)

// Frame layout:
//
//	[0] SOP1 = 0xFF
//	[1] SOP2 = 0xFC | answer<<0 | resetTimeout<<1
//	[2] device class
//	[3] command id
//	[4] sequence number
//	[5] len(payload) + 1
//	[6:6+n] payload
//	[6+n] checksum = ^sum(frame[2:6+n])
const (
	SOP1       byte = 0xFF
	headerSize      = 6
)

var (
	ErrShortFrame  = errors.New("protocol: frame too short")
	ErrBadChecksum = errors.New("protocol: checksum mismatch")
)

// Encode frames cmd with the given sequence number.
func Encode(cmd Command, seq uint8) []byte {
	payload := cmd.Payload()
	buf := make([]byte, headerSize, headerSize+len(payload)+1)
	buf[0] = SOP1
	buf[1] = cmd.Options().SOP2()
	buf[2] = byte(cmd.Device())
	buf[3] = cmd.ID()
	buf[4] = seq
	buf[5] = byte(len(payload) + 1)
	buf = append(buf, payload...)
	return append(buf, Checksum(buf[2:]))
}

// Checksum returns the one's complement of the wrapping byte sum of b.
func Checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return ^sum
}

// PingAcknowledgement returns the exact bytes a robot notifies in reply to
// a Ping sent with seq.
func PingAcknowledgement(seq uint8) []byte {
	ack := []byte{0xFF, 0xFF, 0x00, seq, 0x01}
	return append(ack, Checksum(ack[2:]))
}

// VerifyChecksum checks the trailing checksum and length byte of a command
// frame produced by Encode.
func VerifyChecksum(frame []byte) error {
	if len(frame) < headerSize+1 {
		return fmt.Errorf("%w: %d bytes", ErrShortFrame, len(frame))
	}
	if want := int(frame[5]) + headerSize; want != len(frame) {
		return fmt.Errorf("protocol: length byte %d does not match frame of %d bytes", frame[5], len(frame))
	}
	last := len(frame) - 1
	if got, want := frame[last], Checksum(frame[2:last]); got != want {
		return fmt.Errorf("%w: got 0x%02x, want 0x%02x", ErrBadChecksum, got, want)
	}
	return nil
}
