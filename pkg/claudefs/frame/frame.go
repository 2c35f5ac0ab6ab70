// Package frame implements the claudefs wire protocol's fixed 24-byte
// header framing: encode/decode, opcode namespacing and CRC32C payload
// protection. See spec.md §4.1 and §6.
package frame

import (
	"encoding/binary"

	"github.com/marmos91/dittofs/pkg/claudefs/checksum"
	cferrors "github.com/marmos91/dittofs/pkg/claudefs/errors"
)

// Magic is the constant that identifies a claudefs frame.
const Magic uint32 = 0x43465331 // "CFS1"

// Version is the current wire protocol version.
const Version uint8 = 1

// HeaderSize is the fixed size of a frame header in bytes.
const HeaderSize = 24

// MaxPayloadSize is the largest payload a frame may carry (spec.md §4.1).
const MaxPayloadSize = 64 * 1024 * 1024

// Flags is a bitset carried in the header.
type Flags uint8

const (
	FlagCompressed Flags = 1 << iota
	FlagEncrypted
	FlagOneWay
	FlagResponse
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// Opcode identifies the RPC procedure a frame carries. Opcodes are
// namespaced by the high byte: 0x01xx metadata, 0x02xx data, 0x03xx
// cluster, 0x04xx replication.
type Opcode uint16

const (
	// Metadata family (0x0101-0x010D, per spec.md §6's RPC variant list).
	OpLookup Opcode = 0x0101 + iota
	OpGetAttr
	OpSetAttr
	OpCreateFile
	OpMkdir
	OpUnlink
	OpRmdir
	OpRename
	OpSymlink
	OpReadlink
	OpLink
	OpReaddir
	OpOpen
)

const (
	OpClose Opcode = 0x010E + iota
	OpGetXattr
	OpSetXattr
	OpListXattrs
	OpRemoveXattr
)

const (
	// Data family (0x0201-0x0206).
	OpRead Opcode = 0x0201 + iota
	OpWrite
	OpTruncate
	OpFsync
	OpFallocate
	OpFlush
)

const (
	// Cluster family (0x0301-0x0305).
	OpJoin Opcode = 0x0301 + iota
	OpLeave
	OpHealthCheck
	OpRebalancePlan
	OpScaleStatus
)

const (
	// Replication family (0x0401-0x0403).
	OpReplicateBatch Opcode = 0x0401 + iota
	OpReplicateAck
	OpFailoverEvent
)

// Name returns a human-readable opcode name, or "" for an unknown opcode.
// The mapping is total and reversible: every known Opcode constant has an
// entry here, and isKnownOpcode is its inverse.
func (o Opcode) Name() string {
	switch o {
	case OpLookup:
		return "Lookup"
	case OpGetAttr:
		return "GetAttr"
	case OpSetAttr:
		return "SetAttr"
	case OpCreateFile:
		return "CreateFile"
	case OpMkdir:
		return "Mkdir"
	case OpUnlink:
		return "Unlink"
	case OpRmdir:
		return "Rmdir"
	case OpRename:
		return "Rename"
	case OpSymlink:
		return "Symlink"
	case OpReadlink:
		return "Readlink"
	case OpLink:
		return "Link"
	case OpReaddir:
		return "Readdir"
	case OpOpen:
		return "Open"
	case OpClose:
		return "Close"
	case OpGetXattr:
		return "GetXattr"
	case OpSetXattr:
		return "SetXattr"
	case OpListXattrs:
		return "ListXattrs"
	case OpRemoveXattr:
		return "RemoveXattr"
	case OpRead:
		return "Read"
	case OpWrite:
		return "Write"
	case OpTruncate:
		return "Truncate"
	case OpFsync:
		return "Fsync"
	case OpFallocate:
		return "Fallocate"
	case OpFlush:
		return "Flush"
	case OpJoin:
		return "Join"
	case OpLeave:
		return "Leave"
	case OpHealthCheck:
		return "HealthCheck"
	case OpRebalancePlan:
		return "RebalancePlan"
	case OpScaleStatus:
		return "ScaleStatus"
	case OpReplicateBatch:
		return "ReplicateBatch"
	case OpReplicateAck:
		return "ReplicateAck"
	case OpFailoverEvent:
		return "FailoverEvent"
	default:
		return ""
	}
}

// IsReadOnly reports whether opcode belongs to the read-only metadata set
// {Lookup, GetAttr, Readlink, Readdir, ListXattrs} (spec.md §6).
func (o Opcode) IsReadOnly() bool {
	switch o {
	case OpLookup, OpGetAttr, OpReadlink, OpReaddir, OpListXattrs:
		return true
	default:
		return false
	}
}

// Header is the fixed 24-byte frame header.
type Header struct {
	Magic         uint32
	Version       uint8
	Flags         Flags
	Opcode        Opcode
	RequestID     uint64
	PayloadLength uint32
	Checksum      uint32
}

// Frame is a decoded protocol frame: header plus payload.
type Frame struct {
	Header  Header
	Payload []byte
}

// New builds a Frame with a freshly computed payload checksum.
func New(opcode Opcode, flags Flags, requestID uint64, payload []byte) Frame {
	return Frame{
		Header: Header{
			Magic:         Magic,
			Version:       Version,
			Flags:         flags,
			Opcode:        opcode,
			RequestID:     requestID,
			PayloadLength: uint32(len(payload)),
			Checksum:      checksum.CRC32CValue(payload),
		},
		Payload: payload,
	}
}

// Encode serializes f into header-then-payload wire form.
func Encode(f Frame) []byte {
	buf := make([]byte, HeaderSize+len(f.Payload))
	binary.BigEndian.PutUint32(buf[0:4], f.Header.Magic)
	buf[4] = f.Header.Version
	buf[5] = uint8(f.Header.Flags)
	binary.BigEndian.PutUint16(buf[6:8], uint16(f.Header.Opcode))
	binary.BigEndian.PutUint64(buf[8:16], f.Header.RequestID)
	binary.BigEndian.PutUint32(buf[16:20], f.Header.PayloadLength)
	binary.BigEndian.PutUint32(buf[20:24], f.Header.Checksum)
	copy(buf[24:], f.Payload)
	return buf
}

// Decode parses a wire-form byte slice into a Frame, validating magic,
// version, size and checksum exactly per spec.md §4.1.
func Decode(buf []byte) (Frame, error) {
	const op = "frame.Decode"

	if len(buf) < HeaderSize {
		return Frame{}, cferrors.New(cferrors.KindProtocol, cferrors.CodeTruncated, op)
	}

	magic := binary.BigEndian.Uint32(buf[0:4])
	if magic != Magic {
		return Frame{}, cferrors.New(cferrors.KindProtocol, cferrors.CodeBadMagic, op)
	}

	version := buf[4]
	if version != Version {
		return Frame{}, cferrors.New(cferrors.KindProtocol, cferrors.CodeVersionMismatch, op)
	}

	payloadLen := binary.BigEndian.Uint32(buf[16:20])
	if payloadLen > MaxPayloadSize {
		return Frame{}, cferrors.New(cferrors.KindProtocol, cferrors.CodePayloadTooLarge, op)
	}

	if uint32(len(buf)) < HeaderSize+payloadLen {
		return Frame{}, cferrors.New(cferrors.KindProtocol, cferrors.CodeTruncated, op)
	}

	payload := buf[HeaderSize : HeaderSize+payloadLen]
	wantChecksum := binary.BigEndian.Uint32(buf[20:24])
	if checksum.CRC32CValue(payload) != wantChecksum {
		return Frame{}, cferrors.New(cferrors.KindProtocol, cferrors.CodeChecksumMismatch, op)
	}

	payloadCopy := make([]byte, payloadLen)
	copy(payloadCopy, payload)

	return Frame{
		Header: Header{
			Magic:         magic,
			Version:       version,
			Flags:         Flags(buf[5]),
			Opcode:        Opcode(binary.BigEndian.Uint16(buf[6:8])),
			RequestID:     binary.BigEndian.Uint64(buf[8:16]),
			PayloadLength: payloadLen,
			Checksum:      wantChecksum,
		},
		Payload: payloadCopy,
	}, nil
}

// ErrProcedureUnavailable is returned by handlers (not by Decode) when an
// opcode decodes successfully but names no known procedure.
func (o Opcode) Known() bool {
	return o.Name() != ""
}
