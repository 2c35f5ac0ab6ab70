package observability

import (
	"encoding/hex"
	"fmt"
	"strings"

	claudefserrors "github.com/marmos91/dittofs/pkg/claudefs/errors"
)

// Traceparent is a parsed W3C traceparent header:
// "00-<32 hex trace id>-<16 hex span id>-<2 hex flags>".
type Traceparent struct {
	Version uint8
	TraceID [16]byte
	SpanID  [8]byte
	Flags   uint8
}

// ParseTraceparent strictly parses a W3C traceparent header. Any version
// other than 0, or a field of the wrong hex length, is rejected.
func ParseTraceparent(s string) (Traceparent, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 4 {
		return Traceparent{}, claudefserrors.New(claudefserrors.KindProtocol, claudefserrors.CodeTruncated, "ParseTraceparent")
	}

	versionHex, traceIDHex, spanIDHex, flagsHex := parts[0], parts[1], parts[2], parts[3]

	if len(versionHex) != 2 || len(traceIDHex) != 32 || len(spanIDHex) != 16 || len(flagsHex) != 2 {
		return Traceparent{}, claudefserrors.New(claudefserrors.KindProtocol, claudefserrors.CodeTruncated, "ParseTraceparent")
	}

	versionBytes, err := hex.DecodeString(versionHex)
	if err != nil {
		return Traceparent{}, claudefserrors.Wrap(claudefserrors.KindProtocol, claudefserrors.CodeTruncated, "ParseTraceparent", err)
	}
	if versionBytes[0] != 0 {
		return Traceparent{}, claudefserrors.New(claudefserrors.KindProtocol, claudefserrors.CodeVersionMismatch, "ParseTraceparent")
	}

	var tp Traceparent
	tp.Version = versionBytes[0]

	traceIDBytes, err := hex.DecodeString(traceIDHex)
	if err != nil {
		return Traceparent{}, claudefserrors.Wrap(claudefserrors.KindProtocol, claudefserrors.CodeTruncated, "ParseTraceparent", err)
	}
	copy(tp.TraceID[:], traceIDBytes)

	spanIDBytes, err := hex.DecodeString(spanIDHex)
	if err != nil {
		return Traceparent{}, claudefserrors.Wrap(claudefserrors.KindProtocol, claudefserrors.CodeTruncated, "ParseTraceparent", err)
	}
	copy(tp.SpanID[:], spanIDBytes)

	flagsBytes, err := hex.DecodeString(flagsHex)
	if err != nil {
		return Traceparent{}, claudefserrors.Wrap(claudefserrors.KindProtocol, claudefserrors.CodeTruncated, "ParseTraceparent", err)
	}
	tp.Flags = flagsBytes[0]

	return tp, nil
}

// FormatTraceparent renders tp as a W3C traceparent header, lowercase hex.
func FormatTraceparent(tp Traceparent) string {
	return fmt.Sprintf("%02x-%s-%s-%02x", tp.Version, hex.EncodeToString(tp.TraceID[:]), hex.EncodeToString(tp.SpanID[:]), tp.Flags)
}
