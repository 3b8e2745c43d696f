package tuning

import (
	"fmt"
	"strings"
)

// OperationKind tags a category of timed operation.
type OperationKind int

const (
	// Insert reads a chunk and decodes it into text.
	Insert OperationKind = iota
	// RawInsert reads a chunk without decoding.
	RawInsert
	// Encode converts text into the output encoding.
	Encode
	// Write stores a chunk at the destination.
	Write
	// Hexlify converts raw bytes into a hex view.
	Hexlify
	// Dehexlify converts a hex view back into raw bytes.
	Dehexlify
)

// Kinds lists every operation kind in table order.
var Kinds = []OperationKind{Insert, RawInsert, Encode, Write, Hexlify, Dehexlify}

var kindNames = map[OperationKind]string{
	Insert:    "insert",
	RawInsert: "raw_insert",
	Encode:    "encode",
	Write:     "write",
	Hexlify:   "hexlify",
	Dehexlify: "dehexlify",
}

// String returns the lowercase name of the kind.
func (k OperationKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseKind converts a kind name into an OperationKind. It accepts the
// names returned by String in any case, plus "read" for RawInsert.
func ParseKind(s string) (OperationKind, error) {
	switch strings.ToLower(s) {
	case "insert":
		return Insert, nil
	case "raw_insert", "rawinsert", "read":
		return RawInsert, nil
	case "encode":
		return Encode, nil
	case "write":
		return Write, nil
	case "hexlify":
		return Hexlify, nil
	case "dehexlify":
		return Dehexlify, nil
	default:
		return 0, fmt.Errorf("unknown operation kind %q", s)
	}
}

// approximated reports whether missing buckets for this kind may be filled
// from neighbors. Hex conversions are either fully known or fully unknown
// for a given resource.
func (k OperationKind) approximated() bool {
	return k != Hexlify && k != Dehexlify
}

// Weighted pairs an operation kind with its share of the total cost.
type Weighted struct {
	Kind   OperationKind
	Weight float64
}

// Weigh builds a weight-1 set from the given kinds.
func Weigh(kinds ...OperationKind) []Weighted {
	out := make([]Weighted, len(kinds))
	for i, k := range kinds {
		out[i] = Weighted{Kind: k, Weight: 1}
	}
	return out
}

// Mode controls whether measurements are recorded and acted upon.
type Mode int

const (
	ModeOff Mode = iota
	ModeStatsOnly
	ModeFull
)

// String returns the config name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeStatsOnly:
		return "stats"
	case ModeFull:
		return "full"
	default:
		return "unknown"
	}
}

// ParseMode converts a config string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "off", "none", "false":
		return ModeOff, nil
	case "stats", "stats_only", "statsonly":
		return ModeStatsOnly, nil
	case "full", "on", "true":
		return ModeFull, nil
	default:
		return ModeOff, fmt.Errorf("invalid tuning mode %q (must be off, stats or full)", s)
	}
}
