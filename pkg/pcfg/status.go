package pcfg

import "strings"

// ParseStatus is a bitmask describing the outcome of a lookup. CanParse is
// the authoritative success flag; the remaining bits explain failures and
// can compose.
type ParseStatus uint

const (
	CanParse ParseStatus = 1 << iota
	BeyondCutoff
	StructureNotFound
	TerminalNotFound
	TerminalCollision
	TerminalCantBeGenerated
	UnexpectedFailure
)

var statusNames = []struct {
	bit  ParseStatus
	name string
}{
	{CanParse, "CanParse"},
	{BeyondCutoff, "BeyondCutoff"},
	{StructureNotFound, "StructureNotFound"},
	{TerminalNotFound, "TerminalNotFound"},
	{TerminalCollision, "TerminalCollision"},
	{TerminalCantBeGenerated, "TerminalCantBeGenerated"},
	{UnexpectedFailure, "UnexpectedFailure"},
}

func (s ParseStatus) String() string {
	if s == 0 {
		return "None"
	}
	var parts []string
	for _, n := range statusNames {
		if s&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}
