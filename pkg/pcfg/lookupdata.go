package pcfg

import (
	"math/big"
	"sort"
	"strings"
)

// LookupData carries the result of a string lookup. When Status lacks
// CanParse the other fields are diagnostic only: Probability is -1 and
// Index is -1.
type LookupData struct {
	Status ParseStatus

	// Probability of the string's pattern (or, from LookupSum, the summed
	// probability across all parseable structures).
	Probability float64

	// Index is the zero-based rank of the string inside its pattern's
	// permutation space.
	Index *big.Int

	// SourceIDs is the union of provenance tags of the matched rules.
	SourceIDs map[string]struct{}

	// PatternID is the canonical pattern identifier: the first string of
	// each terminal group of the canonicalized pattern, joined by the
	// break byte.
	PatternID string
}

// terminalLookup extends LookupData with the index of the terminal group
// that matched inside its nonterminal.
type terminalLookup struct {
	LookupData
	groupIndex uint64
}

func failedLookup(status ParseStatus) *LookupData {
	return &LookupData{
		Status:      status,
		Probability: -1,
		Index:       big.NewInt(-1),
	}
}

// JoinedSourceIDs returns the source ids concatenated in sorted order, the
// form used on lookup output lines.
func (ld *LookupData) JoinedSourceIDs() string {
	ids := make([]string, 0, len(ld.SourceIDs))
	for id := range ld.SourceIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return strings.Join(ids, "")
}
