package pcfg

import (
	"fmt"
	"math"
	"math/big"
	"math/rand"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/pcalc/guesscalc/internal/mmapfile"
	"github.com/pcalc/guesscalc/pkg/grammar"
)

// Nonterminal is a uniform-class placeholder producing terminals,
// identified by its class representation (e.g. "LLL"). It owns the memory
// mapping of its terminal file and an ordered list of terminal groups in
// descending probability. A representation containing U shares the
// terminal file of its all-L sibling; uppercasing happens on output.
type Nonterminal struct {
	representation string
	mapping        *mmapfile.File
	groups         []TerminalGroup
}

// loadNonterminal maps the terminal file for the representation and
// indexes its terminal groups.
func loadNonterminal(representation, terminalsDir string) (*Nonterminal, error) {
	terminalRep := strings.ReplaceAll(representation, "U", "L")
	path := filepath.Join(terminalsDir, terminalRep+".txt")
	mapping, err := mmapfile.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loading nonterminal %s: %w", representation, err)
	}

	nt := &Nonterminal{
		representation: representation,
		mapping:        mapping,
	}
	if err := nt.initTerminalGroups(); err != nil {
		mapping.Close()
		return nil, fmt.Errorf("loading nonterminal %s: %w", representation, err)
	}
	return nt, nil
}

// initTerminalGroups walks the mapping once. Seen groups end where the
// line probability changes; a blank line ends the seen section, and every
// line after it is an unseen-group descriptor whose source_ids field is
// the generator mask.
func (nt *Nonterminal) initTerminalGroups() error {
	data := nt.mapping.Data

	// Locate the seen/unseen boundary first so unseen groups can scan the
	// seen section only.
	seenData := data
	rest := data
	offset := 0
	for len(rest) > 0 {
		line, next, ok := grammar.NextLine(rest)
		if len(line) == 0 {
			seenData = data[:offset]
			break
		}
		offset += len(line)
		if ok {
			offset++
		}
		rest = next
	}

	// Seen groups: runs of equal probability.
	groupStart := 0
	groupCount := uint64(0)
	lastProbability := 0.0
	pos := 0
	rest = seenData
	for len(rest) > 0 {
		line, next, ok := grammar.NextLine(rest)
		tl, err := grammar.ParseTerminalLine(line)
		if err != nil {
			return fmt.Errorf("at byte %d: %w", pos, err)
		}
		lineEnd := pos + len(line)
		if ok {
			lineEnd++
		}

		if groupCount > 0 && tl.Probability != lastProbability {
			nt.groups = append(nt.groups,
				newSeenGroup(data[groupStart:pos], lastProbability, groupCount, nt.representation))
			groupStart = pos
			groupCount = 0
		}
		groupCount++
		lastProbability = tl.Probability
		pos = lineEnd
		rest = next
	}
	if groupCount > 0 {
		nt.groups = append(nt.groups,
			newSeenGroup(data[groupStart:pos], lastProbability, groupCount, nt.representation))
	}

	// Unseen descriptors follow the blank line, one group per line.
	if len(seenData) < len(data) {
		rest = data[len(seenData)+1:]
		for len(rest) > 0 {
			line, next, _ := grammar.NextLine(rest)
			rest = next
			if len(line) == 0 {
				continue
			}
			tl, err := grammar.ParseTerminalLine(line)
			if err != nil {
				return fmt.Errorf("unseen descriptor: %w", err)
			}
			nt.groups = append(nt.groups,
				newUnseenGroup(seenData, tl.Probability, tl.SourceIDs, nt.representation))
		}
	}

	if len(nt.groups) == 0 {
		return fmt.Errorf("terminal file holds no groups")
	}
	return nil
}

// Representation returns the class representation of the nonterminal.
func (nt *Nonterminal) Representation() string { return nt.representation }

// CountTerminalGroups returns the number of terminal groups.
func (nt *Nonterminal) CountTerminalGroups() uint64 { return uint64(len(nt.groups)) }

// CountStrings sums the string counts over all groups.
func (nt *Nonterminal) CountStrings() BigCount {
	total := NewBigCount(0)
	for _, g := range nt.groups {
		total = total.Add(BigCountFromInt(g.Count()))
	}
	return total
}

// lookup locates the input string among the terminal groups. The class
// representation must match position by position; matching against group
// data is case-insensitive because terminal files are stored downcased.
func (nt *Nonterminal) lookup(input string) *terminalLookup {
	if grammar.ClassString(input) != nt.representation {
		return &terminalLookup{LookupData: *failedLookup(TerminalNotFound)}
	}

	downcased := strings.ToLower(input)
	for i, g := range nt.groups {
		if ld := g.Lookup(downcased); ld.Status&CanParse != 0 {
			return &terminalLookup{LookupData: *ld, groupIndex: uint64(i)}
		}
	}
	// No group can produce this string; with the restricted symbol
	// alphabet some representation-matching strings are not generatable.
	return &terminalLookup{LookupData: *failedLookup(TerminalNotFound | TerminalCantBeGenerated)}
}

// CanProduceTerminal reports whether any group produces the input string.
func (nt *Nonterminal) CanProduceTerminal(input string) bool {
	return nt.lookup(input).Status == CanParse
}

// group accessors die on a bad index: a pattern counter pointing outside
// the group list means the enumeration state is corrupt.

func (nt *Nonterminal) groupAt(index uint64, caller string) TerminalGroup {
	if index >= uint64(len(nt.groups)) {
		log.Fatalf("%s: terminal group index %d outside range of %d groups for %s",
			caller, index, len(nt.groups), nt.representation)
	}
	return nt.groups[index]
}

// FirstStringOfGroup returns the first string of the indexed group.
func (nt *Nonterminal) FirstStringOfGroup(index uint64) string {
	return nt.groupAt(index, "FirstStringOfGroup").FirstString()
}

// ProbabilityOfGroup returns the per-terminal probability of the indexed
// group.
func (nt *Nonterminal) ProbabilityOfGroup(index uint64) float64 {
	return nt.groupAt(index, "ProbabilityOfGroup").Probability()
}

// CountStringsOfGroup returns the string count of the indexed group.
func (nt *Nonterminal) CountStringsOfGroup(index uint64) *big.Int {
	return nt.groupAt(index, "CountStringsOfGroup").Count()
}

// IteratorForGroup returns a string iterator over the indexed group.
func (nt *Nonterminal) IteratorForGroup(index uint64) TerminalIterator {
	return nt.groupAt(index, "IteratorForGroup").Iterator()
}

// ProduceRandomTerminalGroup draws a group index according to the
// distribution of probability mass per group (probability × size). The
// draw assumes the masses sum to one; load time only checks this and
// warns (see verifyNormalization).
func (nt *Nonterminal) ProduceRandomTerminalGroup(rng *rand.Rand) uint64 {
	u := rng.Float64()
	for i, g := range nt.groups {
		u -= g.Probability() * bigFloat(g.Count())
		if u < 0 {
			return uint64(i)
		}
	}
	log.Errorf("random draw fell past all terminal groups of %s; grammar may not be normalized",
		nt.representation)
	return 0
}

// ProduceRandomStringOfGroup draws a uniform terminal from the indexed
// group via its iterator.
func (nt *Nonterminal) ProduceRandomStringOfGroup(index uint64, rng *rand.Rand) string {
	count := nt.CountStringsOfGroup(index)
	var limit uint64
	if count.IsUint64() {
		limit = count.Uint64()
	} else {
		limit = math.MaxUint64
	}
	var item uint64
	if limit <= math.MaxInt64 {
		item = uint64(rng.Int63n(int64(limit)))
	} else {
		item = rng.Uint64() % limit
	}

	it := nt.groupAt(index, "ProduceRandomStringOfGroup").Iterator()
	var answer string
	for counter := uint64(0); ; counter++ {
		s, ok := it.Next()
		if !ok {
			log.Errorf("random draw %d exceeds group size for %s; grammar directory is corrupt",
				item, nt.representation)
			break
		}
		if counter == item {
			answer = s
			break
		}
	}
	return answer
}

// verifyNormalization checks that the group probability masses sum to one
// within tolerance, logging a warning otherwise. Sampling trusts the sum.
func (nt *Nonterminal) verifyNormalization() {
	sum := 0.0
	for _, g := range nt.groups {
		sum += g.Probability() * bigFloat(g.Count())
	}
	if math.Abs(sum-1.0) > 1e-6 {
		log.Warnf("nonterminal %s probability mass sums to %v, expected 1", nt.representation, sum)
	}
}

// close releases the terminal file mapping.
func (nt *Nonterminal) close() error {
	return nt.mapping.Close()
}
