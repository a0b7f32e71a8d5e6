package pcfg

import (
	"math/big"

	"github.com/charmbracelet/log"

	"github.com/pcalc/guesscalc/pkg/grammar"
)

// seenGroup is a terminal group built on terminals present in the training
// data. It borrows a byte range of the nonterminal's mapped terminal file;
// the range covers the group's lines including their trailing newlines.
type seenGroup struct {
	data        []byte
	probability float64
	count       uint64
	outRep      string
	upcase      bool
	first       string
}

func newSeenGroup(data []byte, probability float64, count uint64, outRep string) *seenGroup {
	g := &seenGroup{
		data:        data,
		probability: probability,
		count:       count,
		outRep:      outRep,
		upcase:      containsU(outRep),
	}
	g.loadFirstString()
	return g
}

func containsU(rep string) bool {
	for i := 0; i < len(rep); i++ {
		if rep[i] == 'U' {
			return true
		}
	}
	return false
}

// loadFirstString caches the first terminal of the group with the output
// representation applied. The length check runs only here; later
// modifications reuse the same representation.
func (g *seenGroup) loadFirstString() {
	if g.count == 0 {
		log.Fatalf("seen terminal group for %s is empty", g.outRep)
	}
	line, _, _ := grammar.NextLine(g.data)
	tl, err := grammar.ParseTerminalLine(line)
	if err != nil {
		log.Fatalf("parsing first terminal of group for %s: %v", g.outRep, err)
	}
	if len(tl.Terminal) != len(g.outRep) {
		log.Fatalf("terminal %q does not match representation %s", tl.Terminal, g.outRep)
	}
	if g.upcase {
		g.first = applyOutRep(tl.Terminal, g.outRep)
	} else {
		g.first = tl.Terminal
	}
}

func (g *seenGroup) Probability() float64 { return g.probability }

func (g *seenGroup) Count() *big.Int { return new(big.Int).SetUint64(g.count) }

func (g *seenGroup) FirstString() string { return g.first }

// Lookup scans the group linearly for the terminal. Groups are small and
// lookup cost is dominated by I/O elsewhere, so no index is kept.
func (g *seenGroup) Lookup(terminal string) *LookupData {
	rest := g.data
	for index := uint64(0); index < g.count; index++ {
		line, next, _ := grammar.NextLine(rest)
		rest = next
		tl, err := grammar.ParseTerminalLine(line)
		if err != nil {
			log.Fatalf("parsing terminal line in group for %s: %v", g.outRep, err)
		}
		if tl.Terminal != terminal {
			continue
		}
		if tl.Probability != g.probability {
			// The trainer should never emit a group whose lines disagree
			// on probability; treat the invariant as authoritative.
			log.Fatalf("terminal %q has probability %v, group expects %v",
				tl.Terminal, tl.Probability, g.probability)
		}
		ld := &LookupData{
			Status:      CanParse,
			Probability: g.probability,
			Index:       new(big.Int).SetUint64(index),
			SourceIDs:   map[string]struct{}{},
		}
		if err := grammar.AddSourceIDs(tl.SourceIDs, ld.SourceIDs); err != nil {
			log.Fatalf("parsing source ids of terminal %q: %v", tl.Terminal, err)
		}
		return ld
	}
	return failedLookup(TerminalNotFound)
}

func (g *seenGroup) Iterator() TerminalIterator {
	return &seenIterator{group: g, rest: g.data}
}

// seenIterator walks the group's byte range line by line.
type seenIterator struct {
	group *seenGroup
	rest  []byte
}

func (it *seenIterator) Restart() { it.rest = it.group.data }

func (it *seenIterator) Next() (string, bool) {
	if len(it.rest) == 0 {
		return "", false
	}
	line, rest, _ := grammar.NextLine(it.rest)
	it.rest = rest
	tl, err := grammar.ParseTerminalLine(line)
	if err != nil {
		log.Fatalf("parsing terminal line in group for %s: %v", it.group.outRep, err)
	}
	if it.group.upcase {
		return applyOutRep(tl.Terminal, it.group.outRep), true
	}
	return tl.Terminal, true
}
