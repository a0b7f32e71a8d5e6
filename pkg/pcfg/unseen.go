package pcfg

import (
	"math/big"

	"github.com/charmbracelet/log"

	"github.com/pcalc/guesscalc/internal/bitarr"
	"github.com/pcalc/guesscalc/pkg/grammar"
)

// terminalSearchRegionSize bounds how much of the generator space one
// bit-array sweep covers.
const terminalSearchRegionSize = 1 << 30

// unseenGroup fills the probability mass that training assigned to
// terminals never observed. Its members are the lexicographic space of the
// generator mask minus the seen terminals of the same nonterminal.
//
// A terminal's lexicographic index treats position 0 as the least
// significant digit; terminalIndex and generateTerminal are pinned to this
// convention by the round-trip tests.
type unseenGroup struct {
	seenData    []byte // seen section of the nonterminal file
	mask        string
	outRep      string
	upcase      bool
	totalMass   float64
	probability float64  // per-terminal: totalMass / count
	total       *big.Int // size of the generator space
	count       *big.Int // unseen terminals = total - generatable seen
	first       string
}

func newUnseenGroup(seenData []byte, totalMass float64, mask, outRep string) *unseenGroup {
	g := &unseenGroup{
		seenData:  seenData,
		mask:      mask,
		outRep:    outRep,
		upcase:    containsU(outRep),
		totalMass: totalMass,
	}
	g.initTotalTerminals()
	g.processSeenTerminals()
	return g
}

// initTotalTerminals sets the generator space size, the product of the
// class radixes over the mask.
func (g *unseenGroup) initTotalTerminals() {
	total := big.NewInt(1)
	for i := 0; i < len(g.mask); i++ {
		radix, err := grammar.Radix(g.mask[i])
		if err != nil {
			log.Fatalf("generator mask %q for %s: %v", g.mask, g.outRep, err)
		}
		total.Mul(total, big.NewInt(int64(radix)))
	}
	g.total = total
}

// processSeenTerminals counts the seen terminals the mask can also
// produce, fixes the per-terminal probability, and sweeps for the first
// unseen index.
func (g *unseenGroup) processSeenTerminals() {
	seen := uint64(0)
	for rest := g.seenData; len(rest) > 0; {
		line, next, _ := grammar.NextLine(rest)
		rest = next
		if len(line) == 0 {
			break
		}
		tl, err := grammar.ParseTerminalLine(line)
		if err != nil {
			log.Fatalf("parsing seen terminal for unseen group %s: %v", g.outRep, err)
		}
		if g.canGenerate(tl.Terminal) {
			seen++
		}
	}

	seenCount := new(big.Int).SetUint64(seen)
	if seenCount.Cmp(g.total) >= 0 {
		log.Fatalf("unseen group %s/%s: seen terminals (%s) fill the whole generator space (%s)",
			g.outRep, g.mask, seenCount, g.total)
	}
	g.count = new(big.Int).Sub(g.total, seenCount)
	g.probability = g.totalMass / bigFloat(g.count)

	// Sweep regions until an open index is found; that index generates the
	// group's first string.
	bits := bitarr.Acquire(regionCapacity(g.total))
	defer bitarr.Release()
	regionStart := big.NewInt(0)
	for {
		g.findUnseenTerminals(regionStart, terminalSearchRegionSize, bits)
		if open := bits.NextOpen(0); open < bits.Size() {
			index := new(big.Int).Add(regionStart, new(big.Int).SetUint64(open))
			g.first = g.generateTerminal(index)
			return
		}
		regionStart.Add(regionStart, big.NewInt(terminalSearchRegionSize))
		if regionStart.Cmp(g.total) >= 0 {
			log.Fatalf("no unseen terminal found in the whole space of %s with mask %s", g.outRep, g.mask)
		}
	}
}

// regionCapacity sizes the bit array: the full region unless the whole
// space is smaller.
func regionCapacity(total *big.Int) uint64 {
	if total.IsUint64() && total.Uint64() < terminalSearchRegionSize {
		return total.Uint64()
	}
	return terminalSearchRegionSize
}

func bigFloat(v *big.Int) float64 {
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}

// canGenerate reports whether the mask can produce the terminal.
func (g *unseenGroup) canGenerate(terminal string) bool {
	if len(terminal) != len(g.mask) {
		return false
	}
	for i := 0; i < len(g.mask); i++ {
		if grammar.CharIndex(g.mask[i], terminal[i]) < 0 {
			return false
		}
	}
	return true
}

// terminalIndex converts a generatable terminal to its lexicographic
// index. bound short-circuits the conversion: once the partial result
// exceeds it the returned value is only guaranteed to stay above bound.
func (g *unseenGroup) terminalIndex(terminal string, bound *big.Int) *big.Int {
	result := big.NewInt(0)
	for i := len(g.mask) - 1; i >= 0; i-- {
		radix, _ := grammar.Radix(g.mask[i])
		index := grammar.CharIndex(g.mask[i], terminal[i])
		if index < 0 {
			log.Fatalf("character %q of terminal %q cannot be generated by mask %s",
				terminal[i], terminal, g.mask)
		}
		result.Mul(result, big.NewInt(int64(radix)))
		result.Add(result, big.NewInt(int64(index)))
		if bound != nil && result.Cmp(bound) > 0 {
			return result
		}
	}
	return result
}

// generateTerminal is the inverse of terminalIndex.
func (g *unseenGroup) generateTerminal(index *big.Int) string {
	residual := new(big.Int).Set(index)
	radix := new(big.Int)
	rem := new(big.Int)
	out := make([]byte, len(g.mask))
	for i := 0; i < len(g.mask); i++ {
		r, _ := grammar.Radix(g.mask[i])
		radix.SetInt64(int64(r))
		residual.QuoRem(residual, radix, rem)
		out[i] = grammar.CharAt(g.mask[i], int(rem.Int64()))
	}
	terminal := string(out)
	if g.upcase {
		terminal = applyOutRep(terminal, g.outRep)
	}
	return terminal
}

// findUnseenTerminals marks, in bits, every seen terminal whose index
// falls inside the region [regionStart, regionStart+regionSize).
func (g *unseenGroup) findUnseenTerminals(regionStart *big.Int, regionSize uint64, bits *bitarr.BitArray) {
	regionEnd := new(big.Int).Add(regionStart, new(big.Int).SetUint64(regionSize-1))
	trueSize := regionSize
	// total is a count while the region bounds are zero-indexed, so the
	// last valid index is total-1.
	lastIndex := new(big.Int).Sub(g.total, big.NewInt(1))
	if lastIndex.Cmp(regionEnd) < 0 {
		regionEnd.Set(lastIndex)
		size := new(big.Int).Sub(regionEnd, regionStart)
		size.Add(size, big.NewInt(1))
		trueSize = size.Uint64()
	}
	bits.Clear(trueSize)

	offset := new(big.Int)
	for rest := g.seenData; len(rest) > 0; {
		line, next, _ := grammar.NextLine(rest)
		rest = next
		if len(line) == 0 {
			break
		}
		tl, err := grammar.ParseTerminalLine(line)
		if err != nil {
			log.Fatalf("parsing seen terminal for unseen group %s: %v", g.outRep, err)
		}
		if !g.canGenerate(tl.Terminal) {
			continue
		}
		index := g.terminalIndex(tl.Terminal, regionEnd)
		if index.Cmp(regionEnd) <= 0 && index.Cmp(regionStart) >= 0 {
			offset.Sub(index, regionStart)
			bits.Mark(offset.Uint64())
		}
	}
}

func (g *unseenGroup) Probability() float64 { return g.probability }

func (g *unseenGroup) Count() *big.Int { return new(big.Int).Set(g.count) }

func (g *unseenGroup) FirstString() string { return g.first }

// Lookup computes the terminal's rank within the unseen group: its
// lexicographic index minus the seen terminals strictly below it. Landing
// exactly on a seen terminal is a collision, which callers that went
// through Nonterminal.lookup never observe.
func (g *unseenGroup) Lookup(terminal string) *LookupData {
	if !g.canGenerate(terminal) {
		return failedLookup(TerminalNotFound | TerminalCantBeGenerated)
	}
	index := g.terminalIndex(terminal, nil)

	lower := big.NewInt(0)
	for rest := g.seenData; len(rest) > 0; {
		line, next, _ := grammar.NextLine(rest)
		rest = next
		if len(line) == 0 {
			break
		}
		tl, err := grammar.ParseTerminalLine(line)
		if err != nil {
			log.Fatalf("parsing seen terminal for unseen group %s: %v", g.outRep, err)
		}
		if !g.canGenerate(tl.Terminal) {
			continue
		}
		switch g.terminalIndex(tl.Terminal, index).Cmp(index) {
		case -1:
			lower.Add(lower, big.NewInt(1))
		case 0:
			if tl.Terminal != terminal {
				log.Fatalf("terminal %q shares index with %q in unseen group %s but differs",
					terminal, tl.Terminal, g.outRep)
			}
			return failedLookup(TerminalNotFound | TerminalCollision)
		}
	}

	return &LookupData{
		Status:      CanParse,
		Probability: g.probability,
		Index:       index.Sub(index, lower),
		SourceIDs:   map[string]struct{}{"UNSEEN": {}},
	}
}

func (g *unseenGroup) Iterator() TerminalIterator {
	it := &unseenIterator{
		group:       g,
		bits:        bitarr.New(regionCapacity(g.total)),
		regionStart: big.NewInt(0),
	}
	it.Restart()
	return it
}

// unseenIterator sweeps the generator space region by region, yielding the
// characters at every unmarked index in ascending order. Each iterator
// owns its bit array because string generation can hold several unseen
// iterators open at once.
type unseenIterator struct {
	group       *unseenGroup
	bits        *bitarr.BitArray
	regionStart *big.Int
	next        uint64 // next bit index to inspect within the region
	done        bool
}

func (it *unseenIterator) Restart() {
	it.regionStart.SetInt64(0)
	it.group.findUnseenTerminals(it.regionStart, terminalSearchRegionSize, it.bits)
	it.next = 0
	it.done = false
}

func (it *unseenIterator) Next() (string, bool) {
	for !it.done {
		open := it.bits.NextOpen(it.next)
		if open < it.bits.Size() {
			it.next = open + 1
			index := new(big.Int).Add(it.regionStart, new(big.Int).SetUint64(open))
			return it.group.generateTerminal(index), true
		}
		// Region exhausted; move to the next one.
		it.regionStart.Add(it.regionStart, big.NewInt(terminalSearchRegionSize))
		if it.regionStart.Cmp(it.group.total) >= 0 {
			it.done = true
			break
		}
		it.group.findUnseenTerminals(it.regionStart, terminalSearchRegionSize, it.bits)
		it.next = 0
	}
	return "", false
}
