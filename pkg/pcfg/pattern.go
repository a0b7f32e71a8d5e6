package pcfg

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/pcalc/guesscalc/pkg/grammar"
)

// PatternManager drives per-structure pattern enumeration. A pattern is
// one assignment of a terminal group to each position of the structure,
// tracked by a mixed-radix counter whose bases are the group counts of the
// position's nonterminal.
//
// Positions covered by the same nonterminal share a group id. When a
// nonterminal repeats, counters that are permutations of each other
// within a group produce the same probability and cardinality, so only
// the canonical permutation is emitted and it stands for the whole class
// ("pattern compaction").
type PatternManager struct {
	nonterminals    []*Nonterminal
	baseProbability float64
	counter         *MixedRadixNumber

	// groupIDs labels each position with a 1-based id; positions with the
	// same id are covered by the same nonterminal.
	groupIDs    []int
	groupCounts map[int]int
	hasRepeats  bool
	size        int
}

// newPatternManager builds a manager from the structure representation,
// its nonterminal sequence and its base rule probability.
func newPatternManager(representation string, nonterminals []*Nonterminal, baseProbability float64) (*PatternManager, error) {
	pm := &PatternManager{
		nonterminals:    nonterminals,
		baseProbability: baseProbability,
		groupCounts:     make(map[int]int),
		size:            len(nonterminals),
	}

	bases := make([]uint64, pm.size)
	for i, nt := range nonterminals {
		bases[i] = nt.CountTerminalGroups()
	}
	pm.counter = NewMixedRadix(bases)

	// Repeats are identified from the representation string rather than
	// pointer equality, which would depend on collection internals.
	seen := map[string]int{}
	nextID := 1
	symbols := strings.Split(representation, string(rune(grammar.StructureBreak)))
	if len(symbols) != pm.size {
		return nil, fmt.Errorf("representation %q yields %d nonterminals, structure has %d",
			representation, len(symbols), pm.size)
	}
	pm.groupIDs = make([]int, pm.size)
	for i, sym := range symbols {
		if id, ok := seen[sym]; ok {
			pm.hasRepeats = true
			pm.groupIDs[i] = id
			pm.groupCounts[id]++
		} else {
			seen[sym] = nextID
			pm.groupIDs[i] = nextID
			pm.groupCounts[nextID] = 1
			nextID++
		}
	}
	return pm, nil
}

// ResetPatternCounter moves to the start, the highest-probability pattern.
func (pm *PatternManager) ResetPatternCounter() { pm.counter.Clear() }

// IncrementPatternCounter advances to the next pattern; false on overflow.
func (pm *PatternManager) IncrementPatternCounter() bool { return pm.counter.Increment() }

// IntelligentSkipPatternCounter jumps to the next pattern whose
// probability might exceed the current one; false on overflow.
func (pm *PatternManager) IntelligentSkipPatternCounter() bool { return pm.counter.IntelligentSkip() }

// PatternProbability is the base probability times the current terminal
// group probabilities. Not monotone over the whole counter, but monotone
// per single-digit increase, which is what intelligent skip relies on.
func (pm *PatternManager) PatternProbability() float64 {
	return pm.probabilityOf(pm.counter)
}

// CanonicalizedPatternProbability computes the probability from the
// canonical permutation, so every member of a permutation class
// multiplies the factors in the same order and lands on the same float.
func (pm *PatternManager) CanonicalizedPatternProbability() float64 {
	return pm.probabilityOf(pm.canonicalizePattern())
}

func (pm *PatternManager) probabilityOf(counter *MixedRadixNumber) float64 {
	probability := pm.baseProbability
	for i := 0; i < pm.size; i++ {
		probability *= pm.nonterminals[i].ProbabilityOfGroup(counter.Place(i))
	}
	return probability
}

// FirstStringOfPattern concatenates the first strings of the current
// terminal groups, separated by the break byte.
func (pm *PatternManager) FirstStringOfPattern() string {
	return pm.firstStringOf(pm.counter)
}

// CanonicalizedFirstStringOfPattern is the pattern identifier: the first
// string of the canonical permutation.
func (pm *PatternManager) CanonicalizedFirstStringOfPattern() string {
	return pm.firstStringOf(pm.canonicalizePattern())
}

func (pm *PatternManager) firstStringOf(counter *MixedRadixNumber) string {
	var b strings.Builder
	for i := 0; i < pm.size; i++ {
		if i > 0 {
			b.WriteByte(grammar.BreakByte)
		}
		b.WriteString(pm.nonterminals[i].FirstStringOfGroup(counter.Place(i)))
	}
	return b.String()
}

// canonicalizePattern returns a copy of the counter permuted into the
// canonical member of its class: within each group id, digits sorted
// ascending left to right.
func (pm *PatternManager) canonicalizePattern() *MixedRadixNumber {
	canonical := pm.counter.Clone()
	if pm.IsFirstPermutation() {
		return canonical
	}

	// Gather digits per group, sort, and rewrite left to right.
	digits := map[int][]uint64{}
	for i := 0; i < pm.size; i++ {
		id := pm.groupIDs[i]
		digits[id] = append(digits[id], canonical.Place(i))
	}
	for _, d := range digits {
		sort.Slice(d, func(a, b int) bool { return d[a] < d[b] })
	}
	next := map[int]int{}
	for i := 0; i < pm.size; i++ {
		id := pm.groupIDs[i]
		if err := canonical.SetPlace(i, digits[id][next[id]]); err != nil {
			log.Fatalf("canonicalizing pattern: %v", err)
		}
		next[id]++
	}

	if !pm.checkFirstPermutation(canonical) {
		log.Fatalf("canonicalized pattern failed the monotonic-digit check")
	}
	return canonical
}

// IsFirstPermutation reports whether the current pattern is the canonical
// member of its class. Patterns without repeats have no permutations and
// are always canonical.
func (pm *PatternManager) IsFirstPermutation() bool {
	if !pm.hasRepeats {
		return true
	}
	return pm.checkFirstPermutation(pm.counter)
}

func (pm *PatternManager) checkFirstPermutation(counter *MixedRadixNumber) bool {
	last := map[int]uint64{}
	for i := 0; i < pm.size; i++ {
		id := pm.groupIDs[i]
		if pm.groupCounts[id] <= 1 {
			continue
		}
		digit := counter.Place(i)
		if prev, ok := last[id]; ok && digit < prev {
			return false
		}
		last[id] = digit
	}
	return true
}

// CountStrings multiplies the string counts of the current terminal
// groups.
func (pm *PatternManager) CountStrings() BigCount {
	result := NewBigCount(1)
	for i := 0; i < pm.size; i++ {
		result = result.Mul(BigCountFromInt(pm.nonterminals[i].CountStringsOfGroup(pm.counter.Place(i))))
	}
	return result
}

// StringIterators opens one terminal iterator per position for the
// current pattern.
func (pm *PatternManager) StringIterators() []TerminalIterator {
	iterators := make([]TerminalIterator, pm.size)
	for i := 0; i < pm.size; i++ {
		iterators[i] = pm.nonterminals[i].IteratorForGroup(pm.counter.Place(i))
	}
	return iterators
}

// digitCount pairs a digit value with its multiplicity within a group.
type digitCount struct {
	digit uint64
	count int
}

// repeatingGroupCounts collects, for each repeated group in ascending
// group id order, the multiplicities of its distinct digit values in
// ascending digit order.
func (pm *PatternManager) repeatingGroupCounts() (ids []int, counts map[int][]digitCount) {
	counts = map[int][]digitCount{}
	byGroup := map[int]map[uint64]int{}
	for i := 0; i < pm.size; i++ {
		id := pm.groupIDs[i]
		if pm.groupCounts[id] <= 1 {
			continue
		}
		if byGroup[id] == nil {
			byGroup[id] = map[uint64]int{}
			ids = append(ids, id)
		}
		byGroup[id][pm.counter.Place(i)]++
	}
	sort.Ints(ids)
	for _, id := range ids {
		for digit, n := range byGroup[id] {
			counts[id] = append(counts[id], digitCount{digit, n})
		}
		sort.Slice(counts[id], func(a, b int) bool {
			return counts[id][a].digit < counts[id][b].digit
		})
	}
	return ids, counts
}

// permutationsOfGroup evaluates the multiset permutation formula
// n! / m1!m2!...mt! for one group's digit multiplicities.
func permutationsOfGroup(counts []digitCount) BigCount {
	total := 0
	for _, dc := range counts {
		total += dc.count
	}
	result := Factorial(uint64(total))
	for _, dc := range counts {
		if dc.count > 1 {
			result = result.Div(Factorial(uint64(dc.count)))
		}
	}
	return result
}

// CountPermutations multiplies the multiset permutation counts across the
// repeated groups of the current pattern.
func (pm *PatternManager) CountPermutations() BigCount {
	result := NewBigCount(1)
	if !pm.hasRepeats {
		return result
	}
	ids, counts := pm.repeatingGroupCounts()
	for _, id := range ids {
		result = result.Mul(permutationsOfGroup(counts[id]))
	}
	return result
}

// permutationRank returns the rank of the current pattern within its
// permutation class: 0 for the canonical member, up to
// CountPermutations-1.
//
// Within a group the rank accumulates position by position: the offset
// contributed by the digit at position k is the number of permutations of
// the remaining suffix that start with a smaller digit, which reduces to
//
//	offset = currentPerms × weakDigitRank / currentSize
//
// where weakDigitRank sums the remaining multiplicities of digits below
// the current one. currentPerms then updates by
// ×multiplicity(digit)/currentSize and the digit's multiplicity is
// consumed. All divisions are exact. Across groups the per-group ranks
// combine in a mixed radix whose bases are the group permutation counts,
// in ascending group id order.
func (pm *PatternManager) permutationRank() *big.Int {
	result := big.NewInt(0)
	if !pm.hasRepeats {
		return result
	}

	ids, counts := pm.repeatingGroupCounts()
	for _, id := range ids {
		remaining := map[uint64]int{}
		for _, dc := range counts[id] {
			remaining[dc.digit] = dc.count
		}
		groupPerms := permutationsOfGroup(counts[id]).Int()
		currentPerms := new(big.Int).Set(groupPerms)
		currentSize := int64(pm.groupCounts[id])
		rank := big.NewInt(0)
		temp := new(big.Int)

		for k := 0; k < pm.size && currentPerms.Cmp(big.NewInt(1)) > 0; k++ {
			if pm.groupIDs[k] != id {
				continue
			}
			digit := pm.counter.Place(k)
			weakDigitRank := int64(0)
			for _, dc := range counts[id] {
				if dc.digit >= digit {
					break
				}
				weakDigitRank += int64(remaining[dc.digit])
			}

			temp.Mul(currentPerms, big.NewInt(weakDigitRank))
			temp.Quo(temp, big.NewInt(currentSize))
			rank.Add(rank, temp)

			currentPerms.Mul(currentPerms, big.NewInt(int64(remaining[digit])))
			currentPerms.Quo(currentPerms, big.NewInt(currentSize))
			remaining[digit]--
			currentSize--
		}

		if rank.Cmp(groupPerms) >= 0 {
			log.Fatalf("permutation rank %s not below group permutation count %s", rank, groupPerms)
		}
		result.Mul(result, groupPerms)
		result.Add(result, rank)
	}
	return result
}

// lookupAndSetPattern resolves a sequence of terminals (one per position)
// to its rank inside the pattern × permutation space. It overwrites the
// pattern counter with the terminals' group indices.
//
// The final index is permutationRank × stringsInPattern + rankInPattern,
// where rankInPattern reads the per-position terminal indices as a
// mixed-radix number with the group string counts as bases, position 0
// most significant. Probability and pattern identifier come from the
// canonicalized pattern so all permutations of a class agree on them.
func (pm *PatternManager) lookupAndSetPattern(terminals []string) *LookupData {
	lookups := make([]*terminalLookup, pm.size)
	for i := 0; i < pm.size; i++ {
		lookups[i] = pm.nonterminals[i].lookup(terminals[i])
		if lookups[i].Status&CanParse == 0 {
			return failedLookup(lookups[i].Status)
		}
	}

	for i := 0; i < pm.size; i++ {
		if err := pm.counter.SetPlace(i, lookups[i].groupIndex); err != nil {
			log.Errorf("setting pattern counter from lookup: %v", err)
			return failedLookup(UnexpectedFailure)
		}
	}

	rankInPattern := big.NewInt(0)
	for i := 0; i < pm.size; i++ {
		rankInPattern.Mul(rankInPattern, pm.nonterminals[i].CountStringsOfGroup(pm.counter.Place(i)))
		rankInPattern.Add(rankInPattern, lookups[i].Index)
	}

	index := pm.permutationRank()
	index.Mul(index, pm.CountStrings().Int())
	index.Add(index, rankInPattern)

	ld := &LookupData{
		Status:      CanParse,
		Probability: pm.CanonicalizedPatternProbability(),
		Index:       index,
		SourceIDs:   map[string]struct{}{},
		PatternID:   pm.CanonicalizedFirstStringOfPattern(),
	}
	for i := 0; i < pm.size; i++ {
		for id := range lookups[i].SourceIDs {
			ld.SourceIDs[id] = struct{}{}
		}
	}
	return ld
}
