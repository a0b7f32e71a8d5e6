package pcfg

import (
	"bufio"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/tchap/go-patricia/v2/patricia"

	"github.com/pcalc/guesscalc/pkg/grammar"
)

// DefaultMaxStructureLength drops structures whose representation exceeds
// this length at load time. Giant structures carry vanishing probability
// while their nonterminals cost a lot of mapped memory.
const DefaultMaxStructureLength = 40

// PCFG is the loaded grammar: the structure list and the shared
// nonterminal collection. It drives the four top-level operations
// (patterns, strings, random sampling, lookup).
type PCFG struct {
	structures []*Structure
	collection *NonterminalCollection

	// index maps a flattened (break-free) class representation to the
	// indices of structures sharing that shape, so lookups only parse
	// candidate structures.
	index *patricia.Trie
}

// Options tune grammar loading.
type Options struct {
	// MaxStructureLength overrides DefaultMaxStructureLength when > 0.
	MaxStructureLength int
}

// LoadGrammar reads the structures file and loads every referenced
// nonterminal, memory-mapping the terminal files under terminalsDir.
// Grammar errors are returned and should be treated as fatal by callers.
func LoadGrammar(structuresFile, terminalsDir string, opts Options) (*PCFG, error) {
	maxLength := opts.MaxStructureLength
	if maxLength <= 0 {
		maxLength = DefaultMaxStructureLength
	}

	f, err := os.Open(structuresFile)
	if err != nil {
		return nil, fmt.Errorf("opening structures file: %w", err)
	}
	defer f.Close()

	p := &PCFG{
		collection: NewNonterminalCollection(terminalsDir),
		index:      patricia.NewTrie(),
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if !scanner.Scan() || scanner.Text() != "S ->" {
		return nil, fmt.Errorf("structures file %s does not start with the \"S ->\" header", structuresFile)
	}

	terminated := false
	skipped := 0
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			// Blank line ends the structures block; anything after is
			// ignored by this core.
			terminated = true
			break
		}
		sl, err := grammar.ParseStructureLine(line)
		if err != nil {
			return nil, fmt.Errorf("structures file %s: %w", structuresFile, err)
		}
		if len(sl.Representation) > maxLength {
			skipped++
			continue
		}
		s, err := loadStructure(sl, p.collection)
		if err != nil {
			return nil, fmt.Errorf("structures file %s: %w", structuresFile, err)
		}
		p.structures = append(p.structures, s)
		p.addToIndex(s, len(p.structures)-1)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading structures file %s: %w", structuresFile, err)
	}
	if !terminated {
		return nil, fmt.Errorf("structures file %s has no blank line at the end of the structures block", structuresFile)
	}
	if skipped > 0 {
		log.Debugf("skipped %d structures longer than %d", skipped, maxLength)
	}
	log.Debugf("loaded %d structures over %d nonterminals", len(p.structures), p.collection.Size())

	for _, nt := range p.collection.cache {
		nt.verifyNormalization()
	}
	return p, nil
}

func (p *PCFG) addToIndex(s *Structure, position int) {
	key := patricia.Prefix(s.flat)
	if item := p.index.Get(key); item != nil {
		p.index.Set(key, append(item.([]int), position))
		return
	}
	p.index.Insert(key, []int{position})
}

// candidates returns the structures whose flattened representation equals
// the given class projection. Only those can parse a string with that
// projection.
func (p *PCFG) candidates(projection string) []int {
	if item := p.index.Get(patricia.Prefix(projection)); item != nil {
		return item.([]int)
	}
	return nil
}

// Structures returns the loaded structure list.
func (p *PCFG) Structures() []*Structure { return p.structures }

// Close releases every terminal file mapping.
func (p *PCFG) Close() error { return p.collection.Close() }

// CountStrings sums the string counts over all structures.
func (p *PCFG) CountStrings() BigCount {
	result := NewBigCount(0)
	for _, s := range p.structures {
		result = result.Add(s.CountStrings())
	}
	return result
}

// GeneratePatterns writes all patterns above the cutoff, structure by
// structure.
func (p *PCFG) GeneratePatterns(w io.Writer, cutoff float64) error {
	for _, s := range p.structures {
		if err := s.GeneratePatterns(w, cutoff); err != nil {
			return err
		}
	}
	return nil
}

// GenerateStrings writes all strings above the cutoff, structure by
// structure. See Structure.GenerateStrings for the accurate mode.
func (p *PCFG) GenerateStrings(w io.Writer, cutoff float64, accurate bool) error {
	for _, s := range p.structures {
		if err := s.GenerateStrings(w, cutoff, accurate, p); err != nil {
			return err
		}
	}
	return nil
}

// GenerateRandomStrings samples n strings from the grammar distribution.
// The structure of each sample is drawn first: n uniform draws are
// sorted, the structure list is walked accumulating probability, and each
// structure generates as many strings as draws fell inside its band.
func (p *PCFG) GenerateRandomStrings(w io.Writer, n uint64, rng *rand.Rand, accurate bool) error {
	draws := make([]float64, n)
	for i := range draws {
		draws[i] = rng.Float64()
	}
	sort.Float64s(draws)

	next := 0
	cumulative := 0.0
	for _, s := range p.structures {
		cumulative += s.Probability()
		count := uint64(0)
		for next < len(draws) && draws[next] < cumulative {
			count++
			next++
		}
		if count == 0 {
			continue
		}
		if err := s.GenerateRandomStrings(w, count, rng, accurate, p); err != nil {
			return err
		}
	}
	if next < len(draws) {
		// Structure probabilities can sum below one when giant structures
		// were skipped at load time; the tail draws have no band.
		log.Warnf("%d of %d draws fell outside the loaded structure mass", len(draws)-next, n)
	}
	return nil
}

// CountParses sums, over all structures, the number of ways the input can
// be parsed.
func (p *PCFG) CountParses(input string) uint64 {
	projection := grammar.ClassString(grammar.StripBreakBytes(input))
	parses := uint64(0)
	for _, i := range p.candidates(projection) {
		parses += p.structures[i].CountParses(input)
	}
	return parses
}

// better reports whether the challenger lookup should replace the current
// best: parseable beats non-parseable, higher probability wins among
// parseable results, and the numerically higher status wins among
// failures.
func better(overall, challenger *LookupData) bool {
	overallCan := overall.Status&CanParse != 0
	challengerCan := challenger.Status&CanParse != 0
	switch {
	case !overallCan && challengerCan:
		return true
	case overallCan && challengerCan && overall.Probability < challenger.Probability:
		return true
	case !overallCan && overall.Status < challenger.Status:
		return true
	}
	return false
}

// Lookup parses the input against every candidate structure and reduces
// the per-structure results to the highest-probability parseable one
// (breaking ties among failures by status priority).
func (p *PCFG) Lookup(input string) *LookupData {
	overall := failedLookup(StructureNotFound)
	projection := grammar.ClassString(grammar.StripBreakBytes(input))
	for _, i := range p.candidates(projection) {
		if ld := p.structures[i].Lookup(input); better(overall, ld) {
			overall = ld
		}
	}
	return overall
}

// LookupSum returns the same representative as Lookup but with the
// probability replaced by the sum of the parseable per-structure
// probabilities, the true probability of the string under the grammar.
// Every string stays tied to its highest-probability structure, so
// accurate enumeration emits it exactly once.
func (p *PCFG) LookupSum(input string) *LookupData {
	overall := failedLookup(StructureNotFound)
	total := 0.0
	projection := grammar.ClassString(grammar.StripBreakBytes(input))
	for _, i := range p.candidates(projection) {
		ld := p.structures[i].Lookup(input)
		if ld.Status&CanParse != 0 {
			total += ld.Probability
		}
		if better(overall, ld) {
			overall = ld
		}
	}
	if overall.Status&CanParse != 0 {
		overall.Probability = total
	}
	return overall
}
