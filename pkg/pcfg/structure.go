package pcfg

import (
	"fmt"
	"io"
	"math/rand"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/pcalc/guesscalc/pkg/grammar"
)

// Structure is a top-level production of the grammar: a sequence of
// nonterminals with a base probability. Nonterminals are borrowed from
// the owning PCFG's collection.
type Structure struct {
	representation string
	probability    float64
	sourceIDs      string
	nonterminals   []*Nonterminal

	// flat is the representation with break characters removed; it equals
	// the character-class projection of every string the structure can
	// produce.
	flat string
}

// loadStructure resolves the representation's nonterminals through the
// collection.
func loadStructure(line grammar.StructureLine, collection *NonterminalCollection) (*Structure, error) {
	s := &Structure{
		representation: line.Representation,
		probability:    line.Probability,
		sourceIDs:      line.SourceIDs,
	}

	for _, rep := range strings.Split(line.Representation, string(rune(grammar.StructureBreak))) {
		if rep == "" {
			return nil, fmt.Errorf("structure %q has an empty nonterminal", line.Representation)
		}
		nt, err := collection.GetOrCreate(rep)
		if err != nil {
			return nil, fmt.Errorf("structure %q: %w", line.Representation, err)
		}
		s.nonterminals = append(s.nonterminals, nt)
		s.flat += rep
	}
	return s, nil
}

// Representation returns the structure's class representation.
func (s *Structure) Representation() string { return s.representation }

// Probability returns the base rule probability.
func (s *Structure) Probability() float64 { return s.probability }

// CountStrings multiplies the string counts of the component
// nonterminals.
func (s *Structure) CountStrings() BigCount {
	result := NewBigCount(1)
	for _, nt := range s.nonterminals {
		result = result.Mul(nt.CountStrings())
	}
	return result
}

func (s *Structure) patternManager() (*PatternManager, error) {
	return newPatternManager(s.representation, s.nonterminals, s.probability)
}

// GeneratePatterns writes every canonical pattern with probability at or
// above the cutoff, one line per pattern:
//
//	probability<TAB>totalCount<TAB>patternIdentifier
//
// where totalCount is patternStrings × permutationCount, the guesses the
// compacted pattern stands for.
func (s *Structure) GeneratePatterns(w io.Writer, cutoff float64) error {
	pm, err := s.patternManager()
	if err != nil {
		return err
	}

	pm.ResetPatternCounter()
	for patternsLeft := true; patternsLeft; {
		if pm.PatternProbability() < cutoff {
			patternsLeft = pm.IntelligentSkipPatternCounter()
			continue
		}
		if pm.IsFirstPermutation() {
			total := pm.CountStrings().Mul(pm.CountPermutations())
			if _, err := fmt.Fprintf(w, "%s\t%s\t%s\n",
				grammar.FormatProbability(pm.PatternProbability()),
				total, pm.FirstStringOfPattern()); err != nil {
				return err
			}
		}
		patternsLeft = pm.IncrementPatternCounter()
	}
	return nil
}

// GenerateStrings writes every string with pattern probability at or
// above the cutoff as probability<TAB>string lines. Pattern compaction is
// ignored; the Cartesian product over the per-position iterators runs
// with the last position incrementing fastest.
//
// With accurate set, each string's probability is resolved through
// parent.LookupSum, and the string prints only when this pattern is the
// string's home (the lookup's pattern identifier matches). That emits
// every string exactly once across all structures.
func (s *Structure) GenerateStrings(w io.Writer, cutoff float64, accurate bool, parent *PCFG) error {
	pm, err := s.patternManager()
	if err != nil {
		return err
	}

	pm.ResetPatternCounter()
	for patternsLeft := true; patternsLeft; {
		probability := pm.PatternProbability()
		if probability < cutoff {
			patternsLeft = pm.IntelligentSkipPatternCounter()
			continue
		}

		patternID := pm.CanonicalizedFirstStringOfPattern()
		iterators := pm.StringIterators()
		current := make([]string, len(iterators))
		for i, it := range iterators {
			current[i], _ = it.Next()
		}

		for stringsLeft := true; stringsLeft; {
			guess := strings.Join(current, "")
			if accurate {
				ld := parent.LookupSum(guess)
				if ld.Status&UnexpectedFailure != 0 || ld.Status&CanParse == 0 {
					log.Fatalf("generated string %q of structure %s cannot be re-parsed (status %s)",
						guess, s.representation, ld.Status)
				}
				if ld.PatternID == patternID {
					if _, err := fmt.Fprintf(w, "%s\t%s\n",
						grammar.FormatProbability(ld.Probability), guess); err != nil {
						return err
					}
				}
			} else {
				if _, err := fmt.Fprintf(w, "%s\t%s\n",
					grammar.FormatProbability(probability), guess); err != nil {
					return err
				}
			}

			// Carry: the least-significant iterator overflows into the
			// previous one.
			for i := len(iterators) - 1; ; i-- {
				if next, ok := iterators[i].Next(); ok {
					current[i] = next
					break
				}
				iterators[i].Restart()
				current[i], _ = iterators[i].Next()
				if i == 0 {
					stringsLeft = false
					break
				}
			}
		}

		patternsLeft = pm.IncrementPatternCounter()
	}
	return nil
}

// GenerateRandomStrings draws n strings from the structure's conditional
// distribution, writing probability<TAB>string lines. With accurate set
// the printed probability is the summed probability over all structures.
func (s *Structure) GenerateRandomStrings(w io.Writer, n uint64, rng *rand.Rand, accurate bool, parent *PCFG) error {
	for i := uint64(0); i < n; i++ {
		var b strings.Builder
		probability := s.probability
		for _, nt := range s.nonterminals {
			group := nt.ProduceRandomTerminalGroup(rng)
			probability *= nt.ProbabilityOfGroup(group)
			b.WriteString(nt.ProduceRandomStringOfGroup(group, rng))
		}
		guess := b.String()
		if accurate {
			ld := parent.LookupSum(guess)
			if ld.Status&CanParse == 0 {
				log.Fatalf("sampled string %q of structure %s cannot be re-parsed (status %s)",
					guess, s.representation, ld.Status)
			}
			probability = ld.Probability
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\n", grammar.FormatProbability(probability), guess); err != nil {
			return err
		}
	}
	return nil
}

// Lookup parses the input against this structure. Break bytes are
// stripped first; the remaining input's class projection must consume the
// structure's nonterminal representations end to end. On a shape match
// the terminals are ranked through the pattern manager, and the
// structure's own source ids are folded into the result.
func (s *Structure) Lookup(input string) *LookupData {
	unbroken := grammar.StripBreakBytes(input)
	projection := grammar.ClassString(unbroken)

	if projection != s.flat {
		return failedLookup(StructureNotFound)
	}

	terminals := make([]string, len(s.nonterminals))
	position := 0
	for i, nt := range s.nonterminals {
		length := len(nt.Representation())
		terminals[i] = unbroken[position : position+length]
		position += length
	}

	pm, err := s.patternManager()
	if err != nil {
		log.Fatalf("instantiating pattern manager for structure %s: %v", s.representation, err)
	}
	ld := pm.lookupAndSetPattern(terminals)
	if ld.Status&CanParse == 0 {
		return ld
	}
	if err := grammar.AddSourceIDs(s.sourceIDs, ld.SourceIDs); err != nil {
		log.Fatalf("adding source ids %q of structure %s: %v", s.sourceIDs, s.representation, err)
	}
	return ld
}

// CountParses returns 1 when the structure can parse the input, else 0.
// A structure parses a string in at most one way.
func (s *Structure) CountParses(input string) uint64 {
	if s.Lookup(input).Status&CanParse != 0 {
		return 1
	}
	return 0
}
