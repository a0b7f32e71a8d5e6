package pcfg

import (
	"math/big"
	"testing"
)

// threeGroupL is a single-letter nonterminal with three one-terminal
// groups at descending probabilities 1/2, 1/4, 1/8.
var threeGroupL = map[string][]string{
	"L": {
		"a\t0x1p-1\tsrc1",
		"b\t0x1p-2\tsrc1",
		"c\t0x1p-3\tsrc1",
	},
}

func patternManagerFor(t *testing.T, p *PCFG, index int) *PatternManager {
	t.Helper()
	pm, err := p.structures[index].patternManager()
	if err != nil {
		t.Fatalf("patternManager: %v", err)
	}
	return pm
}

func TestGroupIDAssignment(t *testing.T) {
	p := loadTestGrammar(t,
		[]string{"LELLELEDD\t0x1p+0\tsrc1"},
		map[string][]string{
			"L":  {"a\t0x1p-1\ts1", "b\t0x1p-1\ts1"},
			"LL": {"ab\t0x1p+0\ts1"},
			"DD": {"12\t0x1p+0\ts1"},
		})
	pm := patternManagerFor(t, p, 0)

	wantIDs := []int{1, 2, 1, 3}
	for i, want := range wantIDs {
		if pm.groupIDs[i] != want {
			t.Errorf("groupIDs[%d] = %d, want %d", i, pm.groupIDs[i], want)
		}
	}
	if !pm.hasRepeats {
		t.Error("structure with repeated L should report repeats")
	}
	if pm.groupCounts[1] != 2 || pm.groupCounts[2] != 1 || pm.groupCounts[3] != 1 {
		t.Errorf("groupCounts = %v", pm.groupCounts)
	}
}

func TestPatternCompaction(t *testing.T) {
	p := loadTestGrammar(t, []string{"LEL\t0x1p+0\tsrc1"}, threeGroupL)
	pm := patternManagerFor(t, p, 0)

	// (0,0) is canonical with multiplicity 1
	pm.ResetPatternCounter()
	if !pm.IsFirstPermutation() {
		t.Error("(0,0) should be canonical")
	}
	if got := pm.CountPermutations().String(); got != "1" {
		t.Errorf("permutations of (0,0) = %s, want 1", got)
	}

	// (0,1) is canonical and stands for {(0,1),(1,0)}
	pm.counter.SetPlace(0, 0)
	pm.counter.SetPlace(1, 1)
	if !pm.IsFirstPermutation() {
		t.Error("(0,1) should be canonical")
	}
	if got := pm.CountPermutations().String(); got != "2" {
		t.Errorf("permutations of (0,1) = %s, want 2", got)
	}
	if got := pm.PatternProbability(); got != 0.125 {
		t.Errorf("probability of (0,1) = %v, want 0.125", got)
	}

	// (1,0) is the non-canonical member of the same class
	pm.counter.SetPlace(0, 1)
	pm.counter.SetPlace(1, 0)
	if pm.IsFirstPermutation() {
		t.Error("(1,0) should not be canonical")
	}
	canonical := pm.canonicalizePattern()
	if canonical.Place(0) != 0 || canonical.Place(1) != 1 {
		t.Errorf("canonical of (1,0) = (%d,%d), want (0,1)", canonical.Place(0), canonical.Place(1))
	}
	if got := pm.CanonicalizedFirstStringOfPattern(); got != "a\x01b" {
		t.Errorf("canonical pattern id = %q, want a\\x01b", got)
	}
}

func TestEnumerationVisitsEveryCanonicalPatternOnce(t *testing.T) {
	p := loadTestGrammar(t, []string{"LEL\t0x1p+0\tsrc1"}, threeGroupL)
	pm := patternManagerFor(t, p, 0)

	pm.ResetPatternCounter()
	seen := map[[2]uint64]int{}
	canonical := 0
	for {
		if pm.IsFirstPermutation() {
			canonical++
			seen[[2]uint64{pm.counter.Place(0), pm.counter.Place(1)}]++
		}
		if !pm.IncrementPatternCounter() {
			break
		}
	}
	// Canonical patterns over two 3-group positions: multisets of size 2
	// from 3 values = 6
	if canonical != 6 {
		t.Errorf("visited %d canonical patterns, want 6", canonical)
	}
	for state, n := range seen {
		if n != 1 {
			t.Errorf("canonical pattern %v visited %d times", state, n)
		}
	}
}

func TestCountStringsMatchesPatternSum(t *testing.T) {
	// Invariant: structure count = Σ over canonical patterns of
	// patternStrings × permutationCount.
	p := loadTestGrammar(t, []string{"LEL\t0x1p+0\tsrc1"},
		map[string][]string{
			"L": {
				"a\t0x1.cp-2\tsrc1", // 0.4375
				"b\t0x1p-2\tsrc1",
				"c\t0x1p-2\tsrc1",
				"d\t0x1p-4\tsrc1",
			},
		})
	s := p.structures[0]
	pm := patternManagerFor(t, p, 0)

	total := NewBigCount(0)
	pm.ResetPatternCounter()
	for {
		if pm.IsFirstPermutation() {
			total = total.Add(pm.CountStrings().Mul(pm.CountPermutations()))
		}
		if !pm.IncrementPatternCounter() {
			break
		}
	}
	if total.Cmp(s.CountStrings()) != 0 {
		t.Errorf("pattern sum %s != structure count %s", total, s.CountStrings())
	}
}

func TestPermutationRankBijection(t *testing.T) {
	p := loadTestGrammar(t, []string{"LELEL\t0x1p+0\tsrc1"}, threeGroupL)
	pm := patternManagerFor(t, p, 0)

	// All 6 orderings of the digits {0,1,2} must map onto ranks 0..5
	orderings := [][3]uint64{
		{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0},
	}
	ranks := map[string]bool{}
	for _, o := range orderings {
		for i, d := range o {
			if err := pm.counter.SetPlace(i, d); err != nil {
				t.Fatal(err)
			}
		}
		if got := pm.CountPermutations().String(); got != "6" {
			t.Fatalf("permutations of %v = %s, want 6", o, got)
		}
		rank := pm.permutationRank()
		if rank.Sign() < 0 || rank.Cmp(big.NewInt(6)) >= 0 {
			t.Fatalf("rank of %v = %s outside [0, 6)", o, rank)
		}
		if ranks[rank.String()] {
			t.Fatalf("rank %s assigned twice", rank)
		}
		ranks[rank.String()] = true

		if o == [3]uint64{0, 1, 2} && rank.Sign() != 0 {
			t.Errorf("canonical ordering should rank 0, got %s", rank)
		}
	}
	if len(ranks) != 6 {
		t.Errorf("ranks cover %d values, want 6", len(ranks))
	}
}

func TestPermutationRankWithRepeatedDigits(t *testing.T) {
	p := loadTestGrammar(t, []string{"LELEL\t0x1p+0\tsrc1"}, threeGroupL)
	pm := patternManagerFor(t, p, 0)

	// Multiset {0,0,1}: 3 permutations, ranks 0..2
	orderings := [][3]uint64{{0, 0, 1}, {0, 1, 0}, {1, 0, 0}}
	for wantRank, o := range orderings {
		for i, d := range o {
			pm.counter.SetPlace(i, d)
		}
		if got := pm.CountPermutations().String(); got != "3" {
			t.Fatalf("permutations of %v = %s, want 3", o, got)
		}
		if rank := pm.permutationRank(); rank.Cmp(big.NewInt(int64(wantRank))) != 0 {
			t.Errorf("rank of %v = %s, want %d", o, rank, wantRank)
		}
	}
}

func TestLookupAndSetPattern(t *testing.T) {
	p := loadTestGrammar(t, []string{"LEL\t0x1p+0\tsrc1"}, threeGroupL)
	pm := patternManagerFor(t, p, 0)

	// "ba" is the (1,0) permutation of canonical (0,1). Each group holds
	// one string, so the final index equals the permutation rank (1).
	ld := pm.lookupAndSetPattern([]string{"b", "a"})
	if ld.Status != CanParse {
		t.Fatalf("status %s", ld.Status)
	}
	if ld.Index.Cmp(big.NewInt(1)) != 0 {
		t.Errorf("index %s, want 1", ld.Index)
	}
	if ld.Probability != 0.125 {
		t.Errorf("probability %v, want 0.125", ld.Probability)
	}
	if ld.PatternID != "a\x01b" {
		t.Errorf("pattern id %q, want a\\x01b", ld.PatternID)
	}

	// The canonical member ranks 0
	ld = pm.lookupAndSetPattern([]string{"a", "b"})
	if ld.Index.Sign() != 0 {
		t.Errorf("canonical index %s, want 0", ld.Index)
	}

	// A terminal outside the grammar surfaces the failing status
	ld = pm.lookupAndSetPattern([]string{"a", "!"})
	if ld.Status&CanParse != 0 || ld.Status&TerminalNotFound == 0 {
		t.Errorf("status %s, want TerminalNotFound", ld.Status)
	}
}

func TestIntelligentSkipRespectsCutoff(t *testing.T) {
	// Probabilities of the three groups: 1/2, 1/4, 1/8. With cutoff 1/8
	// only patterns with probability >= 1/8 survive: (0,0)=1/4, (0,1)=1/8,
	// (1,0)=1/8. Skipping must still visit all of them.
	p := loadTestGrammar(t, []string{"LEL\t0x1p+0\tsrc1"}, threeGroupL)
	pm := patternManagerFor(t, p, 0)

	cutoff := 0.125
	var visited [][2]uint64
	pm.ResetPatternCounter()
	for patternsLeft := true; patternsLeft; {
		if pm.PatternProbability() < cutoff {
			patternsLeft = pm.IntelligentSkipPatternCounter()
			continue
		}
		visited = append(visited, [2]uint64{pm.counter.Place(0), pm.counter.Place(1)})
		patternsLeft = pm.IncrementPatternCounter()
	}

	want := [][2]uint64{{0, 0}, {0, 1}, {1, 0}}
	if len(visited) != len(want) {
		t.Fatalf("visited %v, want %v", visited, want)
	}
	for i := range want {
		if visited[i] != want[i] {
			t.Errorf("visited[%d] = %v, want %v", i, visited[i], want[i])
		}
	}
}
