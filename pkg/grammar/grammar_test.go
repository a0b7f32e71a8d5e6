package grammar

import "testing"

func TestSymbolsAlphabet(t *testing.T) {
	if len(Symbols) != 33 {
		t.Fatalf("Symbols has %d characters, want 33", len(Symbols))
	}
	seen := map[byte]bool{}
	for i := 0; i < len(Symbols); i++ {
		c := Symbols[i]
		if seen[c] {
			t.Errorf("Symbols repeats %q", c)
		}
		seen[c] = true
		if ClassOf(c) != 'S' {
			t.Errorf("ClassOf(%q) = %c, want S", c, ClassOf(c))
		}
		if CharIndex('S', c) != i {
			t.Errorf("CharIndex('S', %q) = %d, want %d", c, CharIndex('S', c), i)
		}
		if CharAt('S', i) != c {
			t.Errorf("CharAt('S', %d) = %q, want %q", i, CharAt('S', i), c)
		}
	}
}

func TestCharIndexRoundTrip(t *testing.T) {
	for _, class := range []byte{'L', 'D', 'S'} {
		radix, err := Radix(class)
		if err != nil {
			t.Fatalf("Radix(%c): %v", class, err)
		}
		for i := 0; i < radix; i++ {
			c := CharAt(class, i)
			if got := CharIndex(class, c); got != i {
				t.Errorf("CharIndex(%c, CharAt(%c, %d)) = %d", class, class, i, got)
			}
		}
	}
	if CharIndex('L', 'A') != -1 {
		t.Error("CharIndex('L', 'A') should be -1")
	}
	if CharIndex('D', 'a') != -1 {
		t.Error("CharIndex('D', 'a') should be -1")
	}
}

func TestClassString(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"abc", "LLL"},
		{"Abc9", "ULLD"},
		{"a!b", "LSL"},
		{"a\x01b", "LEL"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := ClassString(tc.in); got != tc.want {
			t.Errorf("ClassString(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestStripBreakBytes(t *testing.T) {
	if got := StripBreakBytes("ab\x01cd\x01"); got != "abcd" {
		t.Errorf("StripBreakBytes = %q, want abcd", got)
	}
	if got := StripBreakBytes("plain"); got != "plain" {
		t.Errorf("StripBreakBytes = %q, want plain", got)
	}
}

func TestParseProbability(t *testing.T) {
	p, err := ParseProbability("0x1.0p-1")
	if err != nil {
		t.Fatalf("ParseProbability: %v", err)
	}
	if p != 0.5 {
		t.Errorf("ParseProbability = %v, want 0.5", p)
	}

	for _, bad := range []string{"0x0p+0", "-0x1p-4", "0x1.1p+0", "junk"} {
		if _, err := ParseProbability(bad); err == nil {
			t.Errorf("ParseProbability(%q) should fail", bad)
		}
	}
}

func TestProbabilityRoundTrip(t *testing.T) {
	for _, p := range []float64{1.0, 0.5, 0.125, 1e-30, 0.3333333333333333} {
		got, err := ParseProbability(FormatProbability(p))
		if err != nil {
			t.Fatalf("round trip of %v: %v", p, err)
		}
		if got != p {
			t.Errorf("round trip of %v gave %v", p, got)
		}
	}
}

func TestParseStructureLine(t *testing.T) {
	s, err := ParseStructureLine("LLLEDD\t0x1.8p-2\tsrc1,src2")
	if err != nil {
		t.Fatalf("ParseStructureLine: %v", err)
	}
	if s.Representation != "LLLEDD" || s.Probability != 0.375 || s.SourceIDs != "src1,src2" {
		t.Errorf("unexpected result: %+v", s)
	}

	if _, err := ParseStructureLine("LLL\t0x1p-1"); err == nil {
		t.Error("two-field line should fail")
	}
	if _, err := ParseStructureLine("LLL\t0x1.1p+1\tsrc"); err == nil {
		t.Error("out-of-range probability should fail")
	}
}

func TestParseTerminalLine(t *testing.T) {
	tl, err := ParseTerminalLine([]byte("pass\t0x1p-3\tsrc1"))
	if err != nil {
		t.Fatalf("ParseTerminalLine: %v", err)
	}
	if tl.Terminal != "pass" || tl.Probability != 0.125 || tl.SourceIDs != "src1" {
		t.Errorf("unexpected result: %+v", tl)
	}
	if _, err := ParseTerminalLine([]byte("no tabs here")); err == nil {
		t.Error("line without tabs should fail")
	}
}

func TestNextLine(t *testing.T) {
	line, rest, ok := NextLine([]byte("a\nb\n"))
	if !ok || string(line) != "a" || string(rest) != "b\n" {
		t.Errorf("NextLine first call: %q %q %v", line, rest, ok)
	}
	line, rest, ok = NextLine(rest)
	if !ok || string(line) != "b" || len(rest) != 0 {
		t.Errorf("NextLine second call: %q %q %v", line, rest, ok)
	}
	_, _, ok = NextLine([]byte("tail"))
	if ok {
		t.Error("fragment without newline should report ok=false")
	}
}

func TestAddSourceIDs(t *testing.T) {
	set := map[string]struct{}{}
	if err := AddSourceIDs("a,b,a", set); err != nil {
		t.Fatalf("AddSourceIDs: %v", err)
	}
	if len(set) != 2 {
		t.Errorf("set has %d entries, want 2", len(set))
	}
	if err := AddSourceIDs("a,,b", set); err == nil {
		t.Error("empty value should fail")
	}
}
