package pcfg

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeGrammar lays out a grammar directory in a temp dir: a structures
// file plus one terminal file per entry of terminals (keyed by the
// downcased representation, without the .txt suffix). Terminal entries
// use "" for the blank line separating seen groups from unseen
// descriptors.
func writeGrammar(t testing.TB, structures []string, terminals map[string][]string) (structuresFile, terminalsDir string) {
	t.Helper()
	dir := t.TempDir()
	terminalsDir = filepath.Join(dir, "terminalRules")
	if err := os.MkdirAll(terminalsDir, 0o755); err != nil {
		t.Fatal(err)
	}

	var b strings.Builder
	b.WriteString("S ->\n")
	for _, s := range structures {
		b.WriteString(s)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	structuresFile = filepath.Join(dir, "nonterminalRules.txt")
	if err := os.WriteFile(structuresFile, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}

	for name, lines := range terminals {
		content := strings.Join(lines, "\n") + "\n"
		if err := os.WriteFile(filepath.Join(terminalsDir, name+".txt"), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return structuresFile, terminalsDir
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

// loadTestGrammar builds a PCFG from fixture data and closes it when the
// test ends.
func loadTestGrammar(t testing.TB, structures []string, terminals map[string][]string) *PCFG {
	t.Helper()
	structuresFile, terminalsDir := writeGrammar(t, structures, terminals)
	p, err := LoadGrammar(structuresFile, terminalsDir, Options{})
	if err != nil {
		t.Fatalf("LoadGrammar: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}
