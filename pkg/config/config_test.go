package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	if c.Grammar.MaxStructureLength != 40 {
		t.Errorf("MaxStructureLength = %d, want 40", c.Grammar.MaxStructureLength)
	}
	if c.Lookup.Bias != "none" {
		t.Errorf("Bias = %q, want none", c.Lookup.Bias)
	}
	if got := c.Grammar.StructuresPath(); got != filepath.Join("grammar", "nonterminalRules.txt") {
		t.Errorf("StructuresPath = %q", got)
	}
	if got := c.Grammar.TerminalsPath(); got != filepath.Join("grammar", "terminalRules") {
		t.Errorf("TerminalsPath = %q", got)
	}
}

func TestExplicitPathsWin(t *testing.T) {
	g := GrammarConfig{
		Dir:            "grammar",
		StructuresFile: "/tmp/custom.txt",
		TerminalsDir:   "/tmp/terms",
	}
	if g.StructuresPath() != "/tmp/custom.txt" {
		t.Errorf("StructuresPath = %q", g.StructuresPath())
	}
	if g.TerminalsPath() != "/tmp/terms" {
		t.Errorf("TerminalsPath = %q", g.TerminalsPath())
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guesscalc.toml")
	c := DefaultConfig()
	c.Grammar.Dir = "/data/grammar"
	c.Generate.Cutoff = 1e-12
	c.Lookup.Bias = "down"

	if err := SaveConfig(c, path); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.Grammar.Dir != "/data/grammar" || loaded.Generate.Cutoff != 1e-12 || loaded.Lookup.Bias != "down" {
		t.Errorf("round trip lost values: %+v", loaded)
	}
}

func TestPartialConfigKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guesscalc.toml")
	content := "[grammar]\ndir = \"/data/g\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if c.Grammar.Dir != "/data/g" {
		t.Errorf("Dir = %q", c.Grammar.Dir)
	}
	if c.Grammar.MaxStructureLength != 40 {
		t.Errorf("absent key should keep default, got %d", c.Grammar.MaxStructureLength)
	}
}

func TestInitConfigCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "guesscalc.toml")
	c, err := InitConfig(path)
	if err != nil {
		t.Fatalf("InitConfig: %v", err)
	}
	if c.Grammar.MaxStructureLength != 40 {
		t.Errorf("unexpected config: %+v", c)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file was not created: %v", err)
	}
}
