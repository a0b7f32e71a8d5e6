/*
Package main implements the guesscalc enumeration CLI.

Guesscalc loads a trained guessing grammar and enumerates password
guesses from it. It supports three generation modes on top of one shared
engine, plus a total count:

	guesscalc -mode patterns -cutoff 1e-12
	guesscalc -mode strings -cutoff 1e-12 -accupr
	guesscalc -mode random -number 100000 -seed 7
	guesscalc -count

Patterns mode emits one line per compacted pattern:

	probability<TAB>guessCount<TAB>patternIdentifier

Strings mode emits probability<TAB>string lines for every guess above
the cutoff; with -accupr each string's probability is the exact sum over
all parses and each string appears exactly once. Random mode samples the
grammar distribution for Monte Carlo guess-number estimation.

The grammar directory defaults to grammar/ and must hold
nonterminalRules.txt plus a terminalRules/ folder; override the pieces
with -gdir, -sfile and -tfolder. Defaults live in a TOML config file
(see the config package) and flags win over the file.

Enumerations routinely run for hours and write gigabytes; output goes to
stdout through a large buffered writer and diagnostics go to stderr.
SIGINT and SIGTERM abort immediately without persisting state.
*/
package main

import (
	"bufio"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/pcalc/guesscalc/pkg/config"
	"github.com/pcalc/guesscalc/pkg/pcfg"
)

const (
	Version = "0.3.1"
	AppName = "guesscalc"
)

// sigHandler is a simple handler for OS signals to exit normally.
func sigHandler() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		fmt.Fprintf(os.Stderr, "\nExiting...\n")
		os.Exit(0)
	}()
}

func showVersion() {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportCaller:    false,
		ReportTimestamp: false,
	})
	styles := log.DefaultStyles()
	styles.Values["version"] = lipgloss.NewStyle().Bold(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})
	logger.SetStyles(styles)

	logger.Print("[ guesscalc ] Enumerates password guesses from a trained grammar")
	logger.Print("", "version", Version)
	logger.Print("use -h or --help to see available options")
	os.Exit(0)
}

// main wires flags and config into the pcfg package; the generation
// logic lives there.
func main() {
	sigHandler()
	defaults := config.DefaultConfig()

	version := flag.Bool("version", false, "Show current version")
	configPath := flag.String("config", "", "Path to a guesscalc.toml config file")
	debugMode := flag.Bool("d", false, "Toggle debug mode")
	grammarDir := flag.String("gdir", "", "Grammar directory produced by the trainer")
	structuresFile := flag.String("sfile", "", "Use the following file as the structures file")
	terminalsDir := flag.String("tfolder", "", "Use the following folder as the terminals folder")
	mode := flag.String("mode", "strings", "Generation mode: patterns, strings or random")
	cutoff := flag.Float64("cutoff", defaults.Generate.Cutoff, "Only generate guesses with probability at or above this cutoff")
	number := flag.Uint64("number", uint64(defaults.Generate.SampleCount), "Number of strings to sample in random mode")
	seed := flag.Int64("seed", 0, "Random seed for random mode (0 seeds from the clock)")
	accurate := flag.Bool("accupr", defaults.Generate.Accurate, "Output true string probabilities by summing over all parses")
	countOnly := flag.Bool("count", false, "Print the total string count of the grammar and exit")

	flag.Parse()

	if *version {
		showVersion()
	}
	if *debugMode {
		log.SetLevel(log.DebugLevel)
		log.SetReportTimestamp(true)
	} else {
		log.SetLevel(log.WarnLevel)
	}

	cfg, cfgPath, _ := config.LoadConfigWithPriority(*configPath)
	if cfgPath != "" {
		log.Debugf("Using config file: %s", cfgPath)
	}
	if *grammarDir != "" {
		cfg.Grammar.Dir = *grammarDir
	}
	if *structuresFile != "" {
		cfg.Grammar.StructuresFile = *structuresFile
	}
	if *terminalsDir != "" {
		cfg.Grammar.TerminalsDir = *terminalsDir
	}
	setFlags := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	if !setFlags["cutoff"] {
		*cutoff = cfg.Generate.Cutoff
	}
	if !setFlags["number"] {
		*number = uint64(cfg.Generate.SampleCount)
	}
	if !setFlags["accupr"] {
		*accurate = cfg.Generate.Accurate
	}

	log.Debugf("Loading grammar: structures=%s terminals=%s",
		cfg.Grammar.StructuresPath(), cfg.Grammar.TerminalsPath())
	start := time.Now()
	p, err := pcfg.LoadGrammar(cfg.Grammar.StructuresPath(), cfg.Grammar.TerminalsPath(),
		pcfg.Options{MaxStructureLength: cfg.Grammar.MaxStructureLength})
	if err != nil {
		log.Fatalf("Failed to load grammar: %v", err)
	}
	defer p.Close()
	log.Debugf("Grammar loaded in %s", time.Since(start))

	out := bufio.NewWriterSize(os.Stdout, 1<<20)
	defer out.Flush()

	if *countOnly {
		fmt.Fprintln(out, p.CountStrings())
		return
	}

	switch *mode {
	case "patterns":
		err = p.GeneratePatterns(out, *cutoff)
	case "strings":
		err = p.GenerateStrings(out, *cutoff, *accurate)
	case "random":
		s := *seed
		if s == 0 {
			s = time.Now().UnixNano()
		}
		rng := rand.New(rand.NewSource(s))
		err = p.GenerateRandomStrings(out, *number, rng, *accurate)
	default:
		log.Fatalf("Unknown mode %q (want patterns, strings or random)", *mode)
	}
	if err != nil {
		log.Fatalf("Generation failed: %v", err)
	}
}
