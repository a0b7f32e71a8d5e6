/*
Package main implements guessrank, the guess-number lookup CLI.

Guessrank loads a grammar and a precomputed sorted lookup table and
assigns each password of an input file its guess number: the position the
enumeration would reach it at. Passwords that cannot be parsed get a
negative code explaining why.

	guessrank -pfile passwords.txt -lfile lookuptable.txt -gdir grammar/

The password file is three-column tab-separated; the password is
everything after the second tab. Each output line extends the input line:

	inputLine<TAB>probability<TAB>patternIdentifier<TAB>guessNumber<TAB>sourceIDs

On a probability tie the reported number is exact by default; -bias-down
reports the tied block's first guess number and -bias-up the next
block's.

With -serve the tool instead starts a msgpack IPC server on
stdin/stdout answering lookup requests; see the server package for the
protocol. The lookup table is optional in this mode.
*/
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/pcalc/guesscalc/pkg/config"
	"github.com/pcalc/guesscalc/pkg/grammar"
	"github.com/pcalc/guesscalc/pkg/pcfg"
	"github.com/pcalc/guesscalc/pkg/server"
	"github.com/pcalc/guesscalc/pkg/table"
)

const Version = "0.3.1"

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

	logger.Print("[ guessrank ] Looks up guess numbers for candidate passwords")
	logger.Print("", "version", Version)
	logger.Print("use -h or --help to see available options")
	os.Exit(0)
}

// splitPasswordLine extracts the password from a three-column
// tab-separated line: everything after the second tab.
func splitPasswordLine(line string) (string, error) {
	first := strings.IndexByte(line, '\t')
	if first < 0 {
		return "", fmt.Errorf("password line %q does not contain three tab-separated fields", line)
	}
	second := strings.IndexByte(line[first+1:], '\t')
	if second < 0 {
		return "", fmt.Errorf("password line %q does not contain three tab-separated fields", line)
	}
	return line[first+1+second+1:], nil
}

func main() {
	sigHandler()

	version := flag.Bool("version", false, "Show current version")
	configPath := flag.String("config", "", "Path to a guesscalc.toml config file")
	debugMode := flag.Bool("d", false, "Toggle debug mode")
	passwordFile := flag.String("pfile", "", "Password file in three-column, tab-separated format")
	lookupFile := flag.String("lfile", "", "Lookup table file in sorted, aggregated-count format")
	grammarDir := flag.String("gdir", "", "Grammar directory produced by the trainer")
	structuresFile := flag.String("sfile", "", "Use the following file as the structures file")
	terminalsDir := flag.String("tfolder", "", "Use the following folder as the terminals folder")
	biasUp := flag.Bool("bias-up", false, "On probability ties, report the next pattern's guess number")
	biasDown := flag.Bool("bias-down", false, "On probability ties, report the tied pattern's first guess number")
	serve := flag.Bool("serve", false, "Run the msgpack IPC lookup server instead of batch mode")

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

	cfg, _, _ := config.LoadConfigWithPriority(*configPath)
	if *grammarDir != "" {
		cfg.Grammar.Dir = *grammarDir
	}
	if *structuresFile != "" {
		cfg.Grammar.StructuresFile = *structuresFile
	}
	if *terminalsDir != "" {
		cfg.Grammar.TerminalsDir = *terminalsDir
	}
	if *biasUp && *biasDown {
		log.Fatal("-bias-up and -bias-down are mutually exclusive")
	}
	if *biasUp {
		cfg.Lookup.Bias = "up"
	} else if *biasDown {
		cfg.Lookup.Bias = "down"
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

	var tbl *table.Client
	if *lookupFile != "" {
		tbl, err = table.Open(*lookupFile)
		if err != nil {
			log.Fatalf("Failed to open lookup table: %v", err)
		}
		defer tbl.Close()
	}

	if *serve {
		srv := server.NewServer(p, tbl, cfg)
		if err := srv.Start(); err != nil {
			log.Fatalf("Server error: %v", err)
		}
		return
	}

	if *passwordFile == "" || tbl == nil {
		log.Fatal("Batch mode needs both -pfile and -lfile")
	}

	in, err := os.Open(*passwordFile)
	if err != nil {
		log.Fatalf("Failed to open password file: %v", err)
	}
	defer in.Close()

	out := bufio.NewWriterSize(os.Stdout, 1<<20)
	defer out.Flush()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		fullLine := scanner.Text()
		password, err := splitPasswordLine(fullLine)
		if err != nil {
			log.Fatalf("Reading password file: %v", err)
		}
		lookupPassword(out, p, tbl, cfg.Lookup.Bias, fullLine, password)
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("Reading password file: %v", err)
	}
}

// lookupPassword resolves one password and writes its output line.
func lookupPassword(out *bufio.Writer, p *pcfg.PCFG, tbl *table.Client, bias, fullLine, password string) {
	ld := p.Lookup(password)

	if ld.Status&pcfg.CanParse != 0 {
		result, err := tbl.Lookup(ld.Probability, ld.PatternID)
		if err != nil {
			log.Fatalf("Lookup table error for password %q: %v", password, err)
		}
		switch {
		case result.Status&pcfg.CanParse != 0:
			switch bias {
			case "up":
				if result.NextGuessNumber != nil {
					ld.Index.Set(result.NextGuessNumber)
				} else {
					ld.Index.Set(result.GuessNumber)
				}
			case "down":
				ld.Index.Set(result.GuessNumber)
			default:
				ld.Index.Add(ld.Index, result.GuessNumber)
			}
		case result.Status&pcfg.BeyondCutoff != 0:
			ld.Status = pcfg.BeyondCutoff
		default:
			log.Fatalf("Parseable password %q with probability %s and pattern %q missing from lookup table",
				password, grammar.FormatProbability(ld.Probability), ld.PatternID)
		}
	} else if ld.Status&(pcfg.TerminalCollision|pcfg.UnexpectedFailure) != 0 {
		// These codes cannot come out of a healthy grammar
		log.Fatalf("Password %q lookup returned parse code %s; something went horribly wrong",
			password, ld.Status)
	}

	guessNumber := ld.Index.String()
	patternID := ld.PatternID
	if ld.Status&pcfg.CanParse == 0 {
		guessNumber = fmt.Sprintf("-%d", uint(ld.Status))
		patternID = ""
	}

	fmt.Fprintf(out, "%s\t%s\t%s\t%s\t%s\n",
		fullLine,
		grammar.FormatProbability(ld.Probability),
		patternID,
		guessNumber,
		ld.JoinedSourceIDs())
}
