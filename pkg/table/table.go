/*
Package table reads the sorted lookup table produced by the guess
calculator pipeline.

Each data line is

	probabilityHexFloat<TAB>guessNumber<TAB>patternIdentifier

in strictly descending probability order, and the final line starts with
"T" (the total guess count). The file is random-accessed at the byte
level: a binary search rewinds to line starts, so lookups stay cheap even
for multi-gigabyte tables.
*/
package table

import (
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"github.com/pcalc/guesscalc/pkg/grammar"
	"github.com/pcalc/guesscalc/pkg/pcfg"
)

// maxLineLength bounds a single table line, including the newline.
const maxLineLength = 1024

// Result of a table lookup. GuessNumber is the guess number on the
// matched line; NextGuessNumber is the guess number of the following
// line, or nil when the match is the last data line.
type Result struct {
	Status          pcfg.ParseStatus
	GuessNumber     *big.Int
	NextGuessNumber *big.Int
}

// Client wraps an open lookup table file.
type Client struct {
	f *os.File

	lowestKnown bool
	lowest      float64
}

// Open opens the lookup table for random access.
func Open(path string) (*Client, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening lookup table: %w", err)
	}
	return &Client{f: f}, nil
}

// Close closes the underlying file.
func (c *Client) Close() error { return c.f.Close() }

type line struct {
	probability float64
	guessNumber string
	patternID   string
}

// readLine reads the line at the current position and leaves the file
// positioned just past its newline.
func (c *Client) readLine() (string, error) {
	start, err := c.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return "", err
	}
	buf := make([]byte, maxLineLength)
	n, err := c.f.Read(buf)
	if n == 0 && err != nil {
		return "", fmt.Errorf("reading lookup table line: %w", err)
	}
	idx := -1
	for i := 0; i < n; i++ {
		if buf[i] == '\n' {
			idx = i
			break
		}
	}
	if idx < 0 {
		// Final line without newline; position at EOF
		if _, err := c.f.Seek(start+int64(n), io.SeekStart); err != nil {
			return "", err
		}
		return string(buf[:n]), nil
	}
	if _, err := c.f.Seek(start+int64(idx)+1, io.SeekStart); err != nil {
		return "", err
	}
	return string(buf[:idx]), nil
}

func parseLine(s string) (line, error) {
	fields := strings.SplitN(s, "\t", 3)
	if len(fields) != 3 {
		return line{}, fmt.Errorf("lookup table line %q does not have three fields", s)
	}
	probability, err := grammar.ParseProbability(fields[0])
	if err != nil {
		return line{}, fmt.Errorf("lookup table line %q: %w", s, err)
	}
	return line{
		probability: probability,
		guessNumber: fields[1],
		patternID:   fields[2],
	}, nil
}

func (c *Client) readParsedLine() (line, error) {
	s, err := c.readLine()
	if err != nil {
		return line{}, err
	}
	return parseLine(s)
}

// rewindOneLine moves the file position to the start of the current line:
// skip back two bytes, then keep rewinding until a newline is found, and
// settle on the byte after it. Running into the start of the file leaves
// the position at zero, the start of the first line.
func (c *Client) rewindOneLine() error {
	if _, err := c.f.Seek(-2, io.SeekCurrent); err != nil {
		_, err = c.f.Seek(0, io.SeekStart)
		return err
	}
	buf := make([]byte, 1)
	for {
		if _, err := c.f.Read(buf); err != nil {
			return fmt.Errorf("rewinding lookup table: %w", err)
		}
		if buf[0] == '\n' {
			return nil
		}
		if _, err := c.f.Seek(-2, io.SeekCurrent); err != nil {
			_, err = c.f.Seek(0, io.SeekStart)
			return err
		}
	}
}

// FindLastProbability returns the lowest probability in the table, found
// on the second-to-last line. The last line must be the total count line
// starting with T.
func (c *Client) FindLastProbability() (float64, error) {
	if c.lowestKnown {
		return c.lowest, nil
	}
	if _, err := c.f.Seek(-1, io.SeekEnd); err != nil {
		return 0, fmt.Errorf("seeking to end of lookup table: %w", err)
	}
	if err := c.rewindOneLine(); err != nil {
		return 0, fmt.Errorf("rewinding to total count line: %w", err)
	}
	last, err := c.readLine()
	if err != nil {
		return 0, err
	}
	if len(last) == 0 || last[0] != 'T' {
		return 0, fmt.Errorf("lookup table last line %q does not start with the total count marker", last)
	}

	// Back over the total line and one more line to the lowest data line
	if err := c.rewindOneLine(); err != nil {
		return 0, fmt.Errorf("rewinding past total count line: %w", err)
	}
	if _, err := c.f.Seek(-1, io.SeekCurrent); err != nil {
		return 0, err
	}
	if err := c.rewindOneLine(); err != nil {
		return 0, fmt.Errorf("rewinding to last data line: %w", err)
	}
	l, err := c.readParsedLine()
	if err != nil {
		return 0, err
	}
	c.lowest = l.probability
	c.lowestKnown = true
	return c.lowest, nil
}

// binarySearch positions the file at the first line whose probability
// equals key. Returns CanParse on success, BeyondCutoff when key is below
// the table minimum, UnexpectedFailure when key exceeds the maximum or
// the key is absent.
func (c *Client) binarySearch(key float64) (pcfg.ParseStatus, error) {
	var low int64 = 0
	if _, err := c.f.Seek(-1, io.SeekEnd); err != nil {
		return pcfg.UnexpectedFailure, err
	}
	if err := c.rewindOneLine(); err != nil {
		return pcfg.UnexpectedFailure, fmt.Errorf("rewinding at end of table: %w", err)
	}
	high, err := c.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return pcfg.UnexpectedFailure, err
	}
	high--

	// Invariant (a): the first line's probability bounds the key above
	if _, err := c.f.Seek(low, io.SeekStart); err != nil {
		return pcfg.UnexpectedFailure, err
	}
	first, err := c.readParsedLine()
	if err != nil {
		return pcfg.UnexpectedFailure, err
	}
	if first.probability < key {
		return pcfg.UnexpectedFailure, nil
	}

	// Invariant (b): the last data line bounds the key below
	if _, err := c.f.Seek(high, io.SeekStart); err != nil {
		return pcfg.UnexpectedFailure, err
	}
	if err := c.rewindOneLine(); err != nil {
		return pcfg.UnexpectedFailure, err
	}
	last, err := c.readParsedLine()
	if err != nil {
		return pcfg.UnexpectedFailure, err
	}
	if last.probability > key {
		return pcfg.BeyondCutoff, nil
	}

	for low <= high {
		mid := (high-low)/2 + low
		if _, err := c.f.Seek(mid, io.SeekStart); err != nil {
			return pcfg.UnexpectedFailure, err
		}
		if err := c.rewindOneLine(); err != nil {
			return pcfg.UnexpectedFailure, err
		}
		midpos, err := c.f.Seek(0, io.SeekCurrent)
		if err != nil {
			return pcfg.UnexpectedFailure, err
		}
		l, err := c.readParsedLine()
		if err != nil {
			return pcfg.UnexpectedFailure, err
		}

		switch {
		case l.probability == key:
			// Move left until the previous line no longer matches
			matchesPrevious := false
			if midpos > 0 {
				if _, err := c.f.Seek(midpos-1, io.SeekStart); err != nil {
					return pcfg.UnexpectedFailure, err
				}
				if err := c.rewindOneLine(); err != nil {
					return pcfg.UnexpectedFailure, err
				}
				previous, err := c.readParsedLine()
				if err != nil {
					return pcfg.UnexpectedFailure, err
				}
				if previous.probability == l.probability {
					matchesPrevious = true
					high = midpos - 1
				}
			}
			if !matchesPrevious {
				if _, err := c.f.Seek(midpos, io.SeekStart); err != nil {
					return pcfg.UnexpectedFailure, err
				}
				return pcfg.CanParse, nil
			}
		case l.probability > key:
			// The table descends, so the key lies after midpos
			if _, err := c.f.Seek(midpos, io.SeekStart); err != nil {
				return pcfg.UnexpectedFailure, err
			}
			if _, err := c.readLine(); err != nil {
				return pcfg.UnexpectedFailure, err
			}
			low, err = c.f.Seek(0, io.SeekCurrent)
			if err != nil {
				return pcfg.UnexpectedFailure, err
			}
		default:
			high = midpos - 1
		}
	}
	return pcfg.UnexpectedFailure, nil
}

// Lookup finds the guess number of the pattern at the given probability.
// After a binary search positions the file on the first matching-
// probability line, the matching block is scanned linearly for the
// pattern identifier.
func (c *Client) Lookup(probability float64, patternID string) (*Result, error) {
	result := &Result{
		Status:      pcfg.UnexpectedFailure,
		GuessNumber: big.NewInt(-1),
	}

	lowest, err := c.FindLastProbability()
	if err != nil {
		return nil, err
	}
	if probability < lowest {
		result.Status = pcfg.BeyondCutoff
		return result, nil
	}

	status, err := c.binarySearch(probability)
	if err != nil {
		return nil, err
	}
	if status&pcfg.CanParse == 0 {
		result.Status = status
		return result, nil
	}

	for {
		raw, err := c.readLine()
		if err != nil {
			return nil, err
		}
		if len(raw) > 0 && raw[0] == 'T' {
			break
		}
		l, err := parseLine(raw)
		if err != nil {
			return nil, err
		}
		if l.probability != probability {
			break
		}
		if l.patternID != patternID {
			continue
		}

		guessNumber, ok := new(big.Int).SetString(l.guessNumber, 10)
		if !ok {
			return nil, fmt.Errorf("guess number %q is not a decimal integer", l.guessNumber)
		}
		result.GuessNumber = guessNumber
		result.Status = pcfg.CanParse

		// Peek the next line for the following pattern's guess number
		next, err := c.readLine()
		if err == nil && len(next) > 0 && next[0] != 'T' {
			nl, err := parseLine(next)
			if err != nil {
				return nil, err
			}
			nextNumber, ok := new(big.Int).SetString(nl.guessNumber, 10)
			if !ok {
				return nil, fmt.Errorf("guess number %q is not a decimal integer", nl.guessNumber)
			}
			result.NextGuessNumber = nextNumber
		}
		return result, nil
	}

	// Pattern key not found among the matching-probability lines
	return result, nil
}
