package server

import (
	"fmt"
	"io"
	"math/big"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/pcalc/guesscalc/internal/logger"
	"github.com/pcalc/guesscalc/pkg/config"
	"github.com/pcalc/guesscalc/pkg/grammar"
	"github.com/pcalc/guesscalc/pkg/pcfg"
	"github.com/pcalc/guesscalc/pkg/table"
)

// Server handles the IPC for guess-number lookups. The lookup table
// client is optional; without it responses carry the in-pattern rank and
// the pattern identifier so the client can resolve the global guess
// number itself.
type Server struct {
	pcfg    *pcfg.PCFG
	table   *table.Client
	config  *config.Config
	decoder *msgpack.Decoder
	encoder *msgpack.Encoder
	log     *log.Logger
}

// NewServer creates a lookup server using stdin/stdout for IPC.
func NewServer(p *pcfg.PCFG, tbl *table.Client, cfg *config.Config) *Server {
	return newServerWithStreams(p, tbl, cfg, os.Stdin, os.Stdout)
}

func newServerWithStreams(p *pcfg.PCFG, tbl *table.Client, cfg *config.Config, r io.Reader, w io.Writer) *Server {
	return &Server{
		pcfg:    p,
		table:   tbl,
		config:  cfg,
		decoder: msgpack.NewDecoder(r),
		encoder: msgpack.NewEncoder(w),
		log:     logger.Default("ipc"),
	}
}

// Start begins listening for IPC requests. Returns on EOF.
func (s *Server) Start() error {
	s.log.Debug("Starting lookup server")

	for {
		var request LookupRequest
		if err := s.decoder.Decode(&request); err != nil {
			if err == io.EOF {
				return nil
			}
			s.log.Errorf("Decoding request: %v", err)
			s.sendError("", "invalid msgpack request", 400)
			continue
		}
		s.handleLookup(request)
	}
}

// handleLookup resolves one candidate password.
func (s *Server) handleLookup(request LookupRequest) {
	if request.Password == "" {
		s.sendError(request.ID, "missing 'p' parameter", 400)
		return
	}
	if max := s.config.Server.MaxInputLength; max > 0 && len(request.Password) > max {
		s.sendError(request.ID, fmt.Sprintf("input exceeds maximum length of %d", max), 400)
		return
	}

	start := time.Now()
	ld := s.pcfg.Lookup(request.Password)
	response := LookupResponse{
		ID: request.ID,
		OK: ld.Status&pcfg.CanParse != 0,
	}

	if !response.OK {
		response.Status = uint(ld.Status)
		response.GuessNumber = fmt.Sprintf("-%d", uint(ld.Status))
		response.TimeTaken = time.Since(start).Microseconds()
		s.send(response)
		return
	}

	guessNumber := new(big.Int).Set(ld.Index)
	if s.table != nil {
		result, err := s.table.Lookup(ld.Probability, ld.PatternID)
		switch {
		case err != nil:
			s.sendError(request.ID, err.Error(), 500)
			return
		case result.Status&pcfg.CanParse != 0:
			guessNumber = resolveBias(s.config.Lookup.Bias, ld.Index, result)
		case result.Status&pcfg.BeyondCutoff != 0:
			response.OK = false
			response.Status = uint(pcfg.BeyondCutoff)
			response.GuessNumber = fmt.Sprintf("-%d", uint(pcfg.BeyondCutoff))
			response.TimeTaken = time.Since(start).Microseconds()
			s.send(response)
			return
		default:
			s.sendError(request.ID, "parseable password missing from lookup table", 500)
			return
		}
	}

	response.Probability = grammar.FormatProbability(ld.Probability)
	response.PatternID = ld.PatternID
	response.GuessNumber = guessNumber.String()
	response.SourceIDs = ld.JoinedSourceIDs()
	response.TimeTaken = time.Since(start).Microseconds()
	s.send(response)
}

// resolveBias applies the configured tie bias to a table hit.
func resolveBias(bias string, rank *big.Int, result *table.Result) *big.Int {
	switch bias {
	case "up":
		if result.NextGuessNumber != nil {
			return new(big.Int).Set(result.NextGuessNumber)
		}
		return new(big.Int).Set(result.GuessNumber)
	case "down":
		return new(big.Int).Set(result.GuessNumber)
	default:
		return new(big.Int).Add(result.GuessNumber, rank)
	}
}

func (s *Server) send(response interface{}) {
	if err := s.encoder.Encode(response); err != nil {
		s.log.Errorf("Encoding response: %v", err)
	}
}

func (s *Server) sendError(id, message string, code int) {
	s.send(LookupError{ID: id, Error: message, Code: code})
}
