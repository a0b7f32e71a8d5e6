package pcfg

// NonterminalCollection deduplicates nonterminals across structures.
// Structures sharing a representation share one Nonterminal and therefore
// one file mapping. There is no eviction; the collection lives as long as
// the owning PCFG.
type NonterminalCollection struct {
	terminalsDir string
	cache        map[string]*Nonterminal
}

// NewNonterminalCollection creates an empty collection reading terminal
// files from the given directory.
func NewNonterminalCollection(terminalsDir string) *NonterminalCollection {
	return &NonterminalCollection{
		terminalsDir: terminalsDir,
		cache:        make(map[string]*Nonterminal),
	}
}

// GetOrCreate returns the nonterminal for the representation, loading it
// on first use.
func (c *NonterminalCollection) GetOrCreate(representation string) (*Nonterminal, error) {
	if nt, ok := c.cache[representation]; ok {
		return nt, nil
	}
	nt, err := loadNonterminal(representation, c.terminalsDir)
	if err != nil {
		return nil, err
	}
	c.cache[representation] = nt
	return nt, nil
}

// Size returns the number of distinct nonterminals loaded.
func (c *NonterminalCollection) Size() int { return len(c.cache) }

// Close unmaps every nonterminal's terminal file.
func (c *NonterminalCollection) Close() error {
	var first error
	for _, nt := range c.cache {
		if err := nt.close(); err != nil && first == nil {
			first = err
		}
	}
	c.cache = make(map[string]*Nonterminal)
	return first
}
