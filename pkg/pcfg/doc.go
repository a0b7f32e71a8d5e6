/*
Package pcfg enumerates, samples and ranks password guesses drawn from a
restricted probabilistic context-free grammar trained on leaked-password
corpora.

The grammar is loaded once from a directory of structure and terminal
files (see the grammar package for formats). Terminal files are memory
mapped and stay mapped for the life of the PCFG; nonterminals are shared
across structures through a collection keyed by representation.

Enumeration walks each structure's patterns with a mixed-radix counter in
roughly descending probability order, using intelligent skipping to jump
past regions known to fall below the cutoff. Structures that repeat a
nonterminal collapse permutations of equal probability into one canonical
pattern ("pattern compaction"); the pattern then stands for
patternStrings × permutationCount guesses.

Lookups invert enumeration: a candidate string is parsed against every
structure whose class shape matches, ranked inside its pattern and its
permutation class, and the per-structure results are reduced to the best
parse.

The package is not safe for concurrent enumeration; the caller drives all
operations from one goroutine.
*/
package pcfg
