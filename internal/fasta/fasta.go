// Package fasta validates the FASTA component of a taxonomic reference set:
// a gzip-compressed file of strictly alternating identifier and sequence
// lines, cross-checked against the identifiers claimed by the metadata
// table.
package fasta

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

var (
	nucleotideRegex    = regexp.MustCompile(`^[ATCGactgRYSWKMBDHVryswkmbdhvNn]+$`)
	nonNucleotideRegex = regexp.MustCompile(`[efijlopquxzEFIJLOPQUXZ]`)
	whitespaceRegex    = regexp.MustCompile(`\s`)
)

// Ledger is the working set of table identifiers remaining to be matched
// against the FASTA file. Duplicate identifiers are held as a multiset;
// Take removes one matching entry per call.
type Ledger struct {
	order  []string
	counts map[string]int
}

// NewLedger builds a ledger from the table's identifier list.
func NewLedger(identifiers []string) *Ledger {
	l := &Ledger{counts: make(map[string]int, len(identifiers))}
	for _, id := range identifiers {
		if l.counts[id] == 0 {
			l.order = append(l.order, id)
		}
		l.counts[id]++
	}
	return l
}

// Take removes one entry matching id and reports whether a match existed.
func (l *Ledger) Take(id string) bool {
	if l.counts[id] == 0 {
		return false
	}
	l.counts[id]--
	return true
}

// Remaining returns the unmatched identifiers in first-appearance order,
// repeated once per unmatched occurrence.
func (l *Ledger) Remaining() []string {
	var out []string
	for _, id := range l.order {
		for i := 0; i < l.counts[id]; i++ {
			out = append(out, id)
		}
	}
	return out
}

// lineState is the two-state alternation the file must follow.
type lineState int

const (
	awaitingIdentifier lineState = iota
	awaitingSequence
)

// ValidateFile opens a gzip-compressed FASTA file and validates it against
// the table's identifier list. An unreadable file is a structural error for
// the stage.
func ValidateFile(path string, tableIdentifiers []string) []string {
	f, err := os.Open(path)
	if err != nil {
		return []string{fmt.Sprintf("Could not find %s", path)}
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return []string{fmt.Sprintf("Could not read %s", path)}
	}
	defer gz.Close()

	return Validate(gz, tableIdentifiers)
}

// Validate streams decompressed FASTA lines from r. Identifier lines start
// with '>'; every other line is treated as sequence. An out-of-order line
// is flagged without advancing the state machine, so a doubled ID line
// never consumes a ledger entry and a doubled sequence line never re-arms
// identifier matching.
func Validate(r io.Reader, tableIdentifiers []string) []string {
	var errs []string
	ledger := NewLedger(tableIdentifiers)
	state := awaitingIdentifier
	lineCount := 0

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		lineCount++
		line := scanner.Text()

		if strings.HasPrefix(line, ">") {
			if state != awaitingIdentifier {
				errs = append(errs, fmt.Sprintf("Two consecutive ID lines in FASTA at line %d", lineCount))
				continue
			}
			errs = append(errs, checkIdentifier(line, ledger, lineCount)...)
			state = awaitingSequence
		} else {
			if state != awaitingSequence {
				errs = append(errs, fmt.Sprintf("Two consecutive sequence lines in FASTA at line %d", lineCount))
				continue
			}
			errs = append(errs, CheckSequence(line, lineCount)...)
			state = awaitingIdentifier
		}
	}
	if err := scanner.Err(); err != nil {
		errs = append(errs, fmt.Sprintf("Could not read FASTA: %v", err))
	}

	if remaining := ledger.Remaining(); len(remaining) > 0 {
		errs = append(errs, "The following identifiers found in the metadata table "+
			"were not found in the FASTA file:\n"+strings.Join(remaining, "\n"))
	}

	if lineCount%2 != 0 {
		errs = append(errs, "Input FASTA does not contain an even number of lines")
	}

	return errs
}

// checkIdentifier extracts the raw identifier from an ID line (everything
// after the '>' in the first '|'-separated segment) and consumes it from
// the ledger.
func checkIdentifier(idLine string, ledger *Ledger, lineCount int) []string {
	var errs []string

	identifier := strings.TrimPrefix(idLine, ">")
	if i := strings.IndexByte(identifier, '|'); i >= 0 {
		identifier = identifier[:i]
	}

	if !ledger.Take(identifier) {
		errs = append(errs, fmt.Sprintf("FASTA identifier '%s' at line %d does not match anything in metadata table", identifier, lineCount))
	}
	return errs
}

// CheckSequence confirms a sequence line contains only nucleotide and IUPAC
// ambiguity characters. A failing line is diagnosed for emptiness,
// whitespace, and non-nucleotide letters; a line failing for none of those
// reasons is still reported.
func CheckSequence(sequenceLine string, lineCount int) []string {
	var errs []string

	if sequenceLine == "" {
		return append(errs, fmt.Sprintf("Sequence at line %d is null", lineCount))
	}
	if nucleotideRegex.MatchString(sequenceLine) {
		return errs
	}

	if whitespaceRegex.MatchString(sequenceLine) {
		errs = append(errs, fmt.Sprintf("Sequence at line %d contains whitespace", lineCount))
	}
	if nonNucleotideRegex.MatchString(sequenceLine) {
		errs = append(errs, fmt.Sprintf("Sequence at line %d contains non-nucleotide characters", lineCount))
	}
	if len(errs) == 0 {
		errs = append(errs, fmt.Sprintf("Sequence errors at line %d, could not be diagnosed", lineCount))
	}
	return errs
}
