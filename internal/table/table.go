// Package table validates the per-sequence metadata table: header
// reconciliation against the manifest's custom column contract, per-row
// field checks, taxon ID cross-checks, and collection of the identifier
// list used later against the FASTA file.
package table

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"txmb/internal/record"
)

// MandatoryHeaders is the fixed schema every metadata table must carry, in
// canonical order. Matching is by exact name, not position.
var MandatoryHeaders = []string{
	"local_identifier",
	"insdc_sequence_accession",
	"insdc_sequence_range",
	"local_organism_name",
	"local_lineage",
	"ncbi_tax_id",
}

const FieldLengthLimit = 50

var (
	characterRegex = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	insdcAccRegex  = regexp.MustCompile(`^[A-Z]{1,6}[0-9]{5,8}(\.[0-9])?$`)
	rangeRegex     = regexp.MustCompile(`^<?\d+\.\.>?\d+$`)
	organismRegex  = regexp.MustCompile(`^[A-Za-z]+\s.+$`)
)

// Lookup resolves an organism scientific name to candidate taxon IDs.
// Tests substitute deterministic stubs; a nil Lookup is treated as an
// unreachable service.
type Lookup interface {
	SuggestTaxIDs(ctx context.Context, name string) ([]int, error)
}

// Validate runs the full table stage: decode the gzip TSV at path, check
// headers against the mandatory schema and the custom column contract, then
// validate every row. It returns all accumulated errors and the ordered
// identifier list, which includes the identifier of every data row whether
// or not the row validated.
func Validate(ctx context.Context, path string, contract []record.CustomColumn, ncbiTax bool, lookup Lookup) ([]string, []string) {
	var errs []string
	var identifiers []string

	headers, rows, readErr := readTableFile(path)
	if readErr != "" {
		return []string{readErr}, identifiers
	}

	errs = append(errs, ValidateColumnCount(MandatoryHeaders, headers, contract)...)

	headerErrs, customHeaders := ValidateMandatoryHeaders(headers, MandatoryHeaders)
	errs = append(errs, headerErrs...)

	errs = append(errs, ReconcileCustomColumns(customHeaders, contract)...)

	if len(headerErrs) > 0 {
		// rows cannot be addressed by column without the full schema
		return errs, identifiers
	}

	index := make(map[string]int, len(headers))
	for i, h := range headers {
		index[h] = i
	}

	for i, row := range rows {
		lineNo := i + 1
		cell := func(name string) string {
			pos := index[name]
			if pos >= len(row) {
				return ""
			}
			return row[pos]
		}

		var rowErrs []string

		identifier := cell("local_identifier")
		rowErrs = append(rowErrs, ValidateIdentifier(identifier)...)
		identifiers = append(identifiers, identifier)

		accErrs, accessionPresent := ValidateInsdcSequenceAccession(cell("insdc_sequence_accession"))
		rowErrs = append(rowErrs, accErrs...)

		rowErrs = append(rowErrs, ValidateInsdcSequenceRange(cell("insdc_sequence_range"), accessionPresent)...)

		organismName := cell("local_organism_name")
		orgErrs, expectedTaxIDs := ResolveExpectedTaxonIDs(ctx, organismName, ncbiTax, lookup)
		rowErrs = append(rowErrs, orgErrs...)

		rowErrs = append(rowErrs, ValidateLocalLineage(cell("local_lineage"))...)

		rowErrs = append(rowErrs, ValidateNcbiTaxID(cell("ncbi_tax_id"), expectedTaxIDs, ncbiTax, organismName)...)

		for _, e := range rowErrs {
			errs = append(errs, fmt.Sprintf("Metadata Table Line %d: %s", lineNo, e))
		}
	}

	unique := make(map[string]struct{}, len(identifiers))
	for _, id := range identifiers {
		unique[id] = struct{}{}
	}
	if len(identifiers) != len(unique) {
		errs = append(errs, "Metadata table contains duplicate local identifiers")
	}

	return errs, identifiers
}

// readTableFile decodes the gzip-compressed tab-separated table. The first
// row is the header. A problem reading the file is a structural error
// message; the stage cannot continue past it.
func readTableFile(path string) (headers []string, rows [][]string, errMsg string) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Sprintf("File '%s' could not be found.", path)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, nil, fmt.Sprintf("File '%s' could not be read.", path)
	}
	defer gz.Close()

	records, err := decodeTSV(gz)
	if err != nil || len(records) == 0 {
		return nil, nil, fmt.Sprintf("File '%s' could not be read.", path)
	}
	return records[0], records[1:], ""
}

// ValidateColumnCount checks the table carries exactly the mandatory
// columns plus the contract's custom columns.
func ValidateColumnCount(mandatoryHeaders, inputHeaders []string, contract []record.CustomColumn) []string {
	var errs []string
	expected := len(mandatoryHeaders) + len(contract)
	if expected != len(inputHeaders) {
		errs = append(errs, fmt.Sprintf("Metadata table contains %d columns, %d were expected. "+
			"Please ensure all custom columns are defined in the metadata record.",
			len(inputHeaders), expected))
	}
	return errs
}

// ValidateMandatoryHeaders checks every mandatory header is present by
// exact match and returns the residual headers as the table's custom
// headers.
func ValidateMandatoryHeaders(inputHeaders, mandatoryHeaders []string) ([]string, []string) {
	var errs []string
	remaining := append([]string(nil), inputHeaders...)
	var found []string

	for _, mandatory := range mandatoryHeaders {
		idx := indexOf(remaining, mandatory)
		if idx < 0 {
			errs = append(errs, fmt.Sprintf("A mandatory header, '%s', could not be found in the input metadata table", mandatory))
			continue
		}
		found = append(found, mandatory)
		remaining = append(remaining[:idx], remaining[idx+1:]...)
	}

	if len(found) != len(mandatoryHeaders) {
		errs = append(errs, fmt.Sprintf("One or more mandatory headers were not found in the input table. Mandatory headers: %v", mandatoryHeaders))
	}

	return errs, remaining
}

// ReconcileCustomColumns compares the table's non-mandatory headers with
// the contract derived from the metadata record. The two directions of
// mismatch are reported separately, alongside a size mismatch when the
// counts differ.
func ReconcileCustomColumns(tableCustomHeaders []string, contract []record.CustomColumn) []string {
	var errs []string

	recordHeaders := make([]string, 0, len(contract))
	for _, col := range contract {
		recordHeaders = append(recordHeaders, col.Name)
	}

	switch {
	case len(tableCustomHeaders) == 0 && len(recordHeaders) == 0:
		return errs
	case len(tableCustomHeaders) > 0 && len(recordHeaders) == 0:
		return append(errs, "Custom columns are used in the metadata table without being defined in the metadata record")
	case len(tableCustomHeaders) == 0 && len(recordHeaders) > 0:
		return append(errs, "Custom columns are defined in the metadata record without being used in the metadata table")
	}

	tableHeaders := append([]string(nil), tableCustomHeaders...)
	sort.Strings(recordHeaders)
	sort.Strings(tableHeaders)

	if len(recordHeaders) != len(tableHeaders) {
		errs = append(errs, "Number of custom headers is mismatched between metadata record and metadata table.")
	}

	for _, header := range recordHeaders {
		idx := indexOf(tableHeaders, header)
		if idx < 0 {
			errs = append(errs, fmt.Sprintf("A custom header specified in the metadata record, does not exist in the metadata table: %s", header))
			continue
		}
		tableHeaders = append(tableHeaders[:idx], tableHeaders[idx+1:]...)
	}

	if len(tableHeaders) > 0 {
		errs = append(errs, fmt.Sprintf("One or more headers used in the metadata table were not defined in the metadata record: %v", tableHeaders))
	}

	return errs
}

// ValidateIdentifier checks an internal sequence identifier. A null
// identifier short-circuits.
func ValidateIdentifier(identifier string) []string {
	var errs []string

	if identifier == "" {
		return append(errs, "Sequence identifier is null")
	}
	if len(identifier) > FieldLengthLimit {
		errs = append(errs, fmt.Sprintf("Sequence identifier is too long (>%d): %s", FieldLengthLimit, identifier))
	}
	if !characterRegex.MatchString(identifier) {
		errs = append(errs, fmt.Sprintf("Sequence identifier %s does not match regular expression %s", identifier, characterRegex.String()))
	}
	return errs
}

// ValidateInsdcSequenceAccession checks an INSDC accession. Null input is
// allowed; an invalid accession still counts as present for range
// validation.
func ValidateInsdcSequenceAccession(accession string) ([]string, bool) {
	var errs []string

	if accession == "" {
		return errs, false
	}
	if !insdcAccRegex.MatchString(accession) {
		errs = append(errs, fmt.Sprintf("%s does not appear to be a valid INSDC sequence accession", accession))
	}
	return errs, true
}

// ValidateInsdcSequenceRange checks an INSDC sequence range. Null input is
// allowed. A range given without an accession is an error in addition to
// the format check.
func ValidateInsdcSequenceRange(sequenceRange string, accessionPresent bool) []string {
	var errs []string

	if sequenceRange == "" {
		return errs
	}
	if !accessionPresent {
		errs = append(errs, fmt.Sprintf("An accession range %s was given for a record with no accession specified", sequenceRange))
	}
	if !rangeRegex.MatchString(sequenceRange) {
		errs = append(errs, fmt.Sprintf("'%s' is not a valid sequence range", sequenceRange))
	}
	return errs
}

// ResolveExpectedTaxonIDs validates the organism name and, when NCBI
// taxonomy is in use, resolves it to the set of taxon IDs the suggestion
// service associates with it. Lookup failures are local errors; the caller
// proceeds with an empty expected set.
func ResolveExpectedTaxonIDs(ctx context.Context, organismName string, ncbiTax bool, lookup Lookup) ([]string, map[int]struct{}) {
	var errs []string
	expected := make(map[int]struct{})

	if organismName == "" {
		return append(errs, "No organism name has been given for this record"), expected
	}

	if !ncbiTax {
		if !organismRegex.MatchString(organismName) {
			errs = append(errs, fmt.Sprintf("Name '%s' does not appear to be valid. Names should match %s", organismName, organismRegex.String()))
		}
		return errs, expected
	}

	if lookup == nil {
		return append(errs, "Could not check NCBI tax ID because there is no accessible internet connection"), expected
	}

	ids, err := lookup.SuggestTaxIDs(ctx, organismName)
	if err != nil {
		return append(errs, "Could not check NCBI tax ID because there is no accessible internet connection"), expected
	}
	if len(ids) == 0 {
		return append(errs, fmt.Sprintf("No appropriate matches for %s were found in NCBI taxonomy", organismName)), expected
	}
	for _, id := range ids {
		expected[id] = struct{}{}
	}
	return errs, expected
}

// ValidateLocalLineage makes minimal checks of the organism lineage. Null
// input is allowed and content is not checked against the organism name.
func ValidateLocalLineage(lineage string) []string {
	return nil
}

// ValidateNcbiTaxID cross-checks the row's taxon ID against the expected
// set. Without NCBI taxonomy in use, supplying an ID at all is the error.
func ValidateNcbiTaxID(inputTaxID string, expected map[int]struct{}, ncbiTax bool, organismName string) []string {
	var errs []string

	if !ncbiTax {
		if inputTaxID != "" {
			errs = append(errs, fmt.Sprintf("An NCBI Tax ID was specified (%s) but the submission is not indicated to be using this database.", inputTaxID))
		}
		return errs
	}

	id, err := strconv.Atoi(strings.TrimSpace(inputTaxID))
	if err == nil {
		if _, ok := expected[id]; ok {
			return errs
		}
	}
	errs = append(errs, fmt.Sprintf("Specified NCBI Tax ID (%s) does not appear to match species name (%s)", inputTaxID, organismName))
	return errs
}

// decodeTSV reads tab-separated rows from r. Field counts may vary between
// rows; row validation reports the fallout.
func decodeTSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	return cr.ReadAll()
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
