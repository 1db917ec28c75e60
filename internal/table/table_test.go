package table

import (
	"compress/gzip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"txmb/internal/record"
)

// stubLookup maps organism names to fixed taxon ID lists.
type stubLookup struct {
	ids map[string][]int
	err error
}

func (s *stubLookup) SuggestTaxIDs(_ context.Context, name string) ([]int, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.ids[name], nil
}

func writeGzip(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	gz := gzip.NewWriter(f)
	if _, err := gz.Write([]byte(content)); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
}

const validHeader = "local_identifier\tinsdc_sequence_accession\tinsdc_sequence_range\tlocal_organism_name\tlocal_lineage\tncbi_tax_id"

func TestValidateValidTable(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "valid.tsv.gz")
	writeGzip(t, path, validHeader+"\n"+
		"seq1\tAB123456\t1..100\tHomo sapiens\tEukaryota; Metazoa\t9606\n"+
		"seq2\t\t\tMus musculus\t\t10090\n")

	lookup := &stubLookup{ids: map[string][]int{
		"Homo sapiens": {9606, 63221},
		"Mus musculus": {10090},
	}}
	errs, identifiers := Validate(context.Background(), path, nil, true, lookup)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(identifiers) != 2 || identifiers[0] != "seq1" || identifiers[1] != "seq2" {
		t.Fatalf("unexpected identifiers: %v", identifiers)
	}
}

func TestValidateMissingFile(t *testing.T) {
	errs, identifiers := Validate(context.Background(), "/nonexistent/x.tsv.gz", nil, false, nil)
	if len(errs) != 1 || !strings.Contains(errs[0], "could not be found") {
		t.Fatalf("expected structural error, got %v", errs)
	}
	if len(identifiers) != 0 {
		t.Fatalf("expected no identifiers, got %v", identifiers)
	}
}

func TestValidateMissingMandatoryColumnAbortsRows(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "missing_id_col.tsv.gz")
	header := strings.Replace(validHeader, "local_identifier\t", "", 1)
	writeGzip(t, path, header+"\n"+
		"AB123456\t1..100\tHomo sapiens\tEukaryota\t9606\n")

	errs, identifiers := Validate(context.Background(), path, nil, true, &stubLookup{})
	if len(errs) == 0 {
		t.Fatalf("expected header errors")
	}
	found := false
	for _, e := range errs {
		if strings.Contains(e, "'local_identifier'") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a missing local_identifier header error, got %v", errs)
	}
	if len(identifiers) != 0 {
		t.Fatalf("rows must not be processed without the full schema, got %v", identifiers)
	}
}

func TestValidateDuplicateIdentifiers(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "dups.tsv.gz")
	writeGzip(t, path, validHeader+"\n"+
		"seq1\t\t\tHomo sapiens\t\t9606\n"+
		"seq1\t\t\tHomo sapiens\t\t9606\n")

	lookup := &stubLookup{ids: map[string][]int{"Homo sapiens": {9606}}}
	errs, identifiers := Validate(context.Background(), path, nil, true, lookup)
	if len(errs) != 1 || !strings.Contains(errs[0], "duplicate local identifiers") {
		t.Fatalf("expected one duplicate summary error, got %v", errs)
	}
	if len(identifiers) != 2 {
		t.Fatalf("both rows must contribute identifiers, got %v", identifiers)
	}
}

func TestValidateRowErrorsAreLineTagged(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "badrow.tsv.gz")
	writeGzip(t, path, validHeader+"\n"+
		"seq1\t\t\tHomo sapiens\t\t9606\n"+
		"bad id!\t\t\tHomo sapiens\t\t9606\n")

	lookup := &stubLookup{ids: map[string][]int{"Homo sapiens": {9606}}}
	errs, identifiers := Validate(context.Background(), path, nil, true, lookup)
	if len(errs) == 0 {
		t.Fatalf("expected identifier errors")
	}
	for _, e := range errs {
		if !strings.HasPrefix(e, "Metadata Table Line 2: ") {
			t.Fatalf("expected line 2 prefix, got %q", e)
		}
	}
	// invalid rows still contribute their identifier
	if len(identifiers) != 2 || identifiers[1] != "bad id!" {
		t.Fatalf("unexpected identifiers: %v", identifiers)
	}
}

func TestValidateColumnCount(t *testing.T) {
	contract := []record.CustomColumn{{Name: "Annotation", Description: "d"}}
	input := append(append([]string(nil), MandatoryHeaders...), "Annotation")
	if errs := ValidateColumnCount(MandatoryHeaders, input, contract); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if errs := ValidateColumnCount(MandatoryHeaders, MandatoryHeaders, contract); len(errs) != 1 {
		t.Fatalf("expected a count mismatch, got %v", errs)
	}
}

func TestValidateMandatoryHeaders(t *testing.T) {
	input := append(append([]string(nil), MandatoryHeaders...), "Extra One", "Extra Two")
	errs, custom := ValidateMandatoryHeaders(input, MandatoryHeaders)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(custom) != 2 || custom[0] != "Extra One" {
		t.Fatalf("unexpected custom headers: %v", custom)
	}

	missing := []string{"local_identifier", "insdc_sequence_accession", "local_lineage", "ncbi_tax_id"}
	errs, _ = ValidateMandatoryHeaders(missing, MandatoryHeaders)
	// two per-header errors plus the summary
	if len(errs) != 3 {
		t.Fatalf("expected 3 errors, got %v", errs)
	}
}

func TestReconcileCustomColumns(t *testing.T) {
	contract := []record.CustomColumn{
		{Name: "Annotation", Description: "Source of annotation"},
		{Name: "ITSoneDB URL", Description: "URL within ITSoneDB"},
	}

	if errs := ReconcileCustomColumns(nil, nil); len(errs) != 0 {
		t.Fatalf("both empty must be valid, got %v", errs)
	}
	errs := ReconcileCustomColumns([]string{"Annotation"}, nil)
	if len(errs) != 1 || !strings.Contains(errs[0], "without being defined") {
		t.Fatalf("expected undeclared-usage error, got %v", errs)
	}
	errs = ReconcileCustomColumns(nil, contract)
	if len(errs) != 1 || !strings.Contains(errs[0], "without being used") {
		t.Fatalf("expected declared-but-unused error, got %v", errs)
	}
	if errs := ReconcileCustomColumns([]string{"ITSoneDB URL", "Annotation"}, contract); len(errs) != 0 {
		t.Fatalf("matching sets must be valid, got %v", errs)
	}
}

func TestReconcileCustomColumnsPartialOverlap(t *testing.T) {
	contract := []record.CustomColumn{
		{Name: "Annotation", Description: "d1"},
		{Name: "ITSoneDB URL", Description: "d2"},
	}
	errs := ReconcileCustomColumns([]string{"Annotation"}, contract)
	// count mismatch plus the absent contract column, as separate messages
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %v", errs)
	}
	if !strings.Contains(errs[0], "mismatched") {
		t.Fatalf("expected count mismatch first, got %q", errs[0])
	}
	if !strings.Contains(errs[1], "ITSoneDB URL") {
		t.Fatalf("expected missing column named, got %q", errs[1])
	}

	errs = ReconcileCustomColumns([]string{"Annotation", "ITSoneDB URL", "Rogue"}, contract)
	found := false
	for _, e := range errs {
		if strings.Contains(e, "not defined in the metadata record") && strings.Contains(e, "Rogue") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected leftover table header reported, got %v", errs)
	}
}

func TestValidateIdentifier(t *testing.T) {
	if errs := ValidateIdentifier("ITS1DB00887249"); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	errs := ValidateIdentifier("")
	if len(errs) != 1 || !strings.Contains(errs[0], "null") {
		t.Fatalf("expected null error, got %v", errs)
	}
	if errs := ValidateIdentifier(strings.Repeat("a", 51)); len(errs) != 1 {
		t.Fatalf("expected length error, got %v", errs)
	}
	if errs := ValidateIdentifier("bad id"); len(errs) != 1 {
		t.Fatalf("expected regex error, got %v", errs)
	}
}

func TestValidateInsdcSequenceAccession(t *testing.T) {
	errs, present := ValidateInsdcSequenceAccession("")
	if len(errs) != 0 || present {
		t.Fatalf("empty accession must be valid and absent, got %v %v", errs, present)
	}
	errs, present = ValidateInsdcSequenceAccession("AB123456")
	if len(errs) != 0 || !present {
		t.Fatalf("valid accession, got %v %v", errs, present)
	}
	errs, present = ValidateInsdcSequenceAccession("not-an-accession")
	if len(errs) != 1 || !present {
		t.Fatalf("invalid accession still counts as present, got %v %v", errs, present)
	}
}

func TestValidateInsdcSequenceRange(t *testing.T) {
	if errs := ValidateInsdcSequenceRange("", false); len(errs) != 0 {
		t.Fatalf("empty range must be valid, got %v", errs)
	}
	if errs := ValidateInsdcSequenceRange("10..20", true); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if errs := ValidateInsdcSequenceRange("<1..>500", true); len(errs) != 0 {
		t.Fatalf("partial markers must be allowed, got %v", errs)
	}
	// range without accession: exactly one error when the range itself is fine
	errs := ValidateInsdcSequenceRange("10..20", false)
	if len(errs) != 1 || !strings.Contains(errs[0], "no accession specified") {
		t.Fatalf("expected range-without-accession error, got %v", errs)
	}
	// malformed range without accession: both errors
	if errs := ValidateInsdcSequenceRange("abc", false); len(errs) != 2 {
		t.Fatalf("expected both errors, got %v", errs)
	}
}

func TestResolveExpectedTaxonIDs(t *testing.T) {
	ctx := context.Background()
	lookup := &stubLookup{ids: map[string][]int{"Homo sapiens": {9606, 63221}}}

	errs, expected := ResolveExpectedTaxonIDs(ctx, "Homo sapiens", true, lookup)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if _, ok := expected[9606]; !ok {
		t.Fatalf("expected 9606 in the set, got %v", expected)
	}

	errs, expected = ResolveExpectedTaxonIDs(ctx, "", true, lookup)
	if len(errs) != 1 || len(expected) != 0 {
		t.Fatalf("expected empty-name error, got %v %v", errs, expected)
	}

	errs, expected = ResolveExpectedTaxonIDs(ctx, "Vulpes vulpes", true, &stubLookup{err: errors.New("dial tcp: timeout")})
	if len(errs) != 1 || !strings.Contains(errs[0], "internet connection") || len(expected) != 0 {
		t.Fatalf("expected connection error, got %v %v", errs, expected)
	}

	errs, expected = ResolveExpectedTaxonIDs(ctx, "Madeupicus namium", true, &stubLookup{})
	if len(errs) != 1 || !strings.Contains(errs[0], "No appropriate matches") || len(expected) != 0 {
		t.Fatalf("expected no-match error, got %v %v", errs, expected)
	}

	errs, expected = ResolveExpectedTaxonIDs(ctx, "Homo sapiens", true, nil)
	if len(errs) != 1 || !strings.Contains(errs[0], "internet connection") {
		t.Fatalf("nil lookup must act as unreachable, got %v %v", errs, expected)
	}
}

func TestResolveExpectedTaxonIDsNonNcbi(t *testing.T) {
	ctx := context.Background()
	errs, expected := ResolveExpectedTaxonIDs(ctx, "Homo sapiens", false, nil)
	if len(errs) != 0 || len(expected) != 0 {
		t.Fatalf("binomial name without ncbi must pass with no IDs, got %v %v", errs, expected)
	}
	errs, _ = ResolveExpectedTaxonIDs(ctx, "nonamepattern", false, nil)
	if len(errs) != 1 || !strings.Contains(errs[0], "does not appear to be valid") {
		t.Fatalf("expected name format error, got %v", errs)
	}
}

func TestValidateNcbiTaxID(t *testing.T) {
	expected := map[int]struct{}{9606: {}}

	if errs := ValidateNcbiTaxID("9606", expected, true, "Homo sapiens"); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	errs := ValidateNcbiTaxID("12345", expected, true, "Homo sapiens")
	if len(errs) != 1 || !strings.Contains(errs[0], "does not appear to match") {
		t.Fatalf("expected mismatch error, got %v", errs)
	}
	// empty ID with NCBI in use is a normal non-member
	if errs := ValidateNcbiTaxID("", expected, true, "Homo sapiens"); len(errs) != 1 {
		t.Fatalf("expected non-member error for empty ID, got %v", errs)
	}
	// without NCBI taxonomy, supplying an ID is itself the error
	errs = ValidateNcbiTaxID("9606", nil, false, "Homo sapiens")
	if len(errs) != 1 || !strings.Contains(errs[0], "not indicated to be using this database") {
		t.Fatalf("expected id-without-taxonomy error, got %v", errs)
	}
	if errs := ValidateNcbiTaxID("", nil, false, "Homo sapiens"); len(errs) != 0 {
		t.Fatalf("absent ID without ncbi must be fine, got %v", errs)
	}
}

func TestValidateTableWithCustomColumns(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "customs.tsv.gz")

	contract := []record.CustomColumn{{Name: "Annotation", Description: "Source of annotation"}}
	lookup := &stubLookup{ids: map[string][]int{"Homo sapiens": {9606}}}

	writeGzip(t, path, validHeader+"\tAnnotation\n"+
		"seq1\t\t\tHomo sapiens\t\t9606\tcurated\n")
	errs, identifiers := Validate(context.Background(), path, contract, true, lookup)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(identifiers) != 1 {
		t.Fatalf("unexpected identifiers: %v", identifiers)
	}
}
