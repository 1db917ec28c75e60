// Package record validates the metadata record (manifest) of a taxonomic
// reference set submission: mandatory field presence, scalar field rules,
// and derivation of the custom column contract used later against the
// metadata table.
package record

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"unicode"
)

// Recognized manifest keys. Keys are case-sensitive literal tokens.
var (
	MandatoryKeys = []string{"LOCALTAXONOMY", "REFERENCEDATASETNAME", "FASTA", "TABLE"}
	OptionalKeys  = []string{"LOCALTAXONOMYVERSION"}
)

const FieldLengthLimit = 50

var (
	characterRegex          = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	characterRegexWithSpace = regexp.MustCompile(`^[A-Za-z0-9_ ]+$`)
	taxVersionRegex         = regexp.MustCompile(`^[A-Za-z0-9_.]+$`)
)

// KV is one manifest line that did not match a recognized key, preserved in
// file order for custom column derivation.
type KV struct {
	Key   string
	Value string
}

// Record holds the parsed content of a manifest file.
type Record struct {
	Fields map[string]string
	Extras []KV
}

// CustomColumn pairs a submitter-defined column name with its description.
type CustomColumn struct {
	Name        string
	Description string
}

// ParseManifestFile opens and parses a manifest. A missing or unreadable
// file is a structural error for the record stage.
func ParseManifestFile(path string) ([]string, *Record) {
	f, err := os.Open(path)
	if err != nil {
		return []string{fmt.Sprintf("Could not find %s", path)}, &Record{Fields: map[string]string{}}
	}
	defer f.Close()
	return ParseManifest(f)
}

// ParseManifest reads KEY<whitespace>VALUE lines from r. A mandatory key on
// a line with no value is terminal for the stage; any other unsplittable
// line is skipped. Unrecognized keys are kept in order as Extras.
func ParseManifest(r io.Reader) ([]string, *Record) {
	rec := &Record{Fields: map[string]string{}}
	var errs []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRightFunc(scanner.Text(), unicode.IsSpace)
		if line == "" {
			continue
		}
		key, value, ok := splitManifestLine(line)
		if !ok {
			if contains(MandatoryKeys, key) {
				errs = append(errs, "The following metadata record line could not be "+
					"processed. This may be malformed, or a mandatory value was "+
					"not supplied:\n"+line)
				return errs, rec
			}
			continue
		}
		switch {
		case contains(MandatoryKeys, key), contains(OptionalKeys, key):
			rec.Fields[key] = value
		default:
			rec.Extras = append(rec.Extras, KV{Key: key, Value: value})
		}
	}
	if err := scanner.Err(); err != nil {
		errs = append(errs, fmt.Sprintf("Could not read manifest: %v", err))
	}
	return errs, rec
}

// splitManifestLine splits a line on its first whitespace run, like a
// two-token field split. ok is false when no value follows the key.
func splitManifestLine(line string) (key, value string, ok bool) {
	i := strings.IndexFunc(line, unicode.IsSpace)
	if i < 0 {
		return line, "", false
	}
	key = line[:i]
	value = strings.TrimLeftFunc(line[i:], unicode.IsSpace)
	return key, value, value != ""
}

// Validate runs every record-level check. When a mandatory field is absent
// the presence errors are returned alone: later checks assume the field
// exists. The returned contract preserves manifest declaration order, and
// ncbiTax reports whether NCBI taxonomy is in use for this submission.
func Validate(rec *Record) (errs []string, contract []CustomColumn, ncbiTax bool) {
	presence := ValidateMandatoryFields(rec.Fields)
	if len(presence) > 0 {
		return presence, nil, false
	}

	errs = append(errs, ValidateDatasetName(rec.Fields["REFERENCEDATASETNAME"])...)

	taxErrs, ncbiTax := ValidateLocalTaxonomy(rec.Fields["LOCALTAXONOMY"])
	errs = append(errs, taxErrs...)

	if v, present := rec.Fields["LOCALTAXONOMYVERSION"]; present {
		errs = append(errs, ValidateLocalTaxonomyVersion(v)...)
	}

	if len(rec.Extras) > 0 {
		genErrs, cols := DeriveCustomColumns(rec.Extras)
		errs = append(errs, genErrs...)
		errs = append(errs, ValidateCustomColumns(cols)...)
		contract = cols
	}

	return errs, contract, ncbiTax
}

// ValidateMandatoryFields checks every mandatory manifest key is present.
func ValidateMandatoryFields(fields map[string]string) []string {
	var errs []string
	for _, required := range MandatoryKeys {
		if _, ok := fields[required]; !ok {
			errs = append(errs, fmt.Sprintf("Required field '%s' not found in metadata record", required))
		}
	}
	return errs
}

// ValidateLocalTaxonomy validates the taxonomy system name and reports
// whether it denotes NCBI taxonomy. An empty value short-circuits with an
// empty-mandatory-field error; the NCBI flag is computed regardless of any
// format errors.
func ValidateLocalTaxonomy(localTaxonomy string) ([]string, bool) {
	const fieldName = "local_taxonomy"
	var errs []string

	if localTaxonomy == "" {
		return []string{emptyMandatoryValueError(fieldName)}, false
	}

	if !characterRegex.MatchString(localTaxonomy) {
		errs = append(errs, regexMismatchError(fieldName, characterRegex))
	}
	if len(localTaxonomy) > FieldLengthLimit {
		errs = append(errs, fieldLengthError(fieldName))
	}

	ncbiTax := strings.EqualFold(strings.TrimSpace(localTaxonomy), "NCBI")
	return errs, ncbiTax
}

// ValidateLocalTaxonomyVersion validates the optional taxonomy version.
// Empty input is valid.
func ValidateLocalTaxonomyVersion(version string) []string {
	const fieldName = "local_taxonomy_version"
	var errs []string

	if version == "" {
		return errs
	}
	if !taxVersionRegex.MatchString(version) {
		errs = append(errs, regexMismatchError(fieldName, taxVersionRegex))
	}
	if len(version) > FieldLengthLimit {
		errs = append(errs, fieldLengthError(fieldName))
	}
	return errs
}

// ValidateDatasetName validates the user-defined submission name. An empty
// name fails the character regex like any other mismatch.
func ValidateDatasetName(name string) []string {
	const fieldName = "reference_dataset_name"
	var errs []string

	if !characterRegex.MatchString(name) {
		errs = append(errs, regexMismatchError(fieldName, characterRegex))
	}
	if len(name) > FieldLengthLimit {
		errs = append(errs, fieldLengthError(fieldName))
	}
	return errs
}

// DeriveCustomColumns builds the custom column contract from the manifest's
// unrecognized lines, expected to pair as CUSTOMCOLUMNHEADER{n} and
// CUSTOMCOLUMNHEADER{n}DESCRIPTION for n = 1 upward. An odd number of lines
// is a structural error but derivation continues best-effort; a pair with a
// missing half is reported and skipped.
func DeriveCustomColumns(extras []KV) ([]string, []CustomColumn) {
	var errs []string
	var cols []CustomColumn

	if len(extras)%2 != 0 {
		errs = append(errs, "Custom columns do not all have definitions")
	}

	byKey := make(map[string]string, len(extras))
	for _, kv := range extras {
		byKey[kv.Key] = kv.Value
	}

	for i := 1; i <= len(extras)/2; i++ {
		nameKey := fmt.Sprintf("CUSTOMCOLUMNHEADER%d", i)
		descKey := nameKey + "DESCRIPTION"

		name, nameOK := byKey[nameKey]
		desc, descOK := byKey[descKey]
		if !nameOK {
			errs = append(errs, missingCustomColumnLineError(nameKey))
		}
		if !descOK {
			errs = append(errs, missingCustomColumnLineError(descKey))
		}
		if !nameOK || !descOK {
			continue
		}
		cols = append(cols, CustomColumn{Name: name, Description: desc})
	}

	return errs, cols
}

// ValidateCustomColumns checks each contract entry's name and description
// against the space-permitting character rules and the length limit.
func ValidateCustomColumns(cols []CustomColumn) []string {
	var errs []string
	for _, col := range cols {
		fieldName := "Custom Column: " + col.Name
		fieldDesc := "Column Description: " + col.Description

		if !characterRegexWithSpace.MatchString(col.Name) {
			errs = append(errs, regexMismatchError(fieldName, characterRegexWithSpace))
		}
		if !characterRegexWithSpace.MatchString(col.Description) {
			errs = append(errs, regexMismatchError(fieldDesc, characterRegexWithSpace))
		}
		if len(col.Name) > FieldLengthLimit {
			errs = append(errs, fieldLengthError(fieldName))
		}
		if len(col.Description) > FieldLengthLimit {
			errs = append(errs, fieldLengthError(fieldDesc))
		}
	}
	return errs
}

func regexMismatchError(fieldName string, re *regexp.Regexp) string {
	return fmt.Sprintf("Value entered for '%s' does not match regex '%s'", fieldName, re.String())
}

func fieldLengthError(fieldName string) string {
	return fmt.Sprintf("Value entered for '%s' exceeds character length limit of %d", fieldName, FieldLengthLimit)
}

func emptyMandatoryValueError(fieldName string) string {
	return fmt.Sprintf("No value was given for mandatory field '%s'", fieldName)
}

func missingCustomColumnLineError(key string) string {
	return fmt.Sprintf("Expected to find line '%s' in manifest file", key)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
