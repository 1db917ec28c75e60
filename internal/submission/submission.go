// Package submission orchestrates validation of a full taxonomic reference
// set: metadata record, then metadata table, then FASTA. Stages run in that
// fixed order and the pipeline stops at the first stage that produces
// errors, so a malformed table is never masked by FASTA output.
package submission

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"txmb/internal/fasta"
	"txmb/internal/record"
	"txmb/internal/table"
)

// Stage identifies which validation stage produced a result's errors.
type Stage string

const (
	StageRecord Stage = "metadata record"
	StageTable  Stage = "metadata table"
	StageFasta  Stage = "fasta"
	StageNone   Stage = ""
)

// Result is the outcome of validating one submission. Errors holds the
// accumulated messages of the first failing stage only.
type Result struct {
	Valid       bool
	Stage       Stage
	Errors      []string
	DatasetName string
}

// Summary renders the human-readable outcome line, mirroring what the
// validator prints after writing a report.
func (r Result) Summary(reportPath string) string {
	if r.Valid {
		return fmt.Sprintf("Taxonomic reference set '%s' validated successfully", r.DatasetName)
	}
	return fmt.Sprintf("Could not validate %s, please view error messages in %s", r.Stage, reportPath)
}

// Validator wires the stages together. Lookup may be nil to force the
// offline resolver path.
type Validator struct {
	Lookup table.Lookup
	Logger *log.Logger
}

// New returns a Validator logging through logger, or the default logger
// when nil.
func New(lookup table.Lookup, logger *log.Logger) *Validator {
	if logger == nil {
		logger = log.Default()
	}
	return &Validator{Lookup: lookup, Logger: logger}
}

// Validate runs the full pipeline for the manifest at manifestPath. The
// manifest names the table and FASTA files; the table's identifier list is
// handed to the FASTA stage for cross-matching.
func (v *Validator) Validate(ctx context.Context, manifestPath string) Result {
	parseErrs, rec := record.ParseManifestFile(manifestPath)

	datasetName := rec.Fields["REFERENCEDATASETNAME"]
	if datasetName == "" {
		datasetName = "unnamed_record"
	}

	recordErrs := parseErrs
	var contract []record.CustomColumn
	var ncbiTax bool
	if len(recordErrs) == 0 {
		recordErrs, contract, ncbiTax = record.Validate(rec)
	}
	if len(recordErrs) > 0 {
		v.Logger.Error("metadata record validation failed", "manifest", manifestPath, "errors", len(recordErrs))
		return Result{Stage: StageRecord, Errors: recordErrs, DatasetName: datasetName}
	}
	v.Logger.Info("metadata record validated", "dataset", datasetName, "ncbi_taxonomy", ncbiTax, "custom_columns", len(contract))

	tablePath := rec.Fields["TABLE"]
	tableErrs, identifiers := table.Validate(ctx, tablePath, contract, ncbiTax, v.Lookup)
	if len(tableErrs) > 0 {
		v.Logger.Error("metadata table validation failed", "table", tablePath, "errors", len(tableErrs))
		return Result{Stage: StageTable, Errors: tableErrs, DatasetName: datasetName}
	}
	v.Logger.Info("metadata table validated", "table", tablePath, "sequences", len(identifiers))

	fastaPath := rec.Fields["FASTA"]
	fastaErrs := fasta.ValidateFile(fastaPath, identifiers)
	if len(fastaErrs) > 0 {
		v.Logger.Error("fasta validation failed", "fasta", fastaPath, "errors", len(fastaErrs))
		return Result{Stage: StageFasta, Errors: fastaErrs, DatasetName: datasetName}
	}
	v.Logger.Info("fasta validated", "fasta", fastaPath)

	return Result{Valid: true, Stage: StageNone, DatasetName: datasetName}
}

// ReportFilename returns the report path for a dataset inside dir.
func ReportFilename(dir, datasetName string) string {
	return filepath.Join(dir, datasetName+".report")
}

// WriteReport writes one ERROR line per message to path.
func WriteReport(path string, errorMessages []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer f.Close()

	for _, msg := range errorMessages {
		if _, err := fmt.Fprintf(f, "ERROR: %s\n", msg); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	return nil
}
