package extract

import (
	"encoding/csv"
	"fmt"
	"strings"
)

// CSVExtractor validates that uploaded CSV bytes actually parse as CSV and
// passes the raw text through unchanged; row-level chunking is the
// splitter package's job, not extraction's.
type CSVExtractor struct{}

func (CSVExtractor) Supports(contentType string) bool {
	return contentType == "text/csv"
}

func (CSVExtractor) Extract(data []byte) (Result, error) {
	text := string(data)

	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return Result{}, fmt.Errorf("extract: invalid csv: %w", err)
	}
	if len(records) == 0 {
		return Result{}, fmt.Errorf("extract: csv has no rows")
	}

	var warnings []string
	if len(records) == 1 {
		warnings = append(warnings, WarnLowTextVolume)
	}

	return Result{Text: text, Engine: "csv", Warnings: warnings}, nil
}
