package splitter

import (
	"encoding/csv"
	"strings"
)

// SplitCSV groups CSV rows into chunks, repeating the header row at the top
// of each chunk so every chunk is independently interpretable once
// embedded and retrieved out of context.
func SplitCSV(data string, rowsPerChunk int) ([]string, error) {
	if rowsPerChunk <= 0 {
		rowsPerChunk = 50
	}

	reader := csv.NewReader(strings.NewReader(data))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := records[0]
	rows := records[1:]

	var chunks []string
	for start := 0; start < len(rows); start += rowsPerChunk {
		end := start + rowsPerChunk
		if end > len(rows) {
			end = len(rows)
		}
		chunks = append(chunks, renderCSVChunk(header, rows[start:end]))
	}
	if len(chunks) == 0 {
		chunks = append(chunks, renderCSVChunk(header, nil))
	}
	return chunks, nil
}

func renderCSVChunk(header []string, rows [][]string) string {
	var sb strings.Builder
	sb.WriteString(strings.Join(header, ", "))
	for _, row := range rows {
		sb.WriteString("\n")
		sb.WriteString(strings.Join(row, ", "))
	}
	return sb.String()
}
