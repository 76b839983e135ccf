package config

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// PresentToken marks a dependency in a matrix file. Any other token means
// absent.
const PresentToken = "x"

// ReadMatrix parses comma-separated rows of tokens into 0/1 rows. Blank
// lines are skipped; row lengths are checked later by the structure.
func ReadMatrix(r io.Reader) ([][]int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	var rows [][]int
	for {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read matrix row %d: %w", len(rows), err)
		}
		row := make([]int, len(fields))
		for i, token := range fields {
			if strings.TrimSpace(token) == PresentToken {
				row[i] = 1
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// LoadMatrix reads a matrix file.
func LoadMatrix(path string) ([][]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadMatrix(f)
}

// FormatMatrix renders rows back into the file form.
func FormatMatrix(rows [][]int) string {
	var b strings.Builder
	for _, row := range rows {
		for i, v := range row {
			if i > 0 {
				b.WriteByte(',')
			}
			if v == 1 {
				b.WriteString(PresentToken)
			} else {
				b.WriteString("-")
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}
