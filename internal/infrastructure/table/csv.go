package table

import (
	"bytes"
	"encoding/csv"
	"errors"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func readCSV(content []byte, delimiter rune) ([][]string, rune, error) {
	content = bytes.TrimPrefix(content, utf8BOM)
	if delimiter == 0 {
		delimiter = sniffDelimiter(content)
	}

	reader := csv.NewReader(bytes.NewReader(content))
	reader.Comma = delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = false

	records, err := reader.ReadAll()
	if err != nil {
		return nil, delimiter, err
	}
	if len(records) == 0 {
		return nil, delimiter, errors.New("empty csv file")
	}
	return records, delimiter, nil
}

// sniffDelimiter picks ';' or ',' by counting them on the first line,
// ignoring quoted text.
func sniffDelimiter(content []byte) rune {
	inQuotes := false
	commas, semicolons := 0, 0
	for _, b := range content {
		switch b {
		case '"':
			inQuotes = !inQuotes
		case ',':
			if !inQuotes {
				commas++
			}
		case ';':
			if !inQuotes {
				semicolons++
			}
		case '\n':
			if !inQuotes {
				if semicolons > commas {
					return ';'
				}
				return ','
			}
		}
	}
	if semicolons > commas {
		return ';'
	}
	return ','
}

func writeCSV(records [][]string, delimiter rune) ([]byte, error) {
	if delimiter == 0 {
		delimiter = ','
	}
	var buf bytes.Buffer
	buf.Write(utf8BOM)
	w := csv.NewWriter(&buf)
	w.Comma = delimiter
	if err := w.WriteAll(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
