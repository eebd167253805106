package protein

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadRemapTable reads an identifier remap table from a CSV file of
// old-name,canonical-name pairs. Blank lines and lines starting with
// '#' are ignored. The table redirects lookups for identifiers that
// moved between naming schemes to the canonical stored name; it is
// read-only input, not a cache-management mechanism.
func LoadRemapTable(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open remap table %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = 2
	reader.Comment = '#'
	reader.TrimLeadingSpace = true

	remap := make(map[string]string)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse remap table %s: %w", path, err)
		}

		old := strings.TrimSpace(record[0])
		canonical := strings.TrimSpace(record[1])
		if old == "" || canonical == "" {
			continue
		}
		remap[old] = canonical
	}

	return remap, nil
}
