package symbols

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/Sumatoshi-tech/oxidize/pkg/persist"
)

// maxLineBytes bounds a single JSONL line. Function records carry full ref
// lists but no source text, so 4 MiB is generous.
const maxLineBytes = 4 * 1024 * 1024

// ReadRecords reads records from a JSONL file. Malformed lines are skipped,
// matching the scan failure policy: one bad record never aborts a load.
func ReadRecords(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open symbols file: %w", err)
	}
	defer file.Close()

	var records []Record

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec Record

		unmarshalErr := json.Unmarshal(line, &rec)
		if unmarshalErr != nil {
			continue
		}

		records = append(records, rec)
	}

	err = scanner.Err()
	if err != nil {
		return nil, fmt.Errorf("read symbols file: %w", err)
	}

	return records, nil
}

// WriteRecords atomically writes records to a JSONL file, one object per line.
func WriteRecords(path string, records []Record) error {
	return persist.WriteAtomic(path, func(w io.Writer) error {
		encoder := json.NewEncoder(w)

		for i := range records {
			encodeErr := encoder.Encode(&records[i])
			if encodeErr != nil {
				return fmt.Errorf("encode record %d: %w", records[i].ID, encodeErr)
			}
		}

		return nil
	})
}
