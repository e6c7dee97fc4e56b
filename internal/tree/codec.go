package tree

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/agoops/alexandrie/internal/core"
)

// Decode reads newline-terminated JSON records from r, in order. It fails
// with a MalformedRecordError carrying the 1-based line number of the first
// line that does not parse; there is no partial recovery.
func Decode(r io.Reader, name string) ([]core.Record, error) {
	var records []core.Record

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var rec core.Record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, &core.MalformedRecordError{Name: name, Line: line, Err: err}
		}
		if rec.Name == "" || rec.Version == nil {
			return nil, &core.MalformedRecordError{
				Name: name,
				Line: line,
				Err:  fmt.Errorf("record is missing its name or version"),
			}
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, &core.MalformedRecordError{Name: name, Line: line + 1, Err: err}
	}

	return records, nil
}

// Encode writes records to w, one JSON object per line, newline-terminated,
// preserving order.
func Encode(w io.Writer, records []core.Record) error {
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			return err
		}
	}
	return nil
}

// EncodeOne renders a single record as one newline-terminated line, the
// form used for appends.
func EncodeOne(rec core.Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// ReadRecords decodes the record file for name under root. A crate that has
// never been published yields a nil slice and no error.
func ReadRecords(root, name string) ([]core.Record, error) {
	f, err := os.Open(filepath.Join(root, RecordPath(name)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	return Decode(f, name)
}

// WriteRecords re-encodes the full record list for name under root. The
// encode happens in memory first so a failure never leaves a truncated file
// behind.
func WriteRecords(root, name string, records []core.Record) error {
	var buf bytes.Buffer
	if err := Encode(&buf, records); err != nil {
		return err
	}

	path := filepath.Join(root, RecordPath(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// AppendRecord appends one encoded record to the crate's file, creating it
// (and its shard directories) on first publish.
func AppendRecord(root, name string, rec core.Record) error {
	line, err := EncodeOne(rec)
	if err != nil {
		return err
	}

	path := filepath.Join(root, RecordPath(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(line)
	return err
}
