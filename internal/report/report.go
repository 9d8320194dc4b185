// Package report renders sender tallies for terminals and files.
package report

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/sweepbox/sweepbox/internal/scan"
)

type Format int

const (
	FormatCSV Format = iota
	FormatJSON
)

func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatJSON:
		return "json"
	default:
		return "unknown"
	}
}

// ParseFormat maps a user-supplied format name onto a Format.
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatCSV, errors.Errorf("unknown report format %q", raw)
	}
}

// Top returns the n highest-count tallies. Tallies arrive already sorted by
// count; n <= 0 means no limit.
func Top(tallies []scan.SenderTally, n int) []scan.SenderTally {
	if n <= 0 || n >= len(tallies) {
		return tallies
	}
	return tallies[:n]
}

// FileCreator abstracts report file creation so callers can be tested
// without touching the filesystem.
type FileCreator interface {
	Create(name string) (io.WriteCloser, error)
}

type OSFileCreator struct{}

func (OSFileCreator) Create(name string) (io.WriteCloser, error) {
	return os.Create(name)
}

// WriteFile renders tallies into a freshly created file. A close failure is
// reported even when rendering succeeded, since buffered bytes may be lost.
func WriteFile(fc FileCreator, name string, format Format, tallies []scan.SenderTally) error {
	file, err := fc.Create(name)
	if err != nil {
		return errors.Wrapf(err, "creating report file %s", name)
	}
	if err := Write(file, format, tallies); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Write renders tallies onto w in the given format.
func Write(w io.Writer, format Format, tallies []scan.SenderTally) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, tallies)
	default:
		return writeCSV(w, tallies)
	}
}

func writeCSV(w io.Writer, tallies []scan.SenderTally) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"Sender", "Count"}); err != nil {
		return err
	}
	for _, tally := range tallies {
		if err := writer.Write([]string{tally.Address, strconv.Itoa(tally.Count)}); err != nil {
			return err
		}
	}

	// Write any buffered data to the underlying writer.
	writer.Flush()
	return writer.Error()
}

type senderRow struct {
	Sender string `json:"sender"`
	Count  int    `json:"count"`
}

func writeJSON(w io.Writer, tallies []scan.SenderTally) error {
	rows := make([]senderRow, 0, len(tallies))
	for _, tally := range tallies {
		rows = append(rows, senderRow{Sender: tally.Address, Count: tally.Count})
	}

	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err = w.Write([]byte("\n"))
	return err
}
