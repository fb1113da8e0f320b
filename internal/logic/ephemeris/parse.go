// Package ephemeris fetches and parses Horizons observer tables.
package ephemeris

import (
	"strconv"
	"strings"
	"time"

	"github.com/cjeanneret/skytrack/internal/debug"
	"github.com/cjeanneret/skytrack/internal/logic/astro"
)

// Markers delimiting the data rows of a Horizons table.
const (
	BeginMarker = "$$SOE"
	EndMarker   = "$$EOE"
)

// TimeLayout is the Horizons calendar timestamp format (UTC).
const TimeLayout = "2006-Jan-02 15:04"

// Sample is one ephemeris row.
type Sample = astro.Equatorial

// ParseOptions selects the CSV columns holding RA and Dec.
type ParseOptions struct {
	ColumnRA  int
	ColumnDec int
}

// DefaultParseOptions match QUANTITIES='2' with CSV_FORMAT=YES.
var DefaultParseOptions = ParseOptions{ColumnRA: 3, ColumnDec: 4}

// Result holds the parsed samples, in input order, and the number of
// rows inside the markers that could not be parsed.
type Result struct {
	Samples   []Sample
	Malformed int
}

// Parse extracts samples from raw Horizons text. Rows outside
// $$SOE/$$EOE are ignored. Without $$SOE nothing is parsed; without
// $$EOE rows run to the end of the text.
func Parse(raw string, opts ParseOptions) Result {
	if opts.ColumnRA <= 0 {
		opts.ColumnRA = DefaultParseOptions.ColumnRA
	}
	if opts.ColumnDec <= 0 {
		opts.ColumnDec = DefaultParseOptions.ColumnDec
	}
	minCols := max(opts.ColumnRA, opts.ColumnDec) + 1

	var res Result
	inside := false
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if !inside {
			if strings.HasPrefix(line, BeginMarker) {
				inside = true
			}
			continue
		}
		if strings.HasPrefix(line, EndMarker) {
			break
		}
		s, ok := parseRow(line, opts, minCols)
		if !ok {
			res.Malformed++
			continue
		}
		res.Samples = append(res.Samples, s)
	}

	debug.Verbose("Parsed %d ephemeris samples (%d malformed rows)", len(res.Samples), res.Malformed)
	return res
}

func parseRow(line string, opts ParseOptions, minCols int) (Sample, bool) {
	if line == "" {
		return Sample{}, false
	}
	cols := strings.Split(line, ",")
	if len(cols) < minCols {
		return Sample{}, false
	}
	ts, err := time.ParseInLocation(TimeLayout, strings.TrimSpace(cols[0]), time.UTC)
	if err != nil {
		return Sample{}, false
	}
	ra, err := strconv.ParseFloat(strings.TrimSpace(cols[opts.ColumnRA]), 64)
	if err != nil {
		return Sample{}, false
	}
	dec, err := strconv.ParseFloat(strings.TrimSpace(cols[opts.ColumnDec]), 64)
	if err != nil {
		return Sample{}, false
	}
	return Sample{UTC: ts, RADeg: ra, DecDeg: dec}, true
}
