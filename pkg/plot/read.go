// Package plot reads the monitor and success logs written during a run and
// renders learning curves from them.
package plot

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/boristopalov/armtrain/pkg/callback"
)

var ErrNoData = errors.New("no data")

// MonitorRow is one episode from a monitor log.
type MonitorRow struct {
	Reward float64
	Length int
	Time   float64
}

// ReadMonitor parses a monitor log, skipping '#' comment lines.
func ReadMonitor(path string) ([]MonitorRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open monitor log: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read monitor log: %w", err)
	}

	records, err := csv.NewReader(strings.NewReader(b.String())).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse monitor log: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("%w in monitor log %s", ErrNoData, path)
	}

	cols, err := columns(records[0], "r", "l", "t")
	if err != nil {
		return nil, err
	}
	rows := make([]MonitorRow, 0, len(records)-1)
	for i, rec := range records[1:] {
		r, err := strconv.ParseFloat(rec[cols["r"]], 64)
		if err != nil {
			return nil, fmt.Errorf("monitor row %d: invalid reward: %w", i+1, err)
		}
		l, err := strconv.Atoi(rec[cols["l"]])
		if err != nil {
			return nil, fmt.Errorf("monitor row %d: invalid length: %w", i+1, err)
		}
		t, err := strconv.ParseFloat(rec[cols["t"]], 64)
		if err != nil {
			return nil, fmt.Errorf("monitor row %d: invalid time: %w", i+1, err)
		}
		rows = append(rows, MonitorRow{Reward: r, Length: l, Time: t})
	}
	return rows, nil
}

func columns(header []string, names ...string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	for _, n := range names {
		if _, ok := idx[n]; !ok {
			return nil, fmt.Errorf("missing column %q in header %v", n, header)
		}
	}
	return idx, nil
}

// ReadSuccess parses a success log written by callback.SuccessLogger.
func ReadSuccess(path string) ([]callback.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open success log: %w", err)
	}
	defer f.Close()
	return ParseSuccess(f)
}

func ParseSuccess(r io.Reader) ([]callback.Record, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse success log: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: missing header", ErrNoData)
	}
	if _, err := columns(records[0], callback.SuccessHeader...); err != nil {
		return nil, err
	}

	out := make([]callback.Record, 0, len(records)-1)
	for i, rec := range records[1:] {
		parsed, err := callback.ParseRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("success row %d: %w", i+1, err)
		}
		out = append(out, parsed)
	}
	return out, nil
}

// EpisodeRate is the mean success of every row logged under one episode
// index. Appended runs reuse indices, so one index can have several rows.
type EpisodeRate struct {
	Episode int
	Rate    float64
}

// SuccessByEpisode groups records by episode index, sorted by index.
func SuccessByEpisode(records []callback.Record) []EpisodeRate {
	sums := make(map[int]float64)
	counts := make(map[int]int)
	for _, r := range records {
		sums[r.Episode] += float64(r.Success)
		counts[r.Episode]++
	}
	out := make([]EpisodeRate, 0, len(sums))
	for ep, sum := range sums {
		out = append(out, EpisodeRate{Episode: ep, Rate: sum / float64(counts[ep])})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Episode < out[j].Episode
	})
	return out
}

// Summary is an aggregate over a success log.
type Summary struct {
	Episodes  int
	Successes int
	Rate      float64
	Timesteps int64
}

func Summarize(records []callback.Record) Summary {
	var s Summary
	for _, r := range records {
		s.Episodes++
		s.Successes += r.Success
		if r.Timesteps > s.Timesteps {
			s.Timesteps = r.Timesteps
		}
	}
	if s.Episodes > 0 {
		s.Rate = float64(s.Successes) / float64(s.Episodes)
	}
	return s
}
