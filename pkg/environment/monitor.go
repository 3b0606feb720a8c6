package environment

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/aunum/log"

	"github.com/boristopalov/armtrain/pkg/core"
)

// MonitorHeader is the column row that follows the metadata line.
var MonitorHeader = []string{"r", "l", "t"}

// MonitorMeta is written as a JSON comment on the first line.
type MonitorMeta struct {
	TStart float64 `json:"t_start"`
	EnvID  string  `json:"env_id"`
	RunID  string  `json:"run_id,omitempty"`
}

// Monitor wraps an Env and logs episode reward, length and elapsed time to
// a CSV file. When an episode ends, the step info gets an "episode" entry
// with the same values.
type Monitor struct {
	Env

	file   *os.File
	writer *csv.Writer
	start  time.Time

	reward float64
	length int
}

// NewMonitor wraps env. An empty path disables the file but keeps the
// episode info.
func NewMonitor(env Env, path string, runID string) (*Monitor, error) {
	m := &Monitor{Env: env, start: time.Now()}
	if path == "" {
		return m, nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create monitor directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create monitor file: %w", err)
	}

	meta, err := json.Marshal(MonitorMeta{
		TStart: float64(m.start.UnixNano()) / 1e9,
		EnvID:  env.ID(),
		RunID:  runID,
	})
	if err != nil {
		f.Close()
		return nil, err
	}
	if _, err := fmt.Fprintf(f, "#%s\n", meta); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write monitor header: %w", err)
	}

	m.file = f
	m.writer = csv.NewWriter(f)
	if err := m.writeRow(MonitorHeader); err != nil {
		f.Close()
		return nil, err
	}
	return m, nil
}

func (m *Monitor) Reset() (core.Observation, core.Info) {
	m.reward = 0
	m.length = 0
	return m.Env.Reset()
}

func (m *Monitor) Step(action []float64) StepResult {
	res := m.Env.Step(action)
	m.reward += res.Reward
	m.length++

	if res.Done() {
		elapsed := time.Since(m.start).Seconds()
		if res.Info == nil {
			res.Info = core.Info{}
		}
		res.Info[core.InfoEpisode] = core.Info{"r": m.reward, "l": m.length, "t": elapsed}

		if m.writer != nil {
			row := []string{
				strconv.FormatFloat(m.reward, 'f', 6, 64),
				strconv.Itoa(m.length),
				strconv.FormatFloat(elapsed, 'f', 6, 64),
			}
			if err := m.writeRow(row); err != nil {
				log.Warningf("monitor %s: %v", m.ID(), err)
			}
		}
	}
	return res
}

func (m *Monitor) writeRow(row []string) error {
	if err := m.writer.Write(row); err != nil {
		return fmt.Errorf("failed to write monitor row: %w", err)
	}
	m.writer.Flush()
	return m.writer.Error()
}

func (m *Monitor) Close() error {
	var err error
	if m.file != nil {
		err = m.file.Close()
		m.file = nil
		m.writer = nil
	}
	if cerr := m.Env.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
