package callback

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/boristopalov/armtrain/pkg/core"
)

// DefaultSuccessLogPath is used when no path option is given.
const DefaultSuccessLogPath = "success_log.csv"

// SuccessHeader is the header row of a success log.
var SuccessHeader = []string{"timesteps", "episode", "success"}

var (
	ErrUnsupportedDones = errors.New("unsupported dones value")
	ErrInfosMismatch    = errors.New("infos do not line up with dones")
)

// SuccessFunc decides whether a terminal info record counts as a success.
// The returned value is coerced with Truthy.
type SuccessFunc func(info any) (any, error)

// Record is one row of a success log.
type Record struct {
	Timesteps int64
	Episode   int
	Success   int
}

// SuccessLogger appends one row per finished episode to a CSV file. It looks
// for "is_success" in the info record of the finished environment and falls
// back to a success function, then to failure.
type SuccessLogger struct {
	path        string
	successFunc SuccessFunc

	episode int
	steps   int64
}

type SuccessLoggerParams struct {
	Path        string
	SuccessFunc SuccessFunc
}

type SuccessLoggerOption func(*SuccessLoggerParams)

func WithPath(path string) SuccessLoggerOption {
	return func(p *SuccessLoggerParams) {
		p.Path = path
	}
}

func WithSuccessFunc(fn SuccessFunc) SuccessLoggerOption {
	return func(p *SuccessLoggerParams) {
		p.SuccessFunc = fn
	}
}

// NewSuccessLogger creates the log file with its header if it does not exist
// yet. An existing file is left as is, so restarted runs keep appending.
func NewSuccessLogger(opts ...SuccessLoggerOption) (*SuccessLogger, error) {
	params := &SuccessLoggerParams{Path: DefaultSuccessLogPath}
	for _, opt := range opts {
		opt(params)
	}
	if params.Path == "" {
		params.Path = DefaultSuccessLogPath
	}

	if err := ensureHeader(params.Path); err != nil {
		return nil, err
	}

	return &SuccessLogger{
		path:        params.Path,
		successFunc: params.SuccessFunc,
	}, nil
}

func ensureHeader(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create success log: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(SuccessHeader); err != nil {
		f.Close()
		return fmt.Errorf("failed to write success log header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write success log header: %w", err)
	}
	return f.Close()
}

// Path returns the log file path.
func (l *SuccessLogger) Path() string {
	return l.path
}

// Episode returns the index the next finished episode will be logged under.
func (l *SuccessLogger) Episode() int {
	return l.episode
}

// Steps returns how many times OnStep has been called.
func (l *SuccessLogger) Steps() int64 {
	return l.steps
}

// OnStep implements core.Callback. It never asks the trainer to stop.
func (l *SuccessLogger) OnStep(step *core.StepContext) (bool, error) {
	l.steps++

	infos, dones, ok, err := normalizeBatch(step.Locals)
	if err != nil {
		return true, err
	}
	if !ok {
		return true, nil
	}

	for i, done := range dones {
		if !done {
			continue
		}
		success, err := l.resolveSuccess(infos[i])
		if err != nil {
			return true, err
		}
		rec := Record{Timesteps: step.NumTimesteps, Episode: l.episode, Success: success}
		if err := l.append(rec); err != nil {
			return true, err
		}
		l.episode++
	}
	return true, nil
}

// resolveSuccess applies the fallback chain: is_success field, success
// function, failure.
func (l *SuccessLogger) resolveSuccess(info any) (int, error) {
	if record, ok := asRecord(info); ok {
		if v, found := record[core.InfoIsSuccess]; found && !isNil(v) {
			return Flag(v), nil
		}
	}
	if l.successFunc != nil {
		v, err := l.successFunc(info)
		if err != nil {
			return 0, err
		}
		return Flag(v), nil
	}
	return 0, nil
}

func (l *SuccessLogger) append(rec Record) error {
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open success log: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(rec.Row()); err != nil {
		return fmt.Errorf("failed to write success row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write success row: %w", err)
	}
	return f.Close()
}

// Row formats the record as CSV fields.
func (r Record) Row() []string {
	return []string{
		strconv.FormatInt(r.Timesteps, 10),
		strconv.Itoa(r.Episode),
		strconv.Itoa(r.Success),
	}
}

// ParseRecord parses a CSV row written by SuccessLogger.
func ParseRecord(row []string) (Record, error) {
	if len(row) != len(SuccessHeader) {
		return Record{}, fmt.Errorf("expected %d fields, got %d", len(SuccessHeader), len(row))
	}
	timesteps, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("invalid timesteps %q: %w", row[0], err)
	}
	episode, err := strconv.Atoi(row[1])
	if err != nil {
		return Record{}, fmt.Errorf("invalid episode %q: %w", row[1], err)
	}
	success, err := strconv.Atoi(row[2])
	if err != nil {
		return Record{}, fmt.Errorf("invalid success %q: %w", row[2], err)
	}
	if success != 0 && success != 1 {
		return Record{}, fmt.Errorf("success must be 0 or 1, got %d", success)
	}
	return Record{Timesteps: timesteps, Episode: episode, Success: success}, nil
}
