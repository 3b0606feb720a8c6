package messaging

import (
	"context"
	"sync"

	"github.com/aunum/log"

	"github.com/boristopalov/armtrain/pkg/core"
	"github.com/boristopalov/armtrain/pkg/memory"
)

// ProgressReport is emitted every N episodes.
type ProgressReport struct {
	Episodes    int
	Timesteps   int64
	MeanReward  float64
	MeanLength  float64
	SuccessRate float64
}

// Progress listens for episode summaries and reports rolling statistics.
type Progress struct {
	id      string
	every   int
	rewards *memory.Window
	lengths *memory.Window
	success *memory.Window
	ch      chan Message
	report  func(ProgressReport)

	mu       sync.Mutex
	episodes int
	last     ProgressReport
	done     chan struct{}
}

type ProgressOption func(*Progress)

// WithReportFunc replaces the default log output.
func WithReportFunc(fn func(ProgressReport)) ProgressOption {
	return func(p *Progress) {
		p.report = fn
	}
}

// WithWindow sets how many recent episodes the averages cover.
func WithWindow(n int) ProgressOption {
	return func(p *Progress) {
		p.rewards = memory.NewWindow(n)
		p.lengths = memory.NewWindow(n)
		p.success = memory.NewWindow(n)
	}
}

func NewProgress(id string, every int, opts ...ProgressOption) *Progress {
	if every < 1 {
		every = 1
	}
	p := &Progress{
		id:      id,
		every:   every,
		rewards: memory.NewWindow(100),
		lengths: memory.NewWindow(100),
		success: memory.NewWindow(100),
		ch:      make(chan Message, 256),
		report:  logReport,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func logReport(r ProgressReport) {
	log.Infof("episodes=%d timesteps=%d mean_reward=%.3f mean_length=%.1f success_rate=%.2f",
		r.Episodes, r.Timesteps, r.MeanReward, r.MeanLength, r.SuccessRate)
}

// Start subscribes to episode messages and handles them until ctx is done
// or Stop is called.
func (p *Progress) Start(ctx context.Context, broker Broker) error {
	if err := broker.Subscribe(p.id, p.ch, TopicEpisode); err != nil {
		return err
	}
	go func() {
		defer close(p.done)
		for {
			select {
			case msg, ok := <-p.ch:
				if !ok {
					return
				}
				p.handle(msg)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Stop unsubscribes, drains pending messages and waits for the handler.
func (p *Progress) Stop(broker Broker) {
	if err := broker.Unsubscribe(p.id); err != nil {
		log.Debugf("progress unsubscribe: %v", err)
	}
	close(p.ch)
	<-p.done
}

func (p *Progress) handle(msg Message) {
	summary, ok := msg.Content.(core.EpisodeSummary)
	if !ok {
		return
	}

	p.rewards.Push(summary.Reward)
	p.lengths.Push(float64(summary.Length))
	if summary.Success {
		p.success.Push(1)
	} else {
		p.success.Push(0)
	}

	p.mu.Lock()
	p.episodes++
	p.last = ProgressReport{
		Episodes:    p.episodes,
		Timesteps:   summary.Timesteps,
		MeanReward:  p.rewards.Mean(),
		MeanLength:  p.lengths.Mean(),
		SuccessRate: p.success.Mean(),
	}
	report := p.last
	due := p.episodes%p.every == 0
	p.mu.Unlock()

	if due {
		p.report(report)
	}
}

// Last returns the most recent statistics, reported or not.
func (p *Progress) Last() ProgressReport {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}
