package messaging

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boristopalov/armtrain/pkg/core"
)

func TestBroker(t *testing.T) {
	t.Run("test direct message", func(t *testing.T) {
		broker := NewBroker()
		t.Cleanup(func() {
			broker.Reset()
		})
		ch1 := make(chan Message, 1)
		ch2 := make(chan Message, 1)

		require.NoError(t, broker.Subscribe("progress", ch1))
		require.NoError(t, broker.Subscribe("registry", ch2))

		msg := Message{
			Topic:     TopicRun,
			From:      "run-1",
			To:        []string{"registry"},
			Content:   "finished",
			Timestamp: time.Now(),
		}
		require.NoError(t, broker.Publish(msg))

		select {
		case received := <-ch2:
			assert.Equal(t, "run-1", received.From)
			assert.Equal(t, "finished", received.Content)
		case <-time.After(time.Second):
			t.Error("Timeout waiting for message")
		}

		select {
		case msg := <-ch1:
			t.Errorf("progress should not receive message but got: %+v", msg)
		case <-time.After(100 * time.Millisecond):
		}
	})

	t.Run("test topic filtering", func(t *testing.T) {
		broker := NewBroker()
		t.Cleanup(func() {
			broker.Reset()
		})
		episodes := make(chan Message, 1)
		everything := make(chan Message, 2)

		require.NoError(t, broker.Subscribe("episodes", episodes, TopicEpisode))
		require.NoError(t, broker.Subscribe("everything", everything))

		require.NoError(t, broker.Publish(Message{Topic: TopicRun, From: "run-1"}))
		require.NoError(t, broker.Publish(Message{Topic: TopicEpisode, From: "run-1"}))

		assert.Len(t, episodes, 1)
		assert.Len(t, everything, 2)
		got := <-episodes
		assert.Equal(t, TopicEpisode, got.Topic)
	})

	t.Run("test sender does not receive broadcast", func(t *testing.T) {
		broker := NewBroker()
		t.Cleanup(func() {
			broker.Reset()
		})
		self := make(chan Message, 1)
		other := make(chan Message, 1)
		require.NoError(t, broker.Subscribe("run-1", self))
		require.NoError(t, broker.Subscribe("progress", other))

		require.NoError(t, broker.Publish(Message{Topic: TopicEpisode, From: "run-1"}))
		assert.Len(t, self, 0)
		assert.Len(t, other, 1)
	})

	t.Run("test subscription management", func(t *testing.T) {
		broker := NewBroker()
		t.Cleanup(func() {
			broker.Reset()
		})
		ch := make(chan Message, 1)

		require.NoError(t, broker.Subscribe("progress", ch))
		assert.Error(t, broker.Subscribe("progress", ch), "duplicate subscription")
		require.NoError(t, broker.Unsubscribe("progress"))
		assert.Error(t, broker.Unsubscribe("progress"), "unsubscribing unknown subscriber")
	})

	t.Run("test channel full behavior", func(t *testing.T) {
		broker := NewBroker()
		t.Cleanup(func() {
			broker.Reset()
		})
		full := make(chan Message, 1)
		roomy := make(chan Message, 4)
		require.NoError(t, broker.Subscribe("slow", full))
		require.NoError(t, broker.Subscribe("fast", roomy))

		msg := Message{Topic: TopicEpisode, From: "run-1"}
		require.NoError(t, broker.Publish(msg))
		assert.Error(t, broker.Publish(msg))
		assert.Len(t, roomy, 2, "other subscribers still get the message")
	})
}

func TestProgress(t *testing.T) {
	broker := NewBroker()
	t.Cleanup(broker.Reset)

	var mu sync.Mutex
	var reports []ProgressReport
	p := NewProgress("progress", 2, WithWindow(2), WithReportFunc(func(r ProgressReport) {
		mu.Lock()
		defer mu.Unlock()
		reports = append(reports, r)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, p.Start(ctx, broker))

	summaries := []core.EpisodeSummary{
		{Reward: -10, Length: 10, Success: false, Timesteps: 10},
		{Reward: -2, Length: 2, Success: true, Timesteps: 12},
		{Reward: -4, Length: 4, Success: true, Timesteps: 16},
	}
	for _, s := range summaries {
		require.NoError(t, broker.Publish(Message{Topic: TopicEpisode, From: "run", Content: s}))
	}
	require.NoError(t, broker.Publish(Message{Topic: TopicEpisode, From: "run", Content: "ignored"}))
	p.Stop(broker)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reports, 1)
	assert.Equal(t, 2, reports[0].Episodes)
	assert.InDelta(t, -6.0, reports[0].MeanReward, 1e-9)
	assert.InDelta(t, 0.5, reports[0].SuccessRate, 1e-9)

	last := p.Last()
	assert.Equal(t, 3, last.Episodes)
	assert.Equal(t, int64(16), last.Timesteps)
	assert.InDelta(t, 1.0, last.SuccessRate, 1e-9)
	assert.InDelta(t, 3.0, last.MeanLength, 1e-9)
}
