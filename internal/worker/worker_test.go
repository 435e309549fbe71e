package worker

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/shamba/internal/behavior"
	"github.com/opensource-finance/shamba/internal/bus"
	"github.com/opensource-finance/shamba/internal/domain"
	"github.com/opensource-finance/shamba/internal/fraud"
	"github.com/opensource-finance/shamba/internal/satellite"
	"github.com/opensource-finance/shamba/internal/scoring"
)

func newScorer(t *testing.T) *scoring.Service {
	t.Helper()
	engine, err := fraud.NewEngine(domain.ServiceRegion)
	if err != nil {
		t.Fatalf("failed to create fraud engine: %v", err)
	}
	sat := satellite.NewProvider(satellite.Offline{}, domain.SatelliteConfig{})
	return scoring.NewService(sat, behavior.NewHashProvider(), engine)
}

func publishCommand(t *testing.T, b domain.EventBus, cmd domain.ScoreCommand) {
	t.Helper()
	payload, _ := json.Marshal(cmd)
	if err := b.Publish(context.Background(), domain.TopicScoreRequested, payload); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
}

func TestWorker(t *testing.T) {
	t.Run("StartAndStop", func(t *testing.T) {
		eventBus := bus.NewChannelBus(100)
		defer eventBus.Close()

		w := NewWorker(eventBus, newScorer(t))
		if err := w.Start(context.Background()); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		if !w.Stats().Running {
			t.Error("expected worker to be running")
		}
		if err := w.Start(context.Background()); err == nil {
			t.Error("expected error on second start")
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
		if w.Stats().Running {
			t.Error("expected worker to be stopped")
		}
		if err := w.Stop(); err != nil {
			t.Errorf("second Stop failed: %v", err)
		}
	})

	t.Run("ScoresAndPublishes", func(t *testing.T) {
		eventBus := bus.NewChannelBus(100)
		defer eventBus.Close()

		computed := make(chan domain.ScoreEvent, 1)
		eventBus.Subscribe(context.Background(), domain.TopicScoreComputed, func(ctx context.Context, msg *domain.Message) error {
			var ev domain.ScoreEvent
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				return err
			}
			computed <- ev
			return nil
		})

		w := NewWorker(eventBus, newScorer(t))
		if err := w.Start(context.Background()); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		publishCommand(t, eventBus, domain.ScoreCommand{
			RequestID: "req-001",
			Request: domain.ScoreRequest{
				Identity: "+254712345678",
				Location: domain.Location{Latitude: -1.29, Longitude: 36.82},
				CropType: "maize",
			},
		})

		select {
		case ev := <-computed:
			if ev.RequestID != "req-001" {
				t.Errorf("expected request id req-001, got %s", ev.RequestID)
			}
			if ev.Result == nil || ev.Result.Identity != "254712345678" {
				t.Fatalf("unexpected result %+v", ev.Result)
			}
			if !ev.Result.SatelliteFallback {
				t.Error("expected offline fallback features")
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for score event")
		}
	})

	t.Run("FraudFlagged", func(t *testing.T) {
		eventBus := bus.NewChannelBus(100)
		defer eventBus.Close()

		var flagged atomic.Int32
		eventBus.Subscribe(context.Background(), domain.TopicFraudFlagged, func(ctx context.Context, msg *domain.Message) error {
			flagged.Add(1)
			return nil
		})

		scorer := &stubScorer{result: &domain.CreditScore{Identity: "254700000001", FraudScore: 0.8}}
		w := NewWorker(eventBus, scorer)
		if err := w.Start(context.Background()); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		publishCommand(t, eventBus, domain.ScoreCommand{RequestID: "req-002"})

		deadline := time.Now().Add(2 * time.Second)
		for flagged.Load() == 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		if flagged.Load() != 1 {
			t.Errorf("expected 1 fraud event, got %d", flagged.Load())
		}
	})

	t.Run("DropsInvalidPayload", func(t *testing.T) {
		eventBus := bus.NewChannelBus(100)
		defer eventBus.Close()

		var computed atomic.Int32
		eventBus.Subscribe(context.Background(), domain.TopicScoreComputed, func(ctx context.Context, msg *domain.Message) error {
			computed.Add(1)
			return nil
		})

		w := NewWorker(eventBus, newScorer(t))
		if err := w.Start(context.Background()); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		eventBus.Publish(context.Background(), domain.TopicScoreRequested, []byte("not json"))
		publishCommand(t, eventBus, domain.ScoreCommand{
			RequestID: "req-003",
			Request:   domain.ScoreRequest{Identity: "2547", Location: domain.Location{Latitude: 95}, CropType: "maize"},
		})

		deadline := time.Now().Add(2 * time.Second)
		for w.Stats().Dropped < 2 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		if got := w.Stats().Dropped; got != 2 {
			t.Errorf("expected 2 dropped requests, got %d", got)
		}
		if computed.Load() != 0 {
			t.Errorf("expected no score events, got %d", computed.Load())
		}
	})
}

type stubScorer struct {
	result *domain.CreditScore
}

func (s *stubScorer) Score(context.Context, domain.ScoreRequest) (*domain.CreditScore, error) {
	return s.result, nil
}

// slowScorer blocks until its context ends.
type slowScorer struct{}

func (slowScorer) Score(ctx context.Context, _ domain.ScoreRequest) (*domain.CreditScore, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestWorkerTimeout(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	w := NewWorker(eventBus, slowScorer{}, WithTimeout(20*time.Millisecond))
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	publishCommand(t, eventBus, domain.ScoreCommand{RequestID: "req-slow"})

	deadline := time.Now().Add(2 * time.Second)
	for w.Stats().Failed == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := w.Stats(); got.Failed != 1 || got.Processed != 0 {
		t.Errorf("expected one failed run, got %+v", got)
	}
}
