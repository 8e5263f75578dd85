package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/peregrine/internal/advisor"
	"github.com/opensource-finance/peregrine/internal/bus"
	"github.com/opensource-finance/peregrine/internal/cache"
	"github.com/opensource-finance/peregrine/internal/config"
	"github.com/opensource-finance/peregrine/internal/decision"
	"github.com/opensource-finance/peregrine/internal/dispatch"
	"github.com/opensource-finance/peregrine/internal/domain"
	"github.com/opensource-finance/peregrine/internal/history"
	"github.com/opensource-finance/peregrine/internal/perception"
	"github.com/opensource-finance/peregrine/internal/planner"
	"github.com/opensource-finance/peregrine/internal/repository"
	"github.com/opensource-finance/peregrine/internal/rules"
)

// noon keeps the nighttime contribution out of deterministic score
// expectations.
var noon = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, adv advisor.Advisor, pl planner.Planner) (*Engine, domain.Repository, *bus.ChannelBus) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "peregrine-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	view := history.NewView(repo, cache.NewLRUCache(100))
	perceiver := perception.NewPerceiver(view, 60*time.Second)
	scorer := rules.NewScorer(view.MerchantBlacklisted, nil)

	classifier, err := decision.NewClassifier(80, 55)
	if err != nil {
		t.Fatalf("failed to create classifier: %v", err)
	}

	b := bus.NewChannelBus(100)
	t.Cleanup(func() { b.Close() })

	topics := config.Topics{
		Transactions: domain.TopicTransactions,
		Decisions:    domain.TopicDecisions,
		Alerts:       domain.TopicAlerts,
	}
	dispatcher := dispatch.NewDispatcher(repo, b, topics)

	if adv == nil {
		adv = advisor.New(config.AdvisorConfig{Enabled: false})
	}

	return New(perceiver, scorer, adv, pl, classifier, dispatcher, repo), repo, b
}

func TestProcessAllow(t *testing.T) {
	eng, repo, b := newTestEngine(t, nil, nil)
	ctx := context.Background()

	decisions := make(chan *domain.Message, 1)
	_, err := b.Subscribe(ctx, domain.TopicDecisions, func(ctx context.Context, msg *domain.Message) error {
		decisions <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	evt := &domain.TransactionEvent{
		EventID:   "evt-allow",
		AccountID: "acc-001",
		Amount:    1500,
		Currency:  "INR",
		Channel:   domain.ChannelUPI,
		DeviceID:  "dev-001",
		Timestamp: noon,
	}

	outcome, err := eng.Process(ctx, evt)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	// Channel UPI +8, new device +15
	if outcome.RiskScore != 23 {
		t.Errorf("expected score 23, got %g", outcome.RiskScore)
	}
	if outcome.Action != domain.ActionAllow {
		t.Errorf("expected ALLOW, got %s", outcome.Action)
	}
	if outcome.DecisionID == "" || outcome.EventID != "evt-allow" {
		t.Errorf("outcome identity wrong: %+v", outcome)
	}

	// Persisted and retrievable
	stored, err := repo.GetDecisionByEvent(ctx, "evt-allow")
	if err != nil {
		t.Fatalf("GetDecisionByEvent failed: %v", err)
	}
	if stored.Action != domain.ActionAllow {
		t.Errorf("stored action mismatch: %s", stored.Action)
	}

	// Decision published on the bus
	select {
	case msg := <-decisions:
		if msg.Key != "evt-allow" {
			t.Errorf("expected decision keyed by event id, got %s", msg.Key)
		}
	case <-time.After(time.Second):
		t.Fatal("decision not published")
	}
}

func TestProcessChallengeWithAlert(t *testing.T) {
	eng, repo, b := newTestEngine(t, nil, nil)
	ctx := context.Background()

	alerts := make(chan *domain.Message, 1)
	_, err := b.Subscribe(ctx, domain.TopicAlerts, func(ctx context.Context, msg *domain.Message) error {
		alerts <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := repo.UpsertBlacklist(ctx, "mx-bad", true, "fraud ring"); err != nil {
		t.Fatalf("UpsertBlacklist failed: %v", err)
	}

	evt := &domain.TransactionEvent{
		EventID:    "evt-block",
		AccountID:  "acc-002",
		Amount:     20000,
		Currency:   "INR",
		Channel:    domain.ChannelCard,
		MerchantID: "mx-bad",
		DeviceID:   "dev-002",
		Timestamp:  noon,
	}

	outcome, err := eng.Process(ctx, evt)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	// CARD +10, amount +10, new device +15, blacklist +40
	if outcome.RiskScore != 75 {
		t.Errorf("expected score 75, got %g", outcome.RiskScore)
	}
	if outcome.Action != domain.ActionChallenge {
		t.Errorf("expected CHALLENGE, got %s", outcome.Action)
	}

	found := false
	for _, r := range outcome.Reasons {
		if r == "Blacklisted merchant +40 (mx-bad)" {
			found = true
		}
	}
	if !found {
		t.Errorf("blacklist reason missing: %v", outcome.Reasons)
	}

	// CHALLENGE derives a MEDIUM alert, published on the alerts topic
	select {
	case <-alerts:
	case <-time.After(time.Second):
		t.Fatal("alert not published")
	}
}

func TestDeviceBecomesKnown(t *testing.T) {
	eng, _, _ := newTestEngine(t, nil, nil)
	ctx := context.Background()

	first := &domain.TransactionEvent{
		EventID:   "evt-d1",
		AccountID: "acc-003",
		Amount:    1000,
		Channel:   domain.ChannelUPI,
		DeviceID:  "dev-003",
		Timestamp: noon,
	}
	if _, err := eng.Process(ctx, first); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	second := &domain.TransactionEvent{
		EventID:   "evt-d2",
		AccountID: "acc-003",
		Amount:    1000,
		Channel:   domain.ChannelUPI,
		DeviceID:  "dev-003",
		Timestamp: noon.Add(time.Hour),
	}
	perceived, err := eng.Perceive(ctx, second)
	if err != nil {
		t.Fatalf("Perceive failed: %v", err)
	}
	if perceived.Features.IsNewDevice {
		t.Error("device should be known after first processed event")
	}
}

func TestVelocityExcludesCurrentEvent(t *testing.T) {
	eng, _, _ := newTestEngine(t, nil, nil)
	ctx := context.Background()

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		evt := &domain.TransactionEvent{
			EventID:   fmt.Sprintf("evt-v%d", i),
			AccountID: "acc-004",
			Amount:    100,
			Channel:   domain.ChannelUPI,
			Timestamp: now.Add(time.Duration(-30+i) * time.Second),
		}
		if _, err := eng.Process(ctx, evt); err != nil {
			t.Fatalf("Process failed: %v", err)
		}
	}

	perceived, err := eng.Perceive(ctx, &domain.TransactionEvent{
		EventID:   "evt-v-next",
		AccountID: "acc-004",
		Amount:    100,
		Channel:   domain.ChannelUPI,
		Timestamp: now,
	})
	if err != nil {
		t.Fatalf("Perceive failed: %v", err)
	}
	if perceived.Features.TxCountLastWindow != 3 {
		t.Errorf("expected 3 prior events in window, got %d", perceived.Features.TxCountLastWindow)
	}
	if perceived.Features.TxSumLastWindow != 300 {
		t.Errorf("expected sum 300, got %f", perceived.Features.TxSumLastWindow)
	}
}

func TestAdvisorAdjustmentAppended(t *testing.T) {
	eng, _, _ := newTestEngine(t, advisor.NewMockAdvisor(), nil)
	ctx := context.Background()

	evt := &domain.TransactionEvent{
		EventID:   "evt-adv",
		AccountID: "acc-005",
		Amount:    60000,
		Channel:   domain.ChannelUPI,
		DeviceID:  "dev-005",
		Timestamp: noon,
	}

	outcome, err := eng.Process(ctx, evt)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	// UPI +8, amount +18, new device +15, advisor +10
	if outcome.RiskScore != 51 {
		t.Errorf("expected score 51, got %g", outcome.RiskScore)
	}
	last := outcome.Reasons[len(outcome.Reasons)-1]
	if !strings.HasPrefix(last, "Advisor adjustment +10.0:") {
		t.Errorf("expected advisor reason last, got %q", last)
	}
}

func TestPlannerReasonAppended(t *testing.T) {
	eng, _, _ := newTestEngine(t, nil, planner.NewStaticPlanner())
	ctx := context.Background()

	evt := &domain.TransactionEvent{
		EventID:   "evt-plan",
		AccountID: "acc-007",
		Amount:    150000,
		Channel:   domain.ChannelUPI,
		DeviceID:  "dev-007",
		Timestamp: noon,
	}

	outcome, err := eng.Process(ctx, evt)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	// UPI +8, amount +30, new device +15: the plan never moves the score
	if outcome.RiskScore != 53 {
		t.Errorf("expected score 53, got %g", outcome.RiskScore)
	}
	last := outcome.Reasons[len(outcome.Reasons)-1]
	if last != "Workflow plan expected_action=CHALLENGE :: steps=8" {
		t.Errorf("unexpected plan reason: %q", last)
	}
}

func TestHistoryFailureAbortsPipeline(t *testing.T) {
	eng, repo, _ := newTestEngine(t, nil, nil)
	ctx := context.Background()

	// Closing the store makes every history read fail
	repo.Close()

	_, err := eng.Process(ctx, &domain.TransactionEvent{
		EventID:   "evt-fail",
		AccountID: "acc-006",
		Amount:    1000,
		Channel:   domain.ChannelUPI,
		Timestamp: noon,
	})
	if !errors.Is(err, domain.ErrHistoryUnavailable) {
		t.Errorf("expected ErrHistoryUnavailable, got %v", err)
	}
}
