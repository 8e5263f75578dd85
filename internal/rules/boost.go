package rules

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opensource-finance/peregrine/internal/domain"
)

// BoostConfig defines one operator-supplied scoring expression. The
// expression is evaluated over the feature vocabulary and must return a
// numeric contribution (or a bool, treated as 0/1). Contributions are
// additive, same contract as the built-in rules.
type BoostConfig struct {
	ID         string `yaml:"id" json:"id"`
	Expression string `yaml:"expr" json:"expr"`
	Reason     string `yaml:"reason" json:"reason"`
	Enabled    bool   `yaml:"enabled" json:"enabled"`
}

// BoostEngine evaluates compiled boost expressions against a perceived
// event. Safe for concurrent use; Reload swaps the rule set atomically.
type BoostEngine struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled []*compiledBoost
}

type compiledBoost struct {
	cfg     BoostConfig
	program cel.Program
}

// NewBoostEngine creates an engine with the feature vocabulary declared
// as CEL variables.
func NewBoostEngine() (*BoostEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("tx_count_last_window", cel.IntType),
		cel.Variable("tx_sum_last_window", cel.DoubleType),
		cel.Variable("geo_velocity_km_per_min", cel.DoubleType),
		cel.Variable("is_new_device", cel.BoolType),
		cel.Variable("channel_base_risk", cel.DoubleType),
		cel.Variable("mcc_risk", cel.DoubleType),
		cel.Variable("is_night", cel.BoolType),
		cel.Variable("channel", cel.StringType),
		cel.Variable("mcc", cel.StringType),
		cel.Variable("currency", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &BoostEngine{env: env}, nil
}

// Reload compiles and atomically installs a new boost set. On a compile
// error the previous set stays active.
func (e *BoostEngine) Reload(configs []BoostConfig) error {
	compiled := make([]*compiledBoost, 0, len(configs))
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		c, err := e.compile(cfg)
		if err != nil {
			return err
		}
		compiled = append(compiled, c)
	}

	e.mu.Lock()
	e.compiled = compiled
	e.mu.Unlock()
	return nil
}

func (e *BoostEngine) compile(cfg BoostConfig) (*compiledBoost, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile boost %s: %w", cfg.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("boost %s: expression must return bool, int, or double, got %s", cfg.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for boost %s: %w", cfg.ID, err)
	}
	return &compiledBoost{cfg: cfg, program: program}, nil
}

// Count returns the number of active boosts.
func (e *BoostEngine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// Evaluate runs all boosts against a perceived event and returns the total
// extra contribution with one reason per triggered boost, in load order.
// Evaluation errors skip the boost: boosts are advisory and must never
// fail the scoring path.
func (e *BoostEngine) Evaluate(p *domain.PerceivedEvent) (float64, []string) {
	e.mu.RLock()
	boosts := e.compiled
	e.mu.RUnlock()

	if len(boosts) == 0 {
		return 0, nil
	}

	f := p.Features
	activation := map[string]any{
		"amount":                  f.Amount,
		"tx_count_last_window":    int64(f.TxCountLastWindow),
		"tx_sum_last_window":      f.TxSumLastWindow,
		"geo_velocity_km_per_min": f.GeoVelocityKmPerMin,
		"is_new_device":           f.IsNewDevice,
		"channel_base_risk":       f.ChannelBaseRisk,
		"mcc_risk":                f.MCCRisk,
		"is_night":                f.IsNight,
		"channel":                 p.Event.Channel,
		"mcc":                     p.Event.MCC,
		"currency":                p.Event.Currency,
	}

	total := 0.0
	var reasons []string
	for _, b := range boosts {
		out, _, err := b.program.Eval(activation)
		if err != nil {
			continue
		}
		contribution := toContribution(out)
		if contribution == 0 {
			continue
		}
		total += contribution
		reasons = append(reasons, fmt.Sprintf("%s +%g", b.cfg.Reason, contribution))
	}
	return total, reasons
}

// toContribution converts a CEL value to a numeric contribution.
func toContribution(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0
		}
		return 0.0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}
