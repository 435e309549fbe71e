// Package fraud scores location, crop and climate consistency with CEL
// checks. Every enabled check is evaluated; penalties of the triggered ones
// are summed in a fixed order and clamped to [0, 1].
package fraud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/opensource-finance/shamba/internal/domain"
)

// Engine is the CEL-based fraud assessor.
type Engine struct {
	mu       sync.RWMutex
	env      *cel.Env
	builtins []*CompiledRule
	extras   []*CompiledRule
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.FraudRuleConfig
	Program cel.Program
}

// NewEngine creates an engine with the built-in checks for region.
func NewEngine(region domain.BoundingBox) (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("latitude", cel.DoubleType),
		cel.Variable("longitude", cel.DoubleType),
		cel.Variable("crop_type", cel.StringType),
		cel.Variable("soil_moisture", cel.DoubleType),
		cel.Variable("soil_moisture_zscore", cel.DoubleType),
		cel.Variable("rainfall_30d", cel.DoubleType),
		cel.Variable("rainfall_90d", cel.DoubleType),
		cel.Variable("et_30d", cel.DoubleType),
		cel.Variable("temp_avg", cel.DoubleType),
		cel.Variable("humidity_avg", cel.DoubleType),
		cel.Variable("ndvi_mean_90d", cel.DoubleType),
		cel.Variable("ndvi_trend_90d", cel.DoubleType),
		cel.Variable("drought_flag", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	e := &Engine{env: env}
	for _, cfg := range BuiltinRules(region) {
		compiled, err := e.compileRule(cfg)
		if err != nil {
			return nil, err
		}
		e.builtins = append(e.builtins, compiled)
	}
	return e, nil
}

// Assess evaluates all checks against the claimed location, crop and
// satellite features.
func (e *Engine) Assess(loc domain.Location, cropType string, sat domain.SatelliteFeatures) domain.FraudAssessment {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.builtins)+len(e.extras))
	rules = append(rules, e.builtins...)
	rules = append(rules, e.extras...)
	e.mu.RUnlock()

	activation := map[string]any{
		"latitude":             loc.Latitude,
		"longitude":            loc.Longitude,
		"crop_type":            domain.NormalizeCrop(cropType),
		"soil_moisture":        sat.SoilMoisture,
		"soil_moisture_zscore": sat.SoilMoistureZScore,
		"rainfall_30d":         sat.Rainfall30d,
		"rainfall_90d":         sat.Rainfall90d,
		"et_30d":               sat.ET30d,
		"temp_avg":             sat.TempAvg,
		"humidity_avg":         sat.HumidityAvg,
		"ndvi_mean_90d":        sat.NDVIMean90d,
		"ndvi_trend_90d":       sat.NDVITrend90d,
		"drought_flag":         sat.DroughtFlag,
	}

	var assessment domain.FraudAssessment
	var total float64
	for _, r := range rules {
		out, _, err := r.Program.Eval(activation)
		if err != nil {
			slog.Warn("fraud rule evaluation failed", "rule_id", r.Config.ID, "error", err)
			continue
		}
		if toScore(out) <= 0 {
			continue
		}
		total += r.Config.Penalty
		assessment.Signals = append(assessment.Signals, domain.FraudSignal{
			RuleID:  r.Config.ID,
			Name:    r.Config.Name,
			Penalty: r.Config.Penalty,
		})
	}

	assessment.Score = math.Max(0, math.Min(1, total))
	return assessment
}

// toScore converts a CEL value to a number; bool true is 1.
func toScore(val ref.Val) float64 {
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

// ValidateRule checks an operator-defined rule without loading it.
func (e *Engine) ValidateRule(cfg *domain.FraudRuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("%w: rule config is required", domain.ErrInvalidInput)
	}
	if cfg.ID == "" {
		return fmt.Errorf("%w: rule id is required", domain.ErrInvalidInput)
	}
	if e.isBuiltin(cfg.ID) {
		return fmt.Errorf("%w: rule %s is built in and cannot be replaced", domain.ErrInvalidInput, cfg.ID)
	}
	if math.IsNaN(cfg.Penalty) || cfg.Penalty < 0 || cfg.Penalty > 1 {
		return fmt.Errorf("%w: rule %s penalty %v must be within [0, 1]", domain.ErrInvalidInput, cfg.ID, cfg.Penalty)
	}
	if _, err := e.compileRule(cfg); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

// ReloadRules replaces the operator-defined rules. Disabled rules are
// skipped; rules that fail validation are skipped and reported in the
// returned error while the valid ones are still loaded.
func (e *Engine) ReloadRules(configs []*domain.FraudRuleConfig) error {
	var errs []error
	extras := make([]*CompiledRule, 0, len(configs))

	for _, cfg := range configs {
		if cfg == nil || !cfg.Enabled {
			continue
		}
		if err := e.ValidateRule(cfg); err != nil {
			errs = append(errs, err)
			continue
		}
		compiled, err := e.compileRule(cfg)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		extras = append(extras, compiled)
	}

	sort.Slice(extras, func(i, j int) bool {
		return extras[i].Config.ID < extras[j].Config.ID
	})

	e.mu.Lock()
	e.extras = extras
	e.mu.Unlock()

	return errors.Join(errs...)
}

// Rules returns the loaded rule configurations in evaluation order.
func (e *Engine) Rules() []*domain.FraudRuleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*domain.FraudRuleConfig, 0, len(e.builtins)+len(e.extras))
	for _, r := range e.builtins {
		cfg := *r.Config
		out = append(out, &cfg)
	}
	for _, r := range e.extras {
		cfg := *r.Config
		out = append(out, &cfg)
	}
	return out
}

// RulesCount returns the number of loaded rules, built-ins included.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.builtins) + len(e.extras)
}

func (e *Engine) isBuiltin(id string) bool {
	for _, r := range e.builtins {
		if r.Config.ID == id {
			return true
		}
	}
	return false
}

func (e *Engine) compileRule(cfg *domain.FraudRuleConfig) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", cfg.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}

// RuleStore lists stored operator rules.
type RuleStore interface {
	ListFraudRules(ctx context.Context) ([]*domain.FraudRuleConfig, error)
}

// LoadFromStore replaces the operator rules with those in store and returns
// the number of loaded rules, built-ins included.
func (e *Engine) LoadFromStore(ctx context.Context, store RuleStore) (int, error) {
	configs, err := store.ListFraudRules(ctx)
	if err != nil {
		return e.RulesCount(), fmt.Errorf("list fraud rules: %w", err)
	}
	err = e.ReloadRules(configs)
	return e.RulesCount(), err
}
