// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/aristath/aidalloc/internal/dataset"
	"github.com/aristath/aidalloc/internal/domain"
	"github.com/aristath/aidalloc/internal/modules/allocation"
	"github.com/aristath/aidalloc/internal/modules/optimization"
	"github.com/aristath/aidalloc/internal/modules/scenario"
	"github.com/aristath/aidalloc/internal/utils"
)

// Dataset formats
const (
	FormatCSV    = "csv"
	FormatSQLite = "sqlite"
)

// Output formats
const (
	OutputJSON    = "json"
	OutputMsgpack = "msgpack"
)

// Config holds application configuration
type Config struct {
	LogLevel    string         `yaml:"log_level"`
	LogPretty   bool           `yaml:"log_pretty"`
	ConfigFile  string         `yaml:"-"`
	Output      string         `yaml:"output"`       // json or msgpack
	MetricsFile string         `yaml:"metrics_file"` // Prometheus textfile written after a run; empty disables
	Data        DataConfig     `yaml:"data"`
	Discrete    DiscreteConfig `yaml:"discrete"`
	Strategies  StrategyConfig `yaml:"strategies"`
	Scenario    ScenarioConfig `yaml:"scenario"`
	Solver      SolverConfig   `yaml:"solver"`
}

// DataConfig locates the institution dataset.
type DataConfig struct {
	Path        string `yaml:"path"`
	Format      string `yaml:"format"` // csv or sqlite; inferred from the extension when empty
	SQLiteTable string `yaml:"sqlite_table"`
}

// DiscreteConfig holds the discrete optimizer options.
type DiscreteConfig struct {
	Budget            float64   `yaml:"budget"`
	MinHighNeedShare  float64   `yaml:"min_high_need_share"`
	MaxPerInstitution float64   `yaml:"max_per_institution"`
	Tiers             []float64 `yaml:"tiers"`
	DisplayLimit      int       `yaml:"display_limit"`
}

// StrategyConfig holds the continuous strategy options.
type StrategyConfig struct {
	Budget              float64 `yaml:"budget"`
	Strategy            string  `yaml:"strategy"`
	PerformanceBonusPct float64 `yaml:"performance_bonus_pct"`
	RetentionReservePct float64 `yaml:"retention_reserve_pct"`
	MinCompletionRate   float64 `yaml:"min_completion_rate"`
	MaxPerInstitution   float64 `yaml:"max_per_institution"`
	DisplayLimit        int     `yaml:"display_limit"`
}

// ScenarioConfig holds the candidate selection options.
type ScenarioConfig struct {
	RiskThreshold  float64 `yaml:"risk_threshold"`
	CandidateLimit int     `yaml:"candidate_limit"`
	MinSelectivity float64 `yaml:"min_selectivity"`
}

// SolverConfig bounds the branch-and-bound search.
type SolverConfig struct {
	TimeLimit   time.Duration `yaml:"time_limit"`
	MaxNodes    int           `yaml:"max_nodes"`
	RelativeGap float64       `yaml:"relative_gap"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	discrete := optimization.DefaultDiscreteRequest()
	strategies := allocation.DefaultRequest()
	criteria := scenario.DefaultCriteria()
	solver := optimization.DefaultBranchAndBoundOptions()

	return &Config{
		LogLevel: "info",
		Output:   OutputJSON,
		Data: DataConfig{
			SQLiteTable: dataset.DefaultTable,
		},
		Discrete: DiscreteConfig{
			Budget:            discrete.TotalBudget,
			MinHighNeedShare:  discrete.MinHighNeedShare,
			MaxPerInstitution: discrete.MaxPerInstitution,
			Tiers:             discrete.Tiers,
			DisplayLimit:      discrete.DisplayLimit,
		},
		Strategies: StrategyConfig{
			Budget:              strategies.Budget,
			Strategy:            string(strategies.Strategy),
			PerformanceBonusPct: strategies.PerformanceBonusPct,
			RetentionReservePct: strategies.RetentionReservePct,
			MinCompletionRate:   strategies.MinCompletionRate,
			MaxPerInstitution:   strategies.MaxPerInstitution,
			DisplayLimit:        strategies.DisplayLimit,
		},
		Scenario: ScenarioConfig{
			RiskThreshold:  criteria.RiskThreshold,
			CandidateLimit: criteria.CandidateLimit,
			MinSelectivity: criteria.MinSelectivity,
		},
		Solver: SolverConfig{
			TimeLimit:   solver.TimeLimit,
			MaxNodes:    solver.MaxNodes,
			RelativeGap: solver.RelativeGap,
		},
	}
}

// Load reads configuration from environment variables, then overlays the
// YAML file named by AIDALLOC_CONFIG_FILE when one is set.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := Default()
	env := &envReader{}

	cfg.LogLevel = env.getString("AIDALLOC_LOG_LEVEL", cfg.LogLevel)
	cfg.LogPretty = env.getBool("AIDALLOC_LOG_PRETTY", cfg.LogPretty)
	cfg.ConfigFile = env.getString("AIDALLOC_CONFIG_FILE", "")
	cfg.Output = env.getString("AIDALLOC_OUTPUT", cfg.Output)
	cfg.MetricsFile = env.getString("AIDALLOC_METRICS_FILE", cfg.MetricsFile)

	cfg.Data.Path = env.getString("AIDALLOC_DATA_PATH", cfg.Data.Path)
	cfg.Data.Format = env.getString("AIDALLOC_DATA_FORMAT", cfg.Data.Format)
	cfg.Data.SQLiteTable = env.getString("AIDALLOC_SQLITE_TABLE", cfg.Data.SQLiteTable)

	cfg.Discrete.Budget = env.getFloat("AIDALLOC_DISCRETE_BUDGET", cfg.Discrete.Budget)
	cfg.Discrete.MinHighNeedShare = env.getFloat("AIDALLOC_MIN_HIGH_NEED_SHARE", cfg.Discrete.MinHighNeedShare)
	cfg.Discrete.MaxPerInstitution = env.getFloat("AIDALLOC_DISCRETE_MAX_PER_INSTITUTION", cfg.Discrete.MaxPerInstitution)
	cfg.Discrete.Tiers = env.getFloats("AIDALLOC_TIERS", cfg.Discrete.Tiers)

	cfg.Strategies.Budget = env.getFloat("AIDALLOC_STRATEGY_BUDGET", cfg.Strategies.Budget)
	cfg.Strategies.Strategy = env.getString("AIDALLOC_STRATEGY", cfg.Strategies.Strategy)
	cfg.Strategies.PerformanceBonusPct = env.getFloat("AIDALLOC_PERFORMANCE_BONUS_PCT", cfg.Strategies.PerformanceBonusPct)
	cfg.Strategies.RetentionReservePct = env.getFloat("AIDALLOC_RETENTION_RESERVE_PCT", cfg.Strategies.RetentionReservePct)
	cfg.Strategies.MinCompletionRate = env.getFloat("AIDALLOC_MIN_COMPLETION_RATE", cfg.Strategies.MinCompletionRate)
	cfg.Strategies.MaxPerInstitution = env.getFloat("AIDALLOC_STRATEGY_MAX_PER_INSTITUTION", cfg.Strategies.MaxPerInstitution)

	cfg.Scenario.RiskThreshold = env.getFloat("AIDALLOC_RISK_THRESHOLD", cfg.Scenario.RiskThreshold)
	cfg.Scenario.CandidateLimit = env.getInt("AIDALLOC_CANDIDATE_LIMIT", cfg.Scenario.CandidateLimit)
	cfg.Scenario.MinSelectivity = env.getFloat("AIDALLOC_MIN_SELECTIVITY", cfg.Scenario.MinSelectivity)

	cfg.Solver.TimeLimit = env.getDuration("AIDALLOC_SOLVER_TIMEOUT", cfg.Solver.TimeLimit)
	cfg.Solver.MaxNodes = env.getInt("AIDALLOC_SOLVER_MAX_NODES", cfg.Solver.MaxNodes)
	cfg.Solver.RelativeGap = env.getFloat("AIDALLOC_SOLVER_RELATIVE_GAP", cfg.Solver.RelativeGap)

	if env.err != nil {
		return nil, env.err
	}

	if cfg.ConfigFile != "" {
		if err := cfg.LoadFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFile overlays the YAML file at path. Keys absent from the file keep
// their current values.
func (c *Config) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.ConfigFile = path
	return nil
}

// DataFormat returns the configured dataset format, falling back to the
// extension of the data path.
func (c *Config) DataFormat() string {
	if c.Data.Format != "" {
		return strings.ToLower(c.Data.Format)
	}
	switch strings.ToLower(filepath.Ext(c.Data.Path)) {
	case ".db", ".sqlite", ".sqlite3":
		return FormatSQLite
	default:
		return FormatCSV
	}
}

// Validate checks every option and returns the first invalid one as a
// domain.ConfigurationError.
func (c *Config) Validate() error {
	switch c.DataFormat() {
	case FormatCSV, FormatSQLite:
	default:
		return domain.NewConfigurationError("data_format", "must be csv or sqlite, got %q", c.Data.Format)
	}
	switch c.Output {
	case OutputJSON, OutputMsgpack:
	default:
		return domain.NewConfigurationError("output", "must be json or msgpack, got %q", c.Output)
	}
	if c.Solver.TimeLimit < 0 {
		return domain.NewConfigurationError("solver_time_limit", "must not be negative, got %s", c.Solver.TimeLimit)
	}
	if c.Solver.MaxNodes < 0 {
		return domain.NewConfigurationError("solver_max_nodes", "must not be negative, got %d", c.Solver.MaxNodes)
	}
	if math.IsNaN(c.Solver.RelativeGap) || c.Solver.RelativeGap < 0 || c.Solver.RelativeGap >= 1 {
		return domain.NewConfigurationError("solver_relative_gap", "must be within [0, 1), got %g", c.Solver.RelativeGap)
	}

	if err := c.DiscreteRequest().Validate(); err != nil {
		return err
	}
	if _, err := c.StrategyRequest(); err != nil {
		return err
	}
	return c.Criteria().Validate()
}

// DiscreteRequest builds the discrete optimizer request.
func (c *Config) DiscreteRequest() optimization.DiscreteRequest {
	return optimization.DiscreteRequest{
		TotalBudget:       c.Discrete.Budget,
		MinHighNeedShare:  c.Discrete.MinHighNeedShare,
		MaxPerInstitution: c.Discrete.MaxPerInstitution,
		Tiers:             append([]float64(nil), c.Discrete.Tiers...),
		DisplayLimit:      c.Discrete.DisplayLimit,
	}
}

// StrategyRequest builds the continuous strategy request.
func (c *Config) StrategyRequest() (allocation.Request, error) {
	strategy, err := allocation.ParseStrategy(c.Strategies.Strategy)
	if err != nil {
		return allocation.Request{}, err
	}
	req := allocation.Request{
		Budget:              c.Strategies.Budget,
		Strategy:            strategy,
		PerformanceBonusPct: c.Strategies.PerformanceBonusPct,
		RetentionReservePct: c.Strategies.RetentionReservePct,
		MinCompletionRate:   c.Strategies.MinCompletionRate,
		MaxPerInstitution:   c.Strategies.MaxPerInstitution,
		DisplayLimit:        c.Strategies.DisplayLimit,
	}
	return req, req.Validate()
}

// Criteria builds the scenario selection criteria.
func (c *Config) Criteria() scenario.Criteria {
	return scenario.Criteria{
		RiskThreshold:  c.Scenario.RiskThreshold,
		CandidateLimit: c.Scenario.CandidateLimit,
		MinSelectivity: c.Scenario.MinSelectivity,
	}
}

// SolverOptions builds the branch-and-bound limits.
func (c *Config) SolverOptions() optimization.BranchAndBoundOptions {
	opts := optimization.DefaultBranchAndBoundOptions()
	opts.TimeLimit = c.Solver.TimeLimit
	if c.Solver.MaxNodes > 0 {
		opts.MaxNodes = c.Solver.MaxNodes
	}
	if c.Solver.RelativeGap > 0 {
		opts.RelativeGap = c.Solver.RelativeGap
	}
	return opts
}

// envReader reads typed environment variables and keeps the first parse error.
type envReader struct {
	err error
}

func (e *envReader) lookup(key string) (string, bool) {
	value := strings.TrimSpace(os.Getenv(key))
	return value, value != ""
}

func (e *envReader) fail(key, value string, err error) {
	if e.err == nil {
		e.err = domain.NewConfigurationError(key, "cannot parse %q: %v", value, err)
	}
}

func (e *envReader) getString(key, defaultValue string) string {
	if value, ok := e.lookup(key); ok {
		return value
	}
	return defaultValue
}

func (e *envReader) getInt(key string, defaultValue int) int {
	value, ok := e.lookup(key)
	if !ok {
		return defaultValue
	}
	intVal, err := strconv.Atoi(strings.ReplaceAll(value, "_", ""))
	if err != nil {
		e.fail(key, value, err)
		return defaultValue
	}
	return intVal
}

func (e *envReader) getFloat(key string, defaultValue float64) float64 {
	value, ok := e.lookup(key)
	if !ok {
		return defaultValue
	}
	floatVal, err := strconv.ParseFloat(strings.ReplaceAll(value, "_", ""), 64)
	if err != nil {
		e.fail(key, value, err)
		return defaultValue
	}
	return floatVal
}

func (e *envReader) getFloats(key string, defaultValue []float64) []float64 {
	value, ok := e.lookup(key)
	if !ok {
		return defaultValue
	}
	list, err := utils.ParseFloatList(value)
	if err != nil {
		e.fail(key, value, err)
		return defaultValue
	}
	return list
}

func (e *envReader) getBool(key string, defaultValue bool) bool {
	value, ok := e.lookup(key)
	if !ok {
		return defaultValue
	}
	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		e.fail(key, value, err)
		return defaultValue
	}
	return boolVal
}

func (e *envReader) getDuration(key string, defaultValue time.Duration) time.Duration {
	value, ok := e.lookup(key)
	if !ok {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		e.fail(key, value, err)
		return defaultValue
	}
	return d
}
