package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		OperatorToken   string        `yaml:"operator_token"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"log"`
	Sources []SourceConfig `yaml:"sources"`
	Breaker struct {
		FailureThreshold int           `yaml:"failure_threshold"`
		FailureWindow    time.Duration `yaml:"failure_window"`
		Cooldown         time.Duration `yaml:"cooldown"`
		MaxCooldown      time.Duration `yaml:"max_cooldown"`
	} `yaml:"breaker"`
	Fusion struct {
		Lookback           time.Duration `yaml:"lookback"`
		DefaultHalfLife    time.Duration `yaml:"default_half_life"`
		StalenessMultiple  float64       `yaml:"staleness_multiple"`
		HighFloor          float64       `yaml:"high_floor"`
		MediumFloor        float64       `yaml:"medium_floor"`
		TrivialWeightFloor float64       `yaml:"trivial_weight_floor"`
		AdaptationStep     float64       `yaml:"adaptation_step"`
		AdaptationWindow   time.Duration `yaml:"adaptation_window"`
	} `yaml:"fusion"`
	Validation struct {
		VerdictTTL      time.Duration `yaml:"verdict_ttl"`
		CheckTimeout    time.Duration `yaml:"check_timeout"`
		VenueBaseURL    string        `yaml:"venue_base_url"`
		MinLiquidityUSD float64       `yaml:"min_liquidity_usd"`
		MaxHolderShare  float64       `yaml:"max_holder_share"`
	} `yaml:"validation"`
	Deliberation struct {
		Primary       ProviderConfig `yaml:"primary"`
		Fallback      ProviderConfig `yaml:"fallback"`
		CycleDeadline time.Duration  `yaml:"cycle_deadline"`
		CallTimeout   time.Duration  `yaml:"call_timeout"`
		MaxSize       float64        `yaml:"max_size"`
	} `yaml:"deliberation"`
	Risk struct {
		MaxOpenPositions  int     `yaml:"max_open_positions"`
		PerPositionLimit  float64 `yaml:"per_position_limit"`
		PortfolioExposure float64 `yaml:"portfolio_exposure"`
		DrawdownFraction  float64 `yaml:"drawdown_fraction"`
		InitialEquity     float64 `yaml:"initial_equity"`
	} `yaml:"risk"`
	Execution struct {
		Mode             string        `yaml:"mode"` // paper or live
		TPMultiples      []float64     `yaml:"tp_multiples"`
		TPSellFractions  []float64     `yaml:"tp_sell_fractions"`
		StopLossFraction float64       `yaml:"stop_loss_fraction"`
		MoonbagFraction  float64       `yaml:"moonbag_fraction"`
		GatewayBaseURL   string        `yaml:"gateway_base_url"`
		GatewayAPIKey    string        `yaml:"gateway_api_key"`
		GatewayTimeout   time.Duration `yaml:"gateway_timeout"`
	} `yaml:"execution"`
	Allocation struct {
		ProfitThreshold    float64            `yaml:"profit_threshold"`
		AutoApproveCeiling float64            `yaml:"auto_approve_ceiling"`
		Splits             map[string]float64 `yaml:"splits"`
	} `yaml:"allocation"`
	Kafka struct {
		Brokers      []string      `yaml:"brokers"`
		SignalsTopic string        `yaml:"signals_topic"`
		EventsTopic  string        `yaml:"events_topic"`
		GroupID      string        `yaml:"group_id"`
		Workers      int           `yaml:"workers"`
		BufferSize   int           `yaml:"buffer_size"`
		RetryMax     int           `yaml:"retry_max"`
		BackoffMin   time.Duration `yaml:"backoff_min"`
		BackoffMax   time.Duration `yaml:"backoff_max"`
		DLQTopic     string        `yaml:"dlq_topic"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host         string        `yaml:"host"`
		Port         int           `yaml:"port"`
		Database     string        `yaml:"database"`
		User         string        `yaml:"user"`
		Password     string        `yaml:"password"`
		AsyncInsert  bool          `yaml:"async_insert"`
		DialTimeout  time.Duration `yaml:"dial_timeout"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
}

// SourceConfig declares one external alpha source.
type SourceConfig struct {
	ID            string            `yaml:"id"`
	Kind          string            `yaml:"kind"` // dexstream, httppoll, kafka
	URL           string            `yaml:"url"`
	APIKey        string            `yaml:"api_key"`
	Assets        []string          `yaml:"assets"`
	PollInterval  time.Duration     `yaml:"poll_interval"`
	PingInterval  time.Duration     `yaml:"ping_interval"`
	InitialWeight float64           `yaml:"initial_weight"`
	Extra         map[string]string `yaml:"extra"`
}

// ProviderConfig declares one reasoning provider endpoint.
type ProviderConfig struct {
	Name    string        `yaml:"name"`
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides secrets and endpoints
// with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("OPERATOR_TOKEN"); v != "" {
		c.Server.OperatorToken = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REASONER_API_KEY"); v != "" {
		c.Deliberation.Primary.APIKey = v
	}
	if v := os.Getenv("REASONER_FALLBACK_API_KEY"); v != "" {
		c.Deliberation.Fallback.APIKey = v
	}
	if v := os.Getenv("EXECUTION_MODE"); v != "" {
		c.Execution.Mode = v
	}
	if v := os.Getenv("GATEWAY_API_KEY"); v != "" {
		c.Execution.GatewayAPIKey = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("INITIAL_EQUITY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Risk.InitialEquity = f
		}
	}

	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = 5
	}
	if c.Breaker.FailureWindow == 0 {
		c.Breaker.FailureWindow = time.Minute
	}
	if c.Breaker.Cooldown == 0 {
		c.Breaker.Cooldown = 30 * time.Second
	}
	if c.Breaker.MaxCooldown == 0 {
		c.Breaker.MaxCooldown = 10 * time.Minute
	}
	if c.Fusion.Lookback == 0 {
		c.Fusion.Lookback = 2 * time.Hour
	}
	if c.Fusion.DefaultHalfLife == 0 {
		c.Fusion.DefaultHalfLife = 30 * time.Minute
	}
	if c.Fusion.StalenessMultiple == 0 {
		c.Fusion.StalenessMultiple = 3
	}
	if c.Fusion.HighFloor == 0 {
		c.Fusion.HighFloor = 0.6
	}
	if c.Fusion.MediumFloor == 0 {
		c.Fusion.MediumFloor = 0.35
	}
	if c.Fusion.TrivialWeightFloor == 0 {
		c.Fusion.TrivialWeightFloor = 0.25
	}
	if c.Fusion.AdaptationStep == 0 {
		c.Fusion.AdaptationStep = 0.05
	}
	if c.Fusion.AdaptationWindow == 0 {
		c.Fusion.AdaptationWindow = time.Hour
	}
	if c.Validation.VerdictTTL == 0 {
		c.Validation.VerdictTTL = 5 * time.Minute
	}
	if c.Validation.CheckTimeout == 0 {
		c.Validation.CheckTimeout = 3 * time.Second
	}
	if c.Validation.MaxHolderShare == 0 {
		c.Validation.MaxHolderShare = 0.25
	}
	if c.Deliberation.CycleDeadline == 0 {
		c.Deliberation.CycleDeadline = 90 * time.Second
	}
	if c.Deliberation.CallTimeout == 0 {
		c.Deliberation.CallTimeout = 20 * time.Second
	}
	if c.Deliberation.MaxSize == 0 {
		c.Deliberation.MaxSize = 0.05
	}
	if c.Risk.MaxOpenPositions == 0 {
		c.Risk.MaxOpenPositions = 5
	}
	if c.Risk.PerPositionLimit == 0 {
		c.Risk.PerPositionLimit = 0.05
	}
	if c.Risk.PortfolioExposure == 0 {
		c.Risk.PortfolioExposure = 0.25
	}
	if c.Risk.DrawdownFraction == 0 {
		c.Risk.DrawdownFraction = 0.30
	}
	if c.Execution.Mode == "" {
		c.Execution.Mode = "paper"
	}
	if len(c.Execution.TPMultiples) == 0 {
		c.Execution.TPMultiples = []float64{2, 3, 5}
	}
	if len(c.Execution.TPSellFractions) == 0 {
		c.Execution.TPSellFractions = []float64{0.4, 0.3, 0.2}
	}
	if c.Execution.StopLossFraction == 0 {
		c.Execution.StopLossFraction = 0.35
	}
	if c.Allocation.AutoApproveCeiling == 0 {
		c.Allocation.AutoApproveCeiling = 500
	}
	if c.Kafka.Workers == 0 {
		c.Kafka.Workers = 2
	}
	if c.Kafka.BufferSize == 0 {
		c.Kafka.BufferSize = 256
	}
	if c.Kafka.RetryMax == 0 {
		c.Kafka.RetryMax = 3
	}
	if c.Kafka.BackoffMin == 0 {
		c.Kafka.BackoffMin = 50 * time.Millisecond
	}
	if c.Kafka.BackoffMax == 0 {
		c.Kafka.BackoffMax = 2 * time.Second
	}
}

// Validate checks invariants that would otherwise surface as runtime bugs.
func (c *Config) Validate() error {
	switch c.Execution.Mode {
	case "paper", "live":
	default:
		return fmt.Errorf("execution.mode must be paper or live, got %q", c.Execution.Mode)
	}
	if len(c.Execution.TPMultiples) != len(c.Execution.TPSellFractions) {
		return fmt.Errorf("execution: tp_multiples and tp_sell_fractions must have equal length")
	}
	var ladder float64
	for _, f := range c.Execution.TPSellFractions {
		if f <= 0 || f > 1 {
			return fmt.Errorf("execution: tp sell fraction %v out of (0,1]", f)
		}
		ladder += f
	}
	if ladder+c.Execution.MoonbagFraction > 1.0001 {
		return fmt.Errorf("execution: ladder fractions plus moonbag exceed 1")
	}
	if c.Execution.Mode == "live" && c.Execution.GatewayBaseURL == "" {
		return fmt.Errorf("execution: live mode requires gateway_base_url")
	}
	if c.Risk.DrawdownFraction <= 0 || c.Risk.DrawdownFraction >= 1 {
		return fmt.Errorf("risk.drawdown_fraction must be in (0,1)")
	}
	if c.Risk.PerPositionLimit > c.Risk.PortfolioExposure {
		return fmt.Errorf("risk.per_position_limit exceeds portfolio_exposure")
	}
	if len(c.Allocation.Splits) > 0 {
		var total float64
		for dest, pct := range c.Allocation.Splits {
			if pct <= 0 {
				return fmt.Errorf("allocation split %s must be positive", dest)
			}
			total += pct
		}
		if total < 99.999 || total > 100.001 {
			return fmt.Errorf("allocation splits must total 100%%, got %.3f", total)
		}
	}
	seen := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		if s.ID == "" {
			return fmt.Errorf("source with empty id")
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate source id %s", s.ID)
		}
		seen[s.ID] = true
		switch s.Kind {
		case "dexstream", "httppoll", "kafka":
		default:
			return fmt.Errorf("source %s: unknown kind %q", s.ID, s.Kind)
		}
	}
	return nil
}
