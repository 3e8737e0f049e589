package config

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"ladder-trading/internal/ladder"
)

type Mode string

const (
	ModePaper Mode = "paper"
	ModeLive  Mode = "live"
)

// Environment variables consulted when the YAML leaves credentials empty, so
// secrets can live in the environment (or a .env file) instead of the config.
const (
	EnvAPIKey    = "LADDER_BROKER_API_KEY"
	EnvAPISecret = "LADDER_BROKER_API_SECRET"
	EnvBotToken  = "LADDER_TELEGRAM_BOT_TOKEN"
)

type Config struct {
	Mode           Mode                 `yaml:"mode"`
	InstanceID     string               `yaml:"instance_id"`
	Items          []ItemConfig         `yaml:"items"`
	Broker         BrokerConfig         `yaml:"broker"`
	State          StateConfig          `yaml:"state"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Observability  ObservabilityConfig  `yaml:"observability"`
}

// ItemConfig is the per-symbol ladder definition. Coordinates are listed in
// any order; they are sorted and validated on conversion.
type ItemConfig struct {
	Symbol             string             `yaml:"symbol"`
	StartPrice         Decimal            `yaml:"start_price"`
	Coordinates        []CoordinateConfig `yaml:"coordinates"`
	SellPolicy         string             `yaml:"sell_policy"`
	SellStep           Decimal            `yaml:"sell_step"`
	MaxRestingBuys     int                `yaml:"max_resting_buys"`
	QuantityMultiplier int64              `yaml:"quantity_multiplier"`
}

type CoordinateConfig struct {
	StartPrice Decimal `yaml:"start_price"`
	Quantity   int64   `yaml:"quantity"`
	StepType   string  `yaml:"step_type"`
	FixedStep  Decimal `yaml:"fixed_step"`
}

type BrokerConfig struct {
	APIKey         string           `yaml:"api_key"`
	APISecret      string           `yaml:"api_secret"`
	BaseURL        string           `yaml:"base_url"`
	AccountID      string           `yaml:"account_id"`
	HTTPTimeoutSec int64            `yaml:"http_timeout_sec"`
	QuoteStreamURL string           `yaml:"quote_stream_url"`
	Commission     CommissionConfig `yaml:"commission"`
}

// CommissionConfig is the account-level fee model folded into generated sell
// prices. Empty type disables the adjustment.
type CommissionConfig struct {
	Type string  `yaml:"type"`
	Buy  Decimal `yaml:"buy"`
	Sell Decimal `yaml:"sell"`
}

func (cc CommissionConfig) commission() ladder.Commission {
	return ladder.Commission{
		Type: ladder.CommissionType(cc.Type),
		Buy:  cc.Buy.Decimal,
		Sell: cc.Sell.Decimal,
	}
}

type StateConfig struct {
	Dir          string `yaml:"dir"`
	LockTakeover *bool  `yaml:"lock_takeover"`
	LockStaleSec int64  `yaml:"lock_stale_sec"`
}

type CircuitBreakerConfig struct {
	Enabled           bool  `yaml:"enabled"`
	MaxPlaceFailures  int   `yaml:"max_place_failures"`
	MaxCancelFailures int   `yaml:"max_cancel_failures"`
	MaxPollFailures   int   `yaml:"max_poll_failures"`
	CooldownSec       int64 `yaml:"cooldown_sec"`
	ProbePasses       int   `yaml:"probe_passes"`
}

type ObservabilityConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Runtime  RuntimeConfig  `yaml:"runtime"`
}

type TelegramConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BotToken   string `yaml:"bot_token"`
	ChatID     string `yaml:"chat_id"`
	APIBaseURL string `yaml:"api_base_url"`
	TimeoutSec int64  `yaml:"timeout_sec"`
}

type RuntimeConfig struct {
	CycleWaitSec       int64  `yaml:"cycle_wait_sec"`
	MetricsListen      string `yaml:"metrics_listen"`
	AlertDropReportSec int64  `yaml:"alert_drop_report_sec"`
}

func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return Config{}, fmt.Errorf("config must contain a single YAML document")
		}
		return Config{}, err
	}
	cfg.normalize()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Mode = Mode(strings.ToLower(strings.TrimSpace(string(c.Mode))))
	c.InstanceID = strings.ToLower(strings.TrimSpace(c.InstanceID))
	for i := range c.Items {
		it := &c.Items[i]
		it.Symbol = strings.ToUpper(strings.TrimSpace(it.Symbol))
		it.SellPolicy = strings.ToUpper(strings.TrimSpace(it.SellPolicy))
		for j := range it.Coordinates {
			it.Coordinates[j].StepType = strings.ToUpper(strings.TrimSpace(it.Coordinates[j].StepType))
		}
	}
	c.Broker.APIKey = strings.TrimSpace(c.Broker.APIKey)
	c.Broker.APISecret = strings.TrimSpace(c.Broker.APISecret)
	c.Broker.BaseURL = strings.TrimSpace(c.Broker.BaseURL)
	c.Broker.AccountID = strings.TrimSpace(c.Broker.AccountID)
	c.Broker.QuoteStreamURL = strings.TrimSpace(c.Broker.QuoteStreamURL)
	c.Broker.Commission.Type = strings.ToUpper(strings.TrimSpace(c.Broker.Commission.Type))
	c.State.Dir = strings.TrimSpace(c.State.Dir)
	c.Observability.Telegram.BotToken = strings.TrimSpace(c.Observability.Telegram.BotToken)
	c.Observability.Telegram.ChatID = strings.TrimSpace(c.Observability.Telegram.ChatID)
	c.Observability.Telegram.APIBaseURL = strings.TrimSpace(c.Observability.Telegram.APIBaseURL)
	c.Observability.Runtime.MetricsListen = strings.TrimSpace(c.Observability.Runtime.MetricsListen)
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModePaper
	}
	if c.InstanceID == "" {
		c.InstanceID = "default"
	}
	for i := range c.Items {
		it := &c.Items[i]
		if it.SellPolicy == "" {
			it.SellPolicy = string(ladder.SellNextGrid)
		}
		if it.QuantityMultiplier == 0 {
			it.QuantityMultiplier = 1
		}
	}
	if c.Broker.APIKey == "" {
		c.Broker.APIKey = strings.TrimSpace(os.Getenv(EnvAPIKey))
	}
	if c.Broker.APISecret == "" {
		c.Broker.APISecret = strings.TrimSpace(os.Getenv(EnvAPISecret))
	}
	if c.Broker.HTTPTimeoutSec == 0 {
		c.Broker.HTTPTimeoutSec = 15
	}
	if c.CircuitBreaker.MaxPlaceFailures == 0 {
		c.CircuitBreaker.MaxPlaceFailures = 5
	}
	if c.CircuitBreaker.MaxCancelFailures == 0 {
		c.CircuitBreaker.MaxCancelFailures = 5
	}
	if c.CircuitBreaker.MaxPollFailures == 0 {
		c.CircuitBreaker.MaxPollFailures = 10
	}
	if c.CircuitBreaker.CooldownSec == 0 {
		c.CircuitBreaker.CooldownSec = 30
	}
	if c.CircuitBreaker.ProbePasses == 0 {
		c.CircuitBreaker.ProbePasses = 1
	}
	if c.State.Dir == "" {
		c.State.Dir = "state"
	}
	if c.State.LockTakeover == nil {
		enabled := true
		c.State.LockTakeover = &enabled
	}
	if c.State.LockStaleSec == 0 {
		c.State.LockStaleSec = 600
	}
	if c.Observability.Telegram.BotToken == "" {
		c.Observability.Telegram.BotToken = strings.TrimSpace(os.Getenv(EnvBotToken))
	}
	if c.Observability.Telegram.APIBaseURL == "" {
		c.Observability.Telegram.APIBaseURL = "https://api.telegram.org"
	}
	if c.Observability.Telegram.TimeoutSec == 0 {
		c.Observability.Telegram.TimeoutSec = 10
	}
	if c.Observability.Runtime.CycleWaitSec == 0 {
		c.Observability.Runtime.CycleWaitSec = 60
	}
	if c.Observability.Runtime.AlertDropReportSec == 0 {
		c.Observability.Runtime.AlertDropReportSec = 60
	}
}

func (c Config) Validate() error {
	switch c.Mode {
	case ModePaper, ModeLive:
	default:
		return fmt.Errorf("mode must be paper or live")
	}
	if !isValidInstanceID(c.InstanceID) {
		return fmt.Errorf("instance_id must match [a-z0-9_-], length 1..24")
	}
	if len(c.Items) == 0 {
		return fmt.Errorf("at least one item is required")
	}
	seen := make(map[string]bool, len(c.Items))
	for i, it := range c.Items {
		if it.Symbol == "" {
			return fmt.Errorf("items[%d]: symbol is required", i)
		}
		if !isValidSymbol(it.Symbol) {
			return fmt.Errorf("items[%d]: symbol must match [A-Z0-9.], length 1..12", i)
		}
		if seen[it.Symbol] {
			return fmt.Errorf("items[%d]: duplicate symbol %s", i, it.Symbol)
		}
		seen[it.Symbol] = true
		if it.StartPrice.Cmp(decimal.Zero) <= 0 {
			return fmt.Errorf("items[%d]: start_price must be > 0", i)
		}
		switch ladder.SellPolicy(it.SellPolicy) {
		case ladder.SellFixed, ladder.SellPercentage:
			if it.SellStep.Cmp(decimal.Zero) <= 0 {
				return fmt.Errorf("items[%d]: sell_step must be > 0 for %s policy", i, it.SellPolicy)
			}
		case ladder.SellNextGrid:
		default:
			return fmt.Errorf("items[%d]: sell_policy must be FIXED, PERCENTAGE, or NEXTGRID", i)
		}
		if it.MaxRestingBuys < 0 {
			return fmt.Errorf("items[%d]: max_resting_buys must be >= 0", i)
		}
		if it.QuantityMultiplier < 1 {
			return fmt.Errorf("items[%d]: quantity_multiplier must be >= 1", i)
		}
		if _, err := it.Item(); err != nil {
			return fmt.Errorf("items[%d]: %w", i, err)
		}
	}
	if err := c.Broker.Commission.commission().Validate(); err != nil {
		return fmt.Errorf("broker.commission: %w", err)
	}
	if c.CircuitBreaker.Enabled {
		if c.CircuitBreaker.MaxPlaceFailures < 1 {
			return fmt.Errorf("circuit_breaker.max_place_failures must be >= 1")
		}
		if c.CircuitBreaker.MaxCancelFailures < 1 {
			return fmt.Errorf("circuit_breaker.max_cancel_failures must be >= 1")
		}
		if c.CircuitBreaker.MaxPollFailures < 1 {
			return fmt.Errorf("circuit_breaker.max_poll_failures must be >= 1")
		}
		if c.CircuitBreaker.CooldownSec < 1 || c.CircuitBreaker.CooldownSec > 3600 {
			return fmt.Errorf("circuit_breaker.cooldown_sec must be between 1 and 3600")
		}
		if c.CircuitBreaker.ProbePasses < 1 || c.CircuitBreaker.ProbePasses > 20 {
			return fmt.Errorf("circuit_breaker.probe_passes must be between 1 and 20")
		}
	}
	if c.Observability.Runtime.CycleWaitSec < 1 || c.Observability.Runtime.CycleWaitSec > 3600 {
		return fmt.Errorf("observability.runtime.cycle_wait_sec must be between 1 and 3600")
	}
	if c.Observability.Runtime.AlertDropReportSec < 0 || c.Observability.Runtime.AlertDropReportSec > 3600 {
		return fmt.Errorf("observability.runtime.alert_drop_report_sec must be between 0 and 3600")
	}
	if c.Observability.Telegram.Enabled {
		if c.Observability.Telegram.BotToken == "" {
			return fmt.Errorf("observability.telegram.bot_token is required when telegram enabled")
		}
		if c.Observability.Telegram.ChatID == "" {
			return fmt.Errorf("observability.telegram.chat_id is required when telegram enabled")
		}
		if c.Observability.Telegram.TimeoutSec < 1 || c.Observability.Telegram.TimeoutSec > 120 {
			return fmt.Errorf("observability.telegram.timeout_sec must be between 1 and 120")
		}
		if err := validateURL(c.Observability.Telegram.APIBaseURL, "http", "https"); err != nil {
			return fmt.Errorf("observability.telegram.api_base_url %v", err)
		}
	}
	if c.State.LockStaleSec < 0 || c.State.LockStaleSec > 86400 {
		return fmt.Errorf("state.lock_stale_sec must be between 0 and 86400")
	}
	if c.Mode == ModeLive {
		if c.Broker.APIKey == "" || c.Broker.APISecret == "" {
			return fmt.Errorf("broker api_key/api_secret are required for live mode")
		}
		if c.Broker.BaseURL == "" {
			return fmt.Errorf("broker base_url is required for live mode")
		}
		if c.Broker.AccountID == "" {
			return fmt.Errorf("broker account_id is required for live mode")
		}
		if c.Broker.HTTPTimeoutSec < 1 || c.Broker.HTTPTimeoutSec > 120 {
			return fmt.Errorf("broker http_timeout_sec must be between 1 and 120")
		}
		if err := validateURL(c.Broker.BaseURL, "http", "https"); err != nil {
			return fmt.Errorf("broker base_url %v", err)
		}
		if c.Broker.QuoteStreamURL != "" {
			if err := validateURL(c.Broker.QuoteStreamURL, "ws", "wss"); err != nil {
				return fmt.Errorf("broker quote_stream_url %v", err)
			}
		}
	}
	return nil
}

// Item converts the YAML shape into the ladder's validated form.
func (ic ItemConfig) Item() (ladder.Item, error) {
	coords := make([]ladder.PriceCoordinate, len(ic.Coordinates))
	for i, cc := range ic.Coordinates {
		coords[i] = ladder.PriceCoordinate{
			StartPrice: cc.StartPrice.Decimal,
			Quantity:   cc.Quantity,
			StepType:   ladder.StepType(cc.StepType),
			FixedStep:  cc.FixedStep.Decimal,
		}
	}
	table, err := ladder.NewTable(coords)
	if err != nil {
		return ladder.Item{}, err
	}
	return ladder.Item{
		Symbol:             ic.Symbol,
		StartPrice:         ic.StartPrice.Decimal,
		Coordinates:        table,
		SellPolicy:         ladder.SellPolicy(ic.SellPolicy),
		SellStep:           ic.SellStep.Decimal,
		MaxRestingBuys:     ic.MaxRestingBuys,
		QuantityMultiplier: ic.QuantityMultiplier,
	}, nil
}

// Ladder returns the validated items in config order, each carrying the
// account-level commission model.
func (c Config) Ladder() ([]ladder.Item, error) {
	commission := c.Broker.Commission.commission()
	items := make([]ladder.Item, len(c.Items))
	for i, ic := range c.Items {
		it, err := ic.Item()
		if err != nil {
			return nil, fmt.Errorf("item %s: %w", ic.Symbol, err)
		}
		it.Commission = commission
		items[i] = it
	}
	return items, nil
}

func isValidInstanceID(v string) bool {
	if len(v) < 1 || len(v) > 24 {
		return false
	}
	for _, r := range v {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			continue
		}
		return false
	}
	return true
}

func isValidSymbol(v string) bool {
	if len(v) < 1 || len(v) > 12 {
		return false
	}
	for _, r := range v {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' {
			continue
		}
		return false
	}
	return true
}

func validateURL(raw string, schemes ...string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("must be a valid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("must include scheme and host")
	}
	for _, s := range schemes {
		if parsed.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("scheme must be %s", strings.Join(schemes, " or "))
}
