package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/airhao3/jmm-trade/internal/application/monitor"
	"github.com/airhao3/jmm-trade/internal/domain"
)

// Config es la configuración completa del simulador.
type Config struct {
	API          APIConfig          `yaml:"api"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
	Retry        RetryConfig        `yaml:"retry"`
	Monitoring   MonitoringConfig   `yaml:"monitoring"`
	Simulation   SimulationConfig   `yaml:"simulation"`
	MarketFilter MarketFilterConfig `yaml:"market_filter"`
	Risk         RiskConfig         `yaml:"risk"`
	Settlement   SettlementConfig   `yaml:"settlement"`
	Targets      []TargetConfig     `yaml:"targets"`
	Storage      StorageConfig      `yaml:"storage"`
	Notify       NotifyConfig       `yaml:"notify"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Log          LogConfig          `yaml:"log"`
}

// APIConfig contiene los base URLs de las APIs.
type APIConfig struct {
	DataBase       string `yaml:"data_base"`
	CLOBBase       string `yaml:"clob_base"`
	GammaBase      string `yaml:"gamma_base"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	APIKey         string `yaml:"-"` // solo desde POLYMARKET_API_KEY
}

// RateLimitConfig: max_requests por window_seconds, ráfaga burst.
type RateLimitConfig struct {
	MaxRequests   int `yaml:"max_requests"`
	WindowSeconds int `yaml:"window_seconds"`
	Burst         int `yaml:"burst"`
}

// RetryConfig controla los reintentos contra la API.
type RetryConfig struct {
	MaxAttempts              int     `yaml:"max_attempts"`
	BaseDelayMillis          int     `yaml:"base_delay_ms"`
	DefaultRetryAfterSeconds float64 `yaml:"default_retry_after_seconds"`
	MaxRateLimitWaits        int     `yaml:"max_rate_limit_waits"`
}

// MonitoringConfig controla el polling de cuentas.
type MonitoringConfig struct {
	PollIntervalSeconds  float64 `yaml:"poll_interval_seconds"`
	FetchLimit           int     `yaml:"fetch_limit"`
	QueueSize            int     `yaml:"queue_size"`
	StatsIntervalSeconds int     `yaml:"stats_interval_seconds"` // 0 = usa el default; < 0 desactiva
}

// SimulationConfig controla la simulación de cada copia.
type SimulationConfig struct {
	Delays         []int    `yaml:"delays"` // segundos
	Investment     float64  `yaml:"investment_per_trade"`
	FeeRate        *float64 `yaml:"fee_rate"` // nil = default; 0 es válido
	SlippageCheck  *bool    `yaml:"slippage_check"`
	MaxSlippagePct *float64 `yaml:"max_slippage_pct"` // nil = default; 0 = sin tolerancia
	MaxInFlight    int      `yaml:"max_in_flight"`
}

// MarketFilterConfig decide qué trades se copian.
type MarketFilterConfig struct {
	Enabled            *bool    `yaml:"enabled"`
	Assets             []string `yaml:"assets"`
	Keywords           []string `yaml:"keywords"`
	Exclude            []string `yaml:"exclude"`
	MinDurationMinutes int      `yaml:"min_duration_minutes"`
	MaxDurationMinutes int      `yaml:"max_duration_minutes"`
}

// RiskConfig activa los ajustes de inversión por conflicto entre targets y por
// tamaño del trade original. Todo desactivado por defecto.
type RiskConfig struct {
	Enabled          bool     `yaml:"enabled"`
	SignalTTLSeconds int      `yaml:"signal_ttl_seconds"`
	ReduceFactor     *float64 `yaml:"reduce_factor"` // nil = default; 0 anula la copia en conflicto
	AmplifyStep      float64  `yaml:"amplify_step"`
	AmplifyMax       float64  `yaml:"amplify_max"` // 1 desactiva la amplificación
	WhaleCap         bool     `yaml:"whale_cap"`
	WhaleCapPct      float64  `yaml:"whale_cap_pct"`
	MinInvestment    *float64 `yaml:"min_investment"` // nil = default; 0 = sin suelo
}

// SettlementConfig controla el ciclo de settlement y la cache de mercados.
type SettlementConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
}

// TargetConfig es una cuenta a seguir.
type TargetConfig struct {
	Address  string `yaml:"address"`
	Nickname string `yaml:"nickname"`
	Enabled  *bool  `yaml:"enabled"`
	Score    int    `yaml:"score"` // 1-10; 0 = default
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// NotifyConfig elige los sinks de eventos.
type NotifyConfig struct {
	Console     bool        `yaml:"console"`
	EventBuffer int         `yaml:"event_buffer"`
	Kafka       KafkaConfig `yaml:"kafka"`
}

// KafkaConfig publica los eventos en un topic de Kafka.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// MetricsConfig expone /metrics para Prometheus.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

var addressRe = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Las variables de entorno sobreescriben los valores del YAML. El resultado
// ya está validado.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse construye la configuración desde YAML en memoria.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("POLYMARKET_API_KEY"); v != "" {
		cfg.API.APIKey = v
	}
	if v := os.Getenv("SHADOW_DB_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		var brokers []string
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		cfg.Notify.Kafka.Brokers = brokers
		cfg.Notify.Kafka.Enabled = len(brokers) > 0
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.API.DataBase == "" {
		cfg.API.DataBase = "https://data-api.polymarket.com"
	}
	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.API.TimeoutSeconds <= 0 {
		cfg.API.TimeoutSeconds = 10
	}

	if cfg.RateLimit.MaxRequests == 0 {
		cfg.RateLimit.MaxRequests = 100
	}
	if cfg.RateLimit.WindowSeconds == 0 {
		cfg.RateLimit.WindowSeconds = 60
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 10
	}

	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.BaseDelayMillis <= 0 {
		cfg.Retry.BaseDelayMillis = 500
	}
	if cfg.Retry.DefaultRetryAfterSeconds <= 0 {
		cfg.Retry.DefaultRetryAfterSeconds = 2
	}
	if cfg.Retry.MaxRateLimitWaits <= 0 {
		cfg.Retry.MaxRateLimitWaits = 10
	}

	if cfg.Monitoring.PollIntervalSeconds <= 0 {
		cfg.Monitoring.PollIntervalSeconds = 3
	}
	if cfg.Monitoring.FetchLimit <= 0 {
		cfg.Monitoring.FetchLimit = 50
	}
	if cfg.Monitoring.QueueSize <= 0 {
		cfg.Monitoring.QueueSize = 256
	}
	if cfg.Monitoring.StatsIntervalSeconds == 0 {
		cfg.Monitoring.StatsIntervalSeconds = 300
	}

	if len(cfg.Simulation.Delays) == 0 {
		cfg.Simulation.Delays = []int{1, 3}
	}
	if cfg.Simulation.Investment == 0 {
		cfg.Simulation.Investment = 100
	}
	if cfg.Simulation.FeeRate == nil {
		cfg.Simulation.FeeRate = floatPtr(0.015)
	}
	if cfg.Simulation.SlippageCheck == nil {
		cfg.Simulation.SlippageCheck = boolPtr(true)
	}
	if cfg.Simulation.MaxSlippagePct == nil {
		cfg.Simulation.MaxSlippagePct = floatPtr(5)
	}
	if cfg.Simulation.MaxInFlight <= 0 {
		cfg.Simulation.MaxInFlight = 8
	}

	if cfg.MarketFilter.Enabled == nil {
		cfg.MarketFilter.Enabled = boolPtr(true)
	}
	// Listas ausentes toman los defaults del filtro; una lista explícita vacía ([]) desactiva ese criterio.
	defFilter := monitor.DefaultFilterConfig()
	if cfg.MarketFilter.Assets == nil {
		cfg.MarketFilter.Assets = defFilter.Assets
	}
	if cfg.MarketFilter.Keywords == nil {
		cfg.MarketFilter.Keywords = defFilter.Keywords
	}
	if cfg.MarketFilter.MinDurationMinutes == 0 && cfg.MarketFilter.MaxDurationMinutes == 0 {
		cfg.MarketFilter.MinDurationMinutes = defFilter.MinDurationMinutes
		cfg.MarketFilter.MaxDurationMinutes = defFilter.MaxDurationMinutes
	}

	if cfg.Settlement.IntervalSeconds <= 0 {
		cfg.Settlement.IntervalSeconds = 60
	}
	if cfg.Settlement.CacheTTLSeconds <= 0 {
		cfg.Settlement.CacheTTLSeconds = 60
	}

	if cfg.Risk.SignalTTLSeconds <= 0 {
		cfg.Risk.SignalTTLSeconds = 600
	}
	if cfg.Risk.ReduceFactor == nil {
		cfg.Risk.ReduceFactor = floatPtr(0.3)
	}
	if cfg.Risk.AmplifyStep == 0 {
		cfg.Risk.AmplifyStep = 0.2
	}
	if cfg.Risk.AmplifyMax == 0 {
		cfg.Risk.AmplifyMax = 1.5
	}
	if cfg.Risk.WhaleCapPct == 0 {
		cfg.Risk.WhaleCapPct = 0.01
	}
	if cfg.Risk.MinInvestment == nil {
		cfg.Risk.MinInvestment = floatPtr(5)
	}

	for i := range cfg.Targets {
		if cfg.Targets[i].Enabled == nil {
			cfg.Targets[i].Enabled = boolPtr(true)
		}
		if cfg.Targets[i].Score == 0 {
			cfg.Targets[i].Score = 5
		}
	}

	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "shadowbot.db"
	}
	if cfg.Notify.EventBuffer <= 0 {
		cfg.Notify.EventBuffer = 1024
	}
	if cfg.Notify.Kafka.Topic == "" {
		cfg.Notify.Kafka.Topic = "shadowbot.events"
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// Validate comprueba la configuración y normaliza direcciones y delays.
// Devuelve todos los problemas encontrados, no solo el primero.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	enabled := 0
	for i := range c.Targets {
		t := &c.Targets[i]
		addr := strings.TrimSpace(t.Address)
		if !addressRe.MatchString(addr) {
			add("targets[%d]: invalid address %q", i, t.Address)
			continue
		}
		t.Address = strings.ToLower(addr)
		if t.Nickname == "" {
			t.Nickname = domain.ShortTx(t.Address)
		}
		if t.Score < 0 || t.Score > 10 {
			add("targets[%d]: score %d out of range [1, 10]", i, t.Score)
		}
		if t.Enabled == nil || *t.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		add("targets: at least one enabled target is required")
	}

	for _, d := range c.Simulation.Delays {
		if d < 0 {
			add("simulation.delays: negative delay %d", d)
		}
	}
	c.Simulation.Delays = domain.NormalizeDelays(c.Simulation.Delays)

	if c.Simulation.Investment <= 0 {
		add("simulation.investment_per_trade must be positive")
	}
	if c.Simulation.FeeRate == nil || *c.Simulation.FeeRate < 0 || *c.Simulation.FeeRate >= 1 {
		add("simulation.fee_rate must be in [0, 1)")
	}
	if c.Simulation.MaxSlippagePct == nil || *c.Simulation.MaxSlippagePct < 0 {
		add("simulation.max_slippage_pct must not be negative")
	}

	if c.Risk.ReduceFactor == nil || *c.Risk.ReduceFactor < 0 || *c.Risk.ReduceFactor > 1 {
		add("risk.reduce_factor must be in [0, 1]")
	}
	if c.Risk.AmplifyStep < 0 || c.Risk.AmplifyMax < 1 {
		add("risk: amplify_step must not be negative and amplify_max must be >= 1")
	}
	if c.Risk.WhaleCapPct < 0 || c.Risk.WhaleCapPct > 1 || c.Risk.MinInvestment == nil || *c.Risk.MinInvestment < 0 {
		add("risk: whale_cap_pct must be in [0, 1] and min_investment must not be negative")
	}

	if c.MarketFilter.MinDurationMinutes < 0 || c.MarketFilter.MaxDurationMinutes < 0 {
		add("market_filter: durations must not be negative")
	}
	if c.MarketFilter.MinDurationMinutes > c.MarketFilter.MaxDurationMinutes {
		add("market_filter: min_duration_minutes (%d) > max_duration_minutes (%d)",
			c.MarketFilter.MinDurationMinutes, c.MarketFilter.MaxDurationMinutes)
	}

	if c.RateLimit.MaxRequests <= 0 || c.RateLimit.WindowSeconds <= 0 || c.RateLimit.Burst <= 0 {
		add("rate_limit: max_requests, window_seconds and burst must be positive")
	}

	if c.Notify.Kafka.Enabled && len(c.Notify.Kafka.Brokers) == 0 {
		add("notify.kafka: enabled without brokers")
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		add("log.format: unknown format %q", c.Log.Format)
	}

	return errors.Join(errs...)
}

// Accounts devuelve los targets como domain.TrackedAccount.
func (c *Config) Accounts() []domain.TrackedAccount {
	out := make([]domain.TrackedAccount, 0, len(c.Targets))
	for _, t := range c.Targets {
		out = append(out, domain.TrackedAccount{
			Address:  t.Address,
			Nickname: t.Nickname,
			Enabled:  t.Enabled == nil || *t.Enabled,
			Score:    t.Score,
		})
	}
	return out
}

// PollInterval devuelve el intervalo de polling como time.Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Monitoring.PollIntervalSeconds * float64(time.Second))
}

// SignalTTL devuelve la vida de una señal de riesgo.
func (c *Config) SignalTTL() time.Duration {
	return time.Duration(c.Risk.SignalTTLSeconds) * time.Second
}

// StatsInterval devuelve el intervalo del log de stats; 0 si está desactivado.
func (c *Config) StatsInterval() time.Duration {
	if c.Monitoring.StatsIntervalSeconds < 0 {
		return 0
	}
	return time.Duration(c.Monitoring.StatsIntervalSeconds) * time.Second
}

// RequestTimeout devuelve el timeout por request HTTP.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// RateWindow devuelve la ventana del rate limiter.
func (c *Config) RateWindow() time.Duration {
	return time.Duration(c.RateLimit.WindowSeconds) * time.Second
}

// RetryBaseDelay devuelve el backoff base.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Retry.BaseDelayMillis) * time.Millisecond
}

// DefaultRetryAfter devuelve la espera ante un 429 sin Retry-After.
func (c *Config) DefaultRetryAfter() time.Duration {
	return time.Duration(c.Retry.DefaultRetryAfterSeconds * float64(time.Second))
}

// SettlementInterval devuelve el intervalo entre ciclos de settlement.
func (c *Config) SettlementInterval() time.Duration {
	return time.Duration(c.Settlement.IntervalSeconds) * time.Second
}

// CacheTTL devuelve el TTL de la cache de mercados.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Settlement.CacheTTLSeconds) * time.Second
}

func boolPtr(b bool) *bool { return &b }

func floatPtr(f float64) *float64 { return &f }
