package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrNoTicker is returned when neither the command line nor the config names a ticker.
var ErrNoTicker = errors.New("no ticker provided: use -ticker or set run.default_ticker")

// Tool identifiers known to the registry.
const (
	ToolRSI              = "RSI"
	ToolTripleSMA        = "TRIPLE_SMA"
	ToolBollinger        = "BOLLINGER"
	ToolPriceVolume      = "PRICE_VOLUME"
	ToolHistSim          = "HIST_SIM"
	ToolPERatio          = "PE_RATIO"
	ToolRedditSentiment  = "REDDIT_SENTIMENT"
	ToolTwitterSentiment = "TWITTER_SENTIMENT"
)

// AllTools lists every tool in report order.
var AllTools = []string{
	ToolRSI, ToolTripleSMA, ToolBollinger, ToolPriceVolume, ToolHistSim,
	ToolPERatio, ToolRedditSentiment, ToolTwitterSentiment,
}

// RSI configures the RSI tool.
type RSI struct {
	Period     int     `yaml:"period" validate:"gt=0"`
	Oversold   float64 `yaml:"oversold"`
	Overbought float64 `yaml:"overbought" validate:"gtfield=Oversold"`
}

// SMA configures the triple moving-average stack.
type SMA struct {
	Short        int     `yaml:"short" validate:"gt=0"`
	Mid          int     `yaml:"mid" validate:"gtfield=Short"`
	Long         int     `yaml:"long" validate:"gtfield=Mid"`
	EqualIsBelow bool    `yaml:"equal_is_below"`
	SlopeWindow  int     `yaml:"slope_window" validate:"min=2"`
	SlopeTol     float64 `yaml:"slope_tol" validate:"gte=0"`
}

// Bollinger configures the band tool.
type Bollinger struct {
	Window        int     `yaml:"window" validate:"min=2"`
	K             float64 `yaml:"k" validate:"gt=0"`
	EqualIsInside bool    `yaml:"equal_is_inside"`
}

// PriceVolume configures the divergence tool.
type PriceVolume struct {
	Window      int     `yaml:"window" validate:"gt=0"`
	VolRatioMin float64 `yaml:"vol_ratio_min" validate:"gt=0"`
}

// HistSim configures the historical similarity search.
type HistSim struct {
	Window  int `yaml:"window" validate:"min=2"`
	Horizon int `yaml:"horizon" validate:"gt=0"`
	TopK    int `yaml:"top_k" validate:"gt=0"`
}

// PERatio configures the fundamental ratio tool.
type PERatio struct {
	BuyBelow     float64 `yaml:"buy_below"`
	HoldUpper    float64 `yaml:"hold_upper" validate:"gtfield=BuyBelow"`
	AllowForward bool    `yaml:"allow_forward"`
}

// Sentiment configures the sentiment pillar.
type Sentiment struct {
	Enabled        bool     `yaml:"enabled"`
	Subreddits     []string `yaml:"subreddits"`
	Synonyms       []string `yaml:"synonyms"`
	MaxComments    int      `yaml:"max_comments" validate:"gt=0"`
	ClassifyTopN   int      `yaml:"classify_top_n" validate:"gt=0"`
	HalfLifeDays   float64  `yaml:"half_life_days"`
	MinScoreWeight float64  `yaml:"min_score_weight"`
	MaxScoreWeight float64  `yaml:"max_score_weight" validate:"gtefield=MinScoreWeight"`
	MaxAgeDays     float64  `yaml:"max_age_days" validate:"gt=0"`
	Model          string   `yaml:"model"`
	GeminiAPIKey   string   `yaml:"gemini_api_key"`
	RedditAgent    string   `yaml:"reddit_user_agent"`
	TwitterToken   string   `yaml:"twitter_bearer_token"`
}

// Config holds all application configuration.
type Config struct {
	Run struct {
		DefaultTicker string   `yaml:"default_ticker"`
		DBPath        string   `yaml:"db_path"`
		Tools         []string `yaml:"tools" validate:"min=1"`
		Schedule      string   `yaml:"schedule"`
		Workers       int      `yaml:"workers" validate:"gte=0"`
	} `yaml:"run"`
	Fetch struct {
		LookbackDays int    `yaml:"lookback_days" validate:"gt=0"`
		BaseURL      string `yaml:"base_url"`
		APIKey       string `yaml:"api_key"`
		Proxy        string `yaml:"proxy"`
	} `yaml:"fetch"`
	RSI         RSI         `yaml:"rsi"`
	SMA         SMA         `yaml:"sma"`
	Bollinger   Bollinger   `yaml:"bollinger"`
	PriceVolume PriceVolume `yaml:"price_volume"`
	HistSim     HistSim     `yaml:"hist_sim"`
	PERatio     PERatio     `yaml:"pe_ratio"`
	Sentiment   Sentiment   `yaml:"sentiment"`
	Telegram    struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.Run.DefaultTicker = "JPM"
	cfg.Run.DBPath = "data/votes.sqlite"
	cfg.Run.Tools = append([]string(nil), AllTools...)
	cfg.Run.Workers = 4
	cfg.Run.Schedule = "0 30 16 * * 1-5"
	cfg.Fetch.LookbackDays = 250
	cfg.RSI = RSI{Period: 14, Oversold: 20, Overbought: 80}
	cfg.SMA = SMA{Short: 20, Mid: 50, Long: 200, EqualIsBelow: true, SlopeWindow: 10, SlopeTol: 0}
	cfg.Bollinger = Bollinger{Window: 20, K: 2.0, EqualIsInside: true}
	cfg.PriceVolume = PriceVolume{Window: 5, VolRatioMin: 1.10}
	cfg.HistSim = HistSim{Window: 20, Horizon: 5, TopK: 10}
	cfg.PERatio = PERatio{BuyBelow: 15, HoldUpper: 25, AllowForward: true}
	cfg.Sentiment = Sentiment{
		Enabled:        true,
		Subreddits:     []string{"stocks", "investing", "wallstreetbets"},
		Synonyms:       []string{},
		MaxComments:    50,
		ClassifyTopN:   15,
		HalfLifeDays:   3.0,
		MinScoreWeight: 0.5,
		MaxScoreWeight: 2.0,
		MaxAgeDays:     7.0,
		Model:          "gemini-2.5-flash",
		RedditAgent:    "pillarvote/0.1",
	}
	cfg.Log.Level = "info"
	cfg.Log.Format = "console"
	return cfg
}

// Load reads config from a YAML file over the defaults, then applies environment variable overrides.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if os.Getenv("SKIP_SENTIMENT") == "1" {
		cfg.Sentiment.Enabled = false
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Run.DBPath = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Fetch.Proxy = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Sentiment.GeminiAPIKey = v
	}
	if v := os.Getenv("TWITTER_BEARER_TOKEN"); v != "" {
		cfg.Sentiment.TwitterToken = v
	}
	if v := os.Getenv("REDDIT_USER_AGENT"); v != "" {
		cfg.Sentiment.RedditAgent = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	// yaml leaves lists nil when the key is present but empty
	if cfg.Sentiment.Subreddits == nil {
		cfg.Sentiment.Subreddits = []string{}
	}
	if cfg.Sentiment.Synonyms == nil {
		cfg.Sentiment.Synonyms = []string{}
	}
	for i, name := range cfg.Run.Tools {
		cfg.Run.Tools[i] = strings.ToUpper(strings.TrimSpace(name))
	}

	return cfg, nil
}

// Validate checks that parameters are usable.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate config: %w", err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fieldMessage(fe))
		}
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}
	for _, name := range c.Run.Tools {
		if !knownTool(name) {
			return fmt.Errorf("run.tools: unknown tool %q", name)
		}
	}
	return nil
}

var validate = newValidator()

// newValidator reports fields by their yaml path.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must name at least %s entry", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "gtfield":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gtefield":
		return fmt.Sprintf("%s must not be below %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}

// ResolveTicker picks the command-line override, falling back to run.default_ticker.
func (c *Config) ResolveTicker(override string) (string, error) {
	t := strings.TrimSpace(override)
	if t == "" {
		t = strings.TrimSpace(c.Run.DefaultTicker)
	}
	if t == "" {
		return "", ErrNoTicker
	}
	return strings.ToUpper(t), nil
}

func knownTool(name string) bool {
	for _, t := range AllTools {
		if t == name {
			return true
		}
	}
	return false
}
