package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/valeevte/pricewatch/internal/database"
)

type Config struct {
	App       AppConfig         `mapstructure:"app"`
	Server    ServerConfig      `mapstructure:"server"`
	Log       LogConfig         `mapstructure:"log"`
	Storage   StorageConfig     `mapstructure:"storage"`
	DB        database.DBConfig `mapstructure:"db"`
	Scheduler SchedulerConfig   `mapstructure:"scheduler"`
	Cron      CronConfig        `mapstructure:"cron"`
	Oracle    OracleConfig      `mapstructure:"oracle"`
	Search    SearchConfig      `mapstructure:"search"`
	Products  ProductsConfig    `mapstructure:"products"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

// StorageConfig selects the durable key-value backend.
// Driver is one of sqlite, postgres, redis or memory.
type StorageConfig struct {
	Driver        string `mapstructure:"driver"`
	SQLitePath    string `mapstructure:"sqlite_path"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	KeyPrefix     string `mapstructure:"key_prefix"`
}

type SchedulerConfig struct {
	CompetitorDelay time.Duration `mapstructure:"competitor_delay"`
	ProductDelay    time.Duration `mapstructure:"product_delay"`
	QueueSize       int           `mapstructure:"queue_size"`
}

type CronConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	AutoRefresh string `mapstructure:"auto_refresh"`
}

type OracleConfig struct {
	Timeout            time.Duration `mapstructure:"timeout"`
	MaxRetries         int           `mapstructure:"max_retries"`
	InitialBackoff     time.Duration `mapstructure:"initial_backoff"`
	UserAgent          string        `mapstructure:"user_agent"`
	PriceSelectors     []string      `mapstructure:"price_selectors"`
	StockSelectors     []string      `mapstructure:"stock_selectors"`
	PromotionSelectors []string      `mapstructure:"promotion_selectors"`
	MinPrice           int64         `mapstructure:"min_price"`
}

type SearchConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	Path          string `mapstructure:"path"`
	ItemSelector  string `mapstructure:"item_selector"`
	NameSelector  string `mapstructure:"name_selector"`
	PriceSelector string `mapstructure:"price_selector"`
	LinkSelector  string `mapstructure:"link_selector"`
	SKUSelector   string `mapstructure:"sku_selector"`
	Limit         int    `mapstructure:"limit"`
}

type ProductsConfig struct {
	RequireCompetitor bool `mapstructure:"require_competitor"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.sqlite_path", "data/pricewatch.db")
	v.SetDefault("storage.redis_addr", "localhost:6379")
	v.SetDefault("storage.redis_password", "")
	v.SetDefault("storage.redis_db", 0)
	v.SetDefault("storage.key_prefix", "pricewatch:")

	v.SetDefault("db.user", "")
	v.SetDefault("db.password", "")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.name", "pricewatch")
	v.SetDefault("db.super_user", "")
	v.SetDefault("db.super_password", "")

	// the free lookup tier allows roughly 6 requests per minute
	v.SetDefault("scheduler.competitor_delay", "10s")
	v.SetDefault("scheduler.product_delay", "5s")
	v.SetDefault("scheduler.queue_size", 256)

	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.auto_refresh", "@every 1h")

	v.SetDefault("oracle.timeout", "30s")
	v.SetDefault("oracle.max_retries", 10)
	v.SetDefault("oracle.initial_backoff", "5s")
	v.SetDefault("oracle.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	v.SetDefault("oracle.price_selectors", []string{
		"[itemprop=price]",
		".product-price",
		".price-sale",
		".pro-price",
		".js-price",
		".price",
	})
	v.SetDefault("oracle.stock_selectors", []string{
		"[itemprop=availability]",
		".stock-status",
		".product-status",
		".availability",
	})
	v.SetDefault("oracle.promotion_selectors", []string{
		".product-promotion",
		".promotion",
		".gift",
	})
	v.SetDefault("oracle.min_price", 1000)

	v.SetDefault("search.base_url", "https://www.anphatpc.com.vn")
	v.SetDefault("search.path", "/tim")
	v.SetDefault("search.item_selector", ".p-item")
	v.SetDefault("search.name_selector", ".p-name")
	v.SetDefault("search.price_selector", ".p-price")
	v.SetDefault("search.link_selector", "a")
	v.SetDefault("search.sku_selector", ".p-sku")
	v.SetDefault("search.limit", 20)

	v.SetDefault("products.require_competitor", false)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
