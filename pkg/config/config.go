package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Etcd     EtcdConfig     `mapstructure:"etcd"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	MongoDB  MongoDBConfig  `mapstructure:"mongodb"`
	Razorpay RazorpayConfig `mapstructure:"razorpay"`
	Payment  PaymentConfig  `mapstructure:"payment"`
	Email    EmailConfig    `mapstructure:"email"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Name string `mapstructure:"name"`
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

type EtcdConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Prefix      string        `mapstructure:"prefix"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type MongoDBConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

// RazorpayConfig holds the gateway credentials. WebhookSecret signs
// asynchronous webhook deliveries; KeySecret signs the redirect callback.
type RazorpayConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	KeyID         string        `mapstructure:"key_id"`
	KeySecret     string        `mapstructure:"key_secret"`
	WebhookSecret string        `mapstructure:"webhook_secret"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type PaymentConfig struct {
	Currency                string  `mapstructure:"currency"`
	GiftAmount              int64   `mapstructure:"gift_amount"`
	ReferralPercentageLimit float64 `mapstructure:"referral_percentage_limit"`
	ReferralReferrerAmount  int64   `mapstructure:"referral_referrer_amount"`
	ReferralRefereeAmount   int64   `mapstructure:"referral_referee_amount"`
	CallbackURL             string  `mapstructure:"callback_url"`
	RedirectSuccessURL      string  `mapstructure:"redirect_success_url"`
	RedirectFailureURL      string  `mapstructure:"redirect_failure_url"`
}

type EmailConfig struct {
	SMTPHost    string        `mapstructure:"smtp_host"`
	SMTPPort    int           `mapstructure:"smtp_port"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	From        string        `mapstructure:"from"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
}

type LogConfig struct {
	Level       string   `mapstructure:"level"`
	Encoding    string   `mapstructure:"encoding"`
	OutputPaths []string `mapstructure:"output_paths"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// Secrets come from the environment in deployment, e.g.
	// STOREFRONT_RAZORPAY_WEBHOOK_SECRET overrides razorpay.webhook_secret.
	v.SetEnvPrefix("STOREFRONT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Payment.ReferralPercentageLimit < 0 || config.Payment.ReferralPercentageLimit > 1 {
		return nil, fmt.Errorf("referral_percentage_limit must be in [0,1], got %v", config.Payment.ReferralPercentageLimit)
	}

	return &config, nil
}

func (c *MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.Username, c.Password, c.Host, c.Port, c.Database)
}
