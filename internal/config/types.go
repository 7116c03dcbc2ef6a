package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了机器人运行所需的全部配置项。
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Order    OrderConfig    `mapstructure:"order"`
	TWAP     TWAPConfig     `mapstructure:"twap"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// ExchangeConfig 描述交易所连接信息。
type ExchangeConfig struct {
	Name       string      `mapstructure:"name"`
	APIKey     string      `mapstructure:"api_key"`
	APISecret  string      `mapstructure:"api_secret"`
	UseSandbox bool        `mapstructure:"use_sandbox"`
	Retry      RetryConfig `mapstructure:"retry"`
}

// RetryConfig 控制幂等调用的重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// OpenAIConfig 描述大模型调用参数。
type OpenAIConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// OrderConfig 控制下单缺省行为。
type OrderConfig struct {
	TimeInForce string `mapstructure:"time_in_force"`
}

// TWAPConfig 控制 TWAP 策略缺省参数。
type TWAPConfig struct {
	DefaultIntervals int           `mapstructure:"default_intervals"`
	DefaultDelay     time.Duration `mapstructure:"default_delay"`
}

// DatabaseConfig 管理审计数据库连接。
type DatabaseConfig struct {
	Path         string `mapstructure:"path"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	InMemory     bool   `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// Validate 对配置进行基本校验，缺少凭证或参数非法时在启动阶段直接失败。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Exchange.Name == "" {
		err = multierr.Append(err, errors.New("exchange.name 不能为空"))
	}
	if c.Exchange.APIKey == "" || c.Exchange.APISecret == "" {
		err = multierr.Append(err, errors.New("exchange.api_key 与 exchange.api_secret 不能为空"))
	}
	if c.Exchange.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.max_attempts 必须大于0"))
	}
	if c.Exchange.Retry.MinDelay <= 0 || c.Exchange.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.delay 必须为正"))
	}
	if c.Exchange.Retry.MinDelay > c.Exchange.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("exchange.retry.min_delay 不能大于 max_delay"))
	}
	if c.OpenAI.APIKey == "" {
		err = multierr.Append(err, errors.New("openai.api_key 不能为空"))
	}
	if c.OpenAI.Model == "" {
		err = multierr.Append(err, errors.New("openai.model 不能为空"))
	}
	if c.OpenAI.Timeout <= 0 {
		err = multierr.Append(err, errors.New("openai.timeout 必须大于0"))
	}
	if c.Order.TimeInForce == "" {
		err = multierr.Append(err, errors.New("order.time_in_force 不能为空"))
	}
	if c.TWAP.DefaultIntervals <= 0 {
		err = multierr.Append(err, errors.New("twap.default_intervals 必须大于0"))
	}
	if c.TWAP.DefaultDelay < 0 {
		err = multierr.Append(err, errors.New("twap.default_delay 不能为负"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
