package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	MySQL     MySQLConfig      `mapstructure:"mysql"`
	Redis     RedisConfig      `mapstructure:"redis"`
	Bank      BankConfig       `mapstructure:"bank"`
	Suppliers []SupplierConfig `mapstructure:"suppliers"`
	Machines  MachinesConfig   `mapstructure:"machines"`
	Sim       SimConfig        `mapstructure:"sim"`
	Queues    QueuesConfig     `mapstructure:"queues"`
	Auth      AuthConfig       `mapstructure:"auth"`
}

type ServerConfig struct {
	Environment string `mapstructure:"environment"`
	Port        string `mapstructure:"port"`
}

type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type BankConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	NotificationURL string        `mapstructure:"notification_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

type SupplierConfig struct {
	Name        string `mapstructure:"name"`
	URL         string `mapstructure:"url"`
	BankAccount string `mapstructure:"bank_account"`
	BankID      string `mapstructure:"bank_id"`
}

type MachinesConfig struct {
	MarketURL string        `mapstructure:"market_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type SimConfig struct {
	RetryAttempts      int           `mapstructure:"retry_attempts"`
	RetryDelay         time.Duration `mapstructure:"retry_delay"`
	MachineBudgetRatio float64       `mapstructure:"machine_budget_ratio"`
	MaterialFloor      int           `mapstructure:"material_floor"`
	MaterialBatch      int           `mapstructure:"material_batch"`
	RequiredMaterials  []string      `mapstructure:"required_materials"`
}

type QueuesConfig struct {
	Retry             string        `mapstructure:"retry"`
	Payment           string        `mapstructure:"payment"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"`
	PollWait          time.Duration `mapstructure:"poll_wait"`
	BatchSize         int           `mapstructure:"batch_size"`
	ReaperInterval    time.Duration `mapstructure:"reaper_interval"`
}

type AuthConfig struct {
	Secret         string        `mapstructure:"secret"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
	AdminUser      string        `mapstructure:"admin_user"`
	AdminPassword  string        `mapstructure:"admin_password"`
}

func Load() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("FABRIKA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("sim.retry_attempts", 3)
	viper.SetDefault("sim.retry_delay", time.Second)
	viper.SetDefault("sim.machine_budget_ratio", 0.2)
	viper.SetDefault("sim.material_floor", 10)
	viper.SetDefault("sim.material_batch", 50)
	viper.SetDefault("queues.visibility_timeout", 30*time.Second)
	viper.SetDefault("queues.poll_wait", 5*time.Second)
	viper.SetDefault("queues.batch_size", 10)
	viper.SetDefault("queues.reaper_interval", 10*time.Second)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		panic(err)
	}

	return &cfg
}
