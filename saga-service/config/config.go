package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	ServiceName  string       `mapstructure:"service_name"`
	Env          string       `mapstructure:"env"`
	Port         string       `mapstructure:"port"`
	Storage      string       `mapstructure:"storage"`
	Saga         Saga         `mapstructure:"saga"`
	Participants Participants `mapstructure:"participants"`
	Database     Database     `mapstructure:"database"`
	AWS          AWS          `mapstructure:"aws"`
	Telemetry    Telemetry    `mapstructure:"telemetry"`
}

// Saga selects how steps reach the participants: "orchestration" calls
// their HTTP APIs directly, "choreography" publishes command events and
// awaits the replies.
type Saga struct {
	Mode        string        `mapstructure:"mode"`
	StepTimeout time.Duration `mapstructure:"step_timeout"`
}

type Participants struct {
	OrderURL     string `mapstructure:"order_url"`
	InventoryURL string `mapstructure:"inventory_url"`
	PaymentURL   string `mapstructure:"payment_url"`
}

type Database struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

type AWS struct {
	Region      string `mapstructure:"region"`
	SNSTopicArn string `mapstructure:"sns_topic_arn"`
	SQSQueueURL string `mapstructure:"sqs_queue_url"`
}

type Telemetry struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

func ReadConfig() (*Config, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return nil, fmt.Errorf("unable to get current file")
	}

	viper.SetConfigName(getConfigName())
	viper.SetConfigType("json")
	viper.AddConfigPath(filepath.Dir(filename))

	viper.AutomaticEnv()
	viper.SetEnvPrefix("ORDERFLOW")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

func getConfigName() string {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		return "local"
	}
	return env
}

func setDefaults() {
	viper.SetDefault("service_name", "saga-service")
	viper.SetDefault("env", getEnv("ENV", "local"))
	viper.SetDefault("port", getEnv("PORT", "8080"))
	viper.SetDefault("storage", getEnv("STORAGE", "memory"))

	viper.SetDefault("saga.mode", getEnv("SAGA_MODE", "orchestration"))
	viper.SetDefault("saga.step_timeout", "5s")

	viper.SetDefault("participants.order_url", getEnv("ORDER_SERVICE_URL", "http://localhost:8081"))
	viper.SetDefault("participants.payment_url", getEnv("PAYMENT_SERVICE_URL", "http://localhost:8082"))
	viper.SetDefault("participants.inventory_url", getEnv("INVENTORY_SERVICE_URL", "http://localhost:8083"))

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "password")
	viper.SetDefault("database.database", "orderflow")
	viper.SetDefault("database.ssl_mode", "disable")

	viper.SetDefault("aws.region", getEnv("AWS_DEFAULT_REGION", "us-east-1"))
	viper.SetDefault("aws.sns_topic_arn", getEnv("SNS_TOPIC_ARN", "arn:aws:sns:us-east-1:000000000000:orderflow-events"))
	viper.SetDefault("aws.sqs_queue_url", getEnv("SQS_QUEUE_URL", "http://localhost:4566/000000000000/saga-service-events"))

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.otlp_endpoint", getEnv("OTLP_ENDPOINT", "localhost:4318"))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetDatabaseURL constructs database URL from config
func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}
