package config

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type Config struct {
	PostgresHost            string `mapstructure:"postgres_host"              validate:"required"`
	PostgresUsername        string `mapstructure:"postgres_username"          validate:"required"`
	PostgresPassword        string `mapstructure:"postgres_password"`
	PostgresPort            string `mapstructure:"postgres_port"              validate:"required"`
	PostgresDatabase        string `mapstructure:"postgres_database"          validate:"required"`
	DBIntervalCB            uint32 `mapstructure:"db_interval_cb"`
	DBConsecutiveFailuresCB uint32 `mapstructure:"db_consecutive_failures_cb" validate:"gt=0"`

	RedisAddr               string `mapstructure:"redis_addr"`
	RedisPassword           string `mapstructure:"redis_password"`
	RedisDB                 int    `mapstructure:"redis_db"`
	RedisIntervalCB         uint32 `mapstructure:"redis_interval_cb"`
	RedisConsecutiveFailsCB uint32 `mapstructure:"redis_consecutive_failures_cb" validate:"gt=0"`

	KafkaEnabled               bool   `mapstructure:"kafka_enabled"`
	KafkaBootstrapServer       string `mapstructure:"kafka_bootstrap_server"        validate:"required_if=KafkaEnabled true"`
	KafkaUsername              string `mapstructure:"kafka_username"`
	KafkaPassword              string `mapstructure:"kafka_password"`
	KafkaInteractionTopic      string `mapstructure:"kafka_interaction_topic"       validate:"required"`
	KafkaInteractionGroupID    string `mapstructure:"kafka_interaction_group_id"    validate:"required"`
	KafkaGradeTopic            string `mapstructure:"kafka_grade_topic"             validate:"required"`
	KafkaGradeGroupID          string `mapstructure:"kafka_grade_group_id"          validate:"required"`
	KafkaFeedbackTopic         string `mapstructure:"kafka_feedback_topic"          validate:"required"`
	KafkaAbandonedTopic        string `mapstructure:"kafka_abandoned_topic"         validate:"required"`
	KafkaRetryMaxAttempts      uint   `mapstructure:"kafka_retry_max_attempts"`
	KafkaIntervalCB            uint32 `mapstructure:"kafka_interval_cb"`
	KafkaConsecutiveFailuresCB uint32 `mapstructure:"kafka_consecutive_failures_cb" validate:"gt=0"`

	LogLevel    string `mapstructure:"log_level"`
	LogFilePath string `mapstructure:"log_file_path"`

	MinioEnabled               bool   `mapstructure:"minio_enabled"`
	MinioEndpointURL           string `mapstructure:"minio_endpoint_url"            validate:"required_if=MinioEnabled true"`
	MinioAccessKey             string `mapstructure:"minio_access_key"`
	MinioSecretKey             string `mapstructure:"minio_secret_key"`
	MinioBucketName            string `mapstructure:"minio_bucket_name"`
	MinioSecure                bool   `mapstructure:"minio_secure"`
	MinioTimeout               int    `mapstructure:"minio_timeout"                 validate:"gt=0"`
	MinioMaxRetryAttempts      uint   `mapstructure:"minio_max_retry_attempts"`
	MinioRetryBackoffMin       int    `mapstructure:"minio_retry_backoff_min_seconds"`
	MinioRetryBackoffMax       int    `mapstructure:"minio_retry_backoff_max_seconds"`
	MinioIntervalCB            uint32 `mapstructure:"minio_interval_cb"`
	MinioConsecutiveFailuresCB uint32 `mapstructure:"minio_consecutive_failures_cb" validate:"gt=0"`
	QualityExportPathPrefix    string `mapstructure:"quality_export_path_prefix"`

	PoolSize           int `mapstructure:"pool_size"             validate:"gt=0"`
	SweepPoolSize      int `mapstructure:"sweep_pool_size"       validate:"gt=0"`
	DeadLetterPoolSize int `mapstructure:"dead_letter_pool_size" validate:"gt=0"`

	InteractionMaxPageSeconds int `mapstructure:"interaction_max_page_seconds" validate:"gt=0"`

	AbandonmentStalenessHours int    `mapstructure:"abandonment_staleness_hours" validate:"gt=0"`
	AbandonmentSweepInterval  int    `mapstructure:"abandonment_sweep_interval"  validate:"gt=0"`
	AbandonmentLockKey        string `mapstructure:"abandonment_lock_key"        validate:"required"`
	AbandonmentLockTTL        int    `mapstructure:"abandonment_lock_ttl"        validate:"gt=0"`

	GradingQualityFlagThreshold       float64 `mapstructure:"grading_quality_flag_threshold"       validate:"gte=0,ltfield=GradingQualitySuspiciousThreshold"`
	GradingQualitySuspiciousThreshold float64 `mapstructure:"grading_quality_suspicious_threshold" validate:"lte=100"`

	DeadLetterMaxRetries int `mapstructure:"deadletter_max_retries"`
	DeadLetterLimit      int `mapstructure:"deadletter_limit"`
	DeadLetterInterval   int `mapstructure:"deadletter_interval"`
	DeadLetterRetryDelay int `mapstructure:"deadletter_retry_delay"`
	DeadLetterClaimTTL   int `mapstructure:"deadletter_claim_ttl"   validate:"gt=0"`

	HealthCheckerMonitorInterval int `mapstructure:"health_checker_monitor_interval" validate:"gt=0"`

	HTTPPort    string `mapstructure:"http_port"`
	HTTPTimeout int    `mapstructure:"http_timeout"`

	PrometheusPort    string `mapstructure:"prometheus_port"`
	PrometheusTimeout int    `mapstructure:"prometheus_timeout"`
}

var Conf Config

func init() {
	err := loadEnvConfig(&Conf)
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.String("error", err.Error()))
	}
}

func loadEnvConfig(cfg *Config) error {
	viper.AutomaticEnv()
	viper.AllowEmptyEnv(true)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setupDefaults()

	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	err := viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError

		ok := errors.As(err, &configFileNotFoundError)
		if !ok {
			return err
		}
	}

	err = viper.Unmarshal(cfg)
	if err != nil {
		return err
	}

	err = validator.New().Struct(cfg)
	if err != nil {
		return err
	}

	return nil
}

func setupDefaults() {
	confType := reflect.TypeOf(Conf)
	for i := range confType.NumField() {
		field := confType.Field(i)
		viper.SetDefault(field.Tag.Get("mapstructure"), "")
	}

	viper.SetDefault("POSTGRES_HOST", "localhost")
	viper.SetDefault("POSTGRES_USERNAME", "callgrade")
	viper.SetDefault("POSTGRES_PORT", "5432")
	viper.SetDefault("POSTGRES_DATABASE", "callgrade")
	viper.SetDefault("DB_INTERVAL_CB", "30")
	viper.SetDefault("DB_CONSECUTIVE_FAILURES_CB", "3")
	viper.SetDefault("REDIS_DB", "0")
	viper.SetDefault("REDIS_INTERVAL_CB", "30")
	viper.SetDefault("REDIS_CONSECUTIVE_FAILURES_CB", "3")
	viper.SetDefault("KAFKA_ENABLED", "false")
	viper.SetDefault("KAFKA_INTERACTION_TOPIC", "callgrade-interactions")
	viper.SetDefault("KAFKA_INTERACTION_GROUP_ID", "callgrade-interactions-group")
	viper.SetDefault("KAFKA_GRADE_TOPIC", "callgrade-grades-submitted")
	viper.SetDefault("KAFKA_GRADE_GROUP_ID", "callgrade-grades-group")
	viper.SetDefault("KAFKA_FEEDBACK_TOPIC", "callgrade-grade-feedback")
	viper.SetDefault("KAFKA_ABANDONED_TOPIC", "callgrade-interactions-abandoned")
	viper.SetDefault("KAFKA_RETRY_MAX_ATTEMPTS", "3")
	viper.SetDefault("KAFKA_INTERVAL_CB", "30")
	viper.SetDefault("KAFKA_CONSECUTIVE_FAILURES_CB", "5")
	viper.SetDefault("LOG_LEVEL", "INFO")
	viper.SetDefault("MINIO_ENABLED", "false")
	viper.SetDefault("MINIO_BUCKET_NAME", "callgrade")
	viper.SetDefault("MINIO_SECURE", "true")
	viper.SetDefault("MINIO_TIMEOUT", "60")
	viper.SetDefault("MINIO_MAX_RETRY_ATTEMPTS", "3")
	viper.SetDefault("MINIO_RETRY_BACKOFF_MIN_SECONDS", "1")
	viper.SetDefault("MINIO_RETRY_BACKOFF_MAX_SECONDS", "10")
	viper.SetDefault("MINIO_INTERVAL_CB", "300")
	viper.SetDefault("MINIO_CONSECUTIVE_FAILURES_CB", "3")
	viper.SetDefault("QUALITY_EXPORT_PATH_PREFIX", "quality-audits")
	viper.SetDefault("POOL_SIZE", "10")
	viper.SetDefault("SWEEP_POOL_SIZE", "4")
	viper.SetDefault("DEAD_LETTER_POOL_SIZE", "3")
	viper.SetDefault("INTERACTION_MAX_PAGE_SECONDS", "7200")
	viper.SetDefault("ABANDONMENT_STALENESS_HOURS", "24")
	viper.SetDefault("ABANDONMENT_SWEEP_INTERVAL", "60")
	viper.SetDefault("ABANDONMENT_LOCK_KEY", "callgrade:detect-abandoned-calls")
	viper.SetDefault("ABANDONMENT_LOCK_TTL", "600")
	viper.SetDefault("GRADING_QUALITY_FLAG_THRESHOLD", "25")
	viper.SetDefault("GRADING_QUALITY_SUSPICIOUS_THRESHOLD", "50")
	viper.SetDefault("DEADLETTER_MAX_RETRIES", "10")
	viper.SetDefault("DEADLETTER_LIMIT", "100")
	viper.SetDefault("DEADLETTER_INTERVAL", "1")
	viper.SetDefault("DEADLETTER_RETRY_DELAY", "1")
	viper.SetDefault("DEADLETTER_CLAIM_TTL", "10")
	viper.SetDefault("HEALTH_CHECKER_MONITOR_INTERVAL", "60")
	viper.SetDefault("HTTP_PORT", "8080")
	viper.SetDefault("HTTP_TIMEOUT", "30")
	viper.SetDefault("PROMETHEUS_PORT", "2112")
	viper.SetDefault("PROMETHEUS_TIMEOUT", "60")
}
