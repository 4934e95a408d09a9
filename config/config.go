package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/viper"
)

var (
	globalConfig Config
	once         sync.Once
)

// DeletePolicy 提供者删除策略
type DeletePolicy string

const (
	// DeletePolicyBlock 仍有图片引用时拒绝删除
	DeletePolicyBlock DeletePolicy = "block"
	// DeletePolicyOrphan 允许删除，引用图片标记为孤立
	DeletePolicyOrphan DeletePolicy = "orphan"
)

// Config 扁平化配置结构体
type Config struct {
	// 服务器配置
	ServerHost         string        `mapstructure:"server_host"`
	ServerPort         int           `mapstructure:"server_port"`
	ServerReadTimeout  time.Duration `mapstructure:"server_read_timeout"`
	ServerWriteTimeout time.Duration `mapstructure:"server_write_timeout"`
	ServerIdleTimeout  time.Duration `mapstructure:"server_idle_timeout"`
	CORSAllowOrigin    string        `mapstructure:"cors_allow_origin"`

	// 数据目录（密钥文件、sqlite 默认位置）
	DataPath string `mapstructure:"data_path"`

	// 数据库配置
	DBType            string `mapstructure:"db_type"`
	DBHost            string `mapstructure:"db_host"`
	DBPort            int    `mapstructure:"db_port"`
	DBUsername        string `mapstructure:"db_username"`
	DBPassword        string `mapstructure:"db_password"`
	DBName            string `mapstructure:"db_name"`
	DBFilePath        string `mapstructure:"db_file_path"`
	DBMaxOpenConns    int    `mapstructure:"db_max_open_conns"`
	DBMaxIdleConns    int    `mapstructure:"db_max_idle_conns"`
	DBConnMaxLifetime int    `mapstructure:"db_conn_max_lifetime"`

	// 上传配置
	UploadMaxSizeMB       int `mapstructure:"upload_max_size_mb"`
	UploadMaxBatchFiles   int `mapstructure:"upload_max_batch_files"`

	// 图片优化配置
	OptimizeMaxDimension int `mapstructure:"optimize_max_dimension"`
	OptimizeJPEGQuality  int `mapstructure:"optimize_jpeg_quality"`

	// 存储后端配置
	StorageOpTimeout     time.Duration `mapstructure:"storage_op_timeout"`
	ProviderDeletePolicy string        `mapstructure:"provider_delete_policy"`

	// 认证配置
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTExpiry      time.Duration `mapstructure:"jwt_expiry"`

	// 限流配置
	RateLimitRPS        float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst      int           `mapstructure:"rate_limit_burst"`
	RateLimitExpireTime time.Duration `mapstructure:"rate_limit_expire_time"`

	// 缓存配置
	CacheType          string `mapstructure:"cache_type"`
	CacheTTL           int    `mapstructure:"cache_ttl"`
	CacheRedisAddr     string `mapstructure:"cache_redis_addr"`
	CacheRedisPassword string `mapstructure:"cache_redis_password"`
	CacheRedisDB       int    `mapstructure:"cache_redis_db"`
}

// InitConfig Initialize configuration
func InitConfig() {
	once.Do(loadConfig)
}

func Get() *Config {
	return &globalConfig
}

// MaxUploadBytes 上传大小上限（字节）
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.UploadMaxSizeMB) << 20
}

// DeletePolicyValue 解析删除策略，未知值回退到 block
func (c *Config) DeletePolicyValue() DeletePolicy {
	if DeletePolicy(c.ProviderDeletePolicy) == DeletePolicyOrphan {
		return DeletePolicyOrphan
	}
	return DeletePolicyBlock
}

// loadConfig Core configuration loading
func loadConfig() {
	setDefaults()

	viper.SetConfigFile(".env")
	viper.SetConfigType("env")

	if err := viper.ReadInConfig(); err != nil {
		fmt.Fprintln(os.Stderr, "Info: .env file not found, using defaults and environment variables")
	} else {
		fmt.Fprintln(os.Stderr, "Info: Loaded configuration from .env file")
	}

	viper.AutomaticEnv()
	for _, key := range viper.AllKeys() {
		viper.BindEnv(key)
	}

	if err := viper.Unmarshal(&globalConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: Unable to unmarshal config, %v\n", err)
		os.Exit(1)
	}
}

// setDefaults 设置默认值
func setDefaults() {
	viper.SetDefault("server_host", "127.0.0.1")
	viper.SetDefault("server_port", 8080)
	viper.SetDefault("server_read_timeout", "15s")
	viper.SetDefault("server_write_timeout", "60s")
	viper.SetDefault("server_idle_timeout", "120s")
	viper.SetDefault("cors_allow_origin", "*")

	viper.SetDefault("data_path", "./data")

	viper.SetDefault("db_type", "sqlite")
	viper.SetDefault("db_host", "localhost")
	viper.SetDefault("db_port", 5432)
	viper.SetDefault("db_username", "postgres")
	viper.SetDefault("db_password", "")
	viper.SetDefault("db_name", "image-vault")
	viper.SetDefault("db_file_path", "")
	viper.SetDefault("db_max_open_conns", 100)
	viper.SetDefault("db_max_idle_conns", 25)
	viper.SetDefault("db_conn_max_lifetime", 3600)

	viper.SetDefault("upload_max_size_mb", 50)
	viper.SetDefault("upload_max_batch_files", 10)

	viper.SetDefault("optimize_max_dimension", 2048)
	viper.SetDefault("optimize_jpeg_quality", 85)

	viper.SetDefault("storage_op_timeout", "30s")
	viper.SetDefault("provider_delete_policy", "block")

	viper.SetDefault("jwt_secret", "")
	viper.SetDefault("jwt_expiry", "24h")

	viper.SetDefault("rate_limit_rps", 20.0)
	viper.SetDefault("rate_limit_burst", 40)
	viper.SetDefault("rate_limit_expire_time", "10m")

	viper.SetDefault("cache_type", "ristretto")
	viper.SetDefault("cache_ttl", 300)
	viper.SetDefault("cache_redis_addr", "")
	viper.SetDefault("cache_redis_password", "")
	viper.SetDefault("cache_redis_db", 0)
}
