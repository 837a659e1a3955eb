package config

import (
	"fmt"

	"wxauth/pkg/database"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Database database.Config `mapstructure:"database"`
	MongoDB  MongoDBConfig   `mapstructure:"mongodb"`
	Redis    RedisConfig     `mapstructure:"redis"`
	JWT      JWTConfig       `mapstructure:"jwt"`
	WeChat   WeChatConfig    `mapstructure:"wechat"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port        int
	Mode        string
	AuthEnabled bool `mapstructure:"auth_enabled"` // 是否启用认证
}

// MongoDBConfig MongoDB配置
type MongoDBConfig struct {
	URI         string `mapstructure:"uri"`
	Database    string `mapstructure:"database"`
	MaxPoolSize uint64 `mapstructure:"max_pool_size"`
	MinPoolSize uint64 `mapstructure:"min_pool_size"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret             string
	AccessTokenExpire  int `mapstructure:"access_token_expire"`
	RefreshTokenExpire int `mapstructure:"refresh_token_expire"`
}

// WeChatConfig 微信公众号配置
type WeChatConfig struct {
	AppID          string `mapstructure:"app_id"`           // 公众号AppID
	AppSecret      string `mapstructure:"app_secret"`       // 公众号AppSecret
	Token          string `mapstructure:"token"`            // 服务器配置Token，签名校验用
	RedirectURI    string `mapstructure:"redirect_uri"`     // 网页授权回调地址
	APITimeout     int    `mapstructure:"api_timeout"`      // 微信API超时时间(秒)
	LoginSceneTTL  int    `mapstructure:"login_scene_ttl"`  // 登录二维码有效期(秒)
	SweepInterval  int    `mapstructure:"sweep_interval"`   // 过期场景清理间隔(秒)，0表示不清理
	EnableTestAPIs bool   `mapstructure:"enable_test_apis"` // 是否开放模拟扫码等测试接口
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml") // 设置配置文件类型
	viper.AutomaticEnv()        // 读取环境变量

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}
