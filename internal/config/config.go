package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Game      GameConfig      `mapstructure:"game"`
	Log       LogConfig       `mapstructure:"log"`
	Security  SecurityConfig  `mapstructure:"security"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig 会话缓存配置
// Enabled=false 时退化为进程内缓存
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// WebSocketConfig WebSocket配置
type WebSocketConfig struct {
	Path              string        `mapstructure:"path"`
	ReadBufferSize    int           `mapstructure:"read_buffer_size"`
	WriteBufferSize   int           `mapstructure:"write_buffer_size"`
	MaxMessageSize    int64         `mapstructure:"max_message_size"`
	PingInterval      time.Duration `mapstructure:"ping_interval"`
	PongTimeout       time.Duration `mapstructure:"pong_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	EnableCompression bool          `mapstructure:"enable_compression"`
}

// GameConfig 游戏配置
type GameConfig struct {
	MaxPlayers     int           `mapstructure:"max_players"`
	MaxHP          int           `mapstructure:"max_hp"`
	ReconnectGrace time.Duration `mapstructure:"reconnect_grace"`
	SyncInterval   time.Duration `mapstructure:"sync_interval"`
	StateTTL       time.Duration `mapstructure:"state_ttl"`
	RoomListTTL    time.Duration `mapstructure:"room_list_ttl"`
	CodeAttempts   int           `mapstructure:"code_attempts"`
	EventLogCap    int           `mapstructure:"event_log_cap"`
	SessionTimeout time.Duration `mapstructure:"session_timeout"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	JWT JWTConfig `mapstructure:"jwt"`
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret       string `mapstructure:"secret"`
	ExpireHours  int    `mapstructure:"expire_hours"`
	RefreshHours int    `mapstructure:"refresh_hours"`
}

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
	v    *viper.Viper
)

// Init 初始化配置
func Init(configPath string) error {
	var err error
	once.Do(func() {
		v = viper.New()

		// 设置配置文件路径
		if configPath != "" {
			v.SetConfigFile(configPath)
		} else {
			v.SetConfigName("config")
			v.SetConfigType("yaml")
			v.AddConfigPath("./config")
			v.AddConfigPath(".")
		}

		// 设置环境变量前缀
		v.SetEnvPrefix("PUZZLE_PARTY")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		// 设置默认值
		setDefaults(v)

		// 读取配置文件
		if err = v.ReadInConfig(); err != nil {
			// 如果配置文件不存在，使用默认配置
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return
			}
			err = nil
		}

		// 解析配置到结构体
		cfg = &Config{}
		err = v.Unmarshal(cfg)
	})

	return err
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "development")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// 数据库默认配置
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/puzzle-party.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.log_level", "info")
	v.SetDefault("database.auto_migrate", true)

	// 缓存默认配置
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")

	// WebSocket默认配置
	v.SetDefault("websocket.path", "/ws")
	v.SetDefault("websocket.read_buffer_size", 1024)
	v.SetDefault("websocket.write_buffer_size", 1024)
	v.SetDefault("websocket.max_message_size", 8192)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_timeout", "60s")
	v.SetDefault("websocket.write_timeout", "10s")
	v.SetDefault("websocket.enable_compression", true)

	// 游戏默认配置
	v.SetDefault("game.max_players", 3)
	v.SetDefault("game.max_hp", 10)
	v.SetDefault("game.reconnect_grace", "60s")
	v.SetDefault("game.sync_interval", "5s")
	v.SetDefault("game.state_ttl", "30m")
	v.SetDefault("game.room_list_ttl", "10s")
	v.SetDefault("game.code_attempts", 5)
	v.SetDefault("game.event_log_cap", 1000)
	v.SetDefault("game.session_timeout", "2h")

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "both")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "puzzle-party.log")
	v.SetDefault("log.file.max_size", 100)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 7)
	v.SetDefault("log.file.compress", true)

	// 安全默认配置
	v.SetDefault("security.jwt.expire_hours", 24)
	v.SetDefault("security.jwt.refresh_hours", 168)
}

// Get 获取配置实例
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch 监听配置文件变化
func Watch(callback func(*Config)) {
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		mu.Lock()
		defer mu.Unlock()

		newCfg := &Config{}
		if err := v.Unmarshal(newCfg); err != nil {
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}

		cfg = newCfg

		if callback != nil {
			callback(cfg)
		}

		fmt.Println("配置已重新加载")
	})
}

// GetString 获取字符串配置
func GetString(key string) string {
	return v.GetString(key)
}

// GetInt 获取整数配置
func GetInt(key string) int {
	return v.GetInt(key)
}

// GetBool 获取布尔配置
func GetBool(key string) bool {
	return v.GetBool(key)
}

// GetDuration 获取时间间隔配置
func GetDuration(key string) time.Duration {
	return v.GetDuration(key)
}

// IsSet 检查配置项是否存在
func IsSet(key string) bool {
	return v.IsSet(key)
}
