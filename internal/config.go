package internal

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration 讓 YAML 接受 "15s" 這樣的時長字面值
// （yaml.v3 不原生支援 time.Duration）。
type Duration time.Duration

// UnmarshalYAML 實現 yaml.Unmarshaler。
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("無效的時長 %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std 轉回標準庫的 time.Duration。
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config 服務運行配置。
//
// 優先級：環境變數 > 配置檔 > 預設值。
type Config struct {
	Server struct {
		Port         int      `yaml:"port"`
		ReadTimeout  Duration `yaml:"read_timeout"`
		WriteTimeout Duration `yaml:"write_timeout"`
		IdleTimeout  Duration `yaml:"idle_timeout"`
		// AllowedOrigin 允許的跨域來源前綴；留空表示允許所有來源。
		AllowedOrigin string `yaml:"allowed_origin"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// DefaultConfig 返回預設配置。
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8080
	cfg.Server.ReadTimeout = Duration(15 * time.Second)
	cfg.Server.WriteTimeout = Duration(15 * time.Second)
	cfg.Server.IdleTimeout = Duration(60 * time.Second)
	cfg.Server.AllowedOrigin = "http://127.0.0.1:5500"
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	return cfg
}

// LoadConfig 載入配置。path 為空時直接使用預設值。
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("讀取配置檔失敗: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置檔失敗: %w", err)
		}
	}

	// 環境變數覆蓋
	if port := os.Getenv("PORT"); port != "" {
		val, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("無效的 PORT 環境變數: %q", port)
		}
		cfg.Server.Port = val
	}
	if origin, ok := os.LookupEnv("ALLOWED_ORIGIN"); ok {
		cfg.Server.AllowedOrigin = origin
	}

	return cfg, nil
}

// Addr 返回服務監聽地址。
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
