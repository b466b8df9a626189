package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hairizuanbinnoorazman/forum-autofill/retry"
)

// Config holds all application configuration.
type Config struct {
	Log      LogConfig
	Browser  BrowserConfig
	Session  SessionConfig
	Forum    ForumConfig
	Budgets  BudgetsConfig
	Database DatabaseConfig
	Storage  StorageConfig
	Server   ServerConfig
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string
}

// BrowserConfig selects the automation driver and how to reach it.
type BrowserConfig struct {
	Driver         string // "devtools-mcp" or "rod"
	MCPCommand     string
	MCPArgs        []string
	MCPURL         string
	ToolPrefix     string
	ControlURL     string
	ConnectTimeout time.Duration
}

// SessionConfig holds protocol session configuration.
type SessionConfig struct {
	BusyPolicy string
}

// DescriptorConfig describes one page control.
type DescriptorConfig struct {
	Names    []string
	Roles    []string
	Contains []string
	Attrs    map[string]string
}

// ForumConfig holds the target site configuration.
type ForumConfig struct {
	URL           string
	AllowedHosts  []string
	RequireHTTPS  bool
	PathContains  []string
	CreateControl DescriptorConfig
	SubjectField  DescriptorConfig
	BodyEditor    DescriptorConfig
	SubmitLabels  []string
}

// BudgetsConfig holds timeouts and retry budgets.
type BudgetsConfig struct {
	RoundTripTimeout  time.Duration
	NavigationTimeout time.Duration
	PageLoad          retry.Policy
	Locate            retry.Policy
	FormLoad          retry.Policy
	Verify            retry.Policy
}

// DatabaseConfig holds run history database configuration.
type DatabaseConfig struct {
	Driver       string // "mysql", "sqlite" or "none"
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	Path         string
	MaxOpenConns int
	MaxIdleConns int
}

// StorageConfig holds snapshot archive configuration.
type StorageConfig struct {
	Type     string // "none", "local" or "s3"
	BaseDir  string
	S3Bucket string
	S3Region string
	S3Prefix string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config

	config.Log.Level = v.GetString("log.level")
	config.Log.Format = v.GetString("log.format")

	config.Browser.Driver = v.GetString("browser.driver")
	config.Browser.MCPCommand = v.GetString("browser.mcp_command")
	config.Browser.MCPArgs = v.GetStringSlice("browser.mcp_args")
	config.Browser.MCPURL = v.GetString("browser.mcp_url")
	config.Browser.ToolPrefix = v.GetString("browser.tool_prefix")
	config.Browser.ControlURL = v.GetString("browser.control_url")
	config.Browser.ConnectTimeout = v.GetDuration("browser.connect_timeout")

	config.Session.BusyPolicy = v.GetString("session.busy_policy")

	config.Forum.URL = v.GetString("forum.url")
	config.Forum.AllowedHosts = v.GetStringSlice("forum.allowed_hosts")
	config.Forum.RequireHTTPS = v.GetBool("forum.require_https")
	config.Forum.PathContains = v.GetStringSlice("forum.path_contains")
	config.Forum.CreateControl = descriptorConfig(v, "forum.create_control")
	config.Forum.SubjectField = descriptorConfig(v, "forum.subject_field")
	config.Forum.BodyEditor = descriptorConfig(v, "forum.body_editor")
	config.Forum.SubmitLabels = v.GetStringSlice("forum.submit_labels")

	config.Budgets.RoundTripTimeout = v.GetDuration("budgets.round_trip_timeout")
	config.Budgets.NavigationTimeout = v.GetDuration("budgets.navigation_timeout")
	config.Budgets.PageLoad = policyConfig(v, "budgets.page_load")
	config.Budgets.Locate = policyConfig(v, "budgets.locate")
	config.Budgets.FormLoad = policyConfig(v, "budgets.form_load")
	config.Budgets.Verify = policyConfig(v, "budgets.verify")

	config.Database.Driver = v.GetString("database.driver")
	config.Database.Host = v.GetString("database.host")
	config.Database.Port = v.GetInt("database.port")
	config.Database.User = v.GetString("database.user")
	config.Database.Password = v.GetString("database.password")
	config.Database.Database = v.GetString("database.database")
	config.Database.Path = v.GetString("database.path")
	config.Database.MaxOpenConns = v.GetInt("database.max_open_conns")
	config.Database.MaxIdleConns = v.GetInt("database.max_idle_conns")

	config.Storage.Type = v.GetString("storage.type")
	config.Storage.BaseDir = v.GetString("storage.base_dir")
	config.Storage.S3Bucket = v.GetString("storage.s3_bucket")
	config.Storage.S3Region = v.GetString("storage.s3_region")
	config.Storage.S3Prefix = v.GetString("storage.s3_prefix")

	config.Server.Host = v.GetString("server.host")
	config.Server.Port = v.GetInt("server.port")
	config.Server.ReadTimeout = v.GetDuration("server.read_timeout")
	config.Server.WriteTimeout = v.GetDuration("server.write_timeout")

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("browser.driver", "devtools-mcp")
	v.SetDefault("browser.mcp_command", "npx")
	v.SetDefault("browser.mcp_args", []string{"-y", "chrome-devtools-mcp@latest", "--browserUrl=http://127.0.0.1:9222"})
	v.SetDefault("browser.mcp_url", "")
	v.SetDefault("browser.tool_prefix", "")
	v.SetDefault("browser.control_url", "http://127.0.0.1:9222")
	v.SetDefault("browser.connect_timeout", "120s")

	v.SetDefault("session.busy_policy", "queue")

	v.SetDefault("forum.url", "")
	v.SetDefault("forum.allowed_hosts", []string{})
	v.SetDefault("forum.require_https", true)
	v.SetDefault("forum.path_contains", []string{})
	v.SetDefault("forum.create_control.names", []string{"Add discussion topic", "Add a new discussion topic"})
	v.SetDefault("forum.create_control.roles", []string{"button", "link"})
	v.SetDefault("forum.create_control.contains", []string{"add discussion", "new discussion"})
	v.SetDefault("forum.create_control.attrs", map[string]string{})
	v.SetDefault("forum.subject_field.names", []string{"Subject"})
	v.SetDefault("forum.subject_field.roles", []string{"textbox"})
	v.SetDefault("forum.subject_field.contains", []string{})
	v.SetDefault("forum.subject_field.attrs", map[string]string{"id": "id_subject", "name": "subject"})
	v.SetDefault("forum.body_editor.names", []string{"Message", "Rich text area"})
	v.SetDefault("forum.body_editor.roles", []string{"textbox", "document", "iframe"})
	v.SetDefault("forum.body_editor.contains", []string{"message", "rich text area"})
	v.SetDefault("forum.body_editor.attrs", map[string]string{"id": "id_message"})
	v.SetDefault("forum.submit_labels", []string{"Post to forum", "Submit", "Save changes"})

	v.SetDefault("budgets.round_trip_timeout", "30s")
	v.SetDefault("budgets.navigation_timeout", "30s")
	setPolicyDefaults(v, "budgets.page_load", 10, "250ms", "2s")
	setPolicyDefaults(v, "budgets.locate", 5, "250ms", "2s")
	setPolicyDefaults(v, "budgets.form_load", 8, "250ms", "2s")
	setPolicyDefaults(v, "budgets.verify", 3, "250ms", "1s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.user", "root")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.database", "forum_autofill")
	v.SetDefault("database.path", "./data/forumfill.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)

	v.SetDefault("storage.type", "none")
	v.SetDefault("storage.base_dir", "./snapshots")
	v.SetDefault("storage.s3_bucket", "")
	v.SetDefault("storage.s3_region", "us-east-1")
	v.SetDefault("storage.s3_prefix", "snapshots")

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	// serve raises this to the fill deadline derived from the budgets.
	v.SetDefault("server.write_timeout", "3m")
}

func setPolicyDefaults(v *viper.Viper, key string, attempts int, initial, max string) {
	v.SetDefault(key+".attempts", attempts)
	v.SetDefault(key+".initial", initial)
	v.SetDefault(key+".max", max)
}

func policyConfig(v *viper.Viper, key string) retry.Policy {
	return retry.Policy{
		Attempts:   v.GetInt(key + ".attempts"),
		Initial:    v.GetDuration(key + ".initial"),
		Max:        v.GetDuration(key + ".max"),
		Multiplier: 2,
	}
}

func descriptorConfig(v *viper.Viper, key string) DescriptorConfig {
	return DescriptorConfig{
		Names:    v.GetStringSlice(key + ".names"),
		Roles:    v.GetStringSlice(key + ".roles"),
		Contains: v.GetStringSlice(key + ".contains"),
		Attrs:    v.GetStringMapString(key + ".attrs"),
	}
}
