package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host                      string
		Addr                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		PasswordResetRate         float64 // requests per second, per client IP
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	RedisConfig struct {
		Addr     string
		Password string
		DB       int
	}

	Config struct {
		Env                       string
		Build                     string
		Debug                     bool
		TestMode                  bool
		AppName                   string
		SecretKey                 string
		FrontendBaseURL           string
		WorkDir                   string
		RollbarToken              string
		SendgridApiKey            string
		PasswordResetTimeoutDelta time.Duration
		Server                    ServerConfig
		Database                  DatabaseConfig
		Redis                     RedisConfig

		defaultFromEmail string
	}
)

func (c Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: c.defaultFromEmail}
	}
	return *addr
}

func (c DatabaseConfig) Address() string {
	if c.Port == "" {
		return c.Host
	}
	return net.JoinHostPort(c.Host, c.Port)
}

// NewConfig loads the configuration for the current ENV (DEV by default) from the environment.
// Variables are prefixed with the env name, e.g. DEV_SECRET_KEY, PROD_DATABASE_HOST.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("build", "develop")
	v.SetDefault("debug", true)
	v.SetDefault("test_mode", false)
	v.SetDefault("app_name", "Shule")
	v.SetDefault("secret_key", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("default_from_email", "Shule <noreply@localhost>")
	v.SetDefault("frontend_base_url", "http://localhost:3000")
	v.SetDefault("rollbar_token", "")
	v.SetDefault("sendgrid_api_key", "")
	v.SetDefault("password_reset_timeout_delta", 3*24*time.Hour)

	v.SetDefault("server_host", "localhost")
	v.SetDefault("server_addr", ":8000")
	v.SetDefault("server_debug_host", ":4000")
	v.SetDefault("server_shutdown_timeout", 5*time.Second)
	v.SetDefault("jwt_expiration_delta", 7*24*time.Hour)
	v.SetDefault("jwt_refresh_expiration_delta", 4*time.Hour)
	v.SetDefault("password_reset_rate", 0.2)

	v.SetDefault("database_engine", "postgres")
	v.SetDefault("database_host", "localhost")
	v.SetDefault("database_port", "5432")
	v.SetDefault("database_name", "shule")
	v.SetDefault("database_user", "shule")
	v.SetDefault("database_password", "shule")
	v.SetDefault("database_admin_user", "postgres")
	v.SetDefault("database_admin_password", "postgres")
	v.SetDefault("database_disable_tls", true)

	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("test_mode", true)
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	wd := Getwd()
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Env:                       env,
		Build:                     v.GetString("build"),
		Debug:                     v.GetBool("debug"),
		TestMode:                  v.GetBool("test_mode"),
		AppName:                   v.GetString("app_name"),
		SecretKey:                 v.GetString("secret_key"),
		FrontendBaseURL:           strings.TrimSuffix(v.GetString("frontend_base_url"), "/"),
		WorkDir:                   wd,
		RollbarToken:              v.GetString("rollbar_token"),
		SendgridApiKey:            v.GetString("sendgrid_api_key"),
		PasswordResetTimeoutDelta: v.GetDuration("password_reset_timeout_delta"),
		Server: ServerConfig{
			Host:                      v.GetString("server_host"),
			Addr:                      v.GetString("server_addr"),
			DebugHost:                 v.GetString("server_debug_host"),
			ShutdownTimeout:           v.GetDuration("server_shutdown_timeout"),
			JWTExpirationDelta:        v.GetDuration("jwt_expiration_delta"),
			JWTRefreshExpirationDelta: v.GetDuration("jwt_refresh_expiration_delta"),
			PasswordResetRate:         v.GetFloat64("password_reset_rate"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database_engine"),
			Host:          v.GetString("database_host"),
			Port:          v.GetString("database_port"),
			Name:          v.GetString("database_name"),
			User:          v.GetString("database_user"),
			Password:      v.GetString("database_password"),
			AdminUser:     v.GetString("database_admin_user"),
			AdminPassword: v.GetString("database_admin_password"),
			DisableTLS:    v.GetBool("database_disable_tls"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis_addr"),
			Password: v.GetString("redis_password"),
			DB:       v.GetInt("redis_db"),
		},
		defaultFromEmail: v.GetString("default_from_email"),
	}
}

// NewTestConfig returns a Config suitable for tests: no env lookups, debug off, test mode on.
func NewTestConfig() *Config {
	return &Config{
		Env:                       "TEST",
		Build:                     "test",
		TestMode:                  true,
		AppName:                   "Shule",
		SecretKey:                 "test-secret",
		FrontendBaseURL:           "http://localhost:3000",
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		Server: ServerConfig{
			Host:                      "localhost",
			ShutdownTimeout:           time.Second,
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 4 * time.Hour,
			PasswordResetRate:         100,
		},
		defaultFromEmail: "Shule <noreply@localhost>",
	}
}
