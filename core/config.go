package core

import (
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config carries all application settings. It is loaded once at start up
// via NewConfig and passed down explicitly; nothing reads the environment
// after that.
type Config struct {
	Debug            bool
	TestMode         bool
	Env              string // DEV (default), TEST, QA, PROD
	Build            string
	AppName          string
	SecretKey        []byte
	FrontendBaseURL  string
	DefaultFromEmail mail.Address
	WorkDir          string

	RollbarToken   string
	SendgridAPIKey string

	Server struct {
		Host            string
		DebugHost       string
		ShutdownTimeout time.Duration

		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	Session struct {
		// TTL is the absolute lifetime of a session record; expiry is not
		// extended on reads.
		TTL        time.Duration
		CookieName string
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	PasswordResetTimeoutDelta time.Duration
}

func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	// defaults
	v.SetDefault("debug", true)
	v.SetDefault("build", "dev")
	v.SetDefault("appName", "Clinica")
	v.SetDefault("secretKey", "j2u#0d&5m^ch-x!b8s(1q$yv*7zpn=4)wg+ek%93ro_afl6t")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "noreply@clinica.com")
	v.SetDefault("serverHost", ":8000")
	v.SetDefault("serverDebugHost", ":4000")
	v.SetDefault("serverShutdownTimeout", 5*time.Second)
	v.SetDefault("jwtExpirationDelta", 24*time.Hour)
	v.SetDefault("jwtRefreshExpirationDelta", 4*time.Hour)
	v.SetDefault("sessionTTL", 24*time.Hour)
	v.SetDefault("sessionCookieName", "clinica_session")
	v.SetDefault("redisAddr", "")
	v.SetDefault("redisPassword", "")
	v.SetDefault("redisDB", 0)
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)

	wd := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := &Config{
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		Env:              env,
		Build:            v.GetString("build"),
		AppName:          v.GetString("appName"),
		SecretKey:        []byte(v.GetString("secretKey")),
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		DefaultFromEmail: mail.Address{Address: v.GetString("defaultFromEmail")},
		WorkDir:          wd,

		RollbarToken:   v.GetString("rollbarToken"),
		SendgridAPIKey: v.GetString("sendgridApiKey"),

		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
	}
	conf.Server.Host = v.GetString("serverHost")
	conf.Server.DebugHost = v.GetString("serverDebugHost")
	conf.Server.ShutdownTimeout = v.GetDuration("serverShutdownTimeout")
	conf.Server.JWTExpirationDelta = v.GetDuration("jwtExpirationDelta")
	conf.Server.JWTRefreshExpirationDelta = v.GetDuration("jwtRefreshExpirationDelta")
	conf.Session.TTL = v.GetDuration("sessionTTL")
	conf.Session.CookieName = v.GetString("sessionCookieName")
	conf.Redis.Addr = v.GetString("redisAddr")
	conf.Redis.Password = v.GetString("redisPassword")
	conf.Redis.DB = v.GetInt("redisDB")
	return conf
}
