package core

import (
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	EnginePostgres = "postgres"
	EngineSQLite   = "sqlite"
)

type (
	Config struct {
		Build            string
		Env              string // DEV (local; default), TEST, QA, PROD
		Debug            bool
		TestMode         bool
		AppName          string
		SecretKey        string
		RollbarToken     string
		SendgridAPIKey   string
		DefaultFromEmail mail.Address
		ReviewerEmails   []mail.Address // flag notifications
		FrontendBaseURL  string
		WorkDir          string
		Server           ServerConfig
		Database         DatabaseConfig
		Themes           ThemesConfig
		Flagging         FlaggingConfig
	}

	ServerConfig struct {
		Host               string
		DebugHost          string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		User          string
		Password      string
		Name          string // file path (or ":memory:") when Engine is sqlite
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	// ThemesConfig holds optional dictionary file overrides. Empty paths use the embedded dictionaries.
	ThemesConfig struct {
		ReflectionDictionary string
		CRPDictionary        string
	}

	FlaggingConfig struct {
		MinReflections         int
		FailureRateThreshold   float64
		ConcentrationThreshold float64
	}
)

func (dbc DatabaseConfig) Address() string {
	if dbc.Port == "" {
		return dbc.Host
	}
	return dbc.Host + ":" + dbc.Port
}

// NewConfig loads the configuration from defaults, the optional `config/.env.<env>` file and the environment.
// Environment variables are prefixed with the upper-cased env name, e.g. DEV_DATABASE_NAME.
func NewConfig() (*Config, error) {
	v := viper.New()

	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrap(err, "getting working directory")
	}

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("build", "develop")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "PrepCards")
	v.SetDefault("secretKey", "kx1!4@z0e&fw7p+_h(2qv9$u)=r3n#8dcm5-ab6yjt")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("defaultFromEmail", "PrepCards <noreply@localhost>")
	v.SetDefault("reviewerEmails", "")
	v.SetDefault("frontendBaseUrl", "http://localhost:3000")
	v.SetDefault("workDir", wd)
	v.SetDefault("server.host", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("database.engine", EngineSQLite)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "prepcards.db")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("themes.reflectionDictionary", "")
	v.SetDefault("themes.crpDictionary", "")
	v.SetDefault("flagging.minReflections", 5)
	v.SetDefault("flagging.failureRateThreshold", 0.30)
	v.SetDefault("flagging.concentrationThreshold", 0.40)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err = os.Stat(dotEnvPath); err == nil {
		if err = godotenv.Load(dotEnvPath); err != nil {
			return nil, errors.Wrapf(err, "loading %s", dotEnvPath)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "checking %s", dotEnvPath)
	}
	v.AutomaticEnv()

	conf := &Config{
		Build:           v.GetString("build"),
		Env:             env,
		Debug:           v.GetBool("debug"),
		TestMode:        v.GetBool("testMode"),
		AppName:         v.GetString("appName"),
		SecretKey:       v.GetString("secretKey"),
		RollbarToken:    v.GetString("rollbarToken"),
		SendgridAPIKey:  v.GetString("sendgridApiKey"),
		FrontendBaseURL: v.GetString("frontendBaseUrl"),
		WorkDir:         v.GetString("workDir"),
		Server: ServerConfig{
			Host:               v.GetString("server.host"),
			DebugHost:          v.GetString("server.debugHost"),
			ShutdownTimeout:    v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta: v.GetDuration("server.jwtExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        strings.ToLower(v.GetString("database.engine")),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			Name:          v.GetString("database.name"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Themes: ThemesConfig{
			ReflectionDictionary: v.GetString("themes.reflectionDictionary"),
			CRPDictionary:        v.GetString("themes.crpDictionary"),
		},
		Flagging: FlaggingConfig{
			MinReflections:         v.GetInt("flagging.minReflections"),
			FailureRateThreshold:   v.GetFloat64("flagging.failureRateThreshold"),
			ConcentrationThreshold: v.GetFloat64("flagging.concentrationThreshold"),
		},
	}

	from, err := mail.ParseAddress(v.GetString("defaultFromEmail"))
	if err != nil {
		return nil, errors.Wrap(err, "parsing defaultFromEmail")
	}
	conf.DefaultFromEmail = *from

	if conf.ReviewerEmails, err = parseAddressList(v.GetString("reviewerEmails")); err != nil {
		return nil, errors.Wrap(err, "parsing reviewerEmails")
	}

	if err = conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// validate reports configuration errors that must abort startup.
func (c *Config) validate() error {
	switch c.Database.Engine {
	case EnginePostgres:
		if c.Database.Host == "" {
			return errors.New("config: database.host is required for postgres")
		}
		if c.Database.Name == "" {
			return errors.New("config: database.name is required for postgres")
		}
	case EngineSQLite:
		if c.Database.Name == "" {
			return errors.New("config: database.name is required for sqlite")
		}
	default:
		return fmt.Errorf("config: unsupported database.engine %q", c.Database.Engine)
	}

	if c.Flagging.MinReflections < 1 {
		return errors.New("config: flagging.minReflections must be >= 1")
	}
	if c.Flagging.FailureRateThreshold <= 0 || c.Flagging.FailureRateThreshold > 1 {
		return errors.New("config: flagging.failureRateThreshold must be in (0, 1]")
	}
	if c.Flagging.ConcentrationThreshold <= 0 || c.Flagging.ConcentrationThreshold > 1 {
		return errors.New("config: flagging.concentrationThreshold must be in (0, 1]")
	}
	return nil
}

func parseAddressList(s string) ([]mail.Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	list, err := mail.ParseAddressList(s)
	if err != nil {
		return nil, err
	}
	addrs := make([]mail.Address, 0, len(list))
	for _, a := range list {
		addrs = append(addrs, *a)
	}
	return addrs, nil
}
