package config // package config loads application configuration from the environment

import (
    "fmt"
    "strings"
    "time"
    _ "time/tzdata" // CLINIC_TZ must resolve in minimal containers

    "github.com/joho/godotenv"
    "github.com/spf13/viper"
)

// v reads every key straight from the environment on each lookup so that
// values set after start-up (and in tests through t.Setenv) are seen.
var v = newViper()

func newViper() *viper.Viper {
    x := viper.New()
    x.AutomaticEnv()
    x.SetDefault("APP_ENV", "dev")
    x.SetDefault("APP_PORT", "8080")
    x.SetDefault("LOG_LEVEL", "info")
    x.SetDefault("CLINIC_TZ", "UTC")
    return x
}

// requiredKeys must be present for the server to start.
var requiredKeys = []string{"DB_USER", "DB_HOST", "DB_PORT", "DB_NAME", "JWT_SECRET"}

// Config holds the core runtime configuration values.  Each field
// corresponds to an environment variable.  Concern specific settings live
// in their own Load* functions next to this file.
type Config struct {
    Env       string         // application environment (e.g. "dev", "prod")
    Port      string         // HTTP port to listen on
    LogLevel  string         // zerolog level name
    DBUser    string         // database username
    DBPass    string         // database password (optional)
    DBHost    string         // database host address
    DBPort    string         // database port number
    DBName    string         // database name
    JWTSecret string         // secret that signed the access tokens
    Location  *time.Location // clinic wall clock used for "today"
}

// IsDev reports whether the process runs in a development environment.
func (c Config) IsDev() bool {
    switch strings.ToLower(c.Env) {
    case "dev", "development", "local":
        return true
    }
    return false
}

// LoadDotEnv reads a .env file from the working directory when one is
// present.  Variables already set in the environment win.
func LoadDotEnv() {
    _ = godotenv.Load()
}

// Load reads configuration values and returns a Config.  Every key in
// requiredKeys must be set; the error lists all missing keys at once.
func Load() (Config, error) {
    var missing []string
    for _, k := range requiredKeys {
        if strings.TrimSpace(v.GetString(k)) == "" {
            missing = append(missing, k)
        }
    }
    if len(missing) > 0 {
        return Config{}, fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
    }
    loc, err := time.LoadLocation(v.GetString("CLINIC_TZ"))
    if err != nil {
        return Config{}, fmt.Errorf("invalid CLINIC_TZ %q: %w", v.GetString("CLINIC_TZ"), err)
    }
    return Config{
        Env:       v.GetString("APP_ENV"),
        Port:      v.GetString("APP_PORT"),
        LogLevel:  v.GetString("LOG_LEVEL"),
        DBUser:    v.GetString("DB_USER"),
        DBPass:    v.GetString("DB_PASS"),
        DBHost:    v.GetString("DB_HOST"),
        DBPort:    v.GetString("DB_PORT"),
        DBName:    v.GetString("DB_NAME"),
        JWTSecret: v.GetString("JWT_SECRET"),
        Location:  loc,
    }, nil
}
