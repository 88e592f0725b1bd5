package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/leadrelay/keygate/internal/config"
	"github.com/leadrelay/keygate/internal/service"
	"github.com/leadrelay/keygate/internal/store"
)

const devJWTSecret = "keygate-dev-secret-change-me"

// resolveDataDir returns the SQLite directory from --data-dir, the
// database.data_dir setting (KEYGATE_DATABASE_DATA_DIR), or ~/.keygate.
func resolveDataDir(cfg *config.Config) string {
	if dataDir != "" {
		return dataDir
	}
	if cfg.Database.DataDir != "" {
		return cfg.Database.DataDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".keygate")
}

// loadConfig loads the dotenv file, then the config file and environment.
func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}
	return config.Load(config.NewViper(cfgFile))
}

// app bundles what most commands need: config, logger, store and the key
// manager (with the shared Redis cache when configured, so CLI revocations
// invalidate it too).
type app struct {
	cfg    *config.Config
	logger *logrus.Logger
	store  *store.Store
	keys   *service.KeyManager
	redis  *redis.Client
}

// openApp loads configuration and opens the store. Operator commands pass
// quiet to keep info-level service logs off the terminal.
func openApp(ctx context.Context, quiet bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := config.NewLogger(cfg.Log, devMode, os.Stderr)
	if err != nil {
		return nil, err
	}
	if quiet && !devMode {
		logger.SetLevel(logrus.WarnLevel)
	}

	opts := cfg.Database.StoreOptions()
	if opts.Driver == store.DriverSQLite {
		opts.DataDir = resolveDataDir(cfg)
	}
	s, err := store.Open(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, store: s}
	var keyOpts []service.KeyManagerOption
	if cfg.Cache.RedisAddr != "" {
		client, err := service.NewRedisClient(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			s.Close()
			return nil, err
		}
		a.redis = client
		keyOpts = append(keyOpts, service.WithKeyCache(service.NewRedisKeyCache(client, cfg.Cache.KeyTTL)))
	}
	a.keys = service.NewKeyManager(s, logger, keyOpts...)
	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	a.store.Close()
}

// jwtSecret returns the configured session secret. Dev mode falls back to a
// fixed secret; otherwise an empty secret is an error.
func jwtSecret(cfg *config.Config, logger *logrus.Logger) (string, error) {
	if cfg.Auth.JWTSecret != "" {
		return cfg.Auth.JWTSecret, nil
	}
	if devMode {
		logger.Warn("auth.jwt_secret is not set, using the development secret")
		return devJWTSecret, nil
	}
	return "", errors.New("auth.jwt_secret is required (set KEYGATE_AUTH_JWT_SECRET or use --dev)")
}

func (a *app) sessions() (*service.SessionService, error) {
	secret, err := jwtSecret(a.cfg, a.logger)
	if err != nil {
		return nil, err
	}
	return service.NewSessionService(secret, a.cfg.Auth.JWTIssuer), nil
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(arg, what string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, arg)
	}
	return id, nil
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
