package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ssargent/filekv/pkg/config"
	"github.com/ssargent/filekv/pkg/di"
	"github.com/ssargent/filekv/pkg/logging"
	"github.com/ssargent/filekv/pkg/store"
)

// Version is set at build time
var Version = "dev"

var container = di.NewContainer()

// SetContainer injects the dependency container used by every command
func SetContainer(c *di.Container) {
	container = c
}

type ctxKey int

const (
	storeKey ctxKey = iota
	configKey
	loggerKey
	sessionKey
)

// session remembers the store a command opened so it is closed on every
// exit path, including a failed RunE where PersistentPostRunE never runs
type session struct {
	kv *store.Store
}

func (s *session) close() error {
	if s == nil || s.kv == nil {
		return nil
	}
	kv := s.kv
	s.kv = nil
	return kv.Close()
}

// skipStore marks commands that run without opening the store
const skipStore = "skip-store"

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "filekv",
		Short: "filekv - single-file embedded key-value store",
		Long: `filekv keeps a key-value store in one append-only file.

Every flag can also be set through the environment as FILEKV_<FLAG>
(for example FILEKV_FILE=./data/app.fkv). .env and .env.local in the
working directory are loaded first.`,
		SilenceUsage:       true,
		PersistentPreRunE:  setup,
		PersistentPostRunE: teardown,
	}

	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "Config file (default "+config.GetDefaultConfigPath()+" when present)")
	flags.StringP("file", "f", "", "Store file")
	flags.String("format", "", "Record format: json, binary, yaml, cbor")
	flags.String("lock-file", "", "Lock file (default <file>.lock)")
	flags.Bool("read-only", false, "Open the store read-only")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("log-format", "", "Log format: text, json")

	root.AddCommand(
		newCreateCmd(), newReadCmd(), newUpdateCmd(), newDeleteCmd(),
		newListCmd(), newCompactCmd(), newStatsCmd(),
		newLCreateCmd(), newLAddCmd(), newLGetCmd(), newLLenCmd(), newLPopCmd(), newLRemCmd(),
		newServeCmd(), newUpCmd(), newServiceCmd(), newInitCmd(), newVersionCmd(),
	)
	return root
}

// Execute runs the CLI and exits non-zero on failure
func Execute() {
	if err := ExecuteContext(context.Background(), NewRootCmd()); err != nil {
		os.Exit(1)
	}
}

// ExecuteContext runs root and closes the store the command opened,
// whether or not the command succeeded
func ExecuteContext(ctx context.Context, root *cobra.Command) error {
	sess := &session{}
	err := root.ExecuteContext(context.WithValue(ctx, sessionKey, sess))
	if cerr := sess.close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// loadConfig layers the config file, FILEKV_* variables and flags
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	v := viper.New()
	v.SetEnvPrefix("filekv")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}

	cfg := config.DefaultConfig()
	configPath := v.GetString("config")
	_, noStore := cmd.Annotations[skipStore]
	switch {
	case configPath != "" && (!noStore || config.ConfigExists(configPath)):
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	case configPath == "" && config.ConfigExists(config.GetDefaultConfigPath()):
		loaded, err := config.LoadConfig(config.GetDefaultConfigPath())
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	overrides := []struct {
		key string
		set func()
	}{
		{"file", func() { cfg.Store.Path = v.GetString("file") }},
		{"format", func() { cfg.Store.Format = v.GetString("format") }},
		{"lock-file", func() { cfg.Store.LockPath = v.GetString("lock-file") }},
		{"read-only", func() { cfg.Store.ReadOnly = v.GetBool("read-only") }},
		{"log-level", func() { cfg.Logging.Level = v.GetString("log-level") }},
		{"log-format", func() { cfg.Logging.Format = v.GetString("log-format") }},
		{"port", func() { cfg.Server.Port = v.GetInt("port") }},
		{"bind", func() { cfg.Server.Bind = v.GetString("bind") }},
		{"api-key", func() { cfg.Security.APIKey = v.GetString("api-key") }},
	}
	for _, o := range overrides {
		if v.IsSet(o.key) && v.GetString(o.key) != "" {
			o.set()
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setup(cmd *cobra.Command, _ []string) error {
	if err := bootstrapIfMissing(cmd); err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := logging.New(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, configKey, cfg)
	ctx = context.WithValue(ctx, loggerKey, logger)

	if _, skip := cmd.Annotations[skipStore]; !skip {
		kv, err := container.GetStoreOpener().OpenStore(cfg.Store, logger)
		if err != nil {
			return err
		}
		ctx = context.WithValue(ctx, storeKey, kv)
		sess, ok := ctx.Value(sessionKey).(*session)
		if !ok {
			sess = &session{}
			ctx = context.WithValue(ctx, sessionKey, sess)
		}
		sess.kv = kv
	}
	cmd.SetContext(ctx)
	return nil
}

func teardown(cmd *cobra.Command, _ []string) error {
	sess, _ := cmd.Context().Value(sessionKey).(*session)
	return sess.close()
}

func storeFrom(cmd *cobra.Command) (*store.Store, error) {
	kv, ok := cmd.Context().Value(storeKey).(*store.Store)
	if !ok {
		return nil, errors.New("store not found in context")
	}
	return kv, nil
}

func configFrom(cmd *cobra.Command) *config.Config {
	if cfg, ok := cmd.Context().Value(configKey).(*config.Config); ok {
		return cfg
	}
	return config.DefaultConfig()
}

func loggerFrom(cmd *cobra.Command) *slog.Logger {
	if l, ok := cmd.Context().Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
