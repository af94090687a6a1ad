package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mmuslimabdulj/secret-santa/internal/client"
	"github.com/mmuslimabdulj/secret-santa/internal/identity"
	"github.com/mmuslimabdulj/secret-santa/internal/logging"
)

type Config struct {
	server   string
	stateDir string
	verbose  bool
}

func (c *Config) validate() error {
	u, err := url.Parse(c.server)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid server url (must be http:// or https://): %q", c.server)
	}
	if c.stateDir == "" {
		return errors.New("--state-dir must not be empty")
	}
	return nil
}

func defaultStateDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".santa"
	}
	return filepath.Join(dir, "santa")
}

// bindFlags lets every flag in fs be set from SANTA_<FLAG> when not given
// on the command line
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("SANTA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func newCmd(cfg *Config) *cobra.Command {
	v := newViper()

	cmd := &cobra.Command{
		Use:           "santa",
		Short:         "Run gift-ring rooms from the terminal.",
		SilenceErrors: true,
		Version:       releaseVersion,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cfg.validate()
		},
	}

	fs := cmd.PersistentFlags()
	fs.StringVarP(&cfg.server, "server", "s", "http://localhost:8080", "room service base url (env: SANTA_SERVER)")
	fs.StringVar(&cfg.stateDir, "state-dir", defaultStateDir(), "directory holding creator tokens and participant ids (env: SANTA_STATE_DIR)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: SANTA_VERBOSE)")
	bindFlags(v, fs)

	cmd.AddCommand(
		newCreateCmd(cfg, v),
		newJoinCmd(cfg, v),
		newMatchCmd(cfg, v),
		newWatchCmd(cfg),
		newRecipientCmd(cfg, v),
		newQRCmd(cfg, v),
	)

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("santa v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}

// env holds what a command needs at run time
type env struct {
	client *client.Client
	cache  *identity.BadgerCache
	log    *zap.Logger
}

func (e *env) Close() {
	_ = e.cache.Close()
	_ = e.log.Sync()
}

func (c *Config) open() (*env, error) {
	level := "silent"
	if c.verbose {
		level = "debug"
	}
	log, err := logging.New(level, "console")
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(c.stateDir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	cache, err := identity.OpenBadgerCache(filepath.Join(c.stateDir, "identity"))
	if err != nil {
		return nil, err
	}

	return &env{
		client: client.New(c.server, log),
		cache:  cache,
		log:    log,
	}, nil
}

// lookup returns the flag value when set, otherwise the cached identity
func lookup(ctx context.Context, cache identity.Cache, purpose identity.Purpose, roomID, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	value, ok, err := cache.Get(ctx, purpose, roomID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return value, nil
}
