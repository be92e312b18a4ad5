// Command appcache inspects and edits an appcache SQLite database.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/unkn0wn-root/appcache"
	"github.com/unkn0wn-root/appcache/codec"
	logruslog "github.com/unkn0wn-root/appcache/log/logrus"
	"github.com/unkn0wn-root/appcache/provider/sqlite"
)

var (
	errMiss            = errors.New("not found")
	errMaxSizeRequired = errors.New("set evicts down to the size budget; pass --max-size (or APPCACHE_MAX_SIZE) matching the database")
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type app struct {
	v *viper.Viper
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:          "appcache",
		Short:        "Inspect and edit an appcache SQLite database",
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.loadConfig()
		},
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "config file (yaml, json or toml)")
	pf.String("db", "appcache.db", "path of the cache database")
	pf.String("table", sqlite.DefaultTable, "cache table name")
	pf.String("max-size", "", "size budget, e.g. 10MiB or 500kB; required by set")
	pf.String("prefix", appcache.DefaultPrefix, "key prefix")
	pf.String("codec", "msgpack", "value codec: msgpack, json, cbor or raw")
	pf.String("log-level", "warn", "log level: debug, info, warn or error")
	for _, name := range []string{"config", "db", "table", "max-size", "prefix", "codec", "log-level"} {
		_ = a.v.BindPFlag(name, pf.Lookup(name))
	}

	a.v.SetEnvPrefix("appcache")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	root.AddCommand(a.getCmd(), a.setCmd(), a.delCmd(), a.ttlCmd(), a.statsCmd(), a.clearCmd())
	return root
}

func (a *app) loadConfig() error {
	path := a.v.GetString("config")
	if path == "" {
		return nil
	}
	a.v.SetConfigFile(path)
	if err := a.v.ReadInConfig(); err != nil {
		return fmt.Errorf("unable to read config file: %w", err)
	}
	return nil
}

// maxSize returns the configured budget, or 0 when none was given. Only
// writes evict, so commands that do not write can run without one.
func (a *app) maxSize() (int64, error) {
	s := a.v.GetString("max-size")
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid max-size: %w", err)
	}
	if n == 0 {
		return 0, errors.New("invalid max-size: must be positive")
	}
	return int64(n), nil
}

func (a *app) serializer() (codec.Serializer, error) {
	switch name := strings.ToLower(a.v.GetString("codec")); name {
	case "", "msgpack":
		return codec.Msgpack{}, nil
	case "json":
		return codec.JSON{}, nil
	case "cbor":
		return codec.NewCBOR(false)
	case "raw":
		return codec.Raw{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

func (a *app) logger() (appcache.Logger, error) {
	lvl, err := logrus.ParseLevel(a.v.GetString("log-level"))
	if err != nil {
		return nil, err
	}
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(lvl)
	return logruslog.New(l), nil
}

// open returns the store and a façade over it. Closing the façade closes the store.
func (a *app) open(ctx context.Context) (*appcache.Cache, *sqlite.Store, error) {
	budget, err := a.maxSize()
	if err != nil {
		return nil, nil, err
	}
	ser, err := a.serializer()
	if err != nil {
		return nil, nil, err
	}
	lg, err := a.logger()
	if err != nil {
		return nil, nil, err
	}
	st, err := sqlite.Open(ctx, sqlite.Config{
		Path:         a.v.GetString("db"),
		Table:        a.v.GetString("table"),
		MaxSizeBytes: budget,
	})
	if err != nil {
		return nil, nil, err
	}
	c, err := appcache.New(appcache.Options{
		Prefix:     a.v.GetString("prefix"),
		Provider:   st,
		Serializer: ser,
		Logger:     lg,
	})
	if err != nil {
		_ = st.Close(ctx)
		return nil, nil, err
	}
	return c, st, nil
}

// withCache runs fn against an opened cache and always closes it.
func (a *app) withCache(cmd *cobra.Command, fn func(ctx context.Context, c *appcache.Cache, st *sqlite.Store) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	c, st, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close(ctx) }()
	return fn(ctx, c, st)
}

// keyOf maps "users/1" to a key with segments ["users", "1"].
func keyOf(arg string) appcache.Key {
	return appcache.NewKey(strings.Split(arg, "/")...)
}
