package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/appcache"
	"github.com/unkn0wn-root/appcache/internal/util"
	pr "github.com/unkn0wn-root/appcache/provider"
	"github.com/unkn0wn-root/appcache/provider/sqlite"
)

func (a *app) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "get KEY",
		Short:   "Print the value stored under KEY",
		Example: "appcache get users/1 --db cache.db",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCache(cmd, func(ctx context.Context, c *appcache.Cache, _ *sqlite.Store) error {
				var v any
				ok, err := c.Get(ctx, keyOf(args[0]), &v)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%s: %w", args[0], errMiss)
				}
				return printValue(cmd, v)
			})
		},
	}
}

func printValue(cmd *cobra.Command, v any) error {
	switch x := v.(type) {
	case string:
		fmt.Fprintln(cmd.OutOrStdout(), x)
		return nil
	case []byte:
		fmt.Fprintln(cmd.OutOrStdout(), string(x))
		return nil
	}
	b, err := json.MarshalIndent(jsonSafe(v), "", "  ")
	if err != nil {
		fmt.Fprintln(cmd.OutOrStdout(), fmt.Sprint(v))
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}

// jsonSafe converts map[any]any, which CBOR and msgpack may produce, into
// map[string]any so it can be printed as JSON.
func jsonSafe(v any) any {
	switch x := v.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, val := range x {
			m[fmt.Sprint(k)] = jsonSafe(val)
		}
		return m
	case map[string]any:
		for k, val := range x {
			x[k] = jsonSafe(val)
		}
		return x
	case []any:
		for i := range x {
			x[i] = jsonSafe(x[i])
		}
		return x
	default:
		return v
	}
}

func (a *app) setCmd() *cobra.Command {
	var (
		ttl      time.Duration
		compress bool
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:     "set KEY VALUE",
		Short:   "Store VALUE under KEY",
		Example: "appcache set users/1 '{\"name\":\"Ada\"}' --json --ttl 10m",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.v.GetString("max-size") == "" {
				return errMaxSizeRequired
			}
			var value any = args[1]
			if asJSON {
				if err := json.Unmarshal([]byte(args[1]), &value); err != nil {
					return fmt.Errorf("value is not valid JSON: %w", err)
				}
			}
			return a.withCache(cmd, func(ctx context.Context, c *appcache.Cache, _ *sqlite.Store) error {
				k := appcache.NewKey(keyOf(args[0]).Segments()...)
				if compress {
					k = k.CompressAbove(0)
				}
				return c.Set(ctx, k, value, ttl)
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "time to live; 0 never expires")
	cmd.Flags().BoolVar(&compress, "compress", false, "gzip the serialized value")
	cmd.Flags().BoolVar(&asJSON, "json", false, "parse VALUE as JSON before storing")
	return cmd
}

func (a *app) delCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "del KEY...",
		Aliases: []string{"invalidate"},
		Short:   "Remove the values stored under the given keys",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCache(cmd, func(ctx context.Context, c *appcache.Cache, _ *sqlite.Store) error {
				for _, arg := range args {
					if err := c.Invalidate(ctx, keyOf(arg)); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func (a *app) ttlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ttl KEY",
		Short: "Print the remaining lifetime of KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCache(cmd, func(ctx context.Context, c *appcache.Cache, st *sqlite.Store) error {
				raw := util.RawKey(c.Prefix(), "", false, keyOf(args[0]).Segments())
				d, ok, err := st.TTL(ctx, raw)
				if err != nil {
					return err
				}
				switch {
				case !ok:
					return fmt.Errorf("%s: %w", args[0], errMiss)
				case d == pr.NoExpiry:
					fmt.Fprintln(cmd.OutOrStdout(), "never expires")
				default:
					fmt.Fprintf(cmd.OutOrStdout(), "%s (expires %s)\n", d.Round(time.Second), humanize.Time(time.Now().Add(d)))
				}
				return nil
			})
		},
	}
}

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print entry count and size usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withCache(cmd, func(ctx context.Context, _ *appcache.Cache, st *sqlite.Store) error {
				n, size, err := st.Usage(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "entries: %s\n", humanize.Comma(int64(n)))
				if a.v.GetString("max-size") == "" {
					fmt.Fprintf(cmd.OutOrStdout(), "size:    %s\n", humanize.IBytes(uint64(size)))
					return nil
				}
				budget := st.MaxSizeBytes()
				pct := float64(size) / float64(budget) * 100
				fmt.Fprintf(cmd.OutOrStdout(), "size:    %s / %s (%.1f%%)\n", humanize.IBytes(uint64(size)), humanize.IBytes(uint64(budget)), pct)
				return nil
			})
		},
	}
}

func (a *app) clearCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every entry in the database, across all prefixes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !force {
				return fmt.Errorf("clear removes every entry in the database; pass --force to confirm")
			}
			return a.withCache(cmd, func(ctx context.Context, c *appcache.Cache, _ *sqlite.Store) error {
				return c.Clear(ctx)
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "confirm clearing the database")
	return cmd
}
