package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/syssam/persist"
	"github.com/syssam/persist/dialect/sql"
	"github.com/syssam/persist/engine"
	"github.com/syssam/persist/identifier"
	"github.com/syssam/persist/schema"
)

type options struct {
	dialect  string
	config   string
	dsn      string
	ids      map[string]string
	watch    bool
	logLevel string
}

func newRootCmd() *cobra.Command {
	var o options
	cmd := &cobra.Command{
		Use:           "persist-plan [mapping.yaml]",
		Short:         "Print the SQL generated for entity mappings",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), args[0], o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.dialect, "dialect", "", "SQL dialect (postgres, mysql, sqlite); overrides the config file")
	f.StringVar(&o.config, "config", "", "YAML configuration file")
	f.StringVar(&o.dsn, "dsn", "", "data source to ping with the dialect's driver before printing")
	f.StringToStringVar(&o.ids, "id", nil, "identifier generator per entity, e.g. --id Order=identity,Token=ulid")
	f.BoolVar(&o.watch, "watch", false, "print again whenever the mapping file changes")
	f.StringVar(&o.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	return cmd
}

func run(ctx context.Context, out, errOut io.Writer, path string, o options) error {
	cfg, err := o.build(errOut)
	if err != nil {
		return err
	}
	if o.dsn != "" {
		if err := ping(ctx, cfg.Dialect().Name(), o.dsn); err != nil {
			return err
		}
		cfg.Logger().Info("database reachable", "dialect", cfg.Dialect().Name())
	}
	if err := printPlans(out, cfg, path, o.ids); err != nil {
		if !o.watch {
			return err
		}
		cfg.Logger().Error("mapping rejected", "path", path, "error", err)
	}
	if !o.watch {
		return nil
	}
	return watch(ctx, path, cfg.Logger(), func() {
		fmt.Fprintln(out)
		if err := printPlans(out, cfg, path, o.ids); err != nil {
			cfg.Logger().Error("mapping rejected", "path", path, "error", err)
		}
	})
}

func (o options) build(errOut io.Writer) (*persist.Config, error) {
	b := persist.NewConfigBuilder()
	if o.config != "" {
		var err error
		if b, err = persist.LoadConfig(o.config); err != nil {
			return nil, err
		}
	}
	if o.dialect != "" {
		b.DialectName(o.dialect)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(o.logLevel)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", o.logLevel, err)
	}
	b.Logger(slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level})))
	return b.Build()
}

func ping(ctx context.Context, name, dsn string) error {
	drv, err := sql.Open(name, dsn)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer drv.Close()
	if err := drv.Ping(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", name, err)
	}
	return nil
}

func factoryOptions(ids map[string]string) ([]engine.FactoryOption, error) {
	var opts []engine.FactoryOption
	for entity, name := range ids {
		g, ok := identifier.Parse(name)
		if !ok {
			return nil, fmt.Errorf("entity %s: unknown identifier generator %q", entity, name)
		}
		opts = append(opts, engine.WithIDGenerator(entity, g))
	}
	return opts, nil
}

// printPlans loads the mapping file and writes every static plan of every entity.
func printPlans(out io.Writer, cfg *persist.Config, path string, ids map[string]string) error {
	entities, err := schema.LoadFile(path)
	if err != nil {
		return err
	}
	opts, err := factoryOptions(ids)
	if err != nil {
		return err
	}
	f, err := engine.NewFactory(cfg, entities, opts...)
	if err != nil {
		return err
	}
	for _, p := range f.Persisters() {
		fmt.Fprintf(out, "-- %s\n", p.Name())
		for _, plan := range p.Plans() {
			fmt.Fprintf(out, "%s;\n", plan)
		}
	}
	return nil
}

// watch calls fn after every change of path until ctx is done. The parent
// directory is watched so editors that replace the file are seen too.
func watch(ctx context.Context, path string, log *slog.Logger, fn func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer w.Close()
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	log.Info("watching mapping", "path", abs)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			log.Debug("mapping changed", "op", strings.ToLower(ev.Op.String()))
			fn()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				log.Warn("watch events dropped")
				continue
			}
			return fmt.Errorf("watch %s: %w", path, err)
		}
	}
}
