package main

import (
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trickstertwo/xbus"
	"github.com/trickstertwo/xbus/config"
	"github.com/trickstertwo/xbus/listener/console"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "xbus",
		Short:        "Tagged log event distribution",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to a listener configuration file")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log engine diagnostics at debug level")

	cmd.AddCommand(newRunCmd(opts), newValidateCmd(opts), newTypesCmd())
	return cmd
}

func (o *rootOptions) diagnostics(w io.Writer) *zap.Logger {
	lvl := zapcore.WarnLevel
	if o.verbose {
		lvl = zapcore.DebugLevel
	}
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(zapcore.AddSync(w)), lvl)
	return zap.New(core).Named("xbus")
}

// engine builds an engine from the config file. Without one it logs
// everything to the console listener on out and errOut.
func (o *rootOptions) engine(out, errOut io.Writer) (*xbus.Engine, error) {
	diag := o.diagnostics(errOut)
	if o.configPath == "" {
		l := console.NewWithWriters(out, errOut)
		l.Filter().SetMinLevel(xbus.LevelDebug)
		return xbus.New(xbus.Config{Diagnostics: diag, Listeners: []xbus.Listener{l}}), nil
	}
	f, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := f.EngineConfig()
	if err != nil {
		return nil, err
	}
	cfg.Diagnostics = diag
	return xbus.New(cfg), nil
}
