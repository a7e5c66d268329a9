package main

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trickstertwo/xbus"
	"github.com/trickstertwo/xbus/config"
)

func newValidateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check a configuration file and list the listeners it builds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if root.configPath == "" {
				return errors.New("--config is required")
			}
			return validate(root.configPath, cmd.OutOrStdout())
		},
	}
}

func validate(path string, out io.Writer) error {
	f, err := config.Load(path)
	if err != nil {
		return err
	}
	ls, err := f.BuildListeners()
	if err != nil {
		return err
	}
	for _, l := range ls {
		fmt.Fprintln(out, describe(l))
		if c, ok := l.(io.Closer); ok {
			_ = c.Close()
		}
	}
	return nil
}

func describe(l xbus.Listener) string {
	if s, ok := l.(fmt.Stringer); ok {
		return s.String()
	}
	return l.Name() + "(" + l.Filter().String() + ")"
}

func newTypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List listener types usable in configuration files",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			for _, t := range config.Types() {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
		},
	}
}
