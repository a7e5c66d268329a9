//go:build !windows && !plan9

package config

import (
	"github.com/trickstertwo/xbus"
	"github.com/trickstertwo/xbus/listener/syslog"
)

func init() {
	Register(syslog.Name, newSyslog)
}

type syslogOptions struct {
	Network string `yaml:"network"`
	Addr    string `yaml:"addr"`
	Ident   string `yaml:"ident"`
}

func newSyslog(o Options) (xbus.Listener, error) {
	var opts syslogOptions
	if err := o.Decode(&opts); err != nil {
		return nil, err
	}
	return syslog.New(syslog.Options{Network: opts.Network, Addr: opts.Addr, Ident: opts.Ident}), nil
}
