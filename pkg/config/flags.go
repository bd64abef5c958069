package config

import "github.com/spf13/pflag"

// Overrides are command line values applied on top of Load. Only flags the
// user actually set take effect.
type Overrides struct {
	HTTP       bool
	Port       int
	LogLevel   string
	LogFormat  string
	TokenStore string
	ExportDir  string

	fs *pflag.FlagSet
}

func (o *Overrides) BindFlags(fs *pflag.FlagSet) {
	o.fs = fs
	fs.BoolVar(&o.HTTP, "http", false, "serve streamable HTTP instead of stdio (USE_HTTP)")
	fs.IntVar(&o.Port, "port", DefaultPort, "HTTP listen port (PORT)")
	fs.StringVar(&o.LogLevel, "log-level", DefaultLogLevel, "log level: debug, info, warn, error")
	fs.StringVar(&o.LogFormat, "log-format", DefaultLogFormat, "log format: json, text, pretty")
	fs.StringVar(&o.TokenStore, "token-store", DefaultTokenStore, "token store: memory, file:<path>, sqlite:<path>")
	fs.StringVar(&o.ExportDir, "export-dir", "", "directory for exported GPX/TCX routes (ROUTE_EXPORT_PATH)")
}

// Apply copies changed flags into cfg.
func (o *Overrides) Apply(cfg *Config) {
	if o.fs == nil {
		return
	}
	if o.fs.Changed("http") {
		cfg.Transport.HTTP = o.HTTP
	}
	if o.fs.Changed("port") {
		cfg.Transport.Port = o.Port
	}
	if o.fs.Changed("log-level") {
		cfg.Log.Level = o.LogLevel
	}
	if o.fs.Changed("log-format") {
		cfg.Log.Format = o.LogFormat
	}
	if o.fs.Changed("token-store") {
		cfg.TokenStore = o.TokenStore
	}
	if o.fs.Changed("export-dir") {
		cfg.Export.Dir = o.ExportDir
	}
}
