package config

import (
	"github.com/spf13/pflag"
)

// Flags are the command-line overrides. Flags beat environment variables.
type Flags struct {
	Host    string
	Port    int
	EnvFile string

	hostSet bool
	portSet bool
}

// ParseFlags parses args (without the program name).
func ParseFlags(name string, args []string) (*Flags, error) {
	f := &Flags{}
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringVar(&f.Host, "host", "", "HTTP listen host (overrides HTTP_HOST)")
	fs.IntVar(&f.Port, "port", 0, "HTTP listen port (overrides HTTP_PORT)")
	fs.StringVar(&f.EnvFile, "env-file", ".env", "optional dotenv file loaded before reading the environment")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	f.hostSet = fs.Changed("host")
	f.portSet = fs.Changed("port")
	return f, nil
}

// Apply copies explicitly set flags onto cfg and revalidates it.
func (f *Flags) Apply(cfg *Config) error {
	if f.hostSet {
		cfg.HTTPHost = f.Host
	}
	if f.portSet {
		cfg.HTTPPort = f.Port
	}
	return cfg.Validate()
}
