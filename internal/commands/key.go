package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"sheetrow/internal/config"
	"sheetrow/internal/exitcode"
	"sheetrow/internal/service"
)

func init() {
	Register(&KeyCmd{})
}

// KeyCmd implements the key command.
type KeyCmd struct {
	clear bool
}

func (c *KeyCmd) Name() string      { return "key" }
func (c *KeyCmd) Aliases() []string { return nil }
func (c *KeyCmd) Synopsis() string  { return "Store, show or remove the API key" }
func (c *KeyCmd) Usage() string     { return "sheetrow key [common flags] [--clear] [<api-key>]" }
func (c *KeyCmd) NeedsAuth() bool   { return false }

func (c *KeyCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.clear, "clear", false, "")
}

func (c *KeyCmd) Run(ctx context.Context, cfg *config.Config, svc *service.Services, args []string, out, errOut io.Writer) int {
	switch {
	case c.clear && len(args) > 0:
		return report(errOut, usagef("use either --clear or <api-key>, not both"))
	case c.clear:
		if cfg.Settings.APIKey == "" {
			if !cfg.Quiet {
				fmt.Fprintln(out, "no API key stored")
			}
			return exitcode.Success
		}
		cfg.Settings.APIKey = ""
	case len(args) == 1:
		key := strings.TrimSpace(args[0])
		if key == "" {
			return report(errOut, usagef("API key is empty"))
		}
		cfg.Settings.APIKey = key
	case len(args) > 1:
		return report(errOut, usagef("expected a single API key"))
	default:
		return c.show(cfg, out)
	}

	if err := cfg.SaveSettings(); err != nil {
		return report(errOut, fmt.Errorf("save %s: %w", config.SettingsFile, err))
	}
	if !cfg.Quiet {
		fmt.Fprintln(out, "ok")
	}
	return exitcode.Success
}

func (c *KeyCmd) show(cfg *config.Config, out io.Writer) int {
	key := cfg.Credential()
	if key == "" {
		fmt.Fprintln(out, "no API key configured")
		return exitcode.Success
	}
	source := config.SettingsFile
	if strings.TrimSpace(os.Getenv(config.EnvAPIKey)) != "" {
		source = config.EnvAPIKey
	}
	fmt.Fprintf(out, "%s (from %s)\n", maskKey(key), source)
	return exitcode.Success
}

// maskKey keeps only the last four characters visible.
func maskKey(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}
