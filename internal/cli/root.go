package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"storefront/internal/util"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	URL        string
	AnonKey    string
	AdminToken string
	DirectDSN  string
	StatePath  string
	SessionID  string
	Currency   string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for storectl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "storectl",
		Short: "storectl - storefront command line",
		Long:  "Inspect the anonymous cart session and run admin product writes against a storefront.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return util.InitCLILogger(opts.Verbose)
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.URL, "url", envOr("STOREFRONT_URL", "http://localhost:8080"), "storefront base URL")
	flags.StringVar(&opts.AnonKey, "anon-key", os.Getenv("STOREFRONT_ANON_KEY"), "public API key")
	flags.StringVar(&opts.AdminToken, "admin-token", os.Getenv("STOREFRONT_ADMIN_TOKEN"), "bearer token for the privileged endpoint")
	flags.StringVar(&opts.DirectDSN, "direct-dsn", os.Getenv("STOREFRONT_DIRECT_DSN"), "admin database credential for direct writes")
	flags.StringVar(&opts.StatePath, "state", defaultStatePath(), "local storage file")
	flags.StringVar(&opts.SessionID, "session", "", "use this session id instead of the stored one")
	flags.StringVar(&opts.Currency, "currency", envOr("CURRENCY", "INR"), "ISO currency used to display prices")

	cmd.AddCommand(NewSessionCommand(opts))
	cmd.AddCommand(NewCartCommand(opts))
	cmd.AddCommand(NewProductCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".storectl", "local.db")
	}
	return filepath.Join(dir, "storectl", "local.db")
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
