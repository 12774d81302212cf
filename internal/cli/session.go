package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"storefront/internal/session"
	"storefront/internal/util"
)

// SessionInfo is the output of `session show`.
type SessionInfo struct {
	SessionID  string `json:"session_id"`
	Persistent bool   `json:"persistent"`
	StatePath  string `json:"state_path"`
}

func (s SessionInfo) String() string {
	if !s.Persistent {
		return s.SessionID + " (not persisted)"
	}
	return s.SessionID
}

// NewSessionCommand creates the session command group.
func NewSessionCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect the anonymous session identity",
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "show",
		Short:         "Print the session id, creating it on first use",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			identity, closeFn := openIdentity(rootOpts, formatter)
			defer closeFn()

			return formatter.Success(SessionInfo{
				SessionID:  identity.SessionID(),
				Persistent: identity.Persistent(),
				StatePath:  rootOpts.StatePath,
			})
		},
	})

	return cmd
}

// resolveSession returns the --session override or the stored session id.
func resolveSession(opts *RootOptions, formatter *OutputFormatter) string {
	if opts.SessionID != "" {
		return opts.SessionID
	}
	identity, closeFn := openIdentity(opts, formatter)
	defer closeFn()
	return identity.SessionID()
}

// openIdentity opens local storage. When the file cannot be opened the
// identity still works, but the id only lives for this invocation.
func openIdentity(opts *RootOptions, formatter *OutputFormatter) (*session.Identity, func()) {
	logger := util.GetLogger()

	storage, err := session.OpenSQLiteStorage(opts.StatePath)
	if err != nil {
		logger.Warn("Local storage unavailable", zap.String("path", opts.StatePath), zap.Error(err))
		return session.NewIdentity(nil, logger), func() {}
	}

	formatter.VerboseLog("Using local storage %s", opts.StatePath)
	return session.NewIdentity(storage, logger), func() { _ = storage.Close() }
}
