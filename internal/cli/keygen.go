package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/ddnsquorum/internal/capability"
)

// keyInfo is the output of keygen.
type keyInfo struct {
	Identity string `json:"identity"`
	Path     string `json:"path,omitempty"`
}

func (k keyInfo) String() string { return k.Identity }

// NewKeygenCommand creates the keygen command.
func NewKeygenCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		out  string
		show string
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an Ed25519 identity key, or print the identity of one",
		Long: `Generate an Ed25519 key and write its seed as hex to --out.

The identity (hex public key) is what registry configs, verifier rosters and
quorum authority links refer to. --show prints the identity of an existing
seed file instead.

Examples:
  ddnsq keygen --out admin.key
  ddnsq keygen --show admin.key`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(cmd, rootOpts)
			if show != "" {
				s, err := capability.LoadSigner(show)
				if err != nil {
					return f.Fail(WrapExitError(ExitCommandError, "failed to load key", err))
				}
				return f.Success(keyInfo{Identity: string(s.Identity()), Path: show})
			}
			if out == "" {
				return f.Fail(NewExitError(ExitCommandError, "one of --out or --show is required"))
			}
			if _, err := os.Stat(out); err == nil {
				return f.Fail(NewExitError(ExitCommandError, fmt.Sprintf("%s already exists", out)))
			} else if !errors.Is(err, os.ErrNotExist) {
				return f.Fail(err)
			}

			s, err := capability.GenerateSigner()
			if err != nil {
				return f.Fail(err)
			}
			if err := s.WriteSeed(out); err != nil {
				return f.Fail(err)
			}
			f.VerboseLog("wrote seed to %s", out)
			return f.Success(keyInfo{Identity: string(s.Identity()), Path: out})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "file to write the new seed to")
	cmd.Flags().StringVar(&show, "show", "", "print the identity of this seed file")
	return cmd
}
