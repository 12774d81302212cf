package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"storefront/internal/apperr"
	"storefront/internal/client"
	"storefront/internal/models"
	"storefront/internal/store"
)

// SaveOutput is the output of `product save`.
type SaveOutput struct {
	ID             string `json:"id"`
	Via            string `json:"via"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

func (s SaveOutput) String() string {
	return fmt.Sprintf("Saved product %s via %s", s.ID, s.Via)
}

// NewProductCommand creates the product command group.
func NewProductCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "product",
		Short: "Admin product writes",
	}
	cmd.AddCommand(newProductSaveCommand(rootOpts))
	return cmd
}

func newProductSaveCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		file string
		key  string
	)

	cmd := &cobra.Command{
		Use:   "save -f <product.yaml>",
		Short: "Create or update a product",
		Long: `Save a product described in a YAML file.

The write is first attempted with the admin database credential (--direct-dsn).
If that credential is refused by access control, or none is configured, the
same payload and idempotency key are sent once to the privileged endpoint.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)

			payload, err := LoadProductFile(file)
			if err != nil {
				return formatter.Fail("failed to read product file", err)
			}
			if key != "" {
				payload.IdempotencyKey = key
			}
			if payload.IdempotencyKey == "" {
				payload.IdempotencyKey = uuid.NewString()
			}
			formatter.VerboseLog("Idempotency key %s", payload.IdempotencyKey)

			var direct client.DirectWriter
			if rootOpts.DirectDSN != "" {
				db, err := store.NewStore(rootOpts.DirectDSN)
				if err != nil {
					return formatter.Fail("failed to open direct credential",
						apperr.Wrap(apperr.Transient, "storectl.product.save", "database unavailable", err))
				}
				defer db.Close()
				direct = db
			} else {
				formatter.VerboseLog("No direct credential, using privileged endpoint only")
			}

			writer := client.NewAdminWriter(direct, newAPIClient(rootOpts))
			result, err := writer.SaveProduct(cmd.Context(), payload)
			if err != nil {
				return formatter.Fail("failed to save product", err)
			}

			return formatter.Success(SaveOutput{ID: result.ID, Via: result.Via, IdempotencyKey: payload.IdempotencyKey})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "product YAML file (- for stdin)")
	cmd.Flags().StringVar(&key, "idempotency-key", "", "reuse a key from an earlier attempt")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

// LoadProductFile reads a product payload. Unknown fields are rejected so a
// typo never silently drops a column.
func LoadProductFile(path string) (*models.ProductPayload, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.ClientInput, "LoadProductFile", "cannot read "+path, err)
	}
	return ParseProduct(data)
}

// ParseProduct decodes a YAML product payload.
func ParseProduct(data []byte) (*models.ProductPayload, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var payload models.ProductPayload
	if err := decoder.Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, apperr.New(apperr.ClientInput, "ParseProduct", "product file is empty")
		}
		return nil, apperr.Wrap(apperr.ClientInput, "ParseProduct", "invalid product YAML", err)
	}
	return &payload, nil
}
