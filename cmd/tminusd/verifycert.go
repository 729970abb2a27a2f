package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RamXX/tminus-sub002/internal/deletion"
	"github.com/RamXX/tminus-sub002/internal/registry"
)

var verifyEntityType string

// verifyCertCmd recomputes a stored deletion certificate's proof hash and
// signature against the configured master key. Exit status 0 means the
// deletion summary has not been tampered with since the workflow signed it.
var verifyCertCmd = &cobra.Command{
	Use:   "verify-cert <entity-id>",
	Short: "Verify a deletion certificate against the master key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.MasterKey == "" {
			return fmt.Errorf("master_key is required to verify certificates")
		}

		ctx := cmd.Context()
		reg, err := registry.Open(ctx, cfg.RegistryDB)
		if err != nil {
			return err
		}
		defer reg.Close()

		cert, summaryJSON, err := reg.GetCertificate(ctx, verifyEntityType, args[0])
		if err != nil {
			return err
		}
		cert.Summary, err = deletion.ParseSummary(summaryJSON)
		if err != nil {
			return err
		}

		if err := deletion.Verify(cert, []byte(cfg.MasterKey)); err != nil {
			return fmt.Errorf("certificate INVALID: %w", err)
		}

		out, err := json.MarshalIndent(cert, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(out))
		cmd.Printf("certificate %s VERIFIED\n", cert.CertID)
		return nil
	},
}

func init() {
	verifyCertCmd.Flags().StringVar(&verifyEntityType, "entity-type", deletion.EntityTypeUser, "entity type on the certificate")
}
