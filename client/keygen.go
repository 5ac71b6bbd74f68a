package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/platformlayer/openstack-jenkins/api"
	"github.com/platformlayer/openstack-jenkins/keys"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an SSH keypair for a cloud profile",
	Long: `Generate an RSA keypair suitable for the keyPair secret of a cloud profile.

The key is generated locally unless --server is given. With --output, the
private key is written to FILE and the public key to FILE.pub.`,
	Args: cobra.NoArgs,

	// Local generation does not need the server.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if lo.Must(cmd.Flags().GetBool("server")) {
			return connect(lo.Must(cmd.Flags().GetString("remote")))
		}
		return nil
	},

	RunE: func(cmd *cobra.Command, args []string) error {
		bits := lo.Must(cmd.Flags().GetInt("bits"))

		var kp *api.KeyPair
		if lo.Must(cmd.Flags().GetBool("server")) {
			var err error
			if kp, err = client.Keygen(cmd.Context(), &api.KeygenRequest{Bits: bits}); err != nil {
				return err
			}
		} else {
			generated, err := keys.Generate(bits)
			if err != nil {
				return err
			}
			fingerprint, err := generated.Fingerprint()
			if err != nil {
				return err
			}
			kp = &api.KeyPair{PublicKey: generated.PublicKey, PrivateKey: generated.PrivateKey.Reveal(), Fingerprint: fingerprint}
		}

		output := lo.Must(cmd.Flags().GetString("output"))
		if output == "" {
			cmd.Print(kp.PrivateKey)
			cmd.Println(kp.PublicKey)
			cmd.PrintErrln("Fingerprint:", kp.Fingerprint)
			return nil
		}

		if err := os.WriteFile(output, []byte(kp.PrivateKey), 0600); err != nil {
			return fmt.Errorf("failed to write private key: %w", err)
		}
		if err := os.WriteFile(output+".pub", []byte(kp.PublicKey+"\n"), 0644); err != nil {
			return fmt.Errorf("failed to write public key: %w", err)
		}
		cmd.PrintErrln(color.HiGreenString("Wrote %s and %s.pub (%s)", output, output, kp.Fingerprint))
		return nil
	},
}

func init() {
	keygenCmd.Flags().StringP("output", "o", "", "write the private key to this file")
	keygenCmd.Flags().Int("bits", keys.DefaultBits, "RSA key size")
	keygenCmd.Flags().Bool("server", false, "let cloudd generate the keypair")
}
