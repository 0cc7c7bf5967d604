package cmd

import (
	"errors"
	"fmt"

	"filippo.io/age"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tmt-csw/gocsw/internal/secrets"
)

func newSecretsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Encrypt values such as nats.token for CSW config files",
	}
	cmd.AddCommand(newSecretsKeygenCmd(), newSecretsEncryptCmd(), newSecretsDecryptCmd())
	return cmd
}

func newSecretsKeygenCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate the age key cswd and csw-mcp decrypt config with",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				output = secrets.DefaultKeyPath()
			}
			id, err := secrets.GenerateKeyFile(output)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Key file written to: %s\nPublic key: %s\n", output, id.Recipient())
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output path (default: ~/.config/csw/age.key)")
	return cmd
}

func newSecretsEncryptCmd() *cobra.Command {
	var recipientKey string

	cmd := &cobra.Command{
		Use:   "encrypt <value>",
		Short: "Print the ENC[...] form of a value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var recipient age.Recipient
			if recipientKey != "" {
				r, err := age.ParseX25519Recipient(recipientKey)
				if err != nil {
					return fmt.Errorf("parse recipient: %w", err)
				}
				recipient = r
			} else {
				r, err := secrets.Recipient(viper.New())
				if errors.Is(err, secrets.ErrNoIdentity) {
					return errors.New("no age key found; run 'cswctl secrets keygen' first or use --recipient")
				}
				if err != nil {
					return err
				}
				recipient = r
			}

			enc, err := secrets.Encrypt(args[0], recipient)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), enc)
			return nil
		},
	}
	cmd.Flags().StringVar(&recipientKey, "recipient", "", "age public key (default: read from key file)")
	return cmd
}

func newSecretsDecryptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decrypt <ENC[...]>",
		Short: "Decrypt a config value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := secrets.Identities(viper.New())
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				return fmt.Errorf("no age identity found; set %s, %s or create %s",
					secrets.EnvAgeKey, secrets.EnvAgeKeyFile, secrets.DefaultKeyPath())
			}
			plaintext, err := secrets.Decrypt(args[0], ids...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), plaintext)
			return nil
		},
	}
}
