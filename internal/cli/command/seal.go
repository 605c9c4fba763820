package command

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/scrapedelta/pkg/seal"
)

// SealCommand returns the seal subcommand group.
func SealCommand() *cli.Command {
	return &cli.Command{
		Name:  "seal",
		Usage: "Manage sealed (encrypted) exports",
		Subcommands: []*cli.Command{
			{
				Name:   "keygen",
				Usage:  "Generate a random key for export.encryption_key",
				Action: sealKeygen,
			},
			{
				Name:      "open",
				Usage:     "Decrypt a downloaded .sealed artifact",
				ArgsUsage: "FILE.sealed",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "key",
						Usage:   "Key or passphrase (defaults to export.encryption_key)",
						EnvVars: []string{"SCRAPEDELTA_SEAL_KEY"},
					},
					&cli.StringFlag{
						Name:  "out",
						Usage: "Write the plaintext here instead of stdout",
					},
				},
				Action: sealOpen,
			},
		},
	}
}

func sealKeygen(c *cli.Context) error {
	key, err := seal.GenerateKey()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout(c), key)
	return err
}

func sealOpen(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: scrapedelta-cli seal open FILE.sealed [--out FILE]", ExitConfig)
	}
	secret := c.String("key")
	if secret == "" {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		secret = cfg.Export.EncryptionKey
	}
	if secret == "" {
		return cli.Exit("no key: pass --key or set export.encryption_key", ExitConfig)
	}
	sealer, err := seal.New(secret)
	if err != nil {
		return cli.Exit(err.Error(), ExitConfig)
	}

	envelope, err := os.ReadFile(c.Args().First())
	if err != nil {
		return err
	}
	plain, err := sealer.Open(envelope)
	if err != nil {
		return fmt.Errorf("open %s: %w", c.Args().First(), err)
	}

	if out := c.String("out"); out != "" {
		return os.WriteFile(out, plain, 0o600)
	}
	_, err = stdout(c).Write(plain)
	return err
}
