// Command vaultctl is the operator companion of the vault API.
//
//	vaultctl token  --sub 0xabc... [--role admin] [--config config.yaml]
//	vaultctl keygen
//	vaultctl seal   [--key HEX] VALUE
//	vaultctl open   [--key HEX] VALUE
//
// token signs a bearer JWT with the API's own jwt settings. keygen, seal and
// open manage the "enc:" values that the API opens at start-up with
// VAULT_SECRETS_KEY.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"custody-vault/config"
	"custody-vault/internal/service"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
)

const usage = `usage: vaultctl <command> [flags]

commands:
  token    sign a bearer token for an address
  keygen   print a new secrets key
  seal     encrypt a config value
  open     decrypt a config value
`

var errUsage = errors.New("invalid usage")

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "vaultctl: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return errUsage
	}

	switch args[0] {
	case "token":
		return runToken(args[1:], stdout, stderr)
	case "keygen":
		return runKeygen(stdout)
	case "seal":
		return runSecret(args[1:], stdout, stderr, true)
	case "open":
		return runSecret(args[1:], stdout, stderr, false)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	}

	fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
	return errUsage
}

func runToken(args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("token", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	sub := fs.String("sub", "", "caller address (0x-prefixed)")
	role := fs.String("role", service.RoleUser, "role claim: user or admin")
	cfgPath := fs.String("config", "", "config file (defaults to ./config.yaml)")
	expiry := fs.Duration("expiry", 0, "override jwt.expiry")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	if !common.IsHexAddress(*sub) {
		return fmt.Errorf("--sub: invalid address %q", *sub)
	}
	if *role != service.RoleUser && *role != service.RoleAdmin {
		return fmt.Errorf("--role: must be %q or %q", service.RoleUser, service.RoleAdmin)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	secret := cfg.JWT.Secret
	if service.IsSealed(secret) {
		box, err := service.NewSecretBox(cfg.Secrets.Key)
		if err != nil {
			return err
		}
		if err := service.RevealSecrets(box, &secret); err != nil {
			return err
		}
	}
	if secret == "" {
		return errors.New("jwt.secret is not configured")
	}

	ttl := cfg.JWT.Expiry
	if *expiry > 0 {
		ttl = *expiry
	}

	tokenSvc := service.NewJWTTokenService(secret, ttl, cfg.JWT.Issuer)
	token, expiresAt, err := tokenSvc.Generate(common.HexToAddress(*sub), *role)
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, token)
	fmt.Fprintf(stderr, "expires %s\n", expiresAt.UTC().Format(time.RFC3339))
	return nil
}

func runKeygen(stdout io.Writer) error {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return fmt.Errorf("generating key: %w", err)
	}
	fmt.Fprintln(stdout, hex.EncodeToString(key))
	return nil
}

func runSecret(args []string, stdout, stderr io.Writer, seal bool) error {
	name := "open"
	if seal {
		name = "seal"
	}
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	key := fs.String("key", os.Getenv("VAULT_SECRETS_KEY"), "hex secrets key (default $VAULT_SECRETS_KEY)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(stderr, "usage: vaultctl %s [--key HEX] VALUE\n", name)
		return errUsage
	}

	box, err := service.NewSecretBox(*key)
	if err != nil {
		return err
	}

	var out string
	if seal {
		out, err = box.Seal(fs.Arg(0))
	} else {
		out, err = box.Open(fs.Arg(0))
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, out)
	return nil
}
