package config

import (
	"flag"
	"os"

	"github.com/nymstr/nymstr-groupd/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   SQLite identity database path
//	-k string   server keypair directory
//	-s string   passphrase file path
//	-l string   log file path
//	-n string   nym client id
//	-w string   nym-client websocket URL
//	-r string   Redis URL
//	-a string   admin public key file path
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-k", "-s", "-l", "-n", "-w", "-r", "-a"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DatabasePath, "d", config.DatabasePath, "identity database path")
	fs.StringVar(&config.KeysDir, "k", config.KeysDir, "server keypair directory")
	fs.StringVar(&config.SecretPath, "s", config.SecretPath, "passphrase file path")
	fs.StringVar(&config.LogFilePath, "l", config.LogFilePath, "log file path")
	fs.StringVar(&config.NymClientID, "n", config.NymClientID, "nym client id")
	fs.StringVar(&config.NymWSURL, "w", config.NymWSURL, "nym-client websocket URL")
	fs.StringVar(&config.RedisURL, "r", config.RedisURL, "redis URL")
	fs.StringVar(&config.AdminPublicKeyPath, "a", config.AdminPublicKeyPath, "admin public key file path")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
