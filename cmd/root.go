// Package cmd wires the keychain CLI: one Cobra command per Keychain
// operation, configuration bound by Viper, following the teacher's
// cmd/root.go + config.Conf pattern.
package cmd

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/go-i2p/keychain/config"
	"github.com/go-i2p/keychain/keychain"
	"github.com/go-i2p/keychain/store/dsstore"
	"github.com/go-i2p/keychain/store/fsstore"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	c       *config.Conf = &config.Conf{}
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "keychain",
	Short: "Manage encrypted-at-rest RSA identities for a peer-to-peer node",
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen
// once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// ExecuteWithArgs runs the command tree with the provided argument list
// instead of os.Args. It is intended for use in tests where invoking
// specific sub-commands without modifying os.Args is required.
func ExecuteWithArgs(args []string) error {
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

// LookupFlag looks up a flag on the named sub-command. Use "" to look up a
// persistent root flag. Returns nil when the command or flag is not found.
func LookupFlag(commandName, flagName string) *pflag.Flag {
	if commandName == "" {
		return rootCmd.PersistentFlags().Lookup(flagName)
	}
	sub, _, err := rootCmd.Find([]string{commandName})
	if err != nil || sub == nil {
		return nil
	}
	return sub.Flags().Lookup(flagName)
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.keychain.yaml)")
	rootCmd.PersistentFlags().StringVar(&c.StoreDir, "storedir", "keys", "directory a \"dir\" store reads and writes .p8 key records under")
	rootCmd.PersistentFlags().StringVar(&c.StoreKind, "storekind", "dir", "store backend: \"dir\" (filesystem) or \"mem\" (in-memory, test use)")
	rootCmd.PersistentFlags().StringVar(&c.Passphrase, "passphrase", "", "chain passphrase (prefer --passphrasefile outside of tests)")
	rootCmd.PersistentFlags().StringVar(&c.PassphraseFile, "passphrasefile", "", "file whose trimmed contents are the chain passphrase")
	rootCmd.PersistentFlags().IntVar(&c.DEKKeyLength, "dek-keylength", 0, "DEK key length in bytes (0 = keychain default)")
	rootCmd.PersistentFlags().IntVar(&c.DEKIterationCount, "dek-iterationcount", 0, "PBKDF2 iteration count (0 = keychain default)")
	rootCmd.PersistentFlags().StringVar(&c.DEKHash, "dek-hash", "", "PBKDF2 hash algorithm (empty = keychain default)")
	rootCmd.PersistentFlags().StringVar(&c.DEKSaltFile, "dek-saltfile", "", "file holding a hex-encoded DEK salt (required: the DEK needs a salt of at least 16 bytes)")

	viper.BindPFlag("storedir", rootCmd.PersistentFlags().Lookup("storedir"))
	viper.BindPFlag("storekind", rootCmd.PersistentFlags().Lookup("storekind"))
	viper.BindPFlag("passphrase", rootCmd.PersistentFlags().Lookup("passphrase"))
	viper.BindPFlag("passphrasefile", rootCmd.PersistentFlags().Lookup("passphrasefile"))
	viper.BindPFlag("dek.keylength", rootCmd.PersistentFlags().Lookup("dek-keylength"))
	viper.BindPFlag("dek.iterationcount", rootCmd.PersistentFlags().Lookup("dek-iterationcount"))
	viper.BindPFlag("dek.hash", rootCmd.PersistentFlags().Lookup("dek-hash"))
	viper.BindPFlag("dek.saltfile", rootCmd.PersistentFlags().Lookup("dek-saltfile"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".keychain")
	}

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	// KEYCHAIN_* env vars only, matching the documented interface
	// (KEYCHAIN_STOREDIR, KEYCHAIN_PASSPHRASE, ...).
	viper.SetEnvPrefix("keychain")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
	if err := viper.Unmarshal(c); err != nil {
		fmt.Fprintln(os.Stderr, "config: unmarshal:", err)
	}
}

// resolvePassphrase returns c.Passphrase, or the trimmed contents of
// c.PassphraseFile when set.
func resolvePassphrase() (string, error) {
	if c.PassphraseFile != "" {
		data, err := os.ReadFile(c.PassphraseFile)
		if err != nil {
			return "", fmt.Errorf("read passphrasefile: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return c.Passphrase, nil
}

// resolveDEKSalt reads and hex-decodes c.DEKSaltFile, when set.
func resolveDEKSalt() ([]byte, error) {
	if c.DEKSaltFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(c.DEKSaltFile)
	if err != nil {
		return nil, fmt.Errorf("read dek-saltfile: %w", err)
	}
	salt, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("decode dek-saltfile: %w", err)
	}
	return salt, nil
}

// openKeychain builds the Store selected by --storekind and a Keychain
// over it, sharing the CLI-wide config and a stderr-writing zerolog.Logger.
func openKeychain() (*keychain.Keychain, error) {
	var store keychain.Store
	switch c.StoreKind {
	case "", "dir":
		fs, err := fsstore.New(c.StoreDir)
		if err != nil {
			return nil, err
		}
		store = fs
	case "mem":
		store = dsstore.New()
	default:
		return nil, fmt.Errorf("unknown storekind %q", c.StoreKind)
	}

	passphrase, err := resolvePassphrase()
	if err != nil {
		return nil, err
	}
	salt, err := resolveDEKSalt()
	if err != nil {
		return nil, err
	}

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	return keychain.New(store, keychain.Options{
		Passphrase: passphrase,
		DEK: keychain.DEKProfile{
			KeyLength:      c.DEKKeyLength,
			IterationCount: c.DEKIterationCount,
			Salt:           salt,
			Hash:           c.DEKHash,
		},
		Logger: logger,
	})
}
