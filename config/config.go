// Package config defines the Conf struct used by the cmd package to bind cobra
// flags and viper configuration values into a single typed structure.
package config

// Conf holds the configuration values populated by viper from cobra flags,
// environment variables, or a config file.
//
// mapstructure tags are required wherever the lowercased Go field name does
// not match the cobra flag name that viper binds.  Without them,
// viper.Unmarshal silently leaves those fields at their zero value.
type Conf struct {
	// StoreDir is the filesystem directory a "dir" store backend reads and
	// writes .p8 key records under (--storedir).
	StoreDir string `mapstructure:"storedir"`
	// StoreKind selects the Store implementation: "dir" for fsstore, "mem"
	// for dsstore. Defaults to "dir" when empty.
	StoreKind string `mapstructure:"storekind"`

	// Passphrase unlocks the chain's DEK directly (--passphrase). Prefer
	// PassphraseFile outside of scripts and tests: a flag value is visible
	// in process listings.
	Passphrase string `mapstructure:"passphrase"`
	// PassphraseFile names a file whose trimmed contents are the passphrase
	// (--passphrasefile). Takes precedence over Passphrase when set.
	PassphraseFile string `mapstructure:"passphrasefile"`

	// DEK profile overrides. Zero values fall back to keychain's own
	// defaults (64-byte key, 10000 iterations, sha512) via DEKProfile
	// merge semantics.
	DEKKeyLength      int    `mapstructure:"dek.keylength"`
	DEKIterationCount int    `mapstructure:"dek.iterationcount"`
	DEKHash           string `mapstructure:"dek.hash"`
	// DEKSaltFile names a file holding a hex-encoded salt. Required for any
	// profile override that does not rely on keychain generating a fresh
	// random salt being impossible — DEK derivation always needs a
	// caller-supplied salt; leaving this unset is an error at startup.
	DEKSaltFile string `mapstructure:"dek.saltfile"`

	// Host and Port are the TCP address components for the optional
	// introspection HTTP listener (--host / --port).
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`

	// StatsFile is stored at the path given by --statsfile.
	StatsFile string `mapstructure:"statsfile"`
}
