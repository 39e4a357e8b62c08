/*
Package cli facilitates building command-line applications that control
vehicles through an owners-cloud backend. It defines a [Config] type that can
be used to register common command-line flags (using the Golang flag package)
and environment variable equivalents.

The package uses [keyring]'s platform-agnostic interface for storing the
account password in an OS-dependent credential store.

# Examples

	config, err := cli.NewConfig()
	if err != nil {
		panic(err)
	}
	config.RegisterCommandLineFlags() // Adds flags for account, brand, session cache, etc.
	flag.Parse()
	config.ReadFromEnvironment() // Fills in missing fields using environment variables
	config.LoadCredentials()     // Resolve the account password, prompting if needed

	car, err := config.Connect(ctx)
	if err != nil {
		panic(err)
	}
	defer config.UpdateCachedSessions(car)
*/
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/99designs/keyring"

	"github.com/uvolabs/owner-command/internal/log"
	"github.com/uvolabs/owner-command/pkg/cache"
	"github.com/uvolabs/owner-command/pkg/connector/kiausa"
	"github.com/uvolabs/owner-command/pkg/vehicle"
)

// Environment variable names used by [Config.ReadFromEnvironment] to set
// common parameters.
const (
	EnvUsername     = "UVO_USERNAME"
	EnvAccountName  = "UVO_ACCOUNT_NAME"
	EnvPasswordFile = "UVO_PASSWORD_FILE"
	EnvBrand        = "UVO_BRAND"
	EnvCacheFile    = "UVO_CACHE_FILE"
	EnvKeyringType  = "UVO_KEYRING_TYPE"
	EnvKeyringPass  = "UVO_KEYRING_PASSWORD"
	EnvKeyringPath  = "UVO_KEYRING_PATH"
	EnvKeyringDebug = "UVO_KEYRING_DEBUG"
)

var (
	ErrNoCredentials = errors.New("account credentials not provided")
	ErrKeyNotFound   = keyring.ErrKeyNotFound
)

// Config fields determine the account, brand, and credential sources a client
// uses to reach the owners backend.
type Config struct {
	Username         string // Account email address
	AccountName      string // System keyring name for the account password
	PasswordFilename string
	Brand            string
	CacheFilename    string
	Backend          keyring.Config
	BackendType      backendType
	Debug            bool // Enable keyring debug messages

	password *string
	sessions *cache.SessionCache
}

func NewConfig() (*Config, error) {
	c := Config{
		Brand: "kia",
		Backend: keyring.Config{
			ServiceName:              keyringServiceName,
			KeychainTrustApplication: true,
			KeyCtlScope:              "user",
		},
	}
	c.BackendType = backendType{&c}
	c.Backend.KeychainPasswordFunc = c.getKeyringPassword
	c.Backend.FilePasswordFunc = c.getKeyringPassword

	return &c, nil
}

func (c *Config) RegisterCommandLineFlags() {
	flag.StringVar(&c.Username, "username", "", "Account email address. Defaults to $UVO_USERNAME.")
	flag.StringVar(&c.AccountName, "account-name", "", "System keyring `name` for the account password. Defaults to $UVO_ACCOUNT_NAME.")
	flag.StringVar(&c.PasswordFilename, "password-file", "", "A `file` containing the account password. Defaults to $UVO_PASSWORD_FILE.")
	flag.StringVar(&c.Brand, "brand", "", "Vehicle brand (kia). Defaults to $UVO_BRAND.")
	flag.StringVar(&c.CacheFilename, "session-cache", "", "Load session info cache from `file`. Defaults to $UVO_CACHE_FILE.")

	var names []string
	for _, name := range keyring.AvailableBackends() {
		names = append(names, string(name))
	}
	sort.Strings(names)
	flag.Var(&c.BackendType, "keyring-type", "Keyring `type` ("+strings.Join(names, "|")+"). Defaults to $UVO_KEYRING_TYPE.")
	flag.StringVar(&c.Backend.FileDir, "keyring-file-dir", keyringDirectory, "keyring `directory` for file-backed keyring types")
	flag.BoolVar(&c.Debug, "keyring-debug", false, "Enable keyring debug logging")
}

// ReadFromEnvironment populates c using environment variables. Values that
// are already populated are not overwritten.
//
// Calling ReadFromEnvironment after flag.Parse() will prevent the environment
// from overriding explicit command-line parameters.
func (c *Config) ReadFromEnvironment() {
	if c.Username == "" {
		c.Username = os.Getenv(EnvUsername)
		log.Debug("Set username to '%s'", c.Username)
	}
	if c.AccountName == "" && c.PasswordFilename == "" {
		c.AccountName = os.Getenv(EnvAccountName)
		log.Debug("Set account name to '%s'", c.AccountName)

		c.PasswordFilename = os.Getenv(EnvPasswordFile)
		log.Debug("Set password file to '%s'", c.PasswordFilename)
	}
	if c.Brand == "" {
		c.Brand = os.Getenv(EnvBrand)
		log.Debug("Set brand to '%s'", c.Brand)
	}
	if c.CacheFilename == "" {
		c.CacheFilename = os.Getenv(EnvCacheFile)
		log.Debug("Set session cache file to '%s'", c.CacheFilename)
	}
	if c.BackendType.String() == string(keyring.InvalidBackend) {
		if err := c.BackendType.Set(os.Getenv(EnvKeyringType)); err == nil {
			log.Debug("Set keyring type to '%s'", c.BackendType)
		}
	}
	if c.Backend.FileDir == "" {
		c.Backend.FileDir = os.Getenv(EnvKeyringPath)
		log.Debug("Set keyring File Path to '%s'", c.Backend.FileDir)
	}
	if !c.Debug {
		_, c.Debug = os.LookupEnv(EnvKeyringDebug)
		log.Debug("Set keyring Debug Logging to '%v'", c.Debug)
	}
}

// LoadCredentials resolves the account password, prompting interactively as a
// last resort. Call this method before [Config.Connect] to prevent
// interactive prompts from counting against timeouts.
func (c *Config) LoadCredentials() error {
	_, err := c.accountPassword()
	return err
}

// Connect builds a backend connection for the configured account and logs in,
// reusing a cached session when one is still valid. The returned vehicle is
// bound to the account's first enrolled vehicle.
func (c *Config) Connect(ctx context.Context) (*vehicle.Vehicle, error) {
	if c.Username == "" {
		return nil, fmt.Errorf("must provide an account username")
	}
	password, err := c.accountPassword()
	if err != nil {
		return nil, err
	}
	profile, err := kiausa.LookupProfile(c.Brand)
	if err != nil {
		return nil, err
	}
	conn, err := kiausa.NewConnection(profile, c.Username, password)
	if err != nil {
		return nil, err
	}
	if err := c.loadCache(); err != nil {
		return nil, err
	}

	if token, ok := c.sessions.Load(c.Username); ok {
		log.Debug("Reusing cached session")
		return vehicle.New(conn, token, nil), nil
	}
	log.Info("Logging in as %s...", c.Username)
	token, err := conn.Login(ctx)
	if err != nil {
		return nil, err
	}
	return vehicle.New(conn, token, nil), nil
}

// UpdateCachedSessions updates c.CacheFilename with the vehicle's current
// session state. If c.CacheFilename is not set, this method does nothing.
func (c *Config) UpdateCachedSessions(car *vehicle.Vehicle) {
	if c.CacheFilename == "" || c.sessions == nil || car == nil {
		return
	}
	c.sessions.Update(c.Username, car.Token())
	if err := c.sessions.ExportToFile(c.CacheFilename); err != nil {
		log.Error("Error updating cache: %s", err)
	}
}

func (c *Config) loadCache() error {
	if c.sessions != nil {
		return nil
	}
	if c.CacheFilename == "" {
		c.sessions = cache.New(0)
		return nil
	}
	log.Debug("Loading cache from %s...", c.CacheFilename)
	var err error
	c.sessions, err = cache.ImportFromFile(c.CacheFilename)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load session cache: %s", err)
		}
		// Create a new cache if one couldn't be loaded from the file
		c.sessions = cache.New(0)
	}
	return nil
}

// Password returns the resolved account password, prompting for it if no
// other source is configured.
func (c *Config) Password() (string, error) {
	return c.accountPassword()
}

// accountPassword resolves the account password from, in order: a previous
// resolution, the password file, the system keyring, and finally an
// interactive prompt. The result is cached for the life of the Config.
func (c *Config) accountPassword() (string, error) {
	if c.password != nil {
		return *c.password, nil
	}
	if c.PasswordFilename != "" {
		data, err := os.ReadFile(c.PasswordFilename)
		if err == nil {
			password := strings.TrimRight(string(data), "\r\n")
			c.password = &password
			return password, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		// Fall through to the keyring if the file doesn't exist.
	}
	if c.AccountName != "" {
		password, err := c.LoadPasswordFromKeyring()
		if err == nil {
			c.password = &password
			return password, nil
		}
		if !errors.Is(err, keyring.ErrKeyNotFound) {
			return "", err
		}
	}
	password, err := promptForPassword(fmt.Sprintf("Password for %s", c.Username))
	if err != nil {
		return "", ErrNoCredentials
	}
	c.password = &password
	return password, nil
}
