package remote

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/mfittko/devicectl/internal/config"
	"github.com/mfittko/devicectl/internal/validation"
)

const (
	defaultUser        = "root"
	defaultPort        = 22
	defaultDialTimeout = 10 * time.Second
)

// Config holds everything needed to open a Connection to a device.
// It is passed explicitly to Dial; there is no package-level connection state.
type Config struct {
	Host           string
	Port           int
	User           string
	IdentityFile   string
	Password       string
	KnownHostsFile string
	DialTimeout    time.Duration
}

// NewConfig creates a new remote config with defaults
func NewConfig() *Config {
	return &Config{
		Port:        defaultPort,
		User:        defaultUser,
		DialTimeout: defaultDialTimeout,
	}
}

// ConfigFromSettings builds a Config from DEVICE_* settings, applying defaults
// for anything unset.
func ConfigFromSettings(s *config.Config) (*Config, error) {
	c := NewConfig()
	c.Host = s.Get("DEVICE_HOST", "")
	c.User = s.Get("DEVICE_USER", c.User)
	c.IdentityFile = s.Get("DEVICE_IDENTITY", "")
	c.Password = s.Get("DEVICE_PASSWORD", "")
	c.KnownHostsFile = s.Get("DEVICE_KNOWN_HOSTS", "")

	if err := validation.Port("DEVICE_PORT", s.Get("DEVICE_PORT", "")); err != nil {
		return nil, err
	}
	port, err := s.GetInt("DEVICE_PORT", c.Port)
	if err != nil {
		return nil, err
	}
	c.Port = port

	timeout, err := s.GetDuration("DEVICE_DIAL_TIMEOUT", c.DialTimeout)
	if err != nil {
		return nil, err
	}
	c.DialTimeout = timeout

	return c, nil
}

// Validate checks that the config can be used to dial
func (c *Config) Validate() error {
	return validation.Collect(
		validation.Required("DEVICE_HOST", c.Host),
		validation.Host("DEVICE_HOST", c.Host),
		validation.Required("DEVICE_USER", c.User),
		validation.Port("DEVICE_PORT", strconv.Itoa(c.Port)),
	)
}

// Addr returns the host:port to dial
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// clientConfig builds the ssh client configuration
func (c *Config) clientConfig() (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod

	signer, err := c.signer()
	if err != nil {
		return nil, err
	}
	if signer != nil {
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if c.Password != "" {
		auth = append(auth, ssh.Password(c.Password))
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if c.KnownHostsFile != "" {
		hostKeyCallback, err = knownhosts.New(c.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts: %w", err)
		}
	}

	return &ssh.ClientConfig{
		User:            c.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.DialTimeout,
	}, nil
}

// signer loads the identity key. An explicit IdentityFile must load; the
// default keys under ~/.ssh are used only if they parse without a passphrase.
func (c *Config) signer() (ssh.Signer, error) {
	if c.IdentityFile != "" {
		key, err := readFile(c.IdentityFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read identity file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			var missing *ssh.PassphraseMissingError
			if errors.As(err, &missing) {
				return nil, fmt.Errorf("identity file %s is passphrase protected; load it into ssh-agent or use an unencrypted key", c.IdentityFile)
			}
			return nil, fmt.Errorf("failed to parse identity file: %w", err)
		}
		return signer, nil
	}

	home, err := userHomeDir()
	if err != nil {
		return nil, nil
	}
	// Pick a private key (prefer ed25519)
	for _, cand := range []string{
		filepath.Join(home, ".ssh", "id_ed25519"),
		filepath.Join(home, ".ssh", "id_rsa"),
	} {
		key, err := readFile(cand)
		if err != nil {
			continue
		}
		if signer, err := ssh.ParsePrivateKey(key); err == nil {
			return signer, nil
		}
	}
	return nil, nil
}
