package keystore

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	vault "github.com/hashicorp/vault/api"
)

// Credentials holds one account's API key pair.
type Credentials struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}

// Resolver turns an opaque credential handle into API credentials.
// Handles use a scheme prefix: "vault:<path>" reads a KV v2 secret,
// "env:<NAME>" reads <NAME>_KEY and <NAME>_SECRET from the environment.
type Resolver interface {
	Resolve(ref string) (*Credentials, error)
}

type cachedSecret struct {
	creds     *Credentials
	expiresAt time.Time
}

// Keystore resolves credential handles, caching Vault reads.
type Keystore struct {
	mu        sync.RWMutex
	client    *vault.Client
	mountPath string
	cacheTTL  time.Duration
	cache     map[string]*cachedSecret
}

// Config holds keystore configuration
type Config struct {
	VaultAddr  string
	VaultToken string
	MountPath  string
	CacheTTL   time.Duration
}

// New creates a keystore. A Vault client is only constructed when an
// address is configured; env handles work without one.
func New(config *Config) (*Keystore, error) {
	ks := &Keystore{
		mountPath: config.MountPath,
		cacheTTL:  config.CacheTTL,
		cache:     make(map[string]*cachedSecret),
	}
	if ks.mountPath == "" {
		ks.mountPath = "secret"
	}
	if ks.cacheTTL <= 0 {
		ks.cacheTTL = 5 * time.Minute
	}

	if config.VaultAddr != "" {
		vc := vault.DefaultConfig()
		vc.Address = config.VaultAddr

		client, err := vault.NewClient(vc)
		if err != nil {
			return nil, fmt.Errorf("failed to create vault client: %w", err)
		}
		client.SetToken(config.VaultToken)
		ks.client = client
	}

	return ks, nil
}

// NewFromEnv creates a keystore from VAULT_ADDR / VAULT_TOKEN /
// VAULT_MOUNT_PATH environment variables.
func NewFromEnv() (*Keystore, error) {
	return New(&Config{
		VaultAddr:  os.Getenv("VAULT_ADDR"),
		VaultToken: os.Getenv("VAULT_TOKEN"),
		MountPath:  os.Getenv("VAULT_MOUNT_PATH"),
	})
}

// Resolve returns the credentials for an opaque handle.
func (ks *Keystore) Resolve(ref string) (*Credentials, error) {
	scheme, rest, found := strings.Cut(ref, ":")
	if !found {
		return nil, fmt.Errorf("invalid credential ref %q: missing scheme", ref)
	}

	switch scheme {
	case "env":
		return ks.resolveEnv(rest)
	case "vault":
		return ks.resolveVault(rest)
	default:
		return nil, fmt.Errorf("unsupported credential scheme %q", scheme)
	}
}

func (ks *Keystore) resolveEnv(name string) (*Credentials, error) {
	key := os.Getenv(name + "_KEY")
	secret := os.Getenv(name + "_SECRET")
	if key == "" || secret == "" {
		return nil, fmt.Errorf("credentials %s_KEY / %s_SECRET not set", name, name)
	}
	return &Credentials{APIKey: key, APISecret: secret}, nil
}

func (ks *Keystore) resolveVault(path string) (*Credentials, error) {
	if ks.client == nil {
		return nil, fmt.Errorf("vault credential ref %q but no vault address configured", path)
	}

	ks.mu.RLock()
	if cached, exists := ks.cache[path]; exists && time.Now().Before(cached.expiresAt) {
		ks.mu.RUnlock()
		return cached.creds, nil
	}
	ks.mu.RUnlock()

	secret, err := ks.client.Logical().Read(fmt.Sprintf("%s/data/%s", ks.mountPath, path))
	if err != nil {
		return nil, fmt.Errorf("failed to read secret %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no credentials found at %s", path)
	}

	// KV v2 nests the payload under "data"
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format at %s", path)
	}

	creds := &Credentials{}
	if apiKey, ok := data["api_key"].(string); ok {
		creds.APIKey = apiKey
	}
	if apiSecret, ok := data["api_secret"].(string); ok {
		creds.APISecret = apiSecret
	}
	if creds.APIKey == "" || creds.APISecret == "" {
		return nil, fmt.Errorf("secret at %s missing api_key or api_secret", path)
	}

	ks.mu.Lock()
	ks.cache[path] = &cachedSecret{creds: creds, expiresAt: time.Now().Add(ks.cacheTTL)}
	ks.mu.Unlock()

	return creds, nil
}
