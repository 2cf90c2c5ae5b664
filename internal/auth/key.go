package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"gopkg.in/yaml.v3"
)

// DevSigningSecret is the shared secret used when dev mode is enabled and no
// key has been configured.
const DevSigningSecret = "dev-secret-change-me"

// KeySource identifies where the verification key was resolved from.
type KeySource string

const (
	// KeySourceSecretEnv is MCP_JWT_SECRET_KEY.
	KeySourceSecretEnv KeySource = "mcp_jwt_secret_key"
	// KeySourceSecretFile is MCP_JWT_SECRET_FILE.
	KeySourceSecretFile KeySource = "mcp_jwt_secret_file"
	// KeySourcePublicKeyFile is MCP_JWT_PUBLIC_KEY_FILE.
	KeySourcePublicKeyFile KeySource = "mcp_jwt_public_key_file"
	// KeySourceDevDefault is the built-in development secret.
	KeySourceDevDefault KeySource = "dev_default"
)

// VerificationKey pairs a signing algorithm with the key material used to
// verify tokens signed with it.
type VerificationKey struct {
	Algorithm string
	key       any
}

// KeyOptions controls verification key resolution.
type KeyOptions struct {
	Algorithm       string
	Secret          string
	SecretFile      string
	PublicKeyFile   string
	AllowDevDefault bool
}

type secretFile struct {
	JWT struct {
		SecretKey string `yaml:"secret_key"`
	} `yaml:"jwt"`
}

// ResolveVerificationKey resolves the key using deterministic precedence:
// 1) MCP_JWT_PUBLIC_KEY_FILE (asymmetric algorithms only)
// 2) MCP_JWT_SECRET_KEY
// 3) MCP_JWT_SECRET_FILE
// 4) DevSigningSecret (only when AllowDevDefault=true)
func ResolveVerificationKey(opts KeyOptions) (VerificationKey, KeySource, error) {
	alg := strings.TrimSpace(opts.Algorithm)
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}

	if isHMAC(alg) {
		secret, source, err := resolveSecret(opts)
		if err != nil {
			return VerificationKey{}, "", err
		}
		key, err := NewHMACKey(alg, []byte(secret))
		return key, source, err
	}

	path := strings.TrimSpace(opts.PublicKeyFile)
	if path == "" {
		return VerificationKey{}, "", fmt.Errorf("algorithm %s requires MCP_JWT_PUBLIC_KEY_FILE", alg)
	}
	data, err := os.ReadFile(expandPath(path))
	if err != nil {
		return VerificationKey{}, "", fmt.Errorf("reading public key file: %w", err)
	}
	key, err := NewPublicKey(alg, data)
	return key, KeySourcePublicKeyFile, err
}

func resolveSecret(opts KeyOptions) (string, KeySource, error) {
	if secret := strings.TrimSpace(opts.Secret); secret != "" {
		return secret, KeySourceSecretEnv, nil
	}

	if path := strings.TrimSpace(opts.SecretFile); path != "" {
		secret, err := readSecretFile(expandPath(path))
		if err != nil {
			return "", "", err
		}
		return secret, KeySourceSecretFile, nil
	}

	if opts.AllowDevDefault {
		return DevSigningSecret, KeySourceDevDefault, nil
	}
	return "", "", errors.New("no JWT signing secret configured (set MCP_JWT_SECRET_KEY or MCP_JWT_SECRET_FILE)")
}

// readSecretFile accepts either a bare secret or a YAML document with
// jwt.secret_key.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading secret file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		var doc secretFile
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return "", fmt.Errorf("decoding secret file: %w", err)
		}
		secret := strings.TrimSpace(doc.JWT.SecretKey)
		if secret == "" {
			return "", fmt.Errorf("secret file %s has no jwt.secret_key", path)
		}
		return secret, nil
	}

	secret := strings.TrimSpace(string(data))
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", path)
	}
	return secret, nil
}

// NewHMACKey builds a key for HS256, HS384 or HS512.
func NewHMACKey(alg string, secret []byte) (VerificationKey, error) {
	if !isHMAC(alg) {
		return VerificationKey{}, fmt.Errorf("unsupported HMAC algorithm %q", alg)
	}
	if len(secret) == 0 {
		return VerificationKey{}, errors.New("HMAC secret is empty")
	}
	return VerificationKey{Algorithm: alg, key: secret}, nil
}

// NewPublicKey builds a key for RSA, RSA-PSS, ECDSA or EdDSA algorithms from
// a PEM-encoded public key.
func NewPublicKey(alg string, pemData []byte) (VerificationKey, error) {
	var (
		key any
		err error
	)
	switch jwt.GetSigningMethod(alg).(type) {
	case *jwt.SigningMethodRSA, *jwt.SigningMethodRSAPSS:
		key, err = jwt.ParseRSAPublicKeyFromPEM(pemData)
	case *jwt.SigningMethodECDSA:
		key, err = jwt.ParseECPublicKeyFromPEM(pemData)
	case *jwt.SigningMethodEd25519:
		key, err = jwt.ParseEdPublicKeyFromPEM(pemData)
	default:
		return VerificationKey{}, fmt.Errorf("unsupported public key algorithm %q", alg)
	}
	if err != nil {
		return VerificationKey{}, fmt.Errorf("parsing %s public key: %w", alg, err)
	}
	return VerificationKey{Algorithm: alg, key: key}, nil
}

func isHMAC(alg string) bool {
	_, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC)
	return ok
}

func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~/"))
	}
	return filepath.Clean(path)
}
