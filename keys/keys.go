// Package keys manages the SSH keypair used to reach provisioned nodes.
package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"github.com/platformlayer/openstack-jenkins/secret"
	"golang.org/x/crypto/ssh"
)

const DefaultBits = 2048

// KeyPair is an RSA private key (PEM) with its OpenSSH authorized_keys public half.
type KeyPair struct {
	PublicKey  string
	PrivateKey secret.Secret
}

// Generate creates a fresh RSA keypair.
func Generate(bits int) (KeyPair, error) {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return KeyPair{}, fmt.Errorf("failed to generate RSA private key: %w", err)
	}
	if err := key.Validate(); err != nil {
		return KeyPair{}, fmt.Errorf("failed to validate RSA private key: %w", err)
	}

	privateKey := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	publicKey, err := authorizedKey(key)
	if err != nil {
		return KeyPair{}, err
	}

	return KeyPair{PublicKey: publicKey, PrivateKey: secret.New(string(privateKey))}, nil
}

// Parse loads a PEM private key and derives its public half.
func Parse(privateKey secret.Secret) (KeyPair, error) {
	key, err := parseRSA(privateKey.Reveal())
	if err != nil {
		return KeyPair{}, err
	}

	publicKey, err := authorizedKey(key)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{PublicKey: publicKey, PrivateKey: privateKey}, nil
}

// Validate reports whether the PEM text is a usable, unencrypted RSA private key.
func Validate(privateKey string) error {
	_, err := parseRSA(privateKey)
	return err
}

func (k KeyPair) Equal(other KeyPair) bool {
	return k.PublicKey == other.PublicKey && k.PrivateKey.Equal(other.PrivateKey)
}

// Fingerprint is the SHA-1 of the PKCS#8 encoded private key, as colon separated hex.
func (k KeyPair) Fingerprint() (string, error) {
	return Fingerprint(k.PrivateKey.Reveal())
}

func Fingerprint(privateKey string) (string, error) {
	key, err := parseRSA(privateKey)
	if err != nil {
		return "", err
	}

	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", fmt.Errorf("failed to encode private key: %w", err)
	}

	sum := sha1.Sum(der)
	return colonHex(sum[:]), nil
}

// Matches tells whether a fingerprint reported by the provider designates this keypair.
// Providers either echo the private key fingerprint or compute the legacy MD5 one
// from the public key, so both are accepted.
func (k KeyPair) Matches(fingerprint string) bool {
	if fingerprint == "" {
		return false
	}

	if own, err := k.Fingerprint(); err == nil && strings.EqualFold(own, fingerprint) {
		return true
	}

	if pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(k.PublicKey)); err == nil {
		return strings.EqualFold(ssh.FingerprintLegacyMD5(pub), fingerprint)
	}
	return false
}

// SamePublicKey compares two authorized_keys lines, ignoring comments.
func SamePublicKey(a, b string) bool {
	left, _, _, _, err := ssh.ParseAuthorizedKey([]byte(a))
	if err != nil {
		return false
	}
	right, _, _, _, err := ssh.ParseAuthorizedKey([]byte(b))
	if err != nil {
		return false
	}
	return string(left.Marshal()) == string(right.Marshal())
}

func (k KeyPair) Signer() (ssh.Signer, error) {
	signer, err := ssh.ParsePrivateKey([]byte(k.PrivateKey.Reveal()))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return signer, nil
}

func parseRSA(privateKey string) (*rsa.PrivateKey, error) {
	if strings.TrimSpace(privateKey) == "" {
		return nil, errors.New("private key is empty")
	}

	raw, err := ssh.ParseRawPrivateKey([]byte(privateKey))
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, errors.New("password protected private keys are not supported")
		}
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	key, ok := raw.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("unsupported private key type %T, expected RSA", raw)
	}
	return key, nil
}

func authorizedKey(key *rsa.PrivateKey) (string, error) {
	publicKey, err := ssh.NewPublicKey(&key.PublicKey)
	if err != nil {
		return "", fmt.Errorf("failed to create SSH public key: %w", err)
	}
	return strings.TrimSpace(string(ssh.MarshalAuthorizedKey(publicKey))), nil
}

func colonHex(b []byte) string {
	var sb strings.Builder
	for i, c := range b {
		if i > 0 {
			sb.WriteByte(':')
		}
		sb.WriteString(hex.EncodeToString([]byte{c}))
	}
	return sb.String()
}
