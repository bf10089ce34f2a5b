// Package keymat loads server key material: a private key and its ordered
// certificate chain, from a keystore container or from raw key/certificate
// files. All failures here are fatal to startup; the server never listens
// without fully resolved key material.
package keymat

import (
	"crypto"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"golang.org/x/crypto/pkcs12"
)

var (
	// ErrContainerUnreadable indicates the keystore container could not be
	// opened, parsed, or decrypted with the configured password.
	ErrContainerUnreadable = errors.New("keystore container unreadable")
	// ErrNoKeyEntry indicates the keystore container holds no private key
	// entry.
	ErrNoKeyEntry = errors.New("no key entry found in keystore")
	// ErrUnsupportedKeyEncoding indicates the private key file could not be
	// decoded as either a modern (PKCS8) or legacy key encoding.
	ErrUnsupportedKeyEncoding = errors.New("unsupported private key encoding")
	// ErrNoCertificates indicates the certificate file yielded an empty chain.
	ErrNoCertificates = errors.New("no certificates found")
)

// LegacyKeyConverter reinterprets a legacy private-key byte encoding as the
// modern (PKCS8) encoding. Used as the second attempt when a key file does
// not parse as PKCS8 directly; sniffing the format from PEM headers alone is
// unreliable across producers.
type LegacyKeyConverter interface {
	Convert(der []byte) ([]byte, error)
}

// PKCS1Converter converts a traditional RSA (PKCS1, OpenSSL-style) private
// key encoding to PKCS8.
type PKCS1Converter struct{}

// Convert implements LegacyKeyConverter.
func (PKCS1Converter) Convert(der []byte) ([]byte, error) {
	key, err := x509.ParsePKCS1PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse legacy rsa key: %w", err)
	}
	return x509.MarshalPKCS8PrivateKey(key)
}

// Material is a private key with its certificate chain, leaf first.
type Material struct {
	PrivateKey crypto.Signer
	Chain      []*x509.Certificate
}

// Leaf returns the server identity certificate.
func (m *Material) Leaf() *x509.Certificate {
	return m.Chain[0]
}

var pemBoundaryRE = regexp.MustCompile(`(?i)-----(BEGIN|END)( RSA)? PRIVATE KEY-----`)

// LoadKeystore opens the keystore container at path and returns the key
// material of the first private-key entry, with that entry's certificate
// chain in the container's native order. When a container holds multiple key
// entries the first enumerated one wins.
func LoadKeystore(path, password, storeType string) (*Material, error) {
	if !strings.EqualFold(storeType, "PKCS12") {
		return nil, fmt.Errorf("%w: unsupported keystore type %q", ErrContainerUnreadable, storeType)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContainerUnreadable, err)
	}

	blocks, err := pkcs12.ToPEM(data, password)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContainerUnreadable, err)
	}

	var key crypto.Signer
	var chain []*x509.Certificate
	for _, block := range blocks {
		switch {
		case strings.HasSuffix(block.Type, "PRIVATE KEY"):
			if key != nil {
				continue
			}
			key, err = parsePrivateKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrContainerUnreadable, err)
			}
		case block.Type == "CERTIFICATE":
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrContainerUnreadable, err)
			}
			chain = append(chain, cert)
		}
	}

	if key == nil {
		return nil, ErrNoKeyEntry
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("%w: key entry has no certificate chain", ErrContainerUnreadable)
	}

	return &Material{PrivateKey: key, Chain: chain}, nil
}

// LoadKeyCertFiles reads a raw private key file and a certificate file. The
// key file is parsed as PKCS8 first; when that fails the raw bytes are handed
// to conv for legacy conversion and reparsed. The certificate file is parsed
// as a PEM sequence of X.509 certificates, file order preserved.
func LoadKeyCertFiles(keyPath, certPath string, conv LegacyKeyConverter) (*Material, error) {
	key, err := loadPrivateKey(keyPath, conv)
	if err != nil {
		return nil, err
	}

	chain, err := loadCertificateChain(certPath)
	if err != nil {
		return nil, err
	}

	return &Material{PrivateKey: key, Chain: chain}, nil
}

func loadPrivateKey(path string, conv LegacyKeyConverter) (crypto.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key file: %w", err)
	}

	payload := pemBoundaryRE.ReplaceAllString(string(data), "")
	payload = strings.Join(strings.Fields(payload), "")
	der, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedKeyEncoding, err)
	}

	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		return asSigner(key)
	}

	// Not PKCS8; treat the bytes as a legacy encoding and convert. A failure
	// on this second attempt is fatal.
	converted, err := conv.Convert(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedKeyEncoding, err)
	}
	key, err := x509.ParsePKCS8PrivateKey(converted)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedKeyEncoding, err)
	}
	return asSigner(key)
}

func loadCertificateChain(path string) ([]*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read certificate file: %w", err)
	}

	var chain []*x509.Certificate
	for rest := data; len(rest) > 0; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse certificate: %w", err)
		}
		chain = append(chain, cert)
	}

	if len(chain) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoCertificates, path)
	}
	return chain, nil
}

// parsePrivateKey handles the encodings a keystore entry may carry.
func parsePrivateKey(der []byte) (crypto.Signer, error) {
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		return asSigner(key)
	}
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	return nil, errors.New("unrecognized private key encoding in keystore entry")
}

func asSigner(key any) (crypto.Signer, error) {
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("private key type %T cannot sign", key)
	}
	return signer, nil
}
