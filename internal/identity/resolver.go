// Package identity resolves the server's secure-transport identity from the
// policy snapshot: a keystore container, a raw key/certificate file pair, or
// a generated self-signed fallback, in that priority order.
package identity

import (
	"crypto"
	"crypto/tls"
	"errors"
	"fmt"

	"github.com/maaquib/djl-serving/internal/config"
	"github.com/maaquib/djl-serving/internal/keymat"
)

// ErrKeyMismatch indicates the leaf certificate does not belong to the
// private key.
var ErrKeyMismatch = errors.New("private key does not match leaf certificate")

// The negotiated surface is deliberately narrow: one protocol version and an
// explicit two-suite allow-list, auditable over flexible.
var cipherSuites = []uint16{
	tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
}

// Identity is the resolved transport identity, built once at startup and
// handed to the listeners as an immutable value.
type Identity struct {
	TLS    *tls.Config
	Source config.TLSSourceKind
}

// Resolve derives the transport identity from the snapshot. It runs exactly
// once at startup, before any listener opens. A failure of the selected
// source is fatal; an explicitly configured but broken source must not
// silently degrade to self-signed.
func Resolve(snap config.PolicySnapshot) (*Identity, error) {
	var (
		mat *keymat.Material
		err error
	)

	switch snap.TLS.Kind {
	case config.TLSSourceKeystore:
		mat, err = keymat.LoadKeystore(snap.TLS.KeystorePath, snap.TLS.KeystorePassword, snap.TLS.KeystoreType)
		if err != nil {
			return nil, fmt.Errorf("%s=%s: %w", config.KeyKeystore, snap.TLS.KeystorePath, err)
		}
	case config.TLSSourceKeyCertFiles:
		mat, err = keymat.LoadKeyCertFiles(snap.TLS.PrivateKeyFile, snap.TLS.CertificateFile, keymat.PKCS1Converter{})
		if err != nil {
			return nil, fmt.Errorf("%s=%s %s=%s: %w",
				config.KeyPrivateKeyFile, snap.TLS.PrivateKeyFile,
				config.KeyCertificateFile, snap.TLS.CertificateFile, err)
		}
	default:
		mat, err = keymat.SelfSignedIssuer{}.Issue()
		if err != nil {
			return nil, fmt.Errorf("self-signed fallback: %w", err)
		}
	}

	cfg, err := buildTLSConfig(mat)
	if err != nil {
		return nil, fmt.Errorf("build tls context (%s): %w", snap.TLS.Kind, err)
	}

	return &Identity{TLS: cfg, Source: snap.TLS.Kind}, nil
}

func buildTLSConfig(mat *keymat.Material) (*tls.Config, error) {
	if len(mat.Chain) == 0 {
		return nil, keymat.ErrNoCertificates
	}

	if err := verifyKeyPair(mat); err != nil {
		return nil, err
	}

	cert := tls.Certificate{
		PrivateKey: mat.PrivateKey,
		Leaf:       mat.Leaf(),
	}
	for _, c := range mat.Chain {
		cert.Certificate = append(cert.Certificate, c.Raw)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		MaxVersion:   tls.VersionTLS12,
		CipherSuites: cipherSuites,
	}, nil
}

// verifyKeyPair checks that the leaf certificate's public key belongs to the
// private key, so a mismatched pair fails at startup instead of on the first
// handshake.
func verifyKeyPair(mat *keymat.Material) error {
	pub, ok := mat.PrivateKey.Public().(interface{ Equal(crypto.PublicKey) bool })
	if !ok {
		return fmt.Errorf("%w: unsupported key type %T", ErrKeyMismatch, mat.PrivateKey)
	}
	if !pub.Equal(mat.Leaf().PublicKey) {
		return ErrKeyMismatch
	}
	return nil
}
