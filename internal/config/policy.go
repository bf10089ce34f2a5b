package config

import "strings"

// TLSSourceKind identifies which transport-identity source the configuration
// selected.
type TLSSourceKind int

const (
	// TLSSourceSelfSigned generates an ephemeral key pair; development only.
	TLSSourceSelfSigned TLSSourceKind = iota
	// TLSSourceKeystore loads identity from a keystore container.
	TLSSourceKeystore
	// TLSSourceKeyCertFiles loads identity from a raw key/certificate pair.
	TLSSourceKeyCertFiles
)

func (k TLSSourceKind) String() string {
	switch k {
	case TLSSourceKeystore:
		return "keystore"
	case TLSSourceKeyCertFiles:
		return "key_cert_files"
	default:
		return "self_signed"
	}
}

// TLSSource is the tagged variant describing where the server's private key
// and certificate chain come from. Exactly one variant is selected per
// process; only the fields of the selected kind are populated.
type TLSSource struct {
	Kind TLSSourceKind

	// Keystore variant
	KeystorePath     string
	KeystorePassword string
	KeystoreType     string

	// KeyCertFiles variant
	PrivateKeyFile  string
	CertificateFile string
}

// PolicySnapshot carries the resolved policy inputs consumed at startup by
// identity resolution and admission-gate construction. It is immutable.
type PolicySnapshot struct {
	TLS TLSSource

	// LimiterSpecs maps error category (wlm, server, model, any) to its rate
	// limiter spec string. Unconfigured categories have no entry; absence
	// means no limiter is enforced for that category.
	LimiterSpecs map[string]string
}

// Snapshot derives the policy snapshot from the frozen configuration.
//
// Source selection is first match wins: a configured keystore always wins,
// even when a key/certificate file pair is also set; the file pair requires
// both paths; with neither the server falls back to a self-signed identity.
func (c *Config) Snapshot() PolicySnapshot {
	snap := PolicySnapshot{
		TLS:          TLSSource{Kind: TLSSourceSelfSigned},
		LimiterSpecs: map[string]string{},
	}

	keystore := c.Property(KeyKeystore, "")
	keyFile := c.Property(KeyPrivateKeyFile, "")
	certFile := c.Property(KeyCertificateFile, "")

	switch {
	case keystore != "":
		snap.TLS = TLSSource{
			Kind:             TLSSourceKeystore,
			KeystorePath:     keystore,
			KeystorePassword: c.Property(KeyKeystorePass, "changeit"),
			KeystoreType:     c.Property(KeyKeystoreType, "PKCS12"),
		}
	case keyFile != "" && certFile != "":
		snap.TLS = TLSSource{
			Kind:            TLSSourceKeyCertFiles,
			PrivateKeyFile:  keyFile,
			CertificateFile: certFile,
		}
	}

	for k, v := range c.props {
		if strings.HasPrefix(k, errorRatePrefix) {
			snap.LimiterSpecs[strings.TrimPrefix(k, errorRatePrefix)] = v
		}
	}

	return snap
}

// LimiterSpecKey returns the configuration key a limiter category was
// configured under, for use in diagnostics.
func LimiterSpecKey(category string) string {
	return errorRatePrefix + category
}
