// Package cert generates and stores the certificates used to run lineecho
// over TLS: a local CA, server leaves with host SANs and optional client
// leaves for mutual TLS.
package cert

import (
	"crypto/ecdsa"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"time"
)

// Default validity periods.
const (
	CAValidity   = 10 * 365 * 24 * time.Hour
	LeafValidity = 365 * 24 * time.Hour
)

// Errors.
var (
	ErrInvalidCert  = errors.New("invalid certificate")
	ErrNotCA        = errors.New("certificate is not a CA")
	ErrNoHosts      = errors.New("at least one host is required")
	ErrInvalidChain = errors.New("invalid certificate chain")
)

// KeyPair holds an ECDSA P-256 key pair.
type KeyPair struct {
	PrivateKey *ecdsa.PrivateKey
	PublicKey  *ecdsa.PublicKey
}

// Authority is a self-signed CA able to issue leaf certificates.
type Authority struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
}

// Leaf is an issued end-entity certificate with its key.
type Leaf struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey

	// Issuer is the signing CA certificate.
	Issuer *x509.Certificate
}

// TLSCertificate converts the leaf for use in a tls.Config.
func (l *Leaf) TLSCertificate() tls.Certificate {
	return tls.Certificate{
		Certificate: [][]byte{l.Certificate.Raw},
		PrivateKey:  l.PrivateKey,
		Leaf:        l.Certificate,
	}
}

// ExpiresAt returns when the leaf expires.
func (l *Leaf) ExpiresAt() time.Time {
	if l.Certificate == nil {
		return time.Time{}
	}
	return l.Certificate.NotAfter
}
