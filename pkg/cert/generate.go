package cert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"time"
)

// GenerateKeyPair creates a new ECDSA P-256 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &KeyPair{PrivateKey: key, PublicKey: &key.PublicKey}, nil
}

// ComputeSKI returns the SHA-1 subject key identifier of a public key.
func ComputeSKI(pub *ecdsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}
	sum := sha1.Sum(der)
	return sum[:], nil
}

// GenerateCA creates a self-signed CA. validity <= 0 selects CAValidity.
func GenerateCA(commonName string, validity time.Duration) (*Authority, error) {
	if validity <= 0 {
		validity = CAValidity
	}
	kp, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	ski, err := ComputeSKI(kp.PublicKey)
	if err != nil {
		return nil, err
	}
	serial, err := randomSerial()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: commonName, Organization: []string{"lineecho"}},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(validity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLenZero:        true,
		SubjectKeyId:          ski,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, kp.PublicKey, kp.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("create CA certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}
	return &Authority{Certificate: cert, PrivateKey: kp.PrivateKey}, nil
}

// IssueServer issues a server leaf for the given hosts. Entries that parse
// as IP addresses become IP SANs, the rest DNS SANs. The first host is the
// subject common name.
func (a *Authority) IssueServer(hosts []string, validity time.Duration) (*Leaf, error) {
	if len(hosts) == 0 {
		return nil, ErrNoHosts
	}
	template := &x509.Certificate{
		Subject:     pkix.Name{CommonName: hosts[0]},
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}
	return a.issue(template, validity)
}

// IssueClient issues a client leaf for mutual TLS.
func (a *Authority) IssueClient(commonName string, validity time.Duration) (*Leaf, error) {
	template := &x509.Certificate{
		Subject:     pkix.Name{CommonName: commonName},
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	return a.issue(template, validity)
}

func (a *Authority) issue(template *x509.Certificate, validity time.Duration) (*Leaf, error) {
	if a.Certificate == nil || a.PrivateKey == nil {
		return nil, ErrInvalidCert
	}
	if !a.Certificate.IsCA {
		return nil, ErrNotCA
	}
	if validity <= 0 {
		validity = LeafValidity
	}

	kp, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	serial, err := randomSerial()
	if err != nil {
		return nil, err
	}
	ski, err := ComputeSKI(kp.PublicKey)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	template.SerialNumber = serial
	template.NotBefore = now.Add(-time.Minute)
	template.NotAfter = now.Add(validity)
	template.KeyUsage = x509.KeyUsageDigitalSignature
	template.BasicConstraintsValid = true
	template.SubjectKeyId = ski
	template.AuthorityKeyId = a.Certificate.SubjectKeyId

	der, err := x509.CreateCertificate(rand.Reader, template, a.Certificate, kp.PublicKey, a.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("create leaf certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}
	return &Leaf{Certificate: cert, PrivateKey: kp.PrivateKey, Issuer: a.Certificate}, nil
}

// GenerateSelfSigned creates a self-signed server leaf that no CA vouches
// for. Useful to exercise insecure clients.
func GenerateSelfSigned(hosts []string, validity time.Duration) (*Leaf, error) {
	ca, err := GenerateCA("lineecho self-signed", validity)
	if err != nil {
		return nil, err
	}
	leaf, err := ca.IssueServer(hosts, validity)
	if err != nil {
		return nil, err
	}
	// The CA is discarded, so nothing can ever verify this leaf
	leaf.Issuer = nil
	return leaf, nil
}

// Verify checks that leaf chains to ca for the given usage.
func Verify(leaf, ca *x509.Certificate, usage x509.ExtKeyUsage) error {
	if leaf == nil || ca == nil {
		return ErrInvalidCert
	}
	roots := x509.NewCertPool()
	roots.AddCert(ca)
	_, err := leaf.Verify(x509.VerifyOptions{
		Roots:       roots,
		CurrentTime: time.Now(),
		KeyUsages:   []x509.ExtKeyUsage{usage},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidChain, err)
	}
	return nil
}

func randomSerial() (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), 127)
	return rand.Int(rand.Reader, limit)
}
