package cert

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGenerateKeyPair(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}
	if kp.PrivateKey == nil || kp.PublicKey == nil {
		t.Fatal("key pair should be populated")
	}
	if kp.PrivateKey.Curve.Params().Name != "P-256" {
		t.Errorf("Expected P-256 curve, got %s", kp.PrivateKey.Curve.Params().Name)
	}
}

func TestComputeSKI(t *testing.T) {
	kp, _ := GenerateKeyPair()
	ski, err := ComputeSKI(kp.PublicKey)
	if err != nil {
		t.Fatalf("ComputeSKI() error = %v", err)
	}
	if len(ski) != 20 {
		t.Errorf("SKI length = %d, want 20", len(ski))
	}

	kp2, _ := GenerateKeyPair()
	ski2, _ := ComputeSKI(kp2.PublicKey)
	if bytes.Equal(ski, ski2) {
		t.Error("Different keys should produce different SKIs")
	}
}

func TestGenerateCA(t *testing.T) {
	ca, err := GenerateCA("test CA", 0)
	if err != nil {
		t.Fatalf("GenerateCA() error = %v", err)
	}
	c := ca.Certificate
	if !c.IsCA {
		t.Error("CA certificate should have IsCA set")
	}
	if c.KeyUsage&x509.KeyUsageCertSign == 0 {
		t.Error("CA certificate should allow cert signing")
	}
	if c.Subject.CommonName != "test CA" {
		t.Errorf("CommonName = %q", c.Subject.CommonName)
	}
	if got := time.Until(c.NotAfter); got < CAValidity-time.Hour {
		t.Errorf("CA validity too short: %v", got)
	}
}

func TestIssueServer(t *testing.T) {
	ca, err := GenerateCA("test CA", time.Hour)
	if err != nil {
		t.Fatalf("GenerateCA() error = %v", err)
	}

	leaf, err := ca.IssueServer([]string{"localhost", "127.0.0.1", "::1"}, time.Hour)
	if err != nil {
		t.Fatalf("IssueServer() error = %v", err)
	}

	c := leaf.Certificate
	if c.IsCA {
		t.Error("leaf must not be a CA")
	}
	if c.Subject.CommonName != "localhost" {
		t.Errorf("CommonName = %q, want localhost", c.Subject.CommonName)
	}
	if len(c.DNSNames) != 1 || c.DNSNames[0] != "localhost" {
		t.Errorf("DNSNames = %v", c.DNSNames)
	}
	if len(c.IPAddresses) != 2 || !c.IPAddresses[0].Equal(net.ParseIP("127.0.0.1")) {
		t.Errorf("IPAddresses = %v", c.IPAddresses)
	}
	if !bytes.Equal(c.AuthorityKeyId, ca.Certificate.SubjectKeyId) {
		t.Error("AuthorityKeyId should match the CA's SubjectKeyId")
	}

	if err := Verify(c, ca.Certificate, x509.ExtKeyUsageServerAuth); err != nil {
		t.Errorf("Verify() error = %v", err)
	}
	if err := c.VerifyHostname("127.0.0.1"); err != nil {
		t.Errorf("VerifyHostname(127.0.0.1) error = %v", err)
	}
}

func TestIssueServerRequiresHosts(t *testing.T) {
	ca, _ := GenerateCA("test CA", time.Hour)
	if _, err := ca.IssueServer(nil, time.Hour); !errors.Is(err, ErrNoHosts) {
		t.Errorf("IssueServer(nil) error = %v, want ErrNoHosts", err)
	}
}

func TestIssueClient(t *testing.T) {
	ca, _ := GenerateCA("test CA", time.Hour)
	leaf, err := ca.IssueClient("alice", time.Hour)
	if err != nil {
		t.Fatalf("IssueClient() error = %v", err)
	}
	if err := Verify(leaf.Certificate, ca.Certificate, x509.ExtKeyUsageClientAuth); err != nil {
		t.Errorf("Verify(client) error = %v", err)
	}
	if err := Verify(leaf.Certificate, ca.Certificate, x509.ExtKeyUsageServerAuth); err == nil {
		t.Error("client leaf should not verify for server auth")
	}
}

func TestIssueFromNonCA(t *testing.T) {
	ca, _ := GenerateCA("test CA", time.Hour)
	leaf, _ := ca.IssueServer([]string{"localhost"}, time.Hour)

	fake := &Authority{Certificate: leaf.Certificate, PrivateKey: leaf.PrivateKey}
	if _, err := fake.IssueClient("x", time.Hour); !errors.Is(err, ErrNotCA) {
		t.Errorf("error = %v, want ErrNotCA", err)
	}
}

func TestVerifyOtherCA(t *testing.T) {
	ca1, _ := GenerateCA("one", time.Hour)
	ca2, _ := GenerateCA("two", time.Hour)
	leaf, _ := ca1.IssueServer([]string{"localhost"}, time.Hour)

	if err := Verify(leaf.Certificate, ca2.Certificate, x509.ExtKeyUsageServerAuth); !errors.Is(err, ErrInvalidChain) {
		t.Errorf("Verify() error = %v, want ErrInvalidChain", err)
	}
}

func TestGenerateSelfSigned(t *testing.T) {
	leaf, err := GenerateSelfSigned([]string{"localhost"}, time.Hour)
	if err != nil {
		t.Fatalf("GenerateSelfSigned() error = %v", err)
	}
	if leaf.Issuer != nil {
		t.Error("self-signed leaf should not expose its issuer")
	}
	if _, err := leaf.Certificate.Verify(x509.VerifyOptions{}); err == nil {
		t.Error("self-signed leaf should not verify against the system pool")
	}
}

func TestPEMRoundTrip(t *testing.T) {
	ca, _ := GenerateCA("test CA", time.Hour)

	decoded, err := DecodeCertPEM(EncodeCertPEM(ca.Certificate))
	if err != nil {
		t.Fatalf("DecodeCertPEM() error = %v", err)
	}
	if !decoded.Equal(ca.Certificate) {
		t.Error("decoded certificate differs")
	}

	keyPEM, err := EncodeKeyPEM(ca.PrivateKey)
	if err != nil {
		t.Fatalf("EncodeKeyPEM() error = %v", err)
	}
	key, err := DecodeKeyPEM(keyPEM)
	if err != nil {
		t.Fatalf("DecodeKeyPEM() error = %v", err)
	}
	if !key.Equal(ca.PrivateKey) {
		t.Error("decoded key differs")
	}

	if _, err := DecodeCertPEM([]byte("garbage")); !errors.Is(err, ErrInvalidPEM) {
		t.Errorf("DecodeCertPEM(garbage) error = %v", err)
	}
	if _, err := DecodeKeyPEM(EncodeCertPEM(ca.Certificate)); !errors.Is(err, ErrInvalidPEM) {
		t.Errorf("DecodeKeyPEM(cert) error = %v", err)
	}
}

func TestWriteFiles(t *testing.T) {
	dir := t.TempDir()
	paths := DefaultPaths(dir)

	ca, _ := GenerateCA("test CA", time.Hour)
	server, _ := ca.IssueServer([]string{"localhost"}, time.Hour)

	if err := WriteAuthority(paths, ca); err != nil {
		t.Fatalf("WriteAuthority() error = %v", err)
	}
	if err := WriteLeaf(paths.ServerCert, paths.ServerKey, server); err != nil {
		t.Fatalf("WriteLeaf() error = %v", err)
	}

	info, err := os.Stat(paths.ServerKey)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("key mode = %v, want 0600", info.Mode().Perm())
	}

	if _, err := tls.LoadX509KeyPair(paths.ServerCert, paths.ServerKey); err != nil {
		t.Errorf("LoadX509KeyPair() error = %v", err)
	}

	loaded, err := LoadAuthority(paths.CACert, paths.CAKey)
	if err != nil {
		t.Fatalf("LoadAuthority() error = %v", err)
	}
	if _, err := loaded.IssueClient("bob", time.Hour); err != nil {
		t.Errorf("IssueClient() from loaded CA error = %v", err)
	}

	if _, err := LoadAuthority(paths.ServerCert, paths.ServerKey); !errors.Is(err, ErrNotCA) {
		t.Errorf("LoadAuthority(leaf) error = %v, want ErrNotCA", err)
	}
	if _, err := ReadCertFile(filepath.Join(dir, "missing.crt")); err == nil {
		t.Error("ReadCertFile(missing) should fail")
	}
}

func TestLeafTLSCertificate(t *testing.T) {
	ca, _ := GenerateCA("test CA", time.Hour)
	leaf, _ := ca.IssueServer([]string{"localhost"}, time.Hour)

	tc := leaf.TLSCertificate()
	if len(tc.Certificate) != 1 || tc.Leaf != leaf.Certificate {
		t.Error("TLSCertificate should carry the leaf")
	}
	if !leaf.ExpiresAt().Equal(leaf.Certificate.NotAfter) {
		t.Error("ExpiresAt mismatch")
	}
}
