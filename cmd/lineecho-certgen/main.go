// Command lineecho-certgen creates a private CA and certificates for running
// lineecho over TLS.
//
// Usage:
//
//	lineecho-certgen [flags]
//
// Flags:
//
//	-out string     Output directory (default "certs")
//	-host string    Comma-separated server host names and IPs (default "localhost,127.0.0.1,::1")
//	-client         Also issue a client certificate
//	-ca-name string Common name of the CA (default "lineecho CA")
//	-validity dur   Leaf certificate validity (default 8760h)
//
// An existing ca.crt/ca.key pair in the output directory is reused, so
// further leaves chain to the same root.
//
// Example:
//
//	lineecho-certgen -out certs -host localhost,127.0.0.1 -client
//	lineecho-server -tls -cert certs/server.crt -key certs/server.key -cafile certs/ca.crt
//	lineecho-client -tls -cafile certs/ca.crt -sni localhost
package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/lineecho/lineecho-go/pkg/cert"
)

// options controls certificate generation.
type options struct {
	Dir      string
	Hosts    []string
	Client   bool
	CAName   string
	Validity time.Duration
}

func main() {
	out := flag.String("out", "certs", "Output directory")
	hosts := flag.String("host", "localhost,127.0.0.1,::1", "Comma-separated server host names and IPs")
	client := flag.Bool("client", false, "Also issue a client certificate")
	caName := flag.String("ca-name", "lineecho CA", "Common name of the CA")
	validity := flag.Duration("validity", cert.LeafValidity, "Leaf certificate validity")
	flag.Parse()

	paths, reused, err := generate(options{
		Dir:      *out,
		Hosts:    splitHosts(*hosts),
		Client:   *client,
		CAName:   *caName,
		Validity: *validity,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if reused {
		fmt.Printf("Reused CA:      %s\n", paths.CACert)
	} else {
		fmt.Printf("CA certificate: %s\n", paths.CACert)
		fmt.Printf("CA key:         %s\n", paths.CAKey)
	}
	fmt.Printf("Server cert:    %s\n", paths.ServerCert)
	fmt.Printf("Server key:     %s\n", paths.ServerKey)
	if *client {
		fmt.Printf("Client cert:    %s\n", paths.ClientCert)
		fmt.Printf("Client key:     %s\n", paths.ClientKey)
	}
}

// generate writes the CA (unless one exists) and the requested leaves. It
// reports whether an existing CA was reused.
func generate(opts options) (cert.Paths, bool, error) {
	paths := cert.DefaultPaths(opts.Dir)
	if len(opts.Hosts) == 0 {
		return paths, false, cert.ErrNoHosts
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return paths, false, fmt.Errorf("create output directory: %w", err)
	}

	ca, reused, err := loadOrCreateCA(paths, opts.CAName)
	if err != nil {
		return paths, false, err
	}

	server, err := ca.IssueServer(opts.Hosts, opts.Validity)
	if err != nil {
		return paths, reused, fmt.Errorf("issue server certificate: %w", err)
	}
	if err := cert.WriteLeaf(paths.ServerCert, paths.ServerKey, server); err != nil {
		return paths, reused, err
	}

	if opts.Client {
		client, err := ca.IssueClient("lineecho client", opts.Validity)
		if err != nil {
			return paths, reused, fmt.Errorf("issue client certificate: %w", err)
		}
		if err := cert.WriteLeaf(paths.ClientCert, paths.ClientKey, client); err != nil {
			return paths, reused, err
		}
	}
	return paths, reused, nil
}

func loadOrCreateCA(paths cert.Paths, name string) (*cert.Authority, bool, error) {
	ca, err := cert.LoadAuthority(paths.CACert, paths.CAKey)
	if err == nil {
		return ca, true, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, fmt.Errorf("load existing CA: %w", err)
	}

	ca, err = cert.GenerateCA(name, cert.CAValidity)
	if err != nil {
		return nil, false, fmt.Errorf("generate CA: %w", err)
	}
	if err := cert.WriteAuthority(paths, ca); err != nil {
		return nil, false, err
	}
	return ca, false, nil
}

func splitHosts(s string) []string {
	var hosts []string
	for _, h := range strings.Split(s, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}
