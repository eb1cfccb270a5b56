package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"log/slog"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lineecho/lineecho-go/pkg/config"
	"github.com/lineecho/lineecho-go/pkg/discovery"
	"github.com/lineecho/lineecho-go/pkg/echo"
	"github.com/lineecho/lineecho-go/pkg/log"
	"github.com/lineecho/lineecho-go/pkg/transport"
)

func TestApplyFlagsOnlyExplicit(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var f clientFlags
	fs.StringVar(&f.Host, "host", "127.0.0.1", "")
	fs.BoolVar(&f.Insecure, "insecure", false, "")
	fs.StringVar(&f.SNI, "sni", "", "")
	require.NoError(t, fs.Parse([]string{"-insecure", "-sni", "echo.test"}))

	cfg := config.DefaultClientConfig()
	cfg.Host = "192.0.2.7" // from a config file
	applyFlags(&cfg, &f, setFlags(fs))

	assert.True(t, cfg.TLS.Insecure)
	assert.Equal(t, "echo.test", cfg.TLS.ServerName)
	assert.Equal(t, "192.0.2.7", cfg.Host)
}

func TestApplyService(t *testing.T) {
	svc := &discovery.Service{
		Instance:  "lineecho-lab",
		Host:      "lab.local.",
		Port:      9001,
		Addresses: []string{"fe80::1", "192.168.1.20"},
		TLS:       true,
	}

	cfg := config.DefaultClientConfig()
	applyService(&cfg, svc, false)
	assert.Equal(t, "192.168.1.20", cfg.Host)
	assert.Equal(t, 9001, cfg.Port)
	assert.True(t, cfg.TLS.Enabled)

	cfg = config.DefaultClientConfig()
	applyService(&cfg, svc, true)
	assert.False(t, cfg.TLS.Enabled, "explicit -tls=false wins")
}

func TestConnectedBanner(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	conn := transport.NewConn(client, 0)
	defer conn.Close()

	assert.Equal(t, "connected to 127.0.0.1:8888", connectedBanner("127.0.0.1", 8888, "", conn))
	assert.Equal(t, "TLS connected to 127.0.0.1:8888 (SNI=localhost)",
		connectedBanner("127.0.0.1", 8888, "localhost", conn))
}

func TestRunAgainstPlainServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan []string, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		var lines []string
		r := bufio.NewReader(c)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				break
			}
			text := strings.TrimRight(line, "\n")
			lines = append(lines, text)
			if text == "quit" {
				_, _ = c.Write([]byte("OK bye\n"))
				break
			}
			_, _ = c.Write([]byte("OK " + text + "\n"))
		}
		received <- lines
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	conn, err := transport.Dial(context.Background(), "127.0.0.1", port, transport.DialConfig{})
	require.NoError(t, err)
	defer conn.Close()

	var out bytes.Buffer
	session := &echo.Interactive{
		Input:  echo.NewReaderSource(strings.NewReader("hello\nquit\nnever sent\n")),
		Output: &out,
		Logger: slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
	}
	require.NoError(t, session.Run(context.Background(), conn))

	assert.Equal(t, []string{"hello", "quit"}, <-received)
	assert.Contains(t, out.String(), "response: OK hello")
	assert.Contains(t, out.String(), "response: OK bye")
	assert.Equal(t, "connected to 127.0.0.1:"+strconv.Itoa(port), connectedBanner("127.0.0.1", port, "", conn))
}

func TestOpenTrace(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	trace, closeFn, err := openTrace("", logger)
	require.NoError(t, err)
	closeFn()
	assert.IsType(t, log.NoopLogger{}, trace)

	trace, closeFn, err = openTrace(filepath.Join(t.TempDir(), "client.ltrace"), logger)
	require.NoError(t, err)
	closeFn()
	assert.IsType(t, &log.FileLogger{}, trace)
}
