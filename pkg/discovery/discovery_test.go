package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeTXT(t *testing.T) {
	for _, tlsOn := range []bool{true, false} {
		txt := EncodeTXT(&ServiceInfo{Port: 8888, TLS: tlsOn})
		info, version, err := DecodeTXT(txt)
		require.NoError(t, err)
		assert.Equal(t, tlsOn, info.TLS)
		assert.Equal(t, ProtocolVersion, version)
	}
}

func TestDecodeTXTErrors(t *testing.T) {
	_, _, err := DecodeTXT(TXTRecordMap{})
	assert.ErrorIs(t, err, ErrMissingRequired)

	_, _, err = DecodeTXT(TXTRecordMap{TXTKeyTLS: "maybe"})
	assert.ErrorIs(t, err, ErrInvalidTXT)

	info, version, err := DecodeTXT(TXTRecordMap{TXTKeyTLS: "TRUE"})
	require.NoError(t, err)
	assert.True(t, info.TLS)
	assert.Equal(t, ProtocolVersion, version, "missing version defaults")
}

func TestTXTStrings(t *testing.T) {
	strs := TXTRecordsToStrings(EncodeTXT(&ServiceInfo{TLS: true}))
	assert.Equal(t, []string{"tls=1", "v=1"}, strs)

	txt := StringsToTXTRecords([]string{"tls=0", "flag", "=skipped", "k=a=b"})
	assert.Equal(t, TXTRecordMap{"tls": "0", "flag": "", "k": "a=b"}, txt)
}

func TestServiceEntryToService(t *testing.T) {
	entry := ServiceEntry{
		Instance: "lineecho-box",
		Host:     "box.local.",
		Port:     8888,
		Text:     []string{"tls=1", "v=1"},
		Addrs:    []string{"fe80::1", "192.168.1.10"},
	}

	svc, err := entry.ToService()
	require.NoError(t, err)
	assert.Equal(t, "lineecho-box", svc.Instance)
	assert.True(t, svc.TLS)
	assert.Equal(t, "192.168.1.10", svc.DialHost(), "IPv4 preferred")
	assert.Equal(t, "192.168.1.10:8888", svc.Address())

	entry.Port = 0
	_, err = entry.ToService()
	assert.ErrorIs(t, err, ErrInvalidPort)

	entry.Port = 8888
	entry.Text = nil
	_, err = entry.ToService()
	assert.ErrorIs(t, err, ErrMissingRequired)
}

func TestDialHostFallbacks(t *testing.T) {
	svc := &Service{Host: "box.local.", Port: 1, Addresses: []string{"fe80::1"}}
	assert.Equal(t, "fe80::1", svc.DialHost())
	assert.Equal(t, "[fe80::1]:1", svc.Address())

	svc.Addresses = nil
	assert.Equal(t, "box.local.", svc.DialHost())
}

func TestServiceSetAggregation(t *testing.T) {
	set := newServiceSet()
	base := ServiceEntry{Instance: "a", Port: 8888, Text: []string{"tls=0"}}

	e1 := base
	e1.Addrs = []string{"10.0.0.1"}
	svc, isNew := set.add(e1)
	require.True(t, isNew)
	assert.Equal(t, []string{"10.0.0.1"}, svc.Addresses)

	e2 := base
	e2.Addrs = []string{"10.0.0.1", "fe80::2"}
	svc, isNew = set.add(e2)
	assert.False(t, isNew)
	assert.Equal(t, []string{"10.0.0.1", "fe80::2"}, svc.Addresses)

	set.remove(ServiceEntry{Instance: "a", Addrs: []string{"10.0.0.1"}})
	assert.Equal(t, []string{"fe80::2"}, set.byInstance["a"].Addresses)

	set.remove(ServiceEntry{Instance: "a", Addrs: []string{"fe80::2"}})
	assert.NotContains(t, set.byInstance, "a")

	_, isNew = set.add(e1)
	assert.True(t, isNew, "forgotten instance is new again")

	_, isNew = set.add(ServiceEntry{Instance: "bad", Port: 1, Text: []string{"tls=x"}})
	assert.False(t, isNew)
}

func TestFirstService(t *testing.T) {
	ch := make(chan *Service, 1)
	ch <- &Service{Instance: "x"}
	svc, err := firstService(context.Background(), ch)
	require.NoError(t, err)
	assert.Equal(t, "x", svc.Instance)

	close(ch)
	_, err = firstService(context.Background(), ch)
	assert.ErrorIs(t, err, ErrNotFound)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = firstService(ctx, make(chan *Service))
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestAdvertiserRejectsZeroPort(t *testing.T) {
	a := NewAdvertiser(DefaultAdvertiserConfig())
	assert.ErrorIs(t, a.Advertise(ServiceInfo{}), ErrInvalidPort)
	assert.False(t, a.Advertising())
	assert.ErrorIs(t, a.Update(ServiceInfo{TLS: true}), ErrNotAdvertising)
	a.Stop()
}

func TestDefaultInstanceName(t *testing.T) {
	assert.Contains(t, DefaultInstanceName(), "lineecho")
}
