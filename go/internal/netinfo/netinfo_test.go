package netinfo

import (
	"net"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addrs(cidrs ...string) func() ([]net.Addr, error) {
	return func() ([]net.Addr, error) {
		var out []net.Addr
		for _, c := range cidrs {
			ip, ipNet, err := net.ParseCIDR(c)
			if err != nil {
				return nil, err
			}
			ipNet.IP = ip
			out = append(out, ipNet)
		}
		return out, nil
	}
}

func TestLocateSkipsLoopbackAndLinkLocal(t *testing.T) {
	l := NewLocator("", "", 45045)
	l.interfaceAddrs = addrs("127.0.0.1/8", "169.254.10.2/16", "fe80::1/64", "192.168.1.20/24")

	ep, err := l.Locate()
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.20", ep.Host)
	assert.Equal(t, "192.168.1.20", ep.LocalIP)
	assert.Equal(t, "http://192.168.1.20:45045", ep.ServerURL())
	assert.Equal(t, "ws://192.168.1.20:45045/ws", ep.WSURL())
}

func TestLocatePrefersMDNSName(t *testing.T) {
	l := NewLocator("", "aeroduel.local", 45045)
	l.interfaceAddrs = addrs("10.0.0.5/24")

	ep, err := l.Locate()
	require.NoError(t, err)
	assert.Equal(t, "aeroduel.local", ep.Host)
	assert.Equal(t, "10.0.0.5", ep.LocalIP)
}

func TestLocateWithoutNetwork(t *testing.T) {
	l := NewLocator("", "aeroduel.local", 45045)
	l.interfaceAddrs = addrs("127.0.0.1/8")

	_, err := l.Locate()
	assert.ErrorIs(t, err, ErrNoLocalAddress)
}

func TestLocatePublicHost(t *testing.T) {
	l := NewLocator("arena.example", "aeroduel.local", 8080)
	l.interfaceAddrs = addrs()

	ep, err := l.Locate()
	require.NoError(t, err)
	assert.Equal(t, "arena.example", ep.Host)
}

func TestJoinLink(t *testing.T) {
	ep := Endpoint{Host: "aeroduel.local", Port: 45045}
	link := ep.JoinLink("123456")
	assert.Equal(t, "aeroduel://join?host=aeroduel.local&port=45045&pin=123456", link)

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, JoinScheme, u.Scheme)
	assert.Equal(t, "123456", u.Query().Get("pin"))
}
