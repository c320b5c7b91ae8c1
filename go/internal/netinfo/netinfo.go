package netinfo

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// ErrNoLocalAddress is returned when no usable LAN IPv4 address exists.
var ErrNoLocalAddress = errors.New("could not detect local IP address, ensure you're connected to WiFi")

// JoinScheme is the deep link scheme the mobile app registers.
const JoinScheme = "aeroduel"

// Endpoint is how clients on the local network reach this process.
type Endpoint struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	LocalIP string `json:"localIp"`
}

// ServerURL is the base URL of the HTTP API.
func (e Endpoint) ServerURL() string {
	return "http://" + net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// WSURL is the URL of the realtime channel.
func (e Endpoint) WSURL() string {
	return "ws://" + net.JoinHostPort(e.Host, strconv.Itoa(e.Port)) + "/ws"
}

// JoinLink encodes host, port and PIN into the payload shown as a QR code.
func (e Endpoint) JoinLink(pin string) string {
	return fmt.Sprintf("%s://join?host=%s&port=%d&pin=%s",
		JoinScheme, url.QueryEscape(e.Host), e.Port, url.QueryEscape(pin))
}

// Locator works out the externally reachable endpoint of this process.
type Locator struct {
	// PublicHost, when set, is used verbatim and skips address detection.
	PublicHost string
	// MDNSName is the advertised multicast DNS name, preferred over the raw IP.
	MDNSName string
	Port     int

	// interfaceAddrs is swapped in tests.
	interfaceAddrs func() ([]net.Addr, error)
}

// NewLocator creates a locator for the given port.
func NewLocator(publicHost, mdnsName string, port int) *Locator {
	return &Locator{
		PublicHost:     publicHost,
		MDNSName:       mdnsName,
		Port:           port,
		interfaceAddrs: net.InterfaceAddrs,
	}
}

// Locate returns the endpoint to hand to clients.
func (l *Locator) Locate() (Endpoint, error) {
	if l.PublicHost != "" {
		return Endpoint{Host: l.PublicHost, Port: l.Port, LocalIP: l.PublicHost}, nil
	}

	ip, err := l.localIPv4()
	if err != nil {
		return Endpoint{}, err
	}
	host := ip
	if l.MDNSName != "" {
		host = l.MDNSName
	}
	return Endpoint{Host: host, Port: l.Port, LocalIP: ip}, nil
}

// localIPv4 returns the first non-loopback, non link-local IPv4 address.
func (l *Locator) localIPv4() (string, error) {
	addrs, err := l.interfaceAddrs()
	if err != nil {
		return "", fmt.Errorf("failed to list interface addresses: %w", err)
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipNet.IP.To4()
		if ip == nil || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
			continue
		}
		return ip.String(), nil
	}
	return "", ErrNoLocalAddress
}
