package delivery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"watchpost/internal/clock"
	"watchpost/internal/config"
)

// Dialer opens the TCP connection used as a reachability probe.
type Dialer func(ctx context.Context, network, address string) (net.Conn, error)

// InterfaceCheck reports whether a named link is up with a routable address
// and returns that address.
type InterfaceCheck func(name string) (string, error)

// Probe decides reachability from the link state and a TCP dial to the
// backend, caching the answer for a short period.
type Probe struct {
	iface    string
	target   string
	timeout  time.Duration
	cacheFor time.Duration
	clock    clock.Clock
	dial     Dialer
	check    InterfaceCheck

	mu        sync.Mutex
	checked   time.Time
	valid     bool
	reachable bool
	address   string
	lastErr   error
}

// ProbeOptions configures a Probe.
type ProbeOptions struct {
	Interface string
	Target    string
	Timeout   time.Duration
	CacheFor  time.Duration
	Clock     clock.Clock
	Dial      Dialer
	Check     InterfaceCheck
}

// NewProbe builds a probe. An empty Target skips the dial step.
func NewProbe(opts ProbeOptions) *Probe {
	p := &Probe{
		iface:    strings.TrimSpace(opts.Interface),
		target:   opts.Target,
		timeout:  opts.Timeout,
		cacheFor: opts.CacheFor,
		clock:    opts.Clock,
		dial:     opts.Dial,
		check:    opts.Check,
	}
	if p.clock == nil {
		p.clock = clock.Real()
	}
	if p.timeout <= 0 {
		p.timeout = 3 * time.Second
	}
	if p.dial == nil {
		var d net.Dialer
		p.dial = d.DialContext
	}
	if p.check == nil {
		p.check = interfaceAddress
	}
	return p
}

// NewProbeFromConfig targets the backend host from base_url.
func NewProbeFromConfig(cfg *config.Config, clk clock.Clock) *Probe {
	target, _ := probeTarget(cfg.Backend.BaseURL)
	return NewProbe(ProbeOptions{
		Interface: cfg.Network.Interface,
		Target:    target,
		Timeout:   time.Duration(cfg.Network.ProbeTimeout) * time.Second,
		CacheFor:  time.Duration(cfg.Network.ProbeCache) * time.Second,
		Clock:     clk,
	})
}

// Reachable returns the cached answer when fresh, otherwise probes again.
func (p *Probe) Reachable(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	if p.valid && p.cacheFor > 0 && now.Sub(p.checked) < p.cacheFor {
		return p.reachable
	}
	address, err := p.probeLocked(ctx)
	p.checked = now
	p.valid = true
	p.reachable = err == nil
	p.lastErr = err
	if err == nil && address != "" {
		p.address = address
	}
	return p.reachable
}

// Invalidate forces the next Reachable call to probe.
func (p *Probe) Invalidate() {
	p.mu.Lock()
	p.valid = false
	p.mu.Unlock()
}

// Address is the local address seen on the last successful probe.
func (p *Probe) Address() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.address
}

// LastError is the reason the last probe failed, or nil.
func (p *Probe) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

func (p *Probe) probeLocked(ctx context.Context) (string, error) {
	var address string
	if p.iface != "" {
		addr, err := p.check(p.iface)
		if err != nil {
			return "", err
		}
		address = addr
	}
	if p.target == "" {
		if p.iface == "" {
			return "", errors.New("no interface or backend target to probe")
		}
		return address, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	conn, err := p.dial(dialCtx, "tcp", p.target)
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", p.target, err)
	}
	if tcp, ok := conn.LocalAddr().(*net.TCPAddr); ok && tcp.IP != nil {
		address = tcp.IP.String()
	}
	_ = conn.Close()
	return address, nil
}

func probeTarget(baseURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		return "", errors.New("base url has no host")
	}
	port := parsed.Port()
	if port == "" {
		port = "80"
		if parsed.Scheme == "https" {
			port = "443"
		}
	}
	return net.JoinHostPort(host, port), nil
}

func interfaceAddress(name string) (string, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return "", fmt.Errorf("lookup interface %s: %w", name, err)
	}
	if iface.Flags&net.FlagUp == 0 {
		return "", fmt.Errorf("interface %s is down", name)
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return "", fmt.Errorf("list addresses on %s: %w", name, err)
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() || ipNet.IP.IsLinkLocalUnicast() {
			continue
		}
		return ipNet.IP.String(), nil
	}
	return "", fmt.Errorf("interface %s has no routable address", name)
}
