package network

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/catalog/internal/domain"
)

const (
	defaultProbeTimeout = 5 * time.Second
	defaultPollInterval = 15 * time.Second
)

// Interface is the part of a network interface the probe classifies.
type Interface struct {
	Name     string
	Up       bool
	Loopback bool
	HasAddr  bool
}

// ProbeConfig configures a Probe.
type ProbeConfig struct {
	// URL is sent a HEAD request to test internet reachability. Any HTTP
	// response counts as reachable. Empty means "connected implies reachable".
	URL      string
	Timeout  time.Duration
	Interval time.Duration

	// Interfaces lists host interfaces; defaults to net.Interfaces.
	Interfaces func() ([]Interface, error)
	Transport  http.RoundTripper
}

// Probe implements Source on a host by inspecting interfaces and probing a URL.
type Probe struct {
	url        string
	interval   time.Duration
	client     *http.Client
	interfaces func() ([]Interface, error)
	logger     *slog.Logger

	mu     sync.Mutex
	subs   map[int]func(domain.NetworkStatus)
	nextID int
	last   *domain.NetworkStatus
}

// NewProbe creates a probe. Call Run to start change detection.
func NewProbe(cfg ProbeConfig, logger *slog.Logger) *Probe {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultProbeTimeout
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultPollInterval
	}
	if cfg.Interfaces == nil {
		cfg.Interfaces = hostInterfaces
	}
	return &Probe{
		url:        cfg.URL,
		interval:   cfg.Interval,
		client:     &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport},
		interfaces: cfg.Interfaces,
		logger:     logger,
		subs:       make(map[int]func(domain.NetworkStatus)),
	}
}

// Current classifies interfaces and, when connected, probes reachability.
func (p *Probe) Current(ctx context.Context) (domain.NetworkStatus, error) {
	ifaces, err := p.interfaces()
	if err != nil {
		return domain.NetworkStatus{Type: domain.ConnectionUnknown}, err
	}

	connType := Classify(ifaces)
	if connType == domain.ConnectionNone {
		return domain.NetworkStatus{Type: connType}, nil
	}

	return domain.NetworkStatus{
		Connected:         true,
		InternetReachable: p.reachable(ctx),
		Type:              connType,
	}, nil
}

func (p *Probe) reachable(ctx context.Context) bool {
	if p.url == "" {
		return true
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		p.logger.Warn("invalid probe url", "url", p.url, "error", err)
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("reachability probe failed", "error", err)
		return false
	}
	resp.Body.Close()
	return true
}

// Subscribe registers fn for changes detected by Run.
func (p *Probe) Subscribe(fn func(domain.NetworkStatus)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
		})
	}
}

// Run polls until ctx is done, publishing only transitions.
func (p *Probe) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.Poll(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll takes one reading and publishes it if it differs from the last one.
func (p *Probe) Poll(ctx context.Context) {
	status, err := p.Current(ctx)
	if err != nil {
		p.logger.Warn("network poll failed", "error", err)
		return
	}

	p.mu.Lock()
	if p.last != nil && *p.last == status {
		p.mu.Unlock()
		return
	}
	p.last = &status
	subs := make([]func(domain.NetworkStatus), 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	p.mu.Unlock()

	for _, fn := range subs {
		fn(status)
	}
}

// Classify picks the best active link: wifi, then ethernet, then cellular,
// then anything else as unknown.
func Classify(ifaces []Interface) domain.ConnectionType {
	best := domain.ConnectionNone
	rank := map[domain.ConnectionType]int{
		domain.ConnectionNone:     0,
		domain.ConnectionUnknown:  1,
		domain.ConnectionCellular: 2,
		domain.ConnectionEthernet: 3,
		domain.ConnectionWifi:     4,
	}
	for _, iface := range ifaces {
		if !iface.Up || iface.Loopback || !iface.HasAddr {
			continue
		}
		if t := interfaceType(iface.Name); rank[t] > rank[best] {
			best = t
		}
	}
	return best
}

func interfaceType(name string) domain.ConnectionType {
	n := strings.ToLower(name)
	switch {
	case strings.HasPrefix(n, "wl"), strings.HasPrefix(n, "wifi"), strings.HasPrefix(n, "ath"):
		return domain.ConnectionWifi
	case strings.HasPrefix(n, "wwan"), strings.HasPrefix(n, "rmnet"), strings.HasPrefix(n, "ccmni"),
		strings.HasPrefix(n, "pdp_ip"), strings.HasPrefix(n, "ppp"):
		return domain.ConnectionCellular
	case strings.HasPrefix(n, "eth"), strings.HasPrefix(n, "en"):
		return domain.ConnectionEthernet
	default:
		return domain.ConnectionUnknown
	}
}

func hostInterfaces() ([]Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	out := make([]Interface, 0, len(ifaces))
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		out = append(out, Interface{
			Name:     iface.Name,
			Up:       iface.Flags&net.FlagUp != 0,
			Loopback: iface.Flags&net.FlagLoopback != 0,
			HasAddr:  err == nil && len(addrs) > 0,
		})
	}
	return out, nil
}
