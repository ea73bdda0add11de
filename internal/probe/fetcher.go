package probe

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"
)

const defaultProbeUserAgent = "beacon-probe/1.0"

// fetchViaSOCKS5 issues an HTTPS GET through the local SOCKS5 endpoint the
// probe proxy exposes on 127.0.0.1:port, returning the wall-clock duration
// of the whole round trip. Grounded on internal/netutil/outbound_http.go's
// HTTPGetViaOutbound, adapted to dial a local SOCKS5 socket (via the
// already-vendored golang.org/x/net's proxy subpackage) instead of an
// in-process sing-box outbound — the probe proxy is an external black-box
// subprocess here, not a Go-constructed outbound.
func fetchViaSOCKS5(ctx context.Context, port int, url string, timeout time.Duration) (time.Duration, error) {
	dialer, err := proxy.SOCKS5("tcp", fmt.Sprintf("127.0.0.1:%d", port), nil, proxy.Direct)
	if err != nil {
		return 0, fmt.Errorf("probe: build socks5 dialer: %w", err)
	}
	ctxDialer, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return 0, fmt.Errorf("probe: socks5 dialer does not support contexts")
	}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return ctxDialer.DialContext(ctx, network, addr)
		},
		DisableKeepAlives: true,
	}
	client := &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", defaultProbeUserAgent)

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	// A probe counts as success once the transport completed and returned
	// any response (spec §4.3 step 4) — status code is not checked.
	_, _ = io.Copy(io.Discard, resp.Body)
	return time.Since(start), nil
}
