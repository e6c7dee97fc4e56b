package gitnative

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	gitclient "github.com/go-git/go-git/v5/plumbing/transport/client"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/rs/dnscache"
)

var transportOnce sync.Once

// installTransport replaces go-git's default HTTP transport with one whose
// dialer resolves through a refreshing DNS cache, so repeated fetches and
// pushes against the same remote skip redundant lookups.
func installTransport() {
	transportOnce.Do(func() {
		resolver := &dnscache.Resolver{}
		go func() {
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for range ticker.C {
				resolver.Refresh(true)
			}
		}()

		dialer := &net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}

		client := &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
					host, port, err := net.SplitHostPort(addr)
					if err != nil {
						return nil, err
					}
					ips, err := resolver.LookupHost(ctx, host)
					if err != nil {
						return nil, err
					}
					var dialErr error
					for _, ip := range ips {
						conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
						if err == nil {
							return conn, nil
						}
						dialErr = err
					}
					if dialErr != nil {
						return nil, fmt.Errorf("dial %s: %w", host, dialErr)
					}
					return nil, fmt.Errorf("dial %s: no addresses resolved", host)
				},
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		}

		gitclient.InstallProtocol("https", githttp.NewClient(client))
		gitclient.InstallProtocol("http", githttp.NewClient(client))
	})
}
