package client

import (
	"context"
	"fmt"
	"os"

	"github.com/grandcat/zeroconf"
)

// ServiceName is the mDNS service type a collabnotes server announces.
const ServiceName = "_collabnotes._tcp"

// AnnounceServer registers the server on the local network so agents can
// find it without configuration. The returned function unregisters it.
func AnnounceServer(instance string, port int) (func(), error) {
	if instance == "" {
		host, _ := os.Hostname()
		instance = fmt.Sprintf("collabnotes-%s", host)
	}
	srv, err := zeroconf.Register(instance, ServiceName, "local.", port, []string{"txtv=0"}, nil)
	if err != nil {
		return nil, fmt.Errorf("registering mDNS service: %w", err)
	}
	return srv.Shutdown, nil
}

// DiscoverServer browses the local network and returns the host:port of the
// first collabnotes server it finds, or an error when ctx expires first.
func DiscoverServer(ctx context.Context) (string, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return "", fmt.Errorf("creating mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	found := make(chan string, 1)
	go func() {
		for entry := range entries {
			if len(entry.AddrIPv4) == 0 {
				continue
			}
			select {
			case found <- fmt.Sprintf("%s:%d", entry.AddrIPv4[0], entry.Port):
			default:
			}
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := resolver.Browse(ctx, ServiceName, "local.", entries); err != nil {
		return "", fmt.Errorf("browsing for %s: %w", ServiceName, err)
	}

	select {
	case addr := <-found:
		return addr, nil
	case <-ctx.Done():
		return "", fmt.Errorf("no collabnotes server found: %w", ctx.Err())
	}
}
