// Package netresolve performs the asynchronous DNS lookups the SNTP client
// needs before it can open a socket to its configured server, mirroring
// the non-blocking dns_gethostbyname callback the original firmware uses
// so a slow or hung resolver never stalls the discipline loop.
package netresolve

import (
	"context"
	"fmt"
	"net"
)

// Result is the outcome of one lookup.
type Result struct {
	Host string
	Addr net.IP
	Err  error
}

// Resolve looks up host in a background goroutine and delivers exactly one
// Result on the returned channel. The caller may abandon the lookup by
// cancelling ctx; the channel still receives a Result (with Err set) so
// callers can always range over it without leaking a goroutine.
func Resolve(ctx context.Context, resolver *net.Resolver, host string) <-chan Result {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		addrs, err := resolver.LookupIPAddr(ctx, host)
		if err != nil {
			ch <- Result{Host: host, Err: err}
			return
		}
		if len(addrs) == 0 {
			ch <- Result{Host: host, Err: fmt.Errorf("netresolve: no addresses for %s", host)}
			return
		}
		ch <- Result{Host: host, Addr: addrs[0].IP}
	}()
	return ch
}
