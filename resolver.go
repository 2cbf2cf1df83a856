package main

import (
	"log"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// Resolver performs reverse DNS lookups for connecting clients.
type Resolver struct {
	servers []string
	timeout time.Duration
}

func newResolver(timeout time.Duration) *Resolver {
	r := &Resolver{timeout: timeout}

	conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil {
		log.Printf("Unable to read resolver configuration: %s", err)
		return r
	}

	for _, server := range conf.Servers {
		r.servers = append(r.servers, net.JoinHostPort(server, conf.Port))
	}

	return r
}

// lookupHostname finds the PTR name for an address. Blank if we can't get
// one we're willing to use.
func (r *Resolver) lookupHostname(ip net.IP) string {
	if len(r.servers) == 0 {
		return ""
	}

	arpa, err := dns.ReverseAddr(ip.String())
	if err != nil {
		return ""
	}

	m := &dns.Msg{}
	m.SetQuestion(arpa, dns.TypePTR)

	client := &dns.Client{Timeout: r.timeout}

	for _, server := range r.servers {
		in, _, err := client.Exchange(m, server)
		if err != nil {
			log.Printf("PTR lookup failed against %s: %s", server, err)
			continue
		}

		for _, answer := range in.Answer {
			ptr, ok := answer.(*dns.PTR)
			if !ok {
				continue
			}

			hostname := strings.TrimSuffix(ptr.Ptr, ".")
			if !isValidHostname(hostname) {
				continue
			}

			return hostname
		}
	}

	return ""
}
