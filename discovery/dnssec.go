package discovery

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

const (
	defaultUpstream = "8.8.8.8:53"
	dnssecTimeout   = 10 * time.Second
	edns0BufSize    = 4096
)

// DNSSECResolver is a DNSResolver that trusts only answers its upstream
// recursive resolver marked as validated (the AD flag). Answers truncated
// over UDP are retried over TCP.
type DNSSECResolver struct {
	Upstream string        // host:port of a validating recursive resolver
	Timeout  time.Duration // per exchange; zero means 10s
}

// NewDNSSECResolver returns a resolver querying upstream, or 8.8.8.8:53 when
// upstream is empty.
func NewDNSSECResolver(upstream string) *DNSSECResolver {
	if upstream == "" {
		upstream = defaultUpstream
	}
	return &DNSSECResolver{Upstream: upstream, Timeout: dnssecTimeout}
}

func (r *DNSSECResolver) exchange(msg *dns.Msg, network string) (*dns.Msg, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = dnssecTimeout
	}
	client := &dns.Client{Net: network, Timeout: timeout}
	resp, _, err := client.Exchange(msg, r.Upstream)
	return resp, err
}

// validated sends one query with the DO bit set and returns the answer
// section of an authenticated reply. NXDOMAIN counts as an empty answer.
func (r *DNSSECResolver) validated(name string, qtype uint16) ([]dns.RR, error) {
	kind := dns.TypeToString[qtype]
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), qtype)
	msg.SetEdns0(edns0BufSize, true)

	resp, err := r.exchange(msg, "udp")
	if err == nil && resp.Truncated {
		resp, err = r.exchange(msg, "tcp")
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrDNSLookupFailed, kind, name, err)
	}

	switch resp.Rcode {
	case dns.RcodeSuccess, dns.RcodeNameError:
	default:
		return nil, fmt.Errorf("%w: %s %s: rcode %s",
			ErrDNSLookupFailed, kind, name, dns.RcodeToString[resp.Rcode])
	}
	if !resp.AuthenticatedData {
		return nil, fmt.Errorf("%w: %s %s: reply not authenticated",
			ErrDNSSECValidationFailed, kind, name)
	}
	return resp.Answer, nil
}

// records keeps the answers of type T, skipping CNAMEs and signatures.
func records[T dns.RR](answer []dns.RR) []T {
	var out []T
	for _, rr := range answer {
		if v, ok := rr.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

// LookupSRV resolves _service._proto.name. The cname result is always empty.
func (r *DNSSECResolver) LookupSRV(service, proto, name string) (string, []*net.SRV, error) {
	qname := "_" + service + "._" + proto + "." + name
	answer, err := r.validated(qname, dns.TypeSRV)
	if err != nil {
		return "", nil, err
	}

	srvs := records[*dns.SRV](answer)
	if len(srvs) == 0 {
		return "", nil, fmt.Errorf("%w: no SRV records for %s", ErrDNSLookupFailed, qname)
	}
	out := make([]*net.SRV, len(srvs))
	for i, srv := range srvs {
		out[i] = &net.SRV{
			Target:   strings.TrimSuffix(srv.Target, "."),
			Port:     srv.Port,
			Priority: srv.Priority,
			Weight:   srv.Weight,
		}
	}
	return "", out, nil
}

// LookupTXT resolves the TXT records of name, joining the 255-byte strings
// of each record.
func (r *DNSSECResolver) LookupTXT(name string) ([]string, error) {
	answer, err := r.validated(name, dns.TypeTXT)
	if err != nil {
		return nil, err
	}

	txts := records[*dns.TXT](answer)
	if len(txts) == 0 {
		return nil, fmt.Errorf("%w: no TXT records for %s", ErrDNSLookupFailed, name)
	}
	out := make([]string, len(txts))
	for i, txt := range txts {
		out[i] = strings.Join(txt.Txt, "")
	}
	return out, nil
}
