// Package discovery finds remote chunk servers and data map publisher keys
// through DNS.
//
// A domain advertises chunk servers with SRV records at _selfenc._tcp.{domain}
// and the key that signs its data maps with a TXT record at _selfenc.{domain}
// of the form "selfenc-key=<66 hex chars>".
package discovery

import (
	"encoding/hex"
	"fmt"
	"net"
	"sort"
	"strings"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"

	"github.com/bitfsorg/selfenc-go/config"
)

// DNSResolver defines the interface for DNS lookups.
// This allows tests to mock DNS resolution.
type DNSResolver interface {
	// LookupSRV looks up SRV records for the given service, proto, and name.
	LookupSRV(service, proto, name string) (string, []*net.SRV, error)

	// LookupTXT looks up TXT records for the given name.
	LookupTXT(name string) ([]string, error)
}

// defaultDNSResolver wraps the standard net package DNS functions.
type defaultDNSResolver struct{}

func (d *defaultDNSResolver) LookupSRV(service, proto, name string) (string, []*net.SRV, error) {
	return net.LookupSRV(service, proto, name)
}

func (d *defaultDNSResolver) LookupTXT(name string) ([]string, error) {
	return net.LookupTXT(name)
}

// DefaultDNSResolver is the production DNS resolver using the net package.
var DefaultDNSResolver DNSResolver = &defaultDNSResolver{}

const (
	// SRVService is the SRV service label: _selfenc._tcp.{domain}.
	SRVService = "selfenc"

	// PublisherKeyPrefix marks the publisher key TXT record.
	PublisherKeyPrefix = "selfenc-key="
)

// ResolveEndpoints returns the chunk servers advertised by domain as
// host:port strings, sorted by priority then weight.
func ResolveEndpoints(domain string) ([]string, error) {
	return ResolveEndpointsWithResolver(domain, DefaultDNSResolver)
}

// ResolveEndpointsWithResolver resolves SRV records using the provided DNS resolver.
func ResolveEndpointsWithResolver(domain string, resolver DNSResolver) ([]string, error) {
	if domain == "" {
		return nil, fmt.Errorf("%w: empty domain", ErrDNSLookupFailed)
	}

	_, addrs, err := resolver.LookupSRV(SRVService, "tcp", domain)
	if err != nil {
		return nil, fmt.Errorf("%w: SRV lookup for _%s._tcp.%s: %w", ErrDNSLookupFailed, SRVService, domain, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: no SRV records for _%s._tcp.%s", ErrNoEndpoints, SRVService, domain)
	}

	// Priority ascending, then weight descending.
	sort.SliceStable(addrs, func(i, j int) bool {
		if addrs[i].Priority != addrs[j].Priority {
			return addrs[i].Priority < addrs[j].Priority
		}
		return addrs[i].Weight > addrs[j].Weight
	})

	endpoints := make([]string, len(addrs))
	for i, srv := range addrs {
		host := strings.TrimSuffix(srv.Target, ".")
		endpoints[i] = net.JoinHostPort(host, fmt.Sprint(srv.Port))
	}
	return endpoints, nil
}

// ResolvePublisherKey returns the data map signing key published by domain.
func ResolvePublisherKey(domain string) (*ec.PublicKey, error) {
	return ResolvePublisherKeyWithResolver(domain, DefaultDNSResolver)
}

// ResolvePublisherKeyWithResolver looks up _selfenc.{domain} TXT records and
// parses the first one carrying the selfenc-key= prefix.
func ResolvePublisherKeyWithResolver(domain string, resolver DNSResolver) (*ec.PublicKey, error) {
	if domain == "" {
		return nil, fmt.Errorf("%w: empty domain", ErrDNSLookupFailed)
	}

	name := "_" + SRVService + "." + domain
	txts, err := resolver.LookupTXT(name)
	if err != nil {
		return nil, fmt.Errorf("%w: TXT lookup for %s: %w", ErrDNSLookupFailed, name, err)
	}

	var keyHex string
	for _, txt := range txts {
		txt = strings.TrimSpace(txt)
		if strings.HasPrefix(txt, PublisherKeyPrefix) {
			keyHex = strings.TrimSpace(strings.TrimPrefix(txt, PublisherKeyPrefix))
			break
		}
	}
	if keyHex == "" {
		return nil, fmt.Errorf("%w: no %s TXT record for %s", ErrDNSLookupFailed, PublisherKeyPrefix, name)
	}
	if len(keyHex) != 66 {
		return nil, fmt.Errorf("%w: expected 66 hex chars, got %d", ErrInvalidPubKey, len(keyHex))
	}

	raw, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid hex in TXT record: %w", ErrInvalidPubKey, err)
	}
	if raw[0] != 0x02 && raw[0] != 0x03 {
		return nil, fmt.Errorf("%w: invalid prefix byte 0x%02x", ErrInvalidPubKey, raw[0])
	}
	pub, err := ec.PublicKeyFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPubKey, err)
	}
	return pub, nil
}

// ResolverFor returns the resolver selected by cfg: DNSSEC-validating
// through cfg.DNSServer when cfg.DNSSEC is set, the system resolver otherwise.
func ResolverFor(cfg config.Config) DNSResolver {
	if cfg.DNSSEC {
		return NewDNSSECResolver(cfg.DNSServer)
	}
	return DefaultDNSResolver
}

// Endpoints returns cfg.Endpoints followed by the servers discovered under
// cfg.Discover, without duplicates. Discovery is skipped when Discover is empty.
func Endpoints(cfg config.Config, resolver DNSResolver) ([]string, error) {
	out := append([]string(nil), cfg.Endpoints...)
	if cfg.Discover == "" {
		return out, nil
	}

	found, err := ResolveEndpointsWithResolver(cfg.Discover, resolver)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(out))
	for _, ep := range out {
		seen[ep] = true
	}
	for _, ep := range found {
		if !seen[ep] {
			seen[ep] = true
			out = append(out, ep)
		}
	}
	return out, nil
}
