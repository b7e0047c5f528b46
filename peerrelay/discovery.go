package peerrelay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/miekg/dns"
)

// maxDirectorySize bounds a trusted-relayer directory response.
const maxDirectorySize = 1024 * 1024

// Relayer is one entry of a trusted-relayer directory.
type Relayer struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Maddr           string `json:"maddr"`
	RendezvousPoint string `json:"rendezvousPoint,omitempty"`
}

// FetchTrustedRelayers downloads a JSON relayer directory. Discovery is
// optional: callers treat an error as "no candidates" and fall back to
// locally configured relay peers.
func FetchTrustedRelayers(ctx context.Context, client *http.Client, url string, log *slog.Logger) ([]Relayer, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building relayer directory request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching relayer directory: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("relayer directory returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDirectorySize))
	if err != nil {
		return nil, fmt.Errorf("reading relayer directory: %w", err)
	}

	var relayers []Relayer
	if err := json.Unmarshal(body, &relayers); err != nil {
		return nil, fmt.Errorf("parsing relayer directory: %w", err)
	}

	for _, relayer := range relayers {
		log.Debug("Discovered trusted relayer", "id", relayer.ID, "name", relayer.Name, "maddr", relayer.Maddr)
	}
	return relayers, nil
}

// LookupDNSAddrs resolves relayer multiaddrs from TXT records at
// _dnsaddr.<domain>, following the libp2p dnsaddr convention. resolverAddr is
// the DNS server to query, host:port.
func LookupDNSAddrs(ctx context.Context, resolverAddr, domain string, log *slog.Logger) ([]string, error) {
	m := new(dns.Msg)
	m.Id = dns.Id()
	m.RecursionDesired = true
	m.Question = []dns.Question{{
		Name:   dns.Fqdn("_dnsaddr." + domain),
		Qtype:  dns.TypeTXT,
		Qclass: dns.ClassINET,
	}}

	c := new(dns.Client)
	resp, _, err := c.ExchangeContext(ctx, m, resolverAddr)
	if err != nil {
		return nil, fmt.Errorf("dnsaddr lookup for %s: %w", domain, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("dnsaddr lookup for %s: rcode %d", domain, resp.Rcode)
	}

	var maddrs []string
	for _, answer := range resp.Answer {
		txt, ok := answer.(*dns.TXT)
		if !ok {
			continue
		}
		for _, record := range txt.Txt {
			maddr, ok := parseDNSAddr(record)
			if !ok {
				continue
			}
			log.Debug("Discovered relayer dnsaddr", "domain", domain, "maddr", maddr)
			maddrs = append(maddrs, maddr)
		}
	}
	return maddrs, nil
}

// parseDNSAddr extracts the multiaddr from one "dnsaddr=/..." TXT value.
func parseDNSAddr(record string) (string, bool) {
	maddr, found := strings.CutPrefix(record, "dnsaddr=")
	if !found || !strings.HasPrefix(maddr, "/") {
		return "", false
	}
	return maddr, true
}
