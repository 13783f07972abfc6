package netio

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// dnsTypes maps the record types the resolve op accepts.
var dnsTypes = map[string]uint16{
	"A":     dns.TypeA,
	"AAAA":  dns.TypeAAAA,
	"CNAME": dns.TypeCNAME,
	"MX":    dns.TypeMX,
	"NS":    dns.TypeNS,
	"PTR":   dns.TypePTR,
	"SRV":   dns.TypeSRV,
	"TXT":   dns.TypeTXT,
}

// resolvConf is overridable for tests.
var resolvConf = "/etc/resolv.conf"

// Resolve queries the system's configured nameservers for records of the
// given type and returns their presentation strings.
func Resolve(name, recordType string) ([]string, error) {
	qtype, ok := dnsTypes[strings.ToUpper(recordType)]
	if !ok {
		return nil, fmt.Errorf("unsupported DNS record type %q", recordType)
	}

	conf, err := dns.ClientConfigFromFile(resolvConf)
	if err != nil {
		return nil, fmt.Errorf("reading resolver configuration: %w", err)
	}
	if len(conf.Servers) == 0 {
		return nil, fmt.Errorf("no nameservers configured in %s", resolvConf)
	}

	client := &dns.Client{Timeout: 5 * time.Second}
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), qtype)
	msg.RecursionDesired = true

	var lastErr error
	for _, server := range conf.Servers {
		reply, _, err := client.Exchange(msg, net.JoinHostPort(server, conf.Port))
		if err != nil {
			lastErr = err
			continue
		}
		if reply.Rcode != dns.RcodeSuccess {
			lastErr = fmt.Errorf("dns query for %s %s failed: %s", name, recordType, dns.RcodeToString[reply.Rcode])
			continue
		}
		return formatAnswers(reply, qtype), nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no nameservers answered")
	}
	return nil, lastErr
}

func formatAnswers(reply *dns.Msg, qtype uint16) []string {
	out := []string{}
	for _, rr := range reply.Answer {
		if rr.Header().Rrtype != qtype {
			continue
		}
		switch rec := rr.(type) {
		case *dns.A:
			out = append(out, rec.A.String())
		case *dns.AAAA:
			out = append(out, rec.AAAA.String())
		case *dns.CNAME:
			out = append(out, rec.Target)
		case *dns.MX:
			out = append(out, fmt.Sprintf("%d %s", rec.Preference, rec.Mx))
		case *dns.NS:
			out = append(out, rec.Ns)
		case *dns.PTR:
			out = append(out, rec.Ptr)
		case *dns.SRV:
			out = append(out, fmt.Sprintf("%d %d %d %s", rec.Priority, rec.Weight, rec.Port, rec.Target))
		case *dns.TXT:
			out = append(out, strings.Join(rec.Txt, ""))
		}
	}
	return out
}
