// Package provider maps an email address to the IMAP endpoint and trash
// folder of its hosting provider.
package provider

import (
	"net"
	"strconv"
	"strings"
)

// Provider describes one IMAP endpoint.
type Provider struct {
	Host  string
	Port  int
	Trash string
}

// Addr returns the dialable host:port for the provider.
func (p Provider) Addr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

type rule struct {
	suffixes []string
	provider Provider
}

// Rules are consulted in order; the first matching suffix wins. Unrecognized
// domains fall through to defaultProvider, which is the common case.
var rules = []rule{
	{
		suffixes: []string{"outlook.com", "hotmail.com", "live.com"},
		provider: Provider{Host: "imap-mail.outlook.com", Port: 993, Trash: "Deleted"},
	},
	{
		suffixes: []string{"yahoo.com"},
		provider: Provider{Host: "imap.mail.yahoo.com", Port: 993, Trash: "Trash"},
	},
	{
		suffixes: []string{"icloud.com", "me.com", "mac.com"},
		provider: Provider{Host: "imap.mail.me.com", Port: 993, Trash: "Deleted Messages"},
	},
}

var defaultProvider = Provider{Host: "imap.gmail.com", Port: 993, Trash: "[Gmail]/Trash"}

// Resolve returns the provider for the given email address. The domain is the
// lowercased portion after the last "@"; a rule matches when the domain equals
// one of its suffixes or ends with "." followed by the suffix. Addresses with
// no "@" or an unknown domain resolve to the default provider.
func Resolve(email string) Provider {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return defaultProvider
	}
	domain := strings.ToLower(strings.TrimSpace(email[at+1:]))

	for _, r := range rules {
		for _, suffix := range r.suffixes {
			if domain == suffix || strings.HasSuffix(domain, "."+suffix) {
				return r.provider
			}
		}
	}
	return defaultProvider
}
