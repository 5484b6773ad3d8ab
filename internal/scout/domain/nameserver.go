package domain

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"strconv"
	"strings"
)

// DefaultDNSPort is used when a nameserver spec omits the port.
const DefaultDNSPort = 53

// Nameserver is a pinned recursive DNS server.
type Nameserver struct {
	IP   netip.Addr
	Port uint16
}

// Addr returns the dialable "host:port" form, bracketing IPv6 literals.
func (n Nameserver) Addr() string {
	return net.JoinHostPort(n.IP.String(), strconv.Itoa(int(n.Port)))
}

// IsIPv6 reports whether queries to this server need an IPv6 socket.
func (n Nameserver) IsIPv6() bool {
	return n.IP.Is6() && !n.IP.Is4In6()
}

func (n Nameserver) String() string {
	return n.Addr()
}

// ParseNameserver parses a resolver spec into a Nameserver.
//
// Accepted forms:
//   - "1.1.1.1"
//   - "1.1.1.1:5353"
//   - "2606:4700:4700::1111" (no port)
//   - "[2606:4700:4700::1111]"
//   - "[2606:4700:4700::1111]:5353"
func ParseNameserver(spec string) (Nameserver, error) {
	raw := strings.TrimSpace(spec)
	if raw == "" {
		return Nameserver{}, fmt.Errorf("resolver must be non-empty")
	}

	host := raw
	port := DefaultDNSPort

	if strings.HasPrefix(raw, "[") {
		end := strings.IndexByte(raw, ']')
		if end == -1 {
			return Nameserver{}, fmt.Errorf("invalid resolver: missing ']'")
		}
		host = strings.TrimSpace(raw[1:end])
		rest := strings.TrimSpace(raw[end+1:])
		if rest != "" {
			if !strings.HasPrefix(rest, ":") {
				return Nameserver{}, fmt.Errorf("invalid resolver: unexpected trailing content after ']'")
			}
			p, err := strconv.Atoi(rest[1:])
			if err != nil {
				return Nameserver{}, fmt.Errorf("invalid resolver port")
			}
			port = p
		}
	} else if strings.Count(raw, ":") == 1 && strings.Contains(raw, ".") {
		// IPv4 "a.b.c.d:port"; anything else is treated as a bare IP literal.
		hostPart, portPart, _ := strings.Cut(raw, ":")
		host = strings.TrimSpace(hostPart)
		p, err := strconv.Atoi(strings.TrimSpace(portPart))
		if err != nil {
			return Nameserver{}, fmt.Errorf("invalid resolver port")
		}
		port = p
	}

	ip, err := netip.ParseAddr(host)
	if err != nil {
		return Nameserver{}, fmt.Errorf("invalid resolver IP address")
	}
	if port < 1 || port > 65535 {
		return Nameserver{}, fmt.Errorf("invalid resolver port")
	}
	return Nameserver{IP: ip, Port: uint16(port)}, nil
}

// LoadNameserverFile reads resolver specs from a file, one per line.
// Blank lines and '#' comments (whole-line or inline) are skipped; entries
// are deduplicated preserving order. An empty result is an error.
func LoadNameserverFile(path string) ([]Nameserver, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseNameserverLines(f, path)
}

func parseNameserverLines(r io.Reader, src string) ([]Nameserver, error) {
	var entries []Nameserver
	seen := make(map[Nameserver]struct{})

	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line, _, _ := strings.Cut(scanner.Text(), "#")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		spec := strings.Fields(line)[0]
		ns, err := ParseNameserver(spec)
		if err != nil {
			return nil, fmt.Errorf("invalid resolver in %s:%d: %w", src, lineno, err)
		}
		if _, dup := seen[ns]; dup {
			continue
		}
		seen[ns] = struct{}{}
		entries = append(entries, ns)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("resolver file %s contains no valid entries", src)
	}
	return entries, nil
}
