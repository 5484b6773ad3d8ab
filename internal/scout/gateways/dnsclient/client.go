// Package dnsclient implements the pinned-resolver DNS client: UDP queries
// with TCP retry on truncation, failover across configured nameservers, and
// CNAME chain walking with a loop guard.
package dnsclient

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sdscout/sdscout/internal/scout/common/log"
	"github.com/sdscout/sdscout/internal/scout/common/utils"
	"github.com/sdscout/sdscout/internal/scout/domain"
	"github.com/sdscout/sdscout/internal/scout/gateways/wire"
)

const (
	// DefaultMaxCNAMEDepth bounds the number of CNAME hops followed.
	DefaultMaxCNAMEDepth = 8
	// DefaultCacheSize bounds the per-scan answer cache.
	DefaultCacheSize = 4096

	udpReadBuffer = 4096
	cacheTTLFloor = 1 * time.Second
	cacheTTLCap   = 5 * time.Minute
)

var recordTypeOrder = []string{"A", "AAAA", "CNAME"}

// DialFunc establishes a network connection. Injected for testing.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Options configures a Client.
type Options struct {
	// Servers are tried in order for every query; required.
	Servers []domain.Nameserver
	// Timeout applies to each individual UDP or TCP exchange; required.
	Timeout time.Duration
	// MaxCNAMEDepth bounds chain walking; defaults to DefaultMaxCNAMEDepth.
	MaxCNAMEDepth int
	// CacheSize is the answer-cache capacity; 0 uses the default, negative
	// disables caching.
	CacheSize int
	// Dial is injectable for tests; defaults to net.Dialer.
	Dial DialFunc
	// Logger defaults to the global logger.
	Logger log.Logger
}

// Client resolves names against pinned recursive nameservers.
type Client struct {
	servers  []domain.Nameserver
	timeout  time.Duration
	maxDepth int
	dial     DialFunc
	logger   log.Logger
	cache    *lru.Cache[string, cacheEntry]
}

type cacheEntry struct {
	resp      wire.Response
	expiresAt time.Time
}

// New constructs a Client. The server list must be non-empty and the timeout
// positive.
func New(opts Options) (*Client, error) {
	if len(opts.Servers) == 0 {
		return nil, fmt.Errorf("no nameservers provided")
	}
	if opts.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0")
	}
	if opts.MaxCNAMEDepth == 0 {
		opts.MaxCNAMEDepth = DefaultMaxCNAMEDepth
	}
	if opts.MaxCNAMEDepth < 0 {
		return nil, fmt.Errorf("max cname depth must be >= 0")
	}
	if opts.Dial == nil {
		opts.Dial = (&net.Dialer{}).DialContext
	}
	if opts.Logger == nil {
		opts.Logger = log.GetLogger()
	}

	c := &Client{
		servers:  opts.Servers,
		timeout:  opts.Timeout,
		maxDepth: opts.MaxCNAMEDepth,
		dial:     opts.Dial,
		logger:   opts.Logger,
	}
	size := opts.CacheSize
	if size == 0 {
		size = DefaultCacheSize
	}
	if size > 0 {
		cache, err := lru.New[string, cacheEntry](size)
		if err != nil {
			return nil, err
		}
		c.cache = cache
	}
	return c, nil
}

// ResolveHostDetails resolves a name by querying A then AAAA, following any
// CNAME chain up to the configured depth. IPs preserve first-observation
// order; the chain never revisits a name.
func (c *Client) ResolveHostDetails(ctx context.Context, name string) (domain.ResolvedHost, error) {
	current := utils.CanonicalDNSName(name)
	visited := map[string]struct{}{current: {}}

	var (
		ips         []string
		seenIPs     = make(map[string]struct{})
		chain       []string
		typesSeen   = make(map[string]struct{})
		ttlMin      *uint32
		ttlMax      *uint32
		trackTTL    = func(ttl uint32) {
			if ttlMin == nil || ttl < *ttlMin {
				v := ttl
				ttlMin = &v
			}
			if ttlMax == nil || ttl > *ttlMax {
				v := ttl
				ttlMax = &v
			}
		}
	)

	build := func() domain.ResolvedHost {
		return domain.ResolvedHost{
			IPs:         ips,
			CNAMEs:      chain,
			RecordTypes: orderedRecordTypes(typesSeen),
			TTLMin:      ttlMin,
			TTLMax:      ttlMax,
		}
	}

	for depth := 0; depth <= c.maxDepth; depth++ {
		var observedCNAMEs []string
		iterIPs := false

		for _, qtype := range []uint16{wire.TypeA, wire.TypeAAAA} {
			resp, err := c.query(ctx, current, qtype)
			if err != nil {
				return domain.ResolvedHost{}, err
			}
			for _, cname := range resp.CNAMEs {
				if !contains(observedCNAMEs, cname) {
					observedCNAMEs = append(observedCNAMEs, cname)
				}
			}
			if len(resp.Answers) > 0 {
				typesSeen[typeLabel(qtype)] = struct{}{}
				for _, ttl := range resp.AnswerTTLs {
					trackTTL(ttl)
				}
			}
			for _, ip := range resp.Answers {
				if _, dup := seenIPs[ip]; dup {
					continue
				}
				seenIPs[ip] = struct{}{}
				ips = append(ips, ip)
				iterIPs = true
			}
		}

		primary := ""
		if len(observedCNAMEs) > 0 {
			primary = utils.CanonicalDNSName(observedCNAMEs[0])
			typesSeen["CNAME"] = struct{}{}
		}
		if primary != "" && (len(chain) == 0 || chain[len(chain)-1] != primary) {
			chain = append(chain, primary)
		}

		if iterIPs || len(ips) > 0 {
			return build(), nil
		}
		if primary == "" {
			return build(), nil
		}
		if _, loop := visited[primary]; loop {
			c.logger.Debug(map[string]any{"name": name, "target": primary}, "cname loop detected")
			return build(), nil
		}
		visited[primary] = struct{}{}
		current = primary
	}

	return build(), nil
}

// query tries each configured nameserver in order, falling back to TCP on a
// truncated UDP response. RCODE 0 and 3 are terminal; anything else moves on
// to the next server carrying the error.
func (c *Client) query(ctx context.Context, qname string, qtype uint16) (wire.Response, error) {
	key := fmt.Sprintf("%s:%d", qname, qtype)
	if entry, ok := c.cacheGet(key); ok {
		return entry, nil
	}

	var lastErr error
	for _, ns := range c.servers {
		resp, err := c.exchange(ctx, ns, qname, qtype, false)
		if err == nil && resp.Truncated {
			resp, err = c.exchange(ctx, ns, qname, qtype, true)
		}
		if err != nil {
			lastErr = err
			continue
		}
		if resp.Rcode == 0 || resp.Rcode == domain.RcodeNXDomain {
			c.cachePut(key, resp)
			return resp, nil
		}
		lastErr = &domain.QueryError{Msg: "dns error response", Rcode: resp.Rcode}
	}

	if lastErr == nil {
		lastErr = &domain.TimeoutError{Msg: "dns query failed"}
	}
	return wire.Response{}, normalizeQueryError(lastErr)
}

// normalizeQueryError keeps timeouts and protocol errors as-is and folds
// transport and parse failures into the malformed/protocol error class.
func normalizeQueryError(err error) error {
	var te *domain.TimeoutError
	if errors.As(err, &te) {
		return te
	}
	var qe *domain.QueryError
	if errors.As(err, &qe) {
		return qe
	}
	return &domain.QueryError{Msg: err.Error(), Rcode: domain.NoRcode}
}

// exchange performs one query against one server over UDP or TCP.
func (c *Client) exchange(ctx context.Context, ns domain.Nameserver, qname string, qtype uint16, useTCP bool) (wire.Response, error) {
	tid, err := transactionID()
	if err != nil {
		return wire.Response{}, err
	}
	msg, err := wire.EncodeQuery(tid, qname, qtype)
	if err != nil {
		return wire.Response{}, err
	}

	network := "udp"
	if useTCP {
		network = "tcp"
	}
	if ns.IsIPv6() {
		network += "6"
	} else {
		network += "4"
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	dialCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	conn, err := c.dial(dialCtx, network, ns.Addr())
	if err != nil {
		return wire.Response{}, mapNetError(err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(deadline)

	var data []byte
	if useTCP {
		data, err = tcpRoundTrip(conn, msg)
	} else {
		data, err = udpRoundTrip(conn, msg)
	}
	if err != nil {
		return wire.Response{}, mapNetError(err)
	}

	return wire.DecodeResponse(data, tid, qtype)
}

func udpRoundTrip(conn net.Conn, msg []byte) ([]byte, error) {
	if _, err := conn.Write(msg); err != nil {
		return nil, err
	}
	buf := make([]byte, udpReadBuffer)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// tcpRoundTrip frames the query with the RFC 1035 2-byte length prefix and
// reads the length-prefixed response.
func tcpRoundTrip(conn net.Conn, msg []byte) ([]byte, error) {
	framed := make([]byte, 2+len(msg))
	binary.BigEndian.PutUint16(framed, uint16(len(msg)))
	copy(framed[2:], msg)
	if _, err := conn.Write(framed); err != nil {
		return nil, err
	}

	var hdr [2]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		return nil, err
	}
	data := make([]byte, binary.BigEndian.Uint16(hdr[:]))
	if _, err := io.ReadFull(conn, data); err != nil {
		return nil, err
	}
	return data, nil
}

// mapNetError converts transport errors into the resolver error taxonomy.
func mapNetError(err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &domain.TimeoutError{Msg: err.Error()}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.TimeoutError{Msg: err.Error()}
	}
	return &domain.SocketError{Msg: err.Error(), Err: err}
}

func (c *Client) cacheGet(key string) (wire.Response, bool) {
	if c.cache == nil {
		return wire.Response{}, false
	}
	entry, ok := c.cache.Get(key)
	if !ok {
		return wire.Response{}, false
	}
	if time.Now().After(entry.expiresAt) {
		c.cache.Remove(key)
		return wire.Response{}, false
	}
	return entry.resp, true
}

// cachePut stores positive answers only, expiring at the minimum answer TTL.
func (c *Client) cachePut(key string, resp wire.Response) {
	if c.cache == nil || len(resp.Answers) == 0 || resp.Rcode != 0 {
		return
	}
	ttl := cacheTTLCap
	for _, t := range resp.AnswerTTLs {
		if d := time.Duration(t) * time.Second; d < ttl {
			ttl = d
		}
	}
	if ttl < cacheTTLFloor {
		ttl = cacheTTLFloor
	}
	c.cache.Add(key, cacheEntry{resp: resp, expiresAt: time.Now().Add(ttl)})
}

// transactionID returns a random 16-bit id used to correlate query/response.
func transactionID() (uint16, error) {
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func typeLabel(qtype uint16) string {
	if qtype == wire.TypeAAAA {
		return "AAAA"
	}
	return "A"
}

func orderedRecordTypes(seen map[string]struct{}) []string {
	var out []string
	for _, t := range recordTypeOrder {
		if _, ok := seen[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
