// Package resolvers provides the resolution facade used by the scan
// pipeline: either the host's address-info lookup, or the pinned DNS client.
// Both paths produce a fully classified Result for one attempt; retries are
// the scanner's concern.
package resolvers

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/sdscout/sdscout/internal/scout/domain"
)

// Resolver resolves one FQDN and classifies the outcome. Implementations
// must return a Result with Attempts=1 and Retries=0; empty answer sets
// normalize to not_found.
type Resolver interface {
	Resolve(ctx context.Context, name string) domain.Result
}

// HostDetailsResolver is implemented by the pinned DNS client.
type HostDetailsResolver interface {
	ResolveHostDetails(ctx context.Context, name string) (domain.ResolvedHost, error)
}

// SystemResolver resolves through the OS address-info lookup. CNAME chains
// are not observable on this path.
type SystemResolver struct {
	lookup func(ctx context.Context, host string) ([]net.IPAddr, error)
}

// NewSystemResolver returns a resolver backed by net.DefaultResolver.
func NewSystemResolver() *SystemResolver {
	return &SystemResolver{lookup: net.DefaultResolver.LookupIPAddr}
}

// Resolve performs the lookup, deduplicating returned addresses in
// first-seen order.
func (r *SystemResolver) Resolve(ctx context.Context, name string) domain.Result {
	start := time.Now()
	addrs, err := r.lookup(ctx, name)
	if err != nil {
		return classifySystemError(name, start, err)
	}

	ips := make([]string, 0, len(addrs))
	seen := make(map[string]struct{}, len(addrs))
	for _, addr := range addrs {
		ip := addr.IP.String()
		if _, dup := seen[ip]; dup {
			continue
		}
		seen[ip] = struct{}{}
		ips = append(ips, ip)
	}
	if len(ips) == 0 {
		return newResult(name, start, domain.StatusNotFound)
	}

	res := newResult(name, start, domain.StatusResolved)
	res.IPs = ips
	return res
}

// classifySystemError renders a host-lookup failure through the resolver
// error taxonomy: definitive misses are not_found, everything else becomes
// an error record whose retryability follows the taxonomy.
func classifySystemError(name string, start time.Time, err error) domain.Result {
	taxErr, errType := classifyLookup(err)

	var hle *domain.HostLookupError
	if errors.As(taxErr, &hle) && hle.Kind == domain.LookupNotFound {
		return newResult(name, start, domain.StatusNotFound)
	}

	res := newResult(name, start, domain.StatusError)
	res.Error = taxErr.Error()
	res.ErrorType = errType
	res.Retryable = domain.IsRetryableResolveError(errType, taxErr)
	return res
}

// classifyLookup converts an address-info failure into a taxonomy error and
// its record-level type label.
func classifyLookup(err error) (error, string) {
	var dnsErr *net.DNSError
	if !errors.As(err, &dnsErr) {
		return err, domain.ErrorTypeOS
	}
	switch {
	case dnsErr.IsNotFound:
		return &domain.HostLookupError{Kind: domain.LookupNotFound, Msg: dnsErr.Error()}, domain.ErrorTypeHostLookup
	case dnsErr.IsTimeout:
		return &domain.TimeoutError{Msg: dnsErr.Error()}, domain.ErrorTypeTimeout
	case dnsErr.IsTemporary:
		return &domain.HostLookupError{Kind: domain.LookupAgain, Msg: dnsErr.Error()}, domain.ErrorTypeHostLookup
	default:
		return &domain.HostLookupError{Kind: domain.LookupOther, Msg: dnsErr.Error()}, domain.ErrorTypeHostLookup
	}
}

// CustomResolver resolves through the pinned DNS client, surfacing CNAME
// chains, record types, and TTL bounds when requested.
type CustomResolver struct {
	client HostDetailsResolver
	// IncludeCNAME controls whether chain details appear on results.
	includeCNAME bool
}

// NewCustomResolver wraps a pinned DNS client.
func NewCustomResolver(client HostDetailsResolver, includeCNAME bool) *CustomResolver {
	return &CustomResolver{client: client, includeCNAME: includeCNAME}
}

// Resolve queries the pinned nameservers. NXDOMAIN and empty answer sets
// both classify as not_found; timeouts are retryable errors.
func (r *CustomResolver) Resolve(ctx context.Context, name string) domain.Result {
	start := time.Now()
	details, err := r.client.ResolveHostDetails(ctx, name)
	if err != nil {
		return r.classifyQueryError(name, start, err)
	}

	status := domain.StatusResolved
	if len(details.IPs) == 0 {
		status = domain.StatusNotFound
	}
	res := newResult(name, start, status)
	if len(details.IPs) > 0 {
		res.IPs = details.IPs
	}
	res.DNSRecordTypes = details.RecordTypes
	res.TTLMin = details.TTLMin
	res.TTLMax = details.TTLMax
	if r.includeCNAME {
		res.CNAMEs = details.CNAMEs
		res.CanonicalTarget = details.CanonicalTarget()
	}
	return res
}

func (r *CustomResolver) classifyQueryError(name string, start time.Time, err error) domain.Result {
	if domain.IsNXDomain(err) {
		return newResult(name, start, domain.StatusNotFound)
	}

	var te *domain.TimeoutError
	if errors.As(err, &te) {
		res := newResult(name, start, domain.StatusError)
		res.Error = te.Error()
		res.ErrorType = domain.ErrorTypeTimeout
		res.Retryable = domain.IsRetryableResolveError(res.ErrorType, te)
		return res
	}

	var qe *domain.QueryError
	if errors.As(err, &qe) {
		res := newResult(name, start, domain.StatusError)
		res.Error = qe.Error()
		res.ErrorType = domain.ErrorTypeDNS
		if qe.Rcode != domain.NoRcode {
			code := qe.Rcode
			res.ErrorCode = &code
		}
		return res
	}

	res := newResult(name, start, domain.StatusError)
	res.Error = err.Error()
	res.ErrorType = domain.ErrorTypeOS
	return res
}

func newResult(name string, start time.Time, status domain.Status) domain.Result {
	return domain.Result{
		Subdomain: name,
		IPs:       []string{},
		Status:    status,
		ElapsedMs: time.Since(start).Milliseconds(),
		Attempts:  1,
		Retries:   0,
	}
}

var (
	_ Resolver = (*SystemResolver)(nil)
	_ Resolver = (*CustomResolver)(nil)
)
