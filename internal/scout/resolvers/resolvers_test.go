package resolvers

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdscout/sdscout/internal/scout/domain"
)

func TestSystemResolver_Resolved(t *testing.T) {
	r := &SystemResolver{lookup: func(ctx context.Context, host string) ([]net.IPAddr, error) {
		return []net.IPAddr{
			{IP: net.ParseIP("1.2.3.4")},
			{IP: net.ParseIP("1.2.3.4")},
			{IP: net.ParseIP("2001:db8::1")},
		}, nil
	}}

	res := r.Resolve(context.Background(), "www.example.com")
	assert.Equal(t, domain.StatusResolved, res.Status)
	assert.Equal(t, []string{"1.2.3.4", "2001:db8::1"}, res.IPs)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 0, res.Retries)
	assert.False(t, res.Retryable)
}

func TestSystemResolver_EmptyAnswerIsNotFound(t *testing.T) {
	r := &SystemResolver{lookup: func(ctx context.Context, host string) ([]net.IPAddr, error) {
		return nil, nil
	}}

	res := r.Resolve(context.Background(), "empty.example.com")
	assert.Equal(t, domain.StatusNotFound, res.Status)
	assert.Equal(t, []string{}, res.IPs)
}

func TestSystemResolver_ErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantStatus    domain.Status
		wantErrorType string
		wantRetryable bool
	}{
		{
			name:       "not found",
			err:        &net.DNSError{Err: "no such host", IsNotFound: true},
			wantStatus: domain.StatusNotFound,
		},
		{
			name:          "timeout",
			err:           &net.DNSError{Err: "i/o timeout", IsTimeout: true},
			wantStatus:    domain.StatusError,
			wantErrorType: domain.ErrorTypeTimeout,
			wantRetryable: true,
		},
		{
			name:          "temporary lookup failure",
			err:           &net.DNSError{Err: "server misbehaving", IsTemporary: true},
			wantStatus:    domain.StatusError,
			wantErrorType: domain.ErrorTypeHostLookup,
			wantRetryable: true,
		},
		{
			name:          "permanent lookup failure",
			err:           &net.DNSError{Err: "broken"},
			wantStatus:    domain.StatusError,
			wantErrorType: domain.ErrorTypeHostLookup,
			wantRetryable: false,
		},
		{
			name:          "non-dns error",
			err:           errors.New("socket exhausted"),
			wantStatus:    domain.StatusError,
			wantErrorType: domain.ErrorTypeOS,
			wantRetryable: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &SystemResolver{lookup: func(ctx context.Context, host string) ([]net.IPAddr, error) {
				return nil, tt.err
			}}
			res := r.Resolve(context.Background(), "x.example.com")
			assert.Equal(t, tt.wantStatus, res.Status)
			assert.Equal(t, tt.wantErrorType, res.ErrorType)
			assert.Equal(t, tt.wantRetryable, res.Retryable)
			if tt.wantStatus == domain.StatusError {
				assert.NotEmpty(t, res.Error)
			}
		})
	}
}

func TestClassifyLookup(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantErrType  string
		wantKind     domain.LookupKind
		wantTaxonomy bool
	}{
		{
			name:         "not found",
			err:          &net.DNSError{Err: "no such host", IsNotFound: true},
			wantErrType:  domain.ErrorTypeHostLookup,
			wantKind:     domain.LookupNotFound,
			wantTaxonomy: true,
		},
		{
			name:         "try again",
			err:          &net.DNSError{Err: "server misbehaving", IsTemporary: true},
			wantErrType:  domain.ErrorTypeHostLookup,
			wantKind:     domain.LookupAgain,
			wantTaxonomy: true,
		},
		{
			name:         "other lookup failure",
			err:          &net.DNSError{Err: "broken"},
			wantErrType:  domain.ErrorTypeHostLookup,
			wantKind:     domain.LookupOther,
			wantTaxonomy: true,
		},
		{
			name:        "non-dns error passes through",
			err:         errors.New("socket exhausted"),
			wantErrType: domain.ErrorTypeOS,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			taxErr, errType := classifyLookup(tt.err)
			assert.Equal(t, tt.wantErrType, errType)
			var hle *domain.HostLookupError
			if tt.wantTaxonomy {
				require.ErrorAs(t, taxErr, &hle)
				assert.Equal(t, tt.wantKind, hle.Kind)
			} else {
				assert.Equal(t, tt.err, taxErr)
			}
		})
	}
}

func TestClassifyLookup_Timeout(t *testing.T) {
	taxErr, errType := classifyLookup(&net.DNSError{Err: "i/o timeout", IsTimeout: true})
	assert.Equal(t, domain.ErrorTypeTimeout, errType)
	var te *domain.TimeoutError
	require.ErrorAs(t, taxErr, &te)
	assert.True(t, domain.IsRetryableResolveError(errType, taxErr))
}

// fakeClient implements HostDetailsResolver for CustomResolver tests.
type fakeClient struct {
	details domain.ResolvedHost
	err     error
}

func (f *fakeClient) ResolveHostDetails(ctx context.Context, name string) (domain.ResolvedHost, error) {
	return f.details, f.err
}

func uint32Ptr(v uint32) *uint32 { return &v }

func TestCustomResolver_Resolved(t *testing.T) {
	client := &fakeClient{details: domain.ResolvedHost{
		IPs:         []string{"1.2.3.4"},
		CNAMEs:      []string{"cdn.example.net", "edge.example.net"},
		RecordTypes: []string{"A", "CNAME"},
		TTLMin:      uint32Ptr(60),
		TTLMax:      uint32Ptr(300),
	}}

	r := NewCustomResolver(client, true)
	res := r.Resolve(context.Background(), "www.example.com")
	require.Equal(t, domain.StatusResolved, res.Status)
	assert.Equal(t, []string{"1.2.3.4"}, res.IPs)
	assert.Equal(t, []string{"cdn.example.net", "edge.example.net"}, res.CNAMEs)
	assert.Equal(t, "edge.example.net", res.CanonicalTarget)
	assert.Equal(t, []string{"A", "CNAME"}, res.DNSRecordTypes)
	assert.Equal(t, uint32(60), *res.TTLMin)
	assert.Equal(t, uint32(300), *res.TTLMax)
}

func TestCustomResolver_CNAMESuppressedWhenDisabled(t *testing.T) {
	client := &fakeClient{details: domain.ResolvedHost{
		IPs:         []string{"1.2.3.4"},
		CNAMEs:      []string{"cdn.example.net"},
		RecordTypes: []string{"A", "CNAME"},
	}}

	r := NewCustomResolver(client, false)
	res := r.Resolve(context.Background(), "www.example.com")
	assert.Empty(t, res.CNAMEs)
	assert.Empty(t, res.CanonicalTarget)
	// Record types are observable regardless of the chain toggle.
	assert.Equal(t, []string{"A", "CNAME"}, res.DNSRecordTypes)
}

func TestCustomResolver_EmptyAnswerIsNotFound(t *testing.T) {
	r := NewCustomResolver(&fakeClient{details: domain.ResolvedHost{
		CNAMEs:      []string{"parked.example.net"},
		RecordTypes: []string{"CNAME"},
	}}, true)

	res := r.Resolve(context.Background(), "dangling.example.com")
	assert.Equal(t, domain.StatusNotFound, res.Status)
	assert.Equal(t, []string{}, res.IPs)
	assert.Equal(t, []string{"parked.example.net"}, res.CNAMEs)
}

func TestCustomResolver_ErrorClassification(t *testing.T) {
	rcode := 2
	tests := []struct {
		name          string
		err           error
		wantStatus    domain.Status
		wantErrorType string
		wantRetryable bool
		wantErrorCode *int
	}{
		{
			name:          "timeout",
			err:           &domain.TimeoutError{Msg: "deadline exceeded"},
			wantStatus:    domain.StatusError,
			wantErrorType: domain.ErrorTypeTimeout,
			wantRetryable: true,
		},
		{
			name:       "nxdomain",
			err:        &domain.QueryError{Msg: "dns error response", Rcode: domain.RcodeNXDomain},
			wantStatus: domain.StatusNotFound,
		},
		{
			name:          "servfail",
			err:           &domain.QueryError{Msg: "dns error response", Rcode: 2},
			wantStatus:    domain.StatusError,
			wantErrorType: domain.ErrorTypeDNS,
			wantErrorCode: &rcode,
		},
		{
			name:          "malformed response",
			err:           &domain.QueryError{Msg: "malformed dns response", Rcode: domain.NoRcode},
			wantStatus:    domain.StatusError,
			wantErrorType: domain.ErrorTypeDNS,
		},
		{
			name:          "socket error",
			err:           &domain.SocketError{Msg: "connection refused"},
			wantStatus:    domain.StatusError,
			wantErrorType: domain.ErrorTypeOS,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewCustomResolver(&fakeClient{err: tt.err}, false)
			res := r.Resolve(context.Background(), "x.example.com")
			assert.Equal(t, tt.wantStatus, res.Status)
			assert.Equal(t, tt.wantErrorType, res.ErrorType)
			assert.Equal(t, tt.wantRetryable, res.Retryable)
			if tt.wantErrorCode != nil {
				require.NotNil(t, res.ErrorCode)
				assert.Equal(t, *tt.wantErrorCode, *res.ErrorCode)
			} else {
				assert.Nil(t, res.ErrorCode)
			}
		})
	}
}
