package caption

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/tomoima525/daily-diary/internal/domain"
	"github.com/tomoima525/daily-diary/internal/storage"
)

// maxSourceBytes caps a single downloaded photo.
const maxSourceBytes = 32 << 20

// ErrForbiddenSource marks a locator the worker refuses to read: a non-public
// network destination or an Asset Store key outside the allowed sources.
var ErrForbiddenSource = errors.New("caption: source not allowed")

// sharedAddressSpace is carrier-grade NAT space (RFC 6598), not covered by
// netip's IsPrivate.
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// FetcherOptions configures where sources may come from.
type FetcherOptions struct {
	// HTTPClient downloads http(s) sources. Unless AllowPrivateHosts is set its
	// transport is replaced with one that only dials public addresses.
	HTTPClient *http.Client
	// AllowPrivateHosts permits loopback, link-local and private destinations.
	AllowPrivateHosts bool
	// SourcePrefix confines Asset Store keys. Published videos are refused
	// regardless.
	SourcePrefix string
}

// Fetcher resolves a PhotoMemory source locator into image bytes. Locators are
// Asset Store keys, http(s) URLs or data: URIs.
type Fetcher struct {
	store        storage.Store
	httpClient   *http.Client
	allowPrivate bool
	sourcePrefix string
}

// NewFetcher builds a Fetcher over store.
func NewFetcher(store storage.Store, opts FetcherOptions) *Fetcher {
	client := &http.Client{Timeout: 60 * time.Second}
	if opts.HTTPClient != nil {
		copied := *opts.HTTPClient
		client = &copied
	}
	if !opts.AllowPrivateHosts {
		client.Transport = publicOnlyTransport()
	}
	return &Fetcher{
		store:        store,
		httpClient:   client,
		allowPrivate: opts.AllowPrivateHosts,
		sourcePrefix: strings.Trim(strings.TrimSpace(opts.SourcePrefix), "/"),
	}
}

// Fetch returns the source bytes and their detected media type.
func (f *Fetcher) Fetch(ctx context.Context, locator string) ([]byte, string, error) {
	locator = strings.TrimSpace(locator)
	switch {
	case locator == "":
		return nil, "", errors.New("caption: empty source locator")
	case strings.HasPrefix(locator, "data:"):
		return decodeDataURI(locator)
	case strings.HasPrefix(locator, "http://"), strings.HasPrefix(locator, "https://"):
		return f.fetchHTTP(ctx, locator)
	default:
		return f.fetchStore(ctx, locator)
	}
}

func (f *Fetcher) fetchStore(ctx context.Context, raw string) ([]byte, string, error) {
	if f.store == nil {
		return nil, "", errors.New("caption: no asset store configured")
	}
	key, err := f.sourceKey(raw)
	if err != nil {
		return nil, "", err
	}
	rc, err := f.store.Get(ctx, key)
	if err != nil {
		return nil, "", fmt.Errorf("caption: get source %s: %w", key, err)
	}
	defer rc.Close()
	data, err := readLimited(rc)
	if err != nil {
		return nil, "", fmt.Errorf("caption: read source %s: %w", key, err)
	}
	return data, http.DetectContentType(data), nil
}

// sourceKey cleans raw and checks it against the allowed key space.
func (f *Fetcher) sourceKey(raw string) (string, error) {
	key := strings.TrimPrefix(path.Clean("/"+raw), "/")
	if key == "" || strings.HasPrefix(key+"/", domain.OutputPrefix) {
		return "", fmt.Errorf("%w: %s", ErrForbiddenSource, raw)
	}
	if f.sourcePrefix != "" && !strings.HasPrefix(key, f.sourcePrefix+"/") {
		return "", fmt.Errorf("%w: %s is outside %s/", ErrForbiddenSource, raw, f.sourcePrefix)
	}
	return key, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, raw string) ([]byte, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, "", fmt.Errorf("caption: invalid source url: %w", err)
	}
	if !f.allowPrivate {
		if err := checkHost(u.Hostname()); err != nil {
			return nil, "", err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return nil, "", fmt.Errorf("caption: create source request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("caption: download source: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, "", fmt.Errorf("caption: download source status %d", resp.StatusCode)
	}
	data, err := readLimited(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("caption: read source body: %w", err)
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" || strings.HasPrefix(mime, "application/octet-stream") {
		mime = http.DetectContentType(data)
	}
	return data, mime, nil
}

// checkHost rejects literal non-public addresses and localhost names before
// any request is made. Resolved names are checked again at dial time.
func checkHost(host string) error {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" || host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("%w: host %q", ErrForbiddenSource, host)
	}
	if addr, err := netip.ParseAddr(host); err == nil && !isPublic(addr) {
		return fmt.Errorf("%w: address %s", ErrForbiddenSource, addr)
	}
	return nil
}

// publicOnlyTransport dials only public addresses. The check runs on the
// resolved address of every connection, redirects included. Proxies are
// disabled so the check applies to the real destination.
func publicOnlyTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   refuseNonPublic,
	}
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.Proxy = nil
	t.DialContext = dialer.DialContext
	return t
}

func refuseNonPublic(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrForbiddenSource, err)
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrForbiddenSource, err)
	}
	if !isPublic(addr) {
		return fmt.Errorf("%w: address %s", ErrForbiddenSource, addr)
	}
	return nil
}

func isPublic(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsValid() &&
		addr.IsGlobalUnicast() &&
		!addr.IsPrivate() &&
		!addr.IsLoopback() &&
		!addr.IsLinkLocalUnicast() &&
		!sharedAddressSpace.Contains(addr)
}

func decodeDataURI(raw string) ([]byte, string, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(raw, "data:"), ",")
	if !ok {
		return nil, "", errors.New("caption: malformed data uri")
	}
	mime := "application/octet-stream"
	isBase64 := false
	for i, field := range strings.Split(header, ";") {
		switch {
		case i == 0 && field != "":
			mime = field
		case field == "base64":
			isBase64 = true
		}
	}
	if !isBase64 {
		decoded, err := url.PathUnescape(payload)
		if err != nil {
			return nil, "", fmt.Errorf("caption: decode data uri: %w", err)
		}
		return []byte(decoded), mime, nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("caption: decode data uri: %w", err)
	}
	if len(data) > maxSourceBytes {
		return nil, "", fmt.Errorf("caption: source exceeds %d bytes", maxSourceBytes)
	}
	return data, mime, nil
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxSourceBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxSourceBytes {
		return nil, fmt.Errorf("source exceeds %d bytes", maxSourceBytes)
	}
	return data, nil
}
