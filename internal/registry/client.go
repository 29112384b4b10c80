package registry

import (
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"time"

	"priceregistry/internal/components/assert"
	"priceregistry/internal/components/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	report_client_acquire_session     = "client.acquire-session"
	report_client_resolve_sub_regions = "client.resolve-sub-regions"
	report_client_fetch_records       = "client.fetch-records"
)

const DefaultBaseUrl = "https://katastar.rgz.gov.rs/RegistarCenaNepokretnosti/"

const userAgent = "Mozilla/5.0 (Windows NT 10.0; rv:121.0) Gecko/20100101 Firefox/121.0"

// Accept-Encoding is left to the transport so that responses are
// transparently decompressed.
var defaultHeaders = map[string]string{
	"User-Agent":      userAgent,
	"Accept":          "*/*",
	"Accept-Language": "en-US,en;q=0.5",
	"Content-Type":    "application/json",
	"DNT":             "1",
	"Connection":      "keep-alive",
	"Sec-Fetch-Dest":  "empty",
	"Sec-Fetch-Mode":  "cors",
	"Sec-Fetch-Site":  "same-origin",
	"Pragma":          "no-cache",
	"Cache-Control":   "no-cache",
	"TE":              "trailers",
}

var postbackHeaders = map[string]string{
	"User-Agent":       userAgent,
	"Accept":           "*/*",
	"Accept-Language":  "en-US,en;q=0.5",
	"X-Requested-With": "XMLHttpRequest",
	"X-MicrosoftAjax":  "Delta=true",
	"Cache-Control":    "no-cache",
	"Content-Type":     "application/x-www-form-urlencoded; charset=utf-8",
	"DNT":              "1",
	"Connection":       "keep-alive",
	"Sec-Fetch-Dest":   "empty",
	"Sec-Fetch-Mode":   "cors",
	"Sec-Fetch-Site":   "same-origin",
	"Pragma":           "no-cache",
}

type Options struct {
	BaseUrl string
	Timeout time.Duration
	// RequestsPerSecond caps the request rate across every goroutine using
	// the client, 0 disables the limit.
	RequestsPerSecond float64
	CloudflareBypass  bool
	// DumpDir receives a dump of every exchange when set.
	DumpDir string
}

// Client talks to the public real-estate price registry. It holds no
// per-run state, everything a request depends on is carried by Session.
type Client struct {
	http    *resty.Client
	baseUrl *url.URL
	origin  string
	tel     telemetry.API
}

func NewClient(opts Options, tel telemetry.API) (*Client, error) {
	assert.NotNil(tel)

	tel = telemetry.NewScopedAPI("registry", tel)

	if opts.BaseUrl == "" {
		opts.BaseUrl = DefaultBaseUrl
	}
	if opts.Timeout == 0 {
		opts.Timeout = time.Minute
	}

	parsedBaseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	httpClient.SetCookieJar(jar)
	if opts.CloudflareBypass {
		httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	}
	httpClient.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(parsedBaseUrl.Hostname()))
	httpClient.SetTimeout(opts.Timeout)

	if opts.RequestsPerSecond > 0 {
		// max burst of 1 spaces requests evenly instead of letting them
		// through in bunches
		rateLimiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
		httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}

	var output telemetry.RestyOutput
	if opts.DumpDir != "" {
		output, err = telemetry.NewFilesystemOutput(opts.DumpDir)
		if err != nil {
			return nil, fmt.Errorf("create dump dir: %w", err)
		}
	}
	telemetry.InstrumentResty(httpClient, tel, output)

	return &Client{
		http:    httpClient,
		baseUrl: parsedBaseUrl,
		origin:  fmt.Sprintf("%s://%s", parsedBaseUrl.Scheme, parsedBaseUrl.Host),
		tel:     tel,
	}, nil
}

func (c *Client) referer() string {
	return c.baseUrl.String()
}
