package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/net/proxy"
)

// ProxySettingKey is the settings key of the operator-chosen proxy.
const ProxySettingKey = "outbound_proxy_url"

// ErrNotConfigured is returned when an upstream API has no credentials.
var ErrNotConfigured = errors.New("upstream api not configured")

// SettingsStore is the persisted key/value store for the manual proxy.
type SettingsStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// ProxyStatus describes where outbound requests are routed.
type ProxyStatus struct {
	ManualProxy     string `json:"manual_proxy,omitempty"`
	ConfiguredProxy string `json:"configured_proxy,omitempty"`
	EnvHTTPProxy    string `json:"env_http_proxy,omitempty"`
	EnvHTTPSProxy   string `json:"env_https_proxy,omitempty"`
	EnvAllProxy     string `json:"env_all_proxy,omitempty"`
	EnvNoProxy      string `json:"env_no_proxy,omitempty"`
	EffectiveProxy  string `json:"effective_proxy,omitempty"`
	Source          string `json:"source"` // manual|config|env|none
}

// Transport builds HTTP clients for the n8n and Close APIs.
type Transport struct {
	settings   SettingsStore
	configured string
	timeout    time.Duration
	log        hclog.Logger
}

// NewTransport builds a transport. settings may be nil.
func NewTransport(settings SettingsStore, configuredProxy string, timeout time.Duration, log hclog.Logger) *Transport {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Transport{
		settings:   settings,
		configured: strings.TrimSpace(configuredProxy),
		timeout:    timeout,
		log:        log,
	}
}

// Status reports the proxy that Client would use.
func (t *Transport) Status(ctx context.Context) ProxyStatus {
	manual := t.manualProxy(ctx)
	env := readProxyEnv()
	effective, source := t.chooseEffectiveProxy(manual, env)

	return ProxyStatus{
		ManualProxy:     redactProxy(manual),
		ConfiguredProxy: redactProxy(t.configured),
		EnvHTTPProxy:    redactProxy(env.httpProxy),
		EnvHTTPSProxy:   redactProxy(env.httpsProxy),
		EnvAllProxy:     redactProxy(env.allProxy),
		EnvNoProxy:      env.noProxy,
		EffectiveProxy:  redactProxy(effective),
		Source:          source,
	}
}

// SetManualProxy persists a proxy URL. An empty value clears it.
func (t *Transport) SetManualProxy(ctx context.Context, raw string) error {
	if t.settings == nil {
		return errors.New("settings store not available")
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return t.settings.Delete(ctx, ProxySettingKey)
	}
	if err := ValidateProxyURL(value); err != nil {
		return err
	}
	return t.settings.Set(ctx, ProxySettingKey, value)
}

// ValidateProxyURL accepts http(s):// and socks5(h):// URLs.
func ValidateProxyURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid proxy url")
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "socks5", "socks5h":
		return nil
	default:
		return fmt.Errorf("proxy url must start with http(s):// or socks5(h)://")
	}
}

// Client returns an HTTP client honouring the effective proxy.
func (t *Transport) Client(ctx context.Context) *http.Client {
	effective, _ := t.chooseEffectiveProxy(t.manualProxy(ctx), readProxyEnv())

	base, okType := http.DefaultTransport.(*http.Transport)
	var tr *http.Transport
	if okType {
		tr = base.Clone()
	} else {
		tr = &http.Transport{}
	}
	tr.Proxy = http.ProxyFromEnvironment

	if effective == "" {
		return &http.Client{Timeout: t.timeout, Transport: tr}
	}

	pu, err := url.Parse(effective)
	if err != nil {
		t.log.Warn("ignoring unparseable proxy url", "proxy", redactProxy(effective))
		return &http.Client{Timeout: t.timeout, Transport: tr}
	}

	switch strings.ToLower(pu.Scheme) {
	case "http", "https":
		tr.Proxy = http.ProxyURL(pu)
	case "socks5", "socks5h":
		tr.Proxy = nil
		if strings.EqualFold(pu.Scheme, "socks5h") {
			pu.Scheme = "socks5"
		}
		dialer, err := proxy.FromURL(pu, proxy.Direct)
		if err != nil {
			t.log.Warn("socks5 proxy unusable", "proxy", redactProxy(effective), "error", err)
			break
		}
		tr.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			if dctx, ok := dialer.(proxy.ContextDialer); ok {
				return dctx.DialContext(ctx, network, addr)
			}
			return dialer.Dial(network, addr)
		}
	}

	return &http.Client{Timeout: t.timeout, Transport: tr}
}

func (t *Transport) manualProxy(ctx context.Context) string {
	if t.settings == nil {
		return ""
	}
	v, ok, err := t.settings.Get(ctx, ProxySettingKey)
	if err != nil || !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

func (t *Transport) chooseEffectiveProxy(manual string, env proxyEnv) (effective, source string) {
	if manual != "" {
		return manual, "manual"
	}
	if t.configured != "" {
		return t.configured, "config"
	}
	if env.httpsProxy != "" {
		return env.httpsProxy, "env"
	}
	if env.httpProxy != "" {
		return env.httpProxy, "env"
	}
	if env.allProxy != "" {
		return env.allProxy, "env"
	}
	return "", "none"
}

type proxyEnv struct {
	httpProxy  string
	httpsProxy string
	allProxy   string
	noProxy    string
}

func readProxyEnv() proxyEnv {
	return proxyEnv{
		httpProxy:  envEither("HTTP_PROXY", "http_proxy"),
		httpsProxy: envEither("HTTPS_PROXY", "https_proxy"),
		allProxy:   envEither("ALL_PROXY", "all_proxy"),
		noProxy:    envEither("NO_PROXY", "no_proxy"),
	}
}

func envEither(upper, lower string) string {
	if v := strings.TrimSpace(os.Getenv(upper)); v != "" {
		return v
	}
	return strings.TrimSpace(os.Getenv(lower))
}

func redactProxy(raw string) string {
	if raw == "" {
		return raw
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.User == nil {
		return raw
	}
	parsed.User = nil
	return parsed.String()
}
