// Package security はレビュー本文の無害化と外部APIへの送信制限を提供する。
package security

import (
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// OutboundGuardService はTMDBとOpenAIへの送信を保護する。
// どちらのベースURLも環境変数で差し替えられるため、内部ネットワークを指す設定を起動時に弾く。
type OutboundGuardService interface {
	// NewClient はhttpsの443番ポート以外、プライベートアドレス、ループバックへの接続を
	// Dialerレベルで拒否するHTTPクライアントを返す。
	NewClient(timeout time.Duration) *http.Client

	ValidateBaseURL(rawURL string) error
}

const outboundScheme = "https"

var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"), // クラウドのメタデータIPを含む
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
}

type outboundGuard struct{}

func NewOutboundGuard() *outboundGuard {
	return &outboundGuard{}
}

func (outboundGuard) NewClient(timeout time.Duration) *http.Client {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(outboundScheme).
		SetAllowedPorts(443).
		Build()
	return safeurl.Client(cfg).Client
}

// ValidateBaseURL はURLの形だけを検証する。名前解決後のアドレスはNewClientのDialerが検証する。
func (outboundGuard) ValidateBaseURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("empty URL")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if !strings.EqualFold(u.Scheme, outboundScheme) {
		return fmt.Errorf("disallowed scheme %q: only %s is allowed", u.Scheme, outboundScheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("URL has no host: %s", rawURL)
	}
	if port := u.Port(); port != "" && port != "443" {
		return fmt.Errorf("disallowed port: %s", port)
	}
	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}
	if addr, err := netip.ParseAddr(host); err == nil && isBlockedAddr(addr) {
		return fmt.Errorf("blocked IP address: %s", addr)
	}
	return nil
}

func isBlockedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
