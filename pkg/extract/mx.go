package extract

import (
	"context"
	"sync"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/zap"
)

const (
	DefaultResolver   = "8.8.8.8:53"
	defaultDNSTimeout = 5 * time.Second
)

// MXVerifier は DNS の MX レコードでメールドメインを検証します。結果はドメイン単位でキャッシュされます。
type MXVerifier struct {
	client   *dns.Client
	resolver string
	cache    sync.Map
}

// NewMXVerifier は MXVerifier を生成します。resolver が空の場合は DefaultResolver を使用します。
func NewMXVerifier(resolver string) *MXVerifier {
	if resolver == "" {
		resolver = DefaultResolver
	}
	return &MXVerifier{
		client:   &dns.Client{Timeout: defaultDNSTimeout},
		resolver: resolver,
	}
}

// VerifyDomain はドメインに MX レコードが存在する場合に true を返します。
// DNS 問い合わせ自体が失敗した場合は、誤って除外しないよう true を返します。
func (v *MXVerifier) VerifyDomain(ctx context.Context, domain string) bool {
	if cached, ok := v.cache.Load(domain); ok {
		return cached.(bool)
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(domain), dns.TypeMX)
	m.RecursionDesired = true

	resp, _, err := v.client.ExchangeContext(ctx, m, v.resolver)
	if err != nil {
		zap.L().Debug("MXレコードの問い合わせに失敗しました", zap.String("domain", domain), zap.Error(err))
		return true
	}

	ok := false
	if resp.Rcode == dns.RcodeSuccess {
		for _, ans := range resp.Answer {
			if _, isMX := ans.(*dns.MX); isMX {
				ok = true
				break
			}
		}
	}
	v.cache.Store(domain, ok)
	return ok
}
