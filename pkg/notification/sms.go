package notification

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	defaultCountryCode = "254"
	defaultMaxBodyLen  = 160 // 运营商单条短信长度上限
	defaultSendTimeout = 8 * time.Second
	subscriberDigits   = 9 // 国家码之后的本地号码位数
)

// SendResult 单次发送的结构化结果：调用方据此记录每个联系人的投递状态
type SendResult struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

// Gateway 短信网关，永不 panic 出边界
type Gateway interface {
	Send(ctx context.Context, phone, body string) SendResult
}

type SMSConfig struct {
	APIKey      string
	SenderID    string
	CountryCode string // 默认 254
	Endpoint    string
	Timeout     time.Duration
	MaxBodyLen  int
}

// ProviderClient 便于替换/注入的发送接口（适配真实供应商 SDK）
type ProviderClient interface {
	Deliver(ctx context.Context, to, senderID, body string) error
}

type SMSGateway struct {
	cfg SMSConfig
	cli ProviderClient
}

func NewSMSGateway(cfg SMSConfig, cli ProviderClient) *SMSGateway {
	if cfg.CountryCode == "" {
		cfg.CountryCode = defaultCountryCode
	}
	if cfg.MaxBodyLen <= 0 {
		cfg.MaxBodyLen = defaultMaxBodyLen
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSendTimeout
	}
	if cli == nil {
		cli = &httpProvider{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
	}
	return &SMSGateway{cfg: cfg, cli: cli}
}

// Send 发送一条短信。号码先本地规范化，非法号码不产生网络调用
func (g *SMSGateway) Send(ctx context.Context, phone, body string) (result SendResult) {
	defer func() {
		if r := recover(); r != nil {
			result = SendResult{Success: false, Reason: fmt.Sprintf("provider panic: %v", r)}
		}
	}()

	to, err := NormalizePhone(phone, g.cfg.CountryCode)
	if err != nil {
		return SendResult{Success: false, Reason: err.Error()}
	}
	if g.cfg.APIKey == "" {
		return SendResult{Success: false, Reason: "sms credentials not configured"}
	}
	if len(body) > g.cfg.MaxBodyLen {
		cut := g.cfg.MaxBodyLen
		// 不在多字节字符中间截断
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut]
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	if err := g.cli.Deliver(ctx, to, g.cfg.SenderID, body); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return SendResult{Success: false, Reason: "provider timeout"}
		}
		return SendResult{Success: false, Reason: err.Error()}
	}
	return SendResult{Success: true}
}

// NormalizePhone 将输入号码规范化为 国家码+9位本地号 的固定长度形式
func NormalizePhone(raw, countryCode string) (string, error) {
	if countryCode == "" {
		countryCode = defaultCountryCode
	}
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
	cleaned = strings.TrimPrefix(cleaned, "+")

	for _, r := range cleaned {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("invalid phone number %q", raw)
		}
	}

	switch {
	case strings.HasPrefix(cleaned, countryCode) && len(cleaned) == len(countryCode)+subscriberDigits:
		return cleaned, nil
	case strings.HasPrefix(cleaned, "0") && len(cleaned) == subscriberDigits+1:
		return countryCode + cleaned[1:], nil
	case len(cleaned) == subscriberDigits:
		return countryCode + cleaned, nil
	}
	return "", fmt.Errorf("invalid phone number %q", raw)
}

// httpProvider 默认 HTTP 供应商实现
type httpProvider struct {
	cfg    SMSConfig
	client *http.Client
}

func (p *httpProvider) Deliver(ctx context.Context, to, senderID, body string) error {
	if p.cfg.Endpoint == "" {
		return fmt.Errorf("sms endpoint not configured")
	}
	form := url.Values{}
	form.Set("to", to)
	form.Set("from", senderID)
	form.Set("message", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("apiKey", p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("provider rejected message: status %d", resp.StatusCode)
	}
	return nil
}
