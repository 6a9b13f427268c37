package notification

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	delivered []string
	bodies    []string
	err       error
}

func (s *stubProvider) Deliver(ctx context.Context, to, senderID, body string) error {
	if s.err != nil {
		return s.err
	}
	s.delivered = append(s.delivered, to)
	s.bodies = append(s.bodies, body)
	return nil
}

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"+254712345678", "254712345678", false},
		{"254712345678", "254712345678", false},
		{"0712345678", "254712345678", false},
		{"712345678", "254712345678", false},
		{"07 1234-5678", "254712345678", false},
		{"(071) 234.5678", "254712345678", false},
		{"not-a-number", "", true},
		{"12345", "", true},
		{"", "", true},
		{"07123456789012", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := NormalizePhone(tc.in, "254")
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGatewaySend(t *testing.T) {
	t.Run("rejects malformed number without network call", func(t *testing.T) {
		stub := &stubProvider{}
		gw := NewSMSGateway(SMSConfig{APIKey: "key"}, stub)

		res := gw.Send(context.Background(), "garbage", "hello")
		assert.False(t, res.Success)
		assert.Contains(t, res.Reason, "invalid phone number")
		assert.Empty(t, stub.delivered)
	})

	t.Run("missing credentials", func(t *testing.T) {
		stub := &stubProvider{}
		gw := NewSMSGateway(SMSConfig{}, stub)

		res := gw.Send(context.Background(), "0712345678", "hello")
		assert.False(t, res.Success)
		assert.Equal(t, "sms credentials not configured", res.Reason)
		assert.Empty(t, stub.delivered)
	})

	t.Run("truncates body to provider limit", func(t *testing.T) {
		stub := &stubProvider{}
		gw := NewSMSGateway(SMSConfig{APIKey: "key", MaxBodyLen: 20}, stub)

		res := gw.Send(context.Background(), "0712345678", strings.Repeat("x", 100))
		require.True(t, res.Success)
		require.Len(t, stub.bodies, 1)
		assert.Len(t, stub.bodies[0], 20)
	})

	t.Run("truncation does not split multi-byte runes", func(t *testing.T) {
		stub := &stubProvider{}
		gw := NewSMSGateway(SMSConfig{APIKey: "key", MaxBodyLen: 9}, stub)

		res := gw.Send(context.Background(), "0712345678", strings.Repeat("ü", 8))
		require.True(t, res.Success)
		require.Len(t, stub.bodies, 1)
		assert.True(t, utf8.ValidString(stub.bodies[0]))
		assert.Equal(t, strings.Repeat("ü", 4), stub.bodies[0])
	})

	t.Run("provider failure surfaces as reason", func(t *testing.T) {
		stub := &stubProvider{err: fmt.Errorf("provider rejected message: status 402")}
		gw := NewSMSGateway(SMSConfig{APIKey: "key"}, stub)

		res := gw.Send(context.Background(), "0712345678", "hello")
		assert.False(t, res.Success)
		assert.Contains(t, res.Reason, "provider rejected")
	})

	t.Run("success path normalizes recipient", func(t *testing.T) {
		stub := &stubProvider{}
		gw := NewSMSGateway(SMSConfig{APIKey: "key", Timeout: time.Second}, stub)

		res := gw.Send(context.Background(), "0712345678", "hello")
		require.True(t, res.Success)
		assert.Equal(t, []string{"254712345678"}, stub.delivered)
	})
}
