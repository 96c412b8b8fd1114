package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ticket-market/internal/services/ledger"
	"ticket-market/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	statusOK                    = "OK"
	statusRejected              = "REJECTED"
	statusInsufficientBalance   = "INSUFFICIENT_BALANCE"
	statusInsufficientAllowance = "INSUFFICIENT_ALLOWANCE"
	statusUnknownToken          = "UNKNOWN_TOKEN"
)

type ClientConfig struct {
	BaseURL string        `json:"baseUrl"`
	HMACKey string        `json:"hmacKey"`
	Timeout time.Duration `json:"timeout"`
}

// Client talks to an external ledger service over signed JSON requests.
type Client struct {
	// baseURL is the base url of the ledger service.
	baseURL *url.URL

	// hmacKey signs every request body.
	hmacKey string

	// hc is the http client.
	hc *http.Client

	// breaker stops calling the service after repeated transport failures.
	breaker *utils.CircuitBreaker

	logger *zap.Logger
}

type reply struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Balance   decimal.Decimal `json:"balance"`
		Allowance decimal.Decimal `json:"allowance"`
	} `json:"data"`
}

// NewClient creates new instance of the remote ledger client.
func NewClient(cfg ClientConfig, logger *zap.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("remote ledger: invalid base url %q", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL: base,
		hmacKey: cfg.HMACKey,
		hc: &http.Client{
			Timeout: timeout,
		},
		breaker: utils.NewCircuitBreaker("remote-ledger"),
		logger:  logger,
	}, nil
}

func (c *Client) Provider() ledger.Provider {
	return ledger.ProviderRemote
}

// CreateLedger returns a handle for token. The service is asked for the
// engine's balance once so that unknown tokens fail at approval time.
func (c *Client) CreateLedger(ctx context.Context, token string) (ledger.TokenLedger, error) {
	if token == "" {
		return nil, errors.New("remote ledger: empty token id")
	}
	t := &remoteToken{c: c, token: token}
	if _, err := t.BalanceOf(ctx, ""); err != nil && errors.Is(err, ledger.ErrUnknownToken) {
		return nil, err
	}
	return t, nil
}

// Native returns the native value channel of the service.
func (c *Client) Native() ledger.NativeChannel {
	return &remoteNative{c: c}
}

// call posts a signed request and decodes the reply. Only transport and
// protocol failures count against the circuit breaker.
func (c *Client) call(ctx context.Context, path string, body map[string]any) (*reply, error) {
	body["requestId"] = uuid.NewString()
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("remote ledger: json.Marshal: %w", err)
	}

	result, err := c.breaker.Execute(ctx, func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL.String()+path, bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("http.NewRequest: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("SignedHash", Hmac256(raw, []byte(c.hmacKey)))

		resp, err := c.hc.Do(req)
		if err != nil {
			return nil, fmt.Errorf("http.Do: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("http.StatusCode: %d", resp.StatusCode)
		}

		var r reply
		if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
			return nil, fmt.Errorf("json.Decode: %w", err)
		}
		return &r, nil
	})
	if err != nil {
		c.logger.Warn("remote ledger call failed", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("remote ledger %s: %w", path, err)
	}

	r := result.(*reply)
	switch r.Status {
	case statusOK:
		return r, nil
	case statusRejected:
		return nil, fmt.Errorf("%w: %s", ledger.ErrRejected, r.Message)
	case statusInsufficientBalance:
		return nil, fmt.Errorf("%w: %s", ledger.ErrInsufficientBalance, r.Message)
	case statusInsufficientAllowance:
		return nil, fmt.Errorf("%w: %s", ledger.ErrInsufficientAllowance, r.Message)
	case statusUnknownToken:
		return nil, fmt.Errorf("%w: %s", ledger.ErrUnknownToken, r.Message)
	default:
		return nil, fmt.Errorf("remote ledger %s: reply.Status: %v, reply.Message: %v", path, r.Status, r.Message)
	}
}

type remoteNative struct {
	c *Client
}

func (n *remoteNative) Receive(ctx context.Context, from string, amount decimal.Decimal) error {
	_, err := n.c.call(ctx, "/api/v1/native/receive", map[string]any{
		"from":   from,
		"amount": amount,
	})
	return err
}

func (n *remoteNative) Send(ctx context.Context, to string, amount decimal.Decimal) error {
	_, err := n.c.call(ctx, "/api/v1/native/send", map[string]any{
		"to":     to,
		"amount": amount,
	})
	return err
}

func (n *remoteNative) Balance(ctx context.Context, account string) (decimal.Decimal, error) {
	r, err := n.c.call(ctx, "/api/v1/native/balance", map[string]any{
		"account": account,
	})
	if err != nil {
		return decimal.Zero, err
	}
	return r.Data.Balance, nil
}

type remoteToken struct {
	c     *Client
	token string
}

func (t *remoteToken) path(op string) string {
	return "/api/v1/tokens/" + url.PathEscape(t.token) + "/" + op
}

func (t *remoteToken) BalanceOf(ctx context.Context, account string) (decimal.Decimal, error) {
	r, err := t.c.call(ctx, t.path("balance"), map[string]any{
		"account": account,
	})
	if err != nil {
		return decimal.Zero, err
	}
	return r.Data.Balance, nil
}

func (t *remoteToken) Allowance(ctx context.Context, owner, spender string) (decimal.Decimal, error) {
	r, err := t.c.call(ctx, t.path("allowance"), map[string]any{
		"owner":   owner,
		"spender": spender,
	})
	if err != nil {
		return decimal.Zero, err
	}
	return r.Data.Allowance, nil
}

func (t *remoteToken) Transfer(ctx context.Context, from, to string, amount decimal.Decimal) error {
	_, err := t.c.call(ctx, t.path("transfer"), map[string]any{
		"from":   from,
		"to":     to,
		"amount": amount,
	})
	return err
}

func (t *remoteToken) TransferFrom(ctx context.Context, spender, from, to string, amount decimal.Decimal) error {
	_, err := t.c.call(ctx, t.path("transfer-from"), map[string]any{
		"spender": spender,
		"from":    from,
		"to":      to,
		"amount":  amount,
	})
	return err
}
