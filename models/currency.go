package models

import (
	"fmt"
	"strings"
)

type CurrencyKind uint8

const (
	CurrencyNative CurrencyKind = iota
	CurrencyToken
)

// Currency identifies how a listing settles: the native value unit or a
// fungible token held on an external ledger.
type Currency struct {
	Kind  CurrencyKind
	Token string
}

func Native() Currency {
	return Currency{Kind: CurrencyNative}
}

func Token(id string) Currency {
	return Currency{Kind: CurrencyToken, Token: id}
}

func (c Currency) IsNative() bool {
	return c.Kind == CurrencyNative
}

func (c Currency) String() string {
	if c.IsNative() {
		return "native"
	}
	return "token:" + c.Token
}

// ParseCurrency accepts "native" or "token:<id>".
func ParseCurrency(s string) (Currency, error) {
	s = strings.TrimSpace(s)
	if s == "native" {
		return Native(), nil
	}
	id, ok := strings.CutPrefix(s, "token:")
	if !ok || id == "" {
		return Currency{}, fmt.Errorf("currency: invalid value %q", s)
	}
	return Token(id), nil
}

func (c Currency) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Currency) UnmarshalText(b []byte) error {
	parsed, err := ParseCurrency(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
