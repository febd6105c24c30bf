package token_refresh

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"
)

// ExchangerStub issues numbered token pairs and records the refresh tokens it was given.
type ExchangerStub struct {
	mu        sync.Mutex
	exchanged []string
	err       error
	counter   int
}

func NewExchangerStub() *ExchangerStub {
	return &ExchangerStub{}
}

func (e *ExchangerStub) ExchangeRefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.exchanged = append(e.exchanged, refreshToken)
	if e.err != nil {
		return nil, e.err
	}
	e.counter++
	return &oauth2.Token{
		AccessToken:  fmt.Sprintf("access-%d", e.counter),
		RefreshToken: fmt.Sprintf("refresh-%d", e.counter),
	}, nil
}

func (e *ExchangerStub) SetError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

func (e *ExchangerStub) Exchanged() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	result := make([]string, len(e.exchanged))
	copy(result, e.exchanged)
	return result
}

func (e *ExchangerStub) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.exchanged = nil
	e.err = nil
	e.counter = 0
}
