// Package auth implements the username/password handshake used by
// the Authenticate command, which must succeed before Select,
// Publish, or Subscribe are honored.
package auth

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/exardb/exar/config"
	"github.com/exardb/exar/exarerr"
)

// Provider authenticates a client's Authenticate command.
type Provider interface {
	Authenticate(ctx context.Context, username, password string) error
}

// openProvider accepts every credential; used when the server config
// carries no username/password.
type openProvider struct{}

func (openProvider) Authenticate(context.Context, string, string) error { return nil }

// staticProvider checks a single configured username against a
// bcrypt hash of the configured password.
type staticProvider struct {
	username string
	hash     []byte
}

func (p *staticProvider) Authenticate(_ context.Context, username, password string) error {
	if username != p.username {
		return exarerr.New(exarerr.AuthenticationError, "unknown username")
	}
	if err := bcrypt.CompareHashAndPassword(p.hash, []byte(password)); err != nil {
		return exarerr.New(exarerr.AuthenticationError, "invalid credentials")
	}
	return nil
}

// FromConfig builds a Provider from cfg's server-level username and
// password. If either is empty, authentication is a no-op.
func FromConfig(cfg *config.Config) (Provider, error) {
	if cfg.Username == "" || cfg.Password == "" {
		return openProvider{}, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, exarerr.Wrap(exarerr.IoError, err)
	}
	return &staticProvider{username: cfg.Username, hash: hash}, nil
}
