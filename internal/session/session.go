// ABOUTME: Authenticated session holding the derived credentials and bearer token
// ABOUTME: Replaces ambient user state with an explicit value carried through context

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/2389/sealnote/internal/crypto"
	"github.com/2389/sealnote/internal/keys"
	"github.com/2389/sealnote/internal/store"
)

// MinCost is the lowest pw_cost accepted from a server at login.
const MinCost = 3000

var (
	// ErrNoSession indicates nobody is signed in.
	ErrNoSession = errors.New("not signed in")

	// ErrWeakParams indicates the server offered parameters below the accepted minimum.
	ErrWeakParams = errors.New("auth params below minimum strength")
)

// Authenticator is the part of the server API a session needs.
type Authenticator interface {
	BaseURL() string
	GetAuthParams(ctx context.Context, email string) (keys.AuthParams, error)
	SignIn(ctx context.Context, email, serverPassword string) (string, error)
	Register(ctx context.Context, email, serverPassword string, params keys.AuthParams) (string, error)
}

// Session is one signed-in account on one server.
// Credentials.ServerPassword is only set for a session created by Login or Register in
// this process; it is never persisted.
type Session struct {
	Email       string
	Server      string
	Params      keys.AuthParams
	Credentials keys.Credentials
	Token       string
}

// Manager returns an item key manager for the session's master key.
func (s *Session) Manager() (*crypto.Manager, error) {
	return crypto.NewManager(s.Credentials.MasterKey)
}

// ExpiresAt reads the exp claim of the bearer token. The signature cannot be checked
// by the client, so the token is parsed unverified. Returns false for tokens without an
// expiry or that are not JWTs.
func (s *Session) ExpiresAt() (time.Time, bool) {
	if s.Token == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.Token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Expired reports whether the token has an expiry at or before now.
func (s *Session) Expired(now time.Time) bool {
	exp, ok := s.ExpiresAt()
	return ok && !now.Before(exp)
}

// Login fetches the account's params, derives credentials and signs in.
func Login(ctx context.Context, auth Authenticator, email, password string) (*Session, error) {
	params, err := auth.GetAuthParams(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("fetching auth params: %w", err)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if params.Cost < MinCost {
		return nil, fmt.Errorf("%w: pw_cost %d is below %d", ErrWeakParams, params.Cost, MinCost)
	}

	creds, err := keys.DeriveCredentials(password, params)
	if err != nil {
		return nil, err
	}

	token, err := auth.SignIn(ctx, email, creds.ServerPassword)
	if err != nil {
		return nil, fmt.Errorf("signing in: %w", err)
	}

	return &Session{
		Email:       email,
		Server:      auth.BaseURL(),
		Params:      params,
		Credentials: creds,
		Token:       token,
	}, nil
}

// Register creates an account with fresh registration params built from defaults.
func Register(ctx context.Context, auth Authenticator, email, password string, defaults keys.Defaults) (*Session, error) {
	params, err := keys.NewRegistrationParams(email, defaults)
	if err != nil {
		return nil, err
	}

	creds, err := keys.DeriveCredentials(password, params)
	if err != nil {
		return nil, err
	}

	token, err := auth.Register(ctx, email, creds.ServerPassword, params)
	if err != nil {
		return nil, fmt.Errorf("registering: %w", err)
	}

	return &Session{
		Email:       email,
		Server:      auth.BaseURL(),
		Params:      params,
		Credentials: creds,
		Token:       token,
	}, nil
}

// Save persists the session in the local account row. The server password is dropped.
// When a different account is stored, every local item and the sync token are wiped
// first so nothing crosses accounts. reset reports whether that happened.
func Save(ctx context.Context, st store.Store, s *Session) (reset bool, err error) {
	params, err := json.Marshal(s.Params)
	if err != nil {
		return false, fmt.Errorf("encoding auth params: %w", err)
	}

	stored, err := st.LoadAccount(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return false, fmt.Errorf("loading account: %w", err)
	case !sameAccount(stored, s):
		if err := st.Reset(ctx); err != nil {
			return false, fmt.Errorf("clearing previous account: %w", err)
		}
		reset = true
	}

	err = st.SaveAccount(ctx, &store.Account{
		Email:      s.Email,
		ServerURL:  s.Server,
		ParamsJSON: string(params),
		Token:      s.Token,
		MasterKey:  s.Credentials.MasterKey,
	})
	return reset, err
}

// sameAccount compares identity only. A new token or re-derived key for the same
// email on the same server keeps local data.
func sameAccount(stored *store.Account, s *Session) bool {
	return strings.EqualFold(stored.Email, s.Email) &&
		strings.TrimSuffix(stored.ServerURL, "/") == strings.TrimSuffix(s.Server, "/")
}

// Load restores the persisted session. Returns ErrNoSession when nobody is signed in.
func Load(ctx context.Context, st store.Store) (*Session, error) {
	account, err := st.LoadAccount(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("loading account: %w", err)
	}

	var params keys.AuthParams
	if err := json.Unmarshal([]byte(account.ParamsJSON), &params); err != nil {
		return nil, fmt.Errorf("decoding auth params: %w", err)
	}

	return &Session{
		Email:       account.Email,
		Server:      account.ServerURL,
		Params:      params,
		Credentials: keys.Credentials{MasterKey: account.MasterKey},
		Token:       account.Token,
	}, nil
}

// Logout forgets the persisted session along with every local item and the sync
// token, so the next account starts from an empty database.
func Logout(ctx context.Context, st store.Store) error {
	if err := st.Reset(ctx); err != nil {
		return fmt.Errorf("clearing local data: %w", err)
	}
	return nil
}
