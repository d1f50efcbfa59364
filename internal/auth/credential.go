// Package auth holds the bearer credential the console presents to the
// call server. The console only transports the token; signature
// verification is the server's job. Persistence of the credential belongs
// to an external store, the console keeps one in-memory reference and
// clears it on logout.
package auth

import (
	"errors"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoCredential is returned when a token is requested before login
var ErrNoCredential = errors.New("auth: no credential set")

// Claims are the operator fields carried in the bearer token
type Claims struct {
	AgentID   string `json:"agentId"`
	Extension string `json:"extension"`
	Name      string `json:"name"`
	jwt.RegisteredClaims
}

// Credential wraps a bearer token and the operator identity parsed from it
type Credential struct {
	mu     sync.RWMutex
	token  string
	claims Claims
}

// NewCredential creates an empty credential holder
func NewCredential() *Credential {
	return &Credential{}
}

// Set stores the token and extracts the operator identity from its claims.
// The token is decoded without verification; a token whose claims cannot
// be read is rejected.
func (c *Credential) Set(token string) error {
	parser := jwt.NewParser()
	claims := Claims{}
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return err
	}
	if claims.AgentID == "" && claims.Subject != "" {
		claims.AgentID = claims.Subject
	}

	c.mu.Lock()
	c.token = token
	c.claims = claims
	c.mu.Unlock()
	return nil
}

// Token returns the raw bearer token
func (c *Credential) Token() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.token == "" {
		return "", ErrNoCredential
	}
	return c.token, nil
}

// AgentID returns the operator's agent id from the token claims
func (c *Credential) AgentID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.claims.AgentID
}

// Extension returns the operator's extension from the token claims
func (c *Credential) Extension() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.claims.Extension
}

// Clear drops the in-memory credential on logout
func (c *Credential) Clear() {
	c.mu.Lock()
	c.token = ""
	c.claims = Claims{}
	c.mu.Unlock()
}
