package push

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2/jws"
	"golang.org/x/sync/singleflight"
)

const (
	messagingScope    = "https://www.googleapis.com/auth/firebase.messaging"
	assertionLifetime = time.Hour
	refreshMargin     = 5 * time.Minute
	jwtBearerGrant    = "urn:ietf:params:oauth:grant-type:jwt-bearer"
)

// CredentialError wraps any failure to obtain a bearer token: unreadable key
// material, a malformed key file, or a rejected exchange. A dispatch batch
// that hits one is aborted before any device is contacted.
type CredentialError struct {
	Op  string
	Err error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("push credentials: %s: %v", e.Op, e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// serviceAccount is the subset of the Google service-account key file we need.
type serviceAccount struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
	ProjectID   string `json:"project_id"`
}

// Credentials exchanges a signed service-account assertion for a short-lived
// bearer token and caches it until shortly before expiry. Concurrent cache
// misses trigger a single exchange (single-flight); callers never see a
// stale or expired token.
type Credentials struct {
	clientEmail string
	privateKey  *rsa.PrivateKey
	tokenURI    string
	projectID   string

	httpClient *http.Client
	now        func() time.Time // injectable for deterministic tests

	mu     sync.Mutex
	token  string
	expiry time.Time

	group singleflight.Group
}

// NewCredentials loads a service-account key file. tokenURI, when non-empty,
// overrides the key file's token endpoint (used by tests).
func NewCredentials(credentialsFile, tokenURI string) (*Credentials, error) {
	raw, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, &CredentialError{Op: "read key file", Err: err}
	}
	return newCredentials(raw, tokenURI)
}

func newCredentials(raw []byte, tokenURI string) (*Credentials, error) {
	var sa serviceAccount
	if err := json.Unmarshal(raw, &sa); err != nil {
		return nil, &CredentialError{Op: "parse key file", Err: err}
	}
	if sa.ClientEmail == "" || sa.PrivateKey == "" {
		return nil, &CredentialError{Op: "parse key file", Err: fmt.Errorf("missing client_email or private_key")}
	}

	key, err := parsePrivateKey(sa.PrivateKey)
	if err != nil {
		return nil, &CredentialError{Op: "parse private key", Err: err}
	}

	if tokenURI == "" {
		tokenURI = sa.TokenURI
	}
	if tokenURI == "" {
		tokenURI = "https://oauth2.googleapis.com/token"
	}

	return &Credentials{
		clientEmail: sa.ClientEmail,
		privateKey:  key,
		tokenURI:    tokenURI,
		projectID:   sa.ProjectID,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		now:         time.Now,
	}, nil
}

func parsePrivateKey(pemData string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("key is not RSA")
		}
		return rsaKey, nil
	}
	return x509.ParsePKCS1PrivateKey(block.Bytes)
}

// ProjectID returns the project the key file belongs to.
func (c *Credentials) ProjectID() string { return c.projectID }

// AccessToken returns a bearer token valid for outbound push calls,
// refreshing it when less than the safety margin remains.
func (c *Credentials) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" && c.now().Before(c.expiry.Add(-refreshMargin)) {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("token", func() (interface{}, error) {
		// Another flight may have refreshed while we waited.
		c.mu.Lock()
		if c.token != "" && c.now().Before(c.expiry.Add(-refreshMargin)) {
			token := c.token
			c.mu.Unlock()
			return token, nil
		}
		c.mu.Unlock()

		token, expiry, err := c.exchange(ctx)
		if err != nil {
			return "", err
		}

		c.mu.Lock()
		c.token = token
		c.expiry = expiry
		c.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// ForceRefresh drops the cached token so the next caller performs a fresh
// exchange.
func (c *Credentials) ForceRefresh() {
	c.mu.Lock()
	c.token = ""
	c.expiry = time.Time{}
	c.mu.Unlock()
}

func (c *Credentials) exchange(ctx context.Context) (string, time.Time, error) {
	now := c.now()
	claims := &jws.ClaimSet{
		Iss:   c.clientEmail,
		Scope: messagingScope,
		Aud:   c.tokenURI,
		Iat:   now.Unix(),
		Exp:   now.Add(assertionLifetime).Unix(),
	}
	header := &jws.Header{Algorithm: "RS256", Typ: "JWT"}

	assertion, err := jws.Encode(header, claims, c.privateKey)
	if err != nil {
		return "", time.Time{}, &CredentialError{Op: "sign assertion", Err: err}
	}

	form := url.Values{
		"grant_type": {jwtBearerGrant},
		"assertion":  {assertion},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, &CredentialError{Op: "build exchange request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", time.Time{}, &CredentialError{Op: "token exchange", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", time.Time{}, &CredentialError{Op: "token exchange", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		TokenType   string `json:"token_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", time.Time{}, &CredentialError{Op: "decode exchange response", Err: err}
	}
	if body.AccessToken == "" {
		return "", time.Time{}, &CredentialError{Op: "decode exchange response", Err: fmt.Errorf("empty access_token")}
	}

	return body.AccessToken, now.Add(time.Duration(body.ExpiresIn) * time.Second), nil
}
