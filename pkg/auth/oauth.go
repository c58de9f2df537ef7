// Package auth manages the OAuth credential used to reach Google Calendar.
// Tokens are stored per profile; only Login talks to the browser.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/harrisonrobin/timebox/pkg/errs"
)

const (
	// ClientSecretsFile is the downloaded Google API credentials file, read
	// from the config directory.
	ClientSecretsFile = "credentials.json"

	// LocalhostAuthPort is where the login flow listens for the OAuth redirect.
	LocalhostAuthPort = "6789"

	tokensDir    = "tokens"
	loginTimeout = 5 * time.Minute
)

// GetConfig reads the client secrets in configDir and pins the redirect to
// the local callback listener.
func GetConfig(configDir string, scopes []string) (*oauth2.Config, error) {
	path := filepath.Join(configDir, ClientSecretsFile)
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file %s: %w", path, err)
	}

	config, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	config.RedirectURL = localRedirect(config.RedirectURL)
	return config, nil
}

// localRedirect forces localhost and out-of-band redirects onto LocalhostAuthPort.
func localRedirect(redirect string) string {
	if redirect == "" || redirect == "urn:ietf:wg:oauth:2.0:oob" {
		return fmt.Sprintf("http://localhost:%s/oauth2callback", LocalhostAuthPort)
	}
	u, err := url.Parse(redirect)
	if err != nil {
		log.Printf("Warning: could not parse RedirectURL %q: %v", redirect, err)
		return redirect
	}
	if u.Hostname() != "localhost" && u.Hostname() != "127.0.0.1" {
		log.Printf("Warning: RedirectURL %s is not a localhost callback", redirect)
		return redirect
	}
	if u.Port() != LocalhostAuthPort {
		u.Host = net.JoinHostPort(u.Hostname(), LocalhostAuthPort)
	}
	return u.String()
}

// TokenPath is where the token of profile is kept.
func TokenPath(configDir, profile string) string {
	if profile == "" {
		profile = "default"
	}
	return filepath.Join(configDir, tokensDir, profile+".json")
}

// HTTPClient returns a client authorized with the stored token of a profile.
// It never starts a browser flow: a missing token is ErrUnauthenticated.
func HTTPClient(ctx context.Context, config *oauth2.Config, tokenFile string) (*http.Client, error) {
	tok, err := tokenFromFile(tokenFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no token at %s, run login first: %w", tokenFile, errs.ErrUnauthenticated)
		}
		return nil, err
	}

	src := &savingTokenSource{
		base: config.TokenSource(ctx, tok),
		path: tokenFile,
		last: tok,
	}
	return oauth2.NewClient(ctx, src), nil
}

// savingTokenSource re-saves the token whenever the underlying source
// refreshes it, so the next run starts from the newest credential.
type savingTokenSource struct {
	base oauth2.TokenSource
	path string

	mu   sync.Mutex
	last *oauth2.Token
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil || tok.AccessToken != s.last.AccessToken || tok.RefreshToken != s.last.RefreshToken {
		if err := saveToken(s.path, tok); err != nil {
			log.Printf("Warning: could not save refreshed token: %v", err)
		}
		s.last = tok
	}
	return tok, nil
}

// Login runs the authorization code flow through a local web server and
// stores the resulting token.
func Login(ctx context.Context, config *oauth2.Config, tokenFile string, out io.Writer) error {
	tok, err := getTokenFromWeb(ctx, config, out)
	if err != nil {
		return fmt.Errorf("failed to get token from web: %w", err)
	}
	if err := saveToken(tokenFile, tok); err != nil {
		return err
	}
	fmt.Fprintf(out, "Saved authentication token to %s\n", tokenFile)
	return nil
}

// Logout removes the stored token of a profile.
func Logout(tokenFile string) error {
	if err := os.Remove(tokenFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func getTokenFromWeb(ctx context.Context, config *oauth2.Config, out io.Writer) (*oauth2.Token, error) {
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	listener, err := net.Listen("tcp", "localhost:"+LocalhostAuthPort)
	if err != nil {
		return nil, fmt.Errorf("failed to start listener on port %s: %w", LocalhostAuthPort, err)
	}
	defer listener.Close()

	server := &http.Server{
		Handler:      callbackHandler(codeCh, errCh),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
	defer server.Shutdown(context.Background())

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// AccessTypeOffline is required for a refresh token.
	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	fmt.Fprintf(out, "Open the following URL in your browser to authorize timebox:\n%s\n", authURL)

	ctx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()

	select {
	case code := <-codeCh:
		tok, err := config.Exchange(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("unable to retrieve token from Google: %w", err)
		}
		return tok, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, fmt.Errorf("authorization timed out, please try again: %w", ctx.Err())
	}
}

func callbackHandler(codeCh chan<- string, errCh chan<- error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != "state-token" {
			http.Error(w, "State mismatch", http.StatusBadRequest)
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "Authorization code not found", http.StatusBadRequest)
			select {
			case errCh <- fmt.Errorf("authorization code not found in redirect URL"):
			default:
			}
			return
		}
		fmt.Fprintf(w, "Authentication successful! You can close this window.")
		select {
		case codeCh <- code:
		default:
		}
	})
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("failed to decode token from file %s: %w", file, err)
	}
	return tok, nil
}

func saveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("could not create token directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to cache OAuth token to %s: %w", path, err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}
