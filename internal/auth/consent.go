package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"
)

const callbackPath = "/callback"

// Consent runs the installed-app OAuth flow: a loopback server receives the
// authorization code after the user approves access in a browser.
type Consent struct {
	Out io.Writer
	// Open, when set, is called with the authorization URL (for example to
	// launch a browser). The URL is always printed to Out.
	Open func(authURL string) error
}

type callbackResult struct {
	code string
	err  error
}

func (c Consent) Run(ctx context.Context, oc *oauth2.Config) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("starting callback listener: %w", err)
	}

	state, err := generateState()
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("generating state: %w", err)
	}

	cfg := *oc
	cfg.RedirectURL = "http://" + ln.Addr().String() + callbackPath

	results := make(chan callbackResult, 1)
	srv := &http.Server{
		Handler:           callbackRouter(state, results),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.ErrorContext(ctx, "callback server failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	if c.Out != nil {
		fmt.Fprintf(c.Out, "Open this URL to grant read-only Gmail and Calendar access:\n\n  %s\n\n", authURL)
	}
	if c.Open != nil {
		if err := c.Open(authURL); err != nil {
			slog.WarnContext(ctx, "failed to open authorization URL", "error", err)
		}
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-results:
		if res.err != nil {
			return nil, res.err
		}
		tok, err := cfg.Exchange(ctx, res.code)
		if err != nil {
			return nil, fmt.Errorf("exchanging authorization code: %w", err)
		}
		return tok, nil
	}
}

// callbackRouter serves the redirect target. Requests with the wrong state
// are rejected without ending the flow.
func callbackRouter(state string, results chan<- callbackResult) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET(callbackPath, func(c *gin.Context) {
		ctx := c.Request.Context()

		if errorParam := c.Query("error"); errorParam != "" {
			slog.WarnContext(ctx, "OAuth error", "error", errorParam, "description", c.Query("error_description"))
			deliver(results, callbackResult{err: fmt.Errorf("authorization denied: %s", errorParam)})
			c.String(http.StatusBadRequest, "Authorization failed: %s", errorParam)
			return
		}

		if got := c.Query("state"); got != state {
			slog.WarnContext(ctx, "state mismatch on oauth callback")
			c.String(http.StatusBadRequest, "Invalid state")
			return
		}

		code := c.Query("code")
		if code == "" {
			c.String(http.StatusBadRequest, "Missing authorization code")
			return
		}

		deliver(results, callbackResult{code: code})
		c.String(http.StatusOK, "Authorization complete. You can close this tab.")
	})

	return r
}

func deliver(results chan<- callbackResult, res callbackResult) {
	select {
	case results <- res:
	default:
	}
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
