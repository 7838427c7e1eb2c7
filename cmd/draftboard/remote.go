package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/okian/draftboard/internal/config"
)

const (
	defaultServerURL = "http://localhost:8080"
	remoteTimeout    = 3 * time.Minute
	tokenTTL         = 5 * time.Minute
)

// remote calls privileged routes on a running server.
type remote struct {
	server string
	token  string
	client *http.Client
}

func (r *remote) bindFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&r.server, "server", defaultServerURL, "Base URL of a running draftboard server")
	cmd.Flags().StringVar(&r.token, "token", "", "Bearer token (default: a short-lived JWT signed with the pipeline secret)")
}

// bearer returns the explicit token, or signs one with the configured secret.
func (r *remote) bearer(ctx context.Context) (string, error) {
	if r.token != "" {
		return r.token, nil
	}
	cfg, err := config.Load(ctx)
	if err != nil {
		return "", err
	}
	return signToken(cfg.PipelineSecret, time.Now())
}

// signToken returns an HS256 JWT for secret, or "" when no secret is set.
func signToken(secret string, now time.Time) (string, error) {
	if secret == "" {
		return "", nil
	}
	claims := jwt.RegisteredClaims{
		Subject:   "draftboard-cli",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// do sends the request and copies the JSON response to out. Non-2xx responses
// are returned as errors after the body is written.
func (r *remote) do(ctx context.Context, method, path string, query url.Values, body any, out io.Writer) error {
	token, err := r.bearer(ctx)
	if err != nil {
		return err
	}

	u := strings.TrimRight(r.server, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return err
	}
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := r.client
	if client == nil {
		client = &http.Client{Timeout: remoteTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	return nil
}

func newTriggerCmd() *cobra.Command {
	var (
		r       remote
		groups  []string
		formats []string
		force   bool
		noCache bool
	)

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Ask a running server to execute the pipeline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := buildRequest(groups, formats, force, !noCache)
			if err != nil {
				return err
			}
			return r.do(cmd.Context(), http.MethodPost, "/pipeline", nil, req, cmd.OutOrStdout())
		},
	}
	r.bindFlags(cmd)
	cmd.Flags().StringSliceVarP(&groups, "groups", "g", nil, "Groups to refresh (default all)")
	cmd.Flags().StringSliceVarP(&formats, "formats", "f", nil, "Formats to refresh (default all)")
	cmd.Flags().BoolVar(&force, "force", false, "Bypass fresh cache entries")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Do not write fetched data to the cache")
	return cmd
}

func newPurgeCmd() *cobra.Command {
	var (
		r          remote
		days       int
		clearCache bool
	)

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Ask a running server to purge old cache records and datasets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if days < 0 {
				return fmt.Errorf("days must not be negative, got %d", days)
			}
			q := url.Values{}
			q.Set("days", strconv.Itoa(days))
			q.Set("clearCache", strconv.FormatBool(clearCache))
			return r.do(cmd.Context(), http.MethodDelete, "/pipeline", q, nil, cmd.OutOrStdout())
		},
	}
	r.bindFlags(cmd)
	cmd.Flags().IntVar(&days, "days", 30, "Remove records older than this many days")
	cmd.Flags().BoolVar(&clearCache, "clear-cache", false, "Clear every cache record regardless of age")
	return cmd
}
