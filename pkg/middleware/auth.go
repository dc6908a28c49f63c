package middleware

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"slices"
	"strings"

	"github.com/Sternrassler/graph-core-go/pkg/pipeline"
	"github.com/Sternrassler/graph-core-go/pkg/sdkerrors"
	"github.com/rs/zerolog"
)

// AuthOptions are passed to the AuthenticationProvider for each request.
type AuthOptions struct {
	// Scopes requested for the token. Per-request scopes extend the stage defaults.
	Scopes []string

	// Claims is a JSON claims document to request in the token (CAE challenges).
	Claims string
}

// Kind implements pipeline.Option.
func (AuthOptions) Kind() pipeline.OptionKind { return pipeline.OptionAuth }

// AuthenticationProvider attaches credentials to a request.
type AuthenticationProvider interface {
	AuthenticateRequest(ctx context.Context, req *pipeline.Request, opts AuthOptions) error
}

// TokenSource returns an access token for the given scopes and claims.
type TokenSource func(ctx context.Context, scopes []string, claims string) (string, error)

// BearerTokenProvider sets "Authorization: Bearer <token>" from a TokenSource.
type BearerTokenProvider struct {
	Source TokenSource
}

// AuthenticateRequest implements AuthenticationProvider.
func (p *BearerTokenProvider) AuthenticateRequest(ctx context.Context, req *pipeline.Request, opts AuthOptions) error {
	if p.Source == nil {
		return sdkerrors.New(sdkerrors.CodeAuthenticationProviderMissing, "bearer token provider has no token source")
	}
	token, err := p.Source(ctx, opts.Scopes, opts.Claims)
	if err != nil {
		return fmt.Errorf("acquire token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// AuthenticationStage authenticates requests and answers a 401 with exactly
// one re-authenticated retry, honoring claims challenges.
type AuthenticationStage struct {
	provider AuthenticationProvider
	options  AuthOptions
	logger   zerolog.Logger
}

// NewAuthenticationStage creates an authentication stage. A nil provider is
// accepted; every request then fails with CodeAuthenticationProviderMissing.
func NewAuthenticationStage(provider AuthenticationProvider, opts AuthOptions, logger zerolog.Logger) *AuthenticationStage {
	return &AuthenticationStage{provider: provider, options: opts, logger: logger}
}

// Handle implements pipeline.Stage.
func (s *AuthenticationStage) Handle(ctx context.Context, req *pipeline.Request, next pipeline.Handler) (*http.Response, error) {
	if s.provider == nil {
		return nil, sdkerrors.New(sdkerrors.CodeAuthenticationProviderMissing, "no authentication provider configured")
	}

	opts := s.optionsFor(req)
	if err := s.provider.AuthenticateRequest(ctx, req, opts); err != nil {
		return nil, fmt.Errorf("authenticate request: %w", err)
	}

	resp, err := next.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || !req.IsBuffered() {
		return resp, nil
	}

	challenge := resp.Header.Values("WWW-Authenticate")
	pipeline.DrainBody(resp)

	retryReq, err := req.Clone()
	if err != nil {
		return nil, err
	}
	retryReq.Header.Del("Authorization")

	hasClaims := false
	if encoded, ok := claimsFromChallenge(challenge); ok {
		claims, err := decodeClaims(encoded)
		if err != nil {
			return nil, sdkerrors.Wrap(sdkerrors.CodeGeneralException, "decode claims challenge", err)
		}
		merged, err := mergeClaims(opts.Claims, claims)
		if err != nil {
			return nil, sdkerrors.Wrap(sdkerrors.CodeGeneralException, "merge claims challenge", err)
		}
		opts.Claims = merged
		retryReq.SetOption(opts)
		hasClaims = true
	}

	authChallengesTotal.WithLabelValues(fmt.Sprintf("%t", hasClaims)).Inc()
	s.logger.Debug().
		Str("url", req.URL.Redacted()).
		Bool("claims", hasClaims).
		Msg("Received 401, re-authenticating once")

	if err := s.provider.AuthenticateRequest(ctx, retryReq, opts); err != nil {
		return nil, fmt.Errorf("re-authenticate request: %w", err)
	}

	return next.Send(ctx, retryReq)
}

// optionsFor returns the stage defaults extended by per-request options.
// Scopes are only ever added, never replaced.
func (s *AuthenticationStage) optionsFor(req *pipeline.Request) AuthOptions {
	opts := AuthOptions{
		Scopes: append([]string(nil), s.options.Scopes...),
		Claims: s.options.Claims,
	}
	o, ok := req.Option(pipeline.OptionAuth)
	if !ok {
		return opts
	}
	ro, ok := o.(AuthOptions)
	if !ok {
		return opts
	}
	for _, scope := range ro.Scopes {
		if !slices.Contains(opts.Scopes, scope) {
			opts.Scopes = append(opts.Scopes, scope)
		}
	}
	if ro.Claims != "" {
		opts.Claims = ro.Claims
	}
	return opts
}

var claimsPattern = regexp.MustCompile(`(?i)\bclaims\s*=\s*"?([^",\s]+)"?`)

// claimsFromChallenge extracts the base64 claims parameter of a WWW-Authenticate header.
func claimsFromChallenge(values []string) (string, bool) {
	for _, v := range values {
		if m := claimsPattern.FindStringSubmatch(v); m != nil {
			return m[1], true
		}
	}
	return "", false
}

func decodeClaims(encoded string) (string, error) {
	encodings := []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding,
	}
	var lastErr error
	for _, enc := range encodings {
		decoded, err := enc.DecodeString(encoded)
		if err == nil {
			return string(decoded), nil
		}
		lastErr = err
	}
	return "", lastErr
}

// mergeClaims merges a challenge's claims into existing claims. Challenge
// values win on conflicts; nested objects are merged recursively.
func mergeClaims(existing, challenge string) (string, error) {
	if strings.TrimSpace(existing) == "" {
		return challenge, nil
	}

	var base map[string]any
	if err := json.Unmarshal([]byte(existing), &base); err != nil || base == nil {
		return challenge, nil
	}
	var add map[string]any
	if err := json.Unmarshal([]byte(challenge), &add); err != nil {
		return "", fmt.Errorf("parse challenge claims: %w", err)
	}

	mergeMaps(base, add)

	merged, err := json.Marshal(base)
	if err != nil {
		return "", fmt.Errorf("marshal merged claims: %w", err)
	}
	return string(merged), nil
}

func mergeMaps(dst, src map[string]any) {
	for k, v := range src {
		if sv, ok := v.(map[string]any); ok {
			if dv, ok := dst[k].(map[string]any); ok {
				mergeMaps(dv, sv)
				continue
			}
		}
		dst[k] = v
	}
}
