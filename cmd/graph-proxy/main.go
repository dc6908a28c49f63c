// Command graph-proxy is a local sidecar that forwards requests through the
// SDK pipeline, adding authentication, retries, redirects and compression
// for clients that speak plain HTTP.
//
//	GET http://localhost:8080/graph/v1.0/me -> https://graph.microsoft.com/v1.0/me
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Sternrassler/graph-core-go/pkg/client"
	"github.com/Sternrassler/graph-core-go/pkg/logging"
	"github.com/Sternrassler/graph-core-go/pkg/metrics"
	"github.com/Sternrassler/graph-core-go/pkg/middleware"
	"github.com/Sternrassler/graph-core-go/pkg/pipeline"
	"github.com/joeshaw/envdecode"
	"github.com/rs/zerolog"
)

const routePrefix = "/graph"

// hopHeaders are not forwarded in either direction.
var hopHeaders = []string{"Connection", "Keep-Alive", "Proxy-Authorization", "Te", "Trailer", "Transfer-Encoding", "Upgrade"}

// Config is read from the environment.
type Config struct {
	Port    string        `env:"PORT,default=8080"`
	BaseURL string        `env:"GRAPH_BASE_URL,default=https://graph.microsoft.com"`
	Token   string        `env:"GRAPH_TOKEN"`
	Timeout time.Duration `env:"PROXY_TIMEOUT,default=60s"`
}

func main() {
	logCfg, err := logging.ConfigFromEnv()
	if err != nil {
		panic(err)
	}
	logging.Setup(logCfg)
	logger := logging.NewLogger("graph-proxy")

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	graph, err := newClient(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create client")
	}

	addr := ":" + cfg.Port
	logger.Info().Str("addr", addr).Str("base_url", cfg.BaseURL).Msg("Starting graph proxy")

	if err := http.ListenAndServe(addr, newMux(graph, cfg.Timeout, logger)); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

// newClient creates the forwarding client. Without a token the proxy passes
// the caller's Authorization header through unchanged.
func newClient(cfg Config) (*client.Client, error) {
	var provider middleware.AuthenticationProvider
	if cfg.Token != "" {
		token := cfg.Token
		provider = &middleware.BearerTokenProvider{
			Source: func(context.Context, []string, string) (string, error) { return token, nil },
		}
	}

	clientCfg := client.DefaultConfig(provider)
	clientCfg.BaseURL = cfg.BaseURL
	clientCfg.APIVersion = ""
	clientCfg.Anonymous = provider == nil
	return client.New(clientCfg)
}

func newMux(graph *client.Client, timeout time.Duration, logger zerolog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc(routePrefix+"/", proxyHandler(graph, timeout, logger))
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ok"}`)
}

func proxyHandler(graph *client.Client, timeout time.Duration, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// /graph/v1.0/me?$select=id -> /v1.0/me?$select=id
		path := strings.TrimPrefix(r.URL.Path, routePrefix)
		if r.URL.RawQuery != "" {
			path += "?" + r.URL.RawQuery
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "read request body", http.StatusBadRequest)
			return
		}
		if len(body) == 0 {
			body = nil
		}

		req, err := pipeline.NewRequest(r.Method, graph.URL(path), body)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
			return
		}
		req.Header = r.Header.Clone()
		for _, h := range hopHeaders {
			req.Header.Del(h)
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		resp, err := graph.Do(ctx, req)
		if err != nil {
			logger.Warn().Err(err).Str("path", r.URL.Path).Msg("Forwarding failed")
			http.Error(w, fmt.Sprintf("upstream request failed: %v", err), http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()

		for key, values := range resp.Header {
			for _, value := range values {
				w.Header().Add(key, value)
			}
		}
		for _, h := range hopHeaders {
			w.Header().Del(h)
		}
		w.WriteHeader(resp.StatusCode)

		if _, err := io.Copy(w, resp.Body); err != nil {
			logger.Debug().Err(err).Msg("Failed to write response")
		}
	}
}
