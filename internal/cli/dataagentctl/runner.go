package dataagentctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("dataagentctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "dataagent API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 5*time.Minute), "HTTP timeout (e.g. 90s)")
	runMode := fs.String("run-mode", "", "run mode for ask (AssistantAPI, Autogen, CrewAI, Direct)")
	limit := fs.Int("limit", 0, "maximum sessions returned by sessions")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	command := strings.TrimSpace(fs.Arg(0))
	rest := fs.Args()[1:]
	method := http.MethodGet
	path := ""
	var body []byte
	switch command {
	case "health":
		path = "/v1/health"
	case "ready":
		path = "/v1/ready"
	case "run-modes":
		path = "/v1/run-modes"
	case "schema":
		path = "/v1/schema"
	case "sessions":
		path = "/v1/sessions"
		if *limit > 0 {
			path += fmt.Sprintf("?limit=%d", *limit)
		}
	case "session", "files":
		if len(rest) != 1 {
			_, _ = fmt.Fprintf(stderr, "%s requires a session id\n", command)
			return 2
		}
		path = "/v1/sessions/" + url.PathEscape(rest[0])
		if command == "files" {
			path += "/files"
		}
	case "ask", "translate":
		question := strings.TrimSpace(strings.Join(rest, " "))
		if question == "" {
			_, _ = fmt.Fprintf(stderr, "%s requires a prompt\n", command)
			return 2
		}
		method = http.MethodPost
		payload := map[string]string{"prompt": question}
		path = "/v1/translate"
		if command == "ask" {
			path = "/v1/prompts"
			if strings.TrimSpace(*runMode) != "" {
				payload["run_mode"] = strings.TrimSpace(*runMode)
			}
		}
		encoded, err := json.Marshal(payload)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "encode request: %v\n", err)
			return 1
		}
		body = encoded
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}

	endpoint := strings.TrimRight(*baseURL, "/") + path
	code, responseBody, err := doRequest(ctx, client, method, endpoint, *apiKey, body)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func doRequest(ctx context.Context, client *http.Client, method, url, apiKey string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: dataagentctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health               GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready                GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  run-modes            GET /v1/run-modes")
	_, _ = fmt.Fprintln(w, "  schema               GET /v1/schema")
	_, _ = fmt.Fprintln(w, "  sessions             GET /v1/sessions")
	_, _ = fmt.Fprintln(w, "  session <id>         GET /v1/sessions/{id}")
	_, _ = fmt.Fprintln(w, "  files <id>           GET /v1/sessions/{id}/files")
	_, _ = fmt.Fprintln(w, "  ask <prompt>         POST /v1/prompts")
	_, _ = fmt.Fprintln(w, "  translate <prompt>   POST /v1/translate")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
