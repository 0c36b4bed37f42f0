package deployments

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

type ruleFile struct {
	Groups []struct {
		Name  string `yaml:"name"`
		Rules []struct {
			Alert  string            `yaml:"alert"`
			Record string            `yaml:"record"`
			Expr   string            `yaml:"expr"`
			Labels map[string]string `yaml:"labels"`
		} `yaml:"rules"`
	} `yaml:"groups"`
}

func TestGrafanaDashboardJSONIsValid(t *testing.T) {
	content := readAsset(t, "grafana", "dataagent_dashboard.json")

	var decoded struct {
		Title  string `json:"title"`
		Panels []struct {
			Title   string `json:"title"`
			Targets []struct {
				Expr string `json:"expr"`
			} `json:"targets"`
		} `json:"panels"`
	}
	if err := json.Unmarshal(content, &decoded); err != nil {
		t.Fatalf("dashboard JSON parse error: %v", err)
	}
	if strings.TrimSpace(decoded.Title) == "" {
		t.Fatal("dashboard title is required")
	}
	if len(decoded.Panels) == 0 {
		t.Fatal("dashboard must include at least one panel")
	}
	for _, panel := range decoded.Panels {
		if len(panel.Targets) == 0 {
			t.Fatalf("panel %q has no targets", panel.Title)
		}
		for _, target := range panel.Targets {
			if !strings.Contains(target.Expr, "dataagent") {
				t.Fatalf("panel %q target %q does not reference a dataagent series", panel.Title, target.Expr)
			}
		}
	}
}

func TestPrometheusRulesContainExpectedAlerts(t *testing.T) {
	rules := readRules(t, "dataagent_rules.yaml")

	alerts := map[string]string{}
	for _, group := range rules.Groups {
		for _, rule := range group.Rules {
			if rule.Alert == "" {
				continue
			}
			if rule.Labels["severity"] == "" {
				t.Fatalf("alert %q missing severity label", rule.Alert)
			}
			alerts[rule.Alert] = rule.Expr
		}
	}

	required := map[string]string{
		"DataAgentPromptFailureRatioHigh": "dataagent:slo_prompt_failure_ratio_15m",
		"DataAgentExecutorLatencyP95High": "dataagent:slo_executor_latency_seconds_p95",
		"DataAgentLLMErrorsHigh":          "dataagent:slo_llm_error_ratio_15m",
		"DataAgentLLMSpendHigh":           "dataagent:slo_llm_cost_usd_1h",
		"DataAgentArchivesMissing":        "dataagent:slo_integrity_missing_archives_24h",
		"DataAgentHTTPErrorRateHigh":      "dataagent:slo_http_error_rate_5m",
	}
	for name, series := range required {
		expr, ok := alerts[name]
		if !ok {
			t.Fatalf("rules missing alert %q", name)
		}
		if !strings.Contains(expr, series) {
			t.Fatalf("alert %q expr %q does not reference %q", name, expr, series)
		}
	}
}

func TestPrometheusScrapeExampleContainsMetricsPathAndRules(t *testing.T) {
	content := readAsset(t, "prometheus", "prometheus-scrape.example.yaml")

	var decoded struct {
		RuleFiles     []string `yaml:"rule_files"`
		ScrapeConfigs []struct {
			JobName     string `yaml:"job_name"`
			MetricsPath string `yaml:"metrics_path"`
		} `yaml:"scrape_configs"`
	}
	if err := yaml.Unmarshal(content, &decoded); err != nil {
		t.Fatalf("scrape example parse error: %v", err)
	}

	if !containsString(decoded.RuleFiles, "dataagent_rules.yaml") {
		t.Fatal("scrape example missing dataagent rule file reference")
	}
	if !containsString(decoded.RuleFiles, "dataagent_recording_rules.yaml") {
		t.Fatal("scrape example missing dataagent recording rule file reference")
	}
	if len(decoded.ScrapeConfigs) != 1 {
		t.Fatalf("expected one scrape config, got %d", len(decoded.ScrapeConfigs))
	}
	if decoded.ScrapeConfigs[0].JobName != "dataagent-api" {
		t.Fatalf("unexpected job name %q", decoded.ScrapeConfigs[0].JobName)
	}
	if decoded.ScrapeConfigs[0].MetricsPath != "/v1/metrics" {
		t.Fatalf("unexpected metrics path %q", decoded.ScrapeConfigs[0].MetricsPath)
	}
}

func TestPrometheusRecordingRulesContainExpectedRecords(t *testing.T) {
	rules := readRules(t, "dataagent_recording_rules.yaml")

	records := map[string]bool{}
	for _, group := range rules.Groups {
		for _, rule := range group.Rules {
			if rule.Record != "" {
				records[rule.Record] = true
			}
		}
	}

	required := []string{
		"dataagent:slo_prompt_failure_ratio_15m",
		"dataagent:slo_executor_latency_seconds_p95",
		"dataagent:slo_sql_latency_ms_p95",
		"dataagent:slo_llm_error_ratio_15m",
		"dataagent:slo_llm_cost_usd_1h",
		"dataagent:slo_gate_rejection_ratio_1h",
		"dataagent:slo_integrity_missing_archives_24h",
		"dataagent:slo_http_error_rate_5m",
	}
	for _, name := range required {
		if !records[name] {
			t.Fatalf("recording rules missing record %q", name)
		}
	}
}

func TestAlertmanagerExampleContainsSeverityRouting(t *testing.T) {
	content := readAsset(t, "alertmanager", "alertmanager.example.yaml")

	var decoded struct {
		Route struct {
			Receiver string   `yaml:"receiver"`
			GroupBy  []string `yaml:"group_by"`
			Routes   []struct {
				Matchers []string `yaml:"matchers"`
				Receiver string   `yaml:"receiver"`
			} `yaml:"routes"`
		} `yaml:"route"`
		Receivers []struct {
			Name string `yaml:"name"`
		} `yaml:"receivers"`
		InhibitRules []map[string]any `yaml:"inhibit_rules"`
	}
	if err := yaml.Unmarshal(content, &decoded); err != nil {
		t.Fatalf("alertmanager example parse error: %v", err)
	}

	if decoded.Route.Receiver != "dataagent-default" {
		t.Fatalf("unexpected default receiver %q", decoded.Route.Receiver)
	}
	if strings.Join(decoded.Route.GroupBy, ",") != "alertname,service,severity" {
		t.Fatalf("unexpected group_by %v", decoded.Route.GroupBy)
	}

	routed := map[string]string{}
	for _, route := range decoded.Route.Routes {
		for _, matcher := range route.Matchers {
			routed[matcher] = route.Receiver
		}
	}
	if routed[`severity="critical"`] != "dataagent-critical" {
		t.Fatal("critical alerts are not routed to dataagent-critical")
	}
	if routed[`severity="warning"`] != "dataagent-warning" {
		t.Fatal("warning alerts are not routed to dataagent-warning")
	}

	receivers := make([]string, 0, len(decoded.Receivers))
	for _, receiver := range decoded.Receivers {
		receivers = append(receivers, receiver.Name)
	}
	for _, name := range []string{"dataagent-default", "dataagent-critical", "dataagent-warning"} {
		if !containsString(receivers, name) {
			t.Fatalf("alertmanager example missing receiver %q", name)
		}
	}
	if len(decoded.InhibitRules) == 0 {
		t.Fatal("alertmanager example must define inhibit_rules")
	}
}

func readRules(t *testing.T, name string) ruleFile {
	t.Helper()
	var rules ruleFile
	if err := yaml.Unmarshal(readAsset(t, "prometheus", name), &rules); err != nil {
		t.Fatalf("parse %s: %v", name, err)
	}
	if len(rules.Groups) == 0 {
		t.Fatalf("%s has no rule groups", name)
	}
	return rules
}

func readAsset(t *testing.T, parts ...string) []byte {
	t.Helper()
	path := filepath.Join(append([]string{repoRoot(t), "deployments", "observability"}, parts...)...)
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return content
}

func containsString(values []string, want string) bool {
	for _, value := range values {
		if value == want {
			return true
		}
	}
	return false
}

func repoRoot(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), ".."))
}
