package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"sortie/internal/pacing"
	"sortie/internal/route"
)

func loadConfigFromString(t *testing.T, content string) *Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sortie.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}

const fullConfig = `
dispatch:
  concurrency: 4
  mode: spaced
  minDelay: 50ms
  maxDelay: 200ms
  timeout: 5s
  failurePolicy:
    threshold: "75%"
    minAttempts: 20
collector:
  host: sim-host
  index: security
destination: lab
destinations:
  - id: lab
    url: https://hec.lab.example:8088/services/collector
    token: lab-token
    authScheme: Bearer
routes:
  - source: custom_firewall
    format: raw
    sourcetype: custom_fw
  - source: okta_authentication
    format: json
    sourcetype: okta_override
timeline:
  window: 2m
  demoScale: 5
scenarios:
  - id: fw_probe
    name: Firewall probe
    phases:
      - name: Probe
        sources: [custom_firewall, custom_firewall]
        duration: 3
samples:
  okta_authentication:
    file: samples/okta.json
    mode: random
synthetic: false
`

func TestLoad_FullConfig(t *testing.T) {
	cfg := loadConfigFromString(t, fullConfig)
	cfg.ApplyDefaults()

	d := cfg.Dispatch
	if d.Concurrency != 4 {
		t.Errorf("concurrency = %d, want 4", d.Concurrency)
	}
	if d.Pacing.Mode != pacing.ModeSpaced || d.Pacing.MinDelay != 50*time.Millisecond || d.Pacing.MaxDelay != 200*time.Millisecond {
		t.Errorf("pacing = %+v", d.Pacing)
	}
	if d.Timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", d.Timeout)
	}
	if d.FailurePolicy.Threshold != "75%" || d.FailurePolicy.MinAttempts != 20 {
		t.Errorf("failure policy = %+v", d.FailurePolicy)
	}
	if cfg.Collector.Host != "sim-host" || cfg.Collector.Index != "security" {
		t.Errorf("collector = %+v", cfg.Collector)
	}
	if len(cfg.Destinations) != 1 || cfg.Destinations[0].AuthScheme != "Bearer" {
		t.Errorf("destinations = %+v", cfg.Destinations)
	}
	if cfg.Timeline.Window != 2*time.Minute || cfg.Timeline.DemoScale != 5 {
		t.Errorf("timeline = %+v", cfg.Timeline)
	}
	if cfg.Samples["okta_authentication"].Mode != "random" {
		t.Errorf("samples = %+v", cfg.Samples)
	}
	if cfg.SyntheticEnabled() {
		t.Error("synthetic should be disabled")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestConfig_RouterLayersOverDefaults(t *testing.T) {
	cfg := loadConfigFromString(t, fullConfig)

	r, err := cfg.Router()
	if err != nil {
		t.Fatalf("Router: %v", err)
	}
	okta, err := r.Resolve("okta_authentication")
	if err != nil {
		t.Fatal(err)
	}
	if okta.Sourcetype != "okta_override" {
		t.Errorf("okta sourcetype = %q, want override", okta.Sourcetype)
	}
	fw, err := r.Resolve("custom_firewall")
	if err != nil {
		t.Fatal(err)
	}
	if fw.Format != route.FormatRaw || fw.Subpath != route.SubpathRaw {
		t.Errorf("custom_firewall route = %+v", fw)
	}
	if _, err := r.Resolve("mimecast"); err != nil {
		t.Errorf("built-in route lost: %v", err)
	}
}

func TestConfig_Catalog(t *testing.T) {
	cfg := loadConfigFromString(t, fullConfig)

	cat, err := cfg.Catalog()
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	tpl, err := cat.Get("fw_probe")
	if err != nil {
		t.Fatalf("Get(fw_probe): %v", err)
	}
	if !tpl.Custom || tpl.Phases[0].Duration != 3*time.Minute || len(tpl.Phases[0].Sources) != 2 {
		t.Errorf("fw_probe = %+v", tpl)
	}
	if _, err := cat.Get("phishing_campaign"); err != nil {
		t.Errorf("built-in scenario lost: %v", err)
	}
}

func TestConfig_Registry(t *testing.T) {
	cfg := loadConfigFromString(t, `
samples:
  okta_authentication:
    file: okta.json
`)
	if err := os.WriteFile(filepath.Join(cfg.Dir(), "okta.json"), []byte(`[{"eventType":"login ${seq}"}]`), 0644); err != nil {
		t.Fatal(err)
	}

	reg, err := cfg.Registry()
	if err != nil {
		t.Fatalf("Registry: %v", err)
	}
	p, err := reg.Generate("okta_authentication")
	if err != nil {
		t.Fatal(err)
	}
	if p.(map[string]any)["eventType"] != "login 1" {
		t.Errorf("payload = %v", p)
	}
	if _, err := reg.Generate("netskope"); err != nil {
		t.Errorf("synthetic fallback should be on by default: %v", err)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Dispatch.Concurrency != 10 {
		t.Errorf("concurrency = %d, want 10", cfg.Dispatch.Concurrency)
	}
	if cfg.Dispatch.Pacing.Mode != pacing.ModeImmediate {
		t.Errorf("mode = %q", cfg.Dispatch.Pacing.Mode)
	}
	if cfg.Dispatch.FailurePolicy.Threshold != "90%" || cfg.Dispatch.FailurePolicy.MinAttempts != 10 {
		t.Errorf("failure policy = %+v", cfg.Dispatch.FailurePolicy)
	}
	if cfg.Destination != "default" {
		t.Errorf("destination = %q", cfg.Destination)
	}
	if cfg.Timeline.Window != 10*time.Minute {
		t.Errorf("window = %v", cfg.Timeline.Window)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
	s := cfg.Settings()
	if s.Concurrency != 10 || s.Destination != "default" || s.Window != 10*time.Minute {
		t.Errorf("settings = %+v", s)
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg, err := Parse([]byte(`
dispatch:
  concurrency: -1
  mode: spaced
  rps: 5
  failurePolicy:
    threshold: lots
destination: missing
destinations:
  - id: a
    url: not a url
    token: t
  - id: a
    url: https://ok.example
    token: t
routes:
  - source: x
    format: xml
scenarios:
  - name: no id
    phases: [{name: p, sources: [x]}]
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cfg.ApplyDefaults()

	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	msg := err.Error()
	for _, want := range []string{
		"dispatch.concurrency",
		"spaced",
		"failurePolicy",
		"invalid url",
		"defined twice",
		`destination "missing" is not defined`,
		"unknown wire format",
		"id is required",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("error should mention %q, got:\n%s", want, msg)
		}
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Parse([]byte("dispatch: [")); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestOverlay_Environment(t *testing.T) {
	t.Setenv("SORTIE_HEC_TOKEN", "env-token")
	t.Setenv("SORTIE_HEC_URL", "http://localhost:8088/services/collector")
	t.Setenv("SORTIE_DISPATCH_CONCURRENCY", "3")
	t.Setenv("SORTIE_TIMELINE_WINDOW", "30s")

	cfg := Default()
	Overlay(cfg, NewViper())

	if cfg.Dispatch.Concurrency != 3 {
		t.Errorf("concurrency = %d, want 3", cfg.Dispatch.Concurrency)
	}
	if cfg.Timeline.Window != 30*time.Second {
		t.Errorf("window = %v, want 30s", cfg.Timeline.Window)
	}
	if len(cfg.Destinations) != 1 {
		t.Fatalf("destinations = %+v", cfg.Destinations)
	}
	dest := cfg.Destinations[0]
	if dest.ID != "default" || dest.Token != "env-token" || dest.URL != "http://localhost:8088/services/collector" {
		t.Errorf("destination = %+v", dest)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestOverlay_EnvTokenEditsExistingDestination(t *testing.T) {
	t.Setenv("SORTIE_HEC_TOKEN", "rotated")

	cfg := loadConfigFromString(t, fullConfig)
	cfg.ApplyDefaults()
	Overlay(cfg, NewViper())

	if len(cfg.Destinations) != 1 {
		t.Fatalf("destinations = %+v", cfg.Destinations)
	}
	if cfg.Destinations[0].Token != "rotated" || cfg.Destinations[0].AuthScheme != "Bearer" {
		t.Errorf("destination = %+v", cfg.Destinations[0])
	}
}

func TestOverlay_Flags(t *testing.T) {
	flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
	flags.Int("concurrency", 10, "")
	flags.Duration("window", 0, "")
	flags.String("destination", "", "")
	if err := flags.Parse([]string{"--concurrency", "7", "--destination", "lab"}); err != nil {
		t.Fatal(err)
	}

	v := NewViper()
	err := BindFlags(v, flags, map[string]string{
		KeyConcurrency: "concurrency",
		KeyWindow:      "window",
		KeyDestination: "destination",
		KeyRPS:         "no-such-flag",
	})
	if err != nil {
		t.Fatal(err)
	}

	cfg := loadConfigFromString(t, fullConfig)
	cfg.ApplyDefaults()
	Overlay(cfg, v)

	if cfg.Dispatch.Concurrency != 7 {
		t.Errorf("concurrency = %d, want 7", cfg.Dispatch.Concurrency)
	}
	if cfg.Timeline.Window != 2*time.Minute {
		t.Errorf("unchanged flag overrode the file: window = %v", cfg.Timeline.Window)
	}
	if cfg.Destination != "lab" {
		t.Errorf("destination = %q", cfg.Destination)
	}
}
