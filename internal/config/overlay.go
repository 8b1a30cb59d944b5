package config

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"sortie/internal/credential"
	"sortie/internal/pacing"
)

// EnvPrefix prefixes every environment override, e.g. SORTIE_HEC_TOKEN.
const EnvPrefix = "SORTIE"

// Keys that flags and environment variables can override.
const (
	KeyConcurrency        = "dispatch.concurrency"
	KeyMode               = "dispatch.mode"
	KeyMinDelay           = "dispatch.minDelay"
	KeyMaxDelay           = "dispatch.maxDelay"
	KeyRPS                = "dispatch.rps"
	KeyTimeout            = "dispatch.timeout"
	KeyFailureThreshold   = "dispatch.failureThreshold"
	KeyFailureMinAttempts = "dispatch.failureMinAttempts"
	KeyDestination        = "destination"
	KeyHECURL             = "hec.url"
	KeyHECToken           = "hec.token"
	KeyHECAuthScheme      = "hec.authScheme"
	KeyHost               = "collector.host"
	KeySource             = "collector.source"
	KeyIndex              = "collector.index"
	KeyWindow             = "timeline.window"
	KeyDemoScale          = "timeline.demoScale"
)

var overlayKeys = []string{
	KeyConcurrency, KeyMode, KeyMinDelay, KeyMaxDelay, KeyRPS, KeyTimeout,
	KeyFailureThreshold, KeyFailureMinAttempts, KeyDestination,
	KeyHECURL, KeyHECToken, KeyHECAuthScheme,
	KeyHost, KeySource, KeyIndex, KeyWindow, KeyDemoScale,
}

// NewViper returns a viper instance reading SORTIE_* environment variables.
// Dots in keys become underscores: hec.token is SORTIE_HEC_TOKEN.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range overlayKeys {
		_ = v.BindEnv(key)
	}
	return v
}

// BindFlags binds flags to overlay keys. flagNames maps key to flag name;
// missing flags are skipped.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet, flagNames map[string]string) error {
	for key, name := range flagNames {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

// Overlay applies every override set in v onto cfg. The hec.* keys edit
// the selected destination, creating it when it does not exist.
func Overlay(cfg *Config, v *viper.Viper) {
	d := &cfg.Dispatch
	if v.IsSet(KeyConcurrency) {
		d.Concurrency = v.GetInt(KeyConcurrency)
	}
	if v.IsSet(KeyMode) {
		d.Pacing.Mode = pacing.Mode(v.GetString(KeyMode))
	}
	if v.IsSet(KeyMinDelay) {
		d.Pacing.MinDelay = v.GetDuration(KeyMinDelay)
	}
	if v.IsSet(KeyMaxDelay) {
		d.Pacing.MaxDelay = v.GetDuration(KeyMaxDelay)
	}
	if v.IsSet(KeyRPS) {
		d.Pacing.RPS = v.GetInt(KeyRPS)
	}
	if v.IsSet(KeyTimeout) {
		d.Timeout = v.GetDuration(KeyTimeout)
	}
	if v.IsSet(KeyFailureThreshold) {
		d.FailurePolicy.Threshold = v.GetString(KeyFailureThreshold)
	}
	if v.IsSet(KeyFailureMinAttempts) {
		d.FailurePolicy.MinAttempts = v.GetInt(KeyFailureMinAttempts)
	}
	if v.IsSet(KeyDestination) {
		cfg.Destination = v.GetString(KeyDestination)
	}
	if v.IsSet(KeyHost) {
		cfg.Collector.Host = v.GetString(KeyHost)
	}
	if v.IsSet(KeySource) {
		cfg.Collector.Source = v.GetString(KeySource)
	}
	if v.IsSet(KeyIndex) {
		cfg.Collector.Index = v.GetString(KeyIndex)
	}
	if v.IsSet(KeyWindow) {
		cfg.Timeline.Window = v.GetDuration(KeyWindow)
	}
	if v.IsSet(KeyDemoScale) {
		cfg.Timeline.DemoScale = v.GetFloat64(KeyDemoScale)
	}

	if !v.IsSet(KeyHECURL) && !v.IsSet(KeyHECToken) && !v.IsSet(KeyHECAuthScheme) {
		return
	}
	dest := cfg.destination(cfg.Destination)
	if v.IsSet(KeyHECURL) {
		dest.URL = v.GetString(KeyHECURL)
	}
	if v.IsSet(KeyHECToken) {
		dest.Token = v.GetString(KeyHECToken)
	}
	if v.IsSet(KeyHECAuthScheme) {
		dest.AuthScheme = v.GetString(KeyHECAuthScheme)
	}
}

// destination returns the destination with id, appending it when missing.
func (c *Config) destination(id string) *credential.Destination {
	for i := range c.Destinations {
		if c.Destinations[i].ID == id {
			return &c.Destinations[i]
		}
	}
	c.Destinations = append(c.Destinations, credential.Destination{ID: id})
	return &c.Destinations[len(c.Destinations)-1]
}
