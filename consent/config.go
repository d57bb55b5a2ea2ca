package consent

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AuditConfig tunes one audit. Timeouts are milliseconds, matching the wire
// format of the HTTP API and the YAML config file.
type AuditConfig struct {
	MaxUIDepth           int      `json:"max_ui_depth" yaml:"max_ui_depth"`
	TimeoutBanner        int      `json:"timeout_banner" yaml:"timeout_banner"`
	TimeoutModal         int      `json:"timeout_modal" yaml:"timeout_modal"`
	TimeoutClick         int      `json:"timeout_click" yaml:"timeout_click"`
	PageLoadTimeout      int      `json:"page_load_timeout" yaml:"page_load_timeout"`
	Languages            []string `json:"languages" yaml:"languages"`
	SupportShadowDOM     *bool    `json:"support_shadow_dom,omitempty" yaml:"support_shadow_dom"`
	SupportNestedIframes *bool    `json:"support_nested_iframes,omitempty" yaml:"support_nested_iframes"`
	MaxIframeDepth       int      `json:"max_iframe_depth" yaml:"max_iframe_depth"`
	Screenshot           bool     `json:"screenshot" yaml:"screenshot"`
	BatchSize            int      `json:"batch_size" yaml:"batch_size"`
}

// Defaults returns the configuration used when nothing is overridden.
// Request bodies and config files are decoded on top of it, so a field left
// out keeps its default while an explicit max_ui_depth of 0 disables
// detailed extraction.
func Defaults() AuditConfig {
	c := AuditConfig{MaxUIDepth: 3}
	c.applyDefaults()
	return c
}

func (c *AuditConfig) applyDefaults() {
	if c.MaxUIDepth < 0 {
		c.MaxUIDepth = 0
	}
	if c.TimeoutBanner <= 0 {
		c.TimeoutBanner = 5000
	}
	if c.TimeoutModal <= 0 {
		c.TimeoutModal = 8000
	}
	if c.TimeoutClick <= 0 {
		c.TimeoutClick = 5000
	}
	if c.PageLoadTimeout <= 0 {
		c.PageLoadTimeout = 15000
	}
	if len(c.Languages) == 0 {
		c.Languages = []string{"en", "fr"}
	}
	if c.SupportShadowDOM == nil {
		c.SupportShadowDOM = boolPtr(true)
	}
	if c.SupportNestedIframes == nil {
		c.SupportNestedIframes = boolPtr(true)
	}
	if c.MaxIframeDepth <= 0 {
		c.MaxIframeDepth = 2
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 15
	}
}

// Normalize returns a copy of c with unset timeouts and lists filled.
// MaxUIDepth is kept as given.
func (c AuditConfig) Normalize() AuditConfig {
	c.Languages = append([]string(nil), c.Languages...)
	c.applyDefaults()
	return c
}

// ShadowDOM reports whether shadow roots are scanned.
func (c AuditConfig) ShadowDOM() bool { return c.SupportShadowDOM == nil || *c.SupportShadowDOM }

// NestedIframes reports whether child frames are searched.
func (c AuditConfig) NestedIframes() bool {
	return c.SupportNestedIframes == nil || *c.SupportNestedIframes
}

func (c AuditConfig) BannerTimeout() time.Duration { return ms(c.TimeoutBanner) }
func (c AuditConfig) ModalTimeout() time.Duration  { return ms(c.TimeoutModal) }
func (c AuditConfig) ClickTimeout() time.Duration  { return ms(c.TimeoutClick) }
func (c AuditConfig) LoadTimeout() time.Duration   { return ms(c.PageLoadTimeout) }

// LoadAuditConfig reads a YAML audit config. Fields missing from the file
// keep their defaults.
func LoadAuditConfig(path string) (AuditConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return AuditConfig{}, fmt.Errorf("consent: read config %s: %w", path, err)
	}
	cfg := Defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return AuditConfig{}, fmt.Errorf("consent: parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func boolPtr(b bool) *bool { return &b }
