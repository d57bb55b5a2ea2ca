// Package catalog holds the static detection data of the audit engine: the
// CMP descriptor list used for banner detection, the per-CMP selector tables
// for modals, sections and content extraction, multilingual detection
// keywords and the tracking-domain blocklist.
//
// A Catalog is loaded once, either from the embedded defaults or from YAML
// files on disk, and is read-only afterwards. Selector tables are keyed by
// normalized CMP id (lower case, "-" separators, no "-cmp" suffix) with a
// "generic" entry, and "general" for modals.
package catalog

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/consentcrawl/cmp"
	"github.com/hazyhaar/consentcrawl/consent"
)

//go:embed data/*.yaml
var defaultFS embed.FS

// Action types of a CMP descriptor.
const (
	ActionIframe          = "iframe"
	ActionCSSSelector     = "css-selector"
	ActionCSSSelectorList = "css-selector-list"
)

// Action is one step of a CMP descriptor. Value holds the selector for
// iframe and css-selector; Values holds the candidates of a
// css-selector-list.
type Action struct {
	Type   string
	Value  string
	Values []string
}

// UnmarshalYAML accepts value as a scalar or a sequence.
func (a *Action) UnmarshalYAML(n *yaml.Node) error {
	var raw struct {
		Type  string    `yaml:"type"`
		Value yaml.Node `yaml:"value"`
	}
	if err := n.Decode(&raw); err != nil {
		return err
	}
	a.Type = raw.Type
	switch raw.Value.Kind {
	case yaml.ScalarNode:
		a.Value = raw.Value.Value
	case yaml.SequenceNode:
		if err := raw.Value.Decode(&a.Values); err != nil {
			return fmt.Errorf("catalog: action %s: %w", raw.Type, err)
		}
	case 0:
	default:
		return fmt.Errorf("catalog: action %s: value must be a string or a list", raw.Type)
	}
	return nil
}

// CMP describes how to recognise one consent management platform.
type CMP struct {
	ID      string   `yaml:"id"`
	Brand   string   `yaml:"brand"`
	Actions []Action `yaml:"actions"`
}

// CategoryPattern locates consent categories inside a preferences modal.
type CategoryPattern struct {
	Container      string `yaml:"container"`
	Item           string `yaml:"item"`
	Name           string `yaml:"name"`
	NameInButton   bool   `yaml:"name_in_button"`
	Description    string `yaml:"description"`
	ExpandButton   string `yaml:"expand_button"`
	RequiredMarker string `yaml:"required_marker"`
	Toggle         string `yaml:"toggle"`
}

// VendorPattern locates vendors, optionally behind a tab or link.
type VendorPattern struct {
	TabButton          string `yaml:"tab_button"`
	VendorLink         string `yaml:"vendor_link"`
	Container          string `yaml:"container"`
	Item               string `yaml:"item"`
	Name               string `yaml:"name"`
	Purposes           string `yaml:"purposes"`
	LegitimateInterest string `yaml:"legitimate_interest"`
	PrivacyLink        string `yaml:"privacy_link"`
}

// CookiePattern locates declared cookies.
type CookiePattern struct {
	TabButton   string `yaml:"tab_button"`
	Container   string `yaml:"container"`
	Item        string `yaml:"item"`
	Name        string `yaml:"name"`
	Domain      string `yaml:"domain"`
	Duration    string `yaml:"duration"`
	Description string `yaml:"description"`
}

// SectionHint is a known section layout of one CMP.
type SectionHint struct {
	Content    consent.ContentType `yaml:"content"`
	Type       consent.SectionType `yaml:"type"`
	Locator    string              `yaml:"locator"`
	Activation string              `yaml:"activation"`
	Confidence float64             `yaml:"confidence"`
}

// Keywords are the banner detection words of one language.
type Keywords struct {
	Cookies []string `yaml:"cookies"`
	Consent []string `yaml:"consent"`
}

// Catalog is the complete static configuration.
type Catalog struct {
	CMPs                   []CMP                      `yaml:"cmps"`
	Modals                 map[string][]string        `yaml:"modals"`
	Categories             map[string]CategoryPattern `yaml:"categories"`
	Vendors                map[string]VendorPattern   `yaml:"vendors"`
	Cookies                map[string]CookiePattern   `yaml:"cookies"`
	Sections               map[string][]SectionHint   `yaml:"sections"`
	DetectionKeywords      map[string]Keywords        `yaml:"detection_keywords"`
	GenericBannerSelectors []string                   `yaml:"generic_banner_selectors"`
	TrackingDomains        []string                   `yaml:"tracking_domains"`

	brands map[string]string
}

// Default parses the embedded catalog.
func Default() (*Catalog, error) {
	return loadFS(defaultFS, "data")
}

// MustDefault is Default for package initialisation and tests.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

// Load reads a catalog from a YAML file or from every *.yaml / *.yml file
// of a directory, merged in name order. Tables missing from the files are
// taken from the embedded defaults.
func Load(path string) (*Catalog, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	var c *Catalog
	if st.IsDir() {
		c, err = loadFS(os.DirFS(path), ".")
	} else {
		c, err = loadFiles(os.DirFS(filepath.Dir(path)), []string{filepath.Base(path)})
	}
	if err != nil {
		return nil, err
	}
	def, err := Default()
	if err != nil {
		return nil, err
	}
	c.fillFrom(def)
	c.index()
	return c, nil
}

func loadFS(fsys fs.FS, dir string) (*Catalog, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		names = append(names, filepath.ToSlash(filepath.Join(dir, e.Name())))
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("catalog: no yaml files in %s", dir)
	}
	sort.Strings(names)
	c, err := loadFiles(fsys, names)
	if err != nil {
		return nil, err
	}
	c.index()
	return c, nil
}

func loadFiles(fsys fs.FS, names []string) (*Catalog, error) {
	c := &Catalog{}
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("catalog: read %s: %w", name, err)
		}
		var part Catalog
		if err := yaml.Unmarshal(data, &part); err != nil {
			return nil, fmt.Errorf("catalog: parse %s: %w", name, err)
		}
		if err := part.validate(); err != nil {
			return nil, fmt.Errorf("catalog: %s: %w", name, err)
		}
		c.merge(&part)
	}
	c.applyDefaults()
	return c, nil
}

func (c *Catalog) validate() error {
	for i, m := range c.CMPs {
		if m.ID == "" {
			return fmt.Errorf("cmps[%d]: missing id", i)
		}
		for _, a := range m.Actions {
			switch a.Type {
			case ActionIframe, ActionCSSSelector:
				if a.Value == "" {
					return fmt.Errorf("cmp %s: %s action without value", m.ID, a.Type)
				}
			case ActionCSSSelectorList:
				if len(a.Values) == 0 {
					return fmt.Errorf("cmp %s: empty css-selector-list", m.ID)
				}
			default:
				return fmt.Errorf("cmp %s: unknown action type %q", m.ID, a.Type)
			}
		}
	}
	return nil
}

// merge adds the entries of o; later files override earlier keys.
func (c *Catalog) merge(o *Catalog) {
	c.CMPs = append(c.CMPs, o.CMPs...)
	c.GenericBannerSelectors = append(c.GenericBannerSelectors, o.GenericBannerSelectors...)
	c.TrackingDomains = append(c.TrackingDomains, o.TrackingDomains...)
	c.Modals = mergeMap(c.Modals, o.Modals)
	c.Categories = mergeMap(c.Categories, o.Categories)
	c.Vendors = mergeMap(c.Vendors, o.Vendors)
	c.Cookies = mergeMap(c.Cookies, o.Cookies)
	c.Sections = mergeMap(c.Sections, o.Sections)
	c.DetectionKeywords = mergeMap(c.DetectionKeywords, o.DetectionKeywords)
}

func mergeMap[V any](dst, src map[string]V) map[string]V {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]V, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// fillFrom copies every table that c lacks from def.
func (c *Catalog) fillFrom(def *Catalog) {
	if len(c.CMPs) == 0 {
		c.CMPs = def.CMPs
	}
	if len(c.Modals) == 0 {
		c.Modals = def.Modals
	}
	if len(c.Categories) == 0 {
		c.Categories = def.Categories
	}
	if len(c.Vendors) == 0 {
		c.Vendors = def.Vendors
	}
	if len(c.Cookies) == 0 {
		c.Cookies = def.Cookies
	}
	if len(c.Sections) == 0 {
		c.Sections = def.Sections
	}
	if len(c.DetectionKeywords) == 0 {
		c.DetectionKeywords = def.DetectionKeywords
	}
	if len(c.TrackingDomains) == 0 {
		c.TrackingDomains = def.TrackingDomains
	}
}

func (c *Catalog) applyDefaults() {
	if c.Modals == nil {
		c.Modals = map[string][]string{}
	}
	if c.Categories == nil {
		c.Categories = map[string]CategoryPattern{}
	}
	if c.Vendors == nil {
		c.Vendors = map[string]VendorPattern{}
	}
	if c.Cookies == nil {
		c.Cookies = map[string]CookiePattern{}
	}
	if c.Sections == nil {
		c.Sections = map[string][]SectionHint{}
	}
	if c.DetectionKeywords == nil {
		c.DetectionKeywords = map[string]Keywords{}
	}
	for k, hints := range c.Sections {
		for i := range hints {
			if hints[i].Type == "" {
				hints[i].Type = consent.SectionList
			}
			if hints[i].Confidence <= 0 {
				hints[i].Confidence = 0.9
			}
		}
		c.Sections[k] = hints
	}
	for i, d := range c.TrackingDomains {
		c.TrackingDomains[i] = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(d), "."))
	}
}

func (c *Catalog) index() {
	c.brands = make(map[string]string, len(c.CMPs))
	for _, m := range c.CMPs {
		id := cmp.Normalize(m.ID)
		if _, ok := c.brands[id]; !ok {
			c.brands[id] = m.Brand
		}
	}
}

// Brand returns the display name of a CMP, or "". The id is normalized.
func (c *Catalog) Brand(id string) string { return c.brands[cmp.Normalize(id)] }

// ModalSelectors returns the preferences-modal selectors of a CMP.
func (c *Catalog) ModalSelectors(cmp string) []string {
	if cmp == "" {
		return nil
	}
	return c.Modals[cmp]
}

// GeneralModalSelectors returns the CMP-independent modal selectors.
func (c *Catalog) GeneralModalSelectors() []string { return c.Modals["general"] }

// CategoryPatterns returns the category patterns to try for cmp: its own
// entry, then the generic one.
func (c *Catalog) CategoryPatterns(cmp string) []CategoryPattern {
	return lookup(c.Categories, cmp, "generic")
}

// VendorPatterns returns the vendor patterns to try for cmp: its own entry,
// the IAB TCF layout, then the generic one.
func (c *Catalog) VendorPatterns(cmp string) []VendorPattern {
	return lookup(c.Vendors, cmp, "iab_tcf", "generic")
}

// CookiePatterns returns the cookie patterns to try for cmp.
func (c *Catalog) CookiePatterns(cmp string) []CookiePattern {
	return lookup(c.Cookies, cmp, "generic")
}

// SectionHints returns the known section layouts of cmp.
func (c *Catalog) SectionHints(cmp string) []SectionHint {
	if cmp == "" {
		return nil
	}
	return c.Sections[cmp]
}

func lookup[V any](m map[string]V, keys ...string) []V {
	var out []V
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		if v, ok := m[k]; ok {
			out = append(out, v)
		}
	}
	return out
}

// Keywords returns the cookie then consent detection words for each
// language, in language order, without duplicates.
func (c *Catalog) Keywords(langs []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, lang := range langs {
		kw, ok := c.DetectionKeywords[lang]
		if !ok {
			continue
		}
		for _, list := range [][]string{kw.Cookies, kw.Consent} {
			for _, w := range list {
				if w != "" && !seen[w] {
					seen[w] = true
					out = append(out, w)
				}
			}
		}
	}
	return out
}

// IsTracking reports whether host equals a blocklisted domain or is one of
// its subdomains.
func (c *Catalog) IsTracking(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, d := range c.TrackingDomains {
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
