// Package consent holds the data model shared by every stage of a cookie
// consent audit: the detected banner and its buttons, the sections found in a
// preferences modal, the extracted categories, vendors and cookies, and the
// per-URL audit result.
//
// Every type is usable with partial data. A stage that finds nothing returns
// the zero value (or an explicit "not detected" marker) rather than an error.
package consent

import (
	"time"

	"github.com/hazyhaar/consentcrawl/surface"
)

// ButtonRole is the heuristic role of a banner button.
type ButtonRole string

const (
	RoleAcceptAll ButtonRole = "accept_all"
	RoleRejectAll ButtonRole = "reject_all"
	RoleSettings  ButtonRole = "settings"
	RoleInfo      ButtonRole = "info"
	RoleUnknown   ButtonRole = "unknown"
)

// DetectionMethod records which banner detection strategy produced a hit.
type DetectionMethod string

const (
	MethodNone              DetectionMethod = "none"
	MethodCMPSpecific       DetectionMethod = "cmp_specific"
	MethodGeneric           DetectionMethod = "generic"
	MethodTextBased         DetectionMethod = "text_based"
	MethodHardcodedDetector DetectionMethod = "hardcoded_detector"
	MethodShadowDOM         DetectionMethod = "shadow_dom"
)

// ButtonInfo describes one clickable element of a banner.
type ButtonInfo struct {
	Text      string     `json:"text"`
	Selector  string     `json:"selector"`
	Role      ButtonRole `json:"role"`
	AriaLabel string     `json:"aria_label,omitempty"`
	IsVisible bool       `json:"is_visible"`
}

// BannerInfo is the result of banner detection. When Detected is false the
// other fields are empty and DetectionMethod is MethodNone.
type BannerInfo struct {
	Detected        bool            `json:"detected"`
	CMPType         string          `json:"cmp_type,omitempty"`
	CMPBrand        string          `json:"cmp_brand,omitempty"`
	BannerHTML      string          `json:"banner_html"`
	BannerText      string          `json:"banner_text"`
	Buttons         []ButtonInfo    `json:"buttons"`
	InIframe        bool            `json:"in_iframe"`
	InShadowDOM     bool            `json:"in_shadow_dom"`
	IframeSrc       string          `json:"iframe_src,omitempty"`
	DetectionMethod DetectionMethod `json:"detection_method"`

	container surface.Locator
	scope     surface.Scope
}

// NotDetected returns the explicit "no banner" marker.
func NotDetected() BannerInfo {
	return BannerInfo{DetectionMethod: MethodNone, Buttons: []ButtonInfo{}}
}

// WithHandles attaches the live container and the scope (page or frame) it
// was found in. Handles are not serialized.
func (b BannerInfo) WithHandles(container surface.Locator, scope surface.Scope) BannerInfo {
	b.container = container
	b.scope = scope
	return b
}

// Container returns the banner container, or nil when the banner has no live
// handle (shadow DOM banners, decoded results).
func (b BannerInfo) Container() surface.Locator { return b.container }

// Scope returns the page or frame holding the banner, or nil.
func (b BannerInfo) Scope() surface.Scope { return b.scope }

// ButtonsWithRole returns the buttons classified with role, in banner order.
func (b BannerInfo) ButtonsWithRole(role ButtonRole) []ButtonInfo {
	var out []ButtonInfo
	for _, btn := range b.Buttons {
		if btn.Role == role {
			out = append(out, btn)
		}
	}
	return out
}

// HasRole reports whether any button carries role.
func (b BannerInfo) HasRole(role ButtonRole) bool {
	return len(b.ButtonsWithRole(role)) > 0
}

// SectionType is the structural shape of a discovered section.
type SectionType string

const (
	SectionTab         SectionType = "tab"
	SectionAccordion   SectionType = "accordion"
	SectionList        SectionType = "list"
	SectionNestedTab   SectionType = "nested_tab"
	SectionModalSwitch SectionType = "modal_switch"
	SectionUnknown     SectionType = "unknown"
)

// ContentType is what a section holds.
type ContentType string

const (
	ContentCategories ContentType = "categories"
	ContentVendors    ContentType = "vendors"
	ContentCookies    ContentType = "cookies"
	ContentPurposes   ContentType = "purposes"
	ContentPartners   ContentType = "partners"
	ContentUnknown    ContentType = "unknown"
)

// DiscoveryMethod is the discovery tier that produced a section.
type DiscoveryMethod string

const (
	DiscoveryARIA   DiscoveryMethod = "aria_semantic"
	DiscoveryVisual DiscoveryMethod = "visual_pattern"
	DiscoveryYAML   DiscoveryMethod = "yaml_fallback"
	DiscoveryHybrid DiscoveryMethod = "hybrid"
)

// Priority orders discovery methods for merge tie-breaks: ARIA > visual > static.
func (m DiscoveryMethod) Priority() int {
	switch m {
	case DiscoveryARIA:
		return 3
	case DiscoveryVisual:
		return 2
	case DiscoveryYAML:
		return 1
	}
	return 0
}

// DiscoveredSection is one candidate region of a preferences modal.
type DiscoveredSection struct {
	SectionType              SectionType     `json:"section_type"`
	ContentType              ContentType     `json:"content_type"`
	Locator                  string          `json:"locator,omitempty"`
	ActivationRequired       bool            `json:"activation_required"`
	ActivationLocator        string          `json:"activation_locator,omitempty"`
	DiscoveryMethod          DiscoveryMethod `json:"discovery_method"`
	Confidence               float64         `json:"confidence"`
	WasActivated             bool            `json:"was_activated"`
	ItemCountAfterActivation int             `json:"item_count_after_activation"`
	ContainsItems            bool            `json:"contains_items"`
	Metadata                 map[string]any  `json:"metadata,omitempty"`
}

// SetMeta sets a metadata key, allocating the map on first use.
func (s *DiscoveredSection) SetMeta(key string, v any) {
	if s.Metadata == nil {
		s.Metadata = make(map[string]any)
	}
	s.Metadata[key] = v
}

// MetaString returns a string metadata value or "".
func (s *DiscoveredSection) MetaString(key string) string {
	v, _ := s.Metadata[key].(string)
	return v
}

// SectionDiscoveryResult aggregates every discovered section and the best
// validated section per content type.
type SectionDiscoveryResult struct {
	Sections            []*DiscoveredSection `json:"sections"`
	Categories          *DiscoveredSection   `json:"categories_section,omitempty"`
	Vendors             *DiscoveredSection   `json:"vendors_section,omitempty"`
	Cookies             *DiscoveredSection   `json:"cookies_section,omitempty"`
	Purposes            *DiscoveredSection   `json:"purposes_section,omitempty"`
	DiscoveryDurationMS int64                `json:"discovery_duration_ms"`
	Errors              []string             `json:"errors,omitempty"`
}

// Best returns the best section recorded for ct, or nil.
func (r *SectionDiscoveryResult) Best(ct ContentType) *DiscoveredSection {
	if r == nil {
		return nil
	}
	switch ct {
	case ContentCategories:
		return r.Categories
	case ContentVendors:
		return r.Vendors
	case ContentCookies:
		return r.Cookies
	case ContentPurposes:
		return r.Purposes
	}
	return nil
}

// CategoryInfo is one consent purpose / category.
type CategoryInfo struct {
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	DefaultEnabled *bool    `json:"default_enabled,omitempty"`
	IsRequired     bool     `json:"is_required"`
	HasToggle      bool     `json:"has_toggle"`
	Purposes       []string `json:"purposes,omitempty"`
}

// VendorInfo is one third-party vendor listed by the CMP.
type VendorInfo struct {
	Name                       string   `json:"name"`
	Purposes                   []string `json:"purposes,omitempty"`
	LegitimateInterestPurposes []string `json:"legitimate_interest_purposes,omitempty"`
	SpecialPurposes            []string `json:"special_purposes,omitempty"`
	Features                   []string `json:"features,omitempty"`
	PrivacyPolicyURL           string   `json:"privacy_policy_url,omitempty"`
}

// CookieDetail is one cookie declared by the CMP.
type CookieDetail struct {
	Name     string `json:"name"`
	Domain   string `json:"domain,omitempty"`
	Duration string `json:"duration,omitempty"`
	Purpose  string `json:"purpose,omitempty"`
	Category string `json:"category,omitempty"`
}

// NavigationState is a state of the settings navigation machine.
type NavigationState string

const (
	StateBannerDetected     NavigationState = "BANNER_DETECTED"
	StateModalOpening       NavigationState = "MODAL_OPENING"
	StateModalReady         NavigationState = "MODAL_READY"
	StateExtractionComplete NavigationState = "EXTRACTION_COMPLETE"
	StateFailed             NavigationState = "FAILED"
)

// NavigationAttempt records one click strategy.
type NavigationAttempt struct {
	Strategy   string `json:"strategy"`
	Success    bool   `json:"success"`
	ErrorMsg   string `json:"error_msg,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// NavigationReport is the diagnostic trace of one navigation.
type NavigationReport struct {
	InitialState    NavigationState     `json:"initial_state"`
	FinalState      NavigationState     `json:"final_state"`
	Attempts        []NavigationAttempt `json:"attempts"`
	Transitions     []string            `json:"transitions"`
	TotalDurationMS int64               `json:"total_duration_ms"`
	Errors          []string            `json:"errors,omitempty"`
}

// ConsentUIContext tracks exploration of the consent UI for one audit.
type ConsentUIContext struct {
	CurrentDepth     int                     `json:"current_depth"`
	VisitedSelectors []string                `json:"visited_selectors"`
	ModalStack       []string                `json:"modal_stack"`
	Errors           []string                `json:"errors"`
	Navigation       *NavigationReport       `json:"navigation,omitempty"`
	Discovery        *SectionDiscoveryResult `json:"discovery,omitempty"`
}

// AddError appends a diagnostic message.
func (c *ConsentUIContext) AddError(msg string) {
	c.Errors = append(c.Errors, msg)
}

// AuditResult is the complete record of one URL audit.
type AuditResult struct {
	ID                 string           `json:"id"`
	URL                string           `json:"url"`
	DomainName         string           `json:"domain_name"`
	ExtractionDatetime time.Time        `json:"extraction_datetime"`
	BannerInfo         BannerInfo       `json:"banner_info"`
	Categories         []CategoryInfo   `json:"categories"`
	Vendors            []VendorInfo     `json:"vendors"`
	Cookies            []CookieDetail   `json:"cookies"`
	UIContext          ConsentUIContext `json:"ui_context"`
	ScreenshotFiles    []string         `json:"screenshot_files"`
	ActualCookies      []surface.Cookie `json:"actual_cookies"`
	ThirdPartyDomains  []string         `json:"third_party_domains"`
	TrackingDomains    []string         `json:"tracking_domains"`
	Status             Status           `json:"status"`
	StatusMsg          string           `json:"status_msg"`
	DurationMS         int64            `json:"duration_ms"`
}
