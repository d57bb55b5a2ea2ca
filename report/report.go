// Package report renders audit results as Markdown for people reading an
// audit rather than processing it.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"

	"github.com/hazyhaar/consentcrawl/consent"
)

// Renderer converts audit results to Markdown. It is safe for concurrent use.
type Renderer struct {
	md *converter.Converter
}

// New returns a Renderer.
func New() *Renderer {
	return &Renderer{
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Render writes the full report of one result.
func (rd *Renderer) Render(w io.Writer, r consent.AuditResult) error {
	var b strings.Builder
	rd.result(&b, r)
	_, err := io.WriteString(w, b.String())
	return err
}

// Markdown returns the report of r.
func (rd *Renderer) Markdown(r consent.AuditResult) string {
	var b strings.Builder
	rd.result(&b, r)
	return b.String()
}

// RenderBatch writes a summary table of results followed by each report.
func (rd *Renderer) RenderBatch(w io.Writer, results []consent.AuditResult) error {
	var b strings.Builder
	b.WriteString("# Consent audit summary\n\n")
	row(&b, "Domain", "Status", "CMP", "Categories", "Vendors", "Cookies", "Tracking domains")
	rule(&b, 7)
	for _, r := range results {
		row(&b, r.DomainName, string(r.Status), orDash(r.BannerInfo.CMPType),
			fmt.Sprint(len(r.Categories)), fmt.Sprint(len(r.Vendors)),
			fmt.Sprint(len(r.Cookies)), fmt.Sprint(len(r.TrackingDomains)))
	}
	b.WriteString("\n")
	for _, r := range results {
		b.WriteString("---\n\n")
		rd.result(&b, r)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func (rd *Renderer) result(b *strings.Builder, r consent.AuditResult) {
	fmt.Fprintf(b, "# Consent audit: %s\n\n", orDash(r.DomainName))
	fmt.Fprintf(b, "- URL: %s\n", r.URL)
	fmt.Fprintf(b, "- Audited: %s\n", r.ExtractionDatetime.UTC().Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(b, "- Status: **%s**", r.Status)
	if r.StatusMsg != "" {
		fmt.Fprintf(b, " (%s)", r.StatusMsg)
	}
	b.WriteString("\n")
	fmt.Fprintf(b, "- Duration: %.1fs\n\n", float64(r.DurationMS)/1000)

	rd.banner(b, r.BannerInfo)
	categories(b, r.Categories)
	vendors(b, r.Vendors)
	cookies(b, r.Cookies)
	network(b, r)
	diagnostics(b, r.UIContext)
}

func (rd *Renderer) banner(b *strings.Builder, info consent.BannerInfo) {
	b.WriteString("## Banner\n\n")
	if !info.Detected {
		b.WriteString("No consent banner detected.\n\n")
		return
	}
	cmp := orDash(info.CMPBrand)
	if info.CMPType != "" && info.CMPBrand == "" {
		cmp = info.CMPType
	}
	fmt.Fprintf(b, "- CMP: %s\n- Detection: %s\n", cmp, info.DetectionMethod)
	if info.InIframe {
		fmt.Fprintf(b, "- In iframe: %s\n", orDash(info.IframeSrc))
	}
	if info.InShadowDOM {
		b.WriteString("- In shadow DOM\n")
	}
	b.WriteString("\n")

	if text := rd.bannerText(info); text != "" {
		for _, line := range strings.Split(text, "\n") {
			b.WriteString(strings.TrimRight("> "+line, " ") + "\n")
		}
		b.WriteString("\n")
	}

	if len(info.Buttons) > 0 {
		b.WriteString("### Buttons\n\n")
		row(b, "Text", "Role", "Visible", "Selector")
		rule(b, 4)
		for _, btn := range info.Buttons {
			row(b, orDash(btn.Text), string(btn.Role), yesNo(btn.IsVisible), code(btn.Selector))
		}
		b.WriteString("\n")
	}
}

// bannerText converts the stored banner HTML, falling back to its plain
// text when conversion fails or yields nothing.
func (rd *Renderer) bannerText(info consent.BannerInfo) string {
	if info.BannerHTML == "" {
		return strings.TrimSpace(info.BannerText)
	}
	md, err := rd.md.ConvertString(info.BannerHTML)
	if err != nil || strings.TrimSpace(md) == "" {
		return strings.TrimSpace(info.BannerText)
	}
	return strings.TrimSpace(md)
}

func categories(b *strings.Builder, cats []consent.CategoryInfo) {
	if len(cats) == 0 {
		return
	}
	fmt.Fprintf(b, "## Categories (%d)\n\n", len(cats))
	row(b, "Name", "Required", "Default", "Description")
	rule(b, 4)
	for _, c := range cats {
		def := "-"
		if c.DefaultEnabled != nil {
			def = onOff(*c.DefaultEnabled)
		}
		row(b, c.Name, yesNo(c.IsRequired), def, orDash(consent.Truncate(c.Description, 200)))
	}
	b.WriteString("\n")
}

func vendors(b *strings.Builder, list []consent.VendorInfo) {
	if len(list) == 0 {
		return
	}
	fmt.Fprintf(b, "## Vendors (%d)\n\n", len(list))
	row(b, "Name", "Purposes", "Legitimate interest", "Privacy policy")
	rule(b, 4)
	for _, v := range list {
		row(b, v.Name, orDash(strings.Join(v.Purposes, ", ")),
			orDash(strings.Join(v.LegitimateInterestPurposes, ", ")), orDash(v.PrivacyPolicyURL))
	}
	b.WriteString("\n")
}

func cookies(b *strings.Builder, list []consent.CookieDetail) {
	if len(list) == 0 {
		return
	}
	fmt.Fprintf(b, "## Declared cookies (%d)\n\n", len(list))
	row(b, "Name", "Domain", "Duration", "Purpose")
	rule(b, 4)
	for _, c := range list {
		row(b, code(c.Name), orDash(c.Domain), orDash(c.Duration), orDash(consent.Truncate(c.Purpose, 200)))
	}
	b.WriteString("\n")
}

func network(b *strings.Builder, r consent.AuditResult) {
	b.WriteString("## Network\n\n")
	list(b, "Third-party domains", r.ThirdPartyDomains)
	list(b, "Tracking domains", r.TrackingDomains)
	if len(r.ActualCookies) > 0 {
		fmt.Fprintf(b, "### Cookies set during the visit (%d)\n\n", len(r.ActualCookies))
		row(b, "Name", "Domain", "Secure", "HttpOnly")
		rule(b, 4)
		for _, c := range r.ActualCookies {
			row(b, code(c.Name), orDash(c.Domain), yesNo(c.Secure), yesNo(c.HTTPOnly))
		}
		b.WriteString("\n")
	}
}

func diagnostics(b *strings.Builder, ui consent.ConsentUIContext) {
	nav := ui.Navigation
	if nav == nil && len(ui.Errors) == 0 {
		return
	}
	b.WriteString("## Diagnostics\n\n")
	if nav != nil {
		fmt.Fprintf(b, "- Navigation: %s in %dms\n", nav.FinalState, nav.TotalDurationMS)
		for _, a := range nav.Attempts {
			line := fmt.Sprintf("  - %s: %s", a.Strategy, okFailed(a.Success))
			if a.ErrorMsg != "" {
				line += " (" + a.ErrorMsg + ")"
			}
			b.WriteString(line + "\n")
		}
	}
	for _, e := range ui.Errors {
		fmt.Fprintf(b, "- Error: %s\n", e)
	}
	b.WriteString("\n")
}

func list(b *strings.Builder, title string, items []string) {
	fmt.Fprintf(b, "### %s (%d)\n\n", title, len(items))
	if len(items) == 0 {
		b.WriteString("None.\n\n")
		return
	}
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
	b.WriteString("\n")
}

func row(b *strings.Builder, cells ...string) {
	b.WriteString("|")
	for _, c := range cells {
		b.WriteString(" " + cell(c) + " |")
	}
	b.WriteString("\n")
}

func rule(b *strings.Builder, n int) {
	b.WriteString("|" + strings.Repeat(" --- |", n) + "\n")
}

// cell makes s safe inside a table cell.
func cell(s string) string {
	s = consent.NormalizeSpace(s)
	return strings.ReplaceAll(s, "|", `\|`)
}

func code(s string) string {
	if s == "" {
		return "-"
	}
	return "`" + strings.ReplaceAll(s, "`", "'") + "`"
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func okFailed(v bool) string {
	if v {
		return "ok"
	}
	return "failed"
}
