package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/consentcrawl/audit"
	"github.com/hazyhaar/consentcrawl/catalog"
	"github.com/hazyhaar/consentcrawl/consent"
	"github.com/hazyhaar/consentcrawl/dbopen"
	"github.com/hazyhaar/consentcrawl/store"
	"github.com/hazyhaar/consentcrawl/surface"
	"github.com/hazyhaar/consentcrawl/surface/surfacetest"
)

const (
	site   = "https://93.184.216.34/"
	domain = "93.184.216.34"
)

const sitePage = `<body>
<div role="dialog" id="banner"><p>We use cookies to improve your visit.</p>
  <button id="manage">Manage preferences</button>
  <button id="accept">Accept all</button>
</div>
<div class="cookie-modal" id="prefs" style="display:none">
  <h2>Cookie preferences</h2><p>Choose which purposes you allow.</p>
  <fieldset id="purposes-list">
    <label><input type="checkbox" checked disabled> Necessary</label>
    <label><input type="checkbox"> Analytics</label>
  </fieldset>
</div>
</body>`

// sitePages opens a fresh copy of sitePage for every audit.
func sitePages(t *testing.T) audit.Opener {
	return func(context.Context) (surface.Page, error) {
		p := surfacetest.NewPage(t, site, sitePage)
		p.OnClick("#manage", func(p *surfacetest.Page) { p.Show("#prefs") })
		p.RequestLog = []string{site + "app.js", "https://www.google-analytics.com/collect"}
		return p, nil
	}
}

func testStore(t *testing.T) *store.Store {
	t.Helper()
	return &store.Store{DB: dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema))}
}

func testServer(t *testing.T, open audit.Opener, mutate func(*Options)) *httptest.Server {
	t.Helper()
	opts := Options{
		Auditor: audit.New(open, audit.Options{Catalog: catalog.MustDefault(), Config: consent.Defaults()}),
		Store:   testStore(t),
		Version: "test",
	}
	if mutate != nil {
		mutate(&opts)
	}
	ts := httptest.NewServer(New(opts).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, body string, header map[string]string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return v
}

func TestHealth(t *testing.T) {
	ready := true
	ts := testServer(t, sitePages(t), func(o *Options) { o.Ready = func() bool { return ready } })

	resp, body := do(t, "GET", ts.URL+"/health", "", nil)
	if resp.StatusCode != http.StatusOK || decode[map[string]string](t, body)["status"] != "healthy" {
		t.Fatalf("health = %d %s", resp.StatusCode, body)
	}

	ready = false
	resp, body = do(t, "GET", ts.URL+"/health", "", nil)
	got := decode[map[string]string](t, body)
	if resp.StatusCode != http.StatusOK || got["status"] != "degraded" || got["browser"] != "not_ready" {
		t.Fatalf("health = %d %s", resp.StatusCode, body)
	}
}

func TestRoot(t *testing.T) {
	ts := testServer(t, sitePages(t), nil)
	resp, body := do(t, "GET", ts.URL+"/", "", nil)
	got := decode[map[string]any](t, body)
	if resp.StatusCode != http.StatusOK || got["name"] != "consentcrawl" || got["version"] != "test" {
		t.Fatalf("root = %d %s", resp.StatusCode, body)
	}
}

func TestAudit_StoresResult(t *testing.T) {
	dir := t.TempDir()
	ts := testServer(t, sitePages(t), func(o *Options) { o.JSONDir = dir })

	resp, body := do(t, "POST", ts.URL+"/audit", `{"url":"`+site+`"}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("audit = %d %s", resp.StatusCode, body)
	}
	res := decode[consent.AuditResult](t, body)
	if res.Status != consent.StatusSuccessDetailed || res.DomainName != domain {
		t.Fatalf("result = %s %s (%s)", res.Status, res.DomainName, res.StatusMsg)
	}
	if len(res.ThirdPartyDomains) != 1 || res.ThirdPartyDomains[0] != "www.google-analytics.com" {
		t.Errorf("third party = %v", res.ThirdPartyDomains)
	}
	if _, err := os.Stat(filepath.Join(dir, "93_184_216_34.json")); err != nil {
		t.Errorf("json file: %v", err)
	}

	resp, body = do(t, "GET", ts.URL+"/audits", "", nil)
	list := decode[struct {
		Results []store.Summary `json:"results"`
		Count   int             `json:"count"`
	}](t, body)
	if resp.StatusCode != http.StatusOK || list.Count != 1 || list.Results[0].ID != audit.ResultID(domain) {
		t.Fatalf("list = %d %s", resp.StatusCode, body)
	}

	resp, body = do(t, "GET", ts.URL+"/audits/"+domain, "", nil)
	if resp.StatusCode != http.StatusOK || decode[consent.AuditResult](t, body).Status != consent.StatusSuccessDetailed {
		t.Fatalf("get by domain = %d %s", resp.StatusCode, body)
	}

	resp, body = do(t, "GET", ts.URL+"/audits/"+domain+"?format=markdown", "", nil)
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/markdown") {
		t.Fatalf("markdown = %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if !strings.Contains(string(body), domain) || !strings.Contains(string(body), "Analytics") {
		t.Errorf("markdown report:\n%s", body)
	}
}

func TestAudit_ConfigOverride(t *testing.T) {
	ts := testServer(t, sitePages(t), nil)
	resp, body := do(t, "POST", ts.URL+"/audit", `{"url":"`+site+`","config":{"max_ui_depth":0}}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("audit = %d %s", resp.StatusCode, body)
	}
	if got := decode[consent.AuditResult](t, body).Status; got != consent.StatusSuccessBasic {
		t.Fatalf("status = %s", got)
	}
}

func TestAudit_BadRequests(t *testing.T) {
	ts := testServer(t, sitePages(t), nil)
	for name, body := range map[string]string{
		"bad json":    `{"url":`,
		"empty url":   `{"url":""}`,
		"private url": `{"url":"http://127.0.0.1/admin"}`,
		"bad scheme":  `{"url":"ftp://example.com/"}`,
		"bad config":  `{"url":"` + site + `","config":{"max_ui_depth":"deep"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			resp, data := do(t, "POST", ts.URL+"/audit", body, nil)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d %s", resp.StatusCode, data)
			}
			if decode[map[string]string](t, data)["error"] == "" {
				t.Errorf("no error message: %s", data)
			}
		})
	}
}

func TestAudit_NotReady(t *testing.T) {
	ts := testServer(t, sitePages(t), func(o *Options) { o.Ready = func() bool { return false } })
	resp, body := do(t, "POST", ts.URL+"/audit", `{"url":"`+site+`"}`, nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d %s", resp.StatusCode, body)
	}
}

func TestAudit_Timeout(t *testing.T) {
	hang := func(ctx context.Context) (surface.Page, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	ts := testServer(t, hang, func(o *Options) { o.Timeout = 20 * time.Millisecond })
	resp, body := do(t, "POST", ts.URL+"/audit", `{"url":"`+site+`"}`, nil)
	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Fatalf("status = %d %s", resp.StatusCode, body)
	}
	resp, _ = do(t, "GET", ts.URL+"/audits/"+domain, "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("timed out audit was stored: %d", resp.StatusCode)
	}
}

func TestAudits_NoStore(t *testing.T) {
	ts := testServer(t, sitePages(t), func(o *Options) { o.Store = nil })
	resp, _ := do(t, "GET", ts.URL+"/audits", "", nil)
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	resp, _ = do(t, "GET", ts.URL+"/audits?limit=0", "", nil)
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestAudits_BadLimit(t *testing.T) {
	ts := testServer(t, sitePages(t), nil)
	for _, l := range []string{"0", "-3", "5000", "ten"} {
		resp, _ := do(t, "GET", ts.URL+"/audits?limit="+l, "", nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("limit=%s: status = %d", l, resp.StatusCode)
		}
	}
}

func TestNotFound(t *testing.T) {
	ts := testServer(t, sitePages(t), nil)
	resp, body := do(t, "GET", ts.URL+"/nowhere", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := decode[map[string]any](t, body); got["error"] != "Not found" {
		t.Errorf("body = %s", body)
	}

	resp, _ = do(t, "GET", ts.URL+"/audits/missing.example", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing result: status = %d", resp.StatusCode)
	}
}

func TestRequireKey(t *testing.T) {
	secret, key, err := NewKey("ops")
	if err != nil {
		t.Fatal(err)
	}
	ts := testServer(t, sitePages(t), func(o *Options) { o.Keys = []Key{key} })

	if resp, _ := do(t, "GET", ts.URL+"/health", "", nil); resp.StatusCode != http.StatusOK {
		t.Errorf("/health should stay open: %d", resp.StatusCode)
	}
	resp, _ := do(t, "GET", ts.URL+"/audits", "", nil)
	if resp.StatusCode != http.StatusUnauthorized || resp.Header.Get("WWW-Authenticate") == "" {
		t.Errorf("no key: %d", resp.StatusCode)
	}
	resp, _ = do(t, "GET", ts.URL+"/audits", "", map[string]string{"Authorization": "Bearer wrong"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong key: %d", resp.StatusCode)
	}
	resp, _ = do(t, "GET", ts.URL+"/audits", "", map[string]string{"Authorization": "Bearer " + secret})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("good key: %d", resp.StatusCode)
	}
}

func TestParseKeys(t *testing.T) {
	_, a, err := NewKey("a")
	if err != nil {
		t.Fatal(err)
	}
	_, b, err := NewKey("b")
	if err != nil {
		t.Fatal(err)
	}
	keys, err := ParseKeys(a.String() + ", " + b.String() + ",")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 || keys[0].ID != "a" || keys[1].ID != "b" {
		t.Fatalf("keys = %+v", keys)
	}
	for _, bad := range []string{"nohash", ":x", "a:not-bcrypt"} {
		if _, err := ParseKeys(bad); err == nil {
			t.Errorf("ParseKeys(%q) accepted", bad)
		}
	}
}

func TestMCP_AuditURL(t *testing.T) {
	st := testStore(t)
	s := New(Options{
		Auditor: audit.New(sitePages(t), audit.Options{Catalog: catalog.MustDefault(), Config: consent.Defaults()}),
		Store:   st,
	})
	impl := &mcp.Implementation{Name: "test", Version: "v0"}
	srv := mcp.NewServer(impl, nil)
	s.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()
	session, err := mcp.NewClient(impl, nil).Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer session.Close()

	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: "audit_url", Arguments: map[string]any{"url": site}})
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("tool error: %v", res.GetError())
	}
	out := decode[consent.AuditResult](t, []byte(res.Content[0].(*mcp.TextContent).Text))
	if out.Status != consent.StatusSuccessDetailed {
		t.Fatalf("status = %s", out.Status)
	}
	if got, err := st.Get(ctx, audit.ResultID(domain)); err != nil || got == nil {
		t.Fatalf("stored = %v, %v", got, err)
	}

	res, err = session.CallTool(ctx, &mcp.CallToolParams{Name: "audit_url", Arguments: map[string]any{"url": "http://10.0.0.1/"}})
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Fatal("private address accepted")
	}
}
