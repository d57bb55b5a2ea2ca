package buttons

import (
	"context"
	"testing"

	"github.com/hazyhaar/consentcrawl/consent"
	"github.com/hazyhaar/consentcrawl/surface"
	"github.com/hazyhaar/consentcrawl/surface/surfacetest"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		text, aria string
		want       consent.ButtonRole
	}{
		{"Accept all", "", consent.RoleAcceptAll},
		{"Accepter tout", "", consent.RoleAcceptAll},
		{"J'accepte", "", consent.RoleAcceptAll},
		{"Alle akzeptieren", "", consent.RoleAcceptAll},
		{"Continuer sans accepter", "", consent.RoleRejectAll},
		{"Continue without accepting", "", consent.RoleRejectAll},
		{"I disagree", "", consent.RoleRejectAll},
		{"I do not agree", "", consent.RoleRejectAll},
		{"Not agree", "", consent.RoleRejectAll},
		{"Je refuse", "", consent.RoleRejectAll},
		{"I agree", "", consent.RoleAcceptAll},
		{"Tout refuser", "", consent.RoleRejectAll},
		{"Alles ablehnen", "", consent.RoleRejectAll},
		{"", "Reject all cookies", consent.RoleRejectAll},
		{"Gérer mes choix", "", consent.RoleSettings},
		{"Parametrer les cookies", "", consent.RoleSettings},
		{"PRÉFÉRENCES", "", consent.RoleSettings},
		{"Manage options", "", consent.RoleSettings},
		{"Accept necessary only", "", consent.RoleUnknown},
		{"En savoir plus", "", consent.RoleInfo},
		{"Privacy policy", "", consent.RoleInfo},
		{"OK", "", consent.RoleUnknown},
		{"Close", "", consent.RoleUnknown},
	}
	for _, tt := range tests {
		if got := Classify(tt.text, tt.aria); got != tt.want {
			t.Errorf("Classify(%q, %q) = %s, want %s", tt.text, tt.aria, got, tt.want)
		}
	}
}

func TestDeriveSelector(t *testing.T) {
	tests := []struct {
		name string
		info surface.ElementInfo
		aria string
		want string
	}{
		{"id", surface.ElementInfo{Tag: "button", ID: "accept", Classes: []string{"btn"}}, "", "#accept"},
		{"odd id", surface.ElementInfo{Tag: "button", ID: "a:b"}, "", "button[id='a:b']"},
		{"semantic class", surface.ElementInfo{Tag: "button", Classes: []string{"x", "btn", "sp_choice_type_12"}}, "", ".sp_choice_type_12"},
		{"aria", surface.ElementInfo{Tag: "a", Classes: []string{"x"}}, "Open settings", "a[aria-label='Open settings']"},
		{"text", surface.ElementInfo{Tag: "a", Classes: []string{"link"}, Text: "Personnaliser mes choix maintenant"}, "", ".link:has-text('Personnaliser mes ch')"},
		{"text no class", surface.ElementInfo{Tag: "button", Text: "J'accepte"}, "", `button:has-text("J'accepte")`},
		{"long text", surface.ElementInfo{Tag: "a", Classes: []string{"link"}, Text: "This is a very long button label that goes past fifty chars"}, "", ".link"},
		{"bare", surface.ElementInfo{Tag: "button"}, "", "button"},
	}
	for _, tt := range tests {
		if got := DeriveSelector(tt.info, tt.aria, ""); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestExtract(t *testing.T) {
	ctx := context.Background()
	page := surfacetest.NewPage(t, "https://example.fr/", `<body>
<div id="cb" role="dialog">
  <p>Nous utilisons des cookies.</p>
  <button id="ok">Accepter tout</button>
  <button class="btn-secondary">Continuer sans accepter</button>
  <a class="link" href="#">Gérer mes choix</a>
  <button aria-label="Fermer"></button>
  <button></button>
  <a href="/policy" hidden>Politique</a>
</div></body>`)

	p := surface.NewProber()
	got := Extract(ctx, p, page.Locate("#cb"))
	if p.Failed() {
		t.Fatal(p.Err())
	}
	want := []struct {
		text string
		role consent.ButtonRole
		sel  string
	}{
		{"Accepter tout", consent.RoleAcceptAll, "#ok"},
		{"Continuer sans accepter", consent.RoleRejectAll, ".btn-secondary"},
		{"Gérer mes choix", consent.RoleSettings, ".link:has-text('Gérer mes choix')"},
		{"", consent.RoleUnknown, "button[aria-label='Fermer']"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d buttons: %+v", len(got), got)
	}
	for i, w := range want {
		if got[i].Text != w.text || got[i].Role != w.role || got[i].Selector != w.sel {
			t.Errorf("button %d = %+v, want %+v", i, got[i], w)
		}
		if !got[i].IsVisible {
			t.Errorf("button %d not visible", i)
		}
	}

	if n, _ := page.Locate(got[2].Selector).Count(ctx); n != 1 {
		t.Errorf("derived selector %q matches %d elements", got[2].Selector, n)
	}
}

func TestExtract_NilContainer(t *testing.T) {
	got := Extract(context.Background(), surface.NewProber(), nil)
	if got == nil || len(got) != 0 {
		t.Errorf("got %v, want empty slice", got)
	}
}

func TestExtract_TextOnlyButton(t *testing.T) {
	ctx := context.Background()
	page := surfacetest.NewPage(t, "https://example.fr/", `<body>
<div id="cb" role="dialog">
  <p>Nous utilisons des cookies.</p>
  <button>
    Tout   refuser
  </button>
</div></body>`)

	p := surface.NewProber()
	got := Extract(ctx, p, page.Locate("#cb"))
	if len(got) != 1 {
		t.Fatalf("got %d buttons: %+v", len(got), got)
	}
	b := got[0]
	if b.Text != "Tout refuser" || b.Role != consent.RoleRejectAll {
		t.Fatalf("button = %+v", b)
	}
	if b.Selector != "button:has-text('Tout refuser')" {
		t.Errorf("selector = %q", b.Selector)
	}
	if n, _ := page.Locate(b.Selector).Count(ctx); n != 1 {
		t.Errorf("derived selector %q matches %d elements", b.Selector, n)
	}
}
