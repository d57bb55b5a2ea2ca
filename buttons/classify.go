package buttons

import (
	"github.com/hazyhaar/consentcrawl/consent"
)

// declinePhrases mention acceptance while declining it.
var declinePhrases = []string{
	"sans accepter", "without accepting", "continue without", "continuer sans",
	"ohne zu akzeptieren", "sin aceptar", "do not accept", "don't accept",
	"ne pas accepter", "disagree", "not agree", "do not agree",
	"je refuse", "je n'accepte pas", "nicht einverstanden",
}

var acceptWords = []string{
	"accept all", "accept", "agree", "allow all", "allow",
	"accepter tout", "accepter", "j'accepte", "tout accepter",
	"akzeptieren", "alle akzeptieren", "aceptar",
}

// partialAccept turns an accept label into something narrower than accept_all.
var partialAccept = []string{"necessary", "essential", "nécessaire", "essentiel"}

var rejectWords = []string{
	"reject all", "reject", "refuse", "deny",
	"refuser tout", "refuser", "tout refuser",
	"ablehnen", "alles ablehnen", "rechazar",
}

var settingsWords = []string{
	"setting", "manage", "customize", "configure", "preference", "choice",
	"choose", "option",
	"paramétrer", "gérer", "personnaliser", "configurer", "préférence",
	"einstellung", "verwalten", "anpassen",
	"configurar", "gestionar",
	"set up", "partners", "partenaires",
}

var infoWords = []string{
	"more info", "learn more", "privacy policy", "cookie policy", "details",
	"plus d'info", "en savoir plus", "politique",
	"mehr erfahren", "datenschutz",
	"más información", "política",
}

// Classify assigns a role from the button text and aria-label. Matching is
// case and accent insensitive; the first rule that applies wins, so decline
// phrases are checked before the accept words they contain.
func Classify(text, ariaLabel string) consent.ButtonRole {
	s := text + " " + ariaLabel
	switch {
	case consent.ContainsAny(s, declinePhrases):
		return consent.RoleRejectAll
	case consent.ContainsAny(s, acceptWords) && !consent.ContainsAny(s, partialAccept):
		return consent.RoleAcceptAll
	case consent.ContainsAny(s, rejectWords):
		return consent.RoleRejectAll
	case consent.ContainsAny(s, settingsWords):
		return consent.RoleSettings
	case consent.ContainsAny(s, infoWords):
		return consent.RoleInfo
	}
	return consent.RoleUnknown
}
