package cmp

import "github.com/hazyhaar/consentcrawl/consent"

// builtin lists the hardcoded detectors in priority order. Iframe CMPs come
// first: their notice is invisible to selectors run on the page.
var builtin = []Spec{
	{
		Name: "sourcepoint",
		Frames: FrameMatch{
			Names: []string{"sp_message_iframe"},
			URLs:  []string{"sourcepoint", "sp-prod.net", "privacy-mgmt.com"},
		},
		Frame: []string{
			"div[class*='message-stack']",
			"div[class*='sp_choice']",
			"div[id*='notice']",
			"body > div",
		},
		FramePreferences: []string{
			"div[class*='message-stack']",
			".message-container",
			"div[class*='sp_choice']",
			"body > div",
		},
	},
	{
		Name: "onetrust",
		Main: []string{
			"#onetrust-banner-sdk",
			"#onetrust-pc-sdk",
			"#ot-pc-content",
			".ot-sdk-container",
			"[class*='onetrust']",
		},
		Preferences: []string{"#onetrust-pc-sdk", "#ot-pc-content"},
		Frames: FrameMatch{
			Names: []string{"ot-"},
			URLs:  []string{"onetrust", "cookielaw"},
		},
		Frame:            []string{"#onetrust-pc-sdk", ".ot-pc-content", "div[role='dialog']"},
		FramePreferences: []string{"#onetrust-pc-sdk", ".ot-pc-content"},
		ButtonTable: []RoleButtons{
			{Role: consent.RoleAcceptAll, Text: "Accept", Selectors: []string{
				"#onetrust-accept-btn-handler",
				"#accept-recommended-btn-handler",
				".save-preference-btn-handler",
			}},
			{Role: consent.RoleRejectAll, Text: "Reject", Selectors: []string{
				"#onetrust-reject-all-handler",
				".ot-pc-refuse-all-handler",
			}},
			{Role: consent.RoleSettings, Text: "Manage", Selectors: []string{
				"#onetrust-pc-btn-handler",
			}},
		},
	},
	{
		Name: "didomi",
		Main: []string{
			"#didomi-host div[role='dialog']",
			"#didomi-notice",
			".didomi-popup",
			"[class*='didomi']",
		},
		Preferences: []string{
			".didomi-consent-popup-preferences",
			".didomi-popup-preferences",
			"#didomi-popup div[role='dialog']",
		},
		Frames:           FrameMatch{Names: []string{"didomi"}, URLs: []string{"didomi"}},
		Frame:            []string{"div[role='dialog']", ".didomi-popup"},
		FramePreferences: []string{".didomi-consent-popup-preferences", "div[role='dialog']"},
	},
	{
		Name:        "orejime",
		Main:        []string{".orejime-Notice", ".orejime-Modal"},
		Preferences: []string{".orejime-Modal"},
		ButtonTable: []RoleButtons{
			{Role: consent.RoleAcceptAll, Text: "Accepter", Selectors: []string{".orejime-Button--save"}, AnyState: true},
			{Role: consent.RoleRejectAll, Text: "Refuser", Selectors: []string{".orejime-Button--decline"}, AnyState: true},
			{Role: consent.RoleSettings, Text: "Personnaliser", Selectors: []string{".orejime-Button--info"}, AnyState: true},
		},
	},
	{
		Name:        "trust-commander",
		Main:        []string{"#tc-privacy-wrapper", "#footer_tc_privacy", "#popin_tc_privacy"},
		Preferences: []string{"#tc-privacy-wrapper .tc-privacy-center", "#privacy-cat-modal"},
		Frames: FrameMatch{
			Names: []string{"privacy-iframe"},
			URLs:  []string{"privacy-center"},
		},
		FramePreferences: []string{"body"},
		ButtonTable: []RoleButtons{
			{Role: consent.RoleAcceptAll, Text: "Accepter", Selectors: []string{
				"#footer_tc_privacy_button_2",
				"#popin_tc_privacy_button_2",
				"[title='Accepter']",
				"[title='Accepter et fermer']",
			}},
			{Role: consent.RoleRejectAll, Text: "Continuer sans accepter", Selectors: []string{
				"#footer_tc_privacy_button_3",
				"#popin_tc_privacy_button_3",
				"[title='Continuer sans accepter']",
				"button:has-text('Continuer sans accepter')",
			}},
			{Role: consent.RoleSettings, Text: "Paramétrer", Selectors: []string{
				"#footer_tc_privacy_button",
				"#popin_tc_privacy_button",
				"[title='Paramétrer les cookies']",
				"[title='Personnaliser mes choix']",
				"button:has-text('Paramétrer')",
				"button:has-text('Personnaliser')",
			}},
		},
	},
	{
		Name:             "sfbx",
		Iframe:           "#appconsent > iframe",
		Frames:           FrameMatch{URLs: []string{"appconsent", "sfbx"}},
		Frame:            []string{"[class*='banner']", "body > div"},
		FramePreferences: []string{".privacyCenter", "[class*='privacy-center']", ".consentables"},
		ButtonTable: []RoleButtons{
			{Role: consent.RoleAcceptAll, Text: "Accepter", Selectors: []string{".button__acceptAll"}},
			{Role: consent.RoleRejectAll, Text: "Refuser", Selectors: []string{".button__refuseAll", ".button__skip"}},
			{Role: consent.RoleSettings, Text: "Paramétrer", Selectors: []string{".button__openPrivacyCenter"}},
		},
	},
	{
		Name: "lemonde",
		Main: []string{".gdpr-lmd-wall"},
		ButtonTable: []RoleButtons{
			{Role: consent.RoleAcceptAll, Text: "Accéder gratuitement", Selectors: []string{"button[data-gdpr-expression='acceptAll']"}, AnyState: true},
			// Subscribing is the paid alternative to consenting.
			{Role: consent.RoleRejectAll, Text: "S'abonner", Selectors: []string{".js-gdpr-deny-subscribe"}, AnyState: true},
		},
	},
}
