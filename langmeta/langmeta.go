// Package langmeta provides a shared language metadata registry
// (English names for prompts, native names and emoji flags for CLI
// output). It lets the CLI accept either a language code ("ko",
// "pt-BR") or a free-form language name ("Korean").
package langmeta

import "strings"

// Meta describes language metadata. Name is the English name used in
// backend prompts; Native and Flag are display-only.
type Meta struct {
	Name   string
	Native string
	Flag   string
}

// Registry contains canonical language metadata.
// Locale variants are resolved in Resolve() via normalization and base fallback.
var Registry = map[string]Meta{
	"ar":    {Name: "Arabic", Native: "العربية", Flag: "🇸🇦"},
	"bg":    {Name: "Bulgarian", Native: "Български", Flag: "🇧🇬"},
	"bn":    {Name: "Bengali", Native: "বাংলা", Flag: "🇧🇩"},
	"cs":    {Name: "Czech", Native: "Čeština", Flag: "🇨🇿"},
	"da":    {Name: "Danish", Native: "Dansk", Flag: "🇩🇰"},
	"de":    {Name: "German", Native: "Deutsch", Flag: "🇩🇪"},
	"el":    {Name: "Greek", Native: "Ελληνικά", Flag: "🇬🇷"},
	"en":    {Name: "English", Native: "English", Flag: "🇺🇸"},
	"en-GB": {Name: "British English", Native: "English (UK)", Flag: "🇬🇧"},
	"es":    {Name: "Spanish", Native: "Español", Flag: "🇪🇸"},
	"es-MX": {Name: "Mexican Spanish", Native: "Español (México)", Flag: "🇲🇽"},
	"et":    {Name: "Estonian", Native: "Eesti", Flag: "🇪🇪"},
	"fa":    {Name: "Persian", Native: "فارسی", Flag: "🇮🇷"},
	"fi":    {Name: "Finnish", Native: "Suomi", Flag: "🇫🇮"},
	"fr":    {Name: "French", Native: "Français", Flag: "🇫🇷"},
	"he":    {Name: "Hebrew", Native: "עברית", Flag: "🇮🇱"},
	"hi":    {Name: "Hindi", Native: "हिन्दी", Flag: "🇮🇳"},
	"hr":    {Name: "Croatian", Native: "Hrvatski", Flag: "🇭🇷"},
	"hu":    {Name: "Hungarian", Native: "Magyar", Flag: "🇭🇺"},
	"id":    {Name: "Indonesian", Native: "Bahasa Indonesia", Flag: "🇮🇩"},
	"it":    {Name: "Italian", Native: "Italiano", Flag: "🇮🇹"},
	"ja":    {Name: "Japanese", Native: "日本語", Flag: "🇯🇵"},
	"kk":    {Name: "Kazakh", Native: "Қазақ тілі", Flag: "🇰🇿"},
	"ko":    {Name: "Korean", Native: "한국어", Flag: "🇰🇷"},
	"lt":    {Name: "Lithuanian", Native: "Lietuvių", Flag: "🇱🇹"},
	"lv":    {Name: "Latvian", Native: "Latviešu", Flag: "🇱🇻"},
	"ms":    {Name: "Malay", Native: "Bahasa Melayu", Flag: "🇲🇾"},
	"nb":    {Name: "Norwegian Bokmål", Native: "Norsk bokmål", Flag: "🇳🇴"},
	"nl":    {Name: "Dutch", Native: "Nederlands", Flag: "🇳🇱"},
	"no":    {Name: "Norwegian", Native: "Norsk", Flag: "🇳🇴"},
	"pl":    {Name: "Polish", Native: "Polski", Flag: "🇵🇱"},
	"pt":    {Name: "Portuguese", Native: "Português", Flag: "🇵🇹"},
	"pt-BR": {Name: "Brazilian Portuguese", Native: "Português (Brasil)", Flag: "🇧🇷"},
	"ro":    {Name: "Romanian", Native: "Română", Flag: "🇷🇴"},
	"ru":    {Name: "Russian", Native: "Русский", Flag: "🇷🇺"},
	"sk":    {Name: "Slovak", Native: "Slovenčina", Flag: "🇸🇰"},
	"sl":    {Name: "Slovenian", Native: "Slovenščina", Flag: "🇸🇮"},
	"sr":    {Name: "Serbian", Native: "Српски", Flag: "🇷🇸"},
	"sv":    {Name: "Swedish", Native: "Svenska", Flag: "🇸🇪"},
	"th":    {Name: "Thai", Native: "ไทย", Flag: "🇹🇭"},
	"tr":    {Name: "Turkish", Native: "Türkçe", Flag: "🇹🇷"},
	"uk":    {Name: "Ukrainian", Native: "Українська", Flag: "🇺🇦"},
	"vi":    {Name: "Vietnamese", Native: "Tiếng Việt", Flag: "🇻🇳"},
	"zh":    {Name: "Chinese", Native: "中文", Flag: "🇨🇳"},
	"zh-CN": {Name: "Simplified Chinese", Native: "简体中文", Flag: "🇨🇳"},
	"zh-TW": {Name: "Traditional Chinese", Native: "繁體中文", Flag: "🇹🇼"},
}

func canonicalize(lang string) string {
	normalized := strings.ReplaceAll(strings.TrimSpace(lang), "_", "-")
	if normalized == "" {
		return ""
	}
	parts := strings.Split(normalized, "-")
	parts[0] = strings.ToLower(parts[0])
	if len(parts) >= 2 {
		parts[1] = strings.ToUpper(parts[1])
	}
	return strings.Join(parts, "-")
}

// Resolve returns best-effort language metadata for language codes,
// supporting variants like pt_BR, pt-BR, and locale fallbacks. Unknown
// input comes back unchanged as the Name, so free-form language names
// pass straight through.
func Resolve(lang string) Meta {
	if m, ok := Registry[lang]; ok {
		return m
	}
	normalized := canonicalize(lang)
	if m, ok := Registry[normalized]; ok {
		return m
	}
	if parts := strings.SplitN(normalized, "-", 2); len(parts) == 2 {
		if m, ok := Registry[parts[0]]; ok {
			return m
		}
	}
	return Meta{Name: lang}
}

// PromptName maps a language code or name to the English name used in
// backend prompts. "ko" and "Korean" both yield "Korean".
func PromptName(lang string) string {
	return Resolve(lang).Name
}
