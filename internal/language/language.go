package language

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// bibliographic maps ISO 639-2/B codes that CLDR does not resolve to their
// ISO 639-1 form.
var bibliographic = map[string]string{
	"alb": "sq", "arm": "hy", "baq": "eu", "bur": "my", "chi": "zh",
	"cze": "cs", "dut": "nl", "fre": "fr", "geo": "ka", "ger": "de",
	"gre": "el", "ice": "is", "mac": "mk", "mao": "mi", "may": "ms",
	"per": "fa", "rum": "ro", "slo": "sk", "tib": "bo", "wel": "cy",
}

// words accepts spelled-out names some authoring tools write instead of
// codes.
var words = map[string]string{
	"english": "en", "spanish": "es", "french": "fr", "german": "de",
	"italian": "it", "portuguese": "pt", "japanese": "ja", "korean": "ko",
	"chinese": "zh", "russian": "ru", "arabic": "ar", "hindi": "hi",
	"dutch": "nl", "polish": "pl", "swedish": "sv", "danish": "da",
	"norwegian": "no", "finnish": "fi",
}

// base resolves code to a CLDR base language.
func base(code string) (language.Base, bool) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" || code == "und" {
		return language.Base{}, false
	}
	if alias, ok := bibliographic[code]; ok {
		code = alias
	} else if alias, ok := words[code]; ok {
		code = alias
	}
	b, err := language.ParseBase(code)
	if err != nil {
		return language.Base{}, false
	}
	return b, true
}

// Normalize converts a language code or name to ISO 639-1. Unknown two letter
// codes pass through lowercased; anything else unknown returns "".
func Normalize(code string) string {
	if b, ok := base(code); ok {
		if s := b.String(); len(s) == 2 {
			return s
		}
	}
	code = strings.ToLower(strings.TrimSpace(code))
	if len(code) == 2 {
		return code
	}
	return ""
}

// ToISO3 converts a language code to ISO 639-2/T. Unknown three letter codes
// pass through; anything else unknown becomes "und".
func ToISO3(code string) string {
	if b, ok := base(code); ok {
		return b.ISO3()
	}
	code = strings.ToLower(strings.TrimSpace(code))
	if len(code) == 3 {
		return code
	}
	return "und"
}

// DisplayName renders the English name of a language code. Empty and "und"
// render as "Unknown"; unrecognized codes are uppercased.
func DisplayName(code string) string {
	trimmed := strings.TrimSpace(code)
	b, ok := base(trimmed)
	if !ok {
		if trimmed == "" || strings.EqualFold(trimmed, "und") {
			return "Unknown"
		}
		return strings.ToUpper(trimmed)
	}
	if name := display.English.Languages().Name(b); name != "" {
		return name
	}
	return strings.ToUpper(trimmed)
}

// PackISO3 packs a three letter code into the 15-bit form used by MP4 media
// headers. Unknown codes pack as "und".
func PackISO3(code string) uint16 {
	iso3 := ToISO3(code)
	if len(iso3) != 3 {
		iso3 = "und"
	}
	var packed uint16
	for i := 0; i < 3; i++ {
		c := iso3[i]
		if c < 'a' || c > 'z' {
			return PackISO3("und")
		}
		packed = packed<<5 | uint16(c-0x60)
	}
	return packed
}
