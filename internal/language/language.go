package language

import "strings"

type entry struct {
	code2   string   // ISO 639-1
	code3   []string // ISO 639-2 terminology and bibliographic forms
	display string
	words   []string // lowercase names, English and native
}

// languages covers the languages Whisper-family models transcribe well.
var languages = []entry{
	{"en", []string{"eng"}, "English", []string{"english"}},
	{"es", []string{"spa"}, "Spanish", []string{"spanish", "español", "espanol"}},
	{"fr", []string{"fra", "fre"}, "French", []string{"french", "français", "francais"}},
	{"de", []string{"deu", "ger"}, "German", []string{"german", "deutsch"}},
	{"it", []string{"ita"}, "Italian", []string{"italian", "italiano"}},
	{"pt", []string{"por"}, "Portuguese", []string{"portuguese", "português", "portugues"}},
	{"nl", []string{"nld", "dut"}, "Dutch", []string{"dutch", "nederlands"}},
	{"pl", []string{"pol"}, "Polish", []string{"polish", "polski"}},
	{"sv", []string{"swe"}, "Swedish", []string{"swedish", "svenska"}},
	{"da", []string{"dan"}, "Danish", []string{"danish", "dansk"}},
	{"no", []string{"nor", "nob"}, "Norwegian", []string{"norwegian", "norsk"}},
	{"fi", []string{"fin"}, "Finnish", []string{"finnish", "suomi"}},
	{"cs", []string{"ces", "cze"}, "Czech", []string{"czech", "čeština"}},
	{"el", []string{"ell", "gre"}, "Greek", []string{"greek"}},
	{"tr", []string{"tur"}, "Turkish", []string{"turkish", "türkçe"}},
	{"uk", []string{"ukr"}, "Ukrainian", []string{"ukrainian"}},
	{"ru", []string{"rus"}, "Russian", []string{"russian"}},
	{"ar", []string{"ara"}, "Arabic", []string{"arabic"}},
	{"he", []string{"heb"}, "Hebrew", []string{"hebrew"}},
	{"hi", []string{"hin"}, "Hindi", []string{"hindi"}},
	{"ja", []string{"jpn"}, "Japanese", []string{"japanese"}},
	{"ko", []string{"kor"}, "Korean", []string{"korean"}},
	{"zh", []string{"zho", "chi"}, "Chinese", []string{"chinese", "mandarin"}},
}

var index = func() map[string]*entry {
	m := make(map[string]*entry, len(languages)*4)
	for i := range languages {
		e := &languages[i]
		m[e.code2] = e
		for _, c := range e.code3 {
			m[c] = e
		}
		for _, w := range e.words {
			m[w] = e
		}
	}
	return m
}()

// clean lowercases value and drops a region subtag ("en-US", "pt_BR").
func clean(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if i := strings.IndexAny(value, "-_"); i > 0 {
		value = value[:i]
	}
	return value
}

// ToISO2 converts a code, name, or locale tag to ISO 639-1. Unknown 2-letter
// codes pass through; anything else unknown returns "".
func ToISO2(value string) string {
	code := clean(value)
	if code == "" {
		return ""
	}
	if e, ok := index[code]; ok {
		return e.code2
	}
	if len(code) == 2 && isASCIILetters(code) {
		return code
	}
	return ""
}

// Known reports whether value names a language in the table.
func Known(value string) bool {
	_, ok := index[clean(value)]
	return ok
}

// DisplayName returns a human-readable name. Empty input means the engine
// detects the language itself.
func DisplayName(value string) string {
	if strings.TrimSpace(value) == "" {
		return "auto-detect"
	}
	if e, ok := index[clean(value)]; ok {
		return e.display
	}
	return strings.ToUpper(strings.TrimSpace(value))
}

func isASCIILetters(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 'a' || s[i] > 'z' {
			return false
		}
	}
	return true
}
