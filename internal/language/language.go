// Package language normalizes user language hints into the codes the speech
// models understand.
package language

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"murmur/internal/services"
)

// Auto asks the engine to detect the spoken language itself.
const Auto = "auto"

// supported lists the codes the speech models ship acoustic data for.
var supported = map[string]struct{}{
	"af": {}, "am": {}, "ar": {}, "as": {}, "az": {}, "ba": {}, "be": {},
	"bg": {}, "bn": {}, "bo": {}, "br": {}, "bs": {}, "ca": {}, "cs": {},
	"cy": {}, "da": {}, "de": {}, "el": {}, "en": {}, "es": {}, "et": {},
	"eu": {}, "fa": {}, "fi": {}, "fo": {}, "fr": {}, "gl": {}, "gu": {},
	"ha": {}, "haw": {}, "he": {}, "hi": {}, "hr": {}, "ht": {}, "hu": {},
	"hy": {}, "id": {}, "is": {}, "it": {}, "ja": {}, "jw": {}, "ka": {},
	"kk": {}, "km": {}, "kn": {}, "ko": {}, "la": {}, "lb": {}, "ln": {},
	"lo": {}, "lt": {}, "lv": {}, "mg": {}, "mi": {}, "mk": {}, "ml": {},
	"mn": {}, "mr": {}, "ms": {}, "mt": {}, "my": {}, "ne": {}, "nl": {},
	"nn": {}, "no": {}, "oc": {}, "pa": {}, "pl": {}, "ps": {}, "pt": {},
	"ro": {}, "ru": {}, "sa": {}, "sd": {}, "si": {}, "sk": {}, "sl": {},
	"sn": {}, "so": {}, "sq": {}, "sr": {}, "su": {}, "sv": {}, "sw": {},
	"ta": {}, "te": {}, "tg": {}, "th": {}, "tk": {}, "tl": {}, "tr": {},
	"tt": {}, "uk": {}, "ur": {}, "uz": {}, "vi": {}, "yi": {}, "yo": {},
	"yue": {}, "zh": {},
}

// aliases maps BCP-47 bases onto the legacy codes the models use.
var aliases = map[string]string{
	"jv": "jw",
	"iw": "he",
}

// Normalize resolves a user-supplied hint ("auto", a model code, or any
// BCP-47 tag such as "pt-BR") to the code passed to the engine.
func Normalize(hint string) (string, error) {
	hint = strings.ToLower(strings.TrimSpace(hint))
	if hint == "" || hint == Auto {
		return Auto, nil
	}
	if _, ok := supported[hint]; ok {
		return hint, nil
	}

	tag, err := language.Parse(hint)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "language", "normalize",
			fmt.Sprintf("unrecognized language hint %q", hint), err)
	}
	base, _ := tag.Base()
	code := base.String()
	if mapped, ok := aliases[code]; ok {
		code = mapped
	}
	if _, ok := supported[code]; !ok {
		return "", services.Wrap(services.ErrValidation, "language", "normalize",
			fmt.Sprintf("language %q is not supported by the speech models", hint), nil)
	}
	return code, nil
}

// Supported returns the model code list in sorted order.
func Supported() []string {
	codes := make([]string, 0, len(supported))
	for code := range supported {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// DisplayName renders a human-readable English name for a model code, or the
// code itself when no name is known.
func DisplayName(code string) string {
	if code == Auto {
		return "auto-detect"
	}
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	name := display.English.Languages().Name(tag)
	if name == "" {
		return code
	}
	return name
}
