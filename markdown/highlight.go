package markdown

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

var codeKeywords = map[string]bool{
	"const": true, "let": true, "var": true, "function": true, "fn": true,
	"return": true, "import": true, "export": true, "from": true, "class": true,
	"interface": true, "type": true, "struct": true, "impl": true, "pub": true,
	"use": true, "mod": true, "match": true, "if": true, "else": true,
	"for": true, "while": true, "await": true, "async": true, "try": true,
	"catch": true, "new": true, "this": true,
}

var codeTypes = map[string]bool{
	"string": true, "number": true, "boolean": true, "any": true, "void": true,
	"u8": true, "i32": true, "f32": true, "Vec": true, "Option": true,
	"Result": true, "String": true, "Self": true,
}

var chromaFormatter = chromahtml.New(
	chromahtml.WithClasses(true),
	chromahtml.PreventSurroundingPre(true),
)

// Highlight returns code as HTML with syntax spans. Languages chroma knows
// are lexed properly; anything else goes through HighlightNaive.
func Highlight(lang, code string) string {
	if lang != "" {
		if lexer := lexers.Get(lang); lexer != nil {
			if out, err := highlightChroma(lexer, code); err == nil {
				return out
			}
		}
	}
	return HighlightNaive(code)
}

func highlightChroma(lexer chroma.Lexer, code string) (string, error) {
	iterator, err := chroma.Coalesce(lexer).Tokenise(nil, code)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := chromaFormatter.Format(&b, styles.Get("github"), iterator); err != nil {
		return "", err
	}
	return b.String(), nil
}

// HighlightNaive marks string literals, line comments, a fixed keyword list
// and a fixed type list. It scans the input once, so markup it inserts is
// never matched again.
func HighlightNaive(code string) string {
	var b strings.Builder
	i := 0
	for i < len(code) {
		c := code[i]
		switch {
		case c == '"' || c == '\'':
			j := scanQuoted(code, i)
			writeSpan(&b, "hl-string", code[i:j])
			i = j
		case c == '/' && i+1 < len(code) && code[i+1] == '/':
			j := strings.IndexByte(code[i:], '\n')
			if j < 0 {
				j = len(code)
			} else {
				j += i
			}
			writeSpan(&b, "hl-comment", code[i:j])
			i = j
		case isIdentStart(c) || isDigit(c):
			j := i + 1
			for j < len(code) && (isIdentStart(code[j]) || isDigit(code[j])) {
				j++
			}
			word := code[i:j]
			switch {
			case isDigit(c):
				b.WriteString(word)
			case codeKeywords[word]:
				writeSpan(&b, "hl-keyword", word)
			case codeTypes[word]:
				writeSpan(&b, "hl-type", word)
			default:
				b.WriteString(word)
			}
			i = j
		default:
			writeEscapedByte(&b, c)
			i++
		}
	}
	return b.String()
}

// scanQuoted returns the index just past the string literal starting at i.
// Literals end at the matching quote or, if unterminated, at end of line.
func scanQuoted(code string, i int) int {
	quote := code[i]
	j := i + 1
	for j < len(code) {
		switch code[j] {
		case '\\':
			j += 2
			continue
		case quote:
			return j + 1
		case '\n':
			return j
		}
		j++
	}
	return len(code)
}

func writeSpan(b *strings.Builder, class, text string) {
	b.WriteString(`<span class="`)
	b.WriteString(class)
	b.WriteString(`">`)
	for i := 0; i < len(text); i++ {
		writeEscapedByte(b, text[i])
	}
	b.WriteString("</span>")
}

func writeEscapedByte(b *strings.Builder, c byte) {
	switch c {
	case '&':
		b.WriteString("&amp;")
	case '<':
		b.WriteString("&lt;")
	case '>':
		b.WriteString("&gt;")
	default:
		b.WriteByte(c)
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
