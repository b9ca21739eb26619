package text

func isWordByte(c byte) bool {
	return c == '_' || ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

// NextWordLength returns how many bytes of text make up the next word for
// partial acceptance: everything up to the first word boundary after the
// first character, or the whole text when there is none. A boundary sits
// between a word and a non-word character, as with \b.
func NextWordLength(text string) int {
	for i := 1; i < len(text); i++ {
		if isWordByte(text[i-1]) != isWordByte(text[i]) {
			return i
		}
	}
	return len(text)
}

// ConsumePrefix reports whether typed is a prefix of remaining and, if so,
// returns what is left after it.
func ConsumePrefix(remaining, typed string) (string, bool) {
	if typed == "" || len(typed) > len(remaining) || remaining[:len(typed)] != typed {
		return remaining, false
	}
	return remaining[len(typed):], true
}
