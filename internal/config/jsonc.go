package config

// stripState tracks where the comment stripper is inside the input
type stripState int

const (
	stateCode stripState = iota
	stateString
	stateEscape
	stateLineComment
	stateBlockComment
)

// StripJSONComments removes // and /* */ comments from JSONC content,
// leaving string literals intact. Comment bytes are replaced by nothing;
// newlines inside comments are kept so parse errors still point at the
// right line.
func StripJSONComments(data []byte) []byte {
	out := make([]byte, 0, len(data))
	state := stateCode

	for i := 0; i < len(data); i++ {
		b := data[i]

		switch state {
		case stateCode:
			switch {
			case b == '"':
				state = stateString
				out = append(out, b)
			case b == '/' && i+1 < len(data) && data[i+1] == '/':
				state = stateLineComment
				i++
			case b == '/' && i+1 < len(data) && data[i+1] == '*':
				state = stateBlockComment
				i++
			default:
				out = append(out, b)
			}

		case stateString:
			out = append(out, b)
			if b == '\\' {
				state = stateEscape
			} else if b == '"' {
				state = stateCode
			}

		case stateEscape:
			out = append(out, b)
			state = stateString

		case stateLineComment:
			if b == '\n' {
				state = stateCode
				out = append(out, b)
			}

		case stateBlockComment:
			if b == '\n' {
				out = append(out, b)
			} else if b == '*' && i+1 < len(data) && data[i+1] == '/' {
				state = stateCode
				i++
			}
		}
	}

	return out
}
