package schema

import "strings"

// ParamDoc extracts the description of the parameter name from free-form tool
// documentation. The first line that either starts with a bullet ("*" or "-")
// followed by the name, bare or backtick-quoted, or that contains the quoted
// name anywhere wins. The description is whatever follows that reference with
// a separating dash removed. It returns "" when no line matches.
//
//	Adds two numbers.
//	* `a` - First number
//	* `b` - Second number
func ParamDoc(doc, name string) string {
	if name == "" {
		return ""
	}
	quoted := "`" + name + "`"
	for _, line := range strings.Split(doc, "\n") {
		rest, ok := bulletRef(strings.TrimSpace(line), name, quoted)
		if !ok {
			idx := strings.Index(line, quoted)
			if idx < 0 {
				continue
			}
			rest = line[idx+len(quoted):]
		}
		rest = strings.TrimSpace(rest)
		rest = strings.TrimPrefix(rest, "-")
		return strings.TrimSpace(rest)
	}
	return ""
}

// bulletRef reports whether line is a bullet naming the parameter and returns
// the text after the reference.
func bulletRef(line, name, quoted string) (string, bool) {
	if !strings.HasPrefix(line, "*") && !strings.HasPrefix(line, "-") {
		return "", false
	}
	line = strings.TrimLeft(line[1:], " \t")
	if strings.HasPrefix(line, quoted) {
		return line[len(quoted):], true
	}
	if !strings.HasPrefix(line, name) {
		return "", false
	}
	rest := line[len(name):]
	if rest != "" && isIdentByte(rest[0]) {
		return "", false
	}
	return rest, true
}

func isIdentByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}
