package feed

import "regexp"

// mentionPattern matches @username and the quoted form @"Display Name".
// The unquoted form allows Unicode letters and digits plus "_", "." and
// "-", so names like @Müller work.
var mentionPattern = regexp.MustCompile(`@"([^"]+)"|@([\p{L}\p{N}_.-]+)`)

// ExtractMentions returns the mention texts in content, in order of
// appearance. Whether a text refers to an actual channel member is
// decided later during resolution.
func ExtractMentions(content string) []string {
	var out []string
	for _, m := range mentionPattern.FindAllStringSubmatch(content, -1) {
		if m[1] != "" {
			out = append(out, m[1])
		} else if m[2] != "" {
			out = append(out, m[2])
		}
	}
	return out
}
