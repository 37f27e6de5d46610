package lilac

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// pkgTokenRe matches the leading identifier-shaped token of a line:
// the maximal run of characters legal in a pkgbase.
var pkgTokenRe = regexp.MustCompile(`[A-Za-z0-9._+-]+`)

// Annotate copies lines from r to w; any line whose first token names a
// known package gets its maintainers' handles appended. Other lines pass
// through untouched. Used to decorate tool output (e.g. lists of broken
// packages) before it lands in a chat or an issue.
func Annotate(r io.Reader, w io.Writer, maintainers map[string][]string) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if handles := annotateLine(line, maintainers); handles != "" {
			fmt.Fprintf(w, "%s  (%s)\n", line, handles)
		} else {
			fmt.Fprintln(w, line)
		}
	}
	return scanner.Err()
}

func annotateLine(line string, maintainers map[string][]string) string {
	loc := pkgTokenRe.FindStringIndex(line)
	if loc == nil {
		return ""
	}
	handles, ok := maintainers[line[loc[0]:loc[1]]]
	if !ok || len(handles) == 0 {
		return ""
	}
	tagged := make([]string, len(handles))
	for i, h := range handles {
		tagged[i] = "@" + h
	}
	return strings.Join(tagged, " ")
}

// MaintainerHandles extracts the pkgbase -> handles mapping the annotator
// needs from a loaded recipe set.
func MaintainerHandles(recipes map[string]*Recipe) map[string][]string {
	out := make(map[string][]string, len(recipes))
	for pkg, r := range recipes {
		var handles []string
		for _, m := range r.Maintainers {
			if m.Handle != "" {
				handles = append(handles, m.Handle)
			}
		}
		out[pkg] = handles
	}
	return out
}
