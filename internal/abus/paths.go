package abus

import (
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

var drivePattern = regexp.MustCompile(`^([A-Za-z]):`)

// LivePath rewrites an archived path to a '/'-rooted path. A DOS drive prefix
// such as "C:" becomes the pseudo-directory "/c" and backslashes become
// slashes; other paths are returned unchanged.
func LivePath(archived string) string {
	m := drivePattern.FindStringSubmatch(archived)
	if m == nil {
		return archived
	}
	rest := strings.ReplaceAll(archived[len(m[0]):], `\`, "/")
	if rest != "" && !strings.HasPrefix(rest, "/") {
		rest = "/" + rest
	}
	return "/" + strings.ToLower(m[1]) + rest
}

// CommonRoot returns the deepest directory containing all of the given
// '/'-separated paths. When the paths name a single file, its parent
// directory is returned.
func CommonRoot(paths []string) string {
	if len(paths) == 0 {
		return ""
	}

	root := path.Clean(paths[0])
	single := true
	for _, p := range paths[1:] {
		p = path.Clean(p)
		if p != root {
			single = false
		}
		root = commonPrefix(root, p)
	}
	if single {
		return path.Dir(root)
	}
	return root
}

// commonPrefix returns the longest shared sequence of whole path components.
func commonPrefix(a, b string) string {
	as := strings.Split(a, "/")
	bs := strings.Split(b, "/")
	n := 0
	for n < len(as) && n < len(bs) && as[n] == bs[n] {
		n++
	}
	prefix := strings.Join(as[:n], "/")
	if prefix == "" && strings.HasPrefix(a, "/") {
		return "/"
	}
	if prefix == "" {
		return "."
	}
	return prefix
}

// TargetPath places live, a path under root, below dest.
func TargetPath(dest string, root string, live string) (string, error) {
	rel, err := filepath.Rel(filepath.FromSlash(root), filepath.FromSlash(live))
	if err != nil {
		return "", fmt.Errorf("path %s is not below %s: %w", live, root, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is not below %s", live, root)
	}
	return filepath.Join(dest, rel), nil
}

// VersionedName splices a -YYYYMMDD-HHMM suffix for the file's mtime in
// front of the extension, so several versions of one file can sit side by side.
func VersionedName(target string, ts float64) string {
	dir, base := filepath.Split(target)
	ext := filepath.Ext(base)
	stem := base[:len(base)-len(ext)]
	if stem == "" {
		// dot files such as ".bashrc" have no extension to preserve
		stem, ext = base, ""
	}
	return dir + stem + FloatToTime(ts).Format("-20060102-1504") + ext
}
