package snapshot

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const defaultSlug = "project"

// Slugify lowercases title, strips diacritics and joins the remaining ASCII
// letter and digit runs with dashes.
func Slugify(title string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, title)
	if err != nil {
		folded = title
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r > unicode.MaxASCII && unicode.IsLetter(r):
			// Letters without an ASCII base are dropped.
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
		default:
			dash = true
		}
	}
	if b.Len() == 0 {
		return defaultSlug
	}
	return b.String()
}

// FileName builds "{slug}-{revision}-{YYYY-MM-DD}-{id8}.html". A nil
// revision is written as 0.
func FileName(title string, revision *int, at time.Time, id uuid.UUID) string {
	rev := 0
	if revision != nil {
		rev = *revision
	}
	return fmt.Sprintf("%s-%d-%s-%s.html", Slugify(title), rev, at.Format("2006-01-02"), id.String()[:8])
}

var savedOnPattern = regexp.MustCompile(`-(\d{4}-\d{2}-\d{2})-[0-9a-f]{8}\.html$`)

// SavedOn reads the date segment of a name built by FileName.
func SavedOn(name string) (time.Time, bool) {
	m := savedOnPattern.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, false
	}
	day, err := time.Parse("2006-01-02", m[1])
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}

// Namespace is the key prefix of every snapshot stored for a project.
func Namespace(projectID uuid.UUID) string {
	return "projects/" + projectID.String() + "/invoices/"
}

// Key is the storage key of fileName within the project namespace.
func Key(projectID uuid.UUID, fileName string) string {
	return Namespace(projectID) + fileName
}

// Name is the display name of a stored key: its final path element.
func Name(key string) string {
	return path.Base(key)
}

// InNamespace reports whether key names a file directly inside the project's
// snapshot namespace.
func InNamespace(projectID uuid.UUID, key string) bool {
	ns := Namespace(projectID)
	if !strings.HasPrefix(key, ns) {
		return false
	}
	rest := key[len(ns):]
	return rest != "" && !strings.Contains(rest, "/") && rest != "." && rest != ".."
}
