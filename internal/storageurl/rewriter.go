// Package storageurl rewrites direct blob-storage links found in submission
// data into links served by the forms API.
//
// Uploaded files live at {host}/{container}/s/{formId}/{submissionId}/{fileName}.
// Those URLs are not reachable by export recipients, so they are replaced
// with {base}/forms/{formId}/submissions/{submissionId}/files/{fileName}.
package storageurl

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/koltyakov/formexport/internal/export"
	"github.com/koltyakov/formexport/internal/node"
)

// DefaultAccessBase prefixes rewritten URLs when Config.AccessBase is empty
const DefaultAccessBase = "/api"

// Config configures the rewriter. The rewriter is inert unless both Host and
// Container are set.
type Config struct {
	// Host is the storage account host, with or without scheme
	Host string
	// Container is the blob container holding submission files
	Container string
	// AccessBase is the public base of the files endpoint
	AccessBase string
}

// Ref identifies a stored submission file
type Ref struct {
	FormID       string
	SubmissionID string
	FileName     string
}

// Rewriter detects and rewrites storage URLs. It is immutable and safe for
// concurrent use.
type Rewriter struct {
	pattern *regexp.Regexp
	base    string
}

// New creates a Rewriter for cfg
func New(cfg Config) *Rewriter {
	host := strings.TrimSpace(cfg.Host)
	host = strings.TrimPrefix(strings.TrimPrefix(host, "https://"), "http://")
	host = strings.TrimRight(host, "/")
	container := strings.Trim(strings.TrimSpace(cfg.Container), "/")

	base := strings.TrimRight(strings.TrimSpace(cfg.AccessBase), "/")
	if base == "" {
		base = DefaultAccessBase
	}
	r := &Rewriter{base: base}
	if host == "" || container == "" {
		return r
	}

	// The lead group keeps the character in front of the URL so that hosts
	// ending in the configured host are not matched.
	const lead = `(^|[^A-Za-z0-9._~%@:/-])`
	const segment = `([^/\s"'?#]+)`
	r.pattern = regexp.MustCompile(lead + `(?:https?://)?` + regexp.QuoteMeta(host) + `/` +
		regexp.QuoteMeta(container) + `/s/` + segment + `/` + segment + `/` + segment +
		`(?:\?[^\s"'#]*)?`)
	return r
}

// Enabled reports whether the rewriter is configured
func (r *Rewriter) Enabled() bool {
	return r != nil && r.pattern != nil
}

// Match parses a single storage URL
func (r *Rewriter) Match(url string) (Ref, bool) {
	if !r.Enabled() {
		return Ref{}, false
	}
	m := r.pattern.FindStringSubmatch(strings.TrimSpace(url))
	if m == nil {
		return Ref{}, false
	}
	return Ref{FormID: m[2], SubmissionID: m[3], FileName: m[4]}, true
}

// URL returns the access URL of ref
func (r *Rewriter) URL(ref Ref) string {
	return fmt.Sprintf("%s/forms/%s/submissions/%s/files/%s", r.base, ref.FormID, ref.SubmissionID, ref.FileName)
}

// RewriteString replaces every storage URL inside s. changed is false when
// nothing matched.
func (r *Rewriter) RewriteString(s string) (out string, changed bool) {
	if !r.Enabled() || !r.pattern.MatchString(s) {
		return s, false
	}
	out = r.pattern.ReplaceAllStringFunc(s, func(match string) string {
		m := r.pattern.FindStringSubmatch(match)
		return m[1] + r.URL(Ref{FormID: m[2], SubmissionID: m[3], FileName: m[4]})
	})
	return out, true
}

// Transform implements export.Transformer. Strings are rewritten in place;
// arrays and objects are walked recursively.
func (r *Rewriter) Transform(n node.Node, diag export.Diagnostics) node.Node {
	if !r.Enabled() {
		return n
	}
	out, _ := r.rewrite(n)
	return out
}

func (r *Rewriter) rewrite(n node.Node) (node.Node, bool) {
	switch n.Kind() {
	case node.KindString:
		s, _ := n.Str()
		if out, changed := r.RewriteString(s); changed {
			return node.String(out), true
		}
	case node.KindArray:
		items := n.Items()
		var out []node.Node
		for i, item := range items {
			v, changed := r.rewrite(item)
			if changed && out == nil {
				out = append(make([]node.Node, 0, len(items)), items[:i]...)
			}
			if out != nil {
				out = append(out, v)
			}
		}
		if out != nil {
			return node.Array(out...), true
		}
	case node.KindObject:
		members := n.Members()
		var out []node.Member
		for i, m := range members {
			v, changed := r.rewrite(m.Value)
			if changed && out == nil {
				out = append(make([]node.Member, 0, len(members)), members[:i]...)
			}
			if out != nil {
				out = append(out, node.Member{Key: m.Key, Value: v})
			}
		}
		if out != nil {
			return node.Object(out...), true
		}
	}
	return n, false
}
