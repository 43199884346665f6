package locator

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/fiberplane/fpx-sub000/pkg/resolve"
	"github.com/fiberplane/fpx-sub000/pkg/syntax"
)

// Source is one file of a snapshot.
type Source struct {
	Path    string `json:"path"`
	Content []byte `json:"-"`
}

// Snapshot is the immutable input of one analysis. File order matters: it is
// the order in which registrations across files are ranked.
type Snapshot struct {
	Files []Source `json:"files"`
}

// Hash returns a content hash identifying the snapshot, paths included.
func (s Snapshot) Hash() string {
	h := sha256.New()
	var n [8]byte
	for _, f := range s.Files {
		binary.LittleEndian.PutUint64(n[:], uint64(len(f.Path)))
		h.Write(n[:])
		h.Write([]byte(f.Path))
		binary.LittleEndian.PutUint64(n[:], uint64(len(f.Content)))
		h.Write(n[:])
		h.Write(f.Content)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Query names either a route (Method and Path) or a handler by name.
type Query struct {
	Method      string `json:"method,omitempty"`
	Path        string `json:"path,omitempty"`
	HandlerName string `json:"handlerName,omitempty"`

	// Middleware selects middleware registered for the route instead of
	// its canonical handler.
	Middleware bool `json:"middleware,omitempty"`
}

func (q Query) String() string {
	if q.HandlerName != "" {
		return "handler " + q.HandlerName
	}
	s := strings.ToUpper(q.Method) + " " + q.Path
	if q.Middleware {
		s += " (middleware)"
	}
	return s
}

func (q Query) validate() *resolve.Failure {
	route := q.Method != "" || q.Path != ""
	switch {
	case q.HandlerName != "" && route:
		return resolve.Failf(resolve.InvalidInput, "query names both a handler and a route")
	case q.HandlerName != "":
		return nil
	case q.Method == "" || q.Path == "":
		return resolve.Failf(resolve.InvalidInput, "query needs a method and a path, or a handler name")
	}
	return nil
}

// Match is a located handler.
type Match struct {
	Span         syntax.Span  `json:"span"`
	FunctionText string       `json:"functionText"`
	WrapDepth    int          `json:"wrapDepth"`
	Kind         resolve.Kind `json:"kind"`
	Name         string       `json:"name,omitempty"`

	// Method and Pattern are the matched table entry; empty for handler
	// name queries.
	Method  string `json:"method,omitempty"`
	Pattern string `json:"pattern,omitempty"`

	// Chain lists the names followed from the registration to the function.
	Chain []string `json:"chain,omitempty"`
}

func newMatch(res *resolve.Resolution) *Match {
	return &Match{
		Span:         res.Node.Span,
		FunctionText: res.Node.Text(),
		WrapDepth:    res.WrapDepth,
		Kind:         res.Kind,
		Name:         res.Name,
		Chain:        res.Chain,
	}
}

// Result is the answer to one query: exactly one of Match and Failure is set.
type Result struct {
	Query   Query            `json:"query"`
	Match   *Match           `json:"match,omitempty"`
	Failure *resolve.Failure `json:"failure,omitempty"`
}

// OK reports whether the query located a handler.
func (r Result) OK() bool {
	return r.Match != nil
}

func failed(q Query, f *resolve.Failure) Result {
	return Result{Query: q, Failure: f}
}

// Route is one row of the route listing.
type Route struct {
	Method     string           `json:"method"`
	Path       string           `json:"path"`
	Middleware bool             `json:"middleware,omitempty"`
	Order      int              `json:"order"`
	Handler    *Match           `json:"handler,omitempty"`
	Failure    *resolve.Failure `json:"failure,omitempty"`
}

// Stats reports locator cache behavior.
type Stats struct {
	Analyses       int64
	CacheHits      int64
	CacheMisses    int64
	Evictions      int64
	CachedAnalyses int
	ParsesCalled   int
	ParseErrors    int
}

func (s Stats) String() string {
	return fmt.Sprintf("analyses=%d hits=%d misses=%d evictions=%d cached=%d parses=%d parse_errors=%d",
		s.Analyses, s.CacheHits, s.CacheMisses, s.Evictions, s.CachedAnalyses, s.ParsesCalled, s.ParseErrors)
}
