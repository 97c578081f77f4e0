package ingress

import (
	"sort"
	"strings"
	"sync"

	"github.com/eventmesh-go/httpingress/ingress/breaker"
	"github.com/eventmesh-go/httpingress/ingress/workerpool"
)

type codeRoute struct {
	code      string
	processor CodeProcessor
	pool      *workerpool.Pool
	breaker   *breaker.Breaker
}

type uriRoute struct {
	prefix    string
	processor EventProcessor
	pool      *workerpool.Pool
	breaker   *breaker.Breaker
}

// RouteTable holds the two registries: request-code → processor
// (codeRoutes) and URI-prefix → processor (uriRoutes). Both are
// append-only before Freeze and read-only after; readers need no locking
// once the server has started.
type RouteTable struct {
	mu         sync.Mutex
	started    bool
	codeRoutes map[string]*codeRoute
	uriRoutes  []*uriRoute
	breakers   *breaker.Registry
}

// NewRouteTable builds an empty RouteTable. breakers may be nil to disable
// per-route circuit breaking entirely.
func NewRouteTable(breakers *breaker.Registry) *RouteTable {
	return &RouteTable{codeRoutes: make(map[string]*codeRoute), breakers: breakers}
}

// RegisterCodeProcessor registers processor to handle request code. code,
// processor and pool must all be non-blank/non-nil. Calling after Freeze
// panics — registration must happen before Start.
func (t *RouteTable) RegisterCodeProcessor(code string, processor CodeProcessor, pool *workerpool.Pool) {
	if code == "" || processor == nil || pool == nil {
		panic("ingress: RegisterCodeProcessor requires a non-blank code, a processor and a pool")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		panic("ingress: cannot register a code processor after the route table has started")
	}
	var b *breaker.Breaker
	if t.breakers != nil {
		b = t.breakers.Get("code:" + code)
	}
	t.codeRoutes[code] = &codeRoute{code: code, processor: processor, pool: pool, breaker: b}
}

// RegisterURIProcessor registers processor for URI-prefix routing. Prefixes
// are kept sorted longest-first so the most specific registered prefix
// always wins a multi-match, regardless of registration order.
func (t *RouteTable) RegisterURIProcessor(prefix string, processor EventProcessor, pool *workerpool.Pool) {
	if prefix == "" || processor == nil || pool == nil {
		panic("ingress: RegisterURIProcessor requires a non-blank prefix, a processor and a pool")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		panic("ingress: cannot register a URI processor after the route table has started")
	}
	var b *breaker.Breaker
	if t.breakers != nil {
		b = t.breakers.Get("uri:" + prefix)
	}
	t.uriRoutes = append(t.uriRoutes, &uriRoute{prefix: prefix, processor: processor, pool: pool, breaker: b})
	sort.SliceStable(t.uriRoutes, func(i, j int) bool {
		return len(t.uriRoutes[i].prefix) > len(t.uriRoutes[j].prefix)
	})
}

// Freeze marks the table started; further registration calls panic.
func (t *RouteTable) Freeze() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.started = true
}

// matchURI returns the most specific registered uriRoute whose prefix
// matches uri, or nil if none match.
func (t *RouteTable) matchURI(uri string) *uriRoute {
	for _, r := range t.uriRoutes {
		if strings.HasPrefix(uri, r.prefix) {
			return r
		}
	}
	return nil
}

func (t *RouteTable) matchCode(code string) *codeRoute {
	return t.codeRoutes[code]
}
