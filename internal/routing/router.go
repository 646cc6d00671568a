package routing

import (
	"context"
	"net/http"
	"runtime/debug"
)

type paramsCtxKey struct{}

// PathParams returns the {name} segment values captured for the matched
// route, if any.
func PathParams(ctx context.Context) map[string]string {
	params, _ := ctx.Value(paramsCtxKey{}).(map[string]string)
	return params
}

// Router dispatches by method and path. Paths may contain {name} segments;
// captured values are exposed through PathParams. Handlers are wrapped with
// a panic guard that renders the standard error envelope.
type Router struct {
	classifier *Classifier
	exact      map[string]map[string]routeEntry
	patterns   []patternEntry
}

type routeEntry struct {
	rc      RouteClass
	handler http.Handler
}

type patternEntry struct {
	pattern pathPattern
	methods map[string]routeEntry
}

func NewRouter(classifier *Classifier) *Router {
	return &Router{
		classifier: classifier,
		exact:      make(map[string]map[string]routeEntry),
	}
}

func (r *Router) Handle(rc RouteClass, method string, path string, h http.Handler) {
	entry := routeEntry{rc: rc, handler: guarded(rc, h)}

	if pattern, ok := parsePathPattern(path); ok {
		for i := range r.patterns {
			if r.patterns[i].pattern.raw == path {
				r.patterns[i].methods[method] = entry
				return
			}
		}
		r.patterns = append(r.patterns, patternEntry{
			pattern: pattern,
			methods: map[string]routeEntry{method: entry},
		})
		return
	}

	if r.exact[path] == nil {
		r.exact[path] = make(map[string]routeEntry)
	}
	r.exact[path][method] = entry
}

func guarded(rc RouteClass, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				_ = debug.Stack()
				WriteError(w, req, rc, http.StatusInternalServerError, "internal_error", "internal error")
			}
		}()
		h.ServeHTTP(w, req)
	})
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if methods, ok := r.exact[req.URL.Path]; ok {
		r.dispatch(w, req, methods, nil)
		return
	}
	for _, p := range r.patterns {
		if params, ok := p.pattern.params(req.URL.Path); ok {
			r.dispatch(w, req, p.methods, params)
			return
		}
	}
	WriteError(w, req, r.classifier.Classify(req.URL.Path), http.StatusNotFound, "not_found", "not found")
}

func (r *Router) dispatch(w http.ResponseWriter, req *http.Request, methods map[string]routeEntry, params map[string]string) {
	entry, ok := methods[req.Method]
	if !ok {
		WriteError(w, req, anyClass(methods, r.classifier.Classify(req.URL.Path)), http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	if params != nil {
		req = req.WithContext(context.WithValue(req.Context(), paramsCtxKey{}, params))
	}
	entry.handler.ServeHTTP(w, req)
}

func anyClass(methods map[string]routeEntry, fallback RouteClass) RouteClass {
	for _, e := range methods {
		return e.rc
	}
	return fallback
}
