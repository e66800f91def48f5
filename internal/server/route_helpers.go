package server

import (
	"net/http"

	"github.com/neto007/HRM-pipeline/internal/handlers"
)

// MethodRouter maps HTTP methods to handlers
type MethodRouter map[string]http.HandlerFunc

// RouteByMethod dispatches on the request method, answering 405 with the
// JSON error body used by every API route.
func RouteByMethod(routes MethodRouter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		handler, ok := routes[r.Method]
		if !ok {
			handlers.WriteJSON(w, http.StatusMethodNotAllowed, handlers.ErrorResponse{
				Error: "method " + r.Method + " not allowed",
				Kind:  "method_not_allowed",
			})
			return
		}
		handler(w, r)
	}
}

// RouteResourceCollection handles standard list + create pattern
// GET -> list, POST -> create
func RouteResourceCollection(list, create http.HandlerFunc) http.HandlerFunc {
	return RouteByMethod(MethodRouter{"GET": list, "POST": create})
}

// RouteResourceItem handles get + delete on a single resource
func RouteResourceItem(get, remove http.HandlerFunc) http.HandlerFunc {
	return RouteByMethod(MethodRouter{"GET": get, "DELETE": remove})
}

// post restricts an action route to POST
func post(handler http.HandlerFunc) http.HandlerFunc {
	return RouteByMethod(MethodRouter{"POST": handler})
}
