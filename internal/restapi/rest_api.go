// Package restapi exposes the consensus engine over the platform's JSON API
// conventions: every response is wrapped in the standard envelope and every
// endpoint requires an API key.
package restapi

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"buspulse.openmobility.org/internal/app"
)

type RestAPI struct {
	*app.Application
}

// NewRestAPI creates a new RestAPI instance.
func NewRestAPI(app *app.Application) *RestAPI {
	return &RestAPI{Application: app}
}

// SetRoutes mounts all API endpoints on the router.
func (api *RestAPI) SetRoutes(router *httprouter.Router) {
	api.handle(router, http.MethodPost, "/api/where/report-location.json", api.reportLocationHandler)
	api.handle(router, http.MethodPost, "/api/where/disembark.json", api.disembarkHandler)
	api.handle(router, http.MethodGet, "/api/where/bus-location/:id", api.busLocationHandler)
	api.handle(router, http.MethodGet, "/api/where/buses-on-route.json", api.busesOnRouteHandler)
	api.handle(router, http.MethodGet, "/api/where/reward-points/:id", api.rewardPointsHandler)
}

func (api *RestAPI) handle(router *httprouter.Router, method, path string, handlerFunc http.HandlerFunc) {
	handler := api.requireValidAPIKey(handlerFunc)
	handler = api.logRequests(handler)
	router.Handler(method, path, handler)
}

// requireValidAPIKey rejects requests whose key query parameter is not one of
// the configured API keys.
func (api *RestAPI) requireValidAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("key")
		for _, valid := range api.Config.ApiKeys {
			if key == valid {
				next.ServeHTTP(w, r)
				return
			}
		}
		api.invalidAPIKeyResponse(w, r)
	})
}
