package restapi

import (
	"net/http"

	"buspulse.openmobility.org/internal/models"
	"buspulse.openmobility.org/internal/utils"
)

// busesOnRouteHandler returns a snapshot for every bus scheduled between two
// locations.
func (api *RestAPI) busesOnRouteHandler(w http.ResponseWriter, r *http.Request) {
	queryParams := r.URL.Query()

	from, fieldErrors := utils.RequireStringParam(queryParams, "from", nil)
	to, fieldErrors := utils.RequireStringParam(queryParams, "to", fieldErrors)
	if len(fieldErrors) > 0 {
		api.validationErrorResponse(w, r, fieldErrors)
		return
	}

	snapshots := api.Engine.BusLocationsOnRoute(models.LocationID(from), models.LocationID(to))

	api.sendResponse(w, r, struct {
		List []models.BusLocationSnapshot `json:"list"`
	}{List: snapshots})
}
