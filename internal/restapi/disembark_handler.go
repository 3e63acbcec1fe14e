package restapi

import (
	"net/http"
	"time"

	"buspulse.openmobility.org/internal/models"
	"buspulse.openmobility.org/internal/utils"
)

// disembarkHandler closes a rider's tracking session. The call is idempotent
// and succeeds even when no session exists; only missing identifiers are a
// client error.
func (api *RestAPI) disembarkHandler(w http.ResponseWriter, r *http.Request) {
	queryParams := r.URL.Query()

	busID, fieldErrors := utils.RequireStringParam(queryParams, "busId", nil)
	userID, fieldErrors := utils.RequireStringParam(queryParams, "userId", fieldErrors)
	endTime, fieldErrors := utils.ParseEpochMillisParam(queryParams, "time", fieldErrors)
	if len(fieldErrors) > 0 {
		api.validationErrorResponse(w, r, fieldErrors)
		return
	}

	if endTime.IsZero() {
		endTime = time.Now()
	}
	endLocationID := models.LocationID(queryParams.Get("locationId"))

	api.Engine.ProcessDisembarkation(models.BusID(busID), models.UserID(userID), endTime, endLocationID)

	api.sendResponse(w, r, struct{}{})
}
