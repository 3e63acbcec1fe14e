package restapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"buspulse.openmobility.org/internal/consensus"
	"buspulse.openmobility.org/internal/models"
)

// reportLocationHandler accepts one rider GPS report and returns the rider's
// cumulative reward points. Structurally malformed reports get a 400 with
// fieldErrors; everything else, including reports for buses the catalog does
// not know yet, succeeds.
func (api *RestAPI) reportLocationHandler(w http.ResponseWriter, r *http.Request) {
	var report models.LocationReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		api.validationErrorResponse(w, r, map[string][]string{
			"body": {"Request body must be a valid location report."},
		})
		return
	}

	points, err := api.Engine.ProcessLocationReport(report)
	if err != nil {
		var verr *consensus.ValidationError
		if errors.As(err, &verr) {
			api.validationErrorResponse(w, r, verr.Fields)
			return
		}
		api.serverErrorResponse(w, r, err)
		return
	}

	api.sendResponse(w, r, points)
}
