package restapi

import (
	"net/http"

	"buspulse.openmobility.org/internal/models"
	"buspulse.openmobility.org/internal/utils"
)

// busLocationHandler returns the current consensus snapshot for one bus.
// Unknown buses yield a zero-confidence snapshot rather than a 404 so the
// polling map UI stays simple.
func (api *RestAPI) busLocationHandler(w http.ResponseWriter, r *http.Request) {
	busID := utils.ExtractIDFromParams(r, "id")

	snapshot := api.Engine.CurrentBusLocation(models.BusID(busID))
	api.sendResponse(w, r, snapshot)
}
