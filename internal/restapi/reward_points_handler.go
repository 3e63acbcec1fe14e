package restapi

import (
	"net/http"

	"buspulse.openmobility.org/internal/models"
	"buspulse.openmobility.org/internal/utils"
)

// rewardPointsHandler returns a rider's cumulative points. Users who have
// never reported are at zero.
func (api *RestAPI) rewardPointsHandler(w http.ResponseWriter, r *http.Request) {
	userID := utils.ExtractIDFromParams(r, "id")

	points := api.Engine.UserRewardPoints(models.UserID(userID))
	api.sendResponse(w, r, points)
}
