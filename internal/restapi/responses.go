package restapi

import (
	"encoding/json"
	"net/http"

	"buspulse.openmobility.org/internal/models"
)

// sendResponse writes data wrapped in the standard success envelope.
func (api *RestAPI) sendResponse(w http.ResponseWriter, r *http.Request, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(models.NewOKResponse(data))
	if err != nil {
		api.serverErrorResponse(w, r, err)
	}
}
