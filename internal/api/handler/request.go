package handler

import (
	"encoding/json"
	"net/http"

	"recruit_proctor/internal/common"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads the request body into dst. On failure it has already
// answered 400 and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return false
	}
	return true
}
