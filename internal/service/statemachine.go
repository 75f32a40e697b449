package service

import "github.com/wso2/ob-consent-engine/internal/models"

// transitions lists the statuses reachable from each status. Terminal
// statuses have no entry.
var transitions = map[models.ConsentStatus][]models.ConsentStatus{
	models.StatusCreated: {
		models.StatusAwaitingAuthorisation,
		models.StatusAwaitingUpload,
		models.StatusAuthorised,
		models.StatusRejected,
		models.StatusRevoked,
	},
	models.StatusAwaitingUpload: {
		models.StatusAwaitingAuthorisation,
		models.StatusRejected,
		models.StatusRevoked,
	},
	models.StatusAwaitingAuthorisation: {
		models.StatusAuthorised,
		models.StatusRejected,
		models.StatusRevoked,
	},
	models.StatusAuthorised: {
		models.StatusRevoked,
		models.StatusExpired,
		models.StatusRejected,
	},
}

// CanTransition reports whether a consent may move from one status to another
func CanTransition(from, to models.ConsentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
