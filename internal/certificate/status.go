package certificate

import "go_certmgr/internal/model"

// CanRequest reports whether a new generation job may be enqueued for a
// certificate in the given state. Any other state already holds a final
// artifact or an outstanding job.
func CanRequest(status model.CertStatus) bool {
	switch status {
	case model.CertStatusUnavailable, model.CertStatusNotPassing, model.CertStatusError:
		return true
	}
	return false
}

// InFlight reports whether a job is currently outstanding for the state
func InFlight(status model.CertStatus) bool {
	switch status {
	case model.CertStatusGenerating, model.CertStatusRegenerating, model.CertStatusDeleting:
		return true
	}
	return false
}

// Transition computes the next state for a callback result arriving
// while the record is in the given state. ok is false when the state
// does not accept callbacks; the record must then stay untouched.
func Transition(status model.CertStatus, result Result) (model.CertStatus, bool) {
	if !InFlight(status) {
		return status, false
	}

	switch result.(type) {
	case Failure:
		return model.CertStatusError, true
	case Success:
		if status == model.CertStatusDeleting {
			return model.CertStatusDeleted, true
		}
		return model.CertStatusDownloadable, true
	}
	return status, false
}
