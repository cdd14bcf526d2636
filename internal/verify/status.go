package verify

// Status is the outcome for one staging file.
type Status string

const (
	// StatusUntracked means no catalog image has the file's fingerprint.
	StatusUntracked Status = "untracked"
	// StatusAmbiguous means several catalog images share the fingerprint.
	StatusAmbiguous Status = "ambiguous"
	// StatusMismatch means the fingerprints agree but full contents differ.
	StatusMismatch Status = "mismatch"
	// StatusVerified means the content matches and the file was kept.
	StatusVerified Status = "verified"
	// StatusDeleted means the content matches and the file was removed.
	StatusDeleted Status = "deleted"
	// StatusFailed means the file could not be checked or deleted.
	StatusFailed Status = "failed"
)

// Statuses lists every status in report order.
var Statuses = []Status{StatusDeleted, StatusVerified, StatusUntracked, StatusAmbiguous, StatusMismatch, StatusFailed}

// FileResult records what happened to one staging file.
type FileResult struct {
	Path        string `json:"path"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Status      Status `json:"status"`
	Matches     int    `json:"matches"`
	ImageID     int64  `json:"image_id,omitempty"`
	CatalogPath string `json:"catalog_path,omitempty"`
	Error       string `json:"error,omitempty"`
}
