package models

// StorageInfo describes the persistence backend the service was started with.
type StorageInfo struct {
	Provider   string `json:"provider"`
	IsCloud    bool   `json:"isCloud"`
	BucketName string `json:"bucketName,omitempty"`
	ProjectID  string `json:"projectId,omitempty"`
}
