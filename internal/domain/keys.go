package domain

import "strings"

const (
	// OutputPrefix holds every published video. Nothing under it is ever a
	// job input.
	OutputPrefix = "videos/"

	outputKeyPrefix = OutputPrefix + "vid_"
	outputKeySuffix = ".mp4"

	// VideoContentType is the media type published output objects carry.
	VideoContentType = "video/mp4"
)

// OutputKey derives the Asset Store key of a job's video. It is a pure
// function of the job identifier; existence of the key is the completion signal.
func OutputKey(jobID string) string {
	return outputKeyPrefix + strings.TrimSpace(jobID) + outputKeySuffix
}

// JobIDFromOutputKey reverses OutputKey. ok is false for keys outside the layout.
func JobIDFromOutputKey(key string) (jobID string, ok bool) {
	if !strings.HasPrefix(key, outputKeyPrefix) || !strings.HasSuffix(key, outputKeySuffix) {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(key, outputKeyPrefix), outputKeySuffix)
	if id == "" {
		return "", false
	}
	return id, true
}
