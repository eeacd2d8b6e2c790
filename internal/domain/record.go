package domain

import "time"

// GeneratedImageRecord is one gallery entry, materialized per output URL of a
// succeeded job. Only Favorite may change afterwards.
type GeneratedImageRecord struct {
	ID            string               `json:"id"`
	JobID         string               `json:"job_id"`
	ImageURL      string               `json:"image_url"`
	LocalCacheRef string               `json:"local_cache_ref,omitempty"`
	Prompt        string               `json:"prompt"`
	Parameters    GenerationParameters `json:"parameters"`
	Status        JobStatus            `json:"status"`
	Favorite      bool                 `json:"favorite"`
	CreatedAt     time.Time            `json:"created_at"`
}
