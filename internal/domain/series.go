package domain

import "time"

// Bucket counts elevated events whose timestamp falls in [Start, Start+width).
type Bucket struct {
	Start time.Time `json:"bucket_start"`
	Count int       `json:"count"`
}

// Series is the fixed-length rate histogram plus its derived statistics.
type Series struct {
	Buckets    []Bucket      `json:"buckets"`
	Width      time.Duration `json:"-"`
	WidthLabel string        `json:"width_label"`
	Peak       int           `json:"peak"`
	Mean       float64       `json:"mean"`
}
