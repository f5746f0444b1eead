package client

import "time"

// WorkloadConfig is the documented seam for a Poisson/Zipf traffic
// generator: the specification explicitly keeps that generator out of
// scope. Nothing in this module, cmd/epaxosd included, populates a
// WorkloadConfig or constructs traffic from one.
type WorkloadConfig struct {
	TargetRPS    float64
	KeySpaceSize int
	ZipfSkew     float64
	ReadRatio    float64
	RunDuration  time.Duration
}
