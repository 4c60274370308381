package entity

// ProbeResult is the orientation and audio metadata derived from the source
// file. Rotation is normalized into {0, 90, 180, 270}.
type ProbeResult struct {
	RotationDeg int
	HasAudio    bool
}
