// Package pose provides head pose math and the tracking fusion engine
// for the streaming client. Orientation comes from inertial fusion,
// position from an optional world tracker, with barometric altitude
// layered on top when calibrated.
package pose

import (
	"hash/fnv"
	"time"
)

// HeadPath is the canonical device path for the head-mounted display.
const HeadPath = "/user/head"

// HeadID identifies the head device in tracking samples.
var HeadID = PathID(HeadPath)

// PathID hashes a device path to its stable 64-bit wire identifier.
func PathID(path string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(path))
	return h.Sum64()
}

// HeadPose is the fused head transform in the world frame.
type HeadPose struct {
	Orientation Quaternion
	Position    Vec3
}

// DeviceMotion is one tracked-device sample stamped with the display
// time it predicts for.
type DeviceMotion struct {
	DeviceID  uint64
	Pose      HeadPose
	Timestamp time.Time
}
