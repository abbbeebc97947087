package main

import (
	"log"

	"github.com/go-gl/mathgl/mgl32"

	"voxelcore.ai/internal/sim/world/logic/raycast"
	"voxelcore.ai/internal/sim/worldhandler"
)

const (
	bodyWidth  = 0.6
	bodyHeight = 1.8
	eyeHeight  = 1.6
	reach      = 8
)

type spawn struct {
	Feet   mgl32.Vec3
	Ground raycast.Hit
}

// findSpawn stands a body on the highest block of the (x,y) line and probes
// the ground below its eyes. It reports false until the line is loaded.
func findSpawn(m *worldhandler.Mirror, x, y int, logger *log.Logger) (spawn, bool) {
	top, ok := m.TopZ(x, y)
	if !ok {
		return spawn{}, false
	}
	feet := mgl32.Vec3{float32(x) + 0.5, float32(y) + 0.5, float32(top + 1)}
	box, _ := raycast.Unembed(m, raycast.BoxAt(feet, bodyWidth, bodyHeight), logger)
	feet[2] = box.Min[2]

	eye := feet.Add(mgl32.Vec3{0, 0, eyeHeight})
	hit, ok := raycast.Raycast(m, eye, mgl32.Vec3{0, 0, -1}, reach)
	if !ok {
		return spawn{}, false
	}
	return spawn{Feet: feet, Ground: hit}, true
}
