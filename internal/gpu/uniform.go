//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Uniform packing helpers. WGSL uniform structs are little-endian with
// 16-byte alignment for vec4 members; each effect builds its uniform
// block with these and keeps the layout next to its shader source.

// PutFloat32 writes v at buf[off:] and returns the next offset.
func PutFloat32(buf []byte, off int, v float32) int {
	binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
	return off + 4
}

// PutUint32 writes v at buf[off:] and returns the next offset.
func PutUint32(buf []byte, off int, v uint32) int {
	binary.LittleEndian.PutUint32(buf[off:], v)
	return off + 4
}

// PutVec2 writes two floats at buf[off:] and returns the next offset.
func PutVec2(buf []byte, off int, x, y float32) int {
	off = PutFloat32(buf, off, x)
	return PutFloat32(buf, off, y)
}

// PutVec4 writes four floats at buf[off:] and returns the next offset.
func PutVec4(buf []byte, off int, x, y, z, w float32) int {
	off = PutFloat32(buf, off, x)
	off = PutFloat32(buf, off, y)
	off = PutFloat32(buf, off, z)
	return PutFloat32(buf, off, w)
}

// PutColor writes an RGBA color as four floats and returns the next offset.
func PutColor(buf []byte, off int, c gputypes.Color) int {
	return PutVec4(buf, off, float32(c.R), float32(c.G), float32(c.B), float32(c.A))
}

// CreateAndUploadBuffer creates a GPU buffer sized to data and uploads
// data through the queue. The caller owns the returned buffer.
func CreateAndUploadBuffer(device hal.Device, queue hal.Queue, label string, data []byte, usage gputypes.BufferUsage) (hal.Buffer, error) {
	buf, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  uint64(len(data)),
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", label, err)
	}
	queue.WriteBuffer(buf, 0, data)
	return buf, nil
}

// UploadUniform creates a uniform buffer holding data.
func UploadUniform(device hal.Device, queue hal.Queue, label string, data []byte) (hal.Buffer, error) {
	return CreateAndUploadBuffer(device, queue, label, data,
		gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst)
}
