//go:build !nogpu

package gpu

import (
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// frameTimeout bounds the fence wait after submitting a frame.
const frameTimeout = 5 * time.Second

// Session brackets one frame of GPU work: create a command encoder,
// record into it, submit, and wait for completion.
type Session struct {
	device hal.Device
	queue  hal.Queue
}

// NewSession creates a session recording on the given device and queue.
func NewSession(device hal.Device, queue hal.Queue) *Session {
	return &Session{device: device, queue: queue}
}

// Device returns the session's device.
func (s *Session) Device() hal.Device { return s.device }

// Queue returns the session's queue.
func (s *Session) Queue() hal.Queue { return s.queue }

// Frame runs record inside an encoder bracket and blocks until the GPU
// finishes the submitted work. A record error discards the encoding and
// nothing is submitted.
func (s *Session) Frame(label string, record func(encoder hal.CommandEncoder) error) error {
	encoder, err := s.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: label,
	})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}

	if err := record(encoder); err != nil {
		encoder.DiscardEncoding()
		return err
	}

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer s.device.FreeCommandBuffer(cmdBuf)

	fence, err := s.device.CreateFence()
	if err != nil {
		return fmt.Errorf("create fence: %w", err)
	}
	defer s.device.DestroyFence(fence)

	if err := s.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	fenceOK, err := s.device.Wait(fence, 1, frameTimeout)
	if err != nil || !fenceOK {
		return fmt.Errorf("wait for GPU: ok=%v err=%w", fenceOK, err)
	}
	return nil
}

// BeginColorPass begins a render pass with a single color attachment.
// A nil clear loads the previous contents; otherwise the attachment is
// cleared to the given color first.
func BeginColorPass(encoder hal.CommandEncoder, label string, view hal.TextureView, clear *gputypes.Color) hal.RenderPassEncoder {
	att := hal.RenderPassColorAttachment{
		View:    view,
		LoadOp:  gputypes.LoadOpLoad,
		StoreOp: gputypes.StoreOpStore,
	}
	if clear != nil {
		att.LoadOp = gputypes.LoadOpClear
		att.ClearValue = *clear
	}
	return encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label:            label,
		ColorAttachments: []hal.RenderPassColorAttachment{att},
	})
}
