package audio

import (
	"fmt"
	"log/slog"
	"unsafe"

	"github.com/gen2brain/malgo"
)

// MalgoBackend opens capture devices through miniaudio. One context is shared
// by every channel; each Open creates an independent device handle.
type MalgoBackend struct {
	ctx *malgo.AllocatedContext
}

// NewMalgoBackend initializes the audio context. Call Close() when done.
func NewMalgoBackend(logger *slog.Logger) (*MalgoBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("miniaudio", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("initializing audio context: %w", err)
	}
	return &MalgoBackend{ctx: ctx}, nil
}

// Open configures a float32 capture device on the default microphone.
func (b *MalgoBackend) Open(f Format, periodFrames int, onData func([]float32), onStop func()) (Device, error) {
	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatF32
	deviceCfg.Capture.Channels = uint32(f.Channels)
	deviceCfg.SampleRate = uint32(f.SampleRate)
	deviceCfg.PeriodSizeInFrames = uint32(periodFrames)

	channels := uint32(f.Channels)
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pSample []byte, frameCount uint32) {
			onData(float32View(pSample, frameCount*channels))
		},
		Stop: onStop,
	}

	device, err := malgo.InitDevice(b.ctx.Context, deviceCfg, callbacks)
	if err != nil {
		return nil, fmt.Errorf("initializing capture device: %w", err)
	}
	return &malgoDevice{device: device}, nil
}

// CaptureDevices lists the names of the available capture devices.
func (b *MalgoBackend) CaptureDevices() ([]string, error) {
	infos, err := b.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("listing capture devices: %w", err)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return names, nil
}

// Close releases the audio context.
func (b *MalgoBackend) Close() error {
	if b.ctx == nil {
		return nil
	}
	if err := b.ctx.Uninit(); err != nil {
		return fmt.Errorf("uninitializing audio context: %w", err)
	}
	b.ctx.Free()
	b.ctx = nil
	return nil
}

type malgoDevice struct {
	device *malgo.Device
}

func (d *malgoDevice) Start() error {
	if err := d.device.Start(); err != nil {
		return fmt.Errorf("starting capture device: %w", err)
	}
	return nil
}

// Close uninitializes the device; miniaudio waits for the callback to return.
func (d *malgoDevice) Close() error {
	d.device.Uninit()
	return nil
}

// float32View reinterprets little-endian f32 device bytes as samples without
// copying. n is clamped to the number of whole samples in data.
func float32View(data []byte, n uint32) []float32 {
	whole := uint32(len(data) / 4)
	if n > whole {
		n = whole
	}
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&data[0])), n)
}
