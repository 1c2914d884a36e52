//go:build cgo && !nonative

package native

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/go-audio/wav"
)

//go:embed chime.wav
var chimeWav []byte

var (
	chimeOnce    sync.Once
	chimeSamples []byte
	chimeRate    uint32
	chimeChans   uint32
	chimeErr     error
)

// decodeChime decodes the embedded confirmation chime into S16LE frames. The
// decode runs once and the result is kept for later switches.
func decodeChime() ([]byte, uint32, uint32, error) {
	chimeOnce.Do(func() {
		dec := wav.NewDecoder(bytes.NewReader(chimeWav))
		if !dec.IsValidFile() {
			chimeErr = errors.New("embedded chime is not a valid wav file")
			return
		}

		buf, err := dec.FullPCMBuffer()
		if err != nil {
			chimeErr = err
			return
		}

		samples := make([]byte, len(buf.Data)*2)
		for i, s := range buf.Data {
			samples[i*2] = byte(s)
			samples[i*2+1] = byte(s >> 8)
		}
		chimeSamples = samples
		chimeRate = uint32(buf.Format.SampleRate)
		chimeChans = uint32(buf.Format.NumChannels)
	})
	return chimeSamples, chimeRate, chimeChans, chimeErr
}

// playChime plays the confirmation chime on the given device, blocking until
// playback drains or the context is canceled.
func (b *malgoBackend) playChime(ctx context.Context, devID malgo.DeviceID) error {
	samples, rate, chans, err := decodeChime()
	if err != nil {
		return err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	if devID != emptyDeviceID {
		deviceConfig.Playback.DeviceID = devID.Pointer()
	}
	deviceConfig.SampleRate = rate
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = chans
	deviceConfig.Alsa.NoMMap = 1

	var mtx sync.Mutex
	var off int
	done := make(chan struct{})
	var doneOnce sync.Once

	onSendFrames := func(outSample, _ []byte, _ uint32) {
		mtx.Lock()
		n := copy(outSample, samples[off:])
		off += n
		drained := off >= len(samples)
		mtx.Unlock()

		// Zero the remainder of the last period.
		for i := n; i < len(outSample); i++ {
			outSample[i] = 0
		}
		if drained {
			doneOnce.Do(func() { close(done) })
		}
	}

	device, err := malgo.InitDevice(b.malgoCtx.Context, deviceConfig,
		malgo.DeviceCallbacks{Data: onSendFrames})
	if err != nil {
		return err
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return err
	}

	select {
	case <-done:
		// Let the final period drain before tearing down the device.
		time.Sleep(50 * time.Millisecond)
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
	}
	device.Uninit()
	return nil
}
