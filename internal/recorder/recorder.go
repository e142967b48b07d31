// ABOUTME: Capture of played audio for export
// ABOUTME: Taps the output graph and writes WAV or Opus-encoded exports
package recorder

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/hraban/opus.v2"

	"github.com/Soundrift/soundrift-go/internal/audio"
	"github.com/Soundrift/soundrift-go/internal/pcm"
)

// Recorder accumulates interleaved PCM from the output graph tap. The
// capture is 16-bit LE, matching the wire and device format, so export is
// a header away.
type Recorder struct {
	mu         sync.Mutex
	log        *zap.Logger
	sampleRate int
	channels   int
	data       []byte
	recording  bool
}

// New creates a recorder for the session's output format.
func New(sampleRate, channels int, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{
		log:        log,
		sampleRate: sampleRate,
		channels:   channels,
	}
}

// Start begins capturing. Any previous capture is discarded.
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = nil
	r.recording = true
	r.log.Info("recording started")
}

// Stop ends capturing, keeping the data for export.
func (r *Recorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recording = false
	r.log.Info("recording stopped", zap.Int("bytes", len(r.data)))
}

// Recording reports whether a capture is active.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Capture is the graph tap. Buffers arriving while not recording are
// ignored so the tap can stay permanently installed.
func (r *Recorder) Capture(buf audio.Buffer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return
	}
	r.data = append(r.data, pcm.EncodeSamples(buf.Interleave())...)
}

// DurationSeconds returns the captured length.
func (r *Recorder) DurationSeconds() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	bytesPerSecond := r.sampleRate * r.channels * 2
	if bytesPerSecond == 0 {
		return 0
	}
	return float64(len(r.data)) / float64(bytesPerSecond)
}

// ExportWAV writes the capture as a canonical RIFF/WAVE file.
func (r *Recorder) ExportWAV(path string) error {
	r.mu.Lock()
	data := append([]byte(nil), r.data...)
	r.mu.Unlock()

	if len(data) == 0 {
		return fmt.Errorf("nothing recorded")
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(wavHeader(len(data), r.channels, r.sampleRate, 16)); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write samples: %w", err)
	}

	r.log.Info("exported recording", zap.String("path", path), zap.Int("bytes", len(data)))
	return nil
}

// ExportOpus encodes the capture to Opus packets and writes them with a
// uint16 length prefix per packet. Container muxing (webm and friends) is
// left to downstream tooling; the raw packet stream is the portable core.
func (r *Recorder) ExportOpus(w io.Writer) error {
	r.mu.Lock()
	data := append([]byte(nil), r.data...)
	r.mu.Unlock()

	if len(data) == 0 {
		return fmt.Errorf("nothing recorded")
	}

	enc, err := opus.NewEncoder(r.sampleRate, r.channels, opus.AppAudio)
	if err != nil {
		return fmt.Errorf("failed to create opus encoder: %w", err)
	}
	if err := enc.SetBitrate(64000 * r.channels); err != nil {
		r.log.Warn("failed to set opus bitrate", zap.Error(err))
	}

	// 20ms frames at the session rate
	frameSamples := r.sampleRate / 50 * r.channels
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}

	packet := make([]byte, 4000)
	for off := 0; off+frameSamples <= len(samples); off += frameSamples {
		n, err := enc.Encode(samples[off:off+frameSamples], packet)
		if err != nil {
			return fmt.Errorf("opus encode failed: %w", err)
		}

		var prefix [2]byte
		binary.BigEndian.PutUint16(prefix[:], uint16(n))
		if _, err := w.Write(prefix[:]); err != nil {
			return err
		}
		if _, err := w.Write(packet[:n]); err != nil {
			return err
		}
	}

	return nil
}

// wavHeader builds the 44-byte canonical RIFF/WAVE header.
func wavHeader(dataLen, channels, sampleRate, bitDepth int) []byte {
	h := make([]byte, 44)
	byteRate := sampleRate * channels * bitDepth / 8

	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], uint32(36+dataLen))
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16) // PCM chunk size
	binary.LittleEndian.PutUint16(h[20:22], 1)  // PCM format
	binary.LittleEndian.PutUint16(h[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(h[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(h[32:34], uint16(channels*bitDepth/8))
	binary.LittleEndian.PutUint16(h[34:36], uint16(bitDepth))
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], uint32(dataLen))

	return h
}
