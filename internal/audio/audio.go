// Package audio turns WAV input into the mono float32 PCM the speech engine
// consumes.
package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/wav"

	"murmur/internal/engine"
	"murmur/internal/services"
)

// DecodeFile reads a WAV file and returns mono float32 samples at the
// engine's sample rate.
func DecodeFile(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "audio", "decode",
			fmt.Sprintf("cannot open %s", path), err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a WAV stream and returns mono float32 samples at the engine's
// sample rate. Multi-channel input is downmixed by averaging and any source
// rate is linearly resampled.
func Decode(r io.ReadSeeker) ([]float32, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, services.Wrap(services.ErrValidation, "audio", "decode", "not a valid wav stream", nil)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, services.Wrap(services.ErrValidation, "audio", "decode", "wav payload is unreadable", err)
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, services.Wrap(services.ErrValidation, "audio", "decode", "wav stream holds no samples", nil)
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float32(int(1) << (bitDepth - 1))

	samples := make([]float32, 0, len(buf.Data)/channels)
	for i := 0; i+channels <= len(buf.Data); i += channels {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += float32(buf.Data[i+c]) / scale
		}
		samples = append(samples, sum/float32(channels))
	}

	rate := int(dec.SampleRate)
	if rate == 0 {
		rate = buf.Format.SampleRate
	}
	if rate != engine.SampleRate {
		samples = resample(samples, rate, engine.SampleRate)
	}
	return samples, nil
}

// Duration reports the playback length of a sample buffer in seconds.
func Duration(samples []float32) float64 {
	return float64(len(samples)) / float64(engine.SampleRate)
}

// resample converts between rates with linear interpolation. Good enough for
// speech input; the models are robust to interpolation artifacts.
func resample(samples []float32, inRate, outRate int) []float32 {
	if inRate <= 0 || outRate <= 0 || inRate == outRate || len(samples) == 0 {
		return samples
	}
	ratio := float64(outRate) / float64(inRate)
	outLen := int(float64(len(samples)) * ratio)
	if outLen < 1 {
		outLen = 1
	}
	out := make([]float32, outLen)
	for i := range out {
		pos := float64(i) / ratio
		idx := int(pos)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = samples[idx] + (samples[idx+1]-samples[idx])*frac
	}
	return out
}
