package transcode

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/RyanBlaney/sonido-voz/logging"
)

// decodeWithFFmpeg pipes the container through ffmpeg and reads back mono
// float64 PCM already resampled to the target rate. The -t flag stops
// decoding once the maximum duration is reached.
func (d *Decoder) decodeWithFFmpeg(ctx context.Context, data []byte) (*rawAudio, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "audio_decoder",
		"function":  "decodeWithFFmpeg",
		"data_size": len(data),
	})

	args := d.buildFFmpegArgs()

	if d.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, d.config.FFmpegPath, args...)
	cmd.Stdin = bytes.NewReader(data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logger.Debug("Running ffmpeg command", logging.Fields{
		"args": strings.Join(args, " "),
	})

	start := time.Now()
	output, err := cmd.Output()
	if err != nil {
		logger.Error(err, "FFmpeg decode failed", logging.Fields{
			"stderr": stderr.String(),
		})
		return nil, fmt.Errorf("ffmpeg decode failed: %w", err)
	}

	samples := bytesToFloat64(output)
	logger.Debug("FFmpeg decode completed", logging.Fields{
		"output_bytes": len(output),
		"samples":      len(samples),
		"decode_time":  time.Since(start).Seconds(),
	})

	if len(samples) == 0 {
		return nil, fmt.Errorf("no audio samples decoded")
	}

	return &rawAudio{
		samples:    samples,
		sampleRate: d.config.TargetSampleRate,
		channels:   1,
		codec:      "ffmpeg",
	}, nil
}

func (d *Decoder) buildFFmpegArgs() []string {
	args := []string{
		"-v", "error",
		"-i", "pipe:0",
	}

	if d.config.MaxDuration > 0 {
		args = append(args, "-t", fmt.Sprintf("%.3f", d.config.MaxDuration.Seconds()))
	}

	args = append(args,
		"-map", "0:a:0?",
		"-vn",
		"-f", "f64le",
		"-ac", "1",
		"-ar", strconv.Itoa(d.config.TargetSampleRate),
		"pipe:1",
	)
	return args
}

// bytesToFloat64 converts raw little-endian float64 bytes, dropping a partial trailing sample
func bytesToFloat64(data []byte) []float64 {
	data = data[:len(data)-(len(data)%8)]
	if len(data) == 0 {
		return nil
	}

	samples := make([]float64, len(data)/8)
	for i := range samples {
		bits := binary.LittleEndian.Uint64(data[i*8 : i*8+8])
		samples[i] = math.Float64frombits(bits)
	}
	return samples
}

// checkFFmpegAvailability reports whether the configured ffmpeg binary runs
func (d *Decoder) checkFFmpegAvailability() error {
	cmd := exec.Command(d.config.FFmpegPath, "-version")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg not found at %s: %w", d.config.FFmpegPath, err)
	}
	return nil
}
