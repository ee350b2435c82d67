package media

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"os/exec"
	"path"
	"strings"
	"time"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/model"
	"github.com/Pguillen87/arcanum-ai-sub001/pkg/logger"
	"github.com/gabriel-vasile/mimetype"
)

var (
	lookPath       = exec.LookPath
	commandContext = exec.CommandContext
)

var supported = map[string]bool{
	"audio/mpeg": true,
	"audio/wav":  true,
	"audio/mp4":  true,
	"audio/flac": true,
	"audio/webm": true,
	"audio/ogg":  true,
	"video/webm": true,
	"video/mp4":  true,
}

var needsTranscode = map[string]bool{
	"audio/webm": true,
	"video/webm": true,
	"audio/ogg":  true,
}

var aliases = map[string]string{
	"audio/mp3":       "audio/mpeg",
	"audio/mpeg3":     "audio/mpeg",
	"audio/x-mp3":     "audio/mpeg",
	"audio/x-wav":     "audio/wav",
	"audio/wave":      "audio/wav",
	"audio/vnd.wave":  "audio/wav",
	"audio/x-flac":    "audio/flac",
	"audio/x-m4a":     "audio/mp4",
	"audio/m4a":       "audio/mp4",
	"audio/aac":       "audio/mp4",
	"audio/opus":      "audio/ogg",
	"application/ogg": "audio/ogg",
}

var extensions = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".mp4":  "video/mp4",
	".flac": "audio/flac",
	".webm": "audio/webm",
	".weba": "audio/webm",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".opus": "audio/ogg",
}

var fileExtension = map[string]string{
	"audio/mpeg": ".mp3",
	"audio/wav":  ".wav",
	"audio/mp4":  ".m4a",
	"video/mp4":  ".mp4",
	"audio/flac": ".flac",
	"audio/webm": ".webm",
	"video/webm": ".webm",
	"audio/ogg":  ".ogg",
}

type Options struct {
	FFmpegPath string
	Timeout    time.Duration
	MaxBytes   int
}

// Normalizer resolves the real type of an upload and converts formats the
// speech-to-text endpoint rejects into 16kHz mono WAV.
type Normalizer struct {
	ffmpeg   string
	timeout  time.Duration
	maxBytes int
}

func NewNormalizer(opts Options) *Normalizer {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	return &Normalizer{ffmpeg: opts.FFmpegPath, timeout: opts.Timeout, maxBytes: opts.MaxBytes}
}

// ResolveMIME picks the first supported type among the declared type, the
// sniffed content type and the filename extension.
func ResolveMIME(data []byte, declared, filename string) (string, bool) {
	var sniffed string
	if len(data) > 0 {
		sniffed = mimetype.Detect(data).String()
	}
	byExt := extensions[strings.ToLower(path.Ext(filename))]

	for _, candidate := range []string{declared, sniffed, byExt} {
		if m := canonical(candidate); supported[m] {
			return m, true
		}
	}
	return "", false
}

func canonical(v string) string {
	if v == "" {
		return ""
	}
	m, _, err := mime.ParseMediaType(v)
	if err != nil {
		m = strings.TrimSpace(strings.SplitN(v, ";", 2)[0])
	}
	m = strings.ToLower(m)
	if alias, ok := aliases[m]; ok {
		return alias
	}
	return m
}

// Normalize returns audio ready for transcription. Unsupported input fails
// with ErrUnsupportedFormat before any upload. When a transcode is needed
// and ffmpeg is missing, the original bytes pass through with a warning.
func (n *Normalizer) Normalize(ctx context.Context, data []byte, declaredMime, filename string) (*model.NormalizedMedia, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty media", model.ErrUnsupportedFormat)
	}
	if n.maxBytes > 0 && len(data) > n.maxBytes {
		return nil, fmt.Errorf("%w: media is %d bytes, limit is %d", model.ErrUnsupportedFormat, len(data), n.maxBytes)
	}

	mt, ok := ResolveMIME(data, declaredMime, filename)
	if !ok {
		return nil, fmt.Errorf("%w: declared %q, file %q", model.ErrUnsupportedFormat, declaredMime, filename)
	}
	out := &model.NormalizedMedia{Data: data, MimeType: mt, Filename: outputName(filename, mt)}
	if !needsTranscode[mt] {
		return out, nil
	}

	bin, err := lookPath(n.ffmpeg)
	if err != nil {
		logger.Warn("ffmpeg not available, sending media without conversion", "mime", mt, "ffmpeg", n.ffmpeg)
		return out, nil
	}

	wav, err := n.transcode(ctx, bin, data)
	if err != nil {
		return nil, err
	}
	return &model.NormalizedMedia{Data: wav, MimeType: "audio/wav", Filename: outputName(filename, "audio/wav"), Transcoded: true}, nil
}

func (n *Normalizer) transcode(ctx context.Context, bin string, data []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		"-f", "wav",
		"pipe:1",
	}
	cmd := commandContext(ctx, bin, args...)
	cmd.Stdin = bytes.NewReader(data)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: ffmpeg timed out after %s", model.ErrConversion, n.timeout)
		}
		return nil, fmt.Errorf("%w: ffmpeg: %v: %s", model.ErrConversion, err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: ffmpeg produced no output", model.ErrConversion)
	}
	logger.Debug("media transcoded", "in_bytes", len(data), "out_bytes", stdout.Len(), "took", time.Since(start))
	return stdout.Bytes(), nil
}

func outputName(filename, mt string) string {
	base := strings.TrimSuffix(path.Base(filename), path.Ext(filename))
	if base == "" || base == "." || base == "/" {
		base = "audio"
	}
	return base + fileExtension[mt]
}
