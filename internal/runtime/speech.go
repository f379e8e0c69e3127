package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/callflow/internal/audio"
	"github.com/aretw0/callflow/internal/latency"
)

// errNoSpeech is returned when a call runs without a synthesis pipeline.
var errNoSpeech = errors.New("speech disabled")

// say synthesizes text with the call voice and plays it on the telephony
// leg. Backends are tried in the pool's failover order; the dispatcher
// reports one classified error per backend and the failover lives here.
func (c *Call) say(ctx context.Context, text string, tr *latency.Turn) ([]byte, error) {
	svc := c.engine.svc
	if svc.Dispatcher == nil {
		return nil, errNoSpeech
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	candidates, err := svc.Pools[svc.Voice].Candidates()
	if err != nil {
		return nil, err
	}

	var errs []error
	for _, b := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tr.Mark(latency.FirstTTSRequest)
		speech, err := svc.Dispatcher.Synthesize(ctx, b, svc.Voice, text)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		tr.Mark(latency.FirstAudioByte)

		rate := speech.SampleRate
		if rate == 0 {
			rate = 16000
		}
		ulaw := audio.SpeechToTelephony(speech.Audio, rate)
		if svc.Sink != nil {
			if err := svc.Sink.Play(ctx, c.id, ulaw); err != nil {
				return ulaw, fmt.Errorf("play: %w", err)
			}
		}
		if len(errs) > 0 {
			c.logger.Info("tts failover succeeded", "endpoint", b.Endpoint, "failed", len(errs))
		}
		return ulaw, nil
	}
	return nil, fmt.Errorf("all %d tts backends failed: %w", len(candidates), errors.Join(errs...))
}
