package main

import (
	"context"
	"time"

	"github.com/BaSui01/warmtransfer/internal/metrics"
	"github.com/BaSui01/warmtransfer/speech"
	"github.com/BaSui01/warmtransfer/summary"
	"github.com/BaSui01/warmtransfer/transfer"
)

// instrumentedProvider records summary provider latency and failures.
type instrumentedProvider struct {
	summary.Provider
	collector *metrics.Collector
}

func (p instrumentedProvider) Summarize(ctx context.Context, req summary.Request) (*summary.CallSummary, error) {
	start := time.Now()
	s, err := p.Provider.Summarize(ctx, req)
	p.collector.RecordUpstream("summary", p.Name(), time.Since(start), err)
	return s, err
}

func (p instrumentedProvider) Brief(ctx context.Context, req summary.BriefRequest) (string, error) {
	start := time.Now()
	b, err := p.Provider.Brief(ctx, req)
	p.collector.RecordUpstream("briefing", p.Name(), time.Since(start), err)
	return b, err
}

// instrumentedSynthesizer records text-to-speech latency and failures.
type instrumentedSynthesizer struct {
	speech.Synthesizer
	collector *metrics.Collector
}

func (s instrumentedSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	start := time.Now()
	audio, err := s.Synthesizer.Synthesize(ctx, text)
	s.collector.RecordUpstream("tts", s.Name(), time.Since(start), err)
	return audio, err
}

// fanOutSender delivers data messages to every sender and returns the
// first failure after trying them all.
type fanOutSender []transfer.DataSender

func (f fanOutSender) SendData(ctx context.Context, roomID, topic string, data []byte) error {
	var first error
	for _, s := range f {
		if err := s.SendData(ctx, roomID, topic, data); err != nil && first == nil {
			first = err
		}
	}
	return first
}
