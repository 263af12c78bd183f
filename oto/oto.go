// Package oto plays and exports audio previews of tunings.
package oto

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/ebitengine/oto/v3"
)

// Context is an audio output. Only one Context can exist per process.
type Context struct {
	ctx        *oto.Context
	sampleRate int
}

const pollInterval = 10 * time.Millisecond

func NewContext(sampleRate int) (*Context, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatFloat32LE,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot create oto context: %w", err)
	}
	<-ready
	return &Context{ctx: ctx, sampleRate: sampleRate}, nil
}

func (c *Context) SampleRate() int { return c.sampleRate }

// Play plays the buffer and returns when it has been played or ctx is done.
func (c *Context) Play(ctx context.Context, buf Buffer) error {
	var raw bytes.Buffer
	if err := binary.Write(&raw, binary.LittleEndian, buf); err != nil {
		return fmt.Errorf("could not convert buffer to bytes: %w", err)
	}
	p := c.ctx.NewPlayer(&raw)
	p.Play()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for p.IsPlaying() {
		select {
		case <-ctx.Done():
			p.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	if err := p.Err(); err != nil {
		return fmt.Errorf("cannot write to player: %w", err)
	}
	return nil
}
