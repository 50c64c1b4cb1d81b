package decoder

import (
	"encoding/binary"
	"sync"
)

// PCM passes raw 16-bit little-endian samples through. A byte left over from
// an odd-length Write is carried into the next one; mono input is expanded
// to stereo.
type PCM struct {
	mu      sync.Mutex
	format  Format
	onPCM   PCMReadyFunc
	started bool
	carry   []byte
	samples []int16
	stereo  []int16
}

// NewPCM creates a passthrough decoder for the given source format.
func NewPCM(format Format) *PCM {
	return &PCM{format: format}
}

// Codec implements Decoder.
func (p *PCM) Codec() string { return "PCM" }

// SetPCMReady implements Decoder.
func (p *PCM) SetPCMReady(fn PCMReadyFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onPCM = fn
}

// Begin implements Decoder.
func (p *PCM) Begin() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = true
	p.carry = p.carry[:0]
	return nil
}

// Write implements Decoder.
func (p *PCM) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return 0, ErrNotStarted
	}

	data := b
	if len(p.carry) > 0 {
		data = append(p.carry, b...)
	}
	count := len(data) / 2
	if cap(p.samples) < count {
		p.samples = make([]int16, count)
	}
	samples := p.samples[:count]
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[2*i:]))
	}
	p.carry = append(p.carry[:0], data[2*count:]...)

	if count > 0 && p.onPCM != nil {
		out := samples
		if p.format.NumChannels == 1 {
			p.stereo = expandMono(p.stereo, samples)
			out = p.stereo
		}
		p.onPCM(out, p.format)
	}
	return len(b), nil
}

// End implements Decoder. A trailing odd byte is discarded.
func (p *PCM) End() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = false
	p.carry = p.carry[:0]
	return nil
}
