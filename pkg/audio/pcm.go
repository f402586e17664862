package audio

import "fmt"

// Convert resamples and remixes 16-bit PCM from one format to another.
// Resampling happens first so that a stereo source headed for mono output is
// only downmixed once.
func Convert(pcm []byte, from, to Format) ([]byte, error) {
	if from.SampleRate <= 0 || to.SampleRate <= 0 || from.Channels <= 0 || to.Channels <= 0 {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidFormat, from, to)
	}
	if len(pcm)%(2*from.Channels) != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of %s frames", ErrInvalidFormat, len(pcm), from)
	}
	if from == to {
		return pcm, nil
	}
	out := Resample(pcm, from.Channels, from.SampleRate, to.SampleRate)
	switch {
	case from.Channels == to.Channels:
	case from.Channels == 2 && to.Channels == 1:
		out = StereoToMono(out)
	case from.Channels == 1 && to.Channels == 2:
		out = MonoToStereo(out)
	default:
		return nil, fmt.Errorf("%w: cannot remix %s to %s", ErrInvalidFormat, from, to)
	}
	return out, nil
}

func sample(pcm []byte, i int) int16 {
	return int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
}

func putSample(pcm []byte, i int, s int16) {
	pcm[i*2] = byte(s)
	pcm[i*2+1] = byte(s >> 8)
}

// MonoToStereo duplicates every sample into both channels.
func MonoToStereo(pcm []byte) []byte {
	n := len(pcm) / 2
	out := make([]byte, n*4)
	for i := range n {
		s := sample(pcm, i)
		putSample(out, 2*i, s)
		putSample(out, 2*i+1, s)
	}
	return out
}

// StereoToMono averages the two channels of every frame.
func StereoToMono(pcm []byte) []byte {
	n := len(pcm) / 4
	out := make([]byte, n*2)
	for i := range n {
		l, r := int32(sample(pcm, 2*i)), int32(sample(pcm, 2*i+1))
		putSample(out, i, int16((l+r)/2))
	}
	return out
}

// Resample converts interleaved PCM with the given channel count from
// srcRate to dstRate by linear interpolation. Equal or invalid rates return
// pcm unchanged.
func Resample(pcm []byte, channels, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || channels <= 0 || srcRate == dstRate {
		return pcm
	}
	srcFrames := len(pcm) / (2 * channels)
	if srcFrames == 0 {
		return pcm
	}
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	out := make([]byte, dstFrames*2*channels)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstFrames {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		next := min(idx+1, srcFrames-1)
		for c := range channels {
			s0 := float64(sample(pcm, idx*channels+c))
			s1 := float64(sample(pcm, next*channels+c))
			putSample(out, i*channels+c, int16(s0*(1-frac)+s1*frac))
		}
	}
	return out
}
