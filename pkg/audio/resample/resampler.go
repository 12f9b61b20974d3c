// ABOUTME: Streaming linear resampler for converting audio sample rates
// ABOUTME: Carries the last input frame across chunks so chunk borders interpolate cleanly
package resample

// Resampler performs linear interpolation to convert between sample rates
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	ratio      float64
	position   float64 // read position in frames, relative to the carried frame
	last       []int32 // final frame of the previous chunk
	haveLast   bool
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		ratio:      float64(inputRate) / float64(outputRate),
		last:       make([]int32, channels),
	}
}

// InputRate returns the source sample rate
func (r *Resampler) InputRate() int { return r.inputRate }

// OutputRate returns the target sample rate
func (r *Resampler) OutputRate() int { return r.outputRate }

// Passthrough reports whether the rates are equal
func (r *Resampler) Passthrough() bool { return r.inputRate == r.outputRate }

// frame returns channel ch of frame i of the virtual stream [last, input...]
func (r *Resampler) frame(input []int32, i, ch int) int32 {
	if r.haveLast {
		if i == 0 {
			return r.last[ch]
		}
		i--
	}
	return input[i*r.channels+ch]
}

// Resample converts interleaved input at inputRate into output at outputRate.
// It returns the number of samples written. Output beyond len(output) is lost,
// so size output with OutputSamplesNeeded.
func (r *Resampler) Resample(input []int32, output []int32) int {
	inputFrames := len(input) / r.channels
	if inputFrames == 0 {
		return 0
	}

	total := inputFrames
	if r.haveLast {
		total++
	}
	outputFrames := len(output) / r.channels

	outIdx := 0
	for outIdx < outputFrames {
		idx := int(r.position)
		if idx >= total-1 {
			break
		}
		frac := r.position - float64(idx)

		for ch := 0; ch < r.channels; ch++ {
			s1 := float64(r.frame(input, idx, ch))
			s2 := float64(r.frame(input, idx+1, ch))
			output[outIdx*r.channels+ch] = int32(s1*(1.0-frac) + s2*frac)
		}

		outIdx++
		r.position += r.ratio
	}

	// The final frame becomes frame 0 of the next chunk
	r.position -= float64(total - 1)
	if r.position < 0 {
		r.position = 0
	}
	copy(r.last, input[(inputFrames-1)*r.channels:inputFrames*r.channels])
	r.haveLast = true

	return outIdx * r.channels
}

// Process resamples input into a newly allocated slice
func (r *Resampler) Process(input []int32) []int32 {
	if r.Passthrough() {
		out := make([]int32, len(input))
		copy(out, input)
		return out
	}
	out := make([]int32, r.OutputSamplesNeeded(len(input))+2*r.channels)
	n := r.Resample(input, out)
	return out[:n]
}

// Reset resets the resampler state
func (r *Resampler) Reset() {
	r.position = 0.0
	r.haveLast = false
	for i := range r.last {
		r.last[i] = 0
	}
}

// OutputSamplesNeeded calculates how many output samples will be produced from input samples
func (r *Resampler) OutputSamplesNeeded(inputSamples int) int {
	inputFrames := inputSamples / r.channels
	outputFrames := int(float64(inputFrames) / r.ratio)
	return outputFrames * r.channels
}

// InputSamplesNeeded calculates how many input samples are needed to produce output samples
func (r *Resampler) InputSamplesNeeded(outputSamples int) int {
	outputFrames := outputSamples / r.channels
	inputFrames := int(float64(outputFrames) * r.ratio)
	return inputFrames * r.channels
}
