// Package expreplay implements experience replay buffers
package expreplay

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/sampleuv"

	"github.com/samuelfneumann/poleq/timestep"
)

// Config implements a specific configuration of an ExperienceReplayer
type Config struct {
	MinReplayCapacity int
	MaxReplayCapacity int
	BatchSize         int
}

// Validate returns an error describing why the Config is invalid, or
// nil if it is valid
func (c Config) Validate() error {
	if c.MinReplayCapacity <= 0 {
		return fmt.Errorf("minReplayCapacity must be > 0")
	}
	if c.MaxReplayCapacity < c.MinReplayCapacity {
		return fmt.Errorf("cannot have min replay capacity (%v) > max "+
			"replay capacity (%v)", c.MinReplayCapacity, c.MaxReplayCapacity)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be > 0")
	}
	if c.BatchSize > c.MinReplayCapacity {
		return fmt.Errorf("cannot have batch size (%v) > min replay "+
			"capacity (%v)", c.BatchSize, c.MinReplayCapacity)
	}
	return nil
}

// Create creates and returns the ExperienceReplayer with the specified
// Config.
func (c Config) Create(seed uint64) (ExperienceReplayer, error) {
	return New(c.MinReplayCapacity, c.MaxReplayCapacity, c.BatchSize, seed)
}

// ExperienceReplayer implements an experience replay buffer
type ExperienceReplayer interface {
	// Add adds a transition to the buffer. Once the buffer is full,
	// each Add overwrites the oldest transition in the buffer.
	Add(t timestep.Transition) error

	// Sample samples and returns a batch of transitions from the
	// buffer, chosen uniformly at random without replacement
	Sample() ([]timestep.Transition, error)

	// Capacity returns the current number of samples in the buffer
	Capacity() int

	// MaxCapacity returns the maximum allowable samples in the buffer
	MaxCapacity() int

	// MinCapacity returns the number of samples required to be in
	// the buffer before the buffer can be sampled
	MinCapacity() int

	// BatchSize returns the number of samples returned by Sample()
	BatchSize() int
}

// ring implements a concrete ExperienceReplayer. Transitions are
// stored in a fixed-size circular buffer: once the buffer fills,
// position wraps around and each new transition overwrites the oldest
// one, giving first-in-first-out eviction.
type ring struct {
	data     []timestep.Transition
	position int
	size     int

	minCapacity int
	sampleSize  int

	// featureSize is fixed by the first transition added and enforced
	// on every Add thereafter
	featureSize int

	src rand.Source
}

// New creates and returns a new ExperienceReplayer storing at most
// maxCapacity transitions. Sampling draws sampleSize transitions
// uniformly without replacement and is only legal once at least
// minCapacity transitions have been added.
func New(minCapacity, maxCapacity, sampleSize int,
	seed uint64) (ExperienceReplayer, error) {
	config := Config{
		MinReplayCapacity: minCapacity,
		MaxReplayCapacity: maxCapacity,
		BatchSize:         sampleSize,
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	return &ring{
		data:        make([]timestep.Transition, maxCapacity),
		minCapacity: minCapacity,
		sampleSize:  sampleSize,
		src:         rand.NewSource(seed),
	}, nil
}

// String returns the string representation of the buffer
func (r *ring) String() string {
	return fmt.Sprintf("Experience Replay | Capacity: %v/%v  |  Min: %v  |"+
		"  Batch Size: %v", r.size, len(r.data), r.minCapacity, r.sampleSize)
}

// BatchSize returns the number of samples sampled using Sample() -
// a.k.a the batch size
func (r *ring) BatchSize() int {
	return r.sampleSize
}

// Capacity returns the current number of elements in the buffer that
// are available for sampling
func (r *ring) Capacity() int {
	return r.size
}

// MaxCapacity returns the maximum number of elements that are allowed
// in the buffer
func (r *ring) MaxCapacity() int {
	return len(r.data)
}

// MinCapacity returns the minimum number of elements required in the
// buffer before sampling is allowed
func (r *ring) MinCapacity() int {
	return r.minCapacity
}

// Add adds a transition to the buffer, overwriting the oldest stored
// transition when the buffer is full
func (r *ring) Add(t timestep.Transition) error {
	if r.size == 0 {
		r.featureSize = t.Features()
	}

	if t.Features() != r.featureSize {
		return fmt.Errorf("add: invalid feature size \n\twant(%v)\n\thave(%v)",
			r.featureSize, t.Features())
	}
	if !t.NextState.Terminal() &&
		t.NextState.Observation().Len() != r.featureSize {
		return fmt.Errorf("add: invalid next state feature size "+
			"\n\twant(%v)\n\thave(%v)", r.featureSize,
			t.NextState.Observation().Len())
	}

	r.data[r.position] = t
	r.position = (r.position + 1) % len(r.data)
	if r.size < len(r.data) {
		r.size++
	}
	return nil
}

// Sample samples and returns a batch of transitions from the replay
// buffer. The batch is drawn uniformly at random without replacement,
// so no stored transition appears twice in a single batch.
func (r *ring) Sample() ([]timestep.Transition, error) {
	if r.size == 0 {
		return nil, &ExpReplayError{
			Op:  "sample",
			Err: errEmptyBuffer,
		}
	}
	if r.size < r.minCapacity {
		return nil, &ExpReplayError{
			Op:  "sample",
			Err: errInsufficientSamples,
		}
	}

	indices := make([]int, r.sampleSize)
	sampleuv.WithoutReplacement(indices, r.size, r.src)

	batch := make([]timestep.Transition, r.sampleSize)
	for i, index := range indices {
		batch[i] = r.data[index]
	}
	return batch, nil
}
