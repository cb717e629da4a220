package main

import (
	"fmt"
	"log"

	"github.com/samuelfneumann/poleq/agent"
	"github.com/samuelfneumann/poleq/agent/deepq"
	env "github.com/samuelfneumann/poleq/environment"
	"github.com/samuelfneumann/poleq/environment/gym"
	"github.com/samuelfneumann/poleq/environment/wrappers"
	"github.com/samuelfneumann/poleq/experiment"
	"github.com/samuelfneumann/poleq/experiment/tracker"
	"github.com/samuelfneumann/poleq/expreplay"
	"github.com/samuelfneumann/poleq/initwfn"
	"github.com/samuelfneumann/poleq/network"
	"github.com/samuelfneumann/poleq/solver"
	"github.com/samuelfneumann/poleq/utils/floatutils"
)

const (
	seed uint64 = 192382

	// Environment
	discount float64 = 0.8
	cutoff   int     = 500

	// Training loop
	episodes      int = 600
	successStreak int = 10
	evalEpisodes  int = 5

	// Agent
	batchSize      int     = 128
	replayCapacity int     = 10_000
	stepSize       float64 = 1e-4
	gradientClip   float64 = 100.0
	tau            float64 = 0.005
	updateInterval int     = 1
	epsilonStart   float64 = 0.9
	epsilonEnd     float64 = 0.05
	epsilonDecay   float64 = 1000.0

	returnsFile    string = "./returns.bin"
	rawReturnsFile string = "./raw_returns.bin"
	lengthsFile    string = "./episode_lengths.bin"
)

func main() {
	// Create the environment
	cartpole, _, err := gym.New(gym.CartPoleV1, discount, cutoff, seed)
	if err != nil {
		log.Fatalf("could not create environment: %v", err)
	}
	defer cartpole.Close()

	// Shape rewards so that balancing near the centre of the track
	// pays more than balancing near the edges
	shaped, err := wrappers.NewShapedReward(cartpole)
	if err != nil {
		log.Fatalf("could not wrap environment: %v", err)
	}

	// Create the learning algorithm
	adam, err := solver.NewAdam(stepSize, 1e-8, 0.9, 0.999, batchSize,
		gradientClip)
	if err != nil {
		log.Fatalf("could not create solver: %v", err)
	}
	init, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		log.Fatalf("could not create weight initializer: %v", err)
	}

	config := deepq.Config{
		PolicyLayers: []int{128, 128, 128},
		Biases:       []bool{true, true, true},
		Activations: []*network.Activation{network.ReLU(), network.ReLU(),
			network.ReLU()},
		Solver:  adam,
		InitWFn: init,

		EpsilonStart: epsilonStart,
		EpsilonEnd:   epsilonEnd,
		EpsilonDecay: epsilonDecay,

		ExpReplay: expreplay.Config{
			MinReplayCapacity: batchSize,
			MaxReplayCapacity: replayCapacity,
			BatchSize:         batchSize,
		},

		Tau:                  tau,
		TargetUpdateInterval: updateInterval,
	}

	pole, err := deepq.New(shaped, config, seed)
	if err != nil {
		log.Fatalf("could not create agent: %v", err)
	}
	defer pole.Close()

	// Experiment. The second Return tracker is registered with the
	// unwrapped environment so that unshaped returns are recorded
	// alongside the shaped returns the agent learns from.
	returns := tracker.NewReturn(returnsFile)
	rawReturns := tracker.Register(tracker.NewReturn(rawReturnsFile),
		cartpole)
	lengths := tracker.NewEpisodeLength(lengthsFile)
	exp := experiment.NewOnline(shaped, pole, episodes, successStreak,
		returns, rawReturns, lengths)
	exp.DisplayProgress()

	if err := exp.Run(); err != nil {
		log.Fatalf("experiment failed: %v", err)
	}
	exp.Save()

	// Report training diagnostics
	episodeLengths := tracker.LoadData(lengthsFile)
	averages := tracker.MovingAverage(episodeLengths, 100)
	fmt.Printf("Trained for %v episodes\n", exp.EpisodesRun())
	fmt.Printf("Trailing 100-episode mean length: %.2f steps\n",
		averages[len(averages)-1])

	evaluate(shaped, pole)
}

// evaluate runs greedy evaluation episodes with learning disabled,
// printing the length and return of each
func evaluate(e env.Environment, a agent.Agent) {
	a.Eval()

	fmt.Println("Greedy evaluation:")
	episodeLengths := make([]float64, evalEpisodes)
	for i := 0; i < evalEpisodes; i++ {
		step, err := e.Reset()
		if err != nil {
			log.Fatalf("could not reset environment: %v", err)
		}

		episodeReturn := 0.0
		for !step.Last() {
			action := a.SelectAction(step)
			step, _, err = e.Step(action)
			if err != nil {
				log.Fatalf("could not step environment: %v", err)
			}
			episodeReturn += step.Reward
		}

		episodeLengths[i] = float64(step.Number)
		fmt.Printf("\tEpisode %v: %v steps, return %.2f\n", i, step.Number,
			episodeReturn)
	}

	fmt.Printf("Shortest episode: %.0f steps, longest episode: %.0f steps\n",
		floatutils.Min(episodeLengths...), floatutils.Max(episodeLengths...))
}
