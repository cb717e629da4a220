package experiment

import (
	"fmt"
	"log"

	"github.com/samuelfneumann/poleq/agent"
	env "github.com/samuelfneumann/poleq/environment"
	"github.com/samuelfneumann/poleq/experiment/tracker"
	ts "github.com/samuelfneumann/poleq/timestep"
	"github.com/samuelfneumann/poleq/utils/progressbar"
)

// progressWidth is the character width of the progress bar displayed
// while an experiment runs
const progressWidth int = 35

// Online is an Experiment that runs an agent online, learning after
// every environmental step. No offline evaluation is performed.
//
// An Online experiment runs episodes until its episode budget is
// exhausted, stopping early once the agent balances well enough that
// enough consecutive episodes in a row are cut off by the
// environment's step limit instead of ending in failure.
type Online struct {
	env.Environment
	agent.Agent

	episodes      int // Episode budget
	episodesRun   int
	successStreak int // Step-limit episodes in a row needed to stop early

	trackers []tracker.Tracker
	progress *progressbar.ManualProgressBar
}

// NewOnline creates and returns a new online experiment on a given
// environment with a given agent. The episodes parameter determines
// how many episodes the experiment is run for. The successStreak
// parameter determines how many consecutive episodes must be cut off
// by the environment's step limit before the experiment stops early.
// The t parameter is a slice of tracker.Tracker which determine what
// data is saved.
func NewOnline(e env.Environment, a agent.Agent, episodes,
	successStreak int, t ...tracker.Tracker) *Online {
	return &Online{
		Environment:   e,
		Agent:         a,
		episodes:      episodes,
		successStreak: successStreak,
		trackers:      t,
	}
}

// Register registers a tracker.Tracker with an Experiment so that data
// generated during the experiment can be tracked and saved
func (o *Online) Register(t tracker.Tracker) {
	o.trackers = append(o.trackers, t)
}

// DisplayProgress enables a terminal progress bar while the experiment
// runs
func (o *Online) DisplayProgress() {
	o.progress = progressbar.NewManualProgressBar(progressWidth, o.episodes)
}

// EpisodesRun returns the number of episodes run so far
func (o *Online) EpisodesRun() int {
	return o.episodesRun
}

// RunEpisode runs a single episode of the experiment, returning
// whether or not the episode was cut off by the environment's step
// limit
func (o *Online) RunEpisode() (bool, error) {
	step, err := o.Environment.Reset()
	if err != nil {
		return false, fmt.Errorf("runepisode: could not reset "+
			"environment: %v", err)
	}
	if err := o.Agent.ObserveFirst(step); err != nil {
		return false, fmt.Errorf("runepisode: could not observe first "+
			"timestep: %v", err)
	}
	o.track(step)

	// Run the next timestep
	for !step.Last() {
		// Select action, step in environment
		action := o.Agent.SelectAction(step)
		step, _, err = o.Environment.Step(action)
		if err != nil {
			return false, fmt.Errorf("runepisode: could not step "+
				"environment: %v", err)
		}

		// Cache the environment step in each Tracker
		o.track(step)

		// Observe the timestep and step the agent
		if err := o.Agent.Observe(action, step); err != nil {
			return false, fmt.Errorf("runepisode: could not observe "+
				"timestep: %v", err)
		}
		if err := o.Agent.Step(); err != nil {
			return false, fmt.Errorf("runepisode: could not step agent: %v",
				err)
		}
	}
	o.Agent.EndEpisode()
	o.episodesRun++

	return step.Truncated(), nil
}

// Run runs the entire experiment for all episodes, stopping early once
// the agent's success streak exceeds the experiment's threshold
func (o *Online) Run() error {
	streak := 0

	for episode := 0; episode < o.episodes; episode++ {
		truncated, err := o.RunEpisode()
		if err != nil {
			return fmt.Errorf("run: episode %v failed: %v", episode, err)
		}

		if truncated {
			streak++
		} else {
			streak = 0
		}

		if o.progress != nil {
			o.progress.Increment()
			o.progress.SetSuffix(fmt.Sprintf("step limit streak: %v", streak))
			o.progress.Display()
		}

		if streak > o.successStreak {
			if o.progress != nil {
				o.progress.Finish()
			}
			log.Printf("run: stopping early after %v episodes: %v "+
				"consecutive episodes reached the step limit", episode+1,
				streak)
			return nil
		}
	}

	if o.progress != nil {
		o.progress.Finish()
	}
	return nil
}

// Save saves all the data cached by the Trackers to disk
func (o *Online) Save() {
	for _, t := range o.trackers {
		t.Save()
	}
}

// track tracks the current timestep by caching its data in each Tracker
func (o *Online) track(t ts.TimeStep) {
	for _, tr := range o.trackers {
		tr.Track(t)
	}
}
