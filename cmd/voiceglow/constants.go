package main

import (
	"math"
	"os"
	"time"
)

// Channel names. The animation set only knows these three lines.
const (
	ChannelRed   = "red"
	ChannelGreen = "green"
	ChannelBlue  = "blue"
)

// Animation timings. Each delay is the pause between two micro-steps of a
// fade, so a full 0→100 fade lasts 100 × delay.
const (
	turnStartedStepDelay  = 300 * time.Microsecond
	turnFinishedStepDelay = 5 * time.Millisecond
	turnTimeoutStepDelay  = 300 * time.Microsecond
	timeoutPulseStepDelay = 800 * time.Microsecond
	timeoutPulseCount     = 2

	// 0.01 rad per 7.9 ms step is roughly 12 breaths per minute.
	breathingStepDelay = 7900 * time.Microsecond
	breathingIncrement = 0.01
)

// Waveform constants for the exp(sin) breathing curve.
const (
	twoPi       = 2 * math.Pi
	troughPhase = 3 * math.Pi / 2
)

const (
	dutyMin = 0.0
	dutyMax = 100.0
)

// Daemon defaults
const (
	defaultPWMFrequencyHz  = 100
	defaultIdlePollMS      = 10
	defaultButtonPin       = 16
	defaultButtonDebounce  = 600
	defaultButtonTimeoutMS = 700
	defaultIPCSocket       = "/tmp/voiceglow.sock"
	defaultHTTPListen      = "127.0.0.1:3002"
	defaultWakeToneFile    = "./sound/wakeup.wav"
	queueBacklogWarnDepth  = 32
)

const ipcSocketMode os.FileMode = 0660
