// Package cartpole implements the Cartpole classic control environment
// with discrete actions
package cartpole

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"

	env "github.com/samuelfneumann/distlearn/environment"
	ts "github.com/samuelfneumann/distlearn/timestep"
	"github.com/samuelfneumann/distlearn/utils/floatutils"
)

// Kind names the environment in configurations
const Kind = "cartpole"

const (
	// Physical constants
	Gravity        float64 = 9.8
	CartMass       float64 = 1.0
	PoleMass       float64 = 0.1
	HalfPoleLength float64 = 0.5  // half of pole length
	ForceMag       float64 = 10.0 // Magnification of force applied
	Dt             float64 = 0.02 // seconds between state updates

	// Bounds (+/-) on state variables
	PositionBounds        float64 = 2.4
	SpeedBounds           float64 = math.MaxFloat64
	AngleBounds           float64 = math.Pi
	AngularVelocityBounds float64 = math.MaxFloat64

	// Discrete Actions
	ActionDims        int = 1
	ObservationDims   int = 4
	MinDiscreteAction int = 0
	MaxDiscreteAction int = 2
)

// Cartpole implements the classic control environment Cartpole with
// discrete actions. In this environment, a pole is attached to a cart,
// which can move horizontally. Gravity pulls the pole downwards so that
// balancing it in an upright position is very difficult.
//
// The state features are continuous and consist of the cart's x
// position and speed, as well as the pole's angle from the positive
// y-axis and the pole's angular velocity. The position is clipped to
// the position bounds and the angle is normalized to [-π, π].
//
// Actions are discrete, consisting of the direction to apply
// horizontal force to the cart. Legal actions are in {0, 1, 2}:
//
//	Action		Meaning
//	  0			Apply force left
//	  1			Do nothing
//	  2			Apply force right
//
// Cartpole implements the environment.Environment interface
type Cartpole struct {
	env.Task
	lastStep       ts.TimeStep
	discount       float64
	positionBounds r1.Interval
	angleBounds    r1.Interval
}

// New constructs a new Cartpole environment
func New(t env.Task, discount float64) (*Cartpole, ts.TimeStep, error) {
	c := &Cartpole{
		Task:           t,
		discount:       discount,
		positionBounds: r1.Interval{Min: -PositionBounds, Max: PositionBounds},
		angleBounds:    r1.Interval{Min: -AngleBounds, Max: AngleBounds},
	}

	state := t.Start()
	if err := c.validateState(state); err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("new cartpole: %w", err)
	}
	c.lastStep = ts.New(ts.First, 0.0, discount, state, 0)

	return c, c.lastStep, nil
}

// Reset resets the environment and returns a starting state drawn from
// the environment Starter. Starting states outside the position bounds
// are clipped.
func (c *Cartpole) Reset() ts.TimeStep {
	state := c.Start()
	state.SetVec(0, floatutils.Clip(state.AtVec(0), c.positionBounds))

	c.lastStep = ts.New(ts.First, 0, c.discount, state, 0)
	return c.lastStep
}

// Step takes one environmental step given action a and returns the next
// timestep and a bool indicating whether or not the episode has ended
func (c *Cartpole) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	if a.Len() != ActionDims {
		return ts.TimeStep{}, false, fmt.Errorf("actions should be " +
			"1-dimensional")
	}
	if c.lastStep.Last() {
		return ts.TimeStep{}, false, fmt.Errorf("cannot step a finished " +
			"episode")
	}

	// Discrete action in {0, 1, 2}
	intAction := int(a.AtVec(0))
	if intAction < MinDiscreteAction || intAction > MaxDiscreteAction {
		return ts.TimeStep{}, false, fmt.Errorf("illegal action %v ∉ "+
			"(0, 1, 2)", intAction)
	}

	// Convert action (0, 1, 2) to a direction (-1, 0, 1)
	direction := float64(intAction - 1)
	newState := c.nextState(direction)

	reward := c.GetReward(c.lastStep.Observation, a, newState)
	nextStep := ts.New(ts.Mid, reward, c.discount, newState,
		c.lastStep.Number+1)

	// Check if the step ends the episode
	c.End(&nextStep)

	c.lastStep = nextStep
	return nextStep, nextStep.Last(), nil
}

// nextState computes the state after applying force in direction
func (c *Cartpole) nextState(direction float64) *mat.VecDense {
	state := c.lastStep.Observation
	x, xDot := state.AtVec(0), state.AtVec(1)
	th, thDot := state.AtVec(2), state.AtVec(3)

	force := direction * ForceMag

	// Calculate physical variables to determine next state
	cosTheta := math.Cos(th)
	sinTheta := math.Sin(th)

	totalMass := PoleMass + CartMass
	poleMassLength := PoleMass * HalfPoleLength

	temp := (force + poleMassLength*thDot*thDot*sinTheta) / totalMass
	thAcc := (Gravity*sinTheta - cosTheta*temp) / (HalfPoleLength *
		(4.0/3.0 - PoleMass*cosTheta*cosTheta/totalMass))
	xAcc := temp - poleMassLength*thAcc*cosTheta/totalMass

	// Update state variables using Euler kinematic integration
	x += Dt * xDot
	xDot += Dt * xAcc
	if floatutils.OnBoundary(x, c.positionBounds) {
		xDot = 0
	}
	x = floatutils.Clip(x, c.positionBounds)

	th = normalizeAngle(th+Dt*thDot, c.angleBounds)
	thDot += Dt * thAcc

	return mat.NewVecDense(ObservationDims, []float64{x, xDot, th, thDot})
}

// ActionSpec returns the action specification of the environment
func (c *Cartpole) ActionSpec() env.Spec {
	shape := mat.NewVecDense(ActionDims, nil)
	lowerBound := mat.NewVecDense(ActionDims,
		[]float64{float64(MinDiscreteAction)})
	upperBound := mat.NewVecDense(ActionDims,
		[]float64{float64(MaxDiscreteAction)})

	return env.NewSpec(shape, env.Action, lowerBound, upperBound,
		env.Discrete)
}

// ObservationSpec returns the observation specification of the
// environment
func (c *Cartpole) ObservationSpec() env.Spec {
	shape := mat.NewVecDense(ObservationDims, nil)
	lowerBound := mat.NewVecDense(ObservationDims, []float64{
		c.positionBounds.Min, -SpeedBounds, c.angleBounds.Min,
		-AngularVelocityBounds,
	})
	upperBound := mat.NewVecDense(ObservationDims, []float64{
		c.positionBounds.Max, SpeedBounds, c.angleBounds.Max,
		AngularVelocityBounds,
	})

	return env.NewSpec(shape, env.Observation, lowerBound, upperBound,
		env.Continuous)
}

// DiscountSpec returns the discounting specification of the environment
func (c *Cartpole) DiscountSpec() env.Spec {
	shape := mat.NewVecDense(1, nil)
	lowerBound := mat.NewVecDense(1, []float64{c.discount})
	upperBound := mat.NewVecDense(1, []float64{c.discount})

	return env.NewSpec(shape, env.Discount, lowerBound, upperBound,
		env.Continuous)
}

// validateState ensures that a state observation is valid and between
// the physical bounds of the Cartpole environment
func (c *Cartpole) validateState(obs mat.Vector) error {
	if obs.Len() != ObservationDims {
		return fmt.Errorf("starting states must have %v features",
			ObservationDims)
	}
	if !floatutils.Within(obs.AtVec(0), c.positionBounds) {
		return fmt.Errorf("position is not within bounds %v",
			c.positionBounds)
	}
	if !floatutils.Within(obs.AtVec(2), c.angleBounds) {
		return fmt.Errorf("angle is not within bounds %v", c.angleBounds)
	}
	return nil
}

func (c *Cartpole) String() string {
	msg := "Cartpole  |  Position: %v  | Speed: %v  |  Angle: %v" +
		"  |  Angular Velocity: %v"

	state := c.lastStep.Observation
	return fmt.Sprintf(msg, state.AtVec(0), state.AtVec(1), state.AtVec(2),
		state.AtVec(3))
}

// normalizeAngle normalizes the pole angle to the appropriate limits
func normalizeAngle(th float64, angleBounds r1.Interval) float64 {
	if th > angleBounds.Max {
		return th - 2*math.Pi*math.Ceil((th-angleBounds.Max)/(2*math.Pi))
	} else if th < angleBounds.Min {
		return th + 2*math.Pi*math.Ceil((angleBounds.Min-th)/(2*math.Pi))
	}
	return th
}
