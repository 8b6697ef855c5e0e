package finder

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// ErrOptimizerFailed is returned when the minimizer aborts. The particles
// being fitted keep an unknown height.
var ErrOptimizerFailed = errors.New("optimizer failed")

// Optimizer is a derivative-free Nelder-Mead search stopping once the best
// point stops moving by more than XTol in every coordinate.
type Optimizer struct {
	InitialStep float64
	XTol        float64
	// FTol, when positive, replaces the XTol test: the search stops once the
	// best value improves by less than FTol over a window of iterations.
	FTol float64
	// MaxEvals caps objective evaluations; 0 means no cap.
	MaxEvals int
}

// Optimum is the best point found.
type Optimum struct {
	X      []float64
	F      float64
	Evals  int
	Status optimize.Status
}

// Maximize searches for a local maximum of f starting at x0.
func (o Optimizer) Maximize(f func(x []float64) float64, x0 []float64) (*Optimum, error) {
	res, err := o.Minimize(func(x []float64) float64 { return -f(x) }, x0)
	if res != nil {
		res.F = -res.F
	}
	return res, err
}

// Minimize searches for a local minimum of f starting at x0. A panic in f
// ends the search with ErrOptimizerFailed.
func (o Optimizer) Minimize(f func(x []float64) float64, x0 []float64) (*Optimum, error) {
	guard := &panicGuard{}
	settings := &optimize.Settings{
		Converger:       &abortConverger{Converger: o.converger(len(x0)), guard: guard},
		FuncEvaluations: o.MaxEvals,
	}
	method := &optimize.NelderMead{SimplexSize: o.InitialStep}

	// gonum evaluates f on worker goroutines, so the recover has to live
	// in the objective itself.
	res, err := optimize.Minimize(optimize.Problem{Func: guard.wrap(f)}, x0, settings, method)
	if r := guard.value(); r != nil {
		return nil, fmt.Errorf("%w: %v", ErrOptimizerFailed, r)
	}
	if err != nil && !(res != nil && budgetSpent(res.Status)) {
		return nil, fmt.Errorf("%w: %v", ErrOptimizerFailed, err)
	}
	if res.Status == optimize.Failure || math.IsNaN(res.F) {
		return nil, fmt.Errorf("%w: status %v", ErrOptimizerFailed, res.Status)
	}

	return &Optimum{
		X:      res.X,
		F:      res.F,
		Evals:  res.Stats.FuncEvaluations,
		Status: res.Status,
	}, nil
}

// panicGuard records the first panic raised by an objective.
type panicGuard struct {
	mu  sync.Mutex
	val interface{}
}

func (g *panicGuard) wrap(f func(x []float64) float64) func(x []float64) float64 {
	return func(x []float64) (v float64) {
		defer func() {
			if r := recover(); r != nil {
				g.mu.Lock()
				if g.val == nil {
					g.val = r
				}
				g.mu.Unlock()
				v = math.Inf(1)
			}
		}()
		return f(x)
	}
}

func (g *panicGuard) value() interface{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.val
}

// abortConverger stops the search at the next major iteration once the
// objective has panicked.
type abortConverger struct {
	optimize.Converger
	guard *panicGuard
}

func (c *abortConverger) Converged(loc *optimize.Location) optimize.Status {
	if c.guard.value() != nil {
		return optimize.Failure
	}
	return c.Converger.Converged(loc)
}

func (o Optimizer) converger(dim int) optimize.Converger {
	if o.FTol > 0 {
		return &optimize.FunctionConverge{Absolute: o.FTol, Iterations: 10 * (dim + 1)}
	}
	return newStepConverger(o.XTol, dim)
}

// budgetSpent reports statuses that end the search at the best point so
// far rather than in failure.
func budgetSpent(s optimize.Status) bool {
	switch s {
	case optimize.FunctionEvaluationLimit, optimize.IterationLimit, optimize.RuntimeLimit:
		return true
	}
	return false
}

// stepConverger declares convergence once the best location has stayed
// within tol, coordinate by coordinate, for a window of major iterations.
// Nelder-Mead only moves its best vertex on improvement, so the window
// must span several simplex contractions.
type stepConverger struct {
	tol    float64
	window int

	anchor []float64
	still  int
}

func newStepConverger(tol float64, dim int) *stepConverger {
	return &stepConverger{tol: tol, window: 10 * (dim + 1)}
}

func (c *stepConverger) Init(dim int) {
	c.anchor = nil
	c.still = 0
	if c.window == 0 {
		c.window = 10 * (dim + 1)
	}
}

func (c *stepConverger) Converged(loc *optimize.Location) optimize.Status {
	if c.anchor == nil || floats.Distance(c.anchor, loc.X, math.Inf(1)) > c.tol {
		c.anchor = append(c.anchor[:0], loc.X...)
		c.still = 0
		return optimize.NotTerminated
	}
	c.still++
	if c.still >= c.window {
		return optimize.StepConvergence
	}
	return optimize.NotTerminated
}
