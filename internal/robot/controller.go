package robot

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/rsensor/internal/protocol"
	"github.com/rs/zerolog/log"
)

type Move string

const (
	MoveStop    Move = "stop"
	MoveForward Move = "forward"
	MoveBack    Move = "back"
	MoveLeft    Move = "left"
	MoveRight   Move = "right"
)

// Motors drives the two wheels; power is -100..100 per side.
type Motors interface {
	Drive(left, right int) error
}

// SensorSource supplies fresh readings on each tick.
type SensorSource interface {
	Poll() (map[string]protocol.Value, error)
}

// SensorSink receives the controller's readings; *server.Server satisfies it.
type SensorSink interface {
	SensorUpdate(values map[string]protocol.Value) error
}

type Controller struct {
	mu           sync.Mutex
	params       Config
	move         Move
	moveDeadline time.Time
	sensors      map[string]protocol.Value

	motors Motors
	source SensorSource
	sink   SensorSink
	onQuit func()
	now    func() time.Time
}

func New(cfg Config, motors Motors) *Controller {
	if motors == nil {
		motors = LogMotors{}
	}
	return &Controller{
		params:  cfg,
		move:    MoveStop,
		sensors: make(map[string]protocol.Value),
		motors:  motors,
		now:     time.Now,
	}
}

func (c *Controller) SetSource(src SensorSource) {
	c.mu.Lock()
	c.source = src
	c.mu.Unlock()
}

func (c *Controller) SetSink(sink SensorSink) {
	c.mu.Lock()
	c.sink = sink
	c.mu.Unlock()
}

// OnQuit registers the callback for the quit verb. It runs on the caller of
// Broadcast and must not wait for the server to stop.
func (c *Controller) OnQuit(fn func()) {
	c.mu.Lock()
	c.onQuit = fn
	c.mu.Unlock()
}

func (c *Controller) Params() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params
}

// CameraFormat is the image format peers last selected with cameraformat.
func (c *Controller) CameraFormat() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params.CameraFormat
}

func (c *Controller) Move() Move {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.move
}

// SensorUpdate applies each pair as a parameter change. Unknown keys and bad
// values are logged and skipped.
func (c *Controller) SensorUpdate(values map[string]protocol.Value) {
	for k, v := range values {
		if err := c.SetVariable(k, v); err != nil {
			log.Debug().Err(err).Str("key", k).Str("value", v.String()).Msg("robot.SensorUpdate skipped")
		}
	}
}

// SetVariable sets one parameter. Keys are case and space insensitive;
// power, ratio, and balance values are clamped into range.
func (c *Controller) SetVariable(key string, v protocol.Value) error {
	key = normalize(key)
	if key == "cameraformat" {
		format := strings.ToLower(strings.TrimSpace(v.String()))
		if !IsCameraFormat(format) {
			return fmt.Errorf("%w: cameraformat=%q", ErrInvalidValue, format)
		}
		c.mu.Lock()
		c.params.CameraFormat = format
		c.mu.Unlock()
		return nil
	}

	n, ok := intOf(v)
	if !ok {
		return fmt.Errorf("%w: %s=%q", ErrInvalidValue, key, v.String())
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	p := &c.params
	switch key {
	case "movingtime":
		p.MovingTime = time.Duration(max(n, 0)) * time.Millisecond
	case "turningtime":
		p.TurningTime = time.Duration(max(n, 0)) * time.Millisecond
	case "threadinterval", "tickinterval":
		p.TickInterval = max(time.Duration(n)*time.Millisecond, minTickInterval)
	case "leftpower":
		p.LeftPower = clamp(n, -maxPower, maxPower)
	case "rightpower":
		p.RightPower = clamp(n, -maxPower, maxPower)
	case "power":
		p.LeftPower = clamp(n, -maxPower, maxPower)
		p.RightPower = p.LeftPower
	case "turnratio":
		p.TurnRatio = clamp(n, 0, 100)
	case "balance":
		p.Balance = clamp(n, 0, 100)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownVariable, key)
	}
	return nil
}

// Broadcast interprets movement verbs. Unknown names are ignored.
func (c *Controller) Broadcast(name string) {
	verb := normalize(name)
	switch Move(verb) {
	case MoveForward, MoveBack, MoveLeft, MoveRight, MoveStop:
		if err := c.setMove(Move(verb)); err != nil {
			log.Warn().Err(err).Str("move", verb).Msg("robot.Broadcast drive")
		}
		return
	}
	if verb == "quit" {
		c.mu.Lock()
		quit := c.onQuit
		c.mu.Unlock()
		_ = c.setMove(MoveStop)
		log.Info().Msg("robot.Broadcast quit")
		if quit != nil {
			quit()
		}
		return
	}
	log.Debug().Str("broadcast", verb).Msg("robot.Broadcast unknown")
}

// setMove arms the auto-stop deadline and drives the motors. Switching away
// from a running move stops the wheels first.
func (c *Controller) setMove(m Move) error {
	c.mu.Lock()
	now := c.now()
	switch m {
	case MoveForward, MoveBack:
		c.moveDeadline = now.Add(c.params.MovingTime)
	case MoveLeft, MoveRight:
		c.moveDeadline = now.Add(c.params.TurningTime)
	default:
		c.moveDeadline = time.Time{}
	}
	prev := c.move
	c.move = m
	left, right := wheelPower(c.params, m)
	c.mu.Unlock()

	if prev != MoveStop && prev != m {
		if err := c.motors.Drive(0, 0); err != nil {
			return err
		}
	}
	if m == MoveStop {
		return nil
	}
	return c.motors.Drive(left, right)
}

// UpdateSensor sets a reading pushed on the next tick.
func (c *Controller) UpdateSensor(key string, v protocol.Value) {
	c.mu.Lock()
	c.sensors[key] = v
	c.mu.Unlock()
}

// Tick runs one timer step: expire the current move, poll, and publish.
func (c *Controller) Tick() error {
	c.mu.Lock()
	expired := !c.moveDeadline.IsZero() && c.now().After(c.moveDeadline)
	src, sink := c.source, c.sink
	c.mu.Unlock()

	if expired {
		if err := c.setMove(MoveStop); err != nil {
			return err
		}
	}
	if src != nil {
		readings, err := src.Poll()
		if err != nil {
			return fmt.Errorf("robot: poll sensors: %w", err)
		}
		c.mu.Lock()
		for k, v := range readings {
			c.sensors[k] = v
		}
		c.mu.Unlock()
	}
	if sink == nil {
		return nil
	}
	c.mu.Lock()
	if len(c.sensors) == 0 {
		c.mu.Unlock()
		return nil
	}
	out := make(map[string]protocol.Value, len(c.sensors))
	for k, v := range c.sensors {
		out[k] = v
	}
	c.mu.Unlock()
	return sink.SensorUpdate(out)
}

// Run ticks until ctx is done. The interval is re-read each step so peers can
// retune it; the wheels are stopped on exit.
func (c *Controller) Run(ctx context.Context) error {
	log.Info().Dur("interval", c.Params().TickInterval).Msg("robot.Run started")
	timer := time.NewTimer(c.Params().TickInterval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := c.setMove(MoveStop); err != nil {
				log.Warn().Err(err).Msg("robot.Run stop motors")
			}
			log.Info().Msg("robot.Run stopped")
			return nil
		case <-timer.C:
			if err := c.Tick(); err != nil {
				log.Warn().Err(err).Msg("robot.Run tick")
			}
			timer.Reset(c.Params().TickInterval)
		}
	}
}

// wheelPower maps a move to per-side power. Balance 50 is even; lower values
// favor the left wheel, higher the right.
func wheelPower(p Config, m Move) (int, int) {
	lf := math.Min(1, float64(100-p.Balance)/50)
	rf := math.Min(1, float64(p.Balance)/50)
	left := float64(p.LeftPower) * lf
	right := float64(p.RightPower) * rf
	turn := float64(p.TurnRatio) / 100
	switch m {
	case MoveForward:
	case MoveBack:
		left, right = -left, -right
	case MoveLeft:
		left, right = -left*turn, right*turn
	case MoveRight:
		left, right = left*turn, -right*turn
	default:
		return 0, 0
	}
	return int(math.Round(left)), int(math.Round(right))
}

func normalize(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, " ", ""))
}

// intOf clamps in float64 so out-of-range readings never wrap on conversion.
func intOf(v protocol.Value) (int, bool) {
	f, ok := v.Number()
	if !ok {
		var err error
		if f, err = strconv.ParseFloat(strings.TrimSpace(v.String()), 64); err != nil {
			return 0, false
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(math.Max(-maxVariable, math.Min(f, maxVariable))), true
}
