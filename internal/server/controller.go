package server

import "github.com/danmuck/rsensor/internal/protocol"

// Controller receives decoded peer commands. Both methods run on the event
// loop goroutine and must return promptly. They must not call Server.Stop
// synchronously; stop from another goroutine instead.
type Controller interface {
	SensorUpdate(values map[string]protocol.Value)
	Broadcast(name string)
}

// CameraFormatter is implemented by controllers that pick the image format
// used when Camera is called without one.
type CameraFormatter interface {
	CameraFormat() string
}

// ControllerFuncs adapts plain functions to Controller. Nil fields are no-ops.
type ControllerFuncs struct {
	OnSensorUpdate func(values map[string]protocol.Value)
	OnBroadcast    func(name string)
}

func (f ControllerFuncs) SensorUpdate(values map[string]protocol.Value) {
	if f.OnSensorUpdate != nil {
		f.OnSensorUpdate(values)
	}
}

func (f ControllerFuncs) Broadcast(name string) {
	if f.OnBroadcast != nil {
		f.OnBroadcast(name)
	}
}
