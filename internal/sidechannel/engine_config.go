package sidechannel

import (
	"errors"

	"github.com/google/uuid"
)

var EngineConfigurationChannelID = uuid.MustParse("e951342c-4f7e-11ea-b238-784f4387d1f7")

type configurationType int32

const (
	configScreenResolution configurationType = iota
	configQualityLevel
	configTimeScale
	configTargetFrameRate
	configCaptureFrameRate
)

// EngineConfig mirrors the engine settings Unity accepts at runtime.
type EngineConfig struct {
	Width            int32
	Height           int32
	QualityLevel     int32
	TimeScale        float32
	TargetFrameRate  int32
	CaptureFrameRate int32
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Width:            80,
		Height:           80,
		QualityLevel:     1,
		TimeScale:        20,
		TargetFrameRate:  -1,
		CaptureFrameRate: 60,
	}
}

// EngineConfigurationChannel sets simulation speed, resolution and frame
// rates. It is write-only.
type EngineConfigurationChannel struct {
	Base
}

func NewEngineConfigurationChannel() *EngineConfigurationChannel {
	return &EngineConfigurationChannel{Base: NewBase(EngineConfigurationChannelID)}
}

func (c *EngineConfigurationChannel) OnMessageReceived(*IncomingMessage) error {
	return errors.New("the engine configuration channel received a message from Unity, this should not have happened")
}

// SetConfiguration queues every field of cfg.
func (c *EngineConfigurationChannel) SetConfiguration(cfg EngineConfig) {
	c.SetResolution(cfg.Width, cfg.Height)
	c.SetQualityLevel(cfg.QualityLevel)
	c.SetTimeScale(cfg.TimeScale)
	c.SetTargetFrameRate(cfg.TargetFrameRate)
	c.SetCaptureFrameRate(cfg.CaptureFrameRate)
}

func (c *EngineConfigurationChannel) SetResolution(width, height int32) {
	msg := NewOutgoingMessage()
	msg.WriteInt32(int32(configScreenResolution))
	msg.WriteInt32(width)
	msg.WriteInt32(height)
	c.QueueMessage(msg)
}

func (c *EngineConfigurationChannel) SetQualityLevel(level int32) {
	c.queueInt(configQualityLevel, level)
}

func (c *EngineConfigurationChannel) SetTimeScale(scale float32) {
	msg := NewOutgoingMessage()
	msg.WriteInt32(int32(configTimeScale))
	msg.WriteFloat32(scale)
	c.QueueMessage(msg)
}

func (c *EngineConfigurationChannel) SetTargetFrameRate(fps int32) {
	c.queueInt(configTargetFrameRate, fps)
}

func (c *EngineConfigurationChannel) SetCaptureFrameRate(fps int32) {
	c.queueInt(configCaptureFrameRate, fps)
}

func (c *EngineConfigurationChannel) queueInt(kind configurationType, v int32) {
	msg := NewOutgoingMessage()
	msg.WriteInt32(int32(kind))
	msg.WriteInt32(v)
	c.QueueMessage(msg)
}
