package sidechannel

import (
	"errors"

	"github.com/google/uuid"
)

var EnvironmentParametersChannelID = uuid.MustParse("534c891e-810f-11ea-a9d0-822485860400")

const envDataFloat int32 = 0

// EnvironmentParametersChannel sends named float parameters that scenes read
// through Academy.Instance.EnvironmentParameters.
type EnvironmentParametersChannel struct {
	Base
}

func NewEnvironmentParametersChannel() *EnvironmentParametersChannel {
	return &EnvironmentParametersChannel{Base: NewBase(EnvironmentParametersChannelID)}
}

func (c *EnvironmentParametersChannel) OnMessageReceived(*IncomingMessage) error {
	return errors.New("the environment parameters channel received a message from Unity, this should not have happened")
}

func (c *EnvironmentParametersChannel) SetFloatParameter(key string, value float32) {
	msg := NewOutgoingMessage()
	msg.WriteString(key)
	msg.WriteInt32(envDataFloat)
	msg.WriteFloat32(value)
	c.QueueMessage(msg)
}
