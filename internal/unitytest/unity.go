// Package unitytest plays the Unity side of the communicator protocol so the
// actor can be exercised without a simulator.
package unitytest

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	communicatorv1 "github.com/cartridge/unity-actor/pkg/proto/communicator/v1"
)

// Unity is a fake environment connected to an actor's communicator.
type Unity struct {
	conn   *grpc.ClientConn
	client communicatorv1.UnityToExternalClient
}

func Dial(addr string) (*Unity, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	return &Unity{conn: conn, client: communicatorv1.NewUnityToExternalClient(conn)}, nil
}

// Send delivers output to the actor and returns its reply.
func (u *Unity) Send(output *communicatorv1.UnityOutput) (*communicatorv1.UnityMessage, error) {
	return u.SendStatus(communicatorv1.StatusOK, output)
}

// SendStatus is Send with an explicit header status.
func (u *Unity) SendStatus(status int32, output *communicatorv1.UnityOutput) (*communicatorv1.UnityMessage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return u.client.Exchange(ctx, &communicatorv1.UnityMessage{
		Header:      &communicatorv1.Header{Status: status},
		UnityOutput: output,
	}, grpc.WaitForReady(true))
}

func (u *Unity) Close() error {
	return u.conn.Close()
}

// Capabilities returns everything turned on.
func Capabilities() *communicatorv1.UnityRLCapabilities {
	return &communicatorv1.UnityRLCapabilities{
		BaseRLCapabilities:          true,
		ConcatenatedPngObservations: true,
		CompressedChannelMapping:    true,
		HybridActions:               true,
		TrainingAnalytics:           true,
		VariableLengthObservation:   true,
		MultiAgentGroups:            true,
	}
}

// InitOutput is the first message a Unity player sends.
func InitOutput(version string) *communicatorv1.UnityOutput {
	return &communicatorv1.UnityOutput{
		RLInitializationOutput: &communicatorv1.UnityRLInitializationOutput{
			Name:                 "AcademySingleton",
			CommunicationVersion: version,
			PackageVersion:       "2.0.1",
			Capabilities:         Capabilities(),
		},
	}
}

// Agent builds an agent info with one vector observation.
func Agent(id int32, reward float32, done bool, obs ...float32) *communicatorv1.AgentInfo {
	return &communicatorv1.AgentInfo{
		ID:     id,
		Reward: reward,
		Done:   done,
		Observations: []*communicatorv1.Observation{{
			Shape:               []int32{int32(len(obs))},
			FloatData:           &communicatorv1.FloatData{Data: obs},
			DimensionProperties: []int32{1},
			Name:                "VectorSensor",
		}},
	}
}

// ContinuousBrain describes a behavior with n continuous actions.
func ContinuousBrain(name string, n int32) *communicatorv1.BrainParameters {
	return &communicatorv1.BrainParameters{
		BrainName:  name,
		IsTraining: true,
		ActionSpec: &communicatorv1.ActionSpec{NumContinuousActions: n},
	}
}

// StepOutput reports agents for one behavior, with brain parameters attached
// when brain is non-nil.
func StepOutput(behavior string, brain *communicatorv1.BrainParameters, agents ...*communicatorv1.AgentInfo) *communicatorv1.UnityOutput {
	out := &communicatorv1.UnityOutput{
		RLOutput: &communicatorv1.UnityRLOutput{
			AgentInfos: map[string][]*communicatorv1.AgentInfo{behavior: agents},
		},
	}
	if brain != nil {
		out.RLInitializationOutput = &communicatorv1.UnityRLInitializationOutput{
			BrainParameters: []*communicatorv1.BrainParameters{brain},
		}
	}
	return out
}
