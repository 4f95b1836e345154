// Package communicator holds the messages exchanged with a Unity ML-Agents
// environment over the communicator_objects gRPC service. Field numbers
// follow the upstream .proto definitions (communication API 1.5.0).
package communicator

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// Status codes carried in Header.Status.
const (
	StatusOK    int32 = 200
	StatusClose int32 = 400
)

type Command int32

const (
	CommandStep  Command = 0
	CommandReset Command = 1
	CommandQuit  Command = 2
)

type SpaceType int32

const (
	SpaceTypeDiscrete   SpaceType = 0
	SpaceTypeContinuous SpaceType = 1
)

type CompressionType int32

const (
	CompressionNone CompressionType = 0
	CompressionPNG  CompressionType = 1
)

type ObservationType int32

const (
	ObservationTypeDefault    ObservationType = 0
	ObservationTypeGoalSignal ObservationType = 1
)

// Header is HeaderProto.
type Header struct {
	Status  int32
	Message string
}

func (m *Header) appendTo(b []byte) []byte {
	b = appendInt32(b, 1, m.Status)
	return appendString(b, 2, m.Message)
}

func (m *Header) unmarshal(b []byte) error {
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeInt32(typ, b, &m.Status)
		case 2:
			return consumeString(typ, b, &m.Message)
		}
		return skipField(num, typ, b)
	})
}

// UnityMessage is the envelope sent in both directions of Exchange.
type UnityMessage struct {
	Header      *Header
	UnityOutput *UnityOutput
	UnityInput  *UnityInput
}

func (m *UnityMessage) appendTo(b []byte) []byte {
	if m.Header != nil {
		b = appendMessage(b, 1, m.Header)
	}
	if m.UnityOutput != nil {
		b = appendMessage(b, 2, m.UnityOutput)
	}
	if m.UnityInput != nil {
		b = appendMessage(b, 3, m.UnityInput)
	}
	return b
}

func (m *UnityMessage) unmarshal(b []byte) error {
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			m.Header = &Header{}
			return consumeMessage(typ, b, m.Header)
		case 2:
			m.UnityOutput = &UnityOutput{}
			return consumeMessage(typ, b, m.UnityOutput)
		case 3:
			m.UnityInput = &UnityInput{}
			return consumeMessage(typ, b, m.UnityInput)
		}
		return skipField(num, typ, b)
	})
}

// GetStatus returns the header status, or 0 when no header was sent.
func (m *UnityMessage) GetStatus() int32 {
	if m == nil || m.Header == nil {
		return 0
	}
	return m.Header.Status
}

type UnityOutput struct {
	RLOutput               *UnityRLOutput
	RLInitializationOutput *UnityRLInitializationOutput
}

func (m *UnityOutput) appendTo(b []byte) []byte {
	if m.RLOutput != nil {
		b = appendMessage(b, 1, m.RLOutput)
	}
	if m.RLInitializationOutput != nil {
		b = appendMessage(b, 2, m.RLInitializationOutput)
	}
	return b
}

func (m *UnityOutput) unmarshal(b []byte) error {
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			m.RLOutput = &UnityRLOutput{}
			return consumeMessage(typ, b, m.RLOutput)
		case 2:
			m.RLInitializationOutput = &UnityRLInitializationOutput{}
			return consumeMessage(typ, b, m.RLInitializationOutput)
		}
		return skipField(num, typ, b)
	})
}

type UnityInput struct {
	RLInput               *UnityRLInput
	RLInitializationInput *UnityRLInitializationInput
}

func (m *UnityInput) appendTo(b []byte) []byte {
	if m.RLInput != nil {
		b = appendMessage(b, 1, m.RLInput)
	}
	if m.RLInitializationInput != nil {
		b = appendMessage(b, 2, m.RLInitializationInput)
	}
	return b
}

func (m *UnityInput) unmarshal(b []byte) error {
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			m.RLInput = &UnityRLInput{}
			return consumeMessage(typ, b, m.RLInput)
		case 2:
			m.RLInitializationInput = &UnityRLInitializationInput{}
			return consumeMessage(typ, b, m.RLInitializationInput)
		}
		return skipField(num, typ, b)
	})
}

// UnityRLCapabilities lists the optional protocol features a side supports.
type UnityRLCapabilities struct {
	BaseRLCapabilities          bool
	ConcatenatedPngObservations bool
	CompressedChannelMapping    bool
	HybridActions               bool
	TrainingAnalytics           bool
	VariableLengthObservation   bool
	MultiAgentGroups            bool
}

func (m *UnityRLCapabilities) appendTo(b []byte) []byte {
	b = appendBool(b, 1, m.BaseRLCapabilities)
	b = appendBool(b, 2, m.ConcatenatedPngObservations)
	b = appendBool(b, 3, m.CompressedChannelMapping)
	b = appendBool(b, 4, m.HybridActions)
	b = appendBool(b, 5, m.TrainingAnalytics)
	b = appendBool(b, 6, m.VariableLengthObservation)
	return appendBool(b, 7, m.MultiAgentGroups)
}

func (m *UnityRLCapabilities) unmarshal(b []byte) error {
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeBool(typ, b, &m.BaseRLCapabilities)
		case 2:
			return consumeBool(typ, b, &m.ConcatenatedPngObservations)
		case 3:
			return consumeBool(typ, b, &m.CompressedChannelMapping)
		case 4:
			return consumeBool(typ, b, &m.HybridActions)
		case 5:
			return consumeBool(typ, b, &m.TrainingAnalytics)
		case 6:
			return consumeBool(typ, b, &m.VariableLengthObservation)
		case 7:
			return consumeBool(typ, b, &m.MultiAgentGroups)
		}
		return skipField(num, typ, b)
	})
}

type UnityRLInitializationInput struct {
	Seed                 int32
	CommunicationVersion string
	PackageVersion       string
	Capabilities         *UnityRLCapabilities
	NumAreas             int32
}

func (m *UnityRLInitializationInput) appendTo(b []byte) []byte {
	b = appendInt32(b, 1, m.Seed)
	b = appendString(b, 2, m.CommunicationVersion)
	b = appendString(b, 3, m.PackageVersion)
	if m.Capabilities != nil {
		b = appendMessage(b, 4, m.Capabilities)
	}
	return appendInt32(b, 5, m.NumAreas)
}

func (m *UnityRLInitializationInput) unmarshal(b []byte) error {
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeInt32(typ, b, &m.Seed)
		case 2:
			return consumeString(typ, b, &m.CommunicationVersion)
		case 3:
			return consumeString(typ, b, &m.PackageVersion)
		case 4:
			m.Capabilities = &UnityRLCapabilities{}
			return consumeMessage(typ, b, m.Capabilities)
		case 5:
			return consumeInt32(typ, b, &m.NumAreas)
		}
		return skipField(num, typ, b)
	})
}

type UnityRLInitializationOutput struct {
	Name                 string
	CommunicationVersion string
	LogPath              string
	BrainParameters      []*BrainParameters
	Capabilities         *UnityRLCapabilities
	PackageVersion       string
}

func (m *UnityRLInitializationOutput) appendTo(b []byte) []byte {
	b = appendString(b, 1, m.Name)
	b = appendString(b, 2, m.CommunicationVersion)
	b = appendString(b, 3, m.LogPath)
	for _, bp := range m.BrainParameters {
		b = appendMessage(b, 5, bp)
	}
	if m.Capabilities != nil {
		b = appendMessage(b, 7, m.Capabilities)
	}
	return appendString(b, 8, m.PackageVersion)
}

func (m *UnityRLInitializationOutput) unmarshal(b []byte) error {
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(typ, b, &m.Name)
		case 2:
			return consumeString(typ, b, &m.CommunicationVersion)
		case 3:
			return consumeString(typ, b, &m.LogPath)
		case 5:
			bp := &BrainParameters{}
			n, err := consumeMessage(typ, b, bp)
			if err != nil {
				return 0, err
			}
			m.BrainParameters = append(m.BrainParameters, bp)
			return n, nil
		case 7:
			m.Capabilities = &UnityRLCapabilities{}
			return consumeMessage(typ, b, m.Capabilities)
		case 8:
			return consumeString(typ, b, &m.PackageVersion)
		}
		return skipField(num, typ, b)
	})
}

// ActionSpec is ActionSpecProto: the hybrid action layout of a behavior.
type ActionSpec struct {
	NumContinuousActions int32
	NumDiscreteActions   int32
	DiscreteBranchSizes  []int32
	ActionDescriptions   []string
}

func (m *ActionSpec) appendTo(b []byte) []byte {
	b = appendInt32(b, 1, m.NumContinuousActions)
	b = appendInt32(b, 2, m.NumDiscreteActions)
	b = appendPackedInt32(b, 3, m.DiscreteBranchSizes)
	return appendRepeatedString(b, 4, m.ActionDescriptions)
}

func (m *ActionSpec) unmarshal(b []byte) error {
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeInt32(typ, b, &m.NumContinuousActions)
		case 2:
			return consumeInt32(typ, b, &m.NumDiscreteActions)
		case 3:
			return consumeRepeatedInt32(typ, b, &m.DiscreteBranchSizes)
		case 4:
			var s string
			n, err := consumeString(typ, b, &s)
			if err != nil {
				return 0, err
			}
			m.ActionDescriptions = append(m.ActionDescriptions, s)
			return n, nil
		}
		return skipField(num, typ, b)
	})
}

type BrainParameters struct {
	VectorActionSizeDeprecated         []int32
	VectorActionDescriptionsDeprecated []string
	VectorActionSpaceTypeDeprecated    SpaceType
	BrainName                          string
	IsTraining                         bool
	ActionSpec                         *ActionSpec
}

func (m *BrainParameters) appendTo(b []byte) []byte {
	b = appendPackedInt32(b, 3, m.VectorActionSizeDeprecated)
	b = appendRepeatedString(b, 5, m.VectorActionDescriptionsDeprecated)
	b = appendInt32(b, 6, int32(m.VectorActionSpaceTypeDeprecated))
	b = appendString(b, 7, m.BrainName)
	b = appendBool(b, 8, m.IsTraining)
	if m.ActionSpec != nil {
		b = appendMessage(b, 9, m.ActionSpec)
	}
	return b
}

func (m *BrainParameters) unmarshal(b []byte) error {
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 3:
			return consumeRepeatedInt32(typ, b, &m.VectorActionSizeDeprecated)
		case 5:
			var s string
			n, err := consumeString(typ, b, &s)
			if err != nil {
				return 0, err
			}
			m.VectorActionDescriptionsDeprecated = append(m.VectorActionDescriptionsDeprecated, s)
			return n, nil
		case 6:
			var v int32
			n, err := consumeInt32(typ, b, &v)
			m.VectorActionSpaceTypeDeprecated = SpaceType(v)
			return n, err
		case 7:
			return consumeString(typ, b, &m.BrainName)
		case 8:
			return consumeBool(typ, b, &m.IsTraining)
		case 9:
			m.ActionSpec = &ActionSpec{}
			return consumeMessage(typ, b, m.ActionSpec)
		}
		return skipField(num, typ, b)
	})
}

// FloatData is ObservationProto.FloatData.
type FloatData struct {
	Data []float32
}

func (m *FloatData) appendTo(b []byte) []byte {
	return appendPackedFloat(b, 1, m.Data)
}

func (m *FloatData) unmarshal(b []byte) error {
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			return consumeRepeatedFloat(typ, b, &m.Data)
		}
		return skipField(num, typ, b)
	})
}

// Observation carries either CompressedData or FloatData.
type Observation struct {
	Shape                    []int32
	CompressionType          CompressionType
	CompressedData           []byte
	FloatData                *FloatData
	CompressedChannelMapping []int32
	DimensionProperties      []int32
	ObservationType          ObservationType
	Name                     string
}

func (m *Observation) appendTo(b []byte) []byte {
	b = appendPackedInt32(b, 1, m.Shape)
	b = appendInt32(b, 2, int32(m.CompressionType))
	switch {
	case m.CompressedData != nil:
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, m.CompressedData)
	case m.FloatData != nil:
		b = appendMessage(b, 4, m.FloatData)
	}
	b = appendPackedInt32(b, 5, m.CompressedChannelMapping)
	b = appendPackedInt32(b, 6, m.DimensionProperties)
	b = appendInt32(b, 7, int32(m.ObservationType))
	return appendString(b, 8, m.Name)
}

func (m *Observation) unmarshal(b []byte) error {
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeRepeatedInt32(typ, b, &m.Shape)
		case 2:
			var v int32
			n, err := consumeInt32(typ, b, &v)
			m.CompressionType = CompressionType(v)
			return n, err
		case 3:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			m.CompressedData = append([]byte{}, v...)
			m.FloatData = nil
			return n, nil
		case 4:
			m.FloatData = &FloatData{}
			m.CompressedData = nil
			return consumeMessage(typ, b, m.FloatData)
		case 5:
			return consumeRepeatedInt32(typ, b, &m.CompressedChannelMapping)
		case 6:
			return consumeRepeatedInt32(typ, b, &m.DimensionProperties)
		case 7:
			var v int32
			n, err := consumeInt32(typ, b, &v)
			m.ObservationType = ObservationType(v)
			return n, err
		case 8:
			return consumeString(typ, b, &m.Name)
		}
		return skipField(num, typ, b)
	})
}

type AgentInfo struct {
	Reward         float32
	Done           bool
	MaxStepReached bool
	ID             int32
	ActionMask     []bool
	Observations   []*Observation
	GroupID        int32
	GroupReward    float32
}

func (m *AgentInfo) appendTo(b []byte) []byte {
	b = appendFloat(b, 7, m.Reward)
	b = appendBool(b, 8, m.Done)
	b = appendBool(b, 9, m.MaxStepReached)
	b = appendInt32(b, 10, m.ID)
	b = appendPackedBool(b, 11, m.ActionMask)
	for _, o := range m.Observations {
		b = appendMessage(b, 13, o)
	}
	b = appendInt32(b, 14, m.GroupID)
	return appendFloat(b, 15, m.GroupReward)
}

func (m *AgentInfo) unmarshal(b []byte) error {
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 7:
			return consumeFloat(typ, b, &m.Reward)
		case 8:
			return consumeBool(typ, b, &m.Done)
		case 9:
			return consumeBool(typ, b, &m.MaxStepReached)
		case 10:
			return consumeInt32(typ, b, &m.ID)
		case 11:
			return consumeRepeatedBool(typ, b, &m.ActionMask)
		case 13:
			o := &Observation{}
			n, err := consumeMessage(typ, b, o)
			if err != nil {
				return 0, err
			}
			m.Observations = append(m.Observations, o)
			return n, nil
		case 14:
			return consumeInt32(typ, b, &m.GroupID)
		case 15:
			return consumeFloat(typ, b, &m.GroupReward)
		}
		return skipField(num, typ, b)
	})
}

// agentInfoList is UnityRLOutputProto.ListAgentInfoProto.
type agentInfoList []*AgentInfo

func (l *agentInfoList) appendTo(b []byte) []byte {
	for _, info := range *l {
		b = appendMessage(b, 1, info)
	}
	return b
}

func (l *agentInfoList) unmarshal(b []byte) error {
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return skipField(num, typ, b)
		}
		info := &AgentInfo{}
		n, err := consumeMessage(typ, b, info)
		if err != nil {
			return 0, err
		}
		*l = append(*l, info)
		return n, nil
	})
}

// UnityRLOutput groups agent infos by behavior name.
type UnityRLOutput struct {
	AgentInfos  map[string][]*AgentInfo
	SideChannel []byte
}

func (m *UnityRLOutput) appendTo(b []byte) []byte {
	for _, name := range sortedKeys(m.AgentInfos) {
		list := agentInfoList(m.AgentInfos[name])
		b = appendMessage(b, 2, &mapEntry{key: name, value: &list})
	}
	return appendBytes(b, 3, m.SideChannel)
}

func (m *UnityRLOutput) unmarshal(b []byte) error {
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 2:
			var list agentInfoList
			entry := &mapEntry{value: &list}
			n, err := consumeMessage(typ, b, entry)
			if err != nil {
				return 0, err
			}
			if m.AgentInfos == nil {
				m.AgentInfos = make(map[string][]*AgentInfo)
			}
			m.AgentInfos[entry.key] = list
			return n, nil
		case 3:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			m.SideChannel = append([]byte{}, v...)
			return n, nil
		}
		return skipField(num, typ, b)
	})
}

type AgentAction struct {
	VectorActionsDeprecated []float32
	Value                   float32
	ContinuousActions       []float32
	DiscreteActions         []int32
}

func (m *AgentAction) appendTo(b []byte) []byte {
	b = appendPackedFloat(b, 1, m.VectorActionsDeprecated)
	b = appendFloat(b, 4, m.Value)
	b = appendPackedFloat(b, 6, m.ContinuousActions)
	return appendPackedInt32(b, 7, m.DiscreteActions)
}

func (m *AgentAction) unmarshal(b []byte) error {
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeRepeatedFloat(typ, b, &m.VectorActionsDeprecated)
		case 4:
			return consumeFloat(typ, b, &m.Value)
		case 6:
			return consumeRepeatedFloat(typ, b, &m.ContinuousActions)
		case 7:
			return consumeRepeatedInt32(typ, b, &m.DiscreteActions)
		}
		return skipField(num, typ, b)
	})
}

type agentActionList []*AgentAction

func (l *agentActionList) appendTo(b []byte) []byte {
	for _, a := range *l {
		b = appendMessage(b, 1, a)
	}
	return b
}

func (l *agentActionList) unmarshal(b []byte) error {
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return skipField(num, typ, b)
		}
		a := &AgentAction{}
		n, err := consumeMessage(typ, b, a)
		if err != nil {
			return 0, err
		}
		*l = append(*l, a)
		return n, nil
	})
}

// UnityRLInput carries the actions for every behavior plus the command.
type UnityRLInput struct {
	AgentActions map[string][]*AgentAction
	Command      Command
	SideChannel  []byte
}

func (m *UnityRLInput) appendTo(b []byte) []byte {
	for _, name := range sortedKeys(m.AgentActions) {
		list := agentActionList(m.AgentActions[name])
		b = appendMessage(b, 1, &mapEntry{key: name, value: &list})
	}
	b = appendInt32(b, 4, int32(m.Command))
	return appendBytes(b, 5, m.SideChannel)
}

func (m *UnityRLInput) unmarshal(b []byte) error {
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			var list agentActionList
			entry := &mapEntry{value: &list}
			n, err := consumeMessage(typ, b, entry)
			if err != nil {
				return 0, err
			}
			if m.AgentActions == nil {
				m.AgentActions = make(map[string][]*AgentAction)
			}
			m.AgentActions[entry.key] = list
			return n, nil
		case 4:
			var v int32
			n, err := consumeInt32(typ, b, &v)
			m.Command = Command(v)
			return n, err
		case 5:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			m.SideChannel = append([]byte{}, v...)
			return n, nil
		}
		return skipField(num, typ, b)
	})
}

// mapEntry is the synthetic message protobuf uses for map<string, V>.
type mapEntry struct {
	key   string
	value wireMessage
}

func (e *mapEntry) appendTo(b []byte) []byte {
	b = appendString(b, 1, e.key)
	return appendMessage(b, 2, e.value)
}

func (e *mapEntry) unmarshal(b []byte) error {
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(typ, b, &e.key)
		case 2:
			return consumeMessage(typ, b, e.value)
		}
		return skipField(num, typ, b)
	})
}
