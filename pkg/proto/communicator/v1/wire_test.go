package communicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// sampleJSON touches every field of the schema, written with the upstream
// field names.
const sampleJSON = `{
  "header": {"status": 200, "message": "ok"},
  "unity_output": {
    "rl_output": {
      "agentInfos": {
        "Roller?team=0": {"value": [
          {
            "reward": 0.5, "id": 1, "action_mask": [true, false, true],
            "observations": [{
              "shape": [3],
              "float_data": {"data": [1, -2.5, 0.25]},
              "dimension_properties": [1],
              "name": "VectorSensor"
            }],
            "group_id": 2, "group_reward": -1
          },
          {
            "reward": -1.25, "done": true, "max_step_reached": true, "id": -7,
            "observations": [{
              "shape": [84, 84, 3],
              "compression_type": "PNG",
              "compressed_data": "iVBORw==",
              "compressed_channel_mapping": [0, 0, 1],
              "dimension_properties": [2, 2, 1],
              "observation_type": "GOAL_SIGNAL",
              "name": "Camera"
            }]
          }
        ]},
        "Walker?team=1": {"value": [{"reward": 2, "id": 3}]}
      },
      "side_channel": "AQID"
    },
    "rl_initialization_output": {
      "name": "AcademySingleton",
      "communication_version": "1.5.0",
      "log_path": "/tmp/Player.log",
      "brain_parameters": [
        {
          "brain_name": "Roller?team=0", "is_training": true,
          "action_spec": {
            "num_continuous_actions": 2, "num_discrete_actions": 2,
            "discrete_branch_sizes": [3, 5], "action_descriptions": ["x", "y"]
          }
        },
        {
          "brain_name": "Legacy",
          "vector_action_size_deprecated": [4, 2],
          "vector_action_descriptions_deprecated": ["a", "b"],
          "vector_action_space_type_deprecated": "continuous"
        }
      ],
      "capabilities": {
        "baseRLCapabilities": true, "concatenatedPngObservations": true,
        "hybridActions": true, "trainingAnalytics": true, "multiAgentGroups": true
      },
      "package_version": "2.0.1"
    }
  },
  "unity_input": {
    "rl_input": {
      "agent_actions": {
        "Roller?team=0": {"value": [
          {"continuous_actions": [0.5, -0.75], "discrete_actions": [2, 0]},
          {"vector_actions_deprecated": [1.5], "value": 0.125}
        ]},
        "Walker?team=1": {"value": []}
      },
      "command": "RESET",
      "side_channel": "BAU="
    },
    "rl_initialization_input": {
      "seed": -3,
      "communication_version": "1.5.0",
      "package_version": "1.0.0",
      "capabilities": {"baseRLCapabilities": true, "hybridActions": true},
      "num_areas": 4
    }
  }
}`

// sampleMessage is sampleJSON in terms of this package's types.
func sampleMessage() *UnityMessage {
	return &UnityMessage{
		Header: &Header{Status: StatusOK, Message: "ok"},
		UnityOutput: &UnityOutput{
			RLOutput: &UnityRLOutput{
				AgentInfos: map[string][]*AgentInfo{
					"Roller?team=0": {
						{
							Reward:     0.5,
							ID:         1,
							ActionMask: []bool{true, false, true},
							Observations: []*Observation{{
								Shape:               []int32{3},
								FloatData:           &FloatData{Data: []float32{1, -2.5, 0.25}},
								DimensionProperties: []int32{1},
								Name:                "VectorSensor",
							}},
							GroupID:     2,
							GroupReward: -1,
						},
						{
							Reward:         -1.25,
							Done:           true,
							MaxStepReached: true,
							ID:             -7,
							Observations: []*Observation{{
								Shape:                    []int32{84, 84, 3},
								CompressionType:          CompressionPNG,
								CompressedData:           []byte{0x89, 'P', 'N', 'G'},
								CompressedChannelMapping: []int32{0, 0, 1},
								DimensionProperties:      []int32{2, 2, 1},
								ObservationType:          ObservationTypeGoalSignal,
								Name:                     "Camera",
							}},
						},
					},
					"Walker?team=1": {{Reward: 2, ID: 3}},
				},
				SideChannel: []byte{1, 2, 3},
			},
			RLInitializationOutput: &UnityRLInitializationOutput{
				Name:                 "AcademySingleton",
				CommunicationVersion: "1.5.0",
				LogPath:              "/tmp/Player.log",
				BrainParameters: []*BrainParameters{
					{
						BrainName:  "Roller?team=0",
						IsTraining: true,
						ActionSpec: &ActionSpec{
							NumContinuousActions: 2,
							NumDiscreteActions:   2,
							DiscreteBranchSizes:  []int32{3, 5},
							ActionDescriptions:   []string{"x", "y"},
						},
					},
					{
						BrainName:                          "Legacy",
						VectorActionSizeDeprecated:         []int32{4, 2},
						VectorActionDescriptionsDeprecated: []string{"a", "b"},
						VectorActionSpaceTypeDeprecated:    SpaceTypeContinuous,
					},
				},
				Capabilities: &UnityRLCapabilities{
					BaseRLCapabilities:          true,
					ConcatenatedPngObservations: true,
					HybridActions:               true,
					TrainingAnalytics:           true,
					MultiAgentGroups:            true,
				},
				PackageVersion: "2.0.1",
			},
		},
		UnityInput: &UnityInput{
			RLInput: &UnityRLInput{
				AgentActions: map[string][]*AgentAction{
					"Roller?team=0": {
						{ContinuousActions: []float32{0.5, -0.75}, DiscreteActions: []int32{2, 0}},
						{VectorActionsDeprecated: []float32{1.5}, Value: 0.125},
					},
					"Walker?team=1": nil,
				},
				Command:     CommandReset,
				SideChannel: []byte{4, 5},
			},
			RLInitializationInput: &UnityRLInitializationInput{
				Seed:                 -3,
				CommunicationVersion: "1.5.0",
				PackageVersion:       "1.0.0",
				Capabilities:         &UnityRLCapabilities{BaseRLCapabilities: true, HybridActions: true},
				NumAreas:             4,
			},
		},
	}
}

func dynamicSample(t *testing.T, packed bool) *dynamicpb.Message {
	t.Helper()
	desc := upstreamSchema(t, packed).Messages().ByName("UnityMessageProto")
	require.NotNil(t, desc)
	msg := dynamicpb.NewMessage(desc)
	require.NoError(t, protojson.Unmarshal([]byte(sampleJSON), msg))
	return msg
}

// requireNoUnknown fails when any nested message kept bytes the schema
// could not place.
func requireNoUnknown(t *testing.T, m protoreflect.Message) {
	t.Helper()
	require.Empty(t, m.GetUnknown(), "unknown fields in %s", m.Descriptor().FullName())
	m.Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		switch {
		case fd.IsMap():
			if fd.MapValue().Message() != nil {
				v.Map().Range(func(_ protoreflect.MapKey, mv protoreflect.Value) bool {
					requireNoUnknown(t, mv.Message())
					return true
				})
			}
		case fd.IsList():
			if fd.Message() != nil {
				for i := 0; i < v.List().Len(); i++ {
					requireNoUnknown(t, v.List().Get(i).Message())
				}
			}
		case fd.Message() != nil:
			requireNoUnknown(t, v.Message())
		}
		return true
	})
}

func TestUnmarshal_UpstreamEncoding(t *testing.T) {
	for _, tc := range []struct {
		name   string
		packed bool
	}{
		{"packed repeated scalars", true},
		{"unpacked repeated scalars", false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b, err := proto.MarshalOptions{Deterministic: true}.Marshal(dynamicSample(t, tc.packed))
			require.NoError(t, err)

			got, err := Unmarshal(b)
			require.NoError(t, err)
			assert.Equal(t, sampleMessage(), got)
		})
	}
}

func TestUnmarshal_PackedAndUnpackedDiffer(t *testing.T) {
	packed, err := proto.MarshalOptions{Deterministic: true}.Marshal(dynamicSample(t, true))
	require.NoError(t, err)
	unpacked, err := proto.MarshalOptions{Deterministic: true}.Marshal(dynamicSample(t, false))
	require.NoError(t, err)
	assert.Greater(t, len(unpacked), len(packed))
}

func TestMarshal_MatchesUpstreamSchema(t *testing.T) {
	want := dynamicSample(t, true)

	got := dynamicpb.NewMessage(want.Descriptor())
	require.NoError(t, proto.Unmarshal(Marshal(sampleMessage()), got))
	requireNoUnknown(t, got)

	if !proto.Equal(want, got) {
		t.Errorf("encoding differs from upstream\nwant: %s\ngot:  %s",
			protojson.Format(want), protojson.Format(got))
	}
}

func TestMarshal_UpstreamEncodingIsStable(t *testing.T) {
	upstream, err := proto.MarshalOptions{Deterministic: true}.Marshal(dynamicSample(t, true))
	require.NoError(t, err)

	decoded, err := Unmarshal(upstream)
	require.NoError(t, err)
	again, err := Unmarshal(Marshal(decoded))
	require.NoError(t, err)
	assert.Equal(t, decoded, again)
}

func TestUnmarshal_SkipsUnknownFields(t *testing.T) {
	b := Marshal(&UnityMessage{Header: &Header{Status: StatusClose}})
	b = protowire.AppendTag(b, 42, protowire.BytesType)
	b = protowire.AppendString(b, "from a newer Unity")
	b = protowire.AppendTag(b, 43, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, 7)

	got, err := Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, StatusClose, got.GetStatus())
}

func TestUnmarshal_Truncated(t *testing.T) {
	b := Marshal(sampleMessage())
	_, err := Unmarshal(b[:len(b)-3])
	assert.Error(t, err)
}

func TestCodec(t *testing.T) {
	var codec Codec
	assert.Equal(t, "proto", codec.Name())

	b, err := codec.Marshal(sampleMessage())
	require.NoError(t, err)
	got := &UnityMessage{}
	require.NoError(t, codec.Unmarshal(b, got))
	assert.Equal(t, sampleMessage(), got)

	_, err = codec.Marshal("not a message")
	assert.Error(t, err)
	assert.Error(t, codec.Unmarshal(b, new(int)))
}

func TestServiceDesc(t *testing.T) {
	assert.Equal(t, "communicator_objects.UnityToExternalProto", UnityToExternal_ServiceDesc.ServiceName)
	require.Len(t, UnityToExternal_ServiceDesc.Methods, 1)
	assert.Equal(t, "Exchange", UnityToExternal_ServiceDesc.Methods[0].MethodName)
	assert.Equal(t, "/"+UnityToExternal_ServiceDesc.ServiceName+"/Exchange", ExchangeFullMethod)
}
