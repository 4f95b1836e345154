package communicator

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
)

// The communicator_objects schema of the ML-Agents communication API 1.5.0,
// built as descriptors so dynamicpb can encode and decode it independently
// of the hand-written codec.

type (
	fieldProto = descriptorpb.FieldDescriptorProto
	fieldType  = descriptorpb.FieldDescriptorProto_Type
)

const schemaPackage = ".communicator_objects."

var (
	labelOptional = descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL
	labelRepeated = descriptorpb.FieldDescriptorProto_LABEL_REPEATED

	typeInt32   = descriptorpb.FieldDescriptorProto_TYPE_INT32
	typeBool    = descriptorpb.FieldDescriptorProto_TYPE_BOOL
	typeFloat   = descriptorpb.FieldDescriptorProto_TYPE_FLOAT
	typeString  = descriptorpb.FieldDescriptorProto_TYPE_STRING
	typeBytes   = descriptorpb.FieldDescriptorProto_TYPE_BYTES
	typeEnum    = descriptorpb.FieldDescriptorProto_TYPE_ENUM
	typeMessage = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE
)

func scalarField(name string, num int32, typ fieldType) *fieldProto {
	return &fieldProto{
		Name:   proto.String(name),
		Number: proto.Int32(num),
		Label:  labelOptional.Enum(),
		Type:   typ.Enum(),
	}
}

// repeatedField is packed unless packed is false. Strings and bytes are
// never packed.
func repeatedField(name string, num int32, typ fieldType, packed bool) *fieldProto {
	f := scalarField(name, num, typ)
	f.Label = labelRepeated.Enum()
	if !packed && typ != typeString && typ != typeBytes {
		f.Options = &descriptorpb.FieldOptions{Packed: proto.Bool(false)}
	}
	return f
}

func messageField(name string, num int32, typeName string) *fieldProto {
	f := scalarField(name, num, typeMessage)
	f.TypeName = proto.String(schemaPackage + typeName)
	return f
}

func repeatedMessageField(name string, num int32, typeName string) *fieldProto {
	f := messageField(name, num, typeName)
	f.Label = labelRepeated.Enum()
	return f
}

func enumField(name string, num int32, typeName string) *fieldProto {
	f := scalarField(name, num, typeEnum)
	f.TypeName = proto.String(schemaPackage + typeName)
	return f
}

func enumType(name string, values ...string) *descriptorpb.EnumDescriptorProto {
	e := &descriptorpb.EnumDescriptorProto{Name: proto.String(name)}
	for i, v := range values {
		e.Value = append(e.Value, &descriptorpb.EnumValueDescriptorProto{
			Name:   proto.String(v),
			Number: proto.Int32(int32(i)),
		})
	}
	return e
}

func messageType(name string, fields ...*fieldProto) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{Name: proto.String(name), Field: fields}
}

// mapEntryType is the synthetic entry of map<string, valueType>.
func mapEntryType(name, valueType string) *descriptorpb.DescriptorProto {
	m := messageType(name,
		scalarField("key", 1, typeString),
		messageField("value", 2, valueType),
	)
	m.Options = &descriptorpb.MessageOptions{MapEntry: proto.Bool(true)}
	return m
}

func mapField(name string, num int32, entryType string) *fieldProto {
	return repeatedMessageField(name, num, entryType)
}

// upstreamSchema returns the communicator_objects file. With packed false
// every repeated scalar is declared [packed = false].
func upstreamSchema(t *testing.T, packed bool) protoreflect.FileDescriptor {
	t.Helper()

	observation := messageType("ObservationProto",
		repeatedField("shape", 1, typeInt32, packed),
		enumField("compression_type", 2, "CompressionTypeProto"),
		scalarField("compressed_data", 3, typeBytes),
		messageField("float_data", 4, "ObservationProto.FloatData"),
		repeatedField("compressed_channel_mapping", 5, typeInt32, packed),
		repeatedField("dimension_properties", 6, typeInt32, packed),
		enumField("observation_type", 7, "ObservationTypeProto"),
		scalarField("name", 8, typeString),
	)
	observation.Field[2].OneofIndex = proto.Int32(0)
	observation.Field[3].OneofIndex = proto.Int32(0)
	observation.OneofDecl = []*descriptorpb.OneofDescriptorProto{{Name: proto.String("observation_data")}}
	observation.NestedType = []*descriptorpb.DescriptorProto{
		messageType("FloatData", repeatedField("data", 1, typeFloat, packed)),
	}

	rlOutput := messageType("UnityRLOutputProto",
		mapField("agentInfos", 2, "UnityRLOutputProto.AgentInfosEntry"),
		scalarField("side_channel", 3, typeBytes),
	)
	rlOutput.NestedType = []*descriptorpb.DescriptorProto{
		messageType("ListAgentInfoProto", repeatedMessageField("value", 1, "AgentInfoProto")),
		mapEntryType("AgentInfosEntry", "UnityRLOutputProto.ListAgentInfoProto"),
	}

	rlInput := messageType("UnityRLInputProto",
		mapField("agent_actions", 1, "UnityRLInputProto.AgentActionsEntry"),
		enumField("command", 4, "CommandProto"),
		scalarField("side_channel", 5, typeBytes),
	)
	rlInput.NestedType = []*descriptorpb.DescriptorProto{
		messageType("ListAgentActionProto", repeatedMessageField("value", 1, "AgentActionProto")),
		mapEntryType("AgentActionsEntry", "UnityRLInputProto.ListAgentActionProto"),
	}

	file := &descriptorpb.FileDescriptorProto{
		Name:    proto.String("communicator_objects/unity_message.proto"),
		Package: proto.String("communicator_objects"),
		Syntax:  proto.String("proto3"),
		EnumType: []*descriptorpb.EnumDescriptorProto{
			enumType("CommandProto", "STEP", "RESET", "QUIT"),
			enumType("SpaceTypeProto", "discrete", "continuous"),
			enumType("CompressionTypeProto", "NONE", "PNG"),
			enumType("ObservationTypeProto", "DEFAULT", "GOAL_SIGNAL"),
		},
		MessageType: []*descriptorpb.DescriptorProto{
			messageType("HeaderProto",
				scalarField("status", 1, typeInt32),
				scalarField("message", 2, typeString),
			),
			messageType("UnityRLCapabilitiesProto",
				scalarField("baseRLCapabilities", 1, typeBool),
				scalarField("concatenatedPngObservations", 2, typeBool),
				scalarField("compressedChannelMapping", 3, typeBool),
				scalarField("hybridActions", 4, typeBool),
				scalarField("trainingAnalytics", 5, typeBool),
				scalarField("variableLengthObservation", 6, typeBool),
				scalarField("multiAgentGroups", 7, typeBool),
			),
			messageType("UnityRLInitializationInputProto",
				scalarField("seed", 1, typeInt32),
				scalarField("communication_version", 2, typeString),
				scalarField("package_version", 3, typeString),
				messageField("capabilities", 4, "UnityRLCapabilitiesProto"),
				scalarField("num_areas", 5, typeInt32),
			),
			messageType("ActionSpecProto",
				scalarField("num_continuous_actions", 1, typeInt32),
				scalarField("num_discrete_actions", 2, typeInt32),
				repeatedField("discrete_branch_sizes", 3, typeInt32, packed),
				repeatedField("action_descriptions", 4, typeString, packed),
			),
			messageType("BrainParametersProto",
				repeatedField("vector_action_size_deprecated", 3, typeInt32, packed),
				repeatedField("vector_action_descriptions_deprecated", 5, typeString, packed),
				enumField("vector_action_space_type_deprecated", 6, "SpaceTypeProto"),
				scalarField("brain_name", 7, typeString),
				scalarField("is_training", 8, typeBool),
				messageField("action_spec", 9, "ActionSpecProto"),
			),
			messageType("UnityRLInitializationOutputProto",
				scalarField("name", 1, typeString),
				scalarField("communication_version", 2, typeString),
				scalarField("log_path", 3, typeString),
				repeatedMessageField("brain_parameters", 5, "BrainParametersProto"),
				messageField("capabilities", 7, "UnityRLCapabilitiesProto"),
				scalarField("package_version", 8, typeString),
			),
			observation,
			messageType("AgentInfoProto",
				scalarField("reward", 7, typeFloat),
				scalarField("done", 8, typeBool),
				scalarField("max_step_reached", 9, typeBool),
				scalarField("id", 10, typeInt32),
				repeatedField("action_mask", 11, typeBool, packed),
				repeatedMessageField("observations", 13, "ObservationProto"),
				scalarField("group_id", 14, typeInt32),
				scalarField("group_reward", 15, typeFloat),
			),
			rlOutput,
			messageType("AgentActionProto",
				repeatedField("vector_actions_deprecated", 1, typeFloat, packed),
				scalarField("value", 4, typeFloat),
				repeatedField("continuous_actions", 6, typeFloat, packed),
				repeatedField("discrete_actions", 7, typeInt32, packed),
			),
			rlInput,
			messageType("UnityOutputProto",
				messageField("rl_output", 1, "UnityRLOutputProto"),
				messageField("rl_initialization_output", 2, "UnityRLInitializationOutputProto"),
			),
			messageType("UnityInputProto",
				messageField("rl_input", 1, "UnityRLInputProto"),
				messageField("rl_initialization_input", 2, "UnityRLInitializationInputProto"),
			),
			messageType("UnityMessageProto",
				messageField("header", 1, "HeaderProto"),
				messageField("unity_output", 2, "UnityOutputProto"),
				messageField("unity_input", 3, "UnityInputProto"),
			),
		},
	}

	fd, err := protodesc.NewFile(file, nil)
	require.NoError(t, err)
	return fd
}
