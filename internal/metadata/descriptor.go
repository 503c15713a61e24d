package metadata

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
)

// The METADATA schema is built at init time from a FileDescriptorProto so
// that records can be parsed with prototext into dynamic messages without
// generated code.
var (
	metaDataDesc   protoreflect.MessageDescriptor
	thirdPartyDesc protoreflect.MessageDescriptor
	urlDesc        protoreflect.MessageDescriptor
	dateDesc       protoreflect.MessageDescriptor
	urlTypeDesc    protoreflect.EnumDescriptor
)

// Field descriptors used by the Record accessors.
var (
	fdName            protoreflect.FieldDescriptor
	fdDescription     protoreflect.FieldDescriptor
	fdThirdParty      protoreflect.FieldDescriptor
	fdURL             protoreflect.FieldDescriptor
	fdVersion         protoreflect.FieldDescriptor
	fdLastUpgradeDate protoreflect.FieldDescriptor
	fdURLType         protoreflect.FieldDescriptor
	fdURLValue        protoreflect.FieldDescriptor
	fdYear            protoreflect.FieldDescriptor
	fdMonth           protoreflect.FieldDescriptor
	fdDay             protoreflect.FieldDescriptor
)

const schemaPackage = "external_updater"

func init() {
	fd, err := protodesc.NewFile(schemaFile(), nil)
	if err != nil {
		panic(fmt.Sprintf("metadata: invalid schema: %v", err))
	}

	msgs := fd.Messages()
	metaDataDesc = msgs.ByName("MetaData")
	thirdPartyDesc = msgs.ByName("ThirdPartyMetaData")
	urlDesc = msgs.ByName("URL")
	dateDesc = msgs.ByName("Date")
	urlTypeDesc = urlDesc.Enums().ByName("Type")

	fdName = metaDataDesc.Fields().ByName("name")
	fdDescription = metaDataDesc.Fields().ByName("description")
	fdThirdParty = metaDataDesc.Fields().ByName("third_party")
	fdURL = thirdPartyDesc.Fields().ByName("url")
	fdVersion = thirdPartyDesc.Fields().ByName("version")
	fdLastUpgradeDate = thirdPartyDesc.Fields().ByName("last_upgrade_date")
	fdURLType = urlDesc.Fields().ByName("type")
	fdURLValue = urlDesc.Fields().ByName("value")
	fdYear = dateDesc.Fields().ByName("year")
	fdMonth = dateDesc.Fields().ByName("month")
	fdDay = dateDesc.Fields().ByName("day")
}

func schemaFile() *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String("external_updater/metadata.proto"),
		Package: proto.String(schemaPackage),
		Syntax:  proto.String("proto2"),
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("MetaData"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalarField("name", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					scalarField("description", 3, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					messageField("third_party", 13, "ThirdPartyMetaData", false),
				},
			},
			{
				Name: proto.String("ThirdPartyMetaData"),
				Field: []*descriptorpb.FieldDescriptorProto{
					messageField("url", 1, "URL", true),
					scalarField("version", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					enumField("license_type", 4, "LicenseType"),
					scalarField("license_note", 5, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					scalarField("local_modifications", 6, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					messageField("last_upgrade_date", 10, "Date", false),
				},
			},
			{
				Name: proto.String("URL"),
				Field: []*descriptorpb.FieldDescriptorProto{
					enumField("type", 1, "URL.Type"),
					scalarField("value", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				},
				EnumType: []*descriptorpb.EnumDescriptorProto{
					enumType("Type", []string{"UNKNOWN", "HOMEPAGE", "ARCHIVE", "GIT", "SVN", "HG", "DARCS", "OTHER"},
						[]int32{0, 1, 2, 3, 7, 8, 9, 11}),
				},
			},
			{
				Name: proto.String("Date"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalarField("year", 1, descriptorpb.FieldDescriptorProto_TYPE_INT32),
					scalarField("month", 2, descriptorpb.FieldDescriptorProto_TYPE_INT32),
					scalarField("day", 3, descriptorpb.FieldDescriptorProto_TYPE_INT32),
				},
			},
		},
		EnumType: []*descriptorpb.EnumDescriptorProto{
			enumType("LicenseType",
				[]string{"BY_EXCEPTION_ONLY", "NOTICE", "PERMISSIVE", "RECIPROCAL",
					"RESTRICTED_IF_STATICALLY_LINKED", "RESTRICTED", "UNENCUMBERED"},
				[]int32{1, 2, 3, 4, 5, 6, 7}),
		},
	}
}

func scalarField(name string, number int32, typ descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(number),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   typ.Enum(),
	}
}

func messageField(name string, number int32, typeName string, repeated bool) *descriptorpb.FieldDescriptorProto {
	label := descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL
	if repeated {
		label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED
	}
	return &descriptorpb.FieldDescriptorProto{
		Name:     proto.String(name),
		Number:   proto.Int32(number),
		Label:    label.Enum(),
		Type:     descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(),
		TypeName: proto.String("." + schemaPackage + "." + typeName),
	}
}

func enumField(name string, number int32, typeName string) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:     proto.String(name),
		Number:   proto.Int32(number),
		Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:     descriptorpb.FieldDescriptorProto_TYPE_ENUM.Enum(),
		TypeName: proto.String("." + schemaPackage + "." + typeName),
	}
}

func enumType(name string, values []string, numbers []int32) *descriptorpb.EnumDescriptorProto {
	e := &descriptorpb.EnumDescriptorProto{Name: proto.String(name)}
	for i, v := range values {
		e.Value = append(e.Value, &descriptorpb.EnumValueDescriptorProto{
			Name:   proto.String(v),
			Number: proto.Int32(numbers[i]),
		})
	}
	return e
}
