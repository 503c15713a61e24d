package metadata

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"google.golang.org/protobuf/reflect/protoreflect"
)

// format renders m in canonical text format: fields in declaration order,
// two-space indentation, enum values by name.
//
// prototext.Marshal is not used because its output is deliberately
// unstable between builds and METADATA files are committed to a tree.
func format(m protoreflect.Message) []byte {
	var b bytes.Buffer
	formatMessage(&b, m, 0)
	return b.Bytes()
}

func formatMessage(b *bytes.Buffer, m protoreflect.Message, depth int) {
	fields := m.Descriptor().Fields()
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		if !m.Has(fd) {
			continue
		}
		v := m.Get(fd)
		if fd.IsList() {
			list := v.List()
			for j := 0; j < list.Len(); j++ {
				formatField(b, fd, list.Get(j), depth)
			}
			continue
		}
		formatField(b, fd, v, depth)
	}
}

func formatField(b *bytes.Buffer, fd protoreflect.FieldDescriptor, v protoreflect.Value, depth int) {
	indent := strings.Repeat("  ", depth)
	switch fd.Kind() {
	case protoreflect.MessageKind, protoreflect.GroupKind:
		fmt.Fprintf(b, "%s%s {\n", indent, fd.Name())
		formatMessage(b, v.Message(), depth+1)
		fmt.Fprintf(b, "%s}\n", indent)
	case protoreflect.EnumKind:
		name := strconv.Itoa(int(v.Enum()))
		if ev := fd.Enum().Values().ByNumber(v.Enum()); ev != nil {
			name = string(ev.Name())
		}
		fmt.Fprintf(b, "%s%s: %s\n", indent, fd.Name(), name)
	case protoreflect.StringKind:
		fmt.Fprintf(b, "%s%s: %s\n", indent, fd.Name(), quote(v.String()))
	default:
		fmt.Fprintf(b, "%s%s: %v\n", indent, fd.Name(), v.Interface())
	}
}

// quote escapes s the way the protobuf text format expects: C escapes for
// quotes, backslashes and control bytes, UTF-8 passed through.
func quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if c < 0x20 || c == 0x7f {
				fmt.Fprintf(&b, `\%03o`, c)
				continue
			}
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}
