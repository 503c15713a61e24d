package metadata

import (
	"bytes"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// URLType is the kind of an upstream URL entry.
type URLType int32

const (
	URLUnknown  URLType = 0
	URLHomepage URLType = 1
	URLArchive  URLType = 2
	URLGit      URLType = 3
	URLSVN      URLType = 7
	URLHg       URLType = 8
	URLDarcs    URLType = 9
	URLOther    URLType = 11
)

// String returns the schema name of the URL type (e.g. "ARCHIVE").
func (t URLType) String() string {
	if v := urlTypeDesc.Values().ByNumber(protoreflect.EnumNumber(t)); v != nil {
		return string(v.Name())
	}
	return fmt.Sprintf("URLType(%d)", int32(t))
}

// URL is one upstream location listed in a record.
type URL struct {
	Type  URLType
	Value string
}

// Record is a parsed METADATA file.
//
// A Record remembers the bytes it was parsed from. As long as none of its
// fields change, Marshal returns exactly those bytes.
type Record struct {
	msg  *dynamicpb.Message
	orig proto.Message
	raw  []byte
}

// New returns an empty record.
func New() *Record {
	return &Record{msg: dynamicpb.NewMessage(metaDataDesc)}
}

// Parse decodes a METADATA file in protobuf text format.
func Parse(data []byte) (*Record, error) {
	msg := dynamicpb.NewMessage(metaDataDesc)
	if err := prototext.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	rec := &Record{msg: msg}
	rec.commit(data)
	return rec, nil
}

// commit records data as the on-disk form of the current field values.
func (r *Record) commit(data []byte) {
	r.raw = bytes.Clone(data)
	r.orig = proto.Clone(r.msg)
}

// Modified reports whether the record differs from what was last read or written.
func (r *Record) Modified() bool {
	return r.raw == nil || !proto.Equal(r.msg, r.orig)
}

// Marshal returns the text form of the record.
func (r *Record) Marshal() []byte {
	if !r.Modified() {
		return bytes.Clone(r.raw)
	}
	return format(r.msg)
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	c := &Record{msg: proto.Clone(r.msg).(*dynamicpb.Message)}
	if r.orig != nil {
		c.orig = proto.Clone(r.orig)
		c.raw = bytes.Clone(r.raw)
	}
	return c
}

// Equal reports whether two records carry the same field values.
func (r *Record) Equal(other *Record) bool {
	return proto.Equal(r.msg, other.msg)
}

// Name returns the project name.
func (r *Record) Name() string {
	return r.msg.Get(fdName).String()
}

// SetName sets the project name.
func (r *Record) SetName(name string) {
	r.msg.Set(fdName, protoreflect.ValueOfString(name))
}

// Description returns the free-form project description.
func (r *Record) Description() string {
	return r.msg.Get(fdDescription).String()
}

func (r *Record) thirdParty() protoreflect.Message {
	return r.msg.Get(fdThirdParty).Message()
}

func (r *Record) mutableThirdParty() protoreflect.Message {
	return r.msg.Mutable(fdThirdParty).Message()
}

// Version returns the currently vendored version.
func (r *Record) Version() string {
	return r.thirdParty().Get(fdVersion).String()
}

// SetVersion sets the vendored version.
func (r *Record) SetVersion(version string) {
	r.mutableThirdParty().Set(fdVersion, protoreflect.ValueOfString(version))
}

// URLs returns the upstream URLs in file order.
func (r *Record) URLs() []URL {
	list := r.thirdParty().Get(fdURL).List()
	urls := make([]URL, 0, list.Len())
	for i := 0; i < list.Len(); i++ {
		m := list.Get(i).Message()
		urls = append(urls, URL{
			Type:  URLType(m.Get(fdURLType).Enum()),
			Value: m.Get(fdURLValue).String(),
		})
	}
	return urls
}

// AddURL appends an upstream URL.
func (r *Record) AddURL(u URL) {
	list := r.mutableThirdParty().Mutable(fdURL).List()
	m := list.NewElement()
	m.Message().Set(fdURLType, protoreflect.ValueOfEnum(protoreflect.EnumNumber(u.Type)))
	m.Message().Set(fdURLValue, protoreflect.ValueOfString(u.Value))
	list.Append(m)
}

// SetURLValue replaces the value of the i-th URL, keeping its type.
func (r *Record) SetURLValue(i int, value string) error {
	list := r.mutableThirdParty().Mutable(fdURL).List()
	if i < 0 || i >= list.Len() {
		return fmt.Errorf("url index %d out of range (%d urls)", i, list.Len())
	}
	list.Get(i).Message().Set(fdURLValue, protoreflect.ValueOfString(value))
	return nil
}

// LastUpgradeDate returns the recorded upgrade date, if any.
func (r *Record) LastUpgradeDate() (time.Time, bool) {
	tp := r.thirdParty()
	if !tp.Has(fdLastUpgradeDate) {
		return time.Time{}, false
	}
	d := tp.Get(fdLastUpgradeDate).Message()
	return time.Date(int(d.Get(fdYear).Int()), time.Month(d.Get(fdMonth).Int()), int(d.Get(fdDay).Int()),
		0, 0, 0, 0, time.UTC), true
}

// SetLastUpgradeDate records t's calendar date as the upgrade date.
func (r *Record) SetLastUpgradeDate(t time.Time) {
	d := r.mutableThirdParty().Mutable(fdLastUpgradeDate).Message()
	d.Set(fdYear, protoreflect.ValueOfInt32(int32(t.Year())))
	d.Set(fdMonth, protoreflect.ValueOfInt32(int32(t.Month())))
	d.Set(fdDay, protoreflect.ValueOfInt32(int32(t.Day())))
}
