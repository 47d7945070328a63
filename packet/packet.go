// Package packet implements the generic struct-to-wire engine shared by
// every command and TLV sub-structure: a struct's own fields serialize as
// positional fields first (in declaration order), then tagged fields (in
// any order, tracked against a required set), exactly as the codec
// contract requires. The same engine, applied once more around a whole
// struct with its (class, instr) pair as the "tag" and the Adpu codec as
// the "length", produces a full command frame.
package packet

import (
	"reflect"
	"sort"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru"

	"github.com/EVerest/zvt/encoding"
	"github.com/EVerest/zvt/length"
	"github.com/EVerest/zvt/zvterr"
)

// Command is implemented (with a pointer receiver) by every top-level
// packet struct to expose the ADPU control field used for framing and
// registry dispatch.
type Command interface {
	ControlField() (class, instr byte)
}

type fieldSpec struct {
	index    int
	tag      *uint16
	length   length.Codec
	value    encoding.Codec
	repeated bool
	required bool
}

type structDescriptor struct {
	fields     []fieldSpec
	positional []fieldSpec
	tagged     []fieldSpec
}

var (
	descriptorCache *lru.Cache
	customLengths   = map[string]length.Codec{}
	customValues    = map[string]encoding.Codec{}
)

func init() {
	c, err := lru.New(512)
	if err != nil {
		panic(err)
	}
	descriptorCache = c
}

// RegisterLength makes a vendor-specific length codec available to struct
// tags via "length=custom:<name>".
func RegisterLength(name string, c length.Codec) { customLengths[name] = c }

// RegisterValue makes a vendor-specific value codec available to struct
// tags via "encoding=custom:<name>".
func RegisterValue(name string, c encoding.Codec) { customValues[name] = c }

func describe(t reflect.Type) (*structDescriptor, error) {
	if cached, ok := descriptorCache.Get(t); ok {
		return cached.(*structDescriptor), nil
	}
	d, err := buildDescriptor(t)
	if err != nil {
		return nil, err
	}
	descriptorCache.Add(t, d)
	return d, nil
}

func buildDescriptor(t reflect.Type) (*structDescriptor, error) {
	d := &structDescriptor{}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" {
			continue // unexported
		}
		spec, err := parseFieldTag(i, f)
		if err != nil {
			return nil, err
		}
		d.fields = append(d.fields, spec)
		if spec.tag == nil {
			d.positional = append(d.positional, spec)
		} else {
			d.tagged = append(d.tagged, spec)
		}
	}
	return d, nil
}

func parseFieldTag(index int, f reflect.StructField) (fieldSpec, error) {
	spec := fieldSpec{index: index, length: length.Empty{}}
	raw, ok := f.Tag.Lookup("zvt")
	fieldType := f.Type
	isSlice := fieldType.Kind() == reflect.Slice && fieldType.Elem().Kind() != reflect.Uint8
	isPtr := fieldType.Kind() == reflect.Ptr
	spec.repeated = isSlice

	encName := "default"
	if ok {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			kv := strings.SplitN(part, "=", 2)
			key := kv[0]
			val := ""
			if len(kv) == 2 {
				val = kv[1]
			}
			switch key {
			case "tag":
				n, err := strconv.ParseUint(strings.TrimPrefix(val, "0x"), 16, 16)
				if err != nil {
					return spec, err
				}
				tag := uint16(n)
				spec.tag = &tag
			case "length":
				c, err := parseLength(val)
				if err != nil {
					return spec, err
				}
				spec.length = c
			case "encoding":
				encName = val
			case "required":
				spec.required = true
			}
		}
	}

	elemType := fieldType
	if isPtr {
		elemType = fieldType.Elem()
	}
	if isSlice {
		elemType = fieldType.Elem()
		if elemType.Kind() == reflect.Ptr {
			elemType = elemType.Elem()
		}
	}
	if elemType.Kind() != reflect.Struct {
		spec.value = resolveValueCodec(encName)
	}

	isBytes := fieldType.Kind() == reflect.Slice && !isSlice
	if spec.tag != nil && !isPtr && !isSlice && !isBytes {
		spec.required = true
	}
	return spec, nil
}

func parseLength(val string) (length.Codec, error) {
	if val == "" || val == "empty" {
		return length.Empty{}, nil
	}
	if strings.HasPrefix(val, "fixed:") {
		n, err := strconv.Atoi(strings.TrimPrefix(val, "fixed:"))
		if err != nil {
			return nil, err
		}
		return length.NewFixed(n), nil
	}
	switch val {
	case "tlv":
		return length.Tlv{}, nil
	case "llv":
		return length.Llv, nil
	case "lllv":
		return length.Lllv, nil
	case "adpu":
		return length.Adpu{}, nil
	}
	if strings.HasPrefix(val, "custom:") {
		name := strings.TrimPrefix(val, "custom:")
		if c, ok := customLengths[name]; ok {
			return c, nil
		}
	}
	return nil, zvterr.New(zvterr.NonImplemented)
}

func resolveValueCodec(name string) encoding.Codec {
	switch name {
	case "default", "":
		return encoding.ForKind(encoding.Default)
	case "bigendian":
		return encoding.ForKind(encoding.BigEndian)
	case "bcd":
		return encoding.ForKind(encoding.Bcd)
	case "hex":
		return encoding.ForKind(encoding.Hex)
	case "utf8":
		return encoding.ForKind(encoding.Utf8)
	case "custom":
		return encoding.ForKind(encoding.Custom)
	}
	if strings.HasPrefix(name, "custom:") {
		if c, ok := customValues[strings.TrimPrefix(name, "custom:")]; ok {
			return c
		}
	}
	return encoding.ForKind(encoding.Default)
}

// EncodeFields serializes vPtr's own fields (positional then tagged, in
// declaration order) without any outer framing. vPtr must be a pointer.
func EncodeFields(vPtr interface{}) ([]byte, error) {
	rv := reflect.ValueOf(vPtr).Elem()
	desc, err := describe(rv.Type())
	if err != nil {
		return nil, err
	}
	var out []byte
	for _, fd := range desc.fields {
		b, err := serializeField(rv.Field(fd.index), fd)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

func serializeField(fv reflect.Value, fd fieldSpec) ([]byte, error) {
	switch {
	case fd.repeated:
		var out []byte
		for i := 0; i < fv.Len(); i++ {
			b, err := serializeOne(fv.Index(i), fd)
			if err != nil {
				return nil, err
			}
			out = append(out, b...)
		}
		return out, nil
	case fv.Kind() == reflect.Slice && fv.IsNil():
		return nil, nil
	case fv.Kind() == reflect.Ptr:
		if fv.IsNil() {
			return nil, nil
		}
		return serializeOne(fv.Elem(), fd)
	default:
		return serializeOne(fv, fd)
	}
}

func serializeOne(v reflect.Value, fd fieldSpec) ([]byte, error) {
	var tagBytes []byte
	if fd.tag != nil {
		tagBytes = encoding.EncodeTag(*fd.tag)
	}
	payload, err := encodeValue(v, fd)
	if err != nil {
		return nil, err
	}
	lenBytes := fd.length.Serialize(len(payload))
	out := make([]byte, 0, len(tagBytes)+len(lenBytes)+len(payload))
	out = append(out, tagBytes...)
	out = append(out, lenBytes...)
	out = append(out, payload...)
	return out, nil
}

func encodeValue(v reflect.Value, fd fieldSpec) ([]byte, error) {
	if v.Kind() == reflect.Struct {
		return EncodeFields(v.Addr().Interface())
	}
	return fd.value.Encode(v)
}

// DecodeFields parses vPtr's own fields from data (positional fields in
// order, then tagged fields in any order) and returns the unconsumed
// remainder. vPtr must be a pointer.
func DecodeFields(vPtr interface{}, data []byte) ([]byte, error) {
	rv := reflect.ValueOf(vPtr).Elem()
	desc, err := describe(rv.Type())
	if err != nil {
		return nil, err
	}

	rest := data
	for _, fd := range desc.positional {
		r, err := decodeField(rv.Field(fd.index), fd, rest)
		if err != nil {
			return nil, err
		}
		rest = r
	}

	required := map[uint16]bool{}
	for _, fd := range desc.tagged {
		if fd.required {
			required[*fd.tag] = true
		}
	}
	seen := map[uint16]bool{}

	for len(rest) > 0 {
		tag, _, err := encoding.DecodeTag(rest)
		if err != nil {
			break
		}
		fd, ok := findTagged(desc.tagged, tag)
		if !ok {
			break
		}
		if !fd.repeated {
			if seen[tag] {
				return nil, zvterr.NewDuplicateTag(tag)
			}
			seen[tag] = true
		}
		delete(required, tag)

		prevLen := len(rest)
		r, err := decodeField(rv.Field(fd.index), fd, rest)
		if err != nil {
			return nil, err
		}
		rest = r
		if len(rest) == prevLen {
			break
		}
	}

	if len(required) > 0 {
		tags := make([]uint16, 0, len(required))
		for t := range required {
			tags = append(tags, t)
		}
		sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
		return nil, zvterr.NewMissingRequiredTags(tags)
	}

	return rest, nil
}

func findTagged(fields []fieldSpec, tag uint16) (fieldSpec, bool) {
	for _, fd := range fields {
		if fd.tag != nil && *fd.tag == tag {
			return fd, true
		}
	}
	return fieldSpec{}, false
}

func decodeField(fv reflect.Value, fd fieldSpec, data []byte) ([]byte, error) {
	withTag := fd.tag != nil
	switch {
	case fd.repeated:
		elemType := fv.Type().Elem()
		slice := reflect.MakeSlice(fv.Type(), 0, 0)
		rest := data
		for {
			elem := reflect.New(elemType).Elem()
			newRest, err := decodeOne(elem, fd, rest, withTag)
			if err != nil {
				break
			}
			slice = reflect.Append(slice, elem)
			if len(newRest) == len(rest) {
				rest = newRest
				break
			}
			rest = newRest
		}
		fv.Set(slice)
		return rest, nil
	case fv.Kind() == reflect.Ptr:
		elem := reflect.New(fv.Type().Elem()).Elem()
		newRest, err := decodeOne(elem, fd, data, withTag)
		if !withTag {
			if err != nil {
				return data, nil
			}
			fv.Set(elem.Addr())
			return newRest, nil
		}
		if err != nil {
			return nil, err
		}
		fv.Set(elem.Addr())
		return newRest, nil
	default:
		return decodeOne(fv, fd, data, withTag)
	}
}

func decodeOne(v reflect.Value, fd fieldSpec, data []byte, withTag bool) ([]byte, error) {
	rest := data
	if withTag {
		actual, r, err := encoding.DecodeTag(rest)
		if err != nil {
			return nil, err
		}
		if actual != *fd.tag {
			return nil, zvterr.NewWrongTag(actual)
		}
		rest = r
	}
	ln, payload, err := fd.length.Deserialize(rest)
	if err != nil {
		return nil, err
	}
	if ln > len(payload) {
		return nil, zvterr.New(zvterr.IncompleteData)
	}
	slice := payload[:ln]

	var consumedRest []byte
	if v.Kind() == reflect.Struct {
		r, err := DecodeFields(v.Addr().Interface(), slice)
		if err != nil {
			return nil, err
		}
		consumedRest = r
	} else {
		r, err := fd.value.Decode(slice, v)
		if err != nil {
			return nil, err
		}
		consumedRest = r
	}
	consumed := ln - len(consumedRest)
	return payload[consumed:], nil
}

// Serialize wraps cmd's own field body in the ADPU frame: class, instr,
// Adpu length, then the field body.
func Serialize(cmd Command) ([]byte, error) {
	class, instr := cmd.ControlField()
	body, err := EncodeFields(cmd)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 2+3+len(body))
	out = append(out, class, instr)
	out = append(out, (length.Adpu{}).Serialize(len(body))...)
	out = append(out, body...)
	return out, nil
}

// Deserialize reads an ADPU frame into cmd, checking that the control
// field matches cmd.ControlField(), and returns the bytes following the
// frame.
func Deserialize(cmd Command, data []byte) ([]byte, error) {
	class, instr := cmd.ControlField()
	if len(data) < 2 {
		return nil, zvterr.New(zvterr.IncompleteData)
	}
	if data[0] != class || data[1] != instr {
		return nil, zvterr.NewWrongTag(uint16(data[0])<<8 | uint16(data[1]))
	}
	ln, payload, err := (length.Adpu{}).Deserialize(data[2:])
	if err != nil {
		return nil, err
	}
	if ln > len(payload) {
		return nil, zvterr.New(zvterr.IncompleteData)
	}
	bodyRest, err := DecodeFields(cmd, payload[:ln])
	if err != nil {
		return nil, err
	}
	consumed := ln - len(bodyRest)
	return payload[consumed:], nil
}
