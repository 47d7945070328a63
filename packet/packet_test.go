package packet

import (
	"bytes"
	"testing"
)

type testRegistration struct {
	Password uint64 `zvt:"length=fixed:3,encoding=bcd"`
	Config   uint8  `zvt:""`
	Currency *uint64 `zvt:"length=fixed:2,encoding=bcd"`
	Extra    *uint16 `zvt:"tag=0x1a,length=tlv,encoding=bigendian"`
}

func (r *testRegistration) ControlField() (byte, byte) { return 0x06, 0x00 }

func TestRegistrationRoundTrip(t *testing.T) {
	currency := uint64(978)
	r := &testRegistration{Password: 123456, Config: 0xde, Currency: &currency}
	got, err := Serialize(r)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x06, 0x00, 0x06, 0x12, 0x34, 0x56, 0xde, 0x09, 0x78}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x, want % x", got, want)
	}

	var decoded testRegistration
	rest, err := Deserialize(&decoded, got)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 0 {
		t.Fatalf("unexpected remainder: % x", rest)
	}
	if decoded.Password != 123456 || decoded.Config != 0xde || decoded.Currency == nil || *decoded.Currency != 978 {
		t.Fatalf("decoded = %+v", decoded)
	}
	if decoded.Extra != nil {
		t.Fatalf("expected Extra absent, got %v", *decoded.Extra)
	}
}

type testInner struct {
	A uint8 `zvt:"tag=0x41,length=tlv"`
}

type testOuter struct {
	Name string    `zvt:"tag=0x06,length=tlv"` // dummy to keep a tagged peer
	Subs []testInner `zvt:"tag=0x60,length=tlv"`
}

func (o *testOuter) ControlField() (byte, byte) { return 0x04, 0x0f }

func TestRepeatedTaggedField(t *testing.T) {
	o := &testOuter{
		Subs: []testInner{{A: 1}, {A: 2}},
	}
	got, err := Serialize(o)
	if err != nil {
		t.Fatal(err)
	}
	var decoded testOuter
	_, err = Deserialize(&decoded, got)
	if err != nil {
		t.Fatal(err)
	}
	if len(decoded.Subs) != 2 || decoded.Subs[0].A != 1 || decoded.Subs[1].A != 2 {
		t.Fatalf("decoded.Subs = %+v", decoded.Subs)
	}
}

type testMissingRequired struct {
	Required *uint8 `zvt:"tag=0x29,length=tlv,required"`
}

func (m *testMissingRequired) ControlField() (byte, byte) { return 0x06, 0x1b }

func TestMissingRequiredTagError(t *testing.T) {
	frame := []byte{0x06, 0x1b, 0x00}
	var decoded testMissingRequired
	_, err := Deserialize(&decoded, frame)
	if err == nil {
		t.Fatal("expected MissingRequiredTags error")
	}
}

func TestWrongControlFieldError(t *testing.T) {
	var decoded testRegistration
	_, err := Deserialize(&decoded, []byte{0x99, 0x99, 0x00})
	if err == nil {
		t.Fatal("expected WrongTag error")
	}
}
