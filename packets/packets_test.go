package packets

import (
	"bytes"
	"testing"

	"github.com/EVerest/zvt/packet"
)

func TestStatusInformationSubsVector(t *testing.T) {
	data := []byte{
		4, 15, 100, 39, 0, 6, 96, 76, 10, 0, 0, 0, 0, 0, 0, 8, 255, 105, 20, 31, 69, 12, 12,
		120, 128, 116, 3, 128, 49, 192, 115, 214, 49, 192, 31, 76, 1, 1, 31, 77, 2, 254, 4, 31,
		79, 2, 4, 0, 31, 80, 1, 32, 96, 11, 67, 9, 160, 0, 0, 0, 89, 69, 67, 1, 0, 96, 12, 67,
		10, 160, 0, 0, 3, 89, 16, 16, 2, 128, 1, 96, 11, 67, 9, 210, 118, 0, 0, 37, 71, 65, 1,
		0, 96, 9, 67, 7, 160, 0, 0, 0, 4, 16, 16,
	}
	var got StatusInformation
	rest, err := packet.Deserialize(&got, data)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 0 {
		t.Fatalf("unexpected remainder: % x", rest)
	}
	if got.Tlv == nil || len(got.Tlv.Subs) != 4 {
		t.Fatalf("expected 4 subs, got %+v", got.Tlv)
	}
	back, err := packet.Serialize(&got)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(back, data) {
		t.Fatalf("round trip mismatch:\n got % x\nwant % x", back, data)
	}
}

func TestStatusInformationSubsEmpty(t *testing.T) {
	data := []byte{
		4, 15, 34, 39, 0, 6, 30, 76, 10, 0, 0, 0, 4, 99, 200, 178, 174, 79, 128, 31, 76, 1, 1,
		31, 77, 2, 0, 3, 31, 79, 2, 68, 0, 31, 80, 1, 0,
	}
	var got StatusInformation
	_, err := packet.Deserialize(&got, data)
	if err != nil {
		t.Fatal(err)
	}
	if got.Tlv == nil || len(got.Tlv.Subs) != 0 {
		t.Fatalf("expected no subs, got %+v", got.Tlv)
	}
}

func TestPartialReversalAbortRoundTrip(t *testing.T) {
	receiptNo := uint64(0xffff)
	abort := &PartialReversalAbort{Error: 0xb8, ReceiptNo: &receiptNo}
	data, err := packet.Serialize(abort)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x06, 0x1e, 0x04, 0xb8, 0x87, 0xff, 0xff}
	if !bytes.Equal(data, want) {
		t.Fatalf("got % x, want % x", data, want)
	}

	var decoded PartialReversalAbort
	if _, err := packet.Deserialize(&decoded, data); err != nil {
		t.Fatal(err)
	}
	if decoded.Error != 0xb8 || decoded.ReceiptNo == nil || *decoded.ReceiptNo != 0xffff {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestRegistrationRoundTrip(t *testing.T) {
	currency := uint64(978)
	r := &Registration{Password: 123456, ConfigByte: 0xde, Currency: &currency}
	data, err := packet.Serialize(r)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x06, 0x00, 0x06, 0x12, 0x34, 0x56, 0xde, 0x09, 0x78}
	if !bytes.Equal(data, want) {
		t.Fatalf("got % x, want % x", data, want)
	}
	var decoded Registration
	rest, err := packet.Deserialize(&decoded, data)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 0 {
		t.Fatalf("unexpected remainder: % x", rest)
	}
	if decoded.Tlv != nil {
		t.Fatalf("expected no Tlv, got %+v", decoded.Tlv)
	}
}

func TestCompletionDataRoundTrip(t *testing.T) {
	status := uint8(0x10)
	terminalID := uint64(52523535)
	currency := uint64(978)
	golden := &CompletionData{StatusByte: &status, TerminalID: &terminalID, Currency: &currency}
	data, err := packet.Serialize(golden)
	if err != nil {
		t.Fatal(err)
	}
	var decoded CompletionData
	if _, err := packet.Deserialize(&decoded, data); err != nil {
		t.Fatal(err)
	}
	if decoded.ResultCode != nil {
		t.Fatalf("expected no ResultCode, got %v", *decoded.ResultCode)
	}
	if decoded.StatusByte == nil || *decoded.StatusByte != 0x10 {
		t.Fatalf("StatusByte = %+v", decoded.StatusByte)
	}
}

func TestEndOfDayRoundTrip(t *testing.T) {
	e := &EndOfDay{Password: 123456}
	data, err := packet.Serialize(e)
	if err != nil {
		t.Fatal(err)
	}
	var decoded EndOfDay
	if _, err := packet.Deserialize(&decoded, data); err != nil {
		t.Fatal(err)
	}
	if decoded.Password != 123456 {
		t.Fatalf("Password = %d", decoded.Password)
	}
}
