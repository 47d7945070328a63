// Package tlv defines the TLV sub-structures carried inside Feig cVEND
// vendor extension packets (firmware file transfer and host
// configuration).
package tlv

// File describes one entry of a firmware file transfer dialog: its id,
// and either an offset (read request), a size (directory listing) or a
// raw payload chunk (write), depending on which command carries it.
type File struct {
	FileID     *uint8  `zvt:"tag=0x1d,length=tlv"`
	FileOffset *uint32 `zvt:"tag=0x1e,length=tlv,encoding=bigendian"`
	FileSize   *uint32 `zvt:"tag=0x1f00,length=tlv,encoding=bigendian"`
	Payload    []byte  `zvt:"tag=0x1c,length=tlv,encoding=custom"`
}

// WriteData wraps a single file chunk, as sent by the PT while pulling a
// firmware file (RequestForData) and as sent by the ECR while pushing one
// (WriteData).
type WriteData struct {
	File *File `zvt:"tag=0x2d,length=tlv"`
}

// WriteFile is the directory listing the ECR offers at the start of a
// firmware update: one File entry (id + size) per file to be written.
type WriteFile struct {
	Files []File `zvt:"tag=0x2d,length=tlv"`
}

// HostConfigurationData is the network endpoint the PT should dial for
// its host (ECR) connection.
type HostConfigurationData struct {
	IP         uint32 `zvt:"encoding=bigendian"`
	Port       uint16 `zvt:"encoding=bigendian"`
	ConfigByte uint8  `zvt:"encoding=bigendian"`
}

// SystemInformation authenticates a ChangeConfiguration request with the
// same password used for Registration, and optionally carries new host
// connection settings.
type SystemInformation struct {
	Password              uint64                 `zvt:"tag=0xff40,length=tlv,encoding=bcd,required"`
	HostConfigurationData *HostConfigurationData `zvt:"tag=0xff41,length=tlv"`
}

// ChangeConfiguration is the TLV extension of the ChangeConfiguration
// command; cVEND reuses the same outer command for several distinct
// configuration flows, disambiguated only by which nested fields are set.
type ChangeConfiguration struct {
	SystemInformation SystemInformation `zvt:"tag=0xe4,length=tlv,required"`
}
