// Package codec provides record serialization and deserialization for filekv.
//
// A store file holds records in exactly one of four formats: JSON, a compact
// binary layout, YAML, or CBOR. The format is picked once, when a store is
// opened, by passing a Codec; nothing in this package keeps global state, so
// stores with different formats can live in one process.
//
// # Records
//
// A Record is the (key, version, kind) triple plus its payload. Payloads are
// produced by the same Codec's Marshal, so a JSON store embeds JSON values, a
// YAML store embeds YAML nodes, and so on:
//
//	c, _ := codec.New(codec.FormatJSON)
//	payload, _ := c.Marshal(map[string]int{"width": 4})
//	data, _ := c.EncodeRecord(&codec.Record{Key: "rect", Version: 1, Value: payload})
//
// Tombstones (KindTombstone) carry no payload. Lists (KindList) carry one
// payload per element in Items.
//
// # File Layout
//
// Every store file starts with a fixed header followed by CRC-checked frames:
//
//	header: [magic "FKVL"(4)][layout(1)][format(1)][reserved(2)][fileID(20)][versionFloor(8)][crc32(4)]
//	frame:  [headerCRC(4)][length(4)][payloadCRC(4)][payload(length)]
//
// All integers are little-endian and checksums are CRC32 (IEEE). The header
// checksum covers the length and payload checksum, so a damaged length is
// caught before the reader relies on it. Framing is the same for every
// format, which lets the storage layer tell an incomplete trailing write
// apart from real damage without knowing anything about the format inside
// the frame.
//
// # Errors
//
// Decoding failures wrap ErrMalformed. Encoding a value the format cannot
// represent wraps ErrUnencodable.
//
// # Thread Safety
//
// Codec implementations are stateless and safe for concurrent use.
package codec
