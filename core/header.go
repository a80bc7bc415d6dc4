package core

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/Dyastin-0/fileshare/types"
)

const (
	TypeListFiles      uint8 = 0x01
	TypeListFilesAlias uint8 = 0x02
	TypeFetchFile      uint8 = 0x03

	TypeListing  uint8 = 0x10
	TypeFile     uint8 = 0x11
	TypeNotFound uint8 = 0x12

	MaxPayloadSize  uint64 = 32 * 1024 * 1024 * 1024 // 32 GB
	MaxStringLength uint32 = 4096                    // 4 KB max for names
	MaxFileNumber   uint32 = 1000000
	HeaderSize      uint8  = 12
	EntrySize       uint8  = 12

	Version uint8 = 0x01
	VERSION       = "1.0"
)

var (
	ErrInvalidVersion     = errors.New("invalid version")
	ErrInvalidType        = errors.New("invalid type")
	ErrReservedFieldUsed  = errors.New("reserved field must be zero")
	ErrPayloadTooLarge    = errors.New("payload exceeds maximum size")
	ErrStringTooLong      = errors.New("string exceeds maximum length")
	ErrInvalidHeaderSize  = errors.New("header data too small")
	ErrInvalidLength      = errors.New("invalid length field")
	ErrInsufficientData   = errors.New("insufficient data for string fields")
	ErrEmptyString        = errors.New("string field cannot be empty")
	ErrInvalidString      = errors.New("string field is not valid utf-8")
	ErrUnexpectedResponse = errors.New("unexpected response type")
)

// Header represents the protocol header (12 bytes)
type Header struct {
	Version  uint8  // 1 byte
	Type     uint8  // 1 byte
	Length   uint64 // 8 bytes
	Reserved uint16 // 2 bytes
}

// Request is one decoded transfer request. Name is only set for TypeFetchFile.
type Request struct {
	Type uint8
	Name string
}

// Proto handles protocol serialization and deserialization
type Proto struct{}

// NewProto creates a new protocol handler
func NewProto() *Proto {
	return &Proto{}
}

// SerializeHeader serializes a header to bytes
func (p *Proto) SerializeHeader(header *Header) ([]byte, error) {
	if err := p.validateHeader(header); err != nil {
		return nil, fmt.Errorf("header validation failed: %w", err)
	}

	buf := make([]byte, HeaderSize)
	buf[0] = header.Version
	buf[1] = header.Type
	binary.BigEndian.PutUint64(buf[2:10], header.Length)
	binary.BigEndian.PutUint16(buf[10:12], header.Reserved)

	return buf, nil
}

// DeserializeHeader deserializes bytes to a header
func (p *Proto) DeserializeHeader(data []byte) (*Header, error) {
	if len(data) < int(HeaderSize) {
		return nil, ErrInvalidHeaderSize
	}

	reader := bytes.NewReader(data[:HeaderSize])
	var header Header

	if err := binary.Read(reader, binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	if err := p.validateHeader(&header); err != nil {
		return nil, fmt.Errorf("header validation failed: %w", err)
	}

	return &header, nil
}

// ReadHeader reads and validates exactly one header from r.
func (p *Proto) ReadHeader(r io.Reader) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	return p.DeserializeHeader(buf)
}

// WriteHeader serializes and writes a header of the given type.
func (p *Proto) WriteHeader(w io.Writer, msgType uint8, length uint64) error {
	serialized, err := p.SerializeHeader(NewHeader(msgType, length))
	if err != nil {
		return err
	}

	_, err = w.Write(serialized)
	return err
}

// SerializeRequest serializes a request, header included.
func (p *Proto) SerializeRequest(req *Request) ([]byte, error) {
	if err := p.validateRequest(req); err != nil {
		return nil, fmt.Errorf("request validation failed: %w", err)
	}

	var payload []byte
	if req.Type == TypeFetchFile {
		payload = []byte(req.Name)
	}

	hd, err := p.SerializeHeader(NewHeader(req.Type, uint64(len(payload))))
	if err != nil {
		return nil, err
	}

	return append(hd, payload...), nil
}

// ReadRequest reads one request from r.
func (p *Proto) ReadRequest(r io.Reader) (*Request, error) {
	hd, err := p.ReadHeader(r)
	if err != nil {
		return nil, err
	}

	req := &Request{Type: hd.Type}

	switch hd.Type {
	case TypeListFiles, TypeListFilesAlias:
		if hd.Length != 0 {
			return nil, ErrInvalidLength
		}
	case TypeFetchFile:
		if hd.Length == 0 {
			return nil, ErrEmptyString
		}
		if hd.Length > uint64(MaxStringLength) {
			return nil, ErrStringTooLong
		}

		name := make([]byte, hd.Length)
		if _, err := io.ReadFull(r, name); err != nil {
			return nil, err
		}
		req.Name = string(name)
	default:
		return nil, ErrInvalidType
	}

	if err := p.validateRequest(req); err != nil {
		return nil, fmt.Errorf("request validation failed: %w", err)
	}

	return req, nil
}

// SerializeListing encodes count u32 followed by size u64, nameLen u32, name per entry.
func (p *Proto) SerializeListing(files []types.FileInfo) ([]byte, error) {
	if len(files) > int(MaxFileNumber) {
		return nil, ErrInvalidLength
	}

	buf := bytes.NewBuffer(make([]byte, 0, 4+len(files)*int(EntrySize)))

	if err := binary.Write(buf, binary.BigEndian, uint32(len(files))); err != nil {
		return nil, fmt.Errorf("failed to write count: %w", err)
	}

	for _, f := range files {
		if err := p.validateName(f.Name); err != nil {
			return nil, fmt.Errorf("entry %q: %w", f.Name, err)
		}
		if f.Size < 0 {
			return nil, ErrInvalidLength
		}

		if err := binary.Write(buf, binary.BigEndian, uint64(f.Size)); err != nil {
			return nil, fmt.Errorf("failed to write size: %w", err)
		}
		if err := binary.Write(buf, binary.BigEndian, uint32(len(f.Name))); err != nil {
			return nil, fmt.Errorf("failed to write name length: %w", err)
		}
		if _, err := buf.WriteString(f.Name); err != nil {
			return nil, fmt.Errorf("failed to write name: %w", err)
		}
	}

	return buf.Bytes(), nil
}

// DeserializeListing decodes a listing payload.
func (p *Proto) DeserializeListing(data []byte) ([]types.FileInfo, error) {
	if len(data) < 4 {
		return nil, ErrInsufficientData
	}

	reader := bytes.NewReader(data)

	var count uint32
	if err := binary.Read(reader, binary.BigEndian, &count); err != nil {
		return nil, fmt.Errorf("failed to read count: %w", err)
	}

	if count > MaxFileNumber {
		return nil, ErrInvalidLength
	}

	// every entry takes at least EntrySize bytes
	if uint64(reader.Len()) < uint64(count)*uint64(EntrySize) {
		return nil, ErrInsufficientData
	}

	files := make([]types.FileInfo, 0, count)
	for range count {
		var size uint64
		var lengthName uint32

		if err := binary.Read(reader, binary.BigEndian, &size); err != nil {
			return nil, fmt.Errorf("failed to read size: %w", err)
		}
		if err := binary.Read(reader, binary.BigEndian, &lengthName); err != nil {
			return nil, fmt.Errorf("failed to read name length: %w", err)
		}

		if lengthName > MaxStringLength {
			return nil, ErrStringTooLong
		}
		if int(lengthName) > reader.Len() {
			return nil, ErrInsufficientData
		}
		if size > MaxPayloadSize {
			return nil, ErrPayloadTooLarge
		}

		name := make([]byte, lengthName)
		if _, err := io.ReadFull(reader, name); err != nil {
			return nil, fmt.Errorf("failed to read name: %w", err)
		}

		if err := p.validateName(string(name)); err != nil {
			return nil, err
		}

		files = append(files, types.FileInfo{Name: string(name), Size: int64(size)})
	}

	if reader.Len() != 0 {
		return nil, ErrInvalidLength
	}

	return files, nil
}

func (p *Proto) validateHeader(header *Header) error {
	if header.Version != Version {
		return ErrInvalidVersion
	}

	if header.Length > MaxPayloadSize {
		return ErrPayloadTooLarge
	}

	if !p.IsValidType(header.Type) {
		return ErrInvalidType
	}

	if header.Reserved != 0 {
		return ErrReservedFieldUsed
	}

	return nil
}

func (p *Proto) validateRequest(req *Request) error {
	switch req.Type {
	case TypeListFiles, TypeListFilesAlias:
		if req.Name != "" {
			return ErrInvalidLength
		}
		return nil
	case TypeFetchFile:
		return p.validateName(req.Name)
	default:
		return ErrInvalidType
	}
}

func (p *Proto) validateName(name string) error {
	if len(name) == 0 {
		return ErrEmptyString
	}
	if len(name) > int(MaxStringLength) {
		return ErrStringTooLong
	}
	if !utf8.ValidString(name) {
		return ErrInvalidString
	}

	return nil
}

func (p *Proto) IsValidType(msgType uint8) bool {
	switch msgType {
	case TypeListFiles, TypeListFilesAlias, TypeFetchFile, TypeListing, TypeFile, TypeNotFound:
		return true
	default:
		return false
	}
}

func NewHeader(msgType uint8, length uint64) *Header {
	return &Header{
		Version:  Version,
		Type:     msgType,
		Length:   length,
		Reserved: 0,
	}
}

func NewListFilesRequest() *Request {
	return &Request{Type: TypeListFiles}
}

func NewFetchFileRequest(name string) *Request {
	return &Request{Type: TypeFetchFile, Name: name}
}
