// Package wire encodes DNS queries and decodes DNS responses for the pinned
// resolver. It handles the RFC 1035 wire format including name compression,
// and treats every parse failure as a single malformed-response error class.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"github.com/sdscout/sdscout/internal/scout/common/utils"
)

// Query types and class handled by the codec.
const (
	TypeA     uint16 = 1
	TypeCNAME uint16 = 5
	TypeAAAA  uint16 = 28
	ClassIN   uint16 = 1
)

// Header flag masks.
const (
	flagQR        uint16 = 0x8000
	flagRD        uint16 = 0x0100
	flagTC        uint16 = 0x0200
	rcodeMask     uint16 = 0x000F
	pointerMask   byte   = 0xC0
	maxNameChases        = 256 // hard stop on compression loops
)

// ErrMalformed is wrapped by every decode failure so callers can treat all
// parse problems as one error class.
var ErrMalformed = errors.New("malformed dns response")

// Response is the decoded view of a DNS answer relevant to the client:
// address answers matching the query type, CNAME targets, and header bits.
type Response struct {
	Rcode     int
	Truncated bool
	// Answers holds formatted addresses for records matching the query type,
	// in message order. AnswerTTLs is index-aligned with Answers.
	Answers    []string
	AnswerTTLs []uint32
	// CNAMEs holds decoded CNAME targets, lowercased and dot-trimmed,
	// deduplicated within the message.
	CNAMEs []string
}

// EncodeQuery serializes a single-question recursive query (RD=1, QCLASS=IN).
func EncodeQuery(id uint16, qname string, qtype uint16) ([]byte, error) {
	var buf bytes.Buffer

	// Header
	_ = binary.Write(&buf, binary.BigEndian, id)
	_ = binary.Write(&buf, binary.BigEndian, flagRD)
	_ = binary.Write(&buf, binary.BigEndian, uint16(1)) // QDCOUNT
	_ = binary.Write(&buf, binary.BigEndian, uint16(0)) // ANCOUNT
	_ = binary.Write(&buf, binary.BigEndian, uint16(0)) // NSCOUNT
	_ = binary.Write(&buf, binary.BigEndian, uint16(0)) // ARCOUNT

	// Question
	name := strings.Trim(qname, ".")
	for _, label := range strings.Split(name, ".") {
		if len(label) > 63 {
			return nil, fmt.Errorf("label too long: %s", label)
		}
		if len(label) > 0 {
			buf.WriteByte(byte(len(label)))
			buf.WriteString(label)
		}
	}
	buf.WriteByte(0) // end of name
	_ = binary.Write(&buf, binary.BigEndian, qtype)
	_ = binary.Write(&buf, binary.BigEndian, ClassIN)

	return buf.Bytes(), nil
}

// DecodeResponse parses a DNS response, validating the transaction id and QR
// bit and extracting the answers relevant to qtype.
func DecodeResponse(data []byte, expectedID uint16, qtype uint16) (Response, error) {
	if len(data) < 12 {
		return Response{}, malformed("response too short")
	}
	id := binary.BigEndian.Uint16(data[0:2])
	if id != expectedID {
		return Response{}, malformed("transaction id mismatch")
	}
	flags := binary.BigEndian.Uint16(data[2:4])
	if flags&flagQR == 0 {
		return Response{}, malformed("missing QR flag")
	}

	resp := Response{
		Rcode:     int(flags & rcodeMask),
		Truncated: flags&flagTC != 0,
	}

	qdCount := int(binary.BigEndian.Uint16(data[4:6]))
	anCount := int(binary.BigEndian.Uint16(data[6:8]))

	offset := 12
	for i := 0; i < qdCount; i++ {
		next, err := skipName(data, offset)
		if err != nil {
			return Response{}, err
		}
		offset = next + 4 // QTYPE + QCLASS
		if offset > len(data) {
			return Response{}, malformed("truncated question section")
		}
	}

	seenCNAMEs := make(map[string]struct{})
	for i := 0; i < anCount; i++ {
		next, err := skipName(data, offset)
		if err != nil {
			return Response{}, err
		}
		offset = next
		if offset+10 > len(data) {
			return Response{}, malformed("truncated answer header")
		}
		rtype := binary.BigEndian.Uint16(data[offset : offset+2])
		rclass := binary.BigEndian.Uint16(data[offset+2 : offset+4])
		ttl := binary.BigEndian.Uint32(data[offset+4 : offset+8])
		rdLen := int(binary.BigEndian.Uint16(data[offset+8 : offset+10]))
		offset += 10
		if offset+rdLen > len(data) {
			return Response{}, malformed("truncated rdata")
		}
		rdataOffset := offset
		offset += rdLen

		if rclass != ClassIN {
			continue
		}
		if rtype == TypeCNAME {
			target, _, err := decodeName(data, rdataOffset)
			if err != nil {
				return Response{}, err
			}
			target = utils.CanonicalDNSName(target)
			if target == "" {
				continue
			}
			if _, dup := seenCNAMEs[target]; dup {
				continue
			}
			seenCNAMEs[target] = struct{}{}
			resp.CNAMEs = append(resp.CNAMEs, target)
			continue
		}
		if rtype != qtype {
			continue
		}
		if addr, ok := formatAddress(rtype, data[rdataOffset:rdataOffset+rdLen]); ok {
			resp.Answers = append(resp.Answers, addr)
			resp.AnswerTTLs = append(resp.AnswerTTLs, ttl)
		}
	}

	return resp, nil
}

// formatAddress renders RDATA as an address string when the length matches
// the record type. Mismatched lengths are skipped, not fatal.
func formatAddress(rtype uint16, rdata []byte) (string, bool) {
	switch {
	case rtype == TypeA && len(rdata) == 4,
		rtype == TypeAAAA && len(rdata) == 16:
		addr, ok := netip.AddrFromSlice(rdata)
		if !ok {
			return "", false
		}
		return addr.String(), true
	default:
		return "", false
	}
}

// decodeName decodes a possibly-compressed name at offset. It returns the
// name and the offset where parsing continues in the original message, i.e.
// the byte after the first compression pointer taken, regardless of where
// decoding jumped.
func decodeName(data []byte, offset int) (string, int, error) {
	var labels []string
	pos := offset
	end := -1

	for hop := 0; hop < maxNameChases; hop++ {
		if pos >= len(data) {
			return "", 0, malformed("name exceeds message length")
		}
		length := data[pos]
		if length == 0 {
			pos++
			if end == -1 {
				end = pos
			}
			return strings.Join(labels, "."), end, nil
		}
		if length&pointerMask == pointerMask {
			if pos+1 >= len(data) {
				return "", 0, malformed("truncated compression pointer")
			}
			ptr := int(binary.BigEndian.Uint16(data[pos:pos+2]) & 0x3FFF)
			if end == -1 {
				end = pos + 2
			}
			pos = ptr
			continue
		}
		if length&pointerMask != 0 {
			return "", 0, malformed("invalid label length (reserved bits set)")
		}
		pos++
		if pos+int(length) > len(data) {
			return "", 0, malformed("truncated label")
		}
		labels = append(labels, string(data[pos:pos+int(length)]))
		pos += int(length)
	}
	return "", 0, malformed("name compression loop detected")
}

// skipName advances past a name without decoding it. Compression pointers
// terminate the walk immediately.
func skipName(data []byte, offset int) (int, error) {
	for hop := 0; hop < maxNameChases; hop++ {
		if offset >= len(data) {
			return 0, malformed("name exceeds message length")
		}
		length := data[offset]
		if length == 0 {
			return offset + 1, nil
		}
		if length&pointerMask == pointerMask {
			if offset+1 >= len(data) {
				return 0, malformed("truncated compression pointer")
			}
			return offset + 2, nil
		}
		if length&pointerMask != 0 {
			return 0, malformed("invalid label length (reserved bits set)")
		}
		offset += 1 + int(length)
	}
	return 0, malformed("name compression loop detected")
}

func malformed(msg string) error {
	return fmt.Errorf("%w: %s", ErrMalformed, msg)
}
