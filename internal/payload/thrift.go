package payload

import (
	"context"

	"github.com/apache/thrift/lib/go/thrift"

	"github.com/datenstrom/datenstrom/internal/fault"
)

// Thrift field ids of the Snowplow CollectorPayload struct. The ids and the
// write order are part of the wire contract.
const (
	fieldSchema        = 31337
	fieldIPAddress     = 100
	fieldTimestamp     = 200
	fieldEncoding      = 210
	fieldCollector     = 220
	fieldUserAgent     = 300
	fieldRefererURI    = 310
	fieldPath          = 320
	fieldQuerystring   = 330
	fieldBody          = 340
	fieldHeaders       = 350
	fieldContentType   = 360
	fieldHostname      = 400
	fieldNetworkUserID = 410
)

// ToThrift encodes the payload with the Thrift binary protocol. Absent
// optional fields are skipped, matching the Snowplow collector output.
func ToThrift(p *CollectorPayload) ([]byte, error) {
	ctx := context.Background()
	buf := thrift.NewTMemoryBuffer()
	proto := thrift.NewTBinaryProtocolConf(buf, nil)

	writeString := func(id int16, v string) error {
		if err := proto.WriteFieldBegin(ctx, "", thrift.STRING, id); err != nil {
			return err
		}
		if err := proto.WriteString(ctx, v); err != nil {
			return err
		}
		return proto.WriteFieldEnd(ctx)
	}

	if err := proto.WriteStructBegin(ctx, "CollectorPayload"); err != nil {
		return nil, err
	}
	if err := writeString(fieldSchema, p.Schema); err != nil {
		return nil, err
	}
	if err := writeString(fieldIPAddress, p.IPAddress); err != nil {
		return nil, err
	}
	if err := proto.WriteFieldBegin(ctx, "", thrift.I64, fieldTimestamp); err != nil {
		return nil, err
	}
	if err := proto.WriteI64(ctx, p.Timestamp); err != nil {
		return nil, err
	}
	if err := proto.WriteFieldEnd(ctx); err != nil {
		return nil, err
	}
	if err := writeString(fieldEncoding, p.Encoding); err != nil {
		return nil, err
	}
	if err := writeString(fieldCollector, p.Collector); err != nil {
		return nil, err
	}

	optional := []struct {
		id int16
		v  string
	}{
		{fieldUserAgent, p.UserAgent},
		{fieldRefererURI, p.RefererURI},
		{fieldPath, p.Path},
		{fieldQuerystring, p.Querystring},
		{fieldBody, string(p.Body)},
	}
	for _, f := range optional {
		if f.v == "" {
			continue
		}
		if err := writeString(f.id, f.v); err != nil {
			return nil, err
		}
	}

	if len(p.Headers) > 0 {
		if err := proto.WriteFieldBegin(ctx, "", thrift.LIST, fieldHeaders); err != nil {
			return nil, err
		}
		if err := proto.WriteListBegin(ctx, thrift.STRING, len(p.Headers)); err != nil {
			return nil, err
		}
		for _, h := range p.Headers {
			if err := proto.WriteString(ctx, h); err != nil {
				return nil, err
			}
		}
		if err := proto.WriteListEnd(ctx); err != nil {
			return nil, err
		}
		if err := proto.WriteFieldEnd(ctx); err != nil {
			return nil, err
		}
	}

	tail := []struct {
		id int16
		v  string
	}{
		{fieldContentType, p.ContentType},
		{fieldHostname, p.Hostname},
		{fieldNetworkUserID, p.NetworkUserID},
	}
	for _, f := range tail {
		if f.v == "" {
			continue
		}
		if err := writeString(f.id, f.v); err != nil {
			return nil, err
		}
	}

	if err := proto.WriteFieldStop(ctx); err != nil {
		return nil, err
	}
	if err := proto.WriteStructEnd(ctx); err != nil {
		return nil, err
	}
	if err := proto.Flush(ctx); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FromThrift decodes a Thrift binary frame. Unknown fields are skipped so
// newer collector versions stay readable.
func FromThrift(b []byte) (*CollectorPayload, error) {
	ctx := context.Background()
	buf := thrift.NewTMemoryBuffer()
	if _, err := buf.Write(b); err != nil {
		return nil, fault.Wrap(fault.DecodeError, err, "thrift buffer")
	}
	proto := thrift.NewTBinaryProtocolConf(buf, nil)

	p := &CollectorPayload{}
	if _, err := proto.ReadStructBegin(ctx); err != nil {
		return nil, fault.Wrap(fault.DecodeError, err, "invalid thrift message")
	}
	for {
		_, typeID, id, err := proto.ReadFieldBegin(ctx)
		if err != nil {
			return nil, fault.Wrap(fault.DecodeError, err, "invalid thrift message")
		}
		if typeID == thrift.STOP {
			break
		}
		switch id {
		case fieldSchema, fieldIPAddress, fieldEncoding, fieldCollector,
			fieldUserAgent, fieldRefererURI, fieldPath, fieldQuerystring,
			fieldBody, fieldContentType, fieldHostname, fieldNetworkUserID:
			v, err := proto.ReadString(ctx)
			if err != nil {
				return nil, fault.Wrap(fault.DecodeError, err, "invalid thrift string field")
			}
			switch id {
			case fieldSchema:
				p.Schema = v
			case fieldIPAddress:
				p.IPAddress = v
			case fieldEncoding:
				p.Encoding = v
			case fieldCollector:
				p.Collector = v
			case fieldUserAgent:
				p.UserAgent = v
			case fieldRefererURI:
				p.RefererURI = v
			case fieldPath:
				p.Path = v
			case fieldQuerystring:
				p.Querystring = v
			case fieldBody:
				p.Body = []byte(v)
			case fieldContentType:
				p.ContentType = v
			case fieldHostname:
				p.Hostname = v
			case fieldNetworkUserID:
				p.NetworkUserID = v
			}
		case fieldTimestamp:
			v, err := proto.ReadI64(ctx)
			if err != nil {
				return nil, fault.Wrap(fault.DecodeError, err, "invalid thrift timestamp")
			}
			p.Timestamp = v
		case fieldHeaders:
			_, size, err := proto.ReadListBegin(ctx)
			if err != nil {
				return nil, fault.Wrap(fault.DecodeError, err, "invalid thrift headers")
			}
			headers := make([]string, 0, size)
			for i := 0; i < size; i++ {
				h, err := proto.ReadString(ctx)
				if err != nil {
					return nil, fault.Wrap(fault.DecodeError, err, "invalid thrift header entry")
				}
				headers = append(headers, h)
			}
			if err := proto.ReadListEnd(ctx); err != nil {
				return nil, fault.Wrap(fault.DecodeError, err, "invalid thrift headers")
			}
			p.Headers = headers
		default:
			if err := thrift.SkipDefaultDepth(ctx, proto, typeID); err != nil {
				return nil, fault.Wrap(fault.DecodeError, err, "invalid thrift field")
			}
		}
		if err := proto.ReadFieldEnd(ctx); err != nil {
			return nil, fault.Wrap(fault.DecodeError, err, "invalid thrift message")
		}
	}
	if err := proto.ReadStructEnd(ctx); err != nil {
		return nil, fault.Wrap(fault.DecodeError, err, "invalid thrift message")
	}
	return p, nil
}
