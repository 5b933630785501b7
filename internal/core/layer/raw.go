package layer

// Raw is an opaque run of bytes. It carries payloads no decoder claims:
// the unknown-protocol variant of a UDP payload and the TCP segment data.
type Raw struct {
	Data []byte
}

// NewRaw wraps a copy of b.
func NewRaw(b []byte) *Raw {
	return &Raw{Data: cloneBytes(b)}
}

func (r *Raw) Type() LayerType { return LayerTypeRaw }

func (r *Raw) Len() int { return len(r.Data) }

func (r *Raw) RecomputeLength() int { return len(r.Data) }

func (r *Raw) Encode() []byte { return encode(r) }

func (r *Raw) size() int { return len(r.Data) }

func (r *Raw) Clone() Layer { return &Raw{Data: cloneBytes(r.Data)} }

func (r *Raw) appendTo(b []byte) []byte { return append(b, r.Data...) }
