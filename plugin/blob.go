package plugin

// Blob is an opaque binary payload that travels beside the structured output of a
// Source, for data that does not belong in the configuration-shaped value (frames,
// audio, raw sensor dumps). Format is a free-form descriptor such as a MIME type.
type Blob struct {
	Format string
	Data   []byte
}

// Reset empties the blob, keeping the underlying buffer for reuse
func (b *Blob) Reset() {
	b.Format = ""
	b.Data = b.Data[:0]
}

// Set replaces the payload, copying data into the blob's own buffer
func (b *Blob) Set(format string, data []byte) {
	b.Format = format
	b.Data = append(b.Data[:0], data...)
}

// Empty reports whether the blob carries no payload
func (b *Blob) Empty() bool {
	return b == nil || len(b.Data) == 0
}

// Clone returns an independent copy of the blob. A nil blob clones to an empty one.
func (b *Blob) Clone() Blob {
	if b == nil {
		return Blob{}
	}
	return Blob{Format: b.Format, Data: append([]byte(nil), b.Data...)}
}
