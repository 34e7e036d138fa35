// Package block implements the SST data block and index block: format,
// builder, and reader. Blocks carry no restart points or shared-prefix
// delta encoding — each entry is self-contained, trading a little density
// for a much simpler decoder.
package block

import "github.com/crwen/ckv/internal/encoding"

// HandleSize is the encoded size of a Handle: two big-endian u32 fields.
// Capping block offset/size at 32 bits keeps the footer (and every index
// entry) a fixed width, at the cost of a 4 GiB ceiling on a single SST.
const HandleSize = 8

// Handle locates a block within an SST file.
type Handle struct {
	Offset uint32
	Size   uint32
}

// AppendTo appends the encoded handle to dst.
func (h Handle) AppendTo(dst []byte) []byte {
	dst = encoding.AppendFixed32(dst, h.Offset)
	dst = encoding.AppendFixed32(dst, h.Size)
	return dst
}

// DecodeHandle decodes a Handle from the front of src.
func DecodeHandle(src []byte) (Handle, error) {
	if len(src) < HandleSize {
		return Handle{}, ErrTruncatedHandle
	}
	return Handle{
		Offset: encoding.DecodeFixed32(src[0:4]),
		Size:   encoding.DecodeFixed32(src[4:8]),
	}, nil
}
