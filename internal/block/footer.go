package block

import "github.com/crwen/ckv/internal/encoding"

// FooterSize is the fixed size of an SST footer: four big-endian u32
// fields, no magic number and no format-version byte. An SST is
// self-describing purely by its trailing 16 bytes.
const FooterSize = 16

// Footer is the fixed-width trailer of every SST file.
type Footer struct {
	FilterOffset uint32
	FilterSize   uint32
	IndexOffset  uint32
	IndexSize    uint32
}

// Encode returns the 16-byte encoded footer.
func (f Footer) Encode() []byte {
	dst := make([]byte, 0, FooterSize)
	dst = encoding.AppendFixed32(dst, f.FilterOffset)
	dst = encoding.AppendFixed32(dst, f.FilterSize)
	dst = encoding.AppendFixed32(dst, f.IndexOffset)
	dst = encoding.AppendFixed32(dst, f.IndexSize)
	return dst
}

// DecodeFooter decodes the trailing FooterSize bytes of an SST file.
func DecodeFooter(data []byte) (Footer, error) {
	if len(data) < FooterSize {
		return Footer{}, ErrTruncatedBlock
	}
	data = data[len(data)-FooterSize:]
	return Footer{
		FilterOffset: encoding.DecodeFixed32(data[0:4]),
		FilterSize:   encoding.DecodeFixed32(data[4:8]),
		IndexOffset:  encoding.DecodeFixed32(data[8:12]),
		IndexSize:    encoding.DecodeFixed32(data[12:16]),
	}, nil
}

// FilterHandle returns the filter block's location as a Handle.
func (f Footer) FilterHandle() Handle {
	return Handle{Offset: f.FilterOffset, Size: f.FilterSize}
}

// IndexHandle returns the index block's location as a Handle.
func (f Footer) IndexHandle() Handle {
	return Handle{Offset: f.IndexOffset, Size: f.IndexSize}
}
