package format

import (
	"bytes"
	"io"

	"github.com/Sternrassler/idmapping-client/pkg/client"
	"github.com/klauspost/compress/gzip"
)

// Decompress unpacks a gzip framed page. Any failure is a protocol error.
func Decompress(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, &client.ProtocolError{Op: "decompress page", Detail: "not a gzip stream", Err: err}
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, &client.ProtocolError{Op: "decompress page", Detail: "corrupt gzip stream", Err: err}
	}
	return out, nil
}

// Compress gzips data.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
