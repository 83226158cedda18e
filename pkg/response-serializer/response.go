package serializer

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
)

// ResponseToBytes converts a response to a byte slice.
// It returns the HTTP/1.1 representation of the response: status, headers and the complete body.
// The body of res is read in the process and then set back,
// so the response can still be sent to a client afterwards.
func ResponseToBytes(res *http.Response) ([]byte, error) {
	body, err := drainBody(res)
	if err != nil {
		return nil, err
	}

	snapshot := *res
	snapshot.Proto = "HTTP/1.1"
	snapshot.ProtoMajor = 1
	snapshot.ProtoMinor = 1
	snapshot.TransferEncoding = nil
	snapshot.Trailer = nil
	snapshot.Close = false
	snapshot.Uncompressed = false
	// the request is only used by Write for HEAD detection, which never applies to a snapshot
	snapshot.Request = nil
	snapshot.ContentLength = int64(len(body))
	snapshot.Body = io.NopCloser(bytes.NewReader(body))

	buf := &bytes.Buffer{}
	if err := snapshot.Write(buf); err != nil {
		return nil, fmt.Errorf("could not write response snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// BytesToResponse converts a byte slice created with ResponseToBytes to a http.Response.
// Every call returns a new response with its own unread body.
func BytesToResponse(b []byte, req *http.Request) (*http.Response, error) {
	return http.ReadResponse(bufio.NewReader(bytes.NewReader(b)), req)
}

// Clone returns an independent copy of the response.
// Both res and the copy can be read to the end.
func Clone(res *http.Response) (*http.Response, error) {
	bts, err := ResponseToBytes(res)
	if err != nil {
		return nil, err
	}
	return BytesToResponse(bts, res.Request)
}

// drainBody reads the whole body and sets it back on the response.
func drainBody(res *http.Response) ([]byte, error) {
	if res.Body == nil || res.Body == http.NoBody {
		return nil, nil
	}
	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("could not read response body: %w", err)
	}
	res.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}
