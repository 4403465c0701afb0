package archive

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewS3MockForTests returns an *S3Store whose client talks to an in-memory
// transport speaking just enough of the S3 REST protocol for the archive
// Store contract: HeadObject, PutObject, GetObject, DeleteObject, and
// ListObjectsV2.
func NewS3MockForTests() *S3Store {
	tr := &s3Fake{objects: make(map[string]s3FakeObject)}
	cfg, _ := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: tr}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://mock.s3.local")
	})
	return &S3Store{client: client, bucket: "mock-bucket"}
}

type s3Fake struct {
	mu      sync.Mutex
	objects map[string]s3FakeObject
}

type s3FakeObject struct {
	payload     []byte
	contentType string
}

func (f *s3Fake) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	// Path-style addressing: /<bucket>/<key>.
	_, key, _ := strings.Cut(strings.TrimPrefix(req.URL.Path, "/"), "/")
	switch {
	case req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2":
		return f.list(req.URL.Query().Get("prefix")), nil
	case req.Method == http.MethodHead:
		obj, ok := f.objects[key]
		if !ok {
			return s3Reply(http.StatusNotFound, nil, nil), nil
		}
		return s3Reply(http.StatusOK, nil, objectHeaders(obj)), nil
	case req.Method == http.MethodGet:
		obj, ok := f.objects[key]
		if !ok {
			return s3Reply(http.StatusNotFound, nil, nil), nil
		}
		return s3Reply(http.StatusOK, obj.payload, objectHeaders(obj)), nil
	case req.Method == http.MethodPut:
		raw, _ := io.ReadAll(req.Body)
		if _, exists := f.objects[key]; !exists {
			f.objects[key] = s3FakeObject{
				payload:     unwrapAWSChunked(raw),
				contentType: req.Header.Get("Content-Type"),
			}
		}
		return s3Reply(http.StatusOK, nil, http.Header{"ETag": {`"etag"`}}), nil
	case req.Method == http.MethodDelete:
		delete(f.objects, key)
		return s3Reply(http.StatusNoContent, nil, nil), nil
	}
	return s3Reply(http.StatusNotImplemented, nil, nil), nil
}

type s3ListResult struct {
	XMLName     xml.Name      `xml:"ListBucketResult"`
	IsTruncated bool          `xml:"IsTruncated"`
	Contents    []s3ListEntry `xml:"Contents"`
}

type s3ListEntry struct {
	Key          string `xml:"Key"`
	Size         int64  `xml:"Size"`
	LastModified string `xml:"LastModified"`
}

func (f *s3Fake) list(prefix string) *http.Response {
	result := s3ListResult{}
	for key, obj := range f.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		result.Contents = append(result.Contents, s3ListEntry{
			Key:          key,
			Size:         int64(len(obj.payload)),
			LastModified: "2024-01-01T00:00:00Z",
		})
	}
	sort.Slice(result.Contents, func(i, j int) bool {
		return result.Contents[i].Key < result.Contents[j].Key
	})
	body, err := xml.Marshal(result)
	if err != nil {
		return s3Reply(http.StatusInternalServerError, nil, nil)
	}
	return s3Reply(http.StatusOK, body, http.Header{"Content-Type": {"application/xml"}})
}

func objectHeaders(obj s3FakeObject) http.Header {
	return http.Header{
		"Content-Length": {strconv.Itoa(len(obj.payload))},
		"Content-Type":   {obj.contentType},
		"ETag":           {`"etag"`},
		"Last-Modified":  {time.Now().UTC().Format(http.TimeFormat)},
	}
}

func s3Reply(status int, body []byte, headers http.Header) *http.Response {
	if headers == nil {
		headers = http.Header{}
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(body)),
		Header:     headers,
	}
}

// unwrapAWSChunked strips the single-chunk aws-chunked framing the SDK wraps
// streaming uploads in, "<hex-size>\r\n<payload>\r\n0\r\n...", returning the
// body unchanged when it is not framed that way.
func unwrapAWSChunked(raw []byte) []byte {
	head, rest, ok := bytes.Cut(raw, []byte("\r\n"))
	if !ok {
		return raw
	}
	size, err := strconv.ParseInt(string(head), 16, 64)
	if err != nil || size < 0 || int64(len(rest)) < size {
		return raw
	}
	payload, tail, ok := bytes.Cut(rest, []byte("\r\n"))
	if !ok || int64(len(payload)) != size || !bytes.HasPrefix(tail, []byte("0")) {
		return raw
	}
	return payload
}
