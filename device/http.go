package device

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/arloliu/go-fujibus/fujibus"
)

// httpSession runs one HTTP request. Methods without a body are sent on
// open; POST and PUT collect body writes until the zero-length write.
type httpSession struct {
	client  *http.Client
	method  fujibus.Method
	url     string
	maxBody int

	needsBody bool
	reqBody   bytes.Buffer

	done          bool
	err           error
	status        int
	body          []byte
	contentLength int64
	truncated     bool
}

func (d *Device) openHTTP(ctx context.Context, r fujibus.OpenRequest) (*httpSession, error) {
	if r.Method == fujibus.MethodNone {
		return nil, statusErr(fujibus.StatusInvalid, "method required for %s", r.URL)
	}

	target := r.URL
	if r.Flags&fujibus.OpenTLS != 0 && len(target) >= 7 && strings.EqualFold(target[:7], "http://") {
		target = "https://" + target[7:]
	}

	u, err := url.Parse(target)
	if err != nil {
		return nil, statusErr(fujibus.StatusInvalid, "bad url: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, statusErr(fujibus.StatusUnsupported, "scheme %q", u.Scheme)
	}

	client := *d.cfg.httpClient
	if r.Flags&fujibus.OpenFollowRedirect == 0 {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	s := &httpSession{
		client:        &client,
		method:        r.Method,
		url:           u.String(),
		maxBody:       d.cfg.maxBodySize,
		contentLength: -1,
	}

	if r.Method.HasBody() {
		s.needsBody = true
		return s, nil
	}

	if err := s.do(ctx, nil); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *httpSession) do(ctx context.Context, body io.Reader) error {
	s.done = true

	req, err := http.NewRequestWithContext(ctx, s.method.String(), s.url, body)
	if err != nil {
		s.err = statusErr(fujibus.StatusInvalid, "%v", err)
		return s.err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.err = statusErr(fujibus.StatusIO, "%v", err)
		return s.err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, int64(s.maxBody)+1))
	if err != nil {
		s.err = statusErr(fujibus.StatusIO, "read body: %v", err)
		return s.err
	}
	if len(data) > s.maxBody {
		data = data[:s.maxBody]
		s.truncated = true
	}

	s.status = resp.StatusCode
	s.body = data
	s.contentLength = int64(len(data))
	if s.method == fujibus.MethodHead {
		s.contentLength = resp.ContentLength
	}

	return nil
}

func (s *httpSession) write(ctx context.Context, offset uint32, data []byte) (int, error) {
	if !s.needsBody {
		return 0, statusErr(fujibus.StatusInvalid, "%s request takes no body", s.method)
	}
	if int(offset) != s.reqBody.Len() {
		return 0, statusErr(fujibus.StatusInvalid, "body offset %d, expected %d", offset, s.reqBody.Len())
	}

	if len(data) == 0 {
		s.needsBody = false
		if err := s.do(ctx, bytes.NewReader(s.reqBody.Bytes())); err != nil {
			return 0, err
		}

		return 0, nil
	}

	if s.reqBody.Len()+len(data) > s.maxBody {
		return 0, statusErr(fujibus.StatusInvalid, "request body exceeds %d bytes", s.maxBody)
	}
	s.reqBody.Write(data)

	return len(data), nil
}

func (s *httpSession) read(_ context.Context, offset uint32, dst []byte) (int, fujibus.ReadFlags, error) {
	switch {
	case s.needsBody:
		return 0, 0, statusErr(fujibus.StatusNotReady, "request body not finished")
	case s.err != nil:
		return 0, 0, s.err
	}

	if int(offset) >= len(s.body) {
		return 0, fujibus.ReadEOF, nil
	}

	n := copy(dst, s.body[offset:])

	var flags fujibus.ReadFlags
	if int(offset)+n == len(s.body) {
		flags |= fujibus.ReadEOF
		if s.truncated {
			flags |= fujibus.ReadTruncated
		}
	}

	return n, flags, nil
}

func (s *httpSession) info() (fujibus.InfoFlags, uint16, uint64) {
	if !s.done || s.err != nil {
		return 0, 0, 0
	}

	flags := fujibus.InfoHasStatus
	var length uint64
	if s.contentLength >= 0 {
		flags |= fujibus.InfoHasLength
		length = uint64(s.contentLength)
	}

	return flags, uint16(s.status), length //nolint:gosec // HTTP status codes fit
}

func (s *httpSession) close() error {
	s.body = nil
	return nil
}
