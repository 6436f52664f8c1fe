package upstream

import (
	"context"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
)

// Stream 上游流式响应体。只能被消费一次；Release 幂等，可在任意 goroutine 调用。
type Stream struct {
	Engine string
	Header http.Header

	body     io.ReadCloser
	cancel   context.CancelFunc
	once     sync.Once
	releases atomic.Int32
	closeErr error
}

// NewStream wraps body; cancel may be nil.
func NewStream(engine string, header http.Header, body io.ReadCloser, cancel context.CancelFunc) *Stream {
	if header == nil {
		header = http.Header{}
	}
	return &Stream{Engine: engine, Header: header, body: body, cancel: cancel}
}

func (s *Stream) Read(p []byte) (int, error) {
	return s.body.Read(p)
}

// Release 关闭响应体并取消请求上下文，只生效一次
func (s *Stream) Release() error {
	s.once.Do(func() {
		s.releases.Add(1)
		s.closeErr = s.body.Close()
		if s.cancel != nil {
			s.cancel()
		}
	})
	return s.closeErr
}

// Releases 返回实际释放次数，正确使用时不超过 1
func (s *Stream) Releases() int {
	return int(s.releases.Load())
}
