package qr

import (
	"bytes"
	"sync"

	"github.com/yeqown/go-qrcode/v2"
	"github.com/yeqown/go-qrcode/writer/standard"
)

// Service renders PNG QR codes for Pix copy-and-paste codes. A br_code never
// changes for a charge, so encodings are cached for the process lifetime.
type Service struct {
	mu    sync.RWMutex
	cache map[string][]byte
}

func NewService() *Service {
	return &Service{cache: make(map[string][]byte)}
}

type bufferAdaptor struct {
	*bytes.Buffer
}

func (b bufferAdaptor) Close() error { return nil }

func (s *Service) FindOrNew(content string) ([]byte, error) {
	s.mu.RLock()
	png, ok := s.cache[content]
	s.mu.RUnlock()
	if ok {
		return png, nil
	}

	qrc, err := qrcode.New(content)
	if err != nil {
		return nil, err
	}

	b := bufferAdaptor{Buffer: bytes.NewBuffer(nil)}
	w := standard.NewWithWriter(b)
	if err := qrc.Save(w); err != nil {
		return nil, err
	}
	png = b.Bytes()

	s.mu.Lock()
	s.cache[content] = png
	s.mu.Unlock()
	return png, nil
}
