package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"strings"
)

// Config 描述鉴权服务的启动参数。
type Config struct {
	Enabled bool
	APIKeys []string
}

// Option 调整 Service 的可选行为。
type Option func(*Service)

// WithAuditLogger 指定审计日志输出。
func WithAuditLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.audit = logger
	}
}

// Service 校验请求携带的 API key。
type Service struct {
	mode  Mode
	keys  map[string]Subject
	audit *slog.Logger
}

// NewService 构造鉴权服务。未启用时所有请求直接放行。
func NewService(cfg Config, opts ...Option) (*Service, error) {
	s := &Service{mode: ModeDisabled, keys: make(map[string]Subject)}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if !cfg.Enabled {
		return s, nil
	}

	for _, key := range cfg.APIKeys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		digest := hashKey(key)
		s.keys[digest] = Subject{KeyFingerprint: digest[:12]}
	}
	if len(s.keys) == 0 {
		return nil, ErrNoKeysConfigured
	}
	s.mode = ModeAPIKey
	return s, nil
}

// Mode 返回当前的鉴权模式。
func (s *Service) Mode() Mode {
	if s == nil {
		return ModeDisabled
	}
	return s.mode
}

// Authenticate 校验 Authorization 头并返回调用主体。
func (s *Service) Authenticate(authorization string) (*Subject, error) {
	if s == nil || s.mode == ModeDisabled {
		return nil, ErrDisabled
	}

	token := strings.TrimSpace(authorization)
	if token == "" {
		return nil, ErrMissingToken
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(token, prefix) {
		return nil, ErrInvalidToken
	}
	token = strings.TrimSpace(strings.TrimPrefix(token, prefix))
	if token == "" {
		return nil, ErrMissingToken
	}

	digest := hashKey(token)
	for stored, subject := range s.keys {
		if subtle.ConstantTimeCompare([]byte(stored), []byte(digest)) == 1 {
			matched := subject
			return &matched, nil
		}
	}
	return nil, ErrInvalidToken
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
