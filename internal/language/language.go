package language

import (
	"context"
	"net/url"
	"strings"

	"github.com/mehmetcc/storefront/internal/storage"
	"go.uber.org/zap"
)

type Language string

const (
	English Language = "en"
	Arabic  Language = "ar"
)

func Parse(s string) (Language, bool) {
	switch Language(strings.ToLower(s)) {
	case English:
		return English, true
	case Arabic:
		return Arabic, true
	}
	return "", false
}

// Direction is the text direction of the language.
func (l Language) Direction() string {
	if l == Arabic {
		return "rtl"
	}
	return "ltr"
}

// Service tracks the UI language persisted under storage.KeyLanguage.
type Service struct {
	storage  storage.Storage
	fallback Language
	logger   *zap.Logger
}

func NewService(s storage.Storage, fallback Language, logger *zap.Logger) *Service {
	if _, ok := Parse(string(fallback)); !ok {
		fallback = English
	}
	return &Service{storage: s, fallback: fallback, logger: logger}
}

func (s *Service) Current(ctx context.Context) Language {
	raw, ok, err := s.storage.Get(ctx, storage.KeyLanguage)
	if err != nil {
		s.logger.Warn("failed to read language, using default", zap.Error(err))
		return s.fallback
	}
	if !ok {
		return s.fallback
	}
	lang, valid := Parse(raw)
	if !valid {
		return s.fallback
	}
	return lang
}

func (s *Service) Set(ctx context.Context, lang Language) error {
	return s.storage.Set(ctx, storage.KeyLanguage, string(lang))
}

// Detect adopts the language named by the first path segment, if any, and
// returns the language in effect afterwards.
func (s *Service) Detect(ctx context.Context, path string) Language {
	seg, _, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	lang, ok := Parse(seg)
	if !ok {
		return s.Current(ctx)
	}
	if lang != s.Current(ctx) {
		if err := s.Set(ctx, lang); err != nil {
			s.logger.Warn("failed to persist language", zap.String("language", string(lang)), zap.Error(err))
		}
	}
	return lang
}

// LoginPath is the login page for the current language with returnURL kept
// as the returnUrl query parameter.
func (s *Service) LoginPath(ctx context.Context, returnURL string) string {
	return LoginPath(s.Current(ctx), returnURL)
}

func (s *Service) UnauthorizedPath(ctx context.Context) string {
	return WithPrefix(s.Current(ctx), "/unauthorized")
}

func LoginPath(lang Language, returnURL string) string {
	p := WithPrefix(lang, "/auth/login")
	if returnURL == "" {
		return p
	}
	return p + "?" + url.Values{"returnUrl": {returnURL}}.Encode()
}

// StripPrefix removes a leading language segment, always returning a path
// starting with "/".
func StripPrefix(path string) string {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	if _, ok := Parse(segs[0]); ok {
		segs = segs[1:]
	}
	return "/" + strings.Join(segs, "/")
}

func WithPrefix(lang Language, path string) string {
	rest := strings.TrimPrefix(StripPrefix(path), "/")
	if rest == "" {
		return "/" + string(lang)
	}
	return "/" + string(lang) + "/" + rest
}
